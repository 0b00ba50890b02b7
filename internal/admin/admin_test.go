package admin

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"gdbc/internal/procmgr"
	"gdbc/pkg/utils/response"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
)

type fakeTable struct {
	mu    sync.Mutex
	slots []procmgr.SlotInfo
}

func (f *fakeTable) Capacity() int { return 8 }

func (f *fakeTable) Active() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.slots)
}

func (f *fakeTable) Snapshot() []procmgr.SlotInfo {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]procmgr.SlotInfo(nil), f.slots...)
}

func (f *fakeTable) set(slots ...procmgr.SlotInfo) {
	f.mu.Lock()
	f.slots = slots
	f.mu.Unlock()
}

func newTestRouter(table ProcessTable, gatherer prometheus.Gatherer) *gin.Engine {
	gin.SetMode(gin.TestMode)
	return NewRouter(Config{StreamInterval: 10 * time.Millisecond}, table, gatherer)
}

func get(t *testing.T, router http.Handler, path string) (*httptest.ResponseRecorder, response.Response) {
	t.Helper()
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	var resp response.Response
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode response failed: %v", err)
		}
	}
	return rec, resp
}

func TestHealth(t *testing.T) {
	router := newTestRouter(&fakeTable{slots: []procmgr.SlotInfo{{Index: 1, State: "running"}}}, nil)
	rec, resp := get(t, router, "/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	data := resp.Data.(map[string]interface{})
	if data["status"] != "ok" || data["capacity"] != float64(8) || data["active"] != float64(1) {
		t.Fatalf("health %#v", data)
	}
	if rec.Header().Get("X-Trace-Id") == "" {
		t.Fatalf("trace middleware not installed")
	}
}

func TestProcesses(t *testing.T) {
	started := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	table := &fakeTable{}
	table.set(
		procmgr.SlotInfo{Index: 0, State: "running", PID: 1234, Generation: 3, Binary: "/srv/bins/9.out", StartedAt: started},
		procmgr.SlotInfo{Index: 5, State: "running", PID: 1240, Generation: 1, Debug: true},
	)
	router := newTestRouter(table, nil)

	rec, resp := get(t, router, "/processes")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	raw, _ := json.Marshal(resp.Data)
	var list ProcessList
	if err := json.Unmarshal(raw, &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if list.Capacity != 8 || list.Active != 2 || len(list.Processes) != 2 {
		t.Fatalf("list %+v", list)
	}
	if list.Processes[0].PID != 1234 || !list.Processes[0].StartedAt.Equal(started) {
		t.Fatalf("slot 0 %+v", list.Processes[0])
	}

	rec, resp = get(t, router, "/processes/5")
	if rec.Code != http.StatusOK || resp.Data.(map[string]interface{})["debug"] != true {
		t.Fatalf("slot 5: %d %#v", rec.Code, resp.Data)
	}
	rec, resp = get(t, router, "/processes/2")
	if rec.Code != http.StatusOK || resp.Data.(map[string]interface{})["state"] != "free" {
		t.Fatalf("slot 2: %d %#v", rec.Code, resp.Data)
	}
	rec, _ = get(t, router, "/processes/99")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("out of range status = %d", rec.Code)
	}
}

func TestEmptyProcessList(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(&fakeTable{}, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/processes", nil))
	if !strings.Contains(rec.Body.String(), `"processes":[]`) {
		t.Fatalf("body %s", rec.Body.String())
	}
}

func TestMetrics(t *testing.T) {
	pmc := procmgr.NewPrometheusMetricsCollector("gdbc")
	pmc.ActiveSlots(3)
	router := newTestRouter(&fakeTable{}, pmc.Registry())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "gdbc_process_slots_active 3") {
		t.Fatalf("metrics body missing gauge:\n%s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	newTestRouter(&fakeTable{}, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("metrics without gatherer = %d", rec.Code)
	}
}

func TestNewServerDefaults(t *testing.T) {
	srv := NewServer(Config{}, &fakeTable{}, nil)
	if srv.Addr != DefaultAddr {
		t.Fatalf("addr = %s", srv.Addr)
	}
	if srv.Handler == nil || srv.ReadTimeout == 0 {
		t.Fatalf("server not configured: %+v", srv)
	}
}

func TestConfigEnabledDefault(t *testing.T) {
	if !(Config{}).IsEnabled() {
		t.Fatalf("admin should default to enabled")
	}
	off := false
	if (Config{Enabled: &off}).IsEnabled() {
		t.Fatalf("explicit false ignored")
	}
}

func TestProcessStream(t *testing.T) {
	table := &fakeTable{}
	table.set(procmgr.SlotInfo{Index: 0, State: "running", PID: 10})
	srv := httptest.NewServer(newTestRouter(table, nil))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/processes"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer func() { _ = conn.Close() }()
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("handshake status = %d", resp.StatusCode)
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var first ProcessList
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read first frame: %v", err)
	}
	if first.Active != 1 || len(first.Processes) != 1 || first.Processes[0].PID != 10 {
		t.Fatalf("first frame %+v", first)
	}

	table.set()
	for {
		var next ProcessList
		if err := conn.ReadJSON(&next); err != nil {
			t.Fatalf("read frame: %v", err)
		}
		if next.Active == 0 {
			if next.Processes == nil || len(next.Processes) != 0 {
				t.Fatalf("empty table should stream [] : %+v", next)
			}
			break
		}
	}
}

func TestProcessStreamRequiresUpgrade(t *testing.T) {
	rec, _ := get(t, newTestRouter(&fakeTable{}, nil), "/ws/processes")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("plain GET status = %d", rec.Code)
	}
}
