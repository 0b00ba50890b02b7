package repl

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"gdbc/internal/cli/command"
	httpclient "gdbc/internal/cli/http"
	"gdbc/internal/cli/state"
)

type scriptReader struct {
	lines   []string
	prompts []string
}

func (r *scriptReader) Readline() (string, error) {
	if len(r.lines) == 0 {
		return "", io.EOF
	}
	line := r.lines[0]
	r.lines = r.lines[1:]
	return line, nil
}

func (r *scriptReader) SetPrompt(p string) {
	r.prompts = append(r.prompts, p)
}

type recordedRequest struct {
	method string
	uri    string
	body   string
	ctype  string
}

type fakeServer struct {
	mu       sync.Mutex
	requests []recordedRequest
	polls    int
}

func (f *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.requests = append(f.requests, recordedRequest{
		method: r.Method,
		uri:    r.URL.RequestURI(),
		body:   string(body),
		ctype:  r.Header.Get("Content-Type"),
	})
	f.mu.Unlock()

	switch r.URL.Path {
	case "/run/text-mode", "/stop", "/input":
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"pid":5}`))
	case "/program":
		f.mu.Lock()
		f.polls++
		n := f.polls
		f.mu.Unlock()
		switch n {
		case 1:
			_, _ = w.Write([]byte(`{"pid":5,"output":"hello\n"}`))
		case 2:
			w.WriteHeader(http.StatusNoContent)
		default:
			w.Header().Set(programStatusHeader, programExited)
			w.WriteHeader(http.StatusNoContent)
		}
	default:
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("Not Found"))
	}
}

func (f *fakeServer) snapshot() []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedRequest(nil), f.requests...)
}

func newTestSession(t *testing.T, lines ...string) (*Session, *scriptReader, *bytes.Buffer, *fakeServer, string) {
	t.Helper()
	fake := &fakeServer{}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	statePath := filepath.Join(t.TempDir(), "state.json")
	reader := &scriptReader{lines: lines}
	out := &bytes.Buffer{}
	st := &state.SessionState{}
	session := New(httpclient.New(srv.URL, time.Second), command.Registry(), st, reader, out, Options{
		StatePath:    statePath,
		PrettyJSON:   false,
		PollInterval: time.Millisecond,
	})
	return session, reader, out, fake, statePath
}

func TestRunWatchAndForget(t *testing.T) {
	src := filepath.Join(t.TempDir(), "main.c")
	if err := os.WriteFile(src, []byte("int main(){return 0;}"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	session, _, out, fake, statePath := newTestSession(t,
		"run text file="+src+" stdin=7",
		"show last",
		"watch",
		"show last",
		"exit",
	)
	session.Run(context.Background())

	text := out.String()
	for _, want := range []string{"HTTP 200", `{"pid":5}`, "last: pid=5 file=" + src, "hello\n", "program exited", "last: <none>", "bye"} {
		if !strings.Contains(text, want) {
			t.Fatalf("output missing %q:\n%s", want, text)
		}
	}

	reqs := fake.snapshot()
	if len(reqs) != 4 {
		t.Fatalf("requests = %d, want 4: %+v", len(reqs), reqs)
	}
	run := reqs[0]
	if run.method != http.MethodPost || run.uri != "/run/text-mode?compiler_type=gcc&language=c" || run.ctype != "application/json" {
		t.Fatalf("run request = %+v", run)
	}
	if !strings.Contains(run.body, `"stdin":"7"`) || !strings.Contains(run.body, `"source_code":"int main(){return 0;}"`) {
		t.Fatalf("run body = %s", run.body)
	}
	for _, poll := range reqs[1:] {
		if poll.method != http.MethodGet || poll.uri != "/program?pid=5" {
			t.Fatalf("poll request = %+v", poll)
		}
	}

	saved, err := state.Load(statePath)
	if err != nil {
		t.Fatalf("load state: %v", err)
	}
	if saved.LastPID != nil {
		t.Fatalf("exited program still remembered: %+v", saved)
	}
}

func TestPromptsForMissingFields(t *testing.T) {
	session, reader, out, fake, _ := newTestSession(t,
		"proc input",
		"3",
		"hi there",
	)
	session.Run(context.Background())

	if !strings.Contains(strings.Join(reader.prompts, "|"), "pid: |gdbc> |stdin: |gdbc> ") {
		t.Fatalf("prompts = %q", reader.prompts)
	}
	reqs := fake.snapshot()
	if len(reqs) != 1 {
		t.Fatalf("requests = %+v", reqs)
	}
	if reqs[0].uri != "/input?pid=3" || reqs[0].body != `{"stdin":"hi there"}` {
		t.Fatalf("input request = %+v", reqs[0])
	}
	if !strings.Contains(out.String(), "HTTP 200") {
		t.Fatalf("output = %s", out.String())
	}
}

func TestLastPIDDefaultsAndStopForgets(t *testing.T) {
	session, _, _, fake, statePath := newTestSession(t, "proc stop")
	pid := 5
	session.state.LastPID = &pid
	session.Run(context.Background())

	reqs := fake.snapshot()
	if len(reqs) != 1 || reqs[0].uri != "/stop?pid=5" || reqs[0].body != "{}" {
		t.Fatalf("stop request = %+v", reqs)
	}
	if session.state.LastPID != nil {
		t.Fatalf("stopped program still remembered")
	}
	if _, err := os.Stat(statePath); err != nil {
		t.Fatalf("state not saved: %v", err)
	}
}

func TestSystemCommands(t *testing.T) {
	session, _, out, fake, _ := newTestSession(t,
		"help",
		"set poll 5ms",
		"set timeout nope",
		"set base",
		"show config",
		"run",
		"nope thing",
		"proc poll pid=x",
		"quit",
		"proc poll pid=1",
	)
	session.Run(context.Background())

	text := out.String()
	for _, want := range []string{
		"run text file=main.c",
		"poll set to 5ms",
		"invalid duration: nope",
		"usage: set base",
		"poll: 5ms",
		"error: invalid command",
		"error: unknown command: nope thing",
		"error: invalid pid",
		"bye",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("output missing %q:\n%s", want, text)
		}
	}
	if reqs := fake.snapshot(); len(reqs) != 0 {
		t.Fatalf("no request expected after quit, got %+v", reqs)
	}
}

func TestRenderPrettyJSONAndErrors(t *testing.T) {
	out := &bytes.Buffer{}
	s := &Session{opts: Options{PrettyJSON: true}, out: out}

	s.renderResponse(httpclient.ResponseInfo{StatusCode: 200, Body: []byte(`{"pid":1,"output":"x"}`)})
	if !strings.Contains(out.String(), "{\n  \"pid\": 1,\n  \"output\": \"x\"\n}") {
		t.Fatalf("pretty output = %q", out.String())
	}

	out.Reset()
	s.renderResponse(httpclient.ResponseInfo{StatusCode: 400, Body: []byte("Invalid parameter: pid")})
	if !strings.Contains(out.String(), "HTTP 400") || !strings.Contains(out.String(), "Invalid parameter: pid") {
		t.Fatalf("error output = %q", out.String())
	}
}

func TestCompleterCoversRegistry(t *testing.T) {
	tree := Completer(command.Registry()).Tree("")
	for _, want := range []string{"run", "text", "debug", "proc", "poll", "watch", "show"} {
		if !strings.Contains(tree, want) {
			t.Fatalf("completer missing %q:\n%s", want, tree)
		}
	}
}
