// Package admin serves the operator endpoints: health, the process table
// (polled or pushed over a websocket) and Prometheus metrics.
package admin

import (
	"net/http"
	"strconv"
	"time"

	commonmw "gdbc/internal/common/http/middleware"
	"gdbc/internal/procmgr"
	pkgerrors "gdbc/pkg/errors"
	"gdbc/pkg/utils/response"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	DefaultAddr         = "127.0.0.1:10011"
	defaultReadTimeout  = 5 * time.Second
	defaultWriteTimeout = 10 * time.Second
)

// Config holds admin listener settings.
type Config struct {
	Addr    string `yaml:"addr"`
	Enabled *bool  `yaml:"enabled"`
	// StreamInterval is the push period of /ws/processes.
	StreamInterval time.Duration `yaml:"streamInterval"`
}

// IsEnabled reports whether the listener should run; it defaults to on.
func (c Config) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// ProcessTable is the read side of the process manager.
type ProcessTable interface {
	Capacity() int
	Active() int
	Snapshot() []procmgr.SlotInfo
}

// Health is the /healthz payload.
type Health struct {
	Status   string `json:"status"`
	Capacity int    `json:"capacity"`
	Active   int    `json:"active"`
	Uptime   string `json:"uptime"`
}

// ProcessList is the /processes payload.
type ProcessList struct {
	Capacity  int                `json:"capacity"`
	Active    int                `json:"active"`
	Processes []procmgr.SlotInfo `json:"processes"`
}

type controller struct {
	procs    ProcessTable
	started  time.Time
	interval time.Duration
}

// NewRouter builds the admin routes. gatherer may be nil, in which case
// /metrics is not registered.
func NewRouter(cfg Config, procs ProcessTable, gatherer prometheus.Gatherer) *gin.Engine {
	interval := cfg.StreamInterval
	if interval <= 0 {
		interval = defaultStreamInterval
	}
	ctrl := &controller{procs: procs, started: time.Now(), interval: interval}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(commonmw.TraceContextMiddleware())
	router.Use(commonmw.RequestLogger())

	router.GET("/healthz", ctrl.health)
	router.GET("/processes", ctrl.processes)
	router.GET("/processes/:index", ctrl.process)
	router.GET("/ws/processes", ctrl.stream)
	if gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
	router.NoRoute(func(c *gin.Context) {
		response.NotFound(c, "")
	})
	return router
}

// NewServer wraps the admin router in an http.Server.
func NewServer(cfg Config, procs ProcessTable, gatherer prometheus.Gatherer) *http.Server {
	addr := cfg.Addr
	if addr == "" {
		addr = DefaultAddr
	}
	return &http.Server{
		Addr:         addr,
		Handler:      NewRouter(cfg, procs, gatherer),
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
	}
}

func (h *controller) health(c *gin.Context) {
	response.Success(c, Health{
		Status:   "ok",
		Capacity: h.procs.Capacity(),
		Active:   h.procs.Active(),
		Uptime:   time.Since(h.started).Truncate(time.Second).String(),
	})
}

func (h *controller) processList() ProcessList {
	list := h.procs.Snapshot()
	if list == nil {
		list = []procmgr.SlotInfo{}
	}
	return ProcessList{
		Capacity:  h.procs.Capacity(),
		Active:    h.procs.Active(),
		Processes: list,
	}
}

func (h *controller) processes(c *gin.Context) {
	response.Success(c, h.processList())
}

func (h *controller) process(c *gin.Context) {
	idx, err := strconv.Atoi(c.Param("index"))
	if err != nil || idx < 0 || idx >= h.procs.Capacity() {
		response.Error(c, pkgerrors.New(pkgerrors.InvalidProcess).WithDetail("pid", c.Param("index")))
		return
	}
	for _, info := range h.procs.Snapshot() {
		if info.Index == idx {
			response.Success(c, info)
			return
		}
	}
	response.Success(c, procmgr.SlotInfo{Index: idx, State: "free"})
}
