// Package server accepts TCP connections and answers one HTTP request per
// connection on a fixed worker pool.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"gdbc/internal/httpx"
	"gdbc/internal/workerpool"
	"gdbc/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	DefaultAddr         = "0.0.0.0:10010"
	DefaultBacklog      = 128
	DefaultWorkers      = 256
	DefaultBufferSize   = 16 * 1024
	DefaultReadTimeout  = 5 * time.Second
	DefaultWriteTimeout = 10 * time.Second
)

// Config holds dispatcher settings.
type Config struct {
	Addr         string        `yaml:"addr"`
	Backlog      int           `yaml:"backlog"`
	Workers      int           `yaml:"workers"`
	BufferSize   int           `yaml:"bufferSize"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
}

func (c Config) withDefaults() Config {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.Backlog <= 0 {
		c.Backlog = DefaultBacklog
	}
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.BufferSize <= 0 {
		c.BufferSize = DefaultBufferSize
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	return c
}

// Server dispatches requests to the routes of a RouteTable. The table must
// not change once Serve has been called.
type Server struct {
	cfg     Config
	routes  *httpx.RouteTable
	pool    *workerpool.Pool
	buffers *bufferPool
	canned  canned

	mu       sync.Mutex
	listener net.Listener
	closing  atomic.Bool
}

// New creates a server and starts its workers.
func New(cfg Config, routes *httpx.RouteTable) (*Server, error) {
	if routes == nil {
		return nil, errors.New("server: route table is required")
	}
	cfg = cfg.withDefaults()
	pool, err := workerpool.New(cfg.Workers)
	if err != nil {
		return nil, err
	}
	return &Server{
		cfg:     cfg,
		routes:  routes,
		pool:    pool,
		buffers: newBufferPool(cfg.Workers, cfg.BufferSize),
		canned:  newCanned(),
	}, nil
}

// ListenAndServe listens on the configured address and serves until
// Shutdown.
func (s *Server) ListenAndServe() error {
	ln, err := listenTCP(s.cfg.Addr, s.cfg.Backlog)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln and hands each one to the worker pool.
// Accept errors are retried with backoff until ln is closed. It returns nil
// after Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	if s.closing.Load() {
		_ = ln.Close()
		return nil
	}

	logger.Info(context.Background(), "dispatcher started",
		zap.String("addr", ln.Addr().String()),
		zap.Int("workers", s.cfg.Workers),
		zap.Int("routes", s.routes.Len()),
	)

	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.closing.Load() {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return fmt.Errorf("accept: %w", err)
			}
			// Descriptor exhaustion and aborted handshakes clear up on their own.
			backoff = nextBackoff(backoff)
			if errors.Is(err, syscall.EMFILE) || errors.Is(err, syscall.ENFILE) {
				logger.Error(context.Background(), "accept failed, out of file descriptors", zap.Duration("backoff", backoff), zap.Error(err))
			} else {
				logger.Warn(context.Background(), "accept failed, retrying", zap.Duration("backoff", backoff), zap.Error(err))
			}
			time.Sleep(backoff)
			continue
		}
		backoff = 0

		if err := s.pool.Submit(func() { s.serveConn(conn) }); err != nil {
			_ = conn.Close()
			if errors.Is(err, workerpool.ErrClosed) {
				return nil
			}
			return err
		}
	}
}

func nextBackoff(d time.Duration) time.Duration {
	if d == 0 {
		return 5 * time.Millisecond
	}
	d *= 2
	if d > time.Second {
		d = time.Second
	}
	return d
}

// Addr returns the listening address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Shutdown stops accepting and waits for in-flight connections to finish
// or ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	if !s.closing.CompareAndSwap(false, true) {
		return nil
	}
	s.mu.Lock()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.pool.Close()
		close(done)
	}()
	select {
	case <-done:
		logger.Info(ctx, "dispatcher stopped")
		return nil
	case <-ctx.Done():
		logger.Warn(ctx, "dispatcher shutdown timed out", zap.Int("connections_in_flight", s.buffers.inUse()))
		return ctx.Err()
	}
}

// canned holds the serialized responses for requests that never reach a
// handler. They are built once and shared by every worker.
type canned struct {
	badRequest    []byte
	notFound      []byte
	internalError []byte
	noContent     []byte
}

func newCanned() canned {
	text := func(status int) []byte {
		return httpx.NewResponse(status).Text(httpx.StatusText(status)).AllowCORS().Bytes()
	}
	return canned{
		badRequest:    text(http.StatusBadRequest),
		notFound:      text(http.StatusNotFound),
		internalError: text(http.StatusInternalServerError),
		noContent:     httpx.NewResponse(http.StatusNoContent).AllowCORS().Bytes(),
	}
}
