package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"gdbc/internal/httpx"
	"gdbc/pkg/utils/contextkey"
	"gdbc/pkg/utils/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// serveConn answers a single request and closes conn.
func (s *Server) serveConn(conn net.Conn) {
	defer conn.Close()
	ctx := context.WithValue(context.Background(), contextkey.ConnID, uuid.NewString())

	idx, buf, ok := s.buffers.acquire()
	if !ok {
		logger.Warn(ctx, "no request buffer available", zap.String("remote", conn.RemoteAddr().String()))
		s.write(ctx, conn, s.canned.internalError)
		return
	}
	defer s.buffers.release(idx)

	req, err := s.readRequest(conn, buf)
	if err != nil {
		if errors.Is(err, errPeerClosed) {
			return
		}
		logger.Debug(ctx, "bad request", zap.String("remote", conn.RemoteAddr().String()), zap.Error(err))
		s.write(ctx, conn, s.canned.badRequest)
		return
	}

	start := time.Now()
	status, payload := s.dispatch(ctx, req)
	s.write(ctx, conn, payload)
	logger.Debug(ctx, "request completed",
		zap.String("method", req.Method.String()),
		zap.String("path", req.Path),
		zap.Int("status", status),
		zap.Duration("latency", time.Since(start)),
		zap.String("remote", conn.RemoteAddr().String()),
	)
}

// dispatch routes req and returns the serialized response.
func (s *Server) dispatch(ctx context.Context, req *httpx.Request) (int, []byte) {
	if req.Method == httpx.MethodOptions {
		return http.StatusNoContent, s.canned.noContent
	}
	handler, found := s.routes.Find(req.Path, req.Method)
	if !found {
		return http.StatusNotFound, s.canned.notFound
	}
	resp := handler(ctx, req)
	if resp == nil {
		logger.Error(ctx, "handler returned no response", zap.String("path", req.Path))
		return http.StatusInternalServerError, s.canned.internalError
	}
	return resp.Status, resp.Bytes()
}

var (
	errPeerClosed      = errors.New("server: peer closed before sending a request")
	errRequestTooLarge = errors.New("server: request does not fit the buffer")
)

// readRequest reads until buf holds a complete request.
func (s *Server) readRequest(conn net.Conn, buf []byte) (*httpx.Request, error) {
	_ = conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	n := 0
	for {
		m, readErr := conn.Read(buf[n:])
		n += m
		if n == 0 && readErr != nil {
			return nil, errPeerClosed
		}
		if m > 0 {
			req, err := httpx.ParseRequest(buf[:n])
			if err == nil {
				return req, nil
			}
			if !errors.Is(err, httpx.ErrIncomplete) {
				return nil, err
			}
			if n == len(buf) {
				return nil, errRequestTooLarge
			}
		}
		if readErr != nil {
			return nil, readErr
		}
	}
}

// write sends payload, then half-closes so the peer sees end of response.
func (s *Server) write(ctx context.Context, conn net.Conn, payload []byte) {
	_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	for len(payload) > 0 {
		n, err := conn.Write(payload)
		if err != nil {
			logger.Warn(ctx, "write response failed", zap.Error(err))
			return
		}
		payload = payload[n:]
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.CloseWrite()
	}
}
