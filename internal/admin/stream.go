package admin

import (
	"net/http"
	"time"

	"gdbc/pkg/utils/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	defaultStreamInterval = time.Second
	streamWriteWait       = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// stream pushes the process table as a JSON text frame every interval until
// the peer goes away.
func (h *controller) stream(c *gin.Context) {
	ctx := c.Request.Context()
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn(ctx, "process stream upgrade failed", zap.Error(err))
		return
	}
	defer func() { _ = conn.Close() }()
	// The listener's read deadline would otherwise end the stream.
	_ = conn.SetReadDeadline(time.Time{})

	// Frames from the peer are discarded; a read error means it left.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
		if err := conn.WriteJSON(h.processList()); err != nil {
			logger.Debug(ctx, "process stream closed", zap.Error(err))
			return
		}
		select {
		case <-gone:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
