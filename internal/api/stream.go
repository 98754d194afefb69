package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const streamWriteTimeout = 10 * time.Second

var (
	// a client that stops answering pings for streamPongWait is dropped
	streamPongWait   = 60 * time.Second
	streamPingPeriod = (streamPongWait * 9) / 10
)

// ConnCounter tracks open stream connections. *infra.Metrics satisfies it.
type ConnCounter interface {
	IncrementConnections()
	DecrementConnections()
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Stream pushes a snapshot on connect and then once per interval until the
// client goes away.
func (h *Handler) Stream(interval time.Duration, conns ConnCounter) echo.HandlerFunc {
	return func(c echo.Context) error {
		conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
		if err != nil {
			h.logger.Warn("stream upgrade failed", slog.Any("error", err))
			return nil
		}
		defer conn.Close()

		if conns != nil {
			conns.IncrementConnections()
			defer conns.DecrementConnections()
		}

		// the read side only watches for close frames
		closed := make(chan struct{})
		go func() {
			defer close(closed)
			conn.SetReadDeadline(time.Now().Add(streamPongWait))
			conn.SetPongHandler(func(string) error {
				return conn.SetReadDeadline(time.Now().Add(streamPongWait))
			})
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
						h.logger.Warn("stream read error", slog.Any("error", err))
					}
					return
				}
			}
		}()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		pinger := time.NewTicker(streamPingPeriod)
		defer pinger.Stop()

		ctx := c.Request().Context()
		send := true
		for {
			if send {
				conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
				if err := conn.WriteJSON(h.engine.Snapshot()); err != nil {
					return nil
				}
			}
			select {
			case <-ctx.Done():
				return nil
			case <-closed:
				return nil
			case <-pinger.C:
				send = false
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteTimeout)); err != nil {
					return nil
				}
			case <-ticker.C:
				send = true
			}
		}
	}
}
