package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"SentinelX/internal/domain/models"
	"SentinelX/internal/usecase"
	xhttp "SentinelX/pkg/http"
	xlogger "SentinelX/pkg/logger"
)

const writeWait = 10 * time.Second

// StreamMessage is one frame of a view stream.
type StreamMessage struct {
	Type   string                      `json:"type"`
	View   string                      `json:"view"`
	Slots  map[models.Kind]models.Slot `json:"slots,omitempty"`
	Event  *models.CommitEvent         `json:"event,omitempty"`
	Stats  *usecase.DisplayStats       `json:"stats,omitempty"`
	Reason string                      `json:"reason,omitempty"`
}

const (
	MessageSnapshot = "snapshot"
	MessageCommit   = "commit"
	MessageClosed   = "closed"
)

// StreamHandler pushes view state to websocket clients on every commit.
type StreamHandler struct {
	logger   *xlogger.Logger
	views    *usecase.ViewManager
	ping     time.Duration
	upgrader websocket.Upgrader
}

func NewStreamHandler(logger *xlogger.Logger, views *usecase.ViewManager, ping time.Duration) *StreamHandler {
	if ping <= 0 {
		ping = 30 * time.Second
	}
	return &StreamHandler{
		logger: logger.With(xlogger.String("component", "view_stream")),
		views:  views,
		ping:   ping,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

func (h *StreamHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/api/views/:view/stream", h.Stream)
}

// Stream sends a snapshot of the view, then one frame per commit until the
// client leaves or the view is unmounted.
func (h *StreamHandler) Stream(c echo.Context) error {
	name := c.Param("view")
	v, err := h.views.Get(name)
	if err != nil {
		return xhttp.AppErrorResponse(c, viewError(err))
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", xlogger.String("view", name), xlogger.Error(err))
		return nil
	}
	defer conn.Close()

	events, cancel := v.Subscribe()
	defer cancel()

	ctx := c.Request().Context()
	log := h.logger.With(xlogger.String("view", name), xlogger.String("remote", c.RealIP()))
	log.Debug("stream opened")

	gone := make(chan struct{})
	go h.readLoop(conn, gone)

	stats, _ := h.views.Stats(ctx, name)
	if err := h.write(conn, StreamMessage{Type: MessageSnapshot, View: name, Slots: v.State().Slots, Stats: &stats}); err != nil {
		log.Debug("stream write failed", xlogger.Error(err))
		return nil
	}

	ping := time.NewTicker(h.ping)
	defer ping.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				_ = h.write(conn, StreamMessage{Type: MessageClosed, View: name, Reason: "unmounted"})
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "view unmounted"),
					time.Now().Add(writeWait))
				log.Debug("stream closed by unmount")
				return nil
			}
			msg := StreamMessage{Type: MessageCommit, View: name, Event: &ev}
			if ev.Status != models.StatusLoading {
				if st, err := h.views.Stats(ctx, name); err == nil {
					msg.Stats = &st
				}
			}
			if err := h.write(conn, msg); err != nil {
				log.Debug("stream write failed", xlogger.Error(err))
				return nil
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Debug("stream ping failed", xlogger.Error(err))
				return nil
			}
		case <-gone:
			log.Debug("stream closed by client")
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}

func (h *StreamHandler) write(conn *websocket.Conn, msg StreamMessage) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteJSON(msg)
}

// readLoop drains client frames so pongs and close frames are processed.
func (h *StreamHandler) readLoop(conn *websocket.Conn, gone chan<- struct{}) {
	defer close(gone)

	deadline := func() { _ = conn.SetReadDeadline(time.Now().Add(2 * h.ping)) }
	deadline()
	conn.SetPongHandler(func(string) error {
		deadline()
		return nil
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
