package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"greendrake/marketdesk/internal/api/middleware"
	"greendrake/marketdesk/internal/apperrors"
	"greendrake/marketdesk/internal/config"
	"greendrake/marketdesk/internal/models"
	"greendrake/marketdesk/internal/presence"
	"greendrake/marketdesk/internal/services"
)

const (
	wsReadLimit    = 4096
	wsWriteTimeout = 5 * time.Second
)

var (
	errSendBufferFull = errors.New("send buffer full")
	errConnClosed     = errors.New("connection closed")
)

// WsHandler upgrades GET /v1/ws and lets the client follow thread rooms.
type WsHandler struct {
	upgrader  websocket.Upgrader
	hub       presence.Room
	inquiries services.IInquiryService
	pingEvery time.Duration
	buffer    int
	log       *zap.Logger
}

func NewWsHandler(cfg *config.Config, hub presence.Room, inquiries services.IInquiryService, log *zap.Logger) *WsHandler {
	pingEvery := cfg.WsPingInterval
	if pingEvery <= 0 {
		pingEvery = 15 * time.Second
	}
	buffer := cfg.WsSendBuffer
	if buffer <= 0 {
		buffer = 32
	}
	return &WsHandler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		hub:       hub,
		inquiries: inquiries,
		pingEvery: pingEvery,
		buffer:    buffer,
		log:       log.Named("ws"),
	}
}

// wsClient is one websocket connection. Outbound frames go through a bounded
// queue drained by the writer goroutine; when the queue is full frames for
// this client are dropped.
type wsClient struct {
	id       string
	conn     *websocket.Conn
	identity *models.Identity
	send     chan presence.Event
	done     chan struct{}
	once     sync.Once
}

func (c *wsClient) ID() string { return c.id }

func (c *wsClient) Send(ev presence.Event) error {
	select {
	case <-c.done:
		return errConnClosed
	default:
	}
	select {
	case c.send <- ev:
		return nil
	default:
		return errSendBufferFull
	}
}

func (c *wsClient) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// Handle serves GET /v1/ws. The caller needs a token or a thread key; each
// join is authorized against the thread.
func (h *WsHandler) Handle(c *gin.Context) {
	identity := middleware.GetIdentity(c)
	if !identity.Present() {
		c.JSON(http.StatusUnauthorized, gin.H{"error": apperrors.ErrUnauthenticated.Error()})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("Websocket upgrade failed", zap.Error(err))
		return
	}

	client := &wsClient{
		id:       uuid.NewString(),
		conn:     conn,
		identity: identity,
		send:     make(chan presence.Event, h.buffer),
		done:     make(chan struct{}),
	}
	log := h.log.With(zap.String("conn_id", client.id))
	log.Debug("Websocket connected")

	go h.writeLoop(client, log)
	h.readLoop(c.Request.Context(), client, log)

	h.hub.LeaveAll(client)
	client.close()
	log.Debug("Websocket disconnected")
}

func (h *WsHandler) readLoop(ctx context.Context, c *wsClient, log *zap.Logger) {
	c.conn.SetReadLimit(wsReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * h.pingEvery))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(2 * h.pingEvery))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug("Websocket read failed", zap.Error(err))
			}
			return
		}
		var ev presence.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			h.sendError(c, "", "malformed frame")
			continue
		}

		switch ev.Type {
		case presence.TypeJoin:
			h.join(ctx, c, ev.Room)
		case presence.TypeLeave:
			h.hub.Leave(ev.Room, c)
		default:
			h.sendError(c, ev.Room, "unknown frame type")
		}
	}
}

func (h *WsHandler) join(ctx context.Context, c *wsClient, room string) {
	threadID, err := presence.ParseThreadRoom(room)
	if err != nil {
		h.sendError(c, room, err.Error())
		return
	}
	if _, err := h.inquiries.AuthorizeThread(ctx, threadID, c.identity); err != nil {
		if apperrors.HTTPStatus(err) >= http.StatusInternalServerError {
			h.log.Error("Failed to authorize room join", zap.String("room", room), zap.Error(err))
			h.sendError(c, room, "internal error")
			return
		}
		h.sendError(c, room, err.Error())
		return
	}
	h.hub.Join(room, c)
}

func (h *WsHandler) sendError(c *wsClient, room, msg string) {
	_ = c.Send(presence.Event{
		Type:    presence.TypeError,
		Room:    room,
		Payload: presence.ErrorPayload{Room: room, Error: msg},
	})
}

func (h *WsHandler) writeLoop(c *wsClient, log *zap.Logger) {
	ticker := time.NewTicker(h.pingEvery)
	defer ticker.Stop()
	defer c.close()

	for {
		select {
		case ev := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := c.conn.WriteJSON(ev); err != nil {
				log.Debug("Websocket write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}
