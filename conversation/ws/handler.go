package ws

import (
	"context"
	"net/http"
	"time"

	"llm-arena/backend/conversation/service"
	"llm-arena/backend/pkg/logger"
	"llm-arena/backend/pkg/middleware"
	pkgws "llm-arena/backend/pkg/ws"
	sessionmodels "llm-arena/backend/session/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:      func(r *http.Request) bool { return true },
	HandshakeTimeout: 10 * time.Second,
	ReadBufferSize:   1024,
	WriteBufferSize:  4096,
}

// SessionLookup confirms a session exists before a client may follow it
type SessionLookup interface {
	Get(ctx context.Context, id string) (*sessionmodels.Session, error)
}

type Handler struct {
	hub      *Hub
	sessions SessionLookup
	log      *logger.Logger
}

func NewHandler(hub *Hub, sessions SessionLookup, log *logger.Logger) *Handler {
	return &Handler{hub: hub, sessions: sessions, log: log.WithComponent("ws")}
}

// ServeSession upgrades the request and subscribes the connection to the
// session's events. Further sessions can be followed with subscribe frames.
func (h *Handler) ServeSession(c *gin.Context) {
	sessionID := c.Param("id")
	if _, err := h.sessions.Get(c.Request.Context(), sessionID); err != nil {
		c.Error(err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("Websocket upgrade failed", "error", err)
		return
	}
	conn.EnableWriteCompression(true)

	client := newClient(uuid.NewString(), middleware.CurrentUserID(c), conn, h.hub, h.log)
	h.hub.subscribe <- subscription{client: client, topic: service.Topic(sessionID)}
	if ack, err := pkgws.Encode(pkgws.TypeSubscribed, service.Topic(sessionID), pkgws.SubscribeRequest{SessionID: sessionID}); err == nil {
		client.send <- ack
	}
	h.log.Info("Websocket client connected", "client_id", client.ID, "session_id", sessionID)

	go client.writePump()
	go client.readPump()
}

func RegisterWebsocketRoutes(r *gin.Engine, handler *Handler, auth gin.HandlerFunc) {
	r.GET("/ws/sessions/:id", auth, handler.ServeSession)
}
