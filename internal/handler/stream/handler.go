package stream

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/rsyarsya/pneuscope/internal/middleware"
	"github.com/rsyarsya/pneuscope/internal/stream"
)

// Handler upgrades /ws requests and hands the connection to the hub.
type Handler struct {
	hub      *stream.Hub
	upgrader websocket.Upgrader
}

func NewHandler(hub *stream.Hub, allowedOrigins []string) *Handler {
	return &Handler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return middleware.OriginAllowed(allowedOrigins, r.Header.Get("Origin"))
			},
		},
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/ws", h.Connect)
}

func (h *Handler) Connect(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// The upgrader has already written the HTTP error.
		log.Warn().Err(err).Str("client_ip", c.ClientIP()).Msg("Websocket upgrade failed")
		c.Abort()
		return
	}
	h.hub.Serve(conn, c.ClientIP())
}
