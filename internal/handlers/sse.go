package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/lessonforge/lessonforge-backend/internal/middleware"
	"github.com/lessonforge/lessonforge-backend/internal/sse"
)

type SSEHandler struct {
	hub *sse.SSEHub
}

func NewSSEHandler(hub *sse.SSEHub) *SSEHandler {
	return &SSEHandler{hub: hub}
}

// Stream subscribes the caller to their organization's event channel and
// holds the connection open.
func (sh *SSEHandler) Stream(c *gin.Context) {
	client := sh.hub.NewSSEClient(middleware.ActorID(c))
	sh.hub.AddChannel(client, sse.OrgChannel(middleware.OrgID(c)))
	defer sh.hub.CloseClient(client)

	sh.hub.ServeHTTP(c.Writer, c.Request, client)
}
