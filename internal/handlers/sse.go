package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/organizer-backend/internal/sse"
)

type SSEHandler struct {
	hub *sse.Hub
}

func NewSSEHandler(hub *sse.Hub) *SSEHandler {
	return &SSEHandler{hub: hub}
}

// GET /api/jobs/:id/events
// Streams this job's progress events until the client disconnects.
func (h *SSEHandler) JobEvents(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_job_id", err)
		return
	}
	client := h.hub.NewClient()
	h.hub.AddChannel(client, sse.JobChannel(id))
	defer h.hub.RemoveClient(client)
	h.hub.ServeHTTP(c.Writer, c.Request, client)
}
