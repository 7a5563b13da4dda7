package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"hil-scheduler/internal/control"
)

// CommandHandler exposes enqueue/status endpoints for one command queue
// (the control engine's or the settings engine's).
type CommandHandler struct {
	queue *control.CommandQueue
}

// NewCommandHandler constructs a CommandHandler over the given queue.
func NewCommandHandler(queue *control.CommandQueue) *CommandHandler {
	return &CommandHandler{queue: queue}
}

type enqueueRequest struct {
	Kind    string         `json:"kind" binding:"required"`
	Payload map[string]any `json:"payload"`
}

// Enqueue handles POST .../commands: body {kind, payload}.
func (h *CommandHandler) Enqueue(c *gin.Context) {
	var req enqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "BAD_REQUEST", "message": err.Error()}})
		return
	}
	source := c.ClientIP()
	cmd, err := h.queue.Enqueue(req.Kind, source, req.Payload)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": gin.H{"code": "QUEUE_FULL", "message": err.Error()}})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"data": cmd})
}

// Status handles GET .../commands/:id.
func (h *CommandHandler) Status(c *gin.Context) {
	id := c.Param("id")
	cmd, ok := h.queue.Status(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": gin.H{"code": "NOT_FOUND", "message": "unknown command id"}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": cmd})
}
