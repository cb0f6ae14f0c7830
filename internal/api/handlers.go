package api

import (
	"errors"
	"io"
	"net/http"

	database "github.com/Armour007/fast-tasks/internal"
	"github.com/Armour007/fast-tasks/internal/tasks"
	"github.com/gin-gonic/gin"
)

// Handlers serves the task routes on top of a Backend.
type Handlers struct {
	backend Backend
}

func NewHandlers(b Backend) *Handlers { return &Handlers{backend: b} }

// GetAllTasks handles GET /tasks
func (h *Handlers) GetAllTasks(c *gin.Context) {
	list, err := h.backend.ListTasks(c.Request.Context())
	if err != nil {
		abortWithIPCError(c, "getAllTasks", err, http.StatusBadGateway)
		return
	}
	c.JSON(http.StatusOK, list)
}

// CreateTask handles POST /task. The write is published without waiting
// for the service, so the task is validated here first.
func (h *Handlers) CreateTask(c *gin.Context) {
	var t database.Task
	if err := c.ShouldBindJSON(&t); err != nil {
		abortWithError(c, http.StatusBadRequest, bindMessage(err))
		return
	}
	t.Normalize()
	if err := t.Validate(); err != nil {
		abortWithError(c, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.backend.CreateTask(c.Request.Context(), t); err != nil {
		abortWithIPCError(c, "createTask", err, http.StatusBadGateway)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Created successfully"})
}

// BulkCreateTasks handles POST /tasks/bulk
func (h *Handlers) BulkCreateTasks(c *gin.Context) {
	var ts []database.Task
	if err := c.ShouldBindJSON(&ts); err != nil {
		abortWithError(c, http.StatusBadRequest, bindMessage(err))
		return
	}
	if len(ts) == 0 {
		abortWithError(c, http.StatusBadRequest, tasks.ErrEmptyBatch.Error())
		return
	}
	for i := range ts {
		ts[i].Normalize()
		if err := ts[i].Validate(); err != nil {
			abortWithError(c, http.StatusBadRequest, err.Error())
			return
		}
	}
	if err := h.backend.BulkCreateTasks(c.Request.Context(), ts); err != nil {
		abortWithIPCError(c, "bulkCreateTasks", err, http.StatusBadGateway)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Bulk creation successful"})
}

// an empty body reads as "Bad Request", anything else as the decoder error
func bindMessage(err error) string {
	if errors.Is(err, io.EOF) {
		return ""
	}
	return err.Error()
}
