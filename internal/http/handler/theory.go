// Package handler exposes the thin background-task API surface. Full
// REST/auth/RBAC lives in the upstream gateway; these handlers only cover
// the orchestrator's enqueue/poll contract and assume the gateway already
// resolved project_id/owner_id/role onto the request.
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"groundedtheory.dev/core/internal/errs"
	"groundedtheory.dev/core/internal/http/middleware"
	"groundedtheory.dev/core/internal/orchestrator"
)

type TheoryHandler struct {
	orch *orchestrator.Orchestrator
}

func NewTheoryHandler(orch *orchestrator.Orchestrator) *TheoryHandler {
	return &TheoryHandler{orch: orch}
}

// GenerateTheory handles POST /api/v1/projects/:project_id/theory.
func (h *TheoryHandler) GenerateTheory(c *gin.Context) {
	projectID := c.Param("project_id")
	if projectID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing project_id"})
		return
	}
	ownerID := middleware.OwnerID(c.Request.Context())

	task, err := h.orch.EnqueueGenerateTheory(c.Request.Context(), projectID, ownerID)
	if err != nil {
		if errors.Is(err, errs.ErrLocked) {
			c.Header("Retry-After", "2")
			c.JSON(http.StatusConflict, gin.H{"error": "LOCKED"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"task_id": task.TaskID,
		"status":  string(task.Status),
	})
}

// TaskStatus handles GET /api/v1/tasks/:task_id.
func (h *TheoryHandler) TaskStatus(c *gin.Context) {
	taskID := c.Param("task_id")

	task, found, err := h.orch.Status(c.Request.Context(), taskID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "NOT_FOUND"})
		return
	}

	resp := gin.H{
		"status":            string(task.Status),
		"progress":          task.Progress,
		"message":           task.Message,
		"step":              task.Step,
		"next_poll_seconds": task.NextPollSeconds(h.orch.PollInterval()),
	}
	if task.Status == orchestrator.StatusCompleted {
		resp["result"] = task.Result
	}
	if task.Status == orchestrator.StatusFailed {
		resp["error"] = task.Error
		resp["error_code"] = task.ErrorCode
		if task.ErrorCode == "LOCKED" {
			c.Header("Retry-After", "1")
			c.JSON(http.StatusConflict, resp)
			return
		}
	}

	c.JSON(http.StatusOK, resp)
}
