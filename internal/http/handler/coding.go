package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"groundedtheory.dev/core/internal/http/middleware"
	"groundedtheory.dev/core/internal/orchestrator"
	"groundedtheory.dev/core/internal/store/relational"
)

// syncFragmentThreshold is the interview size (fragment count) at or below which
// auto-coding runs synchronously on the request goroutine (plain 200)
// instead of being dispatched as a background task (202 with a task id).
const syncFragmentThreshold = 20

type CodingHandler struct {
	orch      *orchestrator.Orchestrator
	fragments relational.FragmentStore
}

func NewCodingHandler(orch *orchestrator.Orchestrator, fragments relational.FragmentStore) *CodingHandler {
	return &CodingHandler{orch: orch, fragments: fragments}
}

// AutoCode handles POST /api/v1/interviews/:interview_id/auto-code.
func (h *CodingHandler) AutoCode(c *gin.Context) {
	interviewID := c.Param("interview_id")
	projectID := c.Query("project_id")
	if interviewID == "" || projectID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing interview_id or project_id"})
		return
	}
	ownerID := middleware.OwnerID(c.Request.Context())

	if h.isSmall(c.Request.Context(), interviewID) {
		// Small interviews finish within the request's lifetime; run
		// synchronously and respond 200 instead of dispatching.
		result := h.orch.RunAutoCodeSync(c.Request.Context(), projectID, ownerID, interviewID)
		c.JSON(http.StatusOK, gin.H{"status": string(result.Status), "result": result.Result, "error": result.Error})
		return
	}

	task, err := h.orch.EnqueueAutoCode(c.Request.Context(), projectID, ownerID, interviewID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"task_id": task.TaskID, "status": string(task.Status)})
}

func (h *CodingHandler) isSmall(ctx context.Context, interviewID string) bool {
	fragments, err := h.fragments.ListByInterview(ctx, interviewID)
	if err != nil {
		return false
	}
	return len(fragments) <= syncFragmentThreshold
}
