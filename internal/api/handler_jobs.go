package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"pos-edge/internal/model"
	"pos-edge/internal/parse"
	"pos-edge/internal/printq"
	"pos-edge/internal/ticket"
)

type postJobRequest struct {
	PrinterID string   `json:"printerId" binding:"required"`
	Kind      string   `json:"kind"`
	Title     string   `json:"title" binding:"required"`
	Subtitle  string   `json:"subtitle"`
	Lines     []string `json:"lines"`
}

// requireQueue answers 503 when the print queue is disabled.
func (h *Handler) requireQueue(c *gin.Context) {
	if h.Jobs == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "print queue is disabled"})
		return
	}
	c.Next()
}

// PostJob enqueues a durable print job.
func (h *Handler) PostJob(c *gin.Context) {
	var req postJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	d, err := ticket.ParseDialect(req.Kind)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, err := h.Store.Printer(req.PrinterID); err != nil {
		fail(c, err)
		return
	}

	job, err := h.Jobs.Enqueue(c.Request.Context(), printq.EnqueueInput{
		PrinterID:   req.PrinterID,
		Dialect:     d,
		Ticket:      ticket.Ticket{Title: strings.TrimSpace(req.Title), Subtitle: req.Subtitle, Lines: req.Lines},
		MaxAttempts: h.Config.PrintQueue.MaxAttempts,
	})
	if err != nil {
		fail(c, err)
		return
	}
	if h.Pool != nil {
		h.Pool.Notify()
	}
	c.JSON(http.StatusAccepted, gin.H{"ok": true, "job": job})
}

// GetJobs lists jobs, newest first.
func (h *Handler) GetJobs(c *gin.Context) {
	status := model.PrintJobStatus(c.Query("status"))
	limit := parse.ClampInt(parse.IntOr(c.Query("limit"), 50), 1, 500)
	jobs, err := h.Jobs.List(c.Request.Context(), status, limit)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "jobs": jobs})
}

// GetJob returns one job.
func (h *Handler) GetJob(c *gin.Context) {
	job, err := h.Jobs.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "job": job})
}

// PostCancelJob cancels a job still waiting in the queue.
func (h *Handler) PostCancelJob(c *gin.Context) {
	job, err := h.Jobs.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "job": job})
}
