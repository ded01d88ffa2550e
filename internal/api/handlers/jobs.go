package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/qaraa/printd/internal/metrics"
	"github.com/qaraa/printd/internal/store"
)

type CreateJobRequest struct {
	Type      string          `json:"type" binding:"required"`
	Payload   json.RawMessage `json:"payload" binding:"required"`
	CreatedBy string          `json:"createdBy"`
	Priority  int             `json:"priority"`
}

type JobResponse struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	Status      string          `json:"status"`
	Priority    int             `json:"priority"`
	CreatedBy   string          `json:"createdBy"`
	CreatedAt   time.Time       `json:"createdAt"`
	Attempts    int             `json:"attempts"`
	LastError   *string         `json:"lastError"`
	StartedAt   *time.Time      `json:"startedAt,omitempty"`
	CompletedAt *time.Time      `json:"completedAt,omitempty"`
}

type ListJobsQuery struct {
	Status string `form:"status"`
	Limit  int    `form:"limit" binding:"max=100"`
}

type QueueResponse struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Total      int `json:"total"`
}

// Waker lets the enqueue path nudge the dispatcher without waiting for
// its next poll tick.
type Waker interface {
	Wake()
}

type JobHandler struct {
	store   *store.Store
	waker   Waker
	metrics *metrics.Metrics
}

func NewJobHandler(st *store.Store, waker Waker, m *metrics.Metrics) *JobHandler {
	return &JobHandler{
		store:   st,
		waker:   waker,
		metrics: m,
	}
}

func (h *JobHandler) CreateJob(c *gin.Context) {
	var req CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	job, err := h.store.Enqueue(c.Request.Context(), req.Type, req.Payload, req.CreatedBy, req.Priority)
	if err != nil {
		var vErr *store.ValidationError
		if errors.As(err, &vErr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": vErr.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to enqueue job"})
		return
	}

	if h.metrics != nil {
		h.metrics.JobsEnqueued.WithLabelValues(job.Type).Inc()
	}
	if h.waker != nil {
		h.waker.Wake()
	}

	c.JSON(http.StatusCreated, gin.H{
		"jobId":  job.ID,
		"status": job.Status,
	})
}

func (h *JobHandler) ListJobs(c *gin.Context) {
	var query ListJobsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	status := store.JobStatus(query.Status)
	switch status {
	case "", store.StatusPending, store.StatusProcessing, store.StatusCompleted, store.StatusFailed:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status filter"})
		return
	}

	if query.Limit <= 0 {
		query.Limit = 50
	}

	jobs, err := h.store.ListJobs(c.Request.Context(), status, query.Limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list jobs"})
		return
	}

	responses := make([]JobResponse, 0, len(jobs))
	for _, job := range jobs {
		responses = append(responses, jobToResponse(job))
	}

	c.JSON(http.StatusOK, gin.H{
		"jobs":  responses,
		"count": len(responses),
	})
}

func (h *JobHandler) GetJob(c *gin.Context) {
	job, err := h.store.GetJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get job"})
		return
	}

	c.JSON(http.StatusOK, jobToResponse(job))
}

func (h *JobHandler) GetQueue(c *gin.Context) {
	counts, err := h.store.CountByStatus(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count jobs"})
		return
	}

	resp := QueueResponse{
		Pending:    counts[store.StatusPending],
		Processing: counts[store.StatusProcessing],
		Completed:  counts[store.StatusCompleted],
		Failed:     counts[store.StatusFailed],
	}
	resp.Total = resp.Pending + resp.Processing + resp.Completed + resp.Failed

	c.JSON(http.StatusOK, resp)
}

func jobToResponse(job *store.PrintJob) JobResponse {
	return JobResponse{
		ID:          job.ID,
		Type:        job.Type,
		Payload:     job.Payload,
		Status:      string(job.Status),
		Priority:    job.Priority,
		CreatedBy:   job.CreatedBy,
		CreatedAt:   job.CreatedAt,
		Attempts:    job.Attempts,
		LastError:   job.LastError,
		StartedAt:   job.StartedAt,
		CompletedAt: job.CompletedAt,
	}
}

func (h *JobHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/jobs", h.ListJobs)
	r.POST("/jobs", h.CreateJob)
	r.GET("/jobs/queue", h.GetQueue)
	r.GET("/jobs/:id", h.GetJob)
}
