// Package api exposes the orchestrator over HTTP: submit an analysis, poll or
// cancel a task, browse history. The handlers never touch provider state
// directly; everything flows through the task manager.
package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"veritas/internal/analysis"
	"veritas/internal/history"
	"veritas/internal/provider"
	"veritas/internal/task"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

type API struct {
	manager     *task.Manager
	service     *analysis.Service
	taskTimeout time.Duration
}

func NewAPI(manager *task.Manager, service *analysis.Service, taskTimeout time.Duration) *API {
	return &API{
		manager:     manager,
		service:     service,
		taskTimeout: taskTimeout,
	}
}

// RegisterRoutes registers API routes on the provided gin engine.
func (a *API) RegisterRoutes(router *gin.Engine) {
	v1 := router.Group("/api/v1")
	{
		v1.POST("/analyze", a.SubmitAnalysis)
		v1.GET("/tasks/:id", a.GetTask)
		v1.DELETE("/tasks/:id", a.CancelTask)
		v1.GET("/stats", a.Stats)
		v1.GET("/history", a.ListHistory)
		v1.GET("/history/:hash", a.GetHistory)
	}
	router.GET("/healthz", a.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

type analyzeRequest struct {
	Text           string `json:"text"`
	Mode           string `json:"mode"`
	TaskID         string `json:"task_id"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

type analyzeResponse struct {
	TaskID string      `json:"task_id"`
	Status task.Status `json:"status"`
}

// SubmitAnalysis accepts a text and dispatches an analysis task. It replies
// immediately with the task id; the result is polled via GetTask.
func (a *API) SubmitAnalysis(c *gin.Context) {
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if req.Text == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "text is required"})
		return
	}
	if req.Mode != "" && !provider.ValidMode(req.Mode) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown mode: " + req.Mode})
		return
	}

	timeout := a.taskTimeout
	if req.TimeoutSeconds > 0 {
		timeout = time.Duration(req.TimeoutSeconds) * time.Second
	}

	id, err := a.manager.Submit(req.TaskID, a.service.Task(req.Text, req.Mode), timeout)
	if err != nil {
		switch {
		case errors.Is(err, task.ErrDuplicateTask):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, task.ErrShuttingDown):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	log.Info().Str("task_id", id).Str("mode", req.Mode).Int("text_len", len(req.Text)).Msg("analysis submitted")
	c.JSON(http.StatusAccepted, analyzeResponse{TaskID: id, Status: task.StatusRunning})
}

func (a *API) GetTask(c *gin.Context) {
	id := c.Param("id")
	snap, ok := a.manager.Get(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": task.ErrTaskNotFound.Error()})
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (a *API) CancelTask(c *gin.Context) {
	id := c.Param("id")
	if a.manager.Cancel(id) {
		c.JSON(http.StatusAccepted, gin.H{"task_id": id, "status": "cancelling"})
		return
	}
	if _, ok := a.manager.Get(id); ok {
		c.JSON(http.StatusConflict, gin.H{"error": "task already finished"})
		return
	}
	c.JSON(http.StatusNotFound, gin.H{"error": task.ErrTaskNotFound.Error()})
}

func (a *API) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"tasks":        a.manager.Stats(),
		"last_updated": time.Now(),
	})
}

func (a *API) ListHistory(c *gin.Context) {
	repo := a.service.History()
	if repo == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "history is disabled"})
		return
	}

	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = min(parsed, maxHistoryLimit)
	}

	var err error
	var records any
	if query := c.Query("q"); query != "" {
		records, err = repo.Search(c.Request.Context(), query, limit)
	} else {
		records, err = repo.Recent(c.Request.Context(), limit)
	}
	if err != nil {
		log.Error().Err(err).Msg("history query failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "history query failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"analyses": records})
}

func (a *API) GetHistory(c *gin.Context) {
	repo := a.service.History()
	if repo == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "history is disabled"})
		return
	}
	rec, err := repo.GetByHash(c.Request.Context(), c.Param("hash"))
	if err != nil {
		if errors.Is(err, history.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		log.Error().Err(err).Msg("history lookup failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "history lookup failed"})
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (a *API) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
