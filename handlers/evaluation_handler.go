package handlers

import (
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"jurismemo-backend/grounding"
	"jurismemo-backend/models"
	"jurismemo-backend/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// DefaultThreshold is the grounding threshold when none is given
const DefaultThreshold = 0.70

// EvaluationHandler handles HTTP requests for memo evaluation
type EvaluationHandler struct {
	evaluationService *service.EvaluationService
	defaultMetric     string
	defaultThreshold  float64
}

// EvaluationHandlerOption is a functional option for EvaluationHandler
type EvaluationHandlerOption func(*EvaluationHandler)

// EvaluationHandlerWithDefaults sets the metric and threshold used when the query omits them
func EvaluationHandlerWithDefaults(metric string, threshold float64) EvaluationHandlerOption {
	return func(h *EvaluationHandler) {
		if metric != "" {
			h.defaultMetric = metric
		}
		h.defaultThreshold = threshold
	}
}

// NewEvaluationHandler creates a new evaluation handler
func NewEvaluationHandler(evaluationService *service.EvaluationService, opts ...EvaluationHandlerOption) *EvaluationHandler {
	h := &EvaluationHandler{
		evaluationService: evaluationService,
		defaultMetric:     string(grounding.DefaultMetric),
		defaultThreshold:  DefaultThreshold,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// EvaluateMemoRequest represents the request body for evaluating a memo
type EvaluateMemoRequest struct {
	Memo   string         `json:"memo"`
	Chunks []models.Chunk `json:"chunks"`
}

// SweepMemoRequest represents the request body for a configuration sweep
type SweepMemoRequest struct {
	Memo    string                `json:"memo"`
	Chunks  []models.Chunk        `json:"chunks"`
	Configs []service.SweepConfig `json:"configs" binding:"required,min=1,dive"`
}

// EvaluateMemo handles POST /evaluate-memo
func (h *EvaluationHandler) EvaluateMemo(c *gin.Context) {
	var req EvaluateMemoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	threshold := h.defaultThreshold
	if raw, ok := c.GetQuery("threshold"); ok {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			respondError(c, http.StatusBadRequest, "INVALID_THRESHOLD", "threshold must be a number")
			return
		}
		threshold = parsed
	}

	result, err := h.evaluationService.EvaluateMemo(c.Request.Context(), service.EvaluateMemoRequest{
		Memo:             req.Memo,
		Chunks:           req.Chunks,
		SimilarityMetric: c.DefaultQuery("similarity_metric", h.defaultMetric),
		Threshold:        threshold,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.Header("X-Evaluation-Log-Id", result.LogID.String())
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    result.Evaluation,
	})
}

// SweepMemo handles POST /evaluate-memo/sweep
func (h *EvaluationHandler) SweepMemo(c *gin.Context) {
	var req SweepMemoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	result, err := h.evaluationService.SweepMemo(c.Request.Context(), service.SweepRequest{
		Memo:    req.Memo,
		Chunks:  req.Chunks,
		Configs: req.Configs,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    result.Evaluations,
	})
}

// ListEvaluationLogs handles GET /evaluation-logs
func (h *EvaluationHandler) ListEvaluationLogs(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(service.DefaultLogLimit)))
	if err != nil || limit < 1 {
		respondError(c, http.StatusBadRequest, "INVALID_LIMIT", "limit must be a positive integer")
		return
	}

	result, err := h.evaluationService.ListEvaluationLogs(c.Request.Context(), service.ListEvaluationLogsRequest{Limit: limit})
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    result.Logs,
	})
}

// GetEvaluationReport handles GET /evaluation-logs/:id/report
func (h *EvaluationHandler) GetEvaluationReport(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_ID", "Invalid evaluation log ID format")
		return
	}

	result, err := h.evaluationService.GetEvaluationReport(c.Request.Context(), service.GetEvaluationReportRequest{LogID: id})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	defer result.Report.Close()

	c.Header("Content-Type", "application/json")
	c.Header("Content-Disposition", "attachment; filename=\""+id.String()+".json\"")
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, result.Report); err != nil {
		slog.Warn("Failed to stream evaluation report", "log_id", id, "error", err)
	}
}
