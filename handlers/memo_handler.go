package handlers

import (
	"net/http"
	"strconv"

	"jurismemo-backend/models"
	"jurismemo-backend/service"

	"github.com/gin-gonic/gin"
)

const (
	defaultChunkPage = 1000
)

// MemoHandler handles HTTP requests for memo drafting
type MemoHandler struct {
	memoService *service.MemoService
}

// NewMemoHandler creates a new memo handler
func NewMemoHandler(memoService *service.MemoService) *MemoHandler {
	return &MemoHandler{
		memoService: memoService,
	}
}

// RefineMemoRequest represents the request body for refining a memo
type RefineMemoRequest struct {
	Memo        string         `json:"memo"`
	Chunks      []models.Chunk `json:"chunks"`
	Temperature *float32       `json:"temperature"`
	Model       string         `json:"model"`
}

// listedChunk is the shape returned by the chunk listing
type listedChunk struct {
	ECLI     string                 `json:"ecli"`
	Metadata map[string]interface{} `json:"metadata"`
	Text     string                 `json:"text"`
}

// GenerateMemo handles POST /generate-memo
func (h *MemoHandler) GenerateMemo(c *gin.Context) {
	var req models.MemoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	result, err := h.memoService.GenerateMemo(c.Request.Context(), service.GenerateMemoRequest{Intake: req})
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"memo":   result.Memo,
			"chunks": result.Chunks,
		},
	})
}

// RefineMemo handles POST /refine-existing-memo
func (h *MemoHandler) RefineMemo(c *gin.Context) {
	var req RefineMemoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	result, err := h.memoService.RefineMemo(c.Request.Context(), service.RefineMemoRequest{
		Memo:        req.Memo,
		Chunks:      req.Chunks,
		Temperature: req.Temperature,
		Model:       req.Model,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"memo_refined": result.Memo,
			"chunks":       result.Chunks,
		},
	})
}

// ListChunks handles GET /get-all-chunks
func (h *MemoHandler) ListChunks(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultChunkPage)))
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_LIMIT", "limit must be an integer")
		return
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_OFFSET", "offset must be an integer")
		return
	}

	result, err := h.memoService.ListChunks(c.Request.Context(), service.ListChunksRequest{
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}

	chunks := make([]listedChunk, 0, len(result.Chunks))
	for _, chunk := range result.Chunks {
		chunks = append(chunks, listedChunk{
			ECLI:     chunk.ECLI,
			Metadata: chunk.Metadata,
			Text:     chunk.Text,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"total_chunks": len(chunks),
			"chunks":       chunks,
		},
	})
}

// SaveMemo handles POST /save-memo
func (h *MemoHandler) SaveMemo(c *gin.Context) {
	var memo models.Memo
	if err := c.ShouldBindJSON(&memo); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	result, err := h.memoService.SaveMemo(c.Request.Context(), service.SaveMemoRequest{Memo: &memo})
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"id": result.ID,
		},
	})
}
