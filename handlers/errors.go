package handlers

import (
	"errors"
	"net/http"

	"jurismemo-backend/embedding"
	"jurismemo-backend/grounding"
	"jurismemo-backend/retrieval"
	"jurismemo-backend/service"

	"github.com/gin-gonic/gin"
)

// respondError writes the error envelope
func respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}

// respondServiceError maps a service error to a status code and error code
func respondServiceError(c *gin.Context, err error) {
	status, code := classifyError(err)
	respondError(c, status, code, err.Error())
}

func classifyError(err error) (int, string) {
	var (
		unsupported  *grounding.UnsupportedMetricError
		providerErr  *embedding.ProviderError
		retrievalErr *retrieval.RetrievalError
	)

	switch {
	case errors.Is(err, service.ErrMissingMemoOrChunks),
		errors.Is(err, service.ErrBlankChunkText),
		errors.Is(err, service.ErrEmptyQuery),
		errors.Is(err, service.ErrInvalidPagination):
		return http.StatusBadRequest, "INVALID_REQUEST"
	case errors.Is(err, service.ErrInvalidThreshold):
		return http.StatusBadRequest, "INVALID_THRESHOLD"
	case errors.As(err, &unsupported):
		return http.StatusBadRequest, "UNSUPPORTED_METRIC"
	case errors.Is(err, service.ErrArchiveDisabled):
		return http.StatusNotFound, "ARCHIVE_DISABLED"
	case service.IsNotFound(err):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.As(err, &providerErr):
		return http.StatusBadGateway, "EMBEDDING_FAILED"
	case errors.As(err, &retrievalErr):
		return http.StatusBadGateway, "RETRIEVAL_FAILED"
	case errors.Is(err, service.ErrGenerationFailed):
		return http.StatusBadGateway, "GENERATION_FAILED"
	case errors.Is(err, service.ErrLogPersistFailed):
		return http.StatusInternalServerError, "LOG_PERSIST_FAILED"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}
