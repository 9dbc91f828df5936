package service

import "errors"

var (
	ErrMissingMemoOrChunks = errors.New("missing memo or chunks")
	ErrBlankChunkText      = errors.New("chunk text must not be empty")
	ErrInvalidThreshold    = errors.New("threshold must be between 0 and 1")
	ErrGenerationFailed    = errors.New("failed to generate content")
	ErrEmptyQuery          = errors.New("memo request contains no facts")
	ErrLogPersistFailed    = errors.New("failed to save evaluation log")
	ErrLogNotFound         = errors.New("evaluation log not found")
	ErrArchiveDisabled     = errors.New("evaluation report archive is disabled")
	ErrInvalidPagination   = errors.New("invalid pagination parameters")
)
