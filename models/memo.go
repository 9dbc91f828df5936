package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// MemoRequest is the structured case intake a memo is drafted from
type MemoRequest struct {
	DisputedDecision string `json:"disputedDecision" binding:"required" validate:"required"`
	DesiredOutcome   string `json:"desiredOutcome" binding:"required" validate:"required"`
	CriticalFacts    string `json:"criticalFacts" binding:"required" validate:"required"`
	ApplicableLaw    string `json:"applicableLaw" binding:"required" validate:"required"`
	Recipients       string `json:"recipients" binding:"required" validate:"required"`
}

// Memo is a drafted memorandum saved by a client
type Memo struct {
	ID        uuid.UUID       `json:"id"`
	Content   string          `json:"content"`
	FormData  json.RawMessage `json:"formData"`
	Chunks    []Chunk         `json:"chunks"`
	Feedback  json.RawMessage `json:"feedback"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt *time.Time      `json:"updatedAt,omitempty"`
}
