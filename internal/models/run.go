package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Operation names accepted by the orchestrator and the async run API.
const (
	OperationAnalyzeReference = "analyze_reference"
	OperationGenerateScript   = "generate_script"
	OperationDailyTrends      = "daily_trends"
)

// Run status values.
const (
	RunStatusQueued    = "queued"
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// Run records one background invocation of an orchestrated operation.
type Run struct {
	ID          uuid.UUID       `json:"id"`
	UserID      uuid.UUID       `json:"user_id"`
	Operation   string          `json:"operation"`
	Status      string          `json:"status"`
	Input       json.RawMessage `json:"input"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// IsValidOperation reports whether op names a costed orchestrated operation.
func IsValidOperation(op string) bool {
	switch op {
	case OperationAnalyzeReference, OperationGenerateScript, OperationDailyTrends:
		return true
	}
	return false
}
