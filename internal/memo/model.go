package memo

import (
	"time"

	"github.com/google/uuid"
)

// MemoType is the single category assigned to a memo.
type MemoType string

const (
	TypeSchedule MemoType = "SCHEDULE"
	TypeTodo     MemoType = "TODO"
	TypeIdea     MemoType = "IDEA"
	TypeNote     MemoType = "NOTE"
)

// Valid reports whether t is one of the four recognized categories.
// Matching is exact and case-sensitive; "schedule" is not a category.
func (t MemoType) Valid() bool {
	switch t {
	case TypeSchedule, TypeTodo, TypeIdea, TypeNote:
		return true
	}
	return false
}

// MemoStatus is the lifecycle state of a memo. The pipeline only ever
// persists COMPLETED rows; SYNCED is reserved for a future external
// export step.
type MemoStatus string

const (
	StatusUploading  MemoStatus = "UPLOADING"
	StatusProcessing MemoStatus = "PROCESSING"
	StatusCompleted  MemoStatus = "COMPLETED"
	StatusSynced     MemoStatus = "SYNCED"
	StatusFailed     MemoStatus = "FAILED"
)

// Entities holds the structured attributes extracted from a memo.
type Entities struct {
	TargetDate *time.Time `json:"target_date,omitempty"`
	Location   *string    `json:"location,omitempty"`
	Tags       []string   `json:"tags,omitempty"`
	// ExternalID links the memo to a record in an external system
	// (calendar event, notes page). Unused by the analysis pipeline.
	ExternalID *string `json:"external_id,omitempty"`
}

// Memo is a row in the memos table: one analyzed voice recording.
type Memo struct {
	ID          uuid.UUID  `json:"id"`
	UserID      uuid.UUID  `json:"user_id"`
	RawText     string     `json:"raw_text"`
	Summary     string     `json:"summary"`
	ContentBody *string    `json:"content_body,omitempty"`
	PrimaryType MemoType   `json:"primary_type"`
	Entities    Entities   `json:"entities"`
	Status      MemoStatus `json:"status"`
	AudioURL    *string    `json:"audio_url,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// UserIntegrations holds per-user credentials for external export
// targets. Declared for forward compatibility; nothing in the analysis
// pipeline reads or writes it.
type UserIntegrations struct {
	UserID             uuid.UUID `json:"user_id"`
	GoogleRefreshToken *string   `json:"google_refresh_token,omitempty"`
	NotionAPIKey       *string   `json:"notion_api_key,omitempty"`
	NotionDatabaseID   *string   `json:"notion_database_id,omitempty"`
}

// AnalyzeRequest is the body of POST /api/v1/memos/analyze.
type AnalyzeRequest struct {
	AudioURL string `json:"audio_url" validate:"required,min=1"`
	UserID   string `json:"user_id" validate:"required,uuid"`
}
