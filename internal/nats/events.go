package nats

import (
	"time"

	"github.com/google/uuid"
)

// Stream names.
const (
	StreamMemos = "VOXNOTE_MEMOS"
)

// Subject constants.
const (
	SubjectMemoAnalyzed = "voxnote.memos.analyzed"
)

// MemoAnalyzedEvent is published when a recording finishes the
// analysis pipeline. Realtime list-sync consumers use it to refresh a
// user's memo list without polling.
type MemoAnalyzedEvent struct {
	MemoID      uuid.UUID `json:"memo_id"`
	UserID      uuid.UUID `json:"user_id"`
	PrimaryType string    `json:"primary_type"`
	Summary     string    `json:"summary"`
	CreatedAt   time.Time `json:"created_at"`
}
