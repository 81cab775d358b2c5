package entities

import "time"

// Audit actions.
const (
	ActionBookImported     = "book_imported"
	ActionBookDeleted      = "book_deleted"
	ActionChapterAnalyzed  = "chapter_analyzed"
	ActionCharactersMerged = "characters_merged"
	ActionDatabaseRepaired = "database_repaired"
	ActionDatabaseReset    = "database_reset"
)

// AuditEntry represents a logged action in the system.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Action    string         `json:"action"`
	SubjectID string         `json:"subject_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
