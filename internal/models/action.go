package models

import "time"

// ActionLogEntry is one row of the append-only audit trail. Entries are never
// mutated; old rows are pruned together with the stats retention horizon.
type ActionLogEntry struct {
	ID     uint  `gorm:"primaryKey" json:"id"`
	ChatID int64 `gorm:"not null;index:idx_action_chat_ts" json:"chat_id"`
	UserID int64 `gorm:"not null;index" json:"user_id"`
	// Action is the action kind: notify, quickban or unban.
	Action string `gorm:"type:text;not null" json:"action"`
	// Mode is the chat mode at the time of the action.
	Mode string `gorm:"type:text;not null" json:"mode"`
	// Reason is the human-readable evidence for the action.
	Reason string `gorm:"type:text;not null" json:"reason"`
	// Source is the verdict source that triggered the action (local/cache/cas).
	Source string `gorm:"type:text;not null;default:'unknown'" json:"source"`
	// Failed marks an action whose transport call did not go through.
	Failed bool `gorm:"not null;default:false" json:"failed"`

	CreatedAt time.Time `gorm:"not null;index:idx_action_chat_ts" json:"created_at"`
}

// ActionStats aggregates the audit trail over one time window.
type ActionStats struct {
	Total       int64 `json:"total"`
	Notify      int64 `json:"notify"`
	Quickban    int64 `json:"quickban"`
	Local       int64 `json:"local"`
	CAS         int64 `json:"cas"`
	Failed      int64 `json:"failed"`
	UniqueUsers int64 `json:"unique_users"`
}

// ErrorLogEntry records a non-fatal operational error (source fetch failure,
// CAS lookup error, transport rejection) with enough context to diagnose it.
type ErrorLogEntry struct {
	ID uint `gorm:"primaryKey" json:"id"`
	// Source names the failing subsystem ("cas", "export", "lols", "telegram").
	Source  string `gorm:"type:text;not null" json:"source"`
	ChatID  int64  `json:"chat_id"`
	UserID  int64  `json:"user_id"`
	Message string `gorm:"type:text;not null" json:"message"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}
