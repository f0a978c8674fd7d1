package models

import "time"

// Action kinds recorded in SeenRecord.LastAction and ActionLogEntry.Action.
const (
	ActionNone     = ""
	ActionNotify   = "notify"
	ActionQuickban = "quickban"
	ActionUnban    = "unban"
)

// SeenRecord tracks the evaluation state of one (chat, user) pair.
// There is at most one record per pair; it is created on the first evaluation
// and updated on every subsequent one. It is the source of truth for recheck
// gating and action deduplication, so it must survive restarts.
type SeenRecord struct {
	ChatID int64 `gorm:"primaryKey;autoIncrement:false"`
	UserID int64 `gorm:"primaryKey;autoIncrement:false"`

	// FirstSeenAt is when the pair was first evaluated.
	FirstSeenAt time.Time `gorm:"not null"`
	// LastCheckedAt is when the pair was last evaluated; the recheck gate
	// compares against it.
	LastCheckedAt time.Time `gorm:"not null;index"`
	// LastVerdict is the verdict source of the last evaluation
	// ("clean", "local", "cache", "cas", "cas_failed").
	LastVerdict string `gorm:"type:text;not null;default:''"`
	// Flagged is whether the last evaluation flagged the user.
	Flagged bool `gorm:"not null;default:false"`
	// LastAction is the last automated action taken for the pair, if any.
	LastAction string `gorm:"type:text;not null;default:''"`
	// LastActionAt is when LastAction was taken.
	LastActionAt time.Time
	// ActionFailed marks that the last action hit a transport error
	// (e.g. the bot lacks ban rights); surfaced via /status and the dashboard.
	ActionFailed bool `gorm:"not null;default:false"`
}
