package models

import (
	"time"

	"github.com/lib/pq"
)

// Mode is the per-chat reaction mode. It is a closed set: every consumer
// switches over the two values and treats anything else as invalid.
type Mode string

const (
	// ModeNotify posts a warning message about a flagged user and nothing else.
	ModeNotify Mode = "notify"
	// ModeQuickban bans a flagged user and deletes their cached messages.
	ModeQuickban Mode = "quickban"
)

// Valid reports whether m is one of the known modes.
func (m Mode) Valid() bool {
	return m == ModeNotify || m == ModeQuickban
}

// ChatPolicy holds the moderation settings of a single chat.
// A row is created with defaults the first time the bot sees the chat and is
// only ever mutated by admin commands; it is never implicitly deleted.
type ChatPolicy struct {
	// ChatID is the Telegram chat identifier.
	ChatID int64 `gorm:"primaryKey"`
	// Mode selects the reaction to a flagged user: notify or quickban.
	Mode Mode `gorm:"type:text;not null;default:notify"`
	// Silent suppresses the public announcement while still acting and logging.
	Silent bool `gorm:"not null;default:false"`
	// RecheckSeconds is the per-chat recheck interval; 0 means the global default.
	RecheckSeconds int64 `gorm:"not null;default:0"`
	// Whitelist holds user IDs exempt from automated actions in this chat only.
	Whitelist pq.Int64Array `gorm:"type:bigint[]"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// RecheckInterval returns the chat's recheck interval, falling back to def
// when the chat has no override.
func (p *ChatPolicy) RecheckInterval(def time.Duration) time.Duration {
	if p.RecheckSeconds > 0 {
		return time.Duration(p.RecheckSeconds) * time.Second
	}
	return def
}

// IsWhitelisted reports whether userID is on this chat's whitelist.
func (p *ChatPolicy) IsWhitelisted(userID int64) bool {
	for _, id := range p.Whitelist {
		if id == userID {
			return true
		}
	}
	return false
}
