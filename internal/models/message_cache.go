package models

import "time"

// CachedMessage remembers a recent message ID from a user in a chat so that a
// quickban can delete what the user posted. The cache is capped per
// (chat, user) pair; the oldest rows are trimmed on insert.
type CachedMessage struct {
	ID        uint  `gorm:"primaryKey"`
	ChatID    int64 `gorm:"not null;index:idx_msg_cache_pair"`
	UserID    int64 `gorm:"not null;index:idx_msg_cache_pair"`
	MessageID int   `gorm:"not null"`

	CreatedAt time.Time `gorm:"not null"`
}

// ChatInfo keeps the last known title of a chat for the dashboard chat list.
type ChatInfo struct {
	ChatID    int64     `gorm:"primaryKey" json:"chat_id"`
	Title     string    `gorm:"type:text;not null" json:"title"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SourceUpdate records the last successful refresh of one blacklist source
// (and the synthetic "total" entry for the merged set).
type SourceUpdate struct {
	Name        string    `gorm:"primaryKey" json:"name"`
	RefreshedAt time.Time `gorm:"not null" json:"refreshed_at"`
	Count       int       `gorm:"not null" json:"count"`
}
