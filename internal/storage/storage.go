package storage

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"casguard/backend/internal/models"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Storage is the durable-state contract of the bot: chat policies, seen-user
// records, the message cache, the audit trail and refresh bookkeeping.
type Storage interface {
	GetChatPolicy(chatID int64) (*models.ChatPolicy, error)
	SetChatMode(chatID int64, mode models.Mode) error
	SetChatSilent(chatID int64, silent bool) error
	AddToWhitelist(chatID, userID int64) error
	IsWhitelisted(chatID, userID int64) (bool, error)

	GetSeenRecord(chatID, userID int64) (*models.SeenRecord, error)
	SaveSeenRecord(rec *models.SeenRecord) error
	ListSeenSince(min time.Time) ([]models.SeenRecord, error)
	PruneSeenBefore(cutoff time.Time) error

	AddCachedMessage(chatID, userID int64, messageID, limit int) error
	CachedMessageIDs(chatID, userID int64) ([]int, error)
	ClearCachedMessages(chatID, userID int64) error

	AppendActionLog(entry *models.ActionLogEntry) error
	ActionStatsSince(chatID int64, since time.Time) (models.ActionStats, error)
	TimeToActionSince(since time.Time) ([]float64, error)
	RecentActions(limit int) ([]models.ActionLogEntry, error)
	PruneActionLogBefore(cutoff time.Time) error

	AddErrorLog(source string, chatID, userID int64, message string) error
	RecentErrors(limit int) ([]models.ErrorLogEntry, error)

	UpsertChatInfo(chatID int64, title string) error
	ListChats() ([]models.ChatInfo, error)

	UpsertSourceUpdate(name string, count int, at time.Time) error
	ListSourceUpdates() ([]models.SourceUpdate, error)
}

// Service implements Storage on PostgreSQL (via GORM). The Redis client is
// shared with the reputation cache and kept here so both sides of the hot
// path are dialed in one place.
type Service struct {
	DB    *gorm.DB
	Redis *redis.Client
	Ctx   context.Context
}

// NewStorageService Constructor
func NewStorageService(db *gorm.DB, rdb *redis.Client) *Service {
	return &Service{
		DB:    db,
		Redis: rdb,
		Ctx:   context.Background(),
	}
}

// Migrate creates or updates the schema for every model the bot persists.
func (s *Service) Migrate() error {
	return s.DB.AutoMigrate(
		&models.ChatPolicy{},
		&models.SeenRecord{},
		&models.ActionLogEntry{},
		&models.CachedMessage{},
		&models.ChatInfo{},
		&models.SourceUpdate{},
		&models.ErrorLogEntry{},
	)
}

// GetChatPolicy returns the chat's policy, creating the default one
// (mode=notify, empty whitelist) the first time the chat is seen.
func (s *Service) GetChatPolicy(chatID int64) (*models.ChatPolicy, error) {
	var policy models.ChatPolicy
	err := s.DB.Where("chat_id = ?", chatID).
		Attrs(models.ChatPolicy{ChatID: chatID, Mode: models.ModeNotify}).
		FirstOrCreate(&policy).Error
	if err != nil {
		return nil, fmt.Errorf("get chat policy %d: %w", chatID, err)
	}
	if !policy.Mode.Valid() {
		// A hand-edited row must not disable the dispatcher.
		policy.Mode = models.ModeNotify
	}
	return &policy, nil
}

// SetChatMode updates the chat mode, creating the policy row if needed.
func (s *Service) SetChatMode(chatID int64, mode models.Mode) error {
	if !mode.Valid() {
		return fmt.Errorf("invalid mode %q", mode)
	}
	if _, err := s.GetChatPolicy(chatID); err != nil {
		return err
	}
	return s.DB.Model(&models.ChatPolicy{}).
		Where("chat_id = ?", chatID).
		Update("mode", mode).Error
}

// SetChatSilent toggles the silent flag for a chat.
func (s *Service) SetChatSilent(chatID int64, silent bool) error {
	if _, err := s.GetChatPolicy(chatID); err != nil {
		return err
	}
	return s.DB.Model(&models.ChatPolicy{}).
		Where("chat_id = ?", chatID).
		Update("silent", silent).Error
}

// AddToWhitelist puts userID on the chat's whitelist. Adding an already
// whitelisted user is a no-op.
func (s *Service) AddToWhitelist(chatID, userID int64) error {
	policy, err := s.GetChatPolicy(chatID)
	if err != nil {
		return err
	}
	if policy.IsWhitelisted(userID) {
		return nil
	}
	policy.Whitelist = append(policy.Whitelist, userID)
	return s.DB.Model(&models.ChatPolicy{}).
		Where("chat_id = ?", chatID).
		Update("whitelist", policy.Whitelist).Error
}

// IsWhitelisted checks the chat's whitelist for userID.
func (s *Service) IsWhitelisted(chatID, userID int64) (bool, error) {
	policy, err := s.GetChatPolicy(chatID)
	if err != nil {
		return false, err
	}
	return policy.IsWhitelisted(userID), nil
}

// GetSeenRecord returns the SeenRecord for a (chat, user) pair, or nil when
// the pair has never been evaluated.
func (s *Service) GetSeenRecord(chatID, userID int64) (*models.SeenRecord, error) {
	var rec models.SeenRecord
	err := s.DB.Where("chat_id = ? AND user_id = ?", chatID, userID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get seen record %d/%d: %w", chatID, userID, err)
	}
	return &rec, nil
}

// SaveSeenRecord upserts the record for its (chat, user) pair.
func (s *Service) SaveSeenRecord(rec *models.SeenRecord) error {
	return s.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "chat_id"}, {Name: "user_id"}},
		UpdateAll: true,
	}).Create(rec).Error
}

// ListSeenSince returns every SeenRecord last checked at or after min.
func (s *Service) ListSeenSince(min time.Time) ([]models.SeenRecord, error) {
	var recs []models.SeenRecord
	if err := s.DB.Where("last_checked_at >= ?", min).Find(&recs).Error; err != nil {
		return nil, err
	}
	return recs, nil
}

// PruneSeenBefore drops seen records and cached messages older than cutoff.
func (s *Service) PruneSeenBefore(cutoff time.Time) error {
	if err := s.DB.Where("last_checked_at < ?", cutoff).
		Delete(&models.SeenRecord{}).Error; err != nil {
		return err
	}
	return s.DB.Where("created_at < ?", cutoff).
		Delete(&models.CachedMessage{}).Error
}

// AddCachedMessage records a message ID for later deletion and trims the
// per-pair cache down to limit entries, oldest first.
func (s *Service) AddCachedMessage(chatID, userID int64, messageID, limit int) error {
	if err := s.DB.Create(&models.CachedMessage{
		ChatID:    chatID,
		UserID:    userID,
		MessageID: messageID,
	}).Error; err != nil {
		return err
	}
	return s.DB.Exec(`
		DELETE FROM cached_messages
		WHERE id IN (
			SELECT id FROM cached_messages
			WHERE chat_id = ? AND user_id = ?
			ORDER BY created_at DESC, id DESC
			OFFSET ?
		)`, chatID, userID, limit).Error
}

// CachedMessageIDs returns the cached message IDs for a pair, newest first.
func (s *Service) CachedMessageIDs(chatID, userID int64) ([]int, error) {
	var ids []int
	err := s.DB.Model(&models.CachedMessage{}).
		Where("chat_id = ? AND user_id = ?", chatID, userID).
		Order("created_at DESC, id DESC").
		Pluck("message_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// ClearCachedMessages empties the message cache for a pair.
func (s *Service) ClearCachedMessages(chatID, userID int64) error {
	return s.DB.Where("chat_id = ? AND user_id = ?", chatID, userID).
		Delete(&models.CachedMessage{}).Error
}

// AppendActionLog writes one audit-trail row. Rows are never updated.
func (s *Service) AppendActionLog(entry *models.ActionLogEntry) error {
	if err := s.DB.Create(entry).Error; err != nil {
		log.Printf("ERROR: Failed to append action log for chat %d user %d: %v",
			entry.ChatID, entry.UserID, err)
		return err
	}
	return nil
}

// ActionStatsSince aggregates the audit trail since the given time.
// chatID 0 aggregates across all chats.
func (s *Service) ActionStatsSince(chatID int64, since time.Time) (models.ActionStats, error) {
	var stats models.ActionStats
	q := s.DB.Model(&models.ActionLogEntry{}).Where("created_at >= ?", since)
	if chatID != 0 {
		q = q.Where("chat_id = ?", chatID)
	}
	err := q.Select(`
		COUNT(*) AS total,
		COALESCE(SUM(CASE WHEN action = 'notify' THEN 1 ELSE 0 END), 0) AS notify,
		COALESCE(SUM(CASE WHEN action = 'quickban' THEN 1 ELSE 0 END), 0) AS quickban,
		COALESCE(SUM(CASE WHEN source = 'local' THEN 1 ELSE 0 END), 0) AS local,
		COALESCE(SUM(CASE WHEN source IN ('cas', 'cache') THEN 1 ELSE 0 END), 0) AS cas,
		COALESCE(SUM(CASE WHEN failed THEN 1 ELSE 0 END), 0) AS failed,
		COUNT(DISTINCT user_id) AS unique_users`).
		Scan(&stats).Error
	if err != nil {
		return models.ActionStats{}, err
	}
	return stats, nil
}

// TimeToActionSince returns, for every action taken since the given time,
// the seconds between the pair's first sighting and the action.
func (s *Service) TimeToActionSince(since time.Time) ([]float64, error) {
	var deltas []float64
	err := s.DB.Raw(`
		SELECT EXTRACT(EPOCH FROM (a.created_at - sr.first_seen_at))
		FROM action_log_entries a
		JOIN seen_records sr ON sr.chat_id = a.chat_id AND sr.user_id = a.user_id
		WHERE a.created_at >= ? AND a.created_at >= sr.first_seen_at`, since).
		Scan(&deltas).Error
	if err != nil {
		return nil, err
	}
	return deltas, nil
}

// RecentActions returns the newest audit-trail rows, newest first.
func (s *Service) RecentActions(limit int) ([]models.ActionLogEntry, error) {
	var entries []models.ActionLogEntry
	err := s.DB.Order("created_at DESC, id DESC").Limit(limit).Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// PruneActionLogBefore applies the audit retention policy.
func (s *Service) PruneActionLogBefore(cutoff time.Time) error {
	return s.DB.Where("created_at < ?", cutoff).
		Delete(&models.ActionLogEntry{}).Error
}

// AddErrorLog records a non-fatal operational error for the dashboard.
func (s *Service) AddErrorLog(source string, chatID, userID int64, message string) error {
	return s.DB.Create(&models.ErrorLogEntry{
		Source:  source,
		ChatID:  chatID,
		UserID:  userID,
		Message: message,
	}).Error
}

// RecentErrors returns the newest error-log rows, newest first.
func (s *Service) RecentErrors(limit int) ([]models.ErrorLogEntry, error) {
	var entries []models.ErrorLogEntry
	err := s.DB.Order("created_at DESC, id DESC").Limit(limit).Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// UpsertChatInfo refreshes the last known chat title.
func (s *Service) UpsertChatInfo(chatID int64, title string) error {
	return s.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "chat_id"}},
		UpdateAll: true,
	}).Create(&models.ChatInfo{ChatID: chatID, Title: title}).Error
}

// ListChats returns the chats the bot has seen, for the dashboard chat list.
func (s *Service) ListChats() ([]models.ChatInfo, error) {
	var chats []models.ChatInfo
	if err := s.DB.Order("chat_id").Find(&chats).Error; err != nil {
		return nil, err
	}
	return chats, nil
}

// UpsertSourceUpdate records a successful source refresh.
func (s *Service) UpsertSourceUpdate(name string, count int, at time.Time) error {
	return s.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		UpdateAll: true,
	}).Create(&models.SourceUpdate{Name: name, RefreshedAt: at, Count: count}).Error
}

// ListSourceUpdates returns the refresh bookkeeping for every source.
func (s *Service) ListSourceUpdates() ([]models.SourceUpdate, error) {
	var updates []models.SourceUpdate
	if err := s.DB.Order("name").Find(&updates).Error; err != nil {
		return nil, err
	}
	return updates, nil
}
