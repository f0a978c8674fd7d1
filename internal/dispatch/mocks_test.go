package dispatch

import (
	"context"

	"casguard/backend/internal/models"

	"github.com/stretchr/testify/mock"
)

// MockStore is a mock implementation of the Store interface
type MockStore struct {
	mock.Mock
}

func (m *MockStore) GetChatPolicy(chatID int64) (*models.ChatPolicy, error) {
	args := m.Called(chatID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ChatPolicy), args.Error(1)
}

func (m *MockStore) AddToWhitelist(chatID, userID int64) error {
	args := m.Called(chatID, userID)
	return args.Error(0)
}

func (m *MockStore) GetSeenRecord(chatID, userID int64) (*models.SeenRecord, error) {
	args := m.Called(chatID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SeenRecord), args.Error(1)
}

func (m *MockStore) SaveSeenRecord(rec *models.SeenRecord) error {
	args := m.Called(rec)
	return args.Error(0)
}

func (m *MockStore) AppendActionLog(entry *models.ActionLogEntry) error {
	args := m.Called(entry)
	return args.Error(0)
}

func (m *MockStore) CachedMessageIDs(chatID, userID int64) ([]int, error) {
	args := m.Called(chatID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]int), args.Error(1)
}

func (m *MockStore) ClearCachedMessages(chatID, userID int64) error {
	args := m.Called(chatID, userID)
	return args.Error(0)
}

func (m *MockStore) AddErrorLog(source string, chatID, userID int64, message string) error {
	args := m.Called(source, chatID, userID, message)
	return args.Error(0)
}

// MockTransport is a mock implementation of the Transport interface
type MockTransport struct {
	mock.Mock
}

func (m *MockTransport) Notify(ctx context.Context, chatID, userID int64, fullName, reason string) error {
	args := m.Called(ctx, chatID, userID, fullName, reason)
	return args.Error(0)
}

func (m *MockTransport) Ban(ctx context.Context, chatID, userID int64) error {
	args := m.Called(ctx, chatID, userID)
	return args.Error(0)
}

func (m *MockTransport) Unban(ctx context.Context, chatID, userID int64) error {
	args := m.Called(ctx, chatID, userID)
	return args.Error(0)
}

func (m *MockTransport) DeleteMessages(ctx context.Context, chatID int64, messageIDs []int) error {
	args := m.Called(ctx, chatID, messageIDs)
	return args.Error(0)
}

func (m *MockTransport) AnnounceBan(ctx context.Context, chatID, userID int64, fullName, reason string) error {
	args := m.Called(ctx, chatID, userID, fullName, reason)
	return args.Error(0)
}
