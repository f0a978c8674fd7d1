package scheduler

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"casguard/backend/internal/blacklist"
	"casguard/backend/internal/detector"
	"casguard/backend/internal/dispatch"
	"casguard/backend/internal/models"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// MockStore is a mock implementation of the Store interface
type MockStore struct {
	mock.Mock
}

func (m *MockStore) PruneSeenBefore(cutoff time.Time) error {
	args := m.Called(cutoff)
	return args.Error(0)
}

func (m *MockStore) PruneActionLogBefore(cutoff time.Time) error {
	args := m.Called(cutoff)
	return args.Error(0)
}

func (m *MockStore) ListSeenSince(min time.Time) ([]models.SeenRecord, error) {
	args := m.Called(min)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.SeenRecord), args.Error(1)
}

func (m *MockStore) GetChatPolicy(chatID int64) (*models.ChatPolicy, error) {
	args := m.Called(chatID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ChatPolicy), args.Error(1)
}

func (m *MockStore) UpsertSourceUpdate(name string, count int, at time.Time) error {
	args := m.Called(name, count, at)
	return args.Error(0)
}

type stubRefresher struct {
	result blacklist.RefreshResult
	err    error
	calls  int
}

func (s *stubRefresher) Refresh(_ context.Context) (blacklist.RefreshResult, error) {
	s.calls++
	return s.result, s.err
}

type stubEngine struct {
	verdicts map[int64]detector.Verdict
}

func (s *stubEngine) Evaluate(_ context.Context, userID int64) detector.Verdict {
	return s.verdicts[userID]
}

type recordingActioner struct {
	pairs []string
	err   error
}

func (r *recordingActioner) Dispatch(_ context.Context, chatID, userID int64, _ string, _ detector.Verdict) (dispatch.Outcome, error) {
	r.pairs = append(r.pairs, fmt.Sprintf("%d/%d", chatID, userID))
	return dispatch.Outcome{}, r.err
}

func TestShouldEvaluate(t *testing.T) {
	interval := 15 * time.Minute

	assert.True(t, ShouldEvaluate(nil, interval, testNow, false), "unseen pair")
	assert.True(t, ShouldEvaluate(nil, interval, testNow, true))

	fresh := &models.SeenRecord{LastCheckedAt: testNow.Add(-5 * time.Minute)}
	assert.False(t, ShouldEvaluate(fresh, interval, testNow, false), "inside interval")
	assert.True(t, ShouldEvaluate(fresh, interval, testNow, true), "forced check bypasses the gate")

	due := &models.SeenRecord{LastCheckedAt: testNow.Add(-15 * time.Minute)}
	assert.True(t, ShouldEvaluate(due, interval, testNow, false), "exactly at interval")
}

func TestRefreshSourcesRecordsBookkeeping(t *testing.T) {
	store := new(MockStore)
	ref := &stubRefresher{result: blacklist.RefreshResult{
		Total:        5,
		SourceCounts: map[string]int{blacklist.SourceExport: 3, blacklist.SourceLols: 4},
	}}
	s := NewScheduler(store, ref, nil, nil, nil, time.Hour, 15*time.Minute, 7*24*time.Hour)
	s.now = func() time.Time { return testNow }

	store.On("UpsertSourceUpdate", blacklist.SourceExport, 3, testNow).Return(nil)
	store.On("UpsertSourceUpdate", blacklist.SourceLols, 4, testNow).Return(nil)
	store.On("UpsertSourceUpdate", "total", 5, testNow).Return(nil)

	assert.NoError(t, s.RefreshSources(context.Background()))
	store.AssertExpectations(t)
}

func TestRefreshSourcesPropagatesTotalFailure(t *testing.T) {
	store := new(MockStore)
	ref := &stubRefresher{err: errors.New("all sources failed")}
	s := NewScheduler(store, ref, nil, nil, nil, time.Hour, 15*time.Minute, 7*24*time.Hour)

	assert.Error(t, s.RefreshSources(context.Background()))
	store.AssertNotCalled(t, "UpsertSourceUpdate", mock.Anything, mock.Anything, mock.Anything)
}

func TestRecheckSeenSweep(t *testing.T) {
	store := new(MockStore)
	engine := &stubEngine{verdicts: map[int64]detector.Verdict{
		42: {Flagged: true, Source: detector.SourceLocal},
		43: {Flagged: false, Source: detector.SourceCache},
	}}
	actioner := &recordingActioner{}
	s := NewScheduler(store, nil, engine, actioner, nil, time.Hour, 15*time.Minute, 7*24*time.Hour)
	s.now = func() time.Time { return testNow }

	cutoff := testNow.Add(-7 * 24 * time.Hour)
	due := testNow.Add(-20 * time.Minute)
	store.On("PruneSeenBefore", cutoff).Return(nil)
	store.On("PruneActionLogBefore", testNow.Add(-30*24*time.Hour)).Return(nil)
	store.On("ListSeenSince", cutoff).Return([]models.SeenRecord{
		{ChatID: -1, UserID: 42, LastCheckedAt: due},                           // due, flagged
		{ChatID: -1, UserID: 43, LastCheckedAt: due},                           // due, clean
		{ChatID: -1, UserID: 44, LastCheckedAt: testNow.Add(-time.Minute)},     // not due
		{ChatID: -2, UserID: 45, LastCheckedAt: due},                           // whitelisted
	}, nil)
	store.On("GetChatPolicy", int64(-1)).Return(&models.ChatPolicy{ChatID: -1, Mode: models.ModeNotify}, nil).Once()
	store.On("GetChatPolicy", int64(-2)).Return(&models.ChatPolicy{
		ChatID: -2, Mode: models.ModeNotify, Whitelist: pq.Int64Array{45},
	}, nil).Once()

	assert.NoError(t, s.RecheckSeen(context.Background()))
	assert.Equal(t, []string{"-1/42", "-1/43"}, actioner.pairs, "only due, non-whitelisted pairs are dispatched")
	store.AssertExpectations(t)
}

func TestRecheckSeenHonorsChatIntervalOverride(t *testing.T) {
	store := new(MockStore)
	engine := &stubEngine{verdicts: map[int64]detector.Verdict{
		42: {Flagged: true, Source: detector.SourceLocal},
	}}
	actioner := &recordingActioner{}
	s := NewScheduler(store, nil, engine, actioner, nil, time.Hour, 15*time.Minute, 7*24*time.Hour)
	s.now = func() time.Time { return testNow }

	cutoff := testNow.Add(-7 * 24 * time.Hour)
	store.On("PruneSeenBefore", cutoff).Return(nil)
	store.On("PruneActionLogBefore", testNow.Add(-30*24*time.Hour)).Return(nil)
	// 20 minutes ago: past the 15m global interval, inside the chat's 1h one.
	store.On("ListSeenSince", cutoff).Return([]models.SeenRecord{
		{ChatID: -1, UserID: 42, LastCheckedAt: testNow.Add(-20 * time.Minute)},
		{ChatID: -1, UserID: 43, LastCheckedAt: testNow.Add(-2 * time.Hour)},
	}, nil)
	store.On("GetChatPolicy", int64(-1)).Return(&models.ChatPolicy{
		ChatID: -1, Mode: models.ModeNotify, RecheckSeconds: 3600,
	}, nil).Once()

	assert.NoError(t, s.RecheckSeen(context.Background()))
	assert.Equal(t, []string{"-1/43"}, actioner.pairs, "pairs inside the chat's own interval stay gated")
}

func TestRecheckSeenStopsOnCancel(t *testing.T) {
	store := new(MockStore)
	actioner := &recordingActioner{}
	engine := &stubEngine{verdicts: map[int64]detector.Verdict{}}
	s := NewScheduler(store, nil, engine, actioner, nil, time.Hour, 15*time.Minute, 7*24*time.Hour)
	s.now = func() time.Time { return testNow }

	cutoff := testNow.Add(-7 * 24 * time.Hour)
	store.On("PruneSeenBefore", cutoff).Return(nil)
	store.On("PruneActionLogBefore", testNow.Add(-30*24*time.Hour)).Return(nil)
	store.On("ListSeenSince", cutoff).Return([]models.SeenRecord{
		{ChatID: -1, UserID: 42, LastCheckedAt: testNow.Add(-time.Hour)},
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.RecheckSeen(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, actioner.pairs)
}

func TestRunPeriodicStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	done := make(chan struct{})

	go func() {
		RunPeriodic(ctx, "test", time.Hour, func(context.Context) error {
			calls++
			cancel()
			return nil
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("RunPeriodic did not stop after cancellation")
	}
	assert.Equal(t, 1, calls)
}
