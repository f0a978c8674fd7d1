// Package scheduler drives the two background loops: blacklist source
// refresh and the recheck sweep over seen pairs. It also owns the
// evaluation gate that bounds detection cost per pair.
package scheduler

import (
	"context"
	"log"
	"strconv"
	"time"

	"casguard/backend/internal/blacklist"
	"casguard/backend/internal/detector"
	"casguard/backend/internal/dispatch"
	"casguard/backend/internal/models"
)

// auditRetention matches the longest stats window served by /stats and the
// dashboard.
const auditRetention = 30 * 24 * time.Hour

// Store is the slice of storage the scheduler needs.
type Store interface {
	GetChatPolicy(chatID int64) (*models.ChatPolicy, error)
	PruneSeenBefore(cutoff time.Time) error
	PruneActionLogBefore(cutoff time.Time) error
	ListSeenSince(min time.Time) ([]models.SeenRecord, error)
	UpsertSourceUpdate(name string, count int, at time.Time) error
}

// Refresher rebuilds the blacklist index. *blacklist.Refresher implements it.
type Refresher interface {
	Refresh(ctx context.Context) (blacklist.RefreshResult, error)
}

// Engine resolves verdicts. *detector.Engine implements it.
type Engine interface {
	Evaluate(ctx context.Context, userID int64) detector.Verdict
}

// Actioner applies verdicts. *dispatch.Dispatcher implements it.
type Actioner interface {
	Dispatch(ctx context.Context, chatID, userID int64, fullName string, verdict detector.Verdict) (dispatch.Outcome, error)
}

// NameResolver looks up a display name for notifications during sweeps.
// May be nil; the user ID is used as a fallback name.
type NameResolver interface {
	MemberName(ctx context.Context, chatID, userID int64) string
}

// ShouldEvaluate is the detection gate: a pair is evaluated when it has no
// record yet, its last check is at least interval old, or the check is
// forced. Between gates messages pass through without a detection call.
func ShouldEvaluate(rec *models.SeenRecord, interval time.Duration, now time.Time, forced bool) bool {
	if forced || rec == nil {
		return true
	}
	return now.Sub(rec.LastCheckedAt) >= interval
}

// Scheduler runs the periodic tasks.
type Scheduler struct {
	store     Store
	refresher Refresher
	engine    Engine
	actioner  Actioner
	names     NameResolver

	refreshInterval time.Duration
	recheckInterval time.Duration
	seenTTL         time.Duration

	now func() time.Time
}

// NewScheduler Constructor. names may be nil.
func NewScheduler(store Store, refresher Refresher, engine Engine, actioner Actioner, names NameResolver,
	refreshInterval, recheckInterval, seenTTL time.Duration) *Scheduler {
	return &Scheduler{
		store:           store,
		refresher:       refresher,
		engine:          engine,
		actioner:        actioner,
		names:           names,
		refreshInterval: refreshInterval,
		recheckInterval: recheckInterval,
		seenTTL:         seenTTL,
		now:             time.Now,
	}
}

// Start performs an initial source refresh and launches the two periodic
// loops. It returns immediately; the loops stop when ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	if err := s.RefreshSources(ctx); err != nil {
		log.Printf("ERROR: Initial source refresh failed: %v", err)
	}
	go RunPeriodic(ctx, "refresh_sources", s.refreshInterval, s.RefreshSources)
	go RunPeriodic(ctx, "recheck_seen", s.recheckInterval, s.RecheckSeen)
}

// RunPeriodic runs task every interval, re-arming by at least one second so
// a slow task never causes a busy loop. It returns when ctx is cancelled.
func RunPeriodic(ctx context.Context, name string, interval time.Duration, task func(context.Context) error) {
	for {
		start := time.Now()
		if err := task(ctx); err != nil {
			log.Printf("ERROR: Periodic task %s failed: %v", name, err)
		}

		sleep := interval - time.Since(start)
		if sleep < time.Second {
			sleep = time.Second
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(sleep):
		}
	}
}

// RefreshSources rebuilds the index and records per-source bookkeeping.
func (s *Scheduler) RefreshSources(ctx context.Context) error {
	result, err := s.refresher.Refresh(ctx)
	if err != nil {
		return err
	}
	now := s.now()
	for name, count := range result.SourceCounts {
		if err := s.store.UpsertSourceUpdate(name, count, now); err != nil {
			log.Printf("WARN: Failed to record source update %s: %v", name, err)
		}
	}
	if err := s.store.UpsertSourceUpdate("total", result.Total, now); err != nil {
		log.Printf("WARN: Failed to record source update total: %v", err)
	}
	return nil
}

// RecheckSeen prunes expired pairs, then re-evaluates every pair whose last
// check is due. The loop is interruptible between pairs; one pair's failure
// never stops the sweep.
func (s *Scheduler) RecheckSeen(ctx context.Context) error {
	now := s.now()
	cutoff := now.Add(-s.seenTTL)

	if err := s.store.PruneSeenBefore(cutoff); err != nil {
		return err
	}
	// Audit retention is tied to the longest stats window.
	if err := s.store.PruneActionLogBefore(now.Add(-auditRetention)); err != nil {
		log.Printf("WARN: Failed to prune action log: %v", err)
	}
	seen, err := s.store.ListSeenSince(cutoff)
	if err != nil {
		return err
	}
	if len(seen) > 0 {
		log.Printf("Recheck sweep: %d seen pairs", len(seen))
	}

	policies := make(map[int64]*models.ChatPolicy)
	for _, rec := range seen {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		policy, ok := policies[rec.ChatID]
		if !ok {
			policy, err = s.store.GetChatPolicy(rec.ChatID)
			if err != nil {
				log.Printf("WARN: Policy load for chat %d failed: %v", rec.ChatID, err)
				continue
			}
			policies[rec.ChatID] = policy
		}

		// The gate honors the chat's own interval override.
		if !ShouldEvaluate(&rec, policy.RecheckInterval(s.recheckInterval), now, false) {
			continue
		}
		if policy.IsWhitelisted(rec.UserID) {
			continue
		}

		verdict := s.engine.Evaluate(ctx, rec.UserID)
		name := strconv.FormatInt(rec.UserID, 10)
		if verdict.Flagged && s.names != nil {
			name = s.names.MemberName(ctx, rec.ChatID, rec.UserID)
		}
		if _, err := s.actioner.Dispatch(ctx, rec.ChatID, rec.UserID, name, verdict); err != nil {
			log.Printf("ERROR: Recheck dispatch for %d/%d failed: %v", rec.ChatID, rec.UserID, err)
		}
	}
	return nil
}
