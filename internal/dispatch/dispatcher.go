// Package dispatch turns verdicts into chat actions. It owns the per-pair
// state machine: deduplication, whitelist overrides, mode handling and the
// audit trail.
package dispatch

import (
	"context"
	"fmt"
	"log"
	"time"

	"casguard/backend/internal/detector"
	"casguard/backend/internal/models"
)

// Store is the slice of storage the dispatcher needs.
type Store interface {
	GetChatPolicy(chatID int64) (*models.ChatPolicy, error)
	AddToWhitelist(chatID, userID int64) error
	GetSeenRecord(chatID, userID int64) (*models.SeenRecord, error)
	SaveSeenRecord(rec *models.SeenRecord) error
	AppendActionLog(entry *models.ActionLogEntry) error
	CachedMessageIDs(chatID, userID int64) ([]int, error)
	ClearCachedMessages(chatID, userID int64) error
	AddErrorLog(source string, chatID, userID int64, message string) error
}

// Transport is the chat platform the dispatcher acts through. The Telegram
// bot implements it; tests use fakes.
type Transport interface {
	Notify(ctx context.Context, chatID, userID int64, fullName, reason string) error
	Ban(ctx context.Context, chatID, userID int64) error
	Unban(ctx context.Context, chatID, userID int64) error
	DeleteMessages(ctx context.Context, chatID int64, messageIDs []int) error
	AnnounceBan(ctx context.Context, chatID, userID int64, fullName, reason string) error
}

// Events receives every appended action-log entry, e.g. the dashboard feed.
type Events interface {
	ActionLogged(entry models.ActionLogEntry)
}

// Outcome reports what Dispatch did for a pair.
type Outcome struct {
	Action string
	Failed bool
}

// Dispatcher applies chat policy to verdicts. Work for one (chat, user)
// pair is serialized; different pairs run in parallel.
type Dispatcher struct {
	store          Store
	transport      Transport
	audit          *AuditFile
	events         Events
	defaultRecheck time.Duration
	locks          pairLocks
	now            func() time.Time
}

// NewDispatcher Constructor. audit and events may be nil.
func NewDispatcher(store Store, transport Transport, audit *AuditFile, events Events, defaultRecheck time.Duration) *Dispatcher {
	return &Dispatcher{
		store:          store,
		transport:      transport,
		audit:          audit,
		events:         events,
		defaultRecheck: defaultRecheck,
		locks:          newPairLocks(),
		now:            time.Now,
	}
}

// Dispatch advances the pair's state for the given verdict. The seen record
// is only saved after the action-log append succeeds, so a persistence
// failure leaves the pair eligible for a retry.
func (d *Dispatcher) Dispatch(ctx context.Context, chatID, userID int64, fullName string, verdict detector.Verdict) (Outcome, error) {
	unlock := d.locks.lock(chatID, userID)
	defer unlock()

	policy, err := d.store.GetChatPolicy(chatID)
	if err != nil {
		return Outcome{}, err
	}
	now := d.now()

	if policy.IsWhitelisted(userID) {
		rec := d.nextRecord(chatID, userID, now)
		rec.LastCheckedAt = now
		rec.LastVerdict = "whitelisted"
		rec.Flagged = false
		return Outcome{Action: models.ActionNone}, d.store.SaveSeenRecord(rec)
	}

	prev, err := d.store.GetSeenRecord(chatID, userID)
	if err != nil {
		return Outcome{}, err
	}

	rec := prev
	if rec == nil {
		rec = &models.SeenRecord{ChatID: chatID, UserID: userID, FirstSeenAt: now}
	}
	rec.LastCheckedAt = now
	rec.LastVerdict = verdict.Source
	rec.Flagged = verdict.Flagged

	if !verdict.Flagged {
		return Outcome{Action: models.ActionNone}, d.store.SaveSeenRecord(rec)
	}

	action := models.ActionNotify
	if policy.Mode == models.ModeQuickban {
		action = models.ActionQuickban
	}

	if d.isDuplicate(prev, action, policy, now) {
		return Outcome{Action: models.ActionNone}, d.store.SaveSeenRecord(rec)
	}

	failed := d.execute(ctx, chatID, userID, fullName, action, verdict, policy.Silent)

	if d.audit != nil {
		d.audit.Append(now, chatID, userID, fullName, string(policy.Mode), verdict.Evidence, action)
	}
	entry := &models.ActionLogEntry{
		ChatID: chatID,
		UserID: userID,
		Action: action,
		Mode:   string(policy.Mode),
		Reason: verdict.Evidence,
		Source: verdict.Source,
		Failed: failed,
	}
	if err := d.store.AppendActionLog(entry); err != nil {
		return Outcome{}, fmt.Errorf("append action log: %w", err)
	}
	if d.events != nil {
		d.events.ActionLogged(*entry)
	}

	rec.LastAction = action
	rec.LastActionAt = now
	rec.ActionFailed = failed
	if err := d.store.SaveSeenRecord(rec); err != nil {
		return Outcome{}, err
	}
	return Outcome{Action: action, Failed: failed}, nil
}

// Unban whitelists the user in this chat and lifts the platform ban. The
// whitelist write is unconditional; the platform unban is best-effort and
// never rolls it back.
func (d *Dispatcher) Unban(ctx context.Context, chatID, userID int64) error {
	unlock := d.locks.lock(chatID, userID)
	defer unlock()

	if err := d.store.AddToWhitelist(chatID, userID); err != nil {
		return err
	}

	failed := false
	if err := d.transport.Unban(ctx, chatID, userID); err != nil {
		failed = true
		log.Printf("WARN: Unban of %d in chat %d failed: %v", userID, chatID, err)
		d.logError("unban", chatID, userID, err)
	}

	now := d.now()
	entry := &models.ActionLogEntry{
		ChatID: chatID,
		UserID: userID,
		Action: models.ActionUnban,
		Reason: "whitelisted by admin",
		Source: "admin",
		Failed: failed,
	}
	if err := d.store.AppendActionLog(entry); err != nil {
		return err
	}
	if d.events != nil {
		d.events.ActionLogged(*entry)
	}

	rec := d.nextRecord(chatID, userID, now)
	rec.LastCheckedAt = now
	rec.LastVerdict = "whitelisted"
	rec.Flagged = false
	rec.LastAction = models.ActionUnban
	rec.LastActionAt = now
	rec.ActionFailed = failed
	return d.store.SaveSeenRecord(rec)
}

// isDuplicate reports whether the same action already ran for this pair
// within the chat's recheck interval. A changed verdict or mode acts again.
func (d *Dispatcher) isDuplicate(prev *models.SeenRecord, action string, policy *models.ChatPolicy, now time.Time) bool {
	if prev == nil || !prev.Flagged || prev.LastAction != action {
		return false
	}
	return now.Sub(prev.LastActionAt) < policy.RecheckInterval(d.defaultRecheck)
}

// execute runs the platform side of an action. Transport failures are
// absorbed into the failed flag so the audit trail and seen record still
// advance.
func (d *Dispatcher) execute(ctx context.Context, chatID, userID int64, fullName, action string, verdict detector.Verdict, silent bool) bool {
	failed := false

	switch action {
	case models.ActionNotify:
		if silent {
			return false
		}
		if err := d.transport.Notify(ctx, chatID, userID, fullName, verdict.Evidence); err != nil {
			failed = true
			log.Printf("ERROR: Failed to notify chat %d about user %d: %v", chatID, userID, err)
			d.logError("notify", chatID, userID, err)
		}
	case models.ActionQuickban:
		if err := d.transport.Ban(ctx, chatID, userID); err != nil {
			failed = true
			log.Printf("ERROR: Failed to ban user %d in chat %d: %v", userID, chatID, err)
			d.logError("ban", chatID, userID, err)
		}

		ids, err := d.store.CachedMessageIDs(chatID, userID)
		if err != nil {
			log.Printf("WARN: Failed to load cached messages for %d/%d: %v", chatID, userID, err)
		} else if len(ids) > 0 {
			if err := d.transport.DeleteMessages(ctx, chatID, ids); err != nil {
				failed = true
				log.Printf("ERROR: Failed to delete messages of user %d in chat %d: %v", userID, chatID, err)
				d.logError("delete", chatID, userID, err)
			}
		}
		if err := d.store.ClearCachedMessages(chatID, userID); err != nil {
			log.Printf("WARN: Failed to clear message cache for %d/%d: %v", chatID, userID, err)
		}

		if !silent {
			if err := d.transport.AnnounceBan(ctx, chatID, userID, fullName, verdict.Evidence); err != nil {
				log.Printf("WARN: Failed to announce ban of %d in chat %d: %v", userID, chatID, err)
			}
		}
	}
	return failed
}

func (d *Dispatcher) nextRecord(chatID, userID int64, now time.Time) *models.SeenRecord {
	rec, err := d.store.GetSeenRecord(chatID, userID)
	if err != nil || rec == nil {
		return &models.SeenRecord{ChatID: chatID, UserID: userID, FirstSeenAt: now}
	}
	return rec
}

func (d *Dispatcher) logError(source string, chatID, userID int64, err error) {
	if dbErr := d.store.AddErrorLog(source, chatID, userID, err.Error()); dbErr != nil {
		log.Printf("ERROR: Failed to persist error log for %d/%d: %v", chatID, userID, dbErr)
	}
}
