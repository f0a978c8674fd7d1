// Package detector combines the local blacklist index and the reputation
// checker into a single verdict per user.
package detector

import (
	"context"
	"fmt"
	"log"

	"casguard/backend/internal/blacklist"
	"casguard/backend/internal/reputation"
)

// Verdict sources, recorded in the action log and shown in notifications.
const (
	SourceLocal     = "local"
	SourceCache     = "cache"
	SourceCAS       = "cas"
	SourceCASFailed = "cas_failed"
)

// Verdict is the result of evaluating one user.
type Verdict struct {
	Flagged  bool
	Evidence string
	Source   string
}

// Checker is the reputation lookup the engine consults after the local
// index. *reputation.Checker implements it.
type Checker interface {
	Check(ctx context.Context, userID int64) (reputation.Result, error)
}

// Engine evaluates users: local index first, then the cached/remote
// reputation check.
type Engine struct {
	index   *blacklist.Index
	checker Checker
}

// NewEngine Constructor
func NewEngine(index *blacklist.Index, checker Checker) *Engine {
	return &Engine{index: index, checker: checker}
}

// Evaluate returns the verdict for a user. A failed remote lookup degrades
// to a clean verdict with Source=cas_failed; the caller retries on the next
// evaluation gate.
func (e *Engine) Evaluate(ctx context.Context, userID int64) Verdict {
	if entry, ok := e.index.Lookup(userID); ok {
		return Verdict{
			Flagged:  true,
			Evidence: fmt.Sprintf("Local blacklist (%s)", entry.Source),
			Source:   SourceLocal,
		}
	}

	res, err := e.checker.Check(ctx, userID)
	if err != nil {
		log.Printf("WARN: Reputation check for %d failed: %v", userID, err)
		return Verdict{Source: SourceCASFailed}
	}

	v := Verdict{Flagged: res.Flagged, Source: SourceCAS}
	if res.FromCache {
		v.Source = SourceCache
	}
	if res.Flagged {
		v.Evidence = "CAS API (record found)"
	}
	return v
}
