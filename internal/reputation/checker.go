package reputation

import (
	"context"
	"log"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"
)

// nowFunc is swapped in tests.
var nowFunc = time.Now

// Result is the outcome of a reputation check.
type Result struct {
	Flagged   bool
	FromCache bool
}

// Checker answers reputation queries cache-first, collapsing concurrent
// misses for the same user into a single remote lookup.
type Checker struct {
	cache  Cache
	lookup Lookup
	group  singleflight.Group
}

// NewChecker Constructor
func NewChecker(cache Cache, lookup Lookup) *Checker {
	return &Checker{cache: cache, lookup: lookup}
}

// Check returns the user's reputation. Cache errors degrade to a remote
// lookup; a remote failure returns the error and caches nothing, so the next
// evaluation retries.
func (c *Checker) Check(ctx context.Context, userID int64) (Result, error) {
	cached, found, err := c.cache.Get(ctx, userID)
	if err != nil {
		log.Printf("WARN: Reputation cache read for %d failed: %v", userID, err)
	} else if found {
		return Result{Flagged: cached.Flagged, FromCache: true}, nil
	}

	key := strconv.FormatInt(userID, 10)
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		flagged, err := c.lookup.IsFlagged(ctx, userID)
		if err != nil {
			return nil, err
		}
		entry := CachedVerdict{Flagged: flagged, CheckedAt: nowFunc()}
		if flagged {
			entry.Evidence = "CAS API (record found)"
		}
		if err := c.cache.Put(ctx, userID, entry); err != nil {
			log.Printf("WARN: Reputation cache write for %d failed: %v", userID, err)
		}
		return flagged, nil
	})
	if err != nil {
		return Result{}, err
	}
	return Result{Flagged: v.(bool)}, nil
}
