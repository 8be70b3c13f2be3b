package dedup

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/oddstack/wagerline/internal/domain"
)

// Tracker is the accept-and-record gate. Independent cadences (per-pick and
// per-combination cycles) can target overlapping identity keys, so the
// check and the record run under one mutex; the repository's conditional
// insert backs that up across processes. The mutex bounds only the storage
// check-and-set, never a network call.
type Tracker struct {
	mu     sync.Mutex
	repo   *Repository
	window time.Duration
	log    zerolog.Logger
}

// NewTracker creates a tracker over the issuance repository.
func NewTracker(repo *Repository, window time.Duration, log zerolog.Logger) *Tracker {
	return &Tracker{
		repo:   repo,
		window: window,
		log:    log.With().Str("component", "dedup_tracker").Logger(),
	}
}

// Window returns the lookback window.
func (t *Tracker) Window() time.Duration {
	return t.window
}

// AcceptAndRecord accepts the recommendation unless its identity key was
// already issued within the lookback window, recording the issuance
// atomically with the check. Returns ErrDuplicate on a window hit and
// ErrConcurrencyConflict when a concurrent writer won the race; callers
// treat both as duplicates.
func (t *Tracker) AcceptAndRecord(rec IssuedRecommendation, now time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := now.Add(-t.window)
	issued, err := t.repo.IssuedWithin(rec.IdentityKey, cutoff)
	if err != nil {
		return err
	}
	if issued {
		return fmt.Errorf("%w: identity %s issued within %s",
			domain.ErrDuplicate, rec.IdentityKey, t.window)
	}
	if rec.IssuedAt.IsZero() {
		rec.IssuedAt = now
	}
	return t.repo.InsertIfAbsent(rec, cutoff)
}

// GC prunes issuances older than twice the window. Expiry is logical (the
// window check); deletion just keeps the ledger small.
func (t *Tracker) GC(now time.Time) (int64, error) {
	deleted, err := t.repo.DeleteOlderThan(now.Add(-2 * t.window))
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		t.log.Debug().Int64("deleted", deleted).Msg("Pruned expired issuances")
	}
	return deleted, nil
}
