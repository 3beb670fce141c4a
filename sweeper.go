package songbook

import (
	"context"
	"sync/atomic"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const (
	DefaultSweepInterval    = 1 * time.Hour
	DefaultSweepItemTimeout = 10 * time.Second

	// DefaultAbandonedRequestMaxAge is how long an unconfirmed deletion
	// request lingers before cleanup clears it. Deletion tokens expire
	// after AccountDeletionTokenTTL, so a request older than that can no
	// longer be confirmed.
	DefaultAbandonedRequestMaxAge = AccountDeletionTokenTTL
)

// DeletionSweeper removes accounts whose deletion deadline has passed and
// clears deletion requests that were never confirmed.
//
// Each due account is handled in its own transaction, and the delete re-checks
// the deadline inside that transaction. An account whose deletion was
// cancelled between listing and deleting is skipped, so a login always beats
// the sweep.
type DeletionSweeper struct {
	repo     RepositoryManager
	activity ActivitySink
	logger   Logger
	clock    Clock

	interval      time.Duration
	itemTimeout   time.Duration
	requestMaxAge time.Duration

	busy atomic.Bool
}

func NewDeletionSweeper(repo RepositoryManager, opts ...func(*DeletionSweeper)) *DeletionSweeper {
	s := &DeletionSweeper{
		repo:          repo,
		activity:      noopActivitySink{},
		logger:        defLogger{},
		clock:         SystemClock(),
		interval:      DefaultSweepInterval,
		itemTimeout:   DefaultSweepItemTimeout,
		requestMaxAge: DefaultAbandonedRequestMaxAge,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func WithSweepInterval(d time.Duration) func(*DeletionSweeper) {
	return func(s *DeletionSweeper) {
		if d > 0 {
			s.interval = d
		}
	}
}

func WithSweepItemTimeout(d time.Duration) func(*DeletionSweeper) {
	return func(s *DeletionSweeper) {
		if d > 0 {
			s.itemTimeout = d
		}
	}
}

func WithAbandonedRequestMaxAge(d time.Duration) func(*DeletionSweeper) {
	return func(s *DeletionSweeper) {
		if d > 0 {
			s.requestMaxAge = d
		}
	}
}

func WithSweeperClock(clock Clock) func(*DeletionSweeper) {
	return func(s *DeletionSweeper) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func WithSweeperLogger(logger Logger) func(*DeletionSweeper) {
	return func(s *DeletionSweeper) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithSweeperActivitySink(sink ActivitySink) func(*DeletionSweeper) {
	return func(s *DeletionSweeper) {
		s.activity = normalizeActivitySink(sink)
	}
}

// Run executes the sweep on a ticker until the context is cancelled. A tick
// that arrives while a sweep is still running is skipped.
func (s *DeletionSweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if !s.busy.CompareAndSwap(false, true) {
				s.logger.Debug("sweep still running, skipping tick")
				continue
			}

			s.sweepOnce(ctx)
			s.busy.Store(false)
		}
	}
}

func (s *DeletionSweeper) sweepOnce(ctx context.Context) {
	if n, err := s.SweepDue(ctx); err != nil {
		s.logger.Error("sweep due accounts: %v", err)
	} else if n > 0 {
		s.logger.Info("swept %d due account(s)", n)
	}

	if n, err := s.CleanupAbandonedRequests(ctx); err != nil {
		s.logger.Error("cleanup abandoned requests: %v", err)
	} else if n > 0 {
		s.logger.Info("cleared %d abandoned deletion request(s)", n)
	}
}

// SweepDue deletes every account whose deletion deadline has passed. A
// failure on one account is logged and the sweep moves on. It returns the
// number of accounts actually removed.
func (s *DeletionSweeper) SweepDue(ctx context.Context) (int, error) {
	now := s.clock.Now().UTC()

	due, err := s.repo.Users().ListDueForDeletion(ctx, now)
	if err != nil {
		return 0, goerrors.Wrap(err, goerrors.CategoryInternal, "could not list due accounts")
	}

	deleted := 0
	for _, account := range due {
		select {
		case <-ctx.Done():
			return deleted, goerrors.Wrap(
				ctx.Err(),
				goerrors.CategoryOperation,
				"context cancelled during sweep",
			)
		default:
		}

		ok, err := s.deleteAccount(ctx, account.ID, now)
		if err != nil {
			s.logger.Error("sweep: delete account %s: %v", account.ID, err)
			continue
		}

		if !ok {
			// cancelled between listing and deleting
			s.logger.Debug("sweep: account %s no longer due, skipping", account.ID)
			continue
		}

		deleted++

		s.recordActivity(ctx, ActivityEvent{
			EventType:  ActivityEventAccountDeleted,
			UserID:     account.ID.String(),
			FromState:  DeletionStateScheduled,
			OccurredAt: now,
		})
	}

	return deleted, nil
}

func (s *DeletionSweeper) deleteAccount(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.itemTimeout)
	defer cancel()

	var deleted bool

	err := s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		account, err := s.repo.Users().GetAccountTx(ctx, tx, id)
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return nil
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not load account")
		}

		// re-check inside the transaction: a cancel may have landed
		// since the account was listed
		if account.DeletionScheduledAt == nil || account.DeletionScheduledAt.After(now) {
			return nil
		}

		if _, err := s.repo.FavoriteSongs().DeleteByUserTx(ctx, tx, id); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not delete favorites")
		}

		ok, err := s.repo.Users().DeleteIfDueTx(ctx, tx, id, now)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not delete account")
		}

		deleted = ok
		return nil
	})

	if err != nil {
		return false, err
	}

	return deleted, nil
}

// CleanupAbandonedRequests clears deletion requests that were never confirmed
// within the max age. It returns the number of requests cleared.
func (s *DeletionSweeper) CleanupAbandonedRequests(ctx context.Context) (int, error) {
	now := s.clock.Now().UTC()

	n, err := s.repo.Users().ClearAbandonedRequests(ctx, now, s.requestMaxAge)
	if err != nil {
		return 0, goerrors.Wrap(err, goerrors.CategoryInternal, "could not clear abandoned requests")
	}

	return n, nil
}

func (s *DeletionSweeper) recordActivity(ctx context.Context, event ActivityEvent) {
	if err := normalizeActivitySink(s.activity).Record(ctx, event); err != nil {
		s.logger.Warn("activity sink error: %v", err)
	}
}
