package sweep

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/example/ridepool/internal/models"
	"github.com/example/ridepool/internal/observability"
	"github.com/example/ridepool/internal/store"
)

// DefaultSearchTimeout is how long a session may sit in the search
// pool before the sweep reaps it.
const DefaultSearchTimeout = 10 * time.Minute

// expiredNotice is the fixed apology sent to a reaped rider.
const expiredNotice = "Sorry - we couldn't find you a ride match this time. Text us again any time to start a new search."

// Messenger delivers the apology notification.
type Messenger interface {
	Send(ctx context.Context, toPhone, body string) error
}

// EventPublisher records expiry events for analytics; optional.
type EventPublisher interface {
	PublishExpiry(s models.RiderSession) error
}

// Sweeper reaps searching sessions that outlived the search timeout.
// Rows are processed concurrently and independently: a failure on one
// row is logged and skipped, and the next scheduled run re-attempts
// any row still eligible. Fire-and-forget by design.
type Sweeper struct {
	Store     store.SessionStore
	Messenger Messenger
	Events    EventPublisher
	Timeout   time.Duration
	Logger    *slog.Logger
}

// Sweep scans the search pool once, reaping every row whose
// createdTimestamp is older than the timeout relative to now.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = DefaultSearchTimeout
	}

	rows, err := s.Store.Search(ctx, store.Query{Conditions: []store.Condition{
		store.Eq(store.ColSearching, true),
		store.Eq(store.ColCompleted, false),
		store.Eq(store.ColExpired, false),
	}})
	if err != nil {
		s.Logger.Error("sweep query failed", "error", err)
		return
	}

	var wg sync.WaitGroup
	reaped := 0
	for _, row := range rows {
		if now.Sub(row.CreatedTimestamp) <= timeout {
			continue
		}
		reaped++
		wg.Add(1)
		go func(row models.RiderSession) {
			defer wg.Done()
			s.reap(ctx, row)
		}(row)
	}
	wg.Wait()

	s.Logger.Info("sweep complete", "scanned", len(rows), "eligible", reaped)
}

func (s *Sweeper) reap(ctx context.Context, row models.RiderSession) {
	// Notify first: if the apology cannot be sent the row is left
	// untouched so the next run retries the whole reap.
	if err := s.Messenger.Send(ctx, row.Phone, expiredNotice); err != nil {
		observability.SweepFailures.Inc()
		s.Logger.Error("expiry notification failed", "error", err, "session_id", row.ID)
		return
	}

	err := s.Store.Update(ctx, row.ID, map[string]any{
		store.ColExpired:   true,
		store.ColSearching: false,
	})
	if err != nil {
		observability.SweepFailures.Inc()
		s.Logger.Error("expiry update failed", "error", err, "session_id", row.ID)
		return
	}

	observability.SessionsExpired.Inc()
	if s.Events != nil {
		if err := s.Events.PublishExpiry(row); err != nil {
			s.Logger.Warn("expiry event publish failed", "error", err)
		}
	}
	s.Logger.Info("session expired", "session_id", row.ID, "phone", row.Phone)
}
