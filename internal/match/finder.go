package match

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/example/ridepool/internal/models"
	"github.com/example/ridepool/internal/observability"
	"github.com/example/ridepool/internal/store"
)

// Finder selects the best co-rider for a requester who just entered
// the search pool. Candidates must share the requester's pickup and
// destination zips and still be searching.
type Finder struct {
	Store            store.SessionStore
	Scorer           *Scorer
	ThresholdMinutes float64
	Logger           *slog.Logger
}

// Find returns the lowest-detour candidate under the threshold, or nil
// when none qualifies. Candidate scoring fans out concurrently; one
// candidate's distance failure only degrades that candidate.
func (f *Finder) Find(ctx context.Context, requester models.RiderSession) (*models.MatchCandidate, error) {
	start := time.Now()
	defer func() {
		observability.MatchLatency.Observe(time.Since(start).Seconds())
	}()

	candidates, err := f.Store.Search(ctx, store.Query{Conditions: []store.Condition{
		store.Neq(store.ColID, requester.ID),
		store.Eq(store.ColPickupZip, requester.PickupZip),
		store.Eq(store.ColDestinationZip, requester.DestinationZip),
		store.Eq(store.ColSearching, true),
	}})
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	scores := make([]float64, len(candidates))
	var wg sync.WaitGroup
	for i := range candidates {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			scores[i] = f.Scorer.Score(ctx, candidates[i], requester)
		}(i)
	}
	wg.Wait()

	threshold := f.ThresholdMinutes
	if threshold <= 0 {
		threshold = DefaultThresholdMinutes
	}

	// Strict less-than keeps the first-encountered candidate on ties.
	best := -1
	for i, sc := range scores {
		if sc >= threshold {
			continue
		}
		if best < 0 || sc < scores[best] {
			best = i
		}
	}
	if best < 0 {
		f.Logger.Debug("no candidate under threshold",
			"candidates", len(candidates),
			"pickup_zip", requester.PickupZip,
			"destination_zip", requester.DestinationZip,
		)
		return nil, nil
	}
	return &models.MatchCandidate{Session: candidates[best], DetourMinutes: scores[best]}, nil
}
