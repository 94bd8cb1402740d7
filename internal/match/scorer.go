package match

import (
	"context"
	"math"

	"github.com/example/ridepool/internal/distance"
	"github.com/example/ridepool/internal/models"
)

const (
	// DefaultThresholdMinutes is the maximum combined walking detour
	// two riders will tolerate to share a ride.
	DefaultThresholdMinutes = 10.0

	// UnresolvedLegPenaltyMinutes is added when the pickup leg resolves
	// but the destination leg does not. It keeps a partially-scored
	// candidate ranked below any fully-scored one while staying finite,
	// so it only wins when every candidate fails the destination leg.
	// 1000x the acceptance threshold.
	UnresolvedLegPenaltyMinutes = 10000.0
)

// unreachableDetour marks a candidate whose pickup leg cannot be
// resolved at all. It exceeds any finite threshold, so the candidate
// can be ranked but never accepted.
var unreachableDetour = math.Inf(1)

// Scorer computes the symmetric two-leg walking detour between a
// candidate's itinerary and a requester's: candidate pickup to
// requester pickup, plus candidate destination to requester
// destination, in minutes.
type Scorer struct {
	Distance distance.Client
	// PenaltyMinutes overrides UnresolvedLegPenaltyMinutes when > 0.
	PenaltyMinutes float64
}

// Score returns the detour in minutes. Both legs are independent
// lookups; partial failure degrades the score instead of erroring.
func (s *Scorer) Score(ctx context.Context, candidate, requester models.RiderSession) float64 {
	pickupSec, err := s.Distance.WalkingSeconds(ctx, candidate.PickupLocation, requester.PickupLocation)
	if err != nil {
		return unreachableDetour
	}
	destSec, err := s.Distance.WalkingSeconds(ctx, candidate.DestinationLocation, requester.DestinationLocation)
	if err != nil {
		return pickupSec/60 + s.penalty()
	}
	return (pickupSec + destSec) / 60
}

func (s *Scorer) penalty() float64 {
	if s.PenaltyMinutes > 0 {
		return s.PenaltyMinutes
	}
	return UnresolvedLegPenaltyMinutes
}
