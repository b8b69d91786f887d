package claim

import (
	"errors"
	"sync"

	"github.com/Maphikza/commit-rewards/internal/activity"
)

// ErrClaimInProgress is returned when a session already has a claim in flight.
var ErrClaimInProgress = errors.New("a claim is already in progress for this session")

// Balance is a point-in-time copy of a session's claim state.
type Balance struct {
	ClaimableUnits int64                  `json:"claimable_units"`
	ClaimedUnits   int64                  `json:"claimed_units"`
	Buckets        []activity.DailyBucket `json:"buckets"`
	ClaimInFlight  bool                   `json:"claim_in_flight"`
}

// State holds the claimable and claimed units of one session. Refreshes and claims
// touch it from different goroutines.
type State struct {
	mu        sync.Mutex
	claimable int64
	claimed   int64
	buckets   []activity.DailyBucket
	inFlight  bool
}

func NewState(claimable, claimed int64) *State {
	return &State{claimable: claimable, claimed: claimed}
}

func (s *State) Snapshot() Balance {
	s.mu.Lock()
	defer s.mu.Unlock()
	buckets := make([]activity.DailyBucket, len(s.buckets))
	copy(buckets, s.buckets)
	return Balance{
		ClaimableUnits: s.claimable,
		ClaimedUnits:   s.claimed,
		Buckets:        buckets,
		ClaimInFlight:  s.inFlight,
	}
}

// Refresh overwrites the claimable units with a freshly aggregated total.
// Already claimed units are not subtracted.
func (s *State) Refresh(units int64, buckets []activity.DailyBucket) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if units < 0 {
		units = 0
	}
	s.claimable = units
	s.buckets = buckets
}

// Credit records a confirmed claim of units and empties the claimable balance.
func (s *State) Credit(units int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.claimed += units
	s.claimable = 0
}

// Settle records units confirmed after the claim call itself returned. They are
// taken off whatever is claimable now, never below zero.
func (s *State) Settle(units int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.claimed += units
	s.claimable -= units
	if s.claimable < 0 {
		s.claimable = 0
	}
}

// Begin marks a claim as in flight, failing if one already is.
func (s *State) Begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight {
		return ErrClaimInProgress
	}
	s.inFlight = true
	return nil
}

func (s *State) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight = false
}
