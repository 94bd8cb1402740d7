package models

import "time"

// ConversationState identifies where a rider is in the intake flow.
// It travels in the per-turn session token, never in the row store.
type ConversationState int

const (
	StateInitial ConversationState = iota
	StateAwaitingName
	StateAwaitingPickup
	StateAwaitingDestination
	StateSearching
)

func (s ConversationState) String() string {
	switch s {
	case StateInitial:
		return "initial"
	case StateAwaitingName:
		return "awaiting_name"
	case StateAwaitingPickup:
		return "awaiting_pickup"
	case StateAwaitingDestination:
		return "awaiting_destination"
	case StateSearching:
		return "searching"
	default:
		return "unknown"
	}
}

// Valid reports whether s is one of the defined states.
func (s ConversationState) Valid() bool {
	return s >= StateInitial && s <= StateSearching
}

// RiderSession is one ride request attempt, one row in the session store.
// Completed and Expired are terminal; rows are never deleted.
type RiderSession struct {
	ID       string `json:"id"`
	Phone    string `json:"phone"`
	Name     string `json:"name"`
	Language string `json:"language"`

	PickupLocation string `json:"pickup_location"`
	PickupGeoData  string `json:"pickup_geodata"`
	PickupZip      string `json:"pickup_zip"`
	PickupState    string `json:"pickup_state"`

	DestinationLocation string `json:"destination_location"`
	DestinationGeoData  string `json:"destination_geodata"`
	DestinationZip      string `json:"destination_zip"`
	DestinationState    string `json:"destination_state"`

	// CreatedTimestamp is stamped when the destination is captured,
	// marking entry into the search pool.
	CreatedTimestamp time.Time `json:"created_timestamp"`

	Searching bool `json:"searching"`
	Completed bool `json:"completed"`
	Expired   bool `json:"expired"`
}

// Active reports whether the session can still be advanced or matched.
func (s *RiderSession) Active() bool {
	return !s.Completed && !s.Expired
}

// IncomingMessage is one inbound SMS turn.
type IncomingMessage struct {
	From string `json:"from"`
	Body string `json:"body"`
}

// MatchCandidate pairs a candidate session with its detour score.
// It only lives inside the finder; it is never persisted.
type MatchCandidate struct {
	Session       RiderSession `json:"session"`
	DetourMinutes float64      `json:"detour_minutes"`
}
