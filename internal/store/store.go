package store

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/example/ridepool/internal/models"
)

// Column names shared by every backend. The grid backend uses them as
// remote column headers, the postgres backend as SQL column names.
const (
	ColID                  = "id"
	ColPhone               = "phone"
	ColName                = "name"
	ColLanguage            = "language"
	ColPickupLocation      = "pickup_location"
	ColPickupGeoData       = "pickup_geodata"
	ColPickupZip           = "pickup_zip"
	ColPickupState         = "pickup_state"
	ColDestinationLocation = "destination_location"
	ColDestinationGeoData  = "destination_geodata"
	ColDestinationZip      = "destination_zip"
	ColDestinationState    = "destination_state"
	ColCreatedTimestamp    = "created_timestamp"
	ColSearching           = "searching"
	ColCompleted           = "completed"
	ColExpired             = "expired"
)

// Op is a filter comparison operator.
type Op string

const (
	OpEq  Op = "eq"
	OpNeq Op = "neq"
)

// Condition is one column predicate; a Query is their conjunction.
type Condition struct {
	Column string
	Op     Op
	Value  any
}

func Eq(column string, value any) Condition {
	return Condition{Column: column, Op: OpEq, Value: value}
}

func Neq(column string, value any) Condition {
	return Condition{Column: column, Op: OpNeq, Value: value}
}

// Query is a conjunction of conditions with optional pagination.
type Query struct {
	Conditions []Condition
	StartRow   int
	RowCount   int
}

// SessionStore defines persistence operations for rider sessions.
// All three operations may fail transiently; callers degrade rather
// than treat a failure as fatal.
type SessionStore interface {
	Search(ctx context.Context, q Query) ([]models.RiderSession, error)
	Insert(ctx context.Context, s *models.RiderSession) (string, error)
	Update(ctx context.Context, id string, columns map[string]any) error
}

func newID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// columnValue extracts a single column from a session for filtering.
func columnValue(s *models.RiderSession, column string) (any, bool) {
	switch column {
	case ColID:
		return s.ID, true
	case ColPhone:
		return s.Phone, true
	case ColName:
		return s.Name, true
	case ColLanguage:
		return s.Language, true
	case ColPickupLocation:
		return s.PickupLocation, true
	case ColPickupGeoData:
		return s.PickupGeoData, true
	case ColPickupZip:
		return s.PickupZip, true
	case ColPickupState:
		return s.PickupState, true
	case ColDestinationLocation:
		return s.DestinationLocation, true
	case ColDestinationGeoData:
		return s.DestinationGeoData, true
	case ColDestinationZip:
		return s.DestinationZip, true
	case ColDestinationState:
		return s.DestinationState, true
	case ColCreatedTimestamp:
		return s.CreatedTimestamp, true
	case ColSearching:
		return s.Searching, true
	case ColCompleted:
		return s.Completed, true
	case ColExpired:
		return s.Expired, true
	}
	return nil, false
}

// applyColumns mutates a session from an update column map.
func applyColumns(s *models.RiderSession, columns map[string]any) error {
	for column, v := range columns {
		switch column {
		case ColPhone:
			s.Phone = asString(v)
		case ColName:
			s.Name = asString(v)
		case ColLanguage:
			s.Language = asString(v)
		case ColPickupLocation:
			s.PickupLocation = asString(v)
		case ColPickupGeoData:
			s.PickupGeoData = asString(v)
		case ColPickupZip:
			s.PickupZip = asString(v)
		case ColPickupState:
			s.PickupState = asString(v)
		case ColDestinationLocation:
			s.DestinationLocation = asString(v)
		case ColDestinationGeoData:
			s.DestinationGeoData = asString(v)
		case ColDestinationZip:
			s.DestinationZip = asString(v)
		case ColDestinationState:
			s.DestinationState = asString(v)
		case ColCreatedTimestamp:
			s.CreatedTimestamp = asTime(v)
		case ColSearching:
			s.Searching = asBool(v)
		case ColCompleted:
			s.Completed = asBool(v)
		case ColExpired:
			s.Expired = asBool(v)
		default:
			return fmt.Errorf("store: unknown column %q", column)
		}
	}
	return nil
}

// sessionToRow flattens a session into a column map for the grid backend.
func sessionToRow(s *models.RiderSession) map[string]any {
	row := map[string]any{
		ColPhone:               s.Phone,
		ColName:                s.Name,
		ColLanguage:            s.Language,
		ColPickupLocation:      s.PickupLocation,
		ColPickupGeoData:       s.PickupGeoData,
		ColPickupZip:           s.PickupZip,
		ColPickupState:         s.PickupState,
		ColDestinationLocation: s.DestinationLocation,
		ColDestinationGeoData:  s.DestinationGeoData,
		ColDestinationZip:      s.DestinationZip,
		ColDestinationState:    s.DestinationState,
		ColSearching:           s.Searching,
		ColCompleted:           s.Completed,
		ColExpired:             s.Expired,
	}
	if !s.CreatedTimestamp.IsZero() {
		row[ColCreatedTimestamp] = s.CreatedTimestamp.Format(time.RFC3339)
	}
	return row
}

// rowToSession rebuilds a session from a grid response row. Remote
// grids are loosely typed, so booleans may arrive as strings.
func rowToSession(id string, row map[string]any) models.RiderSession {
	s := models.RiderSession{ID: id}
	for column, v := range row {
		if column == gridRowIDKey {
			continue
		}
		_ = applyColumns(&s, map[string]any{column: v})
	}
	return s
}

func asString(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func asBool(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		b, _ := strconv.ParseBool(strings.TrimSpace(t))
		return b
	}
	return false
}

func asTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case string:
		if ts, err := time.Parse(time.RFC3339, t); err == nil {
			return ts
		}
	}
	return time.Time{}
}
