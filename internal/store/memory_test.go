package store

import (
	"context"
	"testing"
	"time"

	"github.com/example/ridepool/internal/models"
)

func seedPhones(t *testing.T, m *MemoryStore, phones ...string) []string {
	t.Helper()
	ids := make([]string, 0, len(phones))
	for _, p := range phones {
		id, err := m.Insert(context.Background(), &models.RiderSession{Phone: p, Searching: true})
		if err != nil {
			t.Fatalf("seed %s: %v", p, err)
		}
		ids = append(ids, id)
	}
	return ids
}

func TestMemorySearchFiltersEqAndNeq(t *testing.T) {
	m := NewMemoryStore()
	ids := seedPhones(t, m, "+1", "+2", "+3")

	rows, err := m.Search(context.Background(), Query{Conditions: []Condition{
		Eq(ColPhone, "+2"),
	}})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != ids[1] {
		t.Fatalf("eq filter: expected only %s, got %+v", ids[1], rows)
	}

	rows, err = m.Search(context.Background(), Query{Conditions: []Condition{
		Neq(ColID, ids[0]),
		Eq(ColSearching, true),
	}})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("neq filter: expected 2 rows, got %d", len(rows))
	}
	for _, r := range rows {
		if r.ID == ids[0] {
			t.Fatalf("neq filter leaked excluded row %s", ids[0])
		}
	}
}

func TestMemorySearchPreservesInsertionOrder(t *testing.T) {
	m := NewMemoryStore()
	ids := seedPhones(t, m, "+1", "+2", "+3", "+4")

	rows, err := m.Search(context.Background(), Query{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(rows) != len(ids) {
		t.Fatalf("expected %d rows, got %d", len(ids), len(rows))
	}
	for i, r := range rows {
		if r.ID != ids[i] {
			t.Fatalf("row %d out of order: expected %s, got %s", i, ids[i], r.ID)
		}
	}
}

func TestMemorySearchPagination(t *testing.T) {
	m := NewMemoryStore()
	ids := seedPhones(t, m, "+1", "+2", "+3", "+4")

	rows, err := m.Search(context.Background(), Query{StartRow: 1, RowCount: 2})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(rows) != 2 || rows[0].ID != ids[1] || rows[1].ID != ids[2] {
		t.Fatalf("expected rows 1..2, got %+v", rows)
	}
}

func TestMemoryInsertCopiesAndAssignsID(t *testing.T) {
	m := NewMemoryStore()
	in := &models.RiderSession{Phone: "+1"}
	id, err := m.Insert(context.Background(), in)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if id == "" {
		t.Fatal("expected generated id")
	}

	// Mutating the caller's struct must not leak into the store.
	in.Phone = "+9"
	got, ok := m.Get(id)
	if !ok || got.Phone != "+1" {
		t.Fatalf("store row aliased caller struct: %+v", got)
	}
}

func TestMemoryUpdateColumns(t *testing.T) {
	m := NewMemoryStore()
	id, _ := m.Insert(context.Background(), &models.RiderSession{Phone: "+1", Searching: true})

	stamp := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	err := m.Update(context.Background(), id, map[string]any{
		ColSearching:        false,
		ColExpired:          true,
		ColPickupZip:        "22903",
		ColCreatedTimestamp: stamp,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	got, _ := m.Get(id)
	if got.Searching || !got.Expired || got.PickupZip != "22903" {
		t.Fatalf("columns not applied: %+v", got)
	}
	if !got.CreatedTimestamp.Equal(stamp) {
		t.Fatalf("timestamp not applied: %v", got.CreatedTimestamp)
	}
}

func TestMemoryUpdateRejectsUnknownRowAndColumn(t *testing.T) {
	m := NewMemoryStore()
	if err := m.Update(context.Background(), "missing", map[string]any{ColExpired: true}); err == nil {
		t.Fatal("expected error for unknown row")
	}

	id, _ := m.Insert(context.Background(), &models.RiderSession{Phone: "+1"})
	if err := m.Update(context.Background(), id, map[string]any{"no_such_column": true}); err == nil {
		t.Fatal("expected error for unknown column")
	}
}

func TestColumnRoundTripThroughRowMaps(t *testing.T) {
	in := models.RiderSession{
		Phone:            "+15551234",
		Name:             "Sam",
		Language:         "es",
		PickupZip:        "22903",
		DestinationZip:   "20001",
		CreatedTimestamp: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Searching:        true,
	}
	out := rowToSession("row1", sessionToRow(&in))
	if out.ID != "row1" {
		t.Fatalf("expected row id carried over, got %q", out.ID)
	}
	if out.Phone != in.Phone || out.Name != in.Name || out.Language != in.Language {
		t.Fatalf("identity columns mismatch: %+v", out)
	}
	if out.PickupZip != in.PickupZip || out.DestinationZip != in.DestinationZip {
		t.Fatalf("zip columns mismatch: %+v", out)
	}
	if !out.CreatedTimestamp.Equal(in.CreatedTimestamp) {
		t.Fatalf("timestamp mismatch: %v", out.CreatedTimestamp)
	}
	if !out.Searching {
		t.Fatal("searching flag dropped")
	}
}

func TestRowToSessionCoercesLooseTypes(t *testing.T) {
	s := rowToSession("r", map[string]any{
		ColSearching:        "true",
		ColCompleted:        "false",
		ColCreatedTimestamp: "2024-05-01T12:00:00Z",
		ColPhone:            "+15551234",
	})
	if !s.Searching || s.Completed {
		t.Fatalf("string booleans not coerced: %+v", s)
	}
	if s.CreatedTimestamp.IsZero() {
		t.Fatal("string timestamp not parsed")
	}
}
