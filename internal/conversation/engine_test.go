package conversation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/example/ridepool/internal/geo"
	"github.com/example/ridepool/internal/models"
	"github.com/example/ridepool/internal/sanitize"
	"github.com/example/ridepool/internal/store"
)

// NOTE: two near-simultaneous turns from the same phone can both read
// "no active session" and both insert one. The store has no locking
// primitive, so per-phone linearizability is explicitly NOT a
// guaranteed property and is deliberately untested here.

type fakeTranslator struct {
	lang       string
	confidence float64
	detectErr  error
}

func (f *fakeTranslator) DetectLanguage(ctx context.Context, text string) (string, float64, error) {
	return f.lang, f.confidence, f.detectErr
}

func (f *fakeTranslator) Translate(ctx context.Context, text, target string) (string, error) {
	return text, nil
}

type fakeGeocoder struct {
	results map[string]*geo.Result
}

func (f *fakeGeocoder) Geocode(ctx context.Context, address string) (*geo.Result, error) {
	return f.results[address], nil
}

type sent struct {
	to   string
	body string
}

type recordingMessenger struct {
	mu    sync.Mutex
	sends []sent
}

func (m *recordingMessenger) Send(ctx context.Context, toPhone, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sends = append(m.sends, sent{to: toPhone, body: body})
	return nil
}

type fakeMatcher struct {
	cand *models.MatchCandidate
}

func (f *fakeMatcher) Find(ctx context.Context, requester models.RiderSession) (*models.MatchCandidate, error) {
	return f.cand, nil
}

type failingStore struct{}

func (failingStore) Search(ctx context.Context, q store.Query) ([]models.RiderSession, error) {
	return nil, errors.New("store down")
}

func (failingStore) Insert(ctx context.Context, s *models.RiderSession) (string, error) {
	return "", errors.New("store down")
}

func (failingStore) Update(ctx context.Context, id string, columns map[string]any) error {
	return errors.New("store down")
}

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestEngine(s store.SessionStore, g Geocoder, m Matcher) (*Engine, *recordingMessenger) {
	msgr := &recordingMessenger{}
	return &Engine{
		Store:      s,
		Geocoder:   g,
		Translator: &fakeTranslator{lang: "en", confidence: 0.99},
		Messenger:  msgr,
		Filter:     sanitize.Noop{},
		Matcher:    m,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:        func() time.Time { return testNow },
	}, msgr
}

func streetAddress(formatted, zip, state string) *geo.Result {
	return &geo.Result{
		FormattedAddress: formatted,
		Types:            []string{"street_address"},
		AddressComponents: []geo.AddressComponent{
			{LongName: zip, Types: []string{"postal_code"}},
			{ShortName: state, Types: []string{"administrative_area_level_1"}},
		},
	}
}

func TestResetShortCircuits(t *testing.T) {
	e, _ := newTestEngine(store.NewMemoryStore(), &fakeGeocoder{}, &fakeMatcher{})
	reply, tok := e.Handle(context.Background(), EncodeToken(Token{State: models.StateSearching}), models.IncomingMessage{From: "+15551234", Body: "RESET"})
	if reply != "DONE" {
		t.Fatalf("expected DONE, got %q", reply)
	}
	if tok != "" {
		t.Fatalf("expected cleared token, got %q", tok)
	}
}

func TestMalformedTokenTreatedAsInitial(t *testing.T) {
	e, _ := newTestEngine(store.NewMemoryStore(), &fakeGeocoder{}, &fakeMatcher{})
	reply, raw := e.Handle(context.Background(), "!!garbage!!", models.IncomingMessage{From: "+15551234", Body: "Hi"})
	if !strings.Contains(reply, "first name") {
		t.Fatalf("expected name prompt, got %q", reply)
	}
	if tok := DecodeToken(raw); tok.State != models.StateAwaitingName {
		t.Fatalf("expected awaiting_name, got %v", tok.State)
	}
}

func TestInitialKnownRiderSkipsToPickup(t *testing.T) {
	m := store.NewMemoryStore()
	if _, err := m.Insert(context.Background(), &models.RiderSession{
		Phone: "+15551234", Name: "Sam", Completed: true,
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	e, _ := newTestEngine(m, &fakeGeocoder{}, &fakeMatcher{})

	reply, raw := e.Handle(context.Background(), "", models.IncomingMessage{From: "+15551234", Body: "Hi"})
	if !strings.Contains(reply, "Sam") {
		t.Fatalf("expected greeting with name, got %q", reply)
	}
	tok := DecodeToken(raw)
	if tok.State != models.StateAwaitingPickup {
		t.Fatalf("expected awaiting_pickup, got %v", tok.State)
	}
	if tok.SessionID == "" {
		t.Fatal("expected a fresh session reference")
	}
	sess, ok := m.Get(tok.SessionID)
	if !ok || sess.Name != "Sam" || !sess.Active() {
		t.Fatalf("expected fresh active session reusing name, got %+v", sess)
	}
}

func TestNameCaptureStripsPrefix(t *testing.T) {
	m := store.NewMemoryStore()
	e, _ := newTestEngine(m, &fakeGeocoder{}, &fakeMatcher{})

	in := EncodeToken(Token{State: models.StateAwaitingName, Language: "en"})
	reply, raw := e.Handle(context.Background(), in, models.IncomingMessage{From: "+15551234", Body: "My name is Sam"})
	if !strings.Contains(reply, "Sam") {
		t.Fatalf("expected reply naming Sam, got %q", reply)
	}
	tok := DecodeToken(raw)
	if tok.State != models.StateAwaitingPickup {
		t.Fatalf("expected awaiting_pickup, got %v", tok.State)
	}
	sess, ok := m.Get(tok.SessionID)
	if !ok || sess.Name != "Sam" {
		t.Fatalf("expected session named Sam, got %+v", sess)
	}
}

func TestPickupAccepted(t *testing.T) {
	m := store.NewMemoryStore()
	id, _ := m.Insert(context.Background(), &models.RiderSession{Phone: "+15551234", Name: "Sam"})
	g := &fakeGeocoder{results: map[string]*geo.Result{
		"1 Main St": streetAddress("1 Main St, Charlottesville, VA 22903", "22903", "VA"),
	}}
	e, _ := newTestEngine(m, g, &fakeMatcher{})

	in := EncodeToken(Token{State: models.StateAwaitingPickup, Language: "en", SessionID: id})
	_, raw := e.Handle(context.Background(), in, models.IncomingMessage{From: "+15551234", Body: "1 Main St"})

	if tok := DecodeToken(raw); tok.State != models.StateAwaitingDestination {
		t.Fatalf("expected awaiting_destination, got %v", tok.State)
	}
	sess, _ := m.Get(id)
	if sess.PickupZip != "22903" || sess.PickupState != "VA" {
		t.Fatalf("pickup fields not persisted: %+v", sess)
	}
	if sess.PickupGeoData == "" {
		t.Fatal("expected geodata payload persisted")
	}
}

func TestPickupRejectsBareZip(t *testing.T) {
	m := store.NewMemoryStore()
	id, _ := m.Insert(context.Background(), &models.RiderSession{Phone: "+15551234", Name: "Sam"})
	g := &fakeGeocoder{results: map[string]*geo.Result{
		"22903": {FormattedAddress: "Charlottesville, VA 22903", Types: []string{"postal_code"}},
	}}
	e, _ := newTestEngine(m, g, &fakeMatcher{})

	in := EncodeToken(Token{State: models.StateAwaitingPickup, Language: "en", SessionID: id})
	reply, raw := e.Handle(context.Background(), in, models.IncomingMessage{From: "+15551234", Body: "22903"})

	if !strings.Contains(reply, "street address") {
		t.Fatalf("expected reprompt, got %q", reply)
	}
	if tok := DecodeToken(raw); tok.State != models.StateAwaitingPickup {
		t.Fatalf("expected to stay in awaiting_pickup, got %v", tok.State)
	}
	if sess, _ := m.Get(id); sess.PickupZip != "" {
		t.Fatalf("rejected address must not persist: %+v", sess)
	}
}

func TestDestinationWithoutMatchEntersSearchPool(t *testing.T) {
	m := store.NewMemoryStore()
	id, _ := m.Insert(context.Background(), &models.RiderSession{
		Phone: "+15551234", Name: "Sam", PickupLocation: "1 Main St", PickupZip: "22903",
	})
	g := &fakeGeocoder{results: map[string]*geo.Result{
		"9 Elm Ave": streetAddress("9 Elm Ave, Washington, DC 20001", "20001", "DC"),
	}}
	e, _ := newTestEngine(m, g, &fakeMatcher{})

	in := EncodeToken(Token{State: models.StateAwaitingDestination, Language: "en", SessionID: id})
	reply, raw := e.Handle(context.Background(), in, models.IncomingMessage{From: "+15551234", Body: "9 Elm Ave"})

	if !strings.Contains(reply, "looking") {
		t.Fatalf("expected search-underway reply, got %q", reply)
	}
	if tok := DecodeToken(raw); tok.State != models.StateSearching {
		t.Fatalf("expected searching, got %v", tok.State)
	}
	sess, _ := m.Get(id)
	if !sess.Searching {
		t.Fatal("expected searching flag set")
	}
	if !sess.CreatedTimestamp.Equal(testNow) {
		t.Fatalf("expected created timestamp stamped at %v, got %v", testNow, sess.CreatedTimestamp)
	}
	if sess.DestinationZip != "20001" {
		t.Fatalf("destination fields not persisted: %+v", sess)
	}
}

func TestDestinationMatchCompletesBothSessions(t *testing.T) {
	m := store.NewMemoryStore()
	reqID, _ := m.Insert(context.Background(), &models.RiderSession{
		Phone: "+15551234", Name: "Sam", PickupLocation: "1 Main St", PickupZip: "22903",
	})
	candID, _ := m.Insert(context.Background(), &models.RiderSession{
		Phone: "+15559876", Name: "Alex", PickupLocation: "3 Oak St", PickupZip: "22903",
		DestinationLocation: "11 Elm Ave", DestinationZip: "20001", Searching: true,
	})
	candidate, _ := m.Get(candID)

	g := &fakeGeocoder{results: map[string]*geo.Result{
		"9 Elm Ave": streetAddress("9 Elm Ave, Washington, DC 20001", "20001", "DC"),
	}}
	matcher := &fakeMatcher{cand: &models.MatchCandidate{Session: candidate, DetourMinutes: 6}}
	e, msgr := newTestEngine(m, g, matcher)

	in := EncodeToken(Token{State: models.StateAwaitingDestination, Language: "en", SessionID: reqID})
	reply, raw := e.Handle(context.Background(), in, models.IncomingMessage{From: "+15551234", Body: "9 Elm Ave"})

	if !strings.Contains(reply, "Alex") {
		t.Fatalf("expected reply naming the match, got %q", reply)
	}
	tok := DecodeToken(raw)
	if tok.State != models.StateInitial {
		t.Fatalf("expected reset to initial, got %v", tok.State)
	}
	if tok.Language != "" {
		t.Fatal("expected language cleared for the next cycle")
	}

	req, _ := m.Get(reqID)
	cand, _ := m.Get(candID)
	if !req.Completed || req.Searching {
		t.Fatalf("requester not completed: %+v", req)
	}
	if !cand.Completed || cand.Searching {
		t.Fatalf("candidate not completed: %+v", cand)
	}

	if len(msgr.sends) != 1 {
		t.Fatalf("expected one out-of-band notification, got %d", len(msgr.sends))
	}
	if msgr.sends[0].to != "+15559876" || !strings.Contains(msgr.sends[0].body, "Sam") {
		t.Fatalf("unexpected notification: %+v", msgr.sends[0])
	}
}

func TestSearchingStillInProgress(t *testing.T) {
	m := store.NewMemoryStore()
	id, _ := m.Insert(context.Background(), &models.RiderSession{
		Phone: "+15551234", Name: "Sam", Searching: true,
	})
	e, _ := newTestEngine(m, &fakeGeocoder{}, &fakeMatcher{})

	in := EncodeToken(Token{State: models.StateSearching, Language: "en", SessionID: id})
	reply, raw := e.Handle(context.Background(), in, models.IncomingMessage{From: "+15551234", Body: "any news?"})

	if !strings.Contains(reply, "Still looking") {
		t.Fatalf("expected still-searching reply, got %q", reply)
	}
	if tok := DecodeToken(raw); tok.State != models.StateSearching {
		t.Fatalf("expected to stay searching, got %v", tok.State)
	}
}

func TestSearchingFallsBackWhenResolvedExternally(t *testing.T) {
	m := store.NewMemoryStore()
	id, _ := m.Insert(context.Background(), &models.RiderSession{
		Phone: "+15551234", Name: "Sam", Completed: true,
	})
	e, _ := newTestEngine(m, &fakeGeocoder{}, &fakeMatcher{})

	in := EncodeToken(Token{State: models.StateSearching, Language: "en", SessionID: id})
	_, raw := e.Handle(context.Background(), in, models.IncomingMessage{From: "+15551234", Body: "any news?"})

	// Initial handling finds the rider's name and starts a new cycle.
	tok := DecodeToken(raw)
	if tok.State != models.StateAwaitingPickup {
		t.Fatalf("expected restart at awaiting_pickup, got %v", tok.State)
	}
	if tok.SessionID == id {
		t.Fatal("expected a fresh session, not the completed one")
	}
}

func TestStoreFailureYieldsRetryReply(t *testing.T) {
	e, _ := newTestEngine(failingStore{}, &fakeGeocoder{}, &fakeMatcher{})
	reply, raw := e.Handle(context.Background(), "", models.IncomingMessage{From: "+15551234", Body: "Hi"})
	if !strings.Contains(reply, "try again") {
		t.Fatalf("expected retry reply, got %q", reply)
	}
	if tok := DecodeToken(raw); tok.State != models.StateInitial {
		t.Fatalf("expected to stay initial for retry, got %v", tok.State)
	}
}

func TestLanguageDetectionConfidenceGate(t *testing.T) {
	m := store.NewMemoryStore()
	e, _ := newTestEngine(m, &fakeGeocoder{}, &fakeMatcher{})

	e.Translator = &fakeTranslator{lang: "es", confidence: 0.5}
	_, raw := e.Handle(context.Background(), "", models.IncomingMessage{From: "+15551111", Body: "Hola"})
	if tok := DecodeToken(raw); tok.Language != "en" {
		t.Fatalf("low confidence must default to en, got %q", tok.Language)
	}

	e.Translator = &fakeTranslator{lang: "es", confidence: 0.95}
	_, raw = e.Handle(context.Background(), "", models.IncomingMessage{From: "+15552222", Body: "Hola"})
	if tok := DecodeToken(raw); tok.Language != "es" {
		t.Fatalf("confident detection must stick, got %q", tok.Language)
	}
}
