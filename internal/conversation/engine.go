package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/ridepool/internal/geo"
	"github.com/example/ridepool/internal/models"
	"github.com/example/ridepool/internal/observability"
	"github.com/example/ridepool/internal/store"
)

// languageConfidenceFloor gates detected languages; anything at or
// below it defaults the conversation to English.
const languageConfidenceFloor = 0.8

// Geocoder resolves free-text addresses.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (*geo.Result, error)
}

// Translator detects and translates conversation text.
type Translator interface {
	DetectLanguage(ctx context.Context, text string) (code string, confidence float64, err error)
	Translate(ctx context.Context, text, target string) (string, error)
}

// Messenger sends the out-of-band notification to a matched rider.
type Messenger interface {
	Send(ctx context.Context, toPhone, body string) error
}

// Sanitizer cleans rider-supplied text echoed into outbound replies.
type Sanitizer interface {
	Sanitize(ctx context.Context, text string) string
}

// Matcher finds a co-rider for a session entering the search pool.
type Matcher interface {
	Find(ctx context.Context, requester models.RiderSession) (*models.MatchCandidate, error)
}

// EventPublisher records lifecycle events for analytics; optional.
type EventPublisher interface {
	PublishMatch(requester, matched models.RiderSession) error
}

// Engine advances a per-phone conversation one inbound message at a
// time. Each Handle call is stateless: continuity lives in the session
// token the caller replays and in the session store.
type Engine struct {
	Store      store.SessionStore
	Geocoder   Geocoder
	Translator Translator
	Messenger  Messenger
	Filter     Sanitizer
	Matcher    Matcher
	Events     EventPublisher
	Logger     *slog.Logger

	// Now is a test hook; defaults to time.Now.
	Now func() time.Time
}

// Handle processes one inbound message and returns the reply plus the
// token to hand back on the next turn. An empty token tells the caller
// to clear the session cookie. Handle never returns an error: every
// failure degrades to a retry prompt or a state reset.
func (e *Engine) Handle(ctx context.Context, rawToken string, msg models.IncomingMessage) (string, string) {
	if strings.TrimSpace(msg.Body) == "RESET" {
		return replyReset, ""
	}

	tok := DecodeToken(rawToken)
	observability.MessagesTotal.WithLabelValues(tok.State.String()).Inc()

	if tok.State == models.StateInitial {
		tok.Language = e.detectLanguage(ctx, msg.Body)
	}
	if tok.Language == "" {
		tok.Language = "en"
	}

	body := e.normalizeInbound(ctx, tok, msg.Body)

	reply, next := e.dispatch(ctx, tok, msg, body)
	return e.localize(ctx, tok.Language, reply), EncodeToken(next)
}

func (e *Engine) dispatch(ctx context.Context, tok Token, msg models.IncomingMessage, body string) (string, Token) {
	switch tok.State {
	case models.StateAwaitingName:
		return e.handleAwaitingName(ctx, tok, msg, body)
	case models.StateAwaitingPickup:
		return e.handleAwaitingPickup(ctx, tok, msg, body)
	case models.StateAwaitingDestination:
		return e.handleAwaitingDestination(ctx, tok, msg, body)
	case models.StateSearching:
		return e.handleSearching(ctx, tok, msg)
	default:
		return e.handleInitial(ctx, tok, msg)
	}
}

// detectLanguage returns the detected code only when the service is
// confident; otherwise the conversation defaults to English.
func (e *Engine) detectLanguage(ctx context.Context, body string) string {
	code, confidence, err := e.Translator.DetectLanguage(ctx, body)
	if err != nil {
		e.Logger.Warn("language detection failed", "error", err)
		return "en"
	}
	if confidence <= languageConfidenceFloor || code == "" {
		return "en"
	}
	return code
}

// normalizeInbound translates the body to English for non-English
// conversations, except in address states: addresses are not
// meaningfully translatable free text.
func (e *Engine) normalizeInbound(ctx context.Context, tok Token, body string) string {
	if tok.Language == "en" {
		return body
	}
	if tok.State == models.StateAwaitingPickup || tok.State == models.StateAwaitingDestination {
		return body
	}
	translated, err := e.Translator.Translate(ctx, body, "en")
	if err != nil {
		e.Logger.Warn("inbound translation failed", "error", err, "lang", tok.Language)
		return body
	}
	return translated
}

// localize renders an English reply in the rider's language. English
// conversations skip the round trip entirely.
func (e *Engine) localize(ctx context.Context, lang, reply string) string {
	if lang == "" || lang == "en" {
		return reply
	}
	out, err := e.Translator.Translate(ctx, reply, lang)
	if err != nil {
		e.Logger.Warn("outbound translation failed", "error", err, "lang", lang)
		return reply
	}
	return out
}

func (e *Engine) handleInitial(ctx context.Context, tok Token, msg models.IncomingMessage) (string, Token) {
	rows, err := e.Store.Search(ctx, store.Query{Conditions: []store.Condition{
		store.Eq(store.ColPhone, msg.From),
	}})
	if err != nil {
		e.Logger.Error("rider lookup failed", "error", err, "phone", msg.From)
		return replyHighVolume, Token{State: models.StateInitial, Language: tok.Language}
	}

	// Reuse the name from the rider's most recent session, if any.
	name := ""
	for _, r := range rows {
		if r.Name != "" {
			name = r.Name
		}
	}
	if name == "" {
		return replyAskName, Token{State: models.StateAwaitingName, Language: tok.Language}
	}

	id, err := e.Store.Insert(ctx, &models.RiderSession{
		Phone:    msg.From,
		Name:     name,
		Language: tok.Language,
	})
	if err != nil {
		e.Logger.Error("session create failed", "error", err, "phone", msg.From)
		return replyHighVolume, Token{State: models.StateInitial, Language: tok.Language}
	}

	reply := e.Filter.Sanitize(ctx, fmt.Sprintf(welcomeBackFmt, name))
	return reply, Token{State: models.StateAwaitingPickup, Language: tok.Language, SessionID: id}
}

func (e *Engine) handleAwaitingName(ctx context.Context, tok Token, msg models.IncomingMessage, body string) (string, Token) {
	name := strings.TrimSpace(stripNamePrefix(body))
	if name == "" {
		return replyAskName, tok
	}

	id, err := e.Store.Insert(ctx, &models.RiderSession{
		Phone:    msg.From,
		Name:     name,
		Language: tok.Language,
	})
	if err != nil {
		e.Logger.Error("session create failed", "error", err, "phone", msg.From)
		return replyHighVolume, tok
	}

	reply := e.Filter.Sanitize(ctx, fmt.Sprintf(askPickupFmt, name))
	return reply, Token{State: models.StateAwaitingPickup, Language: tok.Language, SessionID: id}
}

func (e *Engine) handleAwaitingPickup(ctx context.Context, tok Token, msg models.IncomingMessage, body string) (string, Token) {
	sess, err := e.resolveSession(ctx, tok, msg.From)
	if err != nil {
		return replyHighVolume, tok
	}
	if sess == nil {
		// Session lost; restart the flow.
		return e.handleInitial(ctx, tok, msg)
	}

	result, ok := e.geocodeAcceptable(ctx, body)
	if !ok {
		return replyInvalidAddress, tok
	}

	err = e.Store.Update(ctx, sess.ID, map[string]any{
		store.ColPickupLocation: result.FormattedAddress,
		store.ColPickupGeoData:  marshalGeoData(result),
		store.ColPickupZip:      result.PostalCode(),
		store.ColPickupState:    result.State(),
	})
	if err != nil {
		// Persistence failure reads the same as a bad address: reprompt.
		e.Logger.Error("pickup update failed", "error", err, "session_id", sess.ID)
		return replyInvalidAddress, tok
	}

	return replyAskDestination, Token{State: models.StateAwaitingDestination, Language: tok.Language, SessionID: sess.ID}
}

func (e *Engine) handleAwaitingDestination(ctx context.Context, tok Token, msg models.IncomingMessage, body string) (string, Token) {
	sess, err := e.resolveSession(ctx, tok, msg.From)
	if err != nil {
		return replyHighVolume, tok
	}
	if sess == nil {
		return e.handleInitial(ctx, tok, msg)
	}

	result, ok := e.geocodeAcceptable(ctx, body)
	if !ok {
		return replyInvalidAddress, tok
	}

	now := e.now()
	err = e.Store.Update(ctx, sess.ID, map[string]any{
		store.ColDestinationLocation: result.FormattedAddress,
		store.ColDestinationGeoData:  marshalGeoData(result),
		store.ColDestinationZip:      result.PostalCode(),
		store.ColDestinationState:    result.State(),
		store.ColSearching:           true,
		store.ColCreatedTimestamp:    now,
	})
	if err != nil {
		e.Logger.Error("destination update failed", "error", err, "session_id", sess.ID)
		return replyInvalidAddress, tok
	}

	sess.DestinationLocation = result.FormattedAddress
	sess.DestinationZip = result.PostalCode()
	sess.DestinationState = result.State()
	sess.Searching = true
	sess.CreatedTimestamp = now

	searchingToken := Token{State: models.StateSearching, Language: tok.Language, SessionID: sess.ID}

	candidate, err := e.Matcher.Find(ctx, *sess)
	if err != nil {
		e.Logger.Error("match search failed", "error", err, "session_id", sess.ID)
		return replySearching, searchingToken
	}
	if candidate == nil {
		return replySearching, searchingToken
	}

	return e.completeMatch(ctx, tok, sess, candidate, searchingToken)
}

// completeMatch marks both sides done, notifies the matched rider
// out-of-band, and resets the requester's conversation for the next
// cycle (language included, so it is re-detected next time).
func (e *Engine) completeMatch(ctx context.Context, tok Token, sess *models.RiderSession, candidate *models.MatchCandidate, searchingToken Token) (string, Token) {
	terminal := map[string]any{
		store.ColCompleted: true,
		store.ColSearching: false,
	}
	if err := e.Store.Update(ctx, sess.ID, terminal); err != nil {
		// Requester still searching; the candidate stays available too.
		e.Logger.Error("match commit failed", "error", err, "session_id", sess.ID)
		return replySearching, searchingToken
	}
	if err := e.Store.Update(ctx, candidate.Session.ID, terminal); err != nil {
		e.Logger.Error("match commit failed for candidate", "error", err, "session_id", candidate.Session.ID)
	}

	notification := e.Filter.Sanitize(ctx, fmt.Sprintf(matchNotifyFmt, sess.Name))
	notification = e.localize(ctx, candidate.Session.Language, notification)
	if err := e.Messenger.Send(ctx, candidate.Session.Phone, notification); err != nil {
		e.Logger.Error("match notification failed", "error", err, "phone", candidate.Session.Phone)
	}

	if e.Events != nil {
		if err := e.Events.PublishMatch(*sess, candidate.Session); err != nil {
			e.Logger.Warn("match event publish failed", "error", err)
		}
	}
	observability.MatchesTotal.Inc()
	e.Logger.Info("riders matched",
		"session_id", sess.ID,
		"candidate_id", candidate.Session.ID,
		"detour_minutes", candidate.DetourMinutes,
	)

	reply := e.Filter.Sanitize(ctx, fmt.Sprintf(matchFoundFmt, candidate.Session.Name))
	return reply, Token{State: models.StateInitial}
}

func (e *Engine) handleSearching(ctx context.Context, tok Token, msg models.IncomingMessage) (string, Token) {
	sess, err := e.resolveSession(ctx, tok, msg.From)
	if err != nil {
		return replyHighVolume, tok
	}
	if sess == nil || !sess.Searching {
		// Something resolved or reaped the search externally.
		return e.handleInitial(ctx, Token{State: models.StateInitial, Language: tok.Language}, msg)
	}
	return replyStillSearching, tok
}

// resolveSession finds the rider's open session: by the token's
// session id when present, otherwise the newest active row for the
// phone. A nil session with nil error means the flow should restart.
func (e *Engine) resolveSession(ctx context.Context, tok Token, phone string) (*models.RiderSession, error) {
	if tok.SessionID != "" {
		rows, err := e.Store.Search(ctx, store.Query{Conditions: []store.Condition{
			store.Eq(store.ColID, tok.SessionID),
		}})
		if err != nil {
			e.Logger.Error("session lookup failed", "error", err, "session_id", tok.SessionID)
			return nil, err
		}
		if len(rows) > 0 && rows[0].Active() {
			s := rows[0]
			return &s, nil
		}
		return nil, nil
	}

	rows, err := e.Store.Search(ctx, store.Query{Conditions: []store.Condition{
		store.Eq(store.ColPhone, phone),
		store.Eq(store.ColCompleted, false),
		store.Eq(store.ColExpired, false),
	}})
	if err != nil {
		e.Logger.Error("session lookup failed", "error", err, "phone", phone)
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	s := rows[len(rows)-1]
	return &s, nil
}

// geocodeAcceptable geocodes and validates an address. Lookup errors
// read the same as a rejected address: the rider is reprompted.
func (e *Engine) geocodeAcceptable(ctx context.Context, address string) (*geo.Result, bool) {
	result, err := e.Geocoder.Geocode(ctx, address)
	if err != nil {
		e.Logger.Warn("geocode failed", "error", err)
		return nil, false
	}
	if !geo.IsAcceptable(result) {
		observability.AddressesRejected.Inc()
		return nil, false
	}
	return result, true
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func stripNamePrefix(body string) string {
	const prefix = "my name is"
	if len(body) >= len(prefix) && strings.EqualFold(body[:len(prefix)], prefix) {
		return body[len(prefix):]
	}
	return body
}

func marshalGeoData(r *geo.Result) string {
	b, err := json.Marshal(r)
	if err != nil {
		return ""
	}
	return string(b)
}
