package httpapi

import (
	"bytes"
	"encoding/base64"
	"encoding/xml"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/ridepool/internal/conversation"
	"github.com/example/ridepool/internal/messaging"
	"github.com/example/ridepool/internal/models"
)

// sessionCookie carries the per-turn conversation token. The provider
// replays cookies set on webhook responses, giving us turn continuity
// without any server-side conversation state.
const sessionCookie = "session_data"

type Server struct {
	Engine *conversation.Engine
	Feed   *messaging.WSRegistry
	logger *slog.Logger
	mux    *mux.Router
}

func NewServer(engine *conversation.Engine, feed *messaging.WSRegistry, logger *slog.Logger) *Server {
	s := &Server{Engine: engine, Feed: feed, logger: logger, mux: mux.NewRouter()}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/webhook/sms", s.handleInbound).Methods("POST")
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
		w.Write([]byte("ok"))
	}).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.HandleFunc("/ws/outbound", s.handleWS)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

// twimlReply is the provider-facing response envelope.
type twimlReply struct {
	XMLName xml.Name `xml:"Response"`
	Message string   `xml:"Message"`
}

func (s *Server) handleInbound(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(r.Body)
	if err != nil || len(bytes.TrimSpace(raw)) == 0 {
		// The one hard boundary error: a missing body cannot be
		// degraded into a conversation turn.
		http.Error(w, "missing form encoded body", http.StatusBadRequest)
		return
	}

	values := parseWebhookBody(raw)
	from := values.Get("From")
	body := values.Get("Body")
	if from == "" {
		http.Error(w, "missing sender", http.StatusBadRequest)
		return
	}

	token := ""
	if c, err := r.Cookie(sessionCookie); err == nil {
		token = c.Value
	}

	reply, newToken := s.Engine.Handle(r.Context(), token, models.IncomingMessage{From: from, Body: body})

	cookie := &http.Cookie{Name: sessionCookie, Value: newToken, Path: "/", HttpOnly: true}
	if newToken == "" {
		cookie.MaxAge = -1
	}
	http.SetCookie(w, cookie)

	w.Header().Set("Content-Type", "application/xml")
	w.Write([]byte(xml.Header))
	if err := xml.NewEncoder(w).Encode(twimlReply{Message: reply}); err != nil {
		s.logger.Error("twiml encode failed", "error", err, "request_id", requestID(r.Context()))
	}
}

// parseWebhookBody handles both plain and base64-encoded form bodies;
// some delivery paths re-encode the payload in transit.
func parseWebhookBody(raw []byte) url.Values {
	if v, err := url.ParseQuery(string(raw)); err == nil && v.Get("From") != "" {
		return v
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil {
		return url.Values{}
	}
	v, err := url.ParseQuery(string(decoded))
	if err != nil {
		return url.Values{}
	}
	return v
}

var upgrader = websocket.Upgrader{}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		http.Error(w, "upgrade failed", http.StatusBadRequest)
		return
	}
	s.Feed.Add(conn)
}
