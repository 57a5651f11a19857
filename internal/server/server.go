// Package server provides HTTP and WebSocket handlers
package server

import (
	"context"
	"encoding/json"
	"image"
	"net/http"
	"strconv"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/GriffinCanCode/snapdiff/internal/baseline"
	"github.com/GriffinCanCode/snapdiff/internal/capture"
	apperrors "github.com/GriffinCanCode/snapdiff/internal/errors"
	"github.com/GriffinCanCode/snapdiff/internal/ledger"
	"github.com/GriffinCanCode/snapdiff/internal/orchestrator"
	"github.com/GriffinCanCode/snapdiff/internal/orchestrator/history"
	"github.com/GriffinCanCode/snapdiff/internal/pixel"
	"github.com/GriffinCanCode/snapdiff/internal/resilience"
	"github.com/GriffinCanCode/snapdiff/internal/trace"
)

// Engine is the comparison surface the server exposes.
type Engine interface {
	Compare(ctx context.Context, req orchestrator.Request) (*orchestrator.Outcome, error)
	BaselineKeyExists(key baseline.Key) (bool, error)
	DeleteBaselineKey(key baseline.Key) error
	BaselineDirectory() string
	Policy() pixel.Policy
	SetPolicy(p pixel.Policy) error
}

// Feed supplies recorded outcomes.
type Feed interface {
	Recent(n int) []history.Outcome
	Counts() map[history.Status]int
	Events() <-chan history.Outcome
	Latest(name, variant string) (history.Outcome, bool)
}

// Ledger supplies outcomes persisted across restarts.
type Ledger interface {
	Recent(ctx context.Context, limit int) ([]ledger.Record, error)
	ForKey(ctx context.Context, name, variant string, limit int) ([]ledger.Record, error)
	Counts(ctx context.Context) (map[string]int, error)
}

// Message types.
type Message struct {
	Type string `json:"type"`
}

type OutcomeMessage struct {
	Type    string          `json:"type"`
	Outcome history.Outcome `json:"outcome"`
	Passed  bool            `json:"passed"`
}

type RecentMessage struct {
	Type     string            `json:"type"`
	Outcomes []history.Outcome `json:"outcomes"`
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// MaskSpec is the wire form of a capture.Region.
type MaskSpec struct {
	Selector string `json:"selector,omitempty"`
	X        int    `json:"x,omitempty"`
	Y        int    `json:"y,omitempty"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
}

// CompareRequest is the body of POST /api/compare.
type CompareRequest struct {
	Name           string     `json:"name"`
	Variant        string     `json:"variant,omitempty"`
	Target         string     `json:"target,omitempty"`
	URL            string     `json:"url,omitempty"`
	Masks          []MaskSpec `json:"masks,omitempty"`
	Viewport       string     `json:"viewport,omitempty"` // preset name or WIDTHxHEIGHT
	MaxDiffPercent *float64   `json:"max_diff_percent,omitempty"`
}

// CompareResponse wraps an outcome with its verdict.
type CompareResponse struct {
	*history.Outcome
	Passed bool `json:"passed"`
}

// PolicyBody is the wire form of pixel.Policy.
type PolicyBody struct {
	ChannelTolerance int     `json:"channel_tolerance"`
	MaxDiffPercent   float64 `json:"max_diff_percent"`
	Workers          int     `json:"workers"`
}

// Server handles HTTP and WebSocket connections.
type Server struct {
	engine  Engine
	feed    Feed
	ledger  Ledger
	breaker *resilience.Breaker
	mu      sync.RWMutex
	conns   map[*websocket.Conn]struct{}
}

// New creates a new server and starts broadcasting feed events.
func New(engine Engine, feed Feed) *Server {
	s := &Server{
		engine: engine,
		feed:   feed,
		conns:  make(map[*websocket.Conn]struct{}),
	}
	go s.broadcastOutcomes()
	return s
}

// WithBreaker reports the capture circuit breaker on /healthz.
func (s *Server) WithBreaker(b *resilience.Breaker) *Server {
	s.breaker = b
	return s
}

// WithLedger serves persisted history from l.
func (s *Server) WithLedger(l Ledger) *Server {
	s.ledger = l
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)
	r.Use(trace.Middleware)

	r.Get("/healthz", s.handleHealth)
	r.Get("/ws", s.handleWebSocket)

	r.Route("/api", func(r chi.Router) {
		r.Post("/compare", s.handleCompare)
		r.Get("/baselines/{name}", s.handleBaselineExists)
		r.Delete("/baselines/{name}", s.handleBaselineDelete)
		r.Get("/baselines/{name}/history", s.handleBaselineHistory)
		r.Get("/baseline-dir", s.handleBaselineDir)
		r.Get("/outcomes", s.handleOutcomes)
		r.Get("/history", s.handleHistory)
		r.Get("/policy", s.handlePolicyGet)
		r.Put("/policy", s.handlePolicyPut)
	})
	return r
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	body := map[string]any{"status": "ok"}
	if s.breaker != nil {
		body["capture_breaker"] = s.breaker.Stats()
		if s.breaker.State() == resilience.Open {
			body["status"] = "degraded"
		}
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	var body CompareRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxRequestBytes)).Decode(&body); err != nil {
		writeError(w, apperrors.Wrap(err, apperrors.CodeInvalidArgument, "malformed compare request"))
		return
	}
	req, err := body.toRequest()
	if err != nil {
		writeError(w, err)
		return
	}

	out, err := s.engine.Compare(r.Context(), req)
	if err != nil {
		writeOutcomeError(w, out, err)
		return
	}
	writeJSON(w, http.StatusOK, CompareResponse{Outcome: out, Passed: out.Passed()})
}

func (b CompareRequest) toRequest() (orchestrator.Request, error) {
	v, err := baseline.ParseVariant(b.Variant)
	if err != nil {
		return orchestrator.Request{}, apperrors.Wrap(err, apperrors.CodeInvalidArgument, "unknown variant")
	}
	masks := make([]capture.Region, 0, len(b.Masks))
	for i, m := range b.Masks {
		if m.Width < 0 || m.Height < 0 || (m.Selector == "" && (m.Width == 0 || m.Height == 0)) {
			return orchestrator.Request{}, apperrors.Newf(apperrors.CodeInvalidArgument,
				"mask %d: size %dx%d must be positive", i, m.Width, m.Height)
		}
		masks = append(masks, capture.Region{
			Selector: m.Selector,
			Rect:     image.Rect(m.X, m.Y, m.X+m.Width, m.Y+m.Height),
		})
	}
	vp, err := capture.ParseViewport(b.Viewport)
	if err != nil {
		return orchestrator.Request{}, err
	}
	return orchestrator.Request{
		Name:           b.Name,
		Variant:        v,
		Target:         b.Target,
		URL:            b.URL,
		Masks:          masks,
		Viewport:       vp,
		MaxDiffPercent: b.MaxDiffPercent,
	}, nil
}

func keyFromRequest(r *http.Request) (baseline.Key, error) {
	v, err := baseline.ParseVariant(r.URL.Query().Get("variant"))
	if err != nil {
		return baseline.Key{}, apperrors.Wrap(err, apperrors.CodeInvalidArgument, "unknown variant")
	}
	return baseline.Key{Name: chi.URLParam(r, "name"), Variant: v}, nil
}

func (s *Server) handleBaselineExists(w http.ResponseWriter, r *http.Request) {
	key, err := keyFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	ok, err := s.engine.BaselineKeyExists(key)
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		writeError(w, apperrors.Newf(apperrors.CodeNotFound, "no baseline %s", key))
		return
	}
	body := map[string]any{
		"name":    key.Name,
		"variant": key.Variant.String(),
		"file":    key.BaselineFile(),
		"exists":  true,
	}
	if last, ok := s.feed.Latest(key.Name, key.Variant.String()); ok {
		body["last_outcome"] = last
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleBaselineHistory(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		writeError(w, apperrors.New(apperrors.CodeUnavailable, "no ledger configured"))
		return
	}
	key, err := keyFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := key.Validate(); err != nil {
		writeError(w, apperrors.Wrap(err, apperrors.CodeInvalidArgument, "invalid baseline key"))
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, err)
		return
	}
	records, err := s.ledger.ForKey(r.Context(), key.Name, key.Variant.String(), limit)
	if err != nil {
		writeError(w, apperrors.Wrap(err, apperrors.CodeIOFailed, "read ledger"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    key.Name,
		"variant": key.Variant.String(),
		"records": nonNil(records),
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		writeError(w, apperrors.New(apperrors.CodeUnavailable, "no ledger configured"))
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, err)
		return
	}
	records, err := s.ledger.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, apperrors.Wrap(err, apperrors.CodeIOFailed, "read ledger"))
		return
	}
	totals, err := s.ledger.Counts(r.Context())
	if err != nil {
		writeError(w, apperrors.Wrap(err, apperrors.CodeIOFailed, "count ledger"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"records": nonNil(records),
		"totals":  totals,
	})
}

func nonNil(records []ledger.Record) []ledger.Record {
	if records == nil {
		return []ledger.Record{}
	}
	return records
}

func parseLimit(r *http.Request) (int, error) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return DefaultOutcomeLimit, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, apperrors.Newf(apperrors.CodeInvalidArgument, "invalid limit %q", v)
	}
	return min(n, MaxOutcomeLimit), nil
}

func (s *Server) handleBaselineDelete(w http.ResponseWriter, r *http.Request) {
	key, err := keyFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.engine.DeleteBaselineKey(key); err != nil {
		writeError(w, err)
		return
	}
	trace.Logger(r.Context()).Info("baseline deleted", "key", key.String())
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleBaselineDir(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"dir": s.engine.BaselineDirectory()})
}

func (s *Server) handleOutcomes(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, err)
		return
	}

	counts := make(map[string]int)
	for status, n := range s.feed.Counts() {
		counts[status.String()] = n
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"outcomes": s.feed.Recent(limit),
		"counts":   counts,
	})
}

func (s *Server) handlePolicyGet(w http.ResponseWriter, _ *http.Request) {
	p := s.engine.Policy()
	writeJSON(w, http.StatusOK, PolicyBody{
		ChannelTolerance: int(p.ChannelTolerance),
		MaxDiffPercent:   p.MaxDiffPercent,
		Workers:          p.Workers,
	})
}

func (s *Server) handlePolicyPut(w http.ResponseWriter, r *http.Request) {
	var body PolicyBody
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxRequestBytes)).Decode(&body); err != nil {
		writeError(w, apperrors.Wrap(err, apperrors.CodeInvalidArgument, "malformed policy"))
		return
	}
	if body.ChannelTolerance < 0 || body.ChannelTolerance > 255 {
		writeError(w, apperrors.Newf(apperrors.CodeInvalidArgument, "channel tolerance %d outside [0, 255]", body.ChannelTolerance))
		return
	}
	p := pixel.Policy{
		ChannelTolerance: uint8(body.ChannelTolerance),
		MaxDiffPercent:   body.MaxDiffPercent,
		Workers:          body.Workers,
	}
	if err := s.engine.SetPolicy(p); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		trace.Logger(r.Context()).Error("websocket accept error", "error", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
	}()

	ctx := r.Context()
	log := trace.Logger(ctx)
	log.Info("websocket connected", "remote", r.RemoteAddr)

	for {
		var base Message
		if err := wsjson.Read(ctx, conn, &base); err != nil {
			log.Debug("websocket read error", "error", err)
			return
		}

		switch base.Type {
		case "recent":
			_ = wsjson.Write(ctx, conn, RecentMessage{Type: "recent", Outcomes: s.feed.Recent(DefaultOutcomeLimit)})
		case "ping":
			_ = wsjson.Write(ctx, conn, Message{Type: "pong"})
		default:
			_ = wsjson.Write(ctx, conn, ErrorMessage{Type: "error", Message: "unknown message type " + strconv.Quote(base.Type)})
		}
	}
}

func (s *Server) broadcastOutcomes() {
	for o := range s.feed.Events() {
		msg := OutcomeMessage{Type: "outcome", Outcome: o, Passed: o.Passed()}

		s.mu.RLock()
		for conn := range s.conns {
			go func(c *websocket.Conn) {
				ctx, cancel := context.WithTimeout(context.Background(), WSWriteTimeout)
				defer cancel()
				_ = wsjson.Write(ctx, c, msg)
			}(conn)
		}
		s.mu.RUnlock()
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps an AppError onto an HTTP status through its gRPC code.
func writeError(w http.ResponseWriter, err error) {
	writeOutcomeError(w, nil, err)
}

func writeOutcomeError(w http.ResponseWriter, out *orchestrator.Outcome, err error) {
	code := apperrors.CodeOf(err)
	body := map[string]any{
		"error": err.Error(),
		"code":  code.String(),
	}
	if out != nil {
		body["outcome"] = out
	}
	writeJSON(w, httpStatus(err), body)
}
