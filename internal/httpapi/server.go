// Package httpapi exposes the speech service over HTTP: a websocket
// host channel for screen readers and a JSON control surface for
// voice management, diagnostics and one-shot synthesis.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/vaanilabs/vaani/internal/audio"
	"github.com/vaanilabs/vaani/internal/config"
	"github.com/vaanilabs/vaani/internal/delegate"
	"github.com/vaanilabs/vaani/internal/dispatch"
	"github.com/vaanilabs/vaani/internal/journal"
	"github.com/vaanilabs/vaani/internal/observability"
	"github.com/vaanilabs/vaani/internal/session"
	"github.com/vaanilabs/vaani/internal/speech"
	"github.com/vaanilabs/vaani/internal/synth"
	"github.com/vaanilabs/vaani/internal/voices"
)

// Deps collects the wired service the server fronts.
type Deps struct {
	Sessions    *session.Manager
	Dispatcher  *dispatch.Dispatcher
	Native      *synth.Backend
	Delegate    delegate.Backend
	Catalog     *voices.Catalog
	Downloader  *voices.Downloader
	Coordinator *audio.Coordinator
	Splitter    *speech.Splitter
	Journal     journal.Store
	JournalKind string
	EngineMode  string
	Metrics     *observability.Metrics
	Hub         *AudioHub
}

type Server struct {
	cfg  config.Config
	deps Deps

	upgrader websocket.Upgrader

	// One host channel and one one-shot capture may observe utterance
	// completion at a time; the server multiplexes the dispatcher's
	// single notifier across them.
	notifyMu    sync.Mutex
	wsNotify    func(id *int)
	wsStarted   func()
	wsSeq       uint64
	oneshotDone chan struct{}

	synthMu sync.Mutex
}

func New(cfg config.Config, deps Deps) *Server {
	s := &Server{cfg: cfg, deps: deps}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	deps.Dispatcher.SetNotifier(s.onIndex)
	deps.Dispatcher.SetOnSpeechStarted(s.onSpeechStarted)
	return s
}

// checkOrigin admits non-browser clients (no Origin header) and
// same-host browser pages; cross-origin pages need AllowAnyOrigin.
func (s *Server) checkOrigin(r *http.Request) bool {
	if s.cfg.AllowAnyOrigin {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)
	r.Method(http.MethodGet, "/metrics", observability.MetricsHandler())
	r.Get("/ws/speech", s.handleSpeechWS)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/voices", s.handleListVoices)
		r.Post("/voices/rescan", s.handleRescanVoices)
		r.Get("/voices/available", s.handleAvailableVoices)
		r.Post("/voices/{id}/install", s.handleInstallVoice)
		r.Delete("/voices/{id}", s.handleRemoveVoice)
		r.Get("/voice", s.handleGetVoice)
		r.Put("/voice", s.handleSetVoice)
		r.Get("/delegate/settings", s.handleGetDelegateSettings)
		r.Put("/delegate/settings", s.handleSetDelegateSettings)
		r.Post("/synthesize", s.handleSynthesize)
		r.Post("/segment", s.handleSegment)
		r.Get("/sessions", s.handleSessions)
		r.Get("/perf", s.handlePerf)
		r.Get("/journal/recent", s.handleJournalRecent)
	})

	return r
}

// bindWS takes the host channel's notification slot. The returned
// detach releases it unless a newer channel has taken over.
func (s *Server) bindWS(onIndex func(id *int), onStarted func()) (detach func()) {
	s.notifyMu.Lock()
	s.wsSeq++
	n := s.wsSeq
	s.wsNotify, s.wsStarted = onIndex, onStarted
	s.notifyMu.Unlock()
	return func() {
		s.notifyMu.Lock()
		if s.wsSeq == n {
			s.wsNotify, s.wsStarted = nil, nil
		}
		s.notifyMu.Unlock()
	}
}

func (s *Server) onIndex(id *int) {
	s.notifyMu.Lock()
	done := s.oneshotDone
	fn := s.wsNotify
	s.notifyMu.Unlock()
	if done != nil {
		// A one-shot owns the pipeline; its completion is not a host event.
		if id == nil {
			select {
			case done <- struct{}{}:
			default:
			}
		}
		return
	}
	if fn != nil {
		fn(id)
	}
}

func (s *Server) onSpeechStarted() {
	s.notifyMu.Lock()
	oneshot := s.oneshotDone != nil
	fn := s.wsStarted
	s.notifyMu.Unlock()
	if !oneshot && fn != nil {
		fn()
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statusResponse struct {
	Engine       string `json:"engine"`
	State        string `json:"state"`
	Voice        string `json:"voice"`
	VoiceCount   int    `json:"voice_count"`
	Delegate     string `json:"delegate"`
	Journal      string `json:"journal"`
	Sessions     int    `json:"active_sessions"`
	NativeRate   int    `json:"native_sample_rate"`
	DelegateRate int    `json:"delegate_sample_rate"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	nativeRate, delegateRate := s.deps.Coordinator.Rates()
	resp := statusResponse{
		Engine:       s.deps.EngineMode,
		State:        s.deps.Dispatcher.State().String(),
		Voice:        s.deps.Native.Voice().ID,
		VoiceCount:   len(s.deps.Catalog.List()),
		Journal:      s.deps.JournalKind,
		Sessions:     s.deps.Sessions.ActiveCount(),
		NativeRate:   nativeRate,
		DelegateRate: delegateRate,
	}
	if s.deps.Delegate != nil {
		resp.Delegate = s.deps.Delegate.Name()
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"sessions": s.deps.Sessions.List()})
}

func (s *Server) handlePerf(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.deps.Metrics.SnapshotStages())
}

func (s *Server) handleJournalRecent(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if q := r.URL.Query().Get("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "bad_limit", "limit must be a positive integer")
			return
		}
		limit = n
	}
	if limit > 200 {
		limit = 200
	}
	recs, err := s.deps.Journal.RecentUtterances(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "journal_error", err.Error())
		return
	}
	if recs == nil {
		recs = []journal.Record{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"utterances": recs})
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

var errEmptyBody = errors.New("empty request body")

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, msg string) {
	respondJSON(w, status, errorResponse{Error: msg, Code: code})
}
