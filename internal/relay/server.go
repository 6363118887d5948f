// Package relay exposes the dispatcher over a small HTTP API so other
// machines and scripts can hand messages to msgport.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/msgport/msgport/internal/config"
	"github.com/msgport/msgport/internal/history"
	"github.com/msgport/msgport/internal/logging"
	"github.com/msgport/msgport/internal/metrics"
	"github.com/msgport/msgport/internal/notify"
)

// maxBodyBytes bounds inbound request bodies; notification text is small.
const maxBodyBytes = 64 * 1024

// Server accepts messages over HTTP and hands them to the dispatcher.
type Server struct {
	cfg        *config.Config
	dispatcher *notify.Dispatcher
	journal    *history.Journal // may be nil when the journal is disabled
	httpSrv    *http.Server
	Now        func() time.Time // injectable clock for quiet-hours tests
}

// New creates a relay server. journal may be nil.
func New(cfg *config.Config, d *notify.Dispatcher, journal *history.Journal) *Server {
	s := &Server{cfg: cfg, dispatcher: d, journal: journal, Now: time.Now}
	s.httpSrv = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the relay's HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/messages", s.handleMessages)
	mux.HandleFunc("/v1/history", s.handleHistory)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	return mux
}

// Start serves until Stop is called or the listener fails.
func (s *Server) Start() error {
	logging.Get().Info().Str("addr", s.cfg.ListenAddr).Msg("relay listening")
	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop shuts the listener down and waits for in-flight dispatches.
func (s *Server) Stop(ctx context.Context) error {
	if err := s.httpSrv.Shutdown(ctx); err != nil {
		return err
	}
	return s.dispatcher.Wait(ctx)
}

// messageRequest is the POST /v1/messages body.
type messageRequest struct {
	Title     string   `json:"title"`
	Message   string   `json:"message"`
	Providers []string `json:"providers"`
	// Urgent bypasses quiet hours.
	Urgent bool `json:"urgent"`
}

type messageResponse struct {
	MessageID string   `json:"message_id,omitempty"`
	Status    string   `json:"status"`
	Providers []string `json:"providers,omitempty"`
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req messageRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		metrics.IncRelayRejected()
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		metrics.IncRelayRejected()
		http.Error(w, "message must not be empty", http.StatusBadRequest)
		return
	}
	if unknown := s.dispatcher.UnknownProviders(req.Providers); len(unknown) > 0 {
		metrics.IncRelayRejected()
		http.Error(w, fmt.Sprintf("unknown providers: %s", strings.Join(unknown, ", ")), http.StatusBadRequest)
		return
	}

	if !req.Urgent && s.cfg.IsQuiet(s.Now()) {
		metrics.IncQuietSuppressed()
		logging.Get().Info().Str("title", req.Title).Msg("message suppressed by quiet hours")
		writeJSON(w, http.StatusOK, messageResponse{Status: "suppressed"})
		return
	}

	// The request context dies as soon as this handler returns; sends run
	// async so they get a fresh context.
	id := s.dispatcher.DispatchTo(context.Background(), req.Title, req.Message, req.Providers)
	metrics.IncRelayAccepted()
	providers := req.Providers
	if len(providers) == 0 {
		providers = s.dispatcher.Providers()
	}
	writeJSON(w, http.StatusAccepted, messageResponse{MessageID: id, Status: "accepted", Providers: providers})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.journal == nil {
		http.Error(w, "journal disabled", http.StatusServiceUnavailable)
		return
	}
	if id := r.URL.Query().Get("message_id"); id != "" {
		entries, err := s.journal.ByMessage(r.Context(), id)
		if err != nil {
			logging.Get().Error().Err(err).Msg("history query failed")
			http.Error(w, "history query failed", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, entries)
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	entries, err := s.journal.Recent(r.Context(), limit)
	if err != nil {
		logging.Get().Error().Err(err).Msg("history query failed")
		http.Error(w, "history query failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
