package telephony

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"

	"github.com/call-intake-poc-v1/server/internal/archive"
	errx "github.com/call-intake-poc-v1/server/internal/core/error"
	logx "github.com/call-intake-poc-v1/server/pkg/logger"
)

// TicketReader looks up archived intakes.
type TicketReader interface {
	Get(ctx context.Context, callID string) (archive.Ticket, error)
	ListByPurpose(ctx context.Context, purposeType string, limit int) ([]archive.Ticket, error)
}

// callOpener is the part of the Manager the HTTP layer needs.
type callOpener interface {
	Open(ctx context.Context, conn wsConn) (*CallSession, error)
	Serve(s *CallSession)
	Count() int
}

type Server struct {
	httpServer *http.Server
	upgrader   websocket.Upgrader
	calls      callOpener
	tickets    TicketReader
	cfg        Config
}

// NewServer wires the Twilio endpoints. tickets may be nil.
func NewServer(cfg Config, calls *Manager, tickets TicketReader) *Server {
	return newServer(cfg, calls, tickets)
}

func newServer(cfg Config, calls callOpener, tickets TicketReader) *Server {
	s := &Server{
		calls:   calls,
		tickets: tickets,
		cfg:     cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			// Twilio sends no Origin header and does not negotiate compression
			EnableCompression: false,
			CheckOrigin:       func(r *http.Request) bool { return true },
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/voice", s.handleVoice)
	mux.HandleFunc("/stream", s.handleStream)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("GET /tickets", s.handleTickets)
	mux.HandleFunc("GET /tickets/{id}", s.handleTicket)

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: mux,
		// no read/write timeouts: media streams are long-lived websockets
	}
	return s
}

func (s *Server) Start() error {
	logx.Info().Str("addr", s.httpServer.Addr).Msg("Telephony server listening")
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// handleVoice answers Twilio's incoming-call webhook.
func (s *Server) handleVoice(w http.ResponseWriter, r *http.Request) {
	host := s.cfg.PublicHost
	if host == "" {
		host = r.Host
	}
	w.Header().Set("Content-Type", "text/xml")
	_, _ = w.Write([]byte(streamTwiML(host)))
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logx.Warn().Err(err).Msg("Twilio websocket upgrade failed")
		return
	}

	session, err := s.calls.Open(r.Context(), conn)
	if err != nil {
		if errors.Is(err, errx.ErrCallLimit) {
			logx.Warn().Int("calls", s.calls.Count()).Msg("Rejecting call, limit reached")
		} else {
			logx.Error().Err(err).Msg("Failed to open call session")
		}
		_ = conn.Close()
		return
	}

	session.log.Info().Msg("Call connected")
	s.calls.Serve(session)
	session.log.Info().Msg("Call closed")
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "calls": s.calls.Count()})
}

func (s *Server) handleTicket(w http.ResponseWriter, r *http.Request) {
	if s.tickets == nil {
		http.NotFound(w, r)
		return
	}
	ticket, err := s.tickets.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		if errx.StatusOf(err) >= http.StatusInternalServerError {
			logx.Error().Err(err).Str("call_id", r.PathValue("id")).Msg("Failed to load ticket")
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

// handleTickets lists the newest tickets routed for one purpose.
func (s *Server) handleTickets(w http.ResponseWriter, r *http.Request) {
	if s.tickets == nil {
		http.NotFound(w, r)
		return
	}
	purpose := r.URL.Query().Get("purpose")
	if purpose == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "purpose is required"})
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
			return
		}
		limit = n
	}
	tickets, err := s.tickets.ListByPurpose(r.Context(), purpose, limit)
	if err != nil {
		logx.Error().Err(err).Str("purpose_type", purpose).Msg("Failed to list tickets")
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tickets)
}

func writeError(w http.ResponseWriter, err error) {
	msg := errx.SystemErrorMessage
	var e *errx.Error
	if errors.As(err, &e) {
		msg = e.Message
	}
	writeJSON(w, errx.StatusOf(err), map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := sonic.Marshal(v)
	if err != nil {
		http.Error(w, errx.SystemErrorMessage, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
