package telephony

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"github.com/call-intake-poc-v1/server/internal/agent/model"
	errx "github.com/call-intake-poc-v1/server/internal/core/error"
	"github.com/call-intake-poc-v1/server/internal/intake"
	logx "github.com/call-intake-poc-v1/server/pkg/logger"
)

const (
	activeCallsKey = "active_calls"
	redisTimeout   = 2 * time.Second
)

func callKey(id string) string {
	return "call:" + id
}

type dialFunc func(ctx context.Context, s *CallSession) (liveLink, error)

// Manager owns the active calls and runs one intake worker per call.
type Manager struct {
	ctx  context.Context
	cfg  Config
	svc  *intake.Service
	rdb  redis.Cmdable
	dial dialFunc

	mu    sync.RWMutex
	calls map[string]*CallSession
	wg    sync.WaitGroup
}

// NewManager creates the call manager. rdb is optional; when set, active
// calls are mirrored to Redis for other processes to inspect.
func NewManager(ctx context.Context, cfg Config, svc *intake.Service, client *genai.Client, prompt model.PromptConfig, rdb redis.Cmdable) *Manager {
	m := &Manager{
		ctx:   ctx,
		cfg:   cfg,
		svc:   svc,
		rdb:   rdb,
		calls: make(map[string]*CallSession),
	}
	m.dial = func(ctx context.Context, s *CallSession) (liveLink, error) {
		return DialLive(ctx, client, cfg.LiveModel, prompt, s.handlers(), s.log)
	}
	return m
}

// Open registers a call for a new Twilio stream and connects its live session.
func (m *Manager) Open(ctx context.Context, conn wsConn) (*CallSession, error) {
	m.mu.Lock()
	if m.cfg.MaxCalls > 0 && len(m.calls) >= m.cfg.MaxCalls {
		m.mu.Unlock()
		return nil, errx.ErrCallLimit
	}
	id := uuid.NewString()
	s := newCallSession(id, conn, m.cfg.TranscriptGap, logx.Call(id))
	m.calls[id] = s
	m.wg.Add(1)
	m.mu.Unlock()

	live, err := m.dial(ctx, s)
	if err != nil {
		m.forget(id)
		s.shutdown()
		m.wg.Done()
		return nil, err
	}
	s.bind(live)
	m.track(s)
	return s, nil
}

// Serve runs the call until the stream ends and its worker has exited. Every
// session returned by Open must be served.
func (m *Manager) Serve(s *CallSession) {
	defer m.wg.Done()

	var workerDone <-chan struct{}
	err := s.Serve(func(s *CallSession) {
		workerDone = m.startWorker(s)
	})
	if err != nil {
		s.log.Warn().Err(err).Msg("Twilio stream ended with error")
	}
	if workerDone != nil {
		<-workerDone
	}
	m.release(s)
}

func (m *Manager) startWorker(s *CallSession) <-chan struct{} {
	done := make(chan struct{})
	worker := m.svc.NewCall(s)

	ctx, cancel := context.WithCancel(m.ctx)
	s.Attach(ctx, worker.Listener().Accept)
	m.markStarted(s)

	go func() {
		defer close(done)
		defer cancel()

		// a hang-up cancels whatever the worker is doing
		go func() {
			select {
			case <-s.Done():
				cancel()
			case <-ctx.Done():
			}
		}()

		res, err := worker.Run(ctx)
		switch {
		case err == nil, errors.Is(err, context.Canceled):
		case errors.Is(err, errx.ErrSessionUnavailable):
			s.log.Warn().Err(err).Msg("Call session became unavailable")
		default:
			s.log.Error().Err(err).Msg("Intake worker failed")
		}
		s.log.Info().
			Str("outcome", string(res.Outcome)).
			Dur("duration", res.EndedAt.Sub(res.StartedAt)).
			Msg("Intake worker exited")
	}()
	return done
}

func (m *Manager) forget(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.calls[id]; !ok {
		return false
	}
	delete(m.calls, id)
	return true
}

func (m *Manager) release(s *CallSession) {
	if !m.forget(s.ID()) {
		return
	}
	if m.rdb == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(m.ctx), redisTimeout)
	defer cancel()
	logRedis(s.log, m.rdb.Del(ctx, callKey(s.ID())).Err(), "Failed to delete call state")
	logRedis(s.log, m.rdb.SRem(ctx, activeCallsKey, s.ID()).Err(), "Failed to remove active call")
}

func (m *Manager) track(s *CallSession) {
	if m.rdb == nil {
		return
	}
	ctx, cancel := context.WithTimeout(m.ctx, redisTimeout)
	defer cancel()
	logRedis(s.log, m.rdb.HSet(ctx, callKey(s.ID()), map[string]interface{}{
		"created_at": s.createdAt.Format(time.RFC3339),
		"status":     "connecting",
	}).Err(), "Failed to store call state")
	logRedis(s.log, m.rdb.SAdd(ctx, activeCallsKey, s.ID()).Err(), "Failed to add active call")
	logRedis(s.log, m.rdb.Expire(ctx, callKey(s.ID()), m.cfg.CallTTL).Err(), "Failed to set call TTL")
}

func (m *Manager) markStarted(s *CallSession) {
	if m.rdb == nil {
		return
	}
	ctx, cancel := context.WithTimeout(m.ctx, redisTimeout)
	defer cancel()
	logRedis(s.log, m.rdb.HSet(ctx, callKey(s.ID()), map[string]interface{}{
		"status":          "intake",
		"stream_sid":      s.StreamSid(),
		"twilio_call_sid": s.CallSid(),
	}).Err(), "Failed to update call state")
}

func logRedis(log zerolog.Logger, err error, msg string) {
	if err != nil {
		log.Warn().Err(errx.WrapRedis(err)).Msg(msg)
	}
}

// Count returns the number of active calls.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.calls)
}

// Shutdown hangs up every active call and waits for their workers.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.RLock()
	sessions := make([]*CallSession, 0, len(m.calls))
	for _, s := range m.calls {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	for _, s := range sessions {
		s.shutdown()
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
