package sync

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/logaxpapp/randc-client-sub001/pkg/model"
)

const (
	defaultBaseDelay   = 500 * time.Millisecond
	defaultMaxDelay    = 30 * time.Second
	defaultRetryBudget = 10
)

// SupervisorOptions tunes reconnection behavior and exposes the lifecycle
// callbacks. Zero values get sensible defaults.
type SupervisorOptions struct {
	// BaseDelay is the first backoff interval; it doubles per consecutive
	// failure up to MaxDelay.
	BaseDelay time.Duration
	MaxDelay  time.Duration

	// RetryBudget is the number of consecutive failed attempts after which
	// OnDegraded fires with ErrConnectionUnavailable. Retrying continues at
	// MaxDelay regardless.
	RetryBudget int

	// OnReady fires on the first successful connect of a Start; OnResumed on
	// every reconnect after that. OnDegraded fires once per outage when the
	// retry budget is exhausted.
	OnReady    func()
	OnResumed  func()
	OnDegraded func(error)
}

// ConnectionSupervisor owns exactly one push channel per authenticated
// session: it dials, binds the router while the channel is open, and retries
// with bounded exponential backoff when the channel dies.
type ConnectionSupervisor struct {
	dialer Dialer
	router *EventRouter
	log    *zap.Logger
	opts   SupervisorOptions

	mu       sync.Mutex
	session  Session
	status   Status
	cancel   context.CancelFunc
	done     chan struct{}
	conn     Conn
	connID   string
	lastSeen map[string]string // conversation id -> newest message id seen
}

func NewConnectionSupervisor(dialer Dialer, router *EventRouter, opts SupervisorOptions, log *zap.Logger) *ConnectionSupervisor {
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = defaultBaseDelay
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = defaultMaxDelay
	}
	if opts.RetryBudget <= 0 {
		opts.RetryBudget = defaultRetryBudget
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ConnectionSupervisor{
		dialer:   dialer,
		router:   router,
		log:      log,
		opts:     opts,
		status:   StatusClosed,
		lastSeen: make(map[string]string),
	}
}

// Start opens a connection for the session. Starting the session that is
// already running is a no-op; starting a different session stops the previous
// one first.
func (s *ConnectionSupervisor) Start(session Session) error {
	if !session.Authenticated() {
		return ErrNotAuthenticated
	}

	s.mu.Lock()
	if s.cancel != nil && s.session == session {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	s.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	s.mu.Lock()
	s.session = session
	s.cancel = cancel
	s.done = done
	s.status = StatusConnecting
	s.connID = uuid.NewString()
	s.mu.Unlock()

	go s.run(ctx, session, done)
	return nil
}

// Stop tears down the active connection, unbinding the router first so no
// in-flight handler fires against a stopped session. Idempotent.
func (s *ConnectionSupervisor) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.cancel = nil
	s.done = nil
	s.session = Session{}
	s.status = StatusClosed
	s.mu.Unlock()

	if cancel == nil {
		return
	}

	s.router.Unbind()
	cancel()

	// The run loop only installs a conn while its context is alive, so after
	// cancel the conn seen here is the final one.
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
	<-done
}

// Status returns the current connection state.
func (s *ConnectionSupervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// ConnectionID identifies the current Start lifecycle.
func (s *ConnectionSupervisor) ConnectionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connID
}

// LastSeen returns the id of the most recently delivered message for a
// conversation, the resume cursor for gap detection.
func (s *ConnectionSupervisor) LastSeen(conversationID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.lastSeen[conversationID]
	return id, ok
}

// Emit sends a command on the open connection.
func (s *ConnectionSupervisor) Emit(event string, payload any) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	return conn.Emit(event, payload)
}

func (s *ConnectionSupervisor) run(ctx context.Context, session Session, done chan struct{}) {
	defer close(done)

	attempts := 0
	opened := false
	degraded := false

	for {
		conn, err := s.dialer.Dial(ctx, session)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			attempts++
			if attempts >= s.opts.RetryBudget && !degraded {
				degraded = true
				s.log.Warn("connection retry budget exhausted",
					zap.Int("attempts", attempts))
				if s.opts.OnDegraded != nil {
					s.opts.OnDegraded(ErrConnectionUnavailable)
				}
			}
			if !s.sleep(ctx, s.backoff(attempts)) {
				return
			}
			continue
		}

		attempts = 0
		degraded = false

		s.mu.Lock()
		if ctx.Err() != nil {
			// Stopped while dialing.
			s.mu.Unlock()
			conn.Close()
			return
		}
		s.conn = conn
		s.status = StatusOpen
		s.mu.Unlock()

		if err := s.router.Bind(); err != nil {
			// Cannot happen while the unbind-before-rebind contract holds;
			// recover rather than double-dispatch.
			s.log.Error("router already bound on connect; rebinding")
			s.router.Unbind()
			_ = s.router.Bind()
		}

		if session.TenantID != "" {
			if err := conn.Emit(model.EventSubscribeTenant, model.TenantPayload{TenantID: session.TenantID}); err != nil {
				s.log.Warn("tenant subscribe failed", zap.Error(err))
			}
		}

		if opened {
			s.log.Info("connection resumed")
			if s.opts.OnResumed != nil {
				s.opts.OnResumed()
			}
		} else {
			opened = true
			s.log.Info("connection ready")
			if s.opts.OnReady != nil {
				s.opts.OnReady()
			}
		}

		for {
			env, err := conn.Read()
			if err != nil {
				break
			}
			s.trackSeen(env)
			s.router.Dispatch(env)
		}

		s.router.Unbind()
		conn.Close()

		s.mu.Lock()
		s.conn = nil
		stopped := ctx.Err() != nil
		if stopped {
			s.status = StatusClosed
		} else {
			s.status = StatusReconnecting
		}
		s.mu.Unlock()

		if stopped {
			return
		}

		s.log.Info("connection lost, reconnecting")
		attempts++
		if !s.sleep(ctx, s.backoff(attempts)) {
			return
		}
	}
}

func (s *ConnectionSupervisor) trackSeen(env model.Envelope) {
	if env.Event != model.EventNewMessage {
		return
	}
	var p struct {
		ID             string `json:"id"`
		ConversationID string `json:"conversation_id"`
	}
	if err := json.Unmarshal(env.Payload, &p); err != nil || p.ID == "" {
		return
	}
	s.mu.Lock()
	s.lastSeen[p.ConversationID] = p.ID
	s.mu.Unlock()
}

// backoff doubles the base delay per attempt up to the cap, with up to 25%
// jitter so a fleet of clients does not reconnect in lockstep.
func (s *ConnectionSupervisor) backoff(attempt int) time.Duration {
	d := s.opts.MaxDelay
	if attempt < 63 {
		if exp := s.opts.BaseDelay << uint(attempt-1); exp > 0 && exp < s.opts.MaxDelay {
			d = exp
		}
	}
	return d + time.Duration(rand.Int63n(int64(d)/4+1))
}

func (s *ConnectionSupervisor) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
