package bus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/mpapenbr/simracecenter-agent-go/log"
)

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateSubscribing
	StateLive
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateSubscribing:
		return "subscribing"
	case StateLive:
		return "live"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// SubscribeFunc establishes all subscriptions on a fresh connection.
// It is called once per successful connect.
type SubscribeFunc func(ctx context.Context, conn Conn) error

type (
	// Supervisor keeps a bus connection alive.
	// Disconnected -> Connecting -> Subscribing -> Live -> Disconnected until
	// the context is done or the auth breaker trips, then Stopped.
	Supervisor struct {
		connector    Connector
		subscribe    SubscribeFunc
		backoff      backoff.BackOff
		breaker      *AuthBreaker
		sleep        func(ctx context.Context, d time.Duration) bool
		onState      func(State)
		drainTimeout time.Duration
		l            *log.Logger

		mu    sync.Mutex
		state State
		conn  Conn
		trip  chan struct{}
		once  sync.Once

		exhausted bool
	}
	SupervisorOption func(*Supervisor)
)

// WithBackoff sets the delay policy between connect attempts. It is reset
// whenever the connection becomes live.
func WithBackoff(b backoff.BackOff) SupervisorOption {
	return func(s *Supervisor) { s.backoff = b }
}

func WithAuthBreaker(b *AuthBreaker) SupervisorOption {
	return func(s *Supervisor) { s.breaker = b }
}

// WithSleep replaces the wait between connect attempts.
// The function returns false if ctx was done before d elapsed.
func WithSleep(f func(ctx context.Context, d time.Duration) bool) SupervisorOption {
	return func(s *Supervisor) { s.sleep = f }
}

func WithStateListener(f func(State)) SupervisorOption {
	return func(s *Supervisor) { s.onState = f }
}

func WithDrainTimeout(d time.Duration) SupervisorOption {
	return func(s *Supervisor) { s.drainTimeout = d }
}

func WithLogger(l *log.Logger) SupervisorOption {
	return func(s *Supervisor) { s.l = l }
}

//nolint:whitespace // can't make both editor and linter happy
func NewSupervisor(
	connector Connector,
	subscribe SubscribeFunc,
	opts ...SupervisorOption,
) *Supervisor {
	ret := &Supervisor{
		connector:    connector,
		subscribe:    subscribe,
		backoff:      NewBackoff(DefaultBackoffMin, DefaultBackoffMax),
		breaker:      NewAuthBreaker(true, DefaultMaxAuthViolations),
		sleep:        sleepCtx,
		drainTimeout: 5 * time.Second,
		l:            log.Default().Named("bus"),
		trip:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Supervisor) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
	s.l.Debug("state changed", log.String("state", st.String()))
	if s.onState != nil {
		s.onState(st)
	}
}

// Conn returns the current connection, nil if not connected.
func (s *Supervisor) Conn() Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

func (s *Supervisor) onAsyncErr(err error) {
	s.l.Warn("bus error", log.ErrorField(err))
	if s.breaker.Record(err) {
		s.tripBreaker()
	}
}

func (s *Supervisor) tripBreaker() {
	s.once.Do(func() {
		s.l.Error("authorization failed too often, giving up",
			log.Int("violations", s.breaker.Count()))
		close(s.trip)
	})
}

// Run blocks until ctx is done (returns nil), the auth breaker trips
// (returns ErrAuthorizationFailFast) or the backoff policy gives up
// (returns ErrRetriesExhausted).
//
//nolint:funlen,cyclop // state machine
func (s *Supervisor) Run(ctx context.Context) error {
	defer s.setState(StateStopped)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.trip:
			return ErrAuthorizationFailFast
		default:
		}

		s.setState(StateConnecting)
		conn, err := s.connector.Connect(ctx, s.onAsyncErr)
		if err != nil {
			s.l.Warn("connect failed", log.ErrorField(err))
			if s.breaker.Record(err) {
				s.tripBreaker()
				return ErrAuthorizationFailFast
			}
			if !s.waitRetry(ctx) {
				return s.stopErr()
			}
			continue
		}

		s.mu.Lock()
		s.conn = conn
		s.mu.Unlock()

		s.setState(StateSubscribing)
		if err := s.subscribe(ctx, conn); err != nil {
			s.l.Warn("subscribe failed", log.ErrorField(err))
			s.release(conn, false)
			if s.breaker.Record(err) {
				s.tripBreaker()
				return ErrAuthorizationFailFast
			}
			if !s.waitRetry(ctx) {
				return s.stopErr()
			}
			continue
		}

		s.backoff.Reset()
		s.breaker.Reset()
		s.setState(StateLive)

		select {
		case <-ctx.Done():
			s.release(conn, true)
			return nil
		case <-s.trip:
			s.release(conn, false)
			return ErrAuthorizationFailFast
		case <-conn.Closed():
			s.l.Warn("connection lost")
			s.release(conn, false)
			if !s.waitRetry(ctx) {
				return s.stopErr()
			}
		}
	}
}

func (s *Supervisor) stopErr() error {
	select {
	case <-s.trip:
		return ErrAuthorizationFailFast
	default:
	}
	if s.exhausted {
		return ErrRetriesExhausted
	}
	return nil
}

func (s *Supervisor) waitRetry(ctx context.Context) bool {
	s.setState(StateDisconnected)
	delay := s.backoff.NextBackOff()
	if delay == backoff.Stop {
		s.l.Error("giving up reconnecting")
		s.exhausted = true
		return false
	}
	s.l.Info("reconnecting", log.Duration("delay", delay))
	select {
	case <-s.trip:
		return false
	default:
	}
	return s.sleep(ctx, delay)
}

func (s *Supervisor) release(conn Conn, drain bool) {
	s.mu.Lock()
	s.conn = nil
	s.mu.Unlock()
	if !drain {
		conn.Close()
		return
	}
	if err := conn.Drain(); err != nil {
		s.l.Warn("drain failed", log.ErrorField(err))
		conn.Close()
		return
	}
	select {
	case <-conn.Closed():
	case <-time.After(s.drainTimeout):
		s.l.Warn("drain timed out")
		conn.Close()
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
