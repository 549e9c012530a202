package bus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errConnRefused = errors.New("connection refused")

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) bool {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err() == nil
}

func (s *sleepRecorder) get() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration{}, s.delays...)
}

func TestBackoffSequence(t *testing.T) {
	b := NewBackoff(time.Second, 30*time.Second)
	var got []time.Duration
	for range 7 {
		got = append(got, b.NextBackOff())
	}
	assert.Equal(t, []time.Duration{
		1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second,
		16 * time.Second, 30 * time.Second, 30 * time.Second,
	}, got)
	b.Reset()
	assert.Equal(t, time.Second, b.NextBackOff())
}

func TestSupervisorStopsWhenBackoffGivesUp(t *testing.T) {
	conn := &scriptedConnector{results: []connectResult{{err: errConnRefused}}}
	rec := &sleepRecorder{}
	s := NewSupervisor(conn,
		func(context.Context, Conn) error { return nil },
		WithSleep(rec.sleep),
		WithBackoff(backoff.WithMaxRetries(NewBackoff(time.Second, 30*time.Second), 2)),
	)
	err := s.Run(context.Background())
	require.ErrorIs(t, err, ErrRetriesExhausted)
	assert.Equal(t, 3, conn.Attempts())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, rec.get())
	assert.Equal(t, StateStopped, s.State())
}

func TestSupervisorBackoffResetsAfterLive(t *testing.T) {
	first := newFakeConn()
	second := newFakeConn()
	conn := &scriptedConnector{results: []connectResult{
		{err: errConnRefused},
		{err: errConnRefused},
		{err: errConnRefused},
		{conn: first},
		{conn: second},
	}}
	rec := &sleepRecorder{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var live int
	s := NewSupervisor(conn,
		func(context.Context, Conn) error { return nil },
		WithSleep(rec.sleep),
		WithStateListener(func(st State) {
			if st != StateLive {
				return
			}
			mu.Lock()
			live++
			n := live
			mu.Unlock()
			switch n {
			case 1:
				// drop the first connection, the supervisor has to reconnect
				first.Close()
			case 2:
				cancel()
			}
		}),
	)
	err := s.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{
		1 * time.Second, 2 * time.Second, 4 * time.Second, 1 * time.Second,
	}, rec.get())
	assert.Equal(t, 5, conn.Attempts())
	assert.Equal(t, StateStopped, s.State())
	assert.Equal(t, 1, second.drains)
}

func TestSupervisorFailFastOnAuthViolations(t *testing.T) {
	conn := &scriptedConnector{results: []connectResult{
		{err: nats.ErrAuthorization},
	}}
	rec := &sleepRecorder{}
	s := NewSupervisor(conn,
		func(context.Context, Conn) error { return nil },
		WithSleep(rec.sleep),
		WithAuthBreaker(NewAuthBreaker(true, 3)),
	)
	err := s.Run(context.Background())
	require.ErrorIs(t, err, ErrAuthorizationFailFast)
	assert.Equal(t, 3, conn.Attempts())
	assert.Len(t, rec.get(), 2)
}

func TestSupervisorAsyncAuthViolationsStopLiveConnection(t *testing.T) {
	c := newFakeConn()
	conn := &scriptedConnector{results: []connectResult{{conn: c}}}
	authErr := errors.New("nats: Authorization Violation")
	s := NewSupervisor(conn,
		func(context.Context, Conn) error { return nil },
		WithSleep(func(context.Context, time.Duration) bool { return true }),
		WithStateListener(func(st State) {
			if st == StateLive {
				for range 3 {
					conn.asyncErr(authErr)
				}
			}
		}),
	)
	err := s.Run(context.Background())
	require.ErrorIs(t, err, ErrAuthorizationFailFast)
	assert.Equal(t, 1, conn.Attempts())
}

func TestSupervisorBreakerDisabled(t *testing.T) {
	conn := &scriptedConnector{results: []connectResult{
		{err: nats.ErrAuthorization},
		{err: nats.ErrAuthorization},
		{err: nats.ErrAuthorization},
		{err: nats.ErrAuthorization},
		{conn: newFakeConn()},
	}}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := NewSupervisor(conn,
		func(context.Context, Conn) error { return nil },
		WithSleep(func(context.Context, time.Duration) bool { return true }),
		WithAuthBreaker(NewAuthBreaker(false, 3)),
		WithStateListener(func(st State) {
			if st == StateLive {
				cancel()
			}
		}),
	)
	require.NoError(t, s.Run(ctx))
	assert.Equal(t, 5, conn.Attempts())
}

func TestSupervisorRetriesFailedSubscribe(t *testing.T) {
	conn := &scriptedConnector{results: []connectResult{
		{conn: newFakeConn()},
		{conn: newFakeConn()},
	}}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	calls := 0
	rec := &sleepRecorder{}
	s := NewSupervisor(conn,
		func(context.Context, Conn) error {
			calls++
			if calls == 1 {
				return errors.New("subscribe failed")
			}
			return nil
		},
		WithSleep(rec.sleep),
		WithStateListener(func(st State) {
			if st == StateLive {
				cancel()
			}
		}),
	)
	require.NoError(t, s.Run(ctx))
	assert.Equal(t, 2, calls)
	assert.Equal(t, []time.Duration{time.Second}, rec.get())
}

func TestAuthBreaker(t *testing.T) {
	b := NewAuthBreaker(true, 3)
	assert.False(t, b.Record(errConnRefused))
	assert.False(t, b.Record(nats.ErrAuthorization))
	assert.False(t, b.Record(nats.ErrAuthorization))
	assert.True(t, b.Record(errors.New("nats: authorization violation")))
	assert.True(t, b.Tripped())
	b.Reset()
	assert.False(t, b.Tripped())
	assert.Equal(t, 0, b.Count())
}
