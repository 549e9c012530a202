package responder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpapenbr/simracecenter-agent-go/pkg/answer"
	"github.com/mpapenbr/simracecenter-agent-go/pkg/bus"
	"github.com/mpapenbr/simracecenter-agent-go/pkg/model"
)

type pubConn struct {
	mu     sync.Mutex
	pubs   map[string][][]byte
	queues []string
	closed chan struct{}
	once   sync.Once
}

func newPubConn() *pubConn {
	return &pubConn{pubs: map[string][][]byte{}, closed: make(chan struct{})}
}

type nopSub struct{}

func (nopSub) Unsubscribe() error { return nil }

func (c *pubConn) Subscribe(string, bus.Handler) (bus.Subscription, error) {
	return nopSub{}, nil
}

func (c *pubConn) QueueSubscribe(_, queue string, _ bus.Handler) (bus.Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queues = append(c.queues, queue)
	return nopSub{}, nil
}

func (c *pubConn) Publish(subject string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pubs[subject] = append(c.pubs[subject], data)
	return nil
}

func (c *pubConn) published(subject string) [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte{}, c.pubs[subject]...)
}

func (c *pubConn) Closed() <-chan struct{} { return c.closed }

func (c *pubConn) History() (bus.History, error) { return nil, errors.New("no history") }

func (c *pubConn) PullConsumer(context.Context, bus.PullConfig) (bus.Consumer, error) {
	return nil, errors.New("no consumer")
}

func (c *pubConn) Drain() error {
	c.Close()
	return nil
}

func (c *pubConn) Close() { c.once.Do(func() { close(c.closed) }) }

func chatMsg(id, user, text string) []byte {
	data, _ := json.Marshal(map[string]any{
		"type": "chat_message",
		"data": map[string]any{"id": id, "username": user, "message": text},
	})
	return data
}

func fixedClock() time.Time {
	return time.Date(2025, 5, 1, 12, 30, 0, 0, time.UTC)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.TriggerPrefix = "!ask"
	cfg.AnswerTimeout = time.Second
	cfg.PollInterval = 10 * time.Millisecond
	cfg.ShutdownGrace = time.Second
	return cfg
}

func TestFilterAccept(t *testing.T) {
	f := NewFilter("chat_message", "!ask", []string{"Sim RaceCenter"})
	tests := []struct {
		name string
		data []byte
		want Reason
		text string
	}{
		{"malformed", []byte("{nope"), ReasonMalformed, ""},
		{"wrong type", []byte(`{"type":"other","data":{"message":"!ask hi"}}`), ReasonType, ""},
		{"empty", chatMsg("1", "a", "   "), ReasonEmpty, ""},
		{"no trigger", chatMsg("2", "a", "who leads?"), ReasonNoTrigger, ""},
		{"prefix only", chatMsg("3", "a", "!ask  "), ReasonEmpty, ""},
		{"ignored user", chatMsg("4", "sim racecenter", "!ask hi"), ReasonIgnoredUser, ""},
		{"accepted", chatMsg("5", "bob", "!ask who leads?"), ReasonNone, "who leads?"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item, reason := f.Accept(tt.data, fixedClock())
			assert.Equal(t, tt.want, reason)
			assert.Equal(t, tt.text, item.Text)
		})
	}
}

func TestFilterUnknownUser(t *testing.T) {
	f := NewFilter("chat_message", "", nil)
	item, reason := f.Accept(chatMsg("1", "", "hello"), fixedClock())
	require.Equal(t, ReasonNone, reason)
	assert.Equal(t, "unknown", item.Username)
	assert.Equal(t, "hello", item.Text)
}

func TestQueueOverflowDropsNewest(t *testing.T) {
	cfg := testConfig()
	cfg.QueueSize = 3
	r := New(cfg, answer.Func(func(context.Context, string) (string, error) {
		return "x", nil
	}), WithClock(fixedClock))

	for i := range 4 {
		r.HandleMessage(cfg.InputSubject, chatMsg(fmt.Sprintf("m%d", i), "bob", "!ask q"))
	}
	r.HandleMessage(cfg.InputSubject, chatMsg("f", "bob", "no trigger"))

	s := r.Stats()
	assert.Equal(t, int64(5), s.Received)
	assert.Equal(t, int64(1), s.Filtered)
	assert.Equal(t, int64(3), s.Enqueued)
	assert.Equal(t, int64(1), s.Dropped)
	assert.Equal(t, 3, s.QueueDepth)

	var ids []string
	for range 3 {
		item, ok := r.queue.Poll(context.Background(), 10*time.Millisecond)
		require.True(t, ok)
		ids = append(ids, item.ID)
	}
	assert.Equal(t, []string{"m0", "m1", "m2"}, ids)
}

func TestProcessPublishesAnswer(t *testing.T) {
	cfg := testConfig()
	conn := newPubConn()
	r := New(cfg, answer.Func(func(_ context.Context, q string) (string, error) {
		return "P1 is #7 " + q, nil
	}), WithClock(fixedClock))
	require.NoError(t, r.Subscribe(context.Background(), conn))
	assert.Equal(t, []string{"director_chat"}, conn.queues)

	r.process(context.Background(), r.l, &WorkItem{ID: "m1", Username: "bob", Text: "leader?"})

	pubs := conn.published(cfg.OutputSubject)
	require.Len(t, pubs, 1)
	var env model.AnswerEnvelope
	require.NoError(t, json.Unmarshal(pubs[0], &env))
	assert.Equal(t, "answer", env.Type)
	assert.Equal(t, "m1", env.Data.InputID)
	assert.Equal(t, "bob", env.Data.Username)
	assert.Equal(t, "leader?", env.Data.Question)
	assert.Equal(t, "P1 is #7 leader?", env.Data.Answer)
	assert.Equal(t, "2025-05-01T12:30:00Z", env.Data.TsISO)
	assert.InDelta(t, float64(fixedClock().Unix()), env.Data.Ts, 0.001)

	s := r.Stats()
	assert.Equal(t, int64(1), s.Processed)
	assert.Equal(t, int64(1), s.Published)
	assert.Equal(t, fixedClock(), s.LastAnswerTime.UTC())
}

func TestProcessTimeoutDoesNotPublish(t *testing.T) {
	cfg := testConfig()
	cfg.AnswerTimeout = 20 * time.Millisecond
	conn := newPubConn()
	r := New(cfg, answer.Func(func(ctx context.Context, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}))
	require.NoError(t, r.Subscribe(context.Background(), conn))

	r.process(context.Background(), r.l, &WorkItem{ID: "m1", Username: "bob", Text: "q"})

	assert.Empty(t, conn.published(cfg.OutputSubject))
	s := r.Stats()
	assert.Equal(t, int64(1), s.Processed)
	assert.Equal(t, int64(1), s.Failed)
	assert.Equal(t, int64(0), s.Published)
}

func TestProcessEmptyAnswerFails(t *testing.T) {
	conn := newPubConn()
	r := New(testConfig(), answer.Func(func(context.Context, string) (string, error) {
		return "", nil
	}))
	require.NoError(t, r.Subscribe(context.Background(), conn))
	r.process(context.Background(), r.l, &WorkItem{ID: "m1", Text: "q"})
	assert.Empty(t, conn.published(r.cfg.OutputSubject))
	assert.Equal(t, int64(1), r.Stats().Failed)
}

type blockingRunner struct{ conn *pubConn }

func (b *blockingRunner) Run(ctx context.Context) error {
	<-ctx.Done()
	b.conn.Close()
	return nil
}

func TestRunProcessesQueueAndStops(t *testing.T) {
	cfg := testConfig()
	conn := newPubConn()
	r := New(cfg, answer.Func(func(_ context.Context, q string) (string, error) {
		return "a:" + q, nil
	}))
	require.NoError(t, r.Subscribe(context.Background(), conn))
	r.HandleMessage(cfg.InputSubject, chatMsg("m1", "bob", "!ask one"))
	r.HandleMessage(cfg.InputSubject, chatMsg("m2", "amy", "!ask two"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx, &blockingRunner{conn: conn}) }()

	require.Eventually(t, func() bool {
		return len(conn.published(cfg.OutputSubject)) == 2
	}, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("responder did not stop")
	}
	// messages after shutdown are not enqueued
	r.HandleMessage(cfg.InputSubject, chatMsg("m3", "bob", "!ask three"))
	s := r.Stats()
	assert.Equal(t, int64(2), s.Published)
	assert.Equal(t, int64(2), s.Enqueued)
	assert.Equal(t, int64(1), s.Filtered)
}

func TestRunShutdownCancelsStuckAnswer(t *testing.T) {
	cfg := testConfig()
	cfg.AnswerTimeout = time.Minute
	cfg.ShutdownGrace = 20 * time.Millisecond
	conn := newPubConn()
	started := make(chan struct{})
	r := New(cfg, answer.Func(func(ctx context.Context, _ string) (string, error) {
		close(started)
		<-ctx.Done()
		return "", ctx.Err()
	}))
	require.NoError(t, r.Subscribe(context.Background(), conn))
	r.HandleMessage(cfg.InputSubject, chatMsg("m1", "bob", "!ask stuck"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx, &blockingRunner{conn: conn}) }()
	<-started
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("responder did not stop")
	}
	assert.Empty(t, conn.published(cfg.OutputSubject))
	assert.Equal(t, int64(1), r.Stats().Failed)
}

type authFailConnector struct {
	mu       sync.Mutex
	attempts int
}

func (a *authFailConnector) Connect(context.Context, func(error)) (bus.Conn, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.attempts++
	return nil, nats.ErrAuthorization
}

func TestRunFailsFastOnAuthViolations(t *testing.T) {
	cfg := testConfig()
	r := New(cfg, answer.Func(func(context.Context, string) (string, error) {
		return "x", nil
	}))
	connector := &authFailConnector{}
	sup := bus.NewSupervisor(connector, r.Subscribe,
		bus.WithSleep(func(ctx context.Context, _ time.Duration) bool { return ctx.Err() == nil }))

	done := make(chan error, 1)
	go func() { done <- r.Run(context.Background(), sup) }()

	select {
	case err := <-done:
		require.ErrorIs(t, err, bus.ErrAuthorizationFailFast)
	case <-time.After(3 * time.Second):
		t.Fatal("responder did not fail fast")
	}
	connector.mu.Lock()
	defer connector.mu.Unlock()
	assert.Equal(t, bus.DefaultMaxAuthViolations, connector.attempts)
}
