package bus

import (
	"context"
	"errors"
	"sync"
)

type fakeConn struct {
	closed chan struct{}
	once   sync.Once
	mu     sync.Mutex
	subs   []string
	pubs   map[string][][]byte
	drains int
}

func newFakeConn() *fakeConn {
	return &fakeConn{closed: make(chan struct{}), pubs: map[string][][]byte{}}
}

type fakeSub struct{}

func (fakeSub) Unsubscribe() error { return nil }

func (c *fakeConn) Subscribe(subject string, _ Handler) (Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs = append(c.subs, subject)
	return fakeSub{}, nil
}

func (c *fakeConn) QueueSubscribe(subject, _ string, h Handler) (Subscription, error) {
	return c.Subscribe(subject, h)
}

func (c *fakeConn) Publish(subject string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pubs[subject] = append(c.pubs[subject], data)
	return nil
}

func (c *fakeConn) Closed() <-chan struct{} { return c.closed }

func (c *fakeConn) History() (History, error) { return nil, errors.New("no history") }

func (c *fakeConn) PullConsumer(context.Context, PullConfig) (Consumer, error) {
	return nil, errors.New("no consumer")
}

func (c *fakeConn) Drain() error {
	c.mu.Lock()
	c.drains++
	c.mu.Unlock()
	c.Close()
	return nil
}

func (c *fakeConn) Close() { c.once.Do(func() { close(c.closed) }) }

// scriptedConnector returns the results in order. Once exhausted it keeps
// returning the last connection.
type scriptedConnector struct {
	mu       sync.Mutex
	results  []connectResult
	attempts int
	asyncErr func(error)
}

type connectResult struct {
	conn *fakeConn
	err  error
}

func (s *scriptedConnector) Connect(_ context.Context, onAsyncErr func(error)) (Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.asyncErr = onAsyncErr
	idx := min(s.attempts, len(s.results)-1)
	s.attempts++
	r := s.results[idx]
	if r.err != nil {
		return nil, r.err
	}
	return r.conn, nil
}

func (s *scriptedConnector) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}
