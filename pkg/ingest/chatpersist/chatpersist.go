// Package chatpersist pulls chat messages from a durable consumer and
// stores them.
package chatpersist

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/mpapenbr/simracecenter-agent-go/log"
	"github.com/mpapenbr/simracecenter-agent-go/pkg/bus"
	"github.com/mpapenbr/simracecenter-agent-go/pkg/model"
	"github.com/mpapenbr/simracecenter-agent-go/pkg/schema"
	"github.com/mpapenbr/simracecenter-agent-go/pkg/storage"
)

// Ingester validates a chat payload, updates the cache and inserts the row.
type Ingester interface {
	IngestChat(ctx context.Context, data []byte, persist bool) (inserted bool, err error)
}

// ConsumerFactory creates the durable pull consumer. It is called again after
// a failed fetch.
type ConsumerFactory func(ctx context.Context) (bus.Consumer, error)

type (
	Loop struct {
		factory  ConsumerFactory
		ingester Ingester
		store    storage.Store
		batch    int
		interval time.Duration
		stream   string
		durable  string
		now      func() time.Time
		l        *log.Logger

		mu      sync.Mutex
		metrics model.ChatPersistenceMetrics
	}
	Option func(*Loop)
)

func WithBatch(n int) Option {
	return func(l *Loop) { l.batch = n }
}

// WithInterval sets the max wait of a fetch and the pause after errors.
func WithInterval(d time.Duration) Option {
	return func(l *Loop) { l.interval = d }
}

func WithNames(stream, durable string) Option {
	return func(l *Loop) {
		l.stream = stream
		l.durable = durable
	}
}

func WithLogger(logger *log.Logger) Option {
	return func(l *Loop) { l.l = logger }
}

//nolint:whitespace // can't make both editor and linter happy
func New(
	factory ConsumerFactory,
	ingester Ingester,
	store storage.Store,
	opts ...Option,
) *Loop {
	ret := &Loop{
		factory:  factory,
		ingester: ingester,
		store:    store,
		batch:    50,
		interval: time.Second,
		now:      time.Now,
		l:        log.Default().Named("chatpersist"),
	}
	for _, opt := range opts {
		opt(ret)
	}
	ret.batch = max(1, ret.batch)
	ret.interval = max(100*time.Millisecond, ret.interval)
	ret.metrics.Stream = ret.stream
	ret.metrics.Durable = ret.durable
	ret.metrics.Enabled = true
	return ret
}

// Run pulls until ctx is done. Each batch is committed once if it produced
// new rows. A final commit is issued on exit.
func (l *Loop) Run(ctx context.Context) {
	l.l.Info("starting chat persistence",
		log.String("stream", l.stream), log.String("durable", l.durable))
	defer l.finalCommit()

	var consumer bus.Consumer
	for ctx.Err() == nil {
		if consumer == nil {
			c, err := l.factory(ctx)
			if err != nil {
				l.l.Debug("ensure consumer failed", log.ErrorField(err))
				l.pause(ctx)
				continue
			}
			consumer = c
		}
		msgs, err := consumer.Fetch(ctx, l.batch, l.interval)
		if err != nil && len(msgs) == 0 {
			if ctx.Err() != nil {
				return
			}
			l.l.Debug("fetch failed", log.ErrorField(err))
			consumer = nil
			l.pause(ctx)
			continue
		}
		l.processBatch(ctx, msgs)
	}
}

func (l *Loop) processBatch(ctx context.Context, msgs []bus.Msg) {
	if len(msgs) == 0 {
		return
	}
	l.mu.Lock()
	l.metrics.Pulled += int64(len(msgs))
	l.metrics.LastPull = l.now()
	l.mu.Unlock()

	changed := false
	for _, m := range msgs {
		if l.processOne(ctx, m) {
			changed = true
		}
	}
	if changed {
		if err := l.store.Commit(ctx); err != nil {
			l.l.Warn("commit failed", log.ErrorField(err))
		}
	}
}

// processOne returns true if a new row was inserted.
func (l *Loop) processOne(ctx context.Context, m bus.Msg) bool {
	inserted, err := l.ingester.IngestChat(ctx, m.Data(), true)
	var rejected schema.Rejected
	switch {
	case errors.As(err, &rejected):
		l.ack(m)
		return false
	case err != nil:
		l.l.Warn("chat message not stored", log.ErrorField(err))
		if tErr := m.Term(); tErr != nil {
			l.l.Debug("term failed", log.ErrorField(tErr))
		}
		return false
	}
	if inserted {
		l.mu.Lock()
		l.metrics.Persisted++
		l.metrics.LastInsert = l.now()
		if id, ok := ChatID(m.Data()); ok {
			l.metrics.LastID = id
		}
		l.mu.Unlock()
	}
	l.ack(m)
	return inserted
}

func (l *Loop) ack(m bus.Msg) {
	if err := m.Ack(); err != nil {
		l.l.Debug("ack failed", log.ErrorField(err))
	}
}

func (l *Loop) finalCommit() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := l.store.Commit(ctx); err != nil {
		l.l.Warn("final commit failed", log.ErrorField(err))
	}
	l.l.Info("chat persistence stopped")
}

func (l *Loop) pause(ctx context.Context) {
	t := time.NewTimer(l.interval)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// Metrics returns a copy of the loop metrics.
func (l *Loop) Metrics() model.ChatPersistenceMetrics {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.metrics
}
