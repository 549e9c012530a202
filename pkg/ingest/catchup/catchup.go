// Package catchup replays the most recent history of subjects from the
// durable stream log before live traffic is consumed.
package catchup

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mpapenbr/simracecenter-agent-go/log"
	"github.com/mpapenbr/simracecenter-agent-go/pkg/bus"
	"github.com/mpapenbr/simracecenter-agent-go/pkg/model"
)

var ErrNoHistory = errors.New("catchup: stream has no messages")

// Handler applies one replayed message. It is the same handler used for live
// messages of the subject.
type Handler func(ctx context.Context, data []byte) error

// Target describes what to replay for one subject.
type Target struct {
	Stream  string
	Subject string
	Enabled bool
	Max     int
	Handler Handler
}

type (
	Engine struct {
		history   bus.History
		scanLimit int
		now       func() time.Time
		l         *log.Logger

		mu      sync.Mutex
		metrics model.CatchupMetrics
	}
	Option func(*Engine)
)

// WithScanLimit bounds the number of sequences inspected per target.
// 0 means the whole stream may be walked.
func WithScanLimit(n int) Option {
	return func(e *Engine) { e.scanLimit = n }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithLogger(l *log.Logger) Option {
	return func(e *Engine) { e.l = l }
}

func New(history bus.History, opts ...Option) *Engine {
	ret := &Engine{
		history: history,
		now:     time.Now,
		l:       log.Default().Named("catchup"),
		metrics: model.CatchupMetrics{
			Counts:   map[string]int{},
			Subjects: map[string]model.CatchupSubjectMetrics{},
		},
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

// Run replays all enabled targets concurrently and returns the aggregated
// metrics. A failing target does not affect the others.
func (e *Engine) Run(ctx context.Context, targets []Target) model.CatchupMetrics {
	started := e.now()
	e.mu.Lock()
	e.metrics.Started = started
	e.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, t := range targets {
		if !t.Enabled || t.Max <= 0 || t.Handler == nil {
			continue
		}
		g.Go(func() error {
			if err := e.runTarget(gctx, t); err != nil {
				if errors.Is(err, ErrNoHistory) {
					e.l.Debug("nothing to replay", log.String("subject", t.Subject))
				} else {
					e.l.Warn("catch-up failed",
						log.String("stream", t.Stream),
						log.String("subject", t.Subject),
						log.ErrorField(err))
				}
			}
			// never cancel siblings
			return nil
		})
	}
	//nolint:errcheck // targets never return errors
	g.Wait()

	completed := e.now()
	e.mu.Lock()
	defer e.mu.Unlock()
	e.metrics.Completed = completed
	e.metrics.Duration = completed.Sub(started)
	if e.metrics.Total > 0 {
		e.l.Info("catch-up complete",
			log.Int("subjects", len(e.metrics.Counts)),
			log.Int("total", e.metrics.Total),
			log.Duration("duration", e.metrics.Duration))
	}
	return e.snapshot()
}

// Metrics returns a copy of the metrics collected so far.
func (e *Engine) Metrics() model.CatchupMetrics {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshot()
}

func (e *Engine) snapshot() model.CatchupMetrics {
	ret := e.metrics
	ret.Counts = maps.Clone(e.metrics.Counts)
	ret.Subjects = maps.Clone(e.metrics.Subjects)
	return ret
}

func (e *Engine) runTarget(ctx context.Context, t Target) error {
	start := e.now()
	msgs, err := e.collect(ctx, t)
	if err != nil && len(msgs) == 0 {
		return err
	}
	// collected newest first, replay oldest first
	slices.Reverse(msgs)
	for _, m := range msgs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if hErr := t.Handler(ctx, m.Data); hErr != nil {
			e.l.Debug("replayed message not applied",
				log.String("subject", t.Subject),
				log.Uint64("seq", m.Sequence),
				log.ErrorField(hErr))
		}
	}
	end := e.now()
	if len(msgs) == 0 {
		return nil
	}
	e.mu.Lock()
	e.metrics.Counts[t.Subject] += len(msgs)
	e.metrics.Total += len(msgs)
	e.metrics.Subjects[t.Subject] = model.CatchupSubjectMetrics{
		Count:    len(msgs),
		Duration: end.Sub(start),
		Start:    start,
		End:      end,
	}
	total := e.metrics.Total
	e.mu.Unlock()
	e.l.Info("replayed",
		log.String("subject", t.Subject),
		log.Int("count", len(msgs)),
		log.Int("total", total),
		log.Duration("duration", end.Sub(start)))
	return err
}

// collect walks backward from the tail of the stream and returns up to t.Max
// messages matching t.Subject, newest first.
func (e *Engine) collect(ctx context.Context, t Target) ([]*bus.RawMessage, error) {
	last, err := e.history.LastSequence(ctx, t.Stream)
	if err != nil {
		return nil, err
	}
	if last == 0 {
		return nil, ErrNoHistory
	}
	ret := make([]*bus.RawMessage, 0, t.Max)
	scanned := 0
	for seq := last; seq > 0 && len(ret) < t.Max; seq-- {
		if e.scanLimit > 0 && scanned >= e.scanLimit {
			break
		}
		scanned++
		m, err := e.history.GetMessage(ctx, t.Stream, seq)
		if err != nil {
			if bus.IsMissingMessage(err) {
				continue
			}
			return ret, err
		}
		if m.Subject == t.Subject {
			ret = append(ret, m)
		}
	}
	return ret, nil
}
