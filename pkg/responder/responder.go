// Package responder answers viewer questions arriving on the chat subject.
package responder

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mpapenbr/simracecenter-agent-go/log"
	"github.com/mpapenbr/simracecenter-agent-go/pkg/answer"
	"github.com/mpapenbr/simracecenter-agent-go/pkg/bus"
	"github.com/mpapenbr/simracecenter-agent-go/pkg/model"
)

var errNotConnected = errors.New("responder: not connected")

// Config of the chat pipeline.
type Config struct {
	InputSubject    string
	OutputSubject   string
	QueueGroup      string
	MessageType     string
	TriggerPrefix   string
	IgnoreUsernames []string
	QueueSize       int
	Workers         int
	AnswerTimeout   time.Duration
	PollInterval    time.Duration
	ShutdownGrace   time.Duration
	StatsEvery      int
}

func DefaultConfig() Config {
	return Config{
		InputSubject:    "youtube.chat.message",
		OutputSubject:   "director.answer",
		QueueGroup:      "director_chat",
		MessageType:     "chat_message",
		IgnoreUsernames: []string{"Sim RaceCenter"},
		QueueSize:       100,
		Workers:         1,
		AnswerTimeout:   25 * time.Second,
		PollInterval:    500 * time.Millisecond,
		ShutdownGrace:   5 * time.Second,
		StatsEvery:      10,
	}
}

// Runner keeps the bus connection alive, usually a *bus.Supervisor.
type Runner interface {
	Run(ctx context.Context) error
}

type (
	Responder struct {
		cfg      Config
		filter   *Filter
		queue    *WorkQueue
		answerer answer.Answerer
		stats    *Stats
		now      func() time.Time
		tracer   trace.Tracer
		l        *log.Logger

		mu       sync.Mutex
		conn     bus.Conn
		stop     chan struct{}
		stopOnce sync.Once
		wg       sync.WaitGroup
	}
	Option func(*Responder)
)

func WithClock(now func() time.Time) Option {
	return func(r *Responder) { r.now = now }
}

func WithLogger(l *log.Logger) Option {
	return func(r *Responder) { r.l = l }
}

func New(cfg Config, answerer answer.Answerer, opts ...Option) *Responder {
	ret := &Responder{
		cfg:      cfg,
		filter:   NewFilter(cfg.MessageType, cfg.TriggerPrefix, cfg.IgnoreUsernames),
		queue:    NewWorkQueue(cfg.QueueSize),
		answerer: answerer,
		now:      time.Now,
		tracer:   otel.Tracer("sra.responder"),
		l:        log.Default().Named("responder"),
		stop:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(ret)
	}
	ret.cfg.Workers = max(1, ret.cfg.Workers)
	ret.cfg.StatsEvery = max(1, ret.cfg.StatsEvery)
	if ret.cfg.PollInterval <= 0 {
		ret.cfg.PollInterval = 500 * time.Millisecond
	}
	ret.stats = newStats(ret.now())
	return ret
}

// Subscribe opens the queue group subscription on a new connection.
func (r *Responder) Subscribe(_ context.Context, conn bus.Conn) error {
	r.mu.Lock()
	r.conn = conn
	r.mu.Unlock()
	if _, err := conn.QueueSubscribe(r.cfg.InputSubject, r.cfg.QueueGroup, r.HandleMessage); err != nil {
		return err
	}
	r.l.Info("subscribed",
		log.String("subject", r.cfg.InputSubject),
		log.String("queue", r.cfg.QueueGroup),
		log.String("response", r.cfg.OutputSubject),
		log.String("prefix", r.cfg.TriggerPrefix))
	return nil
}

// HandleMessage filters an inbound chat message and enqueues accepted ones.
// It never blocks.
func (r *Responder) HandleMessage(_ string, data []byte) {
	r.stats.Received.Add(1)
	if r.stopped() {
		r.stats.Filtered.Add(1)
		return
	}
	item, reason := r.filter.Accept(data, r.now())
	if reason != ReasonNone {
		r.stats.Filtered.Add(1)
		r.l.Debug("chat message filtered", log.String("reason", string(reason)))
		return
	}
	if !r.queue.Offer(&item) {
		r.stats.Dropped.Add(1)
		r.l.Warn("chat queue full, dropping message",
			log.String("id", item.ID),
			log.Int("size", r.queue.Len()),
			log.Int("max", r.queue.Cap()))
		return
	}
	r.stats.Enqueued.Add(1)
	r.l.Info("chat message enqueued",
		log.String("id", item.ID),
		log.String("user", item.Username),
		log.Int("qsize", r.queue.Len()))
}

// Run starts the workers and the connection runner. It returns when ctx is
// done or the runner fails (e.g. the auth breaker tripped). On return the
// workers are stopped, in-flight answers get the shutdown grace period.
func (r *Responder) Run(ctx context.Context, runner Runner) error {
	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()
	r.startWorkers(workerCtx)

	runnerCtx, cancelRunner := context.WithCancel(context.Background())
	defer cancelRunner()
	runnerErr := make(chan error, 1)
	go func() { runnerErr <- runner.Run(runnerCtx) }()

	var err error
	finished := false
	select {
	case <-ctx.Done():
	case err = <-runnerErr:
		finished = true
		if err != nil {
			r.l.Error("bus connection gave up", log.ErrorField(err))
		}
	}
	r.Shutdown(cancelWorkers)
	cancelRunner()
	if !finished {
		err = <-runnerErr
	}
	r.logStats()
	return err
}

func (r *Responder) startWorkers(ctx context.Context) {
	for i := range r.cfg.Workers {
		r.wg.Add(1)
		go func(id int) {
			defer r.wg.Done()
			r.worker(ctx, id)
		}(i)
	}
}

// Shutdown signals the workers to stop, waits for in-flight items up to the
// grace period and then calls forceCancel.
func (r *Responder) Shutdown(forceCancel context.CancelFunc) {
	r.stopOnce.Do(func() {
		close(r.stop)
		for range r.cfg.Workers {
			if !r.queue.Offer(nil) {
				break
			}
		}
	})
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(r.cfg.ShutdownGrace):
		r.l.Warn("workers did not finish in time, cancelling")
		forceCancel()
		<-done
	}
}

func (r *Responder) stopped() bool {
	select {
	case <-r.stop:
		return true
	default:
		return false
	}
}

func (r *Responder) worker(ctx context.Context, id int) {
	l := r.l.With(log.Int("worker", id))
	for {
		if r.stopped() || ctx.Err() != nil {
			return
		}
		item, ok := r.queue.Poll(ctx, r.cfg.PollInterval)
		if !ok {
			continue
		}
		if item == nil {
			l.Debug("stop sentinel received")
			return
		}
		r.process(ctx, l, item)
	}
}

func (r *Responder) process(ctx context.Context, l *log.Logger, item *WorkItem) {
	defer func() {
		if n := r.stats.Processed.Add(1); n%int64(r.cfg.StatsEvery) == 0 {
			r.logStats()
		}
	}()
	l.Info("processing chat message",
		log.String("id", item.ID),
		log.String("user", item.Username),
		log.Int("remaining", r.queue.Len()))

	text, err := r.answer(ctx, item)
	if err != nil {
		r.stats.Failed.Add(1)
		if errors.Is(err, context.DeadlineExceeded) {
			l.Warn("answer timed out, dropping message",
				log.String("id", item.ID), log.Duration("timeout", r.cfg.AnswerTimeout))
		} else {
			l.Warn("answer failed, dropping message",
				log.String("id", item.ID), log.ErrorField(err))
		}
		return
	}
	if err := r.publish(item, text); err != nil {
		r.stats.Failed.Add(1)
		l.Error("publish failed", log.String("id", item.ID), log.ErrorField(err))
		return
	}
	r.stats.Published.Add(1)
	l.Info("answer published", log.String("id", item.ID))
}

func (r *Responder) answer(ctx context.Context, item *WorkItem) (string, error) {
	actx, cancel := context.WithTimeout(ctx, r.cfg.AnswerTimeout)
	defer cancel()
	actx, span := r.tracer.Start(actx, "answer",
		trace.WithAttributes(
			attribute.String("chat.id", item.ID),
			attribute.String("chat.user", item.Username)))
	defer span.End()

	type result struct {
		text string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		text, err := r.answerer.Answer(actx, item.Text)
		ch <- result{text, err}
	}()
	select {
	case <-actx.Done():
		span.SetStatus(codes.Error, "timeout")
		return "", actx.Err()
	case res := <-ch:
		if res.err == nil && res.text == "" {
			res.err = answer.ErrNoAnswer
		}
		if res.err != nil {
			span.RecordError(res.err)
			span.SetStatus(codes.Error, res.err.Error())
		}
		return res.text, res.err
	}
}

func (r *Responder) publish(item *WorkItem, text string) error {
	r.mu.Lock()
	conn := r.conn
	r.mu.Unlock()
	if conn == nil {
		return errNotConnected
	}
	now := r.now().UTC()
	env := model.AnswerEnvelope{
		Type: "answer",
		Data: model.AnswerData{
			InputID:  item.ID,
			Username: item.Username,
			Question: item.Text,
			Answer:   text,
			TsISO:    now.Format("2006-01-02T15:04:05Z"),
			Ts:       float64(now.UnixNano()) / float64(time.Second),
		},
	}
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	if err := conn.Publish(r.cfg.OutputSubject, data); err != nil {
		return err
	}
	r.stats.answered(now)
	return nil
}

func (r *Responder) logStats() {
	s := r.Stats()
	fields := []log.Field{
		log.Int64("received", s.Received),
		log.Int64("filtered", s.Filtered),
		log.Int64("enqueued", s.Enqueued),
		log.Int64("processed", s.Processed),
		log.Int64("published", s.Published),
		log.Int64("dropped", s.Dropped),
		log.Int64("failed", s.Failed),
		log.Int("qsize", s.QueueDepth),
		log.Duration("uptime", r.now().Sub(s.StartTime)),
	}
	if !s.LastAnswerTime.IsZero() {
		fields = append(fields, log.Duration("lastAnswerAge", r.now().Sub(s.LastAnswerTime)))
	}
	r.l.Info("chat stats", fields...)
}

// Stats returns a snapshot of the pipeline counters.
func (r *Responder) Stats() model.ChatPipelineStats {
	return r.stats.snapshot(r.queue.Len())
}
