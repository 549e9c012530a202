package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mpapenbr/simracecenter-agent-go/log"
	"github.com/mpapenbr/simracecenter-agent-go/pkg/bus"
	"github.com/mpapenbr/simracecenter-agent-go/pkg/ingest/catchup"
	"github.com/mpapenbr/simracecenter-agent-go/pkg/ingest/chatpersist"
	"github.com/mpapenbr/simracecenter-agent-go/pkg/model"
	"github.com/mpapenbr/simracecenter-agent-go/pkg/schema"
)

var errNotConnected = errors.New("ingest: not connected")

// Config controls which subjects are consumed and how.
type Config struct {
	Subjects         []SubjectConfig
	EnableCatchup    bool
	CatchupScanLimit int
	ChatPersist      bool
	ChatStream       string
	ChatDurable      string
	ChatPullBatch    int
	ChatPullInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		Subjects:         DefaultSubjects(),
		EnableCatchup:    true,
		ChatPersist:      true,
		ChatStream:       ChatStream,
		ChatDurable:      ChatDurable,
		ChatPullBatch:    DefaultPullSize,
		ChatPullInterval: time.Second,
	}
}

type (
	// Manager establishes the replay and live subscriptions on every new bus
	// connection. Its Subscribe method is used as the supervisor's
	// subscribing step.
	Manager struct {
		cfg  Config
		proc *Processor
		l    *log.Logger

		mu          sync.Mutex
		conn        bus.Conn
		catchup     model.CatchupMetrics
		replayed    model.ChatPersistenceMetrics
		persist     *chatpersist.Loop
		persistDone chan struct{}
	}
	ManagerOption func(*Manager)
)

func WithManagerLogger(l *log.Logger) ManagerOption {
	return func(m *Manager) { m.l = l }
}

func NewManager(cfg Config, proc *Processor, opts ...ManagerOption) *Manager {
	ret := &Manager{
		cfg:  cfg,
		proc: proc,
		l:    log.Default().Named("ingest"),
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

func (m *Manager) chatSubject() (SubjectConfig, bool) {
	for _, s := range m.cfg.Subjects {
		if s.Kind == schema.ChatMessage && s.Enabled {
			return s, true
		}
	}
	return SubjectConfig{}, false
}

func (m *Manager) persistEnabled() bool {
	_, ok := m.chatSubject()
	return ok && m.cfg.ChatPersist && m.proc.Store() != nil
}

// Subscribe runs the catch-up (if enabled), opens one live subscription per
// enabled subject and starts the chat persistence loop.
func (m *Manager) Subscribe(ctx context.Context, conn bus.Conn) error {
	m.mu.Lock()
	m.conn = conn
	m.mu.Unlock()

	if m.cfg.EnableCatchup {
		m.runCatchup(ctx, conn)
	}
	for _, s := range m.cfg.Subjects {
		if !s.Enabled || s.Name == "" {
			continue
		}
		if _, err := conn.Subscribe(s.Name, m.liveHandler(ctx, s.Kind)); err != nil {
			return fmt.Errorf("subscribe %s: %w", s.Name, err)
		}
		m.l.Debug("subscribed", log.String("subject", s.Name))
	}
	if m.persistEnabled() {
		m.startPersist(ctx)
	}
	return nil
}

func (m *Manager) liveHandler(ctx context.Context, kind schema.Subject) bus.Handler {
	return func(subject string, data []byte) {
		if err := m.proc.Process(ctx, kind, data); err != nil {
			var r schema.Rejected
			if !errors.As(err, &r) {
				m.l.Warn("message not applied",
					log.String("subject", subject), log.ErrorField(err))
			}
		}
	}
}

func (m *Manager) runCatchup(ctx context.Context, conn bus.Conn) {
	history, err := conn.History()
	if err != nil {
		m.l.Warn("catch-up unavailable", log.ErrorField(err))
		return
	}
	persist := m.persistEnabled()
	targets := make([]catchup.Target, 0, len(m.cfg.Subjects))
	for _, s := range m.cfg.Subjects {
		kind := s.Kind
		var h catchup.Handler
		if kind == schema.ChatMessage {
			stream := s.Stream
			if m.cfg.ChatStream != "" {
				stream = m.cfg.ChatStream
			}
			s.Stream = stream
			// chat history is only replayed when it is persisted
			s.Enabled = s.Enabled && persist
			h = func(ctx context.Context, data []byte) error {
				inserted, err := m.proc.IngestChat(ctx, data, true)
				if inserted {
					m.recordReplayed(data)
				}
				return err
			}
		} else {
			h = func(ctx context.Context, data []byte) error {
				return m.proc.Process(ctx, kind, data)
			}
		}
		targets = append(targets, catchup.Target{
			Stream:  s.Stream,
			Subject: s.Name,
			Enabled: s.Enabled && s.Stream != "",
			Max:     s.CatchupMax,
			Handler: h,
		})
	}
	engine := catchup.New(history,
		catchup.WithScanLimit(m.cfg.CatchupScanLimit),
		catchup.WithLogger(m.l.Named("catchup")))
	metrics := engine.Run(ctx, targets)
	if persist {
		if err := m.proc.Store().Commit(ctx); err != nil {
			m.l.Warn("commit after catch-up failed", log.ErrorField(err))
		}
	}
	m.mu.Lock()
	m.catchup = mergeCatchup(m.catchup, metrics)
	m.mu.Unlock()
}

// recordReplayed counts a chat row inserted during catch-up.
func (m *Manager) recordReplayed(data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replayed.Persisted++
	m.replayed.LastInsert = time.Now()
	if id, ok := chatpersist.ChatID(data); ok {
		m.replayed.LastID = id
	}
}

func mergeCatchup(prev, cur model.CatchupMetrics) model.CatchupMetrics {
	if prev.Counts == nil {
		return cur
	}
	ret := cur
	ret.Total = prev.Total + cur.Total
	ret.Counts = map[string]int{}
	ret.Subjects = map[string]model.CatchupSubjectMetrics{}
	for k, v := range prev.Counts {
		ret.Counts[k] += v
	}
	for k, v := range cur.Counts {
		ret.Counts[k] += v
	}
	for k, v := range prev.Subjects {
		ret.Subjects[k] = v
	}
	for k, v := range cur.Subjects {
		ret.Subjects[k] = v
	}
	return ret
}

func (m *Manager) startPersist(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.persist != nil {
		return
	}
	chat, _ := m.chatSubject()
	cfg := bus.PullConfig{
		Stream:        m.cfg.ChatStream,
		Subjects:      []string{chat.Name},
		Durable:       m.cfg.ChatDurable,
		FilterSubject: chat.Name,
	}
	m.persist = chatpersist.New(
		func(ctx context.Context) (bus.Consumer, error) {
			conn := m.currentConn()
			if conn == nil {
				return nil, errNotConnected
			}
			return conn.PullConsumer(ctx, cfg)
		},
		m.proc,
		m.proc.Store(),
		chatpersist.WithBatch(m.cfg.ChatPullBatch),
		chatpersist.WithInterval(m.cfg.ChatPullInterval),
		chatpersist.WithNames(m.cfg.ChatStream, m.cfg.ChatDurable),
		chatpersist.WithLogger(m.l.Named("chatpersist")),
	)
	m.persistDone = make(chan struct{})
	go func(loop *chatpersist.Loop, done chan struct{}) {
		defer close(done)
		loop.Run(ctx)
	}(m.persist, m.persistDone)
}

func (m *Manager) currentConn() bus.Conn {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn
}

// Wait blocks until the chat persistence loop has finished its final commit
// or the timeout elapsed. The loop stops when the context given to Subscribe
// is done.
func (m *Manager) Wait(timeout time.Duration) bool {
	m.mu.Lock()
	done := m.persistDone
	m.mu.Unlock()
	if done == nil {
		return true
	}
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

func (m *Manager) CatchupMetrics() model.CatchupMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.catchup
}

// ChatPersistenceMetrics returns the pull loop metrics including the rows
// inserted while replaying chat history. Enabled is false if persistence is
// not configured.
func (m *Manager) ChatPersistenceMetrics() model.ChatPersistenceMetrics {
	m.mu.Lock()
	loop := m.persist
	replayed := m.replayed
	m.mu.Unlock()
	ret := model.ChatPersistenceMetrics{
		Stream:  m.cfg.ChatStream,
		Durable: m.cfg.ChatDurable,
		Enabled: m.persistEnabled(),
	}
	if loop != nil {
		ret = loop.Metrics()
	}
	ret.Persisted += replayed.Persisted
	if replayed.LastInsert.After(ret.LastInsert) {
		ret.LastInsert = replayed.LastInsert
		ret.LastID = replayed.LastID
	}
	return ret
}
