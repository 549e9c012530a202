package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/mpapenbr/simracecenter-agent-go/log"
)

type (
	// NatsConnector opens NATS connections.
	NatsConnector struct {
		url            string
		user           string
		password       string
		name           string
		connectTimeout time.Duration
		maxReconnects  int
		reconnectWait  time.Duration
		l              *log.Logger
	}
	NatsOption func(*NatsConnector)
)

func WithCredentials(user, password string) NatsOption {
	return func(n *NatsConnector) {
		n.user = user
		n.password = password
	}
}

func WithClientName(name string) NatsOption {
	return func(n *NatsConnector) { n.name = name }
}

func WithConnectTimeout(d time.Duration) NatsOption {
	return func(n *NatsConnector) { n.connectTimeout = d }
}

// WithReconnects configures the reconnects performed by the client library
// before the connection is reported as closed.
func WithReconnects(maxReconnects int, wait time.Duration) NatsOption {
	return func(n *NatsConnector) {
		n.maxReconnects = maxReconnects
		n.reconnectWait = wait
	}
}

func WithNatsLogger(l *log.Logger) NatsOption {
	return func(n *NatsConnector) { n.l = l }
}

// DefaultClientName returns a client name unique per process so that
// several agents can be told apart in the server's connection list.
func DefaultClientName() string {
	return "simracecenter-agent-" + uuid.NewString()[:8]
}

func NewNatsConnector(url string, opts ...NatsOption) *NatsConnector {
	ret := &NatsConnector{
		url:            url,
		name:           DefaultClientName(),
		connectTimeout: 5 * time.Second,
		maxReconnects:  3,
		reconnectWait:  2 * time.Second,
		l:              log.Default().Named("nats"),
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

//nolint:whitespace // can't make both editor and linter happy
func (n *NatsConnector) Connect(
	ctx context.Context,
	onAsyncErr func(error),
) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ret := &natsConn{closed: make(chan struct{})}
	opts := []nats.Option{
		nats.Name(n.name),
		nats.Timeout(n.connectTimeout),
		nats.MaxReconnects(n.maxReconnects),
		nats.ReconnectWait(n.reconnectWait),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			fields := []log.Field{log.ErrorField(err)}
			if sub != nil {
				fields = append(fields, log.String("subject", sub.Subject))
			}
			n.l.Error("async error", fields...)
			if onAsyncErr != nil {
				onAsyncErr(err)
			}
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			n.l.Warn("disconnected", log.ErrorField(err))
			if err != nil && onAsyncErr != nil {
				onAsyncErr(err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			n.l.Info("reconnected", log.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			n.l.Warn("connection closed")
			ret.markClosed()
		}),
	}
	if n.user != "" {
		opts = append(opts, nats.UserInfo(n.user, n.password))
	}
	nc, err := nats.Connect(n.url, opts...)
	if err != nil {
		if IsAuthViolation(err) {
			n.l.Error("authorization failure, check credentials",
				log.String("url", n.url), log.String("user", n.user))
		}
		return nil, err
	}
	n.l.Info("connected", log.String("url", nc.ConnectedUrl()))
	ret.nc = nc
	return ret, nil
}

type natsConn struct {
	nc     *nats.Conn
	closed chan struct{}
	once   sync.Once
	jsOnce sync.Once
	js     jetstream.JetStream
	jsErr  error
}

func (c *natsConn) markClosed() {
	c.once.Do(func() { close(c.closed) })
}

func wrapHandler(h Handler) nats.MsgHandler {
	return func(msg *nats.Msg) { h(msg.Subject, msg.Data) }
}

func (c *natsConn) Subscribe(subject string, h Handler) (Subscription, error) {
	return c.nc.Subscribe(subject, wrapHandler(h))
}

//nolint:whitespace // can't make both editor and linter happy
func (c *natsConn) QueueSubscribe(
	subject, queue string,
	h Handler,
) (Subscription, error) {
	return c.nc.QueueSubscribe(subject, queue, wrapHandler(h))
}

func (c *natsConn) Publish(subject string, data []byte) error {
	return c.nc.Publish(subject, data)
}

func (c *natsConn) Closed() <-chan struct{} {
	return c.closed
}

func (c *natsConn) Drain() error {
	return c.nc.Drain()
}

func (c *natsConn) Close() {
	c.nc.Close()
	c.markClosed()
}

func (c *natsConn) jetStream() (jetstream.JetStream, error) {
	c.jsOnce.Do(func() {
		c.js, c.jsErr = jetstream.New(c.nc)
	})
	return c.js, c.jsErr
}

func (c *natsConn) History() (History, error) {
	js, err := c.jetStream()
	if err != nil {
		return nil, err
	}
	return &jsHistory{js: js}, nil
}

//nolint:whitespace // can't make both editor and linter happy
func (c *natsConn) PullConsumer(
	ctx context.Context,
	cfg PullConfig,
) (Consumer, error) {
	js, err := c.jetStream()
	if err != nil {
		return nil, err
	}
	return EnsurePullConsumer(ctx, js, cfg)
}

type jsHistory struct {
	js jetstream.JetStream
}

func (h *jsHistory) LastSequence(ctx context.Context, stream string) (uint64, error) {
	s, err := h.js.Stream(ctx, stream)
	if err != nil {
		return 0, err
	}
	info, err := s.Info(ctx)
	if err != nil {
		return 0, err
	}
	return info.State.LastSeq, nil
}

//nolint:whitespace // can't make both editor and linter happy
func (h *jsHistory) GetMessage(
	ctx context.Context,
	stream string,
	seq uint64,
) (*RawMessage, error) {
	s, err := h.js.Stream(ctx, stream)
	if err != nil {
		return nil, err
	}
	m, err := s.GetMsg(ctx, seq)
	if err != nil {
		return nil, err
	}
	return &RawMessage{
		Subject:  m.Subject,
		Sequence: m.Sequence,
		Data:     m.Data,
		Time:     m.Time,
	}, nil
}

// IsMissingMessage reports whether err means the sequence does not exist
// (deleted or purged), which is expected while walking a stream.
func IsMissingMessage(err error) bool {
	return errors.Is(err, jetstream.ErrMsgNotFound)
}

// EnsurePullConsumer creates the stream (if absent) and the durable pull
// consumer. Existing streams and consumers are reused.
//
//nolint:whitespace // can't make both editor and linter happy
func EnsurePullConsumer(
	ctx context.Context,
	js jetstream.JetStream,
	cfg PullConfig,
) (Consumer, error) {
	stream, err := js.Stream(ctx, cfg.Stream)
	if errors.Is(err, jetstream.ErrStreamNotFound) {
		stream, err = js.CreateStream(ctx, jetstream.StreamConfig{
			Name:     cfg.Stream,
			Subjects: cfg.Subjects,
		})
		if errors.Is(err, jetstream.ErrStreamNameAlreadyInUse) {
			stream, err = js.Stream(ctx, cfg.Stream)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("stream %s: %w", cfg.Stream, err)
	}
	maxAck := cfg.MaxAckPending
	if maxAck <= 0 {
		maxAck = 1000
	}
	cons, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Durable:       cfg.Durable,
		DeliverPolicy: jetstream.DeliverAllPolicy,
		AckPolicy:     jetstream.AckExplicitPolicy,
		MaxAckPending: maxAck,
		FilterSubject: cfg.FilterSubject,
	})
	if err != nil {
		return nil, fmt.Errorf("consumer %s: %w", cfg.Durable, err)
	}
	return &jsConsumer{c: cons}, nil
}

type jsConsumer struct {
	c jetstream.Consumer
}

// Fetch waits at most maxWait for up to batch messages. A timeout without
// messages is not an error.
//
//nolint:whitespace // can't make both editor and linter happy
func (j *jsConsumer) Fetch(
	ctx context.Context,
	batch int,
	maxWait time.Duration,
) ([]Msg, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := j.c.Fetch(batch, jetstream.FetchMaxWait(maxWait))
	if err != nil {
		return nil, err
	}
	ret := make([]Msg, 0, batch)
	for m := range b.Messages() {
		ret = append(ret, m)
	}
	if err := b.Error(); err != nil && !errors.Is(err, nats.ErrTimeout) {
		return ret, err
	}
	return ret, nil
}
