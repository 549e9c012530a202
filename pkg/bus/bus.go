// Package bus wraps the NATS connection used by ingestion and the chat
// responder. Consumers work against the Conn interface so they can be tested
// without a server.
package bus

import (
	"context"
	"time"
)

// Handler receives a single message of a subscription.
type Handler func(subject string, data []byte)

type Subscription interface {
	Unsubscribe() error
}

// Conn is an established bus connection.
type Conn interface {
	Subscribe(subject string, h Handler) (Subscription, error)
	QueueSubscribe(subject, queue string, h Handler) (Subscription, error)
	Publish(subject string, data []byte) error
	// Closed is closed once the connection is lost for good.
	Closed() <-chan struct{}
	// History provides access to the durable stream log.
	History() (History, error)
	// PullConsumer creates (or reuses) a durable pull consumer.
	PullConsumer(ctx context.Context, cfg PullConfig) (Consumer, error)
	// Drain unsubscribes, processes pending messages and closes the connection.
	Drain() error
	Close()
}

// Connector opens connections. onAsyncErr receives errors reported by the
// transport after the connection was established.
type Connector interface {
	Connect(ctx context.Context, onAsyncErr func(error)) (Conn, error)
}

// RawMessage is a message read from the durable stream log.
type RawMessage struct {
	Subject  string
	Sequence uint64
	Data     []byte
	Time     time.Time
}

// History reads the durable log by sequence.
type History interface {
	LastSequence(ctx context.Context, stream string) (uint64, error)
	GetMessage(ctx context.Context, stream string, seq uint64) (*RawMessage, error)
}

// Msg is a message delivered by a pull consumer.
type Msg interface {
	Subject() string
	Data() []byte
	Ack() error
	Term() error
}

type Consumer interface {
	Fetch(ctx context.Context, batch int, maxWait time.Duration) ([]Msg, error)
}

// PullConfig describes the stream and durable consumer of a pull loop.
type PullConfig struct {
	Stream        string
	Subjects      []string
	Durable       string
	FilterSubject string
	MaxAckPending int
}
