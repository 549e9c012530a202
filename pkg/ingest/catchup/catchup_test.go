package catchup

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpapenbr/simracecenter-agent-go/pkg/bus"
)

type fakeHistory struct {
	streams map[string][]*bus.RawMessage // index = seq-1, nil = deleted
	failOn  map[string]error
}

func (f *fakeHistory) LastSequence(_ context.Context, stream string) (uint64, error) {
	if err, ok := f.failOn[stream]; ok {
		return 0, err
	}
	return uint64(len(f.streams[stream])), nil
}

//nolint:whitespace // test helper
func (f *fakeHistory) GetMessage(
	_ context.Context,
	stream string,
	seq uint64,
) (*bus.RawMessage, error) {
	msgs := f.streams[stream]
	if seq == 0 || seq > uint64(len(msgs)) {
		return nil, fmt.Errorf("seq %d out of range", seq)
	}
	if msgs[seq-1] == nil {
		return nil, jetstream.ErrMsgNotFound
	}
	return msgs[seq-1], nil
}

func msg(subject string, seq uint64) *bus.RawMessage {
	return &bus.RawMessage{Subject: subject, Sequence: seq, Data: []byte(strconv.FormatUint(seq, 10))}
}

type recorder struct {
	mu   sync.Mutex
	seen []string
}

func (r *recorder) handle(_ context.Context, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, string(data))
	return nil
}

func TestReplayAscendingOrder(t *testing.T) {
	h := &fakeHistory{streams: map[string][]*bus.RawMessage{
		"HIST": {msg("a", 1), msg("a", 2), msg("a", 3), msg("a", 4), msg("a", 5)},
	}}
	rec := &recorder{}
	e := New(h)
	m := e.Run(context.Background(), []Target{
		{Stream: "HIST", Subject: "a", Enabled: true, Max: 3, Handler: rec.handle},
	})
	assert.Equal(t, []string{"3", "4", "5"}, rec.seen)
	assert.Equal(t, 3, m.Total)
	assert.Equal(t, 3, m.Counts["a"])
	assert.Equal(t, 3, m.Subjects["a"].Count)
	assert.False(t, m.Completed.Before(m.Started))
}

func TestReplayFiltersSubjectAndSkipsGaps(t *testing.T) {
	h := &fakeHistory{streams: map[string][]*bus.RawMessage{
		"HIST": {msg("a", 1), msg("b", 2), nil, msg("a", 4), msg("b", 5), msg("a", 6)},
	}}
	recA, recB := &recorder{}, &recorder{}
	e := New(h)
	m := e.Run(context.Background(), []Target{
		{Stream: "HIST", Subject: "a", Enabled: true, Max: 10, Handler: recA.handle},
		{Stream: "HIST", Subject: "b", Enabled: true, Max: 1, Handler: recB.handle},
	})
	assert.Equal(t, []string{"1", "4", "6"}, recA.seen)
	assert.Equal(t, []string{"5"}, recB.seen)
	assert.Equal(t, 4, m.Total)
}

func TestFailingTargetDoesNotAffectOthers(t *testing.T) {
	h := &fakeHistory{
		streams: map[string][]*bus.RawMessage{"OK": {msg("a", 1), msg("a", 2)}},
		failOn:  map[string]error{"BROKEN": errors.New("stream not found")},
	}
	rec, broken := &recorder{}, &recorder{}
	e := New(h)
	m := e.Run(context.Background(), []Target{
		{Stream: "BROKEN", Subject: "x", Enabled: true, Max: 5, Handler: broken.handle},
		{Stream: "OK", Subject: "a", Enabled: true, Max: 5, Handler: rec.handle},
	})
	assert.Equal(t, []string{"1", "2"}, rec.seen)
	assert.Empty(t, broken.seen)
	assert.Equal(t, 2, m.Total)
	_, ok := m.Subjects["x"]
	assert.False(t, ok)
}

func TestDisabledAndEmptyTargets(t *testing.T) {
	h := &fakeHistory{streams: map[string][]*bus.RawMessage{
		"HIST":  {msg("a", 1)},
		"EMPTY": {},
	}}
	rec := &recorder{}
	e := New(h)
	m := e.Run(context.Background(), []Target{
		{Stream: "HIST", Subject: "a", Enabled: false, Max: 5, Handler: rec.handle},
		{Stream: "HIST", Subject: "a", Enabled: true, Max: 0, Handler: rec.handle},
		{Stream: "EMPTY", Subject: "a", Enabled: true, Max: 5, Handler: rec.handle},
	})
	assert.Empty(t, rec.seen)
	assert.Equal(t, 0, m.Total)
	assert.Empty(t, m.Subjects)
}

func TestHandlerErrorsAreContained(t *testing.T) {
	h := &fakeHistory{streams: map[string][]*bus.RawMessage{
		"HIST": {msg("a", 1), msg("a", 2)},
	}}
	calls := 0
	e := New(h)
	m := e.Run(context.Background(), []Target{{
		Stream: "HIST", Subject: "a", Enabled: true, Max: 5,
		Handler: func(context.Context, []byte) error {
			calls++
			return errors.New("bad payload")
		},
	}})
	assert.Equal(t, 2, calls)
	assert.Equal(t, 2, m.Total)
}

func TestScanLimit(t *testing.T) {
	h := &fakeHistory{streams: map[string][]*bus.RawMessage{
		"HIST": {msg("a", 1), msg("b", 2), msg("b", 3), msg("b", 4)},
	}}
	rec := &recorder{}
	e := New(h, WithScanLimit(3))
	e.Run(context.Background(), []Target{
		{Stream: "HIST", Subject: "a", Enabled: true, Max: 5, Handler: rec.handle},
	})
	require.Empty(t, rec.seen)
	assert.Equal(t, 0, e.Metrics().Total)
}
