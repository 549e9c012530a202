package responder

import (
	"sync/atomic"
	"time"

	"github.com/mpapenbr/simracecenter-agent-go/pkg/model"
)

// Stats are monotonic counters of the chat pipeline.
type Stats struct {
	Received       atomic.Int64
	Filtered       atomic.Int64
	Enqueued       atomic.Int64
	Dropped        atomic.Int64
	Processed      atomic.Int64
	Published      atomic.Int64
	Failed         atomic.Int64
	lastAnswerNano atomic.Int64
	start          time.Time
}

func newStats(now time.Time) *Stats {
	return &Stats{start: now}
}

func (s *Stats) answered(t time.Time) {
	s.lastAnswerNano.Store(t.UnixNano())
}

func (s *Stats) snapshot(queueDepth int) model.ChatPipelineStats {
	ret := model.ChatPipelineStats{
		Received:   s.Received.Load(),
		Filtered:   s.Filtered.Load(),
		Enqueued:   s.Enqueued.Load(),
		Dropped:    s.Dropped.Load(),
		Processed:  s.Processed.Load(),
		Published:  s.Published.Load(),
		Failed:     s.Failed.Load(),
		QueueDepth: queueDepth,
		StartTime:  s.start,
	}
	if n := s.lastAnswerNano.Load(); n != 0 {
		ret.LastAnswerTime = time.Unix(0, n)
	}
	return ret
}
