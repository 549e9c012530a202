package model

import "time"

// CatchupSubjectMetrics is the replay outcome for one subject.
type CatchupSubjectMetrics struct {
	Count    int           `json:"count"`
	Duration time.Duration `json:"duration"`
	Start    time.Time     `json:"start"`
	End      time.Time     `json:"end"`
}

// CatchupMetrics aggregates all subjects of a catch-up pass.
type CatchupMetrics struct {
	Counts    map[string]int                   `json:"counts"`
	Total     int                              `json:"total"`
	Started   time.Time                        `json:"started"`
	Completed time.Time                        `json:"completed"`
	Duration  time.Duration                    `json:"duration"`
	Subjects  map[string]CatchupSubjectMetrics `json:"subjects"`
}

// ChatPipelineStats are the responder health counters.
type ChatPipelineStats struct {
	Received       int64     `json:"received"`
	Filtered       int64     `json:"filtered"`
	Enqueued       int64     `json:"enqueued"`
	Processed      int64     `json:"processed"`
	Published      int64     `json:"published"`
	Dropped        int64     `json:"dropped"`
	Failed         int64     `json:"failed"`
	QueueDepth     int       `json:"queueDepth"`
	LastAnswerTime time.Time `json:"lastAnswerTime"`
	StartTime      time.Time `json:"startTime"`
}

// ChatPersistenceMetrics describe the chat pull loop.
type ChatPersistenceMetrics struct {
	Pulled     int64     `json:"pulled"`
	Persisted  int64     `json:"persisted"`
	LastID     string    `json:"lastId"`
	LastPull   time.Time `json:"lastPull"`
	LastInsert time.Time `json:"lastInsert"`
	Stream     string    `json:"stream"`
	Durable    string    `json:"durable"`
	Enabled    bool      `json:"enabled"`
}
