package responder

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/mpapenbr/simracecenter-agent-go/log"
	"github.com/mpapenbr/simracecenter-agent-go/pkg/model"
)

// SetupMetrics registers observable gauges for the pipeline counters.
func (r *Responder) SetupMetrics() {
	meter := otel.GetMeterProvider().Meter("sra.responder")
	gauges := []struct {
		name, desc string
		value      func(s model.ChatPipelineStats) int64
	}{
		{"sra.chat.received", "Number of inbound chat messages",
			func(s model.ChatPipelineStats) int64 { return s.Received }},
		{"sra.chat.filtered", "Number of chat messages rejected by the filters",
			func(s model.ChatPipelineStats) int64 { return s.Filtered }},
		{"sra.chat.enqueued", "Number of accepted questions",
			func(s model.ChatPipelineStats) int64 { return s.Enqueued }},
		{"sra.chat.dropped", "Number of questions dropped because the queue was full",
			func(s model.ChatPipelineStats) int64 { return s.Dropped }},
		{"sra.chat.published", "Number of published answers",
			func(s model.ChatPipelineStats) int64 { return s.Published }},
		{"sra.chat.failed", "Number of questions without answer",
			func(s model.ChatPipelineStats) int64 { return s.Failed }},
		{"sra.chat.queue_depth", "Current number of pending questions",
			func(s model.ChatPipelineStats) int64 { return int64(s.QueueDepth) }},
	}
	for _, g := range gauges {
		if _, err := meter.Int64ObservableGauge(
			g.name,
			metric.WithDescription(g.desc),
			metric.WithUnit("{count}"),
			metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
				o.Observe(g.value(r.Stats()))
				return nil
			}),
		); err != nil {
			r.l.Error("failed to register metric",
				log.String("metric", g.name), log.ErrorField(err))
		}
	}
}
