package ingest

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/mpapenbr/simracecenter-agent-go/log"
	"github.com/mpapenbr/simracecenter-agent-go/pkg/schema"
)

// SetupMetrics registers observable gauges for the ingestion counters.
//
//nolint:funlen // registration table
func (m *Manager) SetupMetrics() {
	meter := otel.GetMeterProvider().Meter("sra.ingest")
	register := func(name, desc string, cb metric.Int64Callback) {
		if _, err := meter.Int64ObservableGauge(
			name,
			metric.WithDescription(desc),
			metric.WithUnit("{count}"),
			metric.WithInt64Callback(cb),
		); err != nil {
			m.l.Error("failed to register metric",
				log.String("metric", name), log.ErrorField(err))
		}
	}
	perKind := func(counts func() map[schema.Subject]int64) metric.Int64Callback {
		return func(_ context.Context, o metric.Int64Observer) error {
			for k, v := range counts() {
				o.Observe(v, metric.WithAttributes(attribute.String("subject", string(k))))
			}
			return nil
		}
	}
	register("sra.ingest.accepted", "Number of applied payloads",
		perKind(func() map[schema.Subject]int64 {
			a, _ := m.proc.Counts()
			return a
		}))
	register("sra.ingest.rejected", "Number of rejected payloads",
		perKind(func() map[schema.Subject]int64 {
			_, r := m.proc.Counts()
			return r
		}))
	register("sra.catchup.replayed", "Number of messages replayed during catch-up",
		func(_ context.Context, o metric.Int64Observer) error {
			for k, v := range m.CatchupMetrics().Counts {
				o.Observe(int64(v), metric.WithAttributes(attribute.String("subject", k)))
			}
			return nil
		})
	register("sra.chat.pulled", "Number of chat messages pulled from the durable consumer",
		func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(m.ChatPersistenceMetrics().Pulled)
			return nil
		})
	register("sra.chat.persisted", "Number of chat messages stored",
		func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(m.ChatPersistenceMetrics().Persisted)
			return nil
		})
}
