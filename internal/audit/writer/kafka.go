package writer

import (
	"context"
	"encoding/json"
	"log/slog"

	"helpdesk/internal/audit"
	"helpdesk/internal/audit/metrics"
	"helpdesk/internal/platform/kafka"
)

// KafkaSink fans persisted entries out to a Kafka topic for SIEM consumers.
// Publishing is fire-and-forget: delivery failures are counted and logged but
// never block or fail the write path. Entries are keyed by traceId so all
// entries of one request land in the same partition.
type KafkaSink struct {
	producer *kafka.Producer
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// NewKafkaSink wraps a producer. logger and metrics may be nil.
func NewKafkaSink(producer *kafka.Producer, logger *slog.Logger, m *metrics.Metrics) *KafkaSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &KafkaSink{producer: producer, logger: logger, metrics: m}
}

// Publish serializes the entry and hands it to the producer.
func (s *KafkaSink) Publish(ctx context.Context, entry *audit.Entry) {
	payload, err := json.Marshal(entry)
	if err != nil {
		s.logger.Warn("audit kafka publish skipped: marshal failed",
			"entry_id", entry.ID,
			"error", err,
		)
		return
	}

	traceID := entry.TraceID
	s.producer.Produce(ctx, []byte(traceID), payload, func(err error) {
		if err == nil {
			return
		}
		if s.metrics != nil {
			s.metrics.IncKafkaFailure()
		}
		s.logger.Warn("audit kafka publish failed",
			"trace_id", traceID,
			"error", err,
		)
	})
}
