package kafka_middleware

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"diffatours/pkg/kafka"
	"diffatours/pkg/logger"
)

func TestMetrics_CountsByTopicAndResult(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	msg := kafka.Message{Topic: "capacity.events"}

	publish := m.ProducerMiddleware()
	_ = publish(context.Background(), msg, func(context.Context, kafka.Message) error { return nil })
	_ = publish(context.Background(), msg, func(context.Context, kafka.Message) error { return errors.New("broker down") })

	consume := m.ConsumerMiddleware()
	err := consume(context.Background(), msg, func(context.Context, kafka.Message) error { return nil })

	assert.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.published.WithLabelValues("capacity.events", resultSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.published.WithLabelValues("capacity.events", resultError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.consumed.WithLabelValues("capacity.events", resultSuccess)))
}

func TestLoggingMiddleware_PassesErrorsThrough(t *testing.T) {
	want := errors.New("ledger unavailable")
	msg := kafka.Message{Topic: "capacity.reconciliation_required"}

	err := LoggingConsumerMiddleware(logger.Discard())(context.Background(), msg, func(context.Context, kafka.Message) error {
		return want
	})
	assert.ErrorIs(t, err, want)

	err = LoggingProducerMiddleware(logger.Discard())(context.Background(), msg, func(context.Context, kafka.Message) error {
		return nil
	})
	assert.NoError(t, err)
}
