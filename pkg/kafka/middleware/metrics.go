package kafka_middleware

import (
	"context"
	"time"

	"diffatours/pkg/kafka"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	resultSuccess = "success"
	resultError   = "error"
)

// Metrics counts publish and consume outcomes per topic.
type Metrics struct {
	published       *prometheus.CounterVec
	consumed        *prometheus.CounterVec
	publishDuration *prometheus.HistogramVec
	consumeDuration *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kafka_messages_published_total",
			Help: "Kafka messages published, by topic and result.",
		}, []string{"topic", "result"}),
		consumed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kafka_messages_consumed_total",
			Help: "Kafka messages handled, by topic and result.",
		}, []string{"topic", "result"}),
		publishDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kafka_publish_duration_seconds",
			Help:    "Time spent publishing a Kafka message.",
			Buckets: prometheus.DefBuckets,
		}, []string{"topic"}),
		consumeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kafka_consume_duration_seconds",
			Help:    "Time spent handling a Kafka message.",
			Buckets: prometheus.DefBuckets,
		}, []string{"topic"}),
	}
	if reg != nil {
		reg.MustRegister(m.published, m.consumed, m.publishDuration, m.consumeDuration)
	}
	return m
}

func (m *Metrics) ProducerMiddleware() kafka.ProducerMiddleware {
	return func(ctx context.Context, msg kafka.Message, next func(ctx context.Context, msg kafka.Message) error) error {
		start := time.Now()
		err := next(ctx, msg)
		m.publishDuration.WithLabelValues(msg.Topic).Observe(time.Since(start).Seconds())
		m.published.WithLabelValues(msg.Topic, result(err)).Inc()
		return err
	}
}

func (m *Metrics) ConsumerMiddleware() kafka.ConsumerMiddleware {
	return func(ctx context.Context, msg kafka.Message, next kafka.MessageHandler) error {
		start := time.Now()
		err := next(ctx, msg)
		m.consumeDuration.WithLabelValues(msg.Topic).Observe(time.Since(start).Seconds())
		m.consumed.WithLabelValues(msg.Topic, result(err)).Inc()
		return err
	}
}

func result(err error) string {
	if err != nil {
		return resultError
	}
	return resultSuccess
}
