package events

import (
	"context"
	"errors"
	"time"

	"diffatours/pkg/kafka"
	kafka_config "diffatours/pkg/kafka/config"
	kafka_middleware "diffatours/pkg/kafka/middleware"
	"diffatours/pkg/logger"
	"diffatours/pkg/model"
)

const (
	EventReserved               = "capacity.reserved"
	EventReleased               = "capacity.released"
	EventReconciliationRequired = "capacity.reconciliation_required"

	SchemaVersion = "1"
	Source        = "capacity-service"
)

// CapacityEvent is the payload of reserved and released events.
type CapacityEvent struct {
	OrderRef   string           `json:"order_ref,omitempty"`
	Items      []model.LineItem `json:"items"`
	OccurredAt time.Time        `json:"occurred_at"`
}

type Publisher interface {
	Reserved(ctx context.Context, orderRef string, items []model.LineItem) error
	Released(ctx context.Context, orderRef string, items []model.LineItem) error
	ReconciliationRequired(ctx context.Context, rec *model.Reconciliation) error
	Close() error
}

type producer interface {
	Publish(ctx context.Context, msg kafka.Message) error
	Close() error
}

type kafkaPublisher struct {
	events         producer
	reconciliation producer
}

// NewKafkaPublisher returns a NoopPublisher when Kafka is disabled. metrics may be nil.
func NewKafkaPublisher(cfg *kafka_config.Config, log *logger.Logger, metrics *kafka_middleware.Metrics) (Publisher, error) {
	if cfg == nil || !cfg.Enabled {
		log.Info("Kafka disabled, capacity events will not be published")
		return NoopPublisher{}, nil
	}

	events, err := kafka.NewProducer(cfg, cfg.CapacityEventsTopic, log)
	if err != nil {
		return nil, err
	}
	reconciliation, err := kafka.NewProducer(cfg, cfg.CapacityReconciliationTopic, log)
	if err != nil {
		_ = events.Close()
		return nil, err
	}

	for _, p := range []*kafka.Producer{events, reconciliation} {
		p.Use(kafka_middleware.LoggingProducerMiddleware(log))
		if metrics != nil {
			p.Use(metrics.ProducerMiddleware())
		}
	}

	return &kafkaPublisher{events: events, reconciliation: reconciliation}, nil
}

func (p *kafkaPublisher) Reserved(ctx context.Context, orderRef string, items []model.LineItem) error {
	return p.publishCapacityEvent(ctx, EventReserved, orderRef, items)
}

func (p *kafkaPublisher) Released(ctx context.Context, orderRef string, items []model.LineItem) error {
	return p.publishCapacityEvent(ctx, EventReleased, orderRef, items)
}

func (p *kafkaPublisher) publishCapacityEvent(ctx context.Context, eventType, orderRef string, items []model.LineItem) error {
	msg, err := kafka.NewMessage().
		WithKey(partitionKey(orderRef, items)).
		WithValue(CapacityEvent{OrderRef: orderRef, Items: items, OccurredAt: time.Now().UTC()}).
		WithEventType(eventType).
		WithCorrelationID(orderRef).
		WithSchemaVersion(SchemaVersion).
		WithSource(Source).
		Build()
	if err != nil {
		return err
	}
	return p.events.Publish(ctx, msg)
}

func (p *kafkaPublisher) ReconciliationRequired(ctx context.Context, rec *model.Reconciliation) error {
	msg, err := kafka.NewMessage().
		WithKey(partitionKey(rec.OrderRef, rec.Items)).
		WithValue(rec).
		WithEventID(rec.ID).
		WithEventType(EventReconciliationRequired).
		WithCorrelationID(rec.OrderRef).
		WithSchemaVersion(SchemaVersion).
		WithSource(Source).
		Build()
	if err != nil {
		return err
	}
	return p.reconciliation.Publish(ctx, msg)
}

func (p *kafkaPublisher) Close() error {
	return errors.Join(p.events.Close(), p.reconciliation.Close())
}

// partitionKey keeps the events of one order, or one excursion when there is
// no order reference, on a single partition.
func partitionKey(orderRef string, items []model.LineItem) string {
	if orderRef != "" {
		return orderRef
	}
	if len(items) > 0 {
		return items[0].ExcursionID
	}
	return ""
}

type NoopPublisher struct{}

func (NoopPublisher) Reserved(context.Context, string, []model.LineItem) error { return nil }
func (NoopPublisher) Released(context.Context, string, []model.LineItem) error { return nil }
func (NoopPublisher) ReconciliationRequired(context.Context, *model.Reconciliation) error {
	return nil
}
func (NoopPublisher) Close() error { return nil }
