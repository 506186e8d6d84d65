// Package reconciler re-applies seat releases that admission could not roll
// back in time. Each message carries one reconciliation record.
package reconciler

import (
	"context"
	"errors"
	"fmt"

	"diffatours/internal/capacity/events"
	"diffatours/internal/capacity/service"
	apperrors "diffatours/pkg/errors"
	"diffatours/pkg/kafka"
	"diffatours/pkg/logger"
	"diffatours/pkg/model"
)

type Handler struct {
	admission service.AdmissionService
	log       *logger.Logger
}

func NewHandler(admission service.AdmissionService, log *logger.Logger) *Handler {
	return &Handler{
		admission: admission,
		log:       log,
	}
}

// Handle releases the seats named by a reconciliation message. Store failures
// are transient so the consumer retries them; anything the ledger refuses
// goes to the dead letter topic for an operator.
func (h *Handler) Handle(ctx context.Context, msg kafka.Message) error {
	if eventType := msg.GetEventType(); eventType != "" && eventType != events.EventReconciliationRequired {
		h.log.Warn("Skipping unexpected event type",
			"event_type", eventType,
			"event_id", msg.GetEventID(),
			"topic", msg.Topic,
		)
		return nil
	}

	var rec model.Reconciliation
	if err := msg.DecodeValue(&rec); err != nil {
		return kafka.NewPermanentError("malformed reconciliation payload", err)
	}
	if rec.ID == "" {
		return kafka.NewPermanentError("reconciliation without an id", nil)
	}
	if len(rec.Items) == 0 {
		return kafka.NewPermanentError(fmt.Sprintf("reconciliation %s has no items", rec.ID), nil)
	}

	// The reconciliation id keys the release, so a redelivered message is a no-op.
	err := h.admission.Release(ctx, &model.ReleaseRequest{
		OrderRef:  rec.OrderRef,
		ReleaseID: rec.ID,
		Items:     rec.Items,
	})
	if err == nil {
		h.log.Info("Reconciliation applied, seats released",
			"reconciliation_id", rec.ID,
			"order_ref", rec.OrderRef,
			"items", len(rec.Items),
			"retry_count", msg.GetRetryCount(),
		)
		return nil
	}

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) && appErr.Code != apperrors.CodeInternal {
		h.log.Error("Reconciliation refused by ledger",
			"reconciliation_id", rec.ID,
			"order_ref", rec.OrderRef,
			"code", appErr.Code,
			"details", appErr.Details,
		)
		return kafka.NewPermanentError("reconciliation refused: "+appErr.Code, err)
	}

	h.log.Warn("Reconciliation failed, will retry",
		"reconciliation_id", rec.ID,
		"order_ref", rec.OrderRef,
		"error", err,
	)
	return kafka.NewTransientError("release failed", err)
}
