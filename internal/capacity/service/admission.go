package service

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"time"

	capacityerrors "diffatours/internal/capacity/errors"
	"diffatours/internal/capacity/events"
	"diffatours/internal/capacity/metrics"
	"diffatours/internal/capacity/repository"
	"diffatours/internal/capacity/validator"
	"diffatours/pkg/config"
	apperrors "diffatours/pkg/errors"
	"diffatours/pkg/model"
	"diffatours/pkg/sanitizer"

	"github.com/google/uuid"
)

type AdmissionService interface {
	// CheckAndReserve admits the whole order or none of it. A rejection
	// returns both the result and an INSUFFICIENT_CAPACITY error.
	CheckAndReserve(ctx context.Context, req *model.AdmissionRequest) (*model.AdmissionResult, error)
	// CheckAndReserveWithRetry runs the order a second time, once, when the
	// first attempt lost a race against a concurrent release.
	CheckAndReserveWithRetry(ctx context.Context, req *model.AdmissionRequest) (*model.AdmissionResult, error)
	Release(ctx context.Context, req *model.ReleaseRequest) error
}

const maxReleaseIDLen = 128

type admissionService struct {
	repo      repository.CapacityRepository
	cache     repository.CalendarCache
	publisher events.Publisher
	validator *validator.CapacityValidator
	metrics   *metrics.Metrics
	cfg       *config.Config

	sleep func(ctx context.Context, d time.Duration) bool
}

func NewAdmissionService(
	repo repository.CapacityRepository,
	cache repository.CalendarCache,
	publisher events.Publisher,
	validator *validator.CapacityValidator,
	metrics *metrics.Metrics,
	cfg *config.Config,
) AdmissionService {
	if cache == nil {
		cache = repository.NoopCalendarCache{}
	}
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &admissionService{
		repo:      repo,
		cache:     cache,
		publisher: publisher,
		validator: validator,
		metrics:   metrics,
		cfg:       cfg,
		sleep:     sleepCtx,
	}
}

// attempt is the outcome of one pass over an order.
type attempt struct {
	result   *model.AdmissionResult
	err      error
	lostRace bool
}

func (s *admissionService) CheckAndReserve(ctx context.Context, req *model.AdmissionRequest) (*model.AdmissionResult, error) {
	a := s.admit(ctx, req)
	return a.result, a.err
}

func (s *admissionService) CheckAndReserveWithRetry(ctx context.Context, req *model.AdmissionRequest) (*model.AdmissionResult, error) {
	a := s.admit(ctx, req)
	if !a.lostRace {
		return a.result, a.err
	}

	s.cfg.Log.Info("Admission lost a race, retrying once",
		"order_ref", req.OrderRef,
	)
	a = s.admit(ctx, req)
	return a.result, a.err
}

func (s *admissionService) admit(ctx context.Context, req *model.AdmissionRequest) attempt {
	start := time.Now()

	if req == nil {
		s.metrics.ObserveAdmission(metrics.AdmissionInvalid, time.Since(start))
		return attempt{err: apperrors.InvalidInput("Admission request body is required")}
	}

	req.OrderRef = sanitizer.SanitizeOrderRef(req.OrderRef)
	sanitizeItems(req.Items)

	if err := s.validator.ValidateItems(req.Items); err != nil {
		s.cfg.Log.Warn("Admission validation failed",
			"order_ref", req.OrderRef,
			"error", err,
		)
		s.metrics.ObserveAdmission(metrics.AdmissionInvalid, time.Since(start))
		return attempt{err: validationFailure(err, "Admission validation failed")}
	}

	items := MergeItems(req.Items)

	var (
		results []*repository.ReserveResult
		err     error
	)
	if batch, ok := s.repo.(repository.BatchReserver); ok {
		results, err = batch.ReserveAll(ctx, items)
	} else {
		results, err = s.reserveEach(ctx, req.OrderRef, items)
	}

	if err != nil {
		s.cfg.Log.Error("Admission failed on ledger error",
			"order_ref", req.OrderRef,
			"error", err,
		)
		s.metrics.ObserveAdmission(metrics.AdmissionError, time.Since(start))
		return attempt{err: apperrors.Internal("Failed to reserve capacity", err)}
	}

	if rejected := rejection(results); rejected != nil {
		failure := failureFor(rejected)
		if len(results) > 1 {
			if _, ok := s.repo.(repository.BatchReserver); ok {
				s.metrics.ObserveRollback(metrics.RollbackTransactional)
			}
		}
		s.cfg.Log.Info("Admission rejected",
			"order_ref", req.OrderRef,
			"excursion_id", failure.ExcursionID,
			"date", failure.Date,
			"requested", failure.Requested,
			"remaining", failure.Remaining,
			"reason", failure.Reason,
		)
		s.metrics.ObserveAdmission(metrics.AdmissionRejected, time.Since(start))

		failures := []model.LineItemFailure{failure}
		return attempt{
			result:   &model.AdmissionResult{Admitted: false, OrderRef: req.OrderRef, Failures: failures},
			err:      apperrors.InsufficientCapacity(failures),
			lostRace: rejected.Record != nil && rejected.Record.Admits(rejected.Item.Participants),
		}
	}

	reserved := reservedItems(results)
	for _, item := range reserved {
		invalidateCalendar(ctx, s.cache, s.cfg, item.ExcursionID, item.Date)
	}
	if len(reserved) > 0 {
		if err := s.publisher.Reserved(ctx, req.OrderRef, toLineItems(reserved)); err != nil {
			s.cfg.Log.Warn("Failed to publish reservation event",
				"order_ref", req.OrderRef,
				"error", err,
			)
		}
	}

	s.cfg.Log.Info("Admission granted",
		"order_ref", req.OrderRef,
		"items", len(items),
		"limited_items", len(reserved),
	)
	s.metrics.ObserveAdmission(metrics.AdmissionAdmitted, time.Since(start))
	return attempt{result: &model.AdmissionResult{Admitted: true, OrderRef: req.OrderRef}}
}

// reserveEach walks the items one conditional update at a time and undoes the
// applied ones when an item is rejected or the ledger fails.
func (s *admissionService) reserveEach(ctx context.Context, orderRef string, items []repository.ReserveItem) ([]*repository.ReserveResult, error) {
	results := make([]*repository.ReserveResult, 0, len(items))
	applied := make([]repository.ReserveItem, 0, len(items))

	for _, item := range items {
		res, err := s.repo.Reserve(ctx, item)
		if err != nil {
			s.compensate(ctx, orderRef, applied)
			return nil, err
		}
		results = append(results, res)

		switch res.Outcome {
		case repository.OutcomeReserved:
			applied = append(applied, item)
		case repository.OutcomeRejected:
			s.compensate(ctx, orderRef, applied)
			return results, nil
		}
	}
	return results, nil
}

// compensate releases every applied increment in reverse order. Releases that
// keep failing are handed to the reconciler so the seats never leak silently.
// Every release is keyed by the rollback id, so a retry or a redelivered
// reconciliation of an already applied release changes nothing.
func (s *admissionService) compensate(ctx context.Context, orderRef string, applied []repository.ReserveItem) {
	if len(applied) == 0 {
		return
	}
	// The caller may already be gone; the rollback must still run.
	ctx = context.WithoutCancel(ctx)
	rollbackID := uuid.NewString()

	for i := len(applied) - 1; i >= 0; i-- {
		item := applied[i]
		item.ReleaseKey = ReleaseKey(rollbackID, item)
		err := s.releaseWithRetry(ctx, item)
		if err == nil {
			s.metrics.ObserveRollback(metrics.RollbackApplied)
			invalidateCalendar(ctx, s.cache, s.cfg, item.ExcursionID, item.Date)
			continue
		}

		s.metrics.ObserveRollback(metrics.RollbackReconcile)
		s.cfg.Log.Error("Rollback failed, seats held until reconciled",
			"order_ref", orderRef,
			"excursion_id", item.ExcursionID,
			"date", item.Date,
			"participants", item.Participants,
			"error", err,
		)
		s.requestReconciliation(ctx, rollbackID, orderRef, item, err)
	}
}

// ReleaseKey identifies one keyed release of one day.
func ReleaseKey(releaseID string, item repository.ReserveItem) string {
	return releaseID + ":" + item.ExcursionID + "|" + item.Date
}

func (s *admissionService) releaseWithRetry(ctx context.Context, item repository.ReserveItem) error {
	attempts := s.cfg.RollbackMaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	backoff := s.cfg.RollbackBackoff

	var err error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			s.metrics.ObserveRollback(metrics.RollbackRetried)
			if !s.sleep(ctx, backoff) {
				return ctx.Err()
			}
			backoff *= 2
		}
		_, err = s.repo.Release(ctx, item)
		if err == nil || errors.Is(err, capacityerrors.ErrReleaseAlreadyApplied) {
			return nil
		}
		if errors.Is(err, capacityerrors.ErrReleaseExceedsBookings) {
			return err
		}
	}
	return err
}

// requestReconciliation publishes one event per item. The event carries the
// rollback id, so the reconciler reuses the release key of the failed rollback.
func (s *admissionService) requestReconciliation(ctx context.Context, rollbackID, orderRef string, item repository.ReserveItem, cause error) {
	rec := &model.Reconciliation{
		ID:        rollbackID,
		OrderRef:  orderRef,
		Items:     toLineItems([]repository.ReserveItem{item}),
		Reason:    cause.Error(),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.publisher.ReconciliationRequired(ctx, rec); err != nil {
		s.cfg.Log.Error("Failed to publish reconciliation event, manual release required",
			"reconciliation_id", rec.ID,
			"order_ref", orderRef,
			"excursion_id", item.ExcursionID,
			"date", item.Date,
			"participants", item.Participants,
			"error", err,
		)
		return
	}
	s.cfg.Log.Warn("Reconciliation requested",
		"reconciliation_id", rec.ID,
		"order_ref", orderRef,
		"excursion_id", item.ExcursionID,
		"date", item.Date,
	)
}

// Release gives seats back item by item. Items without a record are skipped.
// On failure the error details list the items already released.
func (s *admissionService) Release(ctx context.Context, req *model.ReleaseRequest) error {
	if req == nil {
		return apperrors.InvalidInput("Release request body is required")
	}

	req.OrderRef = sanitizer.SanitizeOrderRef(req.OrderRef)
	req.ReleaseID = sanitizer.SanitizeOrderRef(req.ReleaseID)
	sanitizeItems(req.Items)

	if len(req.ReleaseID) > maxReleaseIDLen {
		return apperrors.InvalidInput("release_id must be at most 128 characters")
	}
	if err := s.validator.ValidateItems(req.Items); err != nil {
		s.cfg.Log.Warn("Release validation failed",
			"order_ref", req.OrderRef,
			"error", err,
		)
		return validationFailure(err, "Release validation failed")
	}

	items := MergeItems(req.Items)
	released := make([]repository.ReserveItem, 0, len(items))

	var failure *apperrors.AppError
	for _, item := range items {
		if req.ReleaseID != "" {
			item.ReleaseKey = ReleaseKey(req.ReleaseID, item)
		}
		record, err := s.repo.Release(ctx, item)
		if errors.Is(err, capacityerrors.ErrReleaseAlreadyApplied) {
			s.cfg.Log.Info("Release already applied, skipping",
				"release_id", req.ReleaseID,
				"excursion_id", item.ExcursionID,
				"date", item.Date,
			)
			continue
		}
		if err != nil {
			if errors.Is(err, capacityerrors.ErrReleaseExceedsBookings) {
				failure = apperrors.Conflict("Release exceeds current bookings")
			} else {
				s.cfg.Log.Error("Failed to release capacity",
					"order_ref", req.OrderRef,
					"excursion_id", item.ExcursionID,
					"date", item.Date,
					"error", err,
				)
				failure = apperrors.Internal("Failed to release capacity", err)
			}
			failure.WithDetails(map[string]any{
				"excursion_id": item.ExcursionID,
				"date":         item.Date,
				"released":     toLineItems(released),
			})
			break
		}
		if record != nil {
			released = append(released, item)
			invalidateCalendar(ctx, s.cache, s.cfg, item.ExcursionID, item.Date)
		}
	}

	if len(released) > 0 {
		if err := s.publisher.Released(ctx, req.OrderRef, toLineItems(released)); err != nil {
			s.cfg.Log.Warn("Failed to publish release event",
				"order_ref", req.OrderRef,
				"error", err,
			)
		}
		s.cfg.Log.Info("Capacity released",
			"order_ref", req.OrderRef,
			"items", len(released),
		)
	}

	if failure != nil {
		return failure
	}
	return nil
}

// MergeItems sums line items that hit the same day and orders them by
// excursion then date, so every order takes its seats in the same sequence.
func MergeItems(items []model.LineItem) []repository.ReserveItem {
	merged := make(map[string]*repository.ReserveItem, len(items))
	for _, li := range items {
		key := li.Key()
		if existing, ok := merged[key]; ok {
			existing.Participants += li.Total()
			continue
		}
		merged[key] = &repository.ReserveItem{
			ExcursionID:  li.ExcursionID,
			Date:         li.Date,
			Participants: li.Total(),
		}
	}

	out := make([]repository.ReserveItem, 0, len(merged))
	for _, item := range merged {
		out = append(out, *item)
	}
	slices.SortFunc(out, func(a, b repository.ReserveItem) int {
		if c := cmp.Compare(a.ExcursionID, b.ExcursionID); c != 0 {
			return c
		}
		return cmp.Compare(a.Date, b.Date)
	})
	return out
}

func sanitizeItems(items []model.LineItem) {
	for i := range items {
		items[i].ExcursionID = sanitizer.SanitizeExcursionID(items[i].ExcursionID)
	}
}

func rejection(results []*repository.ReserveResult) *repository.ReserveResult {
	for _, r := range results {
		if r.Outcome == repository.OutcomeRejected {
			return r
		}
	}
	return nil
}

func failureFor(r *repository.ReserveResult) model.LineItemFailure {
	failure := model.LineItemFailure{
		ExcursionID: r.Item.ExcursionID,
		Date:        r.Item.Date,
		Requested:   r.Item.Participants,
		Reason:      model.FailureInsufficientCapacity,
	}
	if r.Record != nil {
		failure.Remaining = r.Record.AvailableSpots()
		if !r.Record.IsAvailable {
			failure.Reason = model.FailureClosed
		}
	}
	return failure
}

func reservedItems(results []*repository.ReserveResult) []repository.ReserveItem {
	out := make([]repository.ReserveItem, 0, len(results))
	for _, r := range results {
		if r.Outcome == repository.OutcomeReserved {
			out = append(out, r.Item)
		}
	}
	return out
}

func toLineItems(items []repository.ReserveItem) []model.LineItem {
	out := make([]model.LineItem, 0, len(items))
	for _, item := range items {
		out = append(out, model.LineItem{
			ExcursionID:  item.ExcursionID,
			Date:         item.Date,
			Participants: item.Participants,
		})
	}
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
