package service

import (
	"context"
	"errors"
	"time"

	capacityerrors "diffatours/internal/capacity/errors"
	"diffatours/internal/capacity/metrics"
	"diffatours/internal/capacity/repository"
	"diffatours/internal/capacity/validator"
	"diffatours/pkg/caldate"
	"diffatours/pkg/config"
	apperrors "diffatours/pkg/errors"
	"diffatours/pkg/model"
	"diffatours/pkg/sanitizer"
)

type CapacityService interface {
	Upsert(ctx context.Context, excursionID, date string, update *model.CapacityUpdate) (*model.CapacityRecord, error)
	Delete(ctx context.Context, excursionID, date string) error
	GetDay(ctx context.Context, excursionID, date string) (*model.AvailabilityDay, error)
	// GetMonth returns one entry per day of the month in ascending order.
	GetMonth(ctx context.Context, excursionID string, month, year int) ([]*model.AvailabilityDay, error)
	List(ctx context.Context, excursionID, from, to string) ([]*model.CapacityRecord, error)
}

type capacityService struct {
	repo      repository.CapacityRepository
	cache     repository.CalendarCache
	validator *validator.CapacityValidator
	metrics   *metrics.Metrics
	cfg       *config.Config
}

func NewCapacityService(
	repo repository.CapacityRepository,
	cache repository.CalendarCache,
	validator *validator.CapacityValidator,
	metrics *metrics.Metrics,
	cfg *config.Config,
) CapacityService {
	if cache == nil {
		cache = repository.NoopCalendarCache{}
	}
	return &capacityService{
		repo:      repo,
		cache:     cache,
		validator: validator,
		metrics:   metrics,
		cfg:       cfg,
	}
}

func (s *capacityService) Upsert(ctx context.Context, excursionID, date string, update *model.CapacityUpdate) (*model.CapacityRecord, error) {
	excursionID = sanitizer.SanitizeExcursionID(excursionID)

	if err := s.validator.ValidateUpdate(excursionID, date, update); err != nil {
		s.cfg.Log.Warn("Capacity validation failed",
			"excursion_id", excursionID,
			"date", date,
			"error", err,
		)
		return nil, validationFailure(err, "Capacity validation failed")
	}

	record, err := s.repo.Upsert(ctx, excursionID, date, *update.MaxCapacity, update.IsAvailable)
	if err != nil {
		if errors.Is(err, capacityerrors.ErrCapacityBelowBookings) {
			return nil, s.belowBookingsConflict(ctx, excursionID, date, *update.MaxCapacity)
		}
		s.cfg.Log.Error("Failed to upsert capacity",
			"excursion_id", excursionID,
			"date", date,
			"error", err,
		)
		return nil, apperrors.Internal("Failed to save capacity", err)
	}

	s.invalidate(ctx, excursionID, date)

	s.cfg.Log.Info("Capacity saved",
		"excursion_id", excursionID,
		"date", date,
		"max_capacity", record.MaxCapacity,
		"current_bookings", record.CurrentBookings,
		"is_available", record.IsAvailable,
	)
	return record, nil
}

func (s *capacityService) belowBookingsConflict(ctx context.Context, excursionID, date string, requested int) *apperrors.AppError {
	appErr := apperrors.Conflict("Max capacity cannot be lower than current bookings")
	details := map[string]any{
		"excursion_id":       excursionID,
		"date":               date,
		"requested_capacity": requested,
	}
	if current, err := s.repo.FindOne(ctx, excursionID, date); err == nil {
		details["current_bookings"] = current.CurrentBookings
	}
	return appErr.WithDetails(details)
}

func (s *capacityService) Delete(ctx context.Context, excursionID, date string) error {
	excursionID = sanitizer.SanitizeExcursionID(excursionID)

	if err := s.validator.ValidateDay(excursionID, date); err != nil {
		return validationFailure(err, "Capacity validation failed")
	}

	if err := s.repo.Delete(ctx, excursionID, date); err != nil {
		if errors.Is(err, capacityerrors.ErrNotFound) {
			return apperrors.NotFoundWithID("Capacity", excursionID+"/"+date)
		}
		s.cfg.Log.Error("Failed to delete capacity",
			"excursion_id", excursionID,
			"date", date,
			"error", err,
		)
		return apperrors.Internal("Failed to delete capacity", err)
	}

	s.invalidate(ctx, excursionID, date)

	s.cfg.Log.Info("Capacity removed, day is unlimited again",
		"excursion_id", excursionID,
		"date", date,
	)
	return nil
}

func (s *capacityService) GetDay(ctx context.Context, excursionID, date string) (*model.AvailabilityDay, error) {
	excursionID = sanitizer.SanitizeExcursionID(excursionID)

	if err := s.validator.ValidateDay(excursionID, date); err != nil {
		return nil, validationFailure(err, "Invalid day")
	}

	record, err := s.repo.FindOne(ctx, excursionID, date)
	if err != nil {
		if errors.Is(err, capacityerrors.ErrNotFound) {
			return model.NewUnlimitedDay(date), nil
		}
		s.cfg.Log.Error("Failed to read capacity",
			"excursion_id", excursionID,
			"date", date,
			"error", err,
		)
		return nil, apperrors.Internal("Failed to retrieve capacity", err)
	}
	return model.NewLimitedDay(record), nil
}

func (s *capacityService) GetMonth(ctx context.Context, excursionID string, month, year int) ([]*model.AvailabilityDay, error) {
	excursionID = sanitizer.SanitizeExcursionID(excursionID)

	if err := s.validator.ValidateMonth(excursionID, year, month); err != nil {
		return nil, validationFailure(err, "Invalid month")
	}

	// The version is taken before the ledger read so that a write landing in
	// between moves readers past whatever this call stores.
	version, cached := s.cachedMonth(ctx, excursionID, year, month)
	if cached != nil {
		return cached, nil
	}

	first, last, _ := caldate.MonthRange(year, time.Month(month))
	records, err := s.repo.FindInRange(ctx, excursionID, first, last)
	if err != nil {
		s.cfg.Log.Error("Failed to read month capacity",
			"excursion_id", excursionID,
			"from", first,
			"to", last,
			"error", err,
		)
		return nil, apperrors.Internal("Failed to retrieve calendar", err)
	}

	days := BuildMonth(year, time.Month(month), records)

	if version >= 0 {
		if err := s.cache.Set(ctx, excursionID, year, month, version, days); err != nil {
			s.cfg.Log.Warn("Calendar cache write failed",
				"excursion_id", excursionID,
				"error", err,
			)
		}
	}

	s.cfg.Log.Debug("Calendar built",
		"excursion_id", excursionID,
		"year", year,
		"month", month,
		"limited_days", len(records),
	)
	return days, nil
}

// cachedMonth returns the current month version and the calendar stored under
// it, if any. A version of -1 means the cache is unusable for this call.
func (s *capacityService) cachedMonth(ctx context.Context, excursionID string, year, month int) (int64, []*model.AvailabilityDay) {
	version, err := s.cache.Version(ctx, excursionID, year, month)
	if err != nil {
		s.metrics.ObserveCache(metrics.CacheError)
		s.cfg.Log.Warn("Calendar cache version read failed, using ledger",
			"excursion_id", excursionID,
			"year", year,
			"month", month,
			"error", err,
		)
		return -1, nil
	}

	days, err := s.cache.Get(ctx, excursionID, year, month, version)
	switch {
	case err == nil:
		s.metrics.ObserveCache(metrics.CacheHit)
		return version, days
	case errors.Is(err, repository.ErrCacheMiss):
		s.metrics.ObserveCache(metrics.CacheMiss)
	default:
		s.metrics.ObserveCache(metrics.CacheError)
		s.cfg.Log.Warn("Calendar cache read failed, using ledger",
			"excursion_id", excursionID,
			"year", year,
			"month", month,
			"error", err,
		)
	}
	return version, nil
}

// BuildMonth expands the stored records of one month into a gap-free list of
// days. Days without a record are unlimited.
func BuildMonth(year int, month time.Month, records []*model.CapacityRecord) []*model.AvailabilityDay {
	byDate := make(map[string]*model.CapacityRecord, len(records))
	for _, r := range records {
		byDate[r.Date] = r
	}

	dates := caldate.MonthDates(year, month)
	days := make([]*model.AvailabilityDay, 0, len(dates))
	for _, date := range dates {
		if r, ok := byDate[date]; ok {
			days = append(days, model.NewLimitedDay(r))
			continue
		}
		days = append(days, model.NewUnlimitedDay(date))
	}
	return days
}

func (s *capacityService) List(ctx context.Context, excursionID, from, to string) ([]*model.CapacityRecord, error) {
	excursionID = sanitizer.SanitizeExcursionID(excursionID)

	if err := s.validator.ValidateRange(excursionID, from, to); err != nil {
		return nil, validationFailure(err, "Invalid date range")
	}

	records, err := s.repo.FindInRange(ctx, excursionID, from, to)
	if err != nil {
		s.cfg.Log.Error("Failed to list capacities",
			"excursion_id", excursionID,
			"from", from,
			"to", to,
			"error", err,
		)
		return nil, apperrors.Internal("Failed to list capacities", err)
	}
	return records, nil
}

func (s *capacityService) invalidate(ctx context.Context, excursionID, date string) {
	invalidateCalendar(ctx, s.cache, s.cfg, excursionID, date)
}

func invalidateCalendar(ctx context.Context, cache repository.CalendarCache, cfg *config.Config, excursionID, date string) {
	if err := cache.Invalidate(ctx, excursionID, date); err != nil {
		cfg.Log.Warn("Failed to invalidate calendar cache",
			"excursion_id", excursionID,
			"date", date,
			"error", err,
		)
	}
}
