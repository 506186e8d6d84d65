package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	capacityerrors "diffatours/internal/capacity/errors"
	"diffatours/internal/capacity/repository"
	"diffatours/internal/capacity/validator"
	"diffatours/pkg/caldate"
	"diffatours/pkg/config"
	"diffatours/pkg/logger"
	"diffatours/pkg/model"
)

// memoryRepository is an in-memory ledger with the same conditional update
// semantics as the real stores.
type memoryRepository struct {
	mu      sync.Mutex
	records map[string]*model.CapacityRecord

	reserveCalls int
	releaseCalls int
	rangeCalls   int

	reserveErr     func(item repository.ReserveItem) error
	releaseErr     func(item repository.ReserveItem, call int) error
	afterRejection func(item repository.ReserveItem)
	// releaseLost fails a release after it was applied, like a timeout on the reply.
	releaseLost func(call int) bool
	// afterRange runs once a range read has taken its snapshot.
	afterRange func()

	appliedReleases map[string]bool
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{
		records:         make(map[string]*model.CapacityRecord),
		appliedReleases: make(map[string]bool),
	}
}

func key(excursionID, date string) string { return excursionID + "|" + date }

func (m *memoryRepository) seed(excursionID, date string, maxCapacity, current int, open bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[key(excursionID, date)] = &model.CapacityRecord{
		ExcursionID:     excursionID,
		Date:            date,
		MaxCapacity:     maxCapacity,
		CurrentBookings: current,
		IsAvailable:     open,
	}
}

func (m *memoryRepository) bookings(excursionID, date string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.records[key(excursionID, date)]; ok {
		return r.CurrentBookings
	}
	return -1
}

func (m *memoryRepository) Upsert(_ context.Context, excursionID, date string, maxCapacity int, isAvailable *bool) (*model.CapacityRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.records[key(excursionID, date)]
	if !ok {
		r = &model.CapacityRecord{ExcursionID: excursionID, Date: date, IsAvailable: true, CreatedAt: time.Now()}
		m.records[key(excursionID, date)] = r
	} else if r.CurrentBookings > maxCapacity {
		return nil, capacityerrors.ErrCapacityBelowBookings
	}
	r.MaxCapacity = maxCapacity
	if isAvailable != nil {
		r.IsAvailable = *isAvailable
	}
	r.UpdatedAt = time.Now()
	cp := *r
	return &cp, nil
}

func (m *memoryRepository) Delete(_ context.Context, excursionID, date string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[key(excursionID, date)]; !ok {
		return capacityerrors.ErrNotFound
	}
	delete(m.records, key(excursionID, date))
	return nil
}

func (m *memoryRepository) FindOne(_ context.Context, excursionID, date string) (*model.CapacityRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[key(excursionID, date)]
	if !ok {
		return nil, capacityerrors.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memoryRepository) FindInRange(_ context.Context, excursionID, from, to string) ([]*model.CapacityRecord, error) {
	m.mu.Lock()
	m.rangeCalls++

	out := make([]*model.CapacityRecord, 0)
	for _, r := range m.records {
		if r.ExcursionID == excursionID && r.Date >= from && r.Date <= to {
			cp := *r
			out = append(out, &cp)
		}
	}
	hook := m.afterRange
	m.afterRange = nil
	m.mu.Unlock()

	if hook != nil {
		hook()
	}
	return out, nil
}

func (m *memoryRepository) Reserve(_ context.Context, item repository.ReserveItem) (*repository.ReserveResult, error) {
	m.mu.Lock()
	m.reserveCalls++
	if m.reserveErr != nil {
		if err := m.reserveErr(item); err != nil {
			m.mu.Unlock()
			return nil, err
		}
	}

	r, ok := m.records[key(item.ExcursionID, item.Date)]
	if !ok {
		m.mu.Unlock()
		return &repository.ReserveResult{Item: item, Outcome: repository.OutcomeUnlimited}, nil
	}
	if r.IsAvailable && r.CurrentBookings+item.Participants <= r.MaxCapacity {
		r.CurrentBookings += item.Participants
		cp := *r
		m.mu.Unlock()
		return &repository.ReserveResult{Item: item, Outcome: repository.OutcomeReserved, Record: &cp}, nil
	}
	m.mu.Unlock()

	// Simulates a concurrent release landing between the update and the read back.
	if m.afterRejection != nil {
		m.afterRejection(item)
	}
	current, _ := m.FindOne(context.Background(), item.ExcursionID, item.Date)
	return &repository.ReserveResult{Item: item, Outcome: repository.OutcomeRejected, Record: current}, nil
}

func (m *memoryRepository) Release(_ context.Context, item repository.ReserveItem) (*model.CapacityRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.releaseCalls++

	if m.releaseErr != nil {
		if err := m.releaseErr(item, m.releaseCalls); err != nil {
			return nil, err
		}
	}

	r, ok := m.records[key(item.ExcursionID, item.Date)]
	if !ok {
		return nil, nil
	}
	if item.ReleaseKey != "" && m.appliedReleases[item.ReleaseKey] {
		return nil, capacityerrors.ErrReleaseAlreadyApplied
	}
	if r.CurrentBookings < item.Participants {
		return nil, capacityerrors.ErrReleaseExceedsBookings
	}
	r.CurrentBookings -= item.Participants
	if item.ReleaseKey != "" {
		m.appliedReleases[item.ReleaseKey] = true
	}
	if m.releaseLost != nil && m.releaseLost(m.releaseCalls) {
		return nil, errLedgerDown
	}
	cp := *r
	return &cp, nil
}

func (m *memoryRepository) Ping(context.Context) error { return nil }

// batchRepository adds all-or-nothing ReserveAll on top of the memory ledger.
type batchRepository struct {
	*memoryRepository
	batchCalls int
}

func (b *batchRepository) ReserveAll(ctx context.Context, items []repository.ReserveItem) ([]*repository.ReserveResult, error) {
	b.batchCalls++

	b.mu.Lock()
	snapshot := make(map[string]model.CapacityRecord, len(b.records))
	for k, r := range b.records {
		snapshot[k] = *r
	}
	b.mu.Unlock()

	restore := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for k, r := range snapshot {
			cp := r
			b.records[k] = &cp
		}
	}

	results := make([]*repository.ReserveResult, 0, len(items))
	for _, item := range items {
		res, err := b.Reserve(ctx, item)
		if err != nil {
			restore()
			return nil, err
		}
		results = append(results, res)
		if res.Outcome == repository.OutcomeRejected {
			restore()
			return results, nil
		}
	}
	return results, nil
}

type recordingPublisher struct {
	mu              sync.Mutex
	reserved        [][]model.LineItem
	released        [][]model.LineItem
	reconciliations []*model.Reconciliation
	err             error
}

func (p *recordingPublisher) Reserved(_ context.Context, _ string, items []model.LineItem) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reserved = append(p.reserved, items)
	return p.err
}

func (p *recordingPublisher) Released(_ context.Context, _ string, items []model.LineItem) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.released = append(p.released, items)
	return p.err
}

func (p *recordingPublisher) ReconciliationRequired(_ context.Context, rec *model.Reconciliation) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reconciliations = append(p.reconciliations, rec)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

// countingCache is a map backed calendar cache with per-month versions.
type countingCache struct {
	mu          sync.Mutex
	entries     map[string][]*model.AvailabilityDay
	versions    map[string]int64
	invalidated []string
	getErr      error
	versionErr  error
}

func newCountingCache() *countingCache {
	return &countingCache{
		entries:  make(map[string][]*model.AvailabilityDay),
		versions: make(map[string]int64),
	}
}

func (c *countingCache) Version(_ context.Context, excursionID string, year, month int) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.versionErr != nil {
		return 0, c.versionErr
	}
	return c.versions[repository.CalendarKey(excursionID, year, month)], nil
}

func (c *countingCache) Get(_ context.Context, excursionID string, year, month int, version int64) ([]*model.AvailabilityDay, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, c.getErr
	}
	days, ok := c.entries[entryKey(excursionID, year, month, version)]
	if !ok {
		return nil, repository.ErrCacheMiss
	}
	return days, nil
}

func (c *countingCache) Set(_ context.Context, excursionID string, year, month int, version int64, days []*model.AvailabilityDay) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[entryKey(excursionID, year, month, version)] = days
	return nil
}

func (c *countingCache) Invalidate(_ context.Context, excursionID, date string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, err := caldate.Parse(date); err == nil {
		c.versions[repository.CalendarKey(excursionID, t.Year(), int(t.Month()))]++
	}
	c.invalidated = append(c.invalidated, excursionID+"|"+date)
	return nil
}

func entryKey(excursionID string, year, month int, version int64) string {
	return fmt.Sprintf("%s:v%d", repository.CalendarKey(excursionID, year, month), version)
}

var errLedgerDown = errors.New("ledger unavailable")

func testConfig() *config.Config {
	return &config.Config{
		Log:                    logger.Discard(),
		ReadTimeout:            5 * time.Second,
		WriteTimeout:           5 * time.Second,
		RollbackMaxAttempts:    3,
		RollbackBackoff:        time.Millisecond,
		MaxParticipantsPerItem: 50,
		MaxLineItems:           10,
	}
}

func testValidator(cfg *config.Config) *validator.CapacityValidator {
	return validator.NewCapacityValidator(cfg.Log, validator.Limits{
		MaxParticipantsPerItem: cfg.MaxParticipantsPerItem,
		MaxLineItems:           cfg.MaxLineItems,
	})
}

func newTestAdmissionService(repo repository.CapacityRepository, pub *recordingPublisher) *admissionService {
	cfg := testConfig()
	svc := NewAdmissionService(repo, newCountingCache(), pub, testValidator(cfg), nil, cfg).(*admissionService)
	svc.sleep = func(context.Context, time.Duration) bool { return true }
	return svc
}
