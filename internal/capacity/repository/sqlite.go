package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strconv"
	"time"

	capacityerrors "diffatours/internal/capacity/errors"
	"diffatours/pkg/model"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS capacities (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	excursion_id     TEXT    NOT NULL,
	date             TEXT    NOT NULL,
	max_capacity     INTEGER NOT NULL CHECK (max_capacity >= 1),
	current_bookings INTEGER NOT NULL DEFAULT 0 CHECK (current_bookings >= 0),
	is_available     INTEGER NOT NULL DEFAULT 1,
	created_at       TEXT    NOT NULL,
	updated_at       TEXT    NOT NULL,
	CHECK (current_bookings <= max_capacity),
	UNIQUE (excursion_id, date)
);

CREATE TABLE IF NOT EXISTS capacity_releases (
	release_key  TEXT    PRIMARY KEY,
	excursion_id TEXT    NOT NULL,
	date         TEXT    NOT NULL,
	participants INTEGER NOT NULL,
	applied_at   TEXT    NOT NULL
);
`

const recordColumns = `id, excursion_id, date, max_capacity, current_bookings, is_available, created_at, updated_at`

// querier is the subset of *sql.DB and *sql.Tx the statements need.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type sqliteCapacityRepository struct {
	db      *sql.DB
	timeout time.Duration
}

// NewSQLiteCapacityRepository creates the schema if needed. Multi-day
// admission runs in a single transaction on this backend. Transactions are
// opened with BEGIN IMMEDIATE on a dedicated connection, so the write lock is
// taken up front whatever DSN the pool was opened with.
func NewSQLiteCapacityRepository(db *sql.DB, timeout time.Duration) (CapacityRepository, error) {
	if _, err := db.Exec(sqliteSchema); err != nil {
		return nil, fmt.Errorf("failed to migrate capacities table: %w", err)
	}
	return &sqliteCapacityRepository{db: db, timeout: timeout}, nil
}

func (r *sqliteCapacityRepository) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.timeout)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*model.CapacityRecord, error) {
	var (
		rec       model.CapacityRecord
		id        int64
		available int
		createdAt string
		updatedAt string
	)
	if err := row.Scan(&id, &rec.ExcursionID, &rec.Date, &rec.MaxCapacity, &rec.CurrentBookings, &available, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	rec.ID = strconv.FormatInt(id, 10)
	rec.IsAvailable = available != 0
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	rec.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &rec, nil
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (r *sqliteCapacityRepository) Upsert(ctx context.Context, excursionID, date string, maxCapacity int, isAvailable *bool) (*model.CapacityRecord, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	available := true
	if isAvailable != nil {
		available = *isAvailable
	}
	ts := timestamp()

	// The WHERE on the conflict branch keeps max_capacity >= current_bookings
	// inside the same statement; a failed guard returns no row.
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO capacities (excursion_id, date, max_capacity, current_bookings, is_available, created_at, updated_at)
		VALUES (?, ?, ?, 0, ?, ?, ?)
		ON CONFLICT (excursion_id, date) DO UPDATE SET
			max_capacity = excluded.max_capacity,
			is_available = CASE WHEN ? THEN excluded.is_available ELSE capacities.is_available END,
			updated_at   = excluded.updated_at
		WHERE capacities.current_bookings <= excluded.max_capacity
		RETURNING `+recordColumns,
		excursionID, date, maxCapacity, boolInt(available), ts, ts, isAvailable != nil,
	)

	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, capacityerrors.ErrCapacityBelowBookings
	}
	if err != nil {
		return nil, fmt.Errorf("failed to upsert capacity: %w", err)
	}
	return record, nil
}

func (r *sqliteCapacityRepository) Delete(ctx context.Context, excursionID, date string) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	result, err := r.db.ExecContext(ctx, `DELETE FROM capacities WHERE excursion_id = ? AND date = ?`, excursionID, date)
	if err != nil {
		return fmt.Errorf("failed to delete capacity: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete capacity: %w", err)
	}
	if n == 0 {
		return capacityerrors.ErrNotFound
	}
	return nil
}

func (r *sqliteCapacityRepository) FindOne(ctx context.Context, excursionID, date string) (*model.CapacityRecord, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	return findOne(ctx, r.db, excursionID, date)
}

func findOne(ctx context.Context, q querier, excursionID, date string) (*model.CapacityRecord, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM capacities WHERE excursion_id = ? AND date = ?`,
		excursionID, date,
	)
	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, capacityerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find capacity: %w", err)
	}
	return record, nil
}

func (r *sqliteCapacityRepository) FindInRange(ctx context.Context, excursionID, from, to string) ([]*model.CapacityRecord, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM capacities
		 WHERE excursion_id = ? AND date >= ? AND date <= ?
		 ORDER BY date ASC`,
		excursionID, from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to find capacities: %w", err)
	}
	defer rows.Close()

	records := make([]*model.CapacityRecord, 0)
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to decode capacity: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate capacities: %w", err)
	}
	return records, nil
}

func (r *sqliteCapacityRepository) Reserve(ctx context.Context, item ReserveItem) (*ReserveResult, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	return reserve(ctx, r.db, item)
}

func reserve(ctx context.Context, q querier, item ReserveItem) (*ReserveResult, error) {
	row := q.QueryRowContext(ctx, `
		UPDATE capacities
		SET current_bookings = current_bookings + ?, updated_at = ?
		WHERE excursion_id = ? AND date = ?
		  AND is_available = 1
		  AND current_bookings + ? <= max_capacity
		RETURNING `+recordColumns,
		item.Participants, timestamp(), item.ExcursionID, item.Date, item.Participants,
	)

	record, err := scanRecord(row)
	if err == nil {
		return &ReserveResult{Item: item, Outcome: OutcomeReserved, Record: record}, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to reserve capacity: %w", err)
	}

	current, err := findOne(ctx, q, item.ExcursionID, item.Date)
	if errors.Is(err, capacityerrors.ErrNotFound) {
		return &ReserveResult{Item: item, Outcome: OutcomeUnlimited}, nil
	}
	if err != nil {
		return nil, err
	}
	return &ReserveResult{Item: item, Outcome: OutcomeRejected, Record: current}, nil
}

// ReserveAll reserves every item in one IMMEDIATE transaction and rolls the
// whole order back on the first rejection.
func (r *sqliteCapacityRepository) ReserveAll(ctx context.Context, items []ReserveItem) ([]*ReserveResult, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	results := make([]*ReserveResult, 0, len(items))
	err := r.immediate(ctx, func(q querier) error {
		for _, item := range items {
			res, err := reserve(ctx, q, item)
			if err != nil {
				return err
			}
			results = append(results, res)
			if res.Outcome == OutcomeRejected {
				return errBatchRejected
			}
		}
		return nil
	})

	if errors.Is(err, errBatchRejected) {
		return results, nil
	}
	if err != nil {
		return nil, err
	}
	return results, nil
}

// errNothingToRelease rolls back a keyed release of a day without a record so
// the key is not spent.
var errNothingToRelease = errors.New("no capacity record to release")

func (r *sqliteCapacityRepository) Release(ctx context.Context, item ReserveItem) (*model.CapacityRecord, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	if item.ReleaseKey == "" {
		return release(ctx, r.db, item)
	}

	var record *model.CapacityRecord
	err := r.immediate(ctx, func(q querier) error {
		result, err := q.ExecContext(ctx, `
			INSERT INTO capacity_releases (release_key, excursion_id, date, participants, applied_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (release_key) DO NOTHING`,
			item.ReleaseKey, item.ExcursionID, item.Date, item.Participants, timestamp(),
		)
		if err != nil {
			return fmt.Errorf("failed to record release: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to record release: %w", err)
		}
		if n == 0 {
			return capacityerrors.ErrReleaseAlreadyApplied
		}

		record, err = release(ctx, q, item)
		if err != nil {
			return err
		}
		if record == nil {
			return errNothingToRelease
		}
		return nil
	})

	if errors.Is(err, errNothingToRelease) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return record, nil
}

func release(ctx context.Context, q querier, item ReserveItem) (*model.CapacityRecord, error) {
	row := q.QueryRowContext(ctx, `
		UPDATE capacities
		SET current_bookings = current_bookings - ?, updated_at = ?
		WHERE excursion_id = ? AND date = ? AND current_bookings >= ?
		RETURNING `+recordColumns,
		item.Participants, timestamp(), item.ExcursionID, item.Date, item.Participants,
	)

	record, err := scanRecord(row)
	if err == nil {
		return record, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to release capacity: %w", err)
	}

	if _, err := findOne(ctx, q, item.ExcursionID, item.Date); err != nil {
		if errors.Is(err, capacityerrors.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return nil, capacityerrors.ErrReleaseExceedsBookings
}

// immediate runs fn inside BEGIN IMMEDIATE on a connection of its own. Any
// error from fn rolls the transaction back and is returned as is.
func (r *sqliteCapacityRepository) immediate(ctx context.Context, fn func(q querier) error) error {
	conn, err := r.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, `BEGIN IMMEDIATE`); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(conn); err != nil {
		rollback(conn)
		return err
	}
	if _, err := conn.ExecContext(ctx, `COMMIT`); err != nil {
		rollback(conn)
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func rollback(conn *sql.Conn) {
	if _, err := conn.ExecContext(context.Background(), `ROLLBACK`); err != nil {
		// A connection still inside a transaction must not go back to the pool.
		_ = conn.Raw(func(any) error { return driver.ErrBadConn })
	}
}

func (r *sqliteCapacityRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
