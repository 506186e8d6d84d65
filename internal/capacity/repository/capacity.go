package repository

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	capacityerrors "diffatours/internal/capacity/errors"
	"diffatours/pkg/config"
	"diffatours/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	CollectionName = "Capacities"
)

type ReserveOutcome int

const (
	// OutcomeReserved means the seats were taken; Record is the state after the increment.
	OutcomeReserved ReserveOutcome = iota + 1
	// OutcomeUnlimited means no record exists for the day. Nothing was written.
	OutcomeUnlimited
	// OutcomeRejected means the day is closed or short of seats; Record is its current state.
	OutcomeRejected
)

func (o ReserveOutcome) String() string {
	switch o {
	case OutcomeReserved:
		return "reserved"
	case OutcomeUnlimited:
		return "unlimited"
	case OutcomeRejected:
		return "rejected"
	}
	return "unknown"
}

type ReserveItem struct {
	ExcursionID  string
	Date         string
	Participants int
	// ReleaseKey makes Release idempotent: a key already applied to the day
	// fails with ErrReleaseAlreadyApplied and changes nothing.
	ReleaseKey string
}

// maxAppliedReleases bounds the release keys kept on a Mongo record.
const maxAppliedReleases = 256

type ReserveResult struct {
	Item    ReserveItem
	Outcome ReserveOutcome
	Record  *model.CapacityRecord
}

type CapacityRepository interface {
	// Upsert creates or updates the record. isAvailable nil keeps the stored
	// flag, or opens a new record. Lowering max below current bookings fails
	// with ErrCapacityBelowBookings.
	Upsert(ctx context.Context, excursionID, date string, maxCapacity int, isAvailable *bool) (*model.CapacityRecord, error)
	Delete(ctx context.Context, excursionID, date string) error
	FindOne(ctx context.Context, excursionID, date string) (*model.CapacityRecord, error)
	// FindInRange returns the records with from <= date <= to, ordered by date.
	FindInRange(ctx context.Context, excursionID, from, to string) ([]*model.CapacityRecord, error)
	// Reserve takes n seats in one conditional update.
	Reserve(ctx context.Context, item ReserveItem) (*ReserveResult, error)
	// Release gives n seats back in one conditional update. A day without a
	// record returns nil, nil. Releasing more than is booked fails with
	// ErrReleaseExceedsBookings. A keyed release is recorded in the same update
	// and a repeat fails with ErrReleaseAlreadyApplied.
	Release(ctx context.Context, item ReserveItem) (*model.CapacityRecord, error)
	Ping(ctx context.Context) error
}

// BatchReserver is implemented by stores that can reserve several days
// atomically. ReserveAll stops at the first rejection and then writes nothing;
// the returned results end with the rejected item.
type BatchReserver interface {
	ReserveAll(ctx context.Context, items []ReserveItem) ([]*ReserveResult, error)
}

type mongoCapacityRepository struct {
	cfg        *config.Config
	db         *mongo.Database
	collection *mongo.Collection
}

func NewMongoCapacityRepository(cfg *config.Config) CapacityRepository {
	return newMongoCapacityRepository(cfg)
}

func newMongoCapacityRepository(cfg *config.Config) *mongoCapacityRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoCapacityRepository{
		cfg:        cfg,
		db:         db,
		collection: db.Collection(CollectionName),
	}
}

// withTimeout bounds ctx unless it is a transaction session, which must be
// passed through untouched.
func (r *mongoCapacityRepository) withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.(mongo.SessionContext); ok {
		return ctx, func() {}
	}

	deadline, hasDeadline := ctx.Deadline()
	if hasDeadline && time.Until(deadline) < timeout {
		return context.WithDeadline(ctx, deadline)
	}
	return context.WithTimeout(ctx, timeout)
}

func dayFilter(excursionID, date string) bson.M {
	return bson.M{"excursion_id": excursionID, "date": date}
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

func (r *mongoCapacityRepository) Upsert(ctx context.Context, excursionID, date string, maxCapacity int, isAvailable *bool) (*model.CapacityRecord, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	ts := now()
	set := bson.M{"max_capacity": maxCapacity, "updated_at": ts}
	setOnInsert := bson.M{"current_bookings": 0, "created_at": ts}
	if isAvailable != nil {
		set["is_available"] = *isAvailable
	} else {
		setOnInsert["is_available"] = true
	}
	update := bson.M{"$set": set, "$setOnInsert": setOnInsert}

	// The bookings guard is part of the filter, so a concurrent reservation
	// can never slip in between a check and the write.
	filter := dayFilter(excursionID, date)
	filter["current_bookings"] = bson.M{"$lte": maxCapacity}

	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var record model.CapacityRecord
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&record)
	if err == nil {
		return &record, nil
	}
	if !mongo.IsDuplicateKeyError(err) {
		return nil, fmt.Errorf("failed to upsert capacity: %w", err)
	}

	// A duplicate key means the record exists but the guard did not match, or
	// a concurrent upsert inserted it first. Retry as a plain update.
	opts.SetUpsert(false)
	err = r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&record)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, capacityerrors.ErrCapacityBelowBookings
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update capacity: %w", err)
	}
	return &record, nil
}

func (r *mongoCapacityRepository) Delete(ctx context.Context, excursionID, date string) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	result, err := r.collection.DeleteOne(ctx, dayFilter(excursionID, date))
	if err != nil {
		return fmt.Errorf("failed to delete capacity: %w", err)
	}
	if result.DeletedCount == 0 {
		return capacityerrors.ErrNotFound
	}
	return nil
}

func (r *mongoCapacityRepository) FindOne(ctx context.Context, excursionID, date string) (*model.CapacityRecord, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	var record model.CapacityRecord
	err := r.collection.FindOne(ctx, dayFilter(excursionID, date)).Decode(&record)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, capacityerrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find capacity: %w", err)
	}
	return &record, nil
}

func (r *mongoCapacityRepository) FindInRange(ctx context.Context, excursionID, from, to string) ([]*model.CapacityRecord, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := bson.M{
		"excursion_id": excursionID,
		"date":         bson.M{"$gte": from, "$lte": to},
	}
	opts := options.Find().SetSort(bson.D{{Key: "date", Value: 1}})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find capacities: %w", err)
	}
	defer cursor.Close(ctx)

	records := make([]*model.CapacityRecord, 0)
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("failed to decode capacities: %w", err)
	}
	return records, nil
}

func (r *mongoCapacityRepository) Reserve(ctx context.Context, item ReserveItem) (*ReserveResult, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	filter := dayFilter(item.ExcursionID, item.Date)
	filter["is_available"] = true
	filter["$expr"] = bson.M{
		"$lte": bson.A{
			bson.M{"$add": bson.A{"$current_bookings", item.Participants}},
			"$max_capacity",
		},
	}
	update := bson.M{
		"$inc": bson.M{"current_bookings": item.Participants},
		"$set": bson.M{"updated_at": now()},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var record model.CapacityRecord
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&record)
	if err == nil {
		return &ReserveResult{Item: item, Outcome: OutcomeReserved, Record: &record}, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("failed to reserve capacity: %w", err)
	}

	// Nothing matched: either there is no record or the guard rejected it.
	current, err := r.FindOne(ctx, item.ExcursionID, item.Date)
	if errors.Is(err, capacityerrors.ErrNotFound) {
		return &ReserveResult{Item: item, Outcome: OutcomeUnlimited}, nil
	}
	if err != nil {
		return nil, err
	}
	return &ReserveResult{Item: item, Outcome: OutcomeRejected, Record: current}, nil
}

func (r *mongoCapacityRepository) Release(ctx context.Context, item ReserveItem) (*model.CapacityRecord, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	filter := dayFilter(item.ExcursionID, item.Date)
	filter["current_bookings"] = bson.M{"$gte": item.Participants}
	update := bson.M{
		"$inc": bson.M{"current_bookings": -item.Participants},
		"$set": bson.M{"updated_at": now()},
	}
	if item.ReleaseKey != "" {
		filter["applied_releases"] = bson.M{"$ne": item.ReleaseKey}
		update["$push"] = bson.M{"applied_releases": bson.M{
			"$each":  bson.A{item.ReleaseKey},
			"$slice": -maxAppliedReleases,
		}}
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var record model.CapacityRecord
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&record)
	if err == nil {
		return &record, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("failed to release capacity: %w", err)
	}

	current, err := r.FindOne(ctx, item.ExcursionID, item.Date)
	if err != nil {
		if errors.Is(err, capacityerrors.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if item.ReleaseKey != "" && slices.Contains(current.AppliedReleases, item.ReleaseKey) {
		return nil, capacityerrors.ErrReleaseAlreadyApplied
	}
	return nil, capacityerrors.ErrReleaseExceedsBookings
}

func (r *mongoCapacityRepository) Ping(ctx context.Context) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()
	return r.db.Client().Ping(ctx, nil)
}
