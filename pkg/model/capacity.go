package model

import (
	"time"

	"diffatours/pkg/availability"
)

// CapacityRecord is the seat budget for one excursion on one calendar day.
// A missing record means the day is unlimited.
type CapacityRecord struct {
	ID              string    `json:"id,omitempty" bson:"_id,omitempty"`
	ExcursionID     string    `json:"excursion_id" bson:"excursion_id" validate:"required,max=64"`
	Date            string    `json:"date" bson:"date" validate:"required,calendar_date"`
	MaxCapacity     int       `json:"max_capacity" bson:"max_capacity" validate:"required,min=1"`
	CurrentBookings int       `json:"current_bookings" bson:"current_bookings" validate:"min=0,ltefield=MaxCapacity"`
	IsAvailable     bool      `json:"is_available" bson:"is_available"`
	CreatedAt       time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" bson:"updated_at"`

	// AppliedReleases holds the most recent keyed releases so a redelivered
	// compensation is applied once.
	AppliedReleases []string `json:"-" bson:"applied_releases,omitempty"`
}

func (r *CapacityRecord) AvailableSpots() int {
	return availability.AvailableSpots(r.MaxCapacity, r.CurrentBookings)
}

// Admits reports whether n more seats fit on this day.
func (r *CapacityRecord) Admits(n int) bool {
	return r.IsAvailable && r.MaxCapacity-r.CurrentBookings >= n
}

// CapacityUpdate is the operator write payload. IsAvailable is optional: new
// records default to open and existing ones keep their flag.
type CapacityUpdate struct {
	MaxCapacity *int  `json:"max_capacity" validate:"required,min=1,max=100000"`
	IsAvailable *bool `json:"is_available,omitempty"`
}

// AvailabilityDay is the derived, never persisted view of one calendar day.
type AvailabilityDay struct {
	Date            string              `json:"date"`
	HasLimit        bool                `json:"has_limit"`
	MaxCapacity     *int                `json:"max_capacity,omitempty"`
	CurrentBookings *int                `json:"current_bookings,omitempty"`
	AvailableSpots  *int                `json:"available_spots,omitempty"`
	IsAvailable     bool                `json:"is_available"`
	Status          availability.Status `json:"status"`
}

func NewUnlimitedDay(date string) *AvailabilityDay {
	return &AvailabilityDay{
		Date:        date,
		HasLimit:    false,
		IsAvailable: true,
		Status:      availability.Unlimited(),
	}
}

func NewLimitedDay(r *CapacityRecord) *AvailabilityDay {
	maxCapacity := r.MaxCapacity
	current := r.CurrentBookings
	spots := r.AvailableSpots()
	return &AvailabilityDay{
		Date:            r.Date,
		HasLimit:        true,
		MaxCapacity:     &maxCapacity,
		CurrentBookings: &current,
		AvailableSpots:  &spots,
		IsAvailable:     r.IsAvailable,
		Status:          availability.Classify(r.MaxCapacity, r.CurrentBookings),
	}
}
