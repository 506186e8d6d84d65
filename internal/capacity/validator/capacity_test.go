package validator

import (
	"math"
	"strings"
	"testing"

	"diffatours/pkg/logger"
	"diffatours/pkg/model"
)

func newTestValidator() *CapacityValidator {
	return NewCapacityValidator(logger.Discard(), Limits{MaxParticipantsPerItem: 20, MaxLineItems: 3})
}

func intPtr(i int) *int { return &i }

func TestValidateItems(t *testing.T) {
	v := newTestValidator()

	tests := []struct {
		name    string
		items   []model.LineItem
		wantTag string
	}{
		{
			name:  "flat participant count",
			items: []model.LineItem{{ExcursionID: "exc-1", Date: "2025-06-10", Participants: 2}},
		},
		{
			name: "age bracket breakdown",
			items: []model.LineItem{{ExcursionID: "exc-1", Date: "2025-06-10", Breakdown: &model.Participants{
				Adults: 2, Children: 1, Infants: 1,
			}}},
		},
		{
			name:    "no items",
			items:   nil,
			wantTag: "required",
		},
		{
			name:    "zero participants",
			items:   []model.LineItem{{ExcursionID: "exc-1", Date: "2025-06-10"}},
			wantTag: TagParticipants,
		},
		{
			name:    "negative participants",
			items:   []model.LineItem{{ExcursionID: "exc-1", Date: "2025-06-10", Participants: -3}},
			wantTag: TagParticipants,
		},
		{
			name:    "above per item maximum",
			items:   []model.LineItem{{ExcursionID: "exc-1", Date: "2025-06-10", Participants: 21}},
			wantTag: TagParticipants,
		},
		{
			name: "both count and breakdown",
			items: []model.LineItem{{ExcursionID: "exc-1", Date: "2025-06-10", Participants: 1,
				Breakdown: &model.Participants{Adults: 1}}},
			wantTag: TagParticipants,
		},
		{
			name:    "february 30",
			items:   []model.LineItem{{ExcursionID: "exc-1", Date: "2025-02-30", Participants: 1}},
			wantTag: TagCalendarDate,
		},
		{
			name:    "missing excursion",
			items:   []model.LineItem{{Date: "2025-06-10", Participants: 1}},
			wantTag: "required",
		},
		{
			name: "too many line items",
			items: []model.LineItem{
				{ExcursionID: "a", Date: "2025-06-10", Participants: 1},
				{ExcursionID: "b", Date: "2025-06-10", Participants: 1},
				{ExcursionID: "c", Date: "2025-06-10", Participants: 1},
				{ExcursionID: "d", Date: "2025-06-10", Participants: 1},
			},
			wantTag: TagLineItems,
		},
		{
			name: "bracket above per item maximum",
			items: []model.LineItem{{ExcursionID: "exc-1", Date: "2025-06-10", Breakdown: &model.Participants{
				Adults: 21,
			}}},
			wantTag: TagParticipants,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateItems(tt.items)
			if tt.wantTag == "" {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				return
			}
			errs, ok := err.(ValidationErrors)
			if !ok {
				t.Fatalf("expected ValidationErrors, got %T (%v)", err, err)
			}
			if _, found := errs.First(tt.wantTag); !found {
				t.Errorf("expected an error tagged %q, got %v", tt.wantTag, errs)
			}
		})
	}
}

func TestValidateItems_BreakdownCannotWrapAround(t *testing.T) {
	for _, limits := range []Limits{{MaxParticipantsPerItem: 20}, {}} {
		v := NewCapacityValidator(logger.Discard(), limits)

		// The three brackets sum to 5 once the int wraps.
		err := v.ValidateItems([]model.LineItem{{ExcursionID: "exc-1", Date: "2025-06-10", Breakdown: &model.Participants{
			Adults: math.MaxInt, Children: math.MaxInt, Infants: 7,
		}}})

		errs, ok := err.(ValidationErrors)
		if !ok {
			t.Fatalf("limits %+v: expected ValidationErrors, got %T (%v)", limits, err, err)
		}
		got, found := errs.First(TagParticipants)
		if !found {
			t.Fatalf("limits %+v: expected a participants error, got %v", limits, errs)
		}
		if got.Field != "items[0].breakdown.adults" {
			t.Errorf("field = %q, want items[0].breakdown.adults", got.Field)
		}
	}
}

func TestValidateItems_FieldNamesUseJSONNames(t *testing.T) {
	v := newTestValidator()

	err := v.ValidateItems([]model.LineItem{
		{ExcursionID: "exc-1", Date: "2025-06-10", Participants: 1},
		{ExcursionID: "exc-1", Date: "10/06/2025", Participants: 1},
	})
	errs, ok := err.(ValidationErrors)
	if !ok {
		t.Fatalf("expected ValidationErrors, got %T", err)
	}
	got, _ := errs.First(TagCalendarDate)
	if got.Field != "items[1].date" {
		t.Errorf("field = %q, want items[1].date", got.Field)
	}
	if got.Value != "10/06/2025" {
		t.Errorf("value = %q, want the rejected date", got.Value)
	}
}

func TestValidateUpdate(t *testing.T) {
	v := newTestValidator()

	tests := []struct {
		name        string
		excursionID string
		date        string
		update      *model.CapacityUpdate
		wantErr     string
	}{
		{name: "valid", excursionID: "exc-1", date: "2024-02-29", update: &model.CapacityUpdate{MaxCapacity: intPtr(10)}},
		{name: "missing body", excursionID: "exc-1", date: "2025-06-10", update: nil, wantErr: "max_capacity is required"},
		{name: "missing max", excursionID: "exc-1", date: "2025-06-10", update: &model.CapacityUpdate{}, wantErr: "max_capacity is required"},
		{name: "zero max", excursionID: "exc-1", date: "2025-06-10", update: &model.CapacityUpdate{MaxCapacity: intPtr(0)}, wantErr: "max_capacity must be at least 1"},
		{name: "not a leap year", excursionID: "exc-1", date: "2025-02-29", update: &model.CapacityUpdate{MaxCapacity: intPtr(10)}, wantErr: "YYYY-MM-DD"},
		{name: "blank excursion", excursionID: "  ", date: "2025-06-10", update: &model.CapacityUpdate{MaxCapacity: intPtr(10)}, wantErr: "excursion_id is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateUpdate(tt.excursionID, tt.date, tt.update)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidateMonthAndRange(t *testing.T) {
	v := newTestValidator()

	if err := v.ValidateMonth("exc-1", 2025, 2); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := v.ValidateMonth("exc-1", 2025, 13); err == nil {
		t.Error("expected month 13 to be rejected")
	}
	if err := v.ValidateMonth("exc-1", 1999, 1); err == nil {
		t.Error("expected year 1999 to be rejected")
	}

	if err := v.ValidateRange("exc-1", "2025-01-01", "2025-12-31"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := v.ValidateRange("exc-1", "2024-01-01", "2024-12-31"); err != nil {
		t.Errorf("a full leap year is 366 days and must pass: %v", err)
	}
	if err := v.ValidateRange("exc-1", "2025-01-01", "2026-01-02"); err == nil {
		t.Error("expected a range of 367 days to be rejected")
	}
	if err := v.ValidateRange("exc-1", "2025-06-10", "2025-06-09"); err == nil {
		t.Error("expected a reversed range to be rejected")
	}
}
