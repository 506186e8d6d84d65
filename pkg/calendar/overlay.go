// Package calendar applies the presentation-time rules of the booking calendar
// on top of stored availability: past dates and weekdays the excursion does not
// run on are never selectable. Nothing here is persisted.
package calendar

import (
	"diffatours/pkg/availability"
	"diffatours/pkg/caldate"
	"diffatours/pkg/model"
)

type Cell struct {
	*model.AvailabilityDay
	IsPast         bool `json:"is_past"`
	WeekdayOffered bool `json:"weekday_offered"`
	Selectable     bool `json:"selectable"`
}

// Selectable reports whether a customer may pick the day. today is a YYYY-MM-DD date.
func Selectable(day *model.AvailabilityDay, today string, rule availability.WeeklyRule) bool {
	if day == nil || caldate.Before(day.Date, today) {
		return false
	}
	wd, err := caldate.Weekday(day.Date)
	if err != nil || !rule.Allows(wd) {
		return false
	}
	return day.IsAvailable && day.Status != availability.StatusFull
}

func Overlay(days []*model.AvailabilityDay, today string, rule availability.WeeklyRule) []Cell {
	cells := make([]Cell, 0, len(days))
	for _, day := range days {
		offered := false
		if wd, err := caldate.Weekday(day.Date); err == nil {
			offered = rule.Allows(wd)
		}
		cells = append(cells, Cell{
			AvailabilityDay: day,
			IsPast:          caldate.Before(day.Date, today),
			WeekdayOffered:  offered,
			Selectable:      Selectable(day, today, rule),
		})
	}
	return cells
}
