package calendar

import "diffatours/pkg/model"

// MonthView is the calendar endpoint payload. Cells is only set when the
// caller asked for the widget overlay.
type MonthView struct {
	ExcursionID string                   `json:"excursion_id"`
	Year        int                      `json:"year"`
	Month       int                      `json:"month"`
	Days        []*model.AvailabilityDay `json:"days"`
	Weekdays    []string                 `json:"weekdays,omitempty"`
	Today       string                   `json:"today,omitempty"`
	Cells       []Cell                   `json:"cells,omitempty"`
}
