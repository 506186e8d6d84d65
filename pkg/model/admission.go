package model

import "time"

// Participants is the age-bracket breakdown of a line item.
type Participants struct {
	Adults   int `json:"adults" validate:"min=0"`
	Children int `json:"children" validate:"min=0"`
	Infants  int `json:"infants" validate:"min=0"`
}

func (p Participants) Total() int {
	return p.Adults + p.Children + p.Infants
}

// LineItem is one (excursion, date, participant count) unit of an order.
// Callers send either a flat Participants count or a Breakdown.
type LineItem struct {
	ExcursionID  string        `json:"excursion_id" validate:"required,max=64"`
	Date         string        `json:"date" validate:"required,calendar_date"`
	Participants int           `json:"participants,omitempty"`
	Breakdown    *Participants `json:"breakdown,omitempty"`
}

func (li LineItem) Total() int {
	if li.Breakdown != nil {
		return li.Breakdown.Total()
	}
	return li.Participants
}

// Key identifies the contended ledger record of the item.
func (li LineItem) Key() string {
	return li.ExcursionID + "|" + li.Date
}

type AdmissionRequest struct {
	OrderRef string     `json:"order_ref,omitempty" validate:"omitempty,max=128"`
	Items    []LineItem `json:"items" validate:"required,min=1,dive"`
}

const (
	FailureInsufficientCapacity = "insufficient_capacity"
	FailureClosed               = "closed"
)

type LineItemFailure struct {
	ExcursionID string `json:"excursion_id"`
	Date        string `json:"date"`
	Requested   int    `json:"requested"`
	Remaining   int    `json:"remaining"`
	Reason      string `json:"reason"`
}

type AdmissionResult struct {
	Admitted bool              `json:"admitted"`
	OrderRef string            `json:"order_ref,omitempty"`
	Failures []LineItemFailure `json:"failures,omitempty"`
}

// ReleaseRequest gives seats back. With a ReleaseID every (excursion, date)
// of the request is released at most once, however often it is resent.
type ReleaseRequest struct {
	OrderRef  string     `json:"order_ref,omitempty" validate:"omitempty,max=128"`
	ReleaseID string     `json:"release_id,omitempty" validate:"omitempty,max=128"`
	Items     []LineItem `json:"items" validate:"required,min=1,dive"`
}

// Reconciliation describes increments that could not be rolled back and must be
// released later so the seats do not leak. ID names the rolled back admission
// attempt and doubles as the release id.
type Reconciliation struct {
	ID        string     `json:"id"`
	OrderRef  string     `json:"order_ref,omitempty"`
	Items     []LineItem `json:"items"`
	Reason    string     `json:"reason"`
	CreatedAt time.Time  `json:"created_at"`
}
