package availability

type Status string

const (
	StatusAvailable Status = "available"
	StatusLimited   Status = "limited"
	StatusFull      Status = "full"
)

// LimitedPercent is the share of remaining seats below which a day reads as limited.
// A day sitting exactly on the boundary is still available.
const LimitedPercent = 20

// Classify maps a seat budget to its calendar status. It is pure and does not
// consider the manual is_available override, which is reported separately.
func Classify(maxCapacity, currentBookings int) Status {
	remaining := maxCapacity - currentBookings
	if remaining <= 0 {
		return StatusFull
	}
	// remaining/max < 20% without floating point: remaining*100 < max*20.
	if remaining*100 < maxCapacity*LimitedPercent {
		return StatusLimited
	}
	return StatusAvailable
}

// Unlimited is the status of a day that has no capacity record.
func Unlimited() Status {
	return StatusAvailable
}

// AvailableSpots returns the seats left, never negative.
func AvailableSpots(maxCapacity, currentBookings int) int {
	return max(0, maxCapacity-currentBookings)
}

func (s Status) Valid() bool {
	switch s {
	case StatusAvailable, StatusLimited, StatusFull:
		return true
	}
	return false
}
