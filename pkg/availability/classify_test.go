package availability

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		max     int
		current int
		want    Status
	}{
		{"empty day", 10, 0, StatusAvailable},
		{"exactly twenty percent left", 10, 8, StatusAvailable},
		{"just under twenty percent", 100, 81, StatusLimited},
		{"one of ten left", 10, 9, StatusLimited},
		{"sold out", 10, 10, StatusFull},
		{"single seat taken", 1, 1, StatusFull},
		{"single seat free", 1, 0, StatusAvailable},
		{"over booked", 5, 7, StatusFull},
		{"twenty of a hundred", 100, 80, StatusAvailable},
		{"three of twenty", 20, 17, StatusLimited},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.max, tt.current); got != tt.want {
				t.Errorf("Classify(%d, %d) = %s, want %s", tt.max, tt.current, got, tt.want)
			}
		})
	}
}

func TestUnlimitedIsAvailable(t *testing.T) {
	if Unlimited() != StatusAvailable {
		t.Errorf("Unlimited() = %s, want available", Unlimited())
	}
}

func TestAvailableSpots(t *testing.T) {
	if got := AvailableSpots(10, 3); got != 7 {
		t.Errorf("AvailableSpots(10, 3) = %d", got)
	}
	if got := AvailableSpots(5, 7); got != 0 {
		t.Errorf("AvailableSpots should clamp at zero, got %d", got)
	}
}

func TestStatusValid(t *testing.T) {
	for _, s := range []Status{StatusAvailable, StatusLimited, StatusFull} {
		if !s.Valid() {
			t.Errorf("%s should be valid", s)
		}
	}
	if Status("closed").Valid() {
		t.Errorf("closed is not a classifier status")
	}
}
