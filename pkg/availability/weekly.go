package availability

import (
	"fmt"
	"slices"
	"time"

	"diffatours/pkg/sanitizer"
)

// Everyday is the rule sentinel for excursions that run on all seven days.
const Everyday = "everyday"

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// WeeklyRule is the set of weekdays an excursion operates on. The zero value
// allows every day, matching an excursion that never declared a rule.
type WeeklyRule struct {
	days map[time.Weekday]struct{}
}

func EverydayRule() WeeklyRule {
	return WeeklyRule{}
}

// NewWeeklyRule builds a rule from lowercase weekday names or the "everyday" sentinel.
func NewWeeklyRule(names []string) (WeeklyRule, error) {
	days := make(map[time.Weekday]struct{}, len(names))
	for _, name := range sanitizer.NormalizeWeekdays(names) {
		if name == Everyday {
			return EverydayRule(), nil
		}
		wd, ok := weekdayNames[name]
		if !ok {
			return WeeklyRule{}, fmt.Errorf("unknown weekday %q", name)
		}
		days[wd] = struct{}{}
	}
	if len(days) == 0 || len(days) == 7 {
		return EverydayRule(), nil
	}
	return WeeklyRule{days: days}, nil
}

// ParseWeeklyRule accepts a separated list, e.g. "monday,friday", "Monday; Friday" or "everyday".
func ParseWeeklyRule(list string) (WeeklyRule, error) {
	return NewWeeklyRule(sanitizer.SplitWeekdays(list))
}

func (r WeeklyRule) IsEveryday() bool {
	return len(r.days) == 0
}

func (r WeeklyRule) Allows(wd time.Weekday) bool {
	if r.IsEveryday() {
		return true
	}
	_, ok := r.days[wd]
	return ok
}

// Names returns the rule in its wire form, ordered Sunday first.
func (r WeeklyRule) Names() []string {
	if r.IsEveryday() {
		return []string{Everyday}
	}
	out := make([]string, 0, len(r.days))
	for name, wd := range weekdayNames {
		if _, ok := r.days[wd]; ok {
			out = append(out, name)
		}
	}
	slices.SortFunc(out, func(a, b string) int {
		return int(weekdayNames[a]) - int(weekdayNames[b])
	})
	return out
}
