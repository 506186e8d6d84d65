package sanitizer

import (
	"regexp"
	"strings"
	"unicode"
)

type Strategy func(string) string

type Pipeline []Strategy

func (p Pipeline) Apply(s string) string {
	for _, fn := range p {
		s = fn(s)
	}
	return s
}

var (
	reWeekdaySeparators = regexp.MustCompile(`[\s,;|]+`)
	reKeepLettersOnly   = regexp.MustCompile(`[^\p{L}]+`)
)

func trimAndLower(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ToLower(s)
	return s
}

func dropControl(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}

// SanitizeExcursionID keeps the id case sensitive; ids come from the catalog
// and may be ObjectIDs or slugs.
func SanitizeExcursionID(input string) string {
	p := Pipeline{
		dropControl,
		strings.TrimSpace,
	}
	return p.Apply(input)
}

func SanitizeOrderRef(input string) string {
	p := Pipeline{
		TrimAndNormalize,
		dropControl,
	}
	return p.Apply(input)
}

func SanitizeWeekday(input string) string {
	p := Pipeline{
		trimAndLower,
		func(s string) string { return reKeepLettersOnly.ReplaceAllString(s, "") },
	}
	return p.Apply(input)
}

// SplitWeekdays turns "Monday, wednesday;FRIDAY" into its normalized entries.
func SplitWeekdays(input string) []string {
	return NormalizeStringSlice(reWeekdaySeparators.Split(input, -1), SanitizeWeekday)
}
