package sanitizer

import (
	"reflect"
	"testing"
)

func TestNormalizeWeekdays(t *testing.T) {
	tests := []struct {
		name  string
		input []string
		want  []string
	}{
		{
			name:  "convert to lowercase",
			input: []string{"Monday", "FRIDAY"},
			want:  []string{"monday", "friday"},
		},
		{
			name:  "trim whitespace",
			input: []string{" monday ", "  friday  "},
			want:  []string{"monday", "friday"},
		},
		{
			name:  "remove duplicates",
			input: []string{"Monday", "monday", "MONDAY"},
			want:  []string{"monday"},
		},
		{
			name:  "filter empty strings",
			input: []string{"monday", "", "  ", "friday"},
			want:  []string{"monday", "friday"},
		},
		{
			name:  "empty input",
			input: []string{},
			want:  []string{},
		},
		{
			name:  "nil input",
			input: nil,
			want:  []string{},
		},
		{
			name:  "strip punctuation",
			input: []string{"monday.", "'friday'"},
			want:  []string{"monday", "friday"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeWeekdays(tt.input)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("NormalizeWeekdays(%v) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestSplitWeekdays(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{input: "Monday, wednesday;FRIDAY", want: []string{"monday", "wednesday", "friday"}},
		{input: "everyday", want: []string{"everyday"}},
		{input: "monday|monday", want: []string{"monday"}},
		{input: "", want: []string{}},
	}

	for _, tt := range tests {
		got := SplitWeekdays(tt.input)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("SplitWeekdays(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestPipeline_AppliesInOrder(t *testing.T) {
	p := Pipeline{
		func(s string) string { return s + "a" },
		func(s string) string { return s + "b" },
	}
	if got := p.Apply(""); got != "ab" {
		t.Errorf("Apply = %q, want %q", got, "ab")
	}
}
