package scoring

import (
	"errors"
	"testing"
)

func TestScorePSS(t *testing.T) {
	tests := []struct {
		name    string
		answers []int
		total   int
		label   PSSLabel
	}{
		{name: "all zero", answers: []int{0, 0, 0, 0, 0, 0, 0, 0, 0, 0}, total: 0, label: PSSMild},
		{name: "upper mild boundary", answers: []int{4, 4, 4, 1, 0, 0, 0, 0, 0, 0}, total: 13, label: PSSMild},
		{name: "lower moderate boundary", answers: []int{4, 4, 4, 2, 0, 0, 0, 0, 0, 0}, total: 14, label: PSSModerate},
		{name: "upper moderate boundary", answers: []int{4, 4, 4, 4, 4, 4, 2, 0, 0, 0}, total: 26, label: PSSModerate},
		{name: "lower severe boundary", answers: []int{4, 4, 4, 4, 4, 4, 3, 0, 0, 0}, total: 27, label: PSSSevere},
		{name: "all max", answers: []int{4, 4, 4, 4, 4, 4, 4, 4, 4, 4}, total: 40, label: PSSSevere},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ScorePSS(tc.answers)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.TotalScore != tc.total {
				t.Fatalf("total = %d, want %d", got.TotalScore, tc.total)
			}
			if got.Label != tc.label {
				t.Fatalf("label = %q, want %q", got.Label, tc.label)
			}
		})
	}
}

func TestPSSKeyReverseItems(t *testing.T) {
	key, err := NewPSSKey(4, 5, 7, 8)
	if err != nil {
		t.Fatalf("NewPSSKey: %v", err)
	}

	got, err := key.Score([]int{0, 0, 0, 0, 0, 0, 0, 0, 0, 0})
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if got.TotalScore != 16 {
		t.Fatalf("total = %d, want 16", got.TotalScore)
	}
	if got.Label != PSSModerate {
		t.Fatalf("label = %q, want %q", got.Label, PSSModerate)
	}

	got, err = key.Score([]int{2, 2, 2, 4, 4, 2, 4, 4, 2, 2})
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if got.TotalScore != 12 {
		t.Fatalf("total = %d, want 12", got.TotalScore)
	}
}

func TestNewPSSKeyOutOfRange(t *testing.T) {
	for _, item := range []int{0, 11, -1} {
		if _, err := NewPSSKey(item); err == nil {
			t.Fatalf("item %d: expected error", item)
		}
	}
}

func TestScorePSSErrors(t *testing.T) {
	_, err := ScorePSS([]int{0, 0, 0})
	var wrong *WrongItemCountError
	if !errors.As(err, &wrong) {
		t.Fatalf("expected WrongItemCountError, got %v", err)
	}
	if wrong.Want != 10 || wrong.Got != 3 {
		t.Fatalf("unexpected counts: %+v", wrong)
	}

	for _, bad := range []int{-1, 5} {
		answers := []int{0, 0, 0, 0, 0, 0, 0, 0, 0, 0}
		answers[6] = bad
		_, err := ScorePSS(answers)
		var invalid *InvalidAnswerValueError
		if !errors.As(err, &invalid) {
			t.Fatalf("value %d: expected InvalidAnswerValueError, got %v", bad, err)
		}
		if invalid.Item != 7 {
			t.Fatalf("item = %d, want 7", invalid.Item)
		}
	}
}

func TestOrderedVector(t *testing.T) {
	vec, err := OrderedVector(InstrumentPSS, 3, map[int]int{3: 2, 1: 0, 2: 4})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if vec[0] != 0 || vec[1] != 4 || vec[2] != 2 {
		t.Fatalf("vec = %v", vec)
	}

	_, err = OrderedVector(InstrumentPSS, 5, map[int]int{1: 0, 4: 1})
	var incomplete *IncompleteAnswersError
	if !errors.As(err, &incomplete) {
		t.Fatalf("expected IncompleteAnswersError, got %v", err)
	}
	if len(incomplete.Missing) != 3 || incomplete.Missing[0] != 2 || incomplete.Missing[2] != 5 {
		t.Fatalf("missing = %v", incomplete.Missing)
	}

	_, err = OrderedVector(InstrumentSRQ29, 2, map[int]string{1: "Y", 2: "T", 7: "Y"})
	var wrong *WrongItemCountError
	if !errors.As(err, &wrong) {
		t.Fatalf("expected WrongItemCountError, got %v", err)
	}
}
