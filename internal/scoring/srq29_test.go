package scoring

import (
	"errors"
	"testing"
)

func srqAnswers(yes ...int) []string {
	out := make([]string, SRQ29ItemCount)
	for i := range out {
		out[i] = SRQNo
	}
	for _, item := range yes {
		out[item-1] = SRQYes
	}
	return out
}

func TestScoreSRQ29(t *testing.T) {
	tests := []struct {
		name  string
		yes   []int
		total int
		flags SRQFlags
		label SRQLabel
	}{
		{name: "all tidak", yes: nil, total: 0, flags: SRQFlags{}, label: SRQNormal},
		{name: "four neurotic items stay normal", yes: []int{1, 2, 3, 4}, total: 4, label: SRQNormal},
		{name: "five neurotic items", yes: []int{1, 5, 9, 13, 20}, total: 5, flags: SRQFlags{Anxiety: true}, label: SRQAnxietyDepression},
		{name: "ptsd items only", yes: []int{25, 26, 27, 28, 29}, total: 5, flags: SRQFlags{PTSD: true}, label: SRQPTSDOnly},
		{name: "single psychotic item", yes: []int{23}, total: 1, flags: SRQFlags{Psychotic: true}, label: SRQPsychoticOnly},
		{name: "ptsd and psychotic", yes: []int{22, 29}, total: 2, flags: SRQFlags{Psychotic: true, PTSD: true}, label: SRQPTSDPsychotic},
		{name: "anxiety and ptsd", yes: []int{1, 2, 3, 4, 5, 25}, total: 6, flags: SRQFlags{Anxiety: true, PTSD: true}, label: SRQAnxietyDepressionPTSD},
		{name: "anxiety and psychotic", yes: []int{1, 2, 3, 4, 5, 24}, total: 6, flags: SRQFlags{Anxiety: true, Psychotic: true}, label: SRQAnxietyDepressionPsych},
		{name: "all symptoms", yes: []int{1, 2, 3, 4, 5, 22, 25}, total: 7, flags: SRQFlags{Anxiety: true, Psychotic: true, PTSD: true}, label: SRQAllSymptoms},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ScoreSRQ29(srqAnswers(tc.yes...))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.TotalScore != tc.total {
				t.Fatalf("total = %d, want %d", got.TotalScore, tc.total)
			}
			if got.Flags != tc.flags {
				t.Fatalf("flags = %s, want %s", got.Flags, tc.flags)
			}
			if got.Label != tc.label {
				t.Fatalf("label = %q, want %q", got.Label, tc.label)
			}
			if got.Description == "" {
				t.Fatalf("missing description for %q", got.Label)
			}
		})
	}
}

func TestScoreSRQ29Unclassified(t *testing.T) {
	_, err := ScoreSRQ29(srqAnswers(21, 25))
	var unclassified *UnclassifiedCombinationError
	if !errors.As(err, &unclassified) {
		t.Fatalf("expected UnclassifiedCombinationError, got %v", err)
	}
	if !unclassified.Flags.Substance || !unclassified.Flags.PTSD {
		t.Fatalf("flags = %s", unclassified.Flags)
	}
	if unclassified.TotalScore != 2 {
		t.Fatalf("total = %d, want 2", unclassified.TotalScore)
	}
}

func TestScoreSRQ29InputErrors(t *testing.T) {
	_, err := ScoreSRQ29(srqAnswers()[:28])
	var wrong *WrongItemCountError
	if !errors.As(err, &wrong) {
		t.Fatalf("expected WrongItemCountError, got %v", err)
	}

	answers := srqAnswers()
	answers[10] = "y"
	_, err = ScoreSRQ29(answers)
	var invalid *InvalidAnswerValueError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidAnswerValueError, got %v", err)
	}
	if invalid.Item != 11 || invalid.Value != "y" {
		t.Fatalf("unexpected error detail: %+v", invalid)
	}
}

func TestSRQFlagsKey(t *testing.T) {
	tests := []struct {
		flags SRQFlags
		key   uint8
	}{
		{SRQFlags{}, 0b0000},
		{SRQFlags{PTSD: true}, 0b0001},
		{SRQFlags{Psychotic: true}, 0b0010},
		{SRQFlags{Substance: true}, 0b0100},
		{SRQFlags{Anxiety: true}, 0b1000},
		{SRQFlags{Anxiety: true, Substance: true, Psychotic: true, PTSD: true}, 0b1111},
	}
	for _, tc := range tests {
		if got := tc.flags.Key(); got != tc.key {
			t.Fatalf("%s: key = %04b, want %04b", tc.flags, got, tc.key)
		}
	}
}

func TestClassifySRQ29SubstanceNeverLabelled(t *testing.T) {
	for key := uint8(0); key < 16; key++ {
		flags := SRQFlags{
			Anxiety:   key&0b1000 != 0,
			Substance: key&0b0100 != 0,
			Psychotic: key&0b0010 != 0,
			PTSD:      key&0b0001 != 0,
		}
		_, err := ClassifySRQ29(flags)
		if flags.Substance && err == nil {
			t.Fatalf("%s: expected unclassified", flags)
		}
		if !flags.Substance && err != nil {
			t.Fatalf("%s: unexpected error %v", flags, err)
		}
	}
}
