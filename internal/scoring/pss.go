package scoring

import (
	"fmt"
	"strconv"
)

const (
	PSSItemCount = 10
	PSSMaxValue  = 4
	PSSMaxScore  = PSSItemCount * PSSMaxValue
)

// PSSLabel is the stress category of a PSS-10 total.
type PSSLabel string

const (
	PSSMild     PSSLabel = "Stres Ringan"
	PSSModerate PSSLabel = "Stres Sedang"
	PSSSevere   PSSLabel = "Stres Berat"
)

// PSSResult is the outcome of scoring one PSS-10 answer vector.
type PSSResult struct {
	TotalScore int      `json:"total_score"`
	Label      PSSLabel `json:"label"`
}

// PSSKey marks which items are reverse-scored. Index 0 is item 1.
// The zero key scores every item as answered.
type PSSKey struct {
	Reverse [PSSItemCount]bool
}

// NewPSSKey builds a key from 1-based reverse-scored item numbers.
func NewPSSKey(reverseItems ...int) (PSSKey, error) {
	var k PSSKey
	for _, item := range reverseItems {
		if item < 1 || item > PSSItemCount {
			return PSSKey{}, fmt.Errorf("pss key: item %d out of range 1..%d", item, PSSItemCount)
		}
		k.Reverse[item-1] = true
	}
	return k, nil
}

// ScorePSS scores answers with the zero key (no reverse items).
func ScorePSS(answers []int) (*PSSResult, error) {
	return PSSKey{}.Score(answers)
}

// Score sums item contributions: 4 - raw for reverse-scored items, raw otherwise.
func (k PSSKey) Score(answers []int) (*PSSResult, error) {
	if len(answers) != PSSItemCount {
		return nil, &WrongItemCountError{Instrument: InstrumentPSS, Want: PSSItemCount, Got: len(answers)}
	}

	total := 0
	for i, raw := range answers {
		if raw < 0 || raw > PSSMaxValue {
			return nil, &InvalidAnswerValueError{Instrument: InstrumentPSS, Item: i + 1, Value: strconv.Itoa(raw)}
		}
		if k.Reverse[i] {
			total += PSSMaxValue - raw
		} else {
			total += raw
		}
	}

	return &PSSResult{TotalScore: total, Label: ClassifyPSS(total)}, nil
}

// ClassifyPSS maps a total in [0,40] to its category.
// 0–13 mild, 14–26 moderate, 27–40 severe.
func ClassifyPSS(total int) PSSLabel {
	switch {
	case total <= 13:
		return PSSMild
	case total <= 26:
		return PSSModerate
	default:
		return PSSSevere
	}
}
