// Package scoring holds the deterministic scoring rules of the standardized
// instruments. Every function here is pure: no I/O, no clock, no shared state.
package scoring

import (
	"fmt"
	"sort"
)

// Instrument names a scored instrument in error messages.
type Instrument string

const (
	InstrumentPSS   Instrument = "PSS-10"
	InstrumentSRQ29 Instrument = "SRQ-29"
)

// WrongItemCountError is returned when an answer vector does not have the
// fixed length of the instrument.
type WrongItemCountError struct {
	Instrument Instrument
	Want       int
	Got        int
}

func (e *WrongItemCountError) Error() string {
	return fmt.Sprintf("%s: expected %d items, got %d", e.Instrument, e.Want, e.Got)
}

// InvalidAnswerValueError is returned when an answer lies outside the
// instrument's answer domain. Item is 1-based.
type InvalidAnswerValueError struct {
	Instrument Instrument
	Item       int
	Value      string
}

func (e *InvalidAnswerValueError) Error() string {
	return fmt.Sprintf("%s: invalid answer %q for item %d", e.Instrument, e.Value, e.Item)
}

// IncompleteAnswersError is returned when items are missing from a
// finalized answer set. Missing holds 1-based item numbers in ascending order.
type IncompleteAnswersError struct {
	Instrument Instrument
	Missing    []int
}

func (e *IncompleteAnswersError) Error() string {
	return fmt.Sprintf("%s: %d item(s) unanswered", e.Instrument, len(e.Missing))
}

// UnclassifiedCombinationError is returned for SRQ-29 flag combinations the
// rule table has no label for. The computed total and flags are carried so
// callers can still record them.
type UnclassifiedCombinationError struct {
	Flags      SRQFlags
	TotalScore int
}

func (e *UnclassifiedCombinationError) Error() string {
	return fmt.Sprintf("%s: no label for flags %s", InstrumentSRQ29, e.Flags)
}

// OrderedVector turns answers keyed by 1-based item number into the fixed
// length vector an instrument expects.
func OrderedVector[T any](instrument Instrument, size int, byItem map[int]T) ([]T, error) {
	for item := range byItem {
		if item < 1 || item > size {
			return nil, &WrongItemCountError{Instrument: instrument, Want: size, Got: maxKey(byItem)}
		}
	}

	out := make([]T, size)
	var missing []int
	for i := 1; i <= size; i++ {
		v, ok := byItem[i]
		if !ok {
			missing = append(missing, i)
			continue
		}
		out[i-1] = v
	}
	if len(missing) > 0 {
		sort.Ints(missing)
		return nil, &IncompleteAnswersError{Instrument: instrument, Missing: missing}
	}
	return out, nil
}

func maxKey[T any](m map[int]T) int {
	max := 0
	for k := range m {
		if k > max {
			max = k
		}
	}
	return max
}
