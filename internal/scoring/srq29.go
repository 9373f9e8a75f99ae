package scoring

import (
	"fmt"
)

const (
	SRQ29ItemCount = 29

	// SRQAnxietyThreshold is the number of "Yes" answers among items 1–20
	// that raises the anxiety/depression flag.
	SRQAnxietyThreshold = 5
)

// SRQ-29 answer values.
const (
	SRQYes = "Y"
	SRQNo  = "T"
)

// Item ranges, 1-based and inclusive.
const (
	srqAnxietyFirst   = 1
	srqAnxietyLast    = 20
	srqSubstanceItem  = 21
	srqPsychoticFirst = 22
	srqPsychoticLast  = 24
	srqPTSDFirst      = 25
	srqPTSDLast       = 29
)

// SRQFlags are the four symptom flags derived from an SRQ-29 answer vector.
type SRQFlags struct {
	Anxiety   bool `json:"anxiety"`
	Substance bool `json:"substance"`
	Psychotic bool `json:"psychotic"`
	PTSD      bool `json:"ptsd"`
}

// Key packs the flags as anxiety|substance|psychotic|ptsd, most significant first.
func (f SRQFlags) Key() uint8 {
	var k uint8
	if f.Anxiety {
		k |= 1 << 3
	}
	if f.Substance {
		k |= 1 << 2
	}
	if f.Psychotic {
		k |= 1 << 1
	}
	if f.PTSD {
		k |= 1
	}
	return k
}

func (f SRQFlags) String() string {
	return fmt.Sprintf("(%s,%s,%s,%s)", tf(f.Anxiety), tf(f.Substance), tf(f.Psychotic), tf(f.PTSD))
}

func tf(b bool) string {
	if b {
		return "T"
	}
	return "F"
}

// SRQLabel is the classification of an SRQ-29 flag combination.
type SRQLabel string

const (
	SRQNormal                 SRQLabel = "Normal"
	SRQPTSDOnly               SRQLabel = "Tidak Normal - PTSD Only"
	SRQAnxietyDepression      SRQLabel = "Tidak Normal - Cemas & Depresi"
	SRQPsychoticOnly          SRQLabel = "Tidak Normal - Episode Psikotik Only"
	SRQPTSDPsychotic          SRQLabel = "Tidak Normal - PTSD + Psikotik"
	SRQAnxietyDepressionPTSD  SRQLabel = "Tidak Normal - Cemas, Depresi, PTSD"
	SRQAnxietyDepressionPsych SRQLabel = "Tidak Normal - Cemas, Depresi, Psikotik"
	SRQAllSymptoms            SRQLabel = "Tidak Normal - All Symptoms"
)

// srqLabels is a partial function over the packed flag key. Combinations with
// substance=true, or any key not listed, have no label.
var srqLabels = map[uint8]SRQLabel{
	0b0000: SRQNormal,
	0b0001: SRQPTSDOnly,
	0b1000: SRQAnxietyDepression,
	0b0010: SRQPsychoticOnly,
	0b0011: SRQPTSDPsychotic,
	0b1001: SRQAnxietyDepressionPTSD,
	0b1010: SRQAnxietyDepressionPsych,
	0b1011: SRQAllSymptoms,
}

var srqDescriptions = map[SRQLabel]string{
	SRQNormal:                 "Tidak ditemukan indikasi gangguan mental emosional yang bermakna. Kondisi psikologis berada dalam batas normal.",
	SRQPTSDOnly:               "Terdapat indikasi gejala stres pasca trauma (PTSD). Disarankan pemeriksaan lanjutan oleh psikolog atau psikiater.",
	SRQAnxietyDepression:      "Terdapat indikasi gangguan mental emosional berupa gejala cemas dan depresi. Disarankan konsultasi dengan tenaga kesehatan jiwa.",
	SRQPsychoticOnly:          "Terdapat indikasi gejala episode psikotik. Disarankan segera dirujuk untuk pemeriksaan psikiatri.",
	SRQPTSDPsychotic:          "Terdapat indikasi gejala stres pasca trauma (PTSD) disertai gejala episode psikotik. Disarankan segera dirujuk untuk pemeriksaan psikiatri.",
	SRQAnxietyDepressionPTSD:  "Terdapat indikasi gejala cemas dan depresi disertai gejala stres pasca trauma (PTSD). Disarankan pemeriksaan lanjutan oleh psikolog atau psikiater.",
	SRQAnxietyDepressionPsych: "Terdapat indikasi gejala cemas dan depresi disertai gejala episode psikotik. Disarankan segera dirujuk untuk pemeriksaan psikiatri.",
	SRQAllSymptoms:            "Terdapat indikasi gejala cemas dan depresi, episode psikotik, serta stres pasca trauma (PTSD). Disarankan segera dirujuk untuk pemeriksaan psikiatri menyeluruh.",
}

// SRQ29Result is the outcome of scoring one SRQ-29 answer vector.
// TotalScore is for display only; the label is driven by Flags.
type SRQ29Result struct {
	TotalScore  int      `json:"total_score"`
	Flags       SRQFlags `json:"flags"`
	Label       SRQLabel `json:"label"`
	Description string   `json:"description"`
}

// ScoreSRQ29 scores a 29-item vector of "Y"/"T" answers.
func ScoreSRQ29(answers []string) (*SRQ29Result, error) {
	if len(answers) != SRQ29ItemCount {
		return nil, &WrongItemCountError{Instrument: InstrumentSRQ29, Want: SRQ29ItemCount, Got: len(answers)}
	}

	yes := make([]bool, SRQ29ItemCount+1)
	total := 0
	for i, a := range answers {
		switch a {
		case SRQYes:
			yes[i+1] = true
			total++
		case SRQNo:
		default:
			return nil, &InvalidAnswerValueError{Instrument: InstrumentSRQ29, Item: i + 1, Value: a}
		}
	}

	flags := SRQFlags{
		Anxiety:   countYes(yes, srqAnxietyFirst, srqAnxietyLast) >= SRQAnxietyThreshold,
		Substance: yes[srqSubstanceItem],
		Psychotic: countYes(yes, srqPsychoticFirst, srqPsychoticLast) > 0,
		PTSD:      countYes(yes, srqPTSDFirst, srqPTSDLast) > 0,
	}

	label, err := ClassifySRQ29(flags)
	if err != nil {
		return nil, &UnclassifiedCombinationError{Flags: flags, TotalScore: total}
	}

	return &SRQ29Result{
		TotalScore:  total,
		Flags:       flags,
		Label:       label,
		Description: srqDescriptions[label],
	}, nil
}

// ClassifySRQ29 looks the flag combination up in the rule table.
func ClassifySRQ29(flags SRQFlags) (SRQLabel, error) {
	label, ok := srqLabels[flags.Key()]
	if !ok {
		return "", &UnclassifiedCombinationError{Flags: flags}
	}
	return label, nil
}

// SRQ29Description returns the clinical description of a label, or "".
func SRQ29Description(label SRQLabel) string {
	return srqDescriptions[label]
}

func countYes(yes []bool, first, last int) int {
	n := 0
	for i := first; i <= last; i++ {
		if yes[i] {
			n++
		}
	}
	return n
}
