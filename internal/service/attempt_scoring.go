package service

import (
	"errors"

	"github.com/stemsi/psikotes-backend/internal/model"
	"github.com/stemsi/psikotes-backend/internal/scoring"
)

// Scoring error codes stored on a finalized attempt.
const (
	ScoringErrIncomplete     = "INCOMPLETE_ANSWERS"
	ScoringErrUnclassified   = "UNCLASSIFIED_COMBINATION"
	ScoringErrWrongItemCount = "WRONG_ITEM_COUNT"
	ScoringErrInvalidValue   = "INVALID_ANSWER_VALUE"
)

// scoreOutcome is the scoring part of a Finalization.
type scoreOutcome struct {
	Score        *float64
	Label        *string
	Description  string
	Flags        *model.ScoringFlags
	ScoringError *string
	err          error
}

// scoreAttempt dispatches on the exam type. Failures are carried in the
// outcome, never returned: finalization must not depend on scoring.
func scoreAttempt(b *ExamBundle, answers model.AnswerMap) scoreOutcome {
	if !b.Exam.ExamType.Scored() {
		return scoreOutcome{}
	}
	switch b.Exam.ExamType {
	case model.ExamTypePSS:
		return scorePSS(b, answers)
	case model.ExamTypeSRQ29:
		return scoreSRQ29(b, answers)
	default:
		return scoreGeneral(b, answers)
	}
}

func scoreGeneral(b *ExamBundle, answers model.AnswerMap) scoreOutcome {
	items := make([]scoring.QuizItem, len(b.Questions))
	for i, q := range b.Questions {
		items[i] = scoring.QuizItem{Correct: q.CorrectOption, Selected: answers[q.ID.String()]}
	}
	res := scoring.ScoreQuiz(items)
	return scoreOutcome{Score: &res.Percentage}
}

func scorePSS(b *ExamBundle, answers model.AnswerMap) scoreOutcome {
	byItem := make(map[int]int, len(b.Questions))
	var reverse []int
	for _, q := range b.Questions {
		if q.ReverseScored {
			reverse = append(reverse, q.Ordinal)
		}
		if opt, ok := q.FindOption(answers[q.ID.String()]); ok {
			byItem[q.Ordinal] = opt.Value
		}
	}

	key, err := scoring.NewPSSKey(reverse...)
	if err != nil {
		return failed(ScoringErrWrongItemCount, err)
	}
	vec, err := scoring.OrderedVector(scoring.InstrumentPSS, scoring.PSSItemCount, byItem)
	if err != nil {
		return scoringFailure(err)
	}
	res, err := key.Score(vec)
	if err != nil {
		return scoringFailure(err)
	}

	total := float64(res.TotalScore)
	label := string(res.Label)
	return scoreOutcome{Score: &total, Label: &label}
}

func scoreSRQ29(b *ExamBundle, answers model.AnswerMap) scoreOutcome {
	byItem := make(map[int]string, len(b.Questions))
	for _, q := range b.Questions {
		if v, ok := answers[q.ID.String()]; ok && v != "" {
			byItem[q.Ordinal] = v
		}
	}

	vec, err := scoring.OrderedVector(scoring.InstrumentSRQ29, scoring.SRQ29ItemCount, byItem)
	if err != nil {
		return scoringFailure(err)
	}
	res, err := scoring.ScoreSRQ29(vec)
	if err != nil {
		return scoringFailure(err)
	}

	total := float64(res.TotalScore)
	label := string(res.Label)
	return scoreOutcome{
		Score:       &total,
		Label:       &label,
		Description: res.Description,
		Flags:       toModelFlags(res.Flags),
	}
}

func scoringFailure(err error) scoreOutcome {
	var unclassified *scoring.UnclassifiedCombinationError
	if errors.As(err, &unclassified) {
		out := failed(ScoringErrUnclassified, err)
		total := float64(unclassified.TotalScore)
		out.Score = &total
		out.Flags = toModelFlags(unclassified.Flags)
		return out
	}

	var incomplete *scoring.IncompleteAnswersError
	var wrongCount *scoring.WrongItemCountError
	switch {
	case errors.As(err, &incomplete):
		return failed(ScoringErrIncomplete, err)
	case errors.As(err, &wrongCount):
		return failed(ScoringErrWrongItemCount, err)
	default:
		return failed(ScoringErrInvalidValue, err)
	}
}

func failed(code string, err error) scoreOutcome {
	return scoreOutcome{ScoringError: &code, err: err}
}

func toModelFlags(f scoring.SRQFlags) *model.ScoringFlags {
	return &model.ScoringFlags{
		Anxiety:   f.Anxiety,
		Substance: f.Substance,
		Psychotic: f.Psychotic,
		PTSD:      f.PTSD,
	}
}

// describe fills in the label description of a stored result.
func describe(examType model.ExamType, r *model.AttemptResult) {
	if examType == model.ExamTypeSRQ29 && r.Label != nil {
		r.Description = scoring.SRQ29Description(scoring.SRQLabel(*r.Label))
	}
}
