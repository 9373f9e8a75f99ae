package scoring

import "strings"

// QuizItem pairs the answer key of a general-quiz question with the
// candidate's selection. An empty Selected means unanswered.
type QuizItem struct {
	Correct  string
	Selected string
}

// QuizResult is the outcome of grading a general quiz against its answer key.
type QuizResult struct {
	Correct    int     `json:"correct"`
	Answered   int     `json:"answered"`
	Total      int     `json:"total"`
	Percentage float64 `json:"percentage"`
}

// ScoreQuiz grades items as the percentage of correct answers over all items.
// Unanswered items count as wrong.
func ScoreQuiz(items []QuizItem) QuizResult {
	res := QuizResult{Total: len(items)}
	for _, it := range items {
		sel := strings.TrimSpace(it.Selected)
		if sel == "" {
			continue
		}
		res.Answered++
		if strings.EqualFold(sel, strings.TrimSpace(it.Correct)) {
			res.Correct++
		}
	}
	if res.Total > 0 {
		res.Percentage = float64(res.Correct) / float64(res.Total) * 100
	}
	return res
}
