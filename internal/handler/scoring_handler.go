package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/psikotes-backend/internal/response"
	"github.com/stemsi/psikotes-backend/internal/scoring"
	"github.com/stemsi/psikotes-backend/internal/validator"
)

type scorePSSRequest struct {
	Answers      []int `json:"answers" binding:"required"`
	ReverseItems []int `json:"reverse_items" binding:"omitempty,dive,min=1,max=10"`
}

type scoreSRQ29Request struct {
	Answers []string `json:"answers" binding:"required"`
}

// ScoringHandler exposes the pure scoring engine for admin recalculation
// and instrument checks. Nothing is persisted.
type ScoringHandler struct {
	log zerolog.Logger
}

// NewScoringHandler creates a new ScoringHandler.
func NewScoringHandler(log zerolog.Logger) *ScoringHandler {
	return &ScoringHandler{log: log.With().Str("component", "scoring_handler").Logger()}
}

// ScorePSS godoc
// POST /api/v1/admin/scoring/pss
func (h *ScoringHandler) ScorePSS(c *gin.Context) {
	var req scorePSSRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	key, err := scoring.NewPSSKey(req.ReverseItems...)
	if err != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation,
			map[string]string{"reverse_items": err.Error()})
		return
	}

	res, err := key.Score(req.Answers)
	if err != nil {
		failScoring(c, err)
		return
	}

	response.Success(c, http.StatusOK, res)
}

// ScoreSRQ29 godoc
// POST /api/v1/admin/scoring/srq29
func (h *ScoringHandler) ScoreSRQ29(c *gin.Context) {
	var req scoreSRQ29Request
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	res, err := scoring.ScoreSRQ29(req.Answers)
	if err != nil {
		failScoring(c, err)
		return
	}

	response.Success(c, http.StatusOK, res)
}

func failScoring(c *gin.Context, err error) {
	var (
		wrongCount   *scoring.WrongItemCountError
		invalidValue *scoring.InvalidAnswerValueError
		unclassified *scoring.UnclassifiedCombinationError
	)
	switch {
	case errors.As(err, &wrongCount):
		response.FailWithDetails(c, http.StatusBadRequest, response.ErrWrongItemCount,
			map[string]any{"expected": wrongCount.Want, "got": wrongCount.Got})
	case errors.As(err, &invalidValue):
		response.FailWithDetails(c, http.StatusBadRequest, response.ErrInvalidAnswerValue,
			map[string]any{"item": invalidValue.Item, "value": invalidValue.Value})
	case errors.As(err, &unclassified):
		response.FailWithDetails(c, http.StatusUnprocessableEntity, response.ErrUnclassifiedAnswerSet,
			map[string]any{"flags": unclassified.Flags, "total_score": unclassified.TotalScore})
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}
