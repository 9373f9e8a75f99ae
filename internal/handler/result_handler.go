package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/psikotes-backend/internal/model"
	"github.com/stemsi/psikotes-backend/internal/response"
	"github.com/stemsi/psikotes-backend/internal/service"
)

// ResultHandler serves finalized attempt results to admins.
type ResultHandler struct {
	attempts *service.AttemptService
	log      zerolog.Logger
}

// NewResultHandler creates a new ResultHandler.
func NewResultHandler(attempts *service.AttemptService, log zerolog.Logger) *ResultHandler {
	return &ResultHandler{
		attempts: attempts,
		log:      log.With().Str("component", "result_handler").Logger(),
	}
}

// ListResults godoc
// GET /api/v1/admin/exams/:exam_id/attempts?status=&page=&per_page=
func (h *ResultHandler) ListResults(c *gin.Context) {
	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))

	var status *model.AttemptStatus
	if raw := c.Query("status"); raw != "" {
		st := model.AttemptStatus(raw)
		switch st {
		case model.AttemptStatusInProgress, model.AttemptStatusSubmitted, model.AttemptStatusExpired:
			status = &st
		default:
			response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation,
				map[string]string{"status": "status must be one of in_progress, submitted, expired"})
			return
		}
	}

	attempts, pagination, err := h.attempts.ListResults(c.Request.Context(), examID, status, page, perPage)
	if err != nil {
		h.log.Error().Err(err).Str("exam_id", examID.String()).Msg("List results failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.SuccessWithPagination(c, http.StatusOK, gin.H{"attempts": attempts}, pagination)
}

// GetResult godoc
// GET /api/v1/admin/attempts/:attempt_id
func (h *ResultHandler) GetResult(c *gin.Context) {
	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	attempt, result, err := h.attempts.Result(c.Request.Context(), attemptID)
	if err != nil {
		failAttempt(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"attempt": attempt,
		"result":  result,
	})
}
