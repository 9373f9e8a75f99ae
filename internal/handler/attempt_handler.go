package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/psikotes-backend/internal/middleware"
	"github.com/stemsi/psikotes-backend/internal/model"
	"github.com/stemsi/psikotes-backend/internal/response"
	"github.com/stemsi/psikotes-backend/internal/service"
	"github.com/stemsi/psikotes-backend/internal/validator"
)

// maxBeaconBody caps the raw body read by the beacon endpoint.
const maxBeaconBody = 256 << 10

// AttemptHandler handles candidate-facing attempt endpoints.
type AttemptHandler struct {
	attempts *service.AttemptService
	log      zerolog.Logger
}

// NewAttemptHandler creates a new AttemptHandler.
func NewAttemptHandler(attempts *service.AttemptService, log zerolog.Logger) *AttemptHandler {
	return &AttemptHandler{
		attempts: attempts,
		log:      log.With().Str("component", "attempt_handler").Logger(),
	}
}

// Begin godoc
// POST /api/v1/candidate/exams/:exam_id/attempt
// Starts an attempt or returns the one already running (idempotent).
func (h *AttemptHandler) Begin(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.BeginAttemptRequest
	if c.Request.ContentLength != 0 {
		if fields := validator.Bind(c, &req); fields != nil {
			response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
			return
		}
	}

	state, err := h.attempts.BeginOrResume(c.Request.Context(), claims.UserID, examID, req.AccessCode)
	if err != nil {
		failAttempt(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, state)
}

// State godoc
// GET /api/v1/candidate/attempts/:attempt_id
// Returns the attempt for a page reload, with server-computed remaining time.
func (h *AttemptHandler) State(c *gin.Context) {
	claims, attemptID, ok := h.attemptParams(c)
	if !ok {
		return
	}

	state, err := h.attempts.State(c.Request.Context(), attemptID, claims.UserID)
	if err != nil {
		failAttempt(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, state)
}

// Autosave godoc
// PUT /api/v1/candidate/attempts/:attempt_id/answers
// Stores the full answer map. Entries absent from the map are kept.
func (h *AttemptHandler) Autosave(c *gin.Context) {
	claims, attemptID, ok := h.attemptParams(c)
	if !ok {
		return
	}

	var req model.AutosaveRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	res, err := h.attempts.Autosave(c.Request.Context(), attemptID, claims.UserID, req.Answers)
	if err != nil {
		failAttempt(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, res)
}

// Beacon godoc
// POST /api/v1/candidate/attempts/:attempt_id/answers/beacon?token=...
// Teardown autosave sent on page unload. Browsers send it as text/plain,
// so the body is decoded regardless of the content type.
func (h *AttemptHandler) Beacon(c *gin.Context) {
	claims, attemptID, ok := h.attemptParams(c)
	if !ok {
		return
	}

	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBeaconBody))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidPayload)
		return
	}

	var req model.AutosaveRequest
	if err := json.Unmarshal(raw, &req); err != nil || req.Answers == nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidPayload)
		return
	}

	if _, err := h.attempts.Autosave(c.Request.Context(), attemptID, claims.UserID, req.Answers); err != nil {
		failAttempt(c, h.log, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// Submit godoc
// POST /api/v1/candidate/attempts/:attempt_id/submit
// Finalizes the attempt and returns its result.
func (h *AttemptHandler) Submit(c *gin.Context) {
	claims, attemptID, ok := h.attemptParams(c)
	if !ok {
		return
	}

	var req model.SubmitRequest
	if c.Request.ContentLength != 0 {
		if fields := validator.Bind(c, &req); fields != nil {
			response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
			return
		}
	}

	res, err := h.attempts.Submit(c.Request.Context(), attemptID, claims.UserID, req.Answers, req.Automatic)
	if err != nil {
		failAttempt(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, res)
}

func (h *AttemptHandler) attemptParams(c *gin.Context) (*service.Claims, uuid.UUID, bool) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return nil, uuid.Nil, false
	}

	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return nil, uuid.Nil, false
	}
	return claims, attemptID, true
}
