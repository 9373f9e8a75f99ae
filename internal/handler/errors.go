package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/psikotes-backend/internal/response"
	"github.com/stemsi/psikotes-backend/internal/service"
)

// attemptErrorCode maps an attempt lifecycle error onto an HTTP status and
// error code. Unknown errors map to 500.
func attemptErrorCode(err error) (int, response.ErrCode) {
	switch {
	case errors.Is(err, service.ErrExamNotAvailable):
		return http.StatusNotFound, response.ErrExamNotAvailable
	case errors.Is(err, service.ErrAttemptNotFound):
		return http.StatusNotFound, response.ErrAttemptNotFound
	case errors.Is(err, service.ErrAttemptForbidden):
		return http.StatusForbidden, response.ErrAttemptForbidden
	case errors.Is(err, service.ErrInvalidAccessCode):
		return http.StatusForbidden, response.ErrInvalidAccessCode
	case errors.Is(err, service.ErrAttemptAlreadyFinalized):
		return http.StatusConflict, response.ErrAttemptAlreadyFinalized
	case errors.Is(err, service.ErrAttemptStillRunning):
		return http.StatusConflict, response.ErrAttemptStillRunning
	case errors.Is(err, service.ErrUnknownQuestion):
		return http.StatusBadRequest, response.ErrUnknownQuestion
	case errors.Is(err, service.ErrInvalidOption):
		return http.StatusBadRequest, response.ErrInvalidOption
	case errors.Is(err, service.ErrAnswerBufferUnavailable):
		return http.StatusServiceUnavailable, response.ErrAnswersUnavailable
	default:
		return http.StatusInternalServerError, response.ErrInternal
	}
}

// failAttempt writes the error envelope for an attempt lifecycle error.
func failAttempt(c *gin.Context, log zerolog.Logger, err error) {
	var incomplete *service.IncompleteSubmissionError
	if errors.As(err, &incomplete) {
		response.FailWithDetails(c, http.StatusUnprocessableEntity, response.ErrIncompleteSubmission,
			map[string]any{"unanswered": incomplete.Unanswered})
		return
	}

	status, code := attemptErrorCode(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.FullPath()).Msg("Attempt request failed")
	}
	response.Fail(c, status, code)
}
