package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/psikotes-backend/internal/middleware"
	"github.com/stemsi/psikotes-backend/internal/response"
	"github.com/stemsi/psikotes-backend/internal/service"
	ws "github.com/stemsi/psikotes-backend/internal/websocket"
)

const wsActionTimeout = 10 * time.Second

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams autosave and submit over a WebSocket. It goes through
// the same AttemptService calls as the REST endpoints.
type WSHandler struct {
	attempts *service.AttemptService
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(attempts *service.AttemptService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		attempts: attempts,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// AttemptStream godoc
// WS /ws/v1/candidate/attempts/:attempt_id/stream
// Sends the attempt state on connect, then serves autosave, submit and ping.
// The connection is closed once the attempt is finalized.
func (h *WSHandler) AttemptStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	// Reject before upgrading so the client gets a normal HTTP error.
	state, err := h.attempts.State(c.Request.Context(), attemptID, claims.UserID)
	if err != nil {
		failAttempt(c, h.log, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().
		Int("candidate_id", claims.UserID).
		Str("attempt_id", attemptID.String()).
		Logger()

	wsLog.Info().Msg("Candidate connected")
	ws.WriteJSON(conn, ws.EventSuccess, state)
	if state.Status.Final() {
		return
	}

	for {
		var msg ws.RequestPayload
		if err := ws.ReadJSON(conn, &msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		switch msg.Action {
		case ws.ActionAutosave:
			h.handleAutosave(conn, wsLog, attemptID, claims.UserID, &msg)
		case ws.ActionSubmit:
			if h.handleSubmit(conn, wsLog, attemptID, claims.UserID, &msg) {
				return
			}
		case ws.ActionPing:
			ws.WriteTyped(conn, ws.ResponsePayload{Event: ws.EventPong})
		default:
			wsLog.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
			ws.WriteError(conn, string(response.ErrInvalidPayload), "unknown action: "+string(msg.Action), nil)
		}
	}
}

func (h *WSHandler) handleAutosave(conn *websocket.Conn, wsLog zerolog.Logger, attemptID uuid.UUID, candidateID int, msg *ws.RequestPayload) {
	if msg.Answers == nil {
		ws.WriteError(conn, string(response.ErrValidation), "answers is required", nil)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), wsActionTimeout)
	defer cancel()

	res, err := h.attempts.Autosave(ctx, attemptID, candidateID, msg.Answers)
	if err != nil {
		writeAttemptError(conn, wsLog, err)
		return
	}
	ws.WriteJSON(conn, ws.EventSuccess, res)
}

// handleSubmit reports whether the attempt is now finalized.
func (h *WSHandler) handleSubmit(conn *websocket.Conn, wsLog zerolog.Logger, attemptID uuid.UUID, candidateID int, msg *ws.RequestPayload) bool {
	ctx, cancel := context.WithTimeout(context.Background(), wsActionTimeout)
	defer cancel()

	res, err := h.attempts.Submit(ctx, attemptID, candidateID, msg.Answers, msg.Automatic)
	if err != nil {
		writeAttemptError(conn, wsLog, err)
		return errors.Is(err, service.ErrAttemptAlreadyFinalized)
	}

	wsLog.Info().Str("status", string(res.Status)).Msg("Attempt submitted over WebSocket")
	ws.WriteJSON(conn, ws.EventResult, res)
	return true
}

func writeAttemptError(conn *websocket.Conn, wsLog zerolog.Logger, err error) {
	var incomplete *service.IncompleteSubmissionError
	if errors.As(err, &incomplete) {
		code := response.ErrIncompleteSubmission
		ws.WriteError(conn, string(code), response.GetMessage(code), map[string]any{"unanswered": incomplete.Unanswered})
		return
	}

	status, code := attemptErrorCode(err)
	if status == http.StatusInternalServerError {
		wsLog.Error().Err(err).Msg("WebSocket action failed")
	}
	ws.WriteError(conn, string(code), response.GetMessage(code), nil)
}
