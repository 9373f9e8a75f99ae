package websocket

import "github.com/stemsi/psikotes-backend/internal/model"

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAutosave Action = "autosave"
	ActionSubmit   Action = "submit"
	ActionPing     Action = "ping"
)

// RequestPayload carries every client action. Fields not used by an
// action are left empty.
type RequestPayload struct {
	Action    Action          `json:"action"`
	Answers   model.AnswerMap `json:"answers,omitempty"`
	Automatic bool            `json:"automatic,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError   Event = "error"
	EventSuccess Event = "success"
	EventResult  Event = "result"
	EventPong    Event = "pong"
)

// ResponsePayload wraps every server event.
type ResponsePayload struct {
	Event Event       `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

type ErrorResponse struct {
	Event   Event          `json:"event"`
	Code    string         `json:"code"`
	Error   string         `json:"error"`
	Details map[string]any `json:"details,omitempty"`
}
