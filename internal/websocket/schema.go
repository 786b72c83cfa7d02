package websocket

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAnswer Action = "answer"
	ActionGoTo   Action = "goto"
	ActionFinish Action = "finish"
	ActionPing   Action = "ping"
)

// RequestPayload is the inbound message shape. Fields beyond Action are
// meaningful only for the matching action.
type RequestPayload struct {
	Action     Action `json:"action"`
	QuestionID string `json:"question_id,omitempty"`
	OptionID   string `json:"option_id,omitempty"`
	Index      int    `json:"index,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventTick        Event = "tick"
	EventState       Event = "state"
	EventAnswerSaved Event = "answer_saved"
	EventFinished    Event = "finished"
	EventError       Event = "error"
	EventPong        Event = "pong"
)

// TickResponse is pushed once per countdown second.
type TickResponse struct {
	Event     Event  `json:"event"`
	Remaining int    `json:"remaining"`
	Formatted string `json:"formatted_remaining"`
	Answered  int    `json:"answered"`
}

// StateResponse carries the full session snapshot. Payload is the
// presentation state as served by the REST surface.
type StateResponse struct {
	Event Event       `json:"event"`
	State interface{} `json:"state"`
}

// AnswerSavedResponse acknowledges a persisted answer selection.
type AnswerSavedResponse struct {
	Event    Event `json:"event"`
	Answered int   `json:"answered"`
}

// FinishedResponse carries the scored summary after submission.
type FinishedResponse struct {
	Event   Event       `json:"event"`
	Summary interface{} `json:"summary"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
