package model

// SessionStatus enumerates quiz session states. There is no path back from
// SUBMITTING/COMPLETED to ACTIVE within one session; a new block load starts
// a fresh session.
type SessionStatus string

const (
	SessionStatusLoading    SessionStatus = "LOADING"
	SessionStatusActive     SessionStatus = "ACTIVE"
	SessionStatusSubmitting SessionStatus = "SUBMITTING"
	SessionStatusCompleted  SessionStatus = "COMPLETED"
)

// ProgressSnapshot is the partial-progress payload pushed to the gateway by
// the autosave cadence. The server treats each snapshot as a full-state
// overwrite; snapshots carry no sequence numbers.
type ProgressSnapshot struct {
	BlockID   string            `json:"blockId"`
	Answers   map[string]string `json:"answers"`
	Remaining int               `json:"remaining"`
}

// GroupAnswers is one submission group: a subject id and the list of chosen
// option ids for answered questions only. The list is NOT positionally
// aligned to the group's questions; unanswered questions contribute no
// entry. The scoring server matches answers to questions by option identity,
// so this exact shape must be preserved.
type GroupAnswers struct {
	Subject string   `json:"subject"`
	Answers []string `json:"answers"`
}

// ResultPayload is the final submission sent to the gateway's submit-result
// operation.
type ResultPayload struct {
	Block     string         `json:"block"`
	Main      GroupAnswers   `json:"main"`
	Addition  GroupAnswers   `json:"addition"`
	Mandatory []GroupAnswers `json:"mandatory"`
}

// SelectAnswerRequest is the payload for recording an answer.
type SelectAnswerRequest struct {
	QuestionID string `json:"question_id" binding:"required"`
	OptionID   string `json:"option_id" binding:"required"`
}

// GoToRequest is the payload for jumping to a question index.
type GoToRequest struct {
	Index int `json:"index"`
}

// StartSessionRequest is the payload for starting a quiz attempt.
type StartSessionRequest struct {
	BlockID string `json:"block_id" binding:"required"`
}
