package model

// PromptKind enumerates how a question prompt or option value is rendered.
type PromptKind string

const (
	PromptText PromptKind = "text"
	PromptFile PromptKind = "file"
	PromptURL  PromptKind = "url"
)

// Option is one selectable answer of a question.
type Option struct {
	ID    string     `json:"_id"`
	Kind  PromptKind `json:"type"`
	Value string     `json:"value"`
}

// Question is a single multiple-choice question. Option order is randomized
// once per fetch and fixed for the rest of the session.
type Question struct {
	ID      string     `json:"_id"`
	Subject Subject    `json:"subject"`
	Prompt  string     `json:"question"`
	Degree  string     `json:"degree,omitempty"`
	Target  string     `json:"target,omitempty"`
	Kind    PromptKind `json:"type"`
	Options []Option   `json:"options"`
}

// SubjectGroup pairs a subject with its questions. The core API keys the
// question list "tests".
type SubjectGroup struct {
	Subject   Subject    `json:"subject"`
	Questions []Question `json:"tests"`
}

// QuizPaper is the full question set for one block, as returned by the
// gateway's fetch-quiz operation.
type QuizPaper struct {
	Block     Block          `json:"block"`
	Main      SubjectGroup   `json:"main"`
	Addition  SubjectGroup   `json:"addition"`
	Mandatory []SubjectGroup `json:"mandatory"`
}
