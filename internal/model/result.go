package model

// GroupResult is the scored outcome of one subject group.
type GroupResult struct {
	ID             string  `json:"_id,omitempty"`
	Subject        string  `json:"subject"`
	CorrectAnswers int     `json:"correctAnswers"`
	Score          float64 `json:"score"`
}

// ResultSummary is the scored summary returned by the gateway after a final
// submission. It is handed to the presentation layer as-is.
type ResultSummary struct {
	TotalScore float64       `json:"totalScore"`
	CreatedAt  string        `json:"createdAt"`
	Main       GroupResult   `json:"main"`
	Addition   GroupResult   `json:"addition"`
	Mandatory  []GroupResult `json:"mandatory"`
}
