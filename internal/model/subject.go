package model

// Subject is a course subject as served by the core API.
type Subject struct {
	ID   string `json:"_id"`
	Name string `json:"name"`
}
