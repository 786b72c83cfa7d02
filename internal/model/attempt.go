package model

// AttemptStatus is the lifecycle of a locally recorded attempt.
type AttemptStatus string

const (
	// AttemptStatusSubmitted means the scoring server accepted the attempt.
	AttemptStatusSubmitted AttemptStatus = "SUBMITTED"
	// AttemptStatusFailed means submission failed and the payload is parked.
	AttemptStatusFailed AttemptStatus = "FAILED"
	// AttemptStatusResolved means a parked payload was later submitted.
	AttemptStatusResolved AttemptStatus = "RESOLVED"
)
