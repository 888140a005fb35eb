package jobs

import "strings"

// Status is the client-side classification of a job's reported status.
type Status string

const (
	StatusSubmitted  Status = "submitted"
	StatusProcessing Status = "processing"
	StatusComplete   Status = "complete"
	StatusFailed     Status = "failed"
	StatusUnknown    Status = "unknown"
)

// Classify maps a raw worker status string onto the known set. Matching is
// case-insensitive at the boundary; anything unrecognized is StatusUnknown,
// which is non-terminal and keeps the poller going.
func Classify(raw string) Status {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "complete":
		return StatusComplete
	case "failed":
		return StatusFailed
	case "processing":
		return StatusProcessing
	case "submitted":
		return StatusSubmitted
	default:
		return StatusUnknown
	}
}

// Terminal reports whether no further transition can occur. The terminal
// set is exactly {complete, failed}.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusFailed
}

// Handle tracks one submitted job through its polling lifetime. It is
// mutated only by the Poller; everyone else sees snapshot copies.
type Handle struct {
	ID                string
	Status            Status
	Message           string
	PollCount         int
	ConsecutiveErrors int
	CurrentInterval   int64 // milliseconds, for observability
	BackgroundOffered bool
}
