package gfw

import "strings"

// StatusClass is the normalized form of a server-reported analysis status.
type StatusClass string

const (
	ClassPending  StatusClass = "pending"
	ClassComplete StatusClass = "complete"
	ClassFailed   StatusClass = "failed"
	ClassUnknown  StatusClass = "unknown"
)

// StatusSnapshot is the latest state reported by the status endpoint.
type StatusSnapshot struct {
	Status    string `json:"status"`
	ResultURL string `json:"resultUrl,omitempty"`
}

// Class classifies the snapshot's raw status.
func (s StatusSnapshot) Class() StatusClass {
	return Classify(s.Status)
}

// Classify maps a raw status to its class, case-insensitively. Servers have
// been seen sending both "COMPLETE"/"FAILED" and "completed"/"error"/"expired";
// all of them are accepted.
func Classify(raw string) StatusClass {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "complete", "completed":
		return ClassComplete
	case "failed", "error", "expired":
		return ClassFailed
	case "pending", "queued", "processing", "running", "in_progress", "started":
		return ClassPending
	default:
		return ClassUnknown
	}
}

// Terminal reports whether polling should stop for this class.
func (c StatusClass) Terminal() bool {
	return c == ClassComplete || c == ClassFailed
}
