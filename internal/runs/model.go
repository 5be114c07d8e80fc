package runs

import (
	"errors"
	"time"
)

// ErrNotFound is returned when no run matches the lookup.
var ErrNotFound = errors.New("run not found")

const (
	StatusPreparing     = "preparing"
	StatusUploading     = "uploading"
	StatusCreating      = "creating"
	StatusTriggering    = "triggering"
	StatusTriggerFailed = "trigger_failed"
	StatusPolling       = "polling"
	StatusComplete      = "complete"
	StatusFailed        = "failed"
	StatusTimedOut      = "timed_out"
	StatusInterrupted   = "interrupted"
	StatusDownloaded    = "downloaded"
	StatusMissingResult = "missing_result"
	StatusError         = "error"
)

// Run is the ledger entry for one workflow execution. ListID is set as soon
// as the list exists so an operator can resume polling or re-trigger.
type Run struct {
	ID          string    `json:"id"`
	RequestID   string    `json:"requestId,omitempty"`
	AnalysisID  string    `json:"analysisId"`
	ListName    string    `json:"listName,omitempty"`
	UploadID    string    `json:"uploadId,omitempty"`
	ListID      string    `json:"listId,omitempty"`
	Status      string    `json:"status"`
	RemoteState string    `json:"remoteStatus,omitempty"`
	ResultURL   string    `json:"resultUrl,omitempty"`
	ArtifactKey string    `json:"artifactKey,omitempty"`
	Error       string    `json:"error,omitempty"`
	Attempts    int       `json:"pollAttempts"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Terminal reports whether the run will not change without operator action.
func (r Run) Terminal() bool {
	switch r.Status {
	case StatusPreparing, StatusUploading, StatusCreating, StatusTriggering, StatusPolling:
		return false
	}
	return true
}
