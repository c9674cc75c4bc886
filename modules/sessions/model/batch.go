package model

import (
	"time"

	ffmodel "github.com/protocorn/launchway/modules/formfill/model"
)

// SlotStatus is the lifecycle state of one job slot
type SlotStatus string

const (
	SlotQueued         SlotStatus = "queued"
	SlotStarting       SlotStatus = "starting"
	SlotFilling        SlotStatus = "filling"
	SlotSubmitted      SlotStatus = "submitted"
	SlotReadyForReview SlotStatus = "ready_for_review"
	SlotFailed         SlotStatus = "failed"
	// SlotCompleted is set when the user confirms a manual submission.
	SlotCompleted SlotStatus = "completed"
)

// Terminal reports whether the slot has finished processing
func (s SlotStatus) Terminal() bool {
	switch s {
	case SlotSubmitted, SlotReadyForReview, SlotFailed, SlotCompleted:
		return true
	}
	return false
}

// BatchStatus is the aggregate state of a batch
type BatchStatus string

const (
	BatchProcessing BatchStatus = "processing"
	BatchDone       BatchStatus = "done"
	BatchClosed     BatchStatus = "closed"
)

// JobSlot tracks one URL inside a batch
type JobSlot struct {
	ID           string     `json:"job_id"`
	BatchID      string     `json:"-"`
	JobURL       string     `json:"job_url"`
	Status       SlotStatus `json:"status"`
	Progress     int        `json:"progress"`
	Error        string     `json:"error,omitempty"`
	VNCSessionID string     `json:"-"`
	TailorResume bool       `json:"-"`
	CreatedAt    time.Time  `json:"-"`
	UpdatedAt    time.Time  `json:"-"`
}

// Batch is one user's submission of up to N URLs
type Batch struct {
	ID        string      `json:"batch_id"`
	UserID    string      `json:"-"`
	Status    BatchStatus `json:"status"`
	CreatedAt time.Time   `json:"created_at"`
	Slots     []*JobSlot  `json:"slots,omitempty"`
}

// StartBatchRequest is the session API input
type StartBatchRequest struct {
	JobURLs      []string `json:"job_urls" binding:"required"`
	TailorResume []bool   `json:"tailor_resume,omitempty"`
}

// SlotView is the status payload entry for one slot
type SlotView struct {
	JobID        string     `json:"job_id"`
	JobURL       string     `json:"job_url"`
	Status       SlotStatus `json:"status"`
	Progress     int        `json:"progress"`
	VNCViewerURL string     `json:"vnc_viewer_url,omitempty"`
	Error        string     `json:"error,omitempty"`
	// LastActions carries the tail of the action log, redacted, for
	// failed and review slots.
	LastActions []ffmodel.ActionRecord `json:"last_actions,omitempty"`
}

// BatchStatusResponse is the poll payload
type BatchStatusResponse struct {
	BatchID        string      `json:"batch_id"`
	Status         BatchStatus `json:"status"`
	Total          int         `json:"total"`
	Completed      int         `json:"completed"`
	ReadyForReview int         `json:"ready_for_review"`
	Failed         int         `json:"failed"`
	InProgress     int         `json:"in_progress"`
	Queued         int         `json:"queued"`
	Slots          []SlotView  `json:"slots"`
}
