package tracker

import (
	"sync"

	"github.com/protocorn/launchway/modules/formfill/model"
)

// Tracker remembers which fields were attempted on a page so later passes
// never redo finished work. One tracker lives per page navigation.
type Tracker struct {
	mu          sync.Mutex
	fingerprint string
	records     map[string]*model.CompletionRecord
	maxRetries  int
}

// New creates a tracker for one navigation
func New(pageFingerprint string, maxRetries int) *Tracker {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Tracker{
		fingerprint: pageFingerprint,
		records:     make(map[string]*model.CompletionRecord),
		maxRetries:  maxRetries,
	}
}

// Succeeded reports whether the field already completed
func (t *Tracker) Succeeded(stableID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.records[stableID]
	return ok && rec.LastStatus == model.StatusSucceeded
}

// Exhausted reports whether the field failed out of its retry budget
func (t *Tracker) Exhausted(stableID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.records[stableID]
	return ok && rec.LastStatus == model.StatusFailed && rec.Attempts >= t.maxRetries
}

// Eligible reports whether the field may still be attempted
func (t *Tracker) Eligible(stableID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.records[stableID]
	if !ok {
		return true
	}
	if rec.LastStatus == model.StatusSucceeded || rec.LastStatus == model.StatusSkipped {
		return false
	}
	return rec.Attempts < t.maxRetries
}

// Record stores the outcome of one attempt
func (t *Tracker) Record(stableID string, status model.AttemptStatus, value string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.records[stableID]
	if !ok {
		rec = &model.CompletionRecord{
			PageFingerprint: t.fingerprint,
			StableID:        stableID,
		}
		t.records[stableID] = rec
	}
	rec.Attempts++
	rec.LastStatus = status
	rec.LastValue = value
}

// Filter returns the descriptors still eligible for work
func (t *Tracker) Filter(descriptors []*model.FieldDescriptor) []*model.FieldDescriptor {
	out := make([]*model.FieldDescriptor, 0, len(descriptors))
	for _, d := range descriptors {
		if t.Eligible(d.StableID) {
			out = append(out, d)
		}
	}
	return out
}

// FailedRequired reports whether any required field ended in failure
func (t *Tracker) FailedRequired(required map[string]bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, rec := range t.records {
		if required[id] && rec.LastStatus == model.StatusFailed {
			return true
		}
	}
	return false
}

// Counts returns succeeded/failed/skipped totals for progress reporting
func (t *Tracker) Counts() (succeeded, failed, skipped int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, rec := range t.records {
		switch rec.LastStatus {
		case model.StatusSucceeded:
			succeeded++
		case model.StatusFailed:
			failed++
		case model.StatusSkipped:
			skipped++
		}
	}
	return
}
