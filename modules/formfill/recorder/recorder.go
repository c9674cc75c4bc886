package recorder

import (
	"strings"
	"sync"
	"time"

	"github.com/protocorn/launchway/modules/formfill/model"
)

// Recorder is the append-only interaction log for one session. Every
// interactor invocation lands here; the batch slot flushes it to durable
// storage when the session reaches a terminal state.
type Recorder struct {
	mu      sync.Mutex
	records []model.ActionRecord
}

// New creates an empty recorder
func New() *Recorder {
	return &Recorder{}
}

// Record appends one entry
func (r *Recorder) Record(rec model.ActionRecord) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	r.mu.Lock()
	r.records = append(r.records, rec)
	r.mu.Unlock()
}

// All returns a copy of the log
func (r *Recorder) All() []model.ActionRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.ActionRecord, len(r.records))
	copy(out, r.records)
	return out
}

// Tail returns the last n records with secret-looking values redacted,
// for user-facing error payloads.
func (r *Recorder) Tail(n int) []model.ActionRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	start := len(r.records) - n
	if start < 0 {
		start = 0
	}
	out := make([]model.ActionRecord, 0, len(r.records)-start)
	for _, rec := range r.records[start:] {
		out = append(out, redact(rec))
	}
	return out
}

// Len returns the record count
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

func redact(rec model.ActionRecord) model.ActionRecord {
	if looksSecret(rec.StableID) {
		rec.Value = "[redacted]"
		if rec.Verification != nil {
			rec.Verification = &model.Verification{Expected: "[redacted]", Actual: "[redacted]"}
		}
	}
	return rec
}

func looksSecret(stableID string) bool {
	lower := strings.ToLower(stableID)
	for _, marker := range []string{"password", "passwd", "secret", "token", "ssn"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// RedactTail returns the last n records of a stored log with the same
// redaction Tail applies to live logs.
func RedactTail(records []model.ActionRecord, n int) []model.ActionRecord {
	start := len(records) - n
	if start < 0 {
		start = 0
	}
	out := make([]model.ActionRecord, 0, len(records)-start)
	for _, rec := range records[start:] {
		out = append(out, redact(rec))
	}
	return out
}
