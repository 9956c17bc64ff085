package batch

import (
	"sync"

	"github.com/cwleong/videosharingflow/internal/models"
)

// ErrorSink accumulates item-level failures for one run. Appends are safe
// under concurrent fan-out; record order reflects real interleaving and
// consumers must not depend on it.
type ErrorSink struct {
	mu      sync.Mutex
	records []models.ErrorRecord
}

func NewErrorSink() *ErrorSink {
	return &ErrorSink{}
}

// Append adds one record. Records are never deduplicated or retried.
func (s *ErrorSink) Append(rec models.ErrorRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
}

// Records returns a copy of everything appended so far.
func (s *ErrorSink) Records() []models.ErrorRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ErrorRecord, len(s.records))
	copy(out, s.records)
	return out
}

// Len reports the number of records appended so far.
func (s *ErrorSink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
