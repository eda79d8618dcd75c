package agent

import (
	"sync"
	"time"
)

// Record types appended to a session sink.
const (
	RecordLLMRequest  = "llm.request"
	RecordLLMResponse = "llm.response"
	RecordToolOutput  = "tool.output"
)

// Record is one audit entry of a run. Seq is monotone within a run so
// request/response pairs can be correlated.
type Record struct {
	Type    string    `json:"type"`
	RunID   string    `json:"run_id"`
	Seq     int       `json:"seq"`
	Time    time.Time `json:"time"`
	Payload any       `json:"payload,omitempty"`
}

// RecordSink receives run records in call order. Append must not block the
// agent loop for long; implementations buffer or drop as they see fit.
type RecordSink interface {
	Append(rec Record)
}

// MemorySink collects records in memory, mainly for tests and the runner's
// --record flag.
type MemorySink struct {
	mu   sync.Mutex
	recs []Record
}

// NewMemorySink creates an empty sink.
func NewMemorySink() *MemorySink { return &MemorySink{} }

// Append implements RecordSink.
func (s *MemorySink) Append(rec Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs = append(s.recs, rec)
}

// Records returns a copy of the collected records.
func (s *MemorySink) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, len(s.recs))
	copy(out, s.recs)
	return out
}
