package agent

import (
	"sync"

	"github.com/haasonsaas/agentcore/pkg/messages"
)

// UsageAccountant tracks per-call and aggregate token usage for one agent.
type UsageAccountant struct {
	mu    sync.Mutex
	calls []messages.Usage
	total messages.Usage
	last  *messages.Usage
}

// NewUsageAccountant creates an empty accountant.
func NewUsageAccountant() *UsageAccountant {
	return &UsageAccountant{}
}

// Record adds one invocation's usage. Nil usage is ignored.
func (a *UsageAccountant) Record(u *messages.Usage) {
	if u == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	sample := *u
	a.calls = append(a.calls, sample)
	a.total.Add(sample)
	a.last = &sample
}

// Total returns the aggregate usage across all calls.
func (a *UsageAccountant) Total() messages.Usage {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.total
}

// Last returns the most recent usage snapshot, or nil before the first call.
// Ratio queries (compaction thresholds) use this snapshot because it reflects
// the full prompt size of the latest request.
func (a *UsageAccountant) Last() *messages.Usage {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.last == nil {
		return nil
	}
	snapshot := *a.last
	return &snapshot
}

// Calls returns the number of recorded invocations.
func (a *UsageAccountant) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.calls)
}
