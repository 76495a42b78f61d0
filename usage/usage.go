// Package usage aggregates token and cost accounting from a session's
// event stream. Costs are tracked as decimals so long-running sessions do
// not accumulate float drift.
package usage

import (
	"sync"

	"github.com/shopspring/decimal"

	copilot "github.com/armatrix/copilot-sdk-go"
)

// ModelUsage accumulates per-model totals from assistant.usage events.
type ModelUsage struct {
	Requests        int
	InputTokens     int64
	OutputTokens    int64
	CacheReadTokens int64
	Cost            decimal.Decimal
}

// Summary is a point-in-time copy of a Tracker's state.
type Summary struct {
	// Models maps model name to accumulated usage.
	Models map[string]ModelUsage
	// TotalCost across all models.
	TotalCost decimal.Decimal
	// Quota holds the latest quota snapshot per bucket, from the most
	// recent session.usage_info event.
	Quota map[string]copilot.QuotaSnapshot
}

// Tracker consumes session events and keeps running usage totals. Safe for
// concurrent use; one Tracker can be attached to several sessions.
type Tracker struct {
	mu     sync.Mutex
	models map[string]ModelUsage
	quota  map[string]copilot.QuotaSnapshot
}

func NewTracker() *Tracker {
	return &Tracker{
		models: make(map[string]ModelUsage),
		quota:  make(map[string]copilot.QuotaSnapshot),
	}
}

// Attach subscribes the tracker to a session. The returned function
// detaches it.
func (t *Tracker) Attach(s *copilot.Session) func() {
	return s.On(t.Observe)
}

// Observe folds one event into the totals. Events other than
// assistant.usage and session.usage_info are ignored.
func (t *Tracker) Observe(ev copilot.SessionEvent) {
	switch ev.Type {
	case copilot.AssistantUsage:
		t.observeAssistantUsage(ev.Data)
	case copilot.SessionUsageInfo:
		t.observeUsageInfo(ev.Data)
	}
}

func (t *Tracker) observeAssistantUsage(data copilot.EventData) {
	model := "unknown"
	if data.Model != nil {
		model = *data.Model
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	m := t.models[model]
	m.Requests++
	if data.InputTokens != nil {
		m.InputTokens += int64(*data.InputTokens)
	}
	if data.OutputTokens != nil {
		m.OutputTokens += int64(*data.OutputTokens)
	}
	if data.CacheReadTokens != nil {
		m.CacheReadTokens += int64(*data.CacheReadTokens)
	}
	if data.Cost != nil {
		m.Cost = m.Cost.Add(decimal.NewFromFloat(*data.Cost))
	}
	t.models[model] = m
}

func (t *Tracker) observeUsageInfo(data copilot.EventData) {
	if len(data.QuotaSnapshots) == 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for bucket, snap := range data.QuotaSnapshots {
		t.quota[bucket] = snap
	}
}

// Summary copies the current totals.
func (t *Tracker) Summary() Summary {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := Summary{
		Models: make(map[string]ModelUsage, len(t.models)),
		Quota:  make(map[string]copilot.QuotaSnapshot, len(t.quota)),
	}
	for name, m := range t.models {
		out.Models[name] = m
		out.TotalCost = out.TotalCost.Add(m.Cost)
	}
	for bucket, snap := range t.quota {
		out.Quota[bucket] = snap
	}
	return out
}

// TotalTokens sums input and output tokens across all models.
func (t *Tracker) TotalTokens() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	var total int64
	for _, m := range t.models {
		total += m.InputTokens + m.OutputTokens
	}
	return total
}

// RemainingPercentage reports the latest remaining quota for a bucket, as
// a decimal percentage, and whether a snapshot for that bucket has been
// seen.
func (t *Tracker) RemainingPercentage(bucket string) (decimal.Decimal, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	snap, ok := t.quota[bucket]
	if !ok {
		return decimal.Zero, false
	}
	return decimal.NewFromFloat(snap.RemainingPercentage), true
}

// Reset clears all accumulated totals and snapshots.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.models = make(map[string]ModelUsage)
	t.quota = make(map[string]copilot.QuotaSnapshot)
}
