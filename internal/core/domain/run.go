package domain

import "time"

// RunStatus is the lifecycle state of a pipeline run.
type RunStatus string

// Run statuses.
const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Trigger identifies who started a run.
type Trigger string

// Triggers.
const (
	TriggerManual   Trigger = "manual"
	TriggerCron     Trigger = "cron"
	TriggerBackfill Trigger = "backfill"
)

// ParseTrigger parses a trigger name.
func ParseTrigger(s string) (Trigger, bool) {
	switch t := Trigger(s); t {
	case TriggerManual, TriggerCron, TriggerBackfill:
		return t, true
	default:
		return "", false
	}
}

// IsOperator reports whether the trigger has operator (manual) precedence.
// Backfills are operator-initiated and share the manual exclusion key.
func (t Trigger) IsOperator() bool {
	return t == TriggerManual || t == TriggerBackfill
}

const (
	exclusionKeyManual     = "manual"
	exclusionKeyCronPrefix = "cron:"
)

// ExclusionKey returns the key at most one running run may hold.
func ExclusionKey(t Trigger, source SourceFamily) string {
	if t.IsOperator() {
		return exclusionKeyManual
	}

	if source == "" {
		source = SourceAll
	}

	return exclusionKeyCronPrefix + string(source)
}

// RunCounters are the progress counters persisted on a run.
type RunCounters struct {
	MessagesRead    int
	GroupsFormed    int
	ProductsCreated int
	ProductsDeleted int
	MessagesSkipped int
}

// Add returns the element-wise sum of c and o.
func (c RunCounters) Add(o RunCounters) RunCounters {
	return RunCounters{
		MessagesRead:    c.MessagesRead + o.MessagesRead,
		GroupsFormed:    c.GroupsFormed + o.GroupsFormed,
		ProductsCreated: c.ProductsCreated + o.ProductsCreated,
		ProductsDeleted: c.ProductsDeleted + o.ProductsDeleted,
		MessagesSkipped: c.MessagesSkipped + o.MessagesSkipped,
	}
}

// RunRecord is the persisted mutual-exclusion token of one run.
type RunRecord struct {
	ID           string
	Status       RunStatus
	StartedAt    time.Time
	CompletedAt  *time.Time
	TriggeredBy  Trigger
	Source       SourceFamily
	ExclusionKey string
	Reason       string
	SourceID     string
	Counters     RunCounters
	Error        string
}
