package domain

import "time"

// RunState tracks a pipeline run through its linear state machine.
// A run traverses PENDING through METRICS exactly once, with early exit to
// FAILED (critical stage exhausted) or DEGRADED (stored nothing after a
// successful enrich).
type RunState string

const (
	RunPending    RunState = "PENDING"
	RunCollecting RunState = "COLLECTING"
	RunEnriching  RunState = "ENRICHING"
	RunStoring    RunState = "STORING"
	RunAlerting   RunState = "ALERTING"
	RunMetrics    RunState = "METRICS"
	RunSucceeded  RunState = "SUCCEEDED"
	RunFailed     RunState = "FAILED"
	RunDegraded   RunState = "DEGRADED"
)

// Terminal reports whether the run reached an end state.
func (s RunState) Terminal() bool {
	return s == RunSucceeded || s == RunFailed || s == RunDegraded
}

// Stage names, in pipeline order.
const (
	StageCollect = "collect"
	StageEnrich  = "enrich"
	StageStore   = "store"
	StageAlert   = "alert"
	StageMetrics = "metrics"
)

// StageStatus is the outcome of one stage within a run.
type StageStatus string

const (
	StageSucceeded StageStatus = "succeeded"
	StageFailed    StageStatus = "failed"
	StageSkipped   StageStatus = "skipped"
)

// StageOutcome records how a single stage ended.
type StageOutcome struct {
	Stage    string
	Status   StageStatus
	Attempts int
	Duration time.Duration
	Error    string
}

// StageError tags an error message with the stage that produced it.
type StageError struct {
	Stage   string
	Message string
}

// RunReport summarizes one pipeline run for logging and operations.
type RunReport struct {
	RunID          string
	State          RunState
	StartedAt      time.Time
	FinishedAt     time.Time
	Collected      int
	Enriched       int
	EnrichErrors   int
	Stored         int
	StoreErrors    int
	AlertsCreated  int
	RepeatTriggers int
	NotifyFailures int
	Stages         []StageOutcome
	Errors         []StageError
}

// Duration is the wall-clock span of the run.
func (r RunReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
