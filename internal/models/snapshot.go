package models

import "time"

// WorkflowState is the orchestrator's explicit state machine position.
type WorkflowState string

// Workflow states in pipeline order. Failed is reachable from any running
// state and is terminal for the run; retry re-enters the corresponding
// running state from scratch.
const (
	StateCreated               WorkflowState = "created"
	StateExtractionRunning     WorkflowState = "extraction_running"
	StateExtractionComplete    WorkflowState = "extraction_complete"
	StateAggregationComplete   WorkflowState = "aggregation_complete"
	StateInterviewPrepRunning  WorkflowState = "interview_prep_running"
	StateInterviewPrepComplete WorkflowState = "interview_prep_complete"
	StateReportRunning         WorkflowState = "report_running"
	StateReportComplete        WorkflowState = "report_complete"
	StateFailed                WorkflowState = "failed"
)

// stateOrder positions each non-failed state along the pipeline.
var stateOrder = map[WorkflowState]int{
	StateCreated:               0,
	StateExtractionRunning:     1,
	StateExtractionComplete:    2,
	StateAggregationComplete:   3,
	StateInterviewPrepRunning:  4,
	StateInterviewPrepComplete: 5,
	StateReportRunning:         6,
	StateReportComplete:        7,
}

// AtLeast reports whether s has reached or passed the other state along the
// pipeline. Failed never satisfies AtLeast.
func (s WorkflowState) AtLeast(other WorkflowState) bool {
	si, ok := stateOrder[s]
	if !ok {
		return false
	}
	oi, ok := stateOrder[other]
	if !ok {
		return false
	}
	return si >= oi
}

// Running reports whether a stage invocation is in flight in this state.
func (s WorkflowState) Running() bool {
	switch s {
	case StateExtractionRunning, StateInterviewPrepRunning, StateReportRunning:
		return true
	default:
		return false
	}
}

// WorkflowSnapshot is an immutable view of a workflow run, replaced
// atomically on each terminal transition. Consumers read a snapshot
// reference; they never mutate shared fields.
type WorkflowSnapshot struct {
	UpdatedAt   time.Time             `json:"updated_at"`
	Results     map[Stage]StageResult `json:"results"`
	Findings    *AggregatedFindings   `json:"findings,omitempty"`
	Engagement  Engagement            `json:"engagement"`
	State       WorkflowState         `json:"state"`
	FailedStage Stage                 `json:"failed_stage,omitempty"`
	RunID       string                `json:"run_id"`
}

// Result returns the latest terminal result for a stage, if any.
func (s *WorkflowSnapshot) Result(stage Stage) (StageResult, bool) {
	r, ok := s.Results[stage]
	return r, ok
}
