package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Stage identifies one discrete analytical capability in the pipeline.
type Stage string

// Pipeline stages. The coordinator stage is a single aggregate call whose
// result already embeds the extraction, reconciliation, QoE and NWC
// sub-results, so those never run as independent invocations.
const (
	StageCoordinator    Stage = "fdd_coordinator"
	StageDataExtraction Stage = "data_extraction"
	StageReconciliation Stage = "reconciliation"
	StageQoE            Stage = "qoe_analysis"
	StageNWC            Stage = "nwc_analysis"
	StageInterviewPrep  Stage = "interview_prep"
	StageReport         Stage = "report_generation"
)

// Stages returns every stage in pipeline order.
func Stages() []Stage {
	return []Stage{
		StageCoordinator,
		StageDataExtraction,
		StageReconciliation,
		StageQoE,
		StageNWC,
		StageInterviewPrep,
		StageReport,
	}
}

// InvokedStages returns the stages the orchestrator dispatches directly.
func InvokedStages() []Stage {
	return []Stage{StageCoordinator, StageInterviewPrep, StageReport}
}

// StageStatus is the lifecycle status of a stage result.
type StageStatus string

// Stage result statuses. A result transitions at most once from Pending to
// a terminal state and never re-enters Pending.
const (
	StagePending StageStatus = "pending"
	StageSuccess StageStatus = "success"
	StageFailed  StageStatus = "failed"
)

// ErrorKind classifies stage failures for retry decisions.
type ErrorKind string

// Error kinds surfaced to the calling layer.
const (
	// ErrorKindSchema marks a malformed or incomplete stage response.
	// Retrying without new input will not help.
	ErrorKindSchema ErrorKind = "schema"
	// ErrorKindInvocation marks a transport failure calling the stage.
	// Re-triggering the same transition is safe.
	ErrorKindInvocation ErrorKind = "invocation"
	// ErrorKindTimeout marks a stage invocation that exceeded its deadline.
	ErrorKindTimeout ErrorKind = "timeout"
	// ErrorKindAnalysis marks a stage that returned status "error".
	ErrorKindAnalysis ErrorKind = "analysis"
)

// Retryable reports whether re-triggering the failed transition can succeed
// without new input.
func (k ErrorKind) Retryable() bool {
	switch k {
	case ErrorKindInvocation, ErrorKindTimeout:
		return true
	default:
		return false
	}
}

// StageResult records the terminal outcome of one stage invocation.
type StageResult struct {
	StartTime time.Time       `json:"start_time"`
	EndTime   time.Time       `json:"end_time"`
	Stage     Stage           `json:"stage"`
	Status    StageStatus     `json:"status"`
	ErrorKind ErrorKind       `json:"error_kind,omitempty"`
	Error     string          `json:"error,omitempty"`
	Output    json.RawMessage `json:"output,omitempty"`
}

// NewStageResult creates a pending result for a stage.
func NewStageResult(stage Stage) *StageResult {
	return &StageResult{
		Stage:     stage,
		Status:    StagePending,
		StartTime: time.Now(),
	}
}

// Terminal reports whether the result has reached a terminal state.
func (r *StageResult) Terminal() bool {
	return r.Status == StageSuccess || r.Status == StageFailed
}

// Complete transitions the result to Success with the validated output.
func (r *StageResult) Complete(output json.RawMessage) error {
	if r.Terminal() {
		return fmt.Errorf("stage %s result already terminal (%s)", r.Stage, r.Status)
	}
	r.Status = StageSuccess
	r.Output = output
	r.EndTime = time.Now()
	return nil
}

// Fail transitions the result to Failed with an error classification.
func (r *StageResult) Fail(kind ErrorKind, err error) error {
	if r.Terminal() {
		return fmt.Errorf("stage %s result already terminal (%s)", r.Stage, r.Status)
	}
	r.Status = StageFailed
	r.ErrorKind = kind
	if err != nil {
		r.Error = err.Error()
	}
	r.EndTime = time.Now()
	return nil
}
