// Package workflow sequences stage invocations for one engagement. It owns
// the state machine, enforces prerequisite ordering, and exposes immutable
// snapshots to the calling layer.
package workflow

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/harborview/dealscope/internal/agent"
	"github.com/harborview/dealscope/internal/aggregate"
	"github.com/harborview/dealscope/internal/models"
	"github.com/harborview/dealscope/internal/schema"
	"github.com/harborview/dealscope/pkg/logger"
)

// DefaultStageTimeout bounds a single stage invocation.
const DefaultStageTimeout = 10 * time.Minute

// ErrPrerequisiteMissing is returned when a transition is triggered before
// its dependency reached a terminal success. The trigger is rejected
// synchronously; no stage invocation is dispatched.
var ErrPrerequisiteMissing = errors.New("prerequisite stage output missing")

// ErrStageInFlight is returned when a trigger arrives while another stage
// invocation for this engagement is already running.
var ErrStageInFlight = errors.New("a stage invocation is already in flight")

// StageError is a stage failure surfaced to the calling layer. It names the
// failed stage and whether a retry can succeed without new input.
type StageError struct {
	Stage models.Stage
	Kind  models.ErrorKind
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed (%s): %v", e.Stage, e.Kind, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Retryable reports whether re-triggering the failed transition is safe.
func (e *StageError) Retryable() bool { return e.Kind.Retryable() }

// Options configures an orchestrator.
type Options struct {
	Validator    *schema.Validator
	Engine       *aggregate.Engine
	Logger       logger.Logger
	StageTimeout time.Duration

	// StageIDs maps pipeline stages to opaque capability identifiers. Unset
	// stages default to their stage name.
	StageIDs map[models.Stage]string
}

// Orchestrator drives one workflow run per engagement. All exported methods
// are safe for concurrent use; at most one stage invocation is in flight at
// any time.
type Orchestrator struct {
	driver       agent.Driver
	validator    *schema.Validator
	engine       *aggregate.Engine
	log          logger.Logger
	stageTimeout time.Duration
	stageIDs     map[models.Stage]string

	mu          sync.Mutex
	engagement  models.Engagement
	runID       string
	state       models.WorkflowState
	failedStage models.Stage
	results     map[models.Stage]models.StageResult
	findings    *models.AggregatedFindings
	coordinator *schema.CoordinatorResult
	interview   *schema.InterviewPrepResult
	report      *schema.ReportResult
	reportHash  string
	inFlight    bool
	updatedAt   time.Time
}

// New creates an orchestrator in the Created state.
func New(eng models.Engagement, driver agent.Driver, opts Options) (*Orchestrator, error) {
	if err := eng.Validate(); err != nil {
		return nil, fmt.Errorf("invalid engagement: %w", err)
	}
	if driver == nil {
		return nil, errors.New("driver is required")
	}

	if opts.Validator == nil {
		opts.Validator = schema.DefaultValidator()
	}
	if opts.Logger == nil {
		opts.Logger = logger.GetGlobalLogger()
	}
	if opts.Engine == nil {
		opts.Engine = aggregate.NewEngine(opts.Logger)
	}
	if opts.StageTimeout <= 0 {
		opts.StageTimeout = DefaultStageTimeout
	}

	return &Orchestrator{
		driver:       driver,
		validator:    opts.Validator,
		engine:       opts.Engine,
		log:          opts.Logger.With("company", eng.CompanyName),
		stageTimeout: opts.StageTimeout,
		stageIDs:     opts.StageIDs,
		engagement:   eng,
		runID:        uuid.NewString(),
		state:        models.StateCreated,
		results:      make(map[models.Stage]models.StageResult),
		updatedAt:    time.Now(),
	}, nil
}

// Snapshot returns an immutable view of the run. The returned value shares
// nothing mutable with the orchestrator.
func (o *Orchestrator) Snapshot() models.WorkflowSnapshot {
	o.mu.Lock()
	defer o.mu.Unlock()

	results := make(map[models.Stage]models.StageResult, len(o.results))
	for stage, result := range o.results {
		results[stage] = result
	}

	var findings *models.AggregatedFindings
	if o.findings != nil {
		copied := *o.findings
		copied.CrossFunctionalRisks = append([]models.RiskFinding(nil), o.findings.CrossFunctionalRisks...)
		copied.SingleFunctionRisks = append([]models.RiskFinding(nil), o.findings.SingleFunctionRisks...)
		copied.MissingStages = append([]models.Stage(nil), o.findings.MissingStages...)
		findings = &copied
	}

	return models.WorkflowSnapshot{
		UpdatedAt:   o.updatedAt,
		Results:     results,
		Findings:    findings,
		Engagement:  o.engagement,
		State:       o.state,
		FailedStage: o.failedStage,
		RunID:       o.runID,
	}
}

// State returns the current workflow state.
func (o *Orchestrator) State() models.WorkflowState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Coordinator returns the validated coordinator output, if extraction has
// completed.
func (o *Orchestrator) Coordinator() *schema.CoordinatorResult {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.coordinator
}

// InterviewPrep returns the validated interview pack, if generated.
func (o *Orchestrator) InterviewPrep() *schema.InterviewPrepResult {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.interview
}

// Report returns the validated report, if generated.
func (o *Orchestrator) Report() *schema.ReportResult {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.report
}

// StartExtraction runs the coordinator stage and, on success, aggregates
// its embedded sub-results synchronously. Idempotent: a trigger while
// extraction already completed is a no-op.
func (o *Orchestrator) StartExtraction(ctx context.Context) error {
	o.mu.Lock()
	if o.state.AtLeast(models.StateExtractionComplete) {
		o.mu.Unlock()
		return nil
	}
	prev := o.state
	if err := o.beginLocked(models.StageCoordinator, models.StateExtractionRunning, models.StateCreated); err != nil {
		o.mu.Unlock()
		return err
	}
	prompt := ExtractionPrompt(o.engagement)
	o.mu.Unlock()

	raw, invErr := o.invoke(ctx, models.StageCoordinator, prompt)
	if invErr != nil {
		return o.finishFailure(models.StageCoordinator, prev, invErr)
	}

	coordinator, err := o.validator.Coordinator(raw)
	if err != nil {
		return o.finishFailure(models.StageCoordinator, models.StateCreated,
			&StageError{Stage: models.StageCoordinator, Kind: models.ErrorKindSchema, Err: err})
	}

	findings := o.engine.Aggregate(
		coordinator.SubAgentResults.Reconciliation,
		coordinator.SubAgentResults.QoE,
		coordinator.SubAgentResults.NWC,
	)

	o.mu.Lock()
	defer o.mu.Unlock()
	o.coordinator = coordinator
	o.findings = findings
	o.recordSuccessLocked(models.StageCoordinator, raw)
	o.setStateLocked(models.StateAggregationComplete)
	o.inFlight = false
	o.log.Info("extraction and aggregation complete",
		"total_red_flags", findings.TotalRedFlags,
		"partial", findings.Partial,
	)
	return nil
}

// StartInterviewPrep runs the interview-prep stage from the aggregated
// findings. Requires AggregationComplete; idempotent once complete.
func (o *Orchestrator) StartInterviewPrep(ctx context.Context) error {
	o.mu.Lock()
	if o.state.AtLeast(models.StateInterviewPrepComplete) {
		o.mu.Unlock()
		return nil
	}
	if !o.prerequisiteMetLocked(models.StageInterviewPrep) {
		state := o.state
		o.mu.Unlock()
		return fmt.Errorf("%w: start_interview_prep requires aggregation_complete, current state %s", ErrPrerequisiteMissing, state)
	}
	prev := o.state
	if err := o.beginLocked(models.StageInterviewPrep, models.StateInterviewPrepRunning, models.StateAggregationComplete); err != nil {
		o.mu.Unlock()
		return err
	}
	prompt := InterviewPrepPrompt(o.engagement, o.findings)
	o.mu.Unlock()

	raw, invErr := o.invoke(ctx, models.StageInterviewPrep, prompt)
	if invErr != nil {
		return o.finishFailure(models.StageInterviewPrep, prev, invErr)
	}

	interview, err := o.validator.InterviewPrep(raw)
	if err != nil {
		return o.finishFailure(models.StageInterviewPrep, models.StateAggregationComplete,
			&StageError{Stage: models.StageInterviewPrep, Kind: models.ErrorKindSchema, Err: err})
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.interview = interview
	o.recordSuccessLocked(models.StageInterviewPrep, raw)
	o.setStateLocked(models.StateInterviewPrepComplete)
	o.inFlight = false
	o.log.Info("interview prep complete",
		"questions", interview.InterviewPrepSummary.TotalQuestionsGenerated,
	)
	return nil
}

// RecordInterviewNote appends a response note to a generated question. Notes
// never alter question content.
func (o *Orchestrator) RecordInterviewNote(setIdx, questionIdx int, note string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.interview == nil {
		return fmt.Errorf("%w: interview prep has not completed", ErrPrerequisiteMissing)
	}
	if setIdx < 0 || setIdx >= len(o.interview.QuestionSets) {
		return fmt.Errorf("question set index %d out of range", setIdx)
	}
	set := &o.interview.QuestionSets[setIdx]
	if questionIdx < 0 || questionIdx >= len(set.Questions) {
		return fmt.Errorf("question index %d out of range", questionIdx)
	}
	if set.ResponseNotes == nil {
		set.ResponseNotes = make(map[int]string)
	}
	set.ResponseNotes[questionIdx] = note
	o.updatedAt = time.Now()
	return nil
}

// StartReport runs the report stage. Requires InterviewPrepComplete.
// Re-triggering while ReportComplete returns the cached report unless the
// findings changed since it was produced, in which case the report is
// regenerated.
func (o *Orchestrator) StartReport(ctx context.Context) (*schema.ReportResult, error) {
	o.mu.Lock()
	if o.state == models.StateReportComplete && o.report != nil && o.reportHash == findingsHash(o.findings) {
		report := o.report
		o.mu.Unlock()
		return report, nil
	}
	if !o.prerequisiteMetLocked(models.StageReport) {
		state := o.state
		o.mu.Unlock()
		return nil, fmt.Errorf("%w: start_report requires interview_prep_complete, current state %s", ErrPrerequisiteMissing, state)
	}
	prev := o.state
	if err := o.beginLocked(models.StageReport, models.StateReportRunning, models.StateInterviewPrepComplete, models.StateReportComplete); err != nil {
		o.mu.Unlock()
		return nil, err
	}
	prompt := ReportPrompt(o.engagement, o.coordinator, o.findings)
	hash := findingsHash(o.findings)
	o.mu.Unlock()

	raw, invErr := o.invoke(ctx, models.StageReport, prompt)
	if invErr != nil {
		return nil, o.finishFailure(models.StageReport, prev, invErr)
	}

	report, err := o.validator.Report(raw)
	if err != nil {
		return nil, o.finishFailure(models.StageReport, models.StateInterviewPrepComplete,
			&StageError{Stage: models.StageReport, Kind: models.ErrorKindSchema, Err: err})
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.report = report
	o.reportHash = hash
	o.recordSuccessLocked(models.StageReport, raw)
	o.setStateLocked(models.StateReportComplete)
	o.inFlight = false
	o.log.Info("report complete", "report_id", report.ReportMetadata.ReportID)
	return report, nil
}

// beginLocked guards and enters a running state. Callers hold the mutex.
// The trigger is valid from any listed source state or from a Failed state
// for the same stage (retry re-enters running from scratch).
func (o *Orchestrator) beginLocked(stage models.Stage, running models.WorkflowState, froms ...models.WorkflowState) error {
	if o.inFlight {
		return ErrStageInFlight
	}
	allowed := o.state == models.StateFailed && o.failedStage == stage
	for _, from := range froms {
		if o.state == from {
			allowed = true
		}
	}
	if !allowed {
		return fmt.Errorf("%w: cannot start %s from state %s", ErrPrerequisiteMissing, stage, o.state)
	}
	o.inFlight = true
	o.failedStage = ""
	o.setStateLocked(running)
	return nil
}

// prerequisiteMetLocked checks a stage's dependency without consuming the
// transition. Callers hold the mutex.
func (o *Orchestrator) prerequisiteMetLocked(stage models.Stage) bool {
	switch stage {
	case models.StageInterviewPrep:
		if o.state == models.StateFailed && o.failedStage == models.StageInterviewPrep {
			return o.findings != nil
		}
		return o.state.AtLeast(models.StateAggregationComplete) && o.findings != nil
	case models.StageReport:
		if o.state == models.StateFailed && o.failedStage == models.StageReport {
			return o.interview != nil
		}
		return o.state.AtLeast(models.StateInterviewPrepComplete)
	default:
		return true
	}
}

// invoke dispatches one stage call with the stage timeout applied. Returns
// the raw result on success, or a typed error. Caller-initiated
// cancellation surfaces as context.Canceled wrapped in no StageError so the
// run can revert cleanly.
func (o *Orchestrator) invoke(ctx context.Context, stage models.Stage, prompt string) (json.RawMessage, error) {
	stageCtx, cancel := context.WithTimeout(ctx, o.stageTimeout)
	defer cancel()

	o.log.Info("invoking stage", "stage", stage, "prompt_version", PromptVersion)

	resp, err := o.driver.Invoke(stageCtx, agent.Request{
		StageID:    o.stageID(stage),
		PromptText: prompt,
	})
	if err != nil {
		if ctx.Err() != nil {
			// The caller abandoned the invocation; not a stage failure.
			return nil, ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) || stageCtx.Err() == context.DeadlineExceeded {
			return nil, &StageError{Stage: stage, Kind: models.ErrorKindTimeout, Err: err}
		}
		return nil, &StageError{Stage: stage, Kind: models.ErrorKindInvocation, Err: err}
	}

	env := schema.Envelope{Success: resp.Success, Status: resp.Status, Result: resp.Result}
	if err := schema.CheckEnvelope(stage, &env); err != nil {
		return nil, &StageError{Stage: stage, Kind: envelopeErrorKind(err), Err: err}
	}
	return resp.Result, nil
}

// envelopeErrorKind maps a rejected envelope onto the retry taxonomy:
// transport failures are retryable, analytical failures and contract
// violations are not.
func envelopeErrorKind(err error) models.ErrorKind {
	var envErr *schema.EnvelopeError
	if errors.As(err, &envErr) {
		if envErr.Transport {
			return models.ErrorKindInvocation
		}
		return models.ErrorKindAnalysis
	}
	return models.ErrorKindSchema
}

// finishFailure resolves a failed invocation. Abandonment (caller cancel)
// reverts to the pre-invocation state with no stage result recorded, so a
// retry is always safe. Stage errors transition to Failed and record a
// terminal result.
func (o *Orchestrator) finishFailure(stage models.Stage, revertTo models.WorkflowState, err error) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.inFlight = false

	var stageErr *StageError
	if !errors.As(err, &stageErr) {
		o.setStateLocked(revertTo)
		if revertTo == models.StateFailed {
			o.failedStage = stage
		}
		o.log.Warn("stage invocation abandoned", "stage", stage, "reason", err)
		return err
	}

	result := models.NewStageResult(stage)
	_ = result.Fail(stageErr.Kind, stageErr.Err)
	o.results[stage] = *result
	o.failedStage = stage
	o.setStateLocked(models.StateFailed)
	o.log.Error("stage failed",
		"stage", stage,
		"kind", string(stageErr.Kind),
		"retryable", stageErr.Retryable(),
		"error", stageErr.Err,
	)
	return stageErr
}

// recordSuccessLocked stores a terminal success result. Callers hold the
// mutex.
func (o *Orchestrator) recordSuccessLocked(stage models.Stage, output json.RawMessage) {
	result := models.NewStageResult(stage)
	_ = result.Complete(output)
	o.results[stage] = *result
}

func (o *Orchestrator) setStateLocked(state models.WorkflowState) {
	o.state = state
	o.updatedAt = time.Now()
}

func (o *Orchestrator) stageID(stage models.Stage) string {
	if id, ok := o.stageIDs[stage]; ok && id != "" {
		return id
	}
	return string(stage)
}

// findingsHash fingerprints the aggregated findings for report idempotency.
// Marshal output is deterministic for a fixed struct shape, so identical
// findings always hash identically.
func findingsHash(findings *models.AggregatedFindings) string {
	if findings == nil {
		return ""
	}
	data, err := json.Marshal(findings)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
