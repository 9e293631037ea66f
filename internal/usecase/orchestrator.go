package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"SocialMonitor/internal/config"
	"SocialMonitor/internal/domain"
	"SocialMonitor/internal/ports"
	"SocialMonitor/internal/rules"
)

// OrchestratorDeps wires all driven adapters into the pipeline orchestrator.
type OrchestratorDeps struct {
	Collector  ports.Collector
	Enricher   ports.Enricher
	Repository ports.PostRepository
	Engine     *rules.Engine
	Notifiers  []ports.Notifier
	Logger     *slog.Logger
	Config     config.Config
}

// Orchestrator drives one pipeline run: collect, enrich, store, alert, and
// metrics recording, with per-stage retry and partial-failure policy.
// Collect and Enrich are critical (their failure ends the run FAILED);
// a Store stage that persists nothing ends the run DEGRADED; Alert and
// RecordMetrics are best-effort.
type Orchestrator struct {
	collector  ports.Collector
	enricher   ports.Enricher
	repository ports.PostRepository
	engine     *rules.Engine
	notifiers  []ports.Notifier
	logger     *slog.Logger
	cfg        config.Config

	// running enforces single-flight: a trigger while a previous run is
	// not terminal is rejected, not queued.
	running atomic.Bool
	now     func() time.Time
}

// NewOrchestrator constructs the orchestration component.
func NewOrchestrator(deps OrchestratorDeps) *Orchestrator {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		collector:  deps.Collector,
		enricher:   deps.Enricher,
		repository: deps.Repository,
		engine:     deps.Engine,
		notifiers:  deps.Notifiers,
		logger:     logger,
		cfg:        deps.Config,
		now:        time.Now,
	}
}

// postPair joins a raw post with its successful enrichment; the unit flowing
// through the store and alert stages.
type postPair struct {
	raw      domain.RawPost
	enriched domain.EnrichedPost
}

// pipelineRun holds run-scoped state, threaded explicitly through every
// stage and discarded after being flushed as metrics.
type pipelineRun struct {
	mu     sync.Mutex
	report domain.RunReport
}

func (r *pipelineRun) transition(state domain.RunState) {
	r.report.State = state
}

func (r *pipelineRun) endStage(stage string, status domain.StageStatus, attempts int, started time.Time, err error) {
	outcome := domain.StageOutcome{
		Stage:    stage,
		Status:   status,
		Attempts: attempts,
		Duration: time.Since(started),
	}
	if err != nil {
		outcome.Error = err.Error()
		r.report.Errors = append(r.report.Errors, domain.StageError{Stage: stage, Message: err.Error()})
	}
	r.report.Stages = append(r.report.Stages, outcome)
}

func (r *pipelineRun) skipStages(stages ...string) {
	for _, stage := range stages {
		r.report.Stages = append(r.report.Stages, domain.StageOutcome{Stage: stage, Status: domain.StageSkipped})
	}
}

func (r *pipelineRun) addError(stage string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.report.Errors = append(r.report.Errors, domain.StageError{Stage: stage, Message: err.Error()})
}

// RunOnce executes one complete pipeline run. It returns
// domain.ErrRunInProgress when a previous run has not reached a terminal
// state; the skipped trigger is counted, never queued. All other outcomes,
// including FAILED and DEGRADED runs, are reported through the RunReport.
func (o *Orchestrator) RunOnce(ctx context.Context) (domain.RunReport, error) {
	if !o.running.CompareAndSwap(false, true) {
		o.logger.Warn("pipeline trigger rejected: previous run still in progress")
		o.recordMetricQuiet(ctx, "runs_skipped", 1, nil)
		return domain.RunReport{}, domain.ErrRunInProgress
	}
	defer o.running.Store(false)

	run := &pipelineRun{report: domain.RunReport{
		RunID:     uuid.NewString(),
		State:     domain.RunPending,
		StartedAt: o.now(),
	}}
	logger := o.logger.With("run_id", run.report.RunID)
	logger.Info("pipeline run starting")

	run.transition(domain.RunCollecting)
	posts, err := o.collect(ctx, run, logger)
	if err != nil {
		return o.abort(ctx, run, logger, domain.StageCollect, err), nil
	}
	if len(posts) == 0 {
		logger.Info("no posts collected, nothing to enrich")
		run.skipStages(domain.StageEnrich, domain.StageStore, domain.StageAlert)
		return o.succeed(ctx, run, logger), nil
	}

	run.transition(domain.RunEnriching)
	pairs, err := o.enrich(ctx, run, logger, posts)
	if err != nil {
		return o.abort(ctx, run, logger, domain.StageEnrich, err), nil
	}

	run.transition(domain.RunStoring)
	stored := o.store(ctx, run, logger, pairs)
	if len(stored) == 0 && len(pairs) > 0 {
		// Nothing persisted while enrichment succeeded: data-loss risk.
		logger.Error("store stage persisted nothing, run degraded")
		run.skipStages(domain.StageAlert)
		return o.finish(ctx, run, logger, domain.RunDegraded), nil
	}

	run.transition(domain.RunAlerting)
	created := o.alert(ctx, run, logger, stored)
	o.dispatch(ctx, run, logger, created)

	run.transition(domain.RunMetrics)
	return o.succeed(ctx, run, logger), nil
}

// collect runs stage 1: pull a deduplicated batch of raw posts.
func (o *Orchestrator) collect(ctx context.Context, run *pipelineRun, logger *slog.Logger) ([]domain.RawPost, error) {
	started := o.now()
	var posts []domain.RawPost

	attempts, err := withRetry(ctx, logger, o.cfg.Retry, domain.StageCollect, func(ctx context.Context) error {
		var callErr error
		posts, callErr = o.collector.Collect(ctx, o.cfg.Monitoring.Keywords, o.cfg.Monitoring.Window())
		return callErr
	})
	if err != nil {
		run.endStage(domain.StageCollect, domain.StageFailed, attempts, started, err)
		return nil, err
	}

	run.report.Collected = len(posts)
	run.endStage(domain.StageCollect, domain.StageSucceeded, attempts, started, nil)
	logger.Info("collect stage done", "posts", len(posts), "attempts", attempts)
	return posts, nil
}

// enrich runs stage 2: one batched enrichment call with per-post error
// reporting. A batch-level failure after retries is critical; per-post
// failures only drop the affected posts.
func (o *Orchestrator) enrich(ctx context.Context, run *pipelineRun, logger *slog.Logger, posts []domain.RawPost) ([]postPair, error) {
	started := o.now()
	var results []domain.EnrichResult

	attempts, err := withRetry(ctx, logger, o.cfg.Retry, domain.StageEnrich, func(ctx context.Context) error {
		var callErr error
		results, callErr = o.enricher.Enrich(ctx, posts)
		return callErr
	})
	if err != nil {
		run.endStage(domain.StageEnrich, domain.StageFailed, attempts, started, err)
		return nil, err
	}
	if len(results) != len(posts) {
		err = fmt.Errorf("enricher returned %d results for %d posts", len(results), len(posts))
		run.endStage(domain.StageEnrich, domain.StageFailed, attempts, started, err)
		return nil, err
	}

	pairs := make([]postPair, 0, len(posts))
	for i, result := range results {
		if result.Err != nil {
			run.report.EnrichErrors++
			logger.Warn("post enrichment failed", "post_id", posts[i].PostID, "error", result.Err)
			continue
		}
		pairs = append(pairs, postPair{raw: posts[i], enriched: result.Enriched})
	}

	run.report.Enriched = len(pairs)
	run.endStage(domain.StageEnrich, domain.StageSucceeded, attempts, started, nil)
	logger.Info("enrich stage done", "enriched", len(pairs), "failed", run.report.EnrichErrors, "attempts", attempts)
	return pairs, nil
}

// store runs stage 3: persist raw and enriched posts across a bounded worker
// pool. Posts are independent, so ordering between them is not required.
// Returns the pairs that were durably stored; only those reach the alert
// stage, which must be able to query their state for dedup.
func (o *Orchestrator) store(ctx context.Context, run *pipelineRun, logger *slog.Logger, pairs []postPair) []postPair {
	started := o.now()

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		stored []postPair
		failed int
	)
	sem := make(chan struct{}, o.cfg.Pipeline.StoreWorkers)

	for _, pair := range pairs {
		wg.Add(1)
		sem <- struct{}{}
		go func(p postPair) {
			defer wg.Done()
			defer func() { <-sem }()

			_, err := withRetry(ctx, logger, o.cfg.Retry, "store "+p.raw.PostID, func(ctx context.Context) error {
				return o.storePost(ctx, p)
			})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				run.addError(domain.StageStore, fmt.Errorf("post %s: %w", p.raw.PostID, err))
				logger.Error("store post failed", "post_id", p.raw.PostID, "error", err)
				return
			}
			stored = append(stored, p)
		}(pair)
	}
	wg.Wait()

	run.report.Stored = len(stored)
	run.report.StoreErrors = failed

	status := domain.StageSucceeded
	var stageErr error
	if failed > 0 && len(stored) == 0 {
		status = domain.StageFailed
		stageErr = fmt.Errorf("all %d posts failed to store", failed)
	}
	run.endStage(domain.StageStore, status, 1, started, stageErr)
	logger.Info("store stage done", "stored", len(stored), "failed", failed)
	return stored
}

// storePost persists one raw post and its enrichment. Re-collection of a
// known post is a no-op on the raw row; the enrichment upsert keeps the
// latest signals either way.
func (o *Orchestrator) storePost(ctx context.Context, p postPair) error {
	if _, err := o.repository.UpsertRawPost(ctx, p.raw); err != nil {
		return fmt.Errorf("upsert raw: %w", err)
	}
	if err := o.repository.UpsertEnrichedPost(ctx, p.enriched); err != nil {
		return fmt.Errorf("upsert enriched: %w", err)
	}
	return nil
}

// alert runs stage 4: evaluate rules per stored post, deduplicate against
// OPEN alerts, and insert the survivors. The dedup-and-insert step is
// race-safe through the store's uniqueness constraint on the open
// (post_id, alert_type) key, not through engine-side locking; a duplicate
// insert surfaces as domain.ErrDuplicate and counts as a repeat trigger.
func (o *Orchestrator) alert(ctx context.Context, run *pipelineRun, logger *slog.Logger, stored []postPair) []domain.Alert {
	started := o.now()

	var (
		created   []domain.Alert
		alertErrs int
	)

	for _, pair := range stored {
		candidates := o.engine.Evaluate(pair.enriched, pair.raw)
		if len(candidates) == 0 {
			continue
		}
		logger.Info("post triggered rules",
			"post_id", pair.raw.PostID, "rules", len(candidates),
			"post_severity", string(domain.MaxSeverity(candidates)))

		for _, candidate := range candidates {
			existing, err := o.repository.FindOpenAlert(ctx, candidate.PostID, candidate.AlertType)
			if err != nil {
				alertErrs++
				run.addError(domain.StageAlert, fmt.Errorf("find open alert %s/%s: %w", candidate.PostID, candidate.AlertType, err))
				continue
			}
			if existing != nil {
				run.report.RepeatTriggers++
				continue
			}

			alert := domain.Alert{
				PostID:      candidate.PostID,
				AlertType:   candidate.AlertType,
				Severity:    candidate.Severity,
				Message:     alertMessage(pair.raw),
				Reasons:     candidate.Reasons,
				RunID:       run.report.RunID,
				TriggeredAt: o.now(),
			}
			inserted, err := o.repository.InsertAlert(ctx, alert)
			if errors.Is(err, domain.ErrDuplicate) {
				// Lost the race to a concurrent writer; same as an existing
				// OPEN alert.
				run.report.RepeatTriggers++
				continue
			}
			if err != nil {
				alertErrs++
				run.addError(domain.StageAlert, fmt.Errorf("insert alert %s/%s: %w", candidate.PostID, candidate.AlertType, err))
				continue
			}
			created = append(created, inserted)
		}
	}

	run.report.AlertsCreated = len(created)

	status := domain.StageSucceeded
	var stageErr error
	if alertErrs > 0 {
		status = domain.StageFailed
		stageErr = fmt.Errorf("%d alert operations failed", alertErrs)
	}
	run.endStage(domain.StageAlert, status, 1, started, stageErr)
	logger.Info("alert stage done",
		"created", len(created), "repeat_triggers", run.report.RepeatTriggers, "errors", alertErrs)
	return created
}

// dispatch sends one digest per channel per run, covering only alerts newly
// inserted by this run. A channel failure is logged and counted but never
// fails the run, and is not retried within the run.
func (o *Orchestrator) dispatch(ctx context.Context, run *pipelineRun, logger *slog.Logger, created []domain.Alert) {
	if len(created) == 0 || len(o.notifiers) == 0 {
		return
	}

	digest := renderDigest(run.report.RunID, created)
	for _, notifier := range o.notifiers {
		if err := notifier.Send(ctx, digest); err != nil {
			run.report.NotifyFailures++
			run.addError(domain.StageAlert, fmt.Errorf("notify %s: %w", notifier.Name(), err))
			logger.Error("digest delivery failed", "channel", notifier.Name(), "error", err)
			continue
		}
		logger.Info("digest delivered", "channel", notifier.Name(), "alerts", len(created))
	}
}

// flushMetrics runs stage 5: append run counters to the store. Best-effort;
// individual failures are logged and surfaced in the report.
func (o *Orchestrator) flushMetrics(ctx context.Context, run *pipelineRun, logger *slog.Logger, terminal domain.RunState) {
	started := o.now()
	report := &run.report
	metadata := map[string]any{"run_id": report.RunID, "state": string(terminal)}

	observations := []struct {
		name  string
		value float64
	}{
		{"posts_collected", float64(report.Collected)},
		{"posts_enriched", float64(report.Enriched)},
		{"posts_stored", float64(report.Stored)},
		{"alerts_created", float64(report.AlertsCreated)},
		{"repeat_triggers", float64(report.RepeatTriggers)},
		{"notify_failures", float64(report.NotifyFailures)},
		{"error_count", float64(len(report.Errors))},
		{"run_duration_seconds", time.Since(report.StartedAt).Seconds()},
	}

	var failures int
	for _, obs := range observations {
		if err := o.repository.RecordMetric(ctx, obs.name, obs.value, metadata); err != nil {
			failures++
			logger.Error("record metric failed", "metric", obs.name, "error", err)
		}
	}

	status := domain.StageSucceeded
	var stageErr error
	if failures == len(observations) {
		status = domain.StageFailed
		stageErr = fmt.Errorf("all %d metric writes failed", failures)
	} else if failures > 0 {
		stageErr = fmt.Errorf("%d of %d metric writes failed", failures, len(observations))
	}
	run.endStage(domain.StageMetrics, status, 1, started, stageErr)
}

// recordMetricQuiet appends a metric outside any run; failures are only logged.
func (o *Orchestrator) recordMetricQuiet(ctx context.Context, name string, value float64, metadata map[string]any) {
	if err := o.repository.RecordMetric(ctx, name, value, metadata); err != nil {
		o.logger.Error("record metric failed", "metric", name, "error", err)
	}
}

func (o *Orchestrator) succeed(ctx context.Context, run *pipelineRun, logger *slog.Logger) domain.RunReport {
	return o.finish(ctx, run, logger, domain.RunSucceeded)
}

// abort ends a run after a critical stage exhausted its retries. Downstream
// stages are skipped, metrics are flushed best-effort, and an operational
// notice is attempted.
func (o *Orchestrator) abort(ctx context.Context, run *pipelineRun, logger *slog.Logger, stage string, cause error) domain.RunReport {
	logger.Error("critical stage failed, aborting run", "stage", stage, "error", cause)
	switch stage {
	case domain.StageCollect:
		run.skipStages(domain.StageEnrich, domain.StageStore, domain.StageAlert)
	case domain.StageEnrich:
		run.skipStages(domain.StageStore, domain.StageAlert)
	}
	report := o.finish(ctx, run, logger, domain.RunFailed)
	o.operationalNotice(ctx, logger, report.RunID, stage, cause)
	return report
}

// finish flushes metrics, stamps the terminal state, and logs the summary.
func (o *Orchestrator) finish(ctx context.Context, run *pipelineRun, logger *slog.Logger, terminal domain.RunState) domain.RunReport {
	o.flushMetrics(ctx, run, logger, terminal)
	run.transition(terminal)
	run.report.FinishedAt = o.now()

	logger.Info("pipeline run finished",
		"state", string(terminal),
		"duration", run.report.Duration(),
		"collected", run.report.Collected,
		"enriched", run.report.Enriched,
		"stored", run.report.Stored,
		"alerts_created", run.report.AlertsCreated,
		"repeat_triggers", run.report.RepeatTriggers,
		"errors", len(run.report.Errors))
	return run.report
}

// operationalNotice tells operators about a failed critical stage, distinct
// from content alerts. Strictly best-effort: delivery errors are swallowed so
// failure handling can never recurse into itself.
func (o *Orchestrator) operationalNotice(ctx context.Context, logger *slog.Logger, runID, stage string, cause error) {
	notice := renderOperationalNotice(runID, stage, cause)
	for _, notifier := range o.notifiers {
		if err := notifier.Send(ctx, notice); err != nil {
			logger.Warn("operational notice delivery failed", "channel", notifier.Name(), "error", err)
		}
	}
}

func alertMessage(raw domain.RawPost) string {
	title := raw.Title
	if len(title) > 100 {
		title = title[:100]
	}
	return fmt.Sprintf("Alert for post: %s", title)
}
