// Package pipeline runs the content stages of a workflow in dependency order.
//
// Stage payloads are threaded through a stages.State. The stages that own a
// workflow step commit it through the workflow.Machine and then pass it to a
// Gate. In tolerant mode a failing stage is recorded and the run continues on
// placeholder payloads; in strict mode the first non-Ok result halts the run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/chicogong/ytagents/pkg/config"
	"github.com/chicogong/ytagents/pkg/logger"
	"github.com/chicogong/ytagents/pkg/schemas"
	"github.com/chicogong/ytagents/pkg/stages"
	"github.com/chicogong/ytagents/pkg/storage"
	"github.com/chicogong/ytagents/pkg/tracing"
	"github.com/chicogong/ytagents/pkg/workflow"
)

// Mode selects the failure policy
type Mode string

const (
	Tolerant Mode = config.ModeTolerant
	Strict   Mode = config.ModeStrict
)

// Options controls a run
type Options struct {
	Mode Mode

	// Timeouts bound each stage by its budget; zero means no timeout
	Timeouts map[stages.Budget]time.Duration

	OutputDir string

	// Publish lets Run continue into upload; otherwise it pauses before it
	Publish bool
}

// OptionsFromConfig maps the pipeline section of the configuration
func OptionsFromConfig(c config.PipelineConfig) Options {
	return Options{
		Mode:      Mode(c.Mode),
		OutputDir: c.OutputDir,
		Publish:   c.Publish,
		Timeouts: map[stages.Budget]time.Duration{
			stages.BudgetLLM:   c.Timeouts.LLM.Duration,
			stages.BudgetTTS:   c.Timeouts.TTS.Duration,
			stages.BudgetMedia: c.Timeouts.Media.Duration,
			stages.BudgetHTTP:  c.Timeouts.HTTP.Duration,
		},
	}
}

// commitSteps maps the stage whose completion commits a workflow step. The
// video step is committed after the thumbnail so steps are committed in
// order and the thumbnail path travels with the video.
var commitSteps = map[schemas.StageName]schemas.StepName{
	schemas.StageResearch:  schemas.StepResearch,
	schemas.StageScript:    schemas.StepScript,
	schemas.StageMetadata:  schemas.StepMetadata,
	schemas.StageThumbnail: schemas.StepVideo,
	schemas.StageUpload:    schemas.StepUpload,
}

// ownerSteps maps each stage to the step its failures are recorded on
var ownerSteps = map[schemas.StageName]schemas.StepName{
	schemas.StageResearch:  schemas.StepResearch,
	schemas.StageScript:    schemas.StepScript,
	schemas.StageVoiceover: schemas.StepVideo,
	schemas.StageSubtitles: schemas.StepVideo,
	schemas.StageVisuals:   schemas.StepVideo,
	schemas.StageAssembly:  schemas.StepVideo,
	schemas.StageMetadata:  schemas.StepMetadata,
	schemas.StageThumbnail: schemas.StepVideo,
	schemas.StageUpload:    schemas.StepUpload,
}

// stepStages lists the stages that regenerate a step
var stepStages = map[schemas.StepName][]schemas.StageName{
	schemas.StepResearch: {schemas.StageResearch},
	schemas.StepScript:   {schemas.StageScript},
	schemas.StepMetadata: {schemas.StageMetadata},
	schemas.StepVideo: {
		schemas.StageVoiceover, schemas.StageSubtitles, schemas.StageVisuals,
		schemas.StageAssembly, schemas.StageThumbnail,
	},
	schemas.StepUpload: {schemas.StageUpload, schemas.StageAnalytics},
}

// Request starts a run. An empty Topic runs trend detection first.
type Request struct {
	Topic string
}

// Report describes one run
type Report struct {
	WorkflowID string                `json:"workflow_id"`
	Topic      string                `json:"topic"`
	Results    []schemas.StageResult `json:"results"`
	Video      *schemas.VideoRecord  `json:"video,omitempty"`

	// PausedAt is the step waiting for a decision, if the run paused
	PausedAt schemas.StepName `json:"paused_at,omitempty"`

	Err error `json:"-"`
}

// Result returns the last result recorded for stage
func (r *Report) Result(stage schemas.StageName) (schemas.StageResult, bool) {
	for i := len(r.Results) - 1; i >= 0; i-- {
		if r.Results[i].Stage == stage {
			return r.Results[i], true
		}
	}
	return schemas.StageResult{}, false
}

// Orchestrator runs registered stages against workflows
type Orchestrator struct {
	machine  *workflow.Machine
	registry *stages.Registry
	videos   storage.VideoBackend
	order    []schemas.StageName
	gate     Gate
	feedback FeedbackStore
	tracer   trace.Tracer
	opts     Options
	log      *logger.Logger
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithGate replaces the default AutoGate
func WithGate(g Gate) Option {
	return func(o *Orchestrator) { o.gate = g }
}

// WithFeedback replaces the default in-memory feedback store
func WithFeedback(f FeedbackStore) Option {
	return func(o *Orchestrator) { o.feedback = f }
}

// WithTracer replaces the global pipeline tracer
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) { o.tracer = t }
}

// New validates the stage graph and returns an orchestrator. videos may be nil,
// in which case reports carry no video record.
func New(machine *workflow.Machine, registry *stages.Registry, videos storage.VideoBackend, opts Options, log *logger.Logger, options ...Option) (*Orchestrator, error) {
	switch opts.Mode {
	case "":
		opts.Mode = Tolerant
	case Tolerant, Strict:
	default:
		return nil, fmt.Errorf("unknown pipeline mode %q", opts.Mode)
	}

	graph, err := BuildGraph(registry.List())
	if err != nil {
		return nil, err
	}
	order, err := graph.TopologicalSort()
	if err != nil {
		return nil, err
	}

	o := &Orchestrator{
		machine:  machine,
		registry: registry,
		videos:   videos,
		order:    order,
		gate:     AutoGate{},
		feedback: NewMemoryFeedback(),
		tracer:   tracing.Tracer(),
		opts:     opts,
		log:      log,
	}
	for _, opt := range options {
		opt(o)
	}
	return o, nil
}

// Order returns the stage execution order
func (o *Orchestrator) Order() []schemas.StageName {
	return append([]schemas.StageName(nil), o.order...)
}

// Run creates a workflow for the request and drives it as far as the gate allows.
// The returned error is also stored on the report.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Report, error) {
	ctx, span := o.tracer.Start(ctx, "pipeline.run")
	defer span.End()

	rep := &Report{Topic: strings.TrimSpace(req.Topic)}
	fail := func(err error) (*Report, error) {
		rep.Err = err
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return rep, err
	}

	topTopics := o.topTopics(ctx)
	if rep.Topic == "" {
		topic, err := o.detectTopic(ctx, topTopics, rep)
		if err != nil {
			return fail(err)
		}
		rep.Topic = topic
	}

	id, err := o.machine.Create(ctx, rep.Topic)
	if err != nil {
		return fail(err)
	}
	rep.WorkflowID = id
	span.SetAttributes(attribute.String("workflow.id", id), attribute.String("workflow.topic", rep.Topic))
	o.log.Info("pipeline run started", "workflow_id", id, "topic", rep.Topic, "mode", o.opts.Mode)

	st := stages.NewState(id, rep.Topic, o.opts.OutputDir)
	st.TopTopics = topTopics

	var names []schemas.StageName
	for _, name := range o.order {
		if name != schemas.StageTrends {
			names = append(names, name)
		}
	}

	err = o.execute(ctx, st, names, rep, true)
	o.attachVideo(ctx, st, rep)
	if err != nil {
		return fail(err)
	}

	o.log.Info("pipeline run finished", "workflow_id", id, "paused_at", rep.PausedAt, "stages", len(rep.Results))
	return rep, nil
}

// RunStep regenerates one step of an existing workflow from its approved
// upstream data and commits it without consulting the gate.
func (o *Orchestrator) RunStep(ctx context.Context, workflowID string, step schemas.StepName) (*Report, error) {
	ctx, span := o.tracer.Start(ctx, "pipeline.run_step", trace.WithAttributes(
		attribute.String("workflow.id", workflowID),
		attribute.String("workflow.step", string(step)),
	))
	defer span.End()

	names, ok := stepStages[step]
	if !ok {
		return nil, &workflow.NotFoundError{Kind: "step", ID: string(step)}
	}

	w, err := o.machine.Get(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if w.IsClosed() {
		return nil, workflow.ErrWorkflowClosed
	}
	if i := step.Index(); i > 0 && step != schemas.StepUpload {
		prev := w.Step(schemas.StepOrder[i-1])
		if prev.Status != schemas.StepApproved {
			return nil, &workflow.PreconditionError{Step: prev.Name, Status: prev.Status}
		}
	}

	rep := &Report{WorkflowID: w.ID, Topic: w.Topic}
	st := stages.NewState(w.ID, w.Topic, o.opts.OutputDir)
	st.TopTopics = o.topTopics(ctx)
	for _, s := range w.Steps {
		if s.Name.Index() >= step.Index() || s.Data == nil {
			continue
		}
		st.Put(s.Data)
		if v, ok := s.Data.(*schemas.VideoData); ok && v.ThumbnailPath != "" {
			st.Put(&schemas.ThumbnailData{Path: v.ThumbnailPath})
		}
	}

	var present []schemas.StageName
	for _, name := range names {
		if o.registry.Has(name) {
			present = append(present, name)
		}
	}

	err = o.execute(ctx, st, present, rep, false)
	o.attachVideo(ctx, st, rep)
	if err != nil {
		rep.Err = err
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return rep, err
	}
	return rep, nil
}

// RunMany runs independent workflows concurrently, at most limit at a time.
// In strict mode the first failure cancels the remaining runs. Reports are
// returned in topic order together with every run error joined.
func (o *Orchestrator) RunMany(ctx context.Context, topics []string, limit int) ([]*Report, error) {
	reports := make([]*Report, len(topics))

	var g *errgroup.Group
	gctx := ctx
	if o.opts.Mode == Strict {
		g, gctx = errgroup.WithContext(ctx)
	} else {
		g = &errgroup.Group{}
	}
	if limit > 0 {
		g.SetLimit(limit)
	}

	for i, topic := range topics {
		i, topic := i, topic
		g.Go(func() error {
			rep, err := o.Run(gctx, Request{Topic: topic})
			reports[i] = rep
			if o.opts.Mode == Strict {
				return err
			}
			return nil
		})
	}
	_ = g.Wait()

	var errs []error
	for i, rep := range reports {
		if rep != nil && rep.Err != nil {
			errs = append(errs, fmt.Errorf("topic %q: %w", topics[i], rep.Err))
		}
	}
	return reports, errors.Join(errs...)
}

// execute runs names in order against st. gated runs pass every committed
// step through the gate and stop before upload unless publishing is enabled.
func (o *Orchestrator) execute(ctx context.Context, st *stages.State, names []schemas.StageName, rep *Report, gated bool) error {
	results := make(map[schemas.StepName][]schemas.StageResult)

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return err
		}
		if name == schemas.StageUpload {
			if gated && !o.opts.Publish {
				rep.PausedAt = schemas.StepUpload
				return nil
			}
			if err := o.machine.CheckUploadReady(ctx, st.WorkflowID); err != nil {
				return err
			}
		}

		ex, err := o.registry.Get(name)
		if err != nil {
			return err
		}
		res := o.runStage(ctx, ex, st)
		rep.Results = append(rep.Results, res)
		if res.Usable() {
			st.Put(res.Payload)
		}

		step, owned := ownerSteps[name]
		if owned {
			results[step] = append(results[step], res)
		}

		if !res.Succeeded() {
			if o.halts(res) {
				if owned {
					o.recordFailure(ctx, st.WorkflowID, step, res)
				}
				return &StageError{Stage: name, Outcome: res.Outcome, Reason: res.Reason}
			}
			if res.Outcome == schemas.OutcomeFailed && owned {
				o.recordFailure(ctx, st.WorkflowID, step, res)
			}
		}

		if name == schemas.StageAnalytics && res.Usable() {
			if data, ok := res.Payload.(*schemas.AnalyticsData); ok {
				if err := o.feedback.Record(ctx, data); err != nil {
					o.log.Warn("feedback not recorded", "workflow_id", st.WorkflowID, "error", err)
				}
			}
		}

		commit, ok := commitSteps[name]
		if !ok {
			continue
		}
		decision, err := o.commit(ctx, st, commit, results[commit], gated)
		if err != nil {
			return err
		}
		switch decision {
		case Reject:
			return fmt.Errorf("%w: %s", ErrRejected, commit)
		case Defer:
			rep.PausedAt = commit
			return nil
		}
	}
	return nil
}

// halts reports whether res stops the run. Analytics never does, and a
// publish skipped for missing credentials is not a failure.
func (o *Orchestrator) halts(res schemas.StageResult) bool {
	if o.opts.Mode != Strict || res.Succeeded() || res.Stage == schemas.StageAnalytics {
		return false
	}
	if up, ok := res.Payload.(*schemas.UploadData); ok && up.Unauthorized {
		return false
	}
	return true
}

// commit stores the step built from results and asks the gate about it
func (o *Orchestrator) commit(ctx context.Context, st *stages.State, step schemas.StepName, results []schemas.StageResult, gated bool) (Decision, error) {
	id := st.WorkflowID
	if step == schemas.StepUpload {
		up := st.Upload()
		if up != nil && up.Published {
			if err := o.machine.FinalizeUpload(ctx, id, up); err != nil {
				return Defer, err
			}
			return Approve, nil
		}
		if up != nil && up.Unauthorized {
			o.recordFailure(ctx, id, step, lastResult(results))
		}
		return Approve, nil
	}

	payload := stepPayload(st, step)
	if payload == nil {
		// nothing usable to commit; the failure is already recorded on the step
		o.log.Warn("step not committed", "workflow_id", id, "step", step)
		return Defer, nil
	}

	combined := combine(step, payload, results)
	var opts []workflow.CompleteOption
	if combined.Outcome == schemas.OutcomeFallback {
		opts = append(opts, workflow.AsFallback(combined.Reason))
	}
	superseded := o.storedVideo(ctx, id, step)
	if err := o.machine.CompleteStep(ctx, id, step, payload, opts...); err != nil {
		return Defer, err
	}
	if v, ok := payload.(*schemas.VideoData); superseded != "" && (!ok || v.VideoID != superseded) {
		o.discardVideo(ctx, id, superseded)
	}
	if !gated {
		return Approve, nil
	}

	decision := o.gate.Review(ctx, id, step, combined)
	o.log.Info("gate decision", "workflow_id", id, "step", step, "decision", decision.String(), "outcome", combined.Outcome)
	switch decision {
	case Approve:
		if _, err := o.machine.ApproveStep(ctx, id, step); err != nil {
			return Defer, err
		}
	case Reject:
		if err := o.machine.RejectStep(ctx, id, step); err != nil {
			return Defer, err
		}
	}
	return decision, nil
}

// storedVideo returns the id of the video a commit of step replaces, either
// directly or through the reset of later steps. Empty when there is none.
func (o *Orchestrator) storedVideo(ctx context.Context, id string, step schemas.StepName) string {
	if o.videos == nil || step.Index() > schemas.StepVideo.Index() {
		return ""
	}
	w, err := o.machine.Get(ctx, id)
	if err != nil {
		return ""
	}
	if s := w.Step(schemas.StepVideo); s != nil {
		if v, ok := s.Data.(*schemas.VideoData); ok {
			return v.VideoID
		}
	}
	return ""
}

// discardVideo deletes a stored video no step refers to any more
func (o *Orchestrator) discardVideo(ctx context.Context, workflowID, videoID string) {
	deleted, err := o.videos.DeleteVideo(ctx, videoID)
	if err != nil {
		o.log.Warn("superseded video not deleted", "workflow_id", workflowID, "video_id", videoID, "error", err)
		return
	}
	if deleted {
		o.log.Info("superseded video deleted", "workflow_id", workflowID, "video_id", videoID)
	}
}

// stepPayload returns the payload stored on step
func stepPayload(st *stages.State, step schemas.StepName) schemas.Payload {
	switch step {
	case schemas.StepResearch:
		if p := st.Research(); p != nil {
			return p
		}
	case schemas.StepScript:
		if p := st.Script(); p != nil {
			return p
		}
	case schemas.StepMetadata:
		if p := st.Metadata(); p != nil {
			return p
		}
	case schemas.StepVideo:
		v := st.Video()
		if v == nil {
			return nil
		}
		cp := *v
		if th := st.Thumbnail(); th != nil && th.Path != "" {
			cp.ThumbnailPath = th.Path
		}
		if sub := st.Subtitles(); sub != nil && cp.SubtitlesPath == "" {
			cp.SubtitlesPath = sub.Path
		}
		return &cp
	}
	return nil
}

// combine folds the results of the stages behind a step into one result
// carrying the worst outcome
func combine(step schemas.StepName, payload schemas.Payload, results []schemas.StageResult) schemas.StageResult {
	out := schemas.StageResult{Stage: step.Stage(), Outcome: schemas.OutcomeOK, Payload: payload}
	var reasons []string
	for _, r := range results {
		out.Elapsed += r.Elapsed
		if r.Succeeded() {
			continue
		}
		if r.Outcome == schemas.OutcomeFailed || out.Outcome == schemas.OutcomeOK {
			out.Outcome = r.Outcome
		}
		reasons = append(reasons, fmt.Sprintf("%s: %s", r.Stage, r.Reason))
	}
	if out.Outcome == schemas.OutcomeFailed {
		// a payload exists, so a failed helper stage only degrades the step
		out.Outcome = schemas.OutcomeFallback
	}
	out.Reason = strings.Join(reasons, "; ")
	return out
}

func lastResult(results []schemas.StageResult) schemas.StageResult {
	if len(results) == 0 {
		return schemas.StageResult{}
	}
	return results[len(results)-1]
}

// runStage runs one executor inside its budget and a tracing span
func (o *Orchestrator) runStage(ctx context.Context, ex stages.Executor, st *stages.State) (res schemas.StageResult) {
	d := ex.Describe()
	ctx, span := o.tracer.Start(ctx, "stage."+string(d.Name), trace.WithAttributes(
		attribute.String("workflow.id", st.WorkflowID),
		attribute.String("stage.budget", string(d.Budget)),
	))
	defer span.End()

	if timeout := o.opts.Timeouts[d.Budget]; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			res = schemas.Failed(d.Name, fmt.Sprintf("panic: %v", r))
		}
		if res.Stage == "" {
			res.Stage = d.Name
		}
		res.Elapsed = time.Since(start)

		span.SetAttributes(attribute.String("stage.outcome", string(res.Outcome)))
		switch res.Outcome {
		case schemas.OutcomeOK:
			o.log.Info("stage finished", "workflow_id", st.WorkflowID, "stage", d.Name, "elapsed", res.Elapsed)
		case schemas.OutcomeFallback:
			o.log.Warn("stage fell back", "workflow_id", st.WorkflowID, "stage", d.Name, "reason", res.Reason)
		default:
			span.SetStatus(codes.Error, res.Reason)
			o.log.Error("stage failed", "workflow_id", st.WorkflowID, "stage", d.Name, "reason", res.Reason)
		}
	}()

	o.log.Debug("stage started", "workflow_id", st.WorkflowID, "stage", d.Name, "budget", d.Budget)
	return ex.Run(ctx, st)
}

func (o *Orchestrator) recordFailure(ctx context.Context, id string, step schemas.StepName, res schemas.StageResult) {
	reason := fmt.Sprintf("%s %s: %s", res.Stage, res.Outcome, res.Reason)
	if err := o.machine.RecordFailure(ctx, id, step, reason); err != nil {
		o.log.Warn("failure not recorded", "workflow_id", id, "step", step, "error", err)
	}
}

// detectTopic runs trend detection and returns the selected topic
func (o *Orchestrator) detectTopic(ctx context.Context, topTopics []string, rep *Report) (string, error) {
	ex, err := o.registry.Get(schemas.StageTrends)
	if err != nil {
		return "", ErrNoTopic
	}
	st := stages.NewState("", "", o.opts.OutputDir)
	st.TopTopics = topTopics

	res := o.runStage(ctx, ex, st)
	rep.Results = append(rep.Results, res)
	data, ok := res.Payload.(*schemas.TrendData)
	if !res.Usable() || !ok || strings.TrimSpace(data.Selected) == "" {
		return "", fmt.Errorf("%w: %s", ErrNoTopic, res.Reason)
	}
	o.log.Info("topic selected", "topic", data.Selected, "candidates", len(data.Trends))
	return data.Selected, nil
}

func (o *Orchestrator) topTopics(ctx context.Context) []string {
	fb, err := o.feedback.Latest(ctx)
	if err != nil {
		o.log.Warn("feedback unavailable", "error", err)
		return nil
	}
	if fb == nil {
		return nil
	}
	return fb.TopTopics
}

// attachVideo looks up the stored record of the run's video
func (o *Orchestrator) attachVideo(ctx context.Context, st *stages.State, rep *Report) {
	v := st.Video()
	if v == nil || o.videos == nil {
		return
	}
	rec, err := o.videos.GetVideoInfo(ctx, v.VideoID)
	if err != nil {
		o.log.Warn("video record unavailable", "video_id", v.VideoID, "error", err)
		return
	}
	rep.Video = rec
}
