// Package engine drives wall-bounce collaboration runs: a propose ->
// critique -> gate{revise|done} state machine across the configured model
// backends, with fallback-by-candidate inside every phase and concurrent
// fan-out for multi-model propose.
package engine

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wombat2006/wallbounce/internal/analyzer"
	"github.com/wombat2006/wallbounce/internal/config"
	"github.com/wombat2006/wallbounce/internal/llm"
	"github.com/wombat2006/wallbounce/internal/logger"
	"github.com/wombat2006/wallbounce/internal/metrics"
)

var log = logger.WithComponent("engine")

var tracer = otel.Tracer("wallbounce-engine")

// ErrNoProposal is returned when every candidate fails the propose phase.
// The structured result is still produced alongside it.
var ErrNoProposal = errors.New("engine: all propose candidates failed")

// Engine orchestrates collaboration runs. All collaborators arrive through
// the constructor; there is no hidden global state.
type Engine struct {
	invoker  llm.Invoker
	analyzer *analyzer.Analyzer
	cfg      config.EngineConfig
	metrics  *metrics.CollabMetrics
}

// Option configures optional engine collaborators
type Option func(*Engine)

// WithMetrics attaches a metrics collector to the engine
func WithMetrics(cm *metrics.CollabMetrics) Option {
	return func(e *Engine) {
		e.metrics = cm
	}
}

// New creates an Engine from its required collaborators
func New(inv llm.Invoker, an *analyzer.Analyzer, cfg config.EngineConfig, opts ...Option) *Engine {
	e := &Engine{
		invoker:  inv,
		analyzer: an,
		cfg:      cfg,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes one collaboration. Partial phase failures degrade to the best
// available output; only total propose unavailability returns an error, and
// even then the structured result carries the recorded rounds.
func (e *Engine) Run(ctx context.Context, req Request) (*Result, error) {
	started := time.Now()
	ctx, span := tracer.Start(ctx, "wallbounce.run")
	defer span.End()

	maxPasses := e.cfg.MaxPasses
	if req.Options.MaxBounces > 0 {
		maxPasses = req.Options.MaxBounces
	}
	minPasses := e.cfg.MinPasses
	if req.Options.MinBounces > 0 {
		minPasses = req.Options.MinBounces
	}

	span.SetAttributes(
		attribute.String("task.type", req.TaskType),
		attribute.Int("candidates", len(req.Models)),
		attribute.Int("max_passes", maxPasses),
	)

	if e.metrics != nil {
		e.metrics.RecordCollaborationStarted(ctx, req.TaskType)
	}

	log.WithFields(logrus.Fields{
		"task_type":  req.TaskType,
		"candidates": req.Models,
		"max_passes": maxPasses,
		"min_passes": minPasses,
	}).Info("Starting collaboration run")

	rs := newRunState()

	proposal, proposer, ok := e.propose(ctx, rs, req)
	if !ok {
		result := &Result{
			Success:         false,
			WallBounceCount: rs.bounces,
			Rounds:          rs.rounds,
			Metadata:        rs.metadata(time.Since(started), false),
		}
		span.RecordError(ErrNoProposal)
		if e.metrics != nil {
			e.metrics.RecordCollaborationFailed(ctx, req.TaskType, "provider_error")
		}
		return result, ErrNoProposal
	}
	rs.bounces++
	rs.noteUsed(proposer)
	final := proposal

	if rs.bounces < maxPasses {
		critique, critic, ok := e.critique(ctx, rs, req, proposer, proposal)
		if ok {
			rs.bounces++
			rs.noteUsed(critic)
			score := e.analyzer.Analyze(critique)
			rs.score = &score

			log.WithFields(logrus.Fields{
				"severity":          string(score.Severity),
				"final_score":       score.FinalScore,
				"requires_revision": score.RequiresRevision,
			}).Info("Scored critique")

			if score.RequiresRevision && rs.bounces < maxPasses {
				if revised, reviser, ok := e.revise(ctx, rs, req, proposal, critique); ok {
					rs.bounces++
					rs.noteUsed(reviser)
					final = revised
				} else {
					log.Warn("Revise failed on every candidate, keeping proposal")
				}
			}
		} else {
			// No critique available: skip severity analysis and finish
			// with the propose output.
			log.Warn("Critique failed on every candidate, skipping severity analysis")
		}
	}

	result := &Result{
		Success:         true,
		FinalResponse:   final,
		WallBounceCount: rs.bounces,
		Rounds:          rs.rounds,
		Score:           rs.score,
		Metadata:        rs.metadata(time.Since(started), true),
	}

	span.SetAttributes(
		attribute.Int("bounces", rs.bounces),
		attribute.String("quality", result.Metadata.Quality),
	)
	if e.metrics != nil {
		e.metrics.RecordCollaborationCompleted(ctx, req.TaskType, result.Metadata.Quality, rs.bounces)
	}

	log.WithFields(logrus.Fields{
		"bounces":    rs.bounces,
		"quality":    result.Metadata.Quality,
		"models":     result.Metadata.ModelsUsed,
		"elapsed_ms": time.Since(started).Milliseconds(),
	}).Info("Collaboration run finished")

	return result, nil
}

// propose runs the propose phase: concurrent fan-out when the request
// carries more candidates than the fan-in minimum, sequential fallback
// otherwise.
func (e *Engine) propose(ctx context.Context, rs *runState, req Request) (string, string, bool) {
	ctx, span := tracer.Start(ctx, "wallbounce.propose")
	defer span.End()

	prompt := proposePrompt(req)
	iteration := rs.bounces + 1

	if e.cfg.MinSuccesses > 0 && len(req.Models) > e.cfg.MinSuccesses {
		return e.proposeFanOut(ctx, rs, req.Models, prompt, iteration)
	}
	return e.invokeWithFallback(ctx, rs, PhasePropose, req.Models, prompt, iteration)
}

// critique runs the critique phase against candidates rotated to start just
// past the proposer, so the critic differs from the proposer whenever a
// second model exists.
func (e *Engine) critique(ctx context.Context, rs *runState, req Request, proposer, proposal string) (string, string, bool) {
	ctx, span := tracer.Start(ctx, "wallbounce.critique")
	defer span.End()

	candidates := rotateAfter(req.Models, proposer)
	prompt := critiquePrompt(req.Query, proposal)
	return e.invokeWithFallback(ctx, rs, PhaseCritique, candidates, prompt, rs.bounces+1)
}

// revise runs the revise phase in the original candidate order
func (e *Engine) revise(ctx context.Context, rs *runState, req Request, proposal, critique string) (string, string, bool) {
	ctx, span := tracer.Start(ctx, "wallbounce.revise")
	defer span.End()

	prompt := revisePrompt(req.Query, proposal, critique)
	return e.invokeWithFallback(ctx, rs, PhaseRevise, req.Models, prompt, rs.bounces+1)
}

// invokeWithFallback tries candidates in order until one succeeds, recording
// every attempt. Timeouts count as attempt failures, never run aborts.
func (e *Engine) invokeWithFallback(ctx context.Context, rs *runState, phase Phase, candidates []string, prompt string, iteration int) (string, string, bool) {
	for _, model := range candidates {
		if ctx.Err() != nil {
			break
		}
		res, err := e.invokeOnce(ctx, rs, phase, model, prompt, iteration)
		if err != nil {
			log.WithError(err).WithFields(logrus.Fields{
				"phase": string(phase),
				"model": model,
			}).Warn("Phase attempt failed, trying next candidate")
			continue
		}
		return res.Content, model, true
	}
	return "", "", false
}

// invokeOnce performs a single invocation bounded by the phase timeout and
// records the attempt.
func (e *Engine) invokeOnce(ctx context.Context, rs *runState, phase Phase, model, prompt string, iteration int) (*llm.Result, error) {
	cctx, cancel := context.WithTimeout(ctx, e.cfg.PhaseTimeout)
	defer cancel()

	started := time.Now()
	res, err := e.invoker.Invoke(cctx, model, prompt, llm.Options{})
	latency := time.Since(started)

	if e.metrics != nil {
		e.metrics.RecordInvocation(ctx, model, string(phase), latency, err == nil)
	}

	round := Round{
		Phase:     phase,
		Model:     model,
		Input:     prompt,
		Latency:   latency,
		Success:   err == nil,
		Iteration: iteration,
	}
	var usage llm.Usage
	var cost float64
	if err == nil {
		round.Output = res.Content
		usage = res.Usage
		cost = res.Cost
	}
	rs.record(round, usage, cost)
	return res, err
}

// fanAttempt is one candidate's outcome during concurrent propose
type fanAttempt struct {
	idx     int
	model   string
	res     *llm.Result
	err     error
	latency time.Duration
}

// proposeFanOut invokes every candidate concurrently and proceeds once the
// fan-in minimum of successes is met, every attempt has returned, or the
// phase budget lapses. Stragglers are abandoned: their results are never
// read and the shared context cancel tears them down. The fastest success
// becomes the proposal.
func (e *Engine) proposeFanOut(ctx context.Context, rs *runState, candidates []string, prompt string, iteration int) (string, string, bool) {
	fctx, cancel := context.WithTimeout(ctx, e.cfg.PhaseTimeout)
	defer cancel()

	results := make(chan fanAttempt, len(candidates))
	var wg sync.WaitGroup
	for i, model := range candidates {
		rs.noteAttempt(model)
		wg.Add(1)
		go func(idx int, model string) {
			defer wg.Done()
			started := time.Now()
			res, err := e.invoker.Invoke(fctx, model, prompt, llm.Options{})
			results <- fanAttempt{idx: idx, model: model, res: res, err: err, latency: time.Since(started)}
		}(i, model)
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	var collected []fanAttempt
	var winner *fanAttempt
	successes := 0

	draining := true
	for draining && successes < e.cfg.MinSuccesses {
		select {
		case fa, open := <-results:
			if !open {
				draining = false
				break
			}
			collected = append(collected, fa)
			if fa.err == nil {
				successes++
				if winner == nil {
					w := fa
					winner = &w
				}
			}
		case <-fctx.Done():
			draining = false
		}
	}

	// Deterministic round order: attempts land in candidate order no matter
	// how the fan-in interleaved.
	sort.SliceStable(collected, func(i, j int) bool {
		return collected[i].idx < collected[j].idx
	})
	for _, fa := range collected {
		round := Round{
			Phase:     PhasePropose,
			Model:     fa.model,
			Input:     prompt,
			Latency:   fa.latency,
			Success:   fa.err == nil,
			Iteration: iteration,
		}
		var usage llm.Usage
		var cost float64
		if fa.err == nil {
			round.Output = fa.res.Content
			usage = fa.res.Usage
			cost = fa.res.Cost
		} else {
			log.WithError(fa.err).WithField("model", fa.model).Warn("Fan-out attempt failed")
		}
		rs.record(round, usage, cost)
		if e.metrics != nil {
			e.metrics.RecordInvocation(ctx, fa.model, string(PhasePropose), fa.latency, fa.err == nil)
		}
	}

	if winner == nil {
		return "", "", false
	}

	log.WithFields(logrus.Fields{
		"winner":    winner.model,
		"successes": successes,
		"collected": len(collected),
		"fanout":    len(candidates),
	}).Info("Fan-out propose complete")

	return winner.res.Content, winner.model, true
}

// rotateAfter reorders candidates to begin just past the pivot; the pivot
// itself lands last as the self-critique fallback. An unknown pivot keeps
// the original order.
func rotateAfter(models []string, pivot string) []string {
	for i, m := range models {
		if m == pivot {
			out := make([]string, 0, len(models))
			out = append(out, models[i+1:]...)
			out = append(out, models[:i+1]...)
			return out
		}
	}
	return models
}

// runState accumulates rounds and accounting while a run progresses
type runState struct {
	bounces int
	rounds  []Round
	score   *analyzer.Score

	attempted []string
	seen      map[string]bool
	succeeded map[string]bool
	failed    map[string]bool
	used      []string
	usedSeen  map[string]bool

	totalCost   float64
	totalTokens int
}

func newRunState() *runState {
	return &runState{
		seen:      map[string]bool{},
		succeeded: map[string]bool{},
		failed:    map[string]bool{},
		usedSeen:  map[string]bool{},
	}
}

func (rs *runState) noteAttempt(model string) {
	if !rs.seen[model] {
		rs.seen[model] = true
		rs.attempted = append(rs.attempted, model)
	}
}

// noteUsed marks a model whose output flowed into the final response path
func (rs *runState) noteUsed(model string) {
	if !rs.usedSeen[model] {
		rs.usedSeen[model] = true
		rs.used = append(rs.used, model)
	}
}

func (rs *runState) record(round Round, usage llm.Usage, cost float64) {
	rs.rounds = append(rs.rounds, round)
	rs.noteAttempt(round.Model)
	if round.Success {
		rs.succeeded[round.Model] = true
	} else {
		rs.failed[round.Model] = true
	}
	rs.totalTokens += usage.TotalTokens
	rs.totalCost += cost
}

func (rs *runState) metadata(elapsed time.Duration, success bool) Metadata {
	var successful, failed []string
	for _, m := range rs.attempted {
		switch {
		case rs.succeeded[m]:
			successful = append(successful, m)
		case rs.failed[m]:
			failed = append(failed, m)
		}
	}

	consensus := 0.0
	if len(rs.attempted) > 0 {
		consensus = float64(len(successful)) / float64(len(rs.attempted))
	}

	return Metadata{
		ProcessingTime:   elapsed,
		ModelsUsed:       rs.used,
		ModelsAttempted:  rs.attempted,
		SuccessfulModels: successful,
		FailedModels:     failed,
		TotalCost:        rs.totalCost,
		TotalTokens:      rs.totalTokens,
		Quality:          rs.quality(success),
		Consensus:        consensus,
	}
}

// quality derives the aggregate estimate from the final critique severity:
// the milder the critique, the better the answer it reviewed.
func (rs *runState) quality(success bool) string {
	if !success {
		return QualityLow
	}
	if rs.score == nil {
		return QualityMedium
	}
	switch rs.score.Severity {
	case analyzer.SeverityLow:
		return QualityExcellent
	case analyzer.SeverityMedium:
		return QualityHigh
	case analyzer.SeverityHigh:
		return QualityMedium
	default:
		return QualityLow
	}
}
