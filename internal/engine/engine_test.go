package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/wombat2006/wallbounce/internal/analyzer"
	"github.com/wombat2006/wallbounce/internal/config"
	"github.com/wombat2006/wallbounce/internal/llm"
	"github.com/wombat2006/wallbounce/internal/metrics"
	"github.com/wombat2006/wallbounce/internal/testutil"
)

// harshCritique scores above the revision threshold; mildCritique scores
// zero after the positive-indicator discount.
const (
	harshCritique = "The answer is incorrect: the retry loop never resets the backoff, which is a major bug. Error handling is missing for the timeout path, and the claim about idempotent writes is misleading. These flaws make the example unusable in production."
	mildCritique  = "The answer looks good overall: the examples are accurate and the structure is solid. No issues found beyond a stylistic nitpick."
)

func newTestEngine(inv llm.Invoker, cfg config.EngineConfig, opts ...Option) *Engine {
	return New(inv, analyzer.New(config.DefaultScoringConfig()), cfg, opts...)
}

// phaseOf recovers the phase from the prompt framing so mocks can dispatch
// without counting calls.
func phaseOf(prompt string) Phase {
	switch {
	case strings.HasPrefix(prompt, "You are reviewing"):
		return PhaseCritique
	case strings.Contains(prompt, "Reviewer critique:"):
		return PhaseRevise
	default:
		return PhasePropose
	}
}

func sameStrings(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestNew(t *testing.T) {
	eng := newTestEngine(&testutil.MockInvoker{}, testutil.NewMockEngineConfig())
	if eng == nil {
		t.Fatal("Expected engine to be created")
	}
	if eng.metrics != nil {
		t.Error("Expected no metrics collector without the option")
	}
}

func TestRun_ProposeCritiqueRevise(t *testing.T) {
	var calls []string
	inv := &testutil.MockInvoker{
		InvokeFunc: func(ctx context.Context, model, prompt string, opts llm.Options) (*llm.Result, error) {
			phase := phaseOf(prompt)
			calls = append(calls, model+":"+string(phase))
			content := map[Phase]string{
				PhasePropose:  "first draft",
				PhaseCritique: harshCritique,
				PhaseRevise:   "revised answer",
			}[phase]
			return &llm.Result{
				Content: content,
				Model:   model,
				Usage:   llm.Usage{PromptTokens: 6, CompletionTokens: 4, TotalTokens: 10},
				Cost:    0.25,
			}, nil
		},
	}
	eng := newTestEngine(inv, testutil.NewMockEngineConfig())

	result, err := eng.Run(context.Background(), Request{
		Query:  "How do I retry failed writes?",
		Models: []string{"model-a", "model-b"},
	})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !result.Success {
		t.Fatal("Expected a successful run")
	}
	if result.FinalResponse != "revised answer" {
		t.Errorf("Expected the revised answer as final response, got %q", result.FinalResponse)
	}
	if result.WallBounceCount != 3 {
		t.Errorf("Expected 3 bounces, got %d", result.WallBounceCount)
	}

	// The critic starts just past the proposer; revise returns to the
	// original candidate order.
	wantCalls := []string{"model-a:propose", "model-b:critique", "model-a:revise"}
	if !sameStrings(calls, wantCalls) {
		t.Errorf("Expected calls %v, got %v", wantCalls, calls)
	}

	if len(result.Rounds) != 3 {
		t.Fatalf("Expected 3 rounds, got %d", len(result.Rounds))
	}
	wantPhases := []Phase{PhasePropose, PhaseCritique, PhaseRevise}
	for i, round := range result.Rounds {
		if round.Phase != wantPhases[i] {
			t.Errorf("Round %d: expected phase %q, got %q", i, wantPhases[i], round.Phase)
		}
		if round.Iteration != i+1 {
			t.Errorf("Round %d: expected iteration %d, got %d", i, i+1, round.Iteration)
		}
		if !round.Success {
			t.Errorf("Round %d: expected success", i)
		}
	}

	if result.Score == nil {
		t.Fatal("Expected a critique score")
	}
	if !result.Score.RequiresRevision {
		t.Error("Expected the harsh critique to request revision")
	}

	md := result.Metadata
	if !sameStrings(md.ModelsUsed, []string{"model-a", "model-b"}) {
		t.Errorf("Expected models used [model-a model-b], got %v", md.ModelsUsed)
	}
	if !sameStrings(md.SuccessfulModels, []string{"model-a", "model-b"}) {
		t.Errorf("Expected both models successful, got %v", md.SuccessfulModels)
	}
	if len(md.FailedModels) != 0 {
		t.Errorf("Expected no failed models, got %v", md.FailedModels)
	}
	if md.Consensus != 1.0 {
		t.Errorf("Expected consensus 1.0, got %f", md.Consensus)
	}
	if md.TotalTokens != 30 {
		t.Errorf("Expected 30 total tokens, got %d", md.TotalTokens)
	}
	if md.TotalCost != 0.75 {
		t.Errorf("Expected total cost 0.75, got %f", md.TotalCost)
	}
	if md.Quality != QualityLow {
		t.Errorf("Expected quality %q for a critical-severity critique, got %q", QualityLow, md.Quality)
	}
	if md.ProcessingTime <= 0 {
		t.Error("Expected a positive processing time")
	}
}

func TestRun_FallbackOnProposeFailure(t *testing.T) {
	inv := &testutil.MockInvoker{
		InvokeFunc: func(ctx context.Context, model, prompt string, opts llm.Options) (*llm.Result, error) {
			if phaseOf(prompt) == PhaseCritique {
				return &llm.Result{Content: mildCritique, Model: model}, nil
			}
			if model == "model-a" {
				return nil, &llm.ProviderError{Model: model, Status: 503, Err: errors.New("upstream unavailable")}
			}
			return &llm.Result{Content: "answer from backup", Model: model}, nil
		},
	}
	eng := newTestEngine(inv, testutil.NewMockEngineConfig())

	result, err := eng.Run(context.Background(), Request{
		Query:  "q",
		Models: []string{"model-a", "model-b"},
	})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if result.FinalResponse != "answer from backup" {
		t.Errorf("Expected the backup answer, got %q", result.FinalResponse)
	}
	if result.WallBounceCount != 2 {
		t.Errorf("Expected 2 bounces, got %d", result.WallBounceCount)
	}

	// The failed first candidate still produces a recorded round inside the
	// same propose iteration.
	if len(result.Rounds) != 3 {
		t.Fatalf("Expected 3 rounds, got %d", len(result.Rounds))
	}
	if result.Rounds[0].Model != "model-a" || result.Rounds[0].Success {
		t.Errorf("Expected a failed model-a round first, got %+v", result.Rounds[0])
	}
	if result.Rounds[1].Model != "model-b" || !result.Rounds[1].Success {
		t.Errorf("Expected a successful model-b round second, got %+v", result.Rounds[1])
	}
	if result.Rounds[0].Iteration != 1 || result.Rounds[1].Iteration != 1 {
		t.Error("Expected both propose attempts to share iteration 1")
	}
	if result.Rounds[2].Phase != PhaseCritique || result.Rounds[2].Model != "model-a" {
		t.Errorf("Expected model-a to critique after rotation, got %+v", result.Rounds[2])
	}

	md := result.Metadata
	if !sameStrings(md.ModelsUsed, []string{"model-b", "model-a"}) {
		t.Errorf("Expected models used [model-b model-a], got %v", md.ModelsUsed)
	}
	// model-a failed propose but delivered the critique, so it counts as
	// successful, not failed.
	if !sameStrings(md.SuccessfulModels, []string{"model-a", "model-b"}) {
		t.Errorf("Expected both models successful, got %v", md.SuccessfulModels)
	}
	if len(md.FailedModels) != 0 {
		t.Errorf("Expected no failed models, got %v", md.FailedModels)
	}
	if md.Quality != QualityExcellent {
		t.Errorf("Expected quality %q for a mild critique, got %q", QualityExcellent, md.Quality)
	}
	if result.Score == nil || result.Score.RequiresRevision {
		t.Error("Expected a scored critique that does not request revision")
	}
}

func TestRun_AllProposeCandidatesFail(t *testing.T) {
	inv := &testutil.MockInvoker{
		InvokeFunc: func(ctx context.Context, model, prompt string, opts llm.Options) (*llm.Result, error) {
			return nil, &llm.ProviderError{Model: model, Status: 500, Err: errors.New("boom")}
		},
	}
	eng := newTestEngine(inv, testutil.NewMockEngineConfig())

	result, err := eng.Run(context.Background(), Request{
		Query:  "q",
		Models: []string{"model-a", "model-b"},
	})
	if !errors.Is(err, ErrNoProposal) {
		t.Fatalf("Expected ErrNoProposal, got: %v", err)
	}
	if result == nil {
		t.Fatal("Expected a structured result alongside the error")
	}
	if result.Success {
		t.Error("Expected an unsuccessful result")
	}
	if result.FinalResponse != "" {
		t.Errorf("Expected an empty final response, got %q", result.FinalResponse)
	}
	if result.WallBounceCount != 0 {
		t.Errorf("Expected 0 bounces, got %d", result.WallBounceCount)
	}
	if len(result.Rounds) != 2 {
		t.Fatalf("Expected 2 recorded rounds, got %d", len(result.Rounds))
	}
	for i, round := range result.Rounds {
		if round.Success {
			t.Errorf("Round %d: expected failure", i)
		}
	}
	md := result.Metadata
	if !sameStrings(md.FailedModels, []string{"model-a", "model-b"}) {
		t.Errorf("Expected both models failed, got %v", md.FailedModels)
	}
	if len(md.SuccessfulModels) != 0 {
		t.Errorf("Expected no successful models, got %v", md.SuccessfulModels)
	}
	if md.Consensus != 0 {
		t.Errorf("Expected consensus 0, got %f", md.Consensus)
	}
	if md.Quality != QualityLow {
		t.Errorf("Expected quality %q, got %q", QualityLow, md.Quality)
	}
}

func TestRun_PassBudgetSkipsRevise(t *testing.T) {
	reviseCalled := false
	inv := &testutil.MockInvoker{
		InvokeFunc: func(ctx context.Context, model, prompt string, opts llm.Options) (*llm.Result, error) {
			switch phaseOf(prompt) {
			case PhaseCritique:
				return &llm.Result{Content: harshCritique, Model: model}, nil
			case PhaseRevise:
				reviseCalled = true
				return &llm.Result{Content: "revised", Model: model}, nil
			default:
				return &llm.Result{Content: "draft", Model: model}, nil
			}
		},
	}
	eng := newTestEngine(inv, testutil.NewMockEngineConfig())

	// A per-request budget of two passes leaves no room for revise even
	// though the critique requests one.
	result, err := eng.Run(context.Background(), Request{
		Query:   "q",
		Models:  []string{"model-a", "model-b"},
		Options: Options{MaxBounces: 2},
	})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if reviseCalled {
		t.Error("Expected no revise call with the pass budget spent")
	}
	if result.WallBounceCount != 2 {
		t.Errorf("Expected 2 bounces, got %d", result.WallBounceCount)
	}
	if result.FinalResponse != "draft" {
		t.Errorf("Expected the proposal as final response, got %q", result.FinalResponse)
	}
	if result.Score == nil || !result.Score.RequiresRevision {
		t.Error("Expected the score to request revision even when the budget skips it")
	}
	if len(result.Rounds) != 2 {
		t.Errorf("Expected 2 rounds, got %d", len(result.Rounds))
	}
}

func TestRun_SinglePassSkipsCritique(t *testing.T) {
	inv := &testutil.MockInvoker{
		InvokeFunc: func(ctx context.Context, model, prompt string, opts llm.Options) (*llm.Result, error) {
			if phaseOf(prompt) != PhasePropose {
				t.Errorf("Expected only propose invocations, got prompt %q", prompt)
			}
			return &llm.Result{Content: "draft", Model: model}, nil
		},
	}
	eng := newTestEngine(inv, testutil.NewMockEngineConfig())

	result, err := eng.Run(context.Background(), Request{
		Query:   "q",
		Models:  []string{"model-a", "model-b"},
		Options: Options{MaxBounces: 1},
	})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if result.WallBounceCount != 1 {
		t.Errorf("Expected 1 bounce, got %d", result.WallBounceCount)
	}
	if result.Score != nil {
		t.Error("Expected no score without a critique phase")
	}
	if result.Metadata.Quality != QualityMedium {
		t.Errorf("Expected quality %q without a critique, got %q", QualityMedium, result.Metadata.Quality)
	}
	if result.FinalResponse != "draft" {
		t.Errorf("Expected the draft as final response, got %q", result.FinalResponse)
	}
}

func TestRun_CritiqueFailureFinishesWithProposal(t *testing.T) {
	inv := &testutil.MockInvoker{
		InvokeFunc: func(ctx context.Context, model, prompt string, opts llm.Options) (*llm.Result, error) {
			if phaseOf(prompt) == PhaseCritique {
				return nil, &llm.ProviderError{Model: model, Status: 429, Err: errors.New("rate limited")}
			}
			return &llm.Result{Content: "draft", Model: model}, nil
		},
	}
	eng := newTestEngine(inv, testutil.NewMockEngineConfig())

	result, err := eng.Run(context.Background(), Request{
		Query:  "q",
		Models: []string{"model-a", "model-b"},
	})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !result.Success {
		t.Fatal("Expected a successful run despite the critique failure")
	}
	if result.FinalResponse != "draft" {
		t.Errorf("Expected the proposal as final response, got %q", result.FinalResponse)
	}
	if result.WallBounceCount != 1 {
		t.Errorf("Expected 1 bounce, got %d", result.WallBounceCount)
	}
	if result.Score != nil {
		t.Error("Expected no score when every critique attempt failed")
	}
	if result.Metadata.Quality != QualityMedium {
		t.Errorf("Expected quality %q, got %q", QualityMedium, result.Metadata.Quality)
	}
	// One propose round plus two failed critique attempts.
	if len(result.Rounds) != 3 {
		t.Fatalf("Expected 3 rounds, got %d", len(result.Rounds))
	}
	if !sameStrings(result.Metadata.SuccessfulModels, []string{"model-a"}) {
		t.Errorf("Expected [model-a] successful, got %v", result.Metadata.SuccessfulModels)
	}
	if !sameStrings(result.Metadata.FailedModels, []string{"model-b"}) {
		t.Errorf("Expected [model-b] failed, got %v", result.Metadata.FailedModels)
	}
	if result.Metadata.Consensus != 0.5 {
		t.Errorf("Expected consensus 0.5, got %f", result.Metadata.Consensus)
	}
}

func TestRun_ReviseFailureKeepsProposal(t *testing.T) {
	inv := &testutil.MockInvoker{
		InvokeFunc: func(ctx context.Context, model, prompt string, opts llm.Options) (*llm.Result, error) {
			switch phaseOf(prompt) {
			case PhaseCritique:
				return &llm.Result{Content: harshCritique, Model: model}, nil
			case PhaseRevise:
				return nil, &llm.ProviderError{Model: model, Status: 500, Err: errors.New("boom")}
			default:
				return &llm.Result{Content: "draft", Model: model}, nil
			}
		},
	}
	eng := newTestEngine(inv, testutil.NewMockEngineConfig())

	result, err := eng.Run(context.Background(), Request{
		Query:  "q",
		Models: []string{"model-a", "model-b"},
	})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !result.Success {
		t.Fatal("Expected a successful run despite the revise failure")
	}
	if result.FinalResponse != "draft" {
		t.Errorf("Expected the proposal kept as final response, got %q", result.FinalResponse)
	}
	// Propose and critique completed; the failed revise never counts as a
	// bounce.
	if result.WallBounceCount != 2 {
		t.Errorf("Expected 2 bounces, got %d", result.WallBounceCount)
	}
	// Propose, critique, then a failed revise attempt per candidate.
	if len(result.Rounds) != 4 {
		t.Fatalf("Expected 4 rounds, got %d", len(result.Rounds))
	}
	if result.Rounds[2].Phase != PhaseRevise || result.Rounds[2].Success {
		t.Errorf("Expected a failed revise round, got %+v", result.Rounds[2])
	}
	if result.Score == nil || !result.Score.RequiresRevision {
		t.Error("Expected the score to still request revision")
	}
}

func TestRun_FanOutProposeUsesFastestSuccess(t *testing.T) {
	inv := &testutil.MockInvoker{
		InvokeFunc: func(ctx context.Context, model, prompt string, opts llm.Options) (*llm.Result, error) {
			if phaseOf(prompt) == PhaseCritique {
				return &llm.Result{Content: mildCritique, Model: model}, nil
			}
			switch model {
			case "model-a":
				return &llm.Result{Content: "answer from a", Model: model}, nil
			case "model-b":
				time.Sleep(50 * time.Millisecond)
				return &llm.Result{Content: "answer from b", Model: model}, nil
			default:
				// Never answers; the fan-out abandons it once the fan-in
				// minimum is met.
				<-ctx.Done()
				return nil, &llm.ProviderError{Model: model, Timeout: true, Err: ctx.Err()}
			}
		},
	}
	eng := newTestEngine(inv, testutil.NewMockEngineConfig())

	result, err := eng.Run(context.Background(), Request{
		Query:  "q",
		Models: []string{"model-a", "model-b", "model-c"},
	})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if result.FinalResponse != "answer from a" {
		t.Errorf("Expected the fastest success as proposal, got %q", result.FinalResponse)
	}
	if result.WallBounceCount != 2 {
		t.Errorf("Expected 2 bounces, got %d", result.WallBounceCount)
	}

	// Two collected propose attempts in candidate order, then the critique.
	// The straggler never lands a round.
	if len(result.Rounds) != 3 {
		t.Fatalf("Expected 3 rounds, got %d", len(result.Rounds))
	}
	if result.Rounds[0].Model != "model-a" || result.Rounds[1].Model != "model-b" {
		t.Errorf("Expected collected propose rounds in candidate order, got %s then %s",
			result.Rounds[0].Model, result.Rounds[1].Model)
	}
	if result.Rounds[2].Phase != PhaseCritique || result.Rounds[2].Model != "model-b" {
		t.Errorf("Expected model-b to critique after rotation, got %+v", result.Rounds[2])
	}

	md := result.Metadata
	if !sameStrings(md.ModelsAttempted, []string{"model-a", "model-b", "model-c"}) {
		t.Errorf("Expected all fan-out candidates attempted, got %v", md.ModelsAttempted)
	}
	if !sameStrings(md.SuccessfulModels, []string{"model-a", "model-b"}) {
		t.Errorf("Expected [model-a model-b] successful, got %v", md.SuccessfulModels)
	}
	// The abandoned candidate neither succeeded nor failed.
	if len(md.FailedModels) != 0 {
		t.Errorf("Expected no failed models, got %v", md.FailedModels)
	}
	want := float64(2) / float64(3)
	if md.Consensus != want {
		t.Errorf("Expected consensus %f, got %f", want, md.Consensus)
	}
}

func TestRun_FanOutProceedsWithSingleSuccess(t *testing.T) {
	inv := &testutil.MockInvoker{
		InvokeFunc: func(ctx context.Context, model, prompt string, opts llm.Options) (*llm.Result, error) {
			if phaseOf(prompt) == PhaseCritique {
				return &llm.Result{Content: mildCritique, Model: model}, nil
			}
			if model == "model-a" {
				return &llm.Result{Content: "answer from a", Model: model}, nil
			}
			return nil, &llm.ProviderError{Model: model, Status: 500, Err: errors.New("boom")}
		},
	}
	eng := newTestEngine(inv, testutil.NewMockEngineConfig())

	result, err := eng.Run(context.Background(), Request{
		Query:  "q",
		Models: []string{"model-a", "model-b", "model-c"},
	})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !result.Success {
		t.Fatal("Expected the run to proceed below the fan-in minimum")
	}
	if result.FinalResponse != "answer from a" {
		t.Errorf("Expected the single success as proposal, got %q", result.FinalResponse)
	}
	// All three attempts returned, so all three land rounds.
	propose := 0
	for _, round := range result.Rounds {
		if round.Phase == PhasePropose {
			propose++
		}
	}
	if propose != 3 {
		t.Errorf("Expected 3 propose rounds, got %d", propose)
	}
	if result.WallBounceCount != 2 {
		t.Errorf("Expected 2 bounces, got %d", result.WallBounceCount)
	}
}

func TestRun_FanOutAllCandidatesFail(t *testing.T) {
	inv := &testutil.MockInvoker{
		InvokeFunc: func(ctx context.Context, model, prompt string, opts llm.Options) (*llm.Result, error) {
			return nil, &llm.ProviderError{Model: model, Status: 500, Err: errors.New("boom")}
		},
	}
	eng := newTestEngine(inv, testutil.NewMockEngineConfig())

	result, err := eng.Run(context.Background(), Request{
		Query:  "q",
		Models: []string{"model-a", "model-b", "model-c"},
	})
	if !errors.Is(err, ErrNoProposal) {
		t.Fatalf("Expected ErrNoProposal, got: %v", err)
	}
	if result.Success {
		t.Error("Expected an unsuccessful result")
	}
	if len(result.Rounds) != 3 {
		t.Errorf("Expected 3 recorded rounds, got %d", len(result.Rounds))
	}
	if !sameStrings(result.Metadata.FailedModels, []string{"model-a", "model-b", "model-c"}) {
		t.Errorf("Expected all candidates failed, got %v", result.Metadata.FailedModels)
	}
}

func TestRun_TimeoutTreatedAsAttemptFailure(t *testing.T) {
	cfg := testutil.NewMockEngineConfig()
	cfg.PhaseTimeout = 20 * time.Millisecond

	inv := &testutil.MockInvoker{
		InvokeFunc: func(ctx context.Context, model, prompt string, opts llm.Options) (*llm.Result, error) {
			if model == "model-a" {
				<-ctx.Done()
				return nil, &llm.ProviderError{Model: model, Timeout: true, Err: ctx.Err()}
			}
			return &llm.Result{Content: mildCritique, Model: model}, nil
		},
	}
	eng := newTestEngine(inv, cfg)

	result, err := eng.Run(context.Background(), Request{
		Query:  "q",
		Models: []string{"model-a", "model-b"},
	})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !result.Success {
		t.Fatal("Expected a successful run")
	}
	// model-a times out in propose and again as first critique candidate;
	// model-b covers both phases.
	if len(result.Rounds) != 4 {
		t.Fatalf("Expected 4 rounds, got %d", len(result.Rounds))
	}
	if result.Rounds[0].Success || result.Rounds[0].Model != "model-a" {
		t.Errorf("Expected a failed model-a propose round, got %+v", result.Rounds[0])
	}
	if result.Rounds[0].Latency < cfg.PhaseTimeout {
		t.Errorf("Expected the timed-out attempt to run the full phase budget, got %v", result.Rounds[0].Latency)
	}
	if result.Rounds[3].Phase != PhaseCritique || result.Rounds[3].Model != "model-b" {
		t.Errorf("Expected model-b to self-critique last, got %+v", result.Rounds[3])
	}
	if !sameStrings(result.Metadata.FailedModels, []string{"model-a"}) {
		t.Errorf("Expected [model-a] failed, got %v", result.Metadata.FailedModels)
	}
	if !sameStrings(result.Metadata.ModelsUsed, []string{"model-b"}) {
		t.Errorf("Expected only model-b used, got %v", result.Metadata.ModelsUsed)
	}
	if result.Metadata.Consensus != 0.5 {
		t.Errorf("Expected consensus 0.5, got %f", result.Metadata.Consensus)
	}
}

func TestRun_RecordsMetrics(t *testing.T) {
	cm, err := metrics.NewCollabMetrics()
	if err != nil {
		t.Fatalf("Expected no error creating metrics, got: %v", err)
	}
	inv := &testutil.MockInvoker{
		InvokeFunc: func(ctx context.Context, model, prompt string, opts llm.Options) (*llm.Result, error) {
			if phaseOf(prompt) == PhaseCritique {
				return &llm.Result{Content: mildCritique, Model: model}, nil
			}
			return &llm.Result{Content: "draft", Model: model}, nil
		},
	}
	eng := newTestEngine(inv, testutil.NewMockEngineConfig(), WithMetrics(cm))

	if _, err := eng.Run(context.Background(), Request{Query: "q", Models: []string{"model-a", "model-b"}}); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
}

func TestRotateAfter(t *testing.T) {
	tests := []struct {
		name   string
		models []string
		pivot  string
		want   []string
	}{
		{"middle pivot", []string{"a", "b", "c"}, "b", []string{"c", "a", "b"}},
		{"first pivot", []string{"a", "b", "c"}, "a", []string{"b", "c", "a"}},
		{"last pivot", []string{"a", "b", "c"}, "c", []string{"a", "b", "c"}},
		{"unknown pivot", []string{"a", "b", "c"}, "x", []string{"a", "b", "c"}},
		{"single model", []string{"a"}, "a", []string{"a"}},
	}
	for _, tt := range tests {
		if got := rotateAfter(tt.models, tt.pivot); !sameStrings(got, tt.want) {
			t.Errorf("%s: expected %v, got %v", tt.name, tt.want, got)
		}
	}
}

func TestQualityMapping(t *testing.T) {
	tests := []struct {
		severity analyzer.Severity
		want     string
	}{
		{analyzer.SeverityLow, QualityExcellent},
		{analyzer.SeverityMedium, QualityHigh},
		{analyzer.SeverityHigh, QualityMedium},
		{analyzer.SeverityCritical, QualityLow},
	}
	for _, tt := range tests {
		rs := newRunState()
		rs.score = &analyzer.Score{Severity: tt.severity}
		if got := rs.quality(true); got != tt.want {
			t.Errorf("Severity %q: expected quality %q, got %q", tt.severity, tt.want, got)
		}
	}

	rs := newRunState()
	if got := rs.quality(true); got != QualityMedium {
		t.Errorf("Expected quality %q without a score, got %q", QualityMedium, got)
	}
	if got := rs.quality(false); got != QualityLow {
		t.Errorf("Expected quality %q for a failed run, got %q", QualityLow, got)
	}
}
