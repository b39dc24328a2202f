package engine

import (
	"time"

	"github.com/wombat2006/wallbounce/internal/analyzer"
)

// Phase names one step of the propose -> critique -> revise state machine
type Phase string

const (
	PhasePropose  Phase = "propose"
	PhaseCritique Phase = "critique"
	PhaseRevise   Phase = "revise"
)

// Quality labels for the aggregate result estimate
const (
	QualityLow       = "low"
	QualityMedium    = "medium"
	QualityHigh      = "high"
	QualityExcellent = "excellent"
)

// Options carries per-request tuning accepted alongside the query
type Options struct {
	Verbosity string
	Effort    string
	Reasoning string
	// MinBounces / MaxBounces override the configured pass bounds when
	// positive. MinBounces is recorded for accounting; propose and critique
	// always run while a backend is reachable and the max allows them.
	MinBounces int
	MaxBounces int
}

// Request is an accepted collaboration request. Immutable once accepted.
type Request struct {
	Query     string
	TaskType  string
	Models    []string
	Options   Options
	SessionID string
	UserID    string
}

// Round records one phase attempt against one model, success or failure.
// Rounds are appended in order and never mutated after creation.
type Round struct {
	Phase     Phase
	Model     string
	Input     string
	Output    string
	Latency   time.Duration
	Success   bool
	Iteration int
}

// Metadata aggregates accounting across a whole run
type Metadata struct {
	ProcessingTime   time.Duration
	ModelsUsed       []string
	ModelsAttempted  []string
	SuccessfulModels []string
	FailedModels     []string
	TotalCost        float64
	TotalTokens      int
	Quality          string
	Consensus        float64
}

// Result is the terminal outcome of one collaboration run. Partial phase
// failures degrade to the best available output instead of erroring; Success
// reflects whether a usable response was produced.
type Result struct {
	Success         bool
	FinalResponse   string
	WallBounceCount int
	Rounds          []Round
	Score           *analyzer.Score
	Metadata        Metadata
}
