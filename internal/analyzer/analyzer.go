// Package analyzer scores critique text produced during wall-bounce
// collaboration and decides whether a revision pass is worth running.
package analyzer

import (
	"strings"

	"github.com/wombat2006/wallbounce/internal/config"
)

// Severity labels a critique by how serious its findings are
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Severity ladder boundaries. The ladder is ordered, so a score sitting on
// a boundary takes the more severe label.
const (
	criticalBand = 25
	highBand     = 15
	mediumBand   = 5
)

// Adjustment reasons
const (
	AdjustPositiveIndicators = "positive_indicators"
	AdjustShortCritique      = "short_critique"
)

// Adjustment records one score adjustment that fired during analysis.
// Delta is the effective change after flooring at zero, so
// WeightedScore plus all deltas equals FinalScore (before the 100 cap).
type Adjustment struct {
	Reason string
	Delta  int
}

// Score is the outcome of analyzing one critique. Computed once, immutable.
type Score struct {
	CriticalCount int
	HighCount     int
	MediumCount   int
	LowCount      int
	PositiveCount int

	WeightedScore    int
	Adjustments      []Adjustment
	FinalScore       int
	Severity         Severity
	RequiresRevision bool
	Threshold        int
}

// Analyzer scores critiques against a configured keyword table. Analysis is
// deterministic: the same text and config always produce the same Score.
type Analyzer struct {
	cfg config.ScoringConfig
}

// New creates an Analyzer with the given scoring table
func New(cfg config.ScoringConfig) *Analyzer {
	return &Analyzer{cfg: cfg}
}

// Analyze scores the critique text using the configured revision threshold
func (a *Analyzer) Analyze(text string) Score {
	return a.AnalyzeWithThreshold(text, a.cfg.RevisionThreshold)
}

// AnalyzeWithThreshold scores the critique text against an explicit revision
// threshold. It never fails; empty input scores 0.
func (a *Analyzer) AnalyzeWithThreshold(text string, threshold int) Score {
	lowered := strings.ToLower(text)

	score := Score{
		CriticalCount: countKeywords(lowered, a.cfg.CriticalKeywords),
		HighCount:     countKeywords(lowered, a.cfg.HighKeywords),
		MediumCount:   countKeywords(lowered, a.cfg.MediumKeywords),
		LowCount:      countKeywords(lowered, a.cfg.LowKeywords),
		PositiveCount: countKeywords(lowered, a.cfg.PositiveKeywords),
		Threshold:     threshold,
	}

	score.WeightedScore = score.CriticalCount*a.cfg.CriticalWeight +
		score.HighCount*a.cfg.HighWeight +
		score.MediumCount*a.cfg.MediumWeight +
		score.LowCount*a.cfg.LowWeight

	running := score.WeightedScore

	// Both reductions may fire on the same critique; each floors at zero.
	if score.PositiveCount >= a.cfg.PositiveThreshold {
		floored := max(0, running-a.cfg.PositiveReduction)
		score.Adjustments = append(score.Adjustments, Adjustment{
			Reason: AdjustPositiveIndicators,
			Delta:  floored - running,
		})
		running = floored
	}

	if len(text) < a.cfg.ShortTextChars {
		floored := max(0, running-a.cfg.ShortTextReduction)
		score.Adjustments = append(score.Adjustments, Adjustment{
			Reason: AdjustShortCritique,
			Delta:  floored - running,
		})
		running = floored
	}

	if running > 100 {
		running = 100
	}
	score.FinalScore = running

	switch {
	case score.FinalScore >= criticalBand:
		score.Severity = SeverityCritical
	case score.FinalScore >= highBand:
		score.Severity = SeverityHigh
	case score.FinalScore >= mediumBand:
		score.Severity = SeverityMedium
	default:
		score.Severity = SeverityLow
	}

	score.RequiresRevision = score.FinalScore >= threshold
	return score
}

// countKeywords counts substring occurrences of every keyword in the
// lower-cased text. Unknown words contribute nothing.
func countKeywords(lowered string, keywords []string) int {
	total := 0
	for _, kw := range keywords {
		kw = strings.ToLower(kw)
		if kw == "" {
			continue
		}
		total += strings.Count(lowered, kw)
	}
	return total
}
