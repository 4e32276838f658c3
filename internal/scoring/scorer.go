// Package scoring turns an incident context into a threat likelihood in
// [0,1] with a human-readable rationale. Scorers are pure and safe for
// concurrent use; swapping in a trained model is a matter of implementing
// the Scorer interface.
package scoring

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/0tSystemsPublicRepos/mirage/internal/config"
)

// IncidentContext is built deterministically from a threat event plus
// rollup statistics, so scorer behavior is reproducible.
type IncidentContext struct {
	ThreatType string
	SourceIP   string
	Severity   string

	// RepeatCount is the number of earlier triggers from the same source
	// inside the trailing window.
	RepeatCount int
	// RecentIncidents is the total incident count in the trailing window.
	RecentIncidents int
	// DistinctSources is the distinct source count in the trailing window.
	DistinctSources int
}

// Scorer maps an incident context to (score in [0,1], rationale).
// Implementations must be side-effect-free and reentrant.
type Scorer interface {
	Score(ctx IncidentContext) (float64, string)
}

// Weights is an immutable scoring snapshot. Retraining replaces the whole
// snapshot rather than mutating it in place.
type Weights struct {
	BaseScores     map[string]float64
	RepeatStep     float64
	RepeatCap      int
	SurgeStep      float64
	SurgeThreshold int
}

// HeuristicScorer scores from a base-score table with adjustments for
// repeated triggers and source surges.
type HeuristicScorer struct {
	weights atomic.Pointer[Weights]
}

func NewHeuristicScorer(cfg *config.ScoringConfig) *HeuristicScorer {
	base := make(map[string]float64, len(cfg.BaseScores))
	for k, v := range cfg.BaseScores {
		base[strings.ToLower(k)] = v
	}

	s := &HeuristicScorer{}
	s.weights.Store(&Weights{
		BaseScores:     base,
		RepeatStep:     cfg.RepeatStep,
		RepeatCap:      cfg.RepeatCap,
		SurgeStep:      cfg.SurgeStep,
		SurgeThreshold: cfg.SurgeThreshold,
	})
	return s
}

// Retrain swaps the scoring snapshot. In-flight Score calls keep the
// snapshot they loaded.
func (s *HeuristicScorer) Retrain(w Weights) {
	s.weights.Store(&w)
}

// Score never fails: unknown or empty threat types degrade to 0.5 with a
// rationale explaining the degradation.
func (s *HeuristicScorer) Score(ctx IncidentContext) (float64, string) {
	w := s.weights.Load()

	threatType := strings.ToLower(strings.TrimSpace(ctx.ThreatType))
	base, known := w.BaseScores[threatType]
	if threatType == "" || !known {
		return 0.5, "unclassified"
	}

	score := base
	var factors []string

	if ctx.RepeatCount > 0 {
		repeats := ctx.RepeatCount
		if repeats > w.RepeatCap {
			repeats = w.RepeatCap
		}
		score += w.RepeatStep * float64(repeats)
		factors = append(factors, fmt.Sprintf("repeated triggers from source: %d", ctx.RepeatCount))
	}

	if ctx.DistinctSources >= w.SurgeThreshold && w.SurgeThreshold > 0 {
		score += w.SurgeStep
		factors = append(factors, fmt.Sprintf("source surge: %d distinct sources", ctx.DistinctSources))
	}

	score = clamp(score)

	rationale := fmt.Sprintf("threat level %s (%.2f): base %.2f for %s",
		severityLabel(score), score, base, threatType)
	if len(factors) > 0 {
		rationale += "; " + strings.Join(factors, "; ")
	}

	return score, rationale
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// severityLabel maps a score to the label the notification rules key on.
func severityLabel(score float64) string {
	switch {
	case score >= 0.85:
		return "critical"
	case score >= 0.65:
		return "high"
	case score >= 0.35:
		return "medium"
	case score >= 0.15:
		return "low"
	default:
		return "none"
	}
}

// SeverityLabel is the exported form used by collaborators that grade a
// score the same way the scorer does.
func SeverityLabel(score float64) string { return severityLabel(score) }
