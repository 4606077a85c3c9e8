// Package fusion combines per-modality classifier verdicts into a single
// calibrated risk score, categorical decision, and human-readable
// explanation.
package fusion

import (
	"fmt"
	"strings"

	"github.com/yaqith/yaqith/pkg/classify"
)

// Decision is the categorical outcome of a fused analysis.
type Decision string

const (
	DecisionUnknown    Decision = "unknown"
	DecisionSafe       Decision = "safe"
	DecisionSuspicious Decision = "suspicious"
	DecisionDangerous  Decision = "dangerous"
)

const (
	// DefaultSafeThreshold: risk below this is safe.
	DefaultSafeThreshold = 0.3
	// DefaultDangerThreshold: risk at or above this is dangerous.
	DefaultDangerThreshold = 0.7
)

const (
	noInputExplanation   = "No input provided for analysis."
	allClearExplanation  = "No suspicious indicators detected across analyzed modalities."
)

// explanationOrder fixes the modality priority for deterministic
// explanations: text first, then logo, then url.
var explanationOrder = []classify.Modality{
	classify.ModalityText,
	classify.ModalityLogo,
	classify.ModalityURL,
}

// Fusion is the combined outcome for one request.
type Fusion struct {
	RiskScore   float64  `json:"risk_score"`
	Decision    Decision `json:"final_decision"`
	Explanation string   `json:"explanation"`
}

// Engine fuses modality results with a noisy-OR rule. Each modality is an
// independent piece of evidence: the probability that none of several
// independent alarms is real shrinks multiplicatively, so risk rises - and
// never falls - as positive signals accumulate. Absent or neutral
// modalities contribute nothing and cannot dilute a strong positive,
// unlike an averaging rule.
type Engine struct {
	safeThreshold   float64
	dangerThreshold float64
}

// Option configures an Engine.
type Option func(*Engine)

// WithThresholds overrides the decision cut points. Inputs that would
// break the safe < dangerous ordering are ignored in favor of defaults.
func WithThresholds(safe, danger float64) Option {
	return func(e *Engine) {
		if safe > 0 && danger <= 1 && safe < danger {
			e.safeThreshold = safe
			e.dangerThreshold = danger
		}
	}
}

// NewEngine creates a fusion engine with default thresholds
// (safe < 0.3 ≤ suspicious < 0.7 ≤ dangerous).
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		safeThreshold:   DefaultSafeThreshold,
		dangerThreshold: DefaultDangerThreshold,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Combine fuses the dispatcher's result map (0..3 entries) into one
// verdict. An empty map means nothing was analyzable: decision unknown,
// zero risk.
func (e *Engine) Combine(results map[classify.Modality]classify.Result) Fusion {
	if len(results) == 0 {
		return Fusion{
			RiskScore:   0.0,
			Decision:    DecisionUnknown,
			Explanation: noInputExplanation,
		}
	}

	// noisy-OR: risk = 1 - Π(1 - c_i), where c_i is the clamped
	// confidence of a triggered modality and 0 otherwise.
	survival := 1.0
	for _, r := range results {
		if !r.Triggered {
			continue
		}
		survival *= 1 - clamp(r.Confidence)
	}
	risk := clamp(1 - survival)

	return Fusion{
		RiskScore:   risk,
		Decision:    e.decide(risk),
		Explanation: explain(results),
	}
}

// decide maps a risk score onto the categorical decision.
func (e *Engine) decide(risk float64) Decision {
	switch {
	case risk < e.safeThreshold:
		return DecisionSafe
	case risk < e.dangerThreshold:
		return DecisionSuspicious
	default:
		return DecisionDangerous
	}
}

// explain builds the deterministic explanation: triggered modalities'
// reasons in fixed priority order. Modalities present but not triggered
// are never mentioned. The all-clear sentence is reserved for scans
// where nothing triggered; a triggered modality that supplied no reason
// still gets a generic mention.
func explain(results map[classify.Modality]classify.Result) string {
	var parts []string
	for _, m := range explanationOrder {
		r, ok := results[m]
		if !ok || !r.Triggered {
			continue
		}
		reason := r.Reason
		if reason == "" {
			reason = fmt.Sprintf("%s analysis flagged this content.", m)
		}
		parts = append(parts, reason)
	}
	if len(parts) == 0 {
		return allClearExplanation
	}
	return strings.Join(parts, " ")
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
