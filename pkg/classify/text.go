package classify

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/yaqith/yaqith/pkg/patterns"
)

// TextClassifier analyzes free-text messages for fraud and phishing lures.
//
// Layered like the rest of the system: a heuristic pattern scorer that is
// always available, an optional local ML model (Hugot/ONNX), and an optional
// semantic similarity layer (chromem-go + embeddings). Optional layers
// degrade gracefully: a nil or not-ready layer is simply skipped.
type TextClassifier struct {
	hugot    *HugotTextModel   // Optional: requires ONNX model on disk
	semantic *SemanticMatcher  // Optional: requires embedding backend
	registry *patterns.Registry

	// triggerThreshold is the heuristic score above which the text is
	// reported as triggered (default: 0.5).
	triggerThreshold float64
}

// TextOption configures a TextClassifier.
type TextOption func(*TextClassifier)

// WithHugotModel attaches a local ML model layer.
func WithHugotModel(m *HugotTextModel) TextOption {
	return func(t *TextClassifier) { t.hugot = m }
}

// WithSemanticMatcher attaches a semantic similarity layer.
func WithSemanticMatcher(s *SemanticMatcher) TextOption {
	return func(t *TextClassifier) { t.semantic = s }
}

// WithTriggerThreshold overrides the heuristic trigger threshold.
func WithTriggerThreshold(v float64) TextOption {
	return func(t *TextClassifier) { t.triggerThreshold = clamp(v) }
}

// NewTextClassifier creates the text adapter. The heuristic layer is always
// present; ML and semantic layers are attached via options.
func NewTextClassifier(opts ...TextOption) *TextClassifier {
	t := &TextClassifier{
		registry:         patterns.Get(),
		triggerThreshold: 0.5,
	}
	for _, opt := range opts {
		opt(t)
	}

	if t.hugot != nil && t.hugot.Ready() {
		log.Println("✓ text classifier: local ML layer enabled")
	} else {
		log.Println("○ text classifier: local ML layer disabled (no model)")
	}
	if t.semantic != nil && t.semantic.Ready() {
		log.Println("✓ text classifier: semantic layer enabled")
	} else {
		log.Println("○ text classifier: semantic layer disabled")
	}

	return t
}

func (t *TextClassifier) Modality() Modality { return ModalityText }

// Ready is always true: the heuristic layer needs no external resources.
func (t *TextClassifier) Ready() bool { return true }

// Classify scores a message. The final verdict is the strongest of the
// enabled layers; a strong heuristic hit is never diluted by a quiet model.
func (t *TextClassifier) Classify(ctx context.Context, input string) (Result, error) {
	normalized := Normalize(input)

	result := t.heuristic(normalized)

	// Layer 2: local ML model, if loaded.
	if t.hugot != nil && t.hugot.Ready() {
		if ml, err := t.hugot.Classify(ctx, input); err == nil {
			if ml.IsThreat && clamp(ml.Confidence) > result.Confidence {
				result = Result{
					Triggered:  true,
					Confidence: clamp(ml.Confidence),
					Reason:     fmt.Sprintf("ML model classified message as %s", ml.Label),
				}
			}
		}
		// ML errors fall back to the heuristic verdict.
	}

	// Layer 3: semantic similarity against known lure phrasing.
	if t.semantic != nil && t.semantic.Ready() {
		if sem, err := t.semantic.Match(ctx, normalized); err == nil && sem != nil {
			conf := clamp(float64(sem.Score))
			if sem.IsThreat && conf > result.Confidence {
				result = Result{
					Triggered:  true,
					Confidence: conf,
					Reason:     fmt.Sprintf("Message closely resembles known %s lure", sem.Category),
				}
			}
		}
	}

	return result, nil
}

// heuristic runs the pattern registry over normalized text and converts
// matched severities into one confidence score. Severities combine
// noisy-OR style so several medium indicators escalate like one strong
// one, but a single weak match stays weak.
func (t *TextClassifier) heuristic(normalized string) Result {
	matches := t.registry.MatchAll(normalized, patterns.TextCategories()...)
	if len(matches) == 0 {
		return Result{Triggered: false, Confidence: 0.05, Reason: "No phishing indicators found"}
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Severity > matches[j].Severity
	})

	survival := 1.0
	for _, m := range matches {
		survival *= 1 - float64(m.Severity)/100
	}
	score := clamp(1 - survival)

	reasons := make([]string, 0, 3)
	for i, m := range matches {
		if i == 3 {
			break
		}
		reasons = append(reasons, m.Description)
	}

	return Result{
		Triggered:  score >= t.triggerThreshold,
		Confidence: score,
		Reason:     strings.Join(reasons, "; "),
	}
}
