// Package classify provides the per-modality phishing classifiers and the
// uniform adapter contract the dispatcher and fusion engine consume.
package classify

import (
	"context"
	"errors"
)

// Modality identifies one independently analyzed input channel.
type Modality string

const (
	ModalityText Modality = "text"
	ModalityLogo Modality = "logo"
	ModalityURL  Modality = "url"
)

// ErrUnavailable is returned by a classifier whose underlying model or
// backend cannot run. The dispatcher treats it as "no result for this
// modality", never as a request failure.
var ErrUnavailable = errors.New("classifier unavailable")

// Result is the uniform verdict shape every modality adapter maps its
// native output into. A neutral {false, low, ...} result is always a valid
// answer for benign content - adapters must not fail just because nothing
// suspicious was found.
type Result struct {
	Triggered  bool    `json:"triggered"`
	Confidence float64 `json:"confidence"` // 0.0-1.0
	Reason     string  `json:"reason"`
}

// Classifier is the adapter contract: one implementation per modality.
type Classifier interface {
	// Classify analyzes a single input and returns a verdict, or
	// ErrUnavailable when the underlying detector cannot run.
	Classify(ctx context.Context, input string) (Result, error)

	// Modality reports which input channel this adapter covers.
	Modality() Modality

	// Ready reports whether the underlying detector is loaded. Used by
	// health reporting; a not-ready classifier still satisfies the
	// contract by returning ErrUnavailable from Classify.
	Ready() bool
}

// clamp bounds a confidence value into [0,1]. Out-of-range values from an
// adapter are a data-integrity defect, not a fatal error.
func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
