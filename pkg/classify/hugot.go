package classify

// hugot.go - Local ML text classification using Hugot/ONNX
//
// Runs a fine-tuned phishing/scam detection model fully locally via ONNX
// Runtime, with a pure Go backend fallback when the runtime library is not
// installed. Gracefully degrades to nothing when no model directory exists;
// the heuristic layer in TextClassifier then carries the verdict alone.

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/options"
	"github.com/knights-analytics/hugot/pipelines"
)

// HugotTextModel wraps a Hugot text-classification pipeline behind a
// ready-or-absent interface.
type HugotTextModel struct {
	session  *hugot.Session
	pipeline *pipelines.TextClassificationPipeline
	mu       sync.RWMutex
	config   HugotConfig
	ready    bool
}

// HugotConfig configures the local ML layer.
type HugotConfig struct {
	// ModelPath is the local path to the ONNX model directory.
	ModelPath string

	// ModelName is the HuggingFace model name, used to download the model
	// when ModelPath does not exist yet.
	ModelName string

	// OnnxLibraryPath is the directory containing libonnxruntime.
	// Empty means use the pure Go backend.
	OnnxLibraryPath string

	// Timeout bounds a single inference call.
	Timeout time.Duration
}

// DefaultHugotConfig returns the stock configuration: a BERT-family scam
// classifier looked up under ./models, ONNX Runtime when present.
func DefaultHugotConfig() HugotConfig {
	return HugotConfig{
		ModelPath:       "./models/scam-detector",
		OnnxLibraryPath: defaultOnnxPath(),
		Timeout:         30 * time.Second,
	}
}

// NewHugotTextModel creates the ML layer, or returns nil when no model is
// available. Callers treat nil as "layer disabled".
func NewHugotTextModel(cfg HugotConfig) *HugotTextModel {
	if envPath := os.Getenv("YAQITH_TEXT_MODEL_PATH"); envPath != "" {
		cfg.ModelPath = envPath
	}
	if _, err := os.Stat(filepath.Join(cfg.ModelPath, "model.onnx")); err != nil {
		return nil
	}

	m := &HugotTextModel{config: cfg}
	if err := m.initialize(); err != nil {
		log.Printf("WARNING: text model initialization failed (graceful degradation): %v", err)
		return &HugotTextModel{config: cfg, ready: false}
	}
	return m
}

func (m *HugotTextModel) initialize() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, err := m.createSession()
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	m.session = session

	config := hugot.TextClassificationConfig{
		ModelPath: m.config.ModelPath,
		Name:      "phishing-text-detector",
	}

	pipeline, err := hugot.NewPipeline(session, config)
	if err != nil {
		_ = m.session.Destroy()
		return fmt.Errorf("failed to create pipeline: %w", err)
	}

	m.pipeline = pipeline
	m.ready = true
	log.Printf("text model initialized (model: %s)", m.config.ModelPath)
	return nil
}

// createSession prefers the ONNX Runtime backend and falls back to the
// pure Go backend when the runtime library is missing.
func (m *HugotTextModel) createSession() (*hugot.Session, error) {
	if m.config.OnnxLibraryPath != "" {
		session, err := hugot.NewORTSession(
			options.WithOnnxLibraryPath(m.config.OnnxLibraryPath),
		)
		if err == nil {
			log.Printf("text model using ONNX Runtime backend")
			return session, nil
		}
		log.Printf("ONNX Runtime unavailable, falling back to Go backend: %v", err)
	}

	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create Go session: %w", err)
	}
	log.Printf("text model using pure Go backend (slower, consider installing ONNX Runtime)")
	return session, nil
}

// Ready reports whether the pipeline is loaded.
func (m *HugotTextModel) Ready() bool {
	if m == nil {
		return false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ready
}

// Close releases the ONNX session.
func (m *HugotTextModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil
	}
	m.ready = false
	return m.session.Destroy()
}

// MLVerdict is the raw model output before adapter mapping.
type MLVerdict struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	IsThreat   bool    `json:"is_threat"`
}

// isThreatLabel maps model-specific label conventions onto one flag.
// Scam/phishing models on the hub disagree on naming: "phishing" vs
// "LABEL_1" vs "scam" vs "spam".
func isThreatLabel(label string) bool {
	switch label {
	case "phishing", "scam", "spam", "fraud", "malicious", "LABEL_1":
		return true
	default:
		return false
	}
}

// Classify runs a single inference. Returns an error when not ready; the
// caller treats that as "layer absent", never as a request failure.
func (m *HugotTextModel) Classify(ctx context.Context, text string) (*MLVerdict, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.ready || m.pipeline == nil {
		return nil, fmt.Errorf("text model not ready")
	}

	result, err := m.pipeline.RunPipeline([]string{text})
	if err != nil {
		return nil, fmt.Errorf("classification failed: %w", err)
	}

	if len(result.ClassificationOutputs) == 0 || len(result.ClassificationOutputs[0]) == 0 {
		return nil, fmt.Errorf("model returned no output")
	}

	out := result.ClassificationOutputs[0][0]
	return &MLVerdict{
		Label:      out.Label,
		Confidence: float64(out.Score),
		IsThreat:   isThreatLabel(out.Label),
	}, nil
}

// defaultOnnxPath returns the ONNX Runtime library directory for the
// current platform, or "" when none is installed.
func defaultOnnxPath() string {
	paths := []string{
		"/usr/lib/libonnxruntime.so",
		"/usr/local/lib/libonnxruntime.so",
		"/opt/homebrew/lib/libonnxruntime.dylib",
		"/usr/local/lib/libonnxruntime.dylib",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return filepath.Dir(p)
		}
	}
	return ""
}
