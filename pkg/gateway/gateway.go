// Package gateway orchestrates scans end to end: session bookkeeping,
// concurrent classification, fused decisions, and the audit trail.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/yaqith/yaqith/pkg/classify"
	"github.com/yaqith/yaqith/pkg/dispatch"
	"github.com/yaqith/yaqith/pkg/fusion"
	"github.com/yaqith/yaqith/pkg/store"
	"github.com/yaqith/yaqith/pkg/telemetry"
)

// AuditStatus reports whether the audit trail for a scan was written in
// full.
type AuditStatus string

const (
	AuditOK       AuditStatus = "ok"
	AuditDegraded AuditStatus = "degraded"
)

// Health status values.
const (
	StatusHealthy          = "healthy"
	StatusDegradedFallback = "degraded_fallback"
	StatusDegraded         = "degraded"
)

// writeRetryBackoff is the pause before the single retry of a failed
// audit write.
const writeRetryBackoff = 100 * time.Millisecond

// AnalyzeRequest carries the inputs for one scan. Empty fields mean the
// modality was not supplied.
type AnalyzeRequest struct {
	SessionID string `json:"session_id"`
	Text      string `json:"text,omitempty"`
	URL       string `json:"url,omitempty"`
	ImageRef  string `json:"image_ref,omitempty"`
}

// Analysis is the fused outcome of one scan.
type Analysis struct {
	SessionID   string                                `json:"session_id"`
	Results     map[classify.Modality]classify.Result `json:"results"`
	RiskScore   float64                               `json:"risk_score"`
	Decision    fusion.Decision                       `json:"final_decision"`
	Explanation string                                `json:"explanation"`
	Audit       AuditStatus                           `json:"audit"`
	AuditError  string                                `json:"audit_error,omitempty"`
}

// ChatRequest is a conversational message plus optional extra modalities.
type ChatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
	URL       string `json:"url,omitempty"`
	ImageRef  string `json:"image_ref,omitempty"`
}

// ChatResult pairs the templated bot reply with the underlying analysis.
type ChatResult struct {
	BotMessage string   `json:"message"`
	Analysis   Analysis `json:"analysis"`
}

// History is a page of recorded chat turns.
type History struct {
	Turns []store.ChatTurn `json:"history"`
	Count int              `json:"count"`
}

// Health reports component readiness.
type Health struct {
	Status string          `json:"status"`
	Models map[string]bool `json:"models_loaded"`
	Store  bool            `json:"database_connected"`
}

// Orchestrator wires the dispatcher, fusion engine, and audit store.
type Orchestrator struct {
	store      store.Store
	dispatcher *dispatch.Dispatcher
	engine     *fusion.Engine

	// CombinedAttempts folds a triggering multi-input scan into one
	// "combined" attempt row instead of one row per modality.
	combinedAttempts bool
	historyLimit     int
	backoff          time.Duration
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithCombinedAttempts controls attempt granularity for multi-input scans.
func WithCombinedAttempts(v bool) Option {
	return func(o *Orchestrator) { o.combinedAttempts = v }
}

// WithHistoryLimit sets the default page size for History.
func WithHistoryLimit(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.historyLimit = n
		}
	}
}

// WithRetryBackoff overrides the audit write retry pause. Used by tests.
func WithRetryBackoff(d time.Duration) Option {
	return func(o *Orchestrator) { o.backoff = d }
}

// New builds an Orchestrator.
func New(st store.Store, d *dispatch.Dispatcher, engine *fusion.Engine, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:            st,
		dispatcher:       d,
		engine:           engine,
		combinedAttempts: true,
		historyLimit:     50,
		backoff:          writeRetryBackoff,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Analyze runs the full scan pipeline. The fused verdict is always
// returned once classification ran; audit failures degrade the Audit
// status instead of failing the request.
func (o *Orchestrator) Analyze(ctx context.Context, req AnalyzeRequest) (Analysis, error) {
	if err := o.store.EnsureSession(ctx, req.SessionID); err != nil {
		if errors.Is(err, store.ErrInvalidIdentity) {
			return Analysis{}, err
		}
		// Storage outage at session setup: classify anyway, skip the
		// audit trail for this scan.
		outcome := o.dispatcher.Dispatch(ctx, inputsOf(req))
		fused := o.engine.Combine(outcome.Results)
		telemetry.GlobalClient.Track("scan_unaudited", map[string]interface{}{"decision": string(fused.Decision)})
		return analysisOf(req.SessionID, outcome, fused, AuditDegraded, err), nil
	}

	outcome := o.dispatcher.Dispatch(ctx, inputsOf(req))
	fused := o.engine.Combine(outcome.Results)

	var auditErr error
	record := func(op string, fn func(context.Context) error) {
		if err := o.writeWithRetry(ctx, fn); err != nil {
			log.Printf("○ audit write failed (%s): %v", op, err)
			if auditErr == nil {
				auditErr = err
			}
		}
	}

	for modality, result := range outcome.Results {
		m, r := modality, result
		record("scan", func(ctx context.Context) error {
			return o.store.RecordScan(ctx, req.SessionID, m, inputFor(req, m), r)
		})
	}

	if fused.Decision == fusion.DecisionSuspicious || fused.Decision == fusion.DecisionDangerous {
		o.recordAttempts(ctx, req, outcome, fused, record)
	}

	status := AuditOK
	if auditErr != nil {
		status = AuditDegraded
	}
	telemetry.GlobalClient.Track("scan", map[string]interface{}{
		"decision": string(fused.Decision),
		"audit":    string(status),
	})
	return analysisOf(req.SessionID, outcome, fused, status, auditErr), nil
}

// recordAttempts writes the phishing attempt rows for a triggering scan.
func (o *Orchestrator) recordAttempts(ctx context.Context, req AnalyzeRequest, outcome dispatch.Outcome, fused fusion.Fusion, record func(string, func(context.Context) error)) {
	if o.combinedAttempts && suppliedCount(req) > 1 {
		content := fmt.Sprintf("Text: %s, URL: %s, Image: %s",
			orNone(req.Text), orNone(req.URL), orNone(req.ImageRef))
		record("attempt", func(ctx context.Context) error {
			return o.store.RecordPhishingAttempt(ctx, req.SessionID, store.SourceCombined, content, fused.Explanation, fused.RiskScore)
		})
		return
	}

	for modality, result := range outcome.Results {
		if !result.Triggered {
			continue
		}
		m, r := modality, result
		record("attempt", func(ctx context.Context) error {
			return o.store.RecordPhishingAttempt(ctx, req.SessionID, attemptSource(m), inputFor(req, m), r.Reason, r.Confidence)
		})
	}
}

// Chat analyzes the message (plus optional URL and image), composes the
// templated bot reply, and records the turn.
func (o *Orchestrator) Chat(ctx context.Context, req ChatRequest) (ChatResult, error) {
	analysis, err := o.Analyze(ctx, AnalyzeRequest{
		SessionID: req.SessionID,
		Text:      req.Message,
		URL:       req.URL,
		ImageRef:  req.ImageRef,
	})
	if err != nil {
		return ChatResult{}, err
	}

	bot := botMessage(analysis)

	if err := o.writeWithRetry(ctx, func(ctx context.Context) error {
		return o.store.RecordChatTurn(ctx, req.SessionID, req.Message, bot)
	}); err != nil {
		log.Printf("○ audit write failed (chat turn): %v", err)
		analysis.Audit = AuditDegraded
		if analysis.AuditError == "" {
			analysis.AuditError = err.Error()
		}
	}

	return ChatResult{BotMessage: bot, Analysis: analysis}, nil
}

// botMessage renders the fixed per-decision prose, the explanation, and
// the percentage risk score.
func botMessage(a Analysis) string {
	var lead string
	switch a.Decision {
	case fusion.DecisionSafe:
		lead = "✅ Everything looks good! Your message appears to be safe."
	case fusion.DecisionSuspicious:
		lead = "⚠️ I've detected some concerning indicators. Please be cautious."
	case fusion.DecisionDangerous:
		lead = "🚨 Warning! This appears to be a phishing or fraud attempt. Do not proceed!"
	default:
		lead = "I could not analyze your message."
	}
	return fmt.Sprintf("%s\n\n%s\n\nRisk Score: %.0f%%", lead, a.Explanation, a.RiskScore*100)
}

// History returns recorded chat turns, most recent first. An empty
// sessionID spans all sessions.
func (o *Orchestrator) History(ctx context.Context, sessionID string, limit int) (History, error) {
	if limit <= 0 {
		limit = o.historyLimit
	}
	turns, err := o.store.ChatHistory(ctx, sessionID, limit)
	if err != nil {
		return History{}, err
	}
	return History{Turns: turns, Count: len(turns)}, nil
}

// Health probes classifier readiness and store liveness.
func (o *Orchestrator) Health(ctx context.Context) Health {
	ready := o.dispatcher.Ready()
	models := make(map[string]bool, len(ready))
	allModels := true
	for modality, ok := range ready {
		models[string(modality)+"_agent"] = ok
		if !ok {
			allModels = false
		}
	}

	storeUp := o.store.Ping(ctx) == nil

	status := StatusDegraded
	switch {
	case allModels && storeUp:
		status = StatusHealthy
	case storeUp:
		status = StatusDegradedFallback
	}

	return Health{Status: status, Models: models, Store: storeUp}
}

// writeWithRetry runs an audit write, retrying once after a short pause
// when storage reports an outage.
func (o *Orchestrator) writeWithRetry(ctx context.Context, fn func(context.Context) error) error {
	err := fn(ctx)
	if err == nil || !errors.Is(err, store.ErrStorageUnavailable) {
		return err
	}

	select {
	case <-time.After(o.backoff):
	case <-ctx.Done():
		return err
	}
	return fn(ctx)
}

func inputsOf(req AnalyzeRequest) dispatch.Inputs {
	return dispatch.Inputs{Text: req.Text, Logo: req.ImageRef, URL: req.URL}
}

func inputFor(req AnalyzeRequest, m classify.Modality) string {
	switch m {
	case classify.ModalityText:
		return req.Text
	case classify.ModalityLogo:
		return req.ImageRef
	case classify.ModalityURL:
		return req.URL
	}
	return ""
}

func analysisOf(sessionID string, outcome dispatch.Outcome, fused fusion.Fusion, status AuditStatus, auditErr error) Analysis {
	a := Analysis{
		SessionID:   sessionID,
		Results:     outcome.Results,
		RiskScore:   fused.RiskScore,
		Decision:    fused.Decision,
		Explanation: fused.Explanation,
		Audit:       status,
	}
	if auditErr != nil {
		a.AuditError = auditErr.Error()
	}
	return a
}

func attemptSource(m classify.Modality) store.AttemptSource {
	switch m {
	case classify.ModalityText:
		return store.SourceText
	case classify.ModalityLogo:
		return store.SourceLogo
	case classify.ModalityURL:
		return store.SourceURL
	}
	return store.SourceCombined
}

func suppliedCount(req AnalyzeRequest) int {
	n := 0
	for _, v := range []string{req.Text, req.URL, req.ImageRef} {
		if strings.TrimSpace(v) != "" {
			n++
		}
	}
	return n
}

func orNone(v string) string {
	if strings.TrimSpace(v) == "" {
		return "None"
	}
	return v
}
