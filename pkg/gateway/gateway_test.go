package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yaqith/yaqith/pkg/classify"
	"github.com/yaqith/yaqith/pkg/dispatch"
	"github.com/yaqith/yaqith/pkg/fusion"
	"github.com/yaqith/yaqith/pkg/store"
)

// stubClassifier returns a fixed verdict for its modality.
type stubClassifier struct {
	modality classify.Modality
	result   classify.Result
	err      error
	ready    bool
	calls    atomic.Int64
}

func (s *stubClassifier) Classify(ctx context.Context, input string) (classify.Result, error) {
	s.calls.Add(1)
	if s.err != nil {
		return classify.Result{}, s.err
	}
	return s.result, nil
}

func (s *stubClassifier) Modality() classify.Modality { return s.modality }
func (s *stubClassifier) Ready() bool                 { return s.ready }

// flakyStore fails audit writes a configurable number of times, and can
// simulate a dead backend for Ping.
type flakyStore struct {
	*store.MemoryStore
	scanFailures int32
	pingDown     bool
	scanCalls    atomic.Int64
}

func (f *flakyStore) RecordScan(ctx context.Context, sessionID string, modality classify.Modality, inputRef string, result classify.Result) error {
	f.scanCalls.Add(1)
	if atomic.AddInt32(&f.scanFailures, -1) >= 0 {
		return fmt.Errorf("%w: connection refused", store.ErrStorageUnavailable)
	}
	return f.MemoryStore.RecordScan(ctx, sessionID, modality, inputRef, result)
}

func (f *flakyStore) Ping(ctx context.Context) error {
	if f.pingDown {
		return store.ErrStorageUnavailable
	}
	return f.MemoryStore.Ping(ctx)
}

func newOrchestrator(st store.Store, classifiers []classify.Classifier, opts ...Option) *Orchestrator {
	d := dispatch.New(classifiers)
	opts = append([]Option{WithRetryBackoff(time.Millisecond)}, opts...)
	return New(st, d, fusion.NewEngine(), opts...)
}

func TestAnalyzeSingleModalityDangerous(t *testing.T) {
	st := store.NewMemoryStore()
	text := &stubClassifier{
		modality: classify.ModalityText,
		ready:    true,
		result:   classify.Result{Triggered: true, Confidence: 0.9, Reason: "Gift card payment request"},
	}
	o := newOrchestrator(st, []classify.Classifier{text})

	a, err := o.Analyze(context.Background(), AnalyzeRequest{SessionID: "s1", Text: "buy gift cards now"})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	if a.Decision != fusion.DecisionDangerous {
		t.Errorf("decision = %s, want dangerous", a.Decision)
	}
	if a.RiskScore != 0.9 {
		t.Errorf("risk = %v, want 0.9", a.RiskScore)
	}
	if a.Audit != AuditOK {
		t.Errorf("audit = %s, want ok", a.Audit)
	}
	if got := len(st.Scans("s1")); got != 1 {
		t.Errorf("got %d scan records, want 1", got)
	}
	attempts := st.Attempts("s1")
	if len(attempts) != 1 {
		t.Fatalf("got %d attempts, want 1", len(attempts))
	}
	if attempts[0].Source != store.SourceText {
		t.Errorf("attempt source = %s, want text", attempts[0].Source)
	}
	if attempts[0].Content != "buy gift cards now" {
		t.Errorf("attempt content = %q", attempts[0].Content)
	}
}

func TestAnalyzeUnavailableModalitySkipped(t *testing.T) {
	st := store.NewMemoryStore()
	text := &stubClassifier{modality: classify.ModalityText, ready: true, result: classify.Result{Confidence: 0.1}}
	logo := &stubClassifier{modality: classify.ModalityLogo, ready: false}
	o := newOrchestrator(st, []classify.Classifier{text, logo})

	a, err := o.Analyze(context.Background(), AnalyzeRequest{SessionID: "s1", Text: "hello", ImageRef: "logo.png"})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	if _, ok := a.Results[classify.ModalityLogo]; ok {
		t.Error("unavailable modality must not appear in results")
	}
	if _, ok := a.Results[classify.ModalityText]; !ok {
		t.Error("healthy modality missing from results")
	}
	if a.Decision != fusion.DecisionSafe {
		t.Errorf("decision = %s, want safe", a.Decision)
	}
}

func TestAnalyzeNoInputWritesNothing(t *testing.T) {
	st := store.NewMemoryStore()
	text := &stubClassifier{modality: classify.ModalityText, ready: true}
	o := newOrchestrator(st, []classify.Classifier{text})

	a, err := o.Analyze(context.Background(), AnalyzeRequest{SessionID: "s1"})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	if a.Decision != fusion.DecisionUnknown {
		t.Errorf("decision = %s, want unknown", a.Decision)
	}
	if a.RiskScore != 0.0 {
		t.Errorf("risk = %v, want 0.0", a.RiskScore)
	}
	if text.calls.Load() != 0 {
		t.Error("classifier ran without input")
	}
	if got := len(st.Scans("s1")); got != 0 {
		t.Errorf("got %d scan records, want 0", got)
	}
	if got := len(st.Attempts("s1")); got != 0 {
		t.Errorf("got %d attempts, want 0", got)
	}
}

func TestAnalyzeAllQuiet(t *testing.T) {
	st := store.NewMemoryStore()
	text := &stubClassifier{modality: classify.ModalityText, ready: true, result: classify.Result{Confidence: 0.1}}
	url := &stubClassifier{modality: classify.ModalityURL, ready: true, result: classify.Result{Confidence: 0.05}}
	o := newOrchestrator(st, []classify.Classifier{text, url})

	a, err := o.Analyze(context.Background(), AnalyzeRequest{SessionID: "s1", Text: "lunch at noon?", URL: "https://example.com"})
	if err != nil {
		t.Fatal(err)
	}

	if a.Decision != fusion.DecisionSafe {
		t.Errorf("decision = %s, want safe", a.Decision)
	}
	if a.Explanation != "No suspicious indicators detected across analyzed modalities." {
		t.Errorf("explanation = %q", a.Explanation)
	}
	if got := len(st.Attempts("s1")); got != 0 {
		t.Errorf("quiet scan recorded %d attempts", got)
	}
	if got := len(st.Scans("s1")); got != 2 {
		t.Errorf("got %d scan records, want 2", got)
	}
}

func TestAnalyzeCombinedAttempt(t *testing.T) {
	st := store.NewMemoryStore()
	text := &stubClassifier{modality: classify.ModalityText, ready: true, result: classify.Result{Triggered: true, Confidence: 0.4, Reason: "urgency"}}
	url := &stubClassifier{modality: classify.ModalityURL, ready: true, result: classify.Result{Triggered: true, Confidence: 0.5, Reason: "lookalike"}}
	o := newOrchestrator(st, []classify.Classifier{text, url}, WithCombinedAttempts(true))

	a, err := o.Analyze(context.Background(), AnalyzeRequest{SessionID: "s1", Text: "act now", URL: "http://paypa1.test"})
	if err != nil {
		t.Fatal(err)
	}
	if a.Decision != fusion.DecisionDangerous {
		t.Errorf("decision = %s, want dangerous", a.Decision)
	}

	attempts := st.Attempts("s1")
	if len(attempts) != 1 {
		t.Fatalf("got %d attempts, want 1 combined", len(attempts))
	}
	if attempts[0].Source != store.SourceCombined {
		t.Errorf("source = %s, want combined", attempts[0].Source)
	}
	if !strings.Contains(attempts[0].Content, "Text: act now") || !strings.Contains(attempts[0].Content, "Image: None") {
		t.Errorf("combined content = %q", attempts[0].Content)
	}
}

func TestAnalyzePerModalityAttempts(t *testing.T) {
	st := store.NewMemoryStore()
	text := &stubClassifier{modality: classify.ModalityText, ready: true, result: classify.Result{Triggered: true, Confidence: 0.6, Reason: "urgency"}}
	url := &stubClassifier{modality: classify.ModalityURL, ready: true, result: classify.Result{Triggered: false, Confidence: 0.1}}
	o := newOrchestrator(st, []classify.Classifier{text, url}, WithCombinedAttempts(false))

	if _, err := o.Analyze(context.Background(), AnalyzeRequest{SessionID: "s1", Text: "act now", URL: "https://example.com"}); err != nil {
		t.Fatal(err)
	}

	attempts := st.Attempts("s1")
	if len(attempts) != 1 {
		t.Fatalf("got %d attempts, want 1 (only triggered modality)", len(attempts))
	}
	if attempts[0].Source != store.SourceText {
		t.Errorf("source = %s, want text", attempts[0].Source)
	}
}

func TestAnalyzeInvalidIdentityRejected(t *testing.T) {
	st := store.NewMemoryStore()
	text := &stubClassifier{modality: classify.ModalityText, ready: true}
	o := newOrchestrator(st, []classify.Classifier{text})

	_, err := o.Analyze(context.Background(), AnalyzeRequest{SessionID: "  ", Text: "hello"})
	if !errors.Is(err, store.ErrInvalidIdentity) {
		t.Fatalf("got %v, want ErrInvalidIdentity", err)
	}
	if text.calls.Load() != 0 {
		t.Error("classifier ran despite invalid identity")
	}
}

func TestAnalyzeStorageFailurePartialSuccess(t *testing.T) {
	fs := &flakyStore{MemoryStore: store.NewMemoryStore(), scanFailures: 10}
	text := &stubClassifier{modality: classify.ModalityText, ready: true, result: classify.Result{Triggered: true, Confidence: 0.9, Reason: "lure"}}
	o := newOrchestrator(fs, []classify.Classifier{text})

	a, err := o.Analyze(context.Background(), AnalyzeRequest{SessionID: "s1", Text: "bad"})
	if err != nil {
		t.Fatalf("storage failure must not fail the request: %v", err)
	}

	if a.Decision != fusion.DecisionDangerous || a.RiskScore != 0.9 {
		t.Errorf("verdict lost on storage failure: %+v", a)
	}
	if a.Audit != AuditDegraded {
		t.Errorf("audit = %s, want degraded", a.Audit)
	}
	if a.AuditError == "" {
		t.Error("storage error not surfaced")
	}
	if fs.scanCalls.Load() != 2 {
		t.Errorf("scan write attempted %d times, want 2 (retry once)", fs.scanCalls.Load())
	}
}

func TestAnalyzeStorageFailureRetrySucceeds(t *testing.T) {
	fs := &flakyStore{MemoryStore: store.NewMemoryStore(), scanFailures: 1}
	text := &stubClassifier{modality: classify.ModalityText, ready: true, result: classify.Result{Confidence: 0.1}}
	o := newOrchestrator(fs, []classify.Classifier{text})

	a, err := o.Analyze(context.Background(), AnalyzeRequest{SessionID: "s1", Text: "hi"})
	if err != nil {
		t.Fatal(err)
	}
	if a.Audit != AuditOK {
		t.Errorf("audit = %s, want ok after successful retry", a.Audit)
	}
	if got := len(fs.Scans("s1")); got != 1 {
		t.Errorf("got %d scan records after retry, want 1", got)
	}
}

func TestChatComposesBotMessage(t *testing.T) {
	st := store.NewMemoryStore()
	cases := []struct {
		name   string
		result classify.Result
		want   string
	}{
		{"safe", classify.Result{Confidence: 0.1}, "✅ Everything looks good!"},
		{"suspicious", classify.Result{Triggered: true, Confidence: 0.5, Reason: "urgency cue"}, "⚠️ I've detected some concerning indicators."},
		{"dangerous", classify.Result{Triggered: true, Confidence: 0.95, Reason: "credential harvest"}, "🚨 Warning! This appears to be a phishing or fraud attempt."},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			text := &stubClassifier{modality: classify.ModalityText, ready: true, result: tc.result}
			o := newOrchestrator(st, []classify.Classifier{text})

			res, err := o.Chat(context.Background(), ChatRequest{SessionID: "chat-" + tc.name, Message: "check this"})
			if err != nil {
				t.Fatal(err)
			}
			if !strings.Contains(res.BotMessage, tc.want) {
				t.Errorf("bot message %q missing %q", res.BotMessage, tc.want)
			}
			if !strings.Contains(res.BotMessage, "Risk Score:") {
				t.Errorf("bot message missing risk score: %q", res.BotMessage)
			}
		})
	}
}

func TestChatRecordsTurn(t *testing.T) {
	st := store.NewMemoryStore()
	text := &stubClassifier{modality: classify.ModalityText, ready: true, result: classify.Result{Confidence: 0.1}}
	o := newOrchestrator(st, []classify.Classifier{text})

	res, err := o.Chat(context.Background(), ChatRequest{SessionID: "c1", Message: "is this safe?"})
	if err != nil {
		t.Fatal(err)
	}

	turns, err := st.ChatHistory(context.Background(), "c1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(turns) != 1 {
		t.Fatalf("got %d turns, want 1", len(turns))
	}
	if turns[0].UserMessage != "is this safe?" {
		t.Errorf("user message = %q", turns[0].UserMessage)
	}
	if turns[0].BotResponse != res.BotMessage {
		t.Error("recorded bot response differs from returned one")
	}
}

func TestHistoryCountMatchesReturnedTurns(t *testing.T) {
	st := store.NewMemoryStore()
	text := &stubClassifier{modality: classify.ModalityText, ready: true, result: classify.Result{Confidence: 0.1}}
	o := newOrchestrator(st, []classify.Classifier{text})

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := o.Chat(ctx, ChatRequest{SessionID: "h1", Message: fmt.Sprintf("m%d", i)}); err != nil {
			t.Fatal(err)
		}
		time.Sleep(2 * time.Millisecond)
	}

	h, err := o.History(ctx, "h1", 2)
	if err != nil {
		t.Fatal(err)
	}
	if h.Count != 2 || len(h.Turns) != 2 {
		t.Errorf("Count = %d, len = %d, want 2/2", h.Count, len(h.Turns))
	}
	if h.Turns[0].UserMessage != "m2" {
		t.Errorf("most recent turn first, got %q", h.Turns[0].UserMessage)
	}
}

func TestHealthStatuses(t *testing.T) {
	readyText := &stubClassifier{modality: classify.ModalityText, ready: true}
	coldLogo := &stubClassifier{modality: classify.ModalityLogo, ready: false}

	t.Run("healthy", func(t *testing.T) {
		o := newOrchestrator(store.NewMemoryStore(), []classify.Classifier{readyText})
		h := o.Health(context.Background())
		if h.Status != StatusHealthy || !h.Store {
			t.Errorf("got %+v, want healthy", h)
		}
		if !h.Models["text_agent"] {
			t.Errorf("models = %v", h.Models)
		}
	})

	t.Run("degraded_fallback", func(t *testing.T) {
		o := newOrchestrator(store.NewMemoryStore(), []classify.Classifier{readyText, coldLogo})
		h := o.Health(context.Background())
		if h.Status != StatusDegradedFallback {
			t.Errorf("status = %s, want degraded_fallback", h.Status)
		}
	})

	t.Run("degraded", func(t *testing.T) {
		fs := &flakyStore{MemoryStore: store.NewMemoryStore(), pingDown: true}
		o := newOrchestrator(fs, []classify.Classifier{readyText})
		h := o.Health(context.Background())
		if h.Status != StatusDegraded || h.Store {
			t.Errorf("got %+v, want degraded", h)
		}
	})
}
