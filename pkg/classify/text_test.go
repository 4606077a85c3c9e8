package classify

import (
	"context"
	"strings"
	"testing"
)

func TestTextClassifierPhishingPhrases(t *testing.T) {
	tc := NewTextClassifier()
	ctx := context.Background()

	cases := []struct {
		name  string
		input string
	}{
		{"account suspension", "Your account will be suspended unless you verify your account today"},
		{"gift cards", "Please buy some gift cards and send me the codes"},
		{"otp relay", "Can you share the OTP you just received?"},
		{"prize claim", "Congratulations! You have won. Claim your prize here"},
		{"credential request", "Enter your password and card number to continue"},
		{"tech support", "Your computer has been infected, call our support number immediately"},
	}

	for _, tc2 := range cases {
		t.Run(tc2.name, func(t *testing.T) {
			r, err := tc.Classify(ctx, tc2.input)
			if err != nil {
				t.Fatalf("Classify failed: %v", err)
			}
			if !r.Triggered {
				t.Errorf("%q should trigger, got confidence %.2f (%s)", tc2.input, r.Confidence, r.Reason)
			}
			if r.Reason == "" {
				t.Error("triggered result must carry a reason")
			}
		})
	}
}

func TestTextClassifierBenign(t *testing.T) {
	tc := NewTextClassifier()
	ctx := context.Background()

	cases := []string{
		"See you at lunch tomorrow around noon",
		"The quarterly report is attached, let me know if you have questions",
		"Happy birthday! Hope you have a great day",
	}

	for _, input := range cases {
		r, err := tc.Classify(ctx, input)
		if err != nil {
			t.Fatalf("Classify failed: %v", err)
		}
		if r.Triggered {
			t.Errorf("%q should not trigger, got %.2f (%s)", input, r.Confidence, r.Reason)
		}
		if r.Confidence < 0 || r.Confidence > 1 {
			t.Errorf("confidence out of range: %v", r.Confidence)
		}
	}
}

func TestTextClassifierCompoundIndicatorsEscalate(t *testing.T) {
	tc := NewTextClassifier()
	ctx := context.Background()

	weak, err := tc.Classify(ctx, "There is an outstanding invoice on your file")
	if err != nil {
		t.Fatal(err)
	}
	strong, err := tc.Classify(ctx, "Final notice: there is an outstanding invoice, verify your account now or your account will be suspended")
	if err != nil {
		t.Fatal(err)
	}

	if strong.Confidence <= weak.Confidence {
		t.Errorf("stacked indicators should escalate: weak %.2f, strong %.2f", weak.Confidence, strong.Confidence)
	}
	if !strong.Triggered {
		t.Error("stacked indicators should trigger")
	}
}

func TestTextClassifierHomoglyphObfuscation(t *testing.T) {
	tc := NewTextClassifier()
	ctx := context.Background()

	// Cyrillic е/о in "verify" and "account".
	obfuscated := "Vеrify yоur аccоunt immediately"
	r, err := tc.Classify(ctx, obfuscated)
	if err != nil {
		t.Fatal(err)
	}
	if !r.Triggered {
		t.Errorf("homoglyph obfuscation should not evade detection, got %.2f (%s)", r.Confidence, r.Reason)
	}
}

func TestTextClassifierAlwaysReady(t *testing.T) {
	tc := NewTextClassifier()
	if !tc.Ready() {
		t.Error("heuristic text classifier must always be ready")
	}
	if tc.Modality() != ModalityText {
		t.Errorf("modality = %s", tc.Modality())
	}
}

func TestNormalize(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"Hello World", "hello world"},
		{"vеrify", "verify"},        // Cyrillic е
		{"ｐａｙｐａｌ", "paypal"},        // fullwidth forms
		{"ver​ify", "verify"},  // zero-width space
		{"vérify", "verify"},        // combining accent
	}
	for _, c := range cases {
		if got := Normalize(c.in); got != c.want {
			t.Errorf("Normalize(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{"Vеrify yоur аccоunt", "plain ascii", "ｐａｙｐａｌ.com"}
	for _, in := range inputs {
		once := Normalize(in)
		if twice := Normalize(once); twice != once {
			t.Errorf("Normalize not idempotent for %q: %q vs %q", in, once, twice)
		}
	}
}

func TestTriggerThresholdOption(t *testing.T) {
	strict := NewTextClassifier(WithTriggerThreshold(0.95))
	r, err := strict.Classify(context.Background(), "There is an outstanding invoice on your file")
	if err != nil {
		t.Fatal(err)
	}
	if r.Triggered {
		t.Errorf("single weak indicator should not clear a 0.95 threshold, got %.2f", r.Confidence)
	}

	lax := NewTextClassifier(WithTriggerThreshold(0.1))
	r, err = lax.Classify(context.Background(), "There is an outstanding invoice on your file")
	if err != nil {
		t.Fatal(err)
	}
	if !r.Triggered {
		t.Error("weak indicator should clear a 0.1 threshold")
	}
}

func TestReasonListsStrongestFirst(t *testing.T) {
	tc := NewTextClassifier()
	r, err := tc.Classify(context.Background(), "Share the OTP now, there is an outstanding invoice")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(r.Reason, "OTP relay request") {
		t.Errorf("strongest indicator should lead the reason, got %q", r.Reason)
	}
}
