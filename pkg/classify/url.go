package classify

import (
	"context"
	"net/url"
	"sort"
	"strings"

	"github.com/yaqith/yaqith/pkg/patterns"
)

// URLClassifier scores URLs with deterministic structural heuristics.
// It is always available: no model, no network - the URL string itself
// carries the evidence (host shape, TLD, path keywords, brand lookalikes).
type URLClassifier struct {
	registry *patterns.Registry

	triggerThreshold float64
}

// brandTargets are frequently impersonated domains checked for lookalike
// (edit distance 1-2) registrable names.
var brandTargets = []string{
	"paypal", "amazon", "apple", "microsoft", "google", "netflix",
	"facebook", "instagram", "whatsapp", "chase", "wellsfargo", "hsbc",
	"binance", "coinbase", "dhl", "fedex",
}

// NewURLClassifier creates the URL adapter.
func NewURLClassifier() *URLClassifier {
	return &URLClassifier{
		registry:         patterns.Get(),
		triggerThreshold: 0.5,
	}
}

func (u *URLClassifier) Modality() Modality { return ModalityURL }

func (u *URLClassifier) Ready() bool { return true }

// Classify scores one URL. Indicators combine noisy-OR style, same as the
// text heuristics: independent structural red flags compound.
func (u *URLClassifier) Classify(ctx context.Context, input string) (Result, error) {
	raw := strings.TrimSpace(input)
	normalized := Normalize(raw)

	// Strip standard ports before structural matching so ":443" does not
	// read as a non-standard-port signal.
	structural := strings.Replace(normalized, ":443/", "/", 1)
	structural = strings.Replace(structural, ":80/", "/", 1)
	structural = strings.TrimSuffix(structural, ":443")
	structural = strings.TrimSuffix(structural, ":80")

	type hit struct {
		severity    int
		description string
	}
	var hits []hit

	for _, m := range u.registry.MatchAll(structural, patterns.CategoryURLStructure) {
		hits = append(hits, hit{m.Severity, m.Description})
	}
	for _, m := range u.registry.MatchAll(normalized, patterns.CategoryURLKeyword) {
		// Path keywords alone are weak; they matter in combination.
		hits = append(hits, hit{m.Severity, m.Description})
	}

	if host := hostOf(raw); host != "" {
		if brand, ok := lookalikeBrand(host); ok {
			hits = append(hits, hit{85, "Lookalike domain imitating " + brand})
		}
		if strings.Count(host, ".") >= 4 {
			hits = append(hits, hit{40, "Excessive subdomain nesting"})
		}
	}

	if len(hits) == 0 {
		return Result{Triggered: false, Confidence: 0.05, Reason: "No suspicious URL structure"}, nil
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].severity > hits[j].severity })

	survival := 1.0
	for _, h := range hits {
		survival *= 1 - float64(h.severity)/100
	}
	score := clamp(1 - survival)

	reasons := make([]string, 0, 3)
	for i, h := range hits {
		if i == 3 {
			break
		}
		reasons = append(reasons, h.description)
	}

	return Result{
		Triggered:  score >= u.triggerThreshold,
		Confidence: score,
		Reason:     strings.Join(reasons, "; "),
	}, nil
}

// hostOf extracts the lowercase hostname, tolerating scheme-less input.
func hostOf(raw string) string {
	s := raw
	if !strings.Contains(s, "://") {
		s = "http://" + s
	}
	parsed, err := url.Parse(s)
	if err != nil {
		return ""
	}
	return strings.ToLower(parsed.Hostname())
}

// lookalikeBrand reports whether any registrable label of the host sits
// within edit distance 2 of a known brand - but is not the brand itself.
// "paypa1.com" and "amaz0n-support.net" hit; "paypal.com" does not.
func lookalikeBrand(host string) (string, bool) {
	labels := strings.Split(host, ".")
	for _, label := range labels {
		folded := Normalize(label)
		// Attackers pad lookalikes with hyphenated filler ("amaz0n-support").
		for _, part := range strings.Split(folded, "-") {
			for _, brand := range brandTargets {
				if part == brand {
					continue
				}
				if d := editDistance(part, brand); d > 0 && d <= distanceBudget(brand) {
					return brand, true
				}
			}
		}
	}
	return "", false
}

// distanceBudget scales the allowed edit distance with brand length so
// short names like "hsbc" do not match half the dictionary.
func distanceBudget(brand string) int {
	if len(brand) <= 5 {
		return 1
	}
	return 2
}

// editDistance is plain Levenshtein over two ASCII-folded labels.
func editDistance(a, b string) int {
	if a == b {
		return 0
	}
	la, lb := len(a), len(b)
	if la == 0 {
		return lb
	}
	if lb == 0 {
		return la
	}

	prev := make([]int, lb+1)
	curr := make([]int, lb+1)
	for j := 0; j <= lb; j++ {
		prev[j] = j
	}
	for i := 1; i <= la; i++ {
		curr[0] = i
		for j := 1; j <= lb; j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = minInt(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[lb]
}

func minInt(vals ...int) int {
	m := vals[0]
	for _, v := range vals[1:] {
		if v < m {
			m = v
		}
	}
	return m
}
