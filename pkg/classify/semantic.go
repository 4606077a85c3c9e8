package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/yaqith/yaqith/pkg/httputil"
)

// SemanticMatcher catches paraphrased lures that slip past the regex
// registry by comparing messages against a seeded corpus of known scam
// phrasing in an in-memory vector store.
type SemanticMatcher struct {
	db         *chromem.DB
	collection *chromem.Collection
	threshold  float32
	mu         sync.RWMutex
	ready      bool
}

// SemanticMatch is the best-scoring corpus hit for a message.
type SemanticMatch struct {
	Score       float32 // Similarity (0.0-1.0)
	Category    string  // Lure category of the matched phrase
	MatchedText string  // The corpus phrase that matched
	IsThreat    bool    // True if score >= threshold
}

// lurePhrase is one seeded corpus entry.
type lurePhrase struct {
	text     string
	category string
}

// lureCorpus seeds the vector store. Kept deliberately short; the corpus
// exists for paraphrase recall, not coverage - coverage lives in the
// pattern registry.
var lureCorpus = []lurePhrase{
	{"we noticed a suspicious sign-in to your account, verify your identity immediately", "credential_harvest"},
	{"your account has been temporarily limited, restore full access by confirming your details", "credential_harvest"},
	{"please read me the six digit code we just texted you", "credential_harvest"},
	{"your package could not be delivered, pay the redelivery fee using this link", "payment_lure"},
	{"i need you to buy three gift cards and send me photos of the codes", "payment_lure"},
	{"congratulations, you have been selected to receive a cash prize, claim it now", "reward"},
	{"a late relative left unclaimed funds and you are listed as next of kin", "reward"},
	{"this is the fraud department of your bank, we need to move your money to a safe account", "impersonation"},
	{"i am your ceo, i need you to handle a confidential payment right away", "impersonation"},
	{"we have recording of you and will send it to your contacts unless you pay", "threat"},
	{"thanks for the update, the meeting is moved to three pm tomorrow", "benign"},
	{"your order has shipped and should arrive within two business days", "benign"},
	{"here are the notes from yesterday's standup, let me know if i missed anything", "benign"},
}

// NewSemanticMatcher creates a matcher backed by an Ollama embedding
// endpoint. The corpus must be loaded with LoadCorpus before matching.
func NewSemanticMatcher(ollamaURL string) (*SemanticMatcher, error) {
	db := chromem.NewDB()

	collection, err := db.CreateCollection("lure_corpus", nil, newOllamaEmbeddingFunc("embeddinggemma", ollamaURL))
	if err != nil {
		return nil, fmt.Errorf("failed to create collection: %w", err)
	}

	return &SemanticMatcher{
		db:         db,
		collection: collection,
		threshold:  0.70,
	}, nil
}

// newOllamaEmbeddingFunc builds a chromem embedding function against the
// Ollama /api/embeddings endpoint.
func newOllamaEmbeddingFunc(model, baseURL string) chromem.EmbeddingFunc {
	client := httputil.MediumClient()

	return func(ctx context.Context, text string) ([]float32, error) {
		reqBody := map[string]string{
			"model":  model,
			"prompt": text,
		}
		jsonData, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, "POST", baseURL+"/api/embeddings", bytes.NewBuffer(jsonData))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("request failed: %w", err)
		}
		defer httputil.DrainAndClose(resp.Body)

		if resp.StatusCode != http.StatusOK {
			body, _ := httputil.ReadErrorBody(resp.Body)
			return nil, fmt.Errorf("ollama embedding returned %d: %s", resp.StatusCode, string(body))
		}

		var result struct {
			Embedding []float32 `json:"embedding"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return nil, fmt.Errorf("failed to decode response: %w", err)
		}

		return result.Embedding, nil
	}
}

// LoadCorpus embeds the seeded lure corpus into the vector store. This is
// the call that actually requires the embedding backend to be up.
func (sm *SemanticMatcher) LoadCorpus(ctx context.Context) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	docs := make([]chromem.Document, len(lureCorpus))
	for i, p := range lureCorpus {
		docs[i] = chromem.Document{
			ID:      fmt.Sprintf("lure_%d", i),
			Content: p.text,
			Metadata: map[string]string{
				"category": p.category,
			},
		}
	}

	// Sequential add: embedding backends choke on parallel corpus loads.
	if err := sm.collection.AddDocuments(ctx, docs, 1); err != nil {
		return fmt.Errorf("failed to add corpus: %w", err)
	}

	sm.ready = true
	return nil
}

// Ready reports whether the corpus has been loaded.
func (sm *SemanticMatcher) Ready() bool {
	if sm == nil {
		return false
	}
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.ready
}

// Match returns the best corpus hit for a message, or a benign zero match.
func (sm *SemanticMatcher) Match(ctx context.Context, text string) (*SemanticMatch, error) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.ready {
		return nil, fmt.Errorf("semantic matcher not initialized - call LoadCorpus first")
	}

	results, err := sm.collection.Query(ctx, text, 3, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}

	if len(results) == 0 {
		return &SemanticMatch{Score: 0, Category: "benign"}, nil
	}

	best := results[0]
	category := best.Metadata["category"]

	// A confident benign match is a clean exit, not a weak threat.
	if category == "benign" && best.Similarity > sm.threshold {
		return &SemanticMatch{Score: 0, Category: "benign"}, nil
	}

	return &SemanticMatch{
		Score:       best.Similarity,
		Category:    category,
		MatchedText: best.Content,
		IsThreat:    best.Similarity >= sm.threshold && category != "benign",
	}, nil
}
