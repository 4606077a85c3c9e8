package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/yaqith/yaqith/pkg/httputil"
)

// LogoClassifier delegates image/logo analysis to an external vision
// service over HTTP. The core never touches image bytes: the transport
// layer stores the upload and hands this adapter a filename reference,
// which the vision service resolves from shared storage.
//
// Unconfigured or unreachable service degrades to ErrUnavailable, so logo
// analysis silently drops out of fusion instead of failing requests.
type LogoClassifier struct {
	endpoint string
	token    string
	client   *http.Client
}

// NewLogoClassifier creates the logo adapter. An empty endpoint produces a
// permanently not-ready adapter.
func NewLogoClassifier(endpoint, token string) *LogoClassifier {
	if endpoint == "" {
		log.Println("○ logo classifier disabled (no vision service endpoint)")
	} else {
		log.Printf("✓ logo classifier enabled (vision service: %s)", endpoint)
	}
	return &LogoClassifier{
		endpoint: endpoint,
		token:    token,
		client:   httputil.SlowClient(),
	}
}

func (l *LogoClassifier) Modality() Modality { return ModalityLogo }

func (l *LogoClassifier) Ready() bool { return l.endpoint != "" }

// visionResponse is the vision service's native result shape. Its
// is_suspicious flag maps to the uniform Triggered at this boundary.
type visionResponse struct {
	IsSuspicious bool    `json:"is_suspicious"`
	Confidence   float64 `json:"confidence"`
	Reason       string  `json:"reason"`
}

// Classify sends the image reference to the vision service. Every failure
// mode here is ErrUnavailable: the caller must never see a logo-service
// outage as a request error.
func (l *LogoClassifier) Classify(ctx context.Context, imageRef string) (Result, error) {
	if l.endpoint == "" {
		return Result{}, ErrUnavailable
	}

	payload, err := json.Marshal(map[string]string{"image_ref": imageRef})
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", l.endpoint+"/classify/logo", bytes.NewReader(payload))
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if l.token != "" {
		req.Header.Set("Authorization", "Bearer "+l.token)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer httputil.DrainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		body, _ := httputil.ReadErrorBody(resp.Body)
		return Result{}, fmt.Errorf("%w: vision service returned %d: %s", ErrUnavailable, resp.StatusCode, string(body))
	}

	var vr visionResponse
	if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	reason := vr.Reason
	if reason == "" && vr.IsSuspicious {
		reason = "Logo does not match the legitimate brand mark"
	}
	if reason == "" {
		reason = "Logo appears legitimate"
	}

	return Result{
		Triggered:  vr.IsSuspicious,
		Confidence: clamp(vr.Confidence),
		Reason:     reason,
	}, nil
}
