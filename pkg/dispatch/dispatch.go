// Package dispatch fans a scan request out to the modality classifiers
// concurrently and joins their verdicts.
//
// An adapter that is absent, not ready, or fails with ErrUnavailable
// contributes nothing to the joined result; the caller decides how to
// surface the degradation. A populated verdict cache short-circuits
// repeat classifications of identical inputs.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/yaqith/yaqith/pkg/classify"
	"github.com/yaqith/yaqith/pkg/httputil"
)

// DefaultAdapterTimeout bounds a single classifier call. Slow adapters
// degrade to unavailable rather than stalling the whole scan.
const DefaultAdapterTimeout = 10 * time.Second

// Inputs carries the raw material for one scan. Empty fields mean the
// modality was not supplied and is skipped entirely.
type Inputs struct {
	Text string
	Logo string
	URL  string
}

// IsEmpty reports whether no modality was supplied at all.
func (in Inputs) IsEmpty() bool {
	return strings.TrimSpace(in.Text) == "" &&
		strings.TrimSpace(in.Logo) == "" &&
		strings.TrimSpace(in.URL) == ""
}

func (in Inputs) forModality(m classify.Modality) string {
	switch m {
	case classify.ModalityText:
		return in.Text
	case classify.ModalityLogo:
		return in.Logo
	case classify.ModalityURL:
		return in.URL
	}
	return ""
}

// Outcome is the joined verdict set for one scan. Unavailable lists the
// modalities that had input but no working adapter.
type Outcome struct {
	Results     map[classify.Modality]classify.Result
	Unavailable map[classify.Modality]error
}

// Dispatcher routes scan inputs to registered classifiers.
type Dispatcher struct {
	classifiers map[classify.Modality]classify.Classifier
	cache       *VerdictCache
	timeout     time.Duration
	sem         *httputil.Semaphore
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithCache attaches a verdict cache. A nil cache is a no-op.
func WithCache(cache *VerdictCache) Option {
	return func(d *Dispatcher) { d.cache = cache }
}

// WithAdapterTimeout overrides the per-classifier deadline.
func WithAdapterTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// WithConcurrencyLimit bounds in-flight classifier calls across all
// requests.
func WithConcurrencyLimit(n int) Option {
	return func(d *Dispatcher) { d.sem = httputil.NewSemaphore(n) }
}

// New builds a dispatcher over the given classifiers. Nil classifiers
// are ignored so callers can pass optional adapters straight through.
func New(classifiers []classify.Classifier, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		classifiers: make(map[classify.Modality]classify.Classifier),
		timeout:     DefaultAdapterTimeout,
		sem:         httputil.NewSemaphore(64),
	}
	for _, c := range classifiers {
		if c == nil {
			continue
		}
		d.classifiers[c.Modality()] = c
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Modalities returns the modalities with a registered adapter.
func (d *Dispatcher) Modalities() []classify.Modality {
	out := make([]classify.Modality, 0, len(d.classifiers))
	for m := range d.classifiers {
		out = append(out, m)
	}
	return out
}

// Ready reports per-modality adapter readiness, for health reporting.
func (d *Dispatcher) Ready() map[classify.Modality]bool {
	out := make(map[classify.Modality]bool, len(d.classifiers))
	for m, c := range d.classifiers {
		out[m] = c.Ready()
	}
	return out
}

// Dispatch runs every supplied modality concurrently and joins the
// verdicts. Only adapters with non-empty input run; each gets its own
// deadline so one slow adapter cannot hold the others hostage.
func (d *Dispatcher) Dispatch(ctx context.Context, in Inputs) Outcome {
	out := Outcome{
		Results:     make(map[classify.Modality]classify.Result),
		Unavailable: make(map[classify.Modality]error),
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)

	for modality, classifier := range d.classifiers {
		input := strings.TrimSpace(in.forModality(modality))
		if input == "" {
			continue
		}

		if !classifier.Ready() {
			// Goroutines for earlier modalities may already be writing
			// this map; take the lock here too.
			mu.Lock()
			out.Unavailable[modality] = fmt.Errorf("%w: %s adapter not configured", classify.ErrUnavailable, modality)
			mu.Unlock()
			continue
		}

		wg.Add(1)
		go func(m classify.Modality, c classify.Classifier, input string) {
			defer wg.Done()

			if cached, ok := d.cache.Get(ctx, m, input); ok {
				mu.Lock()
				out.Results[m] = cached
				mu.Unlock()
				return
			}

			if err := d.sem.Acquire(ctx); err != nil {
				mu.Lock()
				out.Unavailable[m] = fmt.Errorf("%w: %s adapter: %v", classify.ErrUnavailable, m, err)
				mu.Unlock()
				return
			}
			defer d.sem.Release()

			callCtx, cancel := context.WithTimeout(ctx, d.timeout)
			defer cancel()

			result, err := c.Classify(callCtx, input)
			if err != nil {
				if !errors.Is(err, classify.ErrUnavailable) {
					// Unexpected failures degrade the same way, but are
					// worth a log line.
					log.Printf("○ %s adapter failed: %v", m, err)
				}
				mu.Lock()
				out.Unavailable[m] = fmt.Errorf("%w: %s adapter: %v", classify.ErrUnavailable, m, err)
				mu.Unlock()
				return
			}

			d.cache.Put(ctx, m, input, result)

			mu.Lock()
			out.Results[m] = result
			mu.Unlock()
		}(modality, classifier, input)
	}

	wg.Wait()
	return out
}
