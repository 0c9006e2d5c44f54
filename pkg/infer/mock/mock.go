// Package mock provides a scripted [infer.Engine] for tests.
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/emberhill/turnsense/pkg/infer"
)

// Engine is a test double that returns scripted probabilities and records
// every Predict call. Safe for concurrent use.
type Engine struct {
	mu sync.Mutex

	// Probabilities is consumed one value per Predict call; when exhausted,
	// the last value repeats. Defaults to 0.5 when empty.
	Probabilities []float32

	// Err, when non-nil, is returned by every Predict call.
	Err error

	// Delay, when set, is how long Predict blocks before returning
	// (cancellable via ctx).
	Delay func(ctx context.Context) error

	calls    int
	features [][]float32
}

// Compile-time assertion that Engine satisfies infer.Engine.
var _ infer.Engine = (*Engine)(nil)

// Predict returns the next scripted probability, recording the call.
func (e *Engine) Predict(ctx context.Context, features []float32) (float32, error) {
	if len(features) != infer.FeatureLength {
		return 0, fmt.Errorf("%w (got %d)", infer.ErrBadShape, len(features))
	}
	if e.Delay != nil {
		if err := e.Delay(ctx); err != nil {
			return 0, err
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	recorded := make([]float32, len(features))
	copy(recorded, features)
	e.features = append(e.features, recorded)

	idx := e.calls
	e.calls++

	if e.Err != nil {
		return 0, e.Err
	}
	if len(e.Probabilities) == 0 {
		return 0.5, nil
	}
	if idx >= len(e.Probabilities) {
		idx = len(e.Probabilities) - 1
	}
	return e.Probabilities[idx], nil
}

// Close is a no-op.
func (e *Engine) Close() error { return nil }

// Calls returns how many Predict calls were made, including ones that
// returned Err.
func (e *Engine) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// LastFeatures returns the tensor passed to the most recent Predict call,
// or nil when none occurred.
func (e *Engine) LastFeatures() []float32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.features) == 0 {
		return nil
	}
	return e.features[len(e.features)-1]
}
