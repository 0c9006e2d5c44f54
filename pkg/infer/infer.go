// Package infer defines the narrow interface to the turn-completion
// classifier. The classifier is opaque to the rest of the system: it accepts
// one feature tensor of shape [1, MelBands, TargetFrames] float32 laid out
// row-major and returns a single probability that has already been passed
// through a sigmoid.
//
// Implementations are provided by the onnx subpackage (production) and the
// mock subpackage (tests).
package infer

import (
	"context"
	"errors"
)

// FeatureLength is the expected flattened tensor length: 80 mel bands by
// 800 frames.
const FeatureLength = 80 * 800

// ErrBadShape is returned by engines when the feature slice does not have
// FeatureLength values.
var ErrBadShape = errors.New("infer: feature tensor must have 80x800 values")

// Engine runs the turn-completion classifier.
type Engine interface {
	// Predict runs one inference on a flattened [1, 80, 800] tensor and
	// returns the post-sigmoid turn-completion probability in [0, 1].
	// It must tolerate being called from a non-capture goroutine and may
	// block for the duration of the model run.
	Predict(ctx context.Context, features []float32) (float32, error)

	// Close releases model resources. The engine is unusable afterwards.
	Close() error
}
