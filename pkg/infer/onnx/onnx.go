// Package onnx implements the turn-completion classifier using ONNX Runtime
// via the yalue/onnxruntime_go bindings. The shared ONNX runtime library
// (libonnxruntime.so / .dylib) must be present at the configured path.
package onnx

import (
	"context"
	"fmt"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/emberhill/turnsense/pkg/infer"
)

// onnxEnvOnce ensures the ONNX runtime environment is initialized exactly
// once for the process lifetime. The runtime leaks internal state when torn
// down and re-created, so the environment is intentionally never destroyed.
var onnxEnvOnce sync.Once

// Config holds the paths needed to construct an Engine.
type Config struct {
	// ModelPath is the ONNX model asset. Its absence is a hard
	// initialization failure — there is no lazy reload.
	ModelPath string

	// RuntimeLibPath locates the ONNX runtime shared library. Empty uses
	// the bindings' platform default.
	RuntimeLibPath string
}

// Engine is an ONNX-backed [infer.Engine]. The session and its input/output
// tensors are created once at construction and reused for every prediction;
// Predict performs no per-call tensor allocation.
//
// A mutex serializes Predict calls: the session binds fixed tensor memory,
// so concurrent runs would race on it. The coordinator issues at most one
// round trip at a time, making contention the exception rather than the rule.
type Engine struct {
	mu      sync.Mutex
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
	closed  bool
}

// Compile-time assertion that Engine satisfies infer.Engine.
var _ infer.Engine = (*Engine)(nil)

// New loads the model and builds the inference session. Any failure here —
// missing model asset, unloadable runtime library, session creation error —
// is fatal to construction: a detector cannot exist in a usable state
// without its classifier.
func New(cfg Config) (*Engine, error) {
	if cfg.ModelPath == "" {
		return nil, fmt.Errorf("onnx: model path must not be empty")
	}
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("onnx: model asset %q: %w", cfg.ModelPath, err)
	}

	var envErr error
	onnxEnvOnce.Do(func() {
		if cfg.RuntimeLibPath != "" {
			ort.SetSharedLibraryPath(cfg.RuntimeLibPath)
		}
		envErr = ort.InitializeEnvironment()
	})
	if envErr != nil {
		return nil, fmt.Errorf("onnx: initialize environment: %w", envErr)
	}

	// Input [1, 80, 800]; the tensor owns this memory and it is reused for
	// every inference.
	inputShape := ort.NewShape(1, 80, 800)
	input, err := ort.NewTensor(inputShape, make([]float32, infer.FeatureLength))
	if err != nil {
		return nil, fmt.Errorf("onnx: create input tensor: %w", err)
	}

	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 1))
	if err != nil {
		input.Destroy()
		return nil, fmt.Errorf("onnx: create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		cfg.ModelPath,
		[]string{"input"},
		[]string{"output"},
		[]ort.Value{input},
		[]ort.Value{output},
		nil,
	)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, fmt.Errorf("onnx: create session for %q: %w", cfg.ModelPath, err)
	}

	return &Engine{session: session, input: input, output: output}, nil
}

// Predict copies features into the bound input tensor, runs the session, and
// returns the model's sigmoid output.
func (e *Engine) Predict(ctx context.Context, features []float32) (float32, error) {
	if len(features) != infer.FeatureLength {
		return 0, fmt.Errorf("%w (got %d)", infer.ErrBadShape, len(features))
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return 0, fmt.Errorf("onnx: engine is closed")
	}

	copy(e.input.GetData(), features)
	if err := e.session.Run(); err != nil {
		return 0, fmt.Errorf("onnx: run session: %w", err)
	}
	return e.output.GetData()[0], nil
}

// Close destroys the session and tensors. The global ONNX environment is
// left intact for reuse by later engines.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true
	e.session.Destroy()
	e.input.Destroy()
	e.output.Destroy()
	return nil
}
