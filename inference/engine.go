// Package inference - Inference engine interface and implementations.
package inference

import (
	"context"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
	"gorgonia.org/tensor"
)

// Inferer runs a model on an input tensor.
//
// Implementations own their runtime resources; the detection pipeline only sees tensors.
type Inferer interface {
	// Infer returns the raw model output for one input batch.
	Infer(ctx context.Context, input *tensor.Dense) (*tensor.Dense, error)
	// Close releases the resources held by the implementation.
	Close() error
}

// Engine is the ONNX Runtime backed Inferer.
type Engine struct {
	session *Session
}

var _ Inferer = (*Engine)(nil)

// NewEngine creates an engine backed by a new ONNX Runtime session.
//
// Arguments:
//   - args: The session arguments.
//
// Returns:
//   - *Engine: The engine.
//   - error: An error if the session cannot be created.
func NewEngine(args NewSessionArgs) (*Engine, error) {
	session, err := NewSession(args)
	if err != nil {
		return nil, err
	}
	return &Engine{session: session}, nil
}

// Infer copies input into a runtime tensor, runs the session and copies the output back.
func (e *Engine) Infer(ctx context.Context, input *tensor.Dense) (*tensor.Dense, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if input == nil {
		return nil, errors.New("input tensor is nil")
	}

	data, ok := input.Data().([]float32)
	if !ok {
		return nil, errors.Errorf("input tensor must be float32, got %v", input.Dtype())
	}

	dims := input.Shape()
	shape := make(ort.Shape, len(dims))
	for i, d := range dims {
		shape[i] = int64(d)
	}

	in, err := ort.NewTensor(shape, data)
	if err != nil {
		return nil, errors.Wrap(err, "error creating input tensor")
	}
	defer in.Destroy()

	out, err := e.session.Run(in)
	if err != nil {
		return nil, err
	}
	defer out.Destroy()

	outShape := out.GetShape()
	outDims := make([]int, len(outShape))
	for i, d := range outShape {
		outDims[i] = int(d)
	}

	// The runtime frees the output buffer on Destroy.
	backing := make([]float32, len(out.GetData()))
	copy(backing, out.GetData())

	return tensor.New(tensor.WithShape(outDims...), tensor.WithBacking(backing)), nil
}

// Close releases the session.
func (e *Engine) Close() error {
	if e.session == nil {
		return nil
	}
	return e.session.Close()
}
