package inference

import (
	"os"
	"sync"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/nvr-ai/go-yolo/inference/providers"
)

// NewSessionArgs represents the arguments for creating a new ONNX session.
type NewSessionArgs struct {
	// The path to the ONNX model file.
	ModelPath string
	// The name of the model input layer.
	InputLayer string
	// The name of the model output layer.
	OutputLayer string
	// The backend mode used to configure the execution provider.
	Mode providers.BackendMode
	// The device name passed to the execution provider.
	Backend string
	// The ONNX Runtime shared library. Empty uses providers.GetSharedLibPath.
	LibraryPath string
}

// Session represents a model session from the onnxruntime.
//
// Input and output tensors are allocated per run so that the input size and batch may change
// between calls.
type Session struct {
	session *ort.DynamicAdvancedSession
	mu      sync.Mutex
}

// NewSession creates a new ONNX Runtime session bound to one input and one output layer.
//
// Order of operations:
//  1. Model check: the model file must exist.
//  2. Environment setup: loads the native runtime once per process.
//  3. Session options: tuning and execution provider for the backend mode.
//  4. Session creation: loads the model and binds the named layers.
//
// Arguments:
//   - args: The arguments for the session.
//
// Returns:
//   - *Session: The session. Close must be called to release native resources.
//   - error: An error if the session creation fails.
func NewSession(args NewSessionArgs) (*Session, error) {
	if args.InputLayer == "" || args.OutputLayer == "" {
		return nil, &providers.ConfigError{
			Field:  "layers",
			Value:  args.InputLayer + "/" + args.OutputLayer,
			Reason: "both an input and an output layer name are required",
		}
	}
	if _, err := os.Stat(args.ModelPath); err != nil {
		return nil, errors.Wrapf(err, "model %q not found", args.ModelPath)
	}

	if err := providers.InitializeEnvironment(args.LibraryPath); err != nil {
		return nil, err
	}

	options, err := providers.NewSessionOptions(args.Mode, args.Backend)
	if err != nil {
		return nil, err
	}
	defer options.Destroy()

	session, err := ort.NewDynamicAdvancedSession(
		args.ModelPath,
		[]string{args.InputLayer},
		[]string{args.OutputLayer},
		options,
	)
	if err != nil {
		return nil, errors.Wrapf(err, "error creating ORT session for %s", args.ModelPath)
	}

	return &Session{session: session}, nil
}

// Run executes the model on one input tensor and returns the output tensor.
//
// **Note: the caller owns the returned tensor and must Destroy it.**
func (s *Session) Run(input *ort.Tensor[float32]) (*ort.Tensor[float32], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return nil, errors.New("session is closed")
	}

	outputs := []ort.Value{nil}
	if err := s.session.Run([]ort.Value{input}, outputs); err != nil {
		return nil, errors.Wrap(err, "error running ORT session")
	}

	out, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		if outputs[0] != nil {
			outputs[0].Destroy()
		}
		return nil, errors.Errorf("model output is %T, expected a float32 tensor", outputs[0])
	}
	return out, nil
}

// Close releases the resources associated with the Session.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return nil
	}
	err := s.session.Destroy()
	s.session = nil
	return errors.Wrap(err, "error destroying ORT session")
}
