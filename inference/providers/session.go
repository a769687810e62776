package providers

import (
	"os"
	"sync"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

var initMu sync.Mutex

// InitializeEnvironment loads the ONNX Runtime shared library and prepares its environment.
//
// It is safe to call more than once; only the first call loads the library.
//
// Arguments:
//   - libPath: The path to the shared library. Empty uses GetSharedLibPath.
//
// Returns:
//   - error: An error if the library is missing or the environment cannot be initialized.
func InitializeEnvironment(libPath string) error {
	initMu.Lock()
	defer initMu.Unlock()

	if ort.IsInitialized() {
		return nil
	}

	if libPath == "" {
		libPath = GetSharedLibPath()
	}
	if _, err := os.Stat(libPath); err != nil {
		return errors.Wrapf(err, "ONNX Runtime library not found at %q", libPath)
	}

	// Point ONNX Runtime to the exact shared library path (overrides default search).
	ort.SetSharedLibraryPath(libPath)
	if err := ort.InitializeEnvironment(); err != nil {
		return errors.Wrap(err, "error initializing ORT environment")
	}
	return nil
}

// DestroyEnvironment releases the ONNX Runtime environment if it was initialized.
func DestroyEnvironment() error {
	initMu.Lock()
	defer initMu.Unlock()

	if !ort.IsInitialized() {
		return nil
	}
	return errors.Wrap(ort.DestroyEnvironment(), "error destroying ORT environment")
}

// NewSessionOptions creates session options for a backend mode.
//
// The optimization profile of the mode is applied first, then the execution provider: Native and
// OneDNN stay on the built-in CPU provider, OpenVINO appends the OpenVINO provider targeting
// the backend device.
//
// **Note: the caller must Destroy the returned options.**
//
// Arguments:
//   - mode: The backend mode.
//   - backend: The device name used by OpenVINO, e.g. "CPU" or "MYRIAD".
//
// Returns:
//   - *ort.SessionOptions: The configured options.
//   - error: An error if any option is rejected by the runtime.
func NewSessionOptions(mode BackendMode, backend string) (*ort.SessionOptions, error) {
	if !mode.Valid() {
		return nil, &ConfigError{Field: "flag", Value: mode.String(), Reason: "unknown backend mode"}
	}

	cfg := OptimizationFor(mode)
	for k, v := range cfg.Env {
		if err := os.Setenv(k, v); err != nil {
			return nil, errors.Wrapf(err, "error exporting %s", k)
		}
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, errors.Wrap(err, "error creating ORT session options")
	}

	if err := applyOptimization(options, cfg); err != nil {
		options.Destroy()
		return nil, err
	}

	if mode == OpenVINO {
		if backend == "" {
			options.Destroy()
			return nil, &ConfigError{Field: "backend", Value: backend, Reason: "openvino needs a device name"}
		}
		err = options.AppendExecutionProviderOpenVINO(NewOpenVINOOptions(backend).ToProviderOptions())
		if err != nil {
			options.Destroy()
			return nil, errors.Wrapf(err, "error enabling OpenVINO on %s", backend)
		}
	}

	return options, nil
}

func applyOptimization(options *ort.SessionOptions, cfg OptimizationConfig) error {
	if err := options.SetGraphOptimizationLevel(cfg.GraphOptimizationLevel); err != nil {
		return errors.Wrap(err, "error setting graph optimization level")
	}
	if err := options.SetExecutionMode(cfg.ExecutionMode); err != nil {
		return errors.Wrap(err, "error setting execution mode")
	}
	if err := options.SetIntraOpNumThreads(cfg.IntraOpNumThreads); err != nil {
		return errors.Wrap(err, "error setting intra-op threads")
	}
	if err := options.SetInterOpNumThreads(cfg.InterOpNumThreads); err != nil {
		return errors.Wrap(err, "error setting inter-op threads")
	}
	return nil
}
