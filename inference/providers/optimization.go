package providers

import (
	"runtime"

	ort "github.com/yalue/onnxruntime_go"
)

// OptimizationConfig contains the ONNX Runtime session tuning applied for a backend mode.
type OptimizationConfig struct {
	// GraphOptimizationLevel controls the level of graph optimization
	GraphOptimizationLevel ort.GraphOptimizationLevel `json:"graph_optimization_level"`

	// ExecutionMode controls sequential vs parallel execution
	ExecutionMode ort.ExecutionMode `json:"execution_mode"`

	// IntraOpNumThreads sets threads for parallelizing ops (0 lets the runtime decide)
	IntraOpNumThreads int `json:"intra_op_num_threads"`

	// InterOpNumThreads sets threads for parallelizing independent ops (0 lets the runtime decide)
	InterOpNumThreads int `json:"inter_op_num_threads"`

	// Env holds process environment variables exported before the session is created.
	Env map[string]string `json:"env,omitempty"`
}

// OptimizationFor returns the session tuning of a backend mode.
//
//   - Native: no graph rewrites, sequential execution, one intra-op thread.
//   - OneDNN: every graph rewrite, parallel execution across all CPUs.
//   - OpenVINO: extended rewrites only; the execution provider handles the rest.
func OptimizationFor(mode BackendMode) OptimizationConfig {
	numCPU := runtime.NumCPU()

	switch mode {
	case OneDNN:
		return OptimizationConfig{
			GraphOptimizationLevel: ort.GraphOptimizationLevelEnableAll,
			ExecutionMode:          ort.ExecutionModeParallel,
			IntraOpNumThreads:      numCPU,
			InterOpNumThreads:      max(1, numCPU/4),
			Env:                    map[string]string{"TF_ENABLE_ONEDNN_OPTS": "1"},
		}
	case OpenVINO:
		return OptimizationConfig{
			GraphOptimizationLevel: ort.GraphOptimizationLevelEnableExtended,
			ExecutionMode:          ort.ExecutionModeSequential,
		}
	default:
		return OptimizationConfig{
			GraphOptimizationLevel: ort.GraphOptimizationLevelDisableAll,
			ExecutionMode:          ort.ExecutionModeSequential,
			IntraOpNumThreads:      1,
			InterOpNumThreads:      1,
			Env:                    map[string]string{"TF_ENABLE_ONEDNN_OPTS": "0"},
		}
	}
}
