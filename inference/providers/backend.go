// Package providers - Backend modes and ONNX Runtime execution provider setup.
package providers

import (
	"fmt"
	"strings"
)

// BackendMode selects how the inference runtime executes the model.
type BackendMode int

const (
	// Native runs on the default CPU provider with all graph acceleration disabled.
	Native BackendMode = iota
	// OneDNN runs on the CPU with every graph optimization and vectorized kernels enabled.
	OneDNN
	// OpenVINO runs through the OpenVINO execution provider on the named device.
	OpenVINO
)

// BackendModes lists every supported mode.
var BackendModes = []BackendMode{Native, OneDNN, OpenVINO}

// String returns the canonical flag value of the mode.
func (m BackendMode) String() string {
	switch m {
	case Native:
		return "native"
	case OneDNN:
		return "onednn"
	case OpenVINO:
		return "openvino"
	default:
		return fmt.Sprintf("BackendMode(%d)", int(m))
	}
}

// Valid reports whether m is one of the supported modes.
func (m BackendMode) Valid() bool {
	return m >= Native && m <= OpenVINO
}

// ParseBackendMode converts a flag value into a BackendMode. Matching is case-insensitive and
// "onednn" may also be written "oneDNN" or "dnnl".
//
// Arguments:
//   - s: The flag value.
//
// Returns:
//   - BackendMode: The parsed mode.
//   - error: A *ConfigError for unrecognized values.
func ParseBackendMode(s string) (BackendMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "native":
		return Native, nil
	case "onednn", "dnnl":
		return OneDNN, nil
	case "openvino":
		return OpenVINO, nil
	default:
		names := make([]string, len(BackendModes))
		for i, m := range BackendModes {
			names[i] = m.String()
		}
		return Native, &ConfigError{
			Field:  "flag",
			Value:  s,
			Reason: "expected one of " + strings.Join(names, ", "),
		}
	}
}

// UnmarshalText implements encoding.TextUnmarshaler so modes can be read from config files.
func (m *BackendMode) UnmarshalText(text []byte) error {
	parsed, err := ParseBackendMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// BatchReplicas returns how many copies of a frame are fed per inference. Multi-device VPU
// accelerators are only saturated when fed a batch of eight.
func BatchReplicas(mode BackendMode, backend string) int {
	if mode == OpenVINO && strings.EqualFold(backend, "VAD-M") {
		return 8
	}
	return 1
}

// ConfigError reports a configuration value that cannot be used.
type ConfigError struct {
	// The configuration key or flag name.
	Field string
	// The offending value.
	Value string
	// What was expected instead.
	Reason string
}

// Error implements error.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}
