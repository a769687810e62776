// Package config - Run configuration for the detection CLI.
//
// Values come from three layers, lowest precedence first: built-in defaults, an optional
// YAML/JSON/TOML file, and YOLO_* environment variables. Command line flags are applied on
// top by the caller.
package config

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/nvr-ai/go-yolo/inference"
	"github.com/nvr-ai/go-yolo/inference/providers"
)

// EnvPrefix prefixes environment overrides, e.g. YOLO_CONF_THRESHOLD=0.5.
const EnvPrefix = "YOLO"

// InputType selects the run loop.
type InputType string

const (
	// InputImage runs a single still image with a warmup pass and writes a performance report.
	InputImage InputType = "image"
	// InputVideo runs every frame of a video file and writes an annotated video.
	InputVideo InputType = "video"
)

// Config keys, shared by the config file, environment and command line flags.
const (
	KeyGraph          = "graph"
	KeyInputLayer     = "input_layer"
	KeyOutputLayer    = "output_layer"
	KeyLabels         = "labels"
	KeyInput          = "input"
	KeyInputHeight    = "input_height"
	KeyInputWidth     = "input_width"
	KeyInputMean      = "input_mean"
	KeyInputStd       = "input_std"
	KeyBackend        = "backend"
	KeyOutputDir      = "output_dir"
	KeyConfThreshold  = "conf_threshold"
	KeyIoUThreshold   = "iou_threshold"
	KeyFlag           = "flag"
	KeyInputType      = "input_type"
	KeyOutputFilename = "output_filename"
	KeyLetterbox      = "letterbox"
	KeyLayout         = "layout"
	KeyLibraryPath    = "ort_library"
	KeyWorkers        = "nms_workers"
)

// Config holds every setting of a detection run.
type Config struct {
	Graph       string
	InputLayer  string
	OutputLayer string
	Labels      string
	Input       string
	InputType   InputType
	InputHeight int
	InputWidth  int
	InputMean   float32
	InputStd    float32
	// Backend is the device name, e.g. CPU, GPU, MYRIAD or VAD-M. It prefixes output videos.
	Backend string
	// Flag is the raw backend mode name. Mode holds the parsed value after Validate.
	Flag           string
	Mode           providers.BackendMode
	OutputDir      string
	OutputFilename string
	ConfThreshold  float32
	IoUThreshold   float32
	Letterbox      bool
	Layout         string
	LibraryPath    string
	NMSWorkers     int
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		InputLayer:     "inputs",
		OutputLayer:    "output_boxes",
		InputType:      InputImage,
		InputHeight:    160,
		InputWidth:     160,
		InputMean:      0,
		InputStd:       1,
		Backend:        "CPU",
		Flag:           providers.Native.String(),
		Mode:           providers.Native,
		OutputDir:      ".",
		OutputFilename: "output.mp4",
		ConfThreshold:  0.6,
		IoUThreshold:   0.5,
		Letterbox:      true,
		Layout:         string(inference.NHWC),
		NMSWorkers:     1,
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault(KeyGraph, d.Graph)
	v.SetDefault(KeyInputLayer, d.InputLayer)
	v.SetDefault(KeyOutputLayer, d.OutputLayer)
	v.SetDefault(KeyLabels, d.Labels)
	v.SetDefault(KeyInput, d.Input)
	v.SetDefault(KeyInputType, string(d.InputType))
	v.SetDefault(KeyInputHeight, d.InputHeight)
	v.SetDefault(KeyInputWidth, d.InputWidth)
	v.SetDefault(KeyInputMean, d.InputMean)
	v.SetDefault(KeyInputStd, d.InputStd)
	v.SetDefault(KeyBackend, d.Backend)
	v.SetDefault(KeyFlag, d.Flag)
	v.SetDefault(KeyOutputDir, d.OutputDir)
	v.SetDefault(KeyOutputFilename, d.OutputFilename)
	v.SetDefault(KeyConfThreshold, d.ConfThreshold)
	v.SetDefault(KeyIoUThreshold, d.IoUThreshold)
	v.SetDefault(KeyLetterbox, d.Letterbox)
	v.SetDefault(KeyLayout, d.Layout)
	v.SetDefault(KeyLibraryPath, d.LibraryPath)
	v.SetDefault(KeyWorkers, d.NMSWorkers)
}

// Load reads the configuration.
//
// Arguments:
//   - path: An optional config file. The format is inferred from the extension.
//
// Returns:
//   - Config: The configuration. It is not validated.
//   - error: An error if the file cannot be read or parsed.
//
// @example
//
//	cfg, err := config.Load("detect.yaml")
//	if err != nil {
//		logrus.Fatal(err)
//	}
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.Wrapf(err, "error reading config file %s", path)
		}
	}

	return Config{
		Graph:          v.GetString(KeyGraph),
		InputLayer:     v.GetString(KeyInputLayer),
		OutputLayer:    v.GetString(KeyOutputLayer),
		Labels:         v.GetString(KeyLabels),
		Input:          v.GetString(KeyInput),
		InputType:      InputType(strings.ToLower(strings.TrimSpace(v.GetString(KeyInputType)))),
		InputHeight:    v.GetInt(KeyInputHeight),
		InputWidth:     v.GetInt(KeyInputWidth),
		InputMean:      float32(v.GetFloat64(KeyInputMean)),
		InputStd:       float32(v.GetFloat64(KeyInputStd)),
		Backend:        v.GetString(KeyBackend),
		Flag:           v.GetString(KeyFlag),
		OutputDir:      v.GetString(KeyOutputDir),
		OutputFilename: v.GetString(KeyOutputFilename),
		ConfThreshold:  float32(v.GetFloat64(KeyConfThreshold)),
		IoUThreshold:   float32(v.GetFloat64(KeyIoUThreshold)),
		Letterbox:      v.GetBool(KeyLetterbox),
		Layout:         v.GetString(KeyLayout),
		LibraryPath:    v.GetString(KeyLibraryPath),
		NMSWorkers:     v.GetInt(KeyWorkers),
	}, nil
}

// ValidationError lists every problem found in a configuration.
type ValidationError struct {
	Errs []error
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Errs))
	for i, err := range e.Errs {
		msgs[i] = err.Error()
	}
	return "invalid configuration: " + strings.Join(msgs, "; ")
}

// Unwrap exposes the individual problems to errors.Is and errors.As.
func (e *ValidationError) Unwrap() []error { return e.Errs }

// Validate checks the configuration and resolves Mode from Flag.
//
// Returns:
//   - error: A *ValidationError, or nil.
func (c *Config) Validate() error {
	var errs []error
	add := func(field string, value any, reason string) {
		errs = append(errs, &providers.ConfigError{Field: field, Value: fmt.Sprint(value), Reason: reason})
	}

	if c.Graph == "" {
		add(KeyGraph, c.Graph, "a model file is required")
	}
	if c.Graph != "" && c.InputLayer == "" {
		add(KeyInputLayer, c.InputLayer, "specify the input layer for this network")
	}
	if c.Graph != "" && c.OutputLayer == "" {
		add(KeyOutputLayer, c.OutputLayer, "specify the output layer for this network")
	}
	if c.Labels == "" {
		add(KeyLabels, c.Labels, "specify the label map file")
	}
	if c.Input == "" {
		add(KeyInput, c.Input, "an input file is required")
	} else if _, err := os.Stat(c.Input); err != nil {
		add(KeyInput, c.Input, "could not find input file")
	}

	switch c.InputType {
	case InputImage, InputVideo:
	default:
		add(KeyInputType, c.InputType, "expected image or video")
	}

	var mode providers.BackendMode
	if err := mode.UnmarshalText([]byte(c.Flag)); err != nil {
		errs = append(errs, err)
	} else {
		c.Mode = mode
	}
	if mode == providers.OpenVINO && strings.TrimSpace(c.Backend) == "" {
		add(KeyBackend, c.Backend, "openvino needs a device name")
	}

	if c.InputHeight <= 0 {
		add(KeyInputHeight, c.InputHeight, "must be positive")
	}
	if c.InputWidth <= 0 {
		add(KeyInputWidth, c.InputWidth, "must be positive")
	}
	if c.InputStd == 0 {
		add(KeyInputStd, c.InputStd, "must not be zero")
	}
	if c.ConfThreshold < 0 || c.ConfThreshold > 1 {
		add(KeyConfThreshold, c.ConfThreshold, "must be within [0, 1]")
	}
	if c.IoUThreshold <= 0 || c.IoUThreshold > 1 {
		add(KeyIoUThreshold, c.IoUThreshold, "must be within (0, 1]")
	}
	if _, err := inference.ParseLayout(c.Layout); err != nil {
		add(KeyLayout, c.Layout, "expected nhwc or nchw")
	}
	if c.OutputFilename == "" {
		add(KeyOutputFilename, c.OutputFilename, "must not be empty")
	}
	if c.NMSWorkers < 0 {
		add(KeyWorkers, c.NMSWorkers, "must not be negative")
	}

	if len(errs) > 0 {
		return &ValidationError{Errs: errs}
	}
	return nil
}

// InputSize returns the model input size as (width, height).
func (c Config) InputSize() image.Point {
	return image.Pt(c.InputWidth, c.InputHeight)
}

// Normalization returns the per-channel input normalization.
func (c Config) Normalization() inference.Normalization {
	return inference.Normalization{Mean: c.InputMean, Std: c.InputStd}
}

// VideoOutputPath is where the annotated video is written: {output_dir}/{backend}_{output_filename}.
func (c Config) VideoOutputPath() string {
	return filepath.Join(c.OutputDir, c.Backend+"_"+c.OutputFilename)
}

// ImageOutputPath is where the annotated image is written. A filename without an image
// extension, such as the default output.mp4, is saved as JPEG.
func (c Config) ImageOutputPath() string {
	name := c.OutputFilename
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".png", ".bmp", ".webp", ".tif", ".tiff":
	default:
		name = strings.TrimSuffix(name, filepath.Ext(name)) + ".jpg"
	}
	return filepath.Join(c.OutputDir, name)
}

// ReportPath is where the performance report is written.
func (c Config) ReportPath(file string) string {
	return filepath.Join(c.OutputDir, file)
}
