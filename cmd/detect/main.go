// Command detect runs a YOLOv3 detection model over an image or a video and reports the
// inference throughput and latency of the selected backend.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/akamensky/argparse"
	"github.com/sirupsen/logrus"

	"github.com/nvr-ai/go-yolo/config"
	"github.com/nvr-ai/go-yolo/controller"
	"github.com/nvr-ai/go-yolo/detector"
	"github.com/nvr-ai/go-yolo/inference"
	"github.com/nvr-ai/go-yolo/inference/providers"
	"github.com/nvr-ai/go-yolo/models"
	"github.com/nvr-ai/go-yolo/models/postprocess"
	"github.com/nvr-ai/go-yolo/profiler"
	"github.com/nvr-ai/go-yolo/util"
)

type flags struct {
	configFile     *string
	graph          *string
	inputLayer     *string
	outputLayer    *string
	labels         *string
	input          *string
	inputHeight    *int
	inputWidth     *int
	inputMean      *float64
	inputStd       *float64
	backend        *string
	outputDir      *string
	confThreshold  *float64
	iouThreshold   *float64
	flag           *string
	inputType      *string
	outputFilename *string
	noLetterbox    *bool
	layout         *string
	ortLibrary     *string
	nmsWorkers     *int
}

func parseFlags(args []string) (*flags, error) {
	parser := argparse.NewParser("detect", "Run YOLOv3 object detection on an image or video")
	f := &flags{
		configFile:     parser.String("c", "config", &argparse.Options{Help: "YAML, JSON or TOML config file"}),
		graph:          parser.String("m", "graph", &argparse.Options{Help: "graph/model to be executed"}),
		inputLayer:     parser.String("i", "input_layer", &argparse.Options{Help: "name of input layer"}),
		outputLayer:    parser.String("o", "output_layer", &argparse.Options{Help: "name of output layer"}),
		labels:         parser.String("l", "labels", &argparse.Options{Help: "name of file containing labels"}),
		input:          parser.String("", "input", &argparse.Options{Help: "image, directory of images or video file to be processed"}),
		inputHeight:    parser.Int("", "input_height", &argparse.Options{Help: "input height"}),
		inputWidth:     parser.Int("", "input_width", &argparse.Options{Help: "input width"}),
		inputMean:      parser.Float("", "input_mean", &argparse.Options{Help: "input mean"}),
		inputStd:       parser.Float("", "input_std", &argparse.Options{Help: "input std"}),
		backend:        parser.String("d", "backend", &argparse.Options{Help: "name of backend. Default is CPU"}),
		outputDir:      parser.String("", "output_dir", &argparse.Options{Help: "directory that stores the annotated output and performance report"}),
		confThreshold:  parser.Float("", "conf_threshold", &argparse.Options{Help: "confidence threshold. Default is 0.6"}),
		iouThreshold:   parser.Float("", "iou_threshold", &argparse.Options{Help: "iou threshold. Default is 0.5"}),
		flag:           parser.String("f", "flag", &argparse.Options{Help: "backend mode: native, oneDNN or openvino"}),
		inputType:      parser.String("t", "input_type", &argparse.Options{Help: "input type either video or image"}),
		outputFilename: parser.String("", "output_filename", &argparse.Options{Help: "output filename for detections"}),
		noLetterbox:    parser.Flag("", "no_letterbox", &argparse.Options{Help: "stretch inputs to the model size instead of padding"}),
		layout:         parser.String("", "layout", &argparse.Options{Help: "input tensor layout: nhwc or nchw"}),
		ortLibrary:     parser.String("", "ort_lib", &argparse.Options{Help: "path to the ONNX Runtime shared library"}),
		nmsWorkers:     parser.Int("", "nms_workers", &argparse.Options{Help: "parallel NMS workers for batched outputs"}),
	}

	if err := parser.Parse(args); err != nil {
		return nil, fmt.Errorf("%s", parser.Usage(err))
	}
	return f, nil
}

// apply overlays the flags that were given onto cfg. Empty strings and zero numbers count
// as not given.
func (f *flags) apply(cfg *config.Config) {
	setString := func(dst *string, v *string) {
		if *v != "" {
			*dst = *v
		}
	}
	setString(&cfg.Graph, f.graph)
	setString(&cfg.InputLayer, f.inputLayer)
	setString(&cfg.OutputLayer, f.outputLayer)
	setString(&cfg.Labels, f.labels)
	setString(&cfg.Input, f.input)
	setString(&cfg.Backend, f.backend)
	setString(&cfg.OutputDir, f.outputDir)
	setString(&cfg.Flag, f.flag)
	setString(&cfg.OutputFilename, f.outputFilename)
	setString(&cfg.Layout, f.layout)
	setString(&cfg.LibraryPath, f.ortLibrary)
	if *f.inputType != "" {
		cfg.InputType = config.InputType(strings.ToLower(strings.TrimSpace(*f.inputType)))
	}

	if *f.inputHeight != 0 {
		cfg.InputHeight = *f.inputHeight
	}
	if *f.inputWidth != 0 {
		cfg.InputWidth = *f.inputWidth
	}
	if *f.inputMean != 0 {
		cfg.InputMean = float32(*f.inputMean)
	}
	if *f.inputStd != 0 {
		cfg.InputStd = float32(*f.inputStd)
	}
	if *f.confThreshold != 0 {
		cfg.ConfThreshold = float32(*f.confThreshold)
	}
	if *f.iouThreshold != 0 {
		cfg.IoUThreshold = float32(*f.iouThreshold)
	}
	if *f.nmsWorkers != 0 {
		cfg.NMSWorkers = *f.nmsWorkers
	}
	if *f.noLetterbox {
		cfg.Letterbox = false
	}
}

func setupLogging() {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logrus.SetOutput(os.Stdout)
	level, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
}

func main() {
	setupLogging()

	f, err := parseFlags(os.Args)
	if err != nil {
		fmt.Print(err)
		os.Exit(1)
	}

	cfg, err := config.Load(*f.configFile)
	if err != nil {
		logrus.WithError(err).Fatal("error loading configuration")
	}
	f.apply(&cfg)
	if err := cfg.Validate(); err != nil {
		logrus.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logrus.WithError(err).Fatal("detection failed")
	}
}

func run(ctx context.Context, cfg config.Config) error {
	log := logrus.WithFields(logrus.Fields{
		"model":   cfg.Graph,
		"mode":    cfg.Mode,
		"backend": cfg.Backend,
		"input":   cfg.Input,
	})

	classes, err := models.LoadClassSet(cfg.Labels)
	if err != nil {
		return err
	}
	layout, err := inference.ParseLayout(cfg.Layout)
	if err != nil {
		return err
	}

	engine, err := inference.NewEngine(inference.NewSessionArgs{
		ModelPath:   cfg.Graph,
		InputLayer:  cfg.InputLayer,
		OutputLayer: cfg.OutputLayer,
		Mode:        cfg.Mode,
		Backend:     cfg.Backend,
		LibraryPath: cfg.LibraryPath,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := engine.Close(); err != nil {
			log.WithError(err).Warn("error closing inference engine")
		}
		if err := providers.DestroyEnvironment(); err != nil {
			log.WithError(err).Warn("error destroying ORT environment")
		}
	}()

	opts := detector.Options{
		InputSize:     cfg.InputSize(),
		Letterbox:     cfg.Letterbox,
		Layout:        layout,
		Normalization: cfg.Normalization(),
		NMS: postprocess.NMSConfig{
			ConfidenceThreshold: cfg.ConfThreshold,
			IoUThreshold:        cfg.IoUThreshold,
			NumWorkers:          cfg.NMSWorkers,
		},
		Classes: classes,
	}
	// Multi-device accelerators are fed a full batch per frame in video runs.
	if cfg.InputType == config.InputVideo {
		opts.Replicas = providers.BatchReplicas(cfg.Mode, cfg.Backend)
	}

	runner, err := controller.New(engine, opts, cfg.Backend, log)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return err
	}
	report := cfg.ReportPath(profiler.ReportFileName)

	log.WithFields(logrus.Fields{
		"classes":   classes.Len(),
		"replicas":  opts.Replicas,
		"letterbox": opts.Letterbox,
	}).Info("starting detection")

	switch cfg.InputType {
	case config.InputVideo:
		_, err = runner.RunVideo(ctx, cfg.Input, cfg.VideoOutputPath(), report)
	default:
		var files []util.ImageFile
		files, err = util.DiscoverImages(cfg.Input)
		if err != nil {
			return err
		}
		_, err = runner.RunImage(ctx, files, cfg.ImageOutputPath(), report)
	}
	return err
}
