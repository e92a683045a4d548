// Package inference runs ONNX models through onnxruntime, exchanging data as ml.Tensors.
package inference

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// OptimizationLevel is how aggressively onnxruntime rewrites the graph before running it.
type OptimizationLevel string

// The graph optimization levels onnxruntime understands.
const (
	OptimizationDisabled = OptimizationLevel("disable")
	OptimizationBasic    = OptimizationLevel("basic")
	OptimizationExtended = OptimizationLevel("extended")
	OptimizationAll      = OptimizationLevel("all")
)

// ParseOptimizationLevel parses a case-insensitive level name. The empty string means extended.
func ParseOptimizationLevel(s string) (OptimizationLevel, error) {
	switch level := OptimizationLevel(strings.ToLower(s)); level {
	case "":
		return OptimizationExtended, nil
	case OptimizationDisabled, OptimizationBasic, OptimizationExtended, OptimizationAll:
		return level, nil
	default:
		return "", errors.Errorf("unknown graph optimization level %q", s)
	}
}

func (level OptimizationLevel) asORT() (ort.GraphOptimizationLevel, error) {
	switch level {
	case OptimizationDisabled:
		return ort.GraphOptimizationLevelDisableAll, nil
	case OptimizationBasic:
		return ort.GraphOptimizationLevelEnableBasic, nil
	case OptimizationExtended, "":
		return ort.GraphOptimizationLevelEnableExtended, nil
	case OptimizationAll:
		return ort.GraphOptimizationLevelEnableAll, nil
	default:
		return 0, errors.Errorf("unknown graph optimization level %q", string(level))
	}
}

// ONNXModelLoader holds the session settings used to load models.
type ONNXModelLoader struct {
	numThreads int
	optLevel   OptimizationLevel
}

// NewDefaultONNXModelLoader returns a loader that runs single threaded with extended graph
// optimization.
func NewDefaultONNXModelLoader() (*ONNXModelLoader, error) {
	return NewONNXModelLoader(1, OptimizationExtended)
}

// NewONNXModelLoader returns a loader with the given intra-op thread count and optimization level.
func NewONNXModelLoader(numThreads int, level OptimizationLevel) (*ONNXModelLoader, error) {
	if numThreads <= 0 {
		return nil, errors.Errorf("number of threads must be positive, got %d", numThreads)
	}
	if _, err := level.asORT(); err != nil {
		return nil, err
	}
	return &ONNXModelLoader{numThreads: numThreads, optLevel: level}, nil
}

// NumThreads returns the intra-op thread count sessions are created with.
func (loader *ONNXModelLoader) NumThreads() int {
	return loader.numThreads
}

// Load opens a session on the model at path. The onnxruntime environment must already be
// initialized with InitEnvironment.
func (loader *ONNXModelLoader) Load(path string) (*ONNXStruct, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, errors.Wrapf(err, "failed to load model at %s", path)
	}
	if !ort.IsInitialized() {
		return nil, errors.New("onnxruntime environment is not initialized")
	}

	inputs, outputs, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load model at %s", path)
	}
	if len(inputs) == 0 || len(outputs) == 0 {
		return nil, errors.Errorf("model at %s has %d inputs and %d outputs, needs at least one of each",
			path, len(inputs), len(outputs))
	}

	options, err := loader.sessionOptions()
	if err != nil {
		return nil, err
	}
	//nolint:errcheck
	defer options.Destroy()

	session, err := ort.NewDynamicAdvancedSession(path, ioNames(inputs), ioNames(outputs), options)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create session for model at %s", path)
	}

	return &ONNXStruct{
		Info:    newONNXInfo(inputs, outputs),
		path:    path,
		session: session,
		inputs:  inputs,
		outputs: outputs,
	}, nil
}

func (loader *ONNXModelLoader) sessionOptions() (*ort.SessionOptions, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, errors.Wrap(err, "session options failed to be created")
	}
	level, err := loader.optLevel.asORT()
	if err == nil {
		err = options.SetIntraOpNumThreads(loader.numThreads)
	}
	if err == nil {
		err = options.SetGraphOptimizationLevel(level)
	}
	if err != nil {
		//nolint:errcheck
		options.Destroy()
		return nil, errors.Wrap(err, "failed to configure session options")
	}
	return options, nil
}

func ioNames(infos []ort.InputOutputInfo) []string {
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		names = append(names, info.Name)
	}
	return names
}
