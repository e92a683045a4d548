// Package onnxcpu runs onnx model files on the host's CPU, as an implementation of the ML model service.
package onnxcpu

import (
	"context"
	"os"
	fp "path/filepath"
	"strings"

	"github.com/pkg/errors"
	"go.opencensus.io/trace"
	"go.uber.org/multierr"

	"go.viam.com/onnxsmoke/logging"
	"go.viam.com/onnxsmoke/ml"
	inf "go.viam.com/onnxsmoke/ml/inference"
	"go.viam.com/onnxsmoke/services/mlmodel"
)

// modelTypeKey is the custom metadata key that, when present in the model file, names the model type.
const modelTypeKey = "model_type"

// ONNXConfig contains the parameters specific to an onnx_cpu implementation
// of the MLMS (machine learning model service).
type ONNXConfig struct {
	ModelPath         string `json:"model_path"`
	NumThreads        int    `json:"num_threads"`
	OptimizationLevel string `json:"optimization_level"`
	SharedLibraryPath string `json:"shared_library_path"`
}

// Validate ensures all parts of the config are valid. path is the config's location, used in errors.
func (conf *ONNXConfig) Validate(path string) error {
	if conf.ModelPath == "" {
		return errors.Errorf("%s: %q is required", path, "model_path")
	}
	if conf.NumThreads < 0 {
		return errors.Errorf("%s: %q cannot be negative, got %d", path, "num_threads", conf.NumThreads)
	}
	if _, err := inf.ParseOptimizationLevel(conf.OptimizationLevel); err != nil {
		return errors.Wrap(err, path)
	}
	return nil
}

var errClosed = errors.New("model is closed")

var _ = mlmodel.Service(&Model{})

// Model is a struct that implements the ONNX CPU implementation of the MLMS.
// It includes the configured parameters, model struct, and associated metadata.
type Model struct {
	conf     ONNXConfig
	model    *inf.ONNXStruct
	metadata *mlmodel.MLMetadata
	logger   logging.Logger
}

// NewONNXCPUModel is a constructor that builds an onnx cpu implementation of the MLMS.
func NewONNXCPUModel(ctx context.Context, params *ONNXConfig, logger logging.Logger) (*Model, error) {
	_, span := trace.StartSpan(ctx, "service::mlmodel::NewONNXCPUModel")
	defer span.End()

	if params == nil {
		return nil, errors.New("could not find parameters")
	}
	if err := params.Validate("onnx_cpu"); err != nil {
		return nil, err
	}

	model, err := addModel(params, logger)
	if err != nil {
		return nil, errors.Wrapf(err, "could not add model from location %s", params.ModelPath)
	}
	return &Model{conf: *params, model: model, logger: logger}, nil
}

func addModel(params *ONNXConfig, logger logging.Logger) (*inf.ONNXStruct, error) {
	fullpath, err := fp.Abs(params.ModelPath)
	if err != nil {
		fullpath = params.ModelPath
	}
	if _, err := os.Stat(fullpath); err != nil {
		return nil, errors.Wrapf(err, "file not found at %s", fullpath)
	}

	level, err := inf.ParseOptimizationLevel(params.OptimizationLevel)
	if err != nil {
		return nil, err
	}
	// intra-op execution stays single threaded unless asked otherwise
	numThreads := params.NumThreads
	if numThreads <= 0 {
		numThreads = 1
	}
	loader, err := inf.NewONNXModelLoader(numThreads, level)
	if err != nil {
		return nil, errors.Wrap(err, "could not get loader")
	}

	if err := inf.InitEnvironment(params.SharedLibraryPath); err != nil {
		return nil, err
	}
	logger.Debugw("onnxruntime ready",
		"library", inf.SharedLibraryPath(params.SharedLibraryPath),
		"version", inf.RuntimeVersion(),
		"threads", loader.NumThreads(),
		"optimization", string(level))

	model, err := loader.Load(fullpath)
	if err != nil {
		return nil, multierr.Combine(errors.Wrap(err, "loader could not load model"), inf.ReleaseEnvironment())
	}
	return model, nil
}

// Infer takes the input map and uses the inference package to
// return the result from the onnx cpu model as a map.
func (m *Model) Infer(ctx context.Context, tensors ml.Tensors) (ml.Tensors, error) {
	_, span := trace.StartSpan(ctx, "service::mlmodel::onnx_cpu::Infer")
	defer span.End()

	if m.model == nil {
		return nil, errClosed
	}
	outTensors, err := m.model.Infer(tensors)
	if err != nil {
		return nil, errors.Wrapf(err, "couldn't infer from model %q", m.conf.ModelPath)
	}
	return outTensors, nil
}

// Metadata reads the metadata from your onnx cpu model into the metadata struct
// that we use for the mlmodel service.
func (m *Model) Metadata(ctx context.Context) (mlmodel.MLMetadata, error) {
	_, span := trace.StartSpan(ctx, "service::mlmodel::onnx_cpu::Metadata")
	defer span.End()

	if m.metadata != nil {
		return *m.metadata, nil
	}
	if m.model == nil {
		return mlmodel.MLMetadata{}, errClosed
	}

	md, err := m.model.Metadata()
	if err != nil {
		blindMD := m.blindFillMetadata()
		m.metadata = &blindMD
		m.logger.Infow("error finding metadata in onnx file", "error", err)
		return blindMD, nil
	}

	out := m.blindFillMetadata()
	out.ModelName = md.GraphName
	if out.ModelName == "" {
		out.ModelName = strings.TrimSuffix(fp.Base(m.model.Path()), fp.Ext(m.model.Path()))
	}
	out.ModelDescription = md.Description
	if modelType, ok := md.Custom[modelTypeKey]; ok {
		out.ModelType = modelType
	}
	if md.ProducerName != "" {
		for i := range out.Outputs {
			out.Outputs[i].Extra = map[string]interface{}{"producer": md.ProducerName}
		}
	}
	m.metadata = &out
	return out, nil
}

// blindFillMetadata fills what the session itself reports about the model's inputs and outputs.
func (m *Model) blindFillMetadata() mlmodel.MLMetadata {
	info := m.model.Info
	out := mlmodel.MLMetadata{ModelType: "onnx"}
	out.Inputs = make([]mlmodel.TensorInfo, 0, info.InputTensorCount)
	for i := 0; i < info.InputTensorCount; i++ {
		out.Inputs = append(out.Inputs, mlmodel.TensorInfo{
			Name:     info.InputNames[i],
			DataType: info.InputTensorTypes[i],
			Shape:    intShape(info.InputShapes[i]),
		})
	}
	out.Outputs = make([]mlmodel.TensorInfo, 0, info.OutputTensorCount)
	for i := 0; i < info.OutputTensorCount; i++ {
		out.Outputs = append(out.Outputs, mlmodel.TensorInfo{
			Name:     info.OutputNames[i],
			DataType: info.OutputTensorTypes[i],
			Shape:    intShape(info.OutputShapes[i]),
		})
	}
	return out
}

// Close releases the session and this model's hold on the onnxruntime environment.
func (m *Model) Close(ctx context.Context) error {
	if m.model == nil {
		return nil
	}
	err := multierr.Combine(m.model.Close(), inf.ReleaseEnvironment())
	m.model = nil
	return err
}

func intShape(dims []int64) []int {
	shape := make([]int, 0, len(dims))
	for _, d := range dims {
		shape = append(shape, int(d))
	}
	return shape
}
