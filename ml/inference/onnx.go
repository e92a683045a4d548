package inference

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/multierr"
	"gorgonia.org/tensor"

	"go.viam.com/onnxsmoke/ml"
)

var (
	// ErrNotTensor is returned when a value handed to or produced by a session is not a tensor.
	ErrNotTensor = errors.New("value is not a tensor")
	// ErrEmptyOutput is returned when a session run produces no value for an output.
	ErrEmptyOutput = errors.New("inference produced no output")
)

// ONNXInfo describes the inputs and outputs of a loaded model. Symbolic dimensions are -1.
type ONNXInfo struct {
	InputTensorCount  int
	OutputTensorCount int
	InputNames        []string
	OutputNames       []string
	InputTensorTypes  []string
	OutputTensorTypes []string
	InputShapes       [][]int64
	OutputShapes      [][]int64
}

func newONNXInfo(inputs, outputs []ort.InputOutputInfo) *ONNXInfo {
	info := &ONNXInfo{
		InputTensorCount:  len(inputs),
		OutputTensorCount: len(outputs),
	}
	for _, in := range inputs {
		info.InputNames = append(info.InputNames, in.Name)
		info.InputTensorTypes = append(info.InputTensorTypes, ElementTypeName(in.DataType))
		info.InputShapes = append(info.InputShapes, []int64(in.Dimensions.Clone()))
	}
	for _, out := range outputs {
		info.OutputNames = append(info.OutputNames, out.Name)
		info.OutputTensorTypes = append(info.OutputTensorTypes, ElementTypeName(out.DataType))
		info.OutputShapes = append(info.OutputShapes, []int64(out.Dimensions.Clone()))
	}
	return info
}

// ElementTypeName returns the Go-style name of an onnx tensor element type.
func ElementTypeName(dt ort.TensorElementDataType) string {
	switch dt {
	case ort.TensorElementDataTypeFloat:
		return "float32"
	case ort.TensorElementDataTypeDouble:
		return "float64"
	case ort.TensorElementDataTypeInt8:
		return "int8"
	case ort.TensorElementDataTypeUint8:
		return "uint8"
	case ort.TensorElementDataTypeInt16:
		return "int16"
	case ort.TensorElementDataTypeUint16:
		return "uint16"
	case ort.TensorElementDataTypeInt32:
		return "int32"
	case ort.TensorElementDataTypeUint32:
		return "uint32"
	case ort.TensorElementDataTypeInt64:
		return "int64"
	case ort.TensorElementDataTypeUint64:
		return "uint64"
	case ort.TensorElementDataTypeBool:
		return "bool"
	case ort.TensorElementDataTypeString:
		return "string"
	default:
		return fmt.Sprintf("onnx_type_%d", int(dt))
	}
}

// ModelMetadata is the descriptive metadata stored in an ONNX model file.
type ModelMetadata struct {
	ProducerName string
	GraphName    string
	Domain       string
	Description  string
	Version      int64
	Custom       map[string]string
}

// ONNXStruct is a loaded model with its open session.
type ONNXStruct struct {
	Info *ONNXInfo

	path    string
	session *ort.DynamicAdvancedSession
	inputs  []ort.InputOutputInfo
	outputs []ort.InputOutputInfo
}

// Path returns the file the model was loaded from.
func (model *ONNXStruct) Path() string {
	return model.path
}

// Infer runs the model once. Input tensors are matched to model inputs by name; when the model
// has one input and one tensor is given, the tensor's name does not matter. Outputs are keyed
// by the model's output names.
func (model *ONNXStruct) Infer(tensors ml.Tensors) (_ ml.Tensors, err error) {
	if model.session == nil {
		return nil, errors.New("model session is closed")
	}

	inputs := make([]ort.Value, len(model.inputs))
	defer func() {
		for _, v := range inputs {
			if v != nil {
				multierr.AppendInvoke(&err, multierr.Invoke(v.Destroy))
			}
		}
	}()
	for i, in := range model.inputs {
		t, err := pickInput(tensors, in.Name, len(model.inputs))
		if err != nil {
			return nil, err
		}
		v, err := toORTValue(t)
		if err != nil {
			return nil, errors.Wrapf(err, "cannot convert input %q", in.Name)
		}
		inputs[i] = v
		if v.GetONNXType() != ort.ONNXTypeTensor {
			return nil, errors.Wrapf(ErrNotTensor, "input %q", in.Name)
		}
	}

	// nil outputs are allocated by onnxruntime during Run
	outputs := make([]ort.Value, len(model.outputs))
	defer func() {
		for _, v := range outputs {
			if v != nil {
				multierr.AppendInvoke(&err, multierr.Invoke(v.Destroy))
			}
		}
	}()
	if err := model.session.Run(inputs, outputs); err != nil {
		return nil, errors.Wrap(err, "failed to run inference")
	}

	results := make(ml.Tensors, len(outputs))
	for i, v := range outputs {
		name := model.outputs[i].Name
		if v == nil {
			return nil, errors.Wrapf(ErrEmptyOutput, "output %q", name)
		}
		if v.GetONNXType() != ort.ONNXTypeTensor {
			return nil, errors.Wrapf(ErrNotTensor, "output %q", name)
		}
		if shape := v.GetShape(); len(shape) > 0 && shape.FlattenedSize() == 0 {
			return nil, errors.Wrapf(ErrEmptyOutput, "output %q has shape %v", name, shape)
		}
		t, err := fromORTValue(v)
		if err != nil {
			return nil, errors.Wrapf(err, "cannot convert output %q", name)
		}
		results[name] = t
	}
	return results, nil
}

// Metadata reads the descriptive metadata stored in the model file.
func (model *ONNXStruct) Metadata() (*ModelMetadata, error) {
	md, err := ort.GetModelMetadata(model.path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read metadata of %s", model.path)
	}
	//nolint:errcheck
	defer md.Destroy()

	out := &ModelMetadata{Custom: map[string]string{}}
	if out.ProducerName, err = md.GetProducerName(); err != nil {
		return nil, err
	}
	if out.GraphName, err = md.GetGraphName(); err != nil {
		return nil, err
	}
	if out.Domain, err = md.GetDomain(); err != nil {
		return nil, err
	}
	if out.Description, err = md.GetDescription(); err != nil {
		return nil, err
	}
	if out.Version, err = md.GetVersion(); err != nil {
		return nil, err
	}
	keys, err := md.GetCustomMetadataMapKeys()
	if err != nil {
		return nil, err
	}
	for _, key := range keys {
		value, ok, err := md.LookupCustomMetadataMap(key)
		if err != nil {
			return nil, err
		}
		if ok {
			out.Custom[key] = value
		}
	}
	return out, nil
}

// Close destroys the session. The model cannot be used afterwards.
func (model *ONNXStruct) Close() error {
	if model.session == nil {
		return nil
	}
	err := model.session.Destroy()
	model.session = nil
	return errors.Wrap(err, "failed to destroy session")
}

func pickInput(tensors ml.Tensors, name string, numInputs int) (*tensor.Dense, error) {
	if t, ok := tensors[name]; ok && t != nil {
		return t, nil
	}
	if numInputs == 1 && len(tensors) == 1 {
		for _, t := range tensors {
			if t != nil {
				return t, nil
			}
		}
	}
	return nil, errors.Errorf("no tensor named %q among input tensors [%s]", name, strings.Join(ml.TensorNames(tensors), ", "))
}

func toORTValue(t *tensor.Dense) (ort.Value, error) {
	if t.IsMaterializable() {
		m := t.Materialize()
		materialized, ok := m.(*tensor.Dense)
		if !ok {
			return nil, errors.Errorf("materialized tensor is %T, not *tensor.Dense", m)
		}
		t = materialized
	}
	dims := make([]int64, 0, t.Dims())
	for _, d := range t.Shape() {
		dims = append(dims, int64(d))
	}
	shape := ort.NewShape(dims...)

	switch data := t.Data().(type) {
	case []float32:
		return newORTTensor(shape, data)
	case []float64:
		return newORTTensor(shape, data)
	case []int64:
		return newORTTensor(shape, data)
	case []int32:
		return newORTTensor(shape, data)
	case []int16:
		return newORTTensor(shape, data)
	case []int8:
		return newORTTensor(shape, data)
	case []uint8:
		return newORTTensor(shape, data)
	default:
		return nil, errors.Errorf("dont know how to create an onnx tensor from %T", data)
	}
}

func newORTTensor[T ort.TensorData](shape ort.Shape, data []T) (ort.Value, error) {
	if int64(len(data)) != shape.FlattenedSize() {
		return nil, errors.Errorf("shape %v needs %d values, tensor holds %d", shape, shape.FlattenedSize(), len(data))
	}
	v, err := ort.NewTensor(shape, data)
	if err != nil {
		return nil, err
	}
	return v, nil
}

func fromORTValue(v ort.Value) (*tensor.Dense, error) {
	shape := v.GetShape()
	dims := make([]int, 0, len(shape))
	for _, d := range shape {
		dims = append(dims, int(d))
	}
	// scalars come back as a single element vector
	if len(dims) == 0 {
		dims = append(dims, 1)
	}

	switch tv := v.(type) {
	case *ort.Tensor[float32]:
		return denseFrom(dims, tv.GetData()), nil
	case *ort.Tensor[float64]:
		return denseFrom(dims, tv.GetData()), nil
	case *ort.Tensor[int64]:
		return denseFrom(dims, tv.GetData()), nil
	case *ort.Tensor[int32]:
		return denseFrom(dims, tv.GetData()), nil
	case *ort.Tensor[int16]:
		return denseFrom(dims, tv.GetData()), nil
	case *ort.Tensor[int8]:
		return denseFrom(dims, tv.GetData()), nil
	case *ort.Tensor[uint8]:
		return denseFrom(dims, tv.GetData()), nil
	default:
		return nil, errors.Errorf("dont know how to read onnx value of type %T", v)
	}
}

// denseFrom copies data out of onnxruntime-owned memory into a new tensor.
func denseFrom[T ort.TensorData](dims []int, data []T) *tensor.Dense {
	backing := make([]T, len(data))
	copy(backing, data)
	return tensor.New(tensor.WithShape(dims...), tensor.WithBacking(backing))
}
