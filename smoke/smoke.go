// Package smoke runs a single fixed inference through an ML model service and prints what goes
// in and what comes out. It is the check that gonum matrices survive the trip into onnxruntime
// tensors and back.
package smoke

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"gonum.org/v1/gonum/mat"
	"gorgonia.org/tensor"

	"go.viam.com/onnxsmoke/logging"
	"go.viam.com/onnxsmoke/ml"
	"go.viam.com/onnxsmoke/services/mlmodel"
)

var (
	// ErrNoInputs is returned when the model reports no input tensors.
	ErrNoInputs = errors.New("model has no inputs")
	// ErrNoOutputs is returned when the model reports no output tensors.
	ErrNoOutputs = errors.New("model has no outputs")
	// ErrEmptyInput is returned for an input matrix without elements.
	ErrEmptyInput = errors.New("input matrix is empty")
	// ErrEmptyOutput is returned when inference does not produce the expected output tensor.
	ErrEmptyOutput = errors.New("inference result is empty or not a tensor")
)

// DefaultInput returns the 2x1 matrix fed to the model: [[8], [9]].
func DefaultInput() *mat.Dense {
	return mat.NewDense(2, 1, []float64{8, 9})
}

// OpenFunc opens an ML model service on the model file at modelPath.
type OpenFunc func(ctx context.Context, modelPath string) (mlmodel.Service, error)

// Result is what a smoke run read back from the model.
type Result struct {
	OutputName string
	Shape      []int
	Values     []float64
	// Output is only set for 2-D outputs.
	Output  *mat.Dense
	Summary ml.Summary
}

// Load opens the model, reporting progress to w.
func Load(ctx context.Context, w io.Writer, modelPath string, open OpenFunc) (mlmodel.Service, error) {
	p := &printer{w: w}
	p.printf("Loading model from: %s\n", modelPath)
	svc, err := open(ctx, modelPath)
	if err != nil {
		return nil, errors.Wrap(err, "error while loading the ONNX model")
	}
	p.printf("ONNX model loaded successfully.\n")
	if p.err != nil {
		return nil, multierr.Combine(errors.Wrap(p.err, "cannot write progress"), svc.Close(ctx))
	}
	return svc, nil
}

// Run describes the model, feeds input to its first input tensor, and prints the first output
// tensor both element by element and, when it is 2-D, as a matrix.
func Run(ctx context.Context, svc mlmodel.Service, input mat.Matrix, w io.Writer, logger logging.Logger) (*Result, error) {
	p := &printer{w: w}

	md, err := svc.Metadata(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "cannot read model metadata")
	}
	if len(md.Inputs) == 0 {
		return nil, ErrNoInputs
	}
	if len(md.Outputs) == 0 {
		return nil, ErrNoOutputs
	}
	in, out := md.Inputs[0], md.Outputs[0]
	p.printf("Number of model inputs: %d\n", len(md.Inputs))
	p.printf("Number of model outputs: %d\n", len(md.Outputs))
	p.printf("Input name [0]: %s\n", in.Name)
	p.printf("Output name [0]: %s\n", out.Name)
	p.printf("Input element type [0]: %s\n", in.DataType)
	p.printf("Input dims [0]: %s\n", joinDims(in.Shape))

	rows, cols := input.Dims()
	if rows == 0 || cols == 0 {
		return nil, ErrEmptyInput
	}
	p.printf("\nInput data (matrix):\n%v\n", mat.Formatted(input))

	inputTensor := ml.MatrixToTensor(input)
	logger.Debugw("built input tensor", "name", in.Name, "shape", inputTensor.Shape().String())

	p.printf("Running inference...\n")
	outTensors, err := svc.Infer(ctx, ml.Tensors{in.Name: inputTensor})
	if err != nil {
		return nil, errors.Wrap(err, "error while running inference")
	}
	p.printf("Inference finished.\n")

	name, outTensor, err := pickOutput(outTensors, out.Name)
	if err != nil {
		return nil, err
	}
	values, err := ml.ConvertToFloat64Slice(outTensor.Data())
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read output %q", name)
	}
	res := &Result{OutputName: name, Shape: []int(outTensor.Shape().Clone()), Values: values}

	p.printf("\nOutput tensor shape: %s\n", joinDims(res.Shape))
	p.printf("Number of output elements: %d\n", len(values))
	p.printf("Predictions:\n")
	for i, v := range values {
		p.printf("Result[%d]: %g\n", i, v)
	}

	if len(res.Shape) == 2 {
		res.Output, err = ml.TensorToMatrix(outTensor)
		if err != nil {
			return nil, err
		}
		p.printf("\nResult (matrix):\n%v\n", mat.Formatted(res.Output))
	}

	res.Summary, err = ml.Summarize(outTensor)
	if err != nil {
		return nil, err
	}
	logger.Debugw("output summary", "name", name, "summary", res.Summary.String())

	p.printf("\nProgram finished successfully.\n")
	if p.err != nil {
		return nil, errors.Wrap(p.err, "cannot write results")
	}
	return res, nil
}

// pickOutput finds the named output, or the only output when the name does not match.
func pickOutput(tensors ml.Tensors, name string) (string, *tensor.Dense, error) {
	if t, ok := tensors[name]; ok {
		if t == nil || t.Size() == 0 {
			return "", nil, errors.Wrapf(ErrEmptyOutput, "output %q", name)
		}
		return name, t, nil
	}
	if len(tensors) == 1 {
		for other, t := range tensors {
			if t == nil || t.Size() == 0 {
				return "", nil, errors.Wrapf(ErrEmptyOutput, "output %q", other)
			}
			return other, t, nil
		}
	}
	return "", nil, errors.Wrapf(ErrEmptyOutput, "no output %q among [%s]", name, strings.Join(ml.TensorNames(tensors), ", "))
}

func joinDims(shape []int) string {
	dims := make([]string, 0, len(shape))
	for _, d := range shape {
		dims = append(dims, strconv.Itoa(d))
	}
	return strings.Join(dims, " ")
}

// printer remembers the first write error so output code can stay linear.
type printer struct {
	w   io.Writer
	err error
}

func (p *printer) printf(format string, args ...interface{}) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}
