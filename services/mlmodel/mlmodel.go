// Package mlmodel defines the service that takes a map of input tensors, passes them through an
// inference engine, and returns a map of output tensors.
package mlmodel

import (
	"context"

	"go.viam.com/onnxsmoke/ml"
)

// Service is an inference engine loaded with one model.
type Service interface {
	Infer(ctx context.Context, tensors ml.Tensors) (ml.Tensors, error)
	Metadata(ctx context.Context) (MLMetadata, error)
	Close(ctx context.Context) error
}

// MLMetadata describes a model and the tensors it consumes and produces.
type MLMetadata struct {
	ModelName        string
	ModelType        string // e.g. onnx_regressor
	ModelDescription string
	Inputs           []TensorInfo
	Outputs          []TensorInfo
}

// TensorInfo describes one input or output tensor.
type TensorInfo struct {
	Name        string // e.g. float_input
	Description string
	DataType    string // e.g. uint8, float32, int64
	Shape       []int  // -1 marks a dimension only known at inference time
	Extra       map[string]interface{}
}

// NDim returns the number of dimensions of the tensor.
func (ti TensorInfo) NDim() int {
	return len(ti.Shape)
}
