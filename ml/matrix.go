package ml

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gorgonia.org/tensor"
)

// MatrixToTensor copies m, row by row, into a float32 tensor of shape (rows, cols).
func MatrixToTensor(m mat.Matrix) *tensor.Dense {
	r, c := m.Dims()
	data := make([]float32, 0, r*c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			data = append(data, float32(m.At(i, j)))
		}
	}
	return tensor.New(tensor.WithShape(r, c), tensor.WithBacking(data))
}

// TensorToMatrix copies a 2-D numeric tensor into a new matrix, reading its data as row-major.
func TensorToMatrix(t *tensor.Dense) (*mat.Dense, error) {
	if t == nil {
		return nil, errors.New("cannot convert a nil tensor to a matrix")
	}
	if t.Dims() != 2 {
		return nil, errors.Errorf("can only convert 2-D tensors to a matrix, got shape %v", t.Shape())
	}
	if t.IsMaterializable() {
		m := t.Materialize()
		materialized, ok := m.(*tensor.Dense)
		if !ok {
			return nil, errors.Errorf("materialized tensor is %T, not *tensor.Dense", m)
		}
		t = materialized
	}
	rows, cols := t.Shape()[0], t.Shape()[1]
	if rows == 0 || cols == 0 {
		return nil, errors.Errorf("cannot convert empty tensor of shape %v to a matrix", t.Shape())
	}
	data, err := ConvertToFloat64Slice(t.Data())
	if err != nil {
		return nil, err
	}
	if len(data) != rows*cols {
		return nil, errors.Errorf("tensor of shape %v holds %d values", t.Shape(), len(data))
	}
	return mat.NewDense(rows, cols, data), nil
}
