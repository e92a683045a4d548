// Package ml provides the tensor plumbing shared by the inference engine and its callers:
// the named tensor map, numeric conversions, and the bridge to gonum matrices.
package ml

import (
	"sort"

	"github.com/pkg/errors"
	"golang.org/x/exp/constraints"
	"gorgonia.org/tensor"
)

// Tensors are inputs and outputs of an inference call, keyed by tensor name.
type Tensors map[string]*tensor.Dense

// TensorNames returns the names of the tensors in sorted order.
func TensorNames(t Tensors) []string {
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// number interface for converting between numbers.
type number interface {
	constraints.Integer | constraints.Float
}

// convertNumberSlice converts any number slice into another number slice.
func convertNumberSlice[T1, T2 number](t1 []T1) []T2 {
	t2 := make([]T2, len(t1))
	for i := range t1 {
		t2[i] = T2(t1[i])
	}
	return t2
}

// ConvertToFloat64Slice converts a numeric slice or scalar into a new []float64.
func ConvertToFloat64Slice(data interface{}) ([]float64, error) {
	return convertToSlice[float64](data)
}

// ConvertToFloat32Slice converts a numeric slice or scalar into a new []float32.
func ConvertToFloat32Slice(data interface{}) ([]float32, error) {
	return convertToSlice[float32](data)
}

func convertToSlice[T number](data interface{}) ([]T, error) {
	switch v := data.(type) {
	case []float64:
		return convertNumberSlice[float64, T](v), nil
	case float64:
		return []T{T(v)}, nil
	case []float32:
		return convertNumberSlice[float32, T](v), nil
	case float32:
		return []T{T(v)}, nil
	case []int:
		return convertNumberSlice[int, T](v), nil
	case int:
		return []T{T(v)}, nil
	case []int8:
		return convertNumberSlice[int8, T](v), nil
	case int8:
		return []T{T(v)}, nil
	case []int16:
		return convertNumberSlice[int16, T](v), nil
	case int16:
		return []T{T(v)}, nil
	case []int32:
		return convertNumberSlice[int32, T](v), nil
	case int32:
		return []T{T(v)}, nil
	case []int64:
		return convertNumberSlice[int64, T](v), nil
	case int64:
		return []T{T(v)}, nil
	case []uint:
		return convertNumberSlice[uint, T](v), nil
	case uint:
		return []T{T(v)}, nil
	case []uint8:
		return convertNumberSlice[uint8, T](v), nil
	case uint8:
		return []T{T(v)}, nil
	case []uint16:
		return convertNumberSlice[uint16, T](v), nil
	case uint16:
		return []T{T(v)}, nil
	case []uint32:
		return convertNumberSlice[uint32, T](v), nil
	case uint32:
		return []T{T(v)}, nil
	case []uint64:
		return convertNumberSlice[uint64, T](v), nil
	case uint64:
		return []T{T(v)}, nil
	default:
		return nil, errors.Errorf("dont know how to convert data of type %T into a numeric slice", data)
	}
}
