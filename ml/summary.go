package ml

import (
	"fmt"

	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// Summary holds simple descriptive statistics of a tensor's values.
type Summary struct {
	Count int
	Min   float64
	Max   float64
	Mean  float64
}

func (s Summary) String() string {
	return fmt.Sprintf("count=%d min=%g max=%g mean=%g", s.Count, s.Min, s.Max, s.Mean)
}

// Summarize computes the Summary of a numeric tensor.
func Summarize(t *tensor.Dense) (Summary, error) {
	if t == nil {
		return Summary{}, errors.New("cannot summarize a nil tensor")
	}
	values, err := ConvertToFloat64Slice(t.Data())
	if err != nil {
		return Summary{}, err
	}
	if len(values) == 0 {
		return Summary{}, errors.New("cannot summarize an empty tensor")
	}
	data := stats.Float64Data(values)
	minVal, err := data.Min()
	if err != nil {
		return Summary{}, err
	}
	maxVal, err := data.Max()
	if err != nil {
		return Summary{}, err
	}
	mean, err := data.Mean()
	if err != nil {
		return Summary{}, err
	}
	return Summary{Count: len(values), Min: minVal, Max: maxVal, Mean: mean}, nil
}
