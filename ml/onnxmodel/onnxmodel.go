// Package onnxmodel writes small, self-contained ONNX models. It exists so that a linear
// regressor equivalent to the one the smoke test expects can be produced without a Python
// toolchain, for local runs and for tests that exercise a real inference session.
package onnxmodel

import (
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"google.golang.org/protobuf/encoding/protowire"
)

const (
	// IRVersion is the ONNX IR version written into every model.
	IRVersion = 8
	// OpsetVersion is the version of the default operator set the graph is written against.
	OpsetVersion = 13

	tensorProtoFloat = 1

	coefficientName = "coefficient"
	interceptName   = "intercept"
	multipliedName  = "multiplied"
	batchDimName    = "N"
)

// LinearModel describes y = X·Coefficients + Intercept for X of shape (N, len(Coefficients)).
type LinearModel struct {
	InputName       string
	OutputName      string
	Coefficients    []float32
	Intercept       float32
	ProducerName    string
	ProducerVersion string
	GraphName       string
	DocString       string
	Metadata        map[string]string
}

// DefaultLinearModel is the single feature y = 2x model that model/model.onnx holds.
func DefaultLinearModel() LinearModel {
	return LinearModel{
		InputName:       "float_input",
		OutputName:      "variable",
		Coefficients:    []float32{2},
		Intercept:       0,
		ProducerName:    "onnxsmoke",
		ProducerVersion: "1.0.0",
		GraphName:       "linear_regression",
		DocString:       "linear regression fit to y = 2x",
	}
}

// Features returns the number of input columns the model expects.
func (lm LinearModel) Features() int {
	return len(lm.Coefficients)
}

// Predict computes the model's output for input with the same arithmetic as the graph.
func (lm LinearModel) Predict(input mat.Matrix) (*mat.Dense, error) {
	rows, cols := input.Dims()
	if cols != lm.Features() {
		return nil, errors.Errorf("input has %d columns but the model expects %d", cols, lm.Features())
	}
	coef := make([]float64, 0, len(lm.Coefficients))
	for _, c := range lm.Coefficients {
		coef = append(coef, float64(c))
	}
	var out mat.Dense
	out.Mul(input, mat.NewDense(cols, 1, coef))
	for i := 0; i < rows; i++ {
		out.Set(i, 0, out.At(i, 0)+float64(lm.Intercept))
	}
	return &out, nil
}

// Marshal encodes the model as a serialized ONNX ModelProto.
func (lm LinearModel) Marshal() ([]byte, error) {
	if lm.InputName == "" || lm.OutputName == "" {
		return nil, errors.New("model input and output names must be set")
	}
	if lm.InputName == lm.OutputName {
		return nil, errors.Errorf("model input and output cannot share the name %q", lm.InputName)
	}
	if len(lm.Coefficients) == 0 {
		return nil, errors.New("model needs at least one coefficient")
	}

	var b []byte
	b = appendVarintField(b, 1, IRVersion)
	b = appendStringField(b, 2, lm.ProducerName)
	b = appendStringField(b, 3, lm.ProducerVersion)
	b = appendVarintField(b, 5, 1)
	b = appendStringField(b, 6, lm.DocString)
	b = appendMessageField(b, 7, lm.graph())
	b = appendMessageField(b, 8, opsetImport("", OpsetVersion))

	keys := make([]string, 0, len(lm.Metadata))
	for k := range lm.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		var entry []byte
		entry = appendStringField(entry, 1, k)
		entry = appendStringField(entry, 2, lm.Metadata[k])
		b = appendMessageField(b, 14, entry)
	}
	return b, nil
}

// WriteFile marshals the model and writes it to path, creating parent directories.
func (lm LinearModel) WriteFile(path string) error {
	data, err := lm.Marshal()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return errors.Wrapf(err, "cannot create directory for %s", path)
	}
	//nolint:gosec
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "cannot write model to %s", path)
	}
	return nil
}

func (lm LinearModel) graph() []byte {
	features := int64(lm.Features())

	var g []byte
	g = appendMessageField(g, 1, node("MatMul", []string{lm.InputName, coefficientName}, multipliedName))
	g = appendMessageField(g, 1, node("Add", []string{multipliedName, interceptName}, lm.OutputName))
	g = appendStringField(g, 2, lm.GraphName)
	g = appendMessageField(g, 5, floatTensor(coefficientName, []int64{features, 1}, lm.Coefficients))
	g = appendMessageField(g, 5, floatTensor(interceptName, []int64{1}, []float32{lm.Intercept}))
	g = appendMessageField(g, 11, valueInfo(lm.InputName, features))
	g = appendMessageField(g, 12, valueInfo(lm.OutputName, 1))
	return g
}

func node(opType string, inputs []string, output string) []byte {
	var n []byte
	for _, in := range inputs {
		n = appendStringField(n, 1, in)
	}
	n = appendStringField(n, 2, output)
	n = appendStringField(n, 3, opType+"_"+output)
	n = appendStringField(n, 4, opType)
	return n
}

// floatTensor writes dims unpacked (proto2 default) and float_data packed, as onnx.proto declares.
func floatTensor(name string, dims []int64, values []float32) []byte {
	var t []byte
	for _, d := range dims {
		t = appendVarintField(t, 1, uint64(d))
	}
	t = appendVarintField(t, 2, tensorProtoFloat)
	packed := make([]byte, 0, 4*len(values))
	for _, v := range values {
		packed = protowire.AppendFixed32(packed, math.Float32bits(v))
	}
	t = appendMessageField(t, 4, packed)
	t = appendStringField(t, 8, name)
	return t
}

// valueInfo describes a float tensor of shape (N, cols) with a symbolic batch dimension.
func valueInfo(name string, cols int64) []byte {
	var batch, width []byte
	batch = appendStringField(batch, 2, batchDimName)
	width = appendVarintField(width, 1, uint64(cols))

	var shape []byte
	shape = appendMessageField(shape, 1, batch)
	shape = appendMessageField(shape, 1, width)

	var tensorType []byte
	tensorType = appendVarintField(tensorType, 1, tensorProtoFloat)
	tensorType = appendMessageField(tensorType, 2, shape)

	var typeProto []byte
	typeProto = appendMessageField(typeProto, 1, tensorType)

	var vi []byte
	vi = appendStringField(vi, 1, name)
	vi = appendMessageField(vi, 2, typeProto)
	return vi
}

func opsetImport(domain string, version int64) []byte {
	var o []byte
	o = appendStringField(o, 1, domain)
	o = appendVarintField(o, 2, uint64(version))
	return o
}

func appendVarintField(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

// appendStringField skips empty strings, matching proto2 optional fields left unset.
func appendStringField(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendMessageField(b []byte, num protowire.Number, msg []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, msg)
}
