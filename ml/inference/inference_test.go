package inference

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
	"go.viam.com/test"
	"gorgonia.org/tensor"

	"go.viam.com/onnxsmoke/ml"
	"go.viam.com/onnxsmoke/ml/onnxmodel"
	"go.viam.com/onnxsmoke/testutils"
)

func TestParseOptimizationLevel(t *testing.T) {
	for input, expected := range map[string]OptimizationLevel{
		"":         OptimizationExtended,
		"disable":  OptimizationDisabled,
		"Basic":    OptimizationBasic,
		"EXTENDED": OptimizationExtended,
		"all":      OptimizationAll,
	} {
		level, err := ParseOptimizationLevel(input)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, level, test.ShouldEqual, expected)
	}
	_, err := ParseOptimizationLevel("max")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "unknown graph optimization level")
}

func TestNewONNXModelLoader(t *testing.T) {
	loader, err := NewDefaultONNXModelLoader()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, loader.NumThreads(), test.ShouldEqual, 1)
	test.That(t, loader.optLevel, test.ShouldEqual, OptimizationExtended)

	loader, err = NewONNXModelLoader(4, OptimizationAll)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, loader.NumThreads(), test.ShouldEqual, 4)

	_, err = NewONNXModelLoader(0, OptimizationAll)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = NewONNXModelLoader(1, OptimizationLevel("turbo"))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestLoadMissingModel(t *testing.T) {
	loader, err := NewDefaultONNXModelLoader()
	test.That(t, err, test.ShouldBeNil)
	_, err = loader.Load(filepath.Join(t.TempDir(), "missing.onnx"))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "failed to load")
	test.That(t, os.IsNotExist(errors.Cause(err)), test.ShouldBeTrue)
}

func TestSharedLibraryPath(t *testing.T) {
	t.Setenv(SharedLibraryEnvVar, "")
	test.That(t, SharedLibraryPath("/opt/ort/libonnxruntime.so"), test.ShouldEqual, "/opt/ort/libonnxruntime.so")

	switch runtime.GOOS {
	case "windows":
		test.That(t, SharedLibraryPath(""), test.ShouldEqual, "onnxruntime.dll")
	case "darwin":
		test.That(t, SharedLibraryPath(""), test.ShouldEqual, "libonnxruntime.dylib")
	default:
		test.That(t, SharedLibraryPath(""), test.ShouldEqual, "libonnxruntime.so")
	}

	t.Setenv(SharedLibraryEnvVar, "/from/env.so")
	test.That(t, SharedLibraryPath(""), test.ShouldEqual, "/from/env.so")
	test.That(t, SharedLibraryPath("/explicit.so"), test.ShouldEqual, "/explicit.so")
}

func TestReleaseWithoutInit(t *testing.T) {
	err := ReleaseEnvironment()
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "more times")
}

func TestElementTypeName(t *testing.T) {
	test.That(t, ElementTypeName(ort.TensorElementDataTypeFloat), test.ShouldEqual, "float32")
	test.That(t, ElementTypeName(ort.TensorElementDataTypeInt64), test.ShouldEqual, "int64")
	test.That(t, ElementTypeName(ort.TensorElementDataType(999)), test.ShouldEqual, "onnx_type_999")
}

func TestPickInput(t *testing.T) {
	x := tensor.New(tensor.WithShape(2, 1), tensor.WithBacking([]float32{8, 9}))

	got, err := pickInput(ml.Tensors{"float_input": x}, "float_input", 1)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, got, test.ShouldEqual, x)

	got, err = pickInput(ml.Tensors{"anything": x}, "float_input", 1)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, got, test.ShouldEqual, x)

	_, err = pickInput(ml.Tensors{"a": x, "b": x}, "float_input", 1)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "[a, b]")

	_, err = pickInput(ml.Tensors{"a": x}, "float_input", 2)
	test.That(t, err, test.ShouldNotBeNil)
}

// initTestEnvironment initializes onnxruntime, skipping the test when no library is configured.
func initTestEnvironment(t *testing.T) {
	t.Helper()
	if os.Getenv(SharedLibraryEnvVar) == "" {
		t.Skipf("%s is not set; skipping test that needs onnxruntime", SharedLibraryEnvVar)
	}
	test.That(t, InitEnvironment(""), test.ShouldBeNil)
	t.Cleanup(func() {
		test.That(t, ReleaseEnvironment(), test.ShouldBeNil)
	})
}

func TestLoadAndInfer(t *testing.T) {
	initTestEnvironment(t)
	lm := onnxmodel.DefaultLinearModel()
	lm.Metadata = map[string]string{"target": "y"}
	path := testutils.WriteModel(t, lm)

	loader, err := NewDefaultONNXModelLoader()
	test.That(t, err, test.ShouldBeNil)
	model, err := loader.Load(path)
	test.That(t, err, test.ShouldBeNil)
	defer func() {
		test.That(t, model.Close(), test.ShouldBeNil)
	}()
	test.That(t, model.Path(), test.ShouldEqual, path)

	info := model.Info
	test.That(t, info.InputTensorCount, test.ShouldEqual, 1)
	test.That(t, info.OutputTensorCount, test.ShouldEqual, 1)
	test.That(t, info.InputNames, test.ShouldResemble, []string{"float_input"})
	test.That(t, info.OutputNames, test.ShouldResemble, []string{"variable"})
	test.That(t, info.InputTensorTypes, test.ShouldResemble, []string{"float32"})
	test.That(t, info.InputShapes, test.ShouldResemble, [][]int64{{-1, 1}})

	input := tensor.New(tensor.WithShape(2, 1), tensor.WithBacking([]float32{8, 9}))
	out, err := model.Infer(ml.Tensors{"float_input": input})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, ml.TensorNames(out), test.ShouldResemble, []string{"variable"})
	test.That(t, []int(out["variable"].Shape()), test.ShouldResemble, []int{2, 1})
	test.That(t, out["variable"].Data(), test.ShouldResemble, []float32{16, 18})

	md, err := model.Metadata()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, md.ProducerName, test.ShouldEqual, "onnxsmoke")
	test.That(t, md.GraphName, test.ShouldEqual, "linear_regression")
	test.That(t, md.Custom, test.ShouldResemble, map[string]string{"target": "y"})
}

func TestInferErrors(t *testing.T) {
	initTestEnvironment(t)
	path := testutils.WriteModel(t, onnxmodel.DefaultLinearModel())

	loader, err := NewDefaultONNXModelLoader()
	test.That(t, err, test.ShouldBeNil)
	model, err := loader.Load(path)
	test.That(t, err, test.ShouldBeNil)

	_, err = model.Infer(ml.Tensors{})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "float_input")

	words := tensor.New(tensor.WithShape(1), tensor.WithBacking([]string{"eight"}))
	_, err = model.Infer(ml.Tensors{"float_input": words})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "cannot convert input")

	// wrong element type for the graph
	ints := tensor.New(tensor.WithShape(2, 1), tensor.WithBacking([]int64{8, 9}))
	_, err = model.Infer(ml.Tensors{"float_input": ints})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "failed to run inference")

	test.That(t, model.Close(), test.ShouldBeNil)
	test.That(t, model.Close(), test.ShouldBeNil)
	_, err = model.Infer(ml.Tensors{})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "closed")
}
