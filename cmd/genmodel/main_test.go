package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"go.viam.com/test"

	"go.viam.com/onnxsmoke/logging"
	"go.viam.com/onnxsmoke/ml/onnxmodel"
)

func TestMainWithArgs(t *testing.T) {
	ctx := context.Background()
	logger, logs := logging.NewObservedTestLogger(t)
	dir := t.TempDir()

	out := filepath.Join(dir, "model", "model.onnx")
	test.That(t, mainWithArgs(ctx, []string{"genmodel", "-out", out}, logger), test.ShouldBeNil)
	got, err := os.ReadFile(out)
	test.That(t, err, test.ShouldBeNil)
	lm := onnxmodel.DefaultLinearModel()
	lm.DocString = "linear regression with coefficients [2] and intercept 0"
	want, err := lm.Marshal()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, got, test.ShouldResemble, want)
	test.That(t, logs.FilterMessage("wrote model").Len(), test.ShouldEqual, 1)

	out = filepath.Join(dir, "wide.onnx")
	err = mainWithArgs(ctx, []string{"genmodel", "-out", out, "-coef", "1, 0.5", "-intercept", "3", "-input", "x", "-output", "y"}, logger)
	test.That(t, err, test.ShouldBeNil)
	_, err = os.Stat(out)
	test.That(t, err, test.ShouldBeNil)

	err = mainWithArgs(ctx, []string{"genmodel", "-out", out, "-coef", "two"}, logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "bad -coef")

	err = mainWithArgs(ctx, []string{"genmodel", "-out", out, "-intercept", "x"}, logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "bad -intercept")

	err = mainWithArgs(ctx, []string{"genmodel", "-out", out, "-input", "same", "-output", "same"}, logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "cannot share the name")
}
