// Package testutils provides helpers for tests that need model files on disk.
package testutils

import (
	"path/filepath"
	"testing"

	"go.viam.com/test"

	"go.viam.com/onnxsmoke/ml/onnxmodel"
)

// WriteModel writes lm as model.onnx in a fresh temporary directory and returns its path.
func WriteModel(t *testing.T, lm onnxmodel.LinearModel) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "model.onnx")
	test.That(t, lm.WriteFile(path), test.ShouldBeNil)
	return path
}
