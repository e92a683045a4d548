package logging

import (
	"encoding/json"
	"testing"

	"go.uber.org/zap/zapcore"
	"go.viam.com/test"
)

func TestLevelFromString(t *testing.T) {
	for _, tc := range []struct {
		input    string
		expected Level
	}{
		{"debug", DEBUG},
		{"INFO", INFO},
		{"Warn", WARN},
		{"warning", WARN},
		{"error", ERROR},
	} {
		level, err := LevelFromString(tc.input)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, level, test.ShouldEqual, tc.expected)
	}

	_, err := LevelFromString("loud")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "unknown log level")
}

func TestLevelJSON(t *testing.T) {
	data, err := json.Marshal(WARN)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(data), test.ShouldEqual, `"warn"`)

	var level Level
	test.That(t, json.Unmarshal([]byte(`"error"`), &level), test.ShouldBeNil)
	test.That(t, level, test.ShouldEqual, ERROR)
	test.That(t, level.AsZap(), test.ShouldEqual, zapcore.ErrorLevel)
}

func TestObservedLogger(t *testing.T) {
	logger, logs := NewObservedTestLogger(t)

	logger.Debugw("loading model", "path", "model/model.onnx")
	logger.Infof("inputs: %d", 1)
	test.That(t, logs.Len(), test.ShouldEqual, 2)

	entries := logs.TakeAll()
	test.That(t, entries[0].Message, test.ShouldEqual, "loading model")
	test.That(t, entries[0].ContextMap()["path"], test.ShouldEqual, "model/model.onnx")
	test.That(t, entries[1].Message, test.ShouldEqual, "inputs: 1")
	test.That(t, entries[1].Level, test.ShouldEqual, zapcore.InfoLevel)
}

func TestSetLevel(t *testing.T) {
	logger, logs := NewObservedTestLogger(t)
	logger.SetLevel(WARN)
	test.That(t, logger.GetLevel(), test.ShouldEqual, WARN)

	logger.Debug("dropped")
	logger.Info("dropped")
	logger.Warn("kept")
	logger.Error("kept")
	test.That(t, logs.Len(), test.ShouldEqual, 2)
}

func TestSublogger(t *testing.T) {
	logger, logs := NewObservedTestLogger(t)
	parent := logger.Sublogger("onnx")
	child := parent.Sublogger("session")
	child.SetLevel(ERROR)

	parent.Info("parent")
	child.Info("dropped")
	child.Error("child")

	entries := logs.TakeAll()
	test.That(t, len(entries), test.ShouldEqual, 2)
	test.That(t, entries[0].LoggerName, test.ShouldEqual, "onnx")
	test.That(t, entries[1].LoggerName, test.ShouldEqual, "onnx.session")
	// the child level does not leak into the parent
	test.That(t, parent.GetLevel(), test.ShouldEqual, DEBUG)
}

func TestFromZapCompatible(t *testing.T) {
	logger, logs := NewObservedTestLogger(t)
	test.That(t, FromZapCompatible(logger), test.ShouldEqual, logger)

	wrapped := FromZapCompatible(logger.Desugar().Sugar())
	wrapped.Info("through zap")
	test.That(t, logs.FilterMessage("through zap").Len(), test.ShouldEqual, 1)
}

func TestGlobal(t *testing.T) {
	prev := Global()
	defer ReplaceGlobal(prev)

	logger := NewBlankLogger("global")
	ReplaceGlobal(logger)
	test.That(t, Global(), test.ShouldEqual, logger)
}
