// Package main writes the linear regression onnx model that onnxsmoke runs by default.
package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"go.viam.com/utils"

	"go.viam.com/onnxsmoke/logging"
	"go.viam.com/onnxsmoke/ml/onnxmodel"
)

var logger = logging.NewLogger("genmodel")

func main() {
	utils.ContextualMain(mainWithArgs, logger)
}

// Arguments for the command.
type Arguments struct {
	Out          string `flag:"out,default=model/model.onnx,usage=where to write the model"`
	Coefficients string `flag:"coef,default=2,usage=coefficients separated by commas with one per input column"`
	Intercept    string `flag:"intercept,default=0,usage=intercept added to every prediction"`
	InputName    string `flag:"input,default=float_input,usage=input tensor name"`
	OutputName   string `flag:"output,default=variable,usage=output tensor name"`
}

func mainWithArgs(ctx context.Context, args []string, logger logging.Logger) error {
	var argsParsed Arguments
	if err := utils.ParseFlags(args, &argsParsed); err != nil {
		return err
	}

	lm := onnxmodel.DefaultLinearModel()
	lm.InputName = argsParsed.InputName
	lm.OutputName = argsParsed.OutputName

	coefs, err := parseFloats(argsParsed.Coefficients)
	if err != nil {
		return errors.Wrap(err, "bad -coef")
	}
	lm.Coefficients = coefs
	intercept, err := strconv.ParseFloat(strings.TrimSpace(argsParsed.Intercept), 32)
	if err != nil {
		return errors.Wrap(err, "bad -intercept")
	}
	lm.Intercept = float32(intercept)
	lm.DocString = fmt.Sprintf("linear regression with coefficients %v and intercept %g", coefs, lm.Intercept)

	if err := lm.WriteFile(argsParsed.Out); err != nil {
		return err
	}
	logger.Infow("wrote model", "path", argsParsed.Out, "features", lm.Features(),
		"input", lm.InputName, "output", lm.OutputName)
	return nil
}

func parseFloats(s string) ([]float32, error) {
	parts := strings.Split(s, ",")
	out := make([]float32, 0, len(parts))
	for _, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, err
		}
		out = append(out, float32(f))
	}
	return out, nil
}
