// Package main loads an onnx model, runs one inference on a fixed input and prints the result.
package main

import (
	"context"
	"os"

	"github.com/klauspost/cpuid/v2"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"go.viam.com/onnxsmoke/logging"
	"go.viam.com/onnxsmoke/services/mlmodel"
	"go.viam.com/onnxsmoke/services/mlmodel/onnxcpu"
	"go.viam.com/onnxsmoke/smoke"
)

var logger = logging.NewLogger("onnxsmoke")

func main() {
	utils.ContextualMain(mainWithArgs, logger)
}

// Arguments for the command.
type Arguments struct {
	ModelPath    string `flag:"model,default=model/model.onnx,usage=onnx model file"`
	ORTLibrary   string `flag:"ortlib,usage=onnxruntime shared library"`
	NumThreads   int    `flag:"threads,default=1,usage=intra-op threads"`
	Optimization string `flag:"optimization,default=extended,usage=graph optimization level (disable|basic|extended|all)"`
	Debug        bool   `flag:"debug"`
}

func mainWithArgs(ctx context.Context, args []string, logger logging.Logger) (err error) {
	var argsParsed Arguments
	if err := utils.ParseFlags(args, &argsParsed); err != nil {
		return err
	}
	if argsParsed.Debug {
		logger.SetLevel(logging.DEBUG)
		logger.Debugw("cpu",
			"brand", cpuid.CPU.BrandName,
			"physical_cores", cpuid.CPU.PhysicalCores,
			"logical_cores", cpuid.CPU.LogicalCores,
			"avx2", cpuid.CPU.Supports(cpuid.AVX2))
	}

	conf := onnxcpu.ONNXConfig{
		NumThreads:        argsParsed.NumThreads,
		OptimizationLevel: argsParsed.Optimization,
		SharedLibraryPath: argsParsed.ORTLibrary,
	}
	svc, err := smoke.Load(ctx, os.Stdout, argsParsed.ModelPath, func(ctx context.Context, modelPath string) (mlmodel.Service, error) {
		conf.ModelPath = modelPath
		model, err := onnxcpu.NewONNXCPUModel(ctx, &conf, logger)
		if err != nil {
			return nil, err
		}
		return model, nil
	})
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, svc.Close(ctx))
	}()

	_, err = smoke.Run(ctx, svc, smoke.DefaultInput(), os.Stdout, logger)
	return err
}
