package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"epmgr/internal/runtime"
	"epmgr/pkg/types"
)

func newClassifyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "classify MODEL_FOLDER INPUT.json",
		Short: "Classify a preprocessed input tensor",
		Long: `Classify loads the model in MODEL_FOLDER on the selected device, compiling
it first when the device needs an artifact, and prints the top predictions.

INPUT.json holds {"shape": [1,3,224,224], "data": [...]} with float32 values
in row-major order. The base model is classify_model_file (SqueezeNet.onnx by
default) unless --model-file is given.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := readTensor(args[1])
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("model-file") && a.cfg.ClassifyModelFile != "" {
				a.cfg.ModelFile = a.cfg.ClassifyModelFile
			}
			m, err := a.selected(cmd)
			if err != nil {
				return err
			}
			defer m.Close()
			info, err := m.LoadClassifier(cmd.Context(), a.folder(args[0]))
			if err != nil {
				return err
			}
			a.log.Info().Str("device", info.Device).Str("path", info.Path).Dur("dur", info.Duration).Msg("Model loaded")
			start := time.Now()
			res, err := m.Classify(cmd.Context(), input)
			if err != nil {
				return err
			}
			a.log.Info().Dur("dur", time.Since(start)).Msg("Inference done")
			cmd.Println(res.Format())
			return nil
		},
	}
}

func readTensor(path string) (runtime.Tensor, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return runtime.Tensor{}, err
	}
	var req types.ClassifyRequest
	if err := json.Unmarshal(b, &req); err != nil {
		return runtime.Tensor{}, fmt.Errorf("%s: %w", path, err)
	}
	return runtime.Tensor{Shape: req.Shape, ElementType: runtime.Float32, Data: req.Data}, nil
}
