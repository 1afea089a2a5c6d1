// cmd/reset.go
package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"
	"github.com/vitovidale/clip-processor-service/usecase"
)

var resetStep string

var resetCmd = &cobra.Command{
	Use:   "reset <video-id>",
	Short: "Rewind a video so the pipeline redoes work from a step onward",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		step, err := usecase.ParseResetStep(resetStep)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		a, err := newApp(ctx, false)
		if err != nil {
			return err
		}
		defer a.Close()

		video, err := a.reset.Execute(ctx, args[0], step)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(video)
	},
}

func init() {
	resetCmd.Flags().StringVar(&resetStep, "step", string(usecase.ResetAll), "cache, audio, transcribe, refine, clips or all")
}
