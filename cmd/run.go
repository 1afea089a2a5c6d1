// cmd/run.go
package cmd

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/vitovidale/clip-processor-service/domain"
	"github.com/vitovidale/clip-processor-service/usecase"
)

var (
	runInstructions string
	runRanges       []string
	runSubtitles    bool
)

var runCmd = &cobra.Command{
	Use:   "run <video-id>",
	Short: "Run the pipeline for one video in the foreground",
	Long: `Runs transcription for the video and, when --instructions or --range is
given, queues and runs one clip extraction job. Output is the resulting state
as JSON.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ranges := make([]domain.TimeRange, 0, len(runRanges))
		for _, raw := range runRanges {
			r, err := parseRange(raw)
			if err != nil {
				return err
			}
			ranges = append(ranges, r)
		}

		ctx := cmd.Context()
		a, err := newApp(ctx, false)
		if err != nil {
			return err
		}
		defer a.Close()

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if runInstructions == "" && len(ranges) == 0 {
			video, err := a.pipeline.RunPipeline(ctx, args[0])
			if err != nil {
				return err
			}
			return enc.Encode(video)
		}
		out, err := a.pipeline.ExtractClips(ctx, usecase.ExtractClipsInput{
			VideoID:       args[0],
			Instructions:  runInstructions,
			Ranges:        ranges,
			WithSubtitles: runSubtitles,
		})
		if out != nil {
			if encErr := enc.Encode(out); encErr != nil && err == nil {
				err = encErr
			}
		}
		return err
	},
}

// parseRange reads "START-END" where each bound is HH:MM:SS or seconds.
func parseRange(raw string) (domain.TimeRange, error) {
	start, end, ok := strings.Cut(raw, "-")
	if !ok {
		return domain.TimeRange{}, fmt.Errorf("invalid range %q: want START-END", raw)
	}
	s, err := parseBound(start)
	if err != nil {
		return domain.TimeRange{}, fmt.Errorf("invalid range %q: %w", raw, err)
	}
	e, err := parseBound(end)
	if err != nil {
		return domain.TimeRange{}, fmt.Errorf("invalid range %q: %w", raw, err)
	}
	if e <= s {
		return domain.TimeRange{}, fmt.Errorf("invalid range %q: end must be after start", raw)
	}
	return domain.TimeRange{StartSeconds: s, EndSeconds: e}, nil
}

func parseBound(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if strings.Contains(s, ":") {
		return domain.ParseTimecode(s)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%q is not a timecode or a non-negative number of seconds", s)
	}
	return v, nil
}

func init() {
	runCmd.Flags().StringVar(&runInstructions, "instructions", "", "editor instructions for clip selection")
	runCmd.Flags().StringArrayVar(&runRanges, "range", nil, "explicit clip range START-END, repeatable")
	runCmd.Flags().BoolVar(&runSubtitles, "subtitles", false, "generate draft subtitles for extracted clips")
}
