package cmd

import (
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"reelsmith/internal/video"
)

var (
	mergeVideo  string
	mergeAudio  string
	mergeOutput string
)

var mergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Replace a clip's audio track with narration",
	Long:  `Copy the video stream of --video and take the audio from --audio, ending at the shorter of the two.`,
	RunE:  runMerge,
}

func init() {
	mergeCmd.Flags().StringVar(&mergeVideo, "video", "", "Input clip")
	mergeCmd.Flags().StringVar(&mergeAudio, "audio", "", "Narration track")
	mergeCmd.Flags().StringVarP(&mergeOutput, "out", "o", "", "Output path (default <video>_merged.mp4)")
	_ = mergeCmd.MarkFlagRequired("video")
	_ = mergeCmd.MarkFlagRequired("audio")
	rootCmd.AddCommand(mergeCmd)
}

func runMerge(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	result, err := loadService(ctx, true)
	if err != nil {
		return err
	}
	defer func() { _ = result.Close() }()

	output := mergeOutput
	if output == "" {
		output = strings.TrimSuffix(mergeVideo, filepath.Ext(mergeVideo)) + "_merged.mp4"
	}

	path, err := video.NewMerger(result.Runner).Merge(ctx, video.MergeRequest{
		VideoPath:  mergeVideo,
		AudioPath:  mergeAudio,
		OutputPath: output,
	})
	if err != nil {
		return err
	}

	slog.Info("Merged narration", "path", path)
	return nil
}
