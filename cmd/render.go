package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"reelsmith/internal/app"
	"reelsmith/internal/asset"
	"reelsmith/internal/llm"
	"reelsmith/internal/platform"
	"reelsmith/internal/script"
)

var (
	renderTopic    string
	renderTone     string
	renderPlatform string
	renderSegments int
	renderMotion   bool
	renderMusic    string
	renderVolume   float64
	renderClips    []string
)

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Produce a final video",
	Long: `Produce a final video from a topic (storyboard, images, voices, clips, final cut),
or join existing clips in order with --clip.`,
	RunE: runRender,
}

func init() {
	renderCmd.Flags().StringVarP(&renderTopic, "topic", "t", "", "Topic for the storyboard")
	renderCmd.Flags().StringVar(&renderTone, "tone", "", "Narration tone")
	renderCmd.Flags().StringVarP(&renderPlatform, "platform", "p", string(platform.Default), "Target platform")
	renderCmd.Flags().IntVarP(&renderSegments, "segments", "n", llm.DefaultSegments, "Number of segments")
	renderCmd.Flags().BoolVar(&renderMotion, "motion", false, "Animate segments with Vidu instead of still images")
	renderCmd.Flags().StringVarP(&renderMusic, "music", "m", "random", `Music track name, "random" or "none"`)
	renderCmd.Flags().Float64Var(&renderVolume, "volume", 0, "Music volume (0 uses music.volume)")
	renderCmd.Flags().StringSliceVar(&renderClips, "clip", nil, "Existing clip to join (repeatable, in order)")
	rootCmd.AddCommand(renderCmd)
}

func runRender(cmd *cobra.Command, args []string) error {
	if renderTopic == "" && len(renderClips) == 0 {
		return errors.New("please provide --topic or --clip")
	}
	p, err := platform.Parse(renderPlatform)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	result, err := loadService(ctx, true)
	if err != nil {
		return err
	}
	defer func() { _ = result.Close() }()

	if len(renderClips) > 0 {
		return joinClips(cmd, result.Pipeline, p)
	}

	slog.Info("Producing video...", "topic", renderTopic, "platform", p, "motion", renderMotion)
	res, err := result.Pipeline.Produce(ctx, app.ProduceRequest{
		UserID: userID,
		Brief: llm.Brief{
			Topic:    renderTopic,
			Tone:     renderTone,
			Platform: p,
			Segments: renderSegments,
		},
		Motion:      renderMotion,
		Music:       renderMusic,
		MusicVolume: renderVolume,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", app.UserMessage(err), err)
	}

	logFinal(res.Script.Title, res.Video.Path, res.Video.URL, res.Video.DurationSeconds, res.Video.Diagnostics.Drift)
	return nil
}

func joinClips(cmd *cobra.Command, pipeline *app.Pipeline, p platform.Platform) error {
	segs := make([]script.Segment, len(renderClips))
	for i, clip := range renderClips {
		loc, err := localRef(clip)
		if err != nil {
			return err
		}
		segs[i] = script.Segment{Script: clip}.WithVideo(loc)
	}

	slog.Info("Joining clips...", "count", len(segs), "platform", p)
	final, err := pipeline.Concat(cmd.Context(), app.ConcatInput{
		UserID:      userID,
		Script:      script.New("", p, segs...),
		Music:       renderMusic,
		MusicVolume: renderVolume,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", app.UserMessage(err), err)
	}

	logFinal("", final.Path, final.URL, final.DurationSeconds, final.Diagnostics.Drift)
	return nil
}

// localRef parses a command line reference. Relative paths are taken from
// the working directory rather than the public root.
func localRef(ref string) (asset.Locator, error) {
	loc, err := asset.Parse(ref)
	if err != nil || loc.Kind != asset.KindLocalPath {
		return loc, err
	}
	abs, err := filepath.Abs(loc.Path)
	if err != nil {
		return asset.Locator{}, err
	}
	return asset.LocalPath(abs), nil
}

func logFinal(title, path, url string, duration, drift float64) {
	slog.Info("Video generated",
		"title", title,
		"path", path,
		"url", url,
		"duration", duration,
		"drift", drift,
	)
}
