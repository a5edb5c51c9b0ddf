package cmd

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"reelsmith/internal/app"
	"reelsmith/internal/platform"
	"reelsmith/internal/script"
)

var (
	segmentImages   []string
	segmentAudio    []string
	segmentPrompt   string
	segmentPlatform string
)

var segmentCmd = &cobra.Command{
	Use:   "segment",
	Short: "Render still-image segment clips",
	Long:  `Render one clip per --image/--audio pair, each as long as its narration.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(segmentAudio) != len(segmentImages) {
			return errors.New("every --image needs a matching --audio")
		}
		return runSegments(cmd, false)
	},
}

var viduCmd = &cobra.Command{
	Use:   "vidu",
	Short: "Animate images into segment clips with Vidu",
	Long: `Animate each --image with the Vidu image-to-video service. When --audio is given
(one per image) the narration replaces the clip's audio track.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(segmentAudio) > 0 && len(segmentAudio) != len(segmentImages) {
			return errors.New("--audio must be given once per --image or not at all")
		}
		return runSegments(cmd, true)
	},
}

func init() {
	for _, c := range []*cobra.Command{segmentCmd, viduCmd} {
		c.Flags().StringSliceVarP(&segmentImages, "image", "i", nil, "Segment image (repeatable, in order)")
		c.Flags().StringSliceVarP(&segmentAudio, "audio", "a", nil, "Segment narration (repeatable, in order)")
		c.Flags().StringVarP(&segmentPlatform, "platform", "p", string(platform.Default), "Target platform")
		_ = c.MarkFlagRequired("image")
		rootCmd.AddCommand(c)
	}
	viduCmd.Flags().StringVar(&segmentPrompt, "prompt", "", "Scene description used for the motion prompt")
}

func runSegments(cmd *cobra.Command, motion bool) error {
	p, err := platform.Parse(segmentPlatform)
	if err != nil {
		return err
	}
	s, err := segmentScript(p)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	result, err := loadService(ctx, true)
	if err != nil {
		return err
	}
	defer func() { _ = result.Close() }()

	render := result.Pipeline.RenderBasicSegments
	if motion {
		render = result.Pipeline.RenderViduSegments
	}
	res, err := render(ctx, userID, s)
	if err != nil {
		return fmt.Errorf("%s: %w", app.UserMessage(err), err)
	}

	resolver := result.Service.Resolver()
	for _, o := range res.Outcomes {
		if o.Err != nil {
			slog.Error("Segment failed", "segment", o.Index+1, "reason", app.UserMessage(o.Err))
			continue
		}
		path, _ := resolver.Resolve(o.Ref)
		slog.Info("Segment rendered", "segment", o.Index+1, "path", path, "url", o.Ref.String())
	}
	if failed := len(res.Failed()); failed > 0 {
		return fmt.Errorf("%d of %d segments failed", failed, len(res.Outcomes))
	}
	return nil
}

func segmentScript(p platform.Platform) (script.Script, error) {
	segs := make([]script.Segment, len(segmentImages))
	for i, image := range segmentImages {
		img, err := localRef(image)
		if err != nil {
			return script.Script{}, err
		}
		seg := script.Segment{
			Script:           fmt.Sprintf("Segment %d", i+1),
			ImageDescription: segmentPrompt,
		}.WithImage(img)

		if i < len(segmentAudio) {
			voice, err := localRef(segmentAudio[i])
			if err != nil {
				return script.Script{}, err
			}
			seg = seg.WithVoice(voice)
		}
		segs[i] = seg
	}
	return script.New("", p, segs...), nil
}
