package cmd

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

var musicCmd = &cobra.Command{
	Use:   "music",
	Short: "Manage the background music library",
}

var musicListCmd = &cobra.Command{
	Use:   "list",
	Short: "List available tracks",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		result, err := loadService(ctx, true)
		if err != nil {
			return err
		}
		defer func() { _ = result.Close() }()

		tracks, err := result.Service.Music().Tracks(ctx)
		if err != nil {
			return err
		}
		if len(tracks) == 0 {
			fmt.Println(warnStyle.Render("No tracks in " + result.Service.Config().Music.Dir))
			return nil
		}
		for _, t := range tracks {
			fmt.Println(t.Name)
		}
		return nil
	},
}

var musicSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Download tracks from the GCS music prefix",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		result, err := loadService(ctx, true)
		if err != nil {
			return err
		}
		defer func() { _ = result.Close() }()

		if result.GCS == nil {
			return errors.New("gcs is not enabled (set gcs.enabled and gcs.bucket)")
		}
		dir := result.Service.Config().Music.Dir
		n, err := result.GCS.SyncMusic(ctx, dir)
		if err != nil {
			return err
		}
		slog.Info("Music synced", "downloaded", n, "dir", dir)
		return nil
	},
}

func init() {
	musicCmd.AddCommand(musicListCmd, musicSyncCmd)
	rootCmd.AddCommand(musicCmd)
}
