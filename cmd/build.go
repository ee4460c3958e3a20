package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/andresmejia3/facewatch/internal/builder"
	"github.com/andresmejia3/facewatch/internal/config"
	"github.com/andresmejia3/facewatch/internal/gallery"
	"github.com/andresmejia3/facewatch/internal/nnload"
	"github.com/andresmejia3/facewatch/internal/utils"
	"github.com/spf13/cobra"
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build the gallery from a dataset of labeled face images",
	Long: `Reads <dataset>/<label>/<image> and stores one descriptor per usable image.
The gallery container is overwritten.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runBuild(cmd.Context(), Cfg)
	},
}

func init() {
	buildCmd.Flags().StringVarP(&opts.Dataset, "dataset", "d", "dataset", "Dataset root with one directory per label")
	buildCmd.Flags().StringVar(&opts.MultiFace, "multi-face", config.MultiFaceFirst, "Images with several faces: first or skip")
	buildCmd.Flags().StringVarP(&opts.Backend, "backend", "b", "opencv", "Inference backend: opencv, opencv-cuda or worker")
	rootCmd.AddCommand(buildCmd)
}

func runBuild(ctx context.Context, cfg config.Config) error {
	if info, err := os.Stat(cfg.Dataset); err != nil || !info.IsDir() {
		if err == nil {
			err = fmt.Errorf("%s is not a directory", cfg.Dataset)
		}
		utils.ShowError("Dataset directory is not readable", err, nil)
		return err
	}

	fmt.Fprintln(os.Stderr, "🚀 Loading models...")
	provider, err := nnload.Load(ctx, Log, cfg)
	if err != nil {
		utils.ShowError("Failed to load models", err, nil)
		return err
	}
	defer provider.Close()

	entries, stats, err := builder.Build(ctx, builder.Options{
		Dataset:  cfg.Dataset,
		Provider: provider,
		Log:      Log,
		Policy:   builder.MultiFacePolicy(cfg.MultiFace),
		Progress: os.Stderr,
	})
	fmt.Fprintln(os.Stderr)
	if err != nil {
		utils.ShowError("Gallery build interrupted", err, nil)
		return err
	}
	if len(entries) == 0 {
		err := gallery.ErrEmptyGallery
		utils.ShowError("No usable faces found in the dataset", err, nil)
		return err
	}

	g, err := gallery.New(entries)
	if err != nil {
		utils.ShowError("Descriptors are inconsistent", err, nil)
		return err
	}
	if err := Gallery.Save(ctx, g); err != nil {
		utils.ShowError("Failed to save gallery", err, nil)
		return err
	}

	fmt.Printf("✅ Gallery saved to %v (%s)\n", Gallery, stats)
	return nil
}
