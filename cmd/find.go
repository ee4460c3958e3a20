package cmd

import (
	"context"
	"fmt"
	"image/jpeg"
	"os"
	"text/tabwriter"

	"github.com/andresmejia3/facewatch/internal/annotate"
	"github.com/andresmejia3/facewatch/internal/builder"
	"github.com/andresmejia3/facewatch/internal/config"
	"github.com/andresmejia3/facewatch/internal/nnload"
	"github.com/andresmejia3/facewatch/internal/pipeline"
	"github.com/andresmejia3/facewatch/internal/types"
	"github.com/andresmejia3/facewatch/internal/utils"
	"github.com/spf13/cobra"
)

var findOut string

var findCmd = &cobra.Command{
	Use:   "find <image_path>",
	Short: "Identify the faces in a still image against the gallery",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runFind(cmd.Context(), args[0], Cfg)
	},
}

func init() {
	findCmd.Flags().StringVarP(&opts.Backend, "backend", "b", "opencv", "Inference backend: opencv, opencv-cuda or worker")
	findCmd.Flags().StringVarP(&findOut, "out", "o", "", "Write the annotated image to this JPEG file")
	rootCmd.AddCommand(findCmd)
}

func runFind(ctx context.Context, imagePath string, cfg config.Config) error {
	if _, err := os.Stat(imagePath); os.IsNotExist(err) {
		utils.ShowError("Input file does not exist", err, nil)
		return err
	}

	img, err := builder.ReadImage(imagePath)
	if err != nil {
		utils.ShowError("Failed to read image file", err, nil)
		return err
	}

	fmt.Fprintln(os.Stderr, "🗄️  Loading gallery...")
	g, err := Gallery.Load(ctx)
	if err != nil {
		utils.ShowError("Failed to load gallery", err, nil)
		return err
	}

	fmt.Fprintln(os.Stderr, "🚀 Loading models...")
	provider, err := nnload.Load(ctx, Log, cfg)
	if err != nil {
		utils.ShowError("Failed to load models", err, nil)
		return err
	}
	defer provider.Close()

	fmt.Fprintln(os.Stderr, "🔍 Analyzing faces...")
	frame := types.NewFrame(img)
	results, err := pipeline.NewIdentifier(Log, provider, g, cfg.MatchThreshold, cfg.ExtractWorkers).Identify(frame)
	if err != nil {
		utils.ShowError("Face detection failed", err, nil)
		return err
	}

	if len(results) == 0 {
		fmt.Println("❌ No faces detected in the provided image.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "FACE\tBOX\tLABEL\tDISTANCE")
	fmt.Fprintln(w, "----\t---\t-----\t--------")
	for i, r := range results {
		fmt.Fprintf(w, "%d\t(%d,%d)-(%d,%d)\t%s\t%.3f\n", i+1, r.Box.X1, r.Box.Y1, r.Box.X2, r.Box.Y2, r.Label, r.Distance)
	}
	w.Flush()

	if findOut != "" {
		annotate.Draw(frame.Image, results, 0)
		if err := writeJPEG(findOut, frame); err != nil {
			utils.ShowError("Failed to write annotated image", err, nil)
			return err
		}
		fmt.Fprintf(os.Stderr, "🖼️  Annotated image written to %s\n", findOut)
	}
	return nil
}

func writeJPEG(path string, frame *types.Frame) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := jpeg.Encode(f, frame.Image, &jpeg.Options{Quality: 90}); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
