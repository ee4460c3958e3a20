package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/andresmejia3/facewatch/internal/config"
	"github.com/andresmejia3/facewatch/internal/cv"
	"github.com/andresmejia3/facewatch/internal/nnload"
	"github.com/andresmejia3/facewatch/internal/pipeline"
	"github.com/andresmejia3/facewatch/internal/stream"
	"github.com/andresmejia3/facewatch/internal/utils"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Identify faces in a live stream until 'q' or Ctrl+C",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runWatch(cmd.Context(), Cfg)
	},
}

func init() {
	watchCmd.Flags().StringVarP(&opts.StreamURL, "stream", "s", "", "Stream URL (rtsp://, http://, file path)")
	watchCmd.Flags().StringVar(&opts.StreamSource, "source", config.SourceFFmpeg, "Stream reader: ffmpeg or opencv")
	watchCmd.Flags().StringVarP(&opts.Backend, "backend", "b", "opencv", "Inference backend: opencv, opencv-cuda or worker")
	watchCmd.Flags().IntVarP(&opts.ExtractWorkers, "workers", "w", 1, "Goroutines extracting descriptors per frame")
	watchCmd.Flags().BoolVar(&opts.Display, "display", true, "Show annotated frames in a window")
	watchCmd.Flags().BoolVar(&opts.Events, "events", false, "Write one JSON event per frame to stdout")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(ctx context.Context, cfg config.Config) error {
	if cfg.StreamURL == "" {
		err := fmt.Errorf("no stream_url configured")
		utils.ShowError("Missing stream URL (use --stream or stream_url)", err, nil)
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

	var sinks pipeline.MultiSink
	var stops pipeline.AnyStop
	if cfg.Display {
		win := cv.NewWindow("facewatch")
		defer win.Close()
		sinks = append(sinks, win)
		stops = append(stops, win)
	}
	if cfg.Events {
		sinks = append(sinks, pipeline.NewJSONSink(os.Stdout))
	}
	sinks = append(sinks, &pipeline.LogSink{Log: Log, Every: 5 * time.Second})

	loop := pipeline.New(pipeline.Config{
		StreamURL:      cfg.StreamURL,
		Threshold:      cfg.MatchThreshold,
		ExtractWorkers: cfg.ExtractWorkers,
		Annotate:       cfg.Display,
		RetryDelay:     cfg.RetryDelay,
	}, pipeline.Deps{
		Log:      Log,
		Provider: provider,
		Gallery:  g,
		Open:     opener(cfg.StreamSource),
		Sink:     sinks,
		Stop:     stops,
	})

	fmt.Fprintf(os.Stderr, "👀 Watching %s (press 'q' in the window or Ctrl+C to stop)\n", cfg.StreamURL)
	if err := loop.Run(ctx); err != nil {
		utils.ShowError("Identification loop failed to start", err, nil)
		return err
	}
	return nil
}

func opener(source string) stream.Opener {
	if source == config.SourceOpenCV {
		return cv.OpenCapture
	}
	return stream.OpenFFmpeg
}
