package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/andresmejia3/facewatch/internal/config"
	"github.com/andresmejia3/facewatch/internal/gallery"
	"github.com/andresmejia3/facewatch/internal/store"
	"github.com/cyclopcam/logs"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Options holds command-line overrides. A flag only wins over the config when it was set.
type Options struct {
	GalleryPath    string
	MatchThreshold float64
	StreamURL      string
	StreamSource   string
	Backend        string
	ExtractWorkers int
	Display        bool
	Events         bool
	Dataset        string
	MultiFace      string
}

var (
	// Cfg is the effective configuration after files, environment and flags
	Cfg config.Config
	// Gallery is the gallery container shared by subcommands
	Gallery gallery.Container
	// Log is the process logger
	Log logs.Log

	cfgFile string
	opts    Options
	closeDB func()
)

// Version is the application version.
const Version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:     "facewatch",
	Short:   "Live face identification against a labeled gallery",
	Version: Version, // This enables the --version flag
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		Cfg, err = config.Load(cfgFile)
		if err != nil {
			return err
		}
		applyFlags(cmd, &Cfg)
		if err := Cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		Log, err = logs.NewLog()
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}

		// Use the command's context (which will be cancellable) for the connection
		Gallery, closeDB, err = openContainer(cmd.Context(), Cfg.GalleryPath)
		if err != nil {
			return fmt.Errorf("failed to open gallery: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if closeDB != nil {
			closeDB()
		}
		if Log != nil {
			Log.Close()
		}
	},
}

func Execute() {
	// Create a context that listens for Ctrl+C (SIGINT) or Kill (SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// This tells Cobra not to print the version in the help text, which is cleaner.
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(loadDotEnv)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML config file (default: "+config.DefaultFile+" if present)")
	rootCmd.PersistentFlags().StringVarP(&opts.GalleryPath, "gallery", "g", "", "Gallery file, or a postgres:// URL")
	rootCmd.PersistentFlags().Float64VarP(&opts.MatchThreshold, "threshold", "t", gallery.DefaultThreshold, "Face matching threshold (lower is stricter)")
}

func loadDotEnv() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}

// applyFlags copies every flag the user set into cfg
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	set := cmd.Flags().Changed
	if set("gallery") {
		cfg.GalleryPath = opts.GalleryPath
	}
	if set("threshold") {
		cfg.MatchThreshold = opts.MatchThreshold
	}
	if set("stream") {
		cfg.StreamURL = opts.StreamURL
	}
	if set("source") {
		cfg.StreamSource = opts.StreamSource
	}
	if set("backend") {
		cfg.Backend = opts.Backend
	}
	if set("workers") {
		cfg.ExtractWorkers = opts.ExtractWorkers
	}
	if set("display") {
		cfg.Display = opts.Display
	}
	if set("events") {
		cfg.Events = opts.Events
	}
	if set("dataset") {
		cfg.Dataset = opts.Dataset
	}
	if set("multi-face") {
		cfg.MultiFace = opts.MultiFace
	}
}

// openContainer picks the SQL container for postgres:// URLs and the msgpack file otherwise
func openContainer(ctx context.Context, location string) (gallery.Container, func(), error) {
	if !store.IsURL(location) {
		return &gallery.FileBackend{Path: location}, nil, nil
	}
	db, err := store.New(ctx, location)
	if err != nil {
		return nil, nil, err
	}
	// Use Background here because the main context might be cancelled already (due to Ctrl+C)
	// and we still need to send the "Close" command to the DB.
	return db, func() { db.Close(context.Background()) }, nil
}
