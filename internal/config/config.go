package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/andresmejia3/facewatch/internal/gallery"
	"github.com/andresmejia3/facewatch/internal/nn"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// DefaultFile is read when no --config is given, if it exists
const DefaultFile = "facewatch.yaml"

// EnvPrefix namespaces environment overrides, e.g. FACEWATCH_STREAM_URL
const EnvPrefix = "facewatch"

// Stream source implementations
const (
	SourceFFmpeg = "ffmpeg"
	SourceOpenCV = "opencv"
)

// Multi-face policies for gallery building
const (
	MultiFaceFirst = "first"
	MultiFaceSkip  = "skip"
)

type ModelPaths struct {
	DetectorConfig string `yaml:"detector_config" envconfig:"DETECTOR_CONFIG"` // SSD prototxt
	Detector       string `yaml:"detector" envconfig:"DETECTOR"`               // SSD caffemodel
	Landmark       string `yaml:"landmark" envconfig:"LANDMARK"`
	Descriptor     string `yaml:"descriptor" envconfig:"DESCRIPTOR"`
}

type Config struct {
	StreamURL    string     `yaml:"stream_url" envconfig:"STREAM_URL"`
	StreamSource string     `yaml:"stream_source" envconfig:"STREAM_SOURCE"`
	ModelPaths   ModelPaths `yaml:"model_paths" envconfig:"MODEL_PATHS"`

	// A file path, or a postgres:// URL for the SQL container
	GalleryPath    string  `yaml:"gallery_path" envconfig:"GALLERY_PATH"`
	MatchThreshold float64 `yaml:"match_threshold" envconfig:"MATCH_THRESHOLD"`

	// Reserved for a persistence collaborator; nothing writes here yet
	OutputDir string `yaml:"output_dir" envconfig:"OUTPUT_DIR"`

	Backend        string        `yaml:"backend" envconfig:"BACKEND"`
	WorkerCommand  string        `yaml:"worker_command" envconfig:"WORKER_COMMAND"`
	ExtractWorkers int           `yaml:"extract_workers" envconfig:"EXTRACT_WORKERS"`
	RetryDelay     time.Duration `yaml:"retry_delay" envconfig:"RETRY_DELAY"`

	Display bool `yaml:"display" envconfig:"DISPLAY_WINDOW"` // not DISPLAY, which X11 owns
	Events  bool `yaml:"events" envconfig:"EVENTS"`

	Dataset   string `yaml:"dataset" envconfig:"DATASET"`
	MultiFace string `yaml:"multi_face" envconfig:"MULTI_FACE"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		StreamSource: SourceFFmpeg,
		ModelPaths: ModelPaths{
			DetectorConfig: "models/deploy.prototxt",
			Detector:       "models/res10_300x300_ssd_iter_140000.caffemodel",
			Landmark:       "models/shape_predictor_5_face_landmarks.dat",
			Descriptor:     "models/dlib_face_recognition_resnet_model_v1.dat",
		},
		GalleryPath:    "gallery.msgpack",
		MatchThreshold: gallery.DefaultThreshold,
		OutputDir:      "output",
		Backend:        string(nn.BackendOpenCV),
		WorkerCommand:  "python3 -u python/worker.py",
		ExtractWorkers: 1,
		Display:        true,
		Dataset:        "dataset",
		MultiFace:      MultiFaceFirst,
	}
}

// Load layers defaults, the YAML file at path and FACEWATCH_* environment variables.
// An empty path reads DefaultFile if present.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	case explicit || !errors.Is(err, os.ErrNotExist):
		return cfg, fmt.Errorf("read config: %w", err)
	}

	// Only variables that are set override the file
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return cfg, fmt.Errorf("load environment: %w", err)
	}
	return cfg, nil
}

// Validate rejects values the loop cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if !(c.MatchThreshold > 0) || math.IsInf(c.MatchThreshold, 1) {
		errs = append(errs, fmt.Errorf("match_threshold must be a positive number, got %v", c.MatchThreshold))
	}
	if c.ExtractWorkers < 1 {
		errs = append(errs, fmt.Errorf("extract_workers must be at least 1, got %d", c.ExtractWorkers))
	}
	if c.RetryDelay < 0 {
		errs = append(errs, fmt.Errorf("retry_delay cannot be negative"))
	}
	if _, err := nn.ParseBackend(c.Backend); err != nil {
		errs = append(errs, err)
	}
	if c.StreamSource != SourceFFmpeg && c.StreamSource != SourceOpenCV {
		errs = append(errs, fmt.Errorf("unknown stream_source %q (valid: %s, %s)", c.StreamSource, SourceFFmpeg, SourceOpenCV))
	}
	if c.MultiFace != MultiFaceFirst && c.MultiFace != MultiFaceSkip {
		errs = append(errs, fmt.Errorf("unknown multi_face policy %q (valid: %s, %s)", c.MultiFace, MultiFaceFirst, MultiFaceSkip))
	}
	if c.GalleryPath == "" {
		errs = append(errs, errors.New("gallery_path is required"))
	}
	return errors.Join(errs...)
}
