// Package nnload builds the inference provider selected by configuration.
package nnload

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/andresmejia3/facewatch/internal/config"
	"github.com/andresmejia3/facewatch/internal/cv"
	"github.com/andresmejia3/facewatch/internal/nn"
	"github.com/andresmejia3/facewatch/internal/nn/dlib"
	"github.com/andresmejia3/facewatch/internal/worker"
	"github.com/cyclopcam/logs"
)

// ModelNotFoundError is returned when a configured model artifact is missing
type ModelNotFoundError struct {
	Model string
	Path  string
	Err   error
}

func (e *ModelNotFoundError) Error() string {
	return fmt.Sprintf("%s model not found at %s: %v", e.Model, e.Path, e.Err)
}

func (e *ModelNotFoundError) Unwrap() error {
	return e.Err
}

// Load validates the configured models and returns a provider for cfg.Backend.
// With opencv-cuda the detector falls back to the CPU when the CUDA target does not work.
func Load(ctx context.Context, log logs.Log, cfg config.Config) (*nn.Provider, error) {
	backend, err := nn.ParseBackend(cfg.Backend)
	if err != nil {
		return nil, err
	}

	if backend == nn.BackendWorker {
		w, err := worker.Start(ctx, cfg.WorkerCommand)
		if err != nil {
			return nil, err
		}
		log.Infof("Inference worker started: %s", cfg.WorkerCommand)
		p := &nn.Provider{Backend: backend, Detector: w, Presence: w, Landmarker: w, Describer: w}
		p.OnClose(w.Close)
		return p, nil
	}

	if err := CheckModels(cfg.ModelPaths); err != nil {
		return nil, err
	}

	p := &nn.Provider{Backend: backend}
	det, err := loadDetector(log, cfg.ModelPaths, backend)
	if err != nil {
		return nil, err
	}
	p.OnClose(det.Close)
	p.Detector = det

	model, err := dlib.Open(filepath.Dir(cfg.ModelPaths.Landmark))
	if err != nil {
		p.Close()
		return nil, err
	}
	p.OnClose(model.Close)
	p.Presence, p.Landmarker, p.Describer = model, model, model

	log.Infof("Models loaded (backend %s, detector on %s)", backend, det.Target)
	return p, nil
}

func loadDetector(log logs.Log, paths config.ModelPaths, backend nn.Backend) (*cv.SSDDetector, error) {
	if backend == nn.BackendOpenCVCUDA {
		det, err := cv.NewSSDDetector(paths.DetectorConfig, paths.Detector, cv.TargetCUDA)
		if err == nil {
			if err = det.Warmup(); err == nil {
				return det, nil
			}
			det.Close()
		}
		log.Warnf("CUDA detector unavailable, falling back to CPU: %v", err)
	}
	return cv.NewSSDDetector(paths.DetectorConfig, paths.Detector, cv.TargetCPU)
}

// CheckModels reports the first missing model file as a *ModelNotFoundError.
// dlib loads its models by fixed file name from one directory, so the landmark and
// descriptor models must sit together under those names.
func CheckModels(paths config.ModelPaths) error {
	files := []struct{ model, path string }{
		{"detector config", paths.DetectorConfig},
		{"detector", paths.Detector},
		{"landmark", paths.Landmark},
		{"descriptor", paths.Descriptor},
	}
	for _, f := range files {
		if f.path == "" {
			return &ModelNotFoundError{Model: f.model, Path: f.path, Err: errors.New("path not configured")}
		}
		if _, err := os.Stat(f.path); err != nil {
			return &ModelNotFoundError{Model: f.model, Path: f.path, Err: err}
		}
	}

	dir := filepath.Dir(paths.Landmark)
	if filepath.Dir(paths.Descriptor) != dir {
		return fmt.Errorf("landmark and descriptor models must be in the same directory (%s, %s)", paths.Landmark, paths.Descriptor)
	}
	if filepath.Base(paths.Landmark) != dlib.LandmarkModel {
		return fmt.Errorf("landmark model must be named %s", dlib.LandmarkModel)
	}
	if filepath.Base(paths.Descriptor) != dlib.DescriptorModel {
		return fmt.Errorf("descriptor model must be named %s", dlib.DescriptorModel)
	}
	return nil
}
