package nnload

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/andresmejia3/facewatch/internal/config"
	"github.com/andresmejia3/facewatch/internal/nn/dlib"
	"github.com/cyclopcam/logs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, path string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("model"), 0644))
	return path
}

func modelDir(t *testing.T) config.ModelPaths {
	dir := t.TempDir()
	return config.ModelPaths{
		DetectorConfig: touch(t, filepath.Join(dir, "deploy.prototxt")),
		Detector:       touch(t, filepath.Join(dir, "ssd.caffemodel")),
		Landmark:       touch(t, filepath.Join(dir, "dlib", dlib.LandmarkModel)),
		Descriptor:     touch(t, filepath.Join(dir, "dlib", dlib.DescriptorModel)),
	}
}

func TestCheckModels(t *testing.T) {
	paths := modelDir(t)
	require.NoError(t, CheckModels(paths))

	missing := paths
	missing.Detector = filepath.Join(t.TempDir(), "gone.caffemodel")
	err := CheckModels(missing)
	var notFound *ModelNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "detector", notFound.Model)
	assert.ErrorIs(t, err, os.ErrNotExist)

	unset := paths
	unset.Landmark = ""
	assert.ErrorAs(t, CheckModels(unset), &notFound)

	split := paths
	split.Descriptor = touch(t, filepath.Join(t.TempDir(), dlib.DescriptorModel))
	assert.ErrorContains(t, CheckModels(split), "same directory")

	renamed := paths
	renamed.Landmark = touch(t, filepath.Join(filepath.Dir(paths.Landmark), "landmarks.dat"))
	assert.ErrorContains(t, CheckModels(renamed), dlib.LandmarkModel)
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	cfg := config.Default()
	cfg.Backend = "tpu"
	_, err := Load(context.Background(), logs.NewTestingLog(t), cfg)
	assert.Error(t, err)
}

func TestLoadMissingModels(t *testing.T) {
	cfg := config.Default()
	cfg.ModelPaths = config.ModelPaths{}
	_, err := Load(context.Background(), logs.NewTestingLog(t), cfg)
	var notFound *ModelNotFoundError
	assert.ErrorAs(t, err, &notFound)
}
