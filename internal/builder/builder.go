// Package builder turns a labeled image dataset into gallery entries.
//
// The dataset is laid out as <root>/<label>/<image>. Every readable image with a
// detectable face contributes one entry for its directory's label.
package builder

import (
	"context"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/andresmejia3/facewatch/internal/nn"
	"github.com/andresmejia3/facewatch/internal/types"
	"github.com/cyclopcam/logs"
	"github.com/schollz/progressbar/v3"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// MultiFacePolicy decides what happens when a training image holds more than one face
type MultiFacePolicy string

const (
	// FirstFace uses the first face the detector reports
	FirstFace MultiFacePolicy = "first"
	// SkipMultiFace drops the image
	SkipMultiFace MultiFacePolicy = "skip"
)

type Options struct {
	Dataset  string
	Provider *nn.Provider
	Log      logs.Log
	Policy   MultiFacePolicy

	// Progress receives the progress bar; nil hides it
	Progress io.Writer
}

type Stats struct {
	Labels  int
	Images  int
	Entries int
	Skipped int
}

func (s Stats) String() string {
	return fmt.Sprintf("%d labels, %d images, %d entries, %d skipped", s.Labels, s.Images, s.Entries, s.Skipped)
}

type sample struct {
	label string
	path  string
}

// Build walks the dataset and extracts one descriptor per usable image, in label then file name order.
// Unreadable images and images without a usable face are logged and skipped.
func Build(ctx context.Context, opts Options) ([]types.GalleryEntry, Stats, error) {
	var stats Stats
	samples, labels, err := scan(opts.Dataset)
	if err != nil {
		return nil, stats, err
	}
	stats.Labels = labels
	if opts.Policy == "" {
		opts.Policy = FirstFace
	}

	progress := opts.Progress
	if progress == nil {
		progress = io.Discard
	}
	bar := progressbar.NewOptions(len(samples),
		progressbar.OptionSetDescription("🧑 Building gallery"),
		progressbar.OptionSetWriter(progress),
		progressbar.OptionShowCount(),
	)
	defer bar.Finish()

	localizer := opts.Provider.Localizer()
	extractor := opts.Provider.Extractor()

	var entries []types.GalleryEntry
	for _, s := range samples {
		if err := ctx.Err(); err != nil {
			return entries, stats, err
		}
		stats.Images++
		d, err := describe(localizer, extractor, opts.Policy, s.path)
		bar.Add(1)
		if err != nil {
			opts.Log.Warnf("Skipping %s: %v", s.path, err)
			stats.Skipped++
			continue
		}
		entries = append(entries, types.GalleryEntry{Label: s.label, Descriptor: d})
		stats.Entries++
	}
	return entries, stats, nil
}

// scan lists every image file under the label directories of root
func scan(root string) ([]sample, int, error) {
	dirs, err := os.ReadDir(root)
	if err != nil {
		return nil, 0, fmt.Errorf("read dataset: %w", err)
	}
	var samples []sample
	labels := 0
	for _, d := range dirs {
		if !d.IsDir() || strings.HasPrefix(d.Name(), ".") {
			continue
		}
		labels++
		files, err := os.ReadDir(filepath.Join(root, d.Name()))
		if err != nil {
			return nil, 0, fmt.Errorf("read label %s: %w", d.Name(), err)
		}
		for _, f := range files {
			if f.IsDir() || strings.HasPrefix(f.Name(), ".") {
				continue
			}
			samples = append(samples, sample{label: d.Name(), path: filepath.Join(root, d.Name(), f.Name())})
		}
	}
	return samples, labels, nil
}

func describe(localizer *nn.Localizer, extractor *nn.Extractor, policy MultiFacePolicy, path string) (types.Descriptor, error) {
	img, err := ReadImage(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read image: %w", err)
	}

	boxes, err := localizer.LocateTraining(Gray(img))
	if err != nil {
		return nil, err
	}
	switch {
	case len(boxes) == 0:
		return nil, fmt.Errorf("no face found")
	case len(boxes) > 1 && policy == SkipMultiFace:
		return nil, fmt.Errorf("%d faces found, expected one", len(boxes))
	}

	// Descriptors come from the color image
	return extractor.Extract(types.NewFrame(img), boxes[0])
}

// ReadImage decodes any registered image format at path.
func ReadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	return img, err
}

// Gray returns a grayscale copy of img with its origin at 0,0.
func Gray(img image.Image) *image.Gray {
	b := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(gray, gray.Bounds(), img, b.Min, draw.Src)
	return gray
}
