// Package normalizer validates raw images and re-encodes them into the
// pipeline's canonical stored form.
package normalizer

import (
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"

	// image/jpeg registers itself above; png is decode-only here.
	_ "image/png"

	"go.uber.org/zap"

	"github.com/JakeFAU/jewelry-dataset-pipeline/internal/pipeline"
)

const (
	defaultMinSize = 512
	defaultQuality = 95

	// Disambiguator range, inclusive of 1000 and 9999.
	suffixLow  = 1000
	suffixSpan = 9000

	// Bounded retries when a drawn suffix collides with an existing file.
	maxNameAttempts = 16
)

// Config controls normalization behavior.
type Config struct {
	// OutputDir is the root under which per-category output dirs are created.
	OutputDir string
	// MinSize rejects any image whose smaller dimension is below it.
	MinSize int
	// Quality is the JPEG re-encode quality.
	Quality int
}

// Normalizer converts raw images into canonical RGB JPEGs.
type Normalizer struct {
	cfg    Config
	logger *zap.Logger
}

// Result is the per-image outcome. A rejection is not an error: the image
// simply did not meet acceptance criteria and carries a reason instead.
type Result struct {
	Accepted bool
	Reason   string
	Record   pipeline.ImageRecord
}

// New builds a Normalizer rooted at cfg.OutputDir.
func New(cfg Config, logger *zap.Logger) (*Normalizer, error) {
	if strings.TrimSpace(cfg.OutputDir) == "" {
		return nil, fmt.Errorf("output directory is required")
	}
	if cfg.MinSize <= 0 {
		cfg.MinSize = defaultMinSize
	}
	if cfg.Quality <= 0 || cfg.Quality > 100 {
		cfg.Quality = defaultQuality
	}
	if err := os.MkdirAll(cfg.OutputDir, 0o750); err != nil {
		return nil, fmt.Errorf("create output dir %s: %w", cfg.OutputDir, err)
	}
	return &Normalizer{cfg: cfg, logger: logger}, nil
}

// Normalize validates the image at path and, on acceptance, writes the
// canonical JPEG under <OutputDir>/<category>/. Decode failures and
// undersized images are rejections; only output I/O reports an error.
func (n *Normalizer) Normalize(path string) (Result, error) {
	category := filepath.Base(filepath.Dir(path))

	f, err := os.Open(path)
	if err != nil {
		return Result{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck // read-only handle

	img, _, err := image.Decode(f)
	if err != nil {
		n.logger.Debug("rejecting undecodable image",
			zap.String("path", path),
			zap.Error(err),
		)
		return Result{Reason: fmt.Sprintf("decode: %v", err)}, nil
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width < n.cfg.MinSize || height < n.cfg.MinSize {
		n.logger.Debug("rejecting undersized image",
			zap.String("path", path),
			zap.Int("width", width),
			zap.Int("height", height),
			zap.Int("min_size", n.cfg.MinSize),
		)
		return Result{
			Reason: fmt.Sprintf("dimensions %dx%d below minimum %d", width, height, n.cfg.MinSize),
		}, nil
	}

	categoryDir := filepath.Join(n.cfg.OutputDir, category)
	if err := os.MkdirAll(categoryDir, 0o750); err != nil {
		return Result{}, fmt.Errorf("create category dir %s: %w", categoryDir, err)
	}

	name, out, err := n.createOutputFile(categoryDir, path)
	if err != nil {
		return Result{}, err
	}

	if err := jpeg.Encode(out, toRGB(img), &jpeg.Options{Quality: n.cfg.Quality}); err != nil {
		closeErr := out.Close()
		if closeErr != nil {
			return Result{}, fmt.Errorf("encode %s: %w (close: %v)", name, err, closeErr)
		}
		return Result{}, fmt.Errorf("encode %s: %w", name, err)
	}
	if err := out.Close(); err != nil {
		return Result{}, fmt.Errorf("close %s: %w", name, err)
	}

	return Result{
		Accepted: true,
		Record: pipeline.ImageRecord{
			OriginalPath:  path,
			ProcessedPath: filepath.Join(categoryDir, name),
			Category:      category,
			Width:         width,
			Height:        height,
			StorageKey:    fmt.Sprintf("%s/%s", category, name),
		},
	}, nil
}

// createOutputFile draws a random 4-digit suffix for the output name and
// re-draws on collision. O_EXCL makes concurrent workers in the same
// category race-safe.
func (n *Normalizer) createOutputFile(dir, originalPath string) (string, *os.File, error) {
	base := filepath.Base(originalPath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))

	for attempt := 0; attempt < maxNameAttempts; attempt++ {
		name := fmt.Sprintf("%s_%d.jpg", stem, suffixLow+rand.IntN(suffixSpan))
		f, err := os.OpenFile(filepath.Join(dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
		if err == nil {
			return name, f, nil
		}
		if !os.IsExist(err) {
			return "", nil, fmt.Errorf("create output file %s: %w", name, err)
		}
	}
	return "", nil, fmt.Errorf("no free output name for %s after %d attempts", base, maxNameAttempts)
}

// toRGB collapses any decoded color model onto an opaque RGBA canvas so
// every stored image shares one canonical 3-channel model.
func toRGB(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Opaque() {
		return rgba
	}
	bounds := img.Bounds()
	dst := image.NewRGBA(bounds)
	draw.Draw(dst, bounds, img, bounds.Min, draw.Src)
	return dst
}
