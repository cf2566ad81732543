package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/jewelry-dataset-pipeline/internal/metadata"
	"github.com/JakeFAU/jewelry-dataset-pipeline/internal/normalizer"
	"github.com/JakeFAU/jewelry-dataset-pipeline/internal/pipeline"
	"github.com/JakeFAU/jewelry-dataset-pipeline/internal/storage/memory"
)

func writeJPEG(t *testing.T, path string, width, height int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x += 11 {
		for y := 0; y < height; y += 11 {
			img.Set(x, y, color.RGBA{R: 200, G: uint8(x % 256), B: uint8(y % 256), A: 255})
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, jpeg.Encode(f, img, &jpeg.Options{Quality: 85}))
	require.NoError(t, f.Close())
}

type fakePublisher struct {
	mu       sync.Mutex
	messages []map[string]any
}

func (f *fakePublisher) Publish(_ context.Context, _ string, payload any) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg, _ := payload.(map[string]any)
	f.messages = append(f.messages, msg)
	return "msg-1", nil
}

func newTestPipeline(t *testing.T, inputDir string, blobs *memory.BlobStore, pub pipeline.Publisher) (*Pipeline, string) {
	t.Helper()
	outDir := t.TempDir()

	norm, err := normalizer.New(normalizer.Config{OutputDir: outDir, MinSize: 512}, zap.NewNop())
	require.NoError(t, err)
	agg, err := metadata.New(outDir, zap.NewNop())
	require.NoError(t, err)

	cfg := Config{InputDir: inputDir, Workers: 4}
	if pub != nil {
		cfg.PublishTopic = "jewelry-ingest"
	}
	p, err := New(cfg, Deps{
		Normalizer: norm,
		Blobs:      blobs,
		Aggregator: agg,
		Publisher:  pub,
		Logger:     zap.NewNop(),
	})
	require.NoError(t, err)
	return p, outDir
}

func TestRun_RingsScenario(t *testing.T) {
	t.Parallel()

	// raw/rings: 3 valid JPEGs >= 512px plus one corrupt file.
	inputDir := t.TempDir()
	ringsDir := filepath.Join(inputDir, "rings")
	require.NoError(t, os.MkdirAll(ringsDir, 0o750))
	writeJPEG(t, filepath.Join(ringsDir, "gold.jpg"), 512, 640)
	writeJPEG(t, filepath.Join(ringsDir, "silver.jpg"), 700, 512)
	writeJPEG(t, filepath.Join(ringsDir, "platinum.jpg"), 1024, 1024)
	require.NoError(t, os.WriteFile(filepath.Join(ringsDir, "corrupt.jpg"), []byte("not an image"), 0o600))

	blobs := memory.New()
	p, outDir := newTestPipeline(t, inputDir, blobs, nil)
	require.NoError(t, p.Run(context.Background()))

	entries, err := os.ReadDir(filepath.Join(outDir, "rings"))
	require.NoError(t, err)
	require.Len(t, entries, 3)

	data, err := os.ReadFile(filepath.Join(outDir, "rings_metadata.json"))
	require.NoError(t, err)
	var records []pipeline.ImageRecord
	require.NoError(t, json.Unmarshal(data, &records))
	require.Len(t, records, 3)
	for _, rec := range records {
		require.Equal(t, "rings", rec.Category)
		require.GreaterOrEqual(t, rec.Width, 512)
		require.GreaterOrEqual(t, rec.Height, 512)
	}

	require.Equal(t, 3, blobs.Len())
	for _, key := range blobs.Keys() {
		require.Regexp(t, `^rings/.+_[1-9][0-9]{3}\.jpg$`, key)
	}
}

func TestRun_UndersizedImagesAreExcluded(t *testing.T) {
	t.Parallel()

	inputDir := t.TempDir()
	dir := filepath.Join(inputDir, "earrings")
	require.NoError(t, os.MkdirAll(dir, 0o750))
	writeJPEG(t, filepath.Join(dir, "big.jpg"), 600, 600)
	writeJPEG(t, filepath.Join(dir, "small.jpg"), 100, 100)

	blobs := memory.New()
	p, outDir := newTestPipeline(t, inputDir, blobs, nil)
	require.NoError(t, p.Run(context.Background()))

	data, err := os.ReadFile(filepath.Join(outDir, "earrings_metadata.json"))
	require.NoError(t, err)
	var records []pipeline.ImageRecord
	require.NoError(t, json.Unmarshal(data, &records))
	require.Len(t, records, 1)
	require.Equal(t, 1, blobs.Len())
}

func TestRun_EmptyCategoryWritesEmptyArtifact(t *testing.T) {
	t.Parallel()

	inputDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(inputDir, "bangles"), 0o750))

	p, outDir := newTestPipeline(t, inputDir, memory.New(), nil)
	require.NoError(t, p.Run(context.Background()))

	data, err := os.ReadFile(filepath.Join(outDir, "bangles_metadata.json"))
	require.NoError(t, err)
	require.JSONEq(t, "[]", string(data))
}

func TestRun_UploadFailureKeepsRecord(t *testing.T) {
	t.Parallel()

	inputDir := t.TempDir()
	dir := filepath.Join(inputDir, "necklaces")
	require.NoError(t, os.MkdirAll(dir, 0o750))
	writeJPEG(t, filepath.Join(dir, "pendant.jpg"), 512, 512)

	blobs := memory.New()
	blobs.SaveErr = errors.New("bucket unavailable")

	p, outDir := newTestPipeline(t, inputDir, blobs, nil)
	require.NoError(t, p.Run(context.Background()))

	// The upload failed but the record and the local processed copy remain.
	data, err := os.ReadFile(filepath.Join(outDir, "necklaces_metadata.json"))
	require.NoError(t, err)
	var records []pipeline.ImageRecord
	require.NoError(t, json.Unmarshal(data, &records))
	require.Len(t, records, 1)
	require.FileExists(t, records[0].ProcessedPath)
}

func TestRun_PublishesCategoryEvents(t *testing.T) {
	t.Parallel()

	inputDir := t.TempDir()
	dir := filepath.Join(inputDir, "rings")
	require.NoError(t, os.MkdirAll(dir, 0o750))
	writeJPEG(t, filepath.Join(dir, "gold.jpg"), 512, 512)

	pub := &fakePublisher{}
	p, _ := newTestPipeline(t, inputDir, memory.New(), pub)
	require.NoError(t, p.Run(context.Background()))

	require.Len(t, pub.messages, 1)
	require.Equal(t, "rings", pub.messages[0]["category"])
	require.Equal(t, 1, pub.messages[0]["accepted"])
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	_, err := New(Config{}, Deps{})
	require.Error(t, err)

	norm, err := normalizer.New(normalizer.Config{OutputDir: t.TempDir()}, zap.NewNop())
	require.NoError(t, err)
	agg, err := metadata.New(t.TempDir(), zap.NewNop())
	require.NoError(t, err)

	_, err = New(Config{InputDir: t.TempDir()}, Deps{Normalizer: norm, Aggregator: agg, Logger: zap.NewNop()})
	require.Error(t, err) // missing blob store
}
