package metadata

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/jewelry-dataset-pipeline/internal/pipeline"
)

func TestWriteCategory_ProducesIndentedJSON(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	agg, err := New(dir, zap.NewNop())
	require.NoError(t, err)

	records := []pipeline.ImageRecord{
		{
			OriginalPath:  "raw/rings/a.jpg",
			ProcessedPath: "processed_datasets/rings/a_1234.jpg",
			Category:      "rings",
			Width:         640,
			Height:        800,
			StorageKey:    "rings/a_1234.jpg",
		},
	}
	require.NoError(t, agg.WriteCategory("rings", records))

	data, err := os.ReadFile(filepath.Join(dir, "rings_metadata.json"))
	require.NoError(t, err)
	require.Contains(t, string(data), "\n  {")

	var got []pipeline.ImageRecord
	require.NoError(t, json.Unmarshal(data, &got))
	require.Equal(t, records, got)
}

func TestWriteCategory_EmptyCategoryStillWritesArtifact(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	agg, err := New(dir, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, agg.WriteCategory("pendants", nil))

	data, err := os.ReadFile(filepath.Join(dir, "pendants_metadata.json"))
	require.NoError(t, err)
	require.JSONEq(t, "[]", string(data))
}

func TestWriteCategory_OverwritesPriorArtifact(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	agg, err := New(dir, zap.NewNop())
	require.NoError(t, err)

	first := []pipeline.ImageRecord{{Category: "rings", StorageKey: "rings/a.jpg"}}
	second := []pipeline.ImageRecord{{Category: "rings", StorageKey: "rings/b.jpg"}}

	require.NoError(t, agg.WriteCategory("rings", first))
	require.NoError(t, agg.WriteCategory("rings", second))

	data, err := os.ReadFile(filepath.Join(dir, "rings_metadata.json"))
	require.NoError(t, err)

	var got []pipeline.ImageRecord
	require.NoError(t, json.Unmarshal(data, &got))
	require.Equal(t, second, got)
}

func TestWriteSite_ProducesJSONAndCSV(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	agg, err := New(dir, zap.NewNop())
	require.NoError(t, err)

	records := []pipeline.ProductRecord{
		{URL: "https://gems.example.com/p/1", Title: "Gold Ring", Price: "$120", ImageFilename: "1.jpg"},
		{URL: "https://gems.example.com/p/2", Title: "Silver Band", Price: "$45", ImageFilename: "2.jpg"},
	}
	require.NoError(t, agg.WriteSite("https://gems.example.com", records))

	var got []pipeline.ProductRecord
	data, err := os.ReadFile(filepath.Join(dir, "gems_example_com_results.json"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &got))
	require.Equal(t, records, got)

	f, err := os.Open(filepath.Join(dir, "gems_example_com_results.csv"))
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.Equal(t, []string{"url", "title", "price", "image_filename"}, rows[0])
	require.Equal(t, "Gold Ring", rows[1][1])
}

func TestWriteSite_EmptyResultSetWritesHeaderOnlyCSV(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	agg, err := New(dir, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, agg.WriteSite("https://empty.example.com", nil))

	data, err := os.ReadFile(filepath.Join(dir, "empty_example_com_results.json"))
	require.NoError(t, err)
	require.JSONEq(t, "[]", string(data))

	f, err := os.Open(filepath.Join(dir, "empty_example_com_results.csv"))
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestSiteSlug(t *testing.T) {
	t.Parallel()

	require.Equal(t, "gems_example_com", SiteSlug("https://gems.example.com/shop"))
	require.Equal(t, "gems_example_com", SiteSlug("gems.example.com"))
	require.Equal(t, "127_0_0_1_8080", SiteSlug("http://127.0.0.1:8080"))
	require.Equal(t, "unknown", SiteSlug("://bad"))
}
