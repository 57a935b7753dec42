package filestore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aiox-platform/gloser/internal/source"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestStore_ListDataset(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "patent_data.json", `[
		{"molecule": "Metformin", "patent_id": "US123", "status": "Active"},
		{"molecule": "Atorvastatin", "patent_id": "US456", "status": "Expired"}
	]`)

	s := New(dir)
	s.Register(source.Patent, "patent_data.json")

	res, err := s.Lookup(source.Patent).Lookup(context.Background(), "metformin")
	require.NoError(t, err)
	assert.Equal(t, source.Patent, res.Source)
	require.Len(t, res.Records, 1)
	assert.Equal(t, "US123", res.Records[0].(source.PatentRecord).PatentID())
	assert.Equal(t, "Patent Agent found 1 patents matching 'metformin'.", res.Summary)
}

func TestStore_DictDatasetIsKeyed(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "exim_data.json", `{
		"30049099": {"drug_name": "Paracetamol", "import_volume_mt": 120},
		"29419090": {"drug_name": "Amoxicillin"},
		"99999999": 42
	}`)
	writeFile(t, dir, "iqvia_data.json", `{"Oncology": {"market_size_usd": "200 billion"}}`)

	s := New(dir)
	s.Register(source.Trade, "exim_data.json")
	s.Register(source.Market, "iqvia_data.json")
	ctx := context.Background()

	rows, err := s.Match(ctx, source.Trade, "paracetamol")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "30049099", rows[0]["hs_code"])

	rows, err = s.Match(ctx, source.Trade, "99999999")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, float64(42), rows[0]["value"])

	rows, err = s.Match(ctx, source.Market, "oncology")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Oncology", rows[0]["area"])
}

func TestStore_AnyTermMatches(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "iqvia_data.json", `[
		{"area": "Cardiology", "key_trend": "statins"},
		{"area": "Oncology"},
		{"area": "Dermatology"}
	]`)
	s := New(dir)
	s.Register(source.Market, "iqvia_data.json")

	rows, err := s.Match(context.Background(), source.Market, "ONCOLOGY statins")
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestStore_Errors(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	ctx := context.Background()

	t.Run("unregistered kind", func(t *testing.T) {
		_, err := s.Match(ctx, source.Web, "x")
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		s.Register(source.Patent, "missing.json")
		_, err := s.Lookup(source.Patent).Lookup(ctx, "x")
		assert.Error(t, err)
	})

	t.Run("guarded lookup degrades", func(t *testing.T) {
		writeFile(t, dir, "broken.json", `{not json`)
		s.Register(source.Trade, "broken.json")
		res, err := source.Guard(source.Trade, s.Lookup(source.Trade)).Lookup(ctx, "x")
		require.NoError(t, err)
		assert.True(t, res.Failed())
		assert.Contains(t, res.Summary, "parsing broken.json")
	})
}

func TestStore_InvalidateReloads(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "patent_data.json", `[{"molecule": "Metformin"}]`)
	s := New(dir)
	s.Register(source.Patent, "patent_data.json")
	ctx := context.Background()

	rows, err := s.Match(ctx, source.Patent, "insulin")
	require.NoError(t, err)
	assert.Empty(t, rows)

	writeFile(t, dir, "patent_data.json", `[{"molecule": "Metformin"}, {"molecule": "Insulin"}]`)

	// Cached until invalidated.
	rows, err = s.Match(ctx, source.Patent, "insulin")
	require.NoError(t, err)
	assert.Empty(t, rows)

	assert.True(t, s.Invalidate(path))
	rows, err = s.Match(ctx, source.Patent, "insulin")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestStore_OnChange(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "patent_data.json", `[{"molecule": "Metformin"}]`)
	s := New(dir)
	s.Register(source.Patent, "patent_data.json")

	var changed []source.Kind
	s.OnChange(func(k source.Kind) { changed = append(changed, k) })

	assert.False(t, s.Invalidate(path), "nothing loaded yet")
	assert.Empty(t, changed)

	_, err := s.Match(context.Background(), source.Patent, "metformin")
	require.NoError(t, err)
	assert.True(t, s.Invalidate(path))
	assert.Equal(t, []source.Kind{source.Patent}, changed)
}

func TestStore_WatchPicksUpChanges(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "patent_data.json", `[{"molecule": "Metformin"}]`)
	s := New(dir)
	s.Register(source.Patent, "patent_data.json")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.Watch(ctx) }()

	rows, err := s.Match(ctx, source.Patent, "insulin")
	require.NoError(t, err)
	require.Empty(t, rows)

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)
	writeFile(t, dir, "patent_data.json", `[{"molecule": "Insulin"}]`)

	assert.Eventually(t, func() bool {
		rows, err := s.Match(ctx, source.Patent, "insulin")
		return err == nil && len(rows) == 1
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}

func TestStore_ShippedDatasets(t *testing.T) {
	s := New(filepath.Join("..", "..", "..", "data"))
	for _, e := range source.DefaultCatalog().Sources {
		if e.File != "" {
			s.Register(e.Kind, e.File)
		}
	}

	tests := []struct {
		kind  source.Kind
		query string
	}{
		{source.Market, "oncology"},
		{source.Trade, "metformin"},
		{source.Patent, "metformin"},
		{source.Clinical, "metformin"},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			res, err := s.Lookup(tt.kind).Lookup(context.Background(), tt.query)
			require.NoError(t, err)
			assert.NotEmpty(t, res.Records)
		})
	}
}
