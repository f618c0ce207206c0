package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"statefacts/internal/adapters/snapshot"
	"statefacts/internal/blob"
	"statefacts/internal/catalog"
	"statefacts/pkg/domain"
)

// isolate points storage and blobs at a temp dir and returns the blob root.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("STATEFACTS_STORAGE_DRIVER", "sqlite")
	t.Setenv("STATEFACTS_SQLITE_PATH", filepath.Join(dir, "facts.db"))
	t.Setenv("STATEFACTS_BLOB_DRIVER", "fs")
	t.Setenv("STATEFACTS_BLOB_FS_ROOT", filepath.Join(dir, "blobs"))
	t.Setenv("STATEFACTS_CATALOG_KEY", "")
	t.Setenv("STATEFACTS_LOG_LEVEL", "error")
	return filepath.Join(dir, "blobs")
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	assert.Equal(t, "statefacts", cmd.Use)
	for _, name := range []string{"serve", "seed", "export", "catalog"} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err, "command %s should exist", name)
		assert.Equal(t, name, sub.Name())
	}

	output := cmd.PersistentFlags().Lookup("output")
	require.NotNil(t, output)
	assert.Equal(t, "o", output.Shorthand)
	assert.Equal(t, "text", output.DefValue)
	require.NotNil(t, cmd.PersistentFlags().Lookup("config"))

	export, _, _ := cmd.Find([]string{"export"})
	assert.Equal(t, "json", export.Flags().Lookup("format").DefValue)
	assert.Equal(t, "false", export.Flags().Lookup("overwrite").DefValue)
}

func TestInvalidOutput(t *testing.T) {
	isolate(t)
	_, err := execute(t, "catalog", "-o", "yaml")
	assert.ErrorContains(t, err, `invalid output "yaml"`)
}

func TestCatalogText(t *testing.T) {
	isolate(t)
	out, err := execute(t, "catalog")
	require.NoError(t, err)
	assert.Contains(t, out, "Austin")
	assert.Contains(t, out, "Lone Star State")
	assert.Contains(t, out, "50 of 50 states")
}

func TestCatalogJSONFilter(t *testing.T) {
	isolate(t)
	out, err := execute(t, "catalog", "--filter", "noncontiguous", "-o", "json")
	require.NoError(t, err)
	var records []domain.StateRecord
	require.NoError(t, json.Unmarshal([]byte(out), &records))
	require.Len(t, records, 2)
	assert.Equal(t, "AK", records[0].Code)
	assert.Equal(t, "HI", records[1].Code)

	_, err = execute(t, "catalog", "--filter", "islands")
	assert.ErrorContains(t, err, "unknown filter")
}

func TestCatalogFromBlob(t *testing.T) {
	root := isolate(t)
	store, err := blob.NewFilesystem(root)
	require.NoError(t, err)
	_, err = store.Put(context.Background(), "catalog/states.json", bytes.NewReader(catalog.EmbeddedJSON()), blob.PutOptions{ContentType: "application/json"})
	require.NoError(t, err)

	t.Setenv("STATEFACTS_CATALOG_KEY", "catalog/states.json")
	out, err := execute(t, "catalog")
	require.NoError(t, err)
	assert.Contains(t, out, "50 of 50 states")

	t.Setenv("STATEFACTS_CATALOG_KEY", "catalog/missing.json")
	_, err = execute(t, "catalog")
	assert.ErrorContains(t, err, "load catalog catalog/missing.json")
}

func TestConfigFileErrors(t *testing.T) {
	isolate(t)
	_, err := execute(t, "catalog", "--config", filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "read config")
}

func TestSeedThenExport(t *testing.T) {
	root := isolate(t)
	seedFile := filepath.Join(t.TempDir(), "seed.json")
	require.NoError(t, os.WriteFile(seedFile, []byte(`[
		{"stateCode": "GA", "funfacts": ["Peaches"]},
		{"stateCode": "tx", "funfacts": ["Big", "Hot"]},
		{"stateCode": "ZZ", "funfacts": ["nope"]}
	]`), 0o600))

	out, err := execute(t, "seed", seedFile)
	assert.ErrorContains(t, err, "1 of 3 seed documents failed")
	assert.Contains(t, out, "GA\tok\t1 submitted, 1 stored")
	assert.Contains(t, out, "ZZ\tFAILED")

	out, err = execute(t, "export", "--key", "exports/snap.json", "-o", "json")
	require.NoError(t, err)
	var art snapshot.Artifact
	require.NoError(t, json.Unmarshal([]byte(out), &art))
	assert.Equal(t, "exports/snap.json", art.Key)
	assert.Equal(t, 2, art.Documents)
	assert.Equal(t, 3, art.Facts)

	data, err := os.ReadFile(filepath.Join(root, "exports", "snap.json"))
	require.NoError(t, err)
	var docs []domain.FactDocument
	require.NoError(t, json.Unmarshal(data, &docs))
	require.Len(t, docs, 2)
	assert.Equal(t, []string{"Peaches"}, docs[0].Facts)

	_, err = execute(t, "export", "--key", "exports/snap.json")
	assert.ErrorIs(t, err, blob.ErrExists)
	out, err = execute(t, "export", "--key", "exports/snap.json", "--overwrite")
	require.NoError(t, err)
	assert.Contains(t, out, "exported 2 documents (3 facts) to exports/snap.json")

	out, err = execute(t, "seed", "--key", "exports/snap.json", "-o", "json")
	require.NoError(t, err)
	var report snapshot.SeedReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	require.Len(t, report.Results, 2)
	assert.Equal(t, 2, report.Results[1].Stored, "reseeding an export stays distinct")
}

func TestExportCSV(t *testing.T) {
	root := isolate(t)
	_, err := execute(t, "export", "--format", "csv", "--key", "exports/empty.csv")
	require.NoError(t, err)
	data, err := os.ReadFile(filepath.Join(root, "exports", "empty.csv"))
	require.NoError(t, err)
	assert.Equal(t, "stateCode,position,funfact,version,updated_at\n", string(data))

	_, err = execute(t, "export", "--format", "xml")
	assert.ErrorContains(t, err, "unsupported export format")
}

func TestSeedArguments(t *testing.T) {
	isolate(t)
	_, err := execute(t, "seed")
	assert.ErrorContains(t, err, "exactly one")
	_, err = execute(t, "seed", "a.json", "--key", "b.json")
	assert.ErrorContains(t, err, "exactly one")
	_, err = execute(t, "seed", filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorContains(t, err, "read seed")
}

func TestServeStopsOnCancel(t *testing.T) {
	isolate(t)
	t.Setenv("STATEFACTS_STORAGE_DRIVER", "memory")
	t.Setenv("STATEFACTS_METRICS_EXPORTER", "none")

	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"serve", "--addr", "127.0.0.1:0"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(ctx) }()
	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop after cancellation")
	}
}

func TestServeRejectsBadConfig(t *testing.T) {
	isolate(t)
	t.Setenv("STATEFACTS_STORAGE_DRIVER", "cassandra")
	_, err := execute(t, "serve")
	assert.ErrorContains(t, err, "unknown storage driver")
}
