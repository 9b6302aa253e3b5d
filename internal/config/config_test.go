package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "documents", cfg.Storage.Bucket)
	assert.Equal(t, 2, cfg.Worker.PageConcurrency)
	assert.Equal(t, 1800, cfg.Worker.MaxWidth)
	assert.Equal(t, int64(10<<20), cfg.Ingestion.MaxFileBytes)
	assert.Equal(t, 4, cfg.Ingestion.UploadConcurrency)
	assert.Equal(t, 5*time.Second, cfg.Queue.BlockTimeout)
	assert.Equal(t, []string{"eng"}, cfg.Classifier.Languages)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "docflow.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
storage:
  backend: memory
  bucket: scans
worker:
  page_concurrency: 3
database:
  backend: sqlite
  dsn: "file::memory:"
`), 0o600))
	t.Setenv("DOCFLOW_WORKER_PAGE_CONCURRENCY", "6")
	t.Setenv("DOCFLOW_INGESTION_BASE_URL", "http://ingestion:8000")

	cfg, err := Load(file)
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Storage.Backend)
	assert.Equal(t, "scans", cfg.Storage.Bucket)
	assert.Equal(t, 6, cfg.Worker.PageConcurrency)
	assert.Equal(t, "sqlite", cfg.Database.Backend)
	assert.Equal(t, "file::memory:", cfg.Database.DSN)
	assert.Equal(t, "http://ingestion:8000", cfg.Ingestion.BaseURL)
}

func TestLoad_RejectsUnknownBackend(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DOCFLOW_QUEUE_BACKEND", "kafka")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "queue.backend")
}

func TestValidate_GoogleBackendsNeedProject(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DOCFLOW_DATABASE_BACKEND", "firestore")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "project_id")

	t.Setenv("DOCFLOW_PROJECT_ID", "demo-project")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "demo-project", cfg.ProjectID)
}
