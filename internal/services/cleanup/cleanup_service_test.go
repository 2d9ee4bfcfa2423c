package cleanup

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"facebot-go/internal/config"
	"facebot-go/internal/core/models"
	"facebot-go/internal/db"
	"facebot-go/internal/db/repository"
)

func newTestService(t *testing.T) (*CleanupService, repository.Repository, string, string) {
	t.Helper()
	dir := t.TempDir()
	imageDir := filepath.Join(dir, "faces")
	backupDir := filepath.Join(dir, "backups")
	require.NoError(t, os.MkdirAll(imageDir, 0750))
	require.NoError(t, os.MkdirAll(backupDir, 0750))

	gormDB, err := db.Open(config.DBConfig{File: filepath.Join(dir, "test.db")})
	require.NoError(t, err)
	repo := repository.NewSQLiteRepository(gormDB)

	cfg := config.CleanupConfig{RetentionDays: 7, CheckIntervalHours: 24}
	return NewCleanupService(repo, cfg, imageDir, backupDir), repo, imageDir, backupDir
}

func TestRunCleanupRemovesOrphanedImages(t *testing.T) {
	svc, repo, imageDir, _ := newTestService(t)

	sample := &models.FaceSample{Label: "alice", ImagePath: "kept.jpg", ContentHash: "h1"}
	require.NoError(t, sample.SetEncoding([]float32{0.1}))
	require.NoError(t, repo.SaveSample(sample))

	kept := filepath.Join(imageDir, "kept.jpg")
	orphan := filepath.Join(imageDir, "orphan.jpg")
	require.NoError(t, os.WriteFile(kept, []byte("img"), 0640))
	require.NoError(t, os.WriteFile(orphan, []byte("img"), 0640))

	require.NoError(t, svc.RunCleanup(context.Background()))

	assert.FileExists(t, kept)
	assert.NoFileExists(t, orphan)
}

func TestRunCleanupRemovesOutdatedSnapshots(t *testing.T) {
	svc, repo, _, _ := newTestService(t)

	require.NoError(t, repo.SaveSnapshot(&models.ModelSnapshot{Blob: []byte("old")}))
	require.NoError(t, repo.SaveSnapshot(&models.ModelSnapshot{Blob: []byte("new")}))

	require.NoError(t, svc.RunCleanup(context.Background()))

	latest, err := repo.LatestSnapshot()
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, []byte("new"), latest.Blob)
}

func TestRunCleanupRemovesExpiredBackups(t *testing.T) {
	svc, _, _, backupDir := newTestService(t)

	expired := filepath.Join(backupDir, "facebot-old.db")
	fresh := filepath.Join(backupDir, "facebot-new.db")
	require.NoError(t, os.WriteFile(expired, []byte("old"), 0640))
	require.NoError(t, os.WriteFile(fresh, []byte("new"), 0640))

	old := time.Now().AddDate(0, 0, -30)
	require.NoError(t, os.Chtimes(expired, old, old))

	require.NoError(t, svc.RunCleanup(context.Background()))

	assert.NoFileExists(t, expired)
	assert.FileExists(t, fresh)
}
