package backup

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"facebot-go/internal/config"
	"facebot-go/internal/core/models"
	"facebot-go/internal/db"
	"facebot-go/internal/db/repository"
)

func TestCreateAndRestore(t *testing.T) {
	dir := t.TempDir()
	dbFile := filepath.Join(dir, "facebot.db")

	gormDB, err := db.Open(config.DBConfig{File: dbFile})
	require.NoError(t, err)
	repo := repository.NewSQLiteRepository(gormDB)
	require.NoError(t, repo.EnsureUser("@alice", models.RoleRootAdmin))

	mgr := NewManager(gormDB, config.BackupConfig{Dir: filepath.Join(dir, "backups")})
	backupPath, err := mgr.Create()
	require.NoError(t, err)
	assert.FileExists(t, backupPath)

	// Wipe the live database, then bring it back from the backup.
	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())
	require.NoError(t, os.Remove(dbFile))

	require.NoError(t, Restore(dbFile, backupPath))

	restoredDB, err := db.Open(config.DBConfig{File: dbFile})
	require.NoError(t, err)
	restored := repository.NewSQLiteRepository(restoredDB)

	user, err := restored.FindUser("@alice")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, models.RoleRootAdmin, user.Role)
}

func TestRestoreKeepsPreviousFile(t *testing.T) {
	dir := t.TempDir()
	dbFile := filepath.Join(dir, "facebot.db")
	backupFile := filepath.Join(dir, "backup.db")

	require.NoError(t, os.WriteFile(dbFile, []byte("live"), 0644))
	require.NoError(t, os.WriteFile(backupFile, []byte("backup"), 0644))

	require.NoError(t, Restore(dbFile, backupFile))

	restored, err := os.ReadFile(dbFile)
	require.NoError(t, err)
	assert.Equal(t, []byte("backup"), restored)

	previous, err := os.ReadFile(dbFile + ".bak")
	require.NoError(t, err)
	assert.Equal(t, []byte("live"), previous)
}

func TestRestoreMissingBackup(t *testing.T) {
	dir := t.TempDir()
	err := Restore(filepath.Join(dir, "facebot.db"), filepath.Join(dir, "missing.db"))
	assert.Error(t, err)
}
