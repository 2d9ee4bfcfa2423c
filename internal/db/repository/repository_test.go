package repository

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"facebot-go/internal/config"
	"facebot-go/internal/core/models"
	"facebot-go/internal/db"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	gormDB, err := db.Open(config.DBConfig{File: filepath.Join(t.TempDir(), "test.db")})
	require.NoError(t, err)
	return NewSQLiteRepository(gormDB)
}

func newSample(t *testing.T, label, hash string) *models.FaceSample {
	t.Helper()
	sample := &models.FaceSample{
		Label:       label,
		ImagePath:   "/data/faces/" + hash + ".jpg",
		ContentHash: hash,
		Source:      models.SourceTelegram,
	}
	require.NoError(t, sample.SetEncoding([]float32{0.1, 0.2, 0.3}))
	return sample
}

func TestSaveAndGetSamples(t *testing.T) {
	repo := newTestRepo(t)

	require.NoError(t, repo.SaveSample(newSample(t, "alice", "h1")))
	require.NoError(t, repo.SaveSample(newSample(t, "alice", "h2")))
	require.NoError(t, repo.SaveSample(newSample(t, "bob", "h3")))

	all, err := repo.GetSamples()
	require.NoError(t, err)
	assert.Len(t, all, 3)

	aliceSamples, err := repo.GetSamplesByLabel("alice")
	require.NoError(t, err)
	assert.Len(t, aliceSamples, 2)

	encoding, err := aliceSamples[0].GetEncoding()
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, encoding)
}

func TestFindSampleByHash(t *testing.T) {
	repo := newTestRepo(t)
	require.NoError(t, repo.SaveSample(newSample(t, "alice", "abc")))

	found, err := repo.FindSampleByHash("abc")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "alice", found.Label)

	missing, err := repo.FindSampleByHash("nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestLabelsAndExistence(t *testing.T) {
	repo := newTestRepo(t)
	require.NoError(t, repo.SaveSample(newSample(t, "alice", "h1")))
	require.NoError(t, repo.SaveSample(newSample(t, "alice", "h2")))
	require.NoError(t, repo.SaveSample(newSample(t, "bob", "h3")))

	labels, err := repo.GetLabels()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alice", "bob"}, labels)

	exists, err := repo.LabelExists("alice")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.LabelExists("carol")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestFirstSampleForLabel(t *testing.T) {
	repo := newTestRepo(t)
	require.NoError(t, repo.SaveSample(newSample(t, "alice", "oldest")))
	require.NoError(t, repo.SaveSample(newSample(t, "alice", "newer")))

	first, err := repo.FirstSampleForLabel("alice")
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, "oldest", first.ContentHash)

	missing, err := repo.FirstSampleForLabel("carol")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestUpsertNote(t *testing.T) {
	repo := newTestRepo(t)

	require.NoError(t, repo.UpsertNote("alice", "first note"))
	require.NoError(t, repo.UpsertNote("alice", "second note"))

	note, err := repo.GetNote("alice")
	require.NoError(t, err)
	require.NotNil(t, note)
	assert.Equal(t, "second note", note.Note)

	missing, err := repo.GetNote("bob")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestEnsureUserKeepsExistingRole(t *testing.T) {
	repo := newTestRepo(t)

	require.NoError(t, repo.EnsureUser("@alice", models.RoleRootAdmin))
	require.NoError(t, repo.EnsureUser("@alice", models.RoleUser))

	user, err := repo.FindUser("@alice")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, models.RoleRootAdmin, user.Role)
}

func TestListUsersByRoleAndDelete(t *testing.T) {
	repo := newTestRepo(t)
	require.NoError(t, repo.EnsureUser("@alice", models.RoleAdmin))
	require.NoError(t, repo.EnsureUser("@bob", models.RoleUser))
	require.NoError(t, repo.EnsureUser("@carol", models.RoleUser))

	users, err := repo.ListUsersByRole(models.RoleUser)
	require.NoError(t, err)
	assert.Len(t, users, 2)

	// Deleting with the wrong role is a no-op.
	require.NoError(t, repo.DeleteUser("@bob", models.RoleAdmin))
	user, err := repo.FindUser("@bob")
	require.NoError(t, err)
	assert.NotNil(t, user)

	require.NoError(t, repo.DeleteUser("@bob", models.RoleUser))
	user, err = repo.FindUser("@bob")
	require.NoError(t, err)
	assert.Nil(t, user)
}

func TestSnapshotLifecycle(t *testing.T) {
	repo := newTestRepo(t)

	require.NoError(t, repo.SaveSnapshot(&models.ModelSnapshot{Blob: []byte("old"), FaceCount: 2}))
	require.NoError(t, repo.SaveSnapshot(&models.ModelSnapshot{Blob: []byte("new"), FaceCount: 3}))

	latest, err := repo.LatestSnapshot()
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, []byte("new"), latest.Blob)
	assert.Equal(t, 3, latest.FaceCount)

	require.NoError(t, repo.DeleteOutdatedSnapshots())

	latest, err = repo.LatestSnapshot()
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, []byte("new"), latest.Blob)
}

func TestLatestSnapshotEmpty(t *testing.T) {
	repo := newTestRepo(t)
	latest, err := repo.LatestSnapshot()
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestIncrementCommand(t *testing.T) {
	repo := newTestRepo(t)

	require.NoError(t, repo.IncrementCommand("2026-08-29", "train"))
	require.NoError(t, repo.IncrementCommand("2026-08-29", "train"))
	require.NoError(t, repo.IncrementCommand("2026-08-29", "predict"))

	var stat models.CommandStat
	require.NoError(t, repo.db.Where("date = ? AND command = ?", "2026-08-29", "train").First(&stat).Error)
	assert.Equal(t, int64(2), stat.Count)
}

func TestGetStatistics(t *testing.T) {
	repo := newTestRepo(t)
	require.NoError(t, repo.SaveSample(newSample(t, "alice", "h1")))
	require.NoError(t, repo.SaveSample(newSample(t, "alice", "h2")))
	require.NoError(t, repo.SaveSample(newSample(t, "bob", "h3")))
	require.NoError(t, repo.EnsureUser("@alice", models.RoleAdmin))
	require.NoError(t, repo.SaveSnapshot(&models.ModelSnapshot{Blob: []byte("m"), FaceCount: 3}))

	stats, err := repo.GetStatistics()
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.TotalSamples)
	assert.Equal(t, int64(2), stats.LabelCount)
	assert.Equal(t, int64(1), stats.UserCount)
	assert.Equal(t, int64(2), stats.SamplesByLabel["alice"])
	assert.Equal(t, 3, stats.ModelFaceCount)
	assert.False(t, stats.ModelTrainedAt.IsZero())
}
