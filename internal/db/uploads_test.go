package db

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chmdznr/minio-folder-sync/pkg/models"
)

func TestSaveUploadsBatchAndPending(t *testing.T) {
	database := setupTestDB(t)

	now := time.Now().UTC().Truncate(time.Second)
	records := []models.UploadRecord{
		{FolderID: 1, FilePath: "a.jpg", Size: 100, Timestamp: now, UploadStatus: models.StatusPending},
		{FolderID: 1, FilePath: "b.jpg", Size: 300, Timestamp: now, UploadStatus: models.StatusPending},
		{FolderID: 1, FilePath: "c.jpg", Size: 200, Timestamp: now, UploadStatus: models.StatusUploaded},
		{FolderID: 2, FilePath: "other.jpg", Size: 50, Timestamp: now, UploadStatus: models.StatusPending},
	}
	require.NoError(t, database.SaveUploadsBatch(records))

	pending, err := database.PendingUploads(1)
	require.NoError(t, err)
	require.Len(t, pending, 2)

	// largest first
	assert.Equal(t, "b.jpg", pending[0].FilePath)
	assert.Equal(t, "a.jpg", pending[1].FilePath)
}

func TestPendingUploadsIncludesFailed(t *testing.T) {
	database := setupTestDB(t)

	now := time.Now().UTC()
	require.NoError(t, database.SaveUpload(&models.UploadRecord{
		FolderID: 1, FilePath: "retry.jpg", Size: 10, Timestamp: now, UploadStatus: models.StatusFailed,
	}))

	pending, err := database.PendingUploads(1)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, models.StatusFailed, pending[0].UploadStatus)
}

func TestUpdateUploadStatus(t *testing.T) {
	database := setupTestDB(t)

	now := time.Now().UTC()
	require.NoError(t, database.SaveUpload(&models.UploadRecord{
		FolderID: 1, FilePath: "a.jpg", Size: 100, Timestamp: now, UploadStatus: models.StatusPending,
	}))

	require.NoError(t, database.UpdateUploadStatus(1, "a.jpg", models.StatusUploaded))

	pending, err := database.PendingUploads(1)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestFolderStats(t *testing.T) {
	database := setupTestDB(t)

	now := time.Now().UTC()
	records := []models.UploadRecord{
		{FolderID: 7, FilePath: "a", Size: 100, Timestamp: now, UploadStatus: models.StatusPending},
		{FolderID: 7, FilePath: "b", Size: 200, Timestamp: now, UploadStatus: models.StatusUploaded},
		{FolderID: 7, FilePath: "c", Size: 400, Timestamp: now, UploadStatus: models.StatusFailed},
	}
	require.NoError(t, database.SaveUploadsBatch(records))

	stats, err := database.FolderStats(7)
	require.NoError(t, err)

	assert.Equal(t, int64(3), stats.TotalFiles)
	assert.Equal(t, int64(700), stats.TotalSize)
	assert.Equal(t, int64(1), stats.UploadedFiles)
	assert.Equal(t, int64(200), stats.UploadedSize)
	assert.Equal(t, int64(1), stats.PendingFiles)
	assert.Equal(t, int64(100), stats.PendingSize)
	assert.Equal(t, int64(1), stats.FailedFiles)
	assert.Equal(t, int64(400), stats.FailedSize)
}

func TestDeleteUpload(t *testing.T) {
	database := setupTestDB(t)

	now := time.Now().UTC()
	require.NoError(t, database.SaveUpload(&models.UploadRecord{
		FolderID: 1, FilePath: "gone.jpg", Size: 5, Timestamp: now, UploadStatus: models.StatusPending,
	}))
	require.NoError(t, database.DeleteUpload(1, "gone.jpg"))

	uploads, err := database.Uploads(1)
	require.NoError(t, err)
	assert.Empty(t, uploads)
}
