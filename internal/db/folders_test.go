package db

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chmdznr/minio-folder-sync/pkg/models"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "mfsync-test-*")
	require.NoError(t, err)

	database, err := New(filepath.Join(tmpDir, "test.db"))
	require.NoError(t, err)

	t.Cleanup(func() {
		database.Close()
		os.RemoveAll(tmpDir)
	})

	return database
}

func testFolder(localPath string) *models.SyncedFolder {
	return &models.SyncedFolder{
		LocalPath:       localPath,
		RemotePath:      "backup/camera",
		WifiOnly:        true,
		ChargingOnly:    false,
		SubfolderByDate: true,
		Account:         "default",
		UploadAction:    models.UploadActionKeep,
		Enabled:         true,
	}
}

func TestStoreFolderAssignsID(t *testing.T) {
	database := setupTestDB(t)
	store := NewFolderStore(database, nil)

	folder := testFolder("/home/user/Pictures")
	id := store.StoreFolder(folder)

	require.GreaterOrEqual(t, id, int64(0))
	assert.Equal(t, id, folder.ID)

	folders := store.Folders()
	require.Len(t, folders, 1)
	assert.Equal(t, id, folders[0].ID)
	assert.Equal(t, "/home/user/Pictures", folders[0].LocalPath)
}

func TestFoldersEmptyWhenNoneExist(t *testing.T) {
	database := setupTestDB(t)
	store := NewFolderStore(database, nil)

	folders := store.Folders()
	assert.NotNil(t, folders)
	assert.Empty(t, folders)
}

func TestFindByLocalPath(t *testing.T) {
	database := setupTestDB(t)
	store := NewFolderStore(database, nil)

	original := testFolder("/home/user/Documents")
	id := store.StoreFolder(original)
	require.GreaterOrEqual(t, id, int64(0))

	found := store.FindByLocalPath("/home/user/Documents")
	require.NotNil(t, found)

	assert.Equal(t, id, found.ID)
	assert.Equal(t, original.LocalPath, found.LocalPath)
	assert.Equal(t, original.RemotePath, found.RemotePath)
	assert.Equal(t, original.WifiOnly, found.WifiOnly)
	assert.Equal(t, original.ChargingOnly, found.ChargingOnly)
	assert.Equal(t, original.SubfolderByDate, found.SubfolderByDate)
	assert.Equal(t, original.Account, found.Account)
	assert.Equal(t, original.UploadAction, found.UploadAction)
	assert.Equal(t, original.Enabled, found.Enabled)
}

func TestFindByLocalPathAbsent(t *testing.T) {
	database := setupTestDB(t)
	store := NewFolderStore(database, nil)

	assert.Nil(t, store.FindByLocalPath("/nowhere"))
}

func TestFindByLocalPathDuplicate(t *testing.T) {
	database := setupTestDB(t)
	store := NewFolderStore(database, nil)

	// local_path uniqueness is expected from callers, not enforced here;
	// duplicates are treated as an anomaly and resolved to absent
	store.StoreFolder(testFolder("/home/user/Music"))
	store.StoreFolder(testFolder("/home/user/Music"))

	assert.Nil(t, store.FindByLocalPath("/home/user/Music"))
}

func TestSetFolderEnabled(t *testing.T) {
	database := setupTestDB(t)
	store := NewFolderStore(database, nil)

	folder := testFolder("/home/user/Videos")
	folder.Enabled = false
	id := store.StoreFolder(folder)
	require.GreaterOrEqual(t, id, int64(0))

	affected := store.SetFolderEnabled(id, true)
	assert.Equal(t, int64(1), affected)

	found := store.FindByLocalPath("/home/user/Videos")
	require.NotNil(t, found)
	assert.True(t, found.Enabled)
}

func TestSetFolderEnabledUnknownID(t *testing.T) {
	database := setupTestDB(t)
	store := NewFolderStore(database, nil)

	assert.Equal(t, int64(0), store.SetFolderEnabled(12345, true))
}

func TestUpdateFolder(t *testing.T) {
	database := setupTestDB(t)
	store := NewFolderStore(database, nil)

	folder := testFolder("/home/user/Downloads")
	id := store.StoreFolder(folder)
	require.GreaterOrEqual(t, id, int64(0))

	folder.RemotePath = "archive"
	folder.UploadAction = models.UploadActionDelete
	folder.WifiOnly = false

	affected := store.UpdateFolder(folder)
	assert.Equal(t, int64(1), affected)

	found := store.FindByLocalPath("/home/user/Downloads")
	require.NotNil(t, found)
	assert.Equal(t, "archive", found.RemotePath)
	assert.Equal(t, models.UploadActionDelete, found.UploadAction)
	assert.False(t, found.WifiOnly)
}

func TestUpdateFolderUnknownID(t *testing.T) {
	database := setupTestDB(t)
	store := NewFolderStore(database, nil)

	folder := testFolder("/home/user/Desktop")
	folder.ID = 99999

	assert.Equal(t, int64(0), store.UpdateFolder(folder))
}

func TestNotifierFiresOnWrites(t *testing.T) {
	database := setupTestDB(t)

	var notified []models.SyncedFolder
	store := NewFolderStore(database, func(f models.SyncedFolder) {
		notified = append(notified, f)
	})

	folder := testFolder("/home/user/Pictures")
	id := store.StoreFolder(folder)
	require.GreaterOrEqual(t, id, int64(0))
	require.Len(t, notified, 1)
	assert.Equal(t, id, notified[0].ID)

	store.UpdateFolder(folder)
	assert.Len(t, notified, 2)

	// enable toggle goes through UpdateFolder and notifies once more
	store.SetFolderEnabled(id, false)
	assert.Len(t, notified, 3)
}

func TestNotifierNotFiredOnFailedWrites(t *testing.T) {
	database := setupTestDB(t)

	notifications := 0
	store := NewFolderStore(database, func(models.SyncedFolder) {
		notifications++
	})

	folder := testFolder("/home/user/tmp")
	folder.ID = 54321
	store.UpdateFolder(folder)
	store.SetFolderEnabled(54321, true)

	assert.Zero(t, notifications)
}
