package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chmdznr/minio-folder-sync/internal/db"
	"github.com/chmdznr/minio-folder-sync/internal/sync"
	"github.com/chmdznr/minio-folder-sync/pkg/models"
)

func setupWatcherTest(t *testing.T) (*Service, *db.DB, string) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "mfsync-watch-*")
	require.NoError(t, err)

	database, err := db.New(filepath.Join(tmpDir, "test.db"))
	require.NoError(t, err)

	service, err := New(database, Conditions{})
	require.NoError(t, err)

	t.Cleanup(func() {
		service.Stop()
		database.Close()
		os.RemoveAll(tmpDir)
	})

	return service, database, tmpDir
}

func TestConditionsAllows(t *testing.T) {
	tests := []struct {
		name     string
		cond     Conditions
		folder   models.SyncedFolder
		expected bool
	}{
		{
			name:     "no flags",
			cond:     Conditions{Metered: true, OnBattery: true},
			folder:   models.SyncedFolder{},
			expected: true,
		},
		{
			name:     "wifi only on metered",
			cond:     Conditions{Metered: true},
			folder:   models.SyncedFolder{WifiOnly: true},
			expected: false,
		},
		{
			name:     "wifi only on unmetered",
			cond:     Conditions{},
			folder:   models.SyncedFolder{WifiOnly: true},
			expected: true,
		},
		{
			name:     "charging only on battery",
			cond:     Conditions{OnBattery: true},
			folder:   models.SyncedFolder{ChargingOnly: true},
			expected: false,
		},
		{
			name:     "charging only while plugged in",
			cond:     Conditions{},
			folder:   models.SyncedFolder{ChargingOnly: true},
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.cond.Allows(tt.folder))
		})
	}
}

func TestRestartAddsAndRemovesWatches(t *testing.T) {
	service, _, tmpDir := setupWatcherTest(t)

	localDir := filepath.Join(tmpDir, "source")
	require.NoError(t, os.MkdirAll(localDir, 0755))

	folder := models.SyncedFolder{ID: 1, LocalPath: localDir, Enabled: true}
	service.Restart(folder)
	assert.True(t, service.Watching(1))

	folder.Enabled = false
	service.Restart(folder)
	assert.False(t, service.Watching(1))
}

func TestRestartIgnoresMissingPath(t *testing.T) {
	service, _, tmpDir := setupWatcherTest(t)

	folder := models.SyncedFolder{
		ID:        2,
		LocalPath: filepath.Join(tmpDir, "does-not-exist"),
		Enabled:   true,
	}
	service.Restart(folder)
	assert.False(t, service.Watching(2))
}

func TestEventQueuesUpload(t *testing.T) {
	service, database, tmpDir := setupWatcherTest(t)

	localDir := filepath.Join(tmpDir, "source")
	require.NoError(t, os.MkdirAll(localDir, 0755))

	folder := models.SyncedFolder{ID: 3, LocalPath: localDir, Enabled: true}
	require.NoError(t, service.Start([]models.SyncedFolder{folder}))

	require.NoError(t, os.WriteFile(filepath.Join(localDir, "new.txt"), []byte("data"), 0644))

	require.Eventually(t, func() bool {
		pending, err := database.PendingUploads(folder.ID)
		return err == nil && len(pending) == 1
	}, 3*time.Second, 50*time.Millisecond)

	pending, err := database.PendingUploads(folder.ID)
	require.NoError(t, err)
	assert.Equal(t, "new.txt", pending[0].FilePath)
}

func TestEventsInMovedSubdirNotQueued(t *testing.T) {
	service, database, tmpDir := setupWatcherTest(t)

	localDir := filepath.Join(tmpDir, "source")
	movedDir := filepath.Join(localDir, sync.MovedSubdir)
	require.NoError(t, os.MkdirAll(localDir, 0755))

	folder := models.SyncedFolder{
		ID:           4,
		LocalPath:    localDir,
		UploadAction: models.UploadActionMove,
		Enabled:      true,
	}
	require.NoError(t, service.Start([]models.SyncedFolder{folder}))

	// Simulate the uploader moving a finished file aside, then a real change
	require.NoError(t, os.MkdirAll(movedDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(movedDir, "old.txt"), []byte("done"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(localDir, "fresh.txt"), []byte("data"), 0644))

	require.Eventually(t, func() bool {
		pending, err := database.PendingUploads(folder.ID)
		return err == nil && len(pending) > 0
	}, 3*time.Second, 50*time.Millisecond)

	pending, err := database.PendingUploads(folder.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "fresh.txt", pending[0].FilePath)
}

func TestCurrentFolderReflectsRestart(t *testing.T) {
	service, _, tmpDir := setupWatcherTest(t)

	localDir := filepath.Join(tmpDir, "source")
	require.NoError(t, os.MkdirAll(localDir, 0755))

	folder := models.SyncedFolder{ID: 5, LocalPath: localDir, Account: "first", Enabled: true}
	service.Restart(folder)

	// An upload scheduled before a config change must run with the
	// registered config, not the one captured at event time
	folder.Account = "second"
	folder.UploadAction = models.UploadActionDelete
	service.Restart(folder)

	current, ok := service.currentFolder(5)
	require.True(t, ok)
	assert.Equal(t, "second", current.Account)
	assert.Equal(t, models.UploadActionDelete, current.UploadAction)

	folder.Enabled = false
	service.Restart(folder)

	_, ok = service.currentFolder(5)
	assert.False(t, ok)
}
