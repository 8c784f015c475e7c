package sync

import (
	"log"
	"os"
	"path/filepath"

	"github.com/chmdznr/minio-folder-sync/internal/db"
	"github.com/chmdznr/minio-folder-sync/pkg/models"
)

// Scan walks the folder's local path and refreshes its upload queue:
// new and changed files are marked pending, records for files that no
// longer exist are removed. Returns the number of files queued and the
// number of stale records removed.
func Scan(database *db.DB, folder *models.SyncedFolder) (queued, removed int, err error) {
	existing := make(map[string]models.UploadRecord)
	records, err := database.Uploads(folder.ID)
	if err != nil {
		return 0, 0, err
	}
	for _, record := range records {
		existing[record.FilePath] = record
	}

	var batch []models.UploadRecord
	err = filepath.Walk(folder.LocalPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if info.Name() == MovedSubdir {
				return filepath.SkipDir
			}
			return nil
		}

		relPath, err := filepath.Rel(folder.LocalPath, path)
		if err != nil {
			return err
		}

		record, exists := existing[relPath]
		if !exists || record.Timestamp.Unix() != info.ModTime().Unix() || record.Size != info.Size() {
			batch = append(batch, models.UploadRecord{
				FolderID:     folder.ID,
				FilePath:     relPath,
				Size:         info.Size(),
				Timestamp:    info.ModTime(),
				UploadStatus: models.StatusPending,
			})
		}
		delete(existing, relPath)
		return nil
	})
	if err != nil {
		return 0, 0, err
	}

	if len(batch) > 0 {
		if err := database.SaveUploadsBatch(batch); err != nil {
			return 0, 0, err
		}
	}

	// Whatever is left in the map vanished from disk
	for filePath := range existing {
		if err := database.DeleteUpload(folder.ID, filePath); err != nil {
			log.Printf("Failed to remove stale record %s: %v", filePath, err)
			continue
		}
		removed++
	}

	return len(batch), removed, nil
}
