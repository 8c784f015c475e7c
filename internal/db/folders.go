package db

import (
	"database/sql"
	"log"

	"github.com/chmdznr/minio-folder-sync/pkg/models"
)

// Notifier is called with the affected folder after a successful insert
// or update so that a watcher service can re-register it.
type Notifier func(models.SyncedFolder)

// FolderStore handles the persistence of synced folder configurations
type FolderStore struct {
	db     *DB
	notify Notifier
}

// NewFolderStore creates a folder store. A nil notifier disables change
// notifications.
func NewFolderStore(db *DB, notify Notifier) *FolderStore {
	return &FolderStore{db: db, notify: notify}
}

const folderColumns = `id, local_path, remote_path, wifi_only, charging_only, subfolder_by_date, account, upload_action, enabled`

func scanFolder(rows *sql.Rows) (*models.SyncedFolder, error) {
	var folder models.SyncedFolder
	err := rows.Scan(
		&folder.ID,
		&folder.LocalPath,
		&folder.RemotePath,
		&folder.WifiOnly,
		&folder.ChargingOnly,
		&folder.SubfolderByDate,
		&folder.Account,
		&folder.UploadAction,
		&folder.Enabled,
	)
	if err != nil {
		return nil, err
	}
	return &folder, nil
}

// StoreFolder persists a new synced folder and assigns its id. Returns
// the assigned id, or -1 if the insert fails. Fires the change
// notification on success.
func (s *FolderStore) StoreFolder(folder *models.SyncedFolder) int64 {
	log.Printf("Inserting %s with enabled=%v", folder.LocalPath, folder.Enabled)

	result, err := s.db.Exec(`
		INSERT INTO synced_folders (local_path, remote_path, wifi_only, charging_only, subfolder_by_date, account, upload_action, enabled)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		folder.LocalPath,
		folder.RemotePath,
		folder.WifiOnly,
		folder.ChargingOnly,
		folder.SubfolderByDate,
		folder.Account,
		folder.UploadAction,
		folder.Enabled,
	)
	if err != nil {
		log.Printf("Failed to insert %s into synced folder db: %v", folder.LocalPath, err)
		return -1
	}

	id, err := result.LastInsertId()
	if err != nil {
		log.Printf("Failed to read id for inserted folder %s: %v", folder.LocalPath, err)
		return -1
	}

	folder.ID = id
	s.notifyChanged(*folder)
	return id
}

// Folders returns all synced folder entries, empty if none exist or the
// read fails.
func (s *FolderStore) Folders() []models.SyncedFolder {
	rows, err := s.db.Query(`SELECT ` + folderColumns + ` FROM synced_folders`)
	if err != nil {
		log.Printf("Failed to read synced folders: %v", err)
		return []models.SyncedFolder{}
	}
	defer rows.Close()

	folders := make([]models.SyncedFolder, 0)
	for rows.Next() {
		folder, err := scanFolder(rows)
		if err != nil {
			log.Printf("Synced folder could not be read from row: %v", err)
			continue
		}
		folders = append(folders, *folder)
	}
	if err := rows.Err(); err != nil {
		log.Printf("Failed while iterating synced folders: %v", err)
	}
	return folders
}

// SetFolderEnabled loads the folder uniquely referenced by id, updates
// its enabled flag and writes it back. Returns the number of rows
// updated; 0 when zero or more than one row matches the id.
func (s *FolderStore) SetFolderEnabled(id int64, enabled bool) int64 {
	log.Printf("Storing synced folder id=%d with enabled=%v", id, enabled)

	matches := s.queryFolders(`SELECT `+folderColumns+` FROM synced_folders WHERE id = ?`, id)
	if len(matches) != 1 {
		log.Printf("%d rows for id=%d in synced folder db, expected 1; not updating", len(matches), id)
		return 0
	}

	folder := matches[0]
	folder.Enabled = enabled
	return s.UpdateFolder(&folder)
}

// FindByLocalPath looks up a synced folder by exact local path. Returns
// nil when no folder matches, or when more than one does.
func (s *FolderStore) FindByLocalPath(localPath string) *models.SyncedFolder {
	matches := s.queryFolders(`SELECT `+folderColumns+` FROM synced_folders WHERE local_path = ?`, localPath)
	if len(matches) > 1 {
		log.Printf("%d rows for local path %s in synced folder db, expected 1", len(matches), localPath)
		return nil
	}
	if len(matches) == 0 {
		return nil
	}
	return &matches[0]
}

// UpdateFolder persists all mutable fields of the given folder, keyed by
// its id. Returns the number of rows updated and fires the change
// notification when at least one row was written.
func (s *FolderStore) UpdateFolder(folder *models.SyncedFolder) int64 {
	log.Printf("Updating %s with enabled=%v", folder.LocalPath, folder.Enabled)

	result, err := s.db.Exec(`
		UPDATE synced_folders
		SET local_path = ?, remote_path = ?, wifi_only = ?, charging_only = ?, subfolder_by_date = ?, account = ?, upload_action = ?, enabled = ?
		WHERE id = ?
	`,
		folder.LocalPath,
		folder.RemotePath,
		folder.WifiOnly,
		folder.ChargingOnly,
		folder.SubfolderByDate,
		folder.Account,
		folder.UploadAction,
		folder.Enabled,
		folder.ID,
	)
	if err != nil {
		log.Printf("Failed to update synced folder %s: %v", folder.LocalPath, err)
		return 0
	}

	affected, err := result.RowsAffected()
	if err != nil {
		log.Printf("Failed to read rows affected for %s: %v", folder.LocalPath, err)
		return 0
	}

	if affected > 0 {
		s.notifyChanged(*folder)
	}
	return affected
}

func (s *FolderStore) queryFolders(query string, args ...interface{}) []models.SyncedFolder {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		log.Printf("Synced folder query failed: %v", err)
		return nil
	}
	defer rows.Close()

	var folders []models.SyncedFolder
	for rows.Next() {
		folder, err := scanFolder(rows)
		if err != nil {
			log.Printf("Synced folder could not be read from row: %v", err)
			continue
		}
		folders = append(folders, *folder)
	}
	if err := rows.Err(); err != nil {
		log.Printf("Failed while iterating synced folders: %v", err)
	}
	return folders
}

func (s *FolderStore) notifyChanged(folder models.SyncedFolder) {
	if s.notify == nil {
		return
	}
	s.notify(folder)
	log.Printf("Notified change for synced folder %s", folder.LocalPath)
}
