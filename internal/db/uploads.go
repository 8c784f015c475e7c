package db

import (
	"fmt"

	"github.com/chmdznr/minio-folder-sync/pkg/models"
)

// SaveUpload saves a single upload record
func (db *DB) SaveUpload(record *models.UploadRecord) error {
	_, err := db.Exec(`
		INSERT OR REPLACE INTO uploads (folder_id, file_path, size, timestamp, upload_status)
		VALUES (?, ?, ?, ?, ?)
	`, record.FolderID, record.FilePath, record.Size, record.Timestamp, record.UploadStatus)
	return err
}

// SaveUploadsBatch saves multiple upload records in a single transaction
func (db *DB) SaveUploadsBatch(records []models.UploadRecord) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO uploads (folder_id, file_path, size, timestamp, upload_status)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, record := range records {
		_, err = stmt.Exec(
			record.FolderID,
			record.FilePath,
			record.Size,
			record.Timestamp,
			record.UploadStatus,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// Uploads retrieves all upload records for a folder
func (db *DB) Uploads(folderID int64) ([]models.UploadRecord, error) {
	return db.queryUploads(`
		SELECT folder_id, file_path, size, timestamp, upload_status
		FROM uploads
		WHERE folder_id = ?
	`, folderID)
}

// PendingUploads retrieves records still waiting for upload, including
// earlier failures to retry, largest first
func (db *DB) PendingUploads(folderID int64) ([]models.UploadRecord, error) {
	return db.queryUploads(`
		SELECT folder_id, file_path, size, timestamp, upload_status
		FROM uploads
		WHERE folder_id = ? AND upload_status IN (?, ?)
		ORDER BY size DESC
	`, folderID, models.StatusPending, models.StatusFailed)
}

func (db *DB) queryUploads(query string, args ...interface{}) ([]models.UploadRecord, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.UploadRecord
	for rows.Next() {
		var record models.UploadRecord
		err = rows.Scan(
			&record.FolderID,
			&record.FilePath,
			&record.Size,
			&record.Timestamp,
			&record.UploadStatus,
		)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// UpdateUploadStatus updates the status of a single queued file
func (db *DB) UpdateUploadStatus(folderID int64, filePath, status string) error {
	_, err := db.Exec(`
		UPDATE uploads
		SET upload_status = ?
		WHERE folder_id = ? AND file_path = ?
	`, status, folderID, filePath)
	return err
}

// UpdateUploadStatusBatch updates the status of multiple queued files in
// a single transaction
func (db *DB) UpdateUploadStatusBatch(folderID int64, filePaths []string, status string) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		UPDATE uploads
		SET upload_status = ?
		WHERE folder_id = ? AND file_path = ?
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, filePath := range filePaths {
		_, err = stmt.Exec(status, folderID, filePath)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// DeleteUpload removes the record of a file that no longer exists locally
func (db *DB) DeleteUpload(folderID int64, filePath string) error {
	_, err := db.Exec(`
		DELETE FROM uploads
		WHERE folder_id = ? AND file_path = ?
	`, folderID, filePath)
	return err
}

// FolderStats returns upload statistics for a synced folder
func (db *DB) FolderStats(folderID int64) (*models.Stats, error) {
	var stats models.Stats
	err := db.QueryRow(`
		SELECT
			COUNT(*) as total_files,
			COALESCE(SUM(size), 0) as total_size,
			COUNT(CASE WHEN upload_status = 'uploaded' THEN 1 END) as uploaded_files,
			COALESCE(SUM(CASE WHEN upload_status = 'uploaded' THEN size ELSE 0 END), 0) as uploaded_size,
			COUNT(CASE WHEN upload_status = 'pending' THEN 1 END) as pending_files,
			COALESCE(SUM(CASE WHEN upload_status = 'pending' THEN size ELSE 0 END), 0) as pending_size,
			COUNT(CASE WHEN upload_status = 'failed' THEN 1 END) as failed_files,
			COALESCE(SUM(CASE WHEN upload_status = 'failed' THEN size ELSE 0 END), 0) as failed_size
		FROM uploads
		WHERE folder_id = ?
	`, folderID).Scan(
		&stats.TotalFiles,
		&stats.TotalSize,
		&stats.UploadedFiles,
		&stats.UploadedSize,
		&stats.PendingFiles,
		&stats.PendingSize,
		&stats.FailedFiles,
		&stats.FailedSize,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get stats: %v", err)
	}
	return &stats, nil
}
