package models

import "time"

// Upload statuses
const (
	StatusPending  = "pending"
	StatusUploaded = "uploaded"
	StatusFailed   = "failed"
	StatusSkipped  = "skipped"
)

// UploadRecord tracks a single file queued for upload within a synced folder
type UploadRecord struct {
	FolderID     int64
	FilePath     string
	Size         int64
	Timestamp    time.Time
	UploadStatus string
}
