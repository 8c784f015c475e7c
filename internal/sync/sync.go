package sync

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/chmdznr/minio-folder-sync/internal/db"
	"github.com/chmdznr/minio-folder-sync/pkg/models"
	"github.com/chmdznr/minio-folder-sync/pkg/utils"
)

// MovedSubdir is where uploaded files land locally under
// UploadActionMove. Scanner and watcher both leave it alone so moved
// files are never queued again.
const MovedSubdir = ".synced"

// Uploader pushes a synced folder's pending files to its account's bucket
type Uploader struct {
	db         *db.DB
	folder     *models.SyncedFolder
	account    *models.Account
	client     *minio.Client
	numWorkers int
}

// UploaderConfig holds configuration for the uploader
type UploaderConfig struct {
	NumWorkers int
}

// DefaultUploaderConfig returns default uploader configuration
func DefaultUploaderConfig() UploaderConfig {
	return UploaderConfig{
		NumWorkers: 8,
	}
}

// NewUploader creates an uploader for one synced folder
func NewUploader(database *db.DB, folder *models.SyncedFolder, account *models.Account, config *UploaderConfig) (*Uploader, error) {
	if config == nil {
		defaultConfig := DefaultUploaderConfig()
		config = &defaultConfig
	}

	tr := &http.Transport{
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	opts := minio.Options{
		Creds:        credentials.NewStaticV4(account.AccessKey, account.SecretKey, ""),
		Secure:       true,
		Transport:    tr,
		Region:       "auto",
		BucketLookup: minio.BucketLookupAuto,
	}

	client, err := minio.New(account.Endpoint, &opts)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize MinIO client: %v", err)
	}

	return &Uploader{
		db:         database,
		folder:     folder,
		account:    account,
		client:     client,
		numWorkers: config.NumWorkers,
	}, nil
}

// Upload pushes all pending files of the folder and applies the folder's
// upload action to each local file afterwards
func (u *Uploader) Upload(ctx context.Context) error {
	files, err := u.db.PendingUploads(u.folder.ID)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		fmt.Printf("Nothing to upload for %s\n", u.folder.LocalPath)
		return nil
	}

	var totalSize int64
	retries := 0
	for _, file := range files {
		totalSize += file.Size
		if file.UploadStatus == models.StatusFailed {
			retries++
		}
	}

	fmt.Printf("Uploading %d files (%s) from %s - %d retried...\n",
		len(files), utils.FormatSize(totalSize), u.folder.LocalPath, retries)

	bar := pb.New64(int64(len(files)))
	bar.SetTemplate(`{{counters . }} {{bar . }} {{percent . }} {{speed . }}`)
	bar.Start()

	start := time.Now()
	jobs := make(chan models.UploadRecord, u.numWorkers)

	var wg sync.WaitGroup
	for i := 0; i < u.numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				u.uploadOne(ctx, job)
				bar.Increment()
			}
		}()
	}

	for _, file := range files {
		select {
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			bar.Finish()
			return ctx.Err()
		case jobs <- file:
		}
	}

	close(jobs)
	wg.Wait()
	bar.Finish()

	fmt.Printf("Upload of %s finished in %s\n", u.folder.LocalPath, utils.FormatDuration(time.Since(start)))
	return nil
}

func (u *Uploader) uploadOne(ctx context.Context, record models.UploadRecord) {
	fullPath := filepath.Join(u.folder.LocalPath, record.FilePath)

	info, err := os.Stat(fullPath)
	if os.IsNotExist(err) {
		log.Printf("Skipping %s: file no longer exists", record.FilePath)
		u.setStatus(record.FilePath, models.StatusSkipped)
		return
	}
	if err != nil {
		log.Printf("Failed to stat %s: %v", record.FilePath, err)
		u.setStatus(record.FilePath, models.StatusFailed)
		return
	}

	key := RemoteKey(u.folder, record.FilePath, info.ModTime())

	objInfo, err := u.client.FPutObject(ctx, u.account.Bucket, key, fullPath, minio.PutObjectOptions{})
	if err != nil {
		log.Printf("Failed to upload %s:", record.FilePath)
		log.Printf("  Local path: %s", fullPath)
		log.Printf("  Destination: %s/%s", u.account.Bucket, key)
		log.Printf("  Error: %v", err)

		if minioErr, ok := err.(minio.ErrorResponse); ok {
			log.Printf("  MinIO code: %s, message: %s", minioErr.Code, minioErr.Message)
		}

		u.setStatus(record.FilePath, models.StatusFailed)
		return
	}

	if objInfo.Size != info.Size() {
		log.Printf("Uploaded size mismatch for %s: expected %d, got %d",
			record.FilePath, info.Size(), objInfo.Size)
		u.setStatus(record.FilePath, models.StatusFailed)
		return
	}

	u.setStatus(record.FilePath, models.StatusUploaded)

	if err := u.applyUploadAction(fullPath, record.FilePath); err != nil {
		log.Printf("Post-upload action failed for %s: %v", record.FilePath, err)
	}
}

func (u *Uploader) setStatus(filePath, status string) {
	if err := u.db.UpdateUploadStatus(u.folder.ID, filePath, status); err != nil {
		log.Printf("Failed to update status for %s: %v", filePath, err)
	}
}

// applyUploadAction handles the local file according to the folder policy
// once its upload has been verified.
func (u *Uploader) applyUploadAction(fullPath, relPath string) error {
	switch u.folder.UploadAction {
	case models.UploadActionDelete:
		return os.Remove(fullPath)
	case models.UploadActionMove:
		target := filepath.Join(u.folder.LocalPath, MovedSubdir, relPath)
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return err
		}
		return os.Rename(fullPath, target)
	default:
		return nil
	}
}
