// Package watcher keeps fsnotify watches on enabled synced folders and
// queues changed files for upload.
package watcher

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	gosync "sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/chmdznr/minio-folder-sync/internal/db"
	"github.com/chmdznr/minio-folder-sync/internal/sync"
	"github.com/chmdznr/minio-folder-sync/pkg/models"
)

// Conditions describes the runtime state the upload policy flags are
// checked against.
type Conditions struct {
	Metered   bool
	OnBattery bool
}

// Allows reports whether the folder's policy flags permit automatic
// uploads under these conditions.
func (c Conditions) Allows(folder models.SyncedFolder) bool {
	if folder.WifiOnly && c.Metered {
		return false
	}
	if folder.ChargingOnly && c.OnBattery {
		return false
	}
	return true
}

// settleDelay is how long a folder is left quiet after its last event
// before an upload run starts.
const settleDelay = 2 * time.Second

// Service watches the local paths of enabled synced folders. Its Restart
// method is the change notifier handed to the folder store.
type Service struct {
	db      *db.DB
	watcher *fsnotify.Watcher
	cond    Conditions

	mu      gosync.Mutex
	folders map[int64]models.SyncedFolder
	timers  map[int64]*time.Timer
	paused  bool
	running bool

	done chan struct{}
	wg   gosync.WaitGroup
}

// New creates a watcher service. Start must be called before events are
// processed.
func New(database *db.DB, cond Conditions) (*Service, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &Service{
		db:      database,
		watcher: fsWatcher,
		cond:    cond,
		folders: make(map[int64]models.SyncedFolder),
		timers:  make(map[int64]*time.Timer),
		done:    make(chan struct{}),
	}, nil
}

// Start registers all given folders and begins processing events.
func (s *Service) Start(folders []models.SyncedFolder) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("watcher already running")
	}
	s.running = true
	s.mu.Unlock()

	for _, folder := range folders {
		s.Restart(folder)
	}

	s.wg.Add(1)
	go s.loop()
	return nil
}

// Stop shuts down event processing and releases all watches.
func (s *Service) Stop() {
	s.mu.Lock()
	wasRunning := s.running
	s.running = false
	for id, timer := range s.timers {
		timer.Stop()
		delete(s.timers, id)
	}
	s.mu.Unlock()

	if wasRunning {
		close(s.done)
	}
	s.watcher.Close()
	s.wg.Wait()
}

// Restart re-registers a single folder after its configuration changed.
// A disabled folder has its watch removed; an enabled one is (re)added.
// This is the notification hook passed to db.NewFolderStore.
func (s *Service) Restart(folder models.SyncedFolder) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.folders[folder.ID]; ok {
		s.removeWatchesLocked(old.LocalPath)
		delete(s.folders, folder.ID)
	}

	if !folder.Enabled {
		log.Printf("Watch removed for %s", folder.LocalPath)
		return
	}

	if err := s.addWatchesLocked(folder.LocalPath); err != nil {
		log.Printf("Failed to watch %s: %v", folder.LocalPath, err)
		return
	}
	s.folders[folder.ID] = folder
	log.Printf("Watching %s", folder.LocalPath)
}

// SetPaused suspends or resumes upload scheduling. Events still refresh
// the upload queue while paused.
func (s *Service) SetPaused(paused bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = paused
}

// Watching reports whether the folder id currently holds a watch.
func (s *Service) Watching(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.folders[id]
	return ok
}

// addWatchesLocked registers root and every subdirectory; fsnotify
// watches are not recursive.
func (s *Service) addWatchesLocked(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return nil
		}
		if strings.HasPrefix(info.Name(), ".") && path != root {
			return filepath.SkipDir
		}
		return s.watcher.Add(path)
	})
}

func (s *Service) removeWatchesLocked(root string) {
	for _, watched := range s.watcher.WatchList() {
		if watched == root || strings.HasPrefix(watched, root+string(os.PathSeparator)) {
			if err := s.watcher.Remove(watched); err != nil {
				log.Printf("Failed to unwatch %s: %v", watched, err)
			}
		}
	}
}

func (s *Service) loop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.done:
			return
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			s.handleEvent(event)
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("Watcher error: %v", err)
		}
	}
}

func (s *Service) handleEvent(event fsnotify.Event) {
	if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) {
		return
	}

	folder, ok := s.folderFor(event.Name)
	if !ok {
		return
	}

	relPath, err := filepath.Rel(folder.LocalPath, event.Name)
	if err != nil {
		return
	}

	// Files the uploader moved aside must not be queued again
	if relPath == sync.MovedSubdir || strings.HasPrefix(relPath, sync.MovedSubdir+string(os.PathSeparator)) {
		return
	}

	info, err := os.Stat(event.Name)
	if err != nil {
		return
	}

	if info.IsDir() {
		// New subdirectory: watch it too
		s.mu.Lock()
		if err := s.addWatchesLocked(event.Name); err != nil {
			log.Printf("Failed to watch new directory %s: %v", event.Name, err)
		}
		s.mu.Unlock()
		s.scheduleUpload(folder)
		return
	}

	record := models.UploadRecord{
		FolderID:     folder.ID,
		FilePath:     relPath,
		Size:         info.Size(),
		Timestamp:    info.ModTime(),
		UploadStatus: models.StatusPending,
	}
	if err := s.db.SaveUpload(&record); err != nil {
		log.Printf("Failed to queue %s: %v", relPath, err)
		return
	}

	s.scheduleUpload(folder)
}

func (s *Service) folderFor(path string) (models.SyncedFolder, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, folder := range s.folders {
		if path == folder.LocalPath || strings.HasPrefix(path, folder.LocalPath+string(os.PathSeparator)) {
			return folder, true
		}
	}
	return models.SyncedFolder{}, false
}

// scheduleUpload (re)arms the folder's settle timer; the upload runs once
// the folder has been quiet for settleDelay.
func (s *Service) scheduleUpload(folder models.SyncedFolder) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	if timer, ok := s.timers[folder.ID]; ok {
		timer.Stop()
	}
	id := folder.ID
	s.timers[id] = time.AfterFunc(settleDelay, func() {
		// Config may have changed since the event came in; upload with
		// whatever is registered now, or not at all if the folder is gone
		current, ok := s.currentFolder(id)
		if !ok {
			return
		}
		s.uploadFolder(current)
	})
}

func (s *Service) currentFolder(id int64) (models.SyncedFolder, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	folder, ok := s.folders[id]
	return folder, ok
}

func (s *Service) uploadFolder(folder models.SyncedFolder) {
	s.mu.Lock()
	paused := s.paused
	s.mu.Unlock()

	if paused {
		log.Printf("Paused, holding uploads for %s", folder.LocalPath)
		return
	}
	if !s.cond.Allows(folder) {
		log.Printf("Policy blocks upload of %s (wifi_only=%v charging_only=%v)",
			folder.LocalPath, folder.WifiOnly, folder.ChargingOnly)
		return
	}

	account, err := s.db.GetAccount(folder.Account)
	if err != nil {
		log.Printf("Cannot upload %s: %v", folder.LocalPath, err)
		return
	}

	uploader, err := sync.NewUploader(s.db, &folder, account, nil)
	if err != nil {
		log.Printf("Cannot upload %s: %v", folder.LocalPath, err)
		return
	}

	if err := uploader.Upload(context.Background()); err != nil {
		log.Printf("Upload of %s failed: %v", folder.LocalPath, err)
	}
}
