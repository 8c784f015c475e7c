package sync

import (
	"net/url"
	"strings"
	"time"

	"github.com/chmdznr/minio-folder-sync/pkg/models"
)

// RemoteKey builds the object key for a file inside a synced folder.
// relPath is the file's path relative to the folder's local root; modTime
// drives the optional date subfolder.
func RemoteKey(folder *models.SyncedFolder, relPath string, modTime time.Time) string {
	key := sanitizePath(relPath)
	if folder.SubfolderByDate {
		key = modTime.Format("2006/01") + "/" + key
	}

	base := strings.Trim(strings.ReplaceAll(folder.RemotePath, "\\", "/"), "/")
	if base != "" {
		key = base + "/" + key
	}
	return strings.TrimPrefix(key, "/")
}

func sanitizePath(path string) string {
	// First, replace any backslashes with forward slashes
	path = strings.ReplaceAll(path, "\\", "/")

	// Split the path into segments
	segments := strings.Split(path, "/")

	// URL encode each segment individually
	for i, segment := range segments {
		// First decode the segment in case it's already encoded
		decoded, err := url.QueryUnescape(segment)
		if err == nil {
			segment = decoded
		}

		// Replace problematic characters
		segment = strings.ReplaceAll(segment, "&", "and")
		segment = strings.ReplaceAll(segment, "+", "plus")

		// Encode the segment
		segments[i] = url.QueryEscape(segment)
	}

	// Join the segments back together
	sanitized := strings.Join(segments, "/")

	// Remove any double slashes
	for strings.Contains(sanitized, "//") {
		sanitized = strings.ReplaceAll(sanitized, "//", "/")
	}

	return sanitized
}
