package models

// Upload actions describe what happens to the local copy of a file after
// a successful upload.
const (
	UploadActionKeep   = 0
	UploadActionMove   = 1
	UploadActionDelete = 2
)

// SyncedFolder pairs a local directory with a remote path on an account
// and carries the automatic upload policy flags.
type SyncedFolder struct {
	ID              int64
	LocalPath       string
	RemotePath      string
	WifiOnly        bool
	ChargingOnly    bool
	SubfolderByDate bool
	Account         string
	UploadAction    int
	Enabled         bool
}

// Account is a named MinIO destination
type Account struct {
	Name      string
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
}
