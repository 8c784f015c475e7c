package db

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/chmdznr/minio-folder-sync/pkg/models"
)

// DB represents the database connection backing all sync state
type DB struct {
	*sql.DB
}

// New opens (creating if necessary) the database at dbPath
func New(dbPath string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	db := &DB{sqlDB}
	if err := db.initialize(); err != nil {
		return nil, err
	}

	return db, nil
}

// initialize creates the necessary tables if they don't exist
func (db *DB) initialize() error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS accounts (
			name TEXT PRIMARY KEY,
			endpoint TEXT,
			bucket TEXT,
			access_key TEXT,
			secret_key TEXT
		);
		CREATE TABLE IF NOT EXISTS synced_folders (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			local_path TEXT,
			remote_path TEXT,
			wifi_only INTEGER,
			charging_only INTEGER,
			subfolder_by_date INTEGER,
			account TEXT,
			upload_action INTEGER,
			enabled INTEGER
		);
		CREATE TABLE IF NOT EXISTS uploads (
			folder_id INTEGER,
			file_path TEXT,
			size INTEGER,
			timestamp DATETIME,
			upload_status TEXT,
			PRIMARY KEY (folder_id, file_path)
		);
		CREATE INDEX IF NOT EXISTS idx_uploads_status ON uploads(folder_id, upload_status);
		CREATE INDEX IF NOT EXISTS idx_folders_local_path ON synced_folders(local_path);
		PRAGMA journal_mode=WAL;
		PRAGMA synchronous=NORMAL;
		PRAGMA temp_store=MEMORY;
	`)
	return err
}

// CreateAccount stores a new destination account
func (db *DB) CreateAccount(account *models.Account) error {
	_, err := db.Exec(`
		INSERT INTO accounts (name, endpoint, bucket, access_key, secret_key)
		VALUES (?, ?, ?, ?, ?)
	`,
		account.Name,
		account.Endpoint,
		account.Bucket,
		account.AccessKey,
		account.SecretKey,
	)
	return err
}

// GetAccount retrieves an account by name
func (db *DB) GetAccount(name string) (*models.Account, error) {
	var account models.Account
	err := db.QueryRow(`
		SELECT name, endpoint, bucket, access_key, secret_key
		FROM accounts WHERE name = ?
	`, name).Scan(
		&account.Name,
		&account.Endpoint,
		&account.Bucket,
		&account.AccessKey,
		&account.SecretKey,
	)
	if err != nil {
		return nil, fmt.Errorf("account not found: %v", err)
	}
	return &account, nil
}

// Accounts retrieves all destination accounts
func (db *DB) Accounts() ([]models.Account, error) {
	rows, err := db.Query(`
		SELECT name, endpoint, bucket, access_key, secret_key
		FROM accounts ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []models.Account
	for rows.Next() {
		var account models.Account
		err = rows.Scan(
			&account.Name,
			&account.Endpoint,
			&account.Bucket,
			&account.AccessKey,
			&account.SecretKey,
		)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}
