package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/eiannone/keyboard"
	"github.com/urfave/cli/v2"

	"github.com/chmdznr/minio-folder-sync/internal/db"
	"github.com/chmdznr/minio-folder-sync/internal/sync"
	"github.com/chmdznr/minio-folder-sync/internal/watcher"
	"github.com/chmdznr/minio-folder-sync/pkg/models"
	"github.com/chmdznr/minio-folder-sync/pkg/utils"
	"github.com/chmdznr/minio-folder-sync/pkg/version"
)

func main() {
	cli.VersionFlag = &cli.BoolFlag{
		Name:    "version",
		Aliases: []string{"v"},
		Usage:   "print the version",
	}

	app := &cli.App{
		Name:                 "mfsync",
		Usage:                "Keeps configured local folders uploaded to MinIO",
		Version:              version.Version,
		EnableBashCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "db",
				Usage: "Path to the state database",
				Value: "mfsync.db",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "version",
				Usage: "Print detailed version information",
				Action: func(c *cli.Context) error {
					fmt.Printf("Version:    %s\n", version.Version)
					fmt.Printf("Git commit: %s\n", version.GitCommit)
					fmt.Printf("Built:      %s\n", version.BuildTime)
					return nil
				},
			},
			{
				Name:  "account",
				Usage: "Manage destination accounts",
				Subcommands: []*cli.Command{
					{
						Name:  "add",
						Usage: "Add a destination account",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "name", Usage: "Account name", Required: true},
							&cli.StringFlag{Name: "endpoint", Usage: "MinIO endpoint", Required: true},
							&cli.StringFlag{Name: "bucket", Usage: "MinIO bucket name", Required: true},
							&cli.StringFlag{Name: "access-key", Usage: "MinIO access key", Required: true},
							&cli.StringFlag{Name: "secret-key", Usage: "MinIO secret key", Required: true},
						},
						Action: addAccount,
					},
					{
						Name:   "list",
						Usage:  "List destination accounts",
						Action: listAccounts,
					},
				},
			},
			{
				Name:  "add",
				Usage: "Configure a new synced folder",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "local", Usage: "Local directory path", Required: true},
					&cli.StringFlag{Name: "remote", Usage: "Remote path within the bucket", Required: true},
					&cli.StringFlag{Name: "account", Usage: "Destination account name", Required: true},
					&cli.BoolFlag{Name: "wifi-only", Usage: "Only upload on unmetered connections"},
					&cli.BoolFlag{Name: "charging-only", Usage: "Only upload while on external power"},
					&cli.BoolFlag{Name: "subfolder-by-date", Usage: "Group remote files in year/month subfolders"},
					&cli.StringFlag{Name: "action", Usage: "Post-upload action: keep, move or delete", Value: "keep"},
					&cli.BoolFlag{Name: "disabled", Usage: "Create the folder disabled"},
				},
				Action: addFolder,
			},
			{
				Name:   "list",
				Usage:  "List configured synced folders",
				Action: listFolders,
			},
			{
				Name:  "enable",
				Usage: "Enable a synced folder",
				Flags: []cli.Flag{
					&cli.Int64Flag{Name: "id", Usage: "Synced folder id", Required: true},
				},
				Action: func(c *cli.Context) error { return setEnabled(c, true) },
			},
			{
				Name:  "disable",
				Usage: "Disable a synced folder",
				Flags: []cli.Flag{
					&cli.Int64Flag{Name: "id", Usage: "Synced folder id", Required: true},
				},
				Action: func(c *cli.Context) error { return setEnabled(c, false) },
			},
			{
				Name:  "set",
				Usage: "Update a synced folder's configuration",
				Flags: []cli.Flag{
					&cli.Int64Flag{Name: "id", Usage: "Synced folder id", Required: true},
					&cli.StringFlag{Name: "remote", Usage: "Remote path within the bucket"},
					&cli.StringFlag{Name: "account", Usage: "Destination account name"},
					&cli.StringFlag{Name: "action", Usage: "Post-upload action: keep, move or delete"},
					&cli.BoolFlag{Name: "wifi-only", Usage: "Only upload on unmetered connections"},
					&cli.BoolFlag{Name: "charging-only", Usage: "Only upload while on external power"},
					&cli.BoolFlag{Name: "subfolder-by-date", Usage: "Group remote files in year/month subfolders"},
				},
				Action: setFolder,
			},
			{
				Name:  "scan",
				Usage: "Scan a synced folder and refresh its upload queue",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "local", Usage: "Local directory path", Required: true},
				},
				Action: scanFolder,
			},
			{
				Name:  "status",
				Usage: "Show upload status of a synced folder",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "local", Usage: "Local directory path", Required: true},
				},
				Action: showStatus,
			},
			{
				Name:  "sync",
				Usage: "Upload a synced folder's pending files now",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "local", Usage: "Local directory path", Required: true},
					&cli.IntFlag{Name: "workers", Usage: "Number of parallel upload workers", Value: 8},
				},
				Action: syncFolder,
			},
			{
				Name:  "watch",
				Usage: "Watch enabled folders and upload changes automatically",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "metered", Usage: "Treat the connection as metered"},
					&cli.BoolFlag{Name: "on-battery", Usage: "Treat the machine as running on battery"},
				},
				Action: watchFolders,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func openDB(c *cli.Context) (*db.DB, error) {
	database, err := db.New(c.String("db"))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}
	return database, nil
}

func parseAction(name string) (int, error) {
	switch name {
	case "keep":
		return models.UploadActionKeep, nil
	case "move":
		return models.UploadActionMove, nil
	case "delete":
		return models.UploadActionDelete, nil
	default:
		return 0, fmt.Errorf("unknown upload action %q (want keep, move or delete)", name)
	}
}

func actionName(action int) string {
	switch action {
	case models.UploadActionMove:
		return "move"
	case models.UploadActionDelete:
		return "delete"
	default:
		return "keep"
	}
}

func addAccount(c *cli.Context) error {
	database, err := openDB(c)
	if err != nil {
		return err
	}
	defer database.Close()

	account := &models.Account{
		Name:      c.String("name"),
		Endpoint:  c.String("endpoint"),
		Bucket:    c.String("bucket"),
		AccessKey: c.String("access-key"),
		SecretKey: c.String("secret-key"),
	}
	if err := database.CreateAccount(account); err != nil {
		return fmt.Errorf("failed to create account: %v", err)
	}

	fmt.Printf("Account '%s' created successfully\n", account.Name)
	return nil
}

func listAccounts(c *cli.Context) error {
	database, err := openDB(c)
	if err != nil {
		return err
	}
	defer database.Close()

	accounts, err := database.Accounts()
	if err != nil {
		return fmt.Errorf("failed to list accounts: %v", err)
	}
	if len(accounts) == 0 {
		fmt.Println("No accounts configured")
		return nil
	}

	for _, account := range accounts {
		fmt.Printf("%s: %s/%s\n", account.Name, account.Endpoint, account.Bucket)
	}
	return nil
}

func addFolder(c *cli.Context) error {
	database, err := openDB(c)
	if err != nil {
		return err
	}
	defer database.Close()

	action, err := parseAction(c.String("action"))
	if err != nil {
		return err
	}

	localPath, err := filepath.Abs(c.String("local"))
	if err != nil {
		return err
	}

	// The account must exist before a folder can point at it
	if _, err := database.GetAccount(c.String("account")); err != nil {
		return err
	}

	store := db.NewFolderStore(database, nil)
	if existing := store.FindByLocalPath(localPath); existing != nil {
		return fmt.Errorf("folder %s is already configured (id=%d)", localPath, existing.ID)
	}

	folder := &models.SyncedFolder{
		LocalPath:       localPath,
		RemotePath:      c.String("remote"),
		WifiOnly:        c.Bool("wifi-only"),
		ChargingOnly:    c.Bool("charging-only"),
		SubfolderByDate: c.Bool("subfolder-by-date"),
		Account:         c.String("account"),
		UploadAction:    action,
		Enabled:         !c.Bool("disabled"),
	}

	id := store.StoreFolder(folder)
	if id < 0 {
		return fmt.Errorf("failed to store synced folder %s", localPath)
	}

	fmt.Printf("Synced folder %d created: %s -> %s:%s\n", id, localPath, folder.Account, folder.RemotePath)
	return nil
}

func listFolders(c *cli.Context) error {
	database, err := openDB(c)
	if err != nil {
		return err
	}
	defer database.Close()

	store := db.NewFolderStore(database, nil)
	folders := store.Folders()
	if len(folders) == 0 {
		fmt.Println("No synced folders configured")
		return nil
	}

	for _, folder := range folders {
		state := "enabled"
		if !folder.Enabled {
			state = "disabled"
		}
		fmt.Printf("%d: %s -> %s:%s [%s, action=%s", folder.ID, folder.LocalPath,
			folder.Account, folder.RemotePath, state, actionName(folder.UploadAction))
		if folder.WifiOnly {
			fmt.Printf(", wifi-only")
		}
		if folder.ChargingOnly {
			fmt.Printf(", charging-only")
		}
		if folder.SubfolderByDate {
			fmt.Printf(", subfolder-by-date")
		}
		fmt.Println("]")
	}
	return nil
}

func setEnabled(c *cli.Context, enabled bool) error {
	database, err := openDB(c)
	if err != nil {
		return err
	}
	defer database.Close()

	store := db.NewFolderStore(database, nil)
	affected := store.SetFolderEnabled(c.Int64("id"), enabled)
	if affected == 0 {
		return fmt.Errorf("no synced folder with id %d", c.Int64("id"))
	}

	fmt.Printf("Synced folder %d enabled=%v\n", c.Int64("id"), enabled)
	return nil
}

func setFolder(c *cli.Context) error {
	database, err := openDB(c)
	if err != nil {
		return err
	}
	defer database.Close()

	store := db.NewFolderStore(database, nil)

	var folder *models.SyncedFolder
	for _, f := range store.Folders() {
		if f.ID == c.Int64("id") {
			folder = &f
			break
		}
	}
	if folder == nil {
		return fmt.Errorf("no synced folder with id %d", c.Int64("id"))
	}

	if c.IsSet("remote") {
		folder.RemotePath = c.String("remote")
	}
	if c.IsSet("account") {
		if _, err := database.GetAccount(c.String("account")); err != nil {
			return err
		}
		folder.Account = c.String("account")
	}
	if c.IsSet("action") {
		action, err := parseAction(c.String("action"))
		if err != nil {
			return err
		}
		folder.UploadAction = action
	}
	if c.IsSet("wifi-only") {
		folder.WifiOnly = c.Bool("wifi-only")
	}
	if c.IsSet("charging-only") {
		folder.ChargingOnly = c.Bool("charging-only")
	}
	if c.IsSet("subfolder-by-date") {
		folder.SubfolderByDate = c.Bool("subfolder-by-date")
	}

	if store.UpdateFolder(folder) == 0 {
		return fmt.Errorf("failed to update synced folder %d", folder.ID)
	}

	fmt.Printf("Synced folder %d updated\n", folder.ID)
	return nil
}

func lookupFolder(database *db.DB, c *cli.Context) (*models.SyncedFolder, error) {
	localPath, err := filepath.Abs(c.String("local"))
	if err != nil {
		return nil, err
	}

	store := db.NewFolderStore(database, nil)
	folder := store.FindByLocalPath(localPath)
	if folder == nil {
		return nil, fmt.Errorf("no synced folder configured for %s", localPath)
	}
	return folder, nil
}

func scanFolder(c *cli.Context) error {
	database, err := openDB(c)
	if err != nil {
		return err
	}
	defer database.Close()

	folder, err := lookupFolder(database, c)
	if err != nil {
		return err
	}

	queued, removed, err := sync.Scan(database, folder)
	if err != nil {
		return fmt.Errorf("failed to scan %s: %v", folder.LocalPath, err)
	}

	fmt.Printf("Scan completed: %d files queued, %d stale records removed\n", queued, removed)
	return nil
}

func showStatus(c *cli.Context) error {
	database, err := openDB(c)
	if err != nil {
		return err
	}
	defer database.Close()

	folder, err := lookupFolder(database, c)
	if err != nil {
		return err
	}

	stats, err := database.FolderStats(folder.ID)
	if err != nil {
		return err
	}

	fmt.Printf("Folder: %s (id=%d)\n", folder.LocalPath, folder.ID)
	fmt.Printf("Destination: %s:%s\n", folder.Account, folder.RemotePath)
	fmt.Printf("Total Files: %d (Size: %s)\n", stats.TotalFiles, utils.FormatSize(stats.TotalSize))
	fmt.Printf("Files Uploaded: %d (Size: %s)\n", stats.UploadedFiles, utils.FormatSize(stats.UploadedSize))
	fmt.Printf("Files Pending: %d (Size: %s)\n", stats.PendingFiles, utils.FormatSize(stats.PendingSize))
	fmt.Printf("Files Failed: %d (Size: %s)\n", stats.FailedFiles, utils.FormatSize(stats.FailedSize))

	if stats.TotalFiles > 0 {
		fileProgress := float64(stats.UploadedFiles) / float64(stats.TotalFiles) * 100
		fmt.Printf("Progress: %.2f%% (Files)\n", fileProgress)
	}
	return nil
}

func syncFolder(c *cli.Context) error {
	database, err := openDB(c)
	if err != nil {
		return err
	}
	defer database.Close()

	folder, err := lookupFolder(database, c)
	if err != nil {
		return err
	}

	account, err := database.GetAccount(folder.Account)
	if err != nil {
		return err
	}

	if _, _, err := sync.Scan(database, folder); err != nil {
		return fmt.Errorf("failed to scan %s: %v", folder.LocalPath, err)
	}

	config := sync.UploaderConfig{NumWorkers: c.Int("workers")}
	uploader, err := sync.NewUploader(database, folder, account, &config)
	if err != nil {
		return err
	}

	if err := uploader.Upload(context.Background()); err != nil {
		return fmt.Errorf("failed to sync %s: %v", folder.LocalPath, err)
	}

	fmt.Println("Sync completed successfully")
	return nil
}

func watchFolders(c *cli.Context) error {
	database, err := openDB(c)
	if err != nil {
		return err
	}
	defer database.Close()

	conditions := watcher.Conditions{
		Metered:   c.Bool("metered"),
		OnBattery: c.Bool("on-battery"),
	}

	service, err := watcher.New(database, conditions)
	if err != nil {
		return err
	}

	// The store notifies the service, so folder writes made through this
	// store re-register their watch. Changes made from another process
	// need a watcher restart to be picked up.
	store := db.NewFolderStore(database, service.Restart)
	folders := store.Folders()

	// Catch up on changes made while the watcher was not running
	for _, folder := range folders {
		if !folder.Enabled {
			continue
		}
		if _, _, err := sync.Scan(database, &folder); err != nil {
			log.Printf("Initial scan of %s failed: %v", folder.LocalPath, err)
		}
	}

	if err := service.Start(folders); err != nil {
		return err
	}
	defer service.Stop()

	fmt.Println("Watching synced folders. Press 'p' to pause/resume, 'q' to quit.")

	if err := keyboard.Open(); err != nil {
		return fmt.Errorf("failed to open keyboard: %v", err)
	}
	defer keyboard.Close()

	paused := false
	for {
		char, key, err := keyboard.GetKey()
		if err != nil {
			return err
		}
		switch {
		case char == 'q' || key == keyboard.KeyEsc || key == keyboard.KeyCtrlC:
			fmt.Println("Stopping watcher...")
			return nil
		case char == 'p':
			paused = !paused
			service.SetPaused(paused)
			if paused {
				fmt.Println("Uploads paused")
			} else {
				fmt.Println("Uploads resumed")
			}
		}
	}
}
