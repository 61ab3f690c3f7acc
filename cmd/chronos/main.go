package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chronos-inventory/chronos/internal/backup"
	"github.com/chronos-inventory/chronos/internal/database"
	"github.com/chronos-inventory/chronos/internal/logging"
	"github.com/chronos-inventory/chronos/internal/server"
)

func main() {
	port := os.Getenv("CHRONOS_PORT")
	if port == "" {
		port = "8080"
	}

	dbPath := os.Getenv("CHRONOS_DB_PATH")
	if dbPath == "" {
		dbPath = "chronos.db"
	}

	backupDir := os.Getenv("CHRONOS_BACKUP_DIR")
	if backupDir == "" {
		backupDir = "backups"
	}

	logPath := os.Getenv("CHRONOS_LOG_PATH")
	logger := logging.Setup(os.Getenv("CHRONOS_LOG_LEVEL"), logPath)

	db, err := database.Open(dbPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	cfg := server.Config{
		DBPath:    dbPath,
		BackupDir: backupDir,
		LogPath:   logPath,
		S3: backup.S3Config{
			Endpoint:  os.Getenv("CHRONOS_S3_ENDPOINT"),
			Bucket:    os.Getenv("CHRONOS_S3_BUCKET"),
			Region:    os.Getenv("CHRONOS_S3_REGION"),
			AccessKey: os.Getenv("CHRONOS_S3_ACCESS_KEY"),
			SecretKey: os.Getenv("CHRONOS_S3_SECRET_KEY"),
		},
		UpdateManifestURL: os.Getenv("CHRONOS_UPDATE_MANIFEST_URL"),
	}

	srv, err := server.New(db, cfg, logger)
	if err != nil {
		log.Fatalf("failed to build server: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	srv.Scheduler().Start(ctx)

	httpServer := &http.Server{
		Addr:         ":" + port,
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		fmt.Printf("Chronos running at http://localhost:%s\n", port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	fmt.Println("\nShutting down...")
	srv.Scheduler().Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("shutdown error: %v", err)
	}
}
