package server

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/chronos-inventory/chronos/internal/backup"
	"github.com/chronos-inventory/chronos/internal/handler"
	"github.com/chronos-inventory/chronos/internal/middleware"
	"github.com/chronos-inventory/chronos/internal/store"
	"github.com/chronos-inventory/chronos/internal/update"
	ws "github.com/chronos-inventory/chronos/internal/websocket"
)

// Config holds everything the server needs beyond the open database.
type Config struct {
	DBPath            string
	BackupDir         string
	LogPath           string
	S3                backup.S3Config
	UpdateManifestURL string
}

type Server struct {
	db        *sql.DB
	hub       *ws.Hub
	backupH   *handler.BackupHandler
	updateH   *handler.UpdateHandler
	scheduler *backup.Scheduler
	logger    *slog.Logger
}

func New(db *sql.DB, cfg Config, logger *slog.Logger) (*Server, error) {
	hub := ws.NewHub(logger.With("component", "websocket"))
	settingsStore := store.NewSettingsStore(db)

	backupLogger := logger.With("component", "backup")

	mirror := backup.NewMirror(cfg.S3, backupLogger)
	repo, err := backup.NewRepository(db, cfg.DBPath, cfg.BackupDir, mirror, backupLogger)
	if err != nil {
		return nil, err
	}

	engine := backup.NewEngine(repo, backupLogger)
	tester := backup.NewTester(repo, backupLogger)
	safety := backup.NewSafetyNet(repo, engine)
	diag := backup.NewDiagnostics(repo, settingsStore, cfg.LogPath)

	scheduler := backup.NewScheduler(repo, settingsStore, func(s backup.Status) {
		hub.Broadcast(ws.Message{
			Type:   "scheduler_status",
			Entity: "scheduler",
			Action: string(s.State),
			Extra: map[string]any{
				"in_progress": s.InProgress,
				"error":       s.Error,
			},
		})
	}, logger.With("component", "scheduler"))

	checker := update.NewChecker(update.Config{ManifestURL: cfg.UpdateManifestURL}, logger.With("component", "update"))

	return &Server{
		db:        db,
		hub:       hub,
		backupH:   handler.NewBackupHandler(repo, engine, tester, safety, diag, settingsStore, hub, logger.With("component", "backup_handler")),
		updateH:   handler.NewUpdateHandler(checker, logger.With("component", "update_handler")),
		scheduler: scheduler,
		logger:    logger,
	}, nil
}

// Scheduler returns the automatic backup scheduler so main can manage its
// lifecycle alongside the HTTP server.
func (s *Server) Scheduler() *backup.Scheduler {
	return s.scheduler
}

// Router builds the HTTP route table.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	mux.HandleFunc("POST /api/backups", s.backupH.Create)
	mux.HandleFunc("GET /api/backups", s.backupH.List)
	mux.HandleFunc("GET /api/backups/validate", s.backupH.Validate)
	mux.HandleFunc("POST /api/backups/restore", s.backupH.Restore)
	mux.HandleFunc("POST /api/backups/restore-test", s.backupH.RestoreTest)
	mux.HandleFunc("GET /api/backups/auto-config", s.backupH.GetAutoConfig)
	mux.HandleFunc("PUT /api/backups/auto-config", s.backupH.UpdateAutoConfig)
	mux.HandleFunc("POST /api/backups/pre-update", s.backupH.PreUpdateSnapshot)
	mux.HandleFunc("POST /api/backups/restore-pre-update", s.backupH.RestorePreUpdate)
	mux.HandleFunc("GET /api/backups/diagnostics", s.backupH.Diagnostics)

	mux.HandleFunc("GET /api/update/check", s.updateH.Check)
	mux.HandleFunc("POST /api/update/download", s.updateH.Download)

	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub))

	return middleware.RequestLogger(s.logger.With("component", "http"))(mux)
}
