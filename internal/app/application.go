// Package app wires the proctoring server's components together.
package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"proctor/internal/api"
	"proctor/internal/config"
	"proctor/internal/database"
	"proctor/internal/face"
	"proctor/internal/hub"
	"proctor/internal/roster"
	"proctor/internal/websocket"
	pkgdatabase "proctor/pkg/database"
)

// Application coordinates all server components.
type Application struct {
	config     *config.Config
	dbManager  *database.Manager
	roster     *roster.Manager
	registry   *websocket.Registry
	controlHub *hub.Hub
	verifier   *face.Verifier
	apiServer  *api.Server
	httpServer *http.Server
}

// NewApplication initializes components in dependency order:
// Database → Registry → Hub → Roster → Face → API → WebSocket → HTTP
func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	dbConfig := &pkgdatabase.Config{
		DatabasePath:    cfg.Database.Path,
		MaxConnections:  10,
		ConnMaxLifetime: cfg.Database.Timeout,
		ConnMaxIdleTime: cfg.Database.Timeout / 3,
		MigrationsPath:  "./migrations",
	}

	dbManager, err := database.NewManager(dbConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database manager: %w", err)
	}

	migrationManager := pkgdatabase.NewMigrationManager(dbManager.GetDB(), dbConfig.MigrationsPath)
	if err := migrationManager.ApplyMigrations(); err != nil {
		dbManager.Close()
		return nil, fmt.Errorf("failed to apply database migrations: %w", err)
	}
	log.Println("Database migrations applied successfully")

	registry := websocket.NewRegistry()
	controlHub := hub.NewHub(registry)

	rosterManager := roster.NewManager(dbManager, controlHub)
	if err := rosterManager.LoadTests(context.Background()); err != nil {
		dbManager.Close()
		return nil, fmt.Errorf("failed to load tests: %w", err)
	}

	verifier := face.NewVerifier(dbManager, cfg.Proctor.FaceMatchThreshold)

	apiServer := api.NewServer(rosterManager, verifier, dbManager, registry)
	wsHandler := websocket.NewHandler(registry, rosterManager)

	mux := http.NewServeMux()
	mux.Handle("/api/", apiServer)
	mux.Handle("/health", apiServer)
	mux.HandleFunc("/ws", wsHandler.HandleJoinExam)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      mux,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:     cfg,
		dbManager:  dbManager,
		roster:     rosterManager,
		registry:   registry,
		controlHub: controlHub,
		verifier:   verifier,
		apiServer:  apiServer,
		httpServer: httpServer,
	}, nil
}

// Start begins serving. The hub starts first so an admin intervention
// issued the instant the server is up has somewhere to go.
func (app *Application) Start(ctx context.Context) error {
	log.Printf("Starting proctor server on %s", app.httpServer.Addr)

	if err := app.controlHub.Start(ctx); err != nil {
		return fmt.Errorf("failed to start control hub: %w", err)
	}

	serverErrCh := make(chan error, 1)
	go func() {
		if err := app.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	select {
	case err := <-serverErrCh:
		app.controlHub.Stop()
		return err
	case <-time.After(100 * time.Millisecond):
		log.Printf("Proctor server started successfully")
		return nil
	case <-ctx.Done():
		app.controlHub.Stop()
		return ctx.Err()
	}
}

// Stop shuts down in reverse dependency order: HTTP → Hub → Database.
func (app *Application) Stop(ctx context.Context) error {
	log.Printf("Shutting down proctor server")

	if err := app.httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	if err := app.controlHub.Stop(); err != nil {
		log.Printf("Control hub shutdown error: %v", err)
	}

	if err := app.dbManager.Close(); err != nil {
		log.Printf("Database shutdown error: %v", err)
	}

	log.Printf("Proctor server shutdown complete")
	return nil
}

// GetAddr returns the server address for external connections
func (app *Application) GetAddr() string {
	return app.httpServer.Addr
}
