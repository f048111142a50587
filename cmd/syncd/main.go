package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/offsync/offsync/internal/config"
	"github.com/offsync/offsync/internal/database"
	"github.com/offsync/offsync/internal/handlers"
	"github.com/offsync/offsync/internal/models"
	"github.com/offsync/offsync/internal/sync"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	syncCfg := config.LoadSyncConfig()

	// 2. Initialize database (detects embedded vs external automatically)
	db, err := database.Connect(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// 3. Auto-migrate schema
	log.Println("🚀 Synchronizing database schema...")
	err = db.AutoMigrate(
		&models.Operation{},
		&models.DeltaToken{},
		&models.EntityRow{},
	)
	if err != nil {
		log.Printf("⚠️ Migration warning: %v\n", err)
	} else {
		log.Println("✅ Schema synchronized successfully")
	}

	// 4. Wire the replication engine
	var tokens sync.TokenProvider
	switch {
	case cfg.Remote.JWTSecret != "":
		tokens = sync.NewHMACTokenProvider(cfg.Remote.JWTSecret, cfg.Remote.JWTSubject)
	case cfg.Remote.APIKey != "":
		tokens = sync.StaticToken(cfg.Remote.APIKey)
	}

	remote := sync.NewRemoteClient(cfg.Remote.BaseURL, syncCfg.Endpoints(), tokens)
	remote.MissingAsDeleted = syncCfg.MissingAsDeleted

	var resolver sync.ConflictResolver
	switch syncCfg.ConflictResolution {
	case "client_wins":
		resolver = sync.ClientWins{}
	case "server_wins":
		resolver = sync.ServerWins{}
	}

	oplog := sync.NewOperationLog(sync.NewGormOperationStore(db))
	store := sync.NewGormStore(db)
	tokenStore := sync.NewGormTokenStore(db)
	lock := sync.NewSyncLock()

	push := sync.NewPushCoordinator(oplog, remote, store, resolver, lock, nil)
	pull := sync.NewPullCoordinator(oplog, remote, store, tokenStore, lock)
	engine := sync.NewEngine(syncCfg, oplog, tokenStore, push, pull, sync.NewRegistry())

	if syncCfg.Enabled {
		if err := engine.Start(); err != nil {
			log.Fatalf("Failed to start sync engine: %v", err)
		}
	}

	// 5. Control-plane HTTP server
	router := handlers.NewRouter(db)
	handlers.NewSyncHandler(engine).RegisterRoutes(router.Router)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	go func() {
		log.Printf("🌐 Control plane listening on :%s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	// 6. Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("🛑 Shutting down...")
	engine.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("⚠️ HTTP shutdown error: %v", err)
	}
	if err := db.Close(); err != nil {
		log.Printf("⚠️ Database close error: %v", err)
	}
	log.Println("✅ Shutdown complete")
}
