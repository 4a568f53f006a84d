package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"sheetcrm/adapters/drive"
	"sheetcrm/adapters/excel"
	"sheetcrm/adapters/normalize"
	"sheetcrm/app"
	"sheetcrm/internal/api"
	"sheetcrm/internal/config"
)

func main() {
	// Best effort; the environment may already be populated.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[Main] config: %v", err)
	}
	gin.SetMode(cfg.Server.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := excel.NewStore(cfg.Document.Path)
	if cfg.Document.SeedDemoData {
		if _, err := store.CreateDocument(true); err != nil {
			log.Fatalf("[Main] seed document: %v", err)
		}
	}

	provider := drive.NewClient(ctx, cfg.Drive.CredentialsFile)
	syncService := app.NewSyncService(store, provider, cfg.Drive.FileID)
	normalizer := normalize.NewNormalizer(normalize.PolicyTRComma)
	importer := app.NewImportService(store, normalizer)

	if cfg.RemoteConfigured() {
		syncService.StartupSync(ctx)
		if cfg.Sync.Enabled {
			go syncService.Run(ctx, cfg.Sync.Interval)
		}
	} else {
		log.Info("[Main] remote copy not configured, running local-only")
	}

	server := api.NewServer(store, syncService, importer)
	httpServer := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: server.Router(),
	}

	go func() {
		<-ctx.Done()
		log.Info("[Main] shutting down")
		_ = httpServer.Shutdown(context.Background())
	}()

	log.Infof("[Main] serving on :%s (document %s)", cfg.Server.Port, cfg.Document.Path)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("[Main] server failed: %v", err)
	}
}
