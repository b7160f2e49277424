package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/inscripciones-api/internal/catalog"
	"github.com/noah-isme/inscripciones-api/internal/handler"
	"github.com/noah-isme/inscripciones-api/internal/middleware"
	"github.com/noah-isme/inscripciones-api/internal/service"
	"github.com/noah-isme/inscripciones-api/internal/store"
	syncengine "github.com/noah-isme/inscripciones-api/internal/sync"
	"github.com/noah-isme/inscripciones-api/pkg/config"
	"github.com/noah-isme/inscripciones-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/inscripciones-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/inscripciones-api/pkg/middleware/requestid"
	"github.com/noah-isme/inscripciones-api/pkg/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck
	sugar := logr.Sugar()

	settings, err := config.NewSettings(filepath.Join(cfg.Data.Dir, cfg.Data.SettingsFile), logr)
	if err != nil {
		sugar.Fatalw("failed to open settings", "error", err)
	}

	cat := catalog.Load(filepath.Join(cfg.Data.Dir, cfg.Data.CatalogFile), logr)
	records := store.NewRecordStore(filepath.Join(cfg.Data.Dir, cfg.Data.RecordsFile), logr)
	backup := store.NewRecordStore(filepath.Join(cfg.Data.Dir, cfg.Data.BackupFile), logr)

	metricsSvc := service.NewMetricsService()

	ctx := context.Background()

	// Remote sync is optional: a missing credentials file leaves the system
	// running on local records only.
	var engine *syncengine.Engine
	guard := syncengine.NewGuard(cfg.Sync.MinInterval)
	var background *syncengine.Background
	if settings.GetBool("google_sheets.enabled") {
		credentials := settings.GetString("google_sheets.credentials_path")
		sheet, err := syncengine.NewGoogleSheets(ctx, credentials)
		if err != nil {
			sugar.Warnw("remote sync unavailable", "error", err)
		} else {
			stampPath := filepath.Join(cfg.Data.Dir, cfg.Data.BackupStamp)
			engine = syncengine.NewEngine(sheet, records, backup, settings, stampPath, metricsSvc, logr)
			background = syncengine.NewBackground(engine, settings, guard, cfg.Sync, logr)
			background.Start(ctx)
			defer background.Stop()
		}
	}

	if engine != nil && settings.GetBool("google_sheets.auto_sync") {
		startupMirror(ctx, engine, guard, settings, sugar)
	}

	exportsDir, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		sugar.Fatalw("failed to prepare exports directory", "error", err)
	}
	if cfg.Exports.RetentionDays > 0 {
		ttl := time.Duration(cfg.Exports.RetentionDays) * 24 * time.Hour
		if removed, err := exportsDir.CleanupOlderThan(ttl); err != nil {
			sugar.Warnw("exports cleanup failed", "error", err)
		} else if len(removed) > 0 {
			sugar.Infow("stale exports removed", "files", len(removed))
		}
	}

	validate := validator.New()
	// Literal nils keep the optional collaborators out of the services as
	// true nil interfaces.
	enrollmentSvc := service.NewEnrollmentService(records, cat, settings, nil, validate, logr)
	syncSvc := service.NewSyncService(nil, guard, settings, logr)
	if background != nil {
		enrollmentSvc = service.NewEnrollmentService(records, cat, settings, background, validate, logr)
		enrollmentSvc.SetCapacityRefresh(engine, syncengine.NewGuard(cfg.Sync.QuotaMinInterval))
		syncSvc = service.NewSyncService(engine, guard, settings, logr)
	}
	exportSvc := service.NewExportService(records, exportsDir, settings, logr)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	api := r.Group(cfg.APIPrefix)
	registerRoutes(api,
		handler.NewEnrollmentHandler(enrollmentSvc),
		handler.NewCatalogHandler(cat),
		handler.NewSyncHandler(syncSvc),
		handler.NewExportHandler(exportSvc),
		handler.NewSettingsHandler(settings),
	)

	addr := fmt.Sprintf(":%d", cfg.Port)
	sugar.Infow("server starting", "addr", addr, "env", cfg.Env, "catalog_offerings", cat.Len())
	if err := r.Run(addr); err != nil {
		sugar.Fatalw("server failed", "error", err)
	}
}

func registerRoutes(api *gin.RouterGroup, enrollments *handler.EnrollmentHandler, cat *handler.CatalogHandler, sync *handler.SyncHandler, exports *handler.ExportHandler, settings *handler.SettingsHandler) {
	records := api.Group("/records")
	records.GET("", enrollments.List)
	records.POST("", enrollments.Create)
	records.GET("/:id", enrollments.Get)
	records.PUT("/:id", enrollments.Update)
	records.DELETE("/:id", enrollments.Delete)
	records.GET("/:id/certificate", exports.Certificate)

	api.GET("/students/:dni/history", enrollments.History)
	api.GET("/capacity", enrollments.Capacity)

	catalogGroup := api.Group("/catalog")
	catalogGroup.GET("/subjects", cat.Subjects)
	catalogGroup.GET("/professors", cat.Professors)
	catalogGroup.GET("/commissions", cat.Commissions)
	catalogGroup.GET("/shifts", cat.Shifts)
	catalogGroup.GET("/schedule", cat.Schedule)
	catalogGroup.GET("/offering", cat.Offering)

	syncGroup := api.Group("/sync")
	syncGroup.GET("/status", sync.Status)
	syncGroup.POST("/push", sync.Push)
	syncGroup.POST("/mirror", sync.Mirror)
	syncGroup.POST("/restore-backup", sync.RestoreBackup)

	api.GET("/exports/listing", exports.Listing)

	settingsGroup := api.Group("/settings")
	settingsGroup.GET("/:section", settings.GetSection)
	settingsGroup.PATCH("/:section", settings.UpdateSection)
}

// startupMirror pulls the remote state at boot; when the remote is
// unreachable the last backup snapshot is restored instead.
func startupMirror(ctx context.Context, engine *syncengine.Engine, guard *syncengine.Guard, settings *config.Settings, sugar *zap.SugaredLogger) {
	spreadsheetID := settings.GetString("google_sheets.spreadsheet_id")
	if spreadsheetID == "" {
		sugar.Warnw("startup mirror skipped, no spreadsheet configured")
		return
	}
	stats, err := engine.Mirror(ctx, spreadsheetID)
	if err != nil {
		sugar.Warnw("startup mirror failed, falling back to local backup", "error", err)
		count, stamp, restoreErr := engine.RestoreLocalBackup()
		if restoreErr != nil {
			sugar.Warnw("backup restore failed, keeping current local records", "error", restoreErr)
			return
		}
		sugar.Warnw("local backup restored", "records", count, "snapshot_at", stamp)
		return
	}
	guard.MarkSynced()
	sugar.Infow("startup mirror finished",
		"added", stats.Added, "updated", stats.Updated, "removed", stats.Removed, "total", stats.LocalTotalAfter)
}
