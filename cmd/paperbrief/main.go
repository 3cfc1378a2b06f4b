package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/xxxsen/paperbrief/internal/ai"
	"github.com/xxxsen/paperbrief/internal/audit"
	"github.com/xxxsen/paperbrief/internal/config"
	"github.com/xxxsen/paperbrief/internal/db"
	"github.com/xxxsen/paperbrief/internal/embedcache"
	"github.com/xxxsen/paperbrief/internal/filestore"
	"github.com/xxxsen/paperbrief/internal/handler"
	"github.com/xxxsen/paperbrief/internal/index"
	"github.com/xxxsen/paperbrief/internal/job"
	"github.com/xxxsen/paperbrief/internal/middleware"
	"github.com/xxxsen/paperbrief/internal/repo"
	"github.com/xxxsen/paperbrief/internal/schedule"
	"github.com/xxxsen/paperbrief/internal/service"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "paperbrief",
		Short: "paperbrief evidence engine",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run paperbrief server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				return fmt.Errorf("--config is required")
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			logger.Init(
				cfg.LogConfig.File,
				cfg.LogConfig.Level,
				int(cfg.LogConfig.FileCount),
				int(cfg.LogConfig.FileSize),
				int(cfg.LogConfig.KeepDays),
				cfg.LogConfig.Console,
			)
			logutil.GetLogger(context.Background()).Info("config loaded", zap.String("config", configPath))

			database, err := db.Open(cfg.Database)
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			if err := db.ApplyMigrations(database); err != nil {
				return fmt.Errorf("migrations: %w", err)
			}
			if err := db.CheckVectorDimension(database, cfg.Index.Dimension); err != nil {
				return err
			}
			return runServer(cfg, database)
		},
	}

	runCmd.Flags().StringVar(&configPath, "config", "", "path to config.json")
	rootCmd.AddCommand(runCmd)

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("startup error", zap.Error(err))
	}
}

func runServer(cfg *config.Config, database *sql.DB) error {
	ctx := context.Background()
	logutil.GetLogger(ctx).Info("starting server",
		zap.Int("port", cfg.Port),
		zap.String("index_path", cfg.Index.Path),
		zap.Int("dimension", cfg.Index.Dimension),
		zap.String("compression", cfg.AI.Compression),
	)

	chunkRepo := repo.NewChunkRepo(database)
	embRepo := repo.NewEmbeddingRepo(database)

	aiProvider, err := ai.NewProvider(cfg.AI.Provider, cfg.AI.Data)
	if err != nil {
		return fmt.Errorf("init ai provider: %w", err)
	}
	embedder := embedcache.WrapLruCacheToEmbedder(
		ai.NewEmbedder(aiProvider, cfg.AI.Model),
		cfg.AI.CacheSize,
		time.Duration(cfg.AI.CacheTTLHours)*time.Hour,
	)

	idx := index.NewFlatIndex(cfg.Index.Path, cfg.Index.Dimension)
	if err := idx.Initialize(ctx); err != nil {
		return fmt.Errorf("init vector index: %w", err)
	}

	auditLog, err := audit.NewLogger(cfg.Audit.Dir)
	if err != nil {
		return fmt.Errorf("init audit log: %w", err)
	}
	auditLog.LogModel(ctx, map[string]interface{}{
		"model_name": cfg.AI.Model,
		"component":  "embedder",
		"provider":   cfg.AI.Provider,
		"dimension":  cfg.Index.Dimension,
	}, nil)

	embSvc := service.NewEmbeddingService(embedder, chunkRepo, embRepo, idx)
	retriever := service.NewRetriever(embSvc, chunkRepo, idx, cfg.Index.BruteForceMax)
	ingestSvc := service.NewIngestService(chunkRepo, embSvc, idx)
	syncer := service.NewIndexSyncer(embRepo, idx, cfg.AI.Model)

	var compressor service.Compressor
	switch cfg.AI.Compression {
	case "llm":
		compressor = service.NewLLMCompressor(ai.NewGenerator(aiProvider, cfg.AI.GenModel), cfg.AI.Model)
	default:
		compressor = service.NewTemplateCompressor(cfg.AI.Model)
	}
	summarySvc := service.NewSummaryService(retriever, compressor, auditLog)

	var snapshotSvc *service.SnapshotService
	if cfg.Snapshot.Enable {
		store, err := filestore.NewFileStore(cfg.Snapshot.Type, cfg.Snapshot.Data)
		if err != nil {
			return fmt.Errorf("init snapshot store: %w", err)
		}
		snapshotSvc = service.NewSnapshotService(idx, store)
	}

	// Fill cold-start gaps between the persisted index and the store.
	if added, err := syncer.Sync(ctx); err != nil {
		return fmt.Errorf("initial index sync: %w", err)
	} else if added > 0 {
		logutil.GetLogger(ctx).Info("cold start sync done", zap.Int("added", added))
	}

	deps := handler.RouterDeps{
		Ingest:          handler.NewIngestHandler(ingestSvc),
		Query:           handler.NewQueryHandler(summarySvc, retriever, ingestSvc, embSvc),
		Admin:           handler.NewAdminHandler(embSvc, syncer, snapshotSvc, summarySvc, cfg.Jobs.BackfillBatchSize),
		JWTSecret:       []byte(cfg.JWTSecret),
		QueryRateWindow: time.Duration(cfg.QueryRateLimitSeconds) * time.Second,
	}

	engine, err := webapi.NewEngine(
		"/api/v1",
		fmt.Sprintf("0.0.0.0:%d", cfg.Port),
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.CORS(cfg.CORSAllow),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}

	scheduler := schedule.NewCronScheduler()
	if cfg.Jobs.BackfillSpec != "" {
		if err := scheduler.AddJob(job.NewEmbeddingBackfillJob(embSvc, cfg.Jobs.BackfillBatchSize), cfg.Jobs.BackfillSpec); err != nil {
			return err
		}
	}
	if cfg.Jobs.SyncSpec != "" {
		if err := scheduler.AddJob(job.NewIndexSyncJob(syncer), cfg.Jobs.SyncSpec); err != nil {
			return err
		}
	}
	if cfg.Jobs.SnapshotSpec != "" {
		if err := scheduler.AddJob(job.NewIndexSnapshotJob(snapshotSvc, syncer), cfg.Jobs.SnapshotSpec); err != nil {
			return err
		}
	}
	if cfg.Jobs.RebuildSpec != "" {
		if err := scheduler.AddJob(job.NewIndexRebuildJob(syncer, cfg.Jobs.RebuildTombstoneRatio), cfg.Jobs.RebuildSpec); err != nil {
			return err
		}
	}

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	scheduler.Start(runCtx)

	logutil.GetLogger(ctx).Info("http server listening", zap.String("addr", fmt.Sprintf("0.0.0.0:%d", cfg.Port)))
	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			logutil.GetLogger(context.Background()).Error("server error", zap.Error(err))
		}
	}()

	<-runCtx.Done()
	logutil.GetLogger(ctx).Info("server stopping...")
	scheduler.Stop()
	if err := idx.Save(context.Background()); err != nil {
		logutil.GetLogger(ctx).Error("final index save failed", zap.Error(err))
	}
	return database.Close()
}
