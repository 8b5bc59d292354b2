package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/tramitex/tramitex/internal/alerts"
	"github.com/tramitex/tramitex/internal/app"
	"github.com/tramitex/tramitex/internal/cases"
	"github.com/tramitex/tramitex/internal/catalog"
	"github.com/tramitex/tramitex/internal/clients"
	"github.com/tramitex/tramitex/internal/documents"
	"github.com/tramitex/tramitex/internal/platform/cache"
	"github.com/tramitex/tramitex/internal/platform/db"
	"github.com/tramitex/tramitex/internal/platform/storage"
	"github.com/tramitex/tramitex/internal/sequence"
	"github.com/tramitex/tramitex/internal/settlement"
	"github.com/tramitex/tramitex/internal/shared"
	"github.com/tramitex/tramitex/internal/shipments"
	"github.com/tramitex/tramitex/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, catalog cache disabled", slog.Any("error", err))
		redisClient = nil
	}
	defer func() {
		if redisClient == nil {
			return
		}
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	store, err := storage.NewLocal(cfg.StorageRoot)
	if err != nil {
		logger.Error("init file storage", slog.Any("error", err))
		os.Exit(1)
	}

	validate := validator.New()

	sequenceRepo := sequence.NewRepository(pool)
	sequenceService := sequence.NewService(sequenceRepo, logger)

	clientRepo := clients.NewRepository(pool)
	clientService := clients.NewService(clientRepo, logger)
	clientHandler := clients.NewHandler(logger, clientService, validate)

	catalogRepo := catalog.NewRepository(pool)
	catalogService := catalog.NewService(catalogRepo, redisClient, logger)
	catalogHandler := catalog.NewHandler(logger, catalogService, validate)

	documentRepo := documents.NewRepository(pool)
	documentService := documents.NewService(documentRepo, store, logger)

	auditLogger := shared.NewAuditLogger(pool)

	caseRepo := cases.NewRepository(pool)
	caseService := cases.NewService(caseRepo, sequenceService, clientService, catalogService, documentRepo, store, auditLogger, logger)
	caseHandler := cases.NewHandler(logger, caseService, validate)

	caseLookup := func(ctx context.Context, caseID uuid.UUID) (documents.CaseRef, error) {
		c, err := caseService.Get(ctx, caseID)
		if err != nil {
			return documents.CaseRef{}, err
		}
		return documents.CaseRef{Year: c.Year, DealerCode: c.DealerCode, Number: c.Number}, nil
	}
	documentHandler := documents.NewHandler(logger, documentService, caseLookup, validate)

	settlementRepo := settlement.NewRepository(pool)
	settlementService := settlement.NewService(settlementRepo, caseService, logger)
	settlementHandler := settlement.NewHandler(logger, settlementService, validate)

	shipmentRepo := shipments.NewRepository(pool)
	shipmentService := shipments.NewService(shipmentRepo, logger)
	shipmentHandler := shipments.NewHandler(logger, shipmentService, validate)

	alertRepo := alerts.NewRepository(pool)
	alertService := alerts.NewService(alertRepo, alerts.DefaultRules, logger)
	alertHandler := alerts.NewHandler(logger, alertService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		CaseHandler:       caseHandler,
		SettlementHandler: settlementHandler,
		DocumentHandler:   documentHandler,
		ClientHandler:     clientHandler,
		CatalogHandler:    catalogHandler,
		ShipmentHandler:   shipmentHandler,
		AlertHandler:      alertHandler,
		JobHandler:        jobHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server exit", slog.Any("error", err))
		os.Exit(1)
	}
}
