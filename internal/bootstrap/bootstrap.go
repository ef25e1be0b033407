package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dcmshi/expense-tracker/internal/config"
	"github.com/dcmshi/expense-tracker/internal/core/extraction"
	"github.com/dcmshi/expense-tracker/internal/core/ports"
	"github.com/dcmshi/expense-tracker/internal/core/usecase"
	"github.com/dcmshi/expense-tracker/internal/infrastructure/export/xlsx"
	"github.com/dcmshi/expense-tracker/internal/infrastructure/imageprep"
	"github.com/dcmshi/expense-tracker/internal/infrastructure/notify/expo"
	"github.com/dcmshi/expense-tracker/internal/infrastructure/ocr/gemini"
	"github.com/dcmshi/expense-tracker/internal/infrastructure/ocr/ollama"
	"github.com/dcmshi/expense-tracker/internal/infrastructure/ocr/vision"
	"github.com/dcmshi/expense-tracker/internal/infrastructure/queue/nats"
	"github.com/dcmshi/expense-tracker/internal/infrastructure/repository/bolt"
	"github.com/dcmshi/expense-tracker/internal/infrastructure/repository/postgres"
	"github.com/dcmshi/expense-tracker/internal/infrastructure/resilience"
	"github.com/dcmshi/expense-tracker/internal/infrastructure/storage/gcs"
	"github.com/dcmshi/expense-tracker/internal/infrastructure/storage/localfs"
)

// App holds the adapters and use cases shared by every binary. The
// extraction pipeline is built separately by NewProcessor because only the
// worker and the operator CLI need OCR clients.
type App struct {
	Config config.Config

	Jobs     ports.JobRepository
	Expenses ports.ExpenseRepository
	Tokens   ports.DeviceTokenStore
	Storage  ports.ObjectStorage
	// Queue is nil when NATS_URL is empty.
	Queue    *nats.Queue
	Executor *resilience.Executor

	IntakeUC    *usecase.IntakeUseCase
	ExpenseUC   *usecase.ExpenseUseCase
	AnalyticsUC *usecase.AnalyticsUseCase
	DeviceUC    *usecase.DeviceTokenUseCase
	Exporter    *xlsx.Exporter

	closers []func()
}

func New(ctx context.Context, cfg config.Config) (app *App, err error) {
	app = &App{
		Config:   cfg,
		Executor: resilience.NewExecutor(resilience.DefaultConfig()),
		Exporter: xlsx.New(),
	}
	defer func() {
		if err != nil {
			app.Close()
		}
	}()

	if err := app.openStore(ctx); err != nil {
		return nil, err
	}
	if err := app.openStorage(ctx); err != nil {
		return nil, err
	}

	var queue ports.MessageQueue
	if cfg.NATSURL != "" {
		q, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{ResilienceExecutor: app.Executor})
		if err != nil {
			return nil, fmt.Errorf("init message queue: %w", err)
		}
		app.Queue = q
		app.closers = append(app.closers, q.Close)
		queue = q
	}

	app.IntakeUC = usecase.NewIntakeUseCase(app.Jobs, queue, cfg.JobMaxAttempts)
	app.ExpenseUC = usecase.NewExpenseUseCase(app.Expenses)
	app.AnalyticsUC = usecase.NewAnalyticsUseCase(app.Expenses)
	app.DeviceUC = usecase.NewDeviceTokenUseCase(app.Tokens)
	return app, nil
}

func (a *App) openStore(ctx context.Context) error {
	switch a.Config.StoreDriver {
	case config.StoreDriverPostgres:
		db, err := postgres.OpenDB(a.Config.PostgresDSN)
		if err != nil {
			return fmt.Errorf("open postgres: %w", err)
		}
		a.closers = append(a.closers, func() { _ = db.Close() })
		if err := postgres.EnsureSchema(ctx, db); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
		a.Jobs = postgres.NewJobRepository(db)
		a.Expenses = postgres.NewExpenseRepository(db)
		a.Tokens = postgres.NewDeviceTokenRepository(db)
	case config.StoreDriverBolt:
		if err := os.MkdirAll(filepath.Dir(a.Config.BoltPath), 0o755); err != nil {
			return fmt.Errorf("create bolt dir: %w", err)
		}
		store, err := bolt.Open(a.Config.BoltPath)
		if err != nil {
			return fmt.Errorf("open bolt store: %w", err)
		}
		a.closers = append(a.closers, func() { _ = store.Close() })
		a.Jobs = store
		a.Expenses = store
		a.Tokens = store
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", a.Config.StoreDriver)
	}
	return nil
}

func (a *App) openStorage(ctx context.Context) error {
	switch a.Config.StorageDriver {
	case config.StorageDriverLocalFS:
		storage, err := localfs.New(a.Config.StoragePath)
		if err != nil {
			return fmt.Errorf("init object storage: %w", err)
		}
		a.Storage = storage
	case config.StorageDriverGCS:
		storage, err := gcs.New(ctx, a.Config.GCSBucket)
		if err != nil {
			return fmt.Errorf("init gcs storage: %w", err)
		}
		a.closers = append(a.closers, func() { _ = storage.Close() })
		a.Storage = storage
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", a.Config.StorageDriver)
	}
	return nil
}

// NewProcessor wires the job processor with the configured OCR provider,
// category rules and notifier.
func (a *App) NewProcessor(ctx context.Context) (*usecase.ProcessExpenseUseCase, error) {
	cfg := a.Config

	recognizer, err := a.newRecognizer(ctx)
	if err != nil {
		return nil, err
	}

	categories := extraction.DefaultCategoryMatcher()
	if cfg.CategoryRulesPath != "" {
		categories, err = extraction.CategoryMatcherFromFile(cfg.CategoryRulesPath)
		if err != nil {
			return nil, fmt.Errorf("load category rules: %w", err)
		}
		slog.Info("category_rules_loaded", "path", cfg.CategoryRulesPath, "categories", len(categories.Categories()))
	}

	var notifier ports.Notifier
	if cfg.NotificationsEnabled {
		notifier = expo.New(cfg.ExpoPushURL, a.Tokens, a.Executor)
	}

	failures := usecase.NewFailureHandler(a.Jobs, usecase.RetryBackoff{
		Base: millis(cfg.RetryBaseDelayMS),
		Max:  millis(cfg.RetryMaxDelayMS),
	})
	return usecase.NewProcessExpenseUseCase(
		a.Jobs,
		a.Storage,
		imageprep.New(),
		recognizer,
		categories,
		failures,
		notifier,
		usecase.ProcessOptions{
			Lease:          millis(cfg.JobLeaseMS),
			JobTimeout:     millis(cfg.JobTimeoutMS),
			StorageTimeout: millis(cfg.StorageTimeoutMS),
			OCRTimeout:     millis(cfg.OCRTimeoutMS),
		},
	), nil
}

func (a *App) newRecognizer(ctx context.Context) (ports.TextRecognizer, error) {
	switch a.Config.OCRProvider {
	case config.OCRProviderVision:
		if a.Config.GoogleVisionAPIKey == "" {
			slog.Warn("vision_api_key_missing", "effect", "receipt jobs will fail until GOOGLE_VISION_API_KEY is set")
		}
		client, err := vision.New(ctx, a.Config.GoogleVisionAPIKey, vision.Options{Executor: a.Executor})
		if err != nil {
			return nil, fmt.Errorf("init vision client: %w", err)
		}
		return client, nil
	case config.OCRProviderGemini:
		client, err := gemini.New(ctx, a.Config.GeminiAPIKey, gemini.Options{
			Model:    a.Config.GeminiModel,
			Executor: a.Executor,
		})
		if err != nil {
			return nil, fmt.Errorf("init gemini client: %w", err)
		}
		return client, nil
	case config.OCRProviderOllama:
		return ollama.New(a.Config.OllamaURL, a.Config.OllamaModel, a.Executor), nil
	default:
		return nil, fmt.Errorf("unknown OCR_PROVIDER %q", a.Config.OCRProvider)
	}
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
