package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/peterbourgon/ff/v4"

	"github.com/dcmshi/expense-tracker/internal/bootstrap"
	"github.com/dcmshi/expense-tracker/internal/config"
	"github.com/dcmshi/expense-tracker/internal/core/domain"
	"github.com/dcmshi/expense-tracker/internal/core/usecase"
	"github.com/dcmshi/expense-tracker/internal/observability/logging"
)

// globalFlags override the environment configuration for one invocation.
type globalFlags struct {
	store    string
	boltPath string
	logLevel string
}

func (g *globalFlags) config() config.Config {
	cfg := config.Load()
	if g.store != "" {
		cfg.StoreDriver = g.store
	}
	if g.boltPath != "" {
		cfg.BoltPath = g.boltPath
	}
	if g.logLevel != "" {
		cfg.LogLevel = g.logLevel
	}
	// Only the long-running services publish wake-up events.
	cfg.NATSURL = ""
	return cfg
}

func (g *globalFlags) open(ctx context.Context) (*bootstrap.App, error) {
	cfg := g.config()
	slog.SetDefault(logging.NewJSONLoggerTo(os.Stderr, "expensectl", cfg.LogLevel))
	return bootstrap.New(ctx, cfg)
}

func newRootCommand(stdout io.Writer) *ff.Command {
	var global globalFlags
	rootFlags := ff.NewFlagSet("expensectl")
	rootFlags.StringVar(&global.store, 0, "store", "", "store driver override: postgres or bolt")
	rootFlags.StringVar(&global.boltPath, 0, "bolt-path", "", "bolt database file override")
	rootFlags.StringVar(&global.logLevel, 0, "log-level", "", "log level override")

	return &ff.Command{
		Name:      "expensectl",
		Usage:     "expensectl [FLAGS] <SUBCOMMAND> ...",
		ShortHelp: "operate the expense ingestion pipeline",
		Flags:     rootFlags,
		Subcommands: []*ff.Command{
			newPollOnceCommand(&global, rootFlags, stdout),
			newSubmitVoiceCommand(&global, rootFlags, stdout),
			newSubmitReceiptCommand(&global, rootFlags, stdout),
			newSummaryCommand(&global, rootFlags, stdout),
			newExportCommand(&global, rootFlags, stdout),
		},
	}
}

func newPollOnceCommand(global *globalFlags, parent *ff.FlagSet, stdout io.Writer) *ff.Command {
	flags := ff.NewFlagSet("poll-once").SetParent(parent)
	batch := flags.IntLong("batch", 0, "jobs to process (default WORKER_BATCH_SIZE)")

	return &ff.Command{
		Name:      "poll-once",
		Usage:     "expensectl poll-once [--batch N]",
		ShortHelp: "run a single poll cycle over pending jobs",
		Flags:     flags,
		Exec: func(ctx context.Context, _ []string) error {
			app, err := global.open(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			processor, err := app.NewProcessor(ctx)
			if err != nil {
				return err
			}
			size := *batch
			if size <= 0 {
				size = app.Config.WorkerBatchSize
			}
			processed := usecase.NewPoller(app.Jobs, processor, size, nil).PollOnce(ctx)
			_, err = fmt.Fprintf(stdout, "processed %d job(s)\n", processed)
			return err
		},
	}
}

func newSubmitVoiceCommand(global *globalFlags, parent *ff.FlagSet, stdout io.Writer) *ff.Command {
	flags := ff.NewFlagSet("submit-voice").SetParent(parent)
	transcript := flags.StringLong("transcript", "", "what was said about the expense")
	key := flags.StringLong("key", "", "idempotency key (generated when empty)")

	return &ff.Command{
		Name:      "submit-voice",
		Usage:     "expensectl submit-voice --transcript TEXT [--key UUID]",
		ShortHelp: "submit a voice transcript for processing",
		Flags:     flags,
		Exec: func(ctx context.Context, _ []string) error {
			if strings.TrimSpace(*transcript) == "" {
				return fmt.Errorf("--transcript is required")
			}
			idempotencyKey, err := resolveKey(*key)
			if err != nil {
				return err
			}
			app, err := global.open(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			result, err := app.IntakeUC.Submit(ctx, domain.IngestionRequest{
				Source:         domain.SourceVoice,
				Transcript:     *transcript,
				IdempotencyKey: idempotencyKey,
			})
			if err != nil {
				return err
			}
			return writeJSON(stdout, result)
		},
	}
}

func newSubmitReceiptCommand(global *globalFlags, parent *ff.FlagSet, stdout io.Writer) *ff.Command {
	flags := ff.NewFlagSet("submit-receipt").SetParent(parent)
	file := flags.StringLong("file", "", "receipt image or PDF to upload")
	key := flags.StringLong("key", "", "idempotency key (generated when empty)")

	return &ff.Command{
		Name:      "submit-receipt",
		Usage:     "expensectl submit-receipt --file PATH [--key UUID]",
		ShortHelp: "upload a receipt to object storage and submit it for processing",
		Flags:     flags,
		Exec: func(ctx context.Context, _ []string) error {
			if *file == "" {
				return fmt.Errorf("--file is required")
			}
			idempotencyKey, err := resolveKey(*key)
			if err != nil {
				return err
			}
			f, err := os.Open(*file)
			if err != nil {
				return fmt.Errorf("open receipt: %w", err)
			}
			defer f.Close()

			app, err := global.open(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			objectKey := receiptObjectKey(idempotencyKey, *file)
			if err := app.Storage.Save(ctx, objectKey, f); err != nil {
				return fmt.Errorf("upload receipt: %w", err)
			}
			result, err := app.IntakeUC.Submit(ctx, domain.IngestionRequest{
				Source:         domain.SourceReceipt,
				ObjectKey:      objectKey,
				IdempotencyKey: idempotencyKey,
			})
			if err != nil {
				return err
			}
			return writeJSON(stdout, map[string]any{
				"expense_id":        result.ExpenseID,
				"processing_status": result.ProcessingStatus,
				"object_key":        objectKey,
			})
		},
	}
}

func newSummaryCommand(global *globalFlags, parent *ff.FlagSet, stdout io.Writer) *ff.Command {
	flags := ff.NewFlagSet("summary").SetParent(parent)
	from := flags.StringLong("from", "", "first day, YYYY-MM-DD")
	to := flags.StringLong("to", "", "last day, YYYY-MM-DD")

	return &ff.Command{
		Name:      "summary",
		Usage:     "expensectl summary [--from DATE] [--to DATE]",
		ShortHelp: "print category and monthly totals of settled expenses",
		Flags:     flags,
		Exec: func(ctx context.Context, _ []string) error {
			fromDate, toDate, err := parseRange(*from, *to)
			if err != nil {
				return err
			}
			app, err := global.open(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			summary, err := app.AnalyticsUC.Summary(ctx, fromDate, toDate)
			if err != nil {
				return err
			}
			return writeJSON(stdout, summary)
		},
	}
}

func newExportCommand(global *globalFlags, parent *ff.FlagSet, stdout io.Writer) *ff.Command {
	flags := ff.NewFlagSet("export").SetParent(parent)
	out := flags.StringLong("out", "expenses.xlsx", "spreadsheet to write")
	from := flags.StringLong("from", "", "first day, YYYY-MM-DD")
	to := flags.StringLong("to", "", "last day, YYYY-MM-DD")

	return &ff.Command{
		Name:      "export",
		Usage:     "expensectl export [--out FILE] [--from DATE] [--to DATE]",
		ShortHelp: "write settled expenses to an XLSX file",
		Flags:     flags,
		Exec: func(ctx context.Context, _ []string) error {
			fromDate, toDate, err := parseRange(*from, *to)
			if err != nil {
				return err
			}
			app, err := global.open(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			expenses, err := app.ExpenseUC.List(ctx, domain.ExpenseFilter{
				ExcludeStatuses: []domain.ProcessingStatus{domain.StatusUploaded, domain.StatusProcessing, domain.StatusFailed},
				From:            fromDate,
				To:              toDate,
			})
			if err != nil {
				return err
			}

			f, err := os.Create(*out)
			if err != nil {
				return fmt.Errorf("create export file: %w", err)
			}
			if err := app.Exporter.Export(f, expenses); err != nil {
				_ = f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return fmt.Errorf("close export file: %w", err)
			}
			_, err = fmt.Fprintf(stdout, "wrote %d expense(s) to %s\n", len(expenses), *out)
			return err
		},
	}
}

func resolveKey(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return uuid.NewString(), nil
	}
	parsed, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("--key must be a UUID: %w", err)
	}
	return parsed.String(), nil
}

// receiptObjectKey names the uploaded object after the idempotency key so a
// retried upload overwrites the same object.
func receiptObjectKey(idempotencyKey, path string) string {
	return "receipts/" + idempotencyKey + strings.ToLower(filepath.Ext(path))
}

func parseRange(from, to string) (*time.Time, *time.Time, error) {
	parse := func(name, raw string) (*time.Time, error) {
		if raw == "" {
			return nil, nil
		}
		t, err := time.Parse(domain.DateLayout, raw)
		if err != nil {
			return nil, fmt.Errorf("--%s must be YYYY-MM-DD: %w", name, err)
		}
		return &t, nil
	}
	fromDate, err := parse("from", from)
	if err != nil {
		return nil, nil, err
	}
	toDate, err := parse("to", to)
	if err != nil {
		return nil, nil, err
	}
	return fromDate, toDate, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
