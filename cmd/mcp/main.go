package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mark3labs/mcp-go/server"

	mcpadapter "github.com/dcmshi/expense-tracker/internal/adapters/mcp"
	"github.com/dcmshi/expense-tracker/internal/bootstrap"
	"github.com/dcmshi/expense-tracker/internal/config"
	"github.com/dcmshi/expense-tracker/internal/observability/logging"
)

const version = "0.1.0"

func main() {
	cfg := config.Load()
	// stdout carries the protocol.
	slog.SetDefault(logging.NewJSONLoggerTo(os.Stderr, "mcp", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	tools := mcpadapter.NewTools(app.IntakeUC, app.ExpenseUC, app.AnalyticsUC)
	s := mcpadapter.NewServer(tools, version)

	slog.Info("mcp_server_started", "store", cfg.StoreDriver)
	if err := server.ServeStdio(s); err != nil {
		slog.Error("mcp_server_error", "error", err)
	}
}
