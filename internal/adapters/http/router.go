package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/legacy"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/dcmshi/expense-tracker/internal/adapters/http/openapi"
	"github.com/dcmshi/expense-tracker/internal/config"
	"github.com/dcmshi/expense-tracker/internal/core/domain"
	"github.com/dcmshi/expense-tracker/internal/core/ports"
	"github.com/dcmshi/expense-tracker/internal/observability/metrics"
)

const (
	idempotencyKeyHeader = "Idempotency-Key"
	maxJSONBodyBytes     = 1 << 20
	serviceName          = "api"
)

type Router struct {
	cfg       config.Config
	ingestor  ports.ExpenseIngestor
	expenses  ports.ExpenseService
	analytics ports.AnalyticsService
	devices   ports.DeviceRegistrar
	exporter  ports.ExpenseExporter
	metrics   *metrics.HTTPServerMetrics
	validate  *validator.Validate
	contract  routers.Router
}

func NewRouter(
	cfg config.Config,
	ingestor ports.ExpenseIngestor,
	expenses ports.ExpenseService,
	analytics ports.AnalyticsService,
	devices ports.DeviceRegistrar,
	exporter ports.ExpenseExporter,
) *Router {
	return &Router{
		cfg:       cfg,
		ingestor:  ingestor,
		expenses:  expenses,
		analytics: analytics,
		devices:   devices,
		exporter:  exporter,
		validate:  newValidator(),
		contract:  mustContractRouter(),
	}
}

// WithMetrics exposes /metrics and records request and intake counters.
func (rt *Router) WithMetrics(m *metrics.HTTPServerMetrics) *Router {
	rt.metrics = m
	return rt
}

func mustContractRouter() routers.Router {
	doc, err := openapi.Load(context.Background())
	if err != nil {
		panic(err)
	}
	router, err := legacy.NewRouter(doc)
	if err != nil {
		panic(fmt.Errorf("build openapi router: %w", err))
	}
	return router
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.HandleFunc("GET /openapi.yaml", rt.openAPIDocument)
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}

	mux.HandleFunc("POST /ingest/receipt", rt.ingestReceipt)
	mux.HandleFunc("POST /ingest/voice", rt.ingestVoice)

	mux.HandleFunc("GET /expenses", rt.listExpenses)
	mux.HandleFunc("POST /expenses", rt.createExpense)
	mux.HandleFunc("GET /expenses/export.xlsx", rt.exportExpenses)
	mux.HandleFunc("GET /expenses/{id}", rt.getExpense)
	mux.HandleFunc("PATCH /expenses/{id}", rt.updateExpense)
	mux.HandleFunc("DELETE /expenses/{id}", rt.deleteExpense)

	mux.HandleFunc("GET /analytics/summary", rt.analyticsSummary)
	mux.HandleFunc("PUT /device-token", rt.registerDeviceToken)

	var handler http.Handler = mux
	handler = openAPIValidationMiddleware(rt.contract, handler)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	handler = backpressureMiddleware(handler, rt.cfg.APIMaxInFlight, time.Duration(rt.cfg.APIBackpressureWaitMS)*time.Millisecond)
	handler = accessLogMiddleware(handler)
	handler = requestIDMiddleware(handler)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	return handler
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) openAPIDocument(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(openapi.Document)
}

func (rt *Router) ingestReceipt(w http.ResponseWriter, r *http.Request) {
	key, ok := rt.idempotencyKey(w, r)
	if !ok {
		return
	}
	var req ingestReceiptRequest
	if !rt.decodeJSON(w, r, "ingest receipt", &req) {
		return
	}
	rt.submit(w, r, domain.IngestionRequest{
		Source:         domain.SourceReceipt,
		ObjectKey:      req.ObjectKey,
		IdempotencyKey: key,
	})
}

func (rt *Router) ingestVoice(w http.ResponseWriter, r *http.Request) {
	key, ok := rt.idempotencyKey(w, r)
	if !ok {
		return
	}
	var req ingestVoiceRequest
	if !rt.decodeJSON(w, r, "ingest voice", &req) {
		return
	}
	rt.submit(w, r, domain.IngestionRequest{
		Source:         domain.SourceVoice,
		Transcript:     req.Transcript,
		IdempotencyKey: key,
	})
}

func (rt *Router) submit(w http.ResponseWriter, r *http.Request, req domain.IngestionRequest) {
	result, err := rt.ingestor.Submit(r.Context(), req)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordIngestion(serviceName, string(req.Source), result.Created)
	}
	writeJSON(w, http.StatusOK, intakeResponse{
		ExpenseID:        result.ExpenseID,
		ProcessingStatus: result.ProcessingStatus,
	})
}

// idempotencyKey requires the header to be a UUID. The key is passed on in
// its canonical lower-case form so retries with different casing match.
func (rt *Router) idempotencyKey(w http.ResponseWriter, r *http.Request) (string, bool) {
	raw := strings.TrimSpace(r.Header.Get(idempotencyKeyHeader))
	if raw == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Idempotency-Key header is required"})
		return "", false
	}
	key, err := uuid.Parse(raw)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Idempotency-Key header must be a valid UUID"})
		return "", false
	}
	return key.String(), true
}

func (rt *Router) listExpenses(w http.ResponseWriter, r *http.Request) {
	filter, err := parseExpenseFilter(r)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	expenses, err := rt.expenses.List(r.Context(), filter)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}

	items := make([]expenseResponse, 0, len(expenses))
	for _, expense := range expenses {
		items = append(items, newExpenseResponse(expense))
	}
	writeJSON(w, http.StatusOK, map[string]any{"expenses": items})
}

func (rt *Router) createExpense(w http.ResponseWriter, r *http.Request) {
	var req createExpenseRequest
	if !rt.decodeJSON(w, r, "create expense", &req) {
		return
	}
	expense, err := rt.expenses.CreateManual(r.Context(), req.toInput())
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"expense": newExpenseResponse(*expense)})
}

func (rt *Router) getExpense(w http.ResponseWriter, r *http.Request) {
	expense, err := rt.expenses.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"expense": newExpenseResponse(*expense)})
}

func (rt *Router) updateExpense(w http.ResponseWriter, r *http.Request) {
	var req updateExpenseRequest
	if !rt.decodeJSON(w, r, "update expense", &req) {
		return
	}
	expense, err := rt.expenses.Update(r.Context(), r.PathValue("id"), req.toPatch())
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"expense": newExpenseResponse(*expense)})
}

func (rt *Router) deleteExpense(w http.ResponseWriter, r *http.Request) {
	if err := rt.expenses.Delete(r.Context(), r.PathValue("id")); err != nil {
		rt.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// exportExpenses writes the settled expenses of the range as a spreadsheet.
func (rt *Router) exportExpenses(w http.ResponseWriter, r *http.Request) {
	from, to, err := parseDateRange(r)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	expenses, err := rt.expenses.List(r.Context(), domain.ExpenseFilter{
		ExcludeStatuses: []domain.ProcessingStatus{domain.StatusUploaded, domain.StatusProcessing, domain.StatusFailed},
		From:            from,
		To:              to,
	})
	if err != nil {
		rt.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", rt.exporter.ContentType())
	w.Header().Set("Content-Disposition", `attachment; filename="expenses.xlsx"`)
	if err := rt.exporter.Export(w, expenses); err != nil {
		// Headers are already sent; the client sees a truncated file.
		slog.Error("expense_export_failed", "request_id", requestIDFromContext(r.Context()), "error", err)
	}
}

func (rt *Router) analyticsSummary(w http.ResponseWriter, r *http.Request) {
	from, to, err := parseDateRange(r)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	summary, err := rt.analytics.Summary(r.Context(), from, to)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newAnalyticsResponse(summary))
}

func (rt *Router) registerDeviceToken(w http.ResponseWriter, r *http.Request) {
	var req deviceTokenRequest
	if !rt.decodeJSON(w, r, "register device token", &req) {
		return
	}
	if err := rt.devices.RegisterToken(r.Context(), req.Token); err != nil {
		rt.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// decodeJSON reads and validates a request body, writing a 400 on failure.
func (rt *Router) decodeJSON(w http.ResponseWriter, r *http.Request, op string, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			err = errors.New("request body is required")
		}
		rt.writeError(w, r, domain.WrapError(domain.ErrInvalidInput, op, fmt.Errorf("invalid json: %w", err)))
		return false
	}
	if err := validateRequest(rt.validate, op, dst); err != nil {
		rt.writeError(w, r, err)
		return false
	}
	return true
}

func (rt *Router) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		slog.Error("http_handler_failed",
			"request_id", requestIDFromContext(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"error", err,
		)
	}
	writeJSON(w, status, map[string]string{"error": errorMessage(err, status)})
}

func parseExpenseFilter(r *http.Request) (domain.ExpenseFilter, error) {
	query := r.URL.Query()
	from, to, err := parseDateRange(r)
	if err != nil {
		return domain.ExpenseFilter{}, err
	}
	filter := domain.ExpenseFilter{
		Source: domain.ExpenseSource(query.Get("source")),
		From:   from,
		To:     to,
	}
	if raw := query.Get("status"); raw != "" {
		status := domain.ProcessingStatus(raw)
		if !status.Valid() {
			return domain.ExpenseFilter{}, domain.WrapError(domain.ErrInvalidInput, "parse expense filter", fmt.Errorf("unknown status %q", raw))
		}
		filter.Statuses = []domain.ProcessingStatus{status}
	}
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return domain.ExpenseFilter{}, domain.WrapError(domain.ErrInvalidInput, "parse expense filter", fmt.Errorf("limit must be a positive integer"))
		}
		filter.Limit = limit
	}
	return filter, nil
}

func parseDateRange(r *http.Request) (*time.Time, *time.Time, error) {
	from, err := parseDateParam(r, "from")
	if err != nil {
		return nil, nil, err
	}
	to, err := parseDateParam(r, "to")
	if err != nil {
		return nil, nil, err
	}
	return from, to, nil
}

func parseDateParam(r *http.Request, name string) (*time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	parsed, err := time.Parse(domain.DateLayout, raw)
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "parse date range", fmt.Errorf("%s must be a YYYY-MM-DD date", name))
	}
	return &parsed, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
