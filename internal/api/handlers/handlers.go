package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/n3xfin/finance-tracker/internal/analytics"
	"github.com/n3xfin/finance-tracker/internal/api/middleware"
	"github.com/n3xfin/finance-tracker/internal/bigquery"
	"github.com/n3xfin/finance-tracker/internal/categorize"
	"github.com/n3xfin/finance-tracker/internal/domain"
	"github.com/n3xfin/finance-tracker/internal/jobs"
	"github.com/n3xfin/finance-tracker/internal/logger"
	"github.com/n3xfin/finance-tracker/internal/pipeline"
	"github.com/rs/zerolog"
)

const dateLayout = "2006-01-02"

// TransactionReader lists stored transactions for display.
type TransactionReader interface {
	QueryTransactionsByDateRange(ctx context.Context, userID string, startDate, endDate time.Time) ([]*bigquery.TransactionRow, error)
}

// RunDeleter removes an ingestion run and everything it stored.
type RunDeleter interface {
	DeleteIngestionRun(ctx context.Context, userID, runID string) error
}

// Categorizer assigns categories to a user's uncategorized transactions.
type Categorizer interface {
	CategorizeUser(ctx context.Context, userID string, limit int) (*categorize.Summary, error)
}

// Analyzer produces spending reports, trends, anomalies, forecasts and
// monthly reports, and records anomaly feedback.
type Analyzer interface {
	SpendingReport(ctx context.Context, userID string, start, end time.Time, g analytics.Granularity) (*analytics.SpendingReport, error)
	RecentAnomalies(ctx context.Context, userID string, now time.Time) ([]analytics.Anomaly, error)
	Trend(ctx context.Context, userID, category string, now time.Time) (*analytics.Trend, error)
	Forecast(ctx context.Context, userID, category string, horizonDays int, now time.Time) (*analytics.Forecast, error)
	Alerts(ctx context.Context, userID string, now time.Time) ([]analytics.Alert, error)
	MonthlyReport(ctx context.Context, userID string, monthStart, now time.Time) (*analytics.MonthlyReport, error)
	RecordAnomalyFeedback(ctx context.Context, fb domain.AnomalyFeedback, now time.Time) (*domain.AnomalyFeedback, error)
}

// userID returns the caller's user ID from the X-User-ID header, falling
// back to the user_id query parameter.
func userID(r *http.Request) string {
	if id := r.Header.Get("X-User-ID"); id != "" {
		return id
	}
	return r.URL.Query().Get("user_id")
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return pipeline.InvalidRequest("invalid request body: " + err.Error())
	}
	return nil
}

type ingestRequest struct {
	SourceRef  string `json:"source_ref"`
	UserID     string `json:"user_id"`
	SourceFile string `json:"source_file"`
	ForceAI    bool   `json:"force_ai"`
}

func (req ingestRequest) toPipeline(r *http.Request) pipeline.IngestRequest {
	uid := req.UserID
	if uid == "" {
		uid = userID(r)
	}
	return pipeline.IngestRequest{
		SourceRef:  req.SourceRef,
		UserID:     uid,
		SourceFile: req.SourceFile,
		ForceAI:    req.ForceAI,
	}
}

// StatementsHandler handles statement ingestion endpoints.
type StatementsHandler struct {
	ingester  jobs.Ingester
	publisher jobs.Publisher
	runs      RunDeleter
	log       zerolog.Logger
}

// NewStatementsHandler creates a statements handler. publisher and runs may
// be nil, which disables the endpoints that need them.
func NewStatementsHandler(ingester jobs.Ingester, publisher jobs.Publisher, runs RunDeleter, log zerolog.Logger) *StatementsHandler {
	return &StatementsHandler{
		ingester:  ingester,
		publisher: publisher,
		runs:      runs,
		log:       log,
	}
}

// Ingest handles POST /api/statements/ingest and runs ingestion synchronously.
func (h *StatementsHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := decodeBody(r, &req); err != nil {
		middleware.WriteAppError(w, err)
		return
	}

	res, err := h.ingester.Ingest(r.Context(), req.toPipeline(r))
	if err != nil {
		h.log.Warn().Err(err).Str("source_ref", req.SourceRef).Msg("Ingestion failed")
		middleware.WriteAppError(w, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, res)
}

// Enqueue handles POST /api/statements/enqueue.
func (h *StatementsHandler) Enqueue(w http.ResponseWriter, r *http.Request) {
	if h.publisher == nil {
		middleware.WriteError(w, http.StatusServiceUnavailable, "Job queue is not configured")
		return
	}

	var req ingestRequest
	if err := decodeBody(r, &req); err != nil {
		middleware.WriteAppError(w, err)
		return
	}
	in := req.toPipeline(r)
	if in.UserID == "" || in.SourceRef == "" {
		middleware.WriteAppError(w, pipeline.InvalidRequest("user_id and source_ref are required"))
		return
	}

	job := &jobs.IngestStatementJob{
		UserID:     in.UserID,
		SourceRef:  in.SourceRef,
		SourceFile: in.SourceFile,
		ForceAI:    in.ForceAI,
	}
	if err := h.publisher.PublishIngestStatement(r.Context(), job); err != nil {
		h.log.Error().Err(err).Msg("Failed to enqueue ingest job")
		middleware.WriteError(w, http.StatusServiceUnavailable, "Failed to enqueue ingest job")
		return
	}

	h.log.Info().Str("job_id", job.JobID).Str("source_ref", in.SourceRef).Msg("Ingest job enqueued")

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id": job.JobID,
		"status": string(job.Status),
	})
}

// DeleteRun handles DELETE /api/ingestion-runs/{id}.
func (h *StatementsHandler) DeleteRun(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		middleware.WriteError(w, http.StatusServiceUnavailable, "Run store is not configured")
		return
	}
	uid, runID := userID(r), r.PathValue("id")
	if uid == "" {
		middleware.WriteAppError(w, pipeline.InvalidRequest("user_id is required"))
		return
	}

	if err := h.runs.DeleteIngestionRun(r.Context(), uid, runID); err != nil {
		h.log.Error().Err(err).Str("ingestion_run_id", runID).Msg("Failed to delete ingestion run")
		middleware.WriteAppError(w, pipeline.ExternalError("transaction_store", err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// TransactionsHandler handles transaction endpoints.
type TransactionsHandler struct {
	repo        TransactionReader
	categorizer Categorizer
	log         zerolog.Logger
}

// NewTransactionsHandler creates a new transactions handler.
func NewTransactionsHandler(repo TransactionReader, categorizer Categorizer, log zerolog.Logger) *TransactionsHandler {
	return &TransactionsHandler{
		repo:        repo,
		categorizer: categorizer,
		log:         log,
	}
}

// ListTransactions handles GET /api/transactions?start_date=&end_date=.
// Defaults to the last year.
func (h *TransactionsHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		middleware.WriteAppError(w, pipeline.InvalidRequest("user_id is required"))
		return
	}

	now := time.Now().UTC()
	start, end, err := dateRange(r, now.AddDate(-1, 0, 0), now)
	if err != nil {
		middleware.WriteAppError(w, err)
		return
	}

	transactions, err := h.repo.QueryTransactionsByDateRange(r.Context(), uid, start, end)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to query transactions")
		middleware.WriteAppError(w, pipeline.ExternalError("transaction_store", err))
		return
	}

	if transactions == nil {
		transactions = []*bigquery.TransactionRow{}
	}
	middleware.WriteJSON(w, http.StatusOK, transactions)
}

// Categorize handles POST /api/transactions/categorize?limit=.
func (h *TransactionsHandler) Categorize(w http.ResponseWriter, r *http.Request) {
	if h.categorizer == nil {
		middleware.WriteError(w, http.StatusServiceUnavailable, "Categorization is not configured")
		return
	}
	uid := userID(r)
	if uid == "" {
		middleware.WriteAppError(w, pipeline.InvalidRequest("user_id is required"))
		return
	}

	limit, err := intParam(r, "limit", 0)
	if err != nil {
		middleware.WriteAppError(w, err)
		return
	}

	summary, err := h.categorizer.CategorizeUser(r.Context(), uid, limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Categorization failed")
		middleware.WriteAppError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, summary)
}

// AnalyticsHandler handles spending analytics endpoints.
type AnalyticsHandler struct {
	svc Analyzer
	now func() time.Time
}

// NewAnalyticsHandler creates an analytics handler.
func NewAnalyticsHandler(svc Analyzer) *AnalyticsHandler {
	return &AnalyticsHandler{svc: svc, now: func() time.Time { return time.Now().UTC() }}
}

// Spending handles GET /api/analytics/spending?start_date=&end_date=&granularity=.
// Defaults to the last 30 days by day.
func (h *AnalyticsHandler) Spending(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	start, end, err := dateRange(r, now.AddDate(0, 0, -30), now)
	if err != nil {
		middleware.WriteAppError(w, err)
		return
	}
	g, err := analytics.ParseGranularity(r.URL.Query().Get("granularity"))
	if err != nil {
		middleware.WriteAppError(w, pipeline.InvalidRequest(err.Error()))
		return
	}

	report, err := h.svc.SpendingReport(r.Context(), userID(r), start, end, g)
	if err != nil {
		middleware.WriteAppError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, report)
}

// Anomalies handles GET /api/analytics/anomalies.
func (h *AnalyticsHandler) Anomalies(w http.ResponseWriter, r *http.Request) {
	anomalies, err := h.svc.RecentAnomalies(r.Context(), userID(r), h.now())
	if err != nil {
		middleware.WriteAppError(w, err)
		return
	}

	out := make([]anomalyResponse, 0, len(anomalies))
	for _, a := range anomalies {
		out = append(out, newAnomalyResponse(a))
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"anomalies": out,
		"count":     len(out),
	})
}

// Trends handles GET /api/analytics/trends?category=.
func (h *AnalyticsHandler) Trends(w http.ResponseWriter, r *http.Request) {
	tr, err := h.svc.Trend(r.Context(), userID(r), r.URL.Query().Get("category"), h.now())
	if err != nil {
		middleware.WriteAppError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, tr)
}

type anomalyFeedbackRequest struct {
	TransactionID string `json:"transaction_id"`
	IsLegitimate  *bool  `json:"is_legitimate"`
	Notes         string `json:"notes"`
}

// AnomalyFeedback handles POST /api/analytics/anomalies/feedback.
func (h *AnalyticsHandler) AnomalyFeedback(w http.ResponseWriter, r *http.Request) {
	var req anomalyFeedbackRequest
	if err := decodeBody(r, &req); err != nil {
		middleware.WriteAppError(w, err)
		return
	}
	if req.IsLegitimate == nil {
		middleware.WriteAppError(w, pipeline.InvalidRequest("is_legitimate is required"))
		return
	}

	fb, err := h.svc.RecordAnomalyFeedback(r.Context(), domain.AnomalyFeedback{
		UserID:        userID(r),
		TransactionID: req.TransactionID,
		IsLegitimate:  *req.IsLegitimate,
		Notes:         req.Notes,
	}, h.now())
	if err != nil {
		middleware.WriteAppError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, fb)
}

// Forecast handles GET /api/analytics/forecast?category=&horizon_days=.
func (h *AnalyticsHandler) Forecast(w http.ResponseWriter, r *http.Request) {
	horizon, err := intParam(r, "horizon_days", 0)
	if err != nil {
		middleware.WriteAppError(w, err)
		return
	}

	f, err := h.svc.Forecast(r.Context(), userID(r), r.URL.Query().Get("category"), horizon, h.now())
	if err != nil {
		middleware.WriteAppError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, f)
}

// Alerts handles GET /api/analytics/alerts.
func (h *AnalyticsHandler) Alerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.svc.Alerts(r.Context(), userID(r), h.now())
	if err != nil {
		middleware.WriteAppError(w, err)
		return
	}
	if alerts == nil {
		alerts = []analytics.Alert{}
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

// MonthlyReport handles GET /api/reports/monthly?month=YYYY-MM&format=json|csv.
// month defaults to the previous calendar month.
func (h *AnalyticsHandler) MonthlyReport(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	query := r.URL.Query()

	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -1, 0)
	if raw := query.Get("month"); raw != "" {
		m, err := analytics.ParseMonth(raw)
		if err != nil {
			middleware.WriteAppError(w, pipeline.InvalidRequest(err.Error()))
			return
		}
		monthStart = m
	}

	format := query.Get("format")
	if format != "" && format != "json" && format != "csv" {
		middleware.WriteAppError(w, pipeline.InvalidRequest("format must be 'json' or 'csv'"))
		return
	}

	report, err := h.svc.MonthlyReport(r.Context(), userID(r), monthStart, now)
	if err != nil {
		middleware.WriteAppError(w, err)
		return
	}

	if format != "csv" {
		middleware.WriteJSON(w, http.StatusOK, report)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="report-`+report.Month+`.csv"`)
	if err := analytics.ExportCSV(w, report); err != nil {
		log := logger.FromContext(r.Context())
		log.Error().Err(err).Str("month", report.Month).Msg("Failed to write CSV report")
	}
}

type anomalyResponse struct {
	TransactionID string  `json:"transactionId"`
	Date          string  `json:"date"`
	Description   string  `json:"description"`
	Amount        string  `json:"amount"`
	Category      string  `json:"category"`
	Reason        string  `json:"reason"`
	Severity      string  `json:"severity"`
	ZScore        float64 `json:"zScore"`
	ExpectedMin   float64 `json:"expectedMin"`
	ExpectedMax   float64 `json:"expectedMax"`
}

func newAnomalyResponse(a analytics.Anomaly) anomalyResponse {
	tx := a.Transaction
	return anomalyResponse{
		TransactionID: tx.ID,
		Date:          tx.Date.Format(dateLayout),
		Description:   tx.Description,
		Amount:        tx.Amount.StringFixed(2),
		Category:      tx.CategoryOrDefault(),
		Reason:        a.Reason,
		Severity:      string(a.Severity),
		ZScore:        a.ZScore,
		ExpectedMin:   a.ExpectedRange.Min,
		ExpectedMax:   a.ExpectedRange.Max,
	}
}

// JobsHandler handles job-related endpoints.
type JobsHandler struct {
	store jobs.JobStore
	log   zerolog.Logger
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(store jobs.JobStore, log zerolog.Logger) *JobsHandler {
	return &JobsHandler{
		store: store,
		log:   log,
	}
}

// GetJob handles GET /api/jobs/{id}
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")

	job, err := h.store.GetJob(r.Context(), jobID)
	if err != nil {
		h.log.Debug().Err(err).Str("job_id", jobID).Msg("Job lookup failed")
		middleware.WriteError(w, http.StatusNotFound, "Job not found")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/jobs
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := jobs.JobFilter{
		UserID: userID(r),
		Status: jobs.JobStatus(query.Get("status")),
	}

	var err error
	if filter.Limit, err = intParam(r, "limit", 0); err != nil {
		middleware.WriteAppError(w, err)
		return
	}
	if filter.Offset, err = intParam(r, "offset", 0); err != nil {
		middleware.WriteAppError(w, err)
		return
	}

	jobsList, err := h.store.ListJobs(r.Context(), filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobsList,
		"count": len(jobsList),
	})
}

// Health handles GET /health.
func Health(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// dateRange reads start_date and end_date (YYYY-MM-DD). end_date is
// inclusive, so the returned end is the start of the following day.
func dateRange(r *http.Request, defStart, defEnd time.Time) (time.Time, time.Time, error) {
	query := r.URL.Query()
	start, end := defStart, defEnd

	if s := query.Get("start_date"); s != "" {
		t, err := time.Parse(dateLayout, s)
		if err != nil {
			return time.Time{}, time.Time{}, pipeline.InvalidRequest("invalid start_date format, want YYYY-MM-DD")
		}
		start = t
	}
	if s := query.Get("end_date"); s != "" {
		t, err := time.Parse(dateLayout, s)
		if err != nil {
			return time.Time{}, time.Time{}, pipeline.InvalidRequest("invalid end_date format, want YYYY-MM-DD")
		}
		end = t.AddDate(0, 0, 1)
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, pipeline.InvalidRequest("end_date must not be before start_date")
	}
	return start, end, nil
}

func intParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, pipeline.InvalidRequest("invalid " + name + " parameter")
	}
	return v, nil
}

// Deps are the services behind the HTTP API. Nil fields disable their routes.
type Deps struct {
	Ingester     jobs.Ingester
	Publisher    jobs.Publisher
	JobStore     jobs.JobStore
	Transactions TransactionReader
	Runs         RunDeleter
	Categorizer  Categorizer
	Analytics    Analyzer
}

// NewRouter registers every route and wraps the mux in the standard
// middleware chain.
func NewRouter(deps Deps, log zerolog.Logger) http.Handler {
	mux := http.NewServeMux()

	if deps.Ingester != nil {
		statements := NewStatementsHandler(deps.Ingester, deps.Publisher, deps.Runs, log)
		mux.HandleFunc("POST /api/statements/ingest", statements.Ingest)
		mux.HandleFunc("POST /api/statements/enqueue", statements.Enqueue)
		mux.HandleFunc("DELETE /api/ingestion-runs/{id}", statements.DeleteRun)
	}
	if deps.JobStore != nil {
		jobsHandler := NewJobsHandler(deps.JobStore, log)
		mux.HandleFunc("GET /api/jobs", jobsHandler.ListJobs)
		mux.HandleFunc("GET /api/jobs/{id}", jobsHandler.GetJob)
	}
	if deps.Transactions != nil {
		transactions := NewTransactionsHandler(deps.Transactions, deps.Categorizer, log)
		mux.HandleFunc("GET /api/transactions", transactions.ListTransactions)
		mux.HandleFunc("POST /api/transactions/categorize", transactions.Categorize)
	}
	if deps.Analytics != nil {
		analyticsHandler := NewAnalyticsHandler(deps.Analytics)
		mux.HandleFunc("GET /api/analytics/spending", analyticsHandler.Spending)
		mux.HandleFunc("GET /api/analytics/anomalies", analyticsHandler.Anomalies)
		mux.HandleFunc("GET /api/analytics/trends", analyticsHandler.Trends)
		mux.HandleFunc("POST /api/analytics/anomalies/feedback", analyticsHandler.AnomalyFeedback)
		mux.HandleFunc("GET /api/analytics/forecast", analyticsHandler.Forecast)
		mux.HandleFunc("GET /api/analytics/alerts", analyticsHandler.Alerts)
		mux.HandleFunc("GET /api/reports/monthly", analyticsHandler.MonthlyReport)
	}
	mux.HandleFunc("GET /health", Health)

	return middleware.Chain(mux,
		middleware.Recovery(log),
		middleware.RequestID,
		middleware.Logger(log),
		middleware.CORS,
	)
}
