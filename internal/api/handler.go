package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"

	"github.com/opensource-finance/fakeguard/internal/bus"
	"github.com/opensource-finance/fakeguard/internal/domain"
	"github.com/opensource-finance/fakeguard/internal/export"
	"github.com/opensource-finance/fakeguard/internal/ingest"
	"github.com/opensource-finance/fakeguard/internal/rules"
	"github.com/opensource-finance/fakeguard/internal/workspace"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	repo          domain.Repository
	cache         domain.Cache
	bus           domain.EventBus
	ws            *workspace.Service
	engine        *rules.Engine
	version       string
	maxUploadSize int64
}

// NewHandler creates a new API handler.
func NewHandler(deps Deps, maxUploadSize int64) *Handler {
	if maxUploadSize <= 0 {
		maxUploadSize = 32 << 20
	}
	return &Handler{
		repo:          deps.Repo,
		cache:         deps.Cache,
		bus:           deps.Bus,
		ws:            deps.Workspace,
		engine:        deps.Engine,
		version:       deps.Version,
		maxUploadSize: maxUploadSize,
	}
}

// UploadResponse is the response for POST /api/upload.
type UploadResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Count     int    `json:"count"`
	DatasetID string `json:"datasetId"`
}

// Upload handles POST /api/upload. The multipart field "file" must be a
// .csv or .json file; it becomes the tenant's latest dataset.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file uploaded")
		return
	}
	defer file.Close()

	format, err := ingest.FormatFromFilename(header.Filename)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Unsupported file format. Please upload CSV or JSON.")
		return
	}

	records, err := ingest.Decode(file, format)
	if err != nil {
		slog.Warn("failed to parse upload",
			"tenant_id", tenantID,
			"format", format,
			"error", err,
		)
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Failed to parse %s file", strings.ToUpper(format)))
		return
	}

	ds, err := h.ws.Upload(ctx, tenantID, format, records)
	if err != nil {
		slog.Error("failed to store dataset", "tenant_id", tenantID, "error", err)
		writeError(w, http.StatusInternalServerError, "File upload failed")
		return
	}

	if h.bus != nil {
		event := domain.DatasetUploadedEvent{
			TenantID:  tenantID,
			DatasetID: ds.ID,
			Count:     len(ds.Records),
			TraceID:   GetTraceID(ctx),
		}
		if err := bus.PublishEvent(ctx, h.bus, domain.PipelineTenantID, domain.TopicDatasetUploaded, event); err != nil {
			slog.Error("failed to publish upload event", "dataset_id", ds.ID, "error", err)
		}
	}

	slog.Info("dataset uploaded",
		"tenant_id", tenantID,
		"dataset_id", ds.ID,
		"format", format,
		"count", len(ds.Records),
	)

	writeJSON(w, http.StatusOK, UploadResponse{
		Success:   true,
		Message:   fmt.Sprintf("Successfully uploaded %d accounts", len(ds.Records)),
		Count:     len(ds.Records),
		DatasetID: ds.ID,
	})
}

// AnalysisSummary summarizes a batch analysis.
type AnalysisSummary struct {
	TotalProcessed    int    `json:"totalProcessed"`
	TotalFlagged      int    `json:"totalFlagged"`
	FlaggedPercentage string `json:"flaggedPercentage"`
}

// AnalyzeResponse is the response for POST /api/analyze.
type AnalyzeResponse struct {
	Success         bool                     `json:"success"`
	Summary         AnalysisSummary          `json:"summary"`
	FlaggedAccounts []domain.AccountAnalysis `json:"flaggedAccounts"`
}

// Analyze handles POST /api/analyze over the tenant's latest dataset.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "analyze")
	defer span.End()

	tenantID := GetTenantID(ctx)

	report, err := h.ws.Analyze(ctx, tenantID, GetTraceID(ctx))
	if errors.Is(err, workspace.ErrNoDataset) {
		writeError(w, http.StatusBadRequest, "No data to analyze. Please upload data first.")
		return
	}
	if err != nil {
		slog.Error("analysis failed", "tenant_id", tenantID, "error", err)
		span.RecordError(err)
		writeError(w, http.StatusInternalServerError, "Analysis failed")
		return
	}

	span.SetAttributes(
		attribute.Int("accounts.total", report.TotalProcessed),
		attribute.Int("accounts.flagged", report.TotalFlagged),
	)

	slog.Info("dataset analyzed",
		"tenant_id", tenantID,
		"dataset_id", report.DatasetID,
		"total", report.TotalProcessed,
		"flagged", report.TotalFlagged,
		"duration_ms", report.Metadata.DurationMs,
	)

	writeJSON(w, http.StatusOK, AnalyzeResponse{
		Success: true,
		Summary: AnalysisSummary{
			TotalProcessed:    report.TotalProcessed,
			TotalFlagged:      report.TotalFlagged,
			FlaggedPercentage: report.FlaggedPercentage(),
		},
		FlaggedAccounts: report.Flagged,
	})
}

// CheckRequest is the request body for POST /api/check.
type CheckRequest struct {
	Username string `json:"username"`
}

// CheckResponse is the response for POST /api/check.
type CheckResponse struct {
	Success  bool                   `json:"success"`
	Account  domain.AccountRecord   `json:"account"`
	Analysis domain.AccountAnalysis `json:"analysis"`
}

// Check handles POST /api/check, scoring one uploaded account on its own.
func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req CheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}
	if strings.TrimSpace(req.Username) == "" {
		writeError(w, http.StatusBadRequest, "Username is required")
		return
	}

	account, analysis, err := h.ws.Check(ctx, tenantID, req.Username)
	if errors.Is(err, workspace.ErrAccountNotFound) {
		writeError(w, http.StatusNotFound, "Account not found in uploaded data")
		return
	}
	if err != nil {
		slog.Error("account check failed", "tenant_id", tenantID, "error", err)
		writeError(w, http.StatusInternalServerError, "Account check failed")
		return
	}

	writeJSON(w, http.StatusOK, CheckResponse{
		Success:  true,
		Account:  account,
		Analysis: analysis,
	})
}

// DashboardResponse is the response for GET /api/dashboard.
type DashboardResponse struct {
	Success        bool                     `json:"success"`
	Stats          *workspace.Dashboard     `json:"stats"`
	RecentActivity []domain.AccountAnalysis `json:"recentActivity"`
}

// Dashboard handles GET /api/dashboard.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	d, err := h.ws.Dashboard(ctx, tenantID)
	if err != nil {
		slog.Error("dashboard failed", "tenant_id", tenantID, "error", err)
		writeError(w, http.StatusInternalServerError, "Dashboard data fetch failed")
		return
	}

	writeJSON(w, http.StatusOK, DashboardResponse{
		Success:        true,
		Stats:          d,
		RecentActivity: d.RecentActivity,
	})
}

// Export handles GET /api/export, streaming the last analysis' flagged
// accounts as a CSV attachment.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	report, err := h.ws.Report(ctx, tenantID)
	if err != nil {
		slog.Error("failed to load report", "tenant_id", tenantID, "error", err)
		writeError(w, http.StatusInternalServerError, "Export failed")
		return
	}
	if report == nil || len(report.Flagged) == 0 {
		writeError(w, http.StatusBadRequest, "No flagged accounts to export")
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename="+export.Filename)
	w.WriteHeader(http.StatusOK)

	if err := export.WriteCSV(w, report.Flagged); err != nil {
		slog.Error("failed to write export", "tenant_id", tenantID, "error", err)
	}
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	if h.bus != nil {
		if err := h.bus.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// ListRules returns the custom rules loaded in the engine.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	loadedRules := h.engine.GetLoadedRules()

	writeJSON(w, http.StatusOK, map[string]any{
		"rules":  loadedRules,
		"count":  len(loadedRules),
		"source": "database",
	})
}

// GetRule retrieves a loaded rule by ID.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "id")

	for _, rule := range h.engine.GetLoadedRules() {
		if rule.ID == ruleID {
			writeJSON(w, http.StatusOK, rule)
			return
		}
	}

	writeError(w, http.StatusNotFound, "rule not found")
}

// CreateRuleRequest is the request body for creating a rule.
type CreateRuleRequest struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Expression  string            `json:"expression"`
	Bands       []domain.RuleBand `json:"bands"`
	Enabled     bool              `json:"enabled"`

	// Weight defaults to DefaultRuleWeight when omitted. 0 records the
	// rule's flag without adding to the score.
	Weight *int `json:"weight,omitempty"`
}

// DefaultRuleWeight applies to rules created without an explicit weight.
const DefaultRuleWeight = 1

// GlobalTenantID owns rules that apply to every tenant.
const GlobalTenantID = "*"

// CreateRule validates a rule and saves it. Saved rules take effect after
// POST /api/rules/reload.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}

	weight := DefaultRuleWeight
	if req.Weight != nil {
		weight = *req.Weight
	}

	ruleConfig := &domain.RuleConfig{
		ID:          req.ID,
		TenantID:    GlobalTenantID,
		Name:        req.Name,
		Description: req.Description,
		Version:     "1.0.0",
		Expression:  req.Expression,
		Bands:       req.Bands,
		Weight:      weight,
		Enabled:     req.Enabled,
	}

	if err := ruleConfig.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.engine.ValidateRule(ruleConfig); err != nil {
		writeError(w, http.StatusBadRequest, "invalid CEL expression: "+err.Error())
		return
	}

	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "repository not available")
		return
	}

	if err := h.repo.SaveRuleConfig(ctx, GlobalTenantID, ruleConfig); err != nil {
		slog.Error("failed to save rule config", "id", ruleConfig.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save rule")
		return
	}

	slog.Info("rule created", "id", ruleConfig.ID, "name", ruleConfig.Name)
	writeJSON(w, http.StatusCreated, map[string]any{
		"rule":    ruleConfig,
		"message": "Rule created. Call POST /api/rules/reload to apply changes.",
	})
}

// ReloadRules swaps the engine's rules for the saved set.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "repository not available")
		return
	}

	dbRules, err := h.repo.ListRuleConfigs(ctx, GlobalTenantID)
	if err != nil {
		slog.Error("failed to list rules from database", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load rules from database")
		return
	}

	if err := h.engine.ReloadRules(dbRules); err != nil {
		slog.Error("failed to reload rules into engine", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to reload rules: "+err.Error())
		return
	}

	slog.Info("rules reloaded from database", "count", h.engine.RulesCount())
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "rules reloaded successfully",
		"count":   h.engine.RulesCount(),
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
