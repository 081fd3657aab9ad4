// Package workspace owns each tenant's record source and latest analysis.
// State lives in the repository and cache, never in process globals, so
// batches from different tenants cannot interfere.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/opensource-finance/fakeguard/internal/domain"
	"github.com/opensource-finance/fakeguard/internal/repository"
	"github.com/opensource-finance/fakeguard/internal/scoring"
)

var (
	ErrNoDataset       = errors.New("no data to analyze")
	ErrAccountNotFound = errors.New("account not found in uploaded data")

	// ErrStaleDataset means a newer upload replaced the dataset before its
	// analysis could be published.
	ErrStaleDataset = errors.New("dataset superseded by a newer upload")
)

// EngineVersion is stamped on every report.
const EngineVersion = "fakeguard-1.0"

// Dashboard list sizes.
const (
	RecentFlagsSize    = 10
	RecentActivitySize = 5
)

var tracer = otel.Tracer("fakeguard-workspace")

// checksCounter counts single-account checks per tenant.
const checksCounter = "checks"

// Recorder observes analysis outcomes. Implemented by the metrics package.
type Recorder interface {
	ObserveBatch(result domain.BatchResult, duration time.Duration)
	ObserveCheck(analysis domain.AccountAnalysis)
	ObserveUpload(format string, count int)
}

// Service manages uploads, analyses and lookups for all tenants.
type Service struct {
	repo      domain.Repository
	cache     domain.Cache
	scorer    *scoring.Scorer
	recorder  Recorder
	reportTTL time.Duration

	// RulesLoaded reports the number of custom rules in effect, for report metadata
	RulesLoaded func() int
}

// NewService creates a new workspace service.
func NewService(repo domain.Repository, cache domain.Cache, scorer *scoring.Scorer, reportTTL time.Duration) *Service {
	if scorer == nil {
		scorer = scoring.NewScorer()
	}
	if reportTTL <= 0 {
		reportTTL = 24 * time.Hour
	}
	return &Service{
		repo:      repo,
		cache:     cache,
		scorer:    scorer,
		reportTTL: reportTTL,
	}
}

// SetRecorder attaches an outcome recorder.
func (s *Service) SetRecorder(r Recorder) {
	s.recorder = r
}

// Upload stores records as the tenant's newest dataset.
func (s *Service) Upload(ctx context.Context, tenantID, format string, records []domain.AccountRecord) (*domain.Dataset, error) {
	if records == nil {
		records = []domain.AccountRecord{}
	}

	ds := &domain.Dataset{
		ID:         uuid.New().String(),
		TenantID:   tenantID,
		Format:     format,
		Records:    records,
		UploadedAt: time.Now().UTC(),
	}

	if err := s.repo.SaveDataset(ctx, tenantID, ds); err != nil {
		return nil, fmt.Errorf("failed to save dataset: %w", err)
	}

	if s.recorder != nil {
		s.recorder.ObserveUpload(format, len(records))
	}

	return ds, nil
}

// LatestDataset returns the tenant's most recent upload.
func (s *Service) LatestDataset(ctx context.Context, tenantID string) (*domain.Dataset, error) {
	ds, err := s.repo.GetLatestDataset(ctx, tenantID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNoDataset
	}
	if err != nil {
		return nil, err
	}
	return ds, nil
}

// Analyze scores the tenant's latest dataset and caches the report.
func (s *Service) Analyze(ctx context.Context, tenantID, traceID string) (*domain.AnalysisReport, error) {
	ds, err := s.LatestDataset(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return s.AnalyzeDataset(ctx, ds, traceID)
}

// AnalyzeDataset scores a specific dataset and caches the report as the
// tenant's latest.
func (s *Service) AnalyzeDataset(ctx context.Context, ds *domain.Dataset, traceID string) (*domain.AnalysisReport, error) {
	return s.analyze(ctx, ds, traceID, false)
}

// AnalyzeUpload is AnalyzeDataset for deferred work: it returns
// ErrStaleDataset instead of replacing the report when ds is no longer the
// tenant's newest upload, both before scoring and before caching.
func (s *Service) AnalyzeUpload(ctx context.Context, ds *domain.Dataset, traceID string) (*domain.AnalysisReport, error) {
	return s.analyze(ctx, ds, traceID, true)
}

func (s *Service) isLatest(ctx context.Context, ds *domain.Dataset) error {
	id, err := s.repo.LatestDatasetID(ctx, ds.TenantID)
	if err != nil {
		return fmt.Errorf("failed to resolve latest dataset: %w", err)
	}
	if id != ds.ID {
		return ErrStaleDataset
	}
	return nil
}

func (s *Service) analyze(ctx context.Context, ds *domain.Dataset, traceID string, latestOnly bool) (*domain.AnalysisReport, error) {
	if ds == nil || len(ds.Records) == 0 {
		return nil, ErrNoDataset
	}
	if latestOnly {
		if err := s.isLatest(ctx, ds); err != nil {
			return nil, err
		}
	}

	ctx, span := tracer.Start(ctx, "workspace.AnalyzeDataset")
	defer span.End()
	span.SetAttributes(
		attribute.String("tenant.id", ds.TenantID),
		attribute.String("dataset.id", ds.ID),
		attribute.Int("dataset.count", len(ds.Records)),
	)

	start := time.Now()
	result := s.scorer.ScoreBatch(ds.Records)
	duration := time.Since(start)

	report := &domain.AnalysisReport{
		ID:             uuid.New().String(),
		TenantID:       ds.TenantID,
		DatasetID:      ds.ID,
		TotalProcessed: result.Total,
		TotalFlagged:   len(result.Flagged),
		Flagged:        result.Flagged,
		CreatedAt:      time.Now().UTC(),
		Metadata: domain.ReportMetadata{
			TraceID:       traceID,
			DurationMs:    duration.Milliseconds(),
			EngineVersion: EngineVersion,
		},
	}
	if s.RulesLoaded != nil {
		report.Metadata.RulesLoaded = s.RulesLoaded()
	}

	span.SetAttributes(attribute.Int("accounts.flagged", report.TotalFlagged))

	if latestOnly {
		if err := s.isLatest(ctx, ds); err != nil {
			span.SetAttributes(attribute.Bool("dataset.stale", errors.Is(err, ErrStaleDataset)))
			return nil, err
		}
	}

	if err := s.cache.SetReport(ctx, ds.TenantID, report, s.reportTTL); err != nil {
		span.SetStatus(codes.Error, "cache report")
		return nil, fmt.Errorf("failed to cache report: %w", err)
	}

	if s.recorder != nil {
		s.recorder.ObserveBatch(result, duration)
	}

	return report, nil
}

// Report returns the tenant's cached report, or nil before any analysis.
func (s *Service) Report(ctx context.Context, tenantID string) (*domain.AnalysisReport, error) {
	return s.cache.GetReport(ctx, tenantID)
}

// FindAccount looks up a record by case-insensitive username in the latest dataset.
func (s *Service) FindAccount(ctx context.Context, tenantID, username string) (domain.AccountRecord, error) {
	rec, err := s.repo.FindLatestRecord(ctx, tenantID, username)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Check scores one account on its own. The lookup never shares a dedup
// index with any batch, so it cannot report a duplicate picture.
func (s *Service) Check(ctx context.Context, tenantID, username string) (domain.AccountRecord, domain.AccountAnalysis, error) {
	rec, err := s.FindAccount(ctx, tenantID, username)
	if err != nil {
		return nil, domain.AccountAnalysis{}, err
	}

	analysis := s.scorer.ScoreOne(rec, nil)

	// Counter failures never fail the check
	_, _ = s.cache.IncrementCounter(ctx, tenantID, checksCounter, s.reportTTL)

	if s.recorder != nil {
		s.recorder.ObserveCheck(analysis)
	}

	return rec, analysis, nil
}

// Dashboard summarizes the tenant's latest analysis.
type Dashboard struct {
	TotalProcessed  int                      `json:"totalProcessed"`
	TotalFlagged    int                      `json:"totalFlagged"`
	RecentFlags     []domain.AccountAnalysis `json:"recentFlags"`
	ChecksPerformed int64                    `json:"checksPerformed"`

	RecentActivity []domain.AccountAnalysis `json:"-"`
}

// Dashboard builds the tenant's dashboard. Before any analysis all counts
// are zero and the lists are empty.
func (s *Service) Dashboard(ctx context.Context, tenantID string) (*Dashboard, error) {
	report, err := s.Report(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	checks, err := s.cache.GetCounter(ctx, tenantID, checksCounter)
	if err != nil {
		checks = 0
	}

	d := &Dashboard{
		RecentFlags:     report.RecentFlags(RecentFlagsSize),
		RecentActivity:  report.RecentFlags(RecentActivitySize),
		ChecksPerformed: checks,
	}
	if report != nil {
		d.TotalProcessed = report.TotalProcessed
		d.TotalFlagged = report.TotalFlagged
	}

	return d, nil
}
