// Package worker analyzes uploaded datasets asynchronously from the EventBus.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-finance/fakeguard/internal/bus"
	"github.com/opensource-finance/fakeguard/internal/domain"
	"github.com/opensource-finance/fakeguard/internal/workspace"
)

// Worker consumes dataset-uploaded events, scores the dataset and publishes
// the outcome.
type Worker struct {
	bus  domain.EventBus
	repo domain.Repository
	ws   *workspace.Service

	subscriptions []domain.Subscription
	mu            sync.Mutex
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs restricts processing to the listed tenants.
	// Empty subscribes to the shared pipeline partition.
	TenantIDs []string
}

// NewWorker creates a new async worker.
func NewWorker(eventBus domain.EventBus, repo domain.Repository, ws *workspace.Service) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:    eventBus,
		repo:   repo,
		ws:     ws,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins processing messages.
func (w *Worker) Start(cfg Config) error {
	if len(cfg.TenantIDs) == 0 {
		return w.subscribe(domain.PipelineTenantID)
	}

	for _, tenantID := range cfg.TenantIDs {
		if err := w.subscribe(tenantID); err != nil {
			slog.Error("failed to start worker for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
	}

	slog.Info("workers started",
		"tenant_count", len(cfg.TenantIDs),
	)

	return nil
}

func (w *Worker) subscribe(partition string) error {
	sub, err := w.bus.Subscribe(w.ctx, partition, domain.TopicDatasetUploaded, w.handleMessage)
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.subscriptions = append(w.subscriptions, sub)
	w.mu.Unlock()

	slog.Info("worker subscribed",
		"partition", partition,
		"topic", domain.TopicDatasetUploaded,
	)
	return nil
}

// handleMessage analyzes the dataset named by a DatasetUploadedEvent.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	start := time.Now()

	event, err := bus.DecodeEvent[domain.DatasetUploadedEvent](msg)
	if err != nil {
		slog.Error("failed to parse dataset event",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	tenantID := event.TenantID
	if tenantID == "" {
		tenantID = msg.TenantID
	}

	traceID := event.TraceID
	if traceID == "" {
		traceID = msg.Metadata[domain.MetadataTraceID]
	}
	if traceID == "" {
		traceID = msg.ID
	}

	slog.Debug("processing dataset",
		"dataset_id", event.DatasetID,
		"tenant_id", tenantID,
		"trace_id", traceID,
	)

	ds, err := w.repo.GetDataset(ctx, tenantID, event.DatasetID)
	if err != nil {
		slog.Error("failed to load dataset",
			"dataset_id", event.DatasetID,
			"tenant_id", tenantID,
			"error", err,
		)
		return err
	}

	report, err := w.ws.AnalyzeUpload(ctx, ds, traceID)
	if errors.Is(err, workspace.ErrStaleDataset) {
		slog.Info("skipping superseded dataset",
			"dataset_id", ds.ID,
			"tenant_id", tenantID,
		)
		return nil
	}
	if errors.Is(err, workspace.ErrNoDataset) {
		slog.Warn("skipping empty dataset",
			"dataset_id", ds.ID,
			"tenant_id", tenantID,
		)
		return nil
	}
	if err != nil {
		slog.Error("dataset analysis failed",
			"dataset_id", ds.ID,
			"error", err,
		)
		return err
	}

	completed := domain.AnalysisCompletedEvent{
		TenantID:       tenantID,
		DatasetID:      ds.ID,
		ReportID:       report.ID,
		TotalProcessed: report.TotalProcessed,
		TotalFlagged:   report.TotalFlagged,
	}
	if err := bus.PublishEvent(ctx, w.bus, tenantID, domain.TopicAnalysisCompleted, completed); err != nil {
		slog.Error("failed to publish analysis result",
			"report_id", report.ID,
			"error", err,
		)
	}

	for _, a := range report.Flagged {
		flagged := domain.AccountFlaggedEvent{
			TenantID:       tenantID,
			ReportID:       report.ID,
			Username:       a.Username,
			SuspicionScore: a.SuspicionScore,
			RiskLevel:      a.RiskLevel,
			Flags:          a.Flags,
		}
		if err := bus.PublishEvent(ctx, w.bus, tenantID, domain.TopicAccountFlagged, flagged); err != nil {
			slog.Error("failed to publish flagged account",
				"username", a.Username,
				"error", err,
			)
		}
	}

	slog.Info("dataset processed",
		"dataset_id", ds.ID,
		"tenant_id", tenantID,
		"total", report.TotalProcessed,
		"flagged", report.TotalFlagged,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() error {
	w.cancel()

	w.mu.Lock()
	defer w.mu.Unlock()

	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
