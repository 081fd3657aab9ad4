package worker

import (
	"context"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opensource-finance/fakeguard/internal/bus"
	"github.com/opensource-finance/fakeguard/internal/cache"
	"github.com/opensource-finance/fakeguard/internal/domain"
	"github.com/opensource-finance/fakeguard/internal/repository"
	"github.com/opensource-finance/fakeguard/internal/scoring"
	"github.com/opensource-finance/fakeguard/internal/workspace"
)

func newTestDeps(t *testing.T) (domain.Repository, *workspace.Service) {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "worker-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpPath) })

	repo, err := repository.New(domain.RepositoryConfig{Driver: "sqlite", SQLitePath: tmpPath})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	lru := cache.NewLRUCache(100)
	t.Cleanup(func() { lru.Close() })

	return repo, workspace.NewService(repo, lru, scoring.NewScorer(), time.Hour)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestWorker(t *testing.T) {
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()

	repo, ws := newTestDeps(t)
	ctx := context.Background()

	t.Run("StartAndStop", func(t *testing.T) {
		w := NewWorker(eventBus, repo, ws)

		if err := w.Start(Config{TenantIDs: []string{"tenant-001"}}); err != nil {
			t.Fatalf("Start failed: %v", err)
		}

		stats := w.GetStats()
		if stats.SubscriptionCount != 1 {
			t.Errorf("expected 1 subscription, got %d", stats.SubscriptionCount)
		}
		if stats.Topics[0] != domain.TopicDatasetUploaded {
			t.Errorf("expected topic %s, got %s", domain.TopicDatasetUploaded, stats.Topics[0])
		}

		if err := w.Stop(); err != nil {
			t.Errorf("Stop failed: %v", err)
		}

		if w.GetStats().SubscriptionCount != 0 {
			t.Error("expected 0 subscriptions after stop")
		}
	})

	t.Run("ProcessDataset", func(t *testing.T) {
		w := NewWorker(eventBus, repo, ws)
		if err := w.Start(Config{}); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		defer w.Stop()

		tenantID := "tenant-async"

		completed := make(chan domain.AnalysisCompletedEvent, 1)
		eventBus.Subscribe(ctx, tenantID, domain.TopicAnalysisCompleted, func(ctx context.Context, msg *domain.Message) error {
			event, err := bus.DecodeEvent[domain.AnalysisCompletedEvent](msg)
			if err != nil {
				return err
			}
			completed <- event
			return nil
		})

		var flagged atomic.Int32
		eventBus.Subscribe(ctx, tenantID, domain.TopicAccountFlagged, func(ctx context.Context, msg *domain.Message) error {
			flagged.Add(1)
			return nil
		})

		ds, err := ws.Upload(ctx, tenantID, "json", []domain.AccountRecord{
			{"username": "bot123", "posts": "0"},
			{"username": "user999999"},
			{"username": "jane", "bio": "b", "profile_picture": "p", "full_name": "Jane", "website": "w",
				"location": "x", "followers": "100", "following": "50", "email": "jane@gmail.com",
				"created_at": "2019-06-01"},
		})
		if err != nil {
			t.Fatalf("Upload failed: %v", err)
		}

		err = bus.PublishEvent(ctx, eventBus, domain.PipelineTenantID, domain.TopicDatasetUploaded, domain.DatasetUploadedEvent{
			TenantID:  tenantID,
			DatasetID: ds.ID,
			Count:     len(ds.Records),
			TraceID:   "trace-001",
		})
		if err != nil {
			t.Fatalf("Publish failed: %v", err)
		}

		select {
		case event := <-completed:
			if event.DatasetID != ds.ID {
				t.Errorf("expected dataset %s, got %s", ds.ID, event.DatasetID)
			}
			if event.TotalProcessed != 3 || event.TotalFlagged != 2 {
				t.Errorf("unexpected totals: %+v", event)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("timeout waiting for analysis completion")
		}

		waitFor(t, func() bool { return flagged.Load() == 2 })

		report, err := ws.Report(ctx, tenantID)
		if err != nil || report == nil {
			t.Fatalf("expected cached report, got %v, %v", report, err)
		}
		if report.Metadata.TraceID != "trace-001" {
			t.Errorf("expected trace-001, got %s", report.Metadata.TraceID)
		}
	})

	t.Run("UnknownDataset", func(t *testing.T) {
		w := NewWorker(eventBus, repo, ws)
		msg := &domain.Message{
			ID:       "msg-1",
			TenantID: domain.PipelineTenantID,
			Topic:    domain.TopicDatasetUploaded,
			Payload:  []byte(`{"tenantId":"tenant-x","datasetId":"missing"}`),
		}
		if err := w.handleMessage(ctx, msg); err == nil {
			t.Error("expected error for unknown dataset")
		}
	})

	t.Run("EmptyDatasetSkipped", func(t *testing.T) {
		w := NewWorker(eventBus, repo, ws)

		ds, err := ws.Upload(ctx, "tenant-empty", "csv", nil)
		if err != nil {
			t.Fatalf("Upload failed: %v", err)
		}

		msg := &domain.Message{
			ID:      "msg-2",
			Topic:   domain.TopicDatasetUploaded,
			Payload: []byte(`{"tenantId":"tenant-empty","datasetId":"` + ds.ID + `"}`),
		}
		if err := w.handleMessage(ctx, msg); err != nil {
			t.Errorf("empty dataset should be skipped, got %v", err)
		}
	})

	t.Run("SupersededDatasetSkipped", func(t *testing.T) {
		w := NewWorker(eventBus, repo, ws)
		tenantID := "tenant-superseded"

		var completed atomic.Int32
		sub, err := eventBus.Subscribe(ctx, tenantID, domain.TopicAnalysisCompleted, func(ctx context.Context, msg *domain.Message) error {
			completed.Add(1)
			return nil
		})
		if err != nil {
			t.Fatalf("Subscribe failed: %v", err)
		}
		defer sub.Unsubscribe()

		older, err := ws.Upload(ctx, tenantID, "json", []domain.AccountRecord{{"username": "bot1"}})
		if err != nil {
			t.Fatalf("Upload failed: %v", err)
		}
		time.Sleep(2 * time.Millisecond)
		if _, err := ws.Upload(ctx, tenantID, "json", []domain.AccountRecord{{"username": "jane"}}); err != nil {
			t.Fatalf("Upload failed: %v", err)
		}
		latest, err := ws.Analyze(ctx, tenantID, "")
		if err != nil {
			t.Fatalf("Analyze failed: %v", err)
		}

		msg := &domain.Message{
			ID:      "msg-4",
			Topic:   domain.TopicDatasetUploaded,
			Payload: []byte(`{"tenantId":"` + tenantID + `","datasetId":"` + older.ID + `"}`),
		}
		if err := w.handleMessage(ctx, msg); err != nil {
			t.Fatalf("superseded dataset should be skipped, got %v", err)
		}

		report, err := ws.Report(ctx, tenantID)
		if err != nil || report == nil {
			t.Fatalf("expected cached report, got %v, %v", report, err)
		}
		if report.ID != latest.ID {
			t.Errorf("report for %s replaced by older dataset %s", latest.DatasetID, report.DatasetID)
		}

		time.Sleep(20 * time.Millisecond)
		if completed.Load() != 0 {
			t.Errorf("expected no completion event, got %d", completed.Load())
		}
	})

	t.Run("MalformedPayload", func(t *testing.T) {
		w := NewWorker(eventBus, repo, ws)
		msg := &domain.Message{ID: "msg-3", Payload: []byte("not json")}
		if err := w.handleMessage(ctx, msg); err == nil {
			t.Error("expected parse error")
		}
	})

	t.Run("MultiTenant", func(t *testing.T) {
		w := NewWorker(eventBus, repo, ws)
		w.Start(Config{TenantIDs: []string{"tenant-a", "tenant-b"}})
		defer w.Stop()

		if stats := w.GetStats(); stats.SubscriptionCount != 2 {
			t.Errorf("expected 2 subscriptions for 2 tenants, got %d", stats.SubscriptionCount)
		}
	})
}
