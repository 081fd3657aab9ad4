package domain

import "context"

// EventBus carries pipeline events between the API and the analysis workers.
// Every message belongs to a tenant partition; subscribers only see the
// partition they asked for.
type EventBus interface {
	Publish(ctx context.Context, tenantID string, topic string, payload []byte) error

	// Subscribe delivers messages published to (tenantID, topic) to handler
	// until the subscription is cancelled or the bus is closed. On the
	// PipelineTenantID partition each message reaches exactly one subscriber.
	Subscribe(ctx context.Context, tenantID string, topic string, handler MessageHandler) (Subscription, error)

	Ping(ctx context.Context) error
	Close() error
}

// MessageHandler processes incoming messages.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message metadata keys.
const MetadataTraceID = "trace_id"

// Message is the envelope around an encoded event.
type Message struct {
	ID        string            `json:"id"`
	TenantID  string            `json:"tenantId"`
	Topic     string            `json:"topic"`
	Payload   []byte            `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	Timestamp int64             `json:"timestamp"`
}

type Subscription interface {
	Unsubscribe() error
	Topic() string
}

// EventBusConfig selects and tunes the event bus.
type EventBusConfig struct {
	Type string // channel or nats

	// ChannelBufferSize is the per-subscriber queue length. Messages beyond
	// it are dropped.
	ChannelBufferSize int

	NATSUrl           string
	NATSToken         string
	NATSMaxReconnects int
	NATSReconnectWait int // seconds
}

// Standard topic names for the analysis pipeline.
const (
	TopicDatasetUploaded   = "fakeguard.dataset.uploaded"
	TopicAnalysisCompleted = "fakeguard.analysis.completed"
	TopicAccountFlagged    = "fakeguard.account.flagged"
)

// PipelineTenantID partitions pipeline events that any worker may pick up.
// The real tenant travels in the event payload.
const PipelineTenantID = "_pipeline"

// DatasetUploadedEvent is published after a dataset has been stored.
type DatasetUploadedEvent struct {
	TenantID  string `json:"tenantId"`
	DatasetID string `json:"datasetId"`
	Count     int    `json:"count"`
	TraceID   string `json:"traceId,omitempty"`
}

// AnalysisCompletedEvent is published after a dataset has been scored.
type AnalysisCompletedEvent struct {
	TenantID       string `json:"tenantId"`
	DatasetID      string `json:"datasetId"`
	ReportID       string `json:"reportId"`
	TotalProcessed int    `json:"totalProcessed"`
	TotalFlagged   int    `json:"totalFlagged"`
}

// AccountFlaggedEvent is published once per flagged account in an analysis.
type AccountFlaggedEvent struct {
	TenantID       string    `json:"tenantId"`
	ReportID       string    `json:"reportId"`
	Username       string    `json:"username"`
	SuspicionScore int       `json:"suspicionScore"`
	RiskLevel      RiskLevel `json:"riskLevel"`
	Flags          []string  `json:"flags"`
}
