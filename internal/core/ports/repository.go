// Package ports provides domain-centric interfaces for external dependencies.
// These interfaces follow the ports and adapters (hexagonal) architecture pattern,
// allowing the pipeline to remain independent of infrastructure concerns.
package ports

import (
	"context"
	"time"

	"github.com/lueurxax/supplier-catalog/internal/core/domain"
)

// SettingsReader provides read access to application settings.
type SettingsReader interface {
	GetSetting(ctx context.Context, key string, target interface{}) error
}

// SettingsWriter provides write access to application settings.
type SettingsWriter interface {
	SaveSetting(ctx context.Context, key string, value interface{}) error
	DeleteSetting(ctx context.Context, key string) error
}

// SettingsStore combines settings read and write operations.
type SettingsStore interface {
	SettingsReader
	SettingsWriter
}

// PageQuery selects one offset page of a run's message pool.
//
// The pool is the unprocessed messages plus the messages this run has already
// consumed, so offsets stay stable while the run marks messages processed.
type PageQuery struct {
	RunID  string
	Source domain.SourceFamily
	ChatID string
	Since  time.Time
	Offset int
	Limit  int
}

// ContinuationQuery selects unprocessed messages that continue a sender's
// sequence after a page boundary.
type ContinuationQuery struct {
	Source   domain.SourceFamily
	ChatID   string
	SenderID string
	After    time.Time
	AfterID  string
	Since    time.Time
	Limit    int
}

// MessageStore is the durable store of inbound chat messages.
type MessageStore interface {
	// SaveMessage inserts a message; it is a no-op returning false if the id exists.
	SaveMessage(ctx context.Context, msg domain.ChatMessage) (bool, error)
	FetchPage(ctx context.Context, q PageQuery) ([]domain.ChatMessage, error)
	FetchContinuation(ctx context.Context, q ContinuationQuery) ([]domain.ChatMessage, error)
	// MarkSkipped consumes ids without a group, only where processed=false.
	MarkSkipped(ctx context.Context, runID string, ids []string) (int64, error)
	AnyProcessed(ctx context.Context, ids []string) (bool, error)
	CountBacklog(ctx context.Context, source domain.SourceFamily, since time.Time) (int, error)
}

// ProductStore persists products and their images.
type ProductStore interface {
	// CreateDraft inserts an inactive product and claims its source messages in
	// one transaction. It fails with ErrAlreadyConsumed if any message is processed.
	CreateDraft(ctx context.Context, p domain.Product, runID string) error
	UpdateProduct(ctx context.Context, id string, patch domain.ProductPatch) error
	AddImage(ctx context.Context, img domain.ProductImage) (domain.ProductImage, error)
	UpdateImageColor(ctx context.Context, imageID, color string) error
	// ActivateProduct fails with ErrDuplicateProduct if an active product has the same fingerprint.
	ActivateProduct(ctx context.Context, id string) error
	// DeleteDraft deletes the product and releases its source messages in one transaction.
	DeleteDraft(ctx context.Context, id string, messageIDs []string) error
	FingerprintExists(ctx context.Context, fingerprint string) (bool, error)
	// DeleteDuplicateProducts keeps the earliest product per fingerprint and
	// returns the ids of the deleted ones.
	DeleteDuplicateProducts(ctx context.Context) ([]string, error)
}

// CategoryStore lists catalog categories.
type CategoryStore interface {
	ListActiveCategories(ctx context.Context) ([]domain.Category, error)
}

// AdmitFunc inspects the running runs inside the admission transaction and
// returns an error to reject the new run.
type AdmitFunc func(running []domain.RunRecord) error

// RunStore persists run records.
type RunStore interface {
	// ReclaimStuckRuns finalizes running runs started before olderThan as failed.
	ReclaimStuckRuns(ctx context.Context, olderThan time.Time, reason string) ([]domain.RunRecord, error)
	// StartRunExclusive atomically checks admission and inserts rec as running.
	StartRunExclusive(ctx context.Context, rec domain.RunRecord, admit AdmitFunc) error
	UpdateRunCounters(ctx context.Context, id string, counters domain.RunCounters) error
	// FinishRun finalizes a running run; ErrRunNotRunning if it is no longer running.
	FinishRun(ctx context.Context, id string, status domain.RunStatus, counters domain.RunCounters, errMsg string) error
	ListRunningRuns(ctx context.Context) ([]domain.RunRecord, error)
	ListRecentRuns(ctx context.Context, limit int) ([]domain.RunRecord, error)
}

// Enricher is the LLM-backed enrichment boundary. Every response is untrusted.
type Enricher interface {
	GroupMessages(ctx context.Context, msgs []domain.ChatMessage) ([]domain.ExternalGroup, error)
	AnalyzeText(ctx context.Context, req domain.TextAnalysisRequest) (domain.TextAttributes, error)
	AnalyzeImage(ctx context.Context, req domain.ImageAnalysisRequest) (domain.ImageAttributes, error)
}

// ObjectStore stores media blobs behind public URLs.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Get(ctx context.Context, url string) ([]byte, error)
	Delete(ctx context.Context, url string) error
}

// MediaFetcher downloads the payload behind a message media reference.
type MediaFetcher interface {
	Fetch(ctx context.Context, ref string) (data []byte, contentType string, err error)
}
