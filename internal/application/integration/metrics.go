package integration

import (
	"context"
	"time"
)

// SyncMetrics receives sync, order, webhook and deduction outcomes.
// Implementations must be safe for concurrent use.
type SyncMetrics interface {
	RecordSyncJob(ctx context.Context, platform, status string, duration time.Duration)
	RecordOrderOutcome(ctx context.Context, platform, outcome string)
	RecordWebhookEvent(ctx context.Context, platform, result string)
	RecordDeduction(ctx context.Context, platform string, err error)
}

type noopMetrics struct{}

func (noopMetrics) RecordSyncJob(context.Context, string, string, time.Duration) {}
func (noopMetrics) RecordOrderOutcome(context.Context, string, string)           {}
func (noopMetrics) RecordWebhookEvent(context.Context, string, string)           {}
func (noopMetrics) RecordDeduction(context.Context, string, error)               {}
