package integration

import (
	"time"

	"github.com/google/uuid"
)

// WebhookResult is the outcome recorded on a processed webhook event
type WebhookResult string

const (
	WebhookResultNoOrderID WebhookResult = "NO_ORDER_ID"
	WebhookResultCreated   WebhookResult = "CREATED"
	WebhookResultUpdated   WebhookResult = "UPDATED"
	WebhookResultSkipped   WebhookResult = "SKIPPED"
	WebhookResultFailed    WebhookResult = "FAILED"
)

// AllWebhookResults returns every result value
func AllWebhookResults() []WebhookResult {
	return []WebhookResult{
		WebhookResultNoOrderID, WebhookResultCreated, WebhookResultUpdated,
		WebhookResultSkipped, WebhookResultFailed,
	}
}

// String returns the string representation of WebhookResult
func (r WebhookResult) String() string {
	return string(r)
}

// WebhookEvent is an inbound marketplace notification. Events are persisted by
// the receiver before any processing and are never deleted.
type WebhookEvent struct {
	ID           uuid.UUID
	Platform     Platform
	EventType    string
	Payload      []byte
	Headers      map[string]string
	Signature    string
	Timestamp    string
	ReceivedAt   time.Time
	Processed    bool
	ProcessedAt  *time.Time
	Result       WebhookResult
	ErrorMessage string
}

// NewWebhookEvent creates an unprocessed event
func NewWebhookEvent(platform Platform, payload []byte, headers map[string]string, signature, timestamp string, now time.Time) *WebhookEvent {
	return &WebhookEvent{
		ID:         uuid.New(),
		Platform:   platform,
		Payload:    payload,
		Headers:    headers,
		Signature:  signature,
		Timestamp:  timestamp,
		ReceivedAt: now,
	}
}

// MarkProcessed records the outcome on the in-memory event
func (e *WebhookEvent) MarkProcessed(result WebhookResult, errMsg string, now time.Time) {
	e.Processed = true
	e.ProcessedAt = &now
	e.Result = result
	e.ErrorMessage = errMsg
}

// WebhookEventFilter filters webhook event listings
type WebhookEventFilter struct {
	Platform  Platform
	Processed *bool
	Result    WebhookResult
	Page      int
	PageSize  int
	OrderBy   string
	OrderDir  string
}

// Normalize applies paging defaults
func (f *WebhookEventFilter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 || f.PageSize > 200 {
		f.PageSize = 20
	}
}

// WebhookEventCounts summarizes the event log
type WebhookEventCounts struct {
	Total       int64
	Unprocessed int64
	ByResult    map[WebhookResult]int64
}
