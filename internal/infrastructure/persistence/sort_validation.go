package persistence

import (
	"strings"
)

// ValidateSortOrder normalizes a sort direction. Anything but ASC is DESC.
func ValidateSortOrder(orderDir string) string {
	if strings.ToUpper(strings.TrimSpace(orderDir)) == "ASC" {
		return "ASC"
	}
	return "DESC"
}

// ValidateSortField returns sortField when it is whitelisted, otherwise
// defaultField. Field names are matched case-sensitively.
func ValidateSortField(sortField string, allowedFields map[string]bool, defaultField string) string {
	trimmed := strings.TrimSpace(sortField)
	if trimmed == "" || !allowedFields[trimmed] {
		return defaultField
	}
	return trimmed
}

// orderClause builds a safe ORDER BY clause. id breaks ties so paging is stable.
func orderClause(sortField, sortOrder string, allowedFields map[string]bool, defaultField string) string {
	field := ValidateSortField(sortField, allowedFields, defaultField)
	return field + " " + ValidateSortOrder(sortOrder) + ", id " + ValidateSortOrder(sortOrder)
}

// SyncJobSortFields are the sync_jobs columns a listing may be ordered by
var SyncJobSortFields = map[string]bool{
	"started_at":  true,
	"finished_at": true,
	"status":      true,
	"platform":    true,
	"shop_id":     true,
	"fetched":     true,
	"errors":      true,
}

// WebhookEventSortFields are the webhook_events columns a listing may be ordered by
var WebhookEventSortFields = map[string]bool{
	"received_at":  true,
	"processed_at": true,
	"platform":     true,
	"event_type":   true,
	"result":       true,
}

// OrderSortFields are the orders columns a listing may be ordered by
var OrderSortFields = map[string]bool{
	"created_at":        true,
	"updated_at":        true,
	"order_created_at":  true,
	"order_updated_at":  true,
	"status":            true,
	"platform":          true,
	"shop_id":           true,
	"total":             true,
	"platform_order_id": true,
}
