package integration

import (
	"errors"
	"fmt"
)

// ---------------------------------------------------------------------------
// Integration Errors
// ---------------------------------------------------------------------------

var (
	// Platform errors
	ErrPlatformNotSupported     = errors.New("integration: platform not supported")
	ErrPlatformNotConfigured    = errors.New("integration: platform not configured")
	ErrPlatformNotEnabled       = errors.New("integration: platform not enabled")
	ErrPlatformUnavailable      = errors.New("integration: platform temporarily unavailable")
	ErrPlatformRequestFailed    = errors.New("integration: platform request failed")
	ErrPlatformInvalidResponse  = errors.New("integration: invalid platform response")
	ErrPlatformAuthFailed       = errors.New("integration: platform authentication failed")
	ErrPlatformRateLimited      = errors.New("integration: platform rate limited")
	ErrPlatformInvalidSignature = errors.New("integration: invalid platform signature")

	// Order errors
	ErrOrderNotFound        = errors.New("integration: order not found")
	ErrOrderMissingID       = errors.New("integration: order missing platform order id")
	ErrOrderInvalidStatus   = errors.New("integration: invalid canonical order status")
	ErrOrderInvalidQuantity = errors.New("integration: invalid order item quantity")
	ErrOrderMapping         = errors.New("integration: order mapping failed")

	// Config errors
	ErrConfigNotFound     = errors.New("integration: adapter config not found")
	ErrConfigAmbiguous    = errors.New("integration: more than one enabled config for platform")
	ErrConfigInvalidShop  = errors.New("integration: adapter config missing shop id")
	ErrConfigInvalidCreds = errors.New("integration: adapter config missing credentials")

	// Sync job errors
	ErrSyncJobNotFound    = errors.New("integration: sync job not found")
	ErrSyncAlreadyRunning = errors.New("integration: sync already running for config")

	// Webhook errors
	ErrWebhookEventNotFound = errors.New("integration: webhook event not found")
	ErrWebhookPayload       = errors.New("integration: invalid webhook payload")
)

// ---------------------------------------------------------------------------
// AuthError
// ---------------------------------------------------------------------------

// AuthError is returned when the platform rejects our credentials or a token
// refresh fails. The sync engine aborts the job on this error.
type AuthError struct {
	Platform Platform
	ShopID   string
	Reason   string
	Err      error
}

// NewAuthError creates a new AuthError
func NewAuthError(platform Platform, shopID, reason string, err error) *AuthError {
	return &AuthError{Platform: platform, ShopID: shopID, Reason: reason, Err: err}
}

// Error implements error
func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("integration: %s shop %s token invalid: %s: %v", e.Platform, e.ShopID, e.Reason, e.Err)
	}
	return fmt.Sprintf("integration: %s shop %s token invalid: %s", e.Platform, e.ShopID, e.Reason)
}

// Unwrap exposes ErrPlatformAuthFailed and the cause to errors.Is
func (e *AuthError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrPlatformAuthFailed, e.Err}
	}
	return []error{ErrPlatformAuthFailed}
}

// IsAuthError reports whether err carries an *AuthError
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// ---------------------------------------------------------------------------
// PlatformAPIError
// ---------------------------------------------------------------------------

// PlatformAPIError describes a non-2xx HTTP response or a non-zero business
// code returned by a marketplace API
type PlatformAPIError struct {
	Platform   Platform
	Endpoint   string
	HTTPStatus int
	Code       string
	Message    string
}

// Error implements error
func (e *PlatformAPIError) Error() string {
	return fmt.Sprintf("integration: %s %s failed (http %d, code %q): %s",
		e.Platform, e.Endpoint, e.HTTPStatus, e.Code, e.Message)
}

// Unwrap exposes ErrPlatformRequestFailed, plus ErrPlatformRateLimited on 429
func (e *PlatformAPIError) Unwrap() []error {
	if e.HTTPStatus == 429 {
		return []error{ErrPlatformRequestFailed, ErrPlatformRateLimited}
	}
	return []error{ErrPlatformRequestFailed}
}

// ---------------------------------------------------------------------------
// MappingError
// ---------------------------------------------------------------------------

// MappingError is returned when a raw platform payload has an unexpected shape
type MappingError struct {
	Platform        Platform
	PlatformOrderID string
	Err             error
}

// Error implements error
func (e *MappingError) Error() string {
	return fmt.Sprintf("integration: cannot map %s order %q: %v", e.Platform, e.PlatformOrderID, e.Err)
}

// Unwrap exposes ErrOrderMapping and the decode error
func (e *MappingError) Unwrap() []error {
	return []error{ErrOrderMapping, e.Err}
}
