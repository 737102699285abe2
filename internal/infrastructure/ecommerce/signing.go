package ecommerce

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

// hmacSHA256Hex returns the lowercase hex HMAC-SHA256 of message
func hmacSHA256Hex(secret, message string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(message))
	return hex.EncodeToString(h.Sum(nil))
}

// sortedConcat concatenates key+value pairs ordered by key, skipping excluded keys
func sortedConcat(params url.Values, exclude ...string) string {
	skip := make(map[string]bool, len(exclude))
	for _, k := range exclude {
		skip[k] = true
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		if !skip[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		sb.WriteString(k)
		sb.WriteString(params.Get(k))
	}
	return sb.String()
}

// verifyHexHMAC compares a received hex signature against HMAC-SHA256(secret, message)
// in constant time. Hex case is ignored.
func verifyHexHMAC(secret, message, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	received, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return false
	}
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(message))
	return hmac.Equal(received, h.Sum(nil))
}

// constantTimeEqual compares two shared tokens
func constantTimeEqual(expected, received string) bool {
	if expected == "" || received == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(received)) == 1
}
