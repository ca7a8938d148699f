// Package dto provides Data Transfer Objects for API requests/responses.
package dto

import (
	"strings"
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
)

// --- ID Response ---

// IDResponse for create operations.
type IDResponse struct {
	ID string `json:"id"`
}

// NewIDResponse creates ID response.
func NewIDResponse(i id.ID) IDResponse {
	return IDResponse{ID: i.String()}
}

// --- Error Response ---

// ErrorResponse for error details.
type ErrorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// --- Query parsing ---

const dateLayout = "2006-01-02"

// ParseTime accepts RFC 3339 or a plain date (midnight UTC).
func ParseTime(field, value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(dateLayout, value); err == nil {
		return t, nil
	}
	return time.Time{}, apperror.NewValidation("invalid "+field+", expected RFC3339 or YYYY-MM-DD").
		WithDetail("field", field).
		WithDetail("value", value)
}

// ParseOptionalTime returns nil for an empty value.
func ParseOptionalTime(field, value string) (*time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	t, err := ParseTime(field, value)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ParseID parses a required identifier.
func ParseID(field, value string) (id.ID, error) {
	v, err := id.Parse(strings.TrimSpace(value))
	if err != nil {
		return id.ID{}, apperror.NewValidation("invalid "+field).
			WithDetail("field", field).
			WithDetail("value", value)
	}
	return v, nil
}

// ParseOptionalID returns nil for an empty value.
func ParseOptionalID(field, value string) (*id.ID, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	v, err := ParseID(field, value)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// ParseIDs parses a repeated query parameter.
func ParseIDs(field string, values []string) ([]id.ID, error) {
	ids, err := id.ParseList(values)
	if err != nil {
		return nil, apperror.NewValidation("invalid "+field).
			WithDetail("field", field).
			WithCause(err)
	}
	return ids, nil
}
