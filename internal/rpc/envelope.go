package rpc

import (
	"errors"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/kursadbilgin/notification-platform/internal/domain"
)

// Request is the message sent to a service request queue.
type Request struct {
	Pattern string          `json:"pattern"`
	Data    json.RawMessage `json:"data"`
}

// Response is the envelope every service replies with.
type Response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message"`
	Error   string          `json:"error,omitempty"`
	Code    string          `json:"code,omitempty"`
	Meta    *PageMeta       `json:"meta,omitempty"`
}

type PageMeta struct {
	Total       int64 `json:"total"`
	Limit       int   `json:"limit"`
	Page        int   `json:"page"`
	TotalPages  int   `json:"total_pages"`
	HasNext     bool  `json:"has_next"`
	HasPrevious bool  `json:"has_previous"`
}

// Error codes understood across services.
const (
	CodeNotFound         = "NOT_FOUND"
	CodeUserNotFound     = "USER_NOT_FOUND"
	CodeTemplateNotFound = "TEMPLATE_NOT_FOUND"
	CodeValidation       = "VALIDATION_ERROR"
	CodeInvalidUUID      = "INVALID_UUID"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeConflict         = "CONFLICT"
	CodeInternal         = "INTERNAL_ERROR"
)

// RemoteError is a business failure reported by a downstream service.
type RemoteError struct {
	Pattern string
	Code    string
	Message string
}

func (e *RemoteError) Error() string {
	if e == nil {
		return "<nil>"
	}

	parts := make([]string, 0, 3)
	parts = append(parts, e.Pattern)
	if e.Code != "" {
		parts = append(parts, e.Code)
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		parts = append(parts, msg)
	}
	return strings.Join(parts, ": ")
}

// Unwrap maps the remote code onto the domain taxonomy.
func (e *RemoteError) Unwrap() error {
	if e == nil {
		return nil
	}

	switch strings.ToUpper(e.Code) {
	case CodeNotFound, CodeUserNotFound, CodeTemplateNotFound:
		return domain.ErrNotFound
	case CodeValidation, CodeInvalidUUID:
		return domain.ErrValidation
	case CodeUnauthorized:
		return domain.ErrUnauthorized
	case CodeConflict:
		return domain.ErrConflict
	}
	return nil
}

// Err returns a RemoteError when the response reports a failure.
func (r *Response) Err(pattern string) error {
	if r == nil {
		return &RemoteError{Pattern: pattern, Message: "empty response"}
	}
	if r.Success {
		return nil
	}

	msg := r.Message
	if msg == "" {
		msg = r.Error
	}
	code := r.Code
	if code == "" {
		code = r.Error
	}
	return &RemoteError{Pattern: pattern, Code: code, Message: msg}
}

// Decode unmarshals the response data into out.
func (r *Response) Decode(out any) error {
	if r == nil || len(r.Data) == 0 || string(r.Data) == "null" {
		return fmt.Errorf("%w: response has no data", domain.ErrNotFound)
	}
	if err := json.Unmarshal(r.Data, out); err != nil {
		return fmt.Errorf("failed to decode response data: %w", err)
	}
	return nil
}

// OK builds a successful response carrying data.
func OK(data any, message string) (*Response, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response data: %w", err)
	}
	return &Response{Success: true, Data: raw, Message: message}, nil
}

// ErrorResponse converts a handler error into a failure envelope.
func ErrorResponse(err error) *Response {
	code := CodeInternal
	switch {
	case errors.Is(err, domain.ErrNotFound):
		code = CodeNotFound
	case errors.Is(err, domain.ErrValidation):
		code = CodeValidation
	case errors.Is(err, domain.ErrUnauthorized):
		code = CodeUnauthorized
	case errors.Is(err, domain.ErrConflict):
		code = CodeConflict
	}

	return &Response{
		Success: false,
		Message: err.Error(),
		Error:   code,
		Code:    code,
	}
}
