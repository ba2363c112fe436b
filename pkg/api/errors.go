package api

import (
	"errors"
	"fmt"
)

// ErrorType represents the category of an API error.
type ErrorType string

const (
	ErrorTypeServerError     ErrorType = "server_error"
	ErrorTypeInvalidRequest  ErrorType = "invalid_request"
	ErrorTypeValidation      ErrorType = "validation_error"
	ErrorTypeConflict        ErrorType = "conflict"
	ErrorTypeUnauthorized    ErrorType = "unauthorized"
	ErrorTypeNotFound        ErrorType = "not_found"
	ErrorTypeExpired         ErrorType = "expired"
	ErrorTypeTooManyRequests ErrorType = "too_many_requests"
)

// Error codes refining ErrorTypeExpired and ErrorTypeConflict.
const (
	CodeInviteExpired   = "invite_expired"
	CodeInviteUsed      = "invite_used"
	CodeEmailTaken      = "email_taken"
	CodeIdentifierTaken = "identifier_taken"
)

// APIError represents a structured API error with type, code, param, and message.
type APIError struct {
	Type    ErrorType `json:"type"`
	Code    string    `json:"code,omitempty"`
	Param   string    `json:"param,omitempty"`
	Message string    `json:"message"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Param != "" {
		return fmt.Sprintf("%s: %s (param: %s)", e.Type, e.Message, e.Param)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// ErrorResponse wraps an APIError for JSON serialization as the top-level error response.
type ErrorResponse struct {
	Error *APIError `json:"error"`
}

// NewInvalidRequestError creates an APIError for requests the transport
// cannot decode.
func NewInvalidRequestError(param, message string) *APIError {
	return &APIError{
		Type:    ErrorTypeInvalidRequest,
		Param:   param,
		Message: message,
	}
}

// NewValidationError creates an APIError for well-formed requests whose
// fields break a validation rule.
func NewValidationError(param, message string) *APIError {
	return &APIError{
		Type:    ErrorTypeValidation,
		Param:   param,
		Message: message,
	}
}

// NewConflictError creates an APIError for a uniqueness violation.
func NewConflictError(code, param, message string) *APIError {
	return &APIError{
		Type:    ErrorTypeConflict,
		Code:    code,
		Param:   param,
		Message: message,
	}
}

// NewUnauthorizedError creates the uniform authentication failure. The
// message never says which check failed.
func NewUnauthorizedError() *APIError {
	return &APIError{
		Type:    ErrorTypeUnauthorized,
		Message: "invalid credentials",
	}
}

// NewInviteNotFoundError creates the error for an unknown invite token.
func NewInviteNotFoundError() *APIError {
	return &APIError{
		Type:    ErrorTypeNotFound,
		Param:   "token",
		Message: "invite token is invalid",
	}
}

// NewInviteExpiredError creates the error for an invite that can no longer be
// redeemed. code is CodeInviteExpired or CodeInviteUsed.
func NewInviteExpiredError(code string) *APIError {
	reason := "has expired"
	if code == CodeInviteUsed {
		reason = "has already been used"
	}
	return &APIError{
		Type:    ErrorTypeExpired,
		Code:    code,
		Param:   "token",
		Message: "invite token " + reason,
	}
}

// NewServerError creates an APIError for internal server errors.
func NewServerError(message string) *APIError {
	return &APIError{
		Type:    ErrorTypeServerError,
		Message: message,
	}
}

// NewTooManyRequestsError creates an APIError for rate limiting.
func NewTooManyRequestsError(message string) *APIError {
	return &APIError{
		Type:    ErrorTypeTooManyRequests,
		Message: message,
	}
}

// IsErrorType reports whether err is an *APIError of type t.
func IsErrorType(err error, t ErrorType) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Type == t
}
