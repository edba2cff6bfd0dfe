package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrorTypeValidation          ErrorType = "validation"
	ErrorTypeNetwork             ErrorType = "network"
	ErrorTypeLocationUnavailable ErrorType = "location_unavailable"
	ErrorTypeCameraUnavailable   ErrorType = "camera_unavailable"
	ErrorTypeFrameNotReady       ErrorType = "frame_not_ready"
	ErrorTypeVerificationReject  ErrorType = "verification_rejected"
	ErrorTypeInvalidTransition   ErrorType = "invalid_transition"
	ErrorTypeNotFound            ErrorType = "not_found"
	ErrorTypeInternal            ErrorType = "internal"
)

// CameraReason distinguishes why a camera could not be acquired
type CameraReason string

const (
	CameraReasonPermission CameraReason = "permission"
	CameraReasonNotFound   CameraReason = "not-found"
	CameraReasonBusy       CameraReason = "busy"
	CameraReasonOther      CameraReason = "other"
)

// AppError represents a structured application error
type AppError struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	Details    string    `json:"details,omitempty"`
	StatusCode int       `json:"status_code"`
	Cause      error     `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// NewValidationError creates a new validation error
func NewValidationError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Cause:      cause,
	}
}

// NewNetworkError creates a new network error
func NewNetworkError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeNetwork,
		Message:    message,
		StatusCode: http.StatusBadGateway,
		Cause:      cause,
	}
}

// NewLocationUnavailableError reports a failed one-shot location read
// (denied, timed out, or no location capability configured).
func NewLocationUnavailableError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeLocationUnavailable,
		Message:    message,
		StatusCode: http.StatusServiceUnavailable,
		Cause:      cause,
	}
}

// NewCameraUnavailableError reports a failed camera acquisition with a
// reason-specific detail (permission, not-found, busy, other).
func NewCameraUnavailableError(reason CameraReason, message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeCameraUnavailable,
		Message:    message,
		Details:    string(reason),
		StatusCode: http.StatusServiceUnavailable,
		Cause:      cause,
	}
}

// NewFrameNotReadyError reports a capture attempted before the camera
// produced a usable frame. Transient; the workflow state does not change.
func NewFrameNotReadyError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeFrameNotReady,
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

// NewVerificationRejectedError reports a negative remote verdict. This is an
// expected outcome, not a system failure.
func NewVerificationRejectedError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeVerificationReject,
		Message:    message,
		StatusCode: http.StatusUnprocessableEntity,
		Cause:      cause,
	}
}

// NewInvalidTransitionError reports an operator action that is not legal in
// the workflow's current state.
func NewInvalidTransitionError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeInvalidTransition,
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Message:    message,
		StatusCode: http.StatusNotFound,
		Cause:      cause,
	}
}

// NewInternalError creates a new internal error
func NewInternalError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Cause:      cause,
	}
}

// IsType checks if the error is of a specific type
func IsType(err error, errorType ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == errorType
	}
	return false
}

// Reason extracts the camera reason from an error, if any
func Reason(err error) CameraReason {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Type == ErrorTypeCameraUnavailable {
		return CameraReason(appErr.Details)
	}
	return ""
}

// Message extracts the operator-facing message from an error, without the
// type prefix that Error() renders
func Message(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}

// GetStatusCode extracts the HTTP status code from an error
func GetStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}
	return http.StatusInternalServerError
}
