// Copyright 2025 Arogya Assistant Project
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package resilience

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// StatusClientClosedRequest is reported when the caller cancelled the request
const StatusClientClosedRequest = 499

// ErrorResponse represents the standard error response format across all APIs
type ErrorResponse struct {
	Error     string    `json:"error"`
	Code      string    `json:"code,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorKind classifies failures of the generation service and the analysis pipeline
type ErrorKind string

const (
	// KindNetwork covers transport failures, timeouts and 5xx responses
	KindNetwork ErrorKind = "NETWORK_ERROR"
	// KindRateLimited means the provider rejected the call with a quota/rate error
	KindRateLimited ErrorKind = "RATE_LIMITED"
	// KindSafetyBlocked means the provider refused the prompt or the answer on safety grounds
	KindSafetyBlocked ErrorKind = "SAFETY_BLOCKED"
	// KindInvalidResponseFormat means the provider answered with nothing usable
	KindInvalidResponseFormat ErrorKind = "INVALID_RESPONSE_FORMAT"
	// KindCancelled means the caller cancelled the request; it is never retried
	KindCancelled ErrorKind = "CANCELLED"
	// KindInvalidInput means the request was rejected before reaching the provider
	KindInvalidInput ErrorKind = "INVALID_INPUT"
	// KindUnknown is everything else
	KindUnknown ErrorKind = "UNKNOWN"
)

// StatusCode returns the HTTP status used when the kind is surfaced to UI callers
func (k ErrorKind) StatusCode() int {
	switch k {
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindSafetyBlocked:
		return http.StatusUnprocessableEntity
	case KindCancelled:
		return StatusClientClosedRequest
	case KindNetwork, KindInvalidResponseFormat:
		return http.StatusBadGateway
	case KindInvalidInput:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// AnalysisError represents an error with additional context for proper handling
type AnalysisError struct {
	Kind       ErrorKind
	Message    string
	StatusCode int
	Internal   error
	Context    map[string]interface{}
}

// Error implements the error interface
func (e *AnalysisError) Error() string {
	if e.Internal != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Internal)
	}
	return e.Message
}

// Unwrap returns the underlying error
func (e *AnalysisError) Unwrap() error {
	return e.Internal
}

// ToErrorResponse converts an AnalysisError to an ErrorResponse
func (e *AnalysisError) ToErrorResponse(requestID string) ErrorResponse {
	return ErrorResponse{
		Error:     e.Message,
		Code:      string(e.Kind),
		RequestID: requestID,
		Timestamp: time.Now(),
	}
}

// NewAnalysisError creates a new AnalysisError with the status code derived from kind
func NewAnalysisError(kind ErrorKind, message string, internal error) *AnalysisError {
	return &AnalysisError{
		Kind:       kind,
		Message:    message,
		StatusCode: kind.StatusCode(),
		Internal:   internal,
		Context:    make(map[string]interface{}),
	}
}

// NewNetworkError creates a new network error
func NewNetworkError(message string, internal error) *AnalysisError {
	return NewAnalysisError(KindNetwork, message, internal)
}

// NewRateLimitedError creates a new rate limited error
func NewRateLimitedError(message string, internal error) *AnalysisError {
	return NewAnalysisError(KindRateLimited, message, internal)
}

// NewSafetyBlockedError creates a new safety blocked error
func NewSafetyBlockedError(message string, internal error) *AnalysisError {
	return NewAnalysisError(KindSafetyBlocked, message, internal)
}

// NewInvalidResponseFormatError creates a new invalid response format error
func NewInvalidResponseFormatError(message string, internal error) *AnalysisError {
	return NewAnalysisError(KindInvalidResponseFormat, message, internal)
}

// NewCancelledError creates a new cancellation error
func NewCancelledError(message string, internal error) *AnalysisError {
	return NewAnalysisError(KindCancelled, message, internal)
}

// NewInvalidInputError creates a new invalid input error
func NewInvalidInputError(message string, internal error) *AnalysisError {
	return NewAnalysisError(KindInvalidInput, message, internal)
}

// NewUnknownError creates a new unknown error
func NewUnknownError(message string, internal error) *AnalysisError {
	return NewAnalysisError(KindUnknown, message, internal)
}

// AsAnalysisError checks if an error is, or wraps, an AnalysisError
func AsAnalysisError(err error, target **AnalysisError) bool {
	if err == nil {
		return false
	}
	return errors.As(err, target)
}

// Classify returns the kind of err. Errors that are not AnalysisErrors are
// classified by their cause.
func Classify(err error) ErrorKind {
	if err == nil {
		return ""
	}

	var analysisErr *AnalysisError
	if AsAnalysisError(err, &analysisErr) {
		return analysisErr.Kind
	}

	switch {
	case errors.Is(err, context.Canceled):
		return KindCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return KindNetwork
	case errors.Is(err, ErrBreakerOpen):
		return KindNetwork
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindNetwork
	}

	return KindUnknown
}

// IsCancelled reports whether err is a cancellation
func IsCancelled(err error) bool {
	return Classify(err) == KindCancelled
}

// IsTransient reports whether err is worth retrying under a classifying policy
func IsTransient(err error) bool {
	switch Classify(err) {
	case KindNetwork, KindRateLimited, KindUnknown:
		return true
	default:
		return false
	}
}

// ErrorHandler provides utilities for handling and formatting errors
type ErrorHandler struct {
	logger *zap.Logger
}

// NewErrorHandler creates a new error handler with the given logger
func NewErrorHandler(logger *zap.Logger) *ErrorHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ErrorHandler{logger: logger}
}

// WrapError wraps an error with user-friendly message and proper error kind
func (eh *ErrorHandler) WrapError(err error, operation string) *AnalysisError {
	if err == nil {
		return nil
	}

	var analysisErr *AnalysisError
	if AsAnalysisError(err, &analysisErr) {
		return analysisErr
	}

	kind := Classify(err)
	userMessage := UserMessage(kind, operation)

	if eh != nil {
		eh.logger.Error("Error occurred during operation",
			zap.String("operation", operation),
			zap.Error(err),
			zap.String("user_message", userMessage),
			zap.String("error_kind", string(kind)))
	}

	return NewAnalysisError(kind, userMessage, err)
}

// UserMessage converts an error kind to a message suitable for end users
func UserMessage(kind ErrorKind, operation string) string {
	switch kind {
	case KindNetwork:
		return "Unable to reach the analysis service. Please try again later."
	case KindRateLimited:
		return "Too many requests. Please wait a moment and try again."
	case KindSafetyBlocked:
		return "The request was blocked by the service's safety filters. Please rephrase and try again."
	case KindInvalidResponseFormat:
		return "The analysis service returned an unexpected response."
	case KindCancelled:
		return "The request was cancelled."
	case KindInvalidInput:
		return "The request is invalid. Please check your input and try again."
	default:
		return fmt.Sprintf("An error occurred while %s. Please try again.", operation)
	}
}

// WriteErrorResponse writes an error response to an HTTP response writer
func (eh *ErrorHandler) WriteErrorResponse(w http.ResponseWriter, err error, requestID string) {
	var analysisErr *AnalysisError
	if !AsAnalysisError(err, &analysisErr) {
		analysisErr = eh.WrapError(err, "processing request")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(analysisErr.StatusCode)

	response := analysisErr.ToErrorResponse(requestID)
	if err := json.NewEncoder(w).Encode(response); err != nil && eh != nil {
		eh.logger.Error("Failed to encode error response", zap.Error(err))
	}
}

// LogError logs an error with appropriate context
func (eh *ErrorHandler) LogError(err error, operation string, fields ...zap.Field) {
	if err == nil {
		return
	}

	if eh == nil || eh.logger == nil {
		return
	}

	logFields := []zap.Field{
		zap.String("operation", operation),
		zap.Error(err),
		zap.String("error_kind", string(Classify(err))),
	}
	logFields = append(logFields, fields...)

	eh.logger.Error("Operation failed", logFields...)
}
