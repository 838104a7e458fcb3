package http

import (
	"fmt"
	"net/http"
)

// Error codes returned in AppError.Code.
const (
	CodeBadRequest     = "ERR_BAD_REQUEST"
	CodeNotFound       = "ERR_NOT_FOUND"
	CodeConflict       = "ERR_CONFLICT"
	CodeDuplicateRound = "ERR_DUPLICATE_ROUND"
	CodeNoPrediction   = "ERR_NO_PREDICTION"
	CodeRoundMismatch  = "ERR_ROUND_MISMATCH"
	CodeRateLimited    = "ERR_RATE_LIMITED"
	CodeInternal       = "ERR_INTERNAL"
)

// AppError represents application-level error with HTTP status.
type AppError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Field   string                 `json:"field,omitempty"`
	Params  map[string]interface{} `json:"params,omitempty"`
	Status  int                    `json:"-"`
	Err     error                  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

func newAppError(code string, status int, format string, a ...interface{}) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, a...), Status: status}
}

// WithParam sets a single error param.
func (e *AppError) WithParam(key string, value interface{}) *AppError {
	if e.Params == nil {
		e.Params = make(map[string]interface{})
	}
	e.Params[key] = value
	return e
}

// WithCode replaces the generic code with a more specific one.
func (e *AppError) WithCode(code string) *AppError {
	e.Code = code
	return e
}

// WithError wraps an underlying error. It is logged, never rendered.
func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

func NotFoundErrorf(format string, a ...interface{}) *AppError {
	return newAppError(CodeNotFound, http.StatusNotFound, format, a...)
}

func BadRequestErrorf(format string, a ...interface{}) *AppError {
	return newAppError(CodeBadRequest, http.StatusBadRequest, format, a...)
}

func ConflictErrorf(format string, a ...interface{}) *AppError {
	return newAppError(CodeConflict, http.StatusConflict, format, a...)
}

// DuplicateRoundError is returned when a submitted round id is already in the ledger.
func DuplicateRoundError(roundID string) *AppError {
	return ConflictErrorf("round %s already recorded", roundID).
		WithCode(CodeDuplicateRound).
		WithParam("round_id", roundID)
}

// TooManyRequestsError creates a 429 error. The response carries Retry-After.
func TooManyRequestsError() *AppError {
	return newAppError(CodeRateLimited, http.StatusTooManyRequests, "rate limit exceeded")
}

func InternalErrorf(format string, a ...interface{}) *AppError {
	return newAppError(CodeInternal, http.StatusInternalServerError, format, a...)
}
