package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// BadRequestWithDetails creates a 400 error with details
func BadRequestWithDetails(code string, message string, details any) *AppError {
	return NewBadRequestError(code, message).WithDetails(details)
}

// FromError converts any error into an AppError. Domain sentinels map to
// their HTTP status; anything unknown becomes a 500.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}

	var mapped *AppError
	var adapterErr *AdapterError
	switch {
	case stderrors.Is(err, ErrModelNotFound):
		mapped = NewNotFoundError("MODEL_NOT_FOUND", err.Error())
	case stderrors.Is(err, ErrSessionNotFound):
		mapped = NewNotFoundError("SESSION_NOT_FOUND", err.Error())
	case stderrors.Is(err, ErrMessageNotFound):
		mapped = NewNotFoundError("MESSAGE_NOT_FOUND", err.Error())
	case stderrors.Is(err, ErrPreferenceNotFound):
		mapped = NewNotFoundError("PREFERENCE_NOT_FOUND", err.Error())
	case stderrors.Is(err, ErrConcurrencyConflict):
		mapped = NewConflictError("CONCURRENCY_CONFLICT", err.Error())
	case stderrors.Is(err, ErrBranchBusy):
		mapped = NewConflictError("BRANCH_BUSY", err.Error())
	case stderrors.Is(err, ErrInvalidOutcome), stderrors.Is(err, ErrInvalidArgument):
		mapped = NewBadRequestError("INVALID_REQUEST", err.Error())
	case stderrors.Is(err, ErrNotEnoughModels):
		mapped = NewConflictError("NOT_ENOUGH_MODELS", err.Error())
	case stderrors.As(err, &adapterErr):
		mapped = NewBadGatewayError("ADAPTER_ERROR", adapterErr.Error())
	default:
		mapped = NewInternalServerError("INTERNAL_ERROR", fmt.Sprintf("An unexpected error occurred: %s", err.Error()))
	}
	mapped.cause = err
	return mapped
}

// GetStatusCode returns the HTTP status an error renders with
func GetStatusCode(err error) int {
	if err == nil {
		return http.StatusOK
	}
	return FromError(err).StatusCode
}
