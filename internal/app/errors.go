package app

import (
	"fmt"
	"net/http"
)

// Error codes returned to clients. Every service failure maps onto one of
// these categories.
const (
	CodeUnauthenticated  = "UNAUTHENTICATED"
	CodeInvalidArgument  = "INVALID_ARGUMENT"
	CodeNotFound         = "NOT_FOUND"
	CodePermissionDenied = "PERMISSION_DENIED"
	CodeServerError      = "SERVER_ERROR"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func errInvalidArgument(message string) *DomainError {
	return domainError(http.StatusUnprocessableEntity, CodeInvalidArgument, message, nil)
}

func errNotFound(message string) *DomainError {
	return domainError(http.StatusNotFound, CodeNotFound, message, nil)
}

func errPermissionDenied(message string) *DomainError {
	return domainError(http.StatusForbidden, CodePermissionDenied, message, nil)
}

func errInternal(message string) *DomainError {
	return domainError(http.StatusInternalServerError, CodeServerError, message, nil)
}
