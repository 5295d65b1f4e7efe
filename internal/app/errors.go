package app

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/minhnhutttt/la/internal/qa"
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

func viewNotFound() *DomainError {
	return domainError(http.StatusNotFound, "VIEW_NOT_FOUND", "View not found or expired", nil)
}

// actionError maps an engine error to the HTTP edge. The view state is
// attached so the client can render the error next to its form.
func actionError(err error, result ViewResult) *DomainError {
	if errors.Is(err, qa.ErrClosed) {
		return domainError(http.StatusGone, "VIEW_CLOSED", "View was closed", nil)
	}
	var qaErr *qa.Error
	if !errors.As(err, &qaErr) {
		return domainError(http.StatusInternalServerError, "SERVER_ERROR", "Server error", result)
	}
	message := qaErr.Message
	if message == "" {
		message = qaErr.Key
	}
	switch qaErr.Kind {
	case qa.KindValidation:
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_FAILED", message, result)
	case qa.KindNotFound:
		return domainError(http.StatusNotFound, "NOT_FOUND", message, result)
	case qa.KindAuthorization:
		return domainError(http.StatusForbidden, "FORBIDDEN", message, result)
	case qa.KindTransport:
		return domainError(http.StatusBadGateway, "MUTATION_FAILED", message, result)
	default:
		return domainError(http.StatusInternalServerError, "SERVER_ERROR", "Server error", result)
	}
}
