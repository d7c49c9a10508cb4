package app

import (
	"errors"
	"fmt"
)

// DomainError is the typed error the HTTP layer surfaces as-is. ErrorType is
// the stable tag clients switch on; Message is safe to show an end user.
type DomainError struct {
	Status    int
	ErrorType string
	Message   string
	Details   any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.ErrorType, e.Message)
}

func asDomainError(err error, target **DomainError) bool {
	return errors.As(err, target)
}

func domainError(status int, errorType, message string, details any) *DomainError {
	return &DomainError{Status: status, ErrorType: errorType, Message: message, Details: details}
}

func validationError(message string) *DomainError {
	return domainError(400, "validation", message, nil)
}

func unauthorizedError() *DomainError {
	return domainError(401, "authentication", "Unauthorized", nil)
}

func forbiddenError(message string) *DomainError {
	return domainError(403, "authorization", message, nil)
}

// notFoundError covers both missing entities and entities hidden by the
// visibility engine, so responses leak nothing about which it was.
func notFoundError(message string) *DomainError {
	return domainError(404, "not_found", message, nil)
}

func conflictError(message string) *DomainError {
	return domainError(409, "conflict", message, nil)
}
