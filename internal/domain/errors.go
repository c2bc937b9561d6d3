package domain

import "fmt"

// Error types for consistent error handling across the CRM.

// ErrNotFound indicates a resource was not found (or belongs to another company).
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrExternalService indicates a failure in an external service call.
type ErrExternalService struct {
	Service string
	Err     error
}

func (e *ErrExternalService) Error() string {
	return fmt.Sprintf("external service error [%s]: %v", e.Service, e.Err)
}

func (e *ErrExternalService) Unwrap() error {
	return e.Err
}

// ErrTimeout indicates an operation exceeded its deadline.
type ErrTimeout struct {
	Operation string
}

func (e *ErrTimeout) Error() string {
	return fmt.Sprintf("operation timed out: %s", e.Operation)
}

// ErrCircuitOpen indicates the circuit breaker is open.
type ErrCircuitOpen struct {
	Service string
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("circuit breaker open for service: %s", e.Service)
}

// ErrValidation indicates a validation error (bad input).
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("validation error on '%s': %s", e.Field, e.Message)
}

// ErrDuplicate indicates a record that must be unique already exists.
type ErrDuplicate struct {
	Key     string
	Message string
}

func (e *ErrDuplicate) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("duplicate: %s", e.Key)
}

// ErrForbidden indicates the caller may not act on the requested tenant or rows.
type ErrForbidden struct {
	Action  string
	Message string
}

func (e *ErrForbidden) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("forbidden: %s", e.Action)
}

// ErrConflict indicates the request conflicts with current state.
type ErrConflict struct {
	Message string
}

func (e *ErrConflict) Error() string {
	return e.Message
}

// ErrUnauthorized indicates an invalid signature, state or token.
type ErrUnauthorized struct {
	Message string
}

func (e *ErrUnauthorized) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "unauthorized"
}

// ErrNotConfigured indicates a feature was used without its required setting.
type ErrNotConfigured struct {
	Setting string
}

func (e *ErrNotConfigured) Error() string {
	return fmt.Sprintf("%s is not configured", e.Setting)
}

// ErrInvalidLLMResponse indicates the model returned JSON that does not match
// the expected schema. Partial results are never returned alongside it.
type ErrInvalidLLMResponse struct {
	Reason string
}

func (e *ErrInvalidLLMResponse) Error() string {
	return fmt.Sprintf("invalid LLM response: %s", e.Reason)
}
