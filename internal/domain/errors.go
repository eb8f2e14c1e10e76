package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrUnauthenticated   = errors.New("please sign in")
	ErrOutOfStock        = errors.New("requested quantity exceeds available stock")
	ErrNotFound          = errors.New("not found")
	ErrCartEmpty         = errors.New("cart is empty")
	ErrNoAddress         = errors.New("no shipping address")
	ErrAddressCapReached = errors.New("address limit reached and no address can be evicted")
)

// ValidationError carries field-scoped reasons, keyed by field name.
type ValidationError struct {
	Fields map[string]string
}

func NewValidationError() *ValidationError {
	return &ValidationError{Fields: map[string]string{}}
}

func (e *ValidationError) Add(field, reason string) {
	if e.Fields == nil {
		e.Fields = map[string]string{}
	}
	e.Fields[field] = reason
}

func (e *ValidationError) Field(name string) string {
	return e.Fields[name]
}

func (e *ValidationError) Empty() bool {
	return len(e.Fields) == 0
}

// OrNil returns nil when no field failed.
func (e *ValidationError) OrNil() error {
	if e.Empty() {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s: %s", name, e.Fields[name]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// NetworkError marks a transient I/O failure. Callers keep prior state and
// offer a retry.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: network error: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

func IsNetwork(err error) bool {
	var netErr *NetworkError
	return errors.As(err, &netErr)
}

// ConsistencyError reports local state that may diverge from the server
// until the next successful fetch.
type ConsistencyError struct {
	Reason string
	Err    error
}

func (e *ConsistencyError) Error() string {
	if e.Err == nil {
		return "consistency: " + e.Reason
	}
	return fmt.Sprintf("consistency: %s: %v", e.Reason, e.Err)
}

func (e *ConsistencyError) Unwrap() error {
	return e.Err
}

func IsConsistency(err error) bool {
	var cErr *ConsistencyError
	return errors.As(err, &cErr)
}

func AsValidation(err error) (*ValidationError, bool) {
	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return vErr, true
	}
	return nil, false
}
