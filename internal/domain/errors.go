package domain

import (
	"fmt"

	"github.com/pkg/errors"
)

// Error taxonomy. Network and decode failures are told apart in logs only,
// user facing text treats them like a remote rejection.
var (
	ErrNetwork         = errors.New("network error")
	ErrDecode          = errors.New("decode error")
	ErrValidation      = errors.New("validation error")
	ErrRemoteRejection = errors.New("remote rejected request")
	ErrNotFound        = errors.New("not found")
)

// RemoteError classifies a failed remote call
type RemoteError struct {
	Kind error // ErrNetwork or ErrDecode
	Op   string
	Err  error
}

func (e *RemoteError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *RemoteError) Unwrap() error { return e.Err }

func (e *RemoteError) Is(target error) bool { return target == e.Kind }

// NewNetworkError wraps a transport failure
func NewNetworkError(op string, err error) error {
	return &RemoteError{Kind: ErrNetwork, Op: op, Err: err}
}

// NewDecodeError wraps an unparseable or malformed response
func NewDecodeError(op string, err error) error {
	return &RemoteError{Kind: ErrDecode, Op: op, Err: err}
}

// ValidationError rejects user input before any side effect
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// ValidateCreate applies the local business rules of a create request
func ValidateCreate(f CreateFields) error {
	if f.Name == "" {
		return &ValidationError{Field: "name", Message: "name cannot be empty"}
	}
	if f.Price.IsZero() {
		return &ValidationError{Field: "price", Message: "selling price cannot be zero"}
	}
	return nil
}

// ValidateProduct checks a decoded remote product against the data model
func ValidateProduct(p Product) error {
	if p.Price.IsNegative() {
		return errors.Errorf("product %q has negative price %s", p.Name, p.Price)
	}
	if p.Tax.IsNegative() || p.Tax.GreaterThan(MaxTaxPercent) {
		return errors.Errorf("product %q has tax %s outside [0,100]", p.Name, p.Tax)
	}
	return nil
}
