package delivery

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrAlreadyAssigned   = errors.New("order already assigned to another courier")
	ErrForbidden         = errors.New("action not allowed for this actor")
	ErrEmptyCart         = errors.New("cart is empty")
	ErrInvalidAddress    = errors.New("delivery address is required")
	ErrInvalidPayment    = errors.New("unknown payment method")
	ErrInvalidItem       = errors.New("invalid cart item")
	ErrDishUnavailable   = errors.New("dish is not available today")
	ErrInvalidMenu       = errors.New("invalid menu")
	ErrStoreUnavailable  = errors.New("store unavailable")
)

// storeError marks a repository failure as ErrStoreUnavailable while keeping the cause.
func storeError(op string, err error) error {
	return &wrappedError{op: op, kind: ErrStoreUnavailable, err: err}
}

type wrappedError struct {
	op   string
	kind error
	err  error
}

func (e *wrappedError) Error() string {
	return e.op + ": " + e.kind.Error() + ": " + e.err.Error()
}

func (e *wrappedError) Unwrap() []error {
	return []error{e.kind, e.err}
}
