package domain

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the transport layer.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindInvalidCredentials
	KindUnauthorized
	KindForbidden
	KindConflict
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindInvalidCredentials:
		return "invalid_credentials"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindConflict:
		return "conflict"
	case KindUnavailable:
		return "unavailable"
	default:
		return "internal"
	}
}

// Error is a classified failure. Code is a stable machine-readable value
// returned to clients; Err optionally carries the underlying cause.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Kind and Code so wrapped copies of a sentinel still compare
// equal to it.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Code == t.Code
}

// Wrap returns a copy of the sentinel carrying cause.
func (e *Error) Wrap(cause error) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Message: e.Message, Err: cause}
}

// WithMessage returns a copy of the sentinel with a more specific message.
func (e *Error) WithMessage(format string, args ...any) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Message: fmt.Sprintf(format, args...), Err: e.Err}
}

var (
	ErrInvalidRequest          = &Error{Kind: KindValidation, Code: "invalid_request", Message: "invalid request"}
	ErrInvalidID               = &Error{Kind: KindValidation, Code: "invalid_id", Message: "invalid id"}
	ErrInvalidProductID        = &Error{Kind: KindValidation, Code: "invalid_product_id", Message: "invalid product id"}
	ErrInvalidCategory         = &Error{Kind: KindValidation, Code: "invalid_category", Message: "invalid category"}
	ErrInvalidProduct          = &Error{Kind: KindValidation, Code: "invalid_product", Message: "invalid product"}
	ErrMissingImage            = &Error{Kind: KindValidation, Code: "missing_image", Message: "no image in the request"}
	ErrInvalidImageType        = &Error{Kind: KindValidation, Code: "invalid_image_type", Message: "invalid image type"}
	ErrTooManyImages           = &Error{Kind: KindValidation, Code: "too_many_images", Message: "too many images"}
	ErrInvalidStatusTransition = &Error{Kind: KindValidation, Code: "invalid_status_transition", Message: "invalid status transition"}

	ErrNotFound = &Error{Kind: KindNotFound, Code: "not_found", Message: "not found"}

	ErrInvalidCredentials = &Error{Kind: KindInvalidCredentials, Code: "invalid_credentials", Message: "invalid email or password"}
	ErrUnauthorized       = &Error{Kind: KindUnauthorized, Code: "unauthorized", Message: "unauthorized"}
	ErrForbidden          = &Error{Kind: KindForbidden, Code: "forbidden", Message: "admin privileges required"}

	ErrEmailTaken        = &Error{Kind: KindConflict, Code: "email_taken", Message: "email already registered"}
	ErrCategoryInUse     = &Error{Kind: KindConflict, Code: "category_in_use", Message: "category is referenced by products"}
	ErrInsufficientStock = &Error{Kind: KindConflict, Code: "insufficient_stock", Message: "insufficient stock"}
	ErrPriceChanged      = &Error{Kind: KindConflict, Code: "price_changed", Message: "product price changed while ordering"}
	ErrConflict          = &Error{Kind: KindConflict, Code: "conflict", Message: "conflicting write"}

	ErrUnavailable = &Error{Kind: KindUnavailable, Code: "unavailable", Message: "store unavailable"}
)

// KindOf reports the Kind of err, or KindInternal if it is not classified.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// CodeOf reports the client-facing code of err.
func CodeOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return "internal"
}
