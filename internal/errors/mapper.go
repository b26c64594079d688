// internal/errors/mapper.go
package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"gorm.io/gorm"

	"github.com/oggyb/muzz-introductions/internal/domain"
	"github.com/oggyb/muzz-introductions/internal/store"
)

// Kind classifies an error for the transport layer.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindInvalidOperation
	KindForbidden
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindInvalidOperation:
		return "invalid_operation"
	case KindForbidden:
		return "forbidden"
	case KindConflict:
		return "conflict"
	default:
		return "internal"
	}
}

// Error is the service-layer error type. Handlers only ever see *Error values
// (or context errors) after Map.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Business-rule sentinels. Wrap them with fmt.Errorf("%w: ...") to add detail.
var (
	ErrInsufficientPoints = &Error{Kind: KindInvalidOperation, Msg: "insufficient points"}
	ErrInvalidTransition  = &Error{Kind: KindInvalidOperation, Msg: "invalid state transition"}
	ErrAlreadyPaired      = &Error{Kind: KindInvalidOperation, Msg: "request already paired"}
	ErrActiveRequest      = &Error{Kind: KindInvalidOperation, Msg: "user already has an active matching request"}
	ErrNotAuthorized      = &Error{Kind: KindInvalidOperation, Msg: "not a party to this match"}
	ErrNotEligible        = &Error{Kind: KindInvalidOperation, Msg: "user is not eligible for matching"}
)

// NotFound creates a NotFound error for an unresolved identifier.
func NotFound(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Msg: fmt.Sprintf(format, args...)}
}

// InvalidOperation creates an InvalidOperation error.
// Use this in service layer for bad input and rule violations.
func InvalidOperation(format string, args ...any) error {
	return &Error{Kind: KindInvalidOperation, Msg: fmt.Sprintf(format, args...)}
}

// Forbidden creates a Forbidden error.
func Forbidden(format string, args ...any) error {
	return &Error{Kind: KindForbidden, Msg: fmt.Sprintf(format, args...)}
}

// Conflict creates a Conflict error (concurrent writers kept winning).
func Conflict(err error) error {
	return &Error{Kind: KindConflict, Msg: "concurrent update, please retry", Err: err}
}

// Internal wraps an unexpected infrastructure error.
func Internal(err error) error {
	return &Error{Kind: KindInternal, Msg: "internal error", Err: err}
}

// Map converts repo/infra errors into service errors.
// Keeps service layer clean by centralizing error mapping.
func Map(err error) error {
	if err == nil {
		return nil
	}

	var svc *Error
	var te *domain.TransitionError

	switch {
	case errors.As(err, &svc):
		return err

	case errors.As(err, &te):
		return fmt.Errorf("%w: %s", ErrInvalidTransition, te.Error())

	case errors.Is(err, store.ErrNotFound), errors.Is(err, gorm.ErrRecordNotFound):
		return NotFound("record not found")

	case errors.Is(err, store.ErrConflict):
		return Conflict(err)

	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return err

	default:
		return Internal(err)
	}
}

// KindOf returns the kind of a mapped error.
func KindOf(err error) Kind {
	var svc *Error
	if errors.As(Map(err), &svc) {
		return svc.Kind
	}
	return KindInternal
}

// HTTPStatus maps an error onto a response status code.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return 499 // client closed request
	}

	switch KindOf(err) {
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidOperation:
		return http.StatusBadRequest
	case KindForbidden:
		return http.StatusForbidden
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage is what a client may see; internal details stay in the logs.
func PublicMessage(err error) string {
	mapped := Map(err)
	var svc *Error
	if errors.As(mapped, &svc) && svc.Kind == KindInternal {
		return "internal server error"
	}
	if errors.Is(mapped, context.DeadlineExceeded) {
		return "request timed out"
	}
	if errors.Is(mapped, context.Canceled) {
		return "request was canceled"
	}
	return mapped.Error()
}
