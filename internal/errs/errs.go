// Package errs defines the error taxonomy shared by the dispatcher, the
// stores and the HTTP layer. Every categorized error carries a Kind that maps
// to an HTTP status and a machine-readable discriminator in response bodies.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind discriminates categorized errors.
type Kind string

const (
	Unauthenticated    Kind = "unauthenticated"
	NotAMember         Kind = "not_a_member"
	Blocked            Kind = "blocked"
	BlockedByRecipient Kind = "blocked_by_recipient"
	SelfSend           Kind = "self_send"
	NotFound           Kind = "not_found"
	Conflict           Kind = "conflict"
	Validation         Kind = "validation"
	StoreUnavailable   Kind = "store_unavailable"
	BusUnavailable     Kind = "bus_unavailable"
	PubSubUnavailable  Kind = "pubsub_unavailable"
	Internal           Kind = "internal"
)

// Error is a categorized error. Use E to construct and KindOf to inspect.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	case e.Msg != "":
		return e.Msg
	case e.Err != nil:
		return e.Err.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// E builds a categorized error. The last error argument, if any, is wrapped.
func E(kind Kind, msg string, wrapped ...error) *Error {
	e := &Error{Kind: kind, Msg: msg}
	if len(wrapped) > 0 {
		e.Err = wrapped[0]
	}
	return e
}

// KindOf walks the error chain and returns the outermost Kind,
// or Internal when the error carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Is reports whether err carries the given kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	var e *Error
	for errors.As(err, &e) {
		if e.Kind == kind {
			return true
		}
		err = e.Err
		if err == nil {
			break
		}
	}
	return false
}

// HTTPStatus maps a kind to its API status code.
func HTTPStatus(kind Kind) int {
	switch kind {
	case Unauthenticated:
		return http.StatusUnauthorized
	case NotAMember, Blocked, BlockedByRecipient, SelfSend:
		return http.StatusForbidden
	case NotFound:
		return http.StatusNotFound
	case Conflict:
		return http.StatusConflict
	case Validation:
		return http.StatusBadRequest
	case StoreUnavailable, BusUnavailable, PubSubUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
