package core

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidDescription         = errors.New("invalid session description")
	ErrUnexpectedMessage          = errors.New("unexpected message")
	ErrCandidateApplicationFailed = errors.New("candidate application failed")
	ErrSessionClosed              = errors.New("session closed")
	ErrTransportUnavailable       = errors.New("transport unavailable")

	ErrRoomFull  = errors.New("room is full")
	ErrNameTaken = errors.New("participant name already taken")
	ErrNotJoined = errors.New("not joined to a room")
)

// NegotiationError carries the failing operation, its taxonomy kind and the underlying cause.
type NegotiationError struct {
	Op      string
	Kind    error
	Cause   error
	Details string
}

func (e *NegotiationError) Error() string {
	msg := e.Kind.Error()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Details != "" {
		msg += " (" + e.Details + ")"
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *NegotiationError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

func NewNegotiationError(op string, kind, cause error) *NegotiationError {
	return &NegotiationError{Op: op, Kind: kind, Cause: cause}
}

func Unexpected(op, format string, args ...any) *NegotiationError {
	return &NegotiationError{Op: op, Kind: ErrUnexpectedMessage, Details: fmt.Sprintf(format, args...)}
}

// IsFatal reports whether err tore down the current session.
func IsFatal(err error) bool {
	return errors.Is(err, ErrInvalidDescription)
}

// KindOf returns the taxonomy sentinel behind err, or nil.
func KindOf(err error) error {
	for _, k := range []error{
		ErrInvalidDescription,
		ErrUnexpectedMessage,
		ErrCandidateApplicationFailed,
		ErrSessionClosed,
		ErrTransportUnavailable,
	} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
