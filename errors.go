package amqp

import (
	"errors"
	"fmt"

	"github.com/yywing/go-amqp-engine/encoding"
)

// ErrCond is an AMQP defined error condition.
// See http://docs.oasis-open.org/amqp/core/v1.0/os/amqp-core-transport-v1.0-os.html#type-amqp-error for info on their meaning.
type ErrCond = encoding.ErrCond

// Error Conditions
const (
	// AMQP Errors
	ErrCondDecodeError           ErrCond = "amqp:decode-error"
	ErrCondFrameSizeTooSmall     ErrCond = "amqp:frame-size-too-small"
	ErrCondIllegalState          ErrCond = "amqp:illegal-state"
	ErrCondInternalError         ErrCond = "amqp:internal-error"
	ErrCondInvalidField          ErrCond = "amqp:invalid-field"
	ErrCondNotAllowed            ErrCond = "amqp:not-allowed"
	ErrCondNotFound              ErrCond = "amqp:not-found"
	ErrCondNotImplemented        ErrCond = "amqp:not-implemented"
	ErrCondPreconditionFailed    ErrCond = "amqp:precondition-failed"
	ErrCondResourceDeleted       ErrCond = "amqp:resource-deleted"
	ErrCondResourceLimitExceeded ErrCond = "amqp:resource-limit-exceeded"
	ErrCondResourceLocked        ErrCond = "amqp:resource-locked"
	ErrCondUnauthorizedAccess    ErrCond = "amqp:unauthorized-access"

	// Connection Errors
	ErrCondConnectionForced   ErrCond = "amqp:connection:forced"
	ErrCondConnectionRedirect ErrCond = "amqp:connection:redirect"
	ErrCondFramingError       ErrCond = "amqp:connection:framing-error"

	// Session Errors
	ErrCondErrantLink       ErrCond = "amqp:session:errant-link"
	ErrCondHandleInUse      ErrCond = "amqp:session:handle-in-use"
	ErrCondUnattachedHandle ErrCond = "amqp:session:unattached-handle"
	ErrCondWindowViolation  ErrCond = "amqp:session:window-violation"

	// Link Errors
	ErrCondDetachForced          ErrCond = "amqp:link:detach-forced"
	ErrCondLinkRedirect          ErrCond = "amqp:link:redirect"
	ErrCondMessageSizeExceeded   ErrCond = "amqp:link:message-size-exceeded"
	ErrCondStolen                ErrCond = "amqp:link:stolen"
	ErrCondTransferLimitExceeded ErrCond = "amqp:link:transfer-limit-exceeded"
)

// Error is an AMQP error carried on Close, End, Detach and rejected outcomes.
type Error = encoding.Error

// Errors
var (
	// ErrTransportUnavailable is the cause when a connection could not be
	// established or its transport broke.
	ErrTransportUnavailable = errors.New("amqp: transport unavailable")

	// ErrIdleTimeout is the cause when the peer sent nothing for longer
	// than the local idle timeout.
	ErrIdleTimeout = errors.New("amqp: idle timeout")

	// ErrNotAttached is returned by link operations that need an attached link.
	ErrNotAttached = errors.New("amqp: link not attached")

	// ErrSessionNotMapped is returned when attaching on a session whose
	// Begin handshake has not completed.
	ErrSessionNotMapped = errors.New("amqp: session not mapped")

	// ErrConnClosed is returned by operations on a closed connection.
	ErrConnClosed = errors.New("amqp: connection closed")

	// ErrChannelsExhausted is returned when every channel up to the
	// negotiated channel-max is in use.
	ErrChannelsExhausted = errors.New("amqp: no free channel")

	// ErrHandlesExhausted is returned when every handle up to the session's
	// handle-max is in use.
	ErrHandlesExhausted = errors.New("amqp: no free link handle")
)

// ConnError is delivered to OnDisconnected and returned by Conn.Err when a
// connection reaches CLOSED.
//
// RemoteErr is set when the peer closed the connection with an error.
type ConnError struct {
	RemoteErr *Error
	inner     error
}

func (e *ConnError) Error() string {
	if e.RemoteErr != nil {
		return e.RemoteErr.Error()
	}
	if e.inner == nil {
		return "amqp: connection closed"
	}
	return e.inner.Error()
}

func (e *ConnError) Unwrap() error {
	if e.RemoteErr != nil {
		return e.RemoteErr
	}
	return e.inner
}

// SessionError is delivered to OnEnd when a session ends with an error.
type SessionError struct {
	RemoteErr *Error
	inner     error
}

func (e *SessionError) Error() string {
	if e.RemoteErr != nil {
		return e.RemoteErr.Error()
	}
	if e.inner == nil {
		return "amqp: session ended"
	}
	return e.inner.Error()
}

func (e *SessionError) Unwrap() error {
	if e.RemoteErr != nil {
		return e.RemoteErr
	}
	return e.inner
}

// LinkError is delivered to OnDetach when a link detaches with an error,
// and returned by link operations that require an attached link.
type LinkError struct {
	RemoteErr *Error
	inner     error
}

func (e *LinkError) Error() string {
	if e.RemoteErr != nil {
		return e.RemoteErr.Error()
	}
	if e.inner == nil {
		return "amqp: link detached"
	}
	return e.inner.Error()
}

func (e *LinkError) Unwrap() error {
	if e.RemoteErr != nil {
		return e.RemoteErr
	}
	return e.inner
}

// asError converts err into the *Error sent on the wire.
func asError(err error) *Error {
	if err == nil {
		return nil
	}
	var amqpErr *Error
	if errors.As(err, &amqpErr) {
		return amqpErr
	}
	return &Error{
		Condition:   ErrCondInternalError,
		Description: err.Error(),
	}
}

// reasonError builds the local error for the *WithReason variants.
func reasonError(cond ErrCond, reason string) *Error {
	return &Error{
		Condition:   cond,
		Description: reason,
	}
}

func protocolError(cond ErrCond, format string, args ...any) *Error {
	return &Error{
		Condition:   cond,
		Description: fmt.Sprintf(format, args...),
	}
}
