// Package kerrors defines the error-kind taxonomy shared by every layer of
// Kerr, from the QUIC endpoint down to individual session handlers.
package kerrors

import "errors"

// Kind identifies the category of a Kerr error, independent of the
// underlying Go error value. It is used to translate local failures into
// wire-level Error{} payloads without leaking stack traces or internal
// type names to the peer.
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidToken
	KindUnreachable
	KindTimeout
	KindCancelled
	KindBadHandshake
	KindProtocolViolation
	KindPermissionDenied
	KindNotFound
	KindIoError
	KindPtyError
	KindPeerClosed
)

func (k Kind) String() string {
	switch k {
	case KindInvalidToken:
		return "InvalidToken"
	case KindUnreachable:
		return "Unreachable"
	case KindTimeout:
		return "Timeout"
	case KindCancelled:
		return "Cancelled"
	case KindBadHandshake:
		return "BadHandshake"
	case KindProtocolViolation:
		return "ProtocolViolation"
	case KindPermissionDenied:
		return "PermissionDenied"
	case KindNotFound:
		return "NotFound"
	case KindIoError:
		return "IoError"
	case KindPtyError:
		return "PtyError"
	case KindPeerClosed:
		return "PeerClosed"
	default:
		return "Unknown"
	}
}

// kindError wraps an underlying cause with a Kind, following the teacher's
// pattern of sentinel errors composed with fmt.Errorf("%w: ...").
type kindError struct {
	kind  Kind
	cause error
}

func (e *kindError) Error() string {
	if e.cause == nil {
		return e.kind.String()
	}
	return e.kind.String() + ": " + e.cause.Error()
}

func (e *kindError) Unwrap() error { return e.cause }

// New creates an error of the given kind wrapping cause. cause may be nil.
func New(kind Kind, cause error) error {
	return &kindError{kind: kind, cause: cause}
}

// Newf creates an error of the given kind with a plain message.
func Newf(kind Kind, msg string) error {
	return &kindError{kind: kind, cause: errors.New(msg)}
}

// Of extracts the Kind from err, returning KindUnknown if err does not
// carry one.
func Of(err error) Kind {
	var ke *kindError
	if errors.As(err, &ke) {
		return ke.kind
	}
	return KindUnknown
}

// Is reports whether err (or something it wraps) has the given kind.
func Is(err error, kind Kind) bool {
	return Of(err) == kind
}

var (
	ErrInvalidToken       = New(KindInvalidToken, nil)
	ErrUnreachable        = New(KindUnreachable, nil)
	ErrTimeout            = New(KindTimeout, nil)
	ErrCancelled          = New(KindCancelled, nil)
	ErrBadHandshake       = New(KindBadHandshake, nil)
	ErrProtocolViolation  = New(KindProtocolViolation, nil)
	ErrPermissionDenied   = New(KindPermissionDenied, nil)
	ErrNotFound           = New(KindNotFound, nil)
	ErrIoError            = New(KindIoError, nil)
	ErrPtyError           = New(KindPtyError, nil)
	ErrPeerClosed         = New(KindPeerClosed, nil)
)

// Message returns the one-line, user-visible form of err: kind plus cause,
// never a stack trace.
func Message(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
