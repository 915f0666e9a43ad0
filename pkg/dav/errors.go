package dav

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedVersion is returned by request adapters when the native
	// protocol version has no canonical counterpart.
	ErrUnsupportedVersion = errors.New("dav: unsupported http version")

	// ErrResponseConstruction marks a canonical response the runtime cannot
	// represent. It is fatal for the connection.
	ErrResponseConstruction = errors.New("dav: response construction failed")

	// ErrBodyClosed is returned when a body is read after Close.
	ErrBodyClosed = errors.New("dav: read on closed body")
)

// VersionError carries the offending protocol string.
type VersionError struct {
	Proto string
}

func (e *VersionError) Error() string {
	return fmt.Sprintf("dav: unsupported http version %q", e.Proto)
}

func (e *VersionError) Is(target error) bool { return target == ErrUnsupportedVersion }

// PayloadErrorKind classifies a failure while reading a native body.
type PayloadErrorKind uint8

const (
	// PayloadIncomplete: the transport closed before the declared length.
	PayloadIncomplete PayloadErrorKind = iota + 1
	// PayloadIO: a lower-level transport fault.
	PayloadIO
	// PayloadOther: anything the bridge does not recognize.
	PayloadOther
)

func (k PayloadErrorKind) String() string {
	switch k {
	case PayloadIncomplete:
		return "incomplete"
	case PayloadIO:
		return "io"
	case PayloadOther:
		return "other"
	}
	return "unknown"
}

// PayloadError is the canonical body error. Err may be nil for an
// incomplete payload without an underlying cause.
type PayloadError struct {
	Kind PayloadErrorKind
	Err  error
}

func (e *PayloadError) Error() string {
	if e.Err == nil {
		switch e.Kind {
		case PayloadIncomplete:
			return "dav: payload reached EOF before completing"
		default:
			return "dav: payload " + e.Kind.String() + " error"
		}
	}
	return "dav: payload " + e.Kind.String() + ": " + e.Err.Error()
}

func (e *PayloadError) Unwrap() error { return e.Err }

// Incomplete, IOError and OtherError build canonical payload errors.
func Incomplete(cause error) error { return &PayloadError{Kind: PayloadIncomplete, Err: cause} }

func IOError(cause error) error { return &PayloadError{Kind: PayloadIO, Err: cause} }

// OtherError stringifies causes the bridge does not recognize so that the
// native error value does not escape the bridge.
func OtherError(cause error) error {
	if cause == nil {
		return &PayloadError{Kind: PayloadOther}
	}
	return &PayloadError{Kind: PayloadOther, Err: errors.New(cause.Error())}
}

// PayloadKind returns the kind of err, or 0 when err is not a payload error.
func PayloadKind(err error) PayloadErrorKind {
	var pe *PayloadError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return 0
}
