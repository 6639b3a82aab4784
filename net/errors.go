package net

import (
	"errors"
	"fmt"
)

// ErrWait reports that an operation could not make progress right now and
// should be retried on a later tick. It is flow control, not a failure:
// callers must never tear a channel down because of it.
var ErrWait = errors.New("net: operation would block, retry later")

// FatalKind classifies unrecoverable channel failures. Every fatal condition
// maps to exactly one kind, and the kind decides both the disconnect reason
// sent to the peer and the ConnectionChange reported to the game layer.
type FatalKind uint8

const (
	// KindCorruption covers undecodable headers, unknown frame classes,
	// oversized frames and failed authentication tags.
	KindCorruption FatalKind = iota
	// KindReplay is a non-increasing packet sequence.
	KindReplay
	// KindIoFailure is a hard socket error or a peer shutdown.
	KindIoFailure
	// KindHandshakeTimeout means the first token frame never arrived.
	KindHandshakeTimeout
	// KindIdleTimeout means a connected peer went silent.
	KindIdleTimeout
	// KindRejected is a structurally valid token that failed validation:
	// expired, or protocol/version mismatch.
	KindRejected
	// KindRequested is a deliberate local or remote disconnect.
	KindRequested
)

func (k FatalKind) String() string {
	switch k {
	case KindCorruption:
		return "corruption"
	case KindReplay:
		return "replay"
	case KindIoFailure:
		return "io_failure"
	case KindHandshakeTimeout:
		return "handshake_timeout"
	case KindIdleTimeout:
		return "idle_timeout"
	case KindRejected:
		return "rejected"
	case KindRequested:
		return "requested"
	default:
		return "unknown"
	}
}

// FatalError marks a channel as unrecoverable. The endpoint reacts to any
// FatalError by tearing the channel down and queueing a ConnectionChange.
type FatalError struct {
	Kind FatalKind
	Err  error
}

func (e *FatalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("net: fatal (%s): %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("net: fatal (%s)", e.Kind)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

func fatal(kind FatalKind, err error) *FatalError {
	return &FatalError{Kind: kind, Err: err}
}

func fatalf(kind FatalKind, format string, args ...any) *FatalError {
	return &FatalError{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// IsFatal extracts the FatalError from err, if any.
func IsFatal(err error) (*FatalError, bool) {
	var fe *FatalError
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

// DisconnectReason is the single-byte cause carried by a Disconnect frame
// and surfaced in ConnectionChange events.
type DisconnectReason uint8

const (
	ReasonRequested DisconnectReason = iota
	ReasonCorruption
	ReasonReplay
	ReasonIoFailure
	ReasonHandshakeTimeout
	ReasonIdleTimeout
	ReasonRejected
)

func (r DisconnectReason) String() string {
	switch r {
	case ReasonRequested:
		return "requested"
	case ReasonCorruption:
		return "corruption"
	case ReasonReplay:
		return "replay"
	case ReasonIoFailure:
		return "io_failure"
	case ReasonHandshakeTimeout:
		return "handshake_timeout"
	case ReasonIdleTimeout:
		return "idle_timeout"
	case ReasonRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// reasonFor maps a fatal kind to the reason reported to both sides.
func reasonFor(kind FatalKind) DisconnectReason {
	switch kind {
	case KindCorruption:
		return ReasonCorruption
	case KindReplay:
		return ReasonReplay
	case KindIoFailure:
		return ReasonIoFailure
	case KindHandshakeTimeout:
		return ReasonHandshakeTimeout
	case KindIdleTimeout:
		return ReasonIdleTimeout
	case KindRejected:
		return ReasonRejected
	default:
		return ReasonRequested
	}
}
