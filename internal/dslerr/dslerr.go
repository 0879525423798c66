// Package dslerr is the closed error taxonomy the supervisor distinguishes.
//
// Every public operation in this module returns a classifiable error: when
// non-nil, dslerr.KindOf(err) always yields one of the Kind constants below.
// Concrete *Error values carry an optional wrapped cause so callers can still
// walk the chain with errors.Is/errors.As, but Kind comparison is by tag
// (the Kind value), never by the wrapped cause's type or message.
package dslerr

import (
	"errors"
	"fmt"
)

// Kind tags the closed sum of failure categories the supervisor branches on.
type Kind int

const (
	// KindOther is the zero value; it must never be produced by KindOf for a
	// non-nil error unless nothing more specific applies.
	KindOther Kind = iota
	KindPipeline
	KindStream
	KindSource
	KindSink
	KindNetwork
	KindFileIO
	KindConfiguration
	KindStateTransition
	KindResourceExhaustion
	KindRecoveryFailed
	KindFramework
)

func (k Kind) String() string {
	switch k {
	case KindPipeline:
		return "pipeline"
	case KindStream:
		return "stream"
	case KindSource:
		return "source"
	case KindSink:
		return "sink"
	case KindNetwork:
		return "network"
	case KindFileIO:
		return "file_io"
	case KindConfiguration:
		return "configuration"
	case KindStateTransition:
		return "state_transition"
	case KindResourceExhaustion:
		return "resource_exhaustion"
	case KindRecoveryFailed:
		return "recovery_failed"
	case KindFramework:
		return "framework"
	default:
		return "other"
	}
}

// Error is the concrete error type produced across the module. Kind is the
// tag the rest of the system classifies on; Msg is a human-readable detail;
// Cause, when set, is preserved for errors.Unwrap/errors.As.
type Error struct {
	Kind  Kind
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is lets errors.Is(err, dslerr.New(KindNetwork, "")) match any *Error of the
// same Kind, ignoring Msg/Cause, so callers can test for a kind without
// constructing the exact message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New builds an *Error with no wrapped cause.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap builds an *Error that carries cause as its Unwrap target. Wrap(kind,
// msg, nil) is equivalent to New(kind, msg).
func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Cause: cause}
}

// KindOf classifies any error produced by this module. An error that is not
// (and does not wrap) an *Error, including nil, is reported as KindOther.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindOther
}

// Is reports whether err is classified as kind, looking through wrapped
// errors the way errors.Is does.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
