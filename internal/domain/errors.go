package domain

import (
	"errors"
	"fmt"
	"time"
)

type ErrorKind string

const (
	KindNotInstalled      ErrorKind = "not_installed"
	KindSelectionFailure  ErrorKind = "selection_failure"
	KindConnectionFailure ErrorKind = "connection_failure"
	KindTimeout           ErrorKind = "timeout"
	KindSignatureRejected ErrorKind = "signature_rejected"
	KindInsufficientFunds ErrorKind = "insufficient_funds"
	KindMintFailure       ErrorKind = "mint_failure"
	KindNotConnected      ErrorKind = "not_connected"
)

// Error is a classified orchestrator failure. Two errors match under errors.Is
// when their kinds are equal.
type Error struct {
	Kind    ErrorKind
	Message string
	Action  string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil && e.Cause.Error() != e.Message {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func (e *Error) WithCause(cause error) *Error {
	return &Error{Kind: e.Kind, Message: e.Message, Action: e.Action, Cause: cause}
}

func (e *Error) WithAction(action string) *Error {
	return &Error{Kind: e.Kind, Message: e.Message, Action: action, Cause: e.Cause}
}

func (e *Error) WithMessage(message string) *Error {
	return &Error{Kind: e.Kind, Message: message, Action: e.Action, Cause: e.Cause}
}

var (
	ErrNotInstalled      = NewError(KindNotInstalled, "wallet extension is not installed")
	ErrSelectionFailure  = NewError(KindSelectionFailure, "wallet adapter could not be selected")
	ErrConnectionFailure = NewError(KindConnectionFailure, "wallet connection failed")
	ErrTimeout           = NewError(KindTimeout, "wallet connection timed out")
	ErrSignatureRejected = NewError(KindSignatureRejected, "signature request rejected")
	ErrInsufficientFunds = NewError(KindInsufficientFunds, "insufficient balance for transaction fee")
	ErrMintFailure       = NewError(KindMintFailure, "mint transaction failed")
	ErrNotConnected      = NewError(KindNotConnected, "wallet is not connected")
)

// ErrPermissionDenied is the typed signal a host binding returns when the
// session lacks authorization for the target program.
var ErrPermissionDenied = errors.New("program permission denied")

// KindOf returns the kind of a classified error, or "" for anything else.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

type ErrorRecord struct {
	Kind       ErrorKind `json:"kind"`
	Message    string    `json:"message"`
	Action     string    `json:"action,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// RecordOf converts err into a record. Unclassified errors are recorded with
// fallback as their kind.
func RecordOf(err error, fallback ErrorKind, now time.Time) *ErrorRecord {
	if err == nil {
		return nil
	}

	record := &ErrorRecord{Kind: fallback, Message: err.Error(), OccurredAt: now}
	var de *Error
	if errors.As(err, &de) {
		record.Kind = de.Kind
		record.Message = de.Message
		record.Action = de.Action
		if de.Cause != nil && de.Cause.Error() != de.Message {
			record.Message = de.Message + ": " + de.Cause.Error()
		}
	}
	return record
}

// Sentinel returns the canonical error for kind, defaulting to a connection failure.
func Sentinel(kind ErrorKind) *Error {
	switch kind {
	case KindNotInstalled:
		return ErrNotInstalled
	case KindSelectionFailure:
		return ErrSelectionFailure
	case KindTimeout:
		return ErrTimeout
	case KindSignatureRejected:
		return ErrSignatureRejected
	case KindInsufficientFunds:
		return ErrInsufficientFunds
	case KindMintFailure:
		return ErrMintFailure
	case KindNotConnected:
		return ErrNotConnected
	default:
		return ErrConnectionFailure
	}
}
