package domain

import (
	"context"
	"errors"
	"strings"
)

type pattern struct {
	substr string
	kind   ErrorKind
}

// Adapters that only return free text are matched against these, in order.
// The list is best effort; typed errors from the host always take precedence.
var connectPatterns = []pattern{
	{substr: "not installed", kind: KindNotInstalled},
	{substr: "no wallet", kind: KindNotInstalled},
	{substr: "extension not found", kind: KindNotInstalled},
	{substr: "wallet not selected", kind: KindSelectionFailure},
	{substr: "adapter not found", kind: KindSelectionFailure},
	{substr: "no adapter", kind: KindSelectionFailure},
	{substr: "timed out", kind: KindTimeout},
	{substr: "timeout", kind: KindTimeout},
}

var permissionPatterns = []string{
	"permission",
	"not authorized",
	"unauthorized",
	"not allowed",
	"program not found in allowed",
}

// ClassifyConnectError maps a connect-phase failure to an error kind.
func ClassifyConnectError(err error) ErrorKind {
	if err == nil {
		return ""
	}
	if kind := KindOf(err); kind != "" {
		return kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return ClassifyMessage(err.Error())
}

// ClassifyMessage is the free-text fallback. Unmatched text is a connection failure.
func ClassifyMessage(message string) ErrorKind {
	lower := strings.ToLower(message)
	for _, p := range connectPatterns {
		if strings.Contains(lower, p.substr) {
			return p.kind
		}
	}
	return KindConnectionFailure
}

func IsPermissionFailure(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrPermissionDenied) {
		return true
	}
	return containsAny(err.Error(), permissionPatterns)
}

func containsAny(message string, substrs []string) bool {
	lower := strings.ToLower(message)
	for _, s := range substrs {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}
