package domain

import (
	"fmt"
	"strings"
)

type TransactionKind string

const (
	TransactionSignature TransactionKind = "signature"
	TransactionMint      TransactionKind = "mint"
)

type AttemptOutcome string

const (
	OutcomePending   AttemptOutcome = "pending"
	OutcomeSucceeded AttemptOutcome = "succeeded"
	OutcomeFailed    AttemptOutcome = "failed"
)

// MaxMintAttempts bounds submissions per logical mint: the first try plus one
// retry after permission recovery.
const MaxMintAttempts = 2

type TransactionAttempt struct {
	ID            string          `json:"id"`
	Kind          TransactionKind `json:"kind"`
	Payload       any             `json:"payload,omitempty"`
	AttemptNumber int             `json:"attemptNumber"`
	Outcome       AttemptOutcome  `json:"outcome"`
	TransactionID string          `json:"transactionId,omitempty"`
	Error         *ErrorRecord    `json:"error,omitempty"`
}

func (a TransactionAttempt) Terminal() bool {
	return a.Outcome == OutcomeSucceeded || a.Outcome == OutcomeFailed
}

type MintRequest struct {
	Name    string `json:"name"`
	Image   string `json:"image"`
	Edition uint32 `json:"edition"`
}

func (r MintRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if strings.TrimSpace(r.Image) == "" {
		return fmt.Errorf("image is required")
	}
	return nil
}

// Inputs renders the request as program call arguments.
func (r MintRequest) Inputs() []string {
	return []string{r.Name, r.Image, fmt.Sprintf("%du32", r.Edition)}
}

type MintResult struct {
	// TransactionID is the adapter's event identifier, not an on-chain hash.
	TransactionID string               `json:"transactionId,omitempty"`
	Attempts      []TransactionAttempt `json:"attempts"`
	Recovered     bool                 `json:"recovered"`
}

type SignatureResult struct {
	Signature string             `json:"signature,omitempty"`
	Message   string             `json:"message"`
	Attempt   TransactionAttempt `json:"attempt"`
}
