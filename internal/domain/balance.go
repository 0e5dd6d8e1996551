package domain

import (
	"fmt"
	"strings"
	"time"
)

type BalanceEntry struct {
	ProgramID     string `json:"programId"`
	Symbol        string `json:"symbol,omitempty"`
	PublicAmount  uint64 `json:"public"`
	PrivateAmount uint64 `json:"private"`
}

type BalanceSnapshot struct {
	Entries   []BalanceEntry `json:"entries"`
	FetchedAt time.Time      `json:"fetchedAt"`
}

// CreditRequirement describes what a balance must cover before a submission.
type CreditRequirement struct {
	ProgramID string
	Fee       uint64
}

// Satisfies reports whether any matching entry can pay the fee from either its
// public or its private amount. Fees are never split across the two, and an
// empty entry never satisfies a zero fee.
func (s BalanceSnapshot) Satisfies(req CreditRequirement) bool {
	for _, entry := range s.Entries {
		if req.ProgramID != "" && !strings.EqualFold(entry.ProgramID, req.ProgramID) {
			continue
		}
		if entry.PublicAmount == 0 && entry.PrivateAmount == 0 {
			continue
		}
		if entry.PublicAmount >= req.Fee || entry.PrivateAmount >= req.Fee {
			return true
		}
	}
	return false
}

const microcreditsPerCredit = 1_000_000

// FormatCredits renders a microcredit amount in whole credits, e.g. 100000 -> "0.1".
func FormatCredits(microcredits uint64) string {
	whole := microcredits / microcreditsPerCredit
	frac := microcredits % microcreditsPerCredit
	if frac == 0 {
		return fmt.Sprintf("%d", whole)
	}
	return strings.TrimRight(fmt.Sprintf("%d.%06d", whole, frac), "0")
}

// Entry returns the first entry for programID.
func (s BalanceSnapshot) Entry(programID string) (BalanceEntry, bool) {
	for _, entry := range s.Entries {
		if strings.EqualFold(entry.ProgramID, programID) {
			return entry, true
		}
	}
	return BalanceEntry{}, false
}
