package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidIntent is a client-side validation failure; it never reaches the network.
	ErrInvalidIntent = errors.New("invalid intent")
	// ErrAccountNotFound means the ledger has no record of the address (unfunded).
	ErrAccountNotFound = errors.New("account not found")
	// ErrLedgerUnavailable is a transient ledger API or transport fault.
	ErrLedgerUnavailable = errors.New("ledger unavailable")
	// ErrNoPathAvailable means the ledger found no conversion path (no liquidity).
	ErrNoPathAvailable = errors.New("no swap path available")
	// ErrTrustlineMissing means the destination positively lacks a trustline for the asset.
	ErrTrustlineMissing = errors.New("trustline missing")
	// ErrStaleSnapshot means the snapshot's next sequence was already consumed this session.
	ErrStaleSnapshot = errors.New("stale account snapshot")
	// ErrSigningRejected means the remote signing authority declined the request.
	ErrSigningRejected = errors.New("signing rejected")
	// ErrSigningUnavailable means the remote signing authority could not be reached.
	ErrSigningUnavailable = errors.New("signing unavailable")
	// ErrSubmissionFailed means the ledger rejected the signed envelope.
	ErrSubmissionFailed = errors.New("submission failed")
	// ErrConcurrentRun means another run for the same account is in flight.
	ErrConcurrentRun = errors.New("another run is in flight for this account")
)

// ResultCodes are the ledger's transaction and per-operation result codes.
type ResultCodes struct {
	Transaction string   `json:"transaction,omitempty"`
	Operations  []string `json:"operations,omitempty"`
}

// IsEmpty reports whether no code was returned.
func (c ResultCodes) IsEmpty() bool {
	return c.Transaction == "" && len(c.Operations) == 0
}

// All returns the transaction code followed by the operation codes.
func (c ResultCodes) All() []string {
	codes := make([]string, 0, len(c.Operations)+1)
	if c.Transaction != "" {
		codes = append(codes, c.Transaction)
	}
	return append(codes, c.Operations...)
}

func (c ResultCodes) String() string {
	return strings.Join(c.All(), ", ")
}

// SubmissionError carries the ledger's structured rejection intact.
// Hash is the envelope hash when it could be computed.
type SubmissionError struct {
	Status      int
	Title       string
	Detail      string
	ResultCodes ResultCodes
	ResultXDR   string
	Hash        string
}

func (e *SubmissionError) Error() string {
	msg := fmt.Sprintf("%s: HTTP %d %s", ErrSubmissionFailed, e.Status, e.Title)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if !e.ResultCodes.IsEmpty() {
		msg += " [" + e.ResultCodes.String() + "]"
	}
	return msg
}

// Is makes errors.Is(err, ErrSubmissionFailed) match.
func (e *SubmissionError) Is(target error) bool {
	return target == ErrSubmissionFailed
}

// ErrorKind is the taxonomy name recorded in run results.
type ErrorKind string

const (
	KindInvalidIntent      ErrorKind = "InvalidIntent"
	KindAccountNotFound    ErrorKind = "AccountNotFound"
	KindLedgerUnavailable  ErrorKind = "LedgerUnavailable"
	KindNoPathAvailable    ErrorKind = "NoPathAvailable"
	KindTrustlineMissing   ErrorKind = "TrustlineMissing"
	KindStaleSnapshot      ErrorKind = "StaleSnapshot"
	KindSigningRejected    ErrorKind = "SigningRejected"
	KindSigningUnavailable ErrorKind = "SigningUnavailable"
	KindSubmissionFailed   ErrorKind = "SubmissionFailed"
	KindConcurrentRun      ErrorKind = "ConcurrentRun"
	KindInternal           ErrorKind = "Internal"
)

var kindBySentinel = []struct {
	err  error
	kind ErrorKind
}{
	{ErrInvalidIntent, KindInvalidIntent},
	{ErrAccountNotFound, KindAccountNotFound},
	{ErrNoPathAvailable, KindNoPathAvailable},
	{ErrTrustlineMissing, KindTrustlineMissing},
	{ErrStaleSnapshot, KindStaleSnapshot},
	{ErrSigningRejected, KindSigningRejected},
	{ErrSigningUnavailable, KindSigningUnavailable},
	{ErrSubmissionFailed, KindSubmissionFailed},
	{ErrConcurrentRun, KindConcurrentRun},
	{ErrLedgerUnavailable, KindLedgerUnavailable},
}

// ClassifyError maps an error chain to its taxonomy kind.
func ClassifyError(err error) ErrorKind {
	for _, s := range kindBySentinel {
		if errors.Is(err, s.err) {
			return s.kind
		}
	}
	return KindInternal
}
