package submit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/stellar/go-stellar-sdk/txnbuild"

	"github.com/mtlprog/kosh/internal/domain"
	"github.com/mtlprog/kosh/internal/horizon"
)

// Submitter posts signed envelopes to the ledger.
type Submitter struct {
	router      *horizon.Router
	lookups     int
	lookupDelay time.Duration
}

// NewSubmitter creates a Submitter. When the outcome of a post is unknown
// (gateway timeout or transport fault) it looks the envelope hash up to
// `lookups` times, waiting lookupDelay between attempts.
func NewSubmitter(router *horizon.Router, lookups int, lookupDelay time.Duration) *Submitter {
	return &Submitter{router: router, lookups: lookups, lookupDelay: lookupDelay}
}

// Submit posts signedXDR once. A ledger rejection is returned as
// *domain.SubmissionError with the result codes intact.
func (s *Submitter) Submit(ctx context.Context, signedXDR string, network domain.Network) (domain.Submission, error) {
	client, err := s.router.Client(network)
	if err != nil {
		return domain.Submission{}, fmt.Errorf("%w: %v", domain.ErrLedgerUnavailable, err)
	}

	hash, hashErr := EnvelopeHash(signedXDR, network)
	if hashErr != nil {
		slog.Warn("submit: could not hash signed envelope", "error", hashErr)
	}

	tx, err := client.SubmitTransaction(ctx, signedXDR)
	if err == nil {
		slog.Info("submit: transaction accepted", "network", network, "hash", tx.Hash, "ledger", tx.Ledger)
		return domain.Submission{Hash: tx.Hash, Ledger: tx.Ledger, Successful: true}, nil
	}

	var problem *horizon.Problem
	if errors.As(err, &problem) {
		codes := domain.ResultCodes{Transaction: problem.TransactionResultCode, Operations: problem.OperationResultCodes}
		slog.Warn("submit: transaction rejected",
			"network", network, "hash", hash, "status", problem.Status, "codes", codes.String())
		return domain.Submission{}, &domain.SubmissionError{
			Status:      problem.Status,
			Title:       problem.Title,
			Detail:      problem.Detail,
			ResultCodes: codes,
			ResultXDR:   problem.ResultXDR,
			Hash:        hash,
		}
	}

	slog.Warn("submit: outcome unknown, looking up hash", "network", network, "hash", hash, "error", err)
	if hash == "" {
		return domain.Submission{}, unknownOutcome(err, hash)
	}
	return s.resolve(ctx, client, hash, err)
}

// resolve looks the envelope up by hash after an ambiguous post. It never re-posts.
func (s *Submitter) resolve(ctx context.Context, client *horizon.Client, hash string, postErr error) (domain.Submission, error) {
	for attempt := range s.lookups {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return domain.Submission{}, unknownOutcome(postErr, hash)
			case <-time.After(s.lookupDelay):
			}
		}

		tx, err := client.FetchTransaction(ctx, hash)
		if err != nil {
			if !horizon.IsNotFound(err) {
				slog.Warn("submit: hash lookup failed", "hash", hash, "attempt", attempt+1, "error", err)
			}
			continue
		}
		if tx.Successful {
			slog.Info("submit: ambiguous submission found on ledger", "hash", hash, "ledger", tx.Ledger)
			return domain.Submission{Hash: tx.Hash, Ledger: tx.Ledger, Successful: true}, nil
		}
		// Only tx_failed transactions are included in a ledger unsuccessfully.
		slog.Warn("submit: ambiguous submission failed on ledger", "hash", hash, "ledger", tx.Ledger)
		return domain.Submission{}, &domain.SubmissionError{
			Title:       "Transaction Failed",
			Detail:      fmt.Sprintf("transaction was included in ledger %d but failed", tx.Ledger),
			ResultCodes: domain.ResultCodes{Transaction: "tx_failed"},
			ResultXDR:   tx.ResultXDR,
			Hash:        hash,
		}
	}
	return domain.Submission{}, unknownOutcome(postErr, hash)
}

func unknownOutcome(cause error, hash string) error {
	status := 0
	var se *horizon.StatusError
	if errors.As(cause, &se) {
		status = se.StatusCode
	}
	detail := cause.Error()
	if hash != "" {
		detail = fmt.Sprintf("%s; check transaction %s before retrying", detail, hash)
	}
	return &domain.SubmissionError{
		Status: status,
		Title:  "Submission Outcome Unknown",
		Detail: detail,
		Hash:   hash,
	}
}

// EnvelopeHash returns the hex hash of a (possibly signed) envelope on network.
func EnvelopeHash(envelopeXDR string, network domain.Network) (string, error) {
	gen, err := txnbuild.TransactionFromXDR(envelopeXDR)
	if err != nil {
		return "", fmt.Errorf("decoding envelope: %w", err)
	}
	if tx, ok := gen.Transaction(); ok {
		return tx.HashHex(network.Passphrase())
	}
	if fb, ok := gen.FeeBump(); ok {
		return fb.HashHex(network.Passphrase())
	}
	return "", errors.New("envelope is neither a transaction nor a fee bump")
}
