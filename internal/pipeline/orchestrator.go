package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mtlprog/kosh/internal/bridge"
	"github.com/mtlprog/kosh/internal/domain"
	"github.com/mtlprog/kosh/internal/metrics"
	"github.com/mtlprog/kosh/internal/submit"
	"github.com/mtlprog/kosh/internal/trustline"
	"github.com/mtlprog/kosh/internal/txbuild"
)

// AccountReader fetches a fresh account snapshot.
type AccountReader interface {
	GetAccountSnapshot(ctx context.Context, address string, network domain.Network) (domain.AccountSnapshot, error)
}

// Quoter finds the best strict-send conversion from native.
type Quoter interface {
	FindStrictSendQuote(ctx context.Context, sourceAmount string, destAsset domain.Asset, network domain.Network) (*domain.Quote, error)
}

// Trustlines is the part of the trustline gatekeeper runs talk to.
type Trustlines interface {
	CheckTrustline(ctx context.Context, address string, asset domain.Asset, network domain.Network) (trustline.TrustlineCheck, error)
	ObserveSnapshot(snap domain.AccountSnapshot, extra ...domain.Asset) int
	MarkCreated(network domain.Network, account string, asset domain.Asset)
	MarkRemoved(network domain.Network, account string, asset domain.Asset)
}

// Signer signs envelopes on behalf of the connected identity.
type Signer interface {
	Sign(ctx context.Context, address, envelopeXDR string, network domain.Network) (string, error)
}

// Submitter posts signed envelopes.
type Submitter interface {
	Submit(ctx context.Context, signedXDR string, network domain.Network) (domain.Submission, error)
}

// Journal stores finished runs.
type Journal interface {
	Record(ctx context.Context, result domain.RunResult) error
}

// ProgressFunc receives every stage transition of a run. It must not block.
type ProgressFunc func(domain.Progress)

// Config wires an Orchestrator. Journal, Metrics and Clock are optional.
type Config struct {
	Reader      AccountReader
	Quoter      Quoter
	Trustlines  Trustlines
	Builder     *txbuild.Builder
	Registry    *bridge.Registry
	Signer      Signer
	Submitter   Submitter
	Journal     Journal
	Metrics     *metrics.Service
	SlippageBps int
	Clock       func() time.Time
}

// Orchestrator drives single-shot runs through validate, fetch, build, sign
// and submit. Runs are never retried; a retry is a new run with a fresh snapshot.
type Orchestrator struct {
	reader      AccountReader
	quoter      Quoter
	trustlines  Trustlines
	builder     *txbuild.Builder
	registry    *bridge.Registry
	signer      Signer
	submitter   Submitter
	journal     Journal
	metrics     *metrics.Service
	slippageBps int
	now         func() time.Time
	newID       func() string

	guard *accountGuard
}

// New creates an Orchestrator.
func New(cfg Config) *Orchestrator {
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	return &Orchestrator{
		reader:      cfg.Reader,
		quoter:      cfg.Quoter,
		trustlines:  cfg.Trustlines,
		builder:     cfg.Builder,
		registry:    cfg.Registry,
		signer:      cfg.Signer,
		submitter:   cfg.Submitter,
		journal:     cfg.Journal,
		metrics:     cfg.Metrics,
		slippageBps: cfg.SlippageBps,
		now:         now,
		newID:       uuid.NewString,
		guard:       newAccountGuard(),
	}
}

// InFlight reports whether a run for the account is executing.
func (o *Orchestrator) InFlight(network domain.Network, account string) bool {
	return o.guard.active(network, account)
}

// run is the state of one pipeline execution.
type run struct {
	o        *Orchestrator
	ctx      context.Context
	progress ProgressFunc
	result   domain.RunResult
	envelope *domain.Envelope
	release  func()
}

func (o *Orchestrator) start(ctx context.Context, flow domain.Flow, network domain.Network, account string, progress ProgressFunc) *run {
	r := &run{
		o:        o,
		ctx:      ctx,
		progress: progress,
		result: domain.RunResult{
			ID:        o.newID(),
			Flow:      flow,
			Network:   network,
			Account:   account,
			StartedAt: o.now().UTC(),
		},
	}
	o.metrics.RunStarted()
	r.enter(domain.StageValidating)
	return r
}

func (r *run) enter(stage domain.Stage) {
	if r.result.Stage == stage {
		return
	}
	r.result.Stage = stage
	r.o.metrics.Stage(r.result.Flow, stage)
	if r.progress != nil {
		r.progress(domain.Progress{
			RunID:   r.result.ID,
			Flow:    r.result.Flow,
			Account: r.result.Account,
			Stage:   stage,
			Percent: stage.Progress(),
		})
	}
}

// lock claims the account for this run.
func (r *run) lock() error {
	release, ok := r.o.guard.acquire(r.result.Network, r.result.Account)
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrConcurrentRun, r.result.Account)
	}
	r.release = release
	return nil
}

// fetch loads the account snapshot and refreshes cached trustline statuses.
func (r *run) fetch(extra ...domain.Asset) (domain.AccountSnapshot, error) {
	r.enter(domain.StageFetchingAccount)
	snap, err := r.o.reader.GetAccountSnapshot(r.ctx, r.result.Account, r.result.Network)
	if err != nil {
		return domain.AccountSnapshot{}, err
	}
	if r.o.trustlines != nil {
		r.o.trustlines.ObserveSnapshot(snap, extra...)
	}
	return snap, nil
}

// build assembles the envelope and rejects snapshots whose sequence was already spent.
func (r *run) build(intent domain.Intent, snap domain.AccountSnapshot) (domain.Envelope, error) {
	r.enter(domain.StageBuilding)
	if err := r.o.guard.checkFresh(r.result.Network, snap); err != nil {
		return domain.Envelope{}, err
	}
	env, err := r.o.builder.Build(intent, snap, r.result.Network)
	if err != nil {
		return domain.Envelope{}, err
	}
	r.envelope = &env
	return env, nil
}

// signAndSubmit crosses the irrevocability boundary: from SIGNING on the
// caller's cancellation no longer applies.
func (r *run) signAndSubmit(env domain.Envelope) (domain.Submission, error) {
	ctx := context.WithoutCancel(r.ctx)

	r.enter(domain.StageSigning)
	signed, err := r.o.signer.Sign(ctx, r.result.Account, env.XDR, r.result.Network)
	if err != nil {
		return domain.Submission{}, err
	}
	hash, err := submit.EnvelopeHash(signed, r.result.Network)
	if err != nil {
		return domain.Submission{}, fmt.Errorf("%w: signed envelope is unreadable: %v", domain.ErrSigningRejected, err)
	}
	if hash != env.Hash {
		return domain.Submission{}, fmt.Errorf("%w: signer returned a different transaction", domain.ErrSigningRejected)
	}

	r.enter(domain.StageSubmitting)
	r.o.guard.consume(r.result.Network, r.result.Account, env.SequenceNumber)
	return r.o.submitter.Submit(ctx, signed, r.result.Network)
}

func (r *run) succeed(sub domain.Submission, message string) domain.RunResult {
	r.result.Success = true
	r.result.Hash = sub.Hash
	r.result.Ledger = sub.Ledger
	if sub.Hash != "" {
		r.result.ExplorerURL = r.result.Network.ExplorerTxURL(sub.Hash)
	}
	r.result.Message = message
	return r.finish(domain.StageSucceeded)
}

// shortCircuit ends the run successfully without touching the ledger.
func (r *run) shortCircuit(message string) domain.RunResult {
	r.result.Success = true
	r.result.Message = message
	return r.finish(domain.StageSucceeded)
}

func (r *run) fail(err error) domain.RunResult {
	kind := domain.ClassifyError(err)
	runErr := &domain.RunError{Kind: kind, Message: userMessage(kind, err), Detail: err.Error()}

	var subErr *domain.SubmissionError
	if errors.As(err, &subErr) {
		runErr.ResultCodes = subErr.ResultCodes
		runErr.ResultXDR = subErr.ResultXDR
		if subErr.Hash != "" {
			r.result.Hash = subErr.Hash
			r.result.ExplorerURL = r.result.Network.ExplorerTxURL(subErr.Hash)
		}
	}
	if kind == domain.KindSigningUnavailable && r.envelope != nil {
		r.result.EnvelopeXDR = r.envelope.XDR
	}

	r.result.Error = runErr
	r.result.Message = runErr.Message

	r.result.FailedAt = r.result.Stage
	res := r.finish(domain.StageFailed)

	attrs := []any{"run", res.ID, "flow", res.Flow, "account", res.Account, "stage", res.FailedAt, "kind", kind, "error", err}
	switch kind {
	case domain.KindNoPathAvailable, domain.KindInvalidIntent, domain.KindAccountNotFound:
		slog.Info("pipeline: run ended", attrs...)
	default:
		slog.Warn("pipeline: run failed", attrs...)
	}
	return res
}

func (r *run) finish(stage domain.Stage) domain.RunResult {
	if r.release != nil {
		r.release()
	}
	r.result.FinishedAt = r.o.now().UTC()
	r.enter(stage)
	r.o.metrics.RunFinished(r.result)

	if r.result.Success {
		slog.Info("pipeline: run succeeded",
			"run", r.result.ID, "flow", r.result.Flow, "account", r.result.Account, "hash", r.result.Hash)
	}
	if r.o.journal != nil {
		if err := r.o.journal.Record(context.WithoutCancel(r.ctx), r.result); err != nil {
			slog.Warn("pipeline: failed to journal run", "run", r.result.ID, "error", err)
		}
	}
	return r.result
}

// userMessage is the friendly text for a failure. Ledger result codes are
// described individually; the raw codes stay in the RunError.
func userMessage(kind domain.ErrorKind, err error) string {
	switch kind {
	case domain.KindSubmissionFailed:
		var subErr *domain.SubmissionError
		if errors.As(err, &subErr) {
			if subErr.ResultCodes.IsEmpty() {
				return subErr.Title
			}
			return submit.Describe(subErr.ResultCodes)
		}
		return "transaction failed"
	case domain.KindNoPathAvailable:
		return domain.ErrNoPathAvailable.Error()
	case domain.KindAccountNotFound:
		return "account not found; fund it before sending transactions"
	case domain.KindLedgerUnavailable:
		return "ledger is unavailable; try again"
	case domain.KindTrustlineMissing:
		if errors.Is(err, errDestinationNotFound) {
			return "destination account does not exist"
		}
		return "destination has no trustline for the asset"
	case domain.KindStaleSnapshot:
		return "account state is out of date; try again"
	case domain.KindSigningRejected:
		return "signing was rejected"
	case domain.KindSigningUnavailable:
		return "signer is unavailable; the unsigned transaction is attached"
	case domain.KindConcurrentRun:
		return "another transaction for this account is in progress"
	case domain.KindInvalidIntent:
		return err.Error()
	default:
		return "unexpected error"
	}
}
