package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mtlprog/kosh/internal/bridge"
	"github.com/mtlprog/kosh/internal/domain"
	"github.com/mtlprog/kosh/internal/trustline"
)

// PayRequest sends native XLM from Account to Destination.
type PayRequest struct {
	Network     domain.Network `json:"network"`
	Account     string         `json:"account"`
	Destination string         `json:"destination"`
	Amount      string         `json:"amount"`
	Memo        string         `json:"memo,omitempty"`
}

// SwapRequest converts SendAmount XLM into DestAsset. An empty Destination
// swaps into Account itself; an empty DestMin is derived from the quote
// minus the slippage tolerance.
type SwapRequest struct {
	Network     domain.Network `json:"network"`
	Account     string         `json:"account"`
	Destination string         `json:"destination,omitempty"`
	SendAmount  string         `json:"sendAmount"`
	DestAsset   domain.Asset   `json:"destAsset"`
	DestMin     string         `json:"destMin,omitempty"`
	SlippageBps *int           `json:"slippageBps,omitempty"`
}

// ChangeTrustRequest adds, updates or (Limit "0") removes a trustline.
type ChangeTrustRequest struct {
	Network domain.Network `json:"network"`
	Account string         `json:"account"`
	Asset   domain.Asset   `json:"asset"`
	Limit   string         `json:"limit,omitempty"`
}

// BridgeRequest locks XLM in the bridge contract for release on another chain.
type BridgeRequest struct {
	Network          domain.Network `json:"network"`
	Account          string         `json:"account"`
	FromToken        string         `json:"fromToken"`
	DestToken        string         `json:"destToken"`
	Amount           string         `json:"amount"`
	DestChain        string         `json:"destChain"`
	RecipientAddress string         `json:"recipientAddress"`
}

// Intent returns the bridge lock the request asks for.
func (req BridgeRequest) Intent() domain.BridgeLock {
	from := req.FromToken
	if from == "" {
		from = bridge.SourceToken
	}
	return domain.BridgeLock{
		UserAddress:      req.Account,
		FromToken:        from,
		DestToken:        strings.ToUpper(req.DestToken),
		Amount:           req.Amount,
		DestChain:        req.DestChain,
		RecipientAddress: req.RecipientAddress,
	}
}

// Pay runs a native payment.
func (o *Orchestrator) Pay(ctx context.Context, req PayRequest, progress ProgressFunc) domain.RunResult {
	r := o.start(ctx, domain.FlowPay, req.Network, req.Account, progress)

	intent := domain.NativePayment{Destination: req.Destination, Amount: req.Amount, Memo: req.Memo}
	if err := validateTarget(req.Network, req.Account); err != nil {
		return r.fail(err)
	}
	if err := intent.Validate(); err != nil {
		return r.fail(err)
	}
	if req.Destination == req.Account {
		return r.fail(fmt.Errorf("%w: cannot pay the source account", domain.ErrInvalidIntent))
	}
	if err := r.lock(); err != nil {
		return r.fail(err)
	}

	snap, err := r.fetch()
	if err != nil {
		return r.fail(err)
	}
	env, err := r.build(intent, snap)
	if err != nil {
		return r.fail(err)
	}
	sub, err := r.signAndSubmit(env)
	if err != nil {
		return r.fail(err)
	}
	return r.succeed(sub, fmt.Sprintf("sent %s XLM", req.Amount))
}

// Swap runs a strict-send path payment from XLM.
func (o *Orchestrator) Swap(ctx context.Context, req SwapRequest, progress ProgressFunc) domain.RunResult {
	r := o.start(ctx, domain.FlowSwap, req.Network, req.Account, progress)

	slippage := o.slippageBps
	if req.SlippageBps != nil {
		slippage = *req.SlippageBps
	}
	if err := validateSwap(req, slippage); err != nil {
		return r.fail(err)
	}
	if err := r.lock(); err != nil {
		return r.fail(err)
	}

	destination := req.Destination
	if destination == "" {
		destination = req.Account
	}

	snap, err := r.fetch(req.DestAsset)
	if err != nil {
		return r.fail(err)
	}

	r.enter(domain.StageBuilding)
	if err := r.requireTrustline(snap, destination, req.DestAsset); err != nil {
		return r.fail(err)
	}
	quote, err := o.quoter.FindStrictSendQuote(r.ctx, req.SendAmount, req.DestAsset, req.Network)
	switch {
	case err != nil:
		o.metrics.Quote("error")
		return r.fail(err)
	case quote == nil:
		o.metrics.Quote("no_path")
		return r.fail(domain.ErrNoPathAvailable)
	}
	o.metrics.Quote("found")

	destMin := req.DestMin
	if destMin == "" {
		destMin = domain.ApplySlippage(quote.DestinationAmount, slippage)
	}
	intent := domain.PathPaymentStrictSend{
		Destination: destination,
		SendAsset:   domain.NativeAsset(),
		SendAmount:  req.SendAmount,
		DestAsset:   req.DestAsset,
		DestMin:     destMin,
		Path:        quote.Path,
	}
	r.result.SwapDetails = &domain.SwapDetails{
		SendAmount: req.SendAmount,
		DestAsset:  req.DestAsset,
		DestMin:    destMin,
		Expected:   quote.DestinationAmount,
		Rate:       quote.Rate,
		Path:       quote.Path,
	}

	env, err := r.build(intent, snap)
	if err != nil {
		return r.fail(err)
	}
	sub, err := r.signAndSubmit(env)
	if err != nil {
		return r.fail(err)
	}
	return r.succeed(sub, fmt.Sprintf("swapped %s XLM for at least %s %s", req.SendAmount, destMin, req.DestAsset.Code))
}

// ChangeTrust adds or removes a trustline. A trustline that already
// matches the request ends the run without a transaction.
func (o *Orchestrator) ChangeTrust(ctx context.Context, req ChangeTrustRequest, progress ProgressFunc) domain.RunResult {
	r := o.start(ctx, domain.FlowChangeTrust, req.Network, req.Account, progress)

	if err := validateTarget(req.Network, req.Account); err != nil {
		return r.fail(err)
	}
	intent, err := trustline.BuildChangeTrustIntent(req.Asset, req.Limit)
	if err != nil {
		return r.fail(err)
	}
	if err := r.lock(); err != nil {
		return r.fail(err)
	}

	snap, err := r.fetch(req.Asset)
	if err != nil {
		return r.fail(err)
	}
	current := trustline.Evaluate(snap, req.Asset)
	removal := intent.IsRemoval()
	switch {
	case removal && !current.Exists:
		return r.shortCircuit("no trustline to remove")
	case removal && !domain.SafeParse(current.Balance).IsZero():
		return r.fail(fmt.Errorf("%w: balance of %s must be zero before removing the trustline", domain.ErrInvalidIntent, req.Asset.Code))
	case !removal && current.Exists && (strings.TrimSpace(req.Limit) == "" || domain.SafeParse(current.Limit).Equal(domain.SafeParse(intent.Limit))):
		r.result.AlreadyTrusted = true
		return r.shortCircuit(fmt.Sprintf("%s is already trusted", req.Asset.Code))
	}

	env, err := r.build(intent, snap)
	if err != nil {
		return r.fail(err)
	}
	sub, err := r.signAndSubmit(env)
	if err != nil {
		return r.fail(err)
	}

	if o.trustlines != nil {
		if removal {
			o.trustlines.MarkRemoved(req.Network, req.Account, req.Asset)
		} else {
			o.trustlines.MarkCreated(req.Network, req.Account, req.Asset)
		}
	}
	if removal {
		return r.succeed(sub, fmt.Sprintf("removed trustline for %s", req.Asset.Code))
	}
	return r.succeed(sub, fmt.Sprintf("trustline for %s created", req.Asset.Code))
}

// Bridge locks XLM in the bridge contract. Every parameter is checked
// against the chain registry before any network call.
func (o *Orchestrator) Bridge(ctx context.Context, req BridgeRequest, progress ProgressFunc) domain.RunResult {
	r := o.start(ctx, domain.FlowBridge, req.Network, req.Account, progress)

	intent := req.Intent()
	if err := validateTarget(req.Network, req.Account); err != nil {
		return r.fail(err)
	}
	if err := o.registry.ValidateLock(intent); err != nil {
		return r.fail(err)
	}
	stroops, err := domain.ToStroops(intent.Amount)
	if err != nil {
		return r.fail(err)
	}
	details := &domain.BridgeDetails{
		FromToken:        intent.FromToken,
		DestToken:        intent.DestToken,
		Amount:           intent.Amount,
		AmountStroops:    stroops,
		DestChain:        intent.DestChain,
		DestChainName:    o.registry.ChainName(intent.DestChain),
		RecipientAddress: intent.RecipientAddress,
	}
	if fees, err := o.registry.EstimateFees(intent.Amount); err == nil {
		details.EstimatedFee = fees.TotalFee
	}
	r.result.BridgeDetails = details
	r.result.ContractDetails = &domain.ContractDetails{ContractID: o.registry.ContractID(), Function: bridge.LockFunction}

	if err := r.lock(); err != nil {
		return r.fail(err)
	}
	snap, err := r.fetch()
	if err != nil {
		return r.fail(err)
	}
	env, err := r.build(intent, snap)
	if err != nil {
		return r.fail(err)
	}
	sub, err := r.signAndSubmit(env)
	if err != nil {
		return r.fail(err)
	}
	return r.succeed(sub, fmt.Sprintf("locked %s XLM for %s on %s", intent.Amount, intent.DestToken, details.DestChainName))
}

// errDestinationNotFound is a swap destination with no ledger record.
var errDestinationNotFound = fmt.Errorf("%w: destination account does not exist", domain.ErrTrustlineMissing)

// requireTrustline fails only when the ledger shows that destination lacks a
// trustline for asset. A check that could not complete does not block the run.
func (r *run) requireTrustline(snap domain.AccountSnapshot, destination string, asset domain.Asset) error {
	if destination == snap.Address {
		if !trustline.Evaluate(snap, asset).Exists {
			return fmt.Errorf("%w: %s has no trustline for %s", domain.ErrTrustlineMissing, destination, asset.Canonical())
		}
		return nil
	}
	if r.o.trustlines == nil {
		return nil
	}
	check, err := r.o.trustlines.CheckTrustline(r.ctx, destination, asset, r.result.Network)
	switch {
	case errors.Is(err, domain.ErrAccountNotFound):
		return fmt.Errorf("%w: %s", errDestinationNotFound, destination)
	case err != nil:
		// An unknown trustline is not a missing one.
		slog.Warn("pipeline: destination trustline check failed, continuing",
			"run", r.result.ID, "destination", destination, "asset", asset.Canonical(), "error", err)
		return nil
	}
	if !check.Exists {
		return fmt.Errorf("%w: %s has no trustline for %s", domain.ErrTrustlineMissing, destination, asset.Canonical())
	}
	return nil
}

func validateTarget(network domain.Network, account string) error {
	if !network.Valid() {
		return fmt.Errorf("%w: unknown network %q", domain.ErrInvalidIntent, network)
	}
	if err := domain.ValidateAccountAddress(account); err != nil {
		return fmt.Errorf("account: %w", err)
	}
	return nil
}

func validateSwap(req SwapRequest, slippageBps int) error {
	if err := validateTarget(req.Network, req.Account); err != nil {
		return err
	}
	if req.Destination != "" {
		if err := domain.ValidateAccountAddress(req.Destination); err != nil {
			return fmt.Errorf("destination: %w", err)
		}
	}
	if _, err := domain.ParseAmount(req.SendAmount); err != nil {
		return fmt.Errorf("send amount: %w", err)
	}
	if req.DestAsset.IsNative() {
		return fmt.Errorf("%w: destination asset must not be native", domain.ErrInvalidIntent)
	}
	if err := req.DestAsset.Validate(); err != nil {
		return fmt.Errorf("destination asset: %w", err)
	}
	if req.DestMin != "" {
		if _, err := domain.ParseAmount(req.DestMin); err != nil {
			return fmt.Errorf("destination minimum: %w", err)
		}
	}
	if slippageBps < 0 || slippageBps >= 10_000 {
		return fmt.Errorf("%w: slippage must be between 0 and 9999 bps", domain.ErrInvalidIntent)
	}
	return nil
}
