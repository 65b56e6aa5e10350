package pipeline

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stellar/go-stellar-sdk/xdr"

	"github.com/mtlprog/kosh/internal/bridge"
	"github.com/mtlprog/kosh/internal/domain"
	"github.com/mtlprog/kosh/internal/horizon"
	"github.com/mtlprog/kosh/internal/horizon/horizontest"
	"github.com/mtlprog/kosh/internal/ledger"
	"github.com/mtlprog/kosh/internal/quote"
	"github.com/mtlprog/kosh/internal/submit"
	"github.com/mtlprog/kosh/internal/trustline"
	"github.com/mtlprog/kosh/internal/txbuild"
)

const (
	testAccount   = "GAQ5ERJVI6IW5UVNPEVXUUVMXH3GCDHJ4BJAXMAAKPR5VBWWAUOMABIZ"
	testDest      = "GCNVDZIHGX473FEI7IXCUAEXUJ4BGCKEMHF36VYP5EMS7PX2QBLAMTLA"
	usdcIssuer    = "GA5ZSEJYB37JRC5AVCIA5MOP4RHTM335X2KGX3IHOJAPP5RE34K4KZVN"
	testRecipient = "0x742d35Cc6634C0532925a3b844Bc454e4438f44e"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func usdc() domain.Asset { return domain.NewAsset("USDC", usdcIssuer) }

// fakeSigner echoes the envelope back as signed unless told otherwise.
type fakeSigner struct {
	mu      sync.Mutex
	calls   int
	err     error
	replace string
	entered chan struct{}
	block   chan struct{}
}

func (f *fakeSigner) Sign(ctx context.Context, address, envelopeXDR string, network domain.Network) (string, error) {
	f.mu.Lock()
	f.calls++
	err, replace := f.err, f.replace
	f.mu.Unlock()

	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
	if err != nil {
		return "", err
	}
	if replace != "" {
		return replace, nil
	}
	return envelopeXDR, nil
}

func (f *fakeSigner) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type memJournal struct {
	mu      sync.Mutex
	results []domain.RunResult
}

func (j *memJournal) Record(_ context.Context, r domain.RunResult) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.results = append(j.results, r)
	return nil
}

type fixture struct {
	srv        *horizontest.Server
	signer     *fakeSigner
	journal    *memJournal
	trustlines *trustline.Service
	builder    *txbuild.Builder
	orch       *Orchestrator

	mu     sync.Mutex
	stages []domain.Stage
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	srv := horizontest.NewServer()
	t.Cleanup(srv.Close)

	registry, err := bridge.NewRegistry("")
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	router := srv.Router()
	reader := ledger.NewReader(router)
	f := &fixture{
		srv:        srv,
		signer:     &fakeSigner{},
		journal:    &memJournal{},
		trustlines: trustline.NewService(reader, nil),
		builder:    txbuild.NewBuilder(registry, func() time.Time { return fixedNow }),
	}
	f.orch = New(Config{
		Reader:      reader,
		Quoter:      quote.NewService(router, 0),
		Trustlines:  f.trustlines,
		Builder:     f.builder,
		Registry:    registry,
		Signer:      f.signer,
		Submitter:   submit.NewSubmitter(router, 1, time.Millisecond),
		Journal:     f.journal,
		SlippageBps: 100,
		Clock:       func() time.Time { return fixedNow },
	})
	return f
}

func (f *fixture) progress(p domain.Progress) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stages = append(f.stages, p.Stage)
}

func (f *fixture) seen() []domain.Stage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Stage(nil), f.stages...)
}

func (f *fixture) fundAccount(credits ...horizon.HorizonBalance) {
	f.srv.SetAccount(horizontest.Account(testAccount, "4503599627370500", "500.0000000", credits...))
}

func usdcPath(amount string) []horizon.HorizonPathRecord {
	return []horizon.HorizonPathRecord{{
		SourceAssetType:        "native",
		SourceAmount:           "10.0000000",
		DestinationAssetType:   "credit_alphanum4",
		DestinationAssetCode:   "USDC",
		DestinationAssetIssuer: usdcIssuer,
		DestinationAmount:      amount,
	}}
}

func TestPaySucceeds(t *testing.T) {
	f := newFixture(t)
	f.fundAccount()

	res := f.orch.Pay(context.Background(), PayRequest{
		Network: domain.NetworkTestnet, Account: testAccount, Destination: testDest, Amount: "12.5",
	}, f.progress)

	if !res.Success {
		t.Fatalf("run failed: %+v", res.Error)
	}
	want := []domain.Stage{
		domain.StageValidating, domain.StageFetchingAccount, domain.StageBuilding,
		domain.StageSigning, domain.StageSubmitting, domain.StageSucceeded,
	}
	if got := f.seen(); !slices.Equal(got, want) {
		t.Errorf("stages = %v, want %v", got, want)
	}
	if res.Hash == "" || res.Ledger != 4242 {
		t.Errorf("hash/ledger = %q/%d", res.Hash, res.Ledger)
	}
	if !strings.HasPrefix(res.ExplorerURL, "https://stellar.expert/explorer/testnet/tx/") {
		t.Errorf("ExplorerURL = %q", res.ExplorerURL)
	}
	if res.ID == "" {
		t.Error("run id must be set")
	}

	submitted := f.srv.SubmittedEnvelopes()
	if len(submitted) != 1 {
		t.Fatalf("submitted %d envelopes, want 1", len(submitted))
	}
	var env xdr.TransactionEnvelope
	if err := xdr.SafeUnmarshalBase64(submitted[0], &env); err != nil {
		t.Fatalf("decoding submitted envelope: %v", err)
	}
	if env.SeqNum() != 4503599627370501 {
		t.Errorf("sequence = %d, want snapshot+1", env.SeqNum())
	}

	if len(f.journal.results) != 1 || f.journal.results[0].ID != res.ID {
		t.Errorf("journal = %+v", f.journal.results)
	}
}

func TestUnfundedAccountStopsAtFetch(t *testing.T) {
	f := newFixture(t)

	res := f.orch.Pay(context.Background(), PayRequest{
		Network: domain.NetworkTestnet, Account: testAccount, Destination: testDest, Amount: "1",
	}, f.progress)

	if res.Success || res.Error == nil || res.Error.Kind != domain.KindAccountNotFound {
		t.Fatalf("result = %+v", res)
	}
	if res.FailedAt != domain.StageFetchingAccount {
		t.Errorf("FailedAt = %s, want FETCHING_ACCOUNT", res.FailedAt)
	}
	if slices.Contains(f.seen(), domain.StageBuilding) {
		t.Error("run must not reach BUILDING for an unfunded account")
	}
	if f.signer.Calls() != 0 || f.srv.SubmitCalls.Load() != 0 {
		t.Error("signer and submitter must not be contacted")
	}
}

func TestSwapNoPathSkipsSigner(t *testing.T) {
	f := newFixture(t)
	f.fundAccount(horizontest.Credit("USDC", usdcIssuer, "0.0000000"))

	res := f.orch.Swap(context.Background(), SwapRequest{
		Network: domain.NetworkTestnet, Account: testAccount, SendAmount: "10", DestAsset: usdc(),
	}, f.progress)

	if res.Error == nil || res.Error.Kind != domain.KindNoPathAvailable {
		t.Fatalf("result = %+v", res)
	}
	if res.Message != "no swap path available" {
		t.Errorf("Message = %q", res.Message)
	}
	if f.srv.PathCalls.Load() != 1 {
		t.Errorf("path calls = %d, want 1", f.srv.PathCalls.Load())
	}
	if f.signer.Calls() != 0 {
		t.Error("signer must not be contacted when no path exists")
	}
}

func TestSwapRequiresTrustline(t *testing.T) {
	f := newFixture(t)
	f.fundAccount()
	f.srv.SetPaths(usdcPath("1.2345678"))

	res := f.orch.Swap(context.Background(), SwapRequest{
		Network: domain.NetworkTestnet, Account: testAccount, SendAmount: "10", DestAsset: usdc(),
	}, nil)

	if res.Error == nil || res.Error.Kind != domain.KindTrustlineMissing {
		t.Fatalf("result = %+v", res)
	}
	if f.srv.PathCalls.Load() != 0 {
		t.Error("quote must not be requested without a trustline")
	}
}

func TestSwapToUnfundedDestination(t *testing.T) {
	f := newFixture(t)
	f.fundAccount()
	f.srv.SetPaths(usdcPath("1.2345678"))

	res := f.orch.Swap(context.Background(), SwapRequest{
		Network: domain.NetworkTestnet, Account: testAccount, Destination: testDest, SendAmount: "10", DestAsset: usdc(),
	}, f.progress)

	if res.Error == nil || res.Error.Kind != domain.KindTrustlineMissing {
		t.Fatalf("result = %+v", res)
	}
	if res.Error.Message != "destination account does not exist" {
		t.Errorf("Message = %q", res.Error.Message)
	}
	if res.FailedAt != domain.StageBuilding {
		t.Errorf("FailedAt = %s, want BUILDING", res.FailedAt)
	}
	if f.srv.PathCalls.Load() != 0 || f.signer.Calls() != 0 {
		t.Error("no quote or signature for a missing destination")
	}
}

// unreachableTrustlines fails every destination check as if Horizon were down.
type unreachableTrustlines struct {
	*trustline.Service
	calls int
}

func (u *unreachableTrustlines) CheckTrustline(ctx context.Context, address string, asset domain.Asset, network domain.Network) (trustline.TrustlineCheck, error) {
	u.calls++
	return trustline.TrustlineCheck{}, domain.ErrLedgerUnavailable
}

func TestSwapContinuesWhenDestinationCheckFails(t *testing.T) {
	f := newFixture(t)
	f.fundAccount()
	f.srv.SetPaths(usdcPath("1.2345678"))
	tl := &unreachableTrustlines{Service: f.trustlines}
	f.orch.trustlines = tl

	res := f.orch.Swap(context.Background(), SwapRequest{
		Network: domain.NetworkTestnet, Account: testAccount, Destination: testDest, SendAmount: "10", DestAsset: usdc(),
	}, nil)

	if !res.Success {
		t.Fatalf("run failed: %+v", res.Error)
	}
	if tl.calls != 1 {
		t.Errorf("destination checks = %d, want 1", tl.calls)
	}
	if f.srv.SubmitCalls.Load() != 1 {
		t.Errorf("submit calls = %d, want 1", f.srv.SubmitCalls.Load())
	}
}

func TestSwapDerivesDestMinFromQuote(t *testing.T) {
	f := newFixture(t)
	f.fundAccount(horizontest.Credit("USDC", usdcIssuer, "0.0000000"))
	f.srv.SetPaths(usdcPath("1.2345678"))

	res := f.orch.Swap(context.Background(), SwapRequest{
		Network: domain.NetworkTestnet, Account: testAccount, SendAmount: "10", DestAsset: usdc(),
	}, nil)

	if !res.Success {
		t.Fatalf("run failed: %+v", res.Error)
	}
	if res.SwapDetails == nil || res.SwapDetails.DestMin != "1.2222221" || res.SwapDetails.Expected != "1.2345678" {
		t.Errorf("SwapDetails = %+v", res.SwapDetails)
	}
}

func TestSwapRejectionKeepsRawCodes(t *testing.T) {
	f := newFixture(t)
	f.fundAccount(horizontest.Credit("USDC", usdcIssuer, "0.0000000"))
	f.srv.SetPaths(usdcPath("1.2345678"))
	f.srv.SetSubmitResponse(http.StatusBadRequest,
		`{"title":"Transaction Failed","status":400,"extras":{"result_codes":{"transaction":"tx_failed","operations":["op_under_dest_min"]}}}`)

	res := f.orch.Swap(context.Background(), SwapRequest{
		Network: domain.NetworkTestnet, Account: testAccount, SendAmount: "10", DestAsset: usdc(),
	}, nil)

	if res.Error == nil || res.Error.Kind != domain.KindSubmissionFailed {
		t.Fatalf("result = %+v", res)
	}
	if !strings.Contains(res.Error.Message, "insufficient liquidity to meet minimum") {
		t.Errorf("Message = %q", res.Error.Message)
	}
	if !slices.Contains(res.Error.ResultCodes.Operations, "op_under_dest_min") {
		t.Errorf("raw codes lost: %+v", res.Error.ResultCodes)
	}
	if res.FailedAt != domain.StageSubmitting {
		t.Errorf("FailedAt = %s", res.FailedAt)
	}
}

type failedOnLedgerSubmitter struct{}

func (failedOnLedgerSubmitter) Submit(context.Context, string, domain.Network) (domain.Submission, error) {
	return domain.Submission{}, &domain.SubmissionError{
		Status:      504,
		Title:       "Transaction Failed",
		ResultCodes: domain.ResultCodes{Transaction: "tx_failed"},
		ResultXDR:   "AAAAAAAAAGT/////AAAAAQAAAAAAAAAC/////wAAAAA=",
		Hash:        "3389e9f0f1a65f19736cacf544c2e825313e8447f569233bb8db39aa607c8889",
	}
}

func TestFailedSubmissionKeepsResultXDR(t *testing.T) {
	f := newFixture(t)
	f.fundAccount()
	f.orch.submitter = failedOnLedgerSubmitter{}

	res := f.orch.Pay(context.Background(), PayRequest{
		Network: domain.NetworkTestnet, Account: testAccount, Destination: testDest, Amount: "1",
	}, nil)

	if res.Error == nil || res.Error.Kind != domain.KindSubmissionFailed {
		t.Fatalf("result = %+v", res)
	}
	if res.Error.ResultXDR != "AAAAAAAAAGT/////AAAAAQAAAAAAAAAC/////wAAAAA=" {
		t.Errorf("ResultXDR = %q", res.Error.ResultXDR)
	}
	if res.Error.ResultCodes.Transaction != "tx_failed" {
		t.Errorf("ResultCodes = %+v", res.Error.ResultCodes)
	}
	if res.Hash == "" {
		t.Error("hash of the failed transaction should be kept")
	}
}

func TestChangeTrustAlreadyTrusted(t *testing.T) {
	f := newFixture(t)
	f.fundAccount(horizontest.Credit("USDC", usdcIssuer, "5.0000000"))

	res := f.orch.ChangeTrust(context.Background(), ChangeTrustRequest{
		Network: domain.NetworkTestnet, Account: testAccount, Asset: usdc(),
	}, nil)

	if !res.Success || !res.AlreadyTrusted {
		t.Fatalf("result = %+v", res)
	}
	if res.Hash != "" {
		t.Error("no transaction should be submitted")
	}
	if f.signer.Calls() != 0 || f.srv.SubmitCalls.Load() != 0 {
		t.Error("already trusted must short-circuit before signing")
	}
}

func TestChangeTrustMarksOptimisticStatus(t *testing.T) {
	f := newFixture(t)
	f.fundAccount()

	res := f.orch.ChangeTrust(context.Background(), ChangeTrustRequest{
		Network: domain.NetworkTestnet, Account: testAccount, Asset: usdc(),
	}, nil)
	if !res.Success || res.AlreadyTrusted {
		t.Fatalf("result = %+v", res)
	}

	st := f.trustlines.Status(testAccount, usdc(), domain.NetworkTestnet)
	if st.State != trustline.StateExists || !st.Optimistic {
		t.Errorf("status = %+v, want optimistic EXISTS", st)
	}
}

func TestChangeTrustRemovalNeedsZeroBalance(t *testing.T) {
	f := newFixture(t)
	f.fundAccount(horizontest.Credit("USDC", usdcIssuer, "5.0000000"))

	res := f.orch.ChangeTrust(context.Background(), ChangeTrustRequest{
		Network: domain.NetworkTestnet, Account: testAccount, Asset: usdc(), Limit: "0",
	}, nil)
	if res.Error == nil || res.Error.Kind != domain.KindInvalidIntent {
		t.Fatalf("result = %+v", res)
	}
	if f.signer.Calls() != 0 {
		t.Error("signer must not be contacted")
	}
}

func TestChangeTrustMalformedLimitIsNotRemoval(t *testing.T) {
	for _, limit := range []string{"1,000", "1 000", "abc"} {
		t.Run(limit, func(t *testing.T) {
			f := newFixture(t)
			f.fundAccount(horizontest.Credit("USDC", usdcIssuer, "0.0000000"))

			res := f.orch.ChangeTrust(context.Background(), ChangeTrustRequest{
				Network: domain.NetworkTestnet, Account: testAccount, Asset: usdc(), Limit: limit,
			}, nil)
			if res.Error == nil || res.Error.Kind != domain.KindInvalidIntent {
				t.Fatalf("result = %+v", res)
			}
			if f.signer.Calls() != 0 || f.srv.SubmitCalls.Load() != 0 {
				t.Error("malformed limit must not be signed or submitted")
			}
		})
	}
}

func TestBridgeMalformedRecipientMakesNoCalls(t *testing.T) {
	f := newFixture(t)
	f.fundAccount()

	res := f.orch.Bridge(context.Background(), BridgeRequest{
		Network: domain.NetworkTestnet, Account: testAccount, DestToken: "HOLSKEY",
		Amount: "1.5", DestChain: "17000", RecipientAddress: "abc123",
	}, f.progress)

	if res.Error == nil || res.Error.Kind != domain.KindInvalidIntent {
		t.Fatalf("result = %+v", res)
	}
	if got := f.seen(); !slices.Equal(got, []domain.Stage{domain.StageValidating, domain.StageFailed}) {
		t.Errorf("stages = %v", got)
	}
	if n := f.srv.AccountCalls.Load() + f.srv.PathCalls.Load() + f.srv.SubmitCalls.Load(); n != 0 {
		t.Errorf("made %d ledger calls, want 0", n)
	}
}

func TestBridgeSucceeds(t *testing.T) {
	f := newFixture(t)
	f.fundAccount()

	res := f.orch.Bridge(context.Background(), BridgeRequest{
		Network: domain.NetworkTestnet, Account: testAccount, DestToken: "holskey",
		Amount: "1.5", DestChain: "17000", RecipientAddress: testRecipient,
	}, nil)

	if !res.Success {
		t.Fatalf("run failed: %+v", res.Error)
	}
	if res.BridgeDetails == nil || res.BridgeDetails.AmountStroops != 15_000_000 || res.BridgeDetails.DestChainName != "Holesky Testnet" {
		t.Errorf("BridgeDetails = %+v", res.BridgeDetails)
	}
	if res.ContractDetails == nil || res.ContractDetails.Function != "lock" || res.ContractDetails.ContractID != bridge.DefaultContractID {
		t.Errorf("ContractDetails = %+v", res.ContractDetails)
	}
}

func TestSigningUnavailableReturnsUnsignedEnvelope(t *testing.T) {
	f := newFixture(t)
	f.fundAccount()
	f.signer.err = domain.ErrSigningUnavailable

	res := f.orch.Pay(context.Background(), PayRequest{
		Network: domain.NetworkTestnet, Account: testAccount, Destination: testDest, Amount: "1",
	}, nil)

	if res.Error == nil || res.Error.Kind != domain.KindSigningUnavailable {
		t.Fatalf("result = %+v", res)
	}
	if res.EnvelopeXDR == "" {
		t.Error("unsigned envelope must be returned for manual signing")
	}
	if f.srv.SubmitCalls.Load() != 0 {
		t.Error("nothing must be submitted")
	}
}

func TestSignerReturningAnotherTransactionIsRejected(t *testing.T) {
	f := newFixture(t)
	f.fundAccount()

	other, err := f.builder.Build(domain.NativePayment{Destination: testDest, Amount: "999"},
		domain.AccountSnapshot{Address: testAccount, SequenceNumber: 4503599627370500}, domain.NetworkTestnet)
	if err != nil {
		t.Fatalf("building decoy: %v", err)
	}
	f.signer.replace = other.XDR

	res := f.orch.Pay(context.Background(), PayRequest{
		Network: domain.NetworkTestnet, Account: testAccount, Destination: testDest, Amount: "1",
	}, nil)
	if res.Error == nil || res.Error.Kind != domain.KindSigningRejected {
		t.Fatalf("result = %+v", res)
	}
	if f.srv.SubmitCalls.Load() != 0 {
		t.Error("a substituted envelope must not be submitted")
	}
}

func TestStaleSnapshotRejected(t *testing.T) {
	f := newFixture(t)
	f.fundAccount()
	req := PayRequest{Network: domain.NetworkTestnet, Account: testAccount, Destination: testDest, Amount: "1"}

	if res := f.orch.Pay(context.Background(), req, nil); !res.Success {
		t.Fatalf("first run failed: %+v", res.Error)
	}
	// The double still reports the old sequence, so the next build would reuse it.
	res := f.orch.Pay(context.Background(), req, nil)
	if res.Error == nil || res.Error.Kind != domain.KindStaleSnapshot {
		t.Fatalf("result = %+v", res)
	}
	if res.FailedAt != domain.StageBuilding {
		t.Errorf("FailedAt = %s", res.FailedAt)
	}
	if f.signer.Calls() != 1 {
		t.Errorf("signer calls = %d, want 1", f.signer.Calls())
	}
}

func TestConcurrentRunRejected(t *testing.T) {
	f := newFixture(t)
	f.fundAccount()
	f.signer.entered = make(chan struct{}, 1)
	f.signer.block = make(chan struct{})
	req := PayRequest{Network: domain.NetworkTestnet, Account: testAccount, Destination: testDest, Amount: "1"}

	done := make(chan domain.RunResult)
	go func() { done <- f.orch.Pay(context.Background(), req, nil) }()
	<-f.signer.entered

	if !f.orch.InFlight(domain.NetworkTestnet, testAccount) {
		t.Error("account should be in flight")
	}
	second := f.orch.Pay(context.Background(), req, nil)
	if second.Error == nil || second.Error.Kind != domain.KindConcurrentRun {
		t.Errorf("second run = %+v", second)
	}

	close(f.signer.block)
	if first := <-done; !first.Success {
		t.Errorf("first run failed: %+v", first.Error)
	}
	if f.orch.InFlight(domain.NetworkTestnet, testAccount) {
		t.Error("account should be released")
	}
}

func TestCancelledContextDoesNotAbortAfterSigning(t *testing.T) {
	f := newFixture(t)
	f.fundAccount()
	f.signer.entered = make(chan struct{}, 1)
	f.signer.block = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan domain.RunResult)
	go func() {
		done <- f.orch.Pay(ctx, PayRequest{Network: domain.NetworkTestnet, Account: testAccount, Destination: testDest, Amount: "1"}, nil)
	}()
	<-f.signer.entered
	cancel()
	close(f.signer.block)

	if res := <-done; !res.Success {
		t.Fatalf("run failed after cancellation past signing: %+v", res.Error)
	}
}

func TestValidationRejectsBeforeIO(t *testing.T) {
	f := newFixture(t)
	f.fundAccount()

	tests := []struct {
		name string
		run  func() domain.RunResult
	}{
		{"pay to self", func() domain.RunResult {
			return f.orch.Pay(context.Background(), PayRequest{Network: domain.NetworkTestnet, Account: testAccount, Destination: testAccount, Amount: "1"}, nil)
		}},
		{"unknown network", func() domain.RunResult {
			return f.orch.Pay(context.Background(), PayRequest{Network: "futurenet", Account: testAccount, Destination: testDest, Amount: "1"}, nil)
		}},
		{"swap to native", func() domain.RunResult {
			return f.orch.Swap(context.Background(), SwapRequest{Network: domain.NetworkTestnet, Account: testAccount, SendAmount: "1", DestAsset: domain.NativeAsset()}, nil)
		}},
		{"swap slippage out of range", func() domain.RunResult {
			bps := 10_000
			return f.orch.Swap(context.Background(), SwapRequest{Network: domain.NetworkTestnet, Account: testAccount, SendAmount: "1", DestAsset: usdc(), SlippageBps: &bps}, nil)
		}},
		{"trust native", func() domain.RunResult {
			return f.orch.ChangeTrust(context.Background(), ChangeTrustRequest{Network: domain.NetworkTestnet, Account: testAccount, Asset: domain.NativeAsset()}, nil)
		}},
		{"bridge unknown chain", func() domain.RunResult {
			return f.orch.Bridge(context.Background(), BridgeRequest{Network: domain.NetworkTestnet, Account: testAccount, DestToken: "USDC", Amount: "1", DestChain: "1", RecipientAddress: testRecipient}, nil)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := tt.run()
			if res.Error == nil || res.Error.Kind != domain.KindInvalidIntent {
				t.Errorf("result = %+v", res)
			}
			if res.FailedAt != domain.StageValidating {
				t.Errorf("FailedAt = %s", res.FailedAt)
			}
		})
	}
	if f.srv.AccountCalls.Load() != 0 {
		t.Errorf("account calls = %d, want 0", f.srv.AccountCalls.Load())
	}
}

func TestUserMessageFallsBackToTitle(t *testing.T) {
	err := &domain.SubmissionError{Status: 504, Title: "Submission Outcome Unknown"}
	if got := userMessage(domain.KindSubmissionFailed, err); got != "Submission Outcome Unknown" {
		t.Errorf("userMessage() = %q", got)
	}
	if got := userMessage(domain.ClassifyError(errors.New("x")), errors.New("x")); got != "unexpected error" {
		t.Errorf("userMessage() = %q", got)
	}
}
