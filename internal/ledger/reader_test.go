package ledger

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/mtlprog/kosh/internal/domain"
	"github.com/mtlprog/kosh/internal/horizon/horizontest"
)

const (
	testAccount = "GAQ5ERJVI6IW5UVNPEVXUUVMXH3GCDHJ4BJAXMAAKPR5VBWWAUOMABIZ"
	testIssuer  = "GA5ZSEJYB37JRC5AVCIA5MOP4RHTM335X2KGX3IHOJAPP5RE34K4KZVN"
)

func TestGetAccountSnapshot(t *testing.T) {
	srv := horizontest.NewServer()
	t.Cleanup(srv.Close)
	srv.SetAccount(horizontest.Account(testAccount, "120259084288", "25.5000000",
		horizontest.Credit("USDC", testIssuer, "3.0000000")))

	r := NewReader(srv.Router())
	snap, err := r.GetAccountSnapshot(context.Background(), testAccount, domain.NetworkTestnet)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.SequenceNumber != 120259084288 {
		t.Errorf("SequenceNumber = %d", snap.SequenceNumber)
	}
	if snap.NextSequence() != 120259084289 {
		t.Errorf("NextSequence = %d", snap.NextSequence())
	}
	if len(snap.Balances) != 2 {
		t.Fatalf("balances = %d, want 2", len(snap.Balances))
	}
	if !snap.HasTrustline(domain.NewAsset("USDC", testIssuer)) {
		t.Error("USDC trustline should be present")
	}
	if got := snap.NativeBalance().String(); got != "25.5" {
		t.Errorf("native balance = %s", got)
	}
	if snap.FetchedAt.IsZero() {
		t.Error("FetchedAt should be set")
	}
}

func TestGetAccountSnapshotNotFound(t *testing.T) {
	srv := horizontest.NewServer()
	t.Cleanup(srv.Close)

	r := NewReader(srv.Router())
	_, err := r.GetAccountSnapshot(context.Background(), testAccount, domain.NetworkTestnet)
	if !errors.Is(err, domain.ErrAccountNotFound) {
		t.Fatalf("error = %v, want ErrAccountNotFound", err)
	}
	if errors.Is(err, domain.ErrLedgerUnavailable) {
		t.Error("not found must stay distinct from ledger unavailable")
	}
}

func TestGetAccountSnapshotUnavailable(t *testing.T) {
	srv := horizontest.NewServer()
	t.Cleanup(srv.Close)
	srv.AccountStatus = http.StatusInternalServerError

	r := NewReader(srv.Router())
	_, err := r.GetAccountSnapshot(context.Background(), testAccount, domain.NetworkTestnet)
	if !errors.Is(err, domain.ErrLedgerUnavailable) {
		t.Fatalf("error = %v, want ErrLedgerUnavailable", err)
	}
}

func TestGetAccountSnapshotTransportFault(t *testing.T) {
	srv := horizontest.NewServer()
	router := srv.Router()
	srv.Close()

	r := NewReader(router)
	_, err := r.GetAccountSnapshot(context.Background(), testAccount, domain.NetworkTestnet)
	if !errors.Is(err, domain.ErrLedgerUnavailable) {
		t.Fatalf("error = %v, want ErrLedgerUnavailable", err)
	}
}

func TestGetAccountSnapshotInvalidAddress(t *testing.T) {
	srv := horizontest.NewServer()
	t.Cleanup(srv.Close)

	r := NewReader(srv.Router())
	_, err := r.GetAccountSnapshot(context.Background(), "GBAD", domain.NetworkTestnet)
	if !errors.Is(err, domain.ErrInvalidIntent) {
		t.Fatalf("error = %v, want ErrInvalidIntent", err)
	}
	if srv.AccountCalls.Load() != 0 {
		t.Error("invalid address must not reach the ledger")
	}
}

func TestGetAccountAssets(t *testing.T) {
	srv := horizontest.NewServer()
	t.Cleanup(srv.Close)
	srv.SetAccount(horizontest.Account(testAccount, "1", "10.0000000",
		horizontest.Credit("USDC", testIssuer, "1.0000000")))

	r := NewReader(srv.Router())
	assets, err := r.GetAccountAssets(context.Background(), testAccount, domain.NetworkTestnet)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !assets.Success || len(assets.Assets) != 2 {
		t.Errorf("assets = %+v", assets)
	}
}

func TestGetAccountAssetsNotFoundIsAdvisory(t *testing.T) {
	srv := horizontest.NewServer()
	t.Cleanup(srv.Close)

	r := NewReader(srv.Router())
	assets, err := r.GetAccountAssets(context.Background(), testAccount, domain.NetworkTestnet)
	if err != nil {
		t.Fatalf("404 should not be an error: %v", err)
	}
	if assets.Success {
		t.Error("Success should be false")
	}
	if assets.Error == "" {
		t.Error("Error should describe the missing account")
	}
}

func TestGetAccountAssetsUnavailable(t *testing.T) {
	srv := horizontest.NewServer()
	t.Cleanup(srv.Close)
	srv.AccountStatus = http.StatusBadGateway

	r := NewReader(srv.Router())
	if _, err := r.GetAccountAssets(context.Background(), testAccount, domain.NetworkTestnet); !errors.Is(err, domain.ErrLedgerUnavailable) {
		t.Fatalf("error = %v, want ErrLedgerUnavailable", err)
	}
}
