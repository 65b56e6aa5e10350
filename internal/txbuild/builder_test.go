package txbuild

import (
	"errors"
	"testing"
	"time"

	"github.com/stellar/go-stellar-sdk/txnbuild"
	"github.com/stellar/go-stellar-sdk/xdr"

	"github.com/mtlprog/kosh/internal/bridge"
	"github.com/mtlprog/kosh/internal/domain"
)

const (
	testSource    = "GAQ5ERJVI6IW5UVNPEVXUUVMXH3GCDHJ4BJAXMAAKPR5VBWWAUOMABIZ"
	testDest      = "GCNVDZIHGX473FEI7IXCUAEXUJ4BGCKEMHF36VYP5EMS7PX2QBLAMTLA"
	usdcIssuer    = "GA5ZSEJYB37JRC5AVCIA5MOP4RHTM335X2KGX3IHOJAPP5RE34K4KZVN"
	aquaIssuer    = "GBNZILSTVQZ4R7IKQDGHYGY2QXL5QOFJYQMXPKWRRM5PAV7Y4M67AQUA"
	testRecipient = "0x742d35Cc6634C0532925a3b844Bc454e4438f44e"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestBuilder(t *testing.T) *Builder {
	t.Helper()
	reg, err := bridge.NewRegistry("")
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return NewBuilder(reg, func() time.Time { return fixedNow })
}

func testSnapshot() domain.AccountSnapshot {
	return domain.AccountSnapshot{
		Address:        testSource,
		Network:        domain.NetworkTestnet,
		SequenceNumber: 4503599627370500,
		Balances: []domain.Balance{
			{AssetType: domain.AssetTypeNative, Amount: "100.0000000", IsAuthorized: true},
		},
	}
}

func decode(t *testing.T, env domain.Envelope) xdr.TransactionEnvelope {
	t.Helper()
	var e xdr.TransactionEnvelope
	if err := xdr.SafeUnmarshalBase64(env.XDR, &e); err != nil {
		t.Fatalf("decoding envelope: %v", err)
	}
	return e
}

func TestBuildNativePayment(t *testing.T) {
	b := newTestBuilder(t)
	snap := testSnapshot()

	env, err := b.Build(domain.NativePayment{Destination: testDest, Amount: "12.5", Memo: "rent"}, snap, domain.NetworkTestnet)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if env.SequenceNumber != snap.SequenceNumber+1 {
		t.Errorf("SequenceNumber = %d, want snapshot+1 = %d", env.SequenceNumber, snap.SequenceNumber+1)
	}
	if env.Fee != BaseFee {
		t.Errorf("Fee = %d, want %d", env.Fee, BaseFee)
	}
	if env.TimeoutSeconds != 300 {
		t.Errorf("TimeoutSeconds = %d, want 300", env.TimeoutSeconds)
	}
	if env.MaxTime != fixedNow.Add(300*time.Second).Unix() {
		t.Errorf("MaxTime = %d", env.MaxTime)
	}
	if env.Hash == "" || len(env.Hash) != 64 {
		t.Errorf("Hash = %q", env.Hash)
	}

	e := decode(t, env)
	ops := e.Operations()
	if len(ops) != 1 || ops[0].Body.Type != xdr.OperationTypePayment {
		t.Fatalf("operations = %+v", ops)
	}
	pay := ops[0].Body.PaymentOp
	if pay.Amount != 125_000_000 {
		t.Errorf("amount = %d stroops, want 125000000", pay.Amount)
	}
	if pay.Asset.Type != xdr.AssetTypeAssetTypeNative {
		t.Error("payment asset should be native")
	}
	if e.SeqNum() != snap.SequenceNumber+1 {
		t.Errorf("envelope seq = %d", e.SeqNum())
	}
}

func TestBuildPathPayment(t *testing.T) {
	b := newTestBuilder(t)
	intent := domain.PathPaymentStrictSend{
		SendAsset:  domain.NativeAsset(),
		SendAmount: "10",
		DestAsset:  domain.NewAsset("USDC", usdcIssuer),
		DestMin:    "1.2345678",
		Path:       []domain.Asset{domain.NewAsset("AQUA", aquaIssuer)},
	}

	env, err := b.Build(intent, testSnapshot(), domain.NetworkTestnet)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if env.TimeoutSeconds != 180 {
		t.Errorf("TimeoutSeconds = %d, want 180", env.TimeoutSeconds)
	}
	if env.Kind != domain.IntentPathPayment {
		t.Errorf("Kind = %s", env.Kind)
	}

	gen, err := txnbuild.TransactionFromXDR(env.XDR)
	if err != nil {
		t.Fatalf("TransactionFromXDR: %v", err)
	}
	tx, ok := gen.Transaction()
	if !ok {
		t.Fatal("expected a plain transaction")
	}
	op, ok := tx.Operations()[0].(*txnbuild.PathPaymentStrictSend)
	if !ok {
		t.Fatalf("operation = %T", tx.Operations()[0])
	}
	if op.Destination != testSource {
		t.Errorf("empty destination should default to the source, got %s", op.Destination)
	}
	if op.SendAmount != "10.0000000" || op.DestMin != "1.2345678" {
		t.Errorf("amounts = %s / %s", op.SendAmount, op.DestMin)
	}
	if len(op.Path) != 1 || op.Path[0].GetCode() != "AQUA" {
		t.Errorf("path = %+v", op.Path)
	}
}

func TestBuildChangeTrust(t *testing.T) {
	b := newTestBuilder(t)
	usdc := domain.NewAsset("USDC", usdcIssuer)

	tests := []struct {
		name      string
		limit     string
		wantLimit xdr.Int64
	}{
		{"full trust", domain.MaxTrustLimit, xdr.Int64(9223372036854775807)},
		{"bounded", "1000", xdr.Int64(10_000_000_000)},
		{"removal", "0", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := b.Build(domain.ChangeTrust{Asset: usdc, Limit: tt.limit}, testSnapshot(), domain.NetworkTestnet)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if env.TimeoutSeconds != 300 || env.Fee != BaseFee {
				t.Errorf("timeout/fee = %d/%d", env.TimeoutSeconds, env.Fee)
			}
			op := decode(t, env).Operations()[0].Body.ChangeTrustOp
			if op == nil {
				t.Fatal("expected a change trust operation")
			}
			if op.Limit != tt.wantLimit {
				t.Errorf("limit = %d, want %d", op.Limit, tt.wantLimit)
			}
		})
	}
}

func TestBuildBridgeLock(t *testing.T) {
	b := newTestBuilder(t)
	snap := testSnapshot()
	intent := domain.BridgeLock{
		UserAddress:      testSource,
		FromToken:        "XLM",
		DestToken:        "HOLSKEY",
		Amount:           "1.23456789",
		DestChain:        "17000",
		RecipientAddress: testRecipient,
	}

	env, err := b.Build(intent, snap, domain.NetworkTestnet)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if env.Fee != ContractFee {
		t.Errorf("Fee = %d, want elevated contract fee %d", env.Fee, ContractFee)
	}
	if env.TimeoutSeconds != 0 || env.MaxTime != 0 {
		t.Errorf("contract call should be unbounded, got timeout %d max %d", env.TimeoutSeconds, env.MaxTime)
	}
	if env.SequenceNumber != snap.SequenceNumber+1 {
		t.Errorf("SequenceNumber = %d", env.SequenceNumber)
	}

	op := decode(t, env).Operations()[0].Body.InvokeHostFunctionOp
	if op == nil || op.HostFunction.InvokeContract == nil {
		t.Fatal("expected a contract invocation")
	}
	call := op.HostFunction.InvokeContract
	if string(call.FunctionName) != "lock" {
		t.Errorf("function = %s", call.FunctionName)
	}
	if call.ContractAddress.Type != xdr.ScAddressTypeScAddressTypeContract {
		t.Errorf("contract address type = %v", call.ContractAddress.Type)
	}
	if len(call.Args) != 6 {
		t.Fatalf("args = %d, want 6", len(call.Args))
	}
	if call.Args[0].Address == nil || call.Args[0].Address.AccountId == nil {
		t.Fatal("first arg should be the user account address")
	}
	if got := call.Args[0].Address.AccountId.Address(); got != testSource {
		t.Errorf("user = %s", got)
	}
	if got := uint64(call.Args[3].I128.Lo); got != 12345678 {
		t.Errorf("amount = %d stroops, want 12345678 (floored)", got)
	}
	if got := string(*call.Args[4].Bytes); got != "17000" {
		t.Errorf("dest chain = %q", got)
	}
	if got := string(*call.Args[5].Str); got != testRecipient {
		t.Errorf("recipient = %q", got)
	}
}

func TestBuildBridgeLockMalformedRecipient(t *testing.T) {
	b := newTestBuilder(t)
	intent := domain.BridgeLock{
		UserAddress:      testSource,
		FromToken:        "XLM",
		DestToken:        "HOLSKEY",
		Amount:           "1.5",
		DestChain:        "17000",
		RecipientAddress: "abc123",
	}
	_, err := b.Build(intent, testSnapshot(), domain.NetworkTestnet)
	if !errors.Is(err, domain.ErrInvalidIntent) {
		t.Fatalf("error = %v, want ErrInvalidIntent", err)
	}
}

func TestBuildRejectsInvalidIntents(t *testing.T) {
	b := newTestBuilder(t)
	usdc := domain.NewAsset("USDC", usdcIssuer)

	tests := []struct {
		name   string
		intent domain.Intent
	}{
		{"nil intent", nil},
		{"payment to self", domain.NativePayment{Destination: testSource, Amount: "1"}},
		{"payment zero", domain.NativePayment{Destination: testDest, Amount: "0"}},
		{"payment bad destination", domain.NativePayment{Destination: "GXYZ", Amount: "1"}},
		{"swap same asset", domain.PathPaymentStrictSend{SendAsset: usdc, SendAmount: "1", DestAsset: usdc, DestMin: "1"}},
		{"swap missing destMin", domain.PathPaymentStrictSend{SendAsset: domain.NativeAsset(), SendAmount: "1", DestAsset: usdc}},
		{"trust native", domain.ChangeTrust{Asset: domain.NativeAsset(), Limit: "1"}},
		{"lock for another user", domain.BridgeLock{UserAddress: testDest, FromToken: "XLM", DestToken: "HOLSKEY", Amount: "1", DestChain: "17000", RecipientAddress: testRecipient}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := b.Build(tt.intent, testSnapshot(), domain.NetworkTestnet); !errors.Is(err, domain.ErrInvalidIntent) {
				t.Errorf("error = %v, want ErrInvalidIntent", err)
			}
		})
	}
}

func TestBuildIsDeterministic(t *testing.T) {
	b := newTestBuilder(t)
	intent := domain.NativePayment{Destination: testDest, Amount: "3"}

	first, err := b.Build(intent, testSnapshot(), domain.NetworkTestnet)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := b.Build(intent, testSnapshot(), domain.NetworkTestnet)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.XDR != second.XDR || first.Hash != second.Hash {
		t.Error("same inputs must build the same envelope")
	}

	mainnet, _ := b.Build(intent, testSnapshot(), domain.NetworkMainnet)
	if mainnet.Hash == first.Hash {
		t.Error("hash must depend on the network passphrase")
	}
}

func TestToStroopsFloors(t *testing.T) {
	got, err := ToStroops("1.23456789")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 12345678 {
		t.Errorf("ToStroops(1.23456789) = %d, want 12345678", got)
	}
}
