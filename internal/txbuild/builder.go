package txbuild

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/stellar/go-stellar-sdk/strkey"
	"github.com/stellar/go-stellar-sdk/txnbuild"
	"github.com/stellar/go-stellar-sdk/xdr"

	"github.com/mtlprog/kosh/internal/bridge"
	"github.com/mtlprog/kosh/internal/domain"
)

const (
	// BaseFee is the per-operation fee for classic operations, in stroops.
	BaseFee int64 = txnbuild.MinBaseFee
	// ContractFee is the fixed fee for a contract invocation, in stroops.
	ContractFee int64 = 100_000

	PaymentTimeout = 300 * time.Second
	TrustTimeout   = 300 * time.Second
	SwapTimeout    = 180 * time.Second
)

// Builder turns validated intents into unsigned envelopes. Given the same
// intent, snapshot and clock reading it produces the same envelope.
type Builder struct {
	registry *bridge.Registry
	now      func() time.Time
}

// NewBuilder creates a transaction builder. A nil clock uses time.Now.
func NewBuilder(registry *bridge.Registry, clock func() time.Time) *Builder {
	if clock == nil {
		clock = time.Now
	}
	return &Builder{registry: registry, now: clock}
}

// ToStroops converts a decimal amount to stroops, flooring past 7 digits.
func ToStroops(amount string) (int64, error) {
	return domain.ToStroops(amount)
}

type plan struct {
	ops     []txnbuild.Operation
	baseFee int64
	timeout time.Duration
	memo    txnbuild.Memo
}

// Build assembles the envelope for intent from snap. It consumes
// snap.SequenceNumber+1 and never touches the network.
func (b *Builder) Build(intent domain.Intent, snap domain.AccountSnapshot, network domain.Network) (domain.Envelope, error) {
	if intent == nil {
		return domain.Envelope{}, fmt.Errorf("%w: intent is required", domain.ErrInvalidIntent)
	}
	if err := domain.ValidateAccountAddress(snap.Address); err != nil {
		return domain.Envelope{}, fmt.Errorf("source account: %w", err)
	}
	if snap.SequenceNumber < 0 {
		return domain.Envelope{}, fmt.Errorf("%w: negative sequence number", domain.ErrInvalidIntent)
	}

	var (
		p   plan
		err error
	)
	switch in := intent.(type) {
	case domain.NativePayment:
		p, err = b.nativePayment(in, snap)
	case domain.PathPaymentStrictSend:
		p, err = b.pathPayment(in, snap)
	case domain.ChangeTrust:
		p, err = b.changeTrust(in)
	case domain.BridgeLock:
		p, err = b.bridgeLock(in, snap)
	default:
		return domain.Envelope{}, fmt.Errorf("%w: unsupported intent %T", domain.ErrInvalidIntent, intent)
	}
	if err != nil {
		return domain.Envelope{}, err
	}

	bounds := txnbuild.NewInfiniteTimeout()
	if p.timeout > 0 {
		bounds = txnbuild.NewTimebounds(0, b.now().Add(p.timeout).Unix())
	}

	tx, err := txnbuild.NewTransaction(txnbuild.TransactionParams{
		SourceAccount:        &txnbuild.SimpleAccount{AccountID: snap.Address, Sequence: snap.SequenceNumber},
		IncrementSequenceNum: true,
		Operations:           p.ops,
		BaseFee:              p.baseFee,
		Memo:                 p.memo,
		Preconditions:        txnbuild.Preconditions{TimeBounds: bounds},
	})
	if err != nil {
		return domain.Envelope{}, fmt.Errorf("%w: %v", domain.ErrInvalidIntent, err)
	}

	encoded, err := tx.Base64()
	if err != nil {
		return domain.Envelope{}, fmt.Errorf("encoding envelope: %w", err)
	}
	hash, err := tx.HashHex(network.Passphrase())
	if err != nil {
		return domain.Envelope{}, fmt.Errorf("hashing envelope: %w", err)
	}

	return domain.Envelope{
		Kind:           intent.Kind(),
		Network:        network,
		SourceAccount:  snap.Address,
		SequenceNumber: tx.SequenceNumber(),
		OperationCount: len(p.ops),
		Fee:            tx.MaxFee(),
		TimeoutSeconds: int64(p.timeout / time.Second),
		MaxTime:        bounds.MaxTime,
		XDR:            encoded,
		Hash:           hash,
	}, nil
}

func (b *Builder) nativePayment(in domain.NativePayment, snap domain.AccountSnapshot) (plan, error) {
	if err := in.Validate(); err != nil {
		return plan{}, err
	}
	if in.Destination == snap.Address {
		return plan{}, fmt.Errorf("%w: cannot pay yourself", domain.ErrInvalidIntent)
	}
	amount, err := domain.ParseAmount(in.Amount)
	if err != nil {
		return plan{}, err
	}
	p := plan{
		ops: []txnbuild.Operation{&txnbuild.Payment{
			Destination: in.Destination,
			Amount:      domain.TruncateAmount(amount),
			Asset:       txnbuild.NativeAsset{},
		}},
		baseFee: BaseFee,
		timeout: PaymentTimeout,
	}
	if in.Memo != "" {
		p.memo = txnbuild.MemoText(in.Memo)
	}
	return p, nil
}

func (b *Builder) pathPayment(in domain.PathPaymentStrictSend, snap domain.AccountSnapshot) (plan, error) {
	if err := in.Validate(); err != nil {
		return plan{}, err
	}
	destination := in.Destination
	if destination == "" {
		destination = snap.Address
	}
	sendAmount, _ := domain.ParseAmount(in.SendAmount)
	destMin, _ := domain.ParseAmount(in.DestMin)

	path := make([]txnbuild.Asset, len(in.Path))
	for i, hop := range in.Path {
		path[i] = toTxnAsset(hop)
	}

	return plan{
		ops: []txnbuild.Operation{&txnbuild.PathPaymentStrictSend{
			SendAsset:   toTxnAsset(in.SendAsset),
			SendAmount:  domain.TruncateAmount(sendAmount),
			Destination: destination,
			DestAsset:   toTxnAsset(in.DestAsset),
			DestMin:     domain.TruncateAmount(destMin),
			Path:        path,
		}},
		baseFee: BaseFee,
		timeout: SwapTimeout,
	}, nil
}

func (b *Builder) changeTrust(in domain.ChangeTrust) (plan, error) {
	if err := in.Validate(); err != nil {
		return plan{}, err
	}
	line, err := toTxnAsset(in.Asset).ToChangeTrustAsset()
	if err != nil {
		return plan{}, fmt.Errorf("%w: %v", domain.ErrInvalidIntent, err)
	}
	limit := "0"
	if !in.IsRemoval() {
		limit = domain.TruncateAmount(domain.SafeParse(in.Limit))
	}
	return plan{
		ops:     []txnbuild.Operation{&txnbuild.ChangeTrust{Line: line, Limit: limit}},
		baseFee: BaseFee,
		timeout: TrustTimeout,
	}, nil
}

func (b *Builder) bridgeLock(in domain.BridgeLock, snap domain.AccountSnapshot) (plan, error) {
	if b.registry == nil {
		return plan{}, fmt.Errorf("%w: bridge is not configured", domain.ErrInvalidIntent)
	}
	if err := b.registry.ValidateLock(in); err != nil {
		return plan{}, err
	}
	if in.UserAddress != snap.Address {
		return plan{}, fmt.Errorf("%w: user address must be the source account", domain.ErrInvalidIntent)
	}
	stroops, err := domain.ToStroops(in.Amount)
	if err != nil {
		return plan{}, err
	}
	args, err := LockArgs(in, stroops)
	if err != nil {
		return plan{}, err
	}
	contract, err := contractAddress(b.registry.ContractID())
	if err != nil {
		return plan{}, err
	}

	return plan{
		ops: []txnbuild.Operation{&txnbuild.InvokeHostFunction{
			HostFunction: xdr.HostFunction{
				Type: xdr.HostFunctionTypeHostFunctionTypeInvokeContract,
				InvokeContract: &xdr.InvokeContractArgs{
					ContractAddress: contract,
					FunctionName:    xdr.ScSymbol(bridge.LockFunction),
					Args:            args,
				},
			},
			SourceAccount: snap.Address,
		}},
		baseFee: ContractFee,
	}, nil
}

// LockArgs encodes the lock call arguments: user address, source token
// symbol, destination token symbol, amount as i128 stroops, destination
// chain as bytes and the recipient as a string.
func LockArgs(in domain.BridgeLock, stroops int64) (xdr.ScVec, error) {
	if stroops <= 0 {
		return nil, fmt.Errorf("%w: lock amount must be positive", domain.ErrInvalidIntent)
	}
	accountID, err := xdr.AddressToAccountId(in.UserAddress)
	if err != nil {
		return nil, fmt.Errorf("%w: user address: %v", domain.ErrInvalidIntent, err)
	}
	user := xdr.ScAddress{Type: xdr.ScAddressTypeScAddressTypeAccount, AccountId: &accountID}
	fromToken := xdr.ScSymbol(bridge.SourceToken)
	destToken := xdr.ScSymbol(in.DestToken)
	chain := xdr.ScBytes(in.DestChain)
	recipient := xdr.ScString(in.RecipientAddress)

	return xdr.ScVec{
		{Type: xdr.ScValTypeScvAddress, Address: &user},
		{Type: xdr.ScValTypeScvSymbol, Sym: &fromToken},
		{Type: xdr.ScValTypeScvSymbol, Sym: &destToken},
		{Type: xdr.ScValTypeScvI128, I128: &xdr.Int128Parts{Hi: 0, Lo: xdr.Uint64(stroops)}},
		{Type: xdr.ScValTypeScvBytes, Bytes: &chain},
		{Type: xdr.ScValTypeScvString, Str: &recipient},
	}, nil
}

// contractAddress decodes a C... strkey into a contract ScAddress.
func contractAddress(id string) (xdr.ScAddress, error) {
	raw, err := strkey.Decode(strkey.VersionByteContract, id)
	if err != nil {
		return xdr.ScAddress{}, fmt.Errorf("%w: contract id %q: %v", domain.ErrInvalidIntent, id, err)
	}
	buf := make([]byte, 4, 4+len(raw))
	binary.BigEndian.PutUint32(buf, uint32(xdr.ScAddressTypeScAddressTypeContract))
	buf = append(buf, raw...)

	var addr xdr.ScAddress
	if err := addr.UnmarshalBinary(buf); err != nil {
		return xdr.ScAddress{}, fmt.Errorf("decoding contract address: %w", err)
	}
	return addr, nil
}

func toTxnAsset(a domain.Asset) txnbuild.Asset {
	if a.IsNative() {
		return txnbuild.NativeAsset{}
	}
	return txnbuild.CreditAsset{Code: a.Code, Issuer: a.Issuer}
}
