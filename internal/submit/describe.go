package submit

import (
	"github.com/samber/lo"

	"github.com/mtlprog/kosh/internal/domain"
)

var operationMessages = map[string]string{
	"op_under_dest_min":     "insufficient liquidity to meet minimum; try a higher slippage tolerance",
	"op_too_few_offers":     "insufficient liquidity along the swap path",
	"op_over_source_max":    "swap would cost more than the maximum allowed",
	"op_no_destination":     "destination account does not exist",
	"op_no_trust":           "destination account does not trust the asset being sent",
	"op_src_no_trust":       "source account does not trust the asset being sent",
	"op_not_authorized":     "not authorized to send this asset",
	"op_src_not_authorized": "source account is not authorized to hold this asset",
	"op_line_full":          "destination account cannot receive more of this asset",
	"op_underfunded":        "insufficient balance",
	"op_low_reserve":        "balance would fall below the minimum reserve",
	"op_no_issuer":          "asset issuer does not exist",
	"op_invalid_limit":      "trust limit is below the current balance",
	"op_cross_self":         "swap would cross one of your own offers",
	"op_malformed":          "operation is malformed",
}

var transactionMessages = map[string]string{
	"tx_failed":               "transaction failed on the ledger",
	"tx_bad_seq":              "account sequence changed; refresh the account and try again",
	"tx_bad_auth":             "signature was not accepted by the network",
	"tx_insufficient_balance": "insufficient balance to cover the fee",
	"tx_insufficient_fee":     "network fee too low; try again",
	"tx_too_late":             "transaction expired before reaching the ledger",
	"tx_too_early":            "transaction is not valid yet",
	"tx_no_source_account":    "source account does not exist",
	"tx_internal_error":       "ledger internal error",
	"tx_soroban_invalid":      "contract call was rejected by the network",
	"tx_malformed":            "transaction is malformed",
}

// Describe turns ledger result codes into a user-facing message. The first
// failing operation wins; otherwise the transaction code is used.
func Describe(codes domain.ResultCodes) string {
	if op, ok := lo.Find(codes.Operations, func(c string) bool { return c != "op_success" }); ok {
		if msg, known := operationMessages[op]; known {
			return msg
		}
		return "transaction failed: " + op
	}
	if codes.Transaction == "" {
		return "transaction failed"
	}
	if msg, known := transactionMessages[codes.Transaction]; known {
		return msg
	}
	return "transaction failed: " + codes.Transaction
}
