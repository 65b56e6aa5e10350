package horizon

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/tidwall/gjson"
)

// Problem is Horizon's structured rejection of a submitted transaction.
type Problem struct {
	Status                int
	Title                 string
	Detail                string
	TransactionResultCode string
	OperationResultCodes  []string
	ResultXDR             string
}

func (p *Problem) Error() string {
	msg := fmt.Sprintf("horizon problem %d %s", p.Status, p.Title)
	if p.TransactionResultCode != "" {
		msg += " (" + p.TransactionResultCode + ")"
	}
	return msg
}

// ParseProblem extracts the problem document fields, including
// extras.result_codes, from a Horizon error body.
func ParseProblem(status int, body []byte) *Problem {
	doc := gjson.ParseBytes(body)
	p := &Problem{
		Status:                status,
		Title:                 doc.Get("title").String(),
		Detail:                doc.Get("detail").String(),
		TransactionResultCode: doc.Get("extras.result_codes.transaction").String(),
		ResultXDR:             doc.Get("extras.result_xdr").String(),
	}
	if s := doc.Get("status").Int(); s != 0 {
		p.Status = int(s)
	}
	for _, op := range doc.Get("extras.result_codes.operations").Array() {
		p.OperationResultCodes = append(p.OperationResultCodes, op.String())
	}
	if p.Title == "" {
		p.Title = "Transaction Failed"
	}
	return p
}

// SubmitTransaction posts a signed envelope to POST /transactions. A ledger
// rejection is returned as *Problem; transport faults are returned as-is.
func (c *Client) SubmitTransaction(ctx context.Context, envelopeXDR string) (HorizonTransaction, error) {
	form := url.Values{}
	form.Set("tx", envelopeXDR)

	var tx HorizonTransaction
	err := c.postFormJSON(ctx, "/transactions", form, &tx)
	if err == nil {
		return tx, nil
	}

	var se *StatusError
	if errors.As(err, &se) && se.StatusCode >= 400 && se.StatusCode < 500 {
		return HorizonTransaction{}, ParseProblem(se.StatusCode, se.Body)
	}
	return HorizonTransaction{}, fmt.Errorf("submitting transaction: %w", err)
}

// FetchTransaction retrieves a transaction by hash.
func (c *Client) FetchTransaction(ctx context.Context, hash string) (HorizonTransaction, error) {
	var tx HorizonTransaction
	if err := c.getJSON(ctx, "/transactions/"+url.PathEscape(hash), &tx); err != nil {
		return HorizonTransaction{}, fmt.Errorf("fetching transaction %s: %w", hash, err)
	}
	return tx, nil
}
