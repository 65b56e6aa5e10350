package horizon

import (
	"context"
	"fmt"
	"net/url"
)

// FetchAccount retrieves a Stellar account's sequence number and balances.
// A missing (unfunded) account yields an error for which IsNotFound is true.
func (c *Client) FetchAccount(ctx context.Context, accountID string) (HorizonAccount, error) {
	var account HorizonAccount
	if err := c.getJSON(ctx, "/accounts/"+url.PathEscape(accountID), &account); err != nil {
		return HorizonAccount{}, fmt.Errorf("fetching account %s: %w", accountID, err)
	}
	return account, nil
}
