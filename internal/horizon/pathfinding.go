package horizon

import (
	"context"
	"fmt"
	"net/url"

	"github.com/mtlprog/kosh/internal/domain"
)

// FetchStrictSendPaths queries: "If I send `amount` of `source`, how much `dest` do I get?"
// Records come back best-ranked first.
func (c *Client) FetchStrictSendPaths(ctx context.Context, source domain.Asset, amount string, dest domain.Asset) ([]HorizonPathRecord, error) {
	params := url.Values{}
	if source.IsNative() {
		params.Set("source_asset_type", "native")
	} else {
		params.Set("source_asset_type", string(source.Type))
		params.Set("source_asset_code", source.Code)
		params.Set("source_asset_issuer", source.Issuer)
	}
	params.Set("source_amount", amount)
	params.Set("destination_assets", dest.Canonical())

	var resp HorizonPathResponse
	if err := c.getJSON(ctx, "/paths/strict-send?"+params.Encode(), &resp); err != nil {
		return nil, fmt.Errorf("fetching strict send paths: %w", err)
	}
	return resp.Embedded.Records, nil
}
