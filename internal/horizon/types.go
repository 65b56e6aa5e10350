package horizon

// HorizonAccount represents the JSON response from GET /accounts/{id}.
type HorizonAccount struct {
	ID            string           `json:"id"`
	AccountID     string           `json:"account_id"`
	Sequence      string           `json:"sequence"`
	SubentryCount int              `json:"subentry_count"`
	Balances      []HorizonBalance `json:"balances"`
}

// HorizonBalance represents a single balance entry in an account response.
type HorizonBalance struct {
	AssetType       string `json:"asset_type"`
	AssetCode       string `json:"asset_code"`
	AssetIssuer     string `json:"asset_issuer"`
	Balance         string `json:"balance"`
	Limit           string `json:"limit,omitempty"`
	IsAuthorized    *bool  `json:"is_authorized,omitempty"`
	LiquidityPoolID string `json:"liquidity_pool_id,omitempty"`
}

// HorizonPathRecord represents a single path in a path finding response.
type HorizonPathRecord struct {
	SourceAssetType        string             `json:"source_asset_type"`
	SourceAssetCode        string             `json:"source_asset_code"`
	SourceAssetIssuer      string             `json:"source_asset_issuer"`
	SourceAmount           string             `json:"source_amount"`
	DestinationAssetType   string             `json:"destination_asset_type"`
	DestinationAssetCode   string             `json:"destination_asset_code"`
	DestinationAssetIssuer string             `json:"destination_asset_issuer"`
	DestinationAmount      string             `json:"destination_amount"`
	Path                   []HorizonPathAsset `json:"path"`
}

// HorizonPathAsset represents an intermediate asset in a path.
type HorizonPathAsset struct {
	AssetType   string `json:"asset_type"`
	AssetCode   string `json:"asset_code"`
	AssetIssuer string `json:"asset_issuer"`
}

// HorizonPathResponse wraps the embedded records in a path finding response.
type HorizonPathResponse struct {
	Embedded struct {
		Records []HorizonPathRecord `json:"records"`
	} `json:"_embedded"`
}

// HorizonTransaction is the response of POST /transactions and GET /transactions/{hash}.
type HorizonTransaction struct {
	ID          string `json:"id"`
	Hash        string `json:"hash"`
	Ledger      int32  `json:"ledger"`
	Successful  bool   `json:"successful"`
	EnvelopeXDR string `json:"envelope_xdr"`
	ResultXDR   string `json:"result_xdr"`
	CreatedAt   string `json:"created_at"`
}
