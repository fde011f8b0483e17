package entity

// FiatRampAsset is an asset purchasable through a fiat on-ramp gateway.
type FiatRampAsset struct {
	Name           string  `json:"name"`
	AssetID        AssetID `json:"assetId"`
	Symbol         string  `json:"symbol"`
	ImageURL       string  `json:"imageUrl"`
	FiatRampCoinID string  `json:"fiatRampCoinId,omitempty"`
}
