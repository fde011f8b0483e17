package port

import (
	"context"

	"portfolio_aggregator/internal/domain/entity"
)

// FiatRampProvider lists purchasable assets and builds hosted widget URLs.
type FiatRampProvider interface {
	GetAssets(ctx context.Context) []entity.FiatRampAsset
	CreateURL(assetID entity.AssetID, address, currentURL string) (string, error)
}
