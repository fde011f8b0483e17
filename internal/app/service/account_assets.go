package service

import (
	"portfolio_aggregator/internal/app/port"
	"portfolio_aggregator/internal/domain/entity"
)

// AccountAssetsService decides whether an account-tokens card has content.
type AccountAssetsService struct {
	portfolio port.PortfolioReader
	adapters  port.ChainAdapterManager
}

// NewAccountAssetsService wires the selector to the portfolio and adapters.
func NewAccountAssetsService(p port.PortfolioReader, a port.ChainAdapterManager) *AccountAssetsService {
	return &AccountAssetsService{portfolio: p, adapters: a}
}

// AccountAssets returns the non-fee assets of accountID to list next to
// assetID. ok is false when there is nothing to show: the asset is not on an
// EVM chain, or the account holds nothing besides the fee asset.
func (s *AccountAssetsService) AccountAssets(assetID entity.AssetID, accountID entity.AccountID) ([]entity.AssetID, bool) {
	parts, err := entity.FromAssetID(assetID)
	if err != nil || parts.ChainNamespace != entity.ChainNamespaceEvm {
		return nil, false
	}

	var feeAssetID entity.AssetID
	if adapter, found := s.adapters.Get(accountID.ChainID()); found {
		feeAssetID = adapter.FeeAssetID()
	}

	assetIDs := s.portfolio.AssetIDsByAccountIDExcludeFeeAsset(accountID, feeAssetID)
	if len(assetIDs) == 0 {
		return nil, false
	}
	return assetIDs, true
}
