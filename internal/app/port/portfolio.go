package port

import (
	"context"

	"portfolio_aggregator/internal/domain/entity"
)

// PortfolioReader is the read side of the portfolio model.
type PortfolioReader interface {
	AccountIDs() []entity.AccountID
	AccountIDsByChainID(chainID entity.ChainID) []entity.AccountID
	AssetIDsByAccountIDExcludeFeeAsset(accountID entity.AccountID, feeAssetID entity.AssetID) []entity.AssetID
	BalanceByAccountIDAndAssetID(accountID entity.AccountID, assetID entity.AssetID) string
	BIP44ParamsByAccountID(accountID entity.AccountID) (entity.BIP44Params, bool)
	Snapshot() entity.Portfolio
	// SubscribeAccountSetChanged registers fn for account-set changes and
	// returns a function removing the registration.
	SubscribeAccountSetChanged(fn func(accountIDs []entity.AccountID)) (unsubscribe func())
}

// PortfolioWriter is the reconciliation side of the portfolio model.
type PortfolioWriter interface {
	UpsertAccount(accountID entity.AccountID, account entity.PortfolioAccount)
	UpsertAccountBalances(accountID entity.AccountID, balances entity.AssetBalancesByID)
	UpsertAccountMetadata(accountID entity.AccountID, metadata entity.AccountMetadata)
	RemoveAccount(accountID entity.AccountID)
}

// PortfolioStore is both sides of the portfolio model.
type PortfolioStore interface {
	PortfolioReader
	PortfolioWriter
}

// PortfolioSyncer reconciles chain data into the portfolio.
type PortfolioSyncer interface {
	ConnectWallet(ctx context.Context, wallet HDWallet) ([]entity.AccountID, error)
	SyncAccount(ctx context.Context, accountID entity.AccountID) []entity.SyncError
	SyncAll(ctx context.Context) []entity.SyncError
}
