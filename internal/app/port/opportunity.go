package port

import (
	"context"

	"portfolio_aggregator/internal/domain/entity"
)

// OpportunityService fetches and caches opportunity data.
type OpportunityService interface {
	FetchAllOpportunitiesMetadata(ctx context.Context) error
	FetchAllOpportunitiesUserData(ctx context.Context, accountID entity.AccountID, opts entity.FetchOptions) error
	FetchAllStakingOpportunitiesMetadata(ctx context.Context) error
	FetchAllStakingOpportunitiesUserData(ctx context.Context, accountID entity.AccountID, opts entity.FetchOptions) error
	// GetOpportunityUserData fetches (or, with ForceRefetch, invalidates and
	// refetches) one cached user-data entry.
	GetOpportunityUserData(ctx context.Context, req entity.UserDataRequest, opts entity.FetchOptions) (entity.UserStakingOpportunity, error)

	LpAccountIDs() []entity.AccountID
	StakingAccountIDs() []entity.AccountID
	Metadata() []entity.OpportunityMetadata
	UserData(accountID entity.AccountID) []entity.UserStakingOpportunity
}

// OpportunityResolver knows how to read one family of opportunities from chain.
type OpportunityResolver interface {
	Type() entity.DefiType
	ChainID() entity.ChainID
	// OpportunityIDs lists the opportunities this resolver serves.
	OpportunityIDs() []entity.OpportunityID
	Metadata(ctx context.Context) ([]entity.OpportunityMetadata, error)
	UserData(ctx context.Context, accountID entity.AccountID, opportunityID entity.OpportunityID) (entity.UserStakingOpportunity, error)
}

// ClaimableOpportunity can build a rewards-claim transaction.
type ClaimableOpportunity interface {
	ID() entity.OpportunityID
	ContractAddress() string
	PrepareClaimTokens(ctx context.Context, userAddress string) (entity.PreparedTx, error)
	SignAndBroadcast(ctx context.Context, wallet HDWallet, tx entity.PreparedTx, params entity.BIP44Params) (string, error)
}

// ClaimInvestor looks up claimable opportunities.
type ClaimInvestor interface {
	FindByOpportunityID(ctx context.Context, id entity.OpportunityID) (ClaimableOpportunity, error)
}

// OpportunityTracker is the narrow interface user flows use to report
// transactions to the session controller.
type OpportunityTracker interface {
	FarmingAccountID() entity.AccountID
	SetFarmingAccountID(id entity.AccountID)
	LpAccountID() entity.AccountID
	OnOngoingFarmingTxIDChange(txid, contractAddress string) error
	OnOngoingLpTxIDChange(txid, contractAddress string) error
}
