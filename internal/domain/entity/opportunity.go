package entity

// DefiType classifies a yield-bearing position.
type DefiType string

const (
	DefiTypeLiquidityPool DefiType = "lp"
	DefiTypeStaking       DefiType = "staking"
)

// DefiProvider names the protocol that offers an opportunity.
type DefiProvider string

const (
	DefiProviderFoxEthLP   DefiProvider = "UNI V2"
	DefiProviderFoxFarming DefiProvider = "ShapeShift"
	DefiProviderIdle       DefiProvider = "Idle Finance"
)

// OpportunityID is the asset id of the contract backing an opportunity
// (the LP token for pools, the staking contract for farms).
type OpportunityID = AssetID

// OpportunityMetadata is the chain-agnostic definition of a position.
type OpportunityMetadata struct {
	ID                 OpportunityID `json:"id"`
	Provider           DefiProvider  `json:"provider"`
	Type               DefiType      `json:"type"`
	Name               string        `json:"name"`
	AssetID            AssetID       `json:"assetId"`
	UnderlyingAssetID  AssetID       `json:"underlyingAssetId"`
	UnderlyingAssetIDs []AssetID     `json:"underlyingAssetIds"`
	RewardAssetIDs     []AssetID     `json:"rewardAssetIds,omitempty"`
	// Total supply of the position token, base units.
	TotalSupply string `json:"totalSupply"`
	// Pool reserves per underlying asset, base units.
	UnderlyingReserves []string `json:"underlyingReserves,omitempty"`
	ExpiredAt          int64    `json:"expiredAt,omitempty"`
}

// UserStakingOpportunity holds one account's position in one opportunity.
type UserStakingOpportunity struct {
	AccountID     AccountID     `json:"accountId"`
	OpportunityID OpportunityID `json:"opportunityId"`
	Type          DefiType      `json:"type"`
	// Position token balance, base units.
	StakedAmount string `json:"stakedAmount"`
	// Unclaimed rewards per reward asset, base units.
	RewardsAmounts []string `json:"rewardsAmounts"`
	// The account share of each underlying reserve, base units.
	UnderlyingAmounts []string `json:"underlyingAmounts,omitempty"`
	UpdatedAt         int64    `json:"updatedAt"`
}

// UserDataRequest asks for one account's data in one opportunity.
type UserDataRequest struct {
	AccountID       AccountID     `json:"accountId"`
	OpportunityID   OpportunityID `json:"opportunityId"`
	OpportunityType DefiType      `json:"opportunityType"`
	DefiType        DefiType      `json:"defiType"`
}

// FetchOptions controls cache behavior of opportunity queries.
type FetchOptions struct {
	ForceRefetch bool
}
