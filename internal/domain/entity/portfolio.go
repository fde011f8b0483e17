package entity

// ValidatorID identifies a staking validator by its public key / operator address.
type ValidatorID string

// Staking holds delegation and reward data for one validator/asset pair.
type Staking struct {
	Delegations   []Delegation        `json:"delegations"`
	Redelegations []Redelegation      `json:"redelegations"`
	Undelegations []UndelegationEntry `json:"undelegations"`
	Rewards       []Reward            `json:"rewards"`
}

// Delegation is an active stake with a validator, amount in base units.
type Delegation struct {
	AssetID   AssetID     `json:"assetId"`
	Validator ValidatorID `json:"validator"`
	Amount    string      `json:"amount"`
}

// RedelegationEntry is a single in-flight move of stake.
type RedelegationEntry struct {
	AssetID        AssetID `json:"assetId"`
	CompletionTime int64   `json:"completionTime"`
	Amount         string  `json:"amount"`
}

// Redelegation groups in-flight moves from one source validator to another.
type Redelegation struct {
	DestinationValidator ValidatorID         `json:"destinationValidator"`
	SourceValidator      ValidatorID         `json:"sourceValidator"`
	Entries              []RedelegationEntry `json:"entries"`
}

// UndelegationEntry is stake waiting out the unbonding period.
type UndelegationEntry struct {
	AssetID        AssetID `json:"assetId"`
	CompletionTime int64   `json:"completionTime"`
	Amount         string  `json:"amount"`
}

// Reward is unclaimed reward accrued with a validator.
type Reward struct {
	AssetID AssetID `json:"assetId"`
	Amount  string  `json:"amount"`
}

// StakingDataByValidatorID nests staking details validator -> asset -> detail.
type StakingDataByValidatorID map[ValidatorID]map[AssetID]Staking

// PortfolioAccount lists what a single account holds.
type PortfolioAccount struct {
	// The asset ids belonging to an account
	AssetIDs []AssetID `json:"assetIds"`
	// The list of validators this account is delegated to
	ValidatorIDs []ValidatorID `json:"validatorIds,omitempty"`
	// The staking data per validator
	StakingDataByValidatorID StakingDataByValidatorID `json:"stakingDataByValidatorId,omitempty"`
}

// PortfolioAccounts is the normalized accounts table.
type PortfolioAccounts struct {
	ByID map[AccountID]PortfolioAccount `json:"byId"`
	IDs  []AccountID                    `json:"ids"`
}

// AssetBalancesByID maps asset id to a balance in base units of the asset.
type AssetBalancesByID map[AssetID]string

// PortfolioAccountBalances is the normalized balances table.
type PortfolioAccountBalances struct {
	ByID map[AccountID]AssetBalancesByID `json:"byId"`
	IDs  []AccountID                     `json:"ids"`
}

// PortfolioAccountMetadata is the normalized account metadata table.
type PortfolioAccountMetadata struct {
	ByID map[AccountID]AccountMetadata `json:"byId"`
	IDs  []AccountID                   `json:"ids"`
}

// Portfolio is the root aggregate of everything a connected wallet holds.
type Portfolio struct {
	AccountMetadata PortfolioAccountMetadata `json:"accountMetadata"`
	Accounts        PortfolioAccounts        `json:"accounts"`
	AccountBalances PortfolioAccountBalances `json:"accountBalances"`
}

// NewPortfolio returns an empty portfolio with all tables initialized.
func NewPortfolio() Portfolio {
	return Portfolio{
		AccountMetadata: PortfolioAccountMetadata{ByID: map[AccountID]AccountMetadata{}, IDs: []AccountID{}},
		Accounts:        PortfolioAccounts{ByID: map[AccountID]PortfolioAccount{}, IDs: []AccountID{}},
		AccountBalances: PortfolioAccountBalances{ByID: map[AccountID]AssetBalancesByID{}, IDs: []AccountID{}},
	}
}
