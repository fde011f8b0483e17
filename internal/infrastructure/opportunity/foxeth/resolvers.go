package foxeth

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"portfolio_aggregator/internal/app/port"
	"portfolio_aggregator/internal/domain/entity"
)

// LpResolver serves the FOX/ETH Uniswap V2 liquidity pool.
type LpResolver struct {
	chainID entity.ChainID
	caller  port.ContractCaller
	cfg     Config
	logger  *zap.Logger
}

var _ port.OpportunityResolver = (*LpResolver)(nil)

func NewLpResolver(chainID entity.ChainID, caller port.ContractCaller, cfg Config, logger *zap.Logger) *LpResolver {
	return &LpResolver{chainID: chainID, caller: caller, cfg: cfg, logger: logger.Named("foxeth_lp")}
}

func (r *LpResolver) Type() entity.DefiType   { return entity.DefiTypeLiquidityPool }
func (r *LpResolver) ChainID() entity.ChainID { return r.chainID }

func (r *LpResolver) OpportunityIDs() []entity.OpportunityID {
	return []entity.OpportunityID{r.lpAssetID()}
}

func (r *LpResolver) lpAssetID() entity.AssetID {
	return entity.ToAssetID(r.chainID, entity.AssetNamespaceErc20, r.cfg.PairAddress)
}

func (r *LpResolver) Metadata(ctx context.Context) ([]entity.OpportunityMetadata, error) {
	state, err := readPair(ctx, r.caller, r.cfg.PairAddress)
	if err != nil {
		return nil, fmt.Errorf("read pair %s: %w", r.cfg.PairAddress, err)
	}
	lpID := r.lpAssetID()
	return []entity.OpportunityMetadata{{
		ID:                 lpID,
		Provider:           entity.DefiProviderFoxEthLP,
		Type:               entity.DefiTypeLiquidityPool,
		Name:               "ETH/FOX Pool",
		AssetID:            lpID,
		UnderlyingAssetID:  lpID,
		UnderlyingAssetIDs: underlyingAssetIDs(r.chainID, r.cfg),
		TotalSupply:        state.totalSupply.String(),
		UnderlyingReserves: []string{state.reserves[0].String(), state.reserves[1].String()},
	}}, nil
}

func (r *LpResolver) UserData(ctx context.Context, accountID entity.AccountID, opportunityID entity.OpportunityID) (entity.UserStakingOpportunity, error) {
	if opportunityID != r.lpAssetID() {
		return entity.UserStakingOpportunity{}, fmt.Errorf("opportunity %s: %w", opportunityID, entity.ErrUnsupportedAsset)
	}
	owner, err := accountAddress(accountID)
	if err != nil {
		return entity.UserStakingOpportunity{}, err
	}
	pABI, _, err := parsedABIs()
	if err != nil {
		return entity.UserStakingOpportunity{}, err
	}
	balance, err := callUint(ctx, r.caller, pABI, r.cfg.PairAddress, "balanceOf", owner)
	if err != nil {
		return entity.UserStakingOpportunity{}, fmt.Errorf("lp balance of %s: %w", accountID, err)
	}
	state, err := readPair(ctx, r.caller, r.cfg.PairAddress)
	if err != nil {
		return entity.UserStakingOpportunity{}, fmt.Errorf("read pair %s: %w", r.cfg.PairAddress, err)
	}
	r.logger.Debug("Read lp position", zap.String("account", string(accountID)), zap.String("balance", balance.String()))
	return entity.UserStakingOpportunity{
		AccountID:         accountID,
		OpportunityID:     opportunityID,
		Type:              entity.DefiTypeLiquidityPool,
		StakedAmount:      balance.String(),
		RewardsAmounts:    []string{},
		UnderlyingAmounts: state.share(balance),
	}, nil
}

// FarmingResolver serves the FOX farming contracts, which stake the pool's
// LP token and pay FOX rewards.
type FarmingResolver struct {
	chainID entity.ChainID
	caller  port.ContractCaller
	cfg     Config
	byID    map[entity.OpportunityID]FarmingContract
	logger  *zap.Logger
}

var _ port.OpportunityResolver = (*FarmingResolver)(nil)

func NewFarmingResolver(chainID entity.ChainID, caller port.ContractCaller, cfg Config, logger *zap.Logger) *FarmingResolver {
	byID := make(map[entity.OpportunityID]FarmingContract, len(cfg.FarmingContracts))
	for _, c := range cfg.FarmingContracts {
		byID[farmingOpportunityID(chainID, c.Address)] = c
	}
	return &FarmingResolver{
		chainID: chainID,
		caller:  caller,
		cfg:     cfg,
		byID:    byID,
		logger:  logger.Named("foxeth_farming"),
	}
}

func farmingOpportunityID(chainID entity.ChainID, contract string) entity.OpportunityID {
	return entity.ToAssetID(chainID, entity.AssetNamespaceErc20, contract)
}

func (r *FarmingResolver) Type() entity.DefiType   { return entity.DefiTypeStaking }
func (r *FarmingResolver) ChainID() entity.ChainID { return r.chainID }

func (r *FarmingResolver) OpportunityIDs() []entity.OpportunityID {
	ids := make([]entity.OpportunityID, 0, len(r.cfg.FarmingContracts))
	for _, c := range r.cfg.FarmingContracts {
		ids = append(ids, farmingOpportunityID(r.chainID, c.Address))
	}
	return ids
}

// Metadata reads every farming contract's total supply. A contract that
// cannot be read is skipped and reported in the returned error.
func (r *FarmingResolver) Metadata(ctx context.Context) ([]entity.OpportunityMetadata, error) {
	_, fABI, err := parsedABIs()
	if err != nil {
		return nil, err
	}
	lpID := entity.ToAssetID(r.chainID, entity.AssetNamespaceErc20, r.cfg.PairAddress)
	foxID := entity.ToAssetID(r.chainID, entity.AssetNamespaceErc20, r.cfg.FoxAddress)

	var failed []string
	out := make([]entity.OpportunityMetadata, 0, len(r.cfg.FarmingContracts))
	for _, c := range r.cfg.FarmingContracts {
		supply, err := callUint(ctx, r.caller, fABI, c.Address, "totalSupply")
		if err != nil {
			r.logger.Warn("Failed to read farming contract", zap.String("contract", c.Address), zap.Error(err))
			failed = append(failed, c.Address)
			continue
		}
		id := farmingOpportunityID(r.chainID, c.Address)
		out = append(out, entity.OpportunityMetadata{
			ID:                 id,
			Provider:           entity.DefiProviderFoxFarming,
			Type:               entity.DefiTypeStaking,
			Name:               c.Name,
			AssetID:            id,
			UnderlyingAssetID:  lpID,
			UnderlyingAssetIDs: underlyingAssetIDs(r.chainID, r.cfg),
			RewardAssetIDs:     []entity.AssetID{foxID},
			TotalSupply:        supply.String(),
			ExpiredAt:          c.ExpiredAt,
		})
	}
	if len(failed) > 0 {
		return out, fmt.Errorf("farming contracts %s: %w", strings.Join(failed, ","), entity.ErrTransient)
	}
	return out, nil
}

func (r *FarmingResolver) UserData(ctx context.Context, accountID entity.AccountID, opportunityID entity.OpportunityID) (entity.UserStakingOpportunity, error) {
	contract, ok := r.byID[opportunityID]
	if !ok {
		return entity.UserStakingOpportunity{}, fmt.Errorf("opportunity %s: %w", opportunityID, entity.ErrUnsupportedAsset)
	}
	owner, err := accountAddress(accountID)
	if err != nil {
		return entity.UserStakingOpportunity{}, err
	}
	_, fABI, err := parsedABIs()
	if err != nil {
		return entity.UserStakingOpportunity{}, err
	}

	staked, err := callUint(ctx, r.caller, fABI, contract.Address, "balanceOf", owner)
	if err != nil {
		return entity.UserStakingOpportunity{}, fmt.Errorf("staked balance of %s: %w", accountID, err)
	}
	earned, err := callUint(ctx, r.caller, fABI, contract.Address, "earned", owner)
	if err != nil {
		return entity.UserStakingOpportunity{}, fmt.Errorf("rewards of %s: %w", accountID, err)
	}

	underlying := []string{"0", "0"}
	if staked.Sign() > 0 {
		state, err := readPair(ctx, r.caller, r.cfg.PairAddress)
		if err != nil {
			return entity.UserStakingOpportunity{}, fmt.Errorf("read pair %s: %w", r.cfg.PairAddress, err)
		}
		underlying = state.share(staked)
	}
	return entity.UserStakingOpportunity{
		AccountID:         accountID,
		OpportunityID:     opportunityID,
		Type:              entity.DefiTypeStaking,
		StakedAmount:      staked.String(),
		RewardsAmounts:    []string{earned.String()},
		UnderlyingAmounts: underlying,
	}, nil
}

// underlyingAssetIDs lists the pool assets in reserve order: WETH sorts
// before FOX in the pair, and WETH is reported as native ETH.
func underlyingAssetIDs(chainID entity.ChainID, cfg Config) []entity.AssetID {
	return []entity.AssetID{
		entity.ToAssetID(chainID, entity.AssetNamespaceSlip44, "60"),
		entity.ToAssetID(chainID, entity.AssetNamespaceErc20, cfg.FoxAddress),
	}
}
