package service

import (
	"context"
	"fmt"

	"portfolio_aggregator/internal/app/port"
	"portfolio_aggregator/internal/domain/entity"
	"portfolio_aggregator/internal/pkg/utils"
)

const (
	feeAssetPrecision = 18
	feeDisplayPlaces  = 8
)

// ClaimEstimate is a prepared claim transaction and its fee in base units
// of the chain's fee asset.
type ClaimEstimate struct {
	Tx                 entity.PreparedTx `json:"tx"`
	FeeAssetID         entity.AssetID    `json:"feeAssetId"`
	EstimatedFee       string            `json:"estimatedFee"`
	EstimatedFeeCrypto string            `json:"estimatedFeeCrypto"`
	CanPayFee          bool              `json:"canPayFee"`
}

// ClaimRequest asks to claim rewards of an opportunity for an account.
type ClaimRequest struct {
	AccountID     entity.AccountID     `json:"accountId" binding:"required"`
	OpportunityID entity.OpportunityID `json:"opportunityId" binding:"required"`
}

// ClaimService drives the rewards-claim flow: estimate, sign, broadcast and
// hand the transaction to the tracker.
type ClaimService struct {
	investor  port.ClaimInvestor
	portfolio port.PortfolioReader
	adapters  port.ChainAdapterManager
	tracker   port.OpportunityTracker
	recorder  port.TxRecorder
	wallet    port.HDWallet
	logger    port.Logger
}

func NewClaimService(
	investor port.ClaimInvestor,
	portfolio port.PortfolioReader,
	adapters port.ChainAdapterManager,
	tracker port.OpportunityTracker,
	recorder port.TxRecorder,
	wallet port.HDWallet,
	l port.Logger,
) *ClaimService {
	return &ClaimService{
		investor:  investor,
		portfolio: portfolio,
		adapters:  adapters,
		tracker:   tracker,
		recorder:  recorder,
		wallet:    wallet,
		logger:    l.With("component", "ClaimService"),
	}
}

// EstimateClaim prepares the claim transaction for accountID and prices it.
// The fee is gas price times gas limit, in base units of the chain's fee asset.
func (s *ClaimService) EstimateClaim(ctx context.Context, req ClaimRequest) (ClaimEstimate, error) {
	est, _, err := s.estimate(ctx, req)
	return est, err
}

func (s *ClaimService) estimate(ctx context.Context, req ClaimRequest) (ClaimEstimate, port.ClaimableOpportunity, error) {
	parts, err := entity.FromAccountID(req.AccountID)
	if err != nil {
		return ClaimEstimate{}, nil, fmt.Errorf("%v: %w", err, entity.ErrNotFound)
	}
	adapter, ok := s.adapters.Get(parts.ChainID)
	if !ok {
		return ClaimEstimate{}, nil, fmt.Errorf("no chain adapter for %s: %w", parts.ChainID, entity.ErrUnsupportedAsset)
	}
	opp, err := s.investor.FindByOpportunityID(ctx, req.OpportunityID)
	if err != nil {
		s.logger.Warn("Claim opportunity lookup failed", "opportunityId", req.OpportunityID, "error", err)
		return ClaimEstimate{}, nil, err
	}
	tx, err := opp.PrepareClaimTokens(ctx, parts.Account)
	if err != nil {
		return ClaimEstimate{}, nil, fmt.Errorf("prepare claim: %w", err)
	}

	fee := utils.BaseUnitsOrZero(tx.GasPrice).Mul(utils.BaseUnitsOrZero(tx.EstimatedGas)).String()
	feeAssetID := adapter.FeeAssetID()
	return ClaimEstimate{
		Tx:                 tx,
		FeeAssetID:         feeAssetID,
		EstimatedFee:       fee,
		EstimatedFeeCrypto: utils.FromBaseUnits(fee, feeAssetPrecision, feeDisplayPlaces),
		CanPayFee:          s.HasEnoughBalanceForGas(req.AccountID, feeAssetID, fee),
	}, opp, nil
}

// HasEnoughBalanceForGas compares the fee asset balance with estimatedFee,
// both in base units.
func (s *ClaimService) HasEnoughBalanceForGas(accountID entity.AccountID, feeAssetID entity.AssetID, estimatedFee string) bool {
	balance := utils.BaseUnitsOrZero(s.portfolio.BalanceByAccountIDAndAssetID(accountID, feeAssetID))
	return balance.GreaterThanOrEqual(utils.BaseUnitsOrZero(estimatedFee))
}

// ConfirmClaim signs and broadcasts the claim, then reports the txid to the
// tracker as the ongoing farming transaction.
func (s *ClaimService) ConfirmClaim(ctx context.Context, req ClaimRequest) (string, error) {
	if s.wallet == nil {
		return "", fmt.Errorf("no wallet connected: %w", entity.ErrNoActiveAccount)
	}
	estimate, opp, err := s.estimate(ctx, req)
	if err != nil {
		return "", err
	}
	if !estimate.CanPayFee {
		return "", fmt.Errorf("need %s of %s: %w", estimate.EstimatedFee, estimate.FeeAssetID, entity.ErrInsufficientFunds)
	}

	params, ok := s.portfolio.BIP44ParamsByAccountID(req.AccountID)
	if !ok {
		params = entity.EthBIP44Params(0)
	}
	txid, err := opp.SignAndBroadcast(ctx, s.wallet, estimate.Tx, params)
	if err != nil {
		s.logger.Error("Claim broadcast failed", "accountId", req.AccountID, "opportunityId", req.OpportunityID, "error", err)
		return "", fmt.Errorf("broadcast claim: %w", err)
	}
	s.logger.Info("Claim broadcast", "accountId", req.AccountID, "txid", txid)

	if err := s.recorder.Track(req.AccountID, txid); err != nil {
		s.logger.Warn("Failed to record claim tx", "txid", txid, "error", err)
	}
	if s.tracker.FarmingAccountID() != req.AccountID {
		s.tracker.SetFarmingAccountID(req.AccountID)
	}
	if err := s.tracker.OnOngoingFarmingTxIDChange(txid, opp.ContractAddress()); err != nil {
		s.logger.Warn("Failed to track claim tx", "txid", txid, "error", err)
	}
	return txid, nil
}
