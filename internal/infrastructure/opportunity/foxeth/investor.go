package foxeth

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"portfolio_aggregator/internal/app/port"
	"portfolio_aggregator/internal/domain/entity"
)

// Investor looks up FOX farming contracts that can be claimed from.
type Investor struct {
	chainID     entity.ChainID
	broadcaster port.TxBroadcaster
	byID        map[entity.OpportunityID]*FarmingOpportunity
	logger      *zap.Logger
}

var _ port.ClaimInvestor = (*Investor)(nil)

func NewInvestor(chainID entity.ChainID, broadcaster port.TxBroadcaster, cfg Config, logger *zap.Logger) *Investor {
	inv := &Investor{
		chainID:     chainID,
		broadcaster: broadcaster,
		byID:        make(map[entity.OpportunityID]*FarmingOpportunity, len(cfg.FarmingContracts)),
		logger:      logger.Named("foxeth_investor"),
	}
	for _, c := range cfg.FarmingContracts {
		id := farmingOpportunityID(chainID, c.Address)
		inv.byID[id] = &FarmingOpportunity{
			id:          id,
			chainID:     chainID,
			contract:    strings.ToLower(c.Address),
			broadcaster: broadcaster,
			logger:      inv.logger,
		}
	}
	return inv
}

func (i *Investor) FindByOpportunityID(_ context.Context, id entity.OpportunityID) (port.ClaimableOpportunity, error) {
	opp, ok := i.byID[id]
	if !ok {
		return nil, fmt.Errorf("farming opportunity %s: %w", id, entity.ErrNotFound)
	}
	return opp, nil
}

// FarmingOpportunity builds getReward transactions for one farming contract.
type FarmingOpportunity struct {
	id          entity.OpportunityID
	chainID     entity.ChainID
	contract    string
	broadcaster port.TxBroadcaster
	logger      *zap.Logger
}

var _ port.ClaimableOpportunity = (*FarmingOpportunity)(nil)

func (o *FarmingOpportunity) ID() entity.OpportunityID { return o.id }
func (o *FarmingOpportunity) ContractAddress() string  { return o.contract }

// PrepareClaimTokens builds an unsigned getReward call from userAddress with
// the pending nonce, the suggested gas price and an estimated gas limit.
func (o *FarmingOpportunity) PrepareClaimTokens(ctx context.Context, userAddress string) (entity.PreparedTx, error) {
	_, fABI, err := parsedABIs()
	if err != nil {
		return entity.PreparedTx{}, err
	}
	data, err := fABI.Pack("getReward")
	if err != nil {
		return entity.PreparedTx{}, fmt.Errorf("pack getReward: %w", err)
	}

	nonce, err := o.broadcaster.PendingNonce(ctx, userAddress)
	if err != nil {
		return entity.PreparedTx{}, err
	}
	gasPrice, err := o.broadcaster.SuggestGasPrice(ctx)
	if err != nil {
		return entity.PreparedTx{}, err
	}
	gas, err := o.broadcaster.EstimateGas(ctx, userAddress, o.contract, data)
	if err != nil {
		return entity.PreparedTx{}, err
	}

	return entity.PreparedTx{
		ChainID:      o.chainID,
		From:         strings.ToLower(userAddress),
		To:           o.contract,
		Data:         data,
		Value:        "0",
		Nonce:        nonce,
		GasPrice:     gasPrice.String(),
		EstimatedGas: fmt.Sprintf("%d", gas),
	}, nil
}

// SignAndBroadcast signs tx with the wallet key at params and sends it. The
// key must control tx.From.
func (o *FarmingOpportunity) SignAndBroadcast(ctx context.Context, wallet port.HDWallet, tx entity.PreparedTx, params entity.BIP44Params) (string, error) {
	key, err := wallet.PrivateKey(ctx, params.Path())
	if err != nil {
		return "", fmt.Errorf("signing key %s: %w", params, err)
	}
	signer := crypto.PubkeyToAddress(key.PublicKey).Hex()
	if !strings.EqualFold(signer, tx.From) {
		return "", fmt.Errorf("key at %s controls %s, not %s: %w", params, signer, tx.From, entity.ErrNoActiveAccount)
	}
	txid, err := o.broadcaster.SendSigned(ctx, tx, key)
	if err != nil {
		return "", err
	}
	o.logger.Info("Claim transaction sent", zap.String("contract", o.contract), zap.String("txid", txid))
	return txid, nil
}
