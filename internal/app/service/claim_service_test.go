package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolio_aggregator/internal/app/port"
	"portfolio_aggregator/internal/domain/entity"
	"portfolio_aggregator/internal/pkg/logger"
)

type fakeClaimable struct {
	id          entity.OpportunityID
	contract    string
	tx          entity.PreparedTx
	broadcasted []entity.BIP44Params
	sendErr     error
}

func (c *fakeClaimable) ID() entity.OpportunityID { return c.id }
func (c *fakeClaimable) ContractAddress() string  { return c.contract }

func (c *fakeClaimable) PrepareClaimTokens(_ context.Context, userAddress string) (entity.PreparedTx, error) {
	tx := c.tx
	tx.From = userAddress
	return tx, nil
}

func (c *fakeClaimable) SignAndBroadcast(_ context.Context, _ port.HDWallet, _ entity.PreparedTx, params entity.BIP44Params) (string, error) {
	if c.sendErr != nil {
		return "", c.sendErr
	}
	c.broadcasted = append(c.broadcasted, params)
	return "0xclaim", nil
}

type fakeInvestor struct {
	opps    map[entity.OpportunityID]port.ClaimableOpportunity
	lookups int
}

func (f *fakeInvestor) FindByOpportunityID(_ context.Context, id entity.OpportunityID) (port.ClaimableOpportunity, error) {
	f.lookups++
	opp, ok := f.opps[id]
	if !ok {
		return nil, entity.ErrNotFound
	}
	return opp, nil
}

type claimFixture struct {
	svc      *ClaimService
	opp      *fakeClaimable
	investor *fakeInvestor
	adapter  *fakeAdapter
	store    *PortfolioStore
	txs      *TxHistoryStore
	tracker  *FoxEthTracker
	account  entity.AccountID
	feeAsset entity.AssetID
}

func newClaimFixture(t *testing.T) *claimFixture {
	t.Helper()
	l := logger.NewNop()
	store := NewPortfolioStore(l)
	txs := NewTxHistoryStore()
	tracker := NewFoxEthTracker(newFakeOpportunityService(), store, txs, fakeAdapterManager{}, 0, l)
	watcher := NewTxWatcher(txs, nil, 0, 0, l)
	opp := &fakeClaimable{
		id:       farmingOpportunity,
		contract: farmContract,
		tx:       entity.PreparedTx{ChainID: entity.EthChainID, To: farmContract, GasPrice: "20000000000", EstimatedGas: "100000"},
	}
	investor := &fakeInvestor{opps: map[entity.OpportunityID]port.ClaimableOpportunity{farmingOpportunity: opp}}
	adapter := &fakeAdapter{chainID: entity.EthChainID}
	adapters := fakeAdapterManager{entity.EthChainID: adapter}
	return &claimFixture{
		svc:      NewClaimService(investor, store, adapters, tracker, watcher, &fakeWallet{supported: true}, l),
		opp:      opp,
		investor: investor,
		adapter:  adapter,
		store:    store,
		txs:      txs,
		tracker:  tracker,
		account:  entity.ToAccountID(entity.EthChainID, stakingAddress),
		feeAsset: entity.EthAssetID,
	}
}

func TestClaimServiceEstimateClaim(t *testing.T) {
	f := newClaimFixture(t)
	f.store.UpsertAccountBalances(f.account, entity.AssetBalancesByID{f.feeAsset: "2000000000000000"})

	est, err := f.svc.EstimateClaim(context.Background(), ClaimRequest{AccountID: f.account, OpportunityID: farmingOpportunity})
	require.NoError(t, err)

	assert.Equal(t, "2000000000000000", est.EstimatedFee)
	assert.Equal(t, "0.002", est.EstimatedFeeCrypto)
	assert.Equal(t, f.feeAsset, est.FeeAssetID)
	assert.Equal(t, stakingAddress, est.Tx.From)
	assert.True(t, est.CanPayFee)
}

func TestClaimServiceHasEnoughBalanceForGas(t *testing.T) {
	f := newClaimFixture(t)
	f.store.UpsertAccountBalances(f.account, entity.AssetBalancesByID{f.feeAsset: "1000"})

	assert.True(t, f.svc.HasEnoughBalanceForGas(f.account, f.feeAsset, "1000"))
	assert.True(t, f.svc.HasEnoughBalanceForGas(f.account, f.feeAsset, "999"))
	assert.False(t, f.svc.HasEnoughBalanceForGas(f.account, f.feeAsset, "1001"))
	assert.False(t, f.svc.HasEnoughBalanceForGas("eip155:1:0xunknown", f.feeAsset, "1"))
}

func TestClaimServiceConfirmClaimTracksTx(t *testing.T) {
	f := newClaimFixture(t)
	f.store.UpsertAccountBalances(f.account, entity.AssetBalancesByID{f.feeAsset: "9000000000000000"})
	params := entity.EthBIP44Params(2)
	f.store.UpsertAccountMetadata(f.account, entity.AccountMetadata{BIP44Params: params})

	txid, err := f.svc.ConfirmClaim(context.Background(), ClaimRequest{AccountID: f.account, OpportunityID: farmingOpportunity})
	require.NoError(t, err)
	assert.Equal(t, "0xclaim", txid)
	assert.Equal(t, []entity.BIP44Params{params}, f.opp.broadcasted)
	assert.Equal(t, 1, f.investor.lookups)

	index := entity.SerializeTxIndex(f.account, txid, stakingAddress)
	tx, ok := f.txs.TxByIndex(index)
	require.True(t, ok)
	assert.Equal(t, entity.TxStatusPending, tx.Status)

	state := f.tracker.State()
	assert.Equal(t, TrackerStatusPending, state.Status)
	assert.Equal(t, index, state.OngoingTxID)
	assert.Equal(t, farmContract, state.OngoingTxContractAddress)
	assert.Equal(t, f.account, state.FarmingAccountID)
}

func TestClaimServiceConfirmClaimInsufficientFunds(t *testing.T) {
	f := newClaimFixture(t)

	_, err := f.svc.ConfirmClaim(context.Background(), ClaimRequest{AccountID: f.account, OpportunityID: farmingOpportunity})
	assert.True(t, errors.Is(err, entity.ErrInsufficientFunds))
	assert.Empty(t, f.opp.broadcasted)
	assert.Equal(t, TrackerStatusIdle, f.tracker.State().Status)
}

func TestClaimServiceConfirmClaimUnknownOpportunity(t *testing.T) {
	f := newClaimFixture(t)

	_, err := f.svc.ConfirmClaim(context.Background(), ClaimRequest{AccountID: f.account, OpportunityID: "eip155:1/erc20:0xdead"})
	assert.True(t, errors.Is(err, entity.ErrNotFound))
}

func TestClaimServiceConfirmClaimBroadcastError(t *testing.T) {
	f := newClaimFixture(t)
	f.store.UpsertAccountBalances(f.account, entity.AssetBalancesByID{f.feeAsset: "9000000000000000"})
	f.opp.sendErr = entity.ErrTransient

	_, err := f.svc.ConfirmClaim(context.Background(), ClaimRequest{AccountID: f.account, OpportunityID: farmingOpportunity})
	assert.True(t, entity.IsRetryable(err))
	assert.Empty(t, f.txs.Pending())
}

func TestClaimServiceFeeAssetComesFromChainAdapter(t *testing.T) {
	f := newClaimFixture(t)
	feeAsset := entity.AssetID("eip155:1/slip44:9999")
	f.adapter.feeAsset = feeAsset
	f.store.UpsertAccountBalances(f.account, entity.AssetBalancesByID{
		f.feeAsset: "9000000000000000",
		feeAsset:   "1",
	})

	est, err := f.svc.EstimateClaim(context.Background(), ClaimRequest{AccountID: f.account, OpportunityID: farmingOpportunity})
	require.NoError(t, err)
	assert.Equal(t, feeAsset, est.FeeAssetID)
	assert.False(t, est.CanPayFee)
}

func TestClaimServiceUnknownChainIsUnsupported(t *testing.T) {
	f := newClaimFixture(t)

	_, err := f.svc.EstimateClaim(context.Background(), ClaimRequest{
		AccountID:     entity.ToAccountID("eip155:137", stakingAddress),
		OpportunityID: farmingOpportunity,
	})
	assert.ErrorIs(t, err, entity.ErrUnsupportedAsset)
	assert.Zero(t, f.investor.lookups)
}
