package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolio_aggregator/internal/domain/entity"
	"portfolio_aggregator/internal/pkg/logger"
)

const (
	lpAddress      = "0x1111111111111111111111111111111111111111"
	stakingAddress = "0x2222222222222222222222222222222222222222"
	farmContract   = "0xc54b9f82c1c54e9d4d274d633c7523f2299c42a0"
)

type trackerFixture struct {
	tracker   *FoxEthTracker
	opps      *fakeOpportunityService
	txs       *TxHistoryStore
	portfolio *PortfolioStore
	adapter   *fakeAdapter
	lp        entity.AccountID
	staking   entity.AccountID
}

func newTrackerFixture(t *testing.T) *trackerFixture {
	t.Helper()
	l := logger.NewNop()
	f := &trackerFixture{
		opps:      newFakeOpportunityService(),
		txs:       NewTxHistoryStore(),
		portfolio: NewPortfolioStore(l),
		adapter:   &fakeAdapter{chainID: entity.EthChainID, address: "0xABCDEFabcdefABCDEFabcdefABCDEFabcdefABCD"},
		lp:        entity.ToAccountID(entity.EthChainID, lpAddress),
		staking:   entity.ToAccountID(entity.EthChainID, stakingAddress),
	}
	f.opps.lpAccounts = []entity.AccountID{f.lp}
	f.opps.stakingAccounts = []entity.AccountID{f.staking, f.lp}
	f.tracker = NewFoxEthTracker(f.opps, f.portfolio, f.txs,
		fakeAdapterManager{entity.EthChainID: f.adapter}, 0, l)
	f.tracker.Start(context.Background())
	t.Cleanup(f.tracker.Close)
	f.tracker.Wait()
	f.opps.reset()
	return f
}

func (f *trackerFixture) pendingFarmingTx(t *testing.T, txid string) string {
	t.Helper()
	f.tracker.SetFarmingAccountID(f.staking)
	require.NoError(t, f.tracker.OnOngoingFarmingTxIDChange(txid, farmContract))
	return entity.SerializeTxIndex(f.staking, txid, stakingAddress)
}

// setStatus writes the tx to history and waits for any refetch it triggers.
func (f *trackerFixture) setStatus(txid string, account entity.AccountID, address string, status entity.TxStatus) {
	f.txs.Upsert(entity.Tx{TxID: txid, AccountID: account, Address: address, ChainID: entity.EthChainID, Status: status})
	f.tracker.Wait()
}

func TestFoxEthTrackerStartsIdle(t *testing.T) {
	f := newTrackerFixture(t)

	state := f.tracker.State()
	assert.Equal(t, TrackerStatusIdle, state.Status)
	assert.Empty(t, state.OngoingTxID)
	assert.Empty(t, state.OngoingTxContractAddress)
}

func TestFoxEthTrackerTxIDChangeMovesToPending(t *testing.T) {
	f := newTrackerFixture(t)

	index := f.pendingFarmingTx(t, "0xabc")

	state := f.tracker.State()
	assert.Equal(t, TrackerStatusPending, state.Status)
	assert.Equal(t, index, state.OngoingTxID)
	assert.Equal(t, farmContract, state.OngoingTxContractAddress)
	assert.Zero(t, f.opps.totalUserDataCalls())
}

func TestFoxEthTrackerRequiresActiveAccount(t *testing.T) {
	f := newTrackerFixture(t)

	err := f.tracker.OnOngoingFarmingTxIDChange("0xabc", farmContract)
	assert.True(t, errors.Is(err, entity.ErrNoActiveAccount))

	err = f.tracker.OnOngoingLpTxIDChange("0xabc", "")
	assert.True(t, errors.Is(err, entity.ErrNoActiveAccount))

	assert.Equal(t, TrackerStatusIdle, f.tracker.State().Status)
}

func TestFoxEthTrackerPendingStatusDoesNothing(t *testing.T) {
	f := newTrackerFixture(t)
	index := f.pendingFarmingTx(t, "0xabc")

	f.setStatus("0xabc", f.staking, stakingAddress, entity.TxStatusPending)

	state := f.tracker.State()
	assert.Equal(t, TrackerStatusPending, state.Status)
	assert.Equal(t, index, state.OngoingTxID)
	assert.Zero(t, f.opps.totalUserDataCalls())
	assert.Empty(t, f.opps.invalidations)
}

func TestFoxEthTrackerConfirmedRefetchesOncePerAccount(t *testing.T) {
	f := newTrackerFixture(t)
	f.pendingFarmingTx(t, "0xabc")

	f.setStatus("0xabc", f.staking, stakingAddress, entity.TxStatusConfirmed)

	state := f.tracker.State()
	assert.Equal(t, TrackerStatusIdle, state.Status)
	assert.Empty(t, state.OngoingTxID)
	assert.Empty(t, state.OngoingTxContractAddress)

	require.Len(t, f.opps.userDataCalls, 2)
	for _, id := range []entity.AccountID{f.lp, f.staking} {
		calls := f.opps.userDataCalls[id]
		require.Len(t, calls, 1, "account %s", id)
		assert.True(t, calls[0].ForceRefetch)
	}

	require.Len(t, f.opps.invalidations, 1)
	inv := f.opps.invalidations[0]
	assert.Equal(t, f.staking, inv.AccountID)
	assert.Equal(t, entity.AssetID("eip155:1/erc20:"+farmContract), inv.OpportunityID)
	assert.Equal(t, entity.DefiTypeStaking, inv.OpportunityType)

	// A repeated confirmation for the same tx is ignored once idle.
	f.setStatus("0xabc", f.staking, stakingAddress, entity.TxStatusConfirmed)
	f.txs.Upsert(entity.Tx{TxID: "0xabc", AccountID: f.staking, Address: stakingAddress, Status: entity.TxStatusFailed})
	f.tracker.Wait()
	assert.Equal(t, 2, f.opps.totalUserDataCalls())
}

func TestFoxEthTrackerConfirmedWithoutContractSkipsInvalidation(t *testing.T) {
	f := newTrackerFixture(t)
	f.tracker.SetLpAccountID(f.lp)
	require.NoError(t, f.tracker.OnOngoingLpTxIDChange("0xdef", ""))

	f.setStatus("0xdef", f.lp, lpAddress, entity.TxStatusConfirmed)

	assert.Equal(t, TrackerStatusIdle, f.tracker.State().Status)
	assert.Equal(t, 2, f.opps.totalUserDataCalls())
	assert.Empty(t, f.opps.invalidations)
}

func TestFoxEthTrackerLpTxInvalidatesFarmingAccount(t *testing.T) {
	f := newTrackerFixture(t)
	f.tracker.SetFarmingAccountID(f.staking)
	f.tracker.SetLpAccountID(f.lp)
	require.NoError(t, f.tracker.OnOngoingLpTxIDChange("0xlp", farmContract))

	f.setStatus("0xlp", f.lp, lpAddress, entity.TxStatusConfirmed)

	require.Len(t, f.opps.invalidations, 1)
	inv := f.opps.invalidations[0]
	assert.Equal(t, f.staking, inv.AccountID)
	assert.Equal(t, entity.AssetID("eip155:1/erc20:"+farmContract), inv.OpportunityID)
	assert.Equal(t, entity.DefiTypeStaking, inv.OpportunityType)
}

func TestFoxEthTrackerUsesFarmingAccountSelectedAtTrackTime(t *testing.T) {
	f := newTrackerFixture(t)
	f.pendingFarmingTx(t, "0xabc")
	f.tracker.SetFarmingAccountID(f.lp)

	f.setStatus("0xabc", f.staking, stakingAddress, entity.TxStatusConfirmed)

	require.Len(t, f.opps.invalidations, 1)
	assert.Equal(t, f.staking, f.opps.invalidations[0].AccountID)
}

func TestFoxEthTrackerLpTxWithoutFarmingAccountSkipsInvalidation(t *testing.T) {
	f := newTrackerFixture(t)
	f.tracker.SetLpAccountID(f.lp)
	require.NoError(t, f.tracker.OnOngoingLpTxIDChange("0xlp", farmContract))

	f.setStatus("0xlp", f.lp, lpAddress, entity.TxStatusConfirmed)

	assert.Equal(t, 2, f.opps.totalUserDataCalls())
	assert.Empty(t, f.opps.invalidations)
}

func TestFoxEthTrackerTxListenerDoesNotBlockOnRefetch(t *testing.T) {
	f := newTrackerFixture(t)
	release := make(chan struct{})
	f.opps.block = release
	f.pendingFarmingTx(t, "0xabc")

	done := make(chan struct{})
	go func() {
		f.txs.Upsert(entity.Tx{TxID: "0xabc", AccountID: f.staking, Address: stakingAddress, ChainID: entity.EthChainID, Status: entity.TxStatusConfirmed})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		close(release)
		t.Fatal("tx history upsert waited for the refetch")
	}
	assert.Equal(t, TrackerStatusIdle, f.tracker.State().Status)

	close(release)
	f.tracker.Wait()
	assert.Equal(t, 2, f.opps.totalUserDataCalls())
}

func TestFoxEthTrackerFailedStatusReturnsToIdleWithoutRefetch(t *testing.T) {
	f := newTrackerFixture(t)
	f.pendingFarmingTx(t, "0xabc")

	f.setStatus("0xabc", f.staking, stakingAddress, entity.TxStatusFailed)

	state := f.tracker.State()
	assert.Equal(t, TrackerStatusIdle, state.Status)
	assert.Empty(t, state.OngoingTxID)
	assert.Zero(t, f.opps.totalUserDataCalls())
	assert.Empty(t, f.opps.invalidations)
}

func TestFoxEthTrackerIgnoresOtherTransactions(t *testing.T) {
	f := newTrackerFixture(t)
	index := f.pendingFarmingTx(t, "0xabc")

	f.setStatus("0xother", f.staking, stakingAddress, entity.TxStatusConfirmed)

	assert.Equal(t, index, f.tracker.State().OngoingTxID)
	assert.Zero(t, f.opps.totalUserDataCalls())
}

func TestFoxEthTrackerAlreadyConfirmedTxResolvesImmediately(t *testing.T) {
	f := newTrackerFixture(t)
	f.setStatus("0xabc", f.staking, stakingAddress, entity.TxStatusConfirmed)

	f.pendingFarmingTx(t, "0xabc")
	f.tracker.Wait()

	assert.Equal(t, TrackerStatusIdle, f.tracker.State().Status)
	assert.Equal(t, 2, f.opps.totalUserDataCalls())
}

func TestFoxEthTrackerBootstrapsLpAccount(t *testing.T) {
	f := newTrackerFixture(t)
	wallet := &fakeWallet{supported: true}

	f.tracker.OnWalletConnected(context.Background(), wallet)

	assert.Equal(t, entity.AccountID("eip155:1:0xabcdefabcdefabcdefabcdefabcdefabcdefabcd"), f.tracker.LpAccountID())
	assert.Equal(t, 1, f.adapter.calls)

	// One-time bootstrap.
	f.tracker.SetLpAccountID("")
	f.tracker.OnWalletConnected(context.Background(), wallet)
	assert.Equal(t, 1, f.adapter.calls)
}

func TestFoxEthTrackerBootstrapSkipsUnsupportedWallet(t *testing.T) {
	f := newTrackerFixture(t)

	f.tracker.OnWalletConnected(context.Background(), &fakeWallet{supported: false})

	assert.Empty(t, f.tracker.LpAccountID())
	assert.Zero(t, f.adapter.calls)
}

func TestFoxEthTrackerBootstrapKeepsSelectedLpAccount(t *testing.T) {
	f := newTrackerFixture(t)
	f.tracker.SetLpAccountID(f.lp)

	f.tracker.OnWalletConnected(context.Background(), &fakeWallet{supported: true})

	assert.Equal(t, f.lp, f.tracker.LpAccountID())
	assert.Zero(t, f.adapter.calls)
}

func TestFoxEthTrackerBootstrapSwallowsDerivationError(t *testing.T) {
	f := newTrackerFixture(t)
	f.adapter.err = errors.New("device locked")

	f.tracker.OnWalletConnected(context.Background(), &fakeWallet{supported: true})

	assert.Empty(t, f.tracker.LpAccountID())
}

func TestFoxEthTrackerRefreshesOnAccountSetChange(t *testing.T) {
	f := newTrackerFixture(t)

	f.portfolio.UpsertAccount(f.lp, entity.PortfolioAccount{AssetIDs: []entity.AssetID{entity.EthAssetID}})
	f.tracker.Wait()

	assert.Equal(t, 1, f.opps.metadataCalls)
	assert.Equal(t, 1, f.opps.stakingMetadataCalls)
	require.Len(t, f.opps.userDataCalls[f.lp], 1)
	assert.True(t, f.opps.userDataCalls[f.lp][0].ForceRefetch)
	assert.Len(t, f.opps.stakingUserDataCalls[f.lp], 1)
	assert.Len(t, f.opps.stakingUserDataCalls[f.staking], 1)

	// Balance updates for a known account do not change the account set.
	f.portfolio.UpsertAccount(f.lp, entity.PortfolioAccount{})
	f.tracker.Wait()
	assert.Equal(t, 1, f.opps.metadataCalls)
}

func TestFoxEthTrackerCloseStopsListening(t *testing.T) {
	f := newTrackerFixture(t)
	f.pendingFarmingTx(t, "0xabc")

	f.tracker.Close()
	f.setStatus("0xabc", f.staking, stakingAddress, entity.TxStatusConfirmed)

	assert.Equal(t, TrackerStatusPending, f.tracker.State().Status)
	assert.Zero(t, f.opps.totalUserDataCalls())
}
