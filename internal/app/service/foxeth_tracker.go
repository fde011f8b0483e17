package service

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"portfolio_aggregator/internal/app/port"
	"portfolio_aggregator/internal/domain/entity"
	"portfolio_aggregator/internal/pkg/metrics"
	"portfolio_aggregator/internal/pkg/utils"
)

// TrackerStatus is the lifecycle of the tracked transaction slot.
type TrackerStatus string

const (
	TrackerStatusIdle    TrackerStatus = "idle"
	TrackerStatusPending TrackerStatus = "pending"
)

// TrackerState is a read-only snapshot of a FoxEthTracker.
type TrackerState struct {
	Status                   TrackerStatus    `json:"status"`
	FarmingAccountID         entity.AccountID `json:"farmingAccountId,omitempty"`
	LpAccountID              entity.AccountID `json:"lpAccountId,omitempty"`
	OngoingTxID              string           `json:"ongoingTxId,omitempty"`
	OngoingTxContractAddress string           `json:"ongoingTxContractAddress,omitempty"`
}

// FoxEthTracker is the per-session controller for FOX/ETH opportunities.
//
// It holds the selected farming and lp accounts and at most one in-flight
// transaction. A confirmed transaction forces a user-data refetch across all
// lp and staking accounts and invalidates the targeted opportunity for the
// farming account; any other terminal status just frees the slot.
//
// Event-driven refetches run on background goroutines so that portfolio and
// tx history mutators never wait on them. Wait blocks until they finish.
type FoxEthTracker struct {
	opportunities port.OpportunityService
	portfolio     port.PortfolioReader
	txs           port.TxStore
	adapters      port.ChainAdapterManager
	logger        port.Logger
	fetchTimeout  time.Duration

	mu                       sync.Mutex
	farmingAccountID         entity.AccountID
	lpAccountID              entity.AccountID
	ongoingTxID              string
	ongoingTxContractAddress string
	ongoingFarmingAccountID  entity.AccountID
	bootstrapped             bool

	ctx    context.Context
	cancel context.CancelFunc
	unsubs []func()
	work   sync.WaitGroup
}

var _ port.OpportunityTracker = (*FoxEthTracker)(nil)

// NewFoxEthTracker creates an idle tracker. Call Start to subscribe it to
// portfolio and transaction events.
func NewFoxEthTracker(
	opportunities port.OpportunityService,
	portfolio port.PortfolioReader,
	txs port.TxStore,
	adapters port.ChainAdapterManager,
	fetchTimeout time.Duration,
	l port.Logger,
) *FoxEthTracker {
	if fetchTimeout <= 0 {
		fetchTimeout = 30 * time.Second
	}
	return &FoxEthTracker{
		opportunities: opportunities,
		portfolio:     portfolio,
		txs:           txs,
		adapters:      adapters,
		logger:        l.With("component", "FoxEthTracker"),
		fetchTimeout:  fetchTimeout,
		ctx:           context.Background(),
	}
}

// Start subscribes to account-set and tx status changes and runs an initial
// refresh in the background.
func (t *FoxEthTracker) Start(ctx context.Context) {
	t.mu.Lock()
	t.ctx, t.cancel = context.WithCancel(ctx)
	t.unsubs = append(t.unsubs,
		t.portfolio.SubscribeAccountSetChanged(func([]entity.AccountID) {
			t.goRun(t.RefreshAccounts)
		}),
		t.txs.SubscribeStatusChanged(t.handleTx),
	)
	t.mu.Unlock()

	t.goRun(t.RefreshAccounts)
}

// Close drops every subscription, cancels background refetches and waits for
// them to return.
func (t *FoxEthTracker) Close() {
	t.mu.Lock()
	unsubs := t.unsubs
	t.unsubs = nil
	if t.cancel != nil {
		t.cancel()
	}
	t.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
	t.work.Wait()
}

// Wait blocks until every background refetch started so far has finished.
func (t *FoxEthTracker) Wait() {
	t.work.Wait()
}

func (t *FoxEthTracker) goRun(fn func(ctx context.Context)) {
	ctx := t.baseContext()
	t.work.Add(1)
	go func() {
		defer t.work.Done()
		fn(ctx)
	}()
}

func (t *FoxEthTracker) FarmingAccountID() entity.AccountID {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.farmingAccountID
}

func (t *FoxEthTracker) SetFarmingAccountID(id entity.AccountID) {
	t.mu.Lock()
	t.farmingAccountID = id
	t.mu.Unlock()
}

func (t *FoxEthTracker) LpAccountID() entity.AccountID {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lpAccountID
}

func (t *FoxEthTracker) SetLpAccountID(id entity.AccountID) {
	t.mu.Lock()
	t.lpAccountID = id
	t.mu.Unlock()
}

// State returns a snapshot of the tracker.
func (t *FoxEthTracker) State() TrackerState {
	t.mu.Lock()
	defer t.mu.Unlock()
	status := TrackerStatusIdle
	if t.ongoingTxID != "" {
		status = TrackerStatusPending
	}
	return TrackerState{
		Status:                   status,
		FarmingAccountID:         t.farmingAccountID,
		LpAccountID:              t.lpAccountID,
		OngoingTxID:              t.ongoingTxID,
		OngoingTxContractAddress: t.ongoingTxContractAddress,
	}
}

// OnOngoingFarmingTxIDChange starts tracking a farming transaction broadcast
// from the farming account.
func (t *FoxEthTracker) OnOngoingFarmingTxIDChange(txid, contractAddress string) error {
	return t.track(t.FarmingAccountID(), txid, contractAddress)
}

// OnOngoingLpTxIDChange starts tracking a liquidity transaction broadcast
// from the lp account.
func (t *FoxEthTracker) OnOngoingLpTxIDChange(txid, contractAddress string) error {
	return t.track(t.LpAccountID(), txid, contractAddress)
}

func (t *FoxEthTracker) track(accountID entity.AccountID, txid, contractAddress string) error {
	if accountID == "" {
		return entity.ErrNoActiveAccount
	}
	parts, err := entity.FromAccountID(accountID)
	if err != nil {
		return err
	}
	index := entity.SerializeTxIndex(accountID, txid, parts.Account)

	t.mu.Lock()
	t.ongoingTxID = index
	t.ongoingTxContractAddress = contractAddress
	t.ongoingFarmingAccountID = t.farmingAccountID
	t.mu.Unlock()

	metrics.TrackedTxTransitions.WithLabelValues(string(TrackerStatusPending)).Inc()
	t.logger.Info("Tracking ongoing tx", "txIndex", index, "contract", contractAddress)

	// The tx may already be known to the history.
	if tx, ok := t.txs.TxByIndex(index); ok {
		t.handleTx(tx)
	}
	return nil
}

// OnWalletConnected derives the lp account from BIP-44 account 0 when none is
// selected yet. It runs at most once per session.
func (t *FoxEthTracker) OnWalletConnected(ctx context.Context, wallet port.HDWallet) {
	t.mu.Lock()
	if t.bootstrapped || t.lpAccountID != "" {
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()

	if wallet == nil || !wallet.Supports(entity.ChainNamespaceEvm) {
		return
	}
	adapter, ok := t.adapters.Get(entity.EthChainID)
	if !ok {
		t.logger.Warn("No chain adapter for lp account bootstrap", "chainId", entity.EthChainID)
		return
	}
	address, err := adapter.GetAddress(ctx, wallet, entity.EthBIP44Params(0))
	if err != nil {
		t.logger.Error("Failed to derive lp account address", "error", err)
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.lpAccountID == "" {
		t.lpAccountID = entity.ToAccountID(entity.EthChainID, address)
		t.logger.Info("Lp account bootstrapped", "accountId", t.lpAccountID)
	}
	t.bootstrapped = true
}

// RefreshAccounts reissues metadata fetches and forced per-account user-data
// fetches. Failures are logged.
func (t *FoxEthTracker) RefreshAccounts(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, t.fetchTimeout)
	defer cancel()

	metrics.OpportunityRefetches.WithLabelValues("account_set").Inc()
	force := entity.FetchOptions{ForceRefetch: true}

	lpAccounts := t.opportunities.LpAccountIDs()
	if err := t.opportunities.FetchAllOpportunitiesMetadata(ctx); err != nil {
		t.logger.Warn("Opportunity metadata fetch failed", "error", err)
	}
	t.forEachAccount(ctx, lpAccounts, func(ctx context.Context, id entity.AccountID) error {
		return t.opportunities.FetchAllOpportunitiesUserData(ctx, id, force)
	})

	if err := t.opportunities.FetchAllStakingOpportunitiesMetadata(ctx); err != nil {
		t.logger.Warn("Staking metadata fetch failed", "error", err)
	}
	stakingAccounts := uniqAccountIDs(append(t.opportunities.StakingAccountIDs(), lpAccounts...))
	t.forEachAccount(ctx, stakingAccounts, func(ctx context.Context, id entity.AccountID) error {
		return t.opportunities.FetchAllStakingOpportunitiesUserData(ctx, id, force)
	})
}

func (t *FoxEthTracker) handleTx(tx entity.Tx) {
	t.mu.Lock()
	if t.ongoingTxID == "" || tx.Index != t.ongoingTxID {
		t.mu.Unlock()
		return
	}
	if tx.Status == entity.TxStatusPending {
		t.mu.Unlock()
		return
	}
	contract := t.ongoingTxContractAddress
	farmingAccountID := t.ongoingFarmingAccountID
	t.ongoingTxID = ""
	t.ongoingTxContractAddress = ""
	t.ongoingFarmingAccountID = ""
	t.mu.Unlock()

	metrics.TrackedTxTransitions.WithLabelValues(string(tx.Status)).Inc()
	if tx.Status != entity.TxStatusConfirmed {
		t.logger.Info("Tracked tx resolved without confirmation", "txIndex", tx.Index, "status", tx.Status)
		return
	}
	t.logger.Info("Tracked tx confirmed, refetching opportunities", "txIndex", tx.Index)
	t.goRun(func(ctx context.Context) {
		t.refetchAfterConfirmation(ctx, farmingAccountID, contract)
	})
}

// refetchAfterConfirmation forces user data of every lp and staking account,
// then invalidates the contract's staking entry of the farming account
// selected when the tx started.
func (t *FoxEthTracker) refetchAfterConfirmation(ctx context.Context, farmingAccountID entity.AccountID, contract string) {
	ctx, cancel := context.WithTimeout(ctx, t.fetchTimeout)
	defer cancel()

	metrics.OpportunityRefetches.WithLabelValues("tx_confirmed").Inc()
	force := entity.FetchOptions{ForceRefetch: true}

	accounts := uniqAccountIDs(append(t.opportunities.LpAccountIDs(), t.opportunities.StakingAccountIDs()...))
	t.forEachAccount(ctx, accounts, func(ctx context.Context, id entity.AccountID) error {
		return t.opportunities.FetchAllOpportunitiesUserData(ctx, id, force)
	})

	if contract == "" {
		return
	}
	if farmingAccountID == "" {
		t.logger.Debug("No farming account selected, skipping invalidation", "contract", contract)
		return
	}
	oppID := entity.ToAssetID(farmingAccountID.ChainID(), entity.AssetNamespaceErc20, contract)
	req := entity.UserDataRequest{
		AccountID:       farmingAccountID,
		OpportunityID:   oppID,
		OpportunityType: entity.DefiTypeStaking,
		DefiType:        entity.DefiTypeStaking,
	}
	if _, err := t.opportunities.GetOpportunityUserData(ctx, req, force); err != nil {
		t.logger.Warn("Failed to invalidate opportunity user data", "opportunityId", oppID, "error", err)
	}
}

func (t *FoxEthTracker) forEachAccount(ctx context.Context, ids []entity.AccountID, fn func(context.Context, entity.AccountID) error) {
	g, gctx := errgroup.WithContext(ctx)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			if err := fn(gctx, id); err != nil {
				t.logger.Warn("Opportunity user data fetch failed", "accountId", id, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (t *FoxEthTracker) baseContext() context.Context {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ctx
}

func uniqAccountIDs(ids []entity.AccountID) []entity.AccountID {
	return utils.UniqBy(ids, func(id entity.AccountID) entity.AccountID { return id })
}
