package service

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"sync"

	"portfolio_aggregator/internal/app/port"
	"portfolio_aggregator/internal/domain/entity"
)

// fakeOpportunityService records every call made by the tracker.
type fakeOpportunityService struct {
	mu sync.Mutex

	lpAccounts      []entity.AccountID
	stakingAccounts []entity.AccountID

	metadataCalls        int
	stakingMetadataCalls int
	userDataCalls        map[entity.AccountID][]entity.FetchOptions
	stakingUserDataCalls map[entity.AccountID][]entity.FetchOptions
	invalidations        []entity.UserDataRequest
	userDataErr          error
	block                chan struct{} // user-data fetches wait on it when set
}

func newFakeOpportunityService() *fakeOpportunityService {
	return &fakeOpportunityService{
		userDataCalls:        make(map[entity.AccountID][]entity.FetchOptions),
		stakingUserDataCalls: make(map[entity.AccountID][]entity.FetchOptions),
	}
}

func (f *fakeOpportunityService) FetchAllOpportunitiesMetadata(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.metadataCalls++
	return nil
}

func (f *fakeOpportunityService) FetchAllOpportunitiesUserData(_ context.Context, id entity.AccountID, opts entity.FetchOptions) error {
	f.mu.Lock()
	block := f.block
	f.mu.Unlock()
	if block != nil {
		<-block
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.userDataCalls[id] = append(f.userDataCalls[id], opts)
	return f.userDataErr
}

func (f *fakeOpportunityService) FetchAllStakingOpportunitiesMetadata(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stakingMetadataCalls++
	return nil
}

func (f *fakeOpportunityService) FetchAllStakingOpportunitiesUserData(_ context.Context, id entity.AccountID, opts entity.FetchOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stakingUserDataCalls[id] = append(f.stakingUserDataCalls[id], opts)
	return nil
}

func (f *fakeOpportunityService) GetOpportunityUserData(_ context.Context, req entity.UserDataRequest, opts entity.FetchOptions) (entity.UserStakingOpportunity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if opts.ForceRefetch {
		f.invalidations = append(f.invalidations, req)
	}
	return entity.UserStakingOpportunity{AccountID: req.AccountID, OpportunityID: req.OpportunityID}, nil
}

func (f *fakeOpportunityService) LpAccountIDs() []entity.AccountID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]entity.AccountID(nil), f.lpAccounts...)
}

func (f *fakeOpportunityService) StakingAccountIDs() []entity.AccountID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]entity.AccountID(nil), f.stakingAccounts...)
}

func (f *fakeOpportunityService) Metadata() []entity.OpportunityMetadata { return nil }

func (f *fakeOpportunityService) UserData(entity.AccountID) []entity.UserStakingOpportunity {
	return nil
}

func (f *fakeOpportunityService) totalUserDataCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, calls := range f.userDataCalls {
		n += len(calls)
	}
	return n
}

func (f *fakeOpportunityService) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.metadataCalls = 0
	f.stakingMetadataCalls = 0
	f.userDataCalls = make(map[entity.AccountID][]entity.FetchOptions)
	f.stakingUserDataCalls = make(map[entity.AccountID][]entity.FetchOptions)
	f.invalidations = nil
}

// fakeResolver serves fixed metadata and per-call programmable user data.
type fakeResolver struct {
	mu       sync.Mutex
	defiType entity.DefiType
	chainID  entity.ChainID
	ids      []entity.OpportunityID
	calls    int
	userData func(call int, accountID entity.AccountID, id entity.OpportunityID) (entity.UserStakingOpportunity, error)
	metaErr  error
}

func (r *fakeResolver) Type() entity.DefiType                  { return r.defiType }
func (r *fakeResolver) ChainID() entity.ChainID                { return r.chainID }
func (r *fakeResolver) OpportunityIDs() []entity.OpportunityID { return r.ids }

func (r *fakeResolver) Metadata(context.Context) ([]entity.OpportunityMetadata, error) {
	if r.metaErr != nil {
		return nil, r.metaErr
	}
	out := make([]entity.OpportunityMetadata, 0, len(r.ids))
	for _, id := range r.ids {
		out = append(out, entity.OpportunityMetadata{ID: id, Type: r.defiType})
	}
	return out, nil
}

func (r *fakeResolver) UserData(_ context.Context, accountID entity.AccountID, id entity.OpportunityID) (entity.UserStakingOpportunity, error) {
	r.mu.Lock()
	r.calls++
	call := r.calls
	r.mu.Unlock()
	if r.userData != nil {
		return r.userData(call, accountID, id)
	}
	return entity.UserStakingOpportunity{AccountID: accountID, OpportunityID: id, Type: r.defiType, StakedAmount: "1"}, nil
}

func (r *fakeResolver) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

// fakeWallet returns a fixed key for every path.
type fakeWallet struct {
	key       *ecdsa.PrivateKey
	supported bool
	paths     [][]uint32
}

func (w *fakeWallet) Supports(ns entity.ChainNamespace) bool {
	return w.supported && ns == entity.ChainNamespaceEvm
}

func (w *fakeWallet) PublicKey(_ context.Context, path []uint32) ([]byte, error) {
	w.paths = append(w.paths, path)
	if w.key == nil {
		return nil, errors.New("no key")
	}
	return nil, nil
}

func (w *fakeWallet) PrivateKey(_ context.Context, path []uint32) (*ecdsa.PrivateKey, error) {
	w.paths = append(w.paths, path)
	if w.key == nil {
		return nil, errors.New("no key")
	}
	return w.key, nil
}

// fakeAdapter answers GetAddress with a fixed address.
type fakeAdapter struct {
	chainID  entity.ChainID
	address  string
	feeAsset entity.AssetID
	err      error
	calls    int
}

func (a *fakeAdapter) ChainID() entity.ChainID { return a.chainID }

func (a *fakeAdapter) FeeAssetID() entity.AssetID {
	if a.feeAsset != "" {
		return a.feeAsset
	}
	return entity.ToAssetID(a.chainID, entity.AssetNamespaceSlip44, "60")
}

func (a *fakeAdapter) GetAddress(context.Context, port.HDWallet, entity.BIP44Params) (string, error) {
	a.calls++
	return a.address, a.err
}

type fakeAdapterManager map[entity.ChainID]port.ChainAdapter

func (m fakeAdapterManager) Get(chainID entity.ChainID) (port.ChainAdapter, bool) {
	a, ok := m[chainID]
	return a, ok
}

// fakeEVMClient implements port.EVMClient with canned answers.
type fakeEVMClient struct {
	mu sync.Mutex

	def      entity.NetworkDefinition
	balances map[string]string // keyed by "wallet|token"
	tokenErr map[string]error  // keyed like balances
	balErr   error

	statuses map[string]entity.TxStatus

	gasPrice *big.Int
	gas      uint64
	nonce    uint64
	sent     []entity.PreparedTx
	sendErr  error
}

func (c *fakeEVMClient) GetBalances(_ context.Context, reqs []entity.BalanceRequestItem) ([]entity.BalanceResultItem, error) {
	if c.balErr != nil {
		return nil, c.balErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]entity.BalanceResultItem, 0, len(reqs))
	for _, r := range reqs {
		key := r.WalletAddress + "|" + r.TokenAddress
		if err := c.tokenErr[key]; err != nil {
			out = append(out, entity.BalanceResultItem{WalletAddress: r.WalletAddress, TokenAddress: r.TokenAddress, AssetID: r.AssetID, Error: err})
			continue
		}
		b, ok := c.balances[key]
		if !ok {
			b = "0"
		}
		v, _ := new(big.Int).SetString(b, 10)
		out = append(out, entity.BalanceResultItem{
			WalletAddress: r.WalletAddress,
			TokenAddress:  r.TokenAddress,
			AssetID:       r.AssetID,
			Balance:       v,
		})
	}
	return out, nil
}

func (c *fakeEVMClient) Definition() entity.NetworkDefinition { return c.def }

func (c *fakeEVMClient) CallContract(context.Context, string, []byte) ([]byte, error) {
	return nil, errors.New("not implemented")
}

func (c *fakeEVMClient) TransactionStatus(_ context.Context, txid string) (entity.TxStatus, uint64, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.statuses[txid]
	if !ok {
		return "", 0, false, nil
	}
	return s, 100, true, nil
}

func (c *fakeEVMClient) SuggestGasPrice(context.Context) (*big.Int, error) {
	return c.gasPrice, nil
}

func (c *fakeEVMClient) EstimateGas(context.Context, string, string, []byte) (uint64, error) {
	return c.gas, nil
}

func (c *fakeEVMClient) PendingNonce(context.Context, string) (uint64, error) {
	return c.nonce, nil
}

func (c *fakeEVMClient) SendSigned(_ context.Context, tx entity.PreparedTx, _ *ecdsa.PrivateKey) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return "", c.sendErr
	}
	c.sent = append(c.sent, tx)
	return "0xfeed", nil
}
