package service

import (
	"slices"
	"sync"

	"portfolio_aggregator/internal/app/port"
	"portfolio_aggregator/internal/domain/entity"
)

// PortfolioStore is the normalized, process-wide portfolio read model.
//
// The three tables (accounts, balances, metadata) share the account-id domain
// but are maintained independently; any of them may lack an id the others
// have. Every table keeps its IDs slice and ByID map in step.
type PortfolioStore struct {
	mu        sync.RWMutex
	portfolio entity.Portfolio
	logger    port.Logger

	listenersMu sync.Mutex
	listeners   map[int]func([]entity.AccountID)
	nextID      int
}

var _ port.PortfolioStore = (*PortfolioStore)(nil)

// NewPortfolioStore creates an empty store.
func NewPortfolioStore(l port.Logger) *PortfolioStore {
	return &PortfolioStore{
		portfolio: entity.NewPortfolio(),
		logger:    l.With("component", "PortfolioStore"),
		listeners: make(map[int]func([]entity.AccountID)),
	}
}

// AccountIDs returns the union of account ids across the three tables, in
// first-seen order: accounts, then metadata, then balances.
func (s *PortfolioStore) AccountIDs() []entity.AccountID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accountIDsLocked()
}

func (s *PortfolioStore) accountIDsLocked() []entity.AccountID {
	seen := make(map[entity.AccountID]struct{})
	out := make([]entity.AccountID, 0, len(s.portfolio.Accounts.IDs))
	for _, ids := range [][]entity.AccountID{
		s.portfolio.Accounts.IDs,
		s.portfolio.AccountMetadata.IDs,
		s.portfolio.AccountBalances.IDs,
	} {
		for _, id := range ids {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

// AccountIDsByChainID filters AccountIDs to one chain.
func (s *PortfolioStore) AccountIDsByChainID(chainID entity.ChainID) []entity.AccountID {
	all := s.AccountIDs()
	out := make([]entity.AccountID, 0, len(all))
	for _, id := range all {
		if id.ChainID() == chainID {
			out = append(out, id)
		}
	}
	return out
}

// AssetIDsByAccountIDExcludeFeeAsset returns the assets held by an account
// without the chain's fee asset. Unknown accounts yield an empty slice.
func (s *PortfolioStore) AssetIDsByAccountIDExcludeFeeAsset(accountID entity.AccountID, feeAssetID entity.AssetID) []entity.AssetID {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acc, ok := s.portfolio.Accounts.ByID[accountID]
	if !ok {
		return []entity.AssetID{}
	}
	out := make([]entity.AssetID, 0, len(acc.AssetIDs))
	for _, id := range acc.AssetIDs {
		if id == feeAssetID {
			continue
		}
		out = append(out, id)
	}
	return out
}

// BalanceByAccountIDAndAssetID returns the base-unit balance, "0" when unknown.
func (s *PortfolioStore) BalanceByAccountIDAndAssetID(accountID entity.AccountID, assetID entity.AssetID) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if balances, ok := s.portfolio.AccountBalances.ByID[accountID]; ok {
		if b, ok := balances[assetID]; ok && b != "" {
			return b
		}
	}
	return "0"
}

// BIP44ParamsByAccountID returns the derivation parameters of an account.
func (s *PortfolioStore) BIP44ParamsByAccountID(accountID entity.AccountID) (entity.BIP44Params, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	md, ok := s.portfolio.AccountMetadata.ByID[accountID]
	if !ok {
		return entity.BIP44Params{}, false
	}
	return md.BIP44Params, true
}

// HasAccount reports whether any table knows the account.
func (s *PortfolioStore) HasAccount(accountID entity.AccountID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, a := s.portfolio.Accounts.ByID[accountID]
	_, b := s.portfolio.AccountBalances.ByID[accountID]
	_, m := s.portfolio.AccountMetadata.ByID[accountID]
	return a || b || m
}

// Snapshot returns a deep copy of the portfolio.
func (s *PortfolioStore) Snapshot() entity.Portfolio {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := entity.NewPortfolio()
	out.Accounts.IDs = slices.Clone(s.portfolio.Accounts.IDs)
	for id, acc := range s.portfolio.Accounts.ByID {
		out.Accounts.ByID[id] = clonePortfolioAccount(acc)
	}
	out.AccountBalances.IDs = slices.Clone(s.portfolio.AccountBalances.IDs)
	for id, balances := range s.portfolio.AccountBalances.ByID {
		cp := make(entity.AssetBalancesByID, len(balances))
		for k, v := range balances {
			cp[k] = v
		}
		out.AccountBalances.ByID[id] = cp
	}
	out.AccountMetadata.IDs = slices.Clone(s.portfolio.AccountMetadata.IDs)
	for id, md := range s.portfolio.AccountMetadata.ByID {
		out.AccountMetadata.ByID[id] = md
	}
	return out
}

// UpsertAccount replaces the account entry, keeping asset ids in the given order.
func (s *PortfolioStore) UpsertAccount(accountID entity.AccountID, account entity.PortfolioAccount) {
	s.mutate(func() {
		if _, ok := s.portfolio.Accounts.ByID[accountID]; !ok {
			s.portfolio.Accounts.IDs = append(s.portfolio.Accounts.IDs, accountID)
		}
		s.portfolio.Accounts.ByID[accountID] = clonePortfolioAccount(account)
	})
}

// UpsertAccountBalances merges balances into the account's balance map. A
// "0" or empty balance removes the asset's entry.
func (s *PortfolioStore) UpsertAccountBalances(accountID entity.AccountID, balances entity.AssetBalancesByID) {
	s.mutate(func() {
		existing, ok := s.portfolio.AccountBalances.ByID[accountID]
		if !ok {
			existing = make(entity.AssetBalancesByID, len(balances))
			s.portfolio.AccountBalances.IDs = append(s.portfolio.AccountBalances.IDs, accountID)
		}
		for assetID, b := range balances {
			if b == "" || b == "0" {
				delete(existing, assetID)
				continue
			}
			existing[assetID] = b
		}
		s.portfolio.AccountBalances.ByID[accountID] = existing
	})
}

// UpsertAccountMetadata records how the account was derived.
func (s *PortfolioStore) UpsertAccountMetadata(accountID entity.AccountID, metadata entity.AccountMetadata) {
	s.mutate(func() {
		if _, ok := s.portfolio.AccountMetadata.ByID[accountID]; !ok {
			s.portfolio.AccountMetadata.IDs = append(s.portfolio.AccountMetadata.IDs, accountID)
		}
		s.portfolio.AccountMetadata.ByID[accountID] = metadata
	})
}

// RemoveAccount drops the account from all three tables.
func (s *PortfolioStore) RemoveAccount(accountID entity.AccountID) {
	s.mutate(func() {
		delete(s.portfolio.Accounts.ByID, accountID)
		s.portfolio.Accounts.IDs = removeID(s.portfolio.Accounts.IDs, accountID)
		delete(s.portfolio.AccountBalances.ByID, accountID)
		s.portfolio.AccountBalances.IDs = removeID(s.portfolio.AccountBalances.IDs, accountID)
		delete(s.portfolio.AccountMetadata.ByID, accountID)
		s.portfolio.AccountMetadata.IDs = removeID(s.portfolio.AccountMetadata.IDs, accountID)
	})
}

// SubscribeAccountSetChanged registers fn; it runs after every mutation that
// adds or removes an account id, outside the store lock but on the mutating
// goroutine. fn must not block.
func (s *PortfolioStore) SubscribeAccountSetChanged(fn func(accountIDs []entity.AccountID)) func() {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	return func() {
		s.listenersMu.Lock()
		defer s.listenersMu.Unlock()
		delete(s.listeners, id)
	}
}

func (s *PortfolioStore) mutate(fn func()) {
	s.mu.Lock()
	before := s.accountIDsLocked()
	fn()
	after := s.accountIDsLocked()
	s.mu.Unlock()

	if slices.Equal(before, after) {
		return
	}
	s.logger.Debug("Account set changed", "before", len(before), "after", len(after))

	s.listenersMu.Lock()
	fns := make([]func([]entity.AccountID), 0, len(s.listeners))
	for _, l := range s.listeners {
		fns = append(fns, l)
	}
	s.listenersMu.Unlock()

	for _, l := range fns {
		l(slices.Clone(after))
	}
}

func removeID(ids []entity.AccountID, target entity.AccountID) []entity.AccountID {
	return slices.DeleteFunc(ids, func(id entity.AccountID) bool { return id == target })
}

func clonePortfolioAccount(acc entity.PortfolioAccount) entity.PortfolioAccount {
	out := entity.PortfolioAccount{
		AssetIDs:     slices.Clone(acc.AssetIDs),
		ValidatorIDs: slices.Clone(acc.ValidatorIDs),
	}
	if out.AssetIDs == nil {
		out.AssetIDs = []entity.AssetID{}
	}
	if acc.StakingDataByValidatorID != nil {
		out.StakingDataByValidatorID = make(entity.StakingDataByValidatorID, len(acc.StakingDataByValidatorID))
		for v, byAsset := range acc.StakingDataByValidatorID {
			cp := make(map[entity.AssetID]entity.Staking, len(byAsset))
			for a, st := range byAsset {
				cp[a] = st
			}
			out.StakingDataByValidatorID[v] = cp
		}
	}
	return out
}
