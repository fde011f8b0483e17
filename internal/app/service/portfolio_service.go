package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"portfolio_aggregator/internal/app/port"
	"portfolio_aggregator/internal/domain/entity"
	"portfolio_aggregator/internal/pkg/metrics"
	"portfolio_aggregator/internal/pkg/utils"
)

// PortfolioServiceImpl implements port.PortfolioSyncer. It derives accounts
// from a connected wallet and reconciles on-chain balances into the store.
type PortfolioServiceImpl struct {
	networkProvider       port.NetworkDefinitionProvider
	tokenProvider         port.TokenProvider
	clientProvider        port.BlockchainClientProvider
	adapters              port.ChainAdapterManager
	store                 port.PortfolioStore
	logger                port.Logger
	accountsPerChain      uint32
	maxConcurrentRoutines int
	failedAccounts        map[entity.AccountID]bool
	mu                    sync.Mutex
}

var _ port.PortfolioSyncer = (*PortfolioServiceImpl)(nil)

// NewPortfolioService creates a new instance of PortfolioServiceImpl.
func NewPortfolioService(
	np port.NetworkDefinitionProvider,
	tp port.TokenProvider,
	cp port.BlockchainClientProvider,
	am port.ChainAdapterManager,
	store port.PortfolioStore,
	l port.Logger,
	accountsPerChain uint32,
	maxRoutines int,
) *PortfolioServiceImpl {
	if maxRoutines <= 0 {
		maxRoutines = 1
	}
	if accountsPerChain == 0 {
		accountsPerChain = 1
	}
	return &PortfolioServiceImpl{
		networkProvider:       np,
		tokenProvider:         tp,
		clientProvider:        cp,
		adapters:              am,
		store:                 store,
		logger:                l.With("component", "PortfolioService"),
		accountsPerChain:      accountsPerChain,
		maxConcurrentRoutines: maxRoutines,
		failedAccounts:        make(map[entity.AccountID]bool),
	}
}

// ConnectWallet derives the first accountsPerChain BIP-44 accounts on every
// network the wallet can sign for, records their metadata and syncs them.
func (s *PortfolioServiceImpl) ConnectWallet(ctx context.Context, wallet port.HDWallet) ([]entity.AccountID, error) {
	defs := s.networkProvider.GetAllNetworkDefinitions()
	if len(defs) == 0 {
		return nil, fmt.Errorf("no networks configured: %w", entity.ErrNotFound)
	}

	var accountIDs []entity.AccountID
	for _, def := range defs {
		chainID := def.CAIPChainID()
		if !wallet.Supports(chainID.Namespace()) {
			s.logger.Debug("Wallet does not support chain, skipping", "chainId", chainID)
			continue
		}
		adapter, ok := s.adapters.Get(chainID)
		if !ok {
			s.logger.Warn("No chain adapter registered", "chainId", chainID)
			continue
		}
		for n := uint32(0); n < s.accountsPerChain; n++ {
			params := entity.BIP44Params{Purpose: 44, CoinType: def.CoinType, AccountNumber: n}
			address, err := adapter.GetAddress(ctx, wallet, params)
			if err != nil {
				s.logger.Error("Failed to derive account address", "chainId", chainID, "path", params.String(), "error", err)
				continue
			}
			accountID := entity.ToAccountID(chainID, address)
			s.store.UpsertAccountMetadata(accountID, entity.AccountMetadata{BIP44Params: params})
			accountIDs = append(accountIDs, accountID)
		}
	}
	if len(accountIDs) == 0 {
		return nil, fmt.Errorf("no account could be derived from wallet: %w", entity.ErrUnsupportedAsset)
	}

	s.logger.Info("Wallet connected", "accounts", len(accountIDs))
	s.syncAccounts(ctx, accountIDs)
	return accountIDs, nil
}

// SyncAll reconciles every account known to the store.
func (s *PortfolioServiceImpl) SyncAll(ctx context.Context) []entity.SyncError {
	return s.syncAccounts(ctx, s.store.AccountIDs())
}

func (s *PortfolioServiceImpl) syncAccounts(ctx context.Context, accountIDs []entity.AccountID) []entity.SyncError {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxConcurrentRoutines)

	var mu sync.Mutex
	var all []entity.SyncError
	for _, id := range accountIDs {
		id := id
		g.Go(func() error {
			if errs := s.SyncAccount(gctx, id); len(errs) > 0 {
				mu.Lock()
				all = append(all, errs...)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	s.logger.Info("Portfolio sync finished", "accounts", len(accountIDs), "errors", len(all))
	return all
}

// SyncAccount fetches native and token balances of one account in a single
// batch and merges them into the store. Errors are returned, never fatal.
func (s *PortfolioServiceImpl) SyncAccount(ctx context.Context, accountID entity.AccountID) (errs []entity.SyncError) {
	defer func() {
		s.mu.Lock()
		s.failedAccounts[accountID] = len(errs) > 0
		s.mu.Unlock()
		outcome := "ok"
		if len(errs) > 0 {
			outcome = "error"
		}
		metrics.PortfolioSyncs.WithLabelValues(outcome).Inc()
	}()

	parts, err := entity.FromAccountID(accountID)
	if err != nil {
		return []entity.SyncError{{AccountID: accountID, Message: err.Error()}}
	}
	netDef, ok := s.networkProvider.GetNetworkDefinitionByChainID(parts.ChainID)
	if !ok {
		return []entity.SyncError{{AccountID: accountID, Message: "network not configured for chain " + string(parts.ChainID)}}
	}
	client, err := s.clientProvider.GetClient(netDef)
	if err != nil {
		s.logger.Error("Failed to get blockchain client for network", "network", netDef.Name, "error", err)
		return []entity.SyncError{{AccountID: accountID, Message: "failed to get client: " + err.Error()}}
	}

	tokensByChainID, err := s.tokenProvider.GetTokensByNetwork([]entity.NetworkDefinition{netDef})
	if err != nil {
		s.logger.Error("Failed to get tokens by network", "network", netDef.Name, "error", err)
		return []entity.SyncError{{AccountID: accountID, Message: fmt.Sprintf("failed to load tokens: %v", err)}}
	}

	requests := s.balanceRequests(parts.Account, netDef, tokensByChainID[strconv.FormatUint(netDef.ChainID, 10)])
	s.logger.Debug("Executing batch balance request", "accountId", accountID, "request_count", len(requests))
	results, err := client.GetBalances(ctx, requests)
	if err != nil {
		s.logger.Error("Batch GetBalances call failed", "accountId", accountID, "network", netDef.Name, "error", err)
		return []entity.SyncError{{AccountID: accountID, Message: fmt.Sprintf("batch balance fetch failed: %v", err)}}
	}

	feeAssetID := netDef.FeeAssetID()
	held := make(map[entity.AssetID]bool)
	for _, id := range s.store.AssetIDsByAccountIDExcludeFeeAsset(accountID, feeAssetID) {
		held[id] = true
	}

	balances := entity.AssetBalancesByID{}
	assetIDs := []entity.AssetID{feeAssetID}
	for _, res := range results {
		if res.Error != nil {
			s.logger.Warn("Error in batch balance sub-request",
				"accountId", accountID, "token_symbol", res.TokenSymbol, "token_address", res.TokenAddress, "error", res.Error)
			errs = append(errs, entity.SyncError{AccountID: accountID, AssetID: res.AssetID, Message: res.Error.Error()})
			// keep the last known balance
			if held[res.AssetID] {
				assetIDs = append(assetIDs, res.AssetID)
			}
			continue
		}
		balance := utils.BigIntToBaseUnits(res.Balance)
		balances[res.AssetID] = balance
		if res.AssetID != feeAssetID && balance != "0" {
			assetIDs = append(assetIDs, res.AssetID)
		}
	}

	s.store.UpsertAccount(accountID, entity.PortfolioAccount{AssetIDs: assetIDs})
	s.store.UpsertAccountBalances(accountID, balances)
	return errs
}

func (s *PortfolioServiceImpl) balanceRequests(address string, netDef entity.NetworkDefinition, tokens []entity.TokenInfo) []entity.BalanceRequestItem {
	nativeDecimals := netDef.Decimals
	if nativeDecimals == 0 {
		nativeDecimals = 18
	}
	requests := []entity.BalanceRequestItem{{
		ID:            fmt.Sprintf("%s-%s-NATIVE", address, netDef.Identifier),
		Type:          entity.NativeBalanceRequest,
		AssetID:       netDef.FeeAssetID(),
		WalletAddress: address,
		TokenSymbol:   netDef.NativeSymbol,
		TokenDecimals: uint8(nativeDecimals),
	}}

	for _, token := range tokens {
		if token.ChainID != netDef.ChainID {
			s.logger.Warn("Token ChainID mismatch, skipping token in batch preparation",
				"network", netDef.Name, "token_symbol", token.Symbol,
				"token_chain_id", token.ChainID, "network_chain_id", netDef.ChainID)
			continue
		}
		requests = append(requests, entity.BalanceRequestItem{
			ID:            fmt.Sprintf("%s-%s-%s", address, netDef.Identifier, strings.ToLower(token.Address)),
			Type:          entity.TokenBalanceRequest,
			AssetID:       token.AssetID(),
			WalletAddress: address,
			TokenAddress:  token.Address,
			TokenSymbol:   token.Symbol,
			TokenDecimals: token.Decimals,
		})
	}
	return requests
}

// GetFailedAccounts returns the accounts whose last sync reported errors.
func (s *PortfolioServiceImpl) GetFailedAccounts() []entity.AccountID {
	s.mu.Lock()
	defer s.mu.Unlock()
	failed := make([]entity.AccountID, 0, len(s.failedAccounts))
	for id, failedStatus := range s.failedAccounts {
		if failedStatus {
			failed = append(failed, id)
		}
	}
	return failed
}
