package client

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/crypto"

	"portfolio_aggregator/internal/app/port"
	"portfolio_aggregator/internal/domain/entity"
)

// EVMChainAdapter derives addresses for one EVM network.
type EVMChainAdapter struct {
	netDef entity.NetworkDefinition
}

var _ port.ChainAdapter = (*EVMChainAdapter)(nil)

func NewEVMChainAdapter(netDef entity.NetworkDefinition) *EVMChainAdapter {
	return &EVMChainAdapter{netDef: netDef}
}

func (a *EVMChainAdapter) ChainID() entity.ChainID {
	return a.netDef.CAIPChainID()
}

func (a *EVMChainAdapter) FeeAssetID() entity.AssetID {
	return a.netDef.FeeAssetID()
}

// GetAddress returns the lowercase hex address at params.
func (a *EVMChainAdapter) GetAddress(ctx context.Context, wallet port.HDWallet, params entity.BIP44Params) (string, error) {
	if !wallet.Supports(entity.ChainNamespaceEvm) {
		return "", fmt.Errorf("wallet cannot derive %s: %w", a.ChainID(), entity.ErrUnsupportedAsset)
	}
	pub, err := wallet.PublicKey(ctx, params.Path())
	if err != nil {
		return "", fmt.Errorf("public key %s: %w", params, err)
	}
	ecPub, err := crypto.DecompressPubkey(pub)
	if err != nil {
		return "", fmt.Errorf("decompress public key %s: %w", params, err)
	}
	return strings.ToLower(crypto.PubkeyToAddress(*ecPub).Hex()), nil
}

// ChainAdapterManager is a registry of chain adapters keyed by CAIP-2 id.
type ChainAdapterManager struct {
	mu       sync.RWMutex
	adapters map[entity.ChainID]port.ChainAdapter
}

var _ port.ChainAdapterManager = (*ChainAdapterManager)(nil)

// NewChainAdapterManager registers an EVM adapter for every definition.
func NewChainAdapterManager(defs []entity.NetworkDefinition) *ChainAdapterManager {
	m := &ChainAdapterManager{adapters: make(map[entity.ChainID]port.ChainAdapter, len(defs))}
	for _, def := range defs {
		m.Register(NewEVMChainAdapter(def))
	}
	return m
}

func (m *ChainAdapterManager) Register(adapter port.ChainAdapter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.adapters[adapter.ChainID()] = adapter
}

func (m *ChainAdapterManager) Get(chainID entity.ChainID) (port.ChainAdapter, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.adapters[chainID]
	return a, ok
}
