package client

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"portfolio_aggregator/internal/app/port"
	"portfolio_aggregator/internal/domain/entity"
)

const (
	defaultProviderConnectionTimeout = 10 * time.Second
)

// evmClientProvider implements the port.BlockchainClientProvider interface.
type evmClientProvider struct {
	clients           map[entity.ChainID]port.EVMClient
	mu                sync.Mutex
	logger            *zap.Logger
	connectionTimeout time.Duration
	rpcCallTimeout    time.Duration
}

// NewEVMClientProvider creates a new EVMClientProvider.
func NewEVMClientProvider(rpcCallTimeout time.Duration, logger *zap.Logger) port.BlockchainClientProvider {
	return &evmClientProvider{
		clients:           make(map[entity.ChainID]port.EVMClient),
		logger:            logger.Named("evm_client_provider"),
		connectionTimeout: defaultProviderConnectionTimeout,
		rpcCallTimeout:    rpcCallTimeout,
	}
}

// GetClient retrieves a blockchain client for the given network definition.
// It caches clients to avoid reconnecting repeatedly.
func (p *evmClientProvider) GetClient(netDef entity.NetworkDefinition) (port.EVMClient, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	clientKey := netDef.CAIPChainID()
	if client, exists := p.clients[clientKey]; exists {
		return client, nil
	}

	p.logger.Info("Creating new EVM client", zap.String("network", netDef.Name), zap.String("rpc_primary", netDef.PrimaryRPCURL))
	newClient, err := NewEVMClient(netDef, p.connectionTimeout, p.rpcCallTimeout, p.logger)
	if err != nil {
		p.logger.Error("Failed to create EVM client", zap.String("network", netDef.Name), zap.Error(err))
		return nil, fmt.Errorf("failed to create EVM client for %s: %w", netDef.Name, err)
	}

	p.clients[clientKey] = newClient
	return newClient, nil
}
