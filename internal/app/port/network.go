package port

import (
	"context"
	"crypto/ecdsa"
	"math/big"

	"portfolio_aggregator/internal/domain/entity"
)

// BlockchainClient defines the interface for interacting with an EVM network.
type BlockchainClient interface {
	// GetBalances fetches native and token balances in one JSON-RPC batch.
	GetBalances(ctx context.Context, requests []entity.BalanceRequestItem) ([]entity.BalanceResultItem, error)

	// Definition returns the network definition associated with this client.
	Definition() entity.NetworkDefinition
}

// ContractCaller executes read-only contract calls (eth_call).
type ContractCaller interface {
	CallContract(ctx context.Context, to string, data []byte) ([]byte, error)
}

// ReceiptFetcher reports the on-chain outcome of a transaction.
// found is false while the transaction is not yet mined.
type ReceiptFetcher interface {
	TransactionStatus(ctx context.Context, txid string) (status entity.TxStatus, blockHeight uint64, found bool, err error)
}

// TxBroadcaster prepares, signs and sends EVM transactions.
type TxBroadcaster interface {
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, from, to string, data []byte) (uint64, error)
	PendingNonce(ctx context.Context, address string) (uint64, error)
	SendSigned(ctx context.Context, tx entity.PreparedTx, key *ecdsa.PrivateKey) (string, error)
}

// EVMClient bundles every EVM capability the services need from one network.
type EVMClient interface {
	BlockchainClient
	ContractCaller
	ReceiptFetcher
	TxBroadcaster
}

// NetworkDefinitionProvider defines the interface for providing network definitions.
type NetworkDefinitionProvider interface {
	// GetAllNetworkDefinitions returns all active network definitions as a slice.
	GetAllNetworkDefinitions() []entity.NetworkDefinition

	// GetNetworkDefinitionByChainID returns the network for a CAIP-2 chain id.
	GetNetworkDefinitionByChainID(chainID entity.ChainID) (entity.NetworkDefinition, bool)
}

// BlockchainClientProvider defines the interface for providing blockchain clients.
type BlockchainClientProvider interface {
	GetClient(networkDefinition entity.NetworkDefinition) (EVMClient, error)
}
