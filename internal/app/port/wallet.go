package port

import (
	"context"
	"crypto/ecdsa"

	"portfolio_aggregator/internal/domain/entity"
)

// HDWallet is a connected hierarchical-deterministic wallet.
type HDWallet interface {
	// Supports answers whether the wallet can sign for the chain namespace.
	Supports(namespace entity.ChainNamespace) bool
	// PublicKey returns the compressed secp256k1 public key at path.
	PublicKey(ctx context.Context, path []uint32) ([]byte, error)
	// PrivateKey returns the signing key at path.
	PrivateKey(ctx context.Context, path []uint32) (*ecdsa.PrivateKey, error)
}

// ChainAdapter derives addresses and exposes chain constants.
type ChainAdapter interface {
	ChainID() entity.ChainID
	FeeAssetID() entity.AssetID
	GetAddress(ctx context.Context, wallet HDWallet, params entity.BIP44Params) (string, error)
}

// ChainAdapterManager looks up the adapter for a chain.
type ChainAdapterManager interface {
	Get(chainID entity.ChainID) (ChainAdapter, bool)
}
