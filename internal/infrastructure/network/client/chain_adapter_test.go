package client

import (
	"context"
	"crypto/ecdsa"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolio_aggregator/internal/domain/entity"
)

const testPrivateKeyHex = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

// keyWallet answers every path with the same key.
type keyWallet struct {
	key *ecdsa.PrivateKey
	evm bool
}

func (w keyWallet) Supports(ns entity.ChainNamespace) bool {
	return w.evm && ns == entity.ChainNamespaceEvm
}

func (w keyWallet) PublicKey(context.Context, []uint32) ([]byte, error) {
	return crypto.CompressPubkey(&w.key.PublicKey), nil
}

func (w keyWallet) PrivateKey(context.Context, []uint32) (*ecdsa.PrivateKey, error) {
	return w.key, nil
}

func testKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := crypto.HexToECDSA(testPrivateKeyHex)
	require.NoError(t, err)
	return key
}

func testNetwork() entity.NetworkDefinition {
	return entity.NetworkDefinition{ChainID: 1, Name: "Ethereum", Identifier: "ethereum", Decimals: 18, CoinType: 60}
}

func TestEVMChainAdapterGetAddress(t *testing.T) {
	a := NewEVMChainAdapter(testNetwork())
	assert.Equal(t, entity.EthChainID, a.ChainID())
	assert.Equal(t, entity.EthAssetID, a.FeeAssetID())

	addr, err := a.GetAddress(context.Background(), keyWallet{key: testKey(t), evm: true}, entity.EthBIP44Params(0))
	require.NoError(t, err)
	assert.Equal(t, "0x2c7536e3605d9c16a7a3d7b1898e529396a65c23", addr)
}

func TestEVMChainAdapterRejectsNonEvmWallet(t *testing.T) {
	a := NewEVMChainAdapter(testNetwork())
	_, err := a.GetAddress(context.Background(), keyWallet{key: testKey(t)}, entity.EthBIP44Params(0))
	assert.ErrorIs(t, err, entity.ErrUnsupportedAsset)
}

func TestChainAdapterManager(t *testing.T) {
	polygon := entity.NetworkDefinition{ChainID: 137, Name: "Polygon", Identifier: "polygon", CoinType: 60}
	m := NewChainAdapterManager([]entity.NetworkDefinition{testNetwork(), polygon})

	a, ok := m.Get(entity.EthChainID)
	require.True(t, ok)
	assert.Equal(t, entity.EthChainID, a.ChainID())

	a, ok = m.Get("eip155:137")
	require.True(t, ok)
	assert.Equal(t, entity.AssetID("eip155:137/slip44:60"), a.FeeAssetID())

	_, ok = m.Get("eip155:10")
	assert.False(t, ok)
}
