package hdwallet

import (
	"context"
	"encoding/hex"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"portfolio_aggregator/internal/domain/entity"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

func TestSeedFromMnemonic(t *testing.T) {
	seed, err := SeedFromMnemonic(testMnemonic, "")
	require.NoError(t, err)
	assert.Equal(t,
		"5eb00bbddcf069084889a8ab9155568165f5c453ccb85e70811aaed6f6da5fc19a5ac40b389cd370d086206dec8aa6c43daea6690f20ad3d8d48b2d2ce9e38e4",
		hex.EncodeToString(seed))

	_, err = SeedFromMnemonic("   ", "")
	assert.ErrorIs(t, err, ErrEmptyMnemonic)

	// last word breaks the checksum
	_, err = SeedFromMnemonic("abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon", "")
	assert.ErrorIs(t, err, ErrInvalidMnemonic)

	_, err = SeedFromMnemonic("  abandon abandon abandon abandon abandon abandon\nabandon abandon abandon abandon abandon about ", "")
	assert.NoError(t, err)
}

func TestWalletDerivesEthereumAccountZero(t *testing.T) {
	w, err := NewFromMnemonic(testMnemonic, "", zap.NewNop())
	require.NoError(t, err)

	path := entity.EthBIP44Params(0).Path()
	pub, err := w.PublicKey(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, pub, 33)

	ecPub, err := crypto.DecompressPubkey(pub)
	require.NoError(t, err)
	assert.Equal(t, "0x9858EfFD232B4033E47d90003D41EC34EcaEda94", crypto.PubkeyToAddress(*ecPub).Hex())

	priv, err := w.PrivateKey(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(*ecPub), crypto.PubkeyToAddress(priv.PublicKey))
}

func TestWalletSupportsOnlyEvm(t *testing.T) {
	w, err := NewFromMnemonic(testMnemonic, "", zap.NewNop())
	require.NoError(t, err)
	assert.True(t, w.Supports(entity.ChainNamespaceEvm))
	assert.False(t, w.Supports(entity.ChainNamespaceUtxo))
}

func TestWalletHonorsCancelledContext(t *testing.T) {
	w, err := NewFromMnemonic(testMnemonic, "", zap.NewNop())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = w.PublicKey(ctx, entity.EthBIP44Params(1).Path())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPathString(t *testing.T) {
	assert.Equal(t, "m/44'/60'/0'/0/0", pathString(entity.EthBIP44Params(0).Path()))
}
