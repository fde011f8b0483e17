package foxeth

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"portfolio_aggregator/internal/domain/entity"
)

const (
	user      = "0x2c7536e3605d9c16a7a3d7b1898e529396a65c23"
	farmV5    = "0xc54b9f82c1c54e9d4d274d633c7523f2299c42a0"
	farmV6    = "0x212ebf9fd3c10f371557b08e993eaab385c3932b"
	userAcct  = entity.AccountID("eip155:1:" + user)
	keyHex    = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	lpAssetID = entity.AssetID("eip155:1/erc20:" + FoxEthPairAddress)
)

// fakeChain answers eth_call by contract address and method selector.
type fakeChain struct {
	t       *testing.T
	answers map[string][]byte // key: lowercase address + "|" + method
	failing map[string]bool
	calls   int
}

func newFakeChain(t *testing.T) *fakeChain {
	return &fakeChain{t: t, answers: map[string][]byte{}, failing: map[string]bool{}}
}

func (f *fakeChain) set(parsed abi.ABI, to, method string, values ...any) {
	f.t.Helper()
	out, err := parsed.Methods[method].Outputs.Pack(values...)
	require.NoError(f.t, err)
	f.answers[strings.ToLower(to)+"|"+method] = out
}

func (f *fakeChain) CallContract(_ context.Context, to string, data []byte) ([]byte, error) {
	f.calls++
	to = strings.ToLower(to)
	if f.failing[to] {
		return nil, errors.New("boom")
	}
	pABI, fABI, err := parsedABIs()
	require.NoError(f.t, err)
	for _, parsed := range []abi.ABI{pABI, fABI} {
		for name, m := range parsed.Methods {
			if bytes.HasPrefix(data, m.ID) {
				if out, ok := f.answers[to+"|"+name]; ok {
					return out, nil
				}
			}
		}
	}
	return nil, nil
}

func seedPool(t *testing.T, chain *fakeChain) {
	pABI, fABI, err := parsedABIs()
	require.NoError(t, err)
	chain.set(pABI, FoxEthPairAddress, "totalSupply", big.NewInt(1000))
	chain.set(pABI, FoxEthPairAddress, "getReserves", big.NewInt(5000), big.NewInt(200000), uint32(1))
	chain.set(pABI, FoxEthPairAddress, "balanceOf", big.NewInt(100))
	chain.set(fABI, farmV5, "totalSupply", big.NewInt(700))
	chain.set(fABI, farmV5, "balanceOf", big.NewInt(50))
	chain.set(fABI, farmV5, "earned", big.NewInt(123456))
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.FarmingContracts = []FarmingContract{
		{Address: farmV5, Name: "ETH-FOX V5", ExpiredAt: 1661785200},
		{Address: farmV6, Name: "ETH-FOX V6"},
	}
	return cfg
}

func TestLpResolver(t *testing.T) {
	chain := newFakeChain(t)
	seedPool(t, chain)
	r := NewLpResolver(entity.EthChainID, chain, testConfig(), zap.NewNop())

	assert.Equal(t, entity.DefiTypeLiquidityPool, r.Type())
	assert.Equal(t, []entity.OpportunityID{lpAssetID}, r.OpportunityIDs())

	meta, err := r.Metadata(context.Background())
	require.NoError(t, err)
	require.Len(t, meta, 1)
	assert.Equal(t, "1000", meta[0].TotalSupply)
	assert.Equal(t, []string{"5000", "200000"}, meta[0].UnderlyingReserves)
	assert.Equal(t, []entity.AssetID{entity.EthAssetID, "eip155:1/erc20:" + FoxAddress}, meta[0].UnderlyingAssetIDs)

	data, err := r.UserData(context.Background(), userAcct, lpAssetID)
	require.NoError(t, err)
	assert.Equal(t, "100", data.StakedAmount)
	assert.Equal(t, []string{"500", "20000"}, data.UnderlyingAmounts)
	assert.Empty(t, data.RewardsAmounts)

	_, err = r.UserData(context.Background(), userAcct, "eip155:1/erc20:"+farmV5)
	assert.ErrorIs(t, err, entity.ErrUnsupportedAsset)
}

func TestFarmingResolverMetadataPartialFailure(t *testing.T) {
	chain := newFakeChain(t)
	seedPool(t, chain)
	chain.failing[farmV6] = true
	r := NewFarmingResolver(entity.EthChainID, chain, testConfig(), zap.NewNop())

	meta, err := r.Metadata(context.Background())
	assert.ErrorIs(t, err, entity.ErrTransient)
	require.Len(t, meta, 1)
	assert.Equal(t, entity.AssetID("eip155:1/erc20:"+farmV5), meta[0].ID)
	assert.Equal(t, lpAssetID, meta[0].UnderlyingAssetID)
	assert.Equal(t, "700", meta[0].TotalSupply)
	assert.Equal(t, int64(1661785200), meta[0].ExpiredAt)
	assert.Equal(t, entity.DefiProviderFoxFarming, meta[0].Provider)
}

func TestFarmingResolverUserData(t *testing.T) {
	chain := newFakeChain(t)
	seedPool(t, chain)
	r := NewFarmingResolver(entity.EthChainID, chain, testConfig(), zap.NewNop())

	data, err := r.UserData(context.Background(), userAcct, "eip155:1/erc20:"+farmV5)
	require.NoError(t, err)
	assert.Equal(t, entity.DefiTypeStaking, data.Type)
	assert.Equal(t, "50", data.StakedAmount)
	assert.Equal(t, []string{"123456"}, data.RewardsAmounts)
	assert.Equal(t, []string{"250", "10000"}, data.UnderlyingAmounts)

	// empty eth_call result is a transient read failure
	_, err = r.UserData(context.Background(), userAcct, "eip155:1/erc20:"+farmV6)
	assert.ErrorIs(t, err, entity.ErrTransient)

	_, err = r.UserData(context.Background(), "cosmos:cosmoshub-4:cosmos1abc", "eip155:1/erc20:"+farmV5)
	assert.ErrorIs(t, err, entity.ErrUnsupportedAsset)
}

type fakeBroadcaster struct {
	sent []entity.PreparedTx
}

func (b *fakeBroadcaster) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(30_000_000_000), nil
}

func (b *fakeBroadcaster) EstimateGas(context.Context, string, string, []byte) (uint64, error) {
	return 120_000, nil
}

func (b *fakeBroadcaster) PendingNonce(context.Context, string) (uint64, error) { return 9, nil }

func (b *fakeBroadcaster) SendSigned(_ context.Context, tx entity.PreparedTx, _ *ecdsa.PrivateKey) (string, error) {
	b.sent = append(b.sent, tx)
	return "0xfeed", nil
}

type staticKeyWallet struct{ key *ecdsa.PrivateKey }

func (w staticKeyWallet) Supports(ns entity.ChainNamespace) bool {
	return ns == entity.ChainNamespaceEvm
}

func (w staticKeyWallet) PublicKey(context.Context, []uint32) ([]byte, error) {
	return crypto.CompressPubkey(&w.key.PublicKey), nil
}

func (w staticKeyWallet) PrivateKey(context.Context, []uint32) (*ecdsa.PrivateKey, error) {
	return w.key, nil
}

func TestInvestorClaimFlow(t *testing.T) {
	b := &fakeBroadcaster{}
	inv := NewInvestor(entity.EthChainID, b, testConfig(), zap.NewNop())

	_, err := inv.FindByOpportunityID(context.Background(), lpAssetID)
	assert.ErrorIs(t, err, entity.ErrNotFound)

	opp, err := inv.FindByOpportunityID(context.Background(), "eip155:1/erc20:"+farmV5)
	require.NoError(t, err)
	assert.Equal(t, farmV5, opp.ContractAddress())

	tx, err := opp.PrepareClaimTokens(context.Background(), user)
	require.NoError(t, err)
	assert.Equal(t, uint64(9), tx.Nonce)
	assert.Equal(t, "30000000000", tx.GasPrice)
	assert.Equal(t, "120000", tx.EstimatedGas)
	assert.Equal(t, farmV5, tx.To)
	_, fABI, _ := parsedABIs()
	assert.Equal(t, fABI.Methods["getReward"].ID, tx.Data)

	key, err := crypto.HexToECDSA(keyHex)
	require.NoError(t, err)
	txid, err := opp.SignAndBroadcast(context.Background(), staticKeyWallet{key}, tx, entity.EthBIP44Params(0))
	require.NoError(t, err)
	assert.Equal(t, "0xfeed", txid)
	require.Len(t, b.sent, 1)

	tx.From = "0x0000000000000000000000000000000000000001"
	_, err = opp.SignAndBroadcast(context.Background(), staticKeyWallet{key}, tx, entity.EthBIP44Params(0))
	assert.Error(t, err)
	assert.Len(t, b.sent, 1)
}
