// Package hdwallet is a software BIP-32/BIP-44 wallet backed by a seed held
// in memory.
package hdwallet

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip39"
	"go.uber.org/zap"

	"portfolio_aggregator/internal/app/port"
	"portfolio_aggregator/internal/domain/entity"
)

var (
	// ErrEmptyMnemonic is returned when no mnemonic is configured.
	ErrEmptyMnemonic = errors.New("empty mnemonic")
	// ErrInvalidMnemonic is returned for unknown words or a bad checksum.
	ErrInvalidMnemonic = errors.New("invalid mnemonic")
)

// Wallet derives secp256k1 keys from a master extended key.
type Wallet struct {
	master *hdkeychain.ExtendedKey
	logger *zap.Logger

	mu    sync.Mutex
	cache map[string]*hdkeychain.ExtendedKey
}

var _ port.HDWallet = (*Wallet)(nil)

// SeedFromMnemonic checks a BIP-39 mnemonic against the English wordlist and
// stretches it into a 64-byte seed.
func SeedFromMnemonic(mnemonic, passphrase string) ([]byte, error) {
	words := strings.Fields(mnemonic)
	if len(words) == 0 {
		return nil, ErrEmptyMnemonic
	}
	seed, err := bip39.NewSeedWithErrorChecking(strings.Join(words, " "), passphrase)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMnemonic, err)
	}
	return seed, nil
}

// NewFromMnemonic creates a wallet from a mnemonic and optional passphrase.
func NewFromMnemonic(mnemonic, passphrase string, logger *zap.Logger) (*Wallet, error) {
	seed, err := SeedFromMnemonic(mnemonic, passphrase)
	if err != nil {
		return nil, err
	}
	return NewFromSeed(seed, logger)
}

// NewFromSeed creates a wallet from a raw BIP-32 seed.
func NewFromSeed(seed []byte, logger *zap.Logger) (*Wallet, error) {
	master, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, fmt.Errorf("create master key: %w", err)
	}
	return &Wallet{
		master: master,
		logger: logger.Named("hdwallet"),
		cache:  make(map[string]*hdkeychain.ExtendedKey),
	}, nil
}

// Supports reports EVM support only; no UTXO adapters are wired.
func (w *Wallet) Supports(namespace entity.ChainNamespace) bool {
	return namespace == entity.ChainNamespaceEvm
}

// PublicKey returns the 33-byte compressed public key at path.
func (w *Wallet) PublicKey(ctx context.Context, path []uint32) ([]byte, error) {
	key, err := w.derive(ctx, path)
	if err != nil {
		return nil, err
	}
	pub, err := key.ECPubKey()
	if err != nil {
		return nil, fmt.Errorf("public key: %w", err)
	}
	return pub.SerializeCompressed(), nil
}

// PrivateKey returns the signing key at path on go-ethereum's curve.
func (w *Wallet) PrivateKey(ctx context.Context, path []uint32) (*ecdsa.PrivateKey, error) {
	key, err := w.derive(ctx, path)
	if err != nil {
		return nil, err
	}
	priv, err := key.ECPrivKey()
	if err != nil {
		return nil, fmt.Errorf("private key: %w", err)
	}
	return crypto.ToECDSA(priv.Serialize())
}

func (w *Wallet) derive(ctx context.Context, path []uint32) (*hdkeychain.ExtendedKey, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cacheKey := pathString(path)

	w.mu.Lock()
	defer w.mu.Unlock()
	if key, ok := w.cache[cacheKey]; ok {
		return key, nil
	}

	key := w.master
	for _, idx := range path {
		child, err := key.Derive(idx)
		if err != nil {
			return nil, fmt.Errorf("derive %s: %w", cacheKey, err)
		}
		key = child
	}
	w.cache[cacheKey] = key
	w.logger.Debug("Derived key", zap.String("path", cacheKey))
	return key, nil
}

func pathString(path []uint32) string {
	var b strings.Builder
	b.WriteString("m")
	for _, idx := range path {
		if idx >= hdkeychain.HardenedKeyStart {
			fmt.Fprintf(&b, "/%d'", idx-hdkeychain.HardenedKeyStart)
			continue
		}
		fmt.Fprintf(&b, "/%d", idx)
	}
	return b.String()
}
