package tokenloader

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	jsoniter "github.com/json-iterator/go"

	"portfolio_aggregator/internal/app/port"
	"portfolio_aggregator/internal/domain/entity"
)

const DefaultTokenDirectoryPath = "data/tokens"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// TokenFileLoader implements port.TokenProvider over a directory holding one
// <network identifier>.json file per network.
type TokenFileLoader struct {
	tokenDirPath string
	logger       port.Logger

	mu    sync.RWMutex
	cache map[string][]entity.TokenInfo // key: network identifier
}

var _ port.TokenProvider = (*TokenFileLoader)(nil)

// NewTokenLoader creates a new TokenFileLoader. An empty dir uses data/tokens.
func NewTokenLoader(tokenDirPath string, logger port.Logger) *TokenFileLoader {
	if tokenDirPath == "" {
		tokenDirPath = DefaultTokenDirectoryPath
	}
	return &TokenFileLoader{
		tokenDirPath: tokenDirPath,
		logger:       logger.With("component", "TokenFileLoader"),
		cache:        make(map[string][]entity.TokenInfo),
	}
}

// GetTokensByNetwork returns the tokens of each active network keyed by its
// numeric chain id. Files are read once per network and cached afterwards.
// Tokens whose chainId does not match the network are skipped.
func (l *TokenFileLoader) GetTokensByNetwork(activeNetworkDefs []entity.NetworkDefinition) (map[string][]entity.TokenInfo, error) {
	if _, err := os.Stat(l.tokenDirPath); err != nil {
		l.logger.Warn("Failed to read token directory, no tokens will be loaded", "path", l.tokenDirPath, "error", err)
		return nil, fmt.Errorf("failed to read token directory %s: %w", l.tokenDirPath, err)
	}

	tokensByChainID := make(map[string][]entity.TokenInfo, len(activeNetworkDefs))
	for _, netDef := range activeNetworkDefs {
		tokens, err := l.tokensFor(netDef)
		if err != nil {
			l.logger.Warn("Failed to load token file, skipping network", "network", netDef.Identifier, "error", err)
			continue
		}
		if len(tokens) > 0 {
			chainID := strconv.FormatUint(netDef.ChainID, 10)
			tokensByChainID[chainID] = append(tokensByChainID[chainID], tokens...)
		}
	}
	return tokensByChainID, nil
}

func (l *TokenFileLoader) tokensFor(netDef entity.NetworkDefinition) ([]entity.TokenInfo, error) {
	l.mu.RLock()
	tokens, ok := l.cache[netDef.Identifier]
	l.mu.RUnlock()
	if ok {
		return tokens, nil
	}

	path, err := l.findFile(netDef.Identifier)
	if err != nil {
		return nil, err
	}
	if path == "" {
		l.cacheTokens(netDef.Identifier, nil)
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var tokensInFile []entity.TokenInfo
	if err := json.Unmarshal(data, &tokensInFile); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", path, err)
	}

	valid := make([]entity.TokenInfo, 0, len(tokensInFile))
	for _, token := range tokensInFile {
		if token.ChainID != netDef.ChainID {
			l.logger.Warn("Token has mismatched ChainID in file, skipping token",
				"file", path, "token_symbol", token.Symbol, "token_address", token.Address,
				"token_chain_id", token.ChainID, "expected_chain_id", netDef.ChainID)
			continue
		}
		valid = append(valid, token)
	}
	l.logger.Info("Loaded tokens for network", "network", netDef.Identifier, "file", filepath.Base(path), "count", len(valid))
	l.cacheTokens(netDef.Identifier, valid)
	return valid, nil
}

func (l *TokenFileLoader) cacheTokens(identifier string, tokens []entity.TokenInfo) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cache[identifier] = tokens
}

// findFile matches <identifier>.json case-insensitively. Returns "" if absent.
func (l *TokenFileLoader) findFile(identifier string) (string, error) {
	files, err := os.ReadDir(l.tokenDirPath)
	if err != nil {
		return "", fmt.Errorf("failed to read token directory %s: %w", l.tokenDirPath, err)
	}
	for _, file := range files {
		name := file.Name()
		if file.IsDir() || !strings.EqualFold(filepath.Ext(name), ".json") {
			continue
		}
		if strings.EqualFold(strings.TrimSuffix(name, filepath.Ext(name)), identifier) {
			return filepath.Join(l.tokenDirPath, name), nil
		}
	}
	return "", nil
}
