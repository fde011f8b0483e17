package client

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"

	"portfolio_aggregator/internal/app/port"
	"portfolio_aggregator/internal/domain/entity"
	"portfolio_aggregator/internal/pkg/utils"
)

// maxBatchSize caps the number of calls sent in one JSON-RPC batch.
const maxBatchSize = 100

// EVMClient implements port.EVMClient for EVM-compatible chains.
type EVMClient struct {
	ethClient      *ethclient.Client
	netDef         entity.NetworkDefinition
	rpcCallTimeout time.Duration
	logger         *zap.Logger
}

var _ port.EVMClient = (*EVMClient)(nil)

// ERC20 ABI minimal part for balanceOf
const erc20ABI = `[{"constant":true,"inputs":[{"name":"_owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"balance","type":"uint256"}],"payable":false,"stateMutability":"view","type":"function"}]`

var (
	parsedERC20ABI  abi.ABI
	parsedERC20Once sync.Once
	erc20MethodID   []byte
)

func initParsedERC20ABI() {
	parsedERC20Once.Do(func() {
		var err error
		parsedERC20ABI, err = abi.JSON(strings.NewReader(erc20ABI))
		if err != nil {
			panic(fmt.Sprintf("failed to parse ERC20 ABI: %v", err))
		}
		balanceOfMethod, ok := parsedERC20ABI.Methods["balanceOf"]
		if !ok {
			panic("balanceOf method not found in parsed ERC20 ABI")
		}
		erc20MethodID = balanceOfMethod.ID
	})
}

// NewEVMClient dials the network's RPC endpoints in order and returns a
// client bound to the first one that answers.
func NewEVMClient(netDef entity.NetworkDefinition, connectionTimeout, rpcCallTimeout time.Duration, logger *zap.Logger) (*EVMClient, error) {
	rpcURLs := append([]string{netDef.PrimaryRPCURL}, netDef.FallbackRPCURLs...)
	var lastErr error

	for _, rpcURL := range rpcURLs {
		if rpcURL == "" {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), connectionTimeout)
		rpcClient, err := rpc.DialContext(ctx, rpcURL)
		cancel()

		if err == nil {
			logger.Debug("Connected to RPC", zap.String("network", netDef.Name), zap.String("url", rpcURL))
			return NewEVMClientFromRPC(netDef, rpcClient, rpcCallTimeout, logger), nil
		}
		lastErr = fmt.Errorf("failed to connect to RPC %s: %w", rpcURL, err)
		logger.Warn("RPC dial failed, trying next endpoint", zap.String("network", netDef.Name), zap.Error(err))
	}

	return nil, fmt.Errorf("all RPC connection attempts failed for network %s: %w: %w", netDef.Name, entity.ErrTransient, lastErr)
}

// NewEVMClientFromRPC wraps an already connected RPC client.
func NewEVMClientFromRPC(netDef entity.NetworkDefinition, rpcClient *rpc.Client, rpcCallTimeout time.Duration, logger *zap.Logger) *EVMClient {
	initParsedERC20ABI()
	if rpcCallTimeout <= 0 {
		rpcCallTimeout = 15 * time.Second
	}
	return &EVMClient{
		ethClient:      ethclient.NewClient(rpcClient),
		netDef:         netDef,
		rpcCallTimeout: rpcCallTimeout,
		logger:         logger.Named("evm").With(zap.String("network", netDef.Identifier)),
	}
}

// GetBalances fetches multiple balances using JSON-RPC batch requests.
func (c *EVMClient) GetBalances(ctx context.Context, requests []entity.BalanceRequestItem) ([]entity.BalanceResultItem, error) {
	results := make([]entity.BalanceResultItem, 0, len(requests))
	for _, chunk := range utils.Batch(requests, maxBatchSize) {
		chunkResults, err := c.getBalancesBatch(ctx, chunk)
		if err != nil {
			return nil, err
		}
		results = append(results, chunkResults...)
	}
	return results, nil
}

func (c *EVMClient) getBalancesBatch(ctx context.Context, requests []entity.BalanceRequestItem) ([]entity.BalanceResultItem, error) {
	batchElems := make([]rpc.BatchElem, len(requests))
	results := make([]entity.BalanceResultItem, len(requests))

	for i, reqItem := range requests {
		results[i] = entity.BalanceResultItem{
			RequestID:     reqItem.ID,
			AssetID:       reqItem.AssetID,
			WalletAddress: reqItem.WalletAddress,
			TokenAddress:  reqItem.TokenAddress,
			TokenSymbol:   reqItem.TokenSymbol,
			Decimals:      reqItem.TokenDecimals,
			IsNative:      reqItem.Type == entity.NativeBalanceRequest,
		}

		switch reqItem.Type {
		case entity.NativeBalanceRequest:
			batchElems[i] = rpc.BatchElem{
				Method: "eth_getBalance",
				Args:   []interface{}{common.HexToAddress(reqItem.WalletAddress), "latest"},
				Result: new(*hexutil.Big),
			}
		case entity.TokenBalanceRequest:
			paddedWalletAddress := common.LeftPadBytes(common.HexToAddress(reqItem.WalletAddress).Bytes(), 32)
			callData := append(append([]byte{}, erc20MethodID...), paddedWalletAddress...)

			callArgs := map[string]interface{}{
				"to":   common.HexToAddress(reqItem.TokenAddress),
				"data": hexutil.Bytes(callData),
			}
			batchElems[i] = rpc.BatchElem{
				Method: "eth_call",
				Args:   []interface{}{callArgs, "latest"},
				Result: new(hexutil.Bytes),
			}
		default:
			results[i].Error = fmt.Errorf("unknown balance request type: %v for %s", reqItem.Type, reqItem.TokenSymbol)
			batchElems[i] = rpc.BatchElem{Method: "eth_chainId", Result: new(hexutil.Uint64)}
		}
	}

	rpcCallCtx, cancel := context.WithTimeout(ctx, c.rpcCallTimeout)
	defer cancel()

	if err := c.ethClient.Client().BatchCallContext(rpcCallCtx, batchElems); err != nil {
		return nil, fmt.Errorf("RPC batch call failed: %w: %w", entity.ErrTransient, err)
	}

	for i, elem := range batchElems {
		if results[i].Error != nil {
			continue
		}
		if elem.Error != nil {
			results[i].Error = fmt.Errorf("failed to fetch %s for %s (wallet %s): %w",
				requests[i].TokenSymbol, requests[i].TokenAddress, requests[i].WalletAddress, elem.Error)
			continue
		}

		switch requests[i].Type {
		case entity.NativeBalanceRequest:
			if result, ok := elem.Result.(**hexutil.Big); ok && result != nil && *result != nil {
				results[i].Balance = (*big.Int)(*result)
			} else {
				results[i].Error = fmt.Errorf("failed to decode native balance for %s: unexpected type or nil result", requests[i].TokenSymbol)
			}
		case entity.TokenBalanceRequest:
			result, ok := elem.Result.(*hexutil.Bytes)
			if !ok || result == nil {
				results[i].Error = fmt.Errorf("failed to decode token balance for %s: unexpected type or nil result", requests[i].TokenSymbol)
				continue
			}
			if len(*result) == 0 {
				results[i].Balance = big.NewInt(0)
				continue
			}
			unpacked, err := parsedERC20ABI.Unpack("balanceOf", *result)
			if err != nil {
				results[i].Error = fmt.Errorf("failed to unpack balanceOf result for %s: %w. Raw: %s", requests[i].TokenSymbol, err, hexutil.Encode(*result))
				continue
			}
			balanceVal, ok := unpacked[0].(*big.Int)
			if !ok {
				results[i].Error = fmt.Errorf("failed to assert unpacked balanceOf result to *big.Int for %s. Got: %T", requests[i].TokenSymbol, unpacked[0])
				continue
			}
			results[i].Balance = balanceVal
		}

		if results[i].Error == nil && results[i].Balance == nil {
			results[i].Balance = big.NewInt(0)
		}
	}
	return results, nil
}

// Definition returns the network definition for this client.
func (c *EVMClient) Definition() entity.NetworkDefinition {
	return c.netDef
}

// CallContract runs eth_call against the latest block.
func (c *EVMClient) CallContract(ctx context.Context, to string, data []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.rpcCallTimeout)
	defer cancel()

	addr := common.HexToAddress(to)
	out, err := c.ethClient.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("eth_call %s: %w: %w", to, entity.ErrTransient, err)
	}
	return out, nil
}

// TransactionStatus maps the receipt of txid to a tx status.
func (c *EVMClient) TransactionStatus(ctx context.Context, txid string) (entity.TxStatus, uint64, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.rpcCallTimeout)
	defer cancel()

	receipt, err := c.ethClient.TransactionReceipt(ctx, common.HexToHash(txid))
	if errors.Is(err, ethereum.NotFound) {
		return entity.TxStatusPending, 0, false, nil
	}
	if err != nil {
		return "", 0, false, fmt.Errorf("receipt %s: %w: %w", txid, entity.ErrTransient, err)
	}

	var height uint64
	if receipt.BlockNumber != nil {
		height = receipt.BlockNumber.Uint64()
	}
	if receipt.Status == types.ReceiptStatusSuccessful {
		return entity.TxStatusConfirmed, height, true, nil
	}
	return entity.TxStatusFailed, height, true, nil
}

func (c *EVMClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.rpcCallTimeout)
	defer cancel()
	price, err := c.ethClient.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("suggest gas price: %w: %w", entity.ErrTransient, err)
	}
	return price, nil
}

func (c *EVMClient) EstimateGas(ctx context.Context, from, to string, data []byte) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.rpcCallTimeout)
	defer cancel()
	toAddr := common.HexToAddress(to)
	gas, err := c.ethClient.EstimateGas(ctx, ethereum.CallMsg{From: common.HexToAddress(from), To: &toAddr, Data: data})
	if err != nil {
		return 0, fmt.Errorf("estimate gas: %w: %w", entity.ErrTransient, err)
	}
	return gas, nil
}

func (c *EVMClient) PendingNonce(ctx context.Context, address string) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.rpcCallTimeout)
	defer cancel()
	nonce, err := c.ethClient.PendingNonceAt(ctx, common.HexToAddress(address))
	if err != nil {
		return 0, fmt.Errorf("pending nonce: %w: %w", entity.ErrTransient, err)
	}
	return nonce, nil
}

// SendSigned signs tx as a legacy transaction for this network and broadcasts it.
func (c *EVMClient) SendSigned(ctx context.Context, prepared entity.PreparedTx, key *ecdsa.PrivateKey) (string, error) {
	signed, err := SignPreparedTx(prepared, c.netDef.ChainID, key)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, c.rpcCallTimeout)
	defer cancel()
	if err := c.ethClient.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("send transaction: %w: %w", entity.ErrTransient, err)
	}
	c.logger.Info("Transaction broadcast", zap.String("hash", signed.Hash().Hex()), zap.Uint64("nonce", prepared.Nonce))
	return signed.Hash().Hex(), nil
}

// SignPreparedTx builds and signs a legacy transaction from prepared.
func SignPreparedTx(prepared entity.PreparedTx, chainID uint64, key *ecdsa.PrivateKey) (*types.Transaction, error) {
	gasPrice, ok := new(big.Int).SetString(prepared.GasPrice, 10)
	if !ok {
		return nil, fmt.Errorf("invalid gas price %q", prepared.GasPrice)
	}
	gasLimit, err := utils.ParseBaseUnits(prepared.EstimatedGas)
	if err != nil {
		return nil, err
	}
	value := big.NewInt(0)
	if prepared.Value != "" {
		if _, ok := value.SetString(prepared.Value, 10); !ok {
			return nil, fmt.Errorf("invalid value %q", prepared.Value)
		}
	}

	to := common.HexToAddress(prepared.To)
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    prepared.Nonce,
		GasPrice: gasPrice,
		Gas:      gasLimit.BigInt().Uint64(),
		To:       &to,
		Value:    value,
		Data:     prepared.Data,
	})
	signer := types.LatestSignerForChainID(new(big.Int).SetUint64(chainID))
	signed, err := types.SignTx(tx, signer, key)
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}
	return signed, nil
}
