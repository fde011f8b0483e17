// Package foxeth reads the FOX/ETH Uniswap V2 pool and the ShapeShift FOX
// farming contracts, and builds their rewards-claim transactions.
package foxeth

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"portfolio_aggregator/internal/app/port"
	"portfolio_aggregator/internal/domain/entity"
)

const (
	uniV2PairABI = `[
{"constant":true,"inputs":[],"name":"totalSupply","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
{"constant":true,"inputs":[],"name":"getReserves","outputs":[{"name":"_reserve0","type":"uint112"},{"name":"_reserve1","type":"uint112"},{"name":"_blockTimestampLast","type":"uint32"}],"stateMutability":"view","type":"function"}
]`

	stakingRewardsABI = `[
{"inputs":[],"name":"totalSupply","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
{"inputs":[{"name":"account","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
{"inputs":[{"name":"account","type":"address"}],"name":"earned","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"getReward","outputs":[],"stateMutability":"nonpayable","type":"function"}
]`
)

var (
	parseOnce     sync.Once
	pairABI       abi.ABI
	farmingABI    abi.ABI
	parseABIError error
)

func parsedABIs() (abi.ABI, abi.ABI, error) {
	parseOnce.Do(func() {
		pairABI, parseABIError = abi.JSON(strings.NewReader(uniV2PairABI))
		if parseABIError != nil {
			return
		}
		farmingABI, parseABIError = abi.JSON(strings.NewReader(stakingRewardsABI))
	})
	return pairABI, farmingABI, parseABIError
}

// Mainnet addresses.
const (
	FoxAddress        = "0xc770eefad204b5180df6a14ee197d99d808ee52d"
	FoxEthPairAddress = "0x470e8de2ebaef52014a47cb5e6af86884947f08c"
)

// FarmingContract is one FOX farming (StakingRewards) deployment.
type FarmingContract struct {
	Address   string `yaml:"address"`
	Name      string `yaml:"name"`
	ExpiredAt int64  `yaml:"expiredAt"`
}

// Config names the contracts read by the resolvers.
type Config struct {
	PairAddress      string            `yaml:"pairAddress"`
	FoxAddress       string            `yaml:"foxAddress"`
	FarmingContracts []FarmingContract `yaml:"farmingContracts"`
}

// DefaultConfig returns the mainnet pool and the known farming deployments.
func DefaultConfig() Config {
	return Config{
		PairAddress: FoxEthPairAddress,
		FoxAddress:  FoxAddress,
		FarmingContracts: []FarmingContract{
			{Address: "0xc54b9f82c1c54e9d4d274d633c7523f2299c42a0", Name: "ETH-FOX V5", ExpiredAt: 1661785200},
			{Address: "0x212ebf9fd3c10f371557b08e993eaab385c3932b", Name: "ETH-FOX V6", ExpiredAt: 1666123200},
			{Address: "0x24fd7fb95dc742e23dc3829d3e656feeb5f67fa0", Name: "ETH-FOX V7"},
		},
	}
}

// pairState is a snapshot of the pool used to split LP amounts into their
// underlying assets.
type pairState struct {
	totalSupply *big.Int
	reserves    [2]*big.Int
}

// share returns amount's slice of each reserve, rounded down.
func (p pairState) share(amount *big.Int) []string {
	out := make([]string, len(p.reserves))
	for i, reserve := range p.reserves {
		if p.totalSupply.Sign() == 0 {
			out[i] = "0"
			continue
		}
		v := new(big.Int).Mul(amount, reserve)
		out[i] = v.Quo(v, p.totalSupply).String()
	}
	return out
}

func readPair(ctx context.Context, caller port.ContractCaller, pair string) (pairState, error) {
	pABI, _, err := parsedABIs()
	if err != nil {
		return pairState{}, err
	}
	supply, err := callUint(ctx, caller, pABI, pair, "totalSupply")
	if err != nil {
		return pairState{}, err
	}
	out, err := callContract(ctx, caller, pABI, pair, "getReserves")
	if err != nil {
		return pairState{}, err
	}
	r0, ok0 := out[0].(*big.Int)
	r1, ok1 := out[1].(*big.Int)
	if !ok0 || !ok1 {
		return pairState{}, fmt.Errorf("unexpected getReserves output %T, %T", out[0], out[1])
	}
	return pairState{totalSupply: supply, reserves: [2]*big.Int{r0, r1}}, nil
}

func callContract(ctx context.Context, caller port.ContractCaller, parsed abi.ABI, to, method string, args ...any) ([]any, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	raw, err := caller.CallContract(ctx, to, data)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%s on %s returned no data: %w", method, to, entity.ErrTransient)
	}
	out, err := parsed.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return out, nil
}

func callUint(ctx context.Context, caller port.ContractCaller, parsed abi.ABI, to, method string, args ...any) (*big.Int, error) {
	out, err := callContract(ctx, caller, parsed, to, method, args...)
	if err != nil {
		return nil, err
	}
	v, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected %s output %T", method, out[0])
	}
	return v, nil
}

func accountAddress(accountID entity.AccountID) (common.Address, error) {
	parts, err := entity.FromAccountID(accountID)
	if err != nil {
		return common.Address{}, err
	}
	if !common.IsHexAddress(parts.Account) {
		return common.Address{}, fmt.Errorf("account %s is not an EVM address: %w", accountID, entity.ErrUnsupportedAsset)
	}
	return common.HexToAddress(parts.Account), nil
}
