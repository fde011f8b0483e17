package client

import "portfolio_aggregator/internal/domain/entity"

// OnRamperGatewaysResponse is the subset of the gateways response we consume.
type OnRamperGatewaysResponse struct {
	Gateways []OnRamperGateway       `json:"gateways"`
	Icons    map[string]OnRamperIcon `json:"icons"`
}

// OnRamperGateway is one payment gateway and the crypto it sells.
type OnRamperGateway struct {
	Identifier       string             `json:"identifier"`
	CryptoCurrencies []OnRamperCurrency `json:"cryptoCurrencies"`
}

// OnRamperCurrency is a purchasable crypto currency.
type OnRamperCurrency struct {
	Code        string `json:"code"`
	ID          string `json:"id"`
	Network     string `json:"network,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
}

type OnRamperIcon struct {
	Name   string `json:"name"`
	Icon   string `json:"icon"`
	Symbol string `json:"symbol,omitempty"`
}

type onRamperToken struct {
	assetID entity.AssetID
	codes   []string
}

// onRamperTokens lists the OnRamper codes for each supported asset. The first
// code is the default crypto preselected in the widget.
var onRamperTokens = []onRamperToken{
	{"eip155:1/slip44:60", []string{"ETH"}},
	{"eip155:1/erc20:0xc770eefad204b5180df6a14ee197d99d808ee52d", []string{"FOX"}},
	{"eip155:1/erc20:0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48", []string{"USDC", "USDC_ETHEREUM"}},
	{"eip155:1/erc20:0xdac17f958d2ee523a2206206994597c13d831ec7", []string{"USDT", "USDT_ETHEREUM"}},
	{"eip155:1/erc20:0x6b175474e89094c44da98b954eedeac495271d0f", []string{"DAI"}},
	{"eip155:1/erc20:0x2260fac5e5542a773aa44fbcfedf7c193bc2c599", []string{"WBTC"}},
	{"eip155:1/erc20:0x1f9840a85d5af5bf1d1762f925bdaddc4201f984", []string{"UNI"}},
	{"eip155:137/slip44:60", []string{"MATIC"}},
	{"eip155:43114/slip44:60", []string{"AVAX"}},
	{"eip155:56/slip44:60", []string{"BNB"}},
	{"bip122:000000000019d6689c085ae165831e93/slip44:0", []string{"BTC"}},
	{"bip122:12a765e31ffd4059bada1e25190f6e98/slip44:2", []string{"LTC"}},
	{"bip122:000000000000000000651ef99cb9fcbe/slip44:145", []string{"BCH"}},
	{"bip122:00000000001a91e3dace36e2be3bf030/slip44:3", []string{"DOGE"}},
	{"cosmos:cosmoshub-4/slip44:118", []string{"ATOM"}},
	{"cosmos:osmosis-1/slip44:118", []string{"OSMO"}},
}

var onRamperAssetIDToCodes = func() map[entity.AssetID][]string {
	m := make(map[entity.AssetID][]string, len(onRamperTokens))
	for _, t := range onRamperTokens {
		m[t.assetID] = t.codes
	}
	return m
}()

var onRamperCodeToAssetID = func() map[string]entity.AssetID {
	m := make(map[string]entity.AssetID, len(onRamperTokens))
	for _, t := range onRamperTokens {
		for _, code := range t.codes {
			m[code] = t.assetID
		}
	}
	return m
}()

// OnRamperTokenIDToAssetID maps an OnRamper currency code to an asset id.
func OnRamperTokenIDToAssetID(code string) (entity.AssetID, bool) {
	id, ok := onRamperCodeToAssetID[code]
	return id, ok
}

// AssetIDToOnRamperTokenList returns the OnRamper codes for an asset id.
func AssetIDToOnRamperTokenList(assetID entity.AssetID) ([]string, bool) {
	codes, ok := onRamperAssetIDToCodes[assetID]
	return codes, ok && len(codes) > 0
}
