package entity

import "strconv"

// TokenInfo holds the details of a specific ERC-20 token.
type TokenInfo struct {
	ChainID  uint64 `json:"chainId"`
	Address  string `json:"address"`
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
}

// AssetID returns the CAIP-19 id of the token.
func (t TokenInfo) AssetID() AssetID {
	return ToAssetID(ChainID(formatEvmChainID(t.ChainID)), AssetNamespaceErc20, t.Address)
}

func formatEvmChainID(chainID uint64) string {
	return string(ChainNamespaceEvm) + ":" + uintString(chainID)
}

func uintString(v uint64) string {
	return strconv.FormatUint(v, 10)
}
