package entity

// NetworkDefinition holds the configuration for a specific EVM network.
type NetworkDefinition struct {
	ChainID          uint64   `json:"chainId" yaml:"chainId"`
	Name             string   `json:"name" yaml:"name"`
	Identifier       string   `json:"identifier" yaml:"identifier"` // short name, e.g. "ethereum"
	NativeSymbol     string   `json:"nativeSymbol" yaml:"nativeSymbol"`
	Decimals         int32    `json:"decimals" yaml:"decimals"`
	PrimaryRPCURL    string   `json:"primaryRpcUrl" yaml:"primaryRpcUrl"`
	FallbackRPCURLs  []string `json:"fallbackRpcUrls" yaml:"fallbackRpcUrls"`
	BlockExplorerURL string   `json:"blockExplorerUrl,omitempty" yaml:"blockExplorerUrl,omitempty"`
	// CoinType is the SLIP-44 coin type used for BIP-44 derivation on this network.
	CoinType uint32 `json:"coinType" yaml:"coinType"`
}

// CAIPChainID returns the CAIP-2 id of the network, e.g. "eip155:1".
func (n NetworkDefinition) CAIPChainID() ChainID {
	return ChainID(formatEvmChainID(n.ChainID))
}

// FeeAssetID returns the asset id of the native currency paying for gas.
func (n NetworkDefinition) FeeAssetID() AssetID {
	return ToAssetID(n.CAIPChainID(), AssetNamespaceSlip44, uintString(uint64(n.CoinType)))
}
