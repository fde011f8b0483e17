package entity

import (
	"fmt"
	"strings"
)

// ChainNamespace is the CAIP-2 namespace part of a chain id.
type ChainNamespace string

const (
	ChainNamespaceEvm    ChainNamespace = "eip155"
	ChainNamespaceCosmos ChainNamespace = "cosmos"
	ChainNamespaceUtxo   ChainNamespace = "bip122"
)

const (
	AssetNamespaceSlip44 = "slip44"
	AssetNamespaceErc20  = "erc20"
	txIndexDelimiter     = "*"
)

// ChainID is a CAIP-2 chain identifier, e.g. "eip155:1".
type ChainID string

// AccountID is a CAIP-10 account identifier, e.g. "eip155:1:0xabc...".
type AccountID string

// AssetID is a CAIP-19 asset identifier, e.g. "eip155:1/erc20:0xc770...".
type AssetID string

// Well-known ids used by the FOX/ETH opportunity flows.
const (
	EthChainID ChainID = "eip155:1"
	EthAssetID AssetID = "eip155:1/slip44:60"
)

// Namespace returns the namespace part of the chain id.
func (c ChainID) Namespace() ChainNamespace {
	ns, _, _ := strings.Cut(string(c), ":")
	return ChainNamespace(ns)
}

// ParseChainID validates a CAIP-2 chain id.
func ParseChainID(s string) (ChainID, error) {
	ns, ref, ok := strings.Cut(s, ":")
	if !ok || ns == "" || ref == "" {
		return "", fmt.Errorf("chain id %q: %w", s, ErrInvalidCAIP)
	}
	return ChainID(s), nil
}

// ToAccountID builds an account id. EVM account parts are lowercased so the id
// matches the form used for tx index lookups.
func ToAccountID(chainID ChainID, account string) AccountID {
	if chainID.Namespace() == ChainNamespaceEvm {
		account = strings.ToLower(account)
	}
	return AccountID(fmt.Sprintf("%s:%s", chainID, account))
}

// AccountParts is the decomposed form of an AccountID.
type AccountParts struct {
	ChainID ChainID
	Account string
}

// FromAccountID splits an account id into its chain id and account parts.
func FromAccountID(id AccountID) (AccountParts, error) {
	parts := strings.SplitN(string(id), ":", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return AccountParts{}, fmt.Errorf("account id %q: %w", id, ErrInvalidCAIP)
	}
	return AccountParts{
		ChainID: ChainID(parts[0] + ":" + parts[1]),
		Account: parts[2],
	}, nil
}

// ParseAccountID validates s and returns it in canonical form.
func ParseAccountID(s string) (AccountID, error) {
	p, err := FromAccountID(AccountID(s))
	if err != nil {
		return "", err
	}
	return ToAccountID(p.ChainID, p.Account), nil
}

// ChainID returns the chain id of the account, or "" if the id is malformed.
func (a AccountID) ChainID() ChainID {
	p, err := FromAccountID(a)
	if err != nil {
		return ""
	}
	return p.ChainID
}

// AssetParts is the decomposed form of an AssetID.
type AssetParts struct {
	ChainID        ChainID
	ChainNamespace ChainNamespace
	AssetNamespace string
	AssetReference string
}

// ToAssetID builds an asset id. ERC-20 references are lowercased.
func ToAssetID(chainID ChainID, assetNamespace, assetReference string) AssetID {
	if assetNamespace == AssetNamespaceErc20 {
		assetReference = strings.ToLower(assetReference)
	}
	return AssetID(fmt.Sprintf("%s/%s:%s", chainID, assetNamespace, assetReference))
}

// FromAssetID splits an asset id into its parts.
func FromAssetID(id AssetID) (AssetParts, error) {
	chainPart, assetPart, ok := strings.Cut(string(id), "/")
	if !ok {
		return AssetParts{}, fmt.Errorf("asset id %q: %w", id, ErrInvalidCAIP)
	}
	chainID, err := ParseChainID(chainPart)
	if err != nil {
		return AssetParts{}, fmt.Errorf("asset id %q: %w", id, err)
	}
	ns, ref, ok := strings.Cut(assetPart, ":")
	if !ok || ns == "" || ref == "" {
		return AssetParts{}, fmt.Errorf("asset id %q: %w", id, ErrInvalidCAIP)
	}
	return AssetParts{
		ChainID:        chainID,
		ChainNamespace: chainID.Namespace(),
		AssetNamespace: ns,
		AssetReference: ref,
	}, nil
}

// ParseAssetID validates s and returns it in canonical form.
func ParseAssetID(s string) (AssetID, error) {
	p, err := FromAssetID(AssetID(s))
	if err != nil {
		return "", err
	}
	return ToAssetID(p.ChainID, p.AssetNamespace, p.AssetReference), nil
}

// SerializeTxIndex builds the key under which a transaction is stored in the
// tx history, derived from the owning account, the raw txid and the address.
func SerializeTxIndex(accountID AccountID, txid, address string) string {
	return strings.Join([]string{string(accountID), txid, address}, txIndexDelimiter)
}
