package entity

import "fmt"

// UtxoAccountType is the script type used by UTXO chain accounts.
type UtxoAccountType string

const (
	UtxoAccountTypeSegwitNative UtxoAccountType = "SegwitNative"
	UtxoAccountTypeSegwitP2sh   UtxoAccountType = "SegwitP2sh"
	UtxoAccountTypeP2pkh        UtxoAccountType = "P2pkh"
)

// HardenedOffset marks a BIP-32 path element as hardened.
const HardenedOffset uint32 = 0x80000000

// BIP44Params identifies which address was derived from a wallet seed.
type BIP44Params struct {
	Purpose       uint32 `json:"purpose" yaml:"purpose"`
	CoinType      uint32 `json:"coinType" yaml:"coinType"`
	AccountNumber uint32 `json:"accountNumber" yaml:"accountNumber"`
	IsChange      bool   `json:"isChange,omitempty" yaml:"isChange,omitempty"`
	Index         uint32 `json:"index,omitempty" yaml:"index,omitempty"`
}

// AccountMetadata describes how an account address was derived.
type AccountMetadata struct {
	BIP44Params BIP44Params      `json:"bip44Params"`
	AccountType *UtxoAccountType `json:"accountType,omitempty"`
}

// EthBIP44Params returns m/44'/60'/account'/0/0.
func EthBIP44Params(accountNumber uint32) BIP44Params {
	return BIP44Params{Purpose: 44, CoinType: 60, AccountNumber: accountNumber}
}

// Path returns the full BIP-32 derivation path with hardened purpose, coin
// type and account.
func (p BIP44Params) Path() []uint32 {
	change := uint32(0)
	if p.IsChange {
		change = 1
	}
	return []uint32{
		p.Purpose + HardenedOffset,
		p.CoinType + HardenedOffset,
		p.AccountNumber + HardenedOffset,
		change,
		p.Index,
	}
}

func (p BIP44Params) String() string {
	change := 0
	if p.IsChange {
		change = 1
	}
	return fmt.Sprintf("m/%d'/%d'/%d'/%d/%d", p.Purpose, p.CoinType, p.AccountNumber, change, p.Index)
}
