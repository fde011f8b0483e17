package entity

// TxStatus is the lifecycle state of a broadcast transaction.
type TxStatus string

const (
	TxStatusPending   TxStatus = "pending"
	TxStatusConfirmed TxStatus = "confirmed"
	TxStatusFailed    TxStatus = "failed"
	TxStatusUnknown   TxStatus = "unknown"
)

// Tx is a transaction tracked in the local history.
type Tx struct {
	// Index is the serialized tx index, see SerializeTxIndex.
	Index       string    `json:"index"`
	TxID        string    `json:"txid"`
	AccountID   AccountID `json:"accountId"`
	Address     string    `json:"address"`
	ChainID     ChainID   `json:"chainId"`
	Status      TxStatus  `json:"status"`
	BlockHeight uint64    `json:"blockHeight,omitempty"`
	UpdatedAt   int64     `json:"updatedAt"`
}

// PreparedTx is an unsigned EVM transaction with fee estimates.
type PreparedTx struct {
	ChainID      ChainID `json:"chainId"`
	From         string  `json:"from"`
	To           string  `json:"to"`
	Data         []byte  `json:"data"`
	Value        string  `json:"value"`
	Nonce        uint64  `json:"nonce"`
	GasPrice     string  `json:"gasPrice"`
	EstimatedGas string  `json:"estimatedGas"`
}
