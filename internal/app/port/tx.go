package port

import "portfolio_aggregator/internal/domain/entity"

// TxStore is the local transaction history.
type TxStore interface {
	Upsert(tx entity.Tx)
	TxByIndex(index string) (entity.Tx, bool)
	Pending() []entity.Tx
	// SubscribeStatusChanged registers fn for status changes and returns a
	// function removing the registration.
	SubscribeStatusChanged(fn func(tx entity.Tx)) (unsubscribe func())
}

// TxRecorder records a freshly broadcast transaction for receipt polling.
type TxRecorder interface {
	Track(accountID entity.AccountID, txid string) error
}
