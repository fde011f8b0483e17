package service

import (
	"sync"
	"time"

	"portfolio_aggregator/internal/app/port"
	"portfolio_aggregator/internal/domain/entity"
)

// TxHistoryStore keeps transactions keyed by their serialized tx index and
// notifies subscribers whenever a transaction's status changes.
type TxHistoryStore struct {
	mu  sync.RWMutex
	txs map[string]entity.Tx

	listenersMu sync.Mutex
	listeners   map[int]func(entity.Tx)
	nextID      int

	now func() time.Time
}

var _ port.TxStore = (*TxHistoryStore)(nil)

// NewTxHistoryStore creates an empty history.
func NewTxHistoryStore() *TxHistoryStore {
	return &TxHistoryStore{
		txs:       make(map[string]entity.Tx),
		listeners: make(map[int]func(entity.Tx)),
		now:       time.Now,
	}
}

// Upsert stores tx. The index is derived from the tx when empty. Listeners
// fire only when the status is new or different.
func (s *TxHistoryStore) Upsert(tx entity.Tx) {
	if tx.Index == "" {
		tx.Index = entity.SerializeTxIndex(tx.AccountID, tx.TxID, tx.Address)
	}
	if tx.Status == "" {
		tx.Status = entity.TxStatusUnknown
	}
	tx.UpdatedAt = s.now().Unix()

	s.mu.Lock()
	prev, existed := s.txs[tx.Index]
	s.txs[tx.Index] = tx
	s.mu.Unlock()

	if existed && prev.Status == tx.Status {
		return
	}

	s.listenersMu.Lock()
	fns := make([]func(entity.Tx), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.listenersMu.Unlock()

	for _, fn := range fns {
		fn(tx)
	}
}

// TxByIndex looks a transaction up by its serialized index.
func (s *TxHistoryStore) TxByIndex(index string) (entity.Tx, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tx, ok := s.txs[index]
	return tx, ok
}

// Pending returns every transaction still awaiting confirmation.
func (s *TxHistoryStore) Pending() []entity.Tx {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []entity.Tx
	for _, tx := range s.txs {
		if tx.Status == entity.TxStatusPending {
			out = append(out, tx)
		}
	}
	return out
}

// SubscribeStatusChanged registers fn and returns its removal function. fn
// runs on the goroutine calling Upsert and must not block.
func (s *TxHistoryStore) SubscribeStatusChanged(fn func(tx entity.Tx)) func() {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	return func() {
		s.listenersMu.Lock()
		defer s.listenersMu.Unlock()
		delete(s.listeners, id)
	}
}
