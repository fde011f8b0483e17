package service

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"portfolio_aggregator/internal/app/port"
	"portfolio_aggregator/internal/domain/entity"
)

// TxWatcher polls receipts for pending transactions and moves them to their
// terminal status in the tx history.
type TxWatcher struct {
	txs      port.TxStore
	receipts map[entity.ChainID]port.ReceiptFetcher
	limiter  *rate.Limiter
	interval time.Duration
	logger   port.Logger
}

// NewTxWatcher creates a watcher. requestsPerSecond <= 0 disables limiting.
func NewTxWatcher(
	txs port.TxStore,
	receipts map[entity.ChainID]port.ReceiptFetcher,
	interval time.Duration,
	requestsPerSecond float64,
	l port.Logger,
) *TxWatcher {
	limit := rate.Inf
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &TxWatcher{
		txs:      txs,
		receipts: receipts,
		limiter:  rate.NewLimiter(limit, 1),
		interval: interval,
		logger:   l.With("component", "TxWatcher"),
	}
}

// Track records a freshly broadcast transaction as pending.
func (w *TxWatcher) Track(accountID entity.AccountID, txid string) error {
	parts, err := entity.FromAccountID(accountID)
	if err != nil {
		return err
	}
	w.txs.Upsert(entity.Tx{
		TxID:      txid,
		AccountID: accountID,
		Address:   parts.Account,
		ChainID:   parts.ChainID,
		Status:    entity.TxStatusPending,
	})
	return nil
}

// Run polls until ctx is cancelled.
func (w *TxWatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	w.logger.Info("Tx watcher started", "interval", w.interval.String())
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Tx watcher stopped")
			return
		case <-ticker.C:
			w.Poll(ctx)
		}
	}
}

// Poll checks every pending transaction once.
func (w *TxWatcher) Poll(ctx context.Context) {
	for _, tx := range w.txs.Pending() {
		fetcher, ok := w.receipts[tx.ChainID]
		if !ok {
			w.logger.Debug("No receipt fetcher for chain, skipping tx", "chainId", tx.ChainID, "txid", tx.TxID)
			continue
		}
		if err := w.limiter.Wait(ctx); err != nil {
			return
		}
		status, height, found, err := fetcher.TransactionStatus(ctx, tx.TxID)
		if err != nil {
			w.logger.Warn("Failed to fetch tx receipt", "txid", tx.TxID, "error", err)
			continue
		}
		if !found {
			continue
		}
		tx.Status = status
		tx.BlockHeight = height
		w.logger.Info("Tx reached terminal status", "txid", tx.TxID, "status", status, "block", height)
		w.txs.Upsert(tx)
	}
}
