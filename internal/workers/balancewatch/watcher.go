// Package balancewatch polls the reward wallet balance in the background.
package balancewatch

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"feedbackpay/internal/domain"
	"feedbackpay/internal/metrics"
	"feedbackpay/internal/ports"
)

// Watcher reports the reward wallet balance and warns when it can no longer
// cover payouts.
type Watcher struct {
	balances ports.BalanceReader
	address  string
	minimum  domain.Lamports
	log      logrus.FieldLogger
}

func New(balances ports.BalanceReader, address string, minimum domain.Lamports, log logrus.FieldLogger) *Watcher {
	return &Watcher{
		balances: balances,
		address:  address,
		minimum:  minimum,
		log:      log.WithField("wallet", address),
	}
}

// CheckOnce reads the balance, exports it and reports whether it is below
// the minimum.
func (w *Watcher) CheckOnce(ctx context.Context) (domain.Lamports, bool, error) {
	bal, err := w.balances.GetBalance(ctx, w.address)
	if err != nil {
		return 0, false, err
	}
	metrics.SetRewardBalance(uint64(bal))
	low := bal < w.minimum
	if low {
		w.log.WithFields(logrus.Fields{
			"balance_sol": bal.SOL(),
			"minimum_sol": w.minimum.SOL(),
		}).Warn("reward wallet balance is low")
	}
	return bal, low, nil
}

// Run checks immediately and then every interval until ctx is done.
func (w *Watcher) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	check := func() {
		cctx, cancel := context.WithTimeout(ctx, interval)
		defer cancel()
		if _, _, err := w.CheckOnce(cctx); err != nil && ctx.Err() == nil {
			w.log.WithError(err).Warn("reward wallet balance check failed")
		}
	}

	check()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			check()
		}
	}
}
