// Package disbursement pays rewards out of the service wallet.
package disbursement

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/sirupsen/logrus"

	"feedbackpay/internal/domain"
	"feedbackpay/internal/metrics"
	"feedbackpay/internal/ports"
)

type Kind string

const (
	KindInvalidAddress Kind = "invalid_address"
	KindExhausted      Kind = "exhausted"
)

var (
	ErrInvalidAddress = &Error{Kind: KindInvalidAddress}
	ErrExhausted      = &Error{Kind: KindExhausted}
)

// Error is a disbursement that did not pay. Attempts is zero for an invalid
// address.
type Error struct {
	Kind     Kind
	Wallet   string
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("disbursement %s to %q after %d attempt(s)", e.Kind, e.Wallet, e.Attempts)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// errAttemptTimeout marks an attempt cut off locally. The transfer may still
// land on the ledger afterwards.
var errAttemptTimeout = errors.New("attempt timed out")

type Config struct {
	MaxAttempts    int
	AttemptTimeout time.Duration
	BackoffBase    time.Duration
}

// DefaultConfig waits 2s then 4s between three 7s attempts.
func DefaultConfig() Config {
	return Config{MaxAttempts: 3, AttemptTimeout: 7 * time.Second, BackoffBase: 2 * time.Second}
}

// Receipt is a confirmed payout.
type Receipt struct {
	Signature string
	Attempts  int
}

// Disburser holds the process-wide ledger client and signing key.
type Disburser struct {
	ledger ports.LedgerClient
	key    ed25519.PrivateKey
	cfg    Config
	log    logrus.FieldLogger
}

func New(ledger ports.LedgerClient, key ed25519.PrivateKey, cfg Config, log logrus.FieldLogger) *Disburser {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &Disburser{ledger: ledger, key: key, cfg: cfg, log: log}
}

// Send transfers amount to wallet. Attempts run one at a time, each bounded
// by the attempt timeout whether or not the ledger client honours ctx, with
// exponential backoff between them.
func (d *Disburser) Send(ctx context.Context, wallet string, amount domain.Lamports) (Receipt, error) {
	if err := d.ledger.ValidateAddress(wallet); err != nil {
		return Receipt{}, &Error{Kind: KindInvalidAddress, Wallet: wallet, Err: err}
	}

	start := time.Now()
	log := d.log.WithFields(logrus.Fields{"wallet": wallet, "lamports": uint64(amount)})

	var (
		attempts  int
		signature string
		lastErr   error
	)
	backoff := retry.WithMaxRetries(uint64(d.cfg.MaxAttempts-1), retry.NewExponential(d.cfg.BackoffBase))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		sig, err := d.attempt(ctx, wallet, amount)
		if err != nil {
			lastErr = err
			result := "error"
			if errors.Is(err, errAttemptTimeout) {
				result = "timeout"
			}
			metrics.RecordDisbursementAttempt(result)
			log.WithError(err).WithField("attempt", attempts).Warn("reward transfer attempt failed")
			return retry.RetryableError(err)
		}
		metrics.RecordDisbursementAttempt("ok")
		signature = sig
		return nil
	})
	if err != nil {
		metrics.RecordDisbursement("exhausted", time.Since(start))
		if lastErr == nil {
			lastErr = err
		}
		return Receipt{}, &Error{Kind: KindExhausted, Wallet: wallet, Attempts: attempts, Err: lastErr}
	}

	metrics.RecordDisbursement("paid", time.Since(start))
	log.WithFields(logrus.Fields{"signature": signature, "attempt": attempts}).Info("reward transferred")
	return Receipt{Signature: signature, Attempts: attempts}, nil
}

type transferResult struct {
	sig string
	err error
}

// attempt races one transfer against the attempt timeout.
func (d *Disburser) attempt(ctx context.Context, wallet string, amount domain.Lamports) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.AttemptTimeout)
	defer cancel()

	done := make(chan transferResult, 1)
	go func() {
		sig, err := d.ledger.Transfer(ctx, d.key, wallet, amount)
		done <- transferResult{sig: sig, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil && ctx.Err() != nil {
			return "", fmt.Errorf("%w after %s: %v", errAttemptTimeout, d.cfg.AttemptTimeout, res.err)
		}
		return res.sig, res.err
	case <-ctx.Done():
		return "", fmt.Errorf("%w after %s", errAttemptTimeout, d.cfg.AttemptTimeout)
	}
}
