package disbursement

import (
	"context"
	"crypto/ed25519"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feedbackpay/internal/domain"
	"feedbackpay/internal/logging"
	"feedbackpay/internal/ports"
)

// scriptedLedger returns the scripted results of Transfer in order; once the
// script runs out every call fails. A nil-error step with block set never
// returns until release is closed, ignoring ctx.
type scriptedLedger struct {
	mu       sync.Mutex
	steps    []step
	calls    int
	inFlight int
	maxPar   int
	badAddr  bool
	release  chan struct{}
	starts   []time.Time
}

type step struct {
	sig   string
	err   error
	block bool
}

func (l *scriptedLedger) ValidateAddress(string) error {
	if l.badAddr {
		return errors.New("invalid base58")
	}
	return nil
}

func (l *scriptedLedger) GetBalance(context.Context, string) (domain.Lamports, error) { return 0, nil }
func (l *scriptedLedger) GetTransaction(context.Context, string) (*ports.LedgerTransaction, error) {
	return nil, ports.ErrTransactionNotFound
}

func (l *scriptedLedger) Transfer(_ context.Context, _ ed25519.PrivateKey, _ string, _ domain.Lamports) (string, error) {
	l.mu.Lock()
	l.calls++
	l.starts = append(l.starts, time.Now())
	l.inFlight++
	l.maxPar = max(l.maxPar, l.inFlight)
	s := step{err: errors.New("unscripted transfer")}
	if len(l.steps) > 0 {
		s, l.steps = l.steps[0], l.steps[1:]
	}
	l.mu.Unlock()

	if s.block {
		<-l.release
	}

	l.mu.Lock()
	l.inFlight--
	l.mu.Unlock()
	return s.sig, s.err
}

func (l *scriptedLedger) Calls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

func testConfig() Config {
	return Config{MaxAttempts: 3, AttemptTimeout: 50 * time.Millisecond, BackoffBase: time.Millisecond}
}

func newDisburser(l *scriptedLedger, cfg Config) *Disburser {
	_, key, _ := ed25519.GenerateKey(nil)
	return New(l, key, cfg, logging.Discard())
}

func TestSendFirstAttempt(t *testing.T) {
	l := &scriptedLedger{steps: []step{{sig: "sig-1"}}}
	r, err := newDisburser(l, testConfig()).Send(context.Background(), "wallet", 10)
	require.NoError(t, err)
	assert.Equal(t, Receipt{Signature: "sig-1", Attempts: 1}, r)
}

func TestSendSucceedsOnThirdAttempt(t *testing.T) {
	l := &scriptedLedger{steps: []step{
		{err: errors.New("blockhash not found")},
		{err: errors.New("node is behind")},
		{sig: "sig-3"},
	}}
	r, err := newDisburser(l, testConfig()).Send(context.Background(), "wallet", 10)
	require.NoError(t, err)
	assert.Equal(t, "sig-3", r.Signature)
	assert.Equal(t, 3, r.Attempts)
	assert.Equal(t, 2, r.Attempts-1, "retries")
	assert.Equal(t, 3, l.Calls())
	assert.Equal(t, 1, l.maxPar, "attempts must not overlap")
}

func TestSendExhausted(t *testing.T) {
	l := &scriptedLedger{}
	_, err := newDisburser(l, testConfig()).Send(context.Background(), "wallet", 10)

	var derr *Error
	require.ErrorAs(t, err, &derr)
	assert.ErrorIs(t, err, ErrExhausted)
	assert.Equal(t, 3, derr.Attempts)
	assert.Contains(t, err.Error(), "unscripted transfer")
	assert.Equal(t, 3, l.Calls())
}

func TestSendInvalidAddressMakesNoAttempt(t *testing.T) {
	l := &scriptedLedger{badAddr: true, steps: []step{{sig: "never"}}}
	_, err := newDisburser(l, testConfig()).Send(context.Background(), "0OIl", 10)

	var derr *Error
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, KindInvalidAddress, derr.Kind)
	assert.Zero(t, derr.Attempts)
	assert.Zero(t, l.Calls())
}

func TestSendAttemptTimeoutIsRetried(t *testing.T) {
	l := &scriptedLedger{
		release: make(chan struct{}),
		steps:   []step{{block: true}, {sig: "sig-2"}},
	}
	t.Cleanup(func() { close(l.release) })

	cfg := testConfig()
	r, err := newDisburser(l, cfg).Send(context.Background(), "wallet", 10)
	require.NoError(t, err)
	assert.Equal(t, "sig-2", r.Signature)
	assert.Equal(t, 2, r.Attempts)
}

func TestSendWallTimeIsBounded(t *testing.T) {
	l := &scriptedLedger{
		release: make(chan struct{}),
		steps:   []step{{block: true}, {block: true}, {block: true}},
	}
	t.Cleanup(func() { close(l.release) })

	cfg := testConfig()
	start := time.Now()
	_, err := newDisburser(l, cfg).Send(context.Background(), "wallet", 10)
	elapsed := time.Since(start)

	require.ErrorIs(t, err, ErrExhausted)
	assert.ErrorIs(t, err, errAttemptTimeout)
	bound := time.Duration(cfg.MaxAttempts)*cfg.AttemptTimeout + 3*cfg.BackoffBase
	assert.Less(t, elapsed, bound+500*time.Millisecond)
	assert.GreaterOrEqual(t, elapsed, time.Duration(cfg.MaxAttempts)*cfg.AttemptTimeout)
}

func attemptGaps(l *scriptedLedger) []time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	var gaps []time.Duration
	for i := 1; i < len(l.starts); i++ {
		gaps = append(gaps, l.starts[i].Sub(l.starts[i-1]))
	}
	return gaps
}

func TestSendBackoffDoubles(t *testing.T) {
	const base = 100 * time.Millisecond
	l := &scriptedLedger{}
	cfg := Config{MaxAttempts: 4, AttemptTimeout: time.Second, BackoffBase: base}

	_, err := newDisburser(l, cfg).Send(context.Background(), "wallet", 10)
	require.ErrorIs(t, err, ErrExhausted)

	gaps := attemptGaps(l)
	require.Len(t, gaps, 3)
	for i, want := range []time.Duration{base, 2 * base, 4 * base} {
		assert.GreaterOrEqual(t, gaps[i], want, "gap %d", i)
		assert.Less(t, gaps[i], want+base, "gap %d", i)
	}
}

func TestSendDefaultScheduleGaps(t *testing.T) {
	const base = 100 * time.Millisecond
	l := &scriptedLedger{}
	cfg := Config{MaxAttempts: 3, AttemptTimeout: time.Second, BackoffBase: base}

	_, err := newDisburser(l, cfg).Send(context.Background(), "wallet", 10)
	var derr *Error
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, 3, derr.Attempts)

	gaps := attemptGaps(l)
	require.Len(t, gaps, 2)
	assert.GreaterOrEqual(t, gaps[0], base)
	assert.Less(t, gaps[0], 2*base)
	assert.GreaterOrEqual(t, gaps[1], 2*base)
	assert.Less(t, gaps[1], 3*base)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, 7*time.Second, cfg.AttemptTimeout)
	assert.Equal(t, 2*time.Second, cfg.BackoffBase)
}
