package ports

import (
	"context"
	"crypto/ed25519"
	"errors"

	"feedbackpay/internal/domain"
)

// ErrTransactionNotFound means the ledger has no confirmed record for a
// reference, including references that are not well formed.
var ErrTransactionNotFound = errors.New("transaction not found")

// LedgerTransaction is the part of a confirmed transaction needed to verify
// a deposit. Balances are indexed like AccountKeys.
type LedgerTransaction struct {
	Signature    string
	AccountKeys  []string
	PreBalances  []uint64
	PostBalances []uint64
	Failed       bool
}

// BalanceReader reads account balances.
type BalanceReader interface {
	GetBalance(ctx context.Context, address string) (domain.Lamports, error)
	ValidateAddress(address string) error
}

// LedgerClient is the external ledger. Transfer blocks until the transfer is
// confirmed or fails; it should honour ctx but callers must not rely on it.
type LedgerClient interface {
	BalanceReader
	GetTransaction(ctx context.Context, ref string) (*LedgerTransaction, error)
	Transfer(ctx context.Context, from ed25519.PrivateKey, to string, amount domain.Lamports) (signature string, err error)
}

// TransferBuilder prepares unsigned transfers for a wallet to sign.
type TransferBuilder interface {
	ValidateAddress(address string) error
	BuildTransfer(ctx context.Context, from, to string, amount domain.Lamports) (string, error)
}

// Evaluation is the structured answer of the content evaluator. Approved is
// nil when the evaluator omitted the required field.
type Evaluation struct {
	Approved *bool
	Reason   string
}

// Evaluator is an opaque content-evaluation capability.
type Evaluator interface {
	Evaluate(ctx context.Context, prompt string) (Evaluation, error)
}
