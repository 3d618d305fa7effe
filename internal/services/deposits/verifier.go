package deposits

import (
	"context"
	"errors"
	"fmt"

	"feedbackpay/internal/domain"
	"feedbackpay/internal/ports"
)

// Kind classifies why a deposit was refused.
type Kind string

const (
	KindNotFound            Kind = "not_found"
	KindAmountMismatch      Kind = "amount_mismatch"
	KindWrongRecipient      Kind = "wrong_recipient"
	KindWrongPayer          Kind = "wrong_payer"
	KindAlreadyUsed         Kind = "already_used"
	KindInsufficientDeposit Kind = "insufficient_deposit"
)

// Sentinels for errors.Is. A *Error matches the sentinel of its Kind.
var (
	ErrNotFound            = &Error{Kind: KindNotFound}
	ErrAmountMismatch      = &Error{Kind: KindAmountMismatch}
	ErrWrongRecipient      = &Error{Kind: KindWrongRecipient}
	ErrWrongPayer          = &Error{Kind: KindWrongPayer}
	ErrAlreadyUsed         = &Error{Kind: KindAlreadyUsed}
	ErrInsufficientDeposit = &Error{Kind: KindInsufficientDeposit}
)

// Error is a refused deposit. None of them are retried.
type Error struct {
	Kind  Kind
	TxRef string
	Msg   string
	Err   error
}

func (e *Error) Error() string {
	s := "deposit " + string(e.Kind)
	if e.TxRef != "" {
		s += " (" + e.TxRef + ")"
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// VerifiedDeposit is the ledger-confirmed part of a deposit proof.
type VerifiedDeposit struct {
	TxRef     string
	Payer     string
	Recipient string
	Amount    domain.Lamports
}

// Verifier checks claimed deposits against the ledger. It has no side
// effects on the ledger.
type Verifier struct {
	ledger ports.LedgerClient
}

func NewVerifier(ledger ports.LedgerClient) *Verifier {
	return &Verifier{ledger: ledger}
}

// Verify confirms that txRef moved exactly expectedAmount into
// expectedRecipient and was paid for by expectedPayer. The amount is the
// balance delta of the recipient account.
func (v *Verifier) Verify(ctx context.Context, txRef, expectedPayer, expectedRecipient string, expectedAmount domain.Lamports) (VerifiedDeposit, error) {
	if txRef == "" {
		return VerifiedDeposit{}, &Error{Kind: KindNotFound, Msg: "empty transaction reference"}
	}
	tx, err := v.ledger.GetTransaction(ctx, txRef)
	if err != nil {
		if errors.Is(err, ports.ErrTransactionNotFound) {
			return VerifiedDeposit{}, &Error{Kind: KindNotFound, TxRef: txRef, Err: err}
		}
		return VerifiedDeposit{}, fmt.Errorf("get transaction %s: %w", txRef, err)
	}
	if tx.Failed {
		return VerifiedDeposit{}, &Error{Kind: KindNotFound, TxRef: txRef, Msg: "transaction failed on the ledger"}
	}

	idx := -1
	for i, k := range tx.AccountKeys {
		if k == expectedRecipient {
			idx = i
			break
		}
	}
	if idx < 0 {
		return VerifiedDeposit{}, &Error{Kind: KindWrongRecipient, TxRef: txRef, Msg: "recipient " + expectedRecipient + " not referenced"}
	}
	if idx >= len(tx.PreBalances) || idx >= len(tx.PostBalances) {
		return VerifiedDeposit{}, &Error{Kind: KindAmountMismatch, TxRef: txRef, Msg: "no balance record for recipient"}
	}
	pre, post := tx.PreBalances[idx], tx.PostBalances[idx]
	if post < pre || domain.Lamports(post-pre) != expectedAmount {
		return VerifiedDeposit{}, &Error{
			Kind:  KindAmountMismatch,
			TxRef: txRef,
			Msg:   fmt.Sprintf("expected %d lamports, recipient balance moved from %d to %d", expectedAmount, pre, post),
		}
	}

	if len(tx.AccountKeys) == 0 || tx.AccountKeys[0] != expectedPayer {
		return VerifiedDeposit{}, &Error{Kind: KindWrongPayer, TxRef: txRef, Msg: "fee payer is not " + expectedPayer}
	}

	return VerifiedDeposit{
		TxRef:     txRef,
		Payer:     expectedPayer,
		Recipient: expectedRecipient,
		Amount:    expectedAmount,
	}, nil
}
