package solana

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"

	sol "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
)

var errSelfTransfer = errors.New("transfer to the sending account")

// newTransferTx builds a one-instruction system transfer paid by from.
func newTransferTx(from, to sol.PublicKey, lamports uint64, blockhash sol.Hash) (*sol.Transaction, error) {
	if from.Equals(to) {
		return nil, errSelfTransfer
	}
	tx, err := sol.NewTransaction(
		[]sol.Instruction{system.NewTransferInstruction(lamports, from, to).Build()},
		blockhash,
		sol.TransactionPayer(from),
	)
	if err != nil {
		return nil, fmt.Errorf("build transfer: %w", err)
	}
	return tx, nil
}

// signTransfer builds the transfer and signs it with key.
func signTransfer(key ed25519.PrivateKey, to sol.PublicKey, lamports uint64, blockhash sol.Hash) (*sol.Transaction, error) {
	signer := sol.PrivateKey(key)
	from := signer.PublicKey()
	tx, err := newTransferTx(from, to, lamports, blockhash)
	if err != nil {
		return nil, err
	}
	if _, err := tx.Sign(func(pk sol.PublicKey) *sol.PrivateKey {
		if pk.Equals(from) {
			return &signer
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("sign transfer: %w", err)
	}
	return tx, nil
}

// encodeUnsigned returns the wire form of tx with zeroed signature slots,
// ready for a wallet to sign.
func encodeUnsigned(tx *sol.Transaction) (string, error) {
	tx.Signatures = make([]sol.Signature, tx.Message.Header.NumRequiredSignatures)
	raw, err := tx.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("encode transaction: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}
