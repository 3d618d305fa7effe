// Package solana is the ledger adapter over a Solana JSON-RPC node.
package solana

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	bin "github.com/gagliardetto/binary"
	sol "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"

	"feedbackpay/internal/domain"
	"feedbackpay/internal/ports"
)

// Client provides the ledger operations.
type Client struct {
	rpc          *rpc.Client
	commitment   rpc.CommitmentType
	pollInterval time.Duration
}

// Config holds client configuration.
type Config struct {
	RPCURL       string
	Commitment   string        // processed, confirmed or finalized
	PollInterval time.Duration // between confirmation checks
}

var (
	_ ports.LedgerClient    = (*Client)(nil)
	_ ports.TransferBuilder = (*Client)(nil)
)

// invalidParams is the JSON-RPC code for malformed arguments.
const invalidParams = -32602

// NewClient creates a client for the node at cfg.RPCURL.
func NewClient(cfg Config) (*Client, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("RPC URL required")
	}
	commitment := rpc.CommitmentConfirmed
	if cfg.Commitment != "" {
		commitment = rpc.CommitmentType(cfg.Commitment)
		if _, ok := commitmentRank[cfg.Commitment]; !ok {
			return nil, fmt.Errorf("unknown commitment %q", cfg.Commitment)
		}
	}
	poll := cfg.PollInterval
	if poll == 0 {
		poll = 500 * time.Millisecond
	}
	return &Client{
		rpc:          rpc.New(cfg.RPCURL),
		commitment:   commitment,
		pollInterval: poll,
	}, nil
}

// ValidateAddress reports whether address is a well-formed account address.
func (c *Client) ValidateAddress(address string) error {
	_, err := ParsePublicKey(address)
	return err
}

// GetBalance returns the balance of address in lamports.
func (c *Client) GetBalance(ctx context.Context, address string) (domain.Lamports, error) {
	pk, err := ParsePublicKey(address)
	if err != nil {
		return 0, err
	}
	out, err := c.rpc.GetBalance(ctx, pk, c.commitment)
	if err != nil {
		return 0, fmt.Errorf("getBalance: %w", err)
	}
	return domain.Lamports(out.Value), nil
}

// GetTransaction fetches a confirmed transaction. Unknown, unconfirmed and
// malformed references all yield ports.ErrTransactionNotFound.
func (c *Client) GetTransaction(ctx context.Context, ref string) (*ports.LedgerTransaction, error) {
	sig, err := sol.SignatureFromBase58(ref)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed signature %q", ports.ErrTransactionNotFound, ref)
	}

	// getTransaction does not accept processed.
	commitment := c.commitment
	if commitment == rpc.CommitmentProcessed {
		commitment = rpc.CommitmentConfirmed
	}
	maxVersion := uint64(0)
	out, err := c.rpc.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
		Encoding:                       sol.EncodingBase64,
		Commitment:                     commitment,
		MaxSupportedTransactionVersion: &maxVersion,
	})
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, ports.ErrTransactionNotFound
		}
		var rpcErr *jsonrpc.RPCError
		if errors.As(err, &rpcErr) && rpcErr.Code == invalidParams {
			return nil, fmt.Errorf("%w: %v", ports.ErrTransactionNotFound, err)
		}
		return nil, fmt.Errorf("getTransaction: %w", err)
	}
	if out.Meta == nil || out.Transaction == nil {
		return nil, fmt.Errorf("%w: transaction %s has no status metadata", ports.ErrTransactionNotFound, ref)
	}

	decoded, err := sol.TransactionFromDecoder(bin.NewBinDecoder(out.Transaction.GetBinary()))
	if err != nil {
		return nil, fmt.Errorf("decode transaction %s: %w", ref, err)
	}

	tx := &ports.LedgerTransaction{
		Signature:    ref,
		Failed:       out.Meta.Err != nil,
		PreBalances:  out.Meta.PreBalances,
		PostBalances: out.Meta.PostBalances,
	}
	keys := append(sol.PublicKeySlice{}, decoded.Message.AccountKeys...)
	// Versioned transactions append lookup-table accounts in this order.
	keys = append(keys, out.Meta.LoadedAddresses.Writable...)
	keys = append(keys, out.Meta.LoadedAddresses.ReadOnly...)
	for _, k := range keys {
		tx.AccountKeys = append(tx.AccountKeys, k.String())
	}
	return tx, nil
}

// Transfer sends lamports from the signing key to to and blocks until the
// node reports the configured commitment, the transaction fails, or ctx ends.
func (c *Client) Transfer(ctx context.Context, from ed25519.PrivateKey, to string, amount domain.Lamports) (string, error) {
	dest, err := ParsePublicKey(to)
	if err != nil {
		return "", err
	}
	blockhash, err := c.latestBlockhash(ctx)
	if err != nil {
		return "", err
	}
	tx, err := signTransfer(from, dest, uint64(amount), blockhash)
	if err != nil {
		return "", err
	}

	sig, err := c.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{PreflightCommitment: c.commitment})
	if err != nil {
		return "", fmt.Errorf("sendTransaction: %w", err)
	}
	if sig != tx.Signatures[0] {
		return "", fmt.Errorf("sendTransaction: node returned signature %s, expected %s", sig, tx.Signatures[0])
	}
	return sig.String(), c.awaitConfirmation(ctx, sig)
}

// BuildTransfer returns an unsigned base64 transfer from from to to, paid
// and signed by from.
func (c *Client) BuildTransfer(ctx context.Context, from, to string, amount domain.Lamports) (string, error) {
	payer, err := ParsePublicKey(from)
	if err != nil {
		return "", err
	}
	dest, err := ParsePublicKey(to)
	if err != nil {
		return "", err
	}
	blockhash, err := c.latestBlockhash(ctx)
	if err != nil {
		return "", err
	}
	tx, err := newTransferTx(payer, dest, uint64(amount), blockhash)
	if err != nil {
		return "", err
	}
	return encodeUnsigned(tx)
}

func (c *Client) latestBlockhash(ctx context.Context) (sol.Hash, error) {
	out, err := c.rpc.GetLatestBlockhash(ctx, c.commitment)
	if err != nil {
		return sol.Hash{}, fmt.Errorf("getLatestBlockhash: %w", err)
	}
	if out.Value == nil || out.Value.Blockhash == (sol.Hash{}) {
		return sol.Hash{}, fmt.Errorf("getLatestBlockhash: empty blockhash")
	}
	return out.Value.Blockhash, nil
}

func (c *Client) awaitConfirmation(ctx context.Context, sig sol.Signature) error {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	for {
		out, err := c.rpc.GetSignatureStatuses(ctx, false, sig)
		if err != nil {
			return fmt.Errorf("getSignatureStatuses: %w", err)
		}
		if len(out.Value) > 0 && out.Value[0] != nil {
			status := out.Value[0]
			if status.Err != nil {
				return fmt.Errorf("transaction %s failed: %v", sig, status.Err)
			}
			if reached(string(status.ConfirmationStatus), string(c.commitment)) {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("await confirmation of %s: %w", sig, ctx.Err())
		case <-ticker.C:
		}
	}
}

var commitmentRank = map[string]int{"processed": 1, "confirmed": 2, "finalized": 3}

func reached(status, want string) bool {
	got, ok := commitmentRank[status]
	return ok && got >= commitmentRank[want]
}
