package solana

import (
	"crypto/ed25519"
	"fmt"

	sol "github.com/gagliardetto/solana-go"
)

// ParsePublicKey decodes a base58 account address.
func ParsePublicKey(s string) (sol.PublicKey, error) {
	pk, err := sol.PublicKeyFromBase58(s)
	if err != nil {
		return sol.PublicKey{}, fmt.Errorf("invalid address %q: %w", s, err)
	}
	return pk, nil
}

// PublicKeyOf returns the address of a signing key.
func PublicKeyOf(key ed25519.PrivateKey) sol.PublicKey {
	return sol.PrivateKey(key).PublicKey()
}

// LoadKeypair reads a wallet secret key stored as a JSON array of 64 byte
// values, the format written by solana-keygen and browser wallets.
func LoadKeypair(path string) (ed25519.PrivateKey, error) {
	key, err := sol.PrivateKeyFromSolanaKeygenFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keypair: %w", err)
	}
	if len(key) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("keypair has %d bytes, want %d", len(key), ed25519.PrivateKeySize)
	}
	derived := ed25519.NewKeyFromSeed(key[:ed25519.SeedSize])
	if !derived.Equal(ed25519.PrivateKey(key)) {
		return nil, fmt.Errorf("keypair public half does not match its seed")
	}
	return derived, nil
}
