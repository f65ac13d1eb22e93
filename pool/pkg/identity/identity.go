package identity

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"

	"github.com/mr-tron/base58"
)

// Account identifies a wallet: a base58-encoded Ed25519 public key.
type Account string

// Asset identifies a fungible asset by the base58-encoded public key of its
// issuing authority.
type Asset string

// ParseAccount validates and returns the account encoded in s.
func ParseAccount(s string) (Account, error) {
	if err := decodeKey(s); err != nil {
		return "", fmt.Errorf("invalid account: %w", err)
	}
	return Account(s), nil
}

// ParseAsset validates and returns the asset identifier encoded in s.
func ParseAsset(s string) (Asset, error) {
	if err := decodeKey(s); err != nil {
		return "", fmt.Errorf("invalid asset: %w", err)
	}
	return Asset(s), nil
}

func (a Account) String() string { return string(a) }

func (a Asset) String() string { return string(a) }

// Validate reports whether the account is a well-formed Ed25519 key.
func (a Account) Validate() error {
	if err := decodeKey(string(a)); err != nil {
		return fmt.Errorf("invalid account: %w", err)
	}
	return nil
}

// Validate reports whether the asset identifier is a well-formed Ed25519 key.
func (a Asset) Validate() error {
	if err := decodeKey(string(a)); err != nil {
		return fmt.Errorf("invalid asset: %w", err)
	}
	return nil
}

func decodeKey(s string) error {
	if s == "" {
		return fmt.Errorf("empty identifier")
	}
	raw, err := base58.Decode(s)
	if err != nil {
		return fmt.Errorf("failed to decode base58: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return fmt.Errorf("invalid public key size: expected %d, got %d", ed25519.PublicKeySize, len(raw))
	}
	return nil
}

// VerifySignature checks that signatureBase64 is a valid Ed25519 signature
// over message by the account's key. Accepts standard, URL-safe, and raw
// base64 signature encodings, since wallets differ.
func VerifySignature(account Account, message []byte, signatureBase64 string) error {
	publicKeyBytes, err := base58.Decode(string(account))
	if err != nil {
		return fmt.Errorf("failed to decode public key: %w", err)
	}
	if len(publicKeyBytes) != ed25519.PublicKeySize {
		return fmt.Errorf("invalid public key size: expected %d, got %d", ed25519.PublicKeySize, len(publicKeyBytes))
	}

	signatureBytes, err := base64.StdEncoding.DecodeString(signatureBase64)
	if err != nil {
		signatureBytes, err = base64.URLEncoding.DecodeString(signatureBase64)
		if err != nil {
			signatureBytes, err = base64.RawStdEncoding.DecodeString(signatureBase64)
			if err != nil {
				return fmt.Errorf("failed to decode signature: %w", err)
			}
		}
	}
	if len(signatureBytes) != ed25519.SignatureSize {
		return fmt.Errorf("invalid signature size: expected %d, got %d", ed25519.SignatureSize, len(signatureBytes))
	}

	if !ed25519.Verify(ed25519.PublicKey(publicKeyBytes), message, signatureBytes) {
		return fmt.Errorf("signature verification failed")
	}
	return nil
}
