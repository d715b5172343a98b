// Package identity provides a small injected abstraction in place of a
// global identity-provider registry: a Factory that mints an Identity
// for a database name, without any package-level mutable registry.
package identity

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
)

// Identity is the minimal shape a log entry needs from its signer,
// grounded on other_examples' go-orbitdb identities.Identity
// (PublicKeyHex, Sign) but constructed via injection rather than a global
// provider_registry lookup.
type Identity struct {
	ID         string
	Type       string
	publicKey  ed25519.PublicKey
	privateKey ed25519.PrivateKey
}

// PublicKeyHex returns the hex-encoded public key, mirroring the "key"
// field carried on log-entry blocks.
func (i *Identity) PublicKeyHex() string {
	return hex.EncodeToString(i.publicKey)
}

// Sign signs data with the identity's private key.
func (i *Identity) Sign(data []byte) (string, error) {
	sig := ed25519.Sign(i.privateKey, data)
	return hex.EncodeToString(sig), nil
}

// Verify checks a hex-encoded signature against data using the identity's
// public key.
func (i *Identity) Verify(data []byte, sigHex string) bool {
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return false
	}
	return ed25519.Verify(i.publicKey, data, sig)
}

// Factory mints Identity values for a given database name. It is injected at workflow construction (bridge.New) rather than
// looked up through a global registry.
type Factory interface {
	// Create returns an identity for a freshly created or reconstructed
	// database (used by the fallback reconstructor).
	Create(ctx context.Context, name string) (*Identity, error)
}

// Ed25519Factory is the default Factory, minting a fresh ed25519 key pair
// per call. It needs no external key-archive format because it is only
// used on the fallback-reconstruction path, where the original identity
// is unrecoverable by definition.
type Ed25519Factory struct{}

// Create implements Factory.
func (Ed25519Factory) Create(_ context.Context, name string) (*Identity, error) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, err
	}
	return &Identity{
		ID:         name,
		Type:       "ed25519",
		publicKey:  pub,
		privateKey: priv,
	}, nil
}
