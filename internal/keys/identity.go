// Package keys loads the host signing identity and signs report payloads.
package keys

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"holoport-stats/internal/secret"

	"github.com/zeebo/blake3"
)

var errIdentityClosed = errors.New("identity is closed")

// Identity is an Ed25519 signing key held in locked memory, plus its
// public forms. Close it when the process is done signing.
type Identity struct {
	mu  sync.Mutex
	key *secret.Buffer

	public   ed25519.PublicKey
	publicID string
}

// FromSeed builds an identity from a 32-byte Ed25519 seed. The seed is
// zeroed whether or not this succeeds.
func FromSeed(seed []byte) (*Identity, error) {
	defer secret.Wipe(seed)

	if len(seed) != ed25519.SeedSize {
		return nil, &SigningError{Op: "load seed", Err: fmt.Errorf("seed is %d bytes, want %d", len(seed), ed25519.SeedSize)}
	}

	private := ed25519.NewKeyFromSeed(seed)
	public := make(ed25519.PublicKey, ed25519.PublicKeySize)
	copy(public, private[ed25519.SeedSize:])

	// NewFromBytes zeroes the heap copy of the private key.
	key, err := secret.NewFromBytes(private)
	if err != nil {
		return nil, &SigningError{Op: "protect key", Err: err}
	}

	return &Identity{key: key, public: public, publicID: Base36(public)}, nil
}

func (id *Identity) PublicKey() ed25519.PublicKey {
	out := make(ed25519.PublicKey, len(id.public))
	copy(out, id.public)
	return out
}

// PublicID is the stable host identifier reported with every payload.
func (id *Identity) PublicID() string {
	return id.publicID
}

// Fingerprint is a short digest of the public key for log lines.
func (id *Identity) Fingerprint() string {
	sum := blake3.Sum256(id.public)
	return hex.EncodeToString(sum[:8])
}

// Sign returns the detached Ed25519 signature over payload, base64
// encoded without padding.
func (id *Identity) Sign(payload []byte) (string, error) {
	id.mu.Lock()
	defer id.mu.Unlock()

	if id.key == nil || id.key.Closed() {
		return "", &SigningError{Op: "sign", Err: errIdentityClosed}
	}
	signature := ed25519.Sign(ed25519.PrivateKey(id.key.Bytes()), payload)
	return base64.RawStdEncoding.EncodeToString(signature), nil
}

func (id *Identity) Verify(payload []byte, signature string) bool {
	raw, err := base64.RawStdEncoding.DecodeString(signature)
	if err != nil {
		return false
	}
	return ed25519.Verify(id.public, payload, raw)
}

// Close zeroes the private key. Sign fails afterwards; the public forms
// stay readable.
func (id *Identity) Close() error {
	id.mu.Lock()
	defer id.mu.Unlock()

	if id.key == nil {
		return nil
	}
	return id.key.Close()
}
