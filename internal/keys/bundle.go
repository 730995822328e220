package keys

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"holoport-stats/internal/config"
	"holoport-stats/internal/secret"

	"filippo.io/age"
	"golang.org/x/crypto/hkdf"
)

const (
	BundleV1 = 1
	BundleV2 = 2
)

// hostKeyInfo separates the host signing key from anything else that
// is derived from the same device seed.
const hostKeyInfo = "hpos.holoport.key.v1"

var errPasswordRequired = errors.New("bundle requires a password")

// Bundle is the on-disk identity file. Version 1 carries the signing
// seed directly. Version 2 carries an age passphrase-encrypted device
// seed from which the host key is derived.
type Bundle struct {
	Version                int    `json:"version"`
	Seed                   string `json:"seed,omitempty"`
	DeviceBundle           string `json:"device_bundle,omitempty"`
	UnlockRequiresPassword bool   `json:"unlock_requires_password,omitempty"`
}

// Load reads the bundle at path and unlocks the signing identity.
// password is only consulted for version 2 bundles.
func Load(path string, password []byte) (*Identity, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &config.Error{Subject: path, Err: err}
	}

	var bundle Bundle
	if err := json.Unmarshal(raw, &bundle); err != nil {
		return nil, config.Errorf(path, "parsing identity bundle: %w", err)
	}
	return bundle.Unlock(path, password)
}

func (b Bundle) Unlock(path string, password []byte) (*Identity, error) {
	switch b.Version {
	case BundleV1:
		seed, err := base64.StdEncoding.DecodeString(b.Seed)
		if err != nil {
			return nil, &SigningError{Op: "decode seed", Err: err}
		}
		return FromSeed(seed)

	case BundleV2:
		deviceSeed, err := openDeviceBundle(b.DeviceBundle, password)
		if err != nil {
			return nil, err
		}
		defer secret.Wipe(deviceSeed)

		hostSeed, err := deriveHostSeed(deviceSeed)
		if err != nil {
			return nil, err
		}
		return FromSeed(hostSeed)

	default:
		return nil, &config.Error{Subject: path, Err: &UnsupportedVersionError{Version: b.Version}}
	}
}

func openDeviceBundle(encoded string, password []byte) ([]byte, error) {
	if len(password) == 0 {
		return nil, &SigningError{Op: "unlock device bundle", Err: errPasswordRequired}
	}
	ciphertext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, &SigningError{Op: "decode device bundle", Err: err}
	}

	identity, err := age.NewScryptIdentity(string(password))
	if err != nil {
		return nil, &SigningError{Op: "unlock device bundle", Err: err}
	}
	reader, err := age.Decrypt(bytes.NewReader(ciphertext), identity)
	if err != nil {
		return nil, &SigningError{Op: "unlock device bundle", Err: err}
	}
	seed, err := io.ReadAll(reader)
	if err != nil {
		secret.Wipe(seed)
		return nil, &SigningError{Op: "unlock device bundle", Err: err}
	}
	return seed, nil
}

func deriveHostSeed(deviceSeed []byte) ([]byte, error) {
	if len(deviceSeed) != 32 {
		return nil, &SigningError{Op: "derive host key", Err: fmt.Errorf("device seed is %d bytes, want 32", len(deviceSeed))}
	}
	hostSeed := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, deviceSeed, nil, []byte(hostKeyInfo)), hostSeed); err != nil {
		secret.Wipe(hostSeed)
		return nil, &SigningError{Op: "derive host key", Err: err}
	}
	return hostSeed, nil
}

// SealV2 encrypts a device seed under password into a version 2 bundle.
// logN is the scrypt work factor; zero keeps age's default.
func SealV2(deviceSeed, password []byte, logN int) (Bundle, error) {
	recipient, err := age.NewScryptRecipient(string(password))
	if err != nil {
		return Bundle{}, err
	}
	if logN > 0 {
		recipient.SetWorkFactor(logN)
	}

	var ciphertext bytes.Buffer
	writer, err := age.Encrypt(&ciphertext, recipient)
	if err != nil {
		return Bundle{}, fmt.Errorf("creating age encryptor: %w", err)
	}
	if _, err := writer.Write(deviceSeed); err != nil {
		return Bundle{}, fmt.Errorf("writing device seed: %w", err)
	}
	if err := writer.Close(); err != nil {
		return Bundle{}, fmt.Errorf("finalizing age encryption: %w", err)
	}

	return Bundle{
		Version:                BundleV2,
		DeviceBundle:           base64.StdEncoding.EncodeToString(ciphertext.Bytes()),
		UnlockRequiresPassword: true,
	}, nil
}
