// Copyright 2026 The SDMS Authors
// SPDX-License-Identifier: Apache-2.0

package curve

import (
	"bytes"
	"crypto/subtle"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/Rudd-O/curvetls"
	"golang.org/x/crypto/curve25519"

	"github.com/sdms-foundation/sdms/lib/sealed"
	"github.com/sdms-foundation/sdms/lib/secret"
)

const (
	// KeySize is the size of a raw Curve25519 key.
	KeySize = 32

	// EncodedKeySize is the length of a Z85-encoded key.
	EncodedKeySize = 40
)

var (
	ErrKeyLength   = errors.New("curve: key must be 40 Z85 characters (32 bytes)")
	ErrMissingKey  = errors.New("curve: required key is missing")
	ErrKeyMismatch = errors.New("curve: public key does not match secret key")
	ErrHandshake   = errors.New("curve: handshake failed")
	ErrPeerDenied  = errors.New("curve: peer key denied")
)

// PublicKey is a raw Curve25519 public key.
type PublicKey [KeySize]byte

// String returns the Z85 encoding.
func (k PublicKey) String() string {
	encoded, _ := Z85Encode(k[:])
	return encoded
}

// IsZero reports whether the key is unset.
func (k PublicKey) IsZero() bool {
	return k == PublicKey{}
}

// Equal compares two keys in constant time.
func (k PublicKey) Equal(other []byte) bool {
	return subtle.ConstantTimeCompare(k[:], other) == 1
}

// ParsePublicKey decodes a 40-character Z85 public key.
func ParsePublicKey(encoded string) (PublicKey, error) {
	var key PublicKey
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return key, ErrMissingKey
	}
	if len(encoded) != EncodedKeySize {
		return key, fmt.Errorf("%w: got %d characters", ErrKeyLength, len(encoded))
	}
	raw, err := Z85Decode(encoded)
	if err != nil {
		return key, err
	}
	copy(key[:], raw)
	return key, nil
}

// PublicKeyFromBytes converts a raw 32-byte key.
func PublicKeyFromBytes(raw []byte) (PublicKey, error) {
	var key PublicKey
	if len(raw) != KeySize {
		return key, fmt.Errorf("%w: got %d bytes", ErrKeyLength, len(raw))
	}
	copy(key[:], raw)
	return key, nil
}

// KeyPair is a long-term CURVE identity. The secret half lives in
// locked memory; call Close when the pair is no longer needed.
type KeyPair struct {
	Public PublicKey
	Secret *secret.Buffer
}

// Close releases the secret key.
func (kp *KeyPair) Close() error {
	if kp == nil || kp.Secret == nil {
		return nil
	}
	return kp.Secret.Close()
}

func (kp *KeyPair) validate() error {
	if kp == nil || kp.Secret == nil || kp.Public.IsZero() {
		return ErrMissingKey
	}
	if kp.Secret.Len() != KeySize {
		return fmt.Errorf("%w: secret key is %d bytes", ErrKeyLength, kp.Secret.Len())
	}
	return nil
}

// privateKey copies the secret key out of protected memory. The
// caller zeroes the copy when done.
func (kp *KeyPair) privateKey() curvetls.Privkey {
	var private curvetls.Privkey
	copy(private[:], kp.Secret.Bytes())
	return private
}

// GenerateKeyPair creates a new random key pair.
func GenerateKeyPair() (*KeyPair, error) {
	private, public, err := curvetls.GenKeyPair()
	if err != nil {
		return nil, fmt.Errorf("generating curve key pair: %w", err)
	}
	protected, err := secret.NewFromBytes(private[:])
	if err != nil {
		return nil, err
	}
	return &KeyPair{Public: PublicKey(public), Secret: protected}, nil
}

// ParseKeyPair builds a key pair from a Z85 public key and a buffer
// holding the Z85 secret key. encodedSecret is borrowed, not closed.
// The public key must be the one derived from the secret key.
func ParseKeyPair(encodedPublic string, encodedSecret *secret.Buffer) (*KeyPair, error) {
	public, err := ParsePublicKey(encodedPublic)
	if err != nil {
		return nil, fmt.Errorf("public key: %w", err)
	}
	if encodedSecret == nil {
		return nil, fmt.Errorf("secret key: %w", ErrMissingKey)
	}
	if encodedSecret.Len() != EncodedKeySize {
		return nil, fmt.Errorf("secret key: %w: got %d characters", ErrKeyLength, encodedSecret.Len())
	}
	raw, err := Z85Decode(encodedSecret.String())
	if err != nil {
		return nil, fmt.Errorf("secret key: %w", err)
	}
	derived, err := curve25519.X25519(raw, curve25519.Basepoint)
	if err != nil {
		secret.Zero(raw)
		return nil, fmt.Errorf("secret key: %w", err)
	}
	if !public.Equal(derived) {
		secret.Zero(raw)
		return nil, ErrKeyMismatch
	}
	protected, err := secret.NewFromBytes(raw)
	if err != nil {
		return nil, err
	}
	return &KeyPair{Public: public, Secret: protected}, nil
}

// LoadPublicKey reads a Z85 public key file.
func LoadPublicKey(path string) (PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return PublicKey{}, fmt.Errorf("reading public key: %w", err)
	}
	key, err := ParsePublicKey(string(data))
	if err != nil {
		return PublicKey{}, fmt.Errorf("%s: %w", path, err)
	}
	return key, nil
}

// LoadKeyPair reads a public key file and its secret key file. A
// secret key file sealed with age is opened with ageIdentity, which
// may be nil when the file is plain.
func LoadKeyPair(publicPath, secretPath string, ageIdentity *secret.Buffer) (*KeyPair, error) {
	data, err := os.ReadFile(publicPath)
	if err != nil {
		return nil, fmt.Errorf("reading public key: %w", err)
	}
	encodedPublic := string(data)

	encodedSecret, err := readSecretKey(secretPath, ageIdentity)
	if err != nil {
		return nil, err
	}
	defer encodedSecret.Close()

	pair, err := ParseKeyPair(encodedPublic, encodedSecret)
	if err != nil {
		return nil, fmt.Errorf("loading key pair %s: %w", secretPath, err)
	}
	return pair, nil
}

func readSecretKey(path string, ageIdentity *secret.Buffer) (*secret.Buffer, error) {
	contents, err := secret.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading secret key: %w", err)
	}
	if !sealed.IsSealed(contents.Bytes()) {
		return contents, nil
	}
	defer contents.Close()
	if ageIdentity == nil {
		return nil, fmt.Errorf("secret key %s is age-sealed but no identity was provided", path)
	}
	opened, err := sealed.Open(bytes.Clone(contents.Bytes()), ageIdentity)
	if err != nil {
		return nil, fmt.Errorf("opening sealed secret key %s: %w", path, err)
	}
	return opened, nil
}

// SaveKeyPair writes the public key (mode 0644) and secret key (mode
// 0600) as Z85 text. When ageRecipients is non-empty the secret key
// file is sealed to those recipients.
func SaveKeyPair(pair *KeyPair, publicPath, secretPath string, ageRecipients []string) error {
	if err := pair.validate(); err != nil {
		return err
	}
	if err := os.WriteFile(publicPath, []byte(pair.Public.String()+"\n"), 0o644); err != nil {
		return fmt.Errorf("writing public key: %w", err)
	}

	encoded, err := Z85Encode(pair.Secret.Bytes())
	if err != nil {
		return err
	}
	contents := []byte(encoded + "\n")
	defer secret.Zero(contents)
	if len(ageRecipients) > 0 {
		contents, err = sealed.Seal(contents, ageRecipients)
		if err != nil {
			return fmt.Errorf("sealing secret key: %w", err)
		}
	}
	if err := os.WriteFile(secretPath, contents, 0o600); err != nil {
		return fmt.Errorf("writing secret key: %w", err)
	}
	return nil
}
