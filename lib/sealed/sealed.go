// Copyright 2026 The SDMS Authors
// SPDX-License-Identifier: Apache-2.0

package sealed

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"filippo.io/age"
	"filippo.io/age/armor"

	"github.com/sdms-foundation/sdms/lib/secret"
)

// Identity is an age X25519 identity. PrivateKey holds the
// AGE-SECRET-KEY-1... string.
type Identity struct {
	PrivateKey *secret.Buffer
	PublicKey  string
}

// Close releases the private key.
func (i *Identity) Close() error {
	if i.PrivateKey != nil {
		return i.PrivateKey.Close()
	}
	return nil
}

// GenerateIdentity creates a new age identity.
func GenerateIdentity() (*Identity, error) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("generating age identity: %w", err)
	}
	privateKey, err := secret.NewFromBytes([]byte(identity.String()))
	if err != nil {
		return nil, fmt.Errorf("protecting age identity: %w", err)
	}
	return &Identity{
		PrivateKey: privateKey,
		PublicKey:  identity.Recipient().String(),
	}, nil
}

// Seal encrypts plaintext to the given age1... recipients and returns
// ASCII-armored ciphertext.
func Seal(plaintext []byte, recipientKeys []string) ([]byte, error) {
	if len(recipientKeys) == 0 {
		return nil, fmt.Errorf("at least one recipient is required")
	}
	recipients := make([]age.Recipient, 0, len(recipientKeys))
	for _, key := range recipientKeys {
		recipient, err := age.ParseX25519Recipient(key)
		if err != nil {
			return nil, fmt.Errorf("parsing recipient %q: %w", key, err)
		}
		recipients = append(recipients, recipient)
	}

	var out bytes.Buffer
	armored := armor.NewWriter(&out)
	writer, err := age.Encrypt(armored, recipients...)
	if err != nil {
		return nil, fmt.Errorf("creating age encryptor: %w", err)
	}
	if _, err := writer.Write(plaintext); err != nil {
		return nil, fmt.Errorf("encrypting: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("finalizing age encryption: %w", err)
	}
	if err := armored.Close(); err != nil {
		return nil, fmt.Errorf("finalizing armor: %w", err)
	}
	return out.Bytes(), nil
}

// Open decrypts armored ciphertext with the identities found in
// identityFile contents (one AGE-SECRET-KEY-1 per line, # comments
// allowed). The plaintext is returned in a secret.Buffer. identityFile
// is borrowed, not closed.
func Open(ciphertext []byte, identityFile *secret.Buffer) (*secret.Buffer, error) {
	identities, err := age.ParseIdentities(strings.NewReader(identityFile.String()))
	if err != nil {
		return nil, fmt.Errorf("parsing age identities: %w", err)
	}

	reader, err := age.Decrypt(armor.NewReader(bytes.NewReader(ciphertext)), identities...)
	if err != nil {
		return nil, fmt.Errorf("decrypting: %w", err)
	}
	plaintext, err := io.ReadAll(reader)
	if err != nil {
		secret.Zero(plaintext)
		return nil, fmt.Errorf("reading plaintext: %w", err)
	}
	trimmed := bytes.TrimSpace(plaintext)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("sealed file decrypted to an empty value")
	}
	buffer, err := secret.NewFromBytes(trimmed)
	secret.Zero(plaintext)
	if err != nil {
		return nil, fmt.Errorf("protecting plaintext: %w", err)
	}
	return buffer, nil
}

// IsSealed reports whether data looks like an armored age file.
func IsSealed(data []byte) bool {
	return bytes.HasPrefix(bytes.TrimSpace(data), []byte(armor.Header))
}
