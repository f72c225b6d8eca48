// Copyright 2026 The SDMS Authors
// SPDX-License-Identifier: Apache-2.0

package curve

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

var fingerprintDomainKey = [32]byte{
	's', 'd', 'm', 's', '.', 'c', 'u', 'r', 'v', 'e', '.',
	'f', 'i', 'n', 'g', 'e', 'r', 'p', 'r', 'i', 'n', 't',
}

// Fingerprint returns a short log-safe identifier for a public key:
// 16 hex characters of a keyed BLAKE3 digest. key may be raw (32
// bytes) or Z85 text; anything else is hashed as given.
func Fingerprint(key []byte) string {
	if len(key) == EncodedKeySize {
		if raw, err := Z85Decode(string(key)); err == nil {
			key = raw
		}
	}
	hasher, err := blake3.NewKeyed(fingerprintDomainKey[:])
	if err != nil {
		// NewKeyed only fails on a key that is not 32 bytes.
		panic("curve: fingerprint domain key: " + err.Error())
	}
	hasher.Write(key)
	return hex.EncodeToString(hasher.Sum(nil)[:8])
}
