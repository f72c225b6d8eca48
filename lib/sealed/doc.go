// Copyright 2026 The SDMS Authors
// SPDX-License-Identifier: Apache-2.0

// Package sealed encrypts key files at rest with age.
//
// A CURVE secret key file may be stored sealed to one or more age
// recipients (ASCII-armored, conventionally with a ".age" suffix).
// The server opens it at startup with an age identity file and keeps
// the plaintext only inside a secret.Buffer.
package sealed
