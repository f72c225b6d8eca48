// Copyright 2026 The SDMS Authors
// SPDX-License-Identifier: Apache-2.0

// Package curve implements the CURVE security mechanism for lib/mq
// sockets and the key material it needs.
//
// Keys are Curve25519 keys carried as 40-character Z85 strings, the
// format used by SDMS key files and configuration. A [KeyPair] keeps
// its secret half in a secret.Buffer; secret key files may be sealed
// with age (see lib/sealed).
//
// [ServerMechanism] and [ClientMechanism] run the CurveZMQ handshake
// through curvetls. The server learns the client's long-term key from
// INITIATE, asks its [Authenticator], and answers READY or ERROR. Every
// frame after that is encrypted with the session keys, and the channel
// reports the authenticated peer key on each message.
package curve
