// Copyright 2026 The SDMS Authors
// SPDX-License-Identifier: Apache-2.0

// Package server runs the SDMS core message server.
//
// A [Server] binds one ROUTER communicator and runs three kinds of
// goroutine under [Server.Serve]:
//
//   - the I/O goroutine, the only one that touches the socket: it
//     receives envelopes, queues them for the workers and sends the
//     replies the workers queue back
//   - a fixed pool of workers that pass each envelope through the
//     authentication gate and dispatch it through the handler table
//   - the maintenance goroutine, which runs the credential manager's
//     purge loop
//
// Messages of the anon protocol are served to anyone. Every other
// protocol requires the sender's key to be known to the credential
// manager and, on a CURVE socket, to be the key the connection
// authenticated with. Failures get a NackReply with a coarse error
// code; details stay in the server log.
package server
