// Copyright 2026 The SDMS Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil holds small network and HTTP helpers shared by the
// message sockets and the database client.
//
// The HTTP helpers bound every response body read at MaxResponseSize
// so a misbehaving database server cannot exhaust memory. The close
// helper classifies the errors a socket sees when its peer goes away.
package netutil
