// Copyright 2026 The SDMS Authors
// SPDX-License-Identifier: Apache-2.0

// Package dbclient is the HTTP/JSON client for the SDMS metadata
// database service.
//
// The core server consults the database for four things: which user
// owns a registered public key ([Client.LookupUID], which makes a
// Client usable as a credential.UIDResolver), which user an access
// token belongs to ([Client.VerifyToken]), whether a client may touch
// a file in a repository ([Client.AuthorizeRepo]), and fresh access
// tokens for a user ([Client.AccessToken]).
//
// Every request carries the caller's context; Config.Timeout bounds
// requests whose context has no deadline. Non-2xx responses become
// *APIError, with ErrNotFound, ErrInvalidToken and ErrDenied matched
// by errors.Is for the statuses the callers act on.
package dbclient
