// Copyright 2026 The SDMS Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"

	"github.com/sdms-foundation/sdms/lib/curve"
	"github.com/sdms-foundation/sdms/lib/schema"
	"github.com/sdms-foundation/sdms/transport"
)

// errAuthnRequired is the only answer the gate gives. Which check
// failed is logged, never sent.
var errAuthnRequired = &transport.NackError{Code: schema.ErrorCodeAuthnRequired, Message: "authentication required"}

// authenticate resolves env's sender. anon messages always pass, with
// UID filled in when the key is known; every other protocol needs a
// key the credential manager knows.
func (s *Server) authenticate(ctx context.Context, env *transport.Envelope) (*Request, *transport.NackError) {
	request := &Request{Envelope: env}

	key, matched := s.senderKey(env)
	request.Key = key

	if schema.IsAnonymous(env.MessageType()) {
		return request, nil
	}
	if key == "" || !matched {
		s.logger.Debug("sender key missing or not the handshake key")
		return nil, errAuthnRequired
	}
	uid, tier, ok := s.manager.Authenticate(ctx, key)
	if !ok {
		return nil, errAuthnRequired
	}
	request.UID = uid
	request.Tier = tier
	return request, nil
}

// senderKey returns the key that speaks for env and whether the key
// the envelope declares agrees with the connection. On a CURVE
// connection the handshake key is authoritative; an envelope that
// declares a different key does not match.
func (s *Server) senderKey(env *transport.Envelope) (string, bool) {
	if env.PeerKey == nil {
		return env.Key, true
	}
	peer, err := curve.PublicKeyFromBytes(env.PeerKey)
	if err != nil {
		return "", false
	}
	handshakeKey := peer.String()
	if env.Key != "" && env.Key != handshakeKey {
		return handshakeKey, false
	}
	return handshakeKey, true
}
