// Copyright 2026 The SDMS Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import "github.com/sdms-foundation/sdms/lib/proto"

// AnonProtocolID is the wire ID of the anonymous protocol.
const AnonProtocolID uint8 = 1

// AckReply acknowledges a request that has no other result. It has no
// fields, so it travels as a header with no body part.
type AckReply struct{}

// NackReply reports a failed request.
type NackReply struct {
	ErrCode ErrorCode `cbor:"err_code"`
	ErrMsg  string    `cbor:"err_msg,omitempty"`
}

func (n *NackReply) Validate() error {
	if n.ErrCode == 0 {
		return proto.MissingField("err_code")
	}
	return nil
}

// VersionRequest asks the server for its release and API version.
type VersionRequest struct{}

// VersionReply answers VersionRequest.
type VersionReply struct {
	Release  string `cbor:"release"`
	APIMajor uint32 `cbor:"api_major"`
	APIMinor uint32 `cbor:"api_minor"`
	APIPatch uint32 `cbor:"api_patch"`
}

// GetAuthStatusRequest asks whether the sender's key is authenticated.
type GetAuthStatusRequest struct{}

// AuthStatusReply reports the sender's authentication state.
type AuthStatusReply struct {
	Auth bool   `cbor:"auth"`
	UID  string `cbor:"uid,omitempty"`
}

// AuthenticateByTokenRequest binds the sender's public key to the user
// that owns Token. On success the key enters the transient tier.
type AuthenticateByTokenRequest struct {
	Token string `cbor:"token"`
}

func (a *AuthenticateByTokenRequest) Validate() error {
	if a.Token == "" {
		return proto.MissingField("token")
	}
	return nil
}

// AnonProtocol returns the anon protocol definition.
func AnonProtocol() proto.Protocol {
	return proto.Protocol{
		ID:   AnonProtocolID,
		Name: "anon",
		Messages: []proto.Descriptor{
			{Name: "AckReply", New: func() proto.Message { return &AckReply{} }},
			{Name: "NackReply", New: func() proto.Message { return &NackReply{} }},
			{Name: "VersionRequest", New: func() proto.Message { return &VersionRequest{} }},
			{Name: "VersionReply", New: func() proto.Message { return &VersionReply{} }},
			{Name: "GetAuthStatusRequest", New: func() proto.Message { return &GetAuthStatusRequest{} }},
			{Name: "AuthStatusReply", New: func() proto.Message { return &AuthStatusReply{} }},
			{Name: "AuthenticateByTokenRequest", New: func() proto.Message { return &AuthenticateByTokenRequest{} }},
		},
	}
}
