// Copyright 2026 The SDMS Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import "github.com/sdms-foundation/sdms/lib/proto"

// AuthzProtocolID is the wire ID of the authenticated protocol.
const AuthzProtocolID uint8 = 2

// RepoAuthzRequest asks whether Client may perform Action on File in
// repository Repo. Data-transfer gateways send one per access check
// and expect an AckReply (allowed) or NackReply (denied).
type RepoAuthzRequest struct {
	Repo   string `cbor:"repo"`
	Client string `cbor:"client"`
	File   string `cbor:"file"`
	Action string `cbor:"action"`
}

func (r *RepoAuthzRequest) Validate() error {
	switch {
	case r.Repo == "":
		return proto.MissingField("repo")
	case r.Client == "":
		return proto.MissingField("client")
	case r.File == "":
		return proto.MissingField("file")
	case r.Action == "":
		return proto.MissingField("action")
	}
	return nil
}

// UserGetAccessTokenRequest asks for a fresh access token for the
// authenticated user.
type UserGetAccessTokenRequest struct{}

// UserAccessTokenReply carries an access token.
type UserAccessTokenReply struct {
	Access    string `cbor:"access"`
	ExpiresIn uint32 `cbor:"expires_in"`
}

// AuthzProtocol returns the authz protocol definition.
func AuthzProtocol() proto.Protocol {
	return proto.Protocol{
		ID:   AuthzProtocolID,
		Name: "authz",
		Messages: []proto.Descriptor{
			{Name: "RepoAuthzRequest", New: func() proto.Message { return &RepoAuthzRequest{} }},
			{Name: "UserGetAccessTokenRequest", New: func() proto.Message { return &UserGetAccessTokenRequest{} }},
			{Name: "UserAccessTokenReply", New: func() proto.Message { return &UserAccessTokenReply{} }},
		},
	}
}
