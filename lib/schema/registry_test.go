// Copyright 2026 The SDMS Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"errors"
	"reflect"
	"testing"

	"github.com/sdms-foundation/sdms/lib/proto"
	"github.com/sdms-foundation/sdms/lib/wire"
)

// samples holds one populated instance of every registered message.
var samples = []proto.Message{
	&AckReply{},
	&NackReply{ErrCode: ErrorCodeAuthnRequired, ErrMsg: "authentication required"},
	&VersionRequest{},
	&VersionReply{Release: "2026.10", APIMajor: 1, APIMinor: 4, APIPatch: 2},
	&GetAuthStatusRequest{},
	&AuthStatusReply{Auth: true, UID: "u/benz"},
	&AuthenticateByTokenRequest{Token: "tok-123"},
	&RepoAuthzRequest{Repo: "repo/alpha", Client: "u/benz", File: "/data/run1.h5", Action: "read"},
	&UserGetAccessTokenRequest{},
	&UserAccessTokenReply{Access: "access-xyz", ExpiresIn: 3600},
}

func TestNewRegistry_CoversEveryMessage(t *testing.T) {
	registry, err := NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	if got, want := len(registry.Types()), len(samples); got != want {
		t.Fatalf("registry has %d types, samples cover %d", got, want)
	}
	for _, sample := range samples {
		if _, err := registry.TypeOf(sample); err != nil {
			t.Errorf("TypeOf(%T): %v", sample, err)
		}
	}
}

func TestRoundTrip_AllMessages(t *testing.T) {
	registry, err := NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	c := proto.NewCodec(registry)

	for index, sample := range samples {
		context := uint16(index * 1000)
		data, err := c.Encode(sample, context)
		if err != nil {
			t.Fatalf("Encode(%T): %v", sample, err)
		}
		frame, err := wire.ParseHeader(data)
		if err != nil {
			t.Fatalf("ParseHeader(%T): %v", sample, err)
		}
		if int(frame.Size) != len(data) {
			t.Errorf("%T: size %d != encoded length %d", sample, frame.Size, len(data))
		}

		_, decoded, err := c.Decode(data)
		if err != nil {
			t.Fatalf("Decode(%T): %v", sample, err)
		}
		if !reflect.DeepEqual(decoded, sample) {
			t.Errorf("%T: decoded %+v, want %+v", sample, decoded, sample)
		}
	}
}

func TestAckReply_HasNoBody(t *testing.T) {
	registry, err := NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	frame, body, err := proto.NewCodec(registry).EncodeParts(&AckReply{}, 5)
	if err != nil {
		t.Fatalf("EncodeParts: %v", err)
	}
	if len(body) != 0 || frame.Size != wire.HeaderSize {
		t.Errorf("AckReply encoded with %d body bytes, size %d", len(body), frame.Size)
	}
}

func TestValidate_RequiredFields(t *testing.T) {
	registry, err := NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	c := proto.NewCodec(registry)

	for _, message := range []proto.Message{
		&NackReply{ErrMsg: "no code"},
		&AuthenticateByTokenRequest{},
		&RepoAuthzRequest{Repo: "r", Client: "c", File: "f"},
	} {
		if _, err := c.Encode(message, 0); !errors.Is(err, proto.ErrMissingField) {
			t.Errorf("Encode(%T) error = %v, want ErrMissingField", message, err)
		}
	}
}

func TestErrorCode_String(t *testing.T) {
	if got := ErrorCodeAuthnRequired.String(); got != "authn_required" {
		t.Errorf("String = %q", got)
	}
	if got := ErrorCode(99).String(); got != "error_code(99)" {
		t.Errorf("String = %q", got)
	}
}
