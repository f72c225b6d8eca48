// Copyright 2026 The SDMS Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"bytes"
	"errors"
	"testing"

	"github.com/sdms-foundation/sdms/lib/proto"
	"github.com/sdms-foundation/sdms/lib/schema"
	"github.com/sdms-foundation/sdms/lib/wire"
)

func testCodec(t *testing.T) *proto.Codec {
	t.Helper()
	registry, err := schema.NewRegistry()
	if err != nil {
		t.Fatalf("schema.NewRegistry: %v", err)
	}
	return proto.NewCodec(registry)
}

func TestEncodeEnvelope_PartOrder(t *testing.T) {
	codec := testCodec(t)

	t.Run("with body", func(t *testing.T) {
		env := &Envelope{
			Route:   [][]byte{[]byte("hop-1"), []byte("hop-2")},
			Key:     "client-key",
			ID:      "client-id",
			Payload: &schema.VersionReply{Release: "2026.1", APIMajor: 1},
		}
		env.Frame.Context = 42
		parts, err := encodeEnvelope(codec, env, true)
		if err != nil {
			t.Fatalf("encodeEnvelope: %v", err)
		}
		if len(parts) != 7 {
			t.Fatalf("got %d parts, want 7", len(parts))
		}
		if string(parts[0]) != "hop-1" || string(parts[1]) != "hop-2" {
			t.Errorf("route parts = %q %q", parts[0], parts[1])
		}
		if len(parts[2]) != 0 {
			t.Errorf("delimiter part = %q, want empty", parts[2])
		}
		frame, err := wire.ParseHeader(parts[3])
		if err != nil || len(parts[3]) != wire.HeaderSize {
			t.Fatalf("header part %x: %v", parts[3], err)
		}
		if frame.Context != 42 || frame.BodyLen() != len(parts[4]) {
			t.Errorf("header %v does not describe body of %d bytes", frame, len(parts[4]))
		}
		if string(parts[5]) != "client-key" || string(parts[6]) != "client-id" {
			t.Errorf("key/id parts = %q %q", parts[5], parts[6])
		}
	})

	t.Run("router omits delimiter", func(t *testing.T) {
		env := &Envelope{Route: [][]byte{[]byte("peer")}, Payload: &schema.AckReply{}}
		parts, err := encodeEnvelope(codec, env, false)
		if err != nil {
			t.Fatalf("encodeEnvelope: %v", err)
		}
		// route, header, key, id
		if len(parts) != 4 {
			t.Fatalf("got %d parts, want 4", len(parts))
		}
		if string(parts[0]) != "peer" || len(parts[1]) != wire.HeaderSize {
			t.Fatalf("unexpected parts %q", parts)
		}
	})

	t.Run("empty body omitted", func(t *testing.T) {
		parts, err := encodeEnvelope(codec, &Envelope{Payload: &schema.AckReply{}}, true)
		if err != nil {
			t.Fatalf("encodeEnvelope: %v", err)
		}
		// delimiter, header, key, id
		if len(parts) != 4 {
			t.Fatalf("got %d parts, want 4", len(parts))
		}
		if len(parts[1]) != wire.HeaderSize || len(parts[2]) != 0 || len(parts[3]) != 0 {
			t.Fatalf("unexpected parts %q", parts)
		}
	})

	t.Run("route frame size", func(t *testing.T) {
		_, err := encodeEnvelope(codec, &Envelope{Route: [][]byte{make([]byte, 256)}, Payload: &schema.AckReply{}}, false)
		if !errors.Is(err, ErrRouteFrameSize) {
			t.Fatalf("error = %v, want ErrRouteFrameSize", err)
		}
		_, err = encodeEnvelope(codec, &Envelope{Route: [][]byte{{}}, Payload: &schema.AckReply{}}, false)
		if !errors.Is(err, ErrRouteFrameSize) {
			t.Fatalf("empty route frame: error = %v, want ErrRouteFrameSize", err)
		}
	})
}

func TestDecodeEnvelope_RoundTrip(t *testing.T) {
	codec := testCodec(t)
	request := &Envelope{Key: "k", ID: "i", Payload: &schema.RepoAuthzRequest{Repo: "repo/a", Client: "u/benz", File: "/data/x", Action: "read"}}
	request.Frame.Context = 7
	parts, err := encodeEnvelope(codec, request, true)
	if err != nil {
		t.Fatalf("encodeEnvelope: %v", err)
	}

	// As seen by a router: identity prefixed by the socket.
	routed := append([][]byte{[]byte("peer-1")}, parts...)
	env, err := decodeEnvelope(codec, routed, true)
	if err != nil {
		t.Fatalf("decodeEnvelope: %v", err)
	}
	if len(env.Route) != 1 || string(env.Route[0]) != "peer-1" {
		t.Fatalf("route = %q", env.Route)
	}
	payload, ok := env.Payload.(*schema.RepoAuthzRequest)
	if !ok || payload.Client != "u/benz" {
		t.Fatalf("payload = %#v", env.Payload)
	}
	if env.Key != "k" || env.ID != "i" || env.Frame.Context != 7 {
		t.Fatalf("envelope fields = %q %q %d", env.Key, env.ID, env.Frame.Context)
	}

	reply := Reply(env, &schema.AckReply{})
	if reply.Frame.Context != 7 {
		t.Errorf("reply context = %d, want 7", reply.Frame.Context)
	}
	if len(reply.Route) != 1 || !bytes.Equal(reply.Route[0], env.Route[0]) {
		t.Errorf("reply route = %q, want %q", reply.Route, env.Route)
	}
	env.Route[0][0] = 'X'
	if string(reply.Route[0]) != "peer-1" {
		t.Error("reply route aliases the request route")
	}

	// The reply as seen by the dealer: the router socket consumed the
	// identity and no delimiter was sent.
	replyParts, err := encodeEnvelope(codec, reply, false)
	if err != nil {
		t.Fatalf("encodeEnvelope reply: %v", err)
	}
	dealerEnv, err := decodeEnvelope(codec, replyParts[1:], false)
	if err != nil {
		t.Fatalf("dealer decodeEnvelope: %v", err)
	}
	if len(dealerEnv.Route) != 0 || dealerEnv.Frame.Context != 7 {
		t.Fatalf("dealer envelope route=%q context=%d", dealerEnv.Route, dealerEnv.Frame.Context)
	}
	if _, ok := dealerEnv.Payload.(*schema.AckReply); !ok {
		t.Fatalf("dealer payload = %T", dealerEnv.Payload)
	}

	// A dealer does not skip a leading empty part.
	if _, err := decodeEnvelope(codec, parts, false); !IsProtocolError(err) || !errors.Is(err, ErrHeaderSize) {
		t.Fatalf("dealer decode with delimiter: error = %v, want header-size protocol error", err)
	}
}

func TestDecodeEnvelope_ProtocolErrors(t *testing.T) {
	codec := testCodec(t)
	header := func(size uint32) []byte {
		b, _ := wire.Frame{Size: size, ProtoID: schema.AnonProtocolID, MsgID: 2}.MarshalBinary()
		return b
	}
	longRoute := make([][]byte, MaxRouteDepth+1)
	for index := range longRoute {
		longRoute[index] = []byte("hop")
	}

	tests := []struct {
		name  string
		parts [][]byte
		want  error
	}{
		{"route too long", append(longRoute, []byte{}, header(8), []byte{}, []byte{}), ErrRouteTooLong},
		{"no delimiter", [][]byte{[]byte("peer"), []byte("more")}, ErrMissingPart},
		{"short header", [][]byte{[]byte("peer"), {}, []byte("1234567"), {}, {}}, ErrHeaderSize},
		{"long header", [][]byte{[]byte("peer"), {}, []byte("123456789"), {}, {}}, ErrHeaderSize},
		{"body length", [][]byte{[]byte("peer"), {}, header(12), []byte("abc"), {}, {}}, ErrBodyLength},
		{"missing id", [][]byte{[]byte("peer"), {}, header(8), []byte("key")}, ErrMissingPart},
		{"trailing", [][]byte{[]byte("peer"), {}, header(8), {}, {}, []byte("extra")}, ErrTrailingParts},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := decodeEnvelope(codec, test.parts, true)
			if !IsProtocolError(err) {
				t.Fatalf("error = %v, want a protocol error", err)
			}
			if !errors.Is(err, test.want) {
				t.Fatalf("error = %v, want %v", err, test.want)
			}
		})
	}
}

func TestDecodeEnvelope_UnknownTypeKeepsEnvelopeAsProtocolError(t *testing.T) {
	codec := testCodec(t)
	header, _ := wire.Frame{Size: 8, ProtoID: 99, MsgID: 1, Context: 5}.MarshalBinary()

	env, err := decodeEnvelope(codec, [][]byte{[]byte("peer"), {}, header, []byte("key"), []byte("id")}, true)
	if !errors.Is(err, proto.ErrUnknownProtocol) {
		t.Fatalf("error = %v, want ErrUnknownProtocol", err)
	}
	if !IsProtocolError(err) {
		t.Fatal("an undecodable body must be a protocol error")
	}
	if env == nil || env.Frame.Context != 5 || string(env.Route[0]) != "peer" || env.Payload != nil {
		t.Fatalf("envelope = %+v", env)
	}
}
