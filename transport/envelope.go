// Copyright 2026 The SDMS Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"bytes"
	"fmt"

	"github.com/sdms-foundation/sdms/lib/proto"
	"github.com/sdms-foundation/sdms/lib/wire"
)

const (
	// MaxRouteDepth caps the number of route frames accepted on
	// receive.
	MaxRouteDepth = 16

	// MaxRouteFrameSize is the longest single route frame.
	MaxRouteFrameSize = 255
)

// Envelope is one message with its routing and identity.
type Envelope struct {
	Frame wire.Frame

	// Route holds hop identities, oldest first. A reply must carry
	// the request's route unchanged.
	Route [][]byte

	// Key is the caller's public key, as sent.
	Key string

	// ID is the caller's declared identity, as sent.
	ID string

	// Payload is the decoded message. When nil on send, Body is sent
	// raw under Frame.
	Payload proto.Message
	Body    []byte

	// PeerKey is the public key the security mechanism authenticated
	// for the connection this envelope arrived on. Nil without CURVE.
	PeerKey []byte
}

// MessageType returns the tag in the envelope's header.
func (e *Envelope) MessageType() proto.MessageType {
	return proto.MessageType{Proto: e.Frame.ProtoID, Msg: e.Frame.MsgID}
}

// Reply returns an envelope answering request with payload: same
// context, same route.
func Reply(request *Envelope, payload proto.Message) *Envelope {
	route := make([][]byte, len(request.Route))
	for index, frame := range request.Route {
		route[index] = bytes.Clone(frame)
	}
	return &Envelope{
		Frame:   wire.Frame{Context: request.Frame.Context},
		Route:   route,
		Payload: payload,
	}
}

// encodeEnvelope builds the wire parts. The empty delimiter part
// follows the route only when withDelimiter is set, which dealers do
// so the receiving router can find the end of the route. When the
// envelope has a payload, the header is re-derived from it under
// Frame.Context and written back into env.Frame.
func encodeEnvelope(codec *proto.Codec, env *Envelope, withDelimiter bool) ([][]byte, error) {
	if len(env.Route) > MaxRouteDepth {
		return nil, fmt.Errorf("%w: %d frames", ErrRouteTooLong, len(env.Route))
	}
	for index, frame := range env.Route {
		if len(frame) == 0 || len(frame) > MaxRouteFrameSize {
			return nil, fmt.Errorf("%w: frame %d is %d bytes", ErrRouteFrameSize, index, len(frame))
		}
	}

	body := env.Body
	if env.Payload != nil {
		frame, encoded, err := codec.EncodeParts(env.Payload, env.Frame.Context)
		if err != nil {
			return nil, err
		}
		env.Frame, env.Body, body = frame, encoded, encoded
	} else if env.Frame.BodyLen() != len(body) {
		return nil, fmt.Errorf("%w: header says %d, body is %d", ErrBodyLength, env.Frame.BodyLen(), len(body))
	}

	header, err := env.Frame.MarshalBinary()
	if err != nil {
		return nil, err
	}

	parts := make([][]byte, 0, len(env.Route)+5)
	parts = append(parts, env.Route...)
	if withDelimiter {
		parts = append(parts, []byte{})
	}
	parts = append(parts, header)
	if len(body) > 0 {
		parts = append(parts, body)
	}
	return append(parts, []byte(env.Key), []byte(env.ID)), nil
}

// decodeEnvelope parses wire parts. requireDelimiter is set for
// router sockets; a dealer expects the header first. Every failure is
// a *ProtocolError. A well-framed message whose body cannot be decoded
// also returns the envelope, without payload, so the caller can answer
// it before dropping the connection.
func decodeEnvelope(codec *proto.Codec, parts [][]byte, requireDelimiter bool) (*Envelope, error) {
	env := &Envelope{}

	index := 0
	if requireDelimiter {
		for ; index < len(parts) && len(parts[index]) > 0; index++ {
			if index == MaxRouteDepth {
				return nil, protocolError("%w: more than %d frames", ErrRouteTooLong, MaxRouteDepth)
			}
			if len(parts[index]) > MaxRouteFrameSize {
				return nil, protocolError("%w: frame %d is %d bytes", ErrRouteFrameSize, index, len(parts[index]))
			}
			env.Route = append(env.Route, parts[index])
		}
		if index == len(parts) {
			return nil, protocolError("%w: no delimiter", ErrMissingPart)
		}
		index++
	}

	if index >= len(parts) {
		return nil, protocolError("%w: no header", ErrMissingPart)
	}
	if err := env.Frame.UnmarshalBinary(parts[index]); err != nil {
		return nil, &ProtocolError{Err: err}
	}
	index++

	if env.Frame.HasBody() {
		if index >= len(parts) {
			return nil, protocolError("%w: no body", ErrMissingPart)
		}
		if len(parts[index]) != env.Frame.BodyLen() {
			return nil, protocolError("%w: header says %d, body is %d", ErrBodyLength, env.Frame.BodyLen(), len(parts[index]))
		}
		env.Body = parts[index]
		index++
	}

	if len(parts)-index < 2 {
		return nil, protocolError("%w", ErrMissingPart)
	}
	env.Key = string(parts[index])
	env.ID = string(parts[index+1])
	if index+2 != len(parts) {
		return nil, protocolError("%w: %d extra", ErrTrailingParts, len(parts)-index-2)
	}

	payload, err := codec.DecodeBody(env.Frame, env.Body)
	if err != nil {
		return env, &ProtocolError{Err: err}
	}
	env.Payload = payload
	return env, nil
}
