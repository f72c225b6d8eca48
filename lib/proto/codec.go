// Copyright 2026 The SDMS Authors
// SPDX-License-Identifier: Apache-2.0

package proto

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/sdms-foundation/sdms/lib/codec"
	"github.com/sdms-foundation/sdms/lib/wire"
)

var (
	// ErrMalformedBody is returned when a body cannot be parsed into
	// the type its header names.
	ErrMalformedBody = errors.New("proto: malformed message body")

	// ErrMissingField is returned by Encode when a required field is
	// unset. Message Validate methods build it with MissingField.
	ErrMissingField = errors.New("proto: required field not set")
)

// Validator is implemented by messages with required fields. Encode
// calls Validate and refuses to send invalid messages.
type Validator interface {
	Validate() error
}

// MissingField returns an ErrMissingField error naming field.
func MissingField(field string) error {
	return fmt.Errorf("%w: %s", ErrMissingField, field)
}

// Codec encodes and decodes framed messages against a Registry.
type Codec struct {
	registry *Registry
}

// NewCodec returns a Codec bound to registry.
func NewCodec(registry *Registry) *Codec {
	return &Codec{registry: registry}
}

// Registry returns the registry the codec resolves types against.
func (c *Codec) Registry() *Registry { return c.registry }

// EncodeParts returns the header and body for message separately. The
// body is nil for messages whose struct has no fields.
func (c *Codec) EncodeParts(message Message, context uint16) (wire.Frame, []byte, error) {
	messageType, err := c.registry.TypeOf(message)
	if err != nil {
		return wire.Frame{}, nil, err
	}
	if validator, ok := message.(Validator); ok {
		if err := validator.Validate(); err != nil {
			return wire.Frame{}, nil, fmt.Errorf("encoding %s: %w", c.registry.Name(messageType), err)
		}
	}

	var body []byte
	if !isEmptyStruct(reflect.TypeOf(message)) {
		body, err = codec.Marshal(message)
		if err != nil {
			return wire.Frame{}, nil, fmt.Errorf("encoding %s: %w", c.registry.Name(messageType), err)
		}
	}
	if wire.HeaderSize+len(body) > wire.MaxMessageSize {
		return wire.Frame{}, nil, fmt.Errorf("encoding %s: %w: body is %d bytes",
			c.registry.Name(messageType), wire.ErrHeaderSize, len(body))
	}

	return wire.NewFrame(messageType.Proto, messageType.Msg, context, len(body)), body, nil
}

// Encode returns the header followed by the body.
func (c *Codec) Encode(message Message, context uint16) ([]byte, error) {
	frame, body, err := c.EncodeParts(message, context)
	if err != nil {
		return nil, err
	}
	out := frame.AppendHeader(make([]byte, 0, int(frame.Size)))
	return append(out, body...), nil
}

// Decode parses a header-plus-body byte string.
func (c *Codec) Decode(data []byte) (wire.Frame, Message, error) {
	frame, err := wire.ParseHeader(data)
	if err != nil {
		return wire.Frame{}, nil, err
	}
	if int(frame.Size) != len(data) {
		return frame, nil, fmt.Errorf("%w: header says %d, have %d",
			wire.ErrBodyLength, frame.Size, len(data))
	}
	message, err := c.DecodeBody(frame, data[wire.HeaderSize:])
	return frame, message, err
}

// DecodeBody allocates the type named by frame and parses body into
// it. An empty body yields the zero message without parsing.
func (c *Codec) DecodeBody(frame wire.Frame, body []byte) (Message, error) {
	messageType := MessageType{Proto: frame.ProtoID, Msg: frame.MsgID}
	message, err := c.registry.New(messageType)
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return message, nil
	}
	if isEmptyStruct(c.registry.goType(messageType)) {
		return nil, fmt.Errorf("%w: %s carries no fields but has a %d byte body",
			ErrMalformedBody, c.registry.Name(messageType), len(body))
	}
	if err := codec.Unmarshal(body, message); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedBody, c.registry.Name(messageType), err)
	}
	return message, nil
}

// isEmptyStruct reports whether goType is a pointer to a struct with
// no fields.
func isEmptyStruct(goType reflect.Type) bool {
	if goType == nil {
		return false
	}
	if goType.Kind() == reflect.Pointer {
		goType = goType.Elem()
	}
	return goType.Kind() == reflect.Struct && goType.NumField() == 0
}
