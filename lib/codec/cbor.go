// Copyright 2026 The SDMS Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		// Bodies never use non-string map keys; any-typed targets get a
		// map type that the rest of the code (and encoding/json) accepts.
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
		// Bound attacker-controlled allocations. A frame is already
		// capped by wire.MaxMessageSize; these cap nesting and counts.
		MaxNestedLevels:  32,
		MaxArrayElements: 65536,
		MaxMapPairs:      65536,
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v using Core Deterministic Encoding.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v. Trailing bytes after the first
// data item are an error.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// RawMessage is an undecoded CBOR value.
type RawMessage = cbor.RawMessage

// Diagnose returns the RFC 8949 diagnostic notation for data. Used in
// debug logging of bodies that failed to decode.
func Diagnose(data []byte) (string, error) {
	return cbor.Diagnose(data)
}
