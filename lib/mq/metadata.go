// Copyright 2026 The SDMS Authors
// SPDX-License-Identifier: Apache-2.0

package mq

import (
	"encoding/binary"
	"fmt"
)

const (
	greetingSignature = "SDMQ"
	greetingVersion   = 1

	propertySocketType = "Socket-Type"
	propertyIdentity   = "Identity"
)

func encodeGreeting(mechanism string) []byte {
	out := make([]byte, 0, len(greetingSignature)+2+len(mechanism))
	out = append(out, greetingSignature...)
	out = append(out, greetingVersion, byte(len(mechanism)))
	return append(out, mechanism...)
}

func parseGreeting(record []byte) (string, error) {
	prefix := len(greetingSignature) + 2
	if len(record) < prefix || string(record[:len(greetingSignature)]) != greetingSignature {
		return "", fmt.Errorf("%w: bad greeting signature", ErrHandshake)
	}
	if version := record[len(greetingSignature)]; version != greetingVersion {
		return "", fmt.Errorf("%w: unsupported greeting version %d", ErrHandshake, version)
	}
	length := int(record[prefix-1])
	if len(record) != prefix+length {
		return "", fmt.Errorf("%w: greeting length mismatch", ErrHandshake)
	}
	return string(record[prefix:]), nil
}

// encodeMetadata serializes properties as name-size:u8 name
// value-size:u32 value, in the given order.
func encodeMetadata(properties [][2][]byte) []byte {
	var out []byte
	for _, property := range properties {
		out = append(out, byte(len(property[0])))
		out = append(out, property[0]...)
		out = binary.BigEndian.AppendUint32(out, uint32(len(property[1])))
		out = append(out, property[1]...)
	}
	return out
}

func parseMetadata(data []byte) (map[string][]byte, error) {
	properties := make(map[string][]byte)
	for len(data) > 0 {
		nameLength := int(data[0])
		if len(data) < 1+nameLength+4 {
			return nil, fmt.Errorf("%w: truncated metadata", ErrHandshake)
		}
		name := string(data[1 : 1+nameLength])
		data = data[1+nameLength:]
		valueLength := binary.BigEndian.Uint32(data)
		data = data[4:]
		if uint64(valueLength) > uint64(len(data)) {
			return nil, fmt.Errorf("%w: truncated metadata value %q", ErrHandshake, name)
		}
		properties[name] = data[:valueLength:valueLength]
		data = data[valueLength:]
	}
	return properties, nil
}
