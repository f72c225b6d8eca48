// Copyright 2026 The SDMS Authors
// SPDX-License-Identifier: Apache-2.0

package curve

import (
	"errors"
	"fmt"
)

const z85Alphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ.-:+=^!/*?&<>()[]{}@%$#"

// ErrZ85 is returned for input that is not valid Z85.
var ErrZ85 = errors.New("curve: invalid Z85")

var z85Decoder = func() [256]byte {
	var table [256]byte
	for index := range table {
		table[index] = 0xFF
	}
	for index := 0; index < len(z85Alphabet); index++ {
		table[z85Alphabet[index]] = byte(index)
	}
	return table
}()

// Z85Encode encodes data, whose length must be a multiple of 4.
func Z85Encode(data []byte) (string, error) {
	if len(data)%4 != 0 {
		return "", fmt.Errorf("%w: length %d is not a multiple of 4", ErrZ85, len(data))
	}
	out := make([]byte, 0, len(data)/4*5)
	for offset := 0; offset < len(data); offset += 4 {
		value := uint32(data[offset])<<24 | uint32(data[offset+1])<<16 |
			uint32(data[offset+2])<<8 | uint32(data[offset+3])
		var chunk [5]byte
		for index := 4; index >= 0; index-- {
			chunk[index] = z85Alphabet[value%85]
			value /= 85
		}
		out = append(out, chunk[:]...)
	}
	return string(out), nil
}

// Z85Decode decodes text, whose length must be a multiple of 5.
func Z85Decode(text string) ([]byte, error) {
	if len(text)%5 != 0 {
		return nil, fmt.Errorf("%w: length %d is not a multiple of 5", ErrZ85, len(text))
	}
	out := make([]byte, 0, len(text)/5*4)
	for offset := 0; offset < len(text); offset += 5 {
		var value uint64
		for index := 0; index < 5; index++ {
			digit := z85Decoder[text[offset+index]]
			if digit == 0xFF {
				return nil, fmt.Errorf("%w: character %q at offset %d", ErrZ85, text[offset+index], offset+index)
			}
			value = value*85 + uint64(digit)
		}
		if value > 0xFFFFFFFF {
			return nil, fmt.Errorf("%w: group at offset %d overflows", ErrZ85, offset)
		}
		out = append(out, byte(value>>24), byte(value>>16), byte(value>>8), byte(value))
	}
	return out, nil
}
