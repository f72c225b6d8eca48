// Copyright 2026 The SDMS Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"bytes"
	"fmt"
	"os"
)

// ReadFile reads path into a Buffer with surrounding whitespace
// trimmed. The heap copy used for reading is zeroed before return.
func ReadFile(path string) (*Buffer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	defer Zero(data)

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("secret: %s is empty", path)
	}
	return NewFromBytes(trimmed)
}
