// Copyright 2026 The SDMS Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"encoding/json"
	"fmt"
	"io"
)

// MaxResponseSize bounds JSON API response reads at 16 MiB. Database
// replies are a few hundred bytes; the bound only stops pathological
// responses.
const MaxResponseSize int64 = 16 << 20

// ReadResponse reads a response body up to MaxResponseSize bytes.
func ReadResponse(body io.Reader) ([]byte, error) {
	return io.ReadAll(io.LimitReader(body, MaxResponseSize))
}

// DecodeResponse reads a bounded response body and JSON-decodes it
// into v.
func DecodeResponse(body io.Reader, v any) error {
	data, err := ReadResponse(body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding response body: %w", err)
	}
	return nil
}

// ErrorBody returns a bounded error response body for diagnostics.
// Read errors yield whatever was read.
func ErrorBody(body io.Reader) string {
	data, _ := ReadResponse(body)
	return string(data)
}
