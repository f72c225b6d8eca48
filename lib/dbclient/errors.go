// Copyright 2026 The SDMS Authors
// SPDX-License-Identifier: Apache-2.0

package dbclient

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotFound matches 404 responses.
	ErrNotFound = errors.New("dbclient: not found")

	// ErrInvalidToken matches token verification failures.
	ErrInvalidToken = errors.New("dbclient: invalid access token")

	// ErrDenied matches 403 responses from authorization checks.
	ErrDenied = errors.New("dbclient: access denied")
)

// APIError is a non-2xx response from the database service.
type APIError struct {
	StatusCode int
	Message    string
}

func (err *APIError) Error() string {
	if err.Message == "" {
		return fmt.Sprintf("dbclient: HTTP %d", err.StatusCode)
	}
	return fmt.Sprintf("dbclient: HTTP %d: %s", err.StatusCode, err.Message)
}

func (err *APIError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return err.StatusCode == http.StatusNotFound
	case ErrDenied:
		return err.StatusCode == http.StatusForbidden
	}
	return false
}
