// Copyright 2026 The SDMS Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import "fmt"

// ErrorCode is the coarse failure class carried by a NackReply.
type ErrorCode uint16

const (
	ErrorCodeBadRequest ErrorCode = iota + 1
	ErrorCodeInternalError
	ErrorCodeClientError
	ErrorCodeServiceError
	ErrorCodeAuthnRequired
	ErrorCodeAuthnError
	ErrorCodeDestPathError
	ErrorCodeDestFileError
)

var errorCodeNames = map[ErrorCode]string{
	ErrorCodeBadRequest:    "bad_request",
	ErrorCodeInternalError: "internal_error",
	ErrorCodeClientError:   "client_error",
	ErrorCodeServiceError:  "service_error",
	ErrorCodeAuthnRequired: "authn_required",
	ErrorCodeAuthnError:    "authn_error",
	ErrorCodeDestPathError: "dest_path_error",
	ErrorCodeDestFileError: "dest_file_error",
}

func (c ErrorCode) String() string {
	if name, ok := errorCodeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("error_code(%d)", uint16(c))
}
