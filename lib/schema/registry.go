// Copyright 2026 The SDMS Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"fmt"

	"github.com/sdms-foundation/sdms/lib/proto"
)

// NewRegistry returns a registry holding every SDMS protocol. Call it
// once at process start and pass the result to the components that
// need it.
func NewRegistry() (*proto.Registry, error) {
	registry := proto.NewRegistry()
	for _, protocol := range []proto.Protocol{AnonProtocol(), AuthzProtocol()} {
		if _, err := registry.Register(protocol); err != nil {
			return nil, fmt.Errorf("registering %s protocol: %w", protocol.Name, err)
		}
	}
	return registry, nil
}

// IsAnonymous reports whether messageType may be handled without an
// authenticated key.
func IsAnonymous(messageType proto.MessageType) bool {
	return messageType.Proto == AnonProtocolID
}

// Nack builds a NackReply.
func Nack(code ErrorCode, message string) *NackReply {
	return &NackReply{ErrCode: code, ErrMsg: message}
}
