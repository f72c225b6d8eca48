// Copyright 2026 The SDMS Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"syscall"
	"testing"
)

type failReader struct{}

func (failReader) Read([]byte) (int, error) {
	return 0, errors.New("simulated read failure")
}

func TestDecodeResponse(t *testing.T) {
	var result struct {
		UID string `json:"uid"`
	}
	if err := DecodeResponse(strings.NewReader(`{"uid":"u/alice"}`), &result); err != nil {
		t.Fatalf("DecodeResponse: %v", err)
	}
	if result.UID != "u/alice" {
		t.Errorf("uid = %q, want u/alice", result.UID)
	}

	if err := DecodeResponse(strings.NewReader("not json"), &result); err == nil {
		t.Error("expected an error for invalid JSON")
	}
	if err := DecodeResponse(failReader{}, &result); err == nil {
		t.Error("expected the read error to propagate")
	}
}

func TestReadResponseIsBounded(t *testing.T) {
	oversized := io.LimitReader(zeroReader{}, MaxResponseSize+1024)
	data, err := ReadResponse(oversized)
	if err != nil {
		t.Fatalf("ReadResponse: %v", err)
	}
	if int64(len(data)) != MaxResponseSize {
		t.Errorf("read %d bytes, want %d", len(data), MaxResponseSize)
	}
}

type zeroReader struct{}

func (zeroReader) Read(buffer []byte) (int, error) {
	clear(buffer)
	return len(buffer), nil
}

func TestErrorBody(t *testing.T) {
	if got := ErrorBody(bytes.NewReader([]byte(`{"message":"no such key"}`))); got != `{"message":"no such key"}` {
		t.Errorf("ErrorBody = %q", got)
	}
	if got := ErrorBody(failReader{}); got != "" {
		t.Errorf("ErrorBody of a failing reader = %q, want empty", got)
	}
}

func TestIsExpectedCloseError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"eof", io.EOF, true},
		{"wrapped eof", fmt.Errorf("reading: %w", io.EOF), true},
		{"net closed", net.ErrClosed, true},
		{"os closed", os.ErrClosed, true},
		{"closed pipe", io.ErrClosedPipe, true},
		{"broken pipe", &net.OpError{Op: "write", Err: os.NewSyscallError("write", syscall.EPIPE)}, true},
		{"reset", os.NewSyscallError("read", syscall.ECONNRESET), true},
		{"refused", syscall.ECONNREFUSED, false},
		{"other", errors.New("boom"), false},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := IsExpectedCloseError(test.err); got != test.want {
				t.Errorf("IsExpectedCloseError(%v) = %v, want %v", test.err, got, test.want)
			}
		})
	}
}
