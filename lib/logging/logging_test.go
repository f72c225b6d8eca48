// Copyright 2026 The SDMS Authors
// SPDX-License-Identifier: Apache-2.0

package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    slog.Level
		wantErr bool
	}{
		{input: "debug", want: slog.LevelDebug},
		{input: "INFO", want: slog.LevelInfo},
		{input: " warn ", want: slog.LevelWarn},
		{input: "error", want: slog.LevelError},
		{input: "loud", wantErr: true},
	}
	for _, test := range tests {
		got, err := ParseLevel(test.input)
		if test.wantErr {
			if err == nil {
				t.Errorf("ParseLevel(%q) succeeded, want error", test.input)
			}
			continue
		}
		if err != nil || got != test.want {
			t.Errorf("ParseLevel(%q) = %v, %v; want %v", test.input, got, err, test.want)
		}
	}
}

func TestNewWriter(t *testing.T) {
	var buffer bytes.Buffer
	logger := NewWriter(&buffer, slog.LevelInfo, false)
	logger.Debug("hidden")
	logger.Info("server started", "endpoint", "tcp://*:7512")

	var record map[string]any
	if err := json.Unmarshal(buffer.Bytes(), &record); err != nil {
		t.Fatalf("machine output is not one JSON record: %v\n%s", err, buffer.String())
	}
	if record["msg"] != "server started" || record["endpoint"] != "tcp://*:7512" {
		t.Errorf("record = %v", record)
	}

	buffer.Reset()
	NewWriter(&buffer, slog.LevelInfo, true).Info("server started")
	if !strings.Contains(buffer.String(), "msg=\"server started\"") {
		t.Errorf("human output = %q", buffer.String())
	}
}
