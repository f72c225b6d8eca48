// Copyright 2026 The SDMS Authors
// SPDX-License-Identifier: Apache-2.0

package mq

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/sdms-foundation/sdms/lib/testutil"
)

const testTimeout = 5 * time.Second

func newSocket(t *testing.T, options Options) *Socket {
	t.Helper()
	if options.ReconnectInterval == 0 {
		options.ReconnectInterval = 10 * time.Millisecond
		options.ReconnectMax = 50 * time.Millisecond
	}
	socket, err := New(options)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { socket.Close() })
	return socket
}

func receive(t *testing.T, socket *Socket) Message {
	t.Helper()
	message, err := socket.Receive(testTimeout)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	return message
}

func partStrings(message Message) []string {
	out := make([]string, len(message.Parts))
	for index, part := range message.Parts {
		out[index] = string(part)
	}
	return out
}

func TestRouterDealer_RoundTrip(t *testing.T) {
	for _, scheme := range []string{"inproc", "ipc"} {
		t.Run(scheme, func(t *testing.T) {
			endpoint := testutil.Endpoint(t, scheme)
			router := newSocket(t, Options{Role: Router})
			if err := router.Bind(endpoint); err != nil {
				t.Fatalf("Bind: %v", err)
			}
			dealer := newSocket(t, Options{Role: Dealer, Identity: []byte("client-1")})
			if err := dealer.Connect(endpoint); err != nil {
				t.Fatalf("Connect: %v", err)
			}

			ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
			defer cancel()
			if err := dealer.Send(ctx, Message{Parts: [][]byte{{}, []byte("header"), []byte("")}}); err != nil {
				t.Fatalf("dealer Send: %v", err)
			}

			request := receive(t, router)
			if got := strings.Join(partStrings(request), "|"); got != "client-1||header|" {
				t.Fatalf("router received %q", got)
			}

			if err := router.Send(ctx, Message{Parts: [][]byte{[]byte("client-1"), {}, []byte("reply")}}); err != nil {
				t.Fatalf("router Send: %v", err)
			}
			reply := receive(t, dealer)
			if got := strings.Join(partStrings(reply), "|"); got != "|reply" {
				t.Fatalf("dealer received %q", got)
			}
		})
	}
}

func TestRouterDealer_TCPLowLatency(t *testing.T) {
	router := newSocket(t, Options{Role: Router})
	if err := router.Bind("tcp://127.0.0.1:0"); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	endpoint := router.LastEndpoint()
	if strings.HasSuffix(endpoint, ":0") {
		t.Fatalf("LastEndpoint %q did not resolve the port", endpoint)
	}

	dealer := newSocket(t, Options{Role: Dealer})
	if err := dealer.Connect(endpoint); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	testutil.WaitFor(t, testTimeout, func() bool { return dealer.PeerCount() == 1 }, "dealer connected")

	if err := dealer.SetLowLatency(true); err != nil {
		t.Fatalf("SetLowLatency(true): %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	if err := dealer.Send(ctx, Message{Parts: [][]byte{[]byte("ping")}}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := dealer.SetLowLatency(false); err != nil {
		t.Fatalf("SetLowLatency(false): %v", err)
	}

	message := receive(t, router)
	if len(message.Parts) != 2 || string(message.Parts[1]) != "ping" {
		t.Fatalf("router received %q", partStrings(message))
	}
	// The dealer declared no identity, so the router assigned one.
	if len(message.Parts[0]) != 36 {
		t.Errorf("generated identity %q is not a uuid", message.Parts[0])
	}
}

func TestDealer_ConnectBeforeBind(t *testing.T) {
	endpoint := testutil.Endpoint(t, "inproc")
	dealer := newSocket(t, Options{Role: Dealer, Identity: []byte("early")})
	if err := dealer.Connect(endpoint); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	sent := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
		defer cancel()
		sent <- dealer.Send(ctx, Message{Parts: [][]byte{[]byte("queued")}})
	}()

	router := newSocket(t, Options{Role: Router})
	if err := router.Bind(endpoint); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if err := testutil.RequireReceive(t, sent, testTimeout, "dealer send"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	message := receive(t, router)
	if string(message.Parts[0]) != "early" || string(message.Parts[1]) != "queued" {
		t.Fatalf("router received %q", partStrings(message))
	}
}

func TestRouter_Errors(t *testing.T) {
	router := newSocket(t, Options{Role: Router})
	if err := router.Bind(testutil.Endpoint(t, "inproc")); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	ctx := context.Background()

	if err := router.Send(ctx, Message{Parts: [][]byte{[]byte("nobody"), []byte("x")}}); !errors.Is(err, ErrHostUnreachable) {
		t.Errorf("Send to unknown peer: error = %v, want ErrHostUnreachable", err)
	}
	if err := router.Send(ctx, Message{Parts: [][]byte{[]byte("nobody")}}); !errors.Is(err, ErrEmptyMessage) {
		t.Errorf("Send without payload: error = %v, want ErrEmptyMessage", err)
	}
	if err := router.Disconnect([]byte("nobody")); !errors.Is(err, ErrHostUnreachable) {
		t.Errorf("Disconnect unknown: error = %v, want ErrHostUnreachable", err)
	}
	if _, err := router.Receive(20 * time.Millisecond); !errors.Is(err, ErrTimeout) {
		t.Errorf("Receive: error = %v, want ErrTimeout", err)
	}
	if err := router.Bind(router.LastEndpoint()); !errors.Is(err, ErrAddressInUse) {
		t.Errorf("second Bind: error = %v, want ErrAddressInUse", err)
	}
}

func TestRouter_DisconnectAndReconnect(t *testing.T) {
	endpoint := testutil.Endpoint(t, "inproc")
	router := newSocket(t, Options{Role: Router})
	if err := router.Bind(endpoint); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	dealer := newSocket(t, Options{Role: Dealer, Identity: []byte("worker")})
	if err := dealer.Connect(endpoint); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	testutil.WaitFor(t, testTimeout, func() bool { return router.PeerCount() == 1 }, "dealer attached")

	if err := router.Disconnect([]byte("worker")); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}

	// The dealer re-establishes the link under the same identity.
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	testutil.WaitFor(t, testTimeout, func() bool { return router.PeerCount() == 1 && dealer.PeerCount() == 1 }, "dealer reconnected")
	if err := dealer.Send(ctx, Message{Parts: [][]byte{[]byte("again")}}); err != nil {
		t.Fatalf("Send after reconnect: %v", err)
	}
	message := receive(t, router)
	if string(message.Parts[0]) != "worker" {
		t.Fatalf("identity after reconnect = %q", message.Parts[0])
	}
}

func TestRouter_PartialMessageIsDistinct(t *testing.T) {
	endpoint := testutil.Endpoint(t, "ipc")
	router := newSocket(t, Options{Role: Router})
	if err := router.Bind(endpoint); err != nil {
		t.Fatalf("Bind: %v", err)
	}

	parsed, err := ParseEndpoint(endpoint)
	if err != nil {
		t.Fatal(err)
	}
	conn, err := net.Dial("unix", parsed.Address)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	records := newRecordConn(conn)
	if _, err := exchange(records, encodeGreeting("NULL"), true); err != nil {
		t.Fatalf("greeting: %v", err)
	}
	metadata := encodeMetadata([][2][]byte{{[]byte(propertyIdentity), []byte("raw")}})
	if _, err := exchange(records, metadata, true); err != nil {
		t.Fatalf("metadata: %v", err)
	}
	testutil.WaitFor(t, testTimeout, func() bool { return router.PeerCount() == 1 }, "raw peer attached")

	// A header part announcing more parts, then the connection drops.
	if err := records.WriteFrame(encodeParts([][]byte{{}, []byte("header"), {}})[:10]); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	conn.Close()

	_, err = router.Receive(testTimeout)
	var peerErr *PeerError
	if !errors.As(err, &peerErr) || !errors.Is(err, ErrPartialMessage) {
		t.Fatalf("Receive error = %v, want *PeerError wrapping ErrPartialMessage", err)
	}
	if string(peerErr.Identity) != "raw" {
		t.Errorf("PeerError identity = %q, want raw", peerErr.Identity)
	}
	if errors.Is(err, ErrTimeout) {
		t.Error("partial message reported as a timeout")
	}
}

func TestSocket_Closed(t *testing.T) {
	dealer := newSocket(t, Options{Role: Dealer})
	if err := dealer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := dealer.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, err := dealer.Receive(time.Second); !errors.Is(err, ErrClosed) {
		t.Errorf("Receive: error = %v, want ErrClosed", err)
	}
	if err := dealer.Send(context.Background(), Message{Parts: [][]byte{[]byte("x")}}); !errors.Is(err, ErrClosed) {
		t.Errorf("Send: error = %v, want ErrClosed", err)
	}
	if err := dealer.Connect("inproc://late"); !errors.Is(err, ErrClosed) {
		t.Errorf("Connect: error = %v, want ErrClosed", err)
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Error("New without a role succeeded")
	}
	if _, err := New(Options{Role: Dealer, Identity: make([]byte, 256)}); err == nil {
		t.Error("New with a 256-byte identity succeeded")
	}
}
