// Copyright 2026 The SDMS Authors
// SPDX-License-Identifier: Apache-2.0

package curve

import (
	"bytes"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/sdms-foundation/sdms/lib/mq"
)

// connPair returns both ends of a loopback TCP connection.
func connPair(t *testing.T) (net.Conn, net.Conn) {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer listener.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			close(accepted)
			return
		}
		accepted <- conn
	}()
	client, err := net.Dial("tcp", listener.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	server, ok := <-accepted
	if !ok {
		t.Fatal("Accept failed")
	}
	deadline := time.Now().Add(5 * time.Second)
	client.SetDeadline(deadline)
	server.SetDeadline(deadline)
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return client, server
}

// tapConn records every byte written through it.
type tapConn struct {
	net.Conn

	mu      sync.Mutex
	written bytes.Buffer
}

func (c *tapConn) Write(data []byte) (int, error) {
	c.mu.Lock()
	c.written.Write(data)
	c.mu.Unlock()
	return c.Conn.Write(data)
}

func (c *tapConn) wire() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return bytes.Clone(c.written.Bytes())
}

type handshakeResult struct {
	channel mq.Channel
	err     error
}

// handshake runs both sides over clientConn and serverConn. A side
// that fails closes its connection, as the socket does.
func handshake(client, server mq.Mechanism, clientConn, serverConn net.Conn) (mq.Channel, error, mq.Channel, error) {
	done := make(chan handshakeResult, 1)
	go func() {
		channel, err := server.Handshake(serverConn, false)
		if err != nil {
			serverConn.Close()
		}
		done <- handshakeResult{channel, err}
	}()
	clientChannel, clientErr := client.Handshake(clientConn, true)
	if clientErr != nil {
		clientConn.Close()
	}
	result := <-done
	return clientChannel, clientErr, result.channel, result.err
}

func TestHandshake_ExchangesMessages(t *testing.T) {
	serverKeys := generate(t)
	clientKeys := generate(t)

	var seen PublicKey
	server, err := ServerMechanism(serverKeys, AuthenticatorFunc(func(key PublicKey) bool {
		seen = key
		return true
	}))
	if err != nil {
		t.Fatalf("ServerMechanism: %v", err)
	}
	client, err := ClientMechanism(clientKeys, serverKeys.Public)
	if err != nil {
		t.Fatalf("ClientMechanism: %v", err)
	}

	clientConn, serverConn := connPair(t)
	tap := &tapConn{Conn: clientConn}
	clientChannel, clientErr, serverChannel, serverErr := handshake(client, server, tap, serverConn)
	if clientErr != nil || serverErr != nil {
		t.Fatalf("handshake: client %v, server %v", clientErr, serverErr)
	}

	if seen != clientKeys.Public {
		t.Error("authenticator saw a different client key")
	}
	if !bytes.Equal(serverChannel.PeerKey(), clientKeys.Public[:]) {
		t.Error("server channel peer key is not the client key")
	}
	if !bytes.Equal(clientChannel.PeerKey(), serverKeys.Public[:]) {
		t.Error("client channel peer key is not the server key")
	}

	for _, text := range []string{"first message", "", "third message"} {
		if err := clientChannel.WriteFrame([]byte(text)); err != nil {
			t.Fatalf("WriteFrame: %v", err)
		}
		frame, err := serverChannel.ReadFrame()
		if err != nil {
			t.Fatalf("ReadFrame: %v", err)
		}
		if string(frame) != text {
			t.Fatalf("ReadFrame = %q, want %q", frame, text)
		}
		if text != "" && bytes.Contains(tap.wire(), []byte(text)) {
			t.Fatalf("plaintext %q crossed the wire", text)
		}
	}

	if err := serverChannel.WriteFrame([]byte("reply")); err != nil {
		t.Fatalf("server WriteFrame: %v", err)
	}
	frame, err := clientChannel.ReadFrame()
	if err != nil || string(frame) != "reply" {
		t.Fatalf("client ReadFrame = %q, %v", frame, err)
	}
}

func TestHandshake_DeniedClient(t *testing.T) {
	serverKeys := generate(t)
	clientKeys := generate(t)

	server, err := ServerMechanism(serverKeys, AuthenticatorFunc(func(PublicKey) bool { return false }))
	if err != nil {
		t.Fatal(err)
	}
	client, err := ClientMechanism(clientKeys, serverKeys.Public)
	if err != nil {
		t.Fatal(err)
	}

	clientConn, serverConn := connPair(t)
	_, clientErr, _, serverErr := handshake(client, server, clientConn, serverConn)
	if !errors.Is(serverErr, ErrPeerDenied) {
		t.Errorf("server error = %v, want ErrPeerDenied", serverErr)
	}
	if !errors.Is(clientErr, ErrHandshake) {
		t.Errorf("client error = %v, want ErrHandshake", clientErr)
	}
}

func TestHandshake_WrongServerKey(t *testing.T) {
	serverKeys := generate(t)
	impostor := generate(t)
	clientKeys := generate(t)

	server, err := ServerMechanism(serverKeys, nil)
	if err != nil {
		t.Fatal(err)
	}
	client, err := ClientMechanism(clientKeys, impostor.Public)
	if err != nil {
		t.Fatal(err)
	}

	clientConn, serverConn := connPair(t)
	_, clientErr, _, serverErr := handshake(client, server, clientConn, serverConn)
	if !errors.Is(serverErr, ErrHandshake) {
		t.Errorf("server error = %v, want ErrHandshake", serverErr)
	}
	if clientErr == nil {
		t.Error("client handshake succeeded against the wrong server key")
	}
}

func TestHandshake_WrongSide(t *testing.T) {
	keys := generate(t)
	server, err := ServerMechanism(keys, nil)
	if err != nil {
		t.Fatal(err)
	}
	client, err := ClientMechanism(keys, keys.Public)
	if err != nil {
		t.Fatal(err)
	}
	conn, _ := connPair(t)
	if _, err := server.Handshake(conn, true); !errors.Is(err, ErrHandshake) {
		t.Errorf("server mechanism dialing: error = %v, want ErrHandshake", err)
	}
	if _, err := client.Handshake(conn, false); !errors.Is(err, ErrHandshake) {
		t.Errorf("client mechanism accepting: error = %v, want ErrHandshake", err)
	}
}

func TestMechanism_RequiresKeys(t *testing.T) {
	keys := generate(t)

	if _, err := ServerMechanism(nil, nil); !errors.Is(err, ErrMissingKey) {
		t.Errorf("ServerMechanism(nil) error = %v, want ErrMissingKey", err)
	}
	if _, err := ClientMechanism(keys, PublicKey{}); !errors.Is(err, ErrMissingKey) {
		t.Errorf("ClientMechanism without server key error = %v, want ErrMissingKey", err)
	}
	if _, err := ClientMechanism(&KeyPair{Public: keys.Public}, keys.Public); !errors.Is(err, ErrMissingKey) {
		t.Errorf("ClientMechanism without secret error = %v, want ErrMissingKey", err)
	}
}
