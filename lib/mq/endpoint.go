// Copyright 2026 The SDMS Authors
// SPDX-License-Identifier: Apache-2.0

package mq

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// Endpoint is a parsed transport address.
type Endpoint struct {
	Scheme  string // "tcp", "ipc" or "inproc"
	Address string
}

func (e Endpoint) String() string {
	return e.Scheme + "://" + e.Address
}

// ParseEndpoint parses tcp://host:port, ipc:///path or inproc://name.
// A "*" host in a tcp endpoint means all interfaces.
func ParseEndpoint(endpoint string) (Endpoint, error) {
	scheme, address, ok := strings.Cut(endpoint, "://")
	if !ok || address == "" {
		return Endpoint{}, fmt.Errorf("%w: %q", ErrUnsupportedEndpoint, endpoint)
	}
	switch scheme {
	case "tcp":
		host, port, err := net.SplitHostPort(address)
		if err != nil {
			return Endpoint{}, fmt.Errorf("%w: %q: %v", ErrUnsupportedEndpoint, endpoint, err)
		}
		if host == "*" {
			address = net.JoinHostPort("", port)
		}
	case "ipc", "inproc":
	default:
		return Endpoint{}, fmt.Errorf("%w: scheme %q", ErrUnsupportedEndpoint, scheme)
	}
	return Endpoint{Scheme: scheme, Address: address}, nil
}

func listen(endpoint Endpoint, keepAlive time.Duration) (net.Listener, error) {
	switch endpoint.Scheme {
	case "tcp":
		config := net.ListenConfig{KeepAlive: keepAlive}
		return config.Listen(context.Background(), "tcp", endpoint.Address)
	case "ipc":
		// A socket file left by a previous process would make bind fail.
		if info, err := os.Stat(endpoint.Address); err == nil && info.Mode()&os.ModeSocket != 0 {
			os.Remove(endpoint.Address)
		}
		return net.Listen("unix", endpoint.Address)
	case "inproc":
		return listenInproc(endpoint.Address)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedEndpoint, endpoint)
}

func dial(ctx context.Context, endpoint Endpoint, keepAlive time.Duration) (net.Conn, error) {
	switch endpoint.Scheme {
	case "tcp":
		dialer := net.Dialer{KeepAlive: keepAlive}
		return dialer.DialContext(ctx, "tcp", endpoint.Address)
	case "ipc":
		var dialer net.Dialer
		return dialer.DialContext(ctx, "unix", endpoint.Address)
	case "inproc":
		return dialInproc(ctx, endpoint.Address)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedEndpoint, endpoint)
}

// boundEndpoint returns the endpoint string a listener actually
// bound, resolving an ephemeral tcp port.
func boundEndpoint(endpoint Endpoint, listener net.Listener) string {
	if endpoint.Scheme == "tcp" {
		return "tcp://" + listener.Addr().String()
	}
	return endpoint.String()
}

var inprocRegistry = struct {
	sync.Mutex
	listeners map[string]*inprocListener
}{listeners: make(map[string]*inprocListener)}

type inprocAddr string

func (inprocAddr) Network() string  { return "inproc" }
func (a inprocAddr) String() string { return string(a) }

type inprocListener struct {
	name      string
	conns     chan net.Conn
	closed    chan struct{}
	closeOnce sync.Once
}

func listenInproc(name string) (*inprocListener, error) {
	inprocRegistry.Lock()
	defer inprocRegistry.Unlock()
	if _, exists := inprocRegistry.listeners[name]; exists {
		return nil, fmt.Errorf("%w: inproc://%s", ErrAddressInUse, name)
	}
	listener := &inprocListener{
		name:   name,
		conns:  make(chan net.Conn),
		closed: make(chan struct{}),
	}
	inprocRegistry.listeners[name] = listener
	return listener, nil
}

func (l *inprocListener) Accept() (net.Conn, error) {
	select {
	case conn := <-l.conns:
		return conn, nil
	case <-l.closed:
		return nil, net.ErrClosed
	}
}

func (l *inprocListener) Close() error {
	l.closeOnce.Do(func() {
		inprocRegistry.Lock()
		if inprocRegistry.listeners[l.name] == l {
			delete(inprocRegistry.listeners, l.name)
		}
		inprocRegistry.Unlock()
		close(l.closed)
	})
	return nil
}

func (l *inprocListener) Addr() net.Addr { return inprocAddr(l.name) }

func dialInproc(ctx context.Context, name string) (net.Conn, error) {
	inprocRegistry.Lock()
	listener := inprocRegistry.listeners[name]
	inprocRegistry.Unlock()
	if listener == nil {
		return nil, fmt.Errorf("%w: inproc://%s", ErrConnectionRefused, name)
	}

	client, server, err := socketPair()
	if err != nil {
		return nil, fmt.Errorf("inproc://%s: %w", name, err)
	}
	select {
	case listener.conns <- server:
		return client, nil
	case <-listener.closed:
	case <-ctx.Done():
	}
	client.Close()
	server.Close()
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return nil, fmt.Errorf("%w: inproc://%s", ErrConnectionRefused, name)
}

// socketPair returns the two ends of a connected AF_UNIX stream pair.
// Unlike net.Pipe the kernel buffers writes, so both sides may send
// their greeting before either reads.
func socketPair() (net.Conn, net.Conn, error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, nil, os.NewSyscallError("socketpair", err)
	}
	client, err := fileConn(fds[0], "inproc-client")
	if err != nil {
		unix.Close(fds[1])
		return nil, nil, err
	}
	server, err := fileConn(fds[1], "inproc-server")
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	return client, server, nil
}

// fileConn converts fd into a net.Conn. net.FileConn duplicates the
// descriptor, so the original is closed here.
func fileConn(fd int, name string) (net.Conn, error) {
	file := os.NewFile(uintptr(fd), name)
	defer file.Close()
	return net.FileConn(file)
}

// isClosedError reports errors that mean the connection or listener
// was shut down rather than failed.
func isClosedError(err error) bool {
	return errors.Is(err, net.ErrClosed) || errors.Is(err, os.ErrClosed)
}
