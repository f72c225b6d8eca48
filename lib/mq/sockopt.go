// Copyright 2026 The SDMS Authors
// SPDX-License-Identifier: Apache-2.0

package mq

import (
	"net"
	"time"

	"golang.org/x/sys/unix"
)

// configureTCP applies keepalive and low-latency settings to TCP
// connections. Other connection types are left alone.
func configureTCP(conn net.Conn, keepAlive time.Duration, lowLatency bool) error {
	tcp, ok := conn.(*net.TCPConn)
	if !ok {
		return nil
	}
	raw, err := tcp.SyscallConn()
	if err != nil {
		return err
	}
	seconds := int(keepAlive / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	var sockErr error
	err = raw.Control(func(fd uintptr) {
		if sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_KEEPALIVE, 1); sockErr != nil {
			return
		}
		if sockErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_KEEPIDLE, seconds); sockErr != nil {
			return
		}
		if sockErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_KEEPINTVL, seconds); sockErr != nil {
			return
		}
		sockErr = setNoDelay(fd, lowLatency)
	})
	if err != nil {
		return err
	}
	return sockErr
}

// setLowLatency toggles TCP_NODELAY on a TCP connection.
func setLowLatency(conn net.Conn, enabled bool) error {
	tcp, ok := conn.(*net.TCPConn)
	if !ok {
		return nil
	}
	raw, err := tcp.SyscallConn()
	if err != nil {
		return err
	}
	var sockErr error
	if err := raw.Control(func(fd uintptr) { sockErr = setNoDelay(fd, enabled) }); err != nil {
		return err
	}
	return sockErr
}

func setNoDelay(fd uintptr, enabled bool) error {
	value := 0
	if enabled {
		value = 1
	}
	return unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_NODELAY, value)
}
