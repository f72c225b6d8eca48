// Copyright 2026 The SDMS Authors
// SPDX-License-Identifier: Apache-2.0

package mq

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
)

const (
	flagMore = 1 << 0
	flagLong = 1 << 1

	// MaxRecordSize bounds a single unencrypted record: a 64 MiB
	// message plus room for routing parts.
	MaxRecordSize = 64<<20 + 64<<10
)

// recordConn reads and writes size-prefixed records on a connection.
// It is the Channel of the NULL mechanism.
type recordConn struct {
	conn   net.Conn
	reader *bufio.Reader
}

func newRecordConn(conn net.Conn) *recordConn {
	return &recordConn{conn: conn, reader: bufio.NewReader(conn)}
}

// ReadFrame returns io.EOF when the peer closed between records and
// ErrPartialMessage when it closed inside one.
func (c *recordConn) ReadFrame() ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(c.reader, header[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrPartialMessage
		}
		return nil, err
	}
	size := binary.BigEndian.Uint32(header[:])
	if size > MaxRecordSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrRecordTooLarge, size)
	}
	record := make([]byte, size)
	if _, err := io.ReadFull(c.reader, record); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrPartialMessage
		}
		return nil, err
	}
	return record, nil
}

func (c *recordConn) WriteFrame(record []byte) error {
	if len(record) > MaxRecordSize {
		return fmt.Errorf("%w: %d bytes", ErrRecordTooLarge, len(record))
	}
	buffer := make([]byte, 4, 4+len(record))
	binary.BigEndian.PutUint32(buffer, uint32(len(record)))
	buffer = append(buffer, record...)
	_, err := c.conn.Write(buffer)
	return err
}

func (c *recordConn) PeerKey() []byte { return nil }

func (c *recordConn) Close() error { return c.conn.Close() }

func encodeParts(parts [][]byte) []byte {
	size := 0
	for _, part := range parts {
		size += 9 + len(part)
	}
	out := make([]byte, 0, size)
	for index, part := range parts {
		var flags byte
		if index < len(parts)-1 {
			flags |= flagMore
		}
		if len(part) > 255 {
			out = append(out, flags|flagLong)
			out = binary.BigEndian.AppendUint64(out, uint64(len(part)))
		} else {
			out = append(out, flags, byte(len(part)))
		}
		out = append(out, part...)
	}
	return out
}

// decodeParts splits a payload into parts. A payload whose last part
// still carries MORE was cut short by the sender and reports
// ErrPartialMessage.
func decodeParts(payload []byte) ([][]byte, error) {
	var parts [][]byte
	for len(payload) > 0 {
		flags := payload[0]
		payload = payload[1:]

		var size uint64
		if flags&flagLong != 0 {
			if len(payload) < 8 {
				return nil, ErrPartialMessage
			}
			size = binary.BigEndian.Uint64(payload)
			payload = payload[8:]
		} else {
			if len(payload) < 1 {
				return nil, ErrPartialMessage
			}
			size = uint64(payload[0])
			payload = payload[1:]
		}
		if size > uint64(len(payload)) {
			return nil, ErrPartialMessage
		}
		parts = append(parts, payload[:size:size])
		payload = payload[size:]

		if flags&flagMore == 0 {
			if len(payload) != 0 {
				return nil, fmt.Errorf("%w: %d bytes after final part", ErrMalformed, len(payload))
			}
			return parts, nil
		}
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrMalformed)
	}
	return nil, ErrPartialMessage
}
