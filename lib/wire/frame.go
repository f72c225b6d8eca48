// Copyright 2026 The SDMS Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// HeaderSize is the encoded size of a Frame.
const HeaderSize = 8

// MaxMessageSize bounds Size. Larger frames are rejected before any
// body allocation happens.
const MaxMessageSize = 64 << 20

// Field offsets within the header.
const (
	offsetSize    = 0
	offsetProtoID = 4
	offsetMsgID   = 5
	offsetContext = 6
)

var (
	// ErrShortHeader is returned when fewer than HeaderSize bytes are
	// available.
	ErrShortHeader = errors.New("wire: truncated frame header")

	// ErrHeaderSize is returned when the header's Size field is below
	// HeaderSize or above MaxMessageSize.
	ErrHeaderSize = errors.New("wire: invalid frame size")

	// ErrBodyLength is returned when the bytes following a header do
	// not match the length its Size field announces.
	ErrBodyLength = errors.New("wire: body length does not match frame size")
)

// Frame is the decoded form of the 8-byte header.
type Frame struct {
	// Size is the header plus body length in bytes.
	Size    uint32
	ProtoID uint8
	MsgID   uint8
	Context uint16
}

// NewFrame returns a Frame describing a body of bodyLen bytes.
func NewFrame(protoID, msgID uint8, context uint16, bodyLen int) Frame {
	return Frame{
		Size:    uint32(HeaderSize + bodyLen),
		ProtoID: protoID,
		MsgID:   msgID,
		Context: context,
	}
}

// BodyLen returns the body length implied by Size. It is zero for
// frames whose Size is invalid.
func (f Frame) BodyLen() int {
	if f.Size < HeaderSize {
		return 0
	}
	return int(f.Size - HeaderSize)
}

// HasBody reports whether a body part follows the header.
func (f Frame) HasBody() bool { return f.BodyLen() > 0 }

// AppendHeader appends the encoded header to dst.
func (f Frame) AppendHeader(dst []byte) []byte {
	var header [HeaderSize]byte
	f.put(header[:])
	return append(dst, header[:]...)
}

// MarshalBinary returns the encoded header.
func (f Frame) MarshalBinary() ([]byte, error) {
	return f.AppendHeader(make([]byte, 0, HeaderSize)), nil
}

// UnmarshalBinary decodes an exactly-HeaderSize-byte header.
func (f *Frame) UnmarshalBinary(data []byte) error {
	if len(data) != HeaderSize {
		return fmt.Errorf("%w: header part is %d bytes, want %d", ErrHeaderSize, len(data), HeaderSize)
	}
	parsed, err := ParseHeader(data)
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

func (f Frame) put(b []byte) {
	binary.BigEndian.PutUint32(b[offsetSize:], f.Size)
	b[offsetProtoID] = f.ProtoID
	b[offsetMsgID] = f.MsgID
	binary.BigEndian.PutUint16(b[offsetContext:], f.Context)
}

// ParseHeader decodes the header at the start of b. Bytes after the
// header are ignored.
func ParseHeader(b []byte) (Frame, error) {
	if len(b) < HeaderSize {
		return Frame{}, fmt.Errorf("%w: have %d bytes", ErrShortHeader, len(b))
	}
	f := Frame{
		Size:    binary.BigEndian.Uint32(b[offsetSize:]),
		ProtoID: b[offsetProtoID],
		MsgID:   b[offsetMsgID],
		Context: binary.BigEndian.Uint16(b[offsetContext:]),
	}
	if f.Size < HeaderSize || f.Size > MaxMessageSize {
		return Frame{}, fmt.Errorf("%w: %d", ErrHeaderSize, f.Size)
	}
	return f, nil
}

func (f Frame) String() string {
	return fmt.Sprintf("frame(size=%d proto=%d msg=%d ctx=%d)", f.Size, f.ProtoID, f.MsgID, f.Context)
}
