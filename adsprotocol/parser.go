package adsprotocol

import (
	"bufio"
	"encoding/binary"
	"io"
)

// FrameReader reads AMS/TCP frames from a byte stream.
type FrameReader struct {
	r *bufio.Reader
}

// NewFrameReader wraps r for frame-at-a-time reading.
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{r: bufio.NewReader(r)}
}

// ReadFrame blocks until one complete frame has been read.
func (fr *FrameReader) ReadFrame() (Frame, error) {
	var tcp [TCPHeaderLength]byte
	if _, err := io.ReadFull(fr.r, tcp[:]); err != nil {
		return Frame{}, err
	}
	length := binary.LittleEndian.Uint32(tcp[2:6])
	if length > MaxFrameLength+AMSHeaderLength {
		return Frame{}, newFrameTooLargeError(length)
	}
	if length < AMSHeaderLength {
		return Frame{}, newShortPayloadError("AMS header", AMSHeaderLength, int(length))
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(fr.r, body); err != nil {
		return Frame{}, err
	}

	h, err := ParseHeader(body)
	if err != nil {
		return Frame{}, err
	}
	data := body[AMSHeaderLength:]
	if int(h.Length) > len(data) {
		return Frame{}, newShortPayloadError("AMS data", int(h.Length), len(data))
	}
	return Frame{Header: h, Data: data[:h.Length]}, nil
}

// ParseHeader decodes the 32-byte AMS header at the start of b.
func ParseHeader(b []byte) (Header, error) {
	if len(b) < AMSHeaderLength {
		return Header{}, newShortPayloadError("AMS header", AMSHeaderLength, len(b))
	}
	var h Header
	copy(h.Target.NetID[:], b[0:6])
	h.Target.Port = binary.LittleEndian.Uint16(b[6:8])
	copy(h.Source.NetID[:], b[8:14])
	h.Source.Port = binary.LittleEndian.Uint16(b[14:16])
	h.Command = CommandID(binary.LittleEndian.Uint16(b[16:18]))
	h.StateFlags = binary.LittleEndian.Uint16(b[18:20])
	h.Length = binary.LittleEndian.Uint32(b[20:24])
	h.ErrorCode = binary.LittleEndian.Uint32(b[24:28])
	h.InvokeID = binary.LittleEndian.Uint32(b[28:32])
	return h, nil
}
