package adsprotocol

import (
	"encoding/binary"
)

// Header is the AMS header that precedes every ADS payload.
type Header struct {
	Target     Addr
	Source     Addr
	Command    CommandID
	StateFlags uint16
	Length     uint32
	ErrorCode  uint32
	InvokeID   uint32
}

// IsResponse reports whether the header belongs to a response frame.
func (h Header) IsResponse() bool {
	return h.StateFlags&stateFlagResponseBit != 0
}

// Frame is one AMS/TCP packet: header plus ADS payload.
type Frame struct {
	Header Header
	Data   []byte
}

// NewRequestFrame builds a request frame from source to target.
func NewRequestFrame(target, source Addr, cmd CommandID, invokeID uint32, data []byte) Frame {
	return Frame{
		Header: Header{
			Target:     target,
			Source:     source,
			Command:    cmd,
			StateFlags: StateFlagRequest,
			Length:     uint32(len(data)),
			InvokeID:   invokeID,
		},
		Data: data,
	}
}

// Reply builds the response frame answering f with the given payload.
func (f Frame) Reply(data []byte) Frame {
	return Frame{
		Header: Header{
			Target:     f.Header.Source,
			Source:     f.Header.Target,
			Command:    f.Header.Command,
			StateFlags: StateFlagResponse,
			Length:     uint32(len(data)),
			InvokeID:   f.Header.InvokeID,
		},
		Data: data,
	}
}

// Marshal encodes the frame including the AMS/TCP header.
func (f Frame) Marshal() []byte {
	buf := make([]byte, TCPHeaderLength+AMSHeaderLength+len(f.Data))
	binary.LittleEndian.PutUint32(buf[2:6], uint32(AMSHeaderLength+len(f.Data)))

	h := buf[TCPHeaderLength:]
	copy(h[0:6], f.Header.Target.NetID[:])
	binary.LittleEndian.PutUint16(h[6:8], f.Header.Target.Port)
	copy(h[8:14], f.Header.Source.NetID[:])
	binary.LittleEndian.PutUint16(h[14:16], f.Header.Source.Port)
	binary.LittleEndian.PutUint16(h[16:18], uint16(f.Header.Command))
	binary.LittleEndian.PutUint16(h[18:20], f.Header.StateFlags)
	binary.LittleEndian.PutUint32(h[20:24], uint32(len(f.Data)))
	binary.LittleEndian.PutUint32(h[24:28], f.Header.ErrorCode)
	binary.LittleEndian.PutUint32(h[28:32], f.Header.InvokeID)
	copy(h[AMSHeaderLength:], f.Data)
	return buf
}

// ReadRequest is the payload of an ADS Read.
type ReadRequest struct {
	IndexGroup  uint32
	IndexOffset uint32
	Length      uint32
}

// Marshal encodes the request payload.
func (r ReadRequest) Marshal() []byte {
	buf := make([]byte, 12)
	binary.LittleEndian.PutUint32(buf[0:4], r.IndexGroup)
	binary.LittleEndian.PutUint32(buf[4:8], r.IndexOffset)
	binary.LittleEndian.PutUint32(buf[8:12], r.Length)
	return buf
}

// ParseReadRequest decodes a Read payload.
func ParseReadRequest(b []byte) (ReadRequest, error) {
	if len(b) < 12 {
		return ReadRequest{}, newShortPayloadError("read request", 12, len(b))
	}
	return ReadRequest{
		IndexGroup:  binary.LittleEndian.Uint32(b[0:4]),
		IndexOffset: binary.LittleEndian.Uint32(b[4:8]),
		Length:      binary.LittleEndian.Uint32(b[8:12]),
	}, nil
}

// WriteRequest is the payload of an ADS Write.
type WriteRequest struct {
	IndexGroup  uint32
	IndexOffset uint32
	Data        []byte
}

// Marshal encodes the request payload.
func (r WriteRequest) Marshal() []byte {
	buf := make([]byte, 12+len(r.Data))
	binary.LittleEndian.PutUint32(buf[0:4], r.IndexGroup)
	binary.LittleEndian.PutUint32(buf[4:8], r.IndexOffset)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(len(r.Data)))
	copy(buf[12:], r.Data)
	return buf
}

// ParseWriteRequest decodes a Write payload.
func ParseWriteRequest(b []byte) (WriteRequest, error) {
	if len(b) < 12 {
		return WriteRequest{}, newShortPayloadError("write request", 12, len(b))
	}
	n := int(binary.LittleEndian.Uint32(b[8:12]))
	if len(b) < 12+n {
		return WriteRequest{}, newShortPayloadError("write request data", 12+n, len(b))
	}
	return WriteRequest{
		IndexGroup:  binary.LittleEndian.Uint32(b[0:4]),
		IndexOffset: binary.LittleEndian.Uint32(b[4:8]),
		Data:        b[12 : 12+n],
	}, nil
}

// ReadWriteRequest is the payload of an ADS ReadWrite.
type ReadWriteRequest struct {
	IndexGroup  uint32
	IndexOffset uint32
	ReadLength  uint32
	Data        []byte
}

// Marshal encodes the request payload.
func (r ReadWriteRequest) Marshal() []byte {
	buf := make([]byte, 16+len(r.Data))
	binary.LittleEndian.PutUint32(buf[0:4], r.IndexGroup)
	binary.LittleEndian.PutUint32(buf[4:8], r.IndexOffset)
	binary.LittleEndian.PutUint32(buf[8:12], r.ReadLength)
	binary.LittleEndian.PutUint32(buf[12:16], uint32(len(r.Data)))
	copy(buf[16:], r.Data)
	return buf
}

// ParseReadWriteRequest decodes a ReadWrite payload.
func ParseReadWriteRequest(b []byte) (ReadWriteRequest, error) {
	if len(b) < 16 {
		return ReadWriteRequest{}, newShortPayloadError("read/write request", 16, len(b))
	}
	n := int(binary.LittleEndian.Uint32(b[12:16]))
	if len(b) < 16+n {
		return ReadWriteRequest{}, newShortPayloadError("read/write request data", 16+n, len(b))
	}
	return ReadWriteRequest{
		IndexGroup:  binary.LittleEndian.Uint32(b[0:4]),
		IndexOffset: binary.LittleEndian.Uint32(b[4:8]),
		ReadLength:  binary.LittleEndian.Uint32(b[8:12]),
		Data:        b[16 : 16+n],
	}, nil
}

// SumItem addresses one variable inside a sum-up read or write.
type SumItem struct {
	IndexGroup  uint32
	IndexOffset uint32
	Length      uint32
}

// MarshalSumItems encodes the item table shared by sum-up reads and writes.
func MarshalSumItems(items []SumItem) []byte {
	buf := make([]byte, 0, 12*len(items))
	for _, it := range items {
		buf = append(buf, ReadRequest(it).Marshal()...)
	}
	return buf
}

// ParseSumItems decodes count items from the head of b.
func ParseSumItems(b []byte, count int) ([]SumItem, error) {
	if len(b) < 12*count {
		return nil, newShortPayloadError("sum item table", 12*count, len(b))
	}
	items := make([]SumItem, count)
	for i := range items {
		r, _ := ParseReadRequest(b[i*12:])
		items[i] = SumItem(r)
	}
	return items, nil
}
