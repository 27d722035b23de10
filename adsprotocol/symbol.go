package adsprotocol

import (
	"encoding/binary"
)

// symbolEntryFixed is the size of the fixed part of a symbol entry.
const symbolEntryFixed = 30

// SymbolInfo describes one variable of the target's symbol table.
type SymbolInfo struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Comment     string `json:"comment,omitempty"`
	IndexGroup  uint32 `json:"indexGroup"`
	IndexOffset uint32 `json:"indexOffset"`
	Size        uint32 `json:"size"`
	DataType    uint32 `json:"dataType"`
	Flags       uint32 `json:"flags"`
}

// Marshal encodes the entry the way SYM_UPLOAD and SYM_INFOBYNAMEEX return it.
func (s SymbolInfo) Marshal() []byte {
	n := symbolEntryFixed + len(s.Name) + 1 + len(s.Type) + 1 + len(s.Comment) + 1
	buf := make([]byte, n)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(n))
	binary.LittleEndian.PutUint32(buf[4:8], s.IndexGroup)
	binary.LittleEndian.PutUint32(buf[8:12], s.IndexOffset)
	binary.LittleEndian.PutUint32(buf[12:16], s.Size)
	binary.LittleEndian.PutUint32(buf[16:20], s.DataType)
	binary.LittleEndian.PutUint32(buf[20:24], s.Flags)
	binary.LittleEndian.PutUint16(buf[24:26], uint16(len(s.Name)))
	binary.LittleEndian.PutUint16(buf[26:28], uint16(len(s.Type)))
	binary.LittleEndian.PutUint16(buf[28:30], uint16(len(s.Comment)))
	off := symbolEntryFixed
	off += copy(buf[off:], s.Name) + 1
	off += copy(buf[off:], s.Type) + 1
	copy(buf[off:], s.Comment)
	return buf
}

// ParseSymbolInfo decodes one entry from the head of b and returns it
// together with the number of bytes it occupied.
func ParseSymbolInfo(b []byte) (SymbolInfo, int, error) {
	if len(b) < symbolEntryFixed {
		return SymbolInfo{}, 0, newShortPayloadError("symbol entry", symbolEntryFixed, len(b))
	}
	entryLen := int(binary.LittleEndian.Uint32(b[0:4]))
	nameLen := int(binary.LittleEndian.Uint16(b[24:26]))
	typeLen := int(binary.LittleEndian.Uint16(b[26:28]))
	commentLen := int(binary.LittleEndian.Uint16(b[28:30]))

	need := symbolEntryFixed + nameLen + 1 + typeLen + 1 + commentLen + 1
	if entryLen < need {
		entryLen = need
	}
	if len(b) < need {
		return SymbolInfo{}, 0, newShortPayloadError("symbol entry strings", need, len(b))
	}

	off := symbolEntryFixed
	name := string(b[off : off+nameLen])
	off += nameLen + 1
	typ := string(b[off : off+typeLen])
	off += typeLen + 1
	comment := string(b[off : off+commentLen])

	if entryLen > len(b) {
		entryLen = len(b)
	}
	return SymbolInfo{
		Name:        name,
		Type:        typ,
		Comment:     comment,
		IndexGroup:  binary.LittleEndian.Uint32(b[4:8]),
		IndexOffset: binary.LittleEndian.Uint32(b[8:12]),
		Size:        binary.LittleEndian.Uint32(b[12:16]),
		DataType:    binary.LittleEndian.Uint32(b[16:20]),
		Flags:       binary.LittleEndian.Uint32(b[20:24]),
	}, entryLen, nil
}

// ParseSymbolTable decodes count consecutive entries of a symbol upload.
func ParseSymbolTable(b []byte, count int) ([]SymbolInfo, error) {
	symbols := make([]SymbolInfo, 0, count)
	for i := 0; i < count; i++ {
		info, n, err := ParseSymbolInfo(b)
		if err != nil {
			return symbols, err
		}
		symbols = append(symbols, info)
		b = b[n:]
	}
	return symbols, nil
}

// UploadInfo is returned by SYM_UPLOADINFO and sizes the symbol upload.
type UploadInfo struct {
	SymbolCount  uint32
	SymbolLength uint32
}

// Marshal encodes the upload info block.
func (u UploadInfo) Marshal() []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint32(buf[0:4], u.SymbolCount)
	binary.LittleEndian.PutUint32(buf[4:8], u.SymbolLength)
	return buf
}

// ParseUploadInfo decodes an upload info block.
func ParseUploadInfo(b []byte) (UploadInfo, error) {
	if len(b) < 8 {
		return UploadInfo{}, newShortPayloadError("upload info", 8, len(b))
	}
	return UploadInfo{
		SymbolCount:  binary.LittleEndian.Uint32(b[0:4]),
		SymbolLength: binary.LittleEndian.Uint32(b[4:8]),
	}, nil
}

// SymbolRequest names a variable for the symbolic read/write calls of
// Client. Value is filled in by reads and consumed by writes.
type SymbolRequest struct {
	SymName string `json:"symname"`
	Value   any    `json:"value,omitempty"`
	Type    string `json:"type,omitempty"`
	Size    uint32 `json:"bytelength,omitempty"`
}
