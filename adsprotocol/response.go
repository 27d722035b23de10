package adsprotocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// DeviceInfo is the identity block returned by ReadDeviceInfo.
type DeviceInfo struct {
	MajorVersion uint8  `json:"majorVersion"`
	MinorVersion uint8  `json:"minorVersion"`
	VersionBuild uint16 `json:"versionBuild"`
	DeviceName   string `json:"deviceName"`
}

// Version formats the runtime version as major.minor.build.
func (d DeviceInfo) Version() string {
	return fmt.Sprintf("%d.%d.%d", d.MajorVersion, d.MinorVersion, d.VersionBuild)
}

// StateInfo is the payload returned by ReadState.
type StateInfo struct {
	AdsState     AdsState `json:"adsState"`
	AdsStateName string   `json:"adsStateStr"`
	DeviceState  uint16   `json:"deviceState"`
}

// EncodeDeviceInfoResponse builds a ReadDeviceInfo response payload.
func EncodeDeviceInfoResponse(result uint32, info DeviceInfo) []byte {
	buf := make([]byte, 24)
	binary.LittleEndian.PutUint32(buf[0:4], result)
	buf[4] = info.MajorVersion
	buf[5] = info.MinorVersion
	binary.LittleEndian.PutUint16(buf[6:8], info.VersionBuild)
	copy(buf[8:24], info.DeviceName)
	return buf
}

// ParseDeviceInfoResponse decodes a ReadDeviceInfo response payload.
func ParseDeviceInfoResponse(b []byte) (DeviceInfo, error) {
	if err := parseResult(b); err != nil {
		return DeviceInfo{}, err
	}
	if len(b) < 24 {
		return DeviceInfo{}, newShortPayloadError("device info", 24, len(b))
	}
	return DeviceInfo{
		MajorVersion: b[4],
		MinorVersion: b[5],
		VersionBuild: binary.LittleEndian.Uint16(b[6:8]),
		DeviceName:   cString(b[8:24]),
	}, nil
}

// EncodeStateResponse builds a ReadState response payload.
func EncodeStateResponse(result uint32, state AdsState, deviceState uint16) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint32(buf[0:4], result)
	binary.LittleEndian.PutUint16(buf[4:6], uint16(state))
	binary.LittleEndian.PutUint16(buf[6:8], deviceState)
	return buf
}

// ParseStateResponse decodes a ReadState response payload.
func ParseStateResponse(b []byte) (StateInfo, error) {
	if err := parseResult(b); err != nil {
		return StateInfo{}, err
	}
	if len(b) < 8 {
		return StateInfo{}, newShortPayloadError("state", 8, len(b))
	}
	state := AdsState(binary.LittleEndian.Uint16(b[4:6]))
	return StateInfo{
		AdsState:     state,
		AdsStateName: state.String(),
		DeviceState:  binary.LittleEndian.Uint16(b[6:8]),
	}, nil
}

// EncodeReadResponse builds a Read or ReadWrite response payload.
func EncodeReadResponse(result uint32, data []byte) []byte {
	buf := make([]byte, 8+len(data))
	binary.LittleEndian.PutUint32(buf[0:4], result)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(data)))
	copy(buf[8:], data)
	return buf
}

// ParseReadResponse decodes a Read or ReadWrite response payload.
func ParseReadResponse(b []byte) ([]byte, error) {
	if err := parseResult(b); err != nil {
		return nil, err
	}
	if len(b) < 8 {
		return nil, newShortPayloadError("read response", 8, len(b))
	}
	n := int(binary.LittleEndian.Uint32(b[4:8]))
	if len(b) < 8+n {
		return nil, newShortPayloadError("read response data", 8+n, len(b))
	}
	return b[8 : 8+n], nil
}

// EncodeWriteResponse builds a Write response payload.
func EncodeWriteResponse(result uint32) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, result)
	return buf
}

// ParseWriteResponse decodes a Write response payload.
func ParseWriteResponse(b []byte) error {
	return parseResult(b)
}

// parseResult extracts the leading ADS result code of a response payload.
func parseResult(b []byte) error {
	if len(b) < 4 {
		return newShortPayloadError("result code", 4, len(b))
	}
	return NewAdsError(binary.LittleEndian.Uint32(b[0:4]))
}

// parseSumResults collapses the per-item result codes of a sum-up response
// into a single aggregate error.
func parseSumResults(b []byte, count int) error {
	if len(b) < 4*count {
		return newShortPayloadError("sum results", 4*count, len(b))
	}
	var agg *SumError
	for i := 0; i < count; i++ {
		code := binary.LittleEndian.Uint32(b[i*4:])
		if code == 0 {
			continue
		}
		if agg == nil {
			agg = &SumError{Total: count, First: &AdsError{Code: code}}
		}
		agg.Failed++
	}
	if agg != nil {
		return agg
	}
	return nil
}

func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}
