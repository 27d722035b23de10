package adsprotocol

import (
	"encoding/binary"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// ADS data type identifiers as they appear in symbol entries.
const (
	DataTypeVoid   uint32 = 0
	DataTypeInt16  uint32 = 2
	DataTypeInt32  uint32 = 3
	DataTypeReal32 uint32 = 4
	DataTypeReal64 uint32 = 5
	DataTypeInt8   uint32 = 16
	DataTypeUint8  uint32 = 17
	DataTypeUint16 uint32 = 18
	DataTypeUint32 uint32 = 19
	DataTypeInt64  uint32 = 20
	DataTypeUint64 uint32 = 21
	DataTypeString uint32 = 30
	DataTypeBit    uint32 = 33
)

// defaultStringLength is the byte size of a plain STRING (80 chars + NUL).
const defaultStringLength = 81

type valueKind int

const (
	kindBool valueKind = iota
	kindInt
	kindUint
	kindFloat
	kindString
)

type plcType struct {
	kind     valueKind
	size     uint32
	dataType uint32
}

var plcTypes = map[string]plcType{
	"BOOL":  {kindBool, 1, DataTypeBit},
	"BYTE":  {kindUint, 1, DataTypeUint8},
	"USINT": {kindUint, 1, DataTypeUint8},
	"SINT":  {kindInt, 1, DataTypeInt8},
	"WORD":  {kindUint, 2, DataTypeUint16},
	"UINT":  {kindUint, 2, DataTypeUint16},
	"INT":   {kindInt, 2, DataTypeInt16},
	"DWORD": {kindUint, 4, DataTypeUint32},
	"UDINT": {kindUint, 4, DataTypeUint32},
	"DINT":  {kindInt, 4, DataTypeInt32},
	"TIME":  {kindUint, 4, DataTypeUint32},
	"TOD":   {kindUint, 4, DataTypeUint32},
	"DATE":  {kindUint, 4, DataTypeUint32},
	"DT":    {kindUint, 4, DataTypeUint32},
	"LWORD": {kindUint, 8, DataTypeUint64},
	"ULINT": {kindUint, 8, DataTypeUint64},
	"LINT":  {kindInt, 8, DataTypeInt64},
	"REAL":  {kindFloat, 4, DataTypeReal32},
	"LREAL": {kindFloat, 8, DataTypeReal64},
}

func lookupType(name string) (plcType, error) {
	n := strings.ToUpper(strings.TrimSpace(name))
	if t, ok := plcTypes[n]; ok {
		return t, nil
	}
	if n == "STRING" {
		return plcType{kindString, defaultStringLength, DataTypeString}, nil
	}
	if strings.HasPrefix(n, "STRING(") && strings.HasSuffix(n, ")") {
		chars, err := strconv.Atoi(n[len("STRING(") : len(n)-1])
		if err != nil || chars <= 0 {
			return plcType{}, newUnsupportedTypeError(name)
		}
		return plcType{kindString, uint32(chars) + 1, DataTypeString}, nil
	}
	return plcType{}, newUnsupportedTypeError(name)
}

// TypeSize returns the byte size of a PLC elementary type.
func TypeSize(typeName string) (uint32, error) {
	t, err := lookupType(typeName)
	if err != nil {
		return 0, err
	}
	return t.size, nil
}

// TypeDataType returns the ADS data type identifier of a PLC type, or
// DataTypeVoid when the type is not an elementary one.
func TypeDataType(typeName string) uint32 {
	t, err := lookupType(typeName)
	if err != nil {
		return DataTypeVoid
	}
	return t.dataType
}

// DecodeValue converts raw bytes of the given PLC type into a Go value:
// bool, int64, uint64, float64 or string.
func DecodeValue(typeName string, data []byte) (any, error) {
	t, err := lookupType(typeName)
	if err != nil {
		return nil, err
	}
	if t.kind != kindString && uint32(len(data)) < t.size {
		return nil, newShortPayloadError(typeName, int(t.size), len(data))
	}
	switch t.kind {
	case kindBool:
		return data[0] != 0, nil
	case kindInt:
		switch t.size {
		case 1:
			return int64(int8(data[0])), nil
		case 2:
			return int64(int16(binary.LittleEndian.Uint16(data))), nil
		case 4:
			return int64(int32(binary.LittleEndian.Uint32(data))), nil
		default:
			return int64(binary.LittleEndian.Uint64(data)), nil
		}
	case kindUint:
		switch t.size {
		case 1:
			return uint64(data[0]), nil
		case 2:
			return uint64(binary.LittleEndian.Uint16(data)), nil
		case 4:
			return uint64(binary.LittleEndian.Uint32(data)), nil
		default:
			return binary.LittleEndian.Uint64(data), nil
		}
	case kindFloat:
		if t.size == 4 {
			return float64(math.Float32frombits(binary.LittleEndian.Uint32(data))), nil
		}
		return math.Float64frombits(binary.LittleEndian.Uint64(data)), nil
	default:
		return cString(data), nil
	}
}

// EncodeValue converts v into the wire representation of the PLC type.
// size overrides the type's default size when non-zero (strings).
func EncodeValue(typeName string, size uint32, v any) ([]byte, error) {
	t, err := lookupType(typeName)
	if err != nil {
		return nil, err
	}
	if size == 0 {
		size = t.size
	}
	buf := make([]byte, size)

	switch t.kind {
	case kindBool:
		b, err := toBool(v)
		if err != nil {
			return nil, err
		}
		if b {
			buf[0] = 1
		}
	case kindInt:
		n, err := toInt64(v)
		if err != nil {
			return nil, err
		}
		bits := 8 * t.size
		if bits < 64 && (n < -(1<<(bits-1)) || n > (1<<(bits-1))-1) {
			return nil, newInvalidValueError(v, "out of range for "+typeName)
		}
		putUint(buf, t.size, uint64(n))
	case kindUint:
		n, err := toUint64(v)
		if err != nil {
			return nil, err
		}
		bits := 8 * t.size
		if bits < 64 && n > (1<<bits)-1 {
			return nil, newInvalidValueError(v, "out of range for "+typeName)
		}
		putUint(buf, t.size, n)
	case kindFloat:
		f, err := toFloat64(v)
		if err != nil {
			return nil, err
		}
		if t.size == 4 {
			if !math.IsInf(f, 0) && math.Abs(f) > math.MaxFloat32 {
				return nil, newInvalidValueError(v, "out of range for "+typeName)
			}
			binary.LittleEndian.PutUint32(buf, math.Float32bits(float32(f)))
		} else {
			binary.LittleEndian.PutUint64(buf, math.Float64bits(f))
		}
	case kindString:
		s, ok := v.(string)
		if !ok {
			return nil, newInvalidValueError(v, "expected a string")
		}
		if uint32(len(s)) >= size {
			return nil, newInvalidValueError(v, "string too long for "+typeName)
		}
		copy(buf, s)
	}
	return buf, nil
}

func putUint(buf []byte, size uint32, n uint64) {
	switch size {
	case 1:
		buf[0] = byte(n)
	case 2:
		binary.LittleEndian.PutUint16(buf, uint16(n))
	case 4:
		binary.LittleEndian.PutUint32(buf, uint32(n))
	default:
		binary.LittleEndian.PutUint64(buf, n)
	}
}

func toInt64(v any) (int64, error) {
	switch x := v.(type) {
	case int:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	case uint:
		return int64(x), nil
	case uint8:
		return int64(x), nil
	case uint16:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case uint64:
		if x > math.MaxInt64 {
			return 0, newInvalidValueError(v, "out of range")
		}
		return int64(x), nil
	case float32:
		return toInt64(float64(x))
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) || x != math.Trunc(x) {
			return 0, newInvalidValueError(v, "not an integer")
		}
		// int64(x) is undefined outside [-2^63, 2^63).
		if x < -9.223372036854775808e18 || x >= 9.223372036854775808e18 {
			return 0, newInvalidValueError(v, "out of range")
		}
		return int64(x), nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case json.Number:
		return x.Int64()
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(x), 0, 64)
		if err != nil {
			return 0, newInvalidValueError(v, "not an integer")
		}
		return n, nil
	default:
		return 0, newInvalidValueError(v, "not a number")
	}
}

func toUint64(v any) (uint64, error) {
	if x, ok := v.(uint64); ok {
		return x, nil
	}
	if s, ok := v.(string); ok {
		n, err := strconv.ParseUint(strings.TrimSpace(s), 0, 64)
		if err != nil {
			return 0, newInvalidValueError(v, "not an unsigned integer")
		}
		return n, nil
	}
	n, err := toInt64(v)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, newInvalidValueError(v, "negative value for unsigned type")
	}
	return uint64(n), nil
}

func toFloat64(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case json.Number:
		return x.Float64()
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, newInvalidValueError(v, "not a number")
		}
		return f, nil
	case uint64:
		return float64(x), nil
	default:
		n, err := toInt64(v)
		if err != nil {
			return 0, err
		}
		return float64(n), nil
	}
}

func toBool(v any) (bool, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(x))
		if err != nil {
			return false, newInvalidValueError(v, "not a boolean")
		}
		return b, nil
	default:
		n, err := toInt64(v)
		if err != nil {
			return false, err
		}
		return n != 0, nil
	}
}
