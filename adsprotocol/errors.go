package adsprotocol

import (
	"errors"
	"fmt"
)

// Sentinel errors for the ADS client.
var (
	// ErrTimeout indicates a request did not settle within the configured timeout.
	ErrTimeout = errors.New("request timed out")

	// ErrNotConnected indicates an operation was attempted without a connection.
	ErrNotConnected = errors.New("not connected")

	// ErrAlreadyConnected indicates connect was called while already connected.
	ErrAlreadyConnected = errors.New("already connected")

	// ErrClosed indicates the client was closed while a request was pending.
	ErrClosed = errors.New("client closed")
)

// AdsError is a non-zero return code reported by the target device.
type AdsError struct {
	Code uint32
}

var adsErrorText = map[uint32]string{
	0x001: "internal error",
	0x006: "target port not found",
	0x007: "target machine not found",
	0x008: "unknown command ID",
	0x00A: "port not connected",
	0x00E: "invalid AMS length",
	0x012: "port disabled",
	0x013: "port already connected",
	0x700: "general device error",
	0x701: "service is not supported by server",
	0x702: "invalid index group",
	0x703: "invalid index offset",
	0x704: "reading/writing not permitted",
	0x705: "parameter size not correct",
	0x706: "invalid parameter value(s)",
	0x707: "device is not in a ready state",
	0x708: "device is busy",
	0x709: "invalid context",
	0x70A: "out of memory",
	0x70B: "invalid parameter value(s)",
	0x70C: "not found",
	0x70D: "syntax error in command or file",
	0x70E: "objects do not match",
	0x70F: "object already exists",
	0x710: "symbol not found",
	0x711: "symbol version invalid",
	0x712: "server is in an invalid state",
	0x713: "AdsTransMode not supported",
	0x714: "notification handle is invalid",
	0x715: "notification client not registered",
	0x716: "no more notification handles",
	0x717: "notification size too large",
	0x718: "device not initialized",
	0x719: "device has a timeout",
	0x745: "timeout elapsed",
	0x746: "error in win32 subsystem",
	0x748: "ads port not opened",
	0x750: "internal error in ads sync",
	0x751: "hash table overflow",
	0x752: "key not found in hash",
	0x753: "no more symbols in cache",
	0x754: "invalid response received",
	0x755: "sync port is locked",
}

// Message returns the textual description of the return code.
func (e *AdsError) Message() string {
	if text, ok := adsErrorText[e.Code]; ok {
		return text
	}
	return "unknown ADS error"
}

// Error implements the error interface.
func (e *AdsError) Error() string {
	return fmt.Sprintf("ads error 0x%X: %s", e.Code, e.Message())
}

// MarshalJSON renders the error as the structured form printed to operators.
func (e *AdsError) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf(`{"code":%d,"message":%q}`, e.Code, e.Message())), nil
}

// NewAdsError wraps a device return code. Zero is not an error and yields nil.
func NewAdsError(code uint32) error {
	if code == 0 {
		return nil
	}
	return &AdsError{Code: code}
}

// SumError is the aggregate failure of a sum-up read or write. Individual
// item outcomes are deliberately not exposed.
type SumError struct {
	Total  int
	Failed int
	First  error
}

// Error implements the error interface.
func (e *SumError) Error() string {
	return fmt.Sprintf("%d of %d items failed: %v", e.Failed, e.Total, e.First)
}

// Unwrap returns the first item failure for errors.Is/As support.
func (e *SumError) Unwrap() error {
	return e.First
}

// ParseError represents a malformed frame, payload or value.
type ParseError struct {
	Kind    ParseErrorKind
	Value   string
	Message string
}

// ParseErrorKind categorizes parsing errors.
type ParseErrorKind int

const (
	// ErrKindShortPayload indicates fewer bytes than the structure requires.
	ErrKindShortPayload ParseErrorKind = iota
	// ErrKindFrameTooLarge indicates a length field above MaxFrameLength.
	ErrKindFrameTooLarge
	// ErrKindInvalidNetID indicates a malformed dotted net-id.
	ErrKindInvalidNetID
	// ErrKindUnsupportedType indicates a PLC type the value codec cannot handle.
	ErrKindUnsupportedType
	// ErrKindInvalidValue indicates a value incompatible with its PLC type.
	ErrKindInvalidValue
	// ErrKindUnexpectedResponse indicates a response that does not match its request.
	ErrKindUnexpectedResponse
)

// Error implements the error interface.
func (e *ParseError) Error() string {
	switch e.Kind {
	case ErrKindShortPayload:
		return fmt.Sprintf("short payload: %s", e.Message)
	case ErrKindFrameTooLarge:
		return fmt.Sprintf("frame too large: %s bytes", e.Value)
	case ErrKindInvalidNetID:
		return fmt.Sprintf("invalid net-id '%s'", e.Value)
	case ErrKindUnsupportedType:
		return fmt.Sprintf("unsupported PLC type '%s'", e.Value)
	case ErrKindInvalidValue:
		if e.Message != "" {
			return fmt.Sprintf("invalid value '%s': %s", e.Value, e.Message)
		}
		return fmt.Sprintf("invalid value '%s'", e.Value)
	case ErrKindUnexpectedResponse:
		return fmt.Sprintf("unexpected response: %s", e.Message)
	default:
		return fmt.Sprintf("parse error: %s", e.Value)
	}
}

func newShortPayloadError(what string, want, got int) error {
	return &ParseError{Kind: ErrKindShortPayload, Message: fmt.Sprintf("%s needs %d bytes, got %d", what, want, got)}
}

func newFrameTooLargeError(n uint32) error {
	return &ParseError{Kind: ErrKindFrameTooLarge, Value: fmt.Sprint(n)}
}

func newInvalidNetIDError(s string) error {
	return &ParseError{Kind: ErrKindInvalidNetID, Value: s}
}

func newUnsupportedTypeError(t string) error {
	return &ParseError{Kind: ErrKindUnsupportedType, Value: t}
}

func newInvalidValueError(v any, msg string) error {
	return &ParseError{Kind: ErrKindInvalidValue, Value: fmt.Sprint(v), Message: msg}
}

func newUnexpectedResponseError(msg string) error {
	return &ParseError{Kind: ErrKindUnexpectedResponse, Message: msg}
}

// ConnectionError represents a transport-level failure.
type ConnectionError struct {
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *ConnectionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("connection failed: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("connection failed: %s", e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *ConnectionError) Unwrap() error {
	return e.Cause
}

// NewConnectionError creates a new connection error.
func NewConnectionError(message string, cause error) error {
	return &ConnectionError{Message: message, Cause: cause}
}
