package adsprotocol

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Protocol constants for ADS over AMS/TCP.
const (
	// DefaultTCPPort is the TCP port the AMS router listens on.
	DefaultTCPPort = 48898

	// DefaultPLCPort is the AMS port of the first TwinCAT 3 PLC runtime.
	DefaultPLCPort = 851

	// DefaultTimeout is the default time a request may stay unanswered.
	DefaultTimeout = 15 * time.Second

	// ConnectionTimeout bounds TCP connection establishment.
	ConnectionTimeout = 5 * time.Second

	// TCPHeaderLength is the size of the AMS/TCP header (reserved + length).
	TCPHeaderLength = 6

	// AMSHeaderLength is the size of the AMS header.
	AMSHeaderLength = 32

	// MaxFrameLength caps the AMS payload accepted from the wire.
	MaxFrameLength = 4 << 20

	// symbolInfoReadLength is the read buffer requested for SYM_INFOBYNAMEEX.
	symbolInfoReadLength = 0xFFFF
)

// State flags of the AMS header.
const (
	// StateFlagRequest marks an ADS request sent over TCP.
	StateFlagRequest uint16 = 0x0004

	// StateFlagResponse marks an ADS response sent over TCP.
	StateFlagResponse uint16 = 0x0005

	stateFlagResponseBit uint16 = 0x0001
)

// Index groups used for symbolic access.
const (
	IndexGroupSymbolHandleByName  uint32 = 0xF003
	IndexGroupSymbolValueByHandle uint32 = 0xF005
	IndexGroupSymbolReleaseHandle uint32 = 0xF006
	IndexGroupSymbolInfoByNameEx  uint32 = 0xF009
	IndexGroupSymbolUpload        uint32 = 0xF00B
	IndexGroupSymbolUploadInfo    uint32 = 0xF00C
	IndexGroupSumRead             uint32 = 0xF080
	IndexGroupSumWrite            uint32 = 0xF081
)

// CommandID identifies an ADS service.
type CommandID uint16

const (
	CmdInvalid            CommandID = 0
	CmdReadDeviceInfo     CommandID = 1
	CmdRead               CommandID = 2
	CmdWrite              CommandID = 3
	CmdReadState          CommandID = 4
	CmdWriteControl       CommandID = 5
	CmdAddNotification    CommandID = 6
	CmdDeleteNotification CommandID = 7
	CmdNotification       CommandID = 8
	CmdReadWrite          CommandID = 9
)

var commandNames = map[CommandID]string{
	CmdInvalid:            "Invalid",
	CmdReadDeviceInfo:     "ReadDeviceInfo",
	CmdRead:               "Read",
	CmdWrite:              "Write",
	CmdReadState:          "ReadState",
	CmdWriteControl:       "WriteControl",
	CmdAddNotification:    "AddNotification",
	CmdDeleteNotification: "DeleteNotification",
	CmdNotification:       "Notification",
	CmdReadWrite:          "ReadWrite",
}

// String returns the ADS service name.
func (c CommandID) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Command(%d)", uint16(c))
}

// AdsState is the run state reported by ReadState.
type AdsState uint16

const (
	StateInvalid AdsState = iota
	StateIdle
	StateReset
	StateInit
	StateStart
	StateRun
	StateStop
	StateSaveConfig
	StateLoadConfig
	StatePowerFailure
	StatePowerGood
	StateError
	StateShutdown
	StateSuspend
	StateResume
	StateConfig
	StateReconfig
)

var stateNames = []string{
	"Invalid", "Idle", "Reset", "Init", "Start", "Run", "Stop", "SaveCfg",
	"LoadCfg", "PowerFailure", "PowerGood", "Error", "Shutdown", "Suspend",
	"Resume", "Config", "Reconfig",
}

// String returns the TwinCAT name of the state.
func (s AdsState) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", uint16(s))
}

// NetID is an AMS net-id: six bytes usually written as a dotted string.
type NetID [6]byte

// ParseNetID parses a dotted net-id such as "192.168.1.10.1.1".
func ParseNetID(s string) (NetID, error) {
	var id NetID
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) != len(id) {
		return id, newInvalidNetIDError(s)
	}
	for i, p := range parts {
		n, err := strconv.ParseUint(p, 10, 8)
		if err != nil {
			return id, newInvalidNetIDError(s)
		}
		id[i] = byte(n)
	}
	return id, nil
}

// MustParseNetID is like ParseNetID but panics on malformed input.
func MustParseNetID(s string) NetID {
	id, err := ParseNetID(s)
	if err != nil {
		panic(err)
	}
	return id
}

// String formats the net-id in dotted notation.
func (n NetID) String() string {
	parts := make([]string, len(n))
	for i, b := range n {
		parts[i] = strconv.Itoa(int(b))
	}
	return strings.Join(parts, ".")
}

// Addr is a logical AMS endpoint.
type Addr struct {
	NetID NetID
	Port  uint16
}

// String formats the endpoint as netid:port.
func (a Addr) String() string {
	return fmt.Sprintf("%s:%d", a.NetID, a.Port)
}
