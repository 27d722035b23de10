// Package plcsim runs a small simulated PLC that speaks ADS over AMS/TCP.
//
// It keeps a symbol table in memory and answers ReadDeviceInfo, ReadState,
// symbol resolution, symbol upload, plain and sum-up reads and writes. Tests
// use it as a real network peer; adsprobe --simulate uses it to exercise the
// clients without hardware.
package plcsim

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"sort"
	"strconv"
	"sync"

	"github.com/rs/zerolog"

	"github.com/mikko80/node-beckhoff/adsprotocol"
)

// symbolIndexGroup is the index group all simulated variables live in.
const symbolIndexGroup uint32 = 0x4040

// Device return codes produced by the simulator.
const (
	codeServiceNotSupported uint32 = 0x701
	codeInvalidIndexGroup   uint32 = 0x702
	codeInvalidIndexOffset  uint32 = 0x703
	codeAccessDenied        uint32 = 0x704
	codeInvalidSize         uint32 = 0x705
	codeInvalidData         uint32 = 0x706
	codeSymbolNotFound      uint32 = 0x710
)

// ErrUnknownSymbol is returned by Value for names not in the table.
var ErrUnknownSymbol = errors.New("unknown symbol")

type symbol struct {
	info adsprotocol.SymbolInfo
	data []byte
}

// Server is a simulated ADS device.
type Server struct {
	listener net.Listener
	log      zerolog.Logger

	mu         sync.Mutex
	netID      adsprotocol.NetID
	info       adsprotocol.DeviceInfo
	state      adsprotocol.AdsState
	symbols    map[string]*symbol
	byAddr     map[uint64]*symbol
	nextOffset uint32
	rejected   map[string]bool
	stalled    bool
	requests   []adsprotocol.CommandID
	accepted   int

	connections []net.Conn
	wg          sync.WaitGroup
}

// Option customizes a Server.
type Option func(*Server)

// WithLogger routes simulator diagnostics to logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) { s.log = logger.With().Str("component", "plcsim").Logger() }
}

// WithDeviceInfo sets the identity returned by ReadDeviceInfo.
func WithDeviceInfo(info adsprotocol.DeviceInfo) Option {
	return func(s *Server) { s.info = info }
}

// WithNetID sets the net-id the simulator claims.
func WithNetID(id adsprotocol.NetID) Option {
	return func(s *Server) { s.netID = id }
}

// New creates a stopped simulator in the Run state with an empty table.
func New(opts ...Option) *Server {
	s := &Server{
		log:        zerolog.Nop(),
		netID:      adsprotocol.NetID{127, 0, 0, 1, 1, 1},
		info:       adsprotocol.DeviceInfo{MajorVersion: 3, MinorVersion: 1, VersionBuild: 4024, DeviceName: "Plc30 App"},
		state:      adsprotocol.StateRun,
		symbols:    make(map[string]*symbol),
		byAddr:     make(map[uint64]*symbol),
		rejected:   make(map[string]bool),
		nextOffset: 0,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start listens on addr (for example "127.0.0.1:0") and serves in the
// background until Close.
func (s *Server) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("plcsim listen %s: %w", addr, err)
	}
	s.listener = listener
	s.wg.Add(1)
	go s.acceptLoop()
	s.log.Debug().Str("addr", listener.Addr().String()).Msg("listening")
	return nil
}

// Addr returns the listen address in host:port form.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Host returns the IP the simulator listens on.
func (s *Server) Host() string {
	host, _, _ := net.SplitHostPort(s.listener.Addr().String())
	return host
}

// Port returns the TCP port the simulator listens on.
func (s *Server) Port() int {
	_, port, _ := net.SplitHostPort(s.listener.Addr().String())
	n, _ := strconv.Atoi(port)
	return n
}

// NetID returns the simulator's net-id.
func (s *Server) NetID() adsprotocol.NetID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.netID
}

// Close stops listening, drops every connection and waits for the
// connection goroutines to finish.
func (s *Server) Close() error {
	if s.listener == nil {
		return nil
	}
	err := s.listener.Close()

	s.mu.Lock()
	for _, conn := range s.connections {
		conn.Close()
	}
	s.connections = nil
	s.mu.Unlock()

	s.wg.Wait()
	return err
}

// SetSymbol creates or overwrites a variable.
func (s *Server) SetSymbol(name, typeName string, value any) error {
	size, err := adsprotocol.TypeSize(typeName)
	if err != nil {
		return err
	}
	if value == nil {
		value = zeroValue(typeName)
	}
	data, err := adsprotocol.EncodeValue(typeName, size, value)
	if err != nil {
		return fmt.Errorf("plcsim %s: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sym, ok := s.symbols[name]; ok && sym.info.Size == size {
		sym.info.Type = typeName
		sym.info.DataType = adsprotocol.TypeDataType(typeName)
		sym.data = data
		return nil
	}
	sym := &symbol{
		info: adsprotocol.SymbolInfo{
			Name:        name,
			Type:        typeName,
			IndexGroup:  symbolIndexGroup,
			IndexOffset: s.nextOffset,
			Size:        size,
			DataType:    adsprotocol.TypeDataType(typeName),
			Flags:       0x0008,
		},
		data: data,
	}
	if old, ok := s.symbols[name]; ok {
		delete(s.byAddr, addrKey(old.info.IndexGroup, old.info.IndexOffset))
	}
	s.nextOffset += size
	s.symbols[name] = sym
	s.byAddr[addrKey(sym.info.IndexGroup, sym.info.IndexOffset)] = sym
	return nil
}

// Seed adds name with a type inferred from sample unless it already exists.
func (s *Server) Seed(name string, sample any) error {
	s.mu.Lock()
	_, exists := s.symbols[name]
	s.mu.Unlock()
	if exists {
		return nil
	}
	return s.SetSymbol(name, TypeFor(sample), nil)
}

// Value returns the decoded current value of a variable.
func (s *Server) Value(name string) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sym, ok := s.symbols[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSymbol, name)
	}
	return adsprotocol.DecodeValue(sym.info.Type, sym.data)
}

// Symbols returns the names in the table in address order.
func (s *Server) Symbols() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orderedNamesLocked()
}

// Reject makes every write to name fail with "reading/writing not permitted".
func (s *Server) Reject(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejected[name] = true
}

// Accept undoes Reject.
func (s *Server) Accept(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rejected, name)
}

// Stall makes the simulator swallow requests without answering.
func (s *Server) Stall(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stalled = on
}

// SetState changes the ADS state reported by ReadState.
func (s *Server) SetState(state adsprotocol.AdsState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

// Requests returns the services received so far, in arrival order.
func (s *Server) Requests() []adsprotocol.CommandID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]adsprotocol.CommandID(nil), s.requests...)
}

// Accepted returns how many TCP connections have been accepted.
func (s *Server) Accepted() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accepted
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}

		s.mu.Lock()
		s.connections = append(s.connections, conn)
		s.accepted++
		s.mu.Unlock()

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	fr := adsprotocol.NewFrameReader(conn)
	for {
		req, err := fr.ReadFrame()
		if err != nil {
			return
		}
		resp, ok := s.handle(req)
		if !ok {
			continue
		}
		if _, err := conn.Write(resp.Marshal()); err != nil {
			return
		}
	}
}

// handle computes the response to one request. It returns false when the
// simulator is stalled and the request must go unanswered.
func (s *Server) handle(req adsprotocol.Frame) (adsprotocol.Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests = append(s.requests, req.Header.Command)
	if s.stalled {
		return adsprotocol.Frame{}, false
	}

	var payload []byte
	switch req.Header.Command {
	case adsprotocol.CmdReadDeviceInfo:
		payload = adsprotocol.EncodeDeviceInfoResponse(0, s.info)
	case adsprotocol.CmdReadState:
		payload = adsprotocol.EncodeStateResponse(0, s.state, 0)
	case adsprotocol.CmdRead:
		payload = s.readLocked(req.Data)
	case adsprotocol.CmdWrite:
		payload = s.writeLocked(req.Data)
	case adsprotocol.CmdReadWrite:
		payload = s.readWriteLocked(req.Data)
	default:
		resp := req.Reply(nil)
		resp.Header.ErrorCode = codeServiceNotSupported
		return resp, true
	}
	return req.Reply(payload), true
}

func (s *Server) readLocked(data []byte) []byte {
	r, err := adsprotocol.ParseReadRequest(data)
	if err != nil {
		return adsprotocol.EncodeReadResponse(codeInvalidData, nil)
	}

	switch r.IndexGroup {
	case adsprotocol.IndexGroupSymbolUploadInfo:
		table := s.tableLocked()
		info := adsprotocol.UploadInfo{SymbolCount: uint32(len(s.symbols)), SymbolLength: uint32(len(table))}
		return adsprotocol.EncodeReadResponse(0, info.Marshal())
	case adsprotocol.IndexGroupSymbolUpload:
		table := s.tableLocked()
		if r.Length < uint32(len(table)) {
			return adsprotocol.EncodeReadResponse(codeInvalidSize, nil)
		}
		return adsprotocol.EncodeReadResponse(0, table)
	}

	sym, code := s.lookupLocked(r.IndexGroup, r.IndexOffset)
	if code != 0 {
		return adsprotocol.EncodeReadResponse(code, nil)
	}
	if r.Length != sym.info.Size {
		return adsprotocol.EncodeReadResponse(codeInvalidSize, nil)
	}
	return adsprotocol.EncodeReadResponse(0, sym.data)
}

func (s *Server) writeLocked(data []byte) []byte {
	w, err := adsprotocol.ParseWriteRequest(data)
	if err != nil {
		return adsprotocol.EncodeWriteResponse(codeInvalidData)
	}
	return adsprotocol.EncodeWriteResponse(s.storeLocked(w.IndexGroup, w.IndexOffset, w.Data))
}

func (s *Server) readWriteLocked(data []byte) []byte {
	rw, err := adsprotocol.ParseReadWriteRequest(data)
	if err != nil {
		return adsprotocol.EncodeReadResponse(codeInvalidData, nil)
	}

	switch rw.IndexGroup {
	case adsprotocol.IndexGroupSymbolInfoByNameEx:
		name := string(rw.Data)
		if i := len(name); i > 0 && name[i-1] == 0 {
			name = name[:i-1]
		}
		sym, ok := s.symbols[name]
		if !ok {
			return adsprotocol.EncodeReadResponse(codeSymbolNotFound, nil)
		}
		return adsprotocol.EncodeReadResponse(0, sym.info.Marshal())

	case adsprotocol.IndexGroupSumRead:
		count := int(rw.IndexOffset)
		items, err := adsprotocol.ParseSumItems(rw.Data, count)
		if err != nil {
			return adsprotocol.EncodeReadResponse(codeInvalidSize, nil)
		}
		results := make([]byte, 4*count)
		var values []byte
		for i, it := range items {
			chunk := make([]byte, it.Length)
			sym, code := s.lookupLocked(it.IndexGroup, it.IndexOffset)
			if code == 0 && it.Length != sym.info.Size {
				code = codeInvalidSize
			}
			if code == 0 {
				copy(chunk, sym.data)
			}
			binary.LittleEndian.PutUint32(results[i*4:], code)
			values = append(values, chunk...)
		}
		return adsprotocol.EncodeReadResponse(0, append(results, values...))

	case adsprotocol.IndexGroupSumWrite:
		count := int(rw.IndexOffset)
		items, err := adsprotocol.ParseSumItems(rw.Data, count)
		if err != nil {
			return adsprotocol.EncodeReadResponse(codeInvalidSize, nil)
		}
		results := make([]byte, 4*count)
		off := 12 * count
		for i, it := range items {
			end := off + int(it.Length)
			if end > len(rw.Data) {
				return adsprotocol.EncodeReadResponse(codeInvalidSize, nil)
			}
			code := s.storeLocked(it.IndexGroup, it.IndexOffset, rw.Data[off:end])
			binary.LittleEndian.PutUint32(results[i*4:], code)
			off = end
		}
		return adsprotocol.EncodeReadResponse(0, results)
	}

	return adsprotocol.EncodeReadResponse(codeInvalidIndexGroup, nil)
}

// storeLocked writes data to the variable at group/offset and returns the
// device result code.
func (s *Server) storeLocked(group, offset uint32, data []byte) uint32 {
	sym, code := s.lookupLocked(group, offset)
	if code != 0 {
		return code
	}
	if s.rejected[sym.info.Name] {
		return codeAccessDenied
	}
	if uint32(len(data)) != sym.info.Size {
		return codeInvalidSize
	}
	sym.data = append([]byte(nil), data...)
	return 0
}

func (s *Server) lookupLocked(group, offset uint32) (*symbol, uint32) {
	if group != symbolIndexGroup {
		return nil, codeInvalidIndexGroup
	}
	sym, ok := s.byAddr[addrKey(group, offset)]
	if !ok {
		return nil, codeInvalidIndexOffset
	}
	return sym, 0
}

func (s *Server) tableLocked() []byte {
	var table []byte
	for _, name := range s.orderedNamesLocked() {
		table = append(table, s.symbols[name].info.Marshal()...)
	}
	return table
}

func (s *Server) orderedNamesLocked() []string {
	names := make([]string, 0, len(s.symbols))
	for name := range s.symbols {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		return s.symbols[names[i]].info.IndexOffset < s.symbols[names[j]].info.IndexOffset
	})
	return names
}

func addrKey(group, offset uint32) uint64 {
	return uint64(group)<<32 | uint64(offset)
}
