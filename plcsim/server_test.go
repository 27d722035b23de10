package plcsim

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikko80/node-beckhoff/adsprotocol"
)

// rawConn talks to the simulator frame by frame.
type rawConn struct {
	t    *testing.T
	conn net.Conn
	fr   *adsprotocol.FrameReader
	id   uint32
}

func dial(t *testing.T, s *Server) *rawConn {
	t.Helper()
	conn, err := net.Dial("tcp", s.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &rawConn{t: t, conn: conn, fr: adsprotocol.NewFrameReader(conn)}
}

func (r *rawConn) roundTrip(cmd adsprotocol.CommandID, data []byte) adsprotocol.Frame {
	r.t.Helper()
	r.id++
	target := adsprotocol.Addr{NetID: adsprotocol.NetID{127, 0, 0, 1, 1, 1}, Port: adsprotocol.DefaultPLCPort}
	source := adsprotocol.Addr{NetID: adsprotocol.NetID{10, 0, 0, 9, 1, 1}, Port: 32905}
	_, err := r.conn.Write(adsprotocol.NewRequestFrame(target, source, cmd, r.id, data).Marshal())
	require.NoError(r.t, err)

	require.NoError(r.t, r.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	f, err := r.fr.ReadFrame()
	require.NoError(r.t, err)
	require.True(r.t, f.Header.IsResponse())
	require.Equal(r.t, r.id, f.Header.InvokeID)
	return f
}

func newServer(t *testing.T) *Server {
	t.Helper()
	s := New()
	require.NoError(t, s.SetSymbol("MAIN.counter", "INT", 7))
	require.NoError(t, s.SetSymbol("MAIN.flag", "BOOL", nil))
	require.NoError(t, s.Start("127.0.0.1:0"))
	t.Cleanup(func() { s.Close() })
	return s
}

func TestServer_DeviceInfoAndState(t *testing.T) {
	s := newServer(t)
	c := dial(t, s)

	info, err := adsprotocol.ParseDeviceInfoResponse(c.roundTrip(adsprotocol.CmdReadDeviceInfo, nil).Data)
	require.NoError(t, err)
	assert.Equal(t, "Plc30 App", info.DeviceName)

	s.SetState(adsprotocol.StateConfig)
	st, err := adsprotocol.ParseStateResponse(c.roundTrip(adsprotocol.CmdReadState, nil).Data)
	require.NoError(t, err)
	assert.Equal(t, adsprotocol.StateConfig, st.AdsState)

	assert.Equal(t, []adsprotocol.CommandID{adsprotocol.CmdReadDeviceInfo, adsprotocol.CmdReadState}, s.Requests())
	assert.Equal(t, 1, s.Accepted())
}

func TestServer_UnsupportedCommand(t *testing.T) {
	s := newServer(t)
	f := dial(t, s).roundTrip(adsprotocol.CmdWriteControl, nil)
	assert.Equal(t, codeServiceNotSupported, f.Header.ErrorCode)
}

func TestServer_ResolveAndRead(t *testing.T) {
	s := newServer(t)
	c := dial(t, s)

	rw := adsprotocol.ReadWriteRequest{
		IndexGroup: adsprotocol.IndexGroupSymbolInfoByNameEx,
		ReadLength: 0xFFFF,
		Data:       []byte("MAIN.counter\x00"),
	}
	data, err := adsprotocol.ParseReadResponse(c.roundTrip(adsprotocol.CmdReadWrite, rw.Marshal()).Data)
	require.NoError(t, err)
	info, _, err := adsprotocol.ParseSymbolInfo(data)
	require.NoError(t, err)
	assert.Equal(t, "INT", info.Type)
	assert.Equal(t, uint32(2), info.Size)

	req := adsprotocol.ReadRequest{IndexGroup: info.IndexGroup, IndexOffset: info.IndexOffset, Length: info.Size}
	data, err = adsprotocol.ParseReadResponse(c.roundTrip(adsprotocol.CmdRead, req.Marshal()).Data)
	require.NoError(t, err)
	v, err := adsprotocol.DecodeValue("INT", data)
	require.NoError(t, err)
	assert.Equal(t, int64(7), v)

	req.Length = 4
	_, err = adsprotocol.ParseReadResponse(c.roundTrip(adsprotocol.CmdRead, req.Marshal()).Data)
	assert.Equal(t, &adsprotocol.AdsError{Code: codeInvalidSize}, err)

	rw.Data = []byte("MAIN.none\x00")
	_, err = adsprotocol.ParseReadResponse(c.roundTrip(adsprotocol.CmdReadWrite, rw.Marshal()).Data)
	assert.Equal(t, &adsprotocol.AdsError{Code: codeSymbolNotFound}, err)
}

func TestServer_WriteRejected(t *testing.T) {
	s := newServer(t)
	c := dial(t, s)
	s.Reject("MAIN.flag")

	w := adsprotocol.WriteRequest{IndexGroup: symbolIndexGroup, IndexOffset: 2, Data: []byte{1}}
	err := adsprotocol.ParseWriteResponse(c.roundTrip(adsprotocol.CmdWrite, w.Marshal()).Data)
	assert.Equal(t, &adsprotocol.AdsError{Code: codeAccessDenied}, err)

	s.Accept("MAIN.flag")
	err = adsprotocol.ParseWriteResponse(c.roundTrip(adsprotocol.CmdWrite, w.Marshal()).Data)
	require.NoError(t, err)
	v, err := s.Value("MAIN.flag")
	require.NoError(t, err)
	assert.Equal(t, true, v)
}

func TestServer_UnknownAddress(t *testing.T) {
	s := newServer(t)
	c := dial(t, s)

	w := adsprotocol.WriteRequest{IndexGroup: 0x1234, Data: []byte{1}}
	err := adsprotocol.ParseWriteResponse(c.roundTrip(adsprotocol.CmdWrite, w.Marshal()).Data)
	assert.Equal(t, &adsprotocol.AdsError{Code: codeInvalidIndexGroup}, err)

	w = adsprotocol.WriteRequest{IndexGroup: symbolIndexGroup, IndexOffset: 77, Data: []byte{1}}
	err = adsprotocol.ParseWriteResponse(c.roundTrip(adsprotocol.CmdWrite, w.Marshal()).Data)
	assert.Equal(t, &adsprotocol.AdsError{Code: codeInvalidIndexOffset}, err)
}

func TestServer_SumReadReportsItemCodes(t *testing.T) {
	s := newServer(t)
	c := dial(t, s)

	items := []adsprotocol.SumItem{
		{IndexGroup: symbolIndexGroup, IndexOffset: 0, Length: 2},
		{IndexGroup: symbolIndexGroup, IndexOffset: 50, Length: 1},
	}
	rw := adsprotocol.ReadWriteRequest{
		IndexGroup:  adsprotocol.IndexGroupSumRead,
		IndexOffset: uint32(len(items)),
		ReadLength:  8 + 3,
		Data:        adsprotocol.MarshalSumItems(items),
	}
	data, err := adsprotocol.ParseReadResponse(c.roundTrip(adsprotocol.CmdReadWrite, rw.Marshal()).Data)
	require.NoError(t, err)
	require.Len(t, data, 8+3)
	assert.Equal(t, []byte{0, 0, 0, 0}, data[0:4])
	assert.Equal(t, []byte{0x03, 0x07, 0, 0}, data[4:8])
	assert.Equal(t, []byte{7, 0}, data[8:10])
}

func TestServer_SymbolUpload(t *testing.T) {
	s := newServer(t)
	c := dial(t, s)

	req := adsprotocol.ReadRequest{IndexGroup: adsprotocol.IndexGroupSymbolUploadInfo, Length: 8}
	data, err := adsprotocol.ParseReadResponse(c.roundTrip(adsprotocol.CmdRead, req.Marshal()).Data)
	require.NoError(t, err)
	upload, err := adsprotocol.ParseUploadInfo(data)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), upload.SymbolCount)

	req = adsprotocol.ReadRequest{IndexGroup: adsprotocol.IndexGroupSymbolUpload, Length: upload.SymbolLength}
	data, err = adsprotocol.ParseReadResponse(c.roundTrip(adsprotocol.CmdRead, req.Marshal()).Data)
	require.NoError(t, err)
	syms, err := adsprotocol.ParseSymbolTable(data, int(upload.SymbolCount))
	require.NoError(t, err)
	assert.Equal(t, "MAIN.counter", syms[0].Name)
	assert.Equal(t, "MAIN.flag", syms[1].Name)

	req.Length = upload.SymbolLength - 1
	_, err = adsprotocol.ParseReadResponse(c.roundTrip(adsprotocol.CmdRead, req.Marshal()).Data)
	assert.Error(t, err)
}

func TestServer_Stall(t *testing.T) {
	s := newServer(t)
	c := dial(t, s)
	s.Stall(true)

	_, err := c.conn.Write(adsprotocol.NewRequestFrame(adsprotocol.Addr{}, adsprotocol.Addr{}, adsprotocol.CmdReadState, 1, nil).Marshal())
	require.NoError(t, err)
	require.NoError(t, c.conn.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, err = c.fr.ReadFrame()
	var ne net.Error
	require.ErrorAs(t, err, &ne)
	assert.True(t, ne.Timeout())
	assert.Eventually(t, func() bool { return len(s.Requests()) == 1 }, time.Second, 10*time.Millisecond)
}

func TestServer_SetSymbol(t *testing.T) {
	s := New()

	require.NoError(t, s.SetSymbol("MAIN.a", "INT", 1))
	require.NoError(t, s.SetSymbol("MAIN.b", "LREAL", 2.5))
	assert.Equal(t, []string{"MAIN.a", "MAIN.b"}, s.Symbols())

	require.NoError(t, s.SetSymbol("MAIN.a", "UINT", 9))
	v, err := s.Value("MAIN.a")
	require.NoError(t, err)
	assert.Equal(t, uint64(9), v)

	require.NoError(t, s.SetSymbol("MAIN.a", "DINT", 100000))
	assert.Equal(t, []string{"MAIN.b", "MAIN.a"}, s.Symbols())

	assert.Error(t, s.SetSymbol("MAIN.c", "ST_Motor", nil))
	assert.Error(t, s.SetSymbol("MAIN.c", "INT", 1<<20))

	_, err = s.Value("MAIN.c")
	assert.ErrorIs(t, err, ErrUnknownSymbol)
}

func TestServer_Seed(t *testing.T) {
	s := New()
	require.NoError(t, s.Seed("MAIN.a", 1.5))
	require.NoError(t, s.Seed("MAIN.a", true))
	require.NoError(t, s.Seed("MAIN.b", nil))

	v, _ := s.Value("MAIN.a")
	assert.Equal(t, float64(0), v, "seeded symbols start at zero")
	v, _ = s.Value("MAIN.b")
	assert.Equal(t, int64(0), v)
}

func TestServer_CloseWithoutStart(t *testing.T) {
	assert.NoError(t, New().Close())
}

func TestTypeFor(t *testing.T) {
	tests := []struct {
		sample any
		want   string
	}{
		{true, "BOOL"},
		{"hi", "STRING"},
		{1.5, "LREAL"},
		{float32(2), "INT"},
		{12, "INT"},
		{70000, "DINT"},
		{int64(1 << 40), "LINT"},
		{uint64(1 << 40), "ULINT"},
		{nil, "INT"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TypeFor(tt.sample), "TypeFor(%v)", tt.sample)
	}
}
