package adsprotocol_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikko80/node-beckhoff/adsprotocol"
	"github.com/mikko80/node-beckhoff/plcsim"
)

const waitFor = 3 * time.Second

func newSim(t *testing.T) *plcsim.Server {
	t.Helper()
	sim := plcsim.New()
	require.NoError(t, sim.SetSymbol("MAIN.counter", "INT", 7))
	require.NoError(t, sim.SetSymbol("MAIN.flag", "BOOL", false))
	require.NoError(t, sim.SetSymbol("MAIN.label", "STRING(20)", "idle"))
	require.NoError(t, sim.Start("127.0.0.1:0"))
	t.Cleanup(func() { sim.Close() })
	return sim
}

func newClient(t *testing.T, sim *plcsim.Server, timeout time.Duration) *adsprotocol.Client {
	t.Helper()
	c := adsprotocol.NewClient(adsprotocol.Options{
		Host:    sim.Host(),
		Port:    sim.Port(),
		Target:  adsprotocol.Addr{NetID: sim.NetID(), Port: adsprotocol.DefaultPLCPort},
		Source:  adsprotocol.Addr{NetID: adsprotocol.MustParseNetID("10.0.0.9.1.1"), Port: 32905},
		Timeout: timeout,
	})
	require.NoError(t, c.ConnectWithContext(context.Background()))
	t.Cleanup(func() { c.Close() })
	return c
}

// wait blocks until the callback delivered a value on ch.
func wait[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(waitFor):
		t.Fatal("callback not called")
		var zero T
		return zero
	}
}

type outcome[T any] struct {
	val T
	err error
}

func TestClient_ReadDeviceInfoAndState(t *testing.T) {
	sim := newSim(t)
	c := newClient(t, sim, time.Second)

	infoCh := make(chan outcome[adsprotocol.DeviceInfo], 1)
	c.ReadDeviceInfo(func(info adsprotocol.DeviceInfo, err error) {
		infoCh <- outcome[adsprotocol.DeviceInfo]{info, err}
	})
	info := wait(t, infoCh)
	require.NoError(t, info.err)
	assert.Equal(t, "Plc30 App", info.val.DeviceName)
	assert.Equal(t, "3.1.4024", info.val.Version())

	sim.SetState(adsprotocol.StateStop)
	stateCh := make(chan outcome[adsprotocol.StateInfo], 1)
	c.ReadState(func(st adsprotocol.StateInfo, err error) {
		stateCh <- outcome[adsprotocol.StateInfo]{st, err}
	})
	st := wait(t, stateCh)
	require.NoError(t, st.err)
	assert.Equal(t, adsprotocol.StateStop, st.val.AdsState)
	assert.Equal(t, "Stop", st.val.AdsStateName)
}

func TestClient_GetSymbols(t *testing.T) {
	sim := newSim(t)
	c := newClient(t, sim, time.Second)

	ch := make(chan outcome[[]adsprotocol.SymbolInfo], 1)
	c.GetSymbols(func(syms []adsprotocol.SymbolInfo, err error) {
		ch <- outcome[[]adsprotocol.SymbolInfo]{syms, err}
	})
	res := wait(t, ch)
	require.NoError(t, res.err)
	require.Len(t, res.val, 3)
	assert.Equal(t, "MAIN.counter", res.val[0].Name)
	assert.Equal(t, "STRING(20)", res.val[2].Type)
	assert.Equal(t, uint32(21), res.val[2].Size)
}

func TestClient_ReadWriteBySymbolName(t *testing.T) {
	sim := newSim(t)
	c := newClient(t, sim, time.Second)

	wch := make(chan outcome[adsprotocol.SymbolRequest], 1)
	c.Write(adsprotocol.SymbolRequest{SymName: "MAIN.counter", Value: 1234}, func(r adsprotocol.SymbolRequest, err error) {
		wch <- outcome[adsprotocol.SymbolRequest]{r, err}
	})
	w := wait(t, wch)
	require.NoError(t, w.err)
	assert.Equal(t, "INT", w.val.Type)
	assert.Equal(t, uint32(2), w.val.Size)

	v, err := sim.Value("MAIN.counter")
	require.NoError(t, err)
	assert.Equal(t, int64(1234), v)

	rch := make(chan outcome[adsprotocol.SymbolRequest], 1)
	c.Read(adsprotocol.SymbolRequest{SymName: "MAIN.counter"}, func(r adsprotocol.SymbolRequest, err error) {
		rch <- outcome[adsprotocol.SymbolRequest]{r, err}
	})
	r := wait(t, rch)
	require.NoError(t, r.err)
	assert.Equal(t, int64(1234), r.val.Value)
	assert.Equal(t, "MAIN.counter", r.val.SymName)
}

func TestClient_UnknownSymbol(t *testing.T) {
	sim := newSim(t)
	c := newClient(t, sim, time.Second)

	ch := make(chan error, 1)
	c.Read(adsprotocol.SymbolRequest{SymName: "MAIN.missing"}, func(_ adsprotocol.SymbolRequest, err error) { ch <- err })
	err := wait(t, ch)

	var ae *adsprotocol.AdsError
	require.True(t, errors.As(err, &ae), "error %v", err)
	assert.Equal(t, uint32(0x710), ae.Code)
	assert.Contains(t, err.Error(), "resolve MAIN.missing")
}

func TestClient_WriteEncodeError(t *testing.T) {
	sim := newSim(t)
	c := newClient(t, sim, time.Second)

	ch := make(chan error, 1)
	c.Write(adsprotocol.SymbolRequest{SymName: "MAIN.counter", Value: 70000}, func(_ adsprotocol.SymbolRequest, err error) { ch <- err })
	err := wait(t, ch)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "encode MAIN.counter")

	v, _ := sim.Value("MAIN.counter")
	assert.Equal(t, int64(7), v, "value must be untouched")
}

func TestClient_MultiReadAndWrite(t *testing.T) {
	sim := newSim(t)
	c := newClient(t, sim, time.Second)

	wch := make(chan error, 1)
	c.MultiWrite([]adsprotocol.SymbolRequest{
		{SymName: "MAIN.counter", Value: 5},
		{SymName: "MAIN.flag", Value: true},
		{SymName: "MAIN.label", Value: "running"},
	}, func(_ []adsprotocol.SymbolRequest, err error) { wch <- err })
	require.NoError(t, wait(t, wch))

	rch := make(chan outcome[[]adsprotocol.SymbolRequest], 1)
	c.MultiRead([]adsprotocol.SymbolRequest{
		{SymName: "MAIN.label"},
		{SymName: "MAIN.flag"},
		{SymName: "MAIN.counter"},
	}, func(reqs []adsprotocol.SymbolRequest, err error) {
		rch <- outcome[[]adsprotocol.SymbolRequest]{reqs, err}
	})
	r := wait(t, rch)
	require.NoError(t, r.err)
	require.Len(t, r.val, 3)
	assert.Equal(t, "running", r.val[0].Value)
	assert.Equal(t, true, r.val[1].Value)
	assert.Equal(t, int64(5), r.val[2].Value)

	assert.Contains(t, sim.Requests(), adsprotocol.CmdReadWrite)
}

func TestClient_MultiWriteAggregateFailure(t *testing.T) {
	sim := newSim(t)
	c := newClient(t, sim, time.Second)
	sim.Reject("MAIN.flag")

	ch := make(chan error, 1)
	c.MultiWrite([]adsprotocol.SymbolRequest{
		{SymName: "MAIN.counter", Value: 9},
		{SymName: "MAIN.flag", Value: true},
	}, func(_ []adsprotocol.SymbolRequest, err error) { ch <- err })
	err := wait(t, ch)

	var se *adsprotocol.SumError
	require.True(t, errors.As(err, &se), "error %v", err)
	assert.Equal(t, 2, se.Total)
	assert.Equal(t, 1, se.Failed)

	var ae *adsprotocol.AdsError
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, uint32(0x704), ae.Code)
}

func TestClient_MultiReadUnknownSymbolAbortsBatch(t *testing.T) {
	sim := newSim(t)
	c := newClient(t, sim, time.Second)

	ch := make(chan outcome[[]adsprotocol.SymbolRequest], 1)
	c.MultiRead([]adsprotocol.SymbolRequest{
		{SymName: "MAIN.counter"},
		{SymName: "MAIN.nope"},
	}, func(reqs []adsprotocol.SymbolRequest, err error) {
		ch <- outcome[[]adsprotocol.SymbolRequest]{reqs, err}
	})
	r := wait(t, ch)

	var se *adsprotocol.SumError
	require.True(t, errors.As(r.err, &se), "error %v", r.err)
	assert.Nil(t, r.val)
}

func TestClient_RequestTimeout(t *testing.T) {
	sim := newSim(t)
	c := newClient(t, sim, 100*time.Millisecond)

	timeouts := make(chan error, 1)
	c.OnTimeout(func(err error) { timeouts <- err })
	sim.Stall(true)

	ch := make(chan error, 1)
	c.ReadState(func(_ adsprotocol.StateInfo, err error) { ch <- err })
	err := wait(t, ch)
	assert.True(t, errors.Is(err, adsprotocol.ErrTimeout), "error %v", err)
	assert.True(t, errors.Is(wait(t, timeouts), adsprotocol.ErrTimeout))
}

func TestClient_NotConnected(t *testing.T) {
	c := adsprotocol.NewClient(adsprotocol.Options{Host: "127.0.0.1"})
	assert.False(t, c.IsConnected())
	assert.Equal(t, adsprotocol.DefaultTCPPort, c.Options().Port)
	assert.Equal(t, adsprotocol.DefaultTimeout, c.Options().Timeout)

	var got error
	c.ReadDeviceInfo(func(_ adsprotocol.DeviceInfo, err error) { got = err })
	assert.ErrorIs(t, got, adsprotocol.ErrNotConnected)
	assert.NoError(t, c.Close())
}

func TestClient_ConnectTwice(t *testing.T) {
	sim := newSim(t)
	c := newClient(t, sim, time.Second)
	assert.ErrorIs(t, c.ConnectWithContext(context.Background()), adsprotocol.ErrAlreadyConnected)
}

func TestClient_ConnectCallbacks(t *testing.T) {
	sim := newSim(t)
	c := adsprotocol.NewClient(adsprotocol.Options{Host: sim.Host(), Port: sim.Port(), Timeout: time.Second})
	t.Cleanup(func() { c.Close() })

	ready := make(chan struct{})
	c.Connect(func() { close(ready) })
	wait(t, ready)
	assert.True(t, c.IsConnected())
	assert.Equal(t, 1, sim.Accepted())
}

func TestClient_ConnectRefusedGoesToErrorHandler(t *testing.T) {
	sim := newSim(t)
	port := sim.Port()
	require.NoError(t, sim.Close())

	c := adsprotocol.NewClient(adsprotocol.Options{Host: "127.0.0.1", Port: port, Timeout: time.Second})
	errs := make(chan error, 1)
	c.OnError(func(err error) { errs <- err })
	c.Connect(func() { t.Error("ready called after failed dial") })

	var ce *adsprotocol.ConnectionError
	assert.True(t, errors.As(wait(t, errs), &ce))
}

func TestClient_CloseSettlesPending(t *testing.T) {
	sim := newSim(t)
	c := newClient(t, sim, 5*time.Second)
	sim.Stall(true)

	ch := make(chan error, 1)
	c.ReadDeviceInfo(func(_ adsprotocol.DeviceInfo, err error) { ch <- err })
	require.NoError(t, c.Close())
	assert.ErrorIs(t, wait(t, ch), adsprotocol.ErrClosed)
	assert.False(t, c.IsConnected())
}

func TestClient_ServerDisconnectReported(t *testing.T) {
	sim := newSim(t)
	c := newClient(t, sim, 5*time.Second)

	errs := make(chan error, 1)
	c.OnError(func(err error) { errs <- err })
	require.NoError(t, sim.Close())

	var ce *adsprotocol.ConnectionError
	assert.True(t, errors.As(wait(t, errs), &ce))
	assert.Eventually(t, func() bool { return !c.IsConnected() }, waitFor, 10*time.Millisecond)
}
