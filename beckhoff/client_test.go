package beckhoff_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikko80/node-beckhoff/adsprotocol"
	"github.com/mikko80/node-beckhoff/beckhoff"
	"github.com/mikko80/node-beckhoff/plcsim"
)

func startSim(t *testing.T, name string) *plcsim.Server {
	t.Helper()
	sim := plcsim.New(plcsim.WithDeviceInfo(adsprotocol.DeviceInfo{MajorVersion: 3, MinorVersion: 1, VersionBuild: 4024, DeviceName: name}))
	require.NoError(t, sim.SetSymbol("MAIN.counter", "DINT", 11))
	require.NoError(t, sim.SetSymbol("MAIN.flag", "BOOL", true))
	require.NoError(t, sim.Start("127.0.0.1:0"))
	t.Cleanup(func() { sim.Close() })
	return sim
}

func settingsFor(sim *plcsim.Server) beckhoff.Settings {
	return beckhoff.Settings{
		PLC:     beckhoff.PLC{IP: sim.Host(), Port: sim.Port()},
		Remote:  beckhoff.Endpoint{NetID: sim.NetID().String(), Port: adsprotocol.DefaultPLCPort},
		Local:   beckhoff.Endpoint{NetID: "10.0.0.9.1.1", Port: 32905},
		Timeout: time.Second,
	}
}

func newClient(t *testing.T, sim *plcsim.Server) *beckhoff.Client {
	t.Helper()
	c := beckhoff.New()
	c.SetSettings(settingsFor(sim))
	t.Cleanup(func() { c.Destroy() })
	return c
}

func countCmd(cmds []adsprotocol.CommandID, want adsprotocol.CommandID) int {
	n := 0
	for _, c := range cmds {
		if c == want {
			n++
		}
	}
	return n
}

func TestClient_InfoStateAndSymbols(t *testing.T) {
	sim := startSim(t, "Plc30 App")
	c := newClient(t, sim)

	info, err := c.GetPlcInfo().Result()
	require.NoError(t, err)
	assert.Equal(t, "Plc30 App", info.DeviceName)

	state, err := c.GetPlcState().Result()
	require.NoError(t, err)
	assert.Equal(t, adsprotocol.StateRun, state.AdsState)

	syms, err := c.GetPlcSymbols().Result()
	require.NoError(t, err)
	assert.Len(t, syms, 2)

	assert.Equal(t, 1, sim.Accepted(), "connection should be reused")
}

func TestClient_ReadWrite(t *testing.T) {
	sim := startSim(t, "Plc30 App")
	c := newClient(t, sim)
	ctx := context.Background()

	out, err := c.WritePlcData(beckhoff.Symbol{Name: "MAIN.counter", Value: 99}).Await(ctx)
	require.NoError(t, err)
	assert.Equal(t, []beckhoff.Symbol{{Name: "MAIN.counter", Value: 99, Type: "DINT"}}, out)

	out, err = c.ReadPlcData(beckhoff.Symbol{Name: "MAIN.counter"}, beckhoff.Symbol{Name: "MAIN.flag"}).Await(ctx)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, int64(99), out[0].Value)
	assert.Equal(t, true, out[1].Value)
	assert.Equal(t, "BOOL", out[1].Type)
}

func TestClient_MultiWriteIsOneRequest(t *testing.T) {
	sim := startSim(t, "Plc30 App")
	c := newClient(t, sim)

	_, err := c.WritePlcData(
		beckhoff.Symbol{Name: "MAIN.counter", Value: 1},
		beckhoff.Symbol{Name: "MAIN.flag", Value: false},
	).Result()
	require.NoError(t, err)

	assert.Equal(t, 0, countCmd(sim.Requests(), adsprotocol.CmdWrite))
	v, _ := sim.Value("MAIN.flag")
	assert.Equal(t, false, v)
}

func TestClient_ResolvedSymbolsAreCached(t *testing.T) {
	sim := startSim(t, "Plc30 App")
	c := newClient(t, sim)

	for i := 0; i < 3; i++ {
		_, err := c.ReadPlcData(beckhoff.Symbol{Name: "MAIN.counter"}).Result()
		require.NoError(t, err)
	}
	cmds := sim.Requests()
	assert.Equal(t, 1, countCmd(cmds, adsprotocol.CmdReadWrite), "symbol resolved once")
	assert.Equal(t, 3, countCmd(cmds, adsprotocol.CmdRead))
}

func TestClient_BatchFailureIsAggregate(t *testing.T) {
	sim := startSim(t, "Plc30 App")
	c := newClient(t, sim)
	sim.Reject("MAIN.counter")

	_, err := c.WritePlcData(
		beckhoff.Symbol{Name: "MAIN.counter", Value: 5},
		beckhoff.Symbol{Name: "MAIN.flag", Value: false},
	).Result()

	var se *adsprotocol.SumError
	require.True(t, errors.As(err, &se), "error %v", err)
	assert.Equal(t, 1, se.Failed)
	assert.Equal(t, 2, se.Total)

	_, err = c.ReadPlcData(beckhoff.Symbol{Name: "MAIN.counter"}, beckhoff.Symbol{Name: "MAIN.ghost"}).Result()
	require.True(t, errors.As(err, &se), "error %v", err)
}

func TestClient_NoSymbols(t *testing.T) {
	sim := startSim(t, "Plc30 App")
	c := newClient(t, sim)
	_, err := c.ReadPlcData().Result()
	assert.ErrorIs(t, err, beckhoff.ErrNoSymbols)
	_, err = c.WritePlcData().Result()
	assert.ErrorIs(t, err, beckhoff.ErrNoSymbols)
}

func TestClient_EndpointChangeReconnects(t *testing.T) {
	first := startSim(t, "First")
	second := startSim(t, "Second")
	c := newClient(t, first)

	info, err := c.GetPlcInfo().Result()
	require.NoError(t, err)
	assert.Equal(t, "First", info.DeviceName)

	c.SetSettings(settingsFor(second))
	assert.Equal(t, second.Port(), c.Settings().PLC.Port)

	info, err = c.GetPlcInfo().Result()
	require.NoError(t, err)
	assert.Equal(t, "Second", info.DeviceName)
	assert.Equal(t, 1, second.Accepted())
}

func TestClient_SameEndpointKeepsConnection(t *testing.T) {
	sim := startSim(t, "Plc30 App")
	c := newClient(t, sim)

	_, err := c.GetPlcState().Result()
	require.NoError(t, err)

	s := settingsFor(sim)
	s.Timeout = 2 * time.Second
	s.Develop.Debug = true
	c.SetSettings(s)

	_, err = c.GetPlcState().Result()
	require.NoError(t, err)
	assert.Equal(t, 1, sim.Accepted())
}

func TestClient_ReconnectsAfterLinkLoss(t *testing.T) {
	sim := startSim(t, "Plc30 App")
	c := newClient(t, sim)

	_, err := c.GetPlcState().Result()
	require.NoError(t, err)

	addr := sim.Addr()
	require.NoError(t, sim.Close())

	revived := plcsim.New()
	require.NoError(t, revived.Start(addr))
	t.Cleanup(func() { revived.Close() })

	assert.Eventually(t, func() bool {
		_, err := c.GetPlcState().Result()
		return err == nil
	}, 3*time.Second, 20*time.Millisecond)
	assert.GreaterOrEqual(t, revived.Accepted(), 1)
}

func TestClient_Timeout(t *testing.T) {
	sim := startSim(t, "Plc30 App")
	s := settingsFor(sim)
	s.Timeout = 100 * time.Millisecond
	c := beckhoff.New()
	c.SetSettings(s)
	defer c.Destroy()

	sim.Stall(true)
	_, err := c.GetPlcState().Result()
	assert.ErrorIs(t, err, adsprotocol.ErrTimeout)
}

func TestClient_InvalidSettings(t *testing.T) {
	c := beckhoff.New()
	defer c.Destroy()
	c.SetSettings(beckhoff.Settings{PLC: beckhoff.PLC{IP: "127.0.0.1"}, Remote: beckhoff.Endpoint{NetID: "bad"}})
	_, err := c.GetPlcInfo().Result()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "remote net-id")
}

func TestClient_Destroy(t *testing.T) {
	sim := startSim(t, "Plc30 App")
	c := beckhoff.New()
	c.SetSettings(settingsFor(sim))

	_, err := c.GetPlcInfo().Result()
	require.NoError(t, err)

	require.NoError(t, c.Destroy())
	require.NoError(t, c.Destroy())

	_, err = c.GetPlcInfo().Result()
	assert.ErrorIs(t, err, beckhoff.ErrDestroyed)
}
