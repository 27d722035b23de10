// Package beckhoff is a high level client for Beckhoff TwinCAT PLCs.
//
// Unlike the callback-style adsprotocol.Client it wraps, a beckhoff.Client
// is long lived: it connects on first use, keeps the connection open across
// calls, caches resolved symbol information and reconnects after the link
// drops or the endpoint settings change. Every operation returns a Future.
//
//	plc := beckhoff.New()
//	plc.SetSettings(settings)
//	defer plc.Destroy()
//
//	values, err := plc.ReadPlcData(beckhoff.Symbol{Name: "MAIN.counter"}).Result()
package beckhoff

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mikko80/node-beckhoff/adsprotocol"
)

// DefaultTimeout bounds each request when Settings.Timeout is zero.
const DefaultTimeout = 5 * time.Second

var (
	// ErrDestroyed is returned by operations issued after Destroy.
	ErrDestroyed = errors.New("beckhoff client destroyed")

	// ErrNoSymbols is returned by data operations called without symbols.
	ErrNoSymbols = errors.New("no symbols given")
)

// PLC locates the AMS router of the controller.
type PLC struct {
	IP   string
	Port int
}

// Endpoint is a logical AMS endpoint in dotted net-id form.
type Endpoint struct {
	NetID string
	Port  int
}

// Develop toggles client diagnostics.
type Develop struct {
	Verbose bool
	Debug   bool
}

// Settings configures the client. They may be replaced between calls.
type Settings struct {
	PLC     PLC
	Remote  Endpoint
	Local   Endpoint
	Develop Develop
	Timeout time.Duration
	Logger  *zerolog.Logger
}

func (s Settings) endpointKey() string {
	return fmt.Sprintf("%s:%d|%s:%d|%s:%d", s.PLC.IP, s.PLC.Port,
		s.Remote.NetID, s.Remote.Port, s.Local.NetID, s.Local.Port)
}

func (s Settings) adsOptions() (adsprotocol.Options, error) {
	remote, err := adsprotocol.ParseNetID(s.Remote.NetID)
	if err != nil {
		return adsprotocol.Options{}, fmt.Errorf("remote net-id: %w", err)
	}
	local, err := adsprotocol.ParseNetID(s.Local.NetID)
	if err != nil {
		return adsprotocol.Options{}, fmt.Errorf("local net-id: %w", err)
	}
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	verbose := 0
	if s.Develop.Verbose {
		verbose = 1
	}
	if s.Develop.Debug {
		verbose = 2
	}
	return adsprotocol.Options{
		Host:    s.PLC.IP,
		Port:    s.PLC.Port,
		Target:  adsprotocol.Addr{NetID: remote, Port: uint16(s.Remote.Port)},
		Source:  adsprotocol.Addr{NetID: local, Port: uint16(s.Local.Port)},
		Timeout: timeout,
		Verbose: verbose,
		Logger:  s.Logger,
	}, nil
}

// Symbol is a named PLC variable. Reads fill Value and Type.
type Symbol struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
	Type  string `json:"type,omitempty"`
}

// Client is a persistent, future-style PLC client.
//
// Operations are executed one at a time in the order they were issued.
type Client struct {
	opMu sync.Mutex

	mu        sync.Mutex
	settings  Settings
	log       zerolog.Logger
	conn      *adsprotocol.Client
	connKey   string
	cache     map[string]adsprotocol.SymbolInfo
	destroyed bool
}

// New creates a client with empty settings. Nothing is dialed until the
// first operation.
func New() *Client {
	return &Client{
		log:   zerolog.Nop(),
		cache: make(map[string]adsprotocol.SymbolInfo),
	}
}

// SetSettings replaces the settings. When the endpoint changes the current
// connection is dropped and the next operation reconnects.
func (c *Client) SetSettings(s Settings) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	c.settings = s
	c.log = zerolog.Nop()
	if s.Logger != nil {
		c.log = s.Logger.With().Str("component", "beckhoff").Logger()
	}
	var stale *adsprotocol.Client
	if c.conn != nil && c.connKey != s.endpointKey() {
		stale = c.conn
		c.conn = nil
		c.cache = make(map[string]adsprotocol.SymbolInfo)
	}
	c.mu.Unlock()

	if stale != nil {
		c.log.Debug().Msg("endpoint changed, dropping connection")
		stale.Close()
	}
}

// Settings returns the current settings.
func (c *Client) Settings() Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings
}

// GetPlcInfo reads the device name and runtime version.
func (c *Client) GetPlcInfo() *Future[adsprotocol.DeviceInfo] {
	return run(c, func(conn *adsprotocol.Client) (adsprotocol.DeviceInfo, error) {
		return call(conn.ReadDeviceInfo)
	})
}

// GetPlcState reads the ADS and device state.
func (c *Client) GetPlcState() *Future[adsprotocol.StateInfo] {
	return run(c, func(conn *adsprotocol.Client) (adsprotocol.StateInfo, error) {
		return call(conn.ReadState)
	})
}

// GetPlcSymbols uploads the full symbol table and refreshes the cache.
func (c *Client) GetPlcSymbols() *Future[[]adsprotocol.SymbolInfo] {
	return run(c, func(conn *adsprotocol.Client) ([]adsprotocol.SymbolInfo, error) {
		symbols, err := call(conn.GetSymbols)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		for _, s := range symbols {
			c.cache[s.Name] = s
		}
		c.mu.Unlock()
		return symbols, nil
	})
}

// ReadPlcData reads one or more symbols. Several symbols are read in a
// single sum-up request and fail together.
func (c *Client) ReadPlcData(symbols ...Symbol) *Future[[]Symbol] {
	symbols = append([]Symbol(nil), symbols...)
	return run(c, func(conn *adsprotocol.Client) ([]Symbol, error) {
		if len(symbols) == 0 {
			return nil, ErrNoSymbols
		}
		infos, err := c.resolve(conn, symbols)
		if err != nil {
			return nil, err
		}

		var values []any
		if len(infos) == 1 {
			v, err := call(func(cb func(any, error)) { conn.ReadSymbol(infos[0], cb) })
			if err != nil {
				return nil, err
			}
			values = []any{v}
		} else {
			values, err = call(func(cb func([]any, error)) { conn.SumRead(infos, cb) })
			if err != nil {
				return nil, err
			}
		}

		out := make([]Symbol, len(symbols))
		for i, s := range symbols {
			out[i] = Symbol{Name: s.Name, Value: values[i], Type: infos[i].Type}
		}
		return out, nil
	})
}

// WritePlcData writes one or more symbols. Several symbols are written in a
// single sum-up request and fail together.
func (c *Client) WritePlcData(symbols ...Symbol) *Future[[]Symbol] {
	symbols = append([]Symbol(nil), symbols...)
	return run(c, func(conn *adsprotocol.Client) ([]Symbol, error) {
		if len(symbols) == 0 {
			return nil, ErrNoSymbols
		}
		infos, err := c.resolve(conn, symbols)
		if err != nil {
			return nil, err
		}

		if len(infos) == 1 {
			err = callErr(func(cb func(error)) { conn.WriteSymbol(infos[0], symbols[0].Value, cb) })
		} else {
			values := make([]any, len(symbols))
			for i, s := range symbols {
				values[i] = s.Value
			}
			err = callErr(func(cb func(error)) { conn.SumWrite(infos, values, cb) })
		}
		if err != nil {
			return nil, err
		}

		out := make([]Symbol, len(symbols))
		for i, s := range symbols {
			out[i] = Symbol{Name: s.Name, Value: s.Value, Type: infos[i].Type}
		}
		return out, nil
	})
}

// Destroy closes the connection for good. Pending operations fail and new
// ones return ErrDestroyed. Destroying twice is a no-op.
func (c *Client) Destroy() error {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return nil
	}
	c.destroyed = true
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}

// run executes op on the shared connection in the background.
func run[T any](c *Client, op func(conn *adsprotocol.Client) (T, error)) *Future[T] {
	f := newFuture[T]()
	go func() {
		c.opMu.Lock()
		defer c.opMu.Unlock()

		conn, err := c.connection()
		if err != nil {
			var zero T
			f.resolve(zero, err)
			return
		}
		f.resolve(op(conn))
	}()
	return f
}

// connection returns the live connection, dialing a new one when needed.
// Callers hold opMu.
func (c *Client) connection() (*adsprotocol.Client, error) {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return nil, ErrDestroyed
	}
	if c.conn != nil && c.conn.IsConnected() {
		conn := c.conn
		c.mu.Unlock()
		return conn, nil
	}
	settings := c.settings
	c.mu.Unlock()

	opts, err := settings.adsOptions()
	if err != nil {
		return nil, err
	}
	conn := adsprotocol.NewClient(opts)
	conn.OnError(func(err error) { c.dropConnection(conn, err) })
	if err := conn.ConnectWithContext(context.Background()); err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		conn.Close()
		return nil, ErrDestroyed
	}
	c.conn = conn
	c.connKey = settings.endpointKey()
	c.cache = make(map[string]adsprotocol.SymbolInfo)
	c.mu.Unlock()

	c.log.Debug().Str("host", opts.Host).Int("port", opts.Port).Msg("connected")
	return conn, nil
}

// dropConnection forgets conn after the link failed. It runs on the
// connection's reader goroutine and must not close conn.
func (c *Client) dropConnection(conn *adsprotocol.Client, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != conn {
		return
	}
	c.conn = nil
	c.cache = make(map[string]adsprotocol.SymbolInfo)
	c.log.Warn().Err(err).Msg("connection lost")
}

// resolve maps symbols to table entries, consulting the cache first. A
// failure inside a batch is reported as one aggregate error.
func (c *Client) resolve(conn *adsprotocol.Client, symbols []Symbol) ([]adsprotocol.SymbolInfo, error) {
	infos := make([]adsprotocol.SymbolInfo, len(symbols))
	for i, s := range symbols {
		c.mu.Lock()
		info, ok := c.cache[s.Name]
		c.mu.Unlock()
		if !ok {
			var err error
			info, err = call(func(cb func(adsprotocol.SymbolInfo, error)) { conn.ReadSymbolInfo(s.Name, cb) })
			if err != nil {
				if len(symbols) > 1 {
					return nil, &adsprotocol.SumError{Total: len(symbols), Failed: 1, First: err}
				}
				return nil, err
			}
			c.mu.Lock()
			c.cache[s.Name] = info
			c.mu.Unlock()
		}
		infos[i] = info
	}
	return infos, nil
}
