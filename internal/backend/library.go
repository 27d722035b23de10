package backend

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/mikko80/node-beckhoff/adsprotocol"
	"github.com/mikko80/node-beckhoff/internal/catalog"
	"github.com/mikko80/node-beckhoff/internal/settings"
)

// Library drives the callback-style client. Every command opens its own
// connection and closes it once the command has settled.
type Library struct {
	mu   sync.Mutex
	opts adsprotocol.Options
	log  zerolog.Logger
}

// NewLibrary creates the library backend.
func NewLibrary(logger zerolog.Logger) *Library {
	return &Library{log: logger.With().Str("backend", NameLibrary).Logger()}
}

func (l *Library) Name() string { return NameLibrary }

// Configure parses the endpoints and stores the options for later commands.
func (l *Library) Configure(o settings.ConnectionOptions) error {
	opts, err := adsOptions(o, &l.log)
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.opts = opts
	l.mu.Unlock()
	return nil
}

func (l *Library) DeviceInfo(ctx context.Context) (any, error) {
	return l.session(ctx, func(c *adsprotocol.Client, settle func(any, error)) {
		c.ReadDeviceInfo(func(info adsprotocol.DeviceInfo, err error) { settle(info, err) })
	})
}

func (l *Library) State(ctx context.Context) (any, error) {
	return l.session(ctx, func(c *adsprotocol.Client, settle func(any, error)) {
		c.ReadState(func(st adsprotocol.StateInfo, err error) { settle(st, err) })
	})
}

func (l *Library) Symbols(ctx context.Context) ([]adsprotocol.SymbolInfo, error) {
	v, err := l.session(ctx, func(c *adsprotocol.Client, settle func(any, error)) {
		c.GetSymbols(func(syms []adsprotocol.SymbolInfo, err error) { settle(syms, err) })
	})
	if err != nil {
		return nil, err
	}
	return v.([]adsprotocol.SymbolInfo), nil
}

func (l *Library) Read(ctx context.Context, sym catalog.Symbol) (any, error) {
	return l.session(ctx, func(c *adsprotocol.Client, settle func(any, error)) {
		c.Read(toRequest(sym), func(r adsprotocol.SymbolRequest, err error) { settle(r, err) })
	})
}

func (l *Library) ReadMany(ctx context.Context, syms []catalog.Symbol) (any, error) {
	return l.session(ctx, func(c *adsprotocol.Client, settle func(any, error)) {
		c.MultiRead(toRequests(syms), func(r []adsprotocol.SymbolRequest, err error) { settle(r, err) })
	})
}

func (l *Library) Write(ctx context.Context, sym catalog.Symbol) (any, error) {
	return l.session(ctx, func(c *adsprotocol.Client, settle func(any, error)) {
		c.Write(toRequest(sym), func(r adsprotocol.SymbolRequest, err error) { settle(r, err) })
	})
}

func (l *Library) WriteMany(ctx context.Context, syms []catalog.Symbol) (any, error) {
	return l.session(ctx, func(c *adsprotocol.Client, settle func(any, error)) {
		c.MultiWrite(toRequests(syms), func(r []adsprotocol.SymbolRequest, err error) { settle(r, err) })
	})
}

// Close is a no-op; sessions never outlive their command.
func (l *Library) Close() error { return nil }

type outcome struct {
	value any
	err   error
}

// session connects a throwaway client, runs op once the connection is up
// and waits for the first of: the op's result, a background error or a
// timeout. The connection is closed afterwards.
func (l *Library) session(ctx context.Context, op func(c *adsprotocol.Client, settle func(any, error))) (any, error) {
	l.mu.Lock()
	opts := l.opts
	l.mu.Unlock()
	if opts.Host == "" {
		return nil, fmt.Errorf("%s backend is not configured", NameLibrary)
	}

	client := adsprotocol.NewClient(opts)
	results := make(chan outcome, 1)
	var once sync.Once
	settle := func(v any, err error) {
		once.Do(func() { results <- outcome{value: v, err: err} })
	}
	client.OnError(func(err error) {
		l.log.Debug().Err(err).Msg("client error")
		settle(nil, err)
	})
	client.OnTimeout(func(err error) {
		l.log.Debug().Err(err).Msg("client timeout")
		settle(nil, err)
	})
	client.Connect(func() { op(client, settle) })

	select {
	case r := <-results:
		client.Close()
		return r.value, r.err
	case <-ctx.Done():
		// Every path eventually settles through the request timer, so the
		// connection is closed once that happens.
		go func() {
			<-results
			client.Close()
		}()
		return nil, ctx.Err()
	}
}

// adsOptions converts flat connection options into client options.
func adsOptions(o settings.ConnectionOptions, logger *zerolog.Logger) (adsprotocol.Options, error) {
	remote, err := adsprotocol.ParseNetID(o.RemoteNetID)
	if err != nil {
		return adsprotocol.Options{}, fmt.Errorf("remote netid: %w", err)
	}
	local, err := adsprotocol.ParseNetID(o.LocalNetID)
	if err != nil {
		return adsprotocol.Options{}, fmt.Errorf("local netid: %w", err)
	}
	verbose := o.Verbose
	if o.Debug && verbose < 2 {
		verbose = 2
	}
	return adsprotocol.Options{
		Host:    o.Host,
		Port:    o.Port,
		Target:  adsprotocol.Addr{NetID: remote, Port: uint16(o.RemotePort)},
		Source:  adsprotocol.Addr{NetID: local, Port: uint16(o.LocalPort)},
		Timeout: o.Timeout,
		Verbose: verbose,
		Logger:  logger,
	}, nil
}
