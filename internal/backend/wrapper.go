package backend

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/mikko80/node-beckhoff/adsprotocol"
	"github.com/mikko80/node-beckhoff/beckhoff"
	"github.com/mikko80/node-beckhoff/internal/catalog"
	"github.com/mikko80/node-beckhoff/internal/settings"
)

// Wrapper drives one long-lived beckhoff.Client for the whole session.
type Wrapper struct {
	plc       *beckhoff.Client
	log       zerolog.Logger
	closeOnce sync.Once
	closeErr  error
}

// NewWrapper creates the wrapper backend. The client does not dial until
// the first command.
func NewWrapper(logger zerolog.Logger) *Wrapper {
	return &Wrapper{
		plc: beckhoff.New(),
		log: logger.With().Str("backend", NameWrapper).Logger(),
	}
}

func (w *Wrapper) Name() string { return NameWrapper }

// Configure hands fresh settings to the client; it reconnects only when the
// endpoint changed.
func (w *Wrapper) Configure(o settings.ConnectionOptions) error {
	w.plc.SetSettings(beckhoff.Settings{
		PLC:    beckhoff.PLC{IP: o.Host, Port: o.Port},
		Remote: beckhoff.Endpoint{NetID: o.RemoteNetID, Port: o.RemotePort},
		Local:  beckhoff.Endpoint{NetID: o.LocalNetID, Port: o.LocalPort},
		Develop: beckhoff.Develop{
			Verbose: o.Verbose > 0,
			Debug:   o.Debug,
		},
		Timeout: o.Timeout,
		Logger:  &w.log,
	})
	return nil
}

func (w *Wrapper) DeviceInfo(ctx context.Context) (any, error) {
	return w.plc.GetPlcInfo().Await(ctx)
}

func (w *Wrapper) State(ctx context.Context) (any, error) {
	return w.plc.GetPlcState().Await(ctx)
}

func (w *Wrapper) Symbols(ctx context.Context) ([]adsprotocol.SymbolInfo, error) {
	return w.plc.GetPlcSymbols().Await(ctx)
}

func (w *Wrapper) Read(ctx context.Context, sym catalog.Symbol) (any, error) {
	return w.plc.ReadPlcData(toWrapperSymbol(sym)).Await(ctx)
}

func (w *Wrapper) ReadMany(ctx context.Context, syms []catalog.Symbol) (any, error) {
	return w.plc.ReadPlcData(toWrapperSymbols(syms)...).Await(ctx)
}

func (w *Wrapper) Write(ctx context.Context, sym catalog.Symbol) (any, error) {
	return w.plc.WritePlcData(toWrapperSymbol(sym)).Await(ctx)
}

func (w *Wrapper) WriteMany(ctx context.Context, syms []catalog.Symbol) (any, error) {
	return w.plc.WritePlcData(toWrapperSymbols(syms)...).Await(ctx)
}

// Close destroys the client. Later calls return the first result.
func (w *Wrapper) Close() error {
	w.closeOnce.Do(func() {
		w.closeErr = w.plc.Destroy()
		w.log.Debug().Msg("destroyed")
	})
	return w.closeErr
}

func toWrapperSymbol(s catalog.Symbol) beckhoff.Symbol {
	return beckhoff.Symbol{Name: s.Name, Value: s.Value}
}

func toWrapperSymbols(syms []catalog.Symbol) []beckhoff.Symbol {
	out := make([]beckhoff.Symbol, len(syms))
	for i, s := range syms {
		out[i] = toWrapperSymbol(s)
	}
	return out
}
