// Package dispatch turns operator input lines into backend calls.
//
// For every protocol verb the dispatcher takes the next entry from the
// matching catalog, rebuilds the connection options from the current
// settings and runs the call through the reporter. The catalog cursor moves
// before the call is made, so failing calls still rotate the list.
package dispatch

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/mikko80/node-beckhoff/internal/backend"
	"github.com/mikko80/node-beckhoff/internal/catalog"
	"github.com/mikko80/node-beckhoff/internal/report"
	"github.com/mikko80/node-beckhoff/internal/settings"
)

// Status tells the session loop whether to keep going.
type Status int

const (
	Continue Status = iota
	Quit
)

// Aliases maps every accepted namespace spelling to its canonical name.
var Aliases = map[string]string{
	backend.NameLibrary: backend.NameLibrary,
	"adsa":              backend.NameLibrary,
	backend.NameWrapper: backend.NameWrapper,
	"bkhf":              backend.NameWrapper,
}

// Dispatcher owns the catalogs and the backends for one session. It is not
// safe for concurrent use; the session loop runs one command at a time.
type Dispatcher struct {
	store    *settings.Store
	catalog  *catalog.Catalog
	backends map[string]backend.Backend
	reporter *report.Reporter
	log      zerolog.Logger
}

// New creates a dispatcher. Backends are keyed by their Name.
func New(store *settings.Store, cat *catalog.Catalog, rep *report.Reporter, logger zerolog.Logger, backends ...backend.Backend) *Dispatcher {
	d := &Dispatcher{
		store:    store,
		catalog:  cat,
		backends: make(map[string]backend.Backend, len(backends)),
		reporter: rep,
		log:      logger.With().Str("component", "dispatch").Logger(),
	}
	for _, b := range backends {
		d.backends[b.Name()] = b
	}
	return d
}

// Catalog returns the catalogs whose cursors the dispatcher advances.
func (d *Dispatcher) Catalog() *catalog.Catalog {
	return d.catalog
}

// Execute handles one input line. It never returns an error: failures are
// reported to the operator and the session continues.
func (d *Dispatcher) Execute(ctx context.Context, line string) Status {
	cmd := Parse(line, Aliases)
	switch cmd.Kind {
	case KindQuit:
		return Quit
	case KindTopHelp:
		d.reporter.Text(topHelp)
	case KindNamespaceHelp:
		d.reporter.Text(namespaceHelp(cmd.Namespace))
	case KindVerb:
		d.run(ctx, cmd)
	}
	return Continue
}

// Close releases every backend.
func (d *Dispatcher) Close() error {
	var first error
	for _, b := range d.backends {
		if err := b.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (d *Dispatcher) run(ctx context.Context, cmd Command) {
	b, ok := d.backends[cmd.Namespace]
	if !ok {
		return
	}
	defer func() {
		if p := recover(); p != nil {
			d.log.Error().Interface("panic", p).Str("verb", string(cmd.Verb)).Msg("backend panicked")
			d.reporter.Report(report.Result{Err: &report.PanicError{Value: p}})
		}
	}()

	d.reporter.Banner(banner(cmd.Namespace, cmd.Verb))

	call, err := d.bind(b, cmd.Verb)
	if err != nil {
		d.reporter.Report(report.Result{Err: err})
		return
	}

	if err := d.configure(b); err != nil {
		d.reporter.Report(report.Result{Err: err})
		return
	}

	d.log.Debug().Str("backend", b.Name()).Str("verb", string(cmd.Verb)).Msg("dispatch")
	d.reporter.Report(report.Measure(func() (any, error) { return call(ctx) }))
}

// configure hands freshly built options to the backend.
func (d *Dispatcher) configure(b backend.Backend) error {
	cfg := d.store.Get()
	local, err := cfg.ResolveLocalNetID()
	if err != nil {
		return err
	}
	opts := cfg.LibraryOptions(local)
	if b.Name() == backend.NameWrapper {
		opts = cfg.WrapperOptions(local)
	}
	return b.Configure(opts)
}

// bind selects the backend call for a verb, taking its catalog entry now.
func (d *Dispatcher) bind(b backend.Backend, v Verb) (func(context.Context) (any, error), error) {
	switch v {
	case VerbInfo:
		return b.DeviceInfo, nil
	case VerbState:
		return b.State, nil
	case VerbSymbol:
		return func(ctx context.Context) (any, error) {
			syms, err := b.Symbols(ctx)
			if err != nil {
				return nil, err
			}
			d.log.Debug().Interface("symbols", syms).Msg("symbol list")
			return fmt.Sprintf("OK - %d", len(syms)), nil
		}, nil
	case VerbRead:
		sym, err := take(d.catalog.Read, catalog.KindRead)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context) (any, error) { return b.Read(ctx, sym) }, nil
	case VerbReadMulti:
		group, err := take(d.catalog.ReadMulti, catalog.KindReadMulti)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context) (any, error) { return b.ReadMany(ctx, group) }, nil
	case VerbWrite:
		sym, err := take(d.catalog.Write, catalog.KindWrite)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context) (any, error) { return b.Write(ctx, sym) }, nil
	case VerbWriteMulti:
		group, err := take(d.catalog.WriteMulti, catalog.KindWriteMulti)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context) (any, error) { return b.WriteMany(ctx, group) }, nil
	}
	return nil, fmt.Errorf("unknown verb %q", v)
}

func take[T any](r *catalog.Rotation[T], kind catalog.Kind) (T, error) {
	item, err := r.Take()
	if err != nil {
		return item, fmt.Errorf("%s list: %w", kind, err)
	}
	return item, nil
}
