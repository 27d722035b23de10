// Package backend exposes the two PLC client variants under test behind one
// interface: the callback-style adsprotocol library, driven with a fresh
// connection per command, and the persistent beckhoff wrapper.
package backend

import (
	"context"

	"github.com/mikko80/node-beckhoff/adsprotocol"
	"github.com/mikko80/node-beckhoff/internal/catalog"
	"github.com/mikko80/node-beckhoff/internal/settings"
)

// Backend is one client variant. Payloads are JSON-encodable.
type Backend interface {
	// Name is the namespace the backend answers to.
	Name() string
	// Configure applies connection options ahead of the next command.
	Configure(opts settings.ConnectionOptions) error

	DeviceInfo(ctx context.Context) (any, error)
	State(ctx context.Context) (any, error)
	Symbols(ctx context.Context) ([]adsprotocol.SymbolInfo, error)
	Read(ctx context.Context, sym catalog.Symbol) (any, error)
	ReadMany(ctx context.Context, syms []catalog.Symbol) (any, error)
	Write(ctx context.Context, sym catalog.Symbol) (any, error)
	WriteMany(ctx context.Context, syms []catalog.Symbol) (any, error)

	// Close releases any connection the backend holds.
	Close() error
}

// Namespace names.
const (
	NameLibrary = "library"
	NameWrapper = "wrapper"
)

func toRequest(s catalog.Symbol) adsprotocol.SymbolRequest {
	return adsprotocol.SymbolRequest{SymName: s.Name, Value: s.Value}
}

func toRequests(syms []catalog.Symbol) []adsprotocol.SymbolRequest {
	out := make([]adsprotocol.SymbolRequest, len(syms))
	for i, s := range syms {
		out[i] = toRequest(s)
	}
	return out
}
