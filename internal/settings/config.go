// Package settings loads the static test-driver settings and turns them
// into per-backend connection options.
//
// Values are layered: defaults, then the settings file (YAML or TOML), then
// ADSPROBE_* environment variables (optionally read from a .env file), then
// command-line flags. A layer never overrides a flag the operator set.
package settings

import (
	"fmt"
	"time"

	"github.com/mikko80/node-beckhoff/adsprotocol"
	"github.com/mikko80/node-beckhoff/internal/catalog"
)

// Defaults for the connection settings.
const (
	DefaultPLCPort        = adsprotocol.DefaultTCPPort
	DefaultRemotePort     = adsprotocol.DefaultPLCPort
	DefaultLocalPort      = 32905
	DefaultLibraryTimeout = 15 * time.Second
	DefaultLibraryVerbose = 2
	DefaultWrapperTimeout = 5 * time.Second
)

// Symbols holds the four catalogs as they appear in the settings file.
type Symbols struct {
	Read       []catalog.Symbol   `yaml:"read" toml:"read"`
	ReadMulti  [][]catalog.Symbol `yaml:"readmulti" toml:"readmulti"`
	Write      []catalog.Symbol   `yaml:"write" toml:"write"`
	WriteMulti [][]catalog.Symbol `yaml:"writemulti" toml:"writemulti"`
}

// Catalog builds the rotating catalogs with every cursor at 0.
func (s Symbols) Catalog() *catalog.Catalog {
	return catalog.New(s.Read, s.ReadMulti, s.Write, s.WriteMulti)
}

// Config holds the effective settings.
type Config struct {
	PLCHost string
	PLCPort int

	RemoteNetID string
	RemotePort  int

	LocalNetID string
	LocalPort  int

	LibraryTimeout time.Duration
	LibraryVerbose int

	WrapperTimeout time.Duration
	WrapperVerbose bool
	WrapperDebug   bool

	Symbols Symbols
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		PLCPort:        DefaultPLCPort,
		RemotePort:     DefaultRemotePort,
		LocalPort:      DefaultLocalPort,
		LibraryTimeout: DefaultLibraryTimeout,
		LibraryVerbose: DefaultLibraryVerbose,
		WrapperTimeout: DefaultWrapperTimeout,
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.PLCHost == "" {
		return fmt.Errorf("plc ip is required")
	}
	if err := validatePort("plc port", c.PLCPort); err != nil {
		return err
	}
	if c.RemoteNetID == "" {
		return fmt.Errorf("remote netid is required")
	}
	if _, err := adsprotocol.ParseNetID(c.RemoteNetID); err != nil {
		return fmt.Errorf("remote netid: %w", err)
	}
	if err := validatePort("remote port", c.RemotePort); err != nil {
		return err
	}
	if c.LocalNetID != "" {
		if _, err := adsprotocol.ParseNetID(c.LocalNetID); err != nil {
			return fmt.Errorf("local netid: %w", err)
		}
	}
	if err := validatePort("local port", c.LocalPort); err != nil {
		return err
	}
	if c.LibraryTimeout <= 0 {
		return fmt.Errorf("library timeout must be positive")
	}
	if c.WrapperTimeout <= 0 {
		return fmt.Errorf("wrapper timeout must be positive")
	}
	return c.Symbols.Validate()
}

// Validate checks the catalogs: every entry is named, only write entries
// carry values and every write entry has one, and no group is empty.
func (s Symbols) Validate() error {
	for i, sym := range s.Read {
		if err := validateSymbol(fmt.Sprintf("symbols.read[%d]", i), sym, false); err != nil {
			return err
		}
	}
	for i, group := range s.ReadMulti {
		if len(group) == 0 {
			return fmt.Errorf("symbols.readmulti[%d] is empty", i)
		}
		for j, sym := range group {
			if err := validateSymbol(fmt.Sprintf("symbols.readmulti[%d][%d]", i, j), sym, false); err != nil {
				return err
			}
		}
	}
	for i, sym := range s.Write {
		if err := validateSymbol(fmt.Sprintf("symbols.write[%d]", i), sym, true); err != nil {
			return err
		}
	}
	for i, group := range s.WriteMulti {
		if len(group) == 0 {
			return fmt.Errorf("symbols.writemulti[%d] is empty", i)
		}
		for j, sym := range group {
			if err := validateSymbol(fmt.Sprintf("symbols.writemulti[%d][%d]", i, j), sym, true); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateSymbol(where string, sym catalog.Symbol, write bool) error {
	if sym.Name == "" {
		return fmt.Errorf("%s: name is required", where)
	}
	if write && !sym.HasValue() {
		return fmt.Errorf("%s (%s): value is required", where, sym.Name)
	}
	if !write && sym.HasValue() {
		return fmt.Errorf("%s (%s): read entries must not carry a value", where, sym.Name)
	}
	return nil
}

func validatePort(what string, port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("%s %d out of range 1-65535", what, port)
	}
	return nil
}
