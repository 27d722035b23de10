package settings

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// DefaultSettingsFile is read when no --settings flag is given.
const DefaultSettingsFile = "settings.yaml"

// FileConfig mirrors the settings file. Durations are strings ("15s") or
// bare integers counted in milliseconds.
type FileConfig struct {
	PLC struct {
		IP   string `yaml:"ip" toml:"ip"`
		Port int    `yaml:"port" toml:"port"`
	} `yaml:"plc" toml:"plc"`
	Remote struct {
		NetID string `yaml:"netid" toml:"netid"`
		Port  int    `yaml:"port" toml:"port"`
	} `yaml:"remote" toml:"remote"`
	Local struct {
		NetID string `yaml:"netid" toml:"netid"`
		Port  int    `yaml:"port" toml:"port"`
	} `yaml:"local" toml:"local"`
	Library struct {
		Timeout string `yaml:"timeout" toml:"timeout"`
		Verbose *int   `yaml:"verbose" toml:"verbose"`
	} `yaml:"library" toml:"library"`
	Wrapper struct {
		Timeout string `yaml:"timeout" toml:"timeout"`
		Verbose *bool  `yaml:"verbose" toml:"verbose"`
		Debug   *bool  `yaml:"debug" toml:"debug"`
	} `yaml:"wrapper" toml:"wrapper"`
	Symbols Symbols `yaml:"symbols" toml:"symbols"`
}

// LoadFileConfig reads a settings file. Files ending in .toml are parsed as
// TOML, everything else as YAML.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if err := toml.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse %s: %w", path, err)
		}
		return fc, nil
	}
	if err := yaml.Unmarshal(b, &fc); err != nil {
		return fc, fmt.Errorf("parse %s: %w", path, err)
	}
	return fc, nil
}

// ApplyFileConfig applies configuration from a file to cfg, skipping
// values whose flag was explicitly set.
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("plc-ip", fc.PLC.IP, &cfg.PLCHost)
	s.setInt("plc-port", fc.PLC.Port, &cfg.PLCPort)
	s.setString("remote-netid", fc.Remote.NetID, &cfg.RemoteNetID)
	s.setInt("remote-port", fc.Remote.Port, &cfg.RemotePort)
	s.setString("local-netid", fc.Local.NetID, &cfg.LocalNetID)
	s.setInt("local-port", fc.Local.Port, &cfg.LocalPort)

	if err := s.setDuration("timeout", fc.Library.Timeout, &cfg.LibraryTimeout); err != nil {
		return err
	}
	if fc.Library.Verbose != nil && !changed["library-verbose"] {
		cfg.LibraryVerbose = *fc.Library.Verbose
	}
	if err := s.setDuration("wrapper-timeout", fc.Wrapper.Timeout, &cfg.WrapperTimeout); err != nil {
		return err
	}
	s.setBool("wrapper-verbose", fc.Wrapper.Verbose, &cfg.WrapperVerbose)
	s.setBool("wrapper-debug", fc.Wrapper.Debug, &cfg.WrapperDebug)

	if len(fc.Symbols.Read) > 0 {
		cfg.Symbols.Read = fc.Symbols.Read
	}
	if len(fc.Symbols.ReadMulti) > 0 {
		cfg.Symbols.ReadMulti = fc.Symbols.ReadMulti
	}
	if len(fc.Symbols.Write) > 0 {
		cfg.Symbols.Write = fc.Symbols.Write
	}
	if len(fc.Symbols.WriteMulti) > 0 {
		cfg.Symbols.WriteMulti = fc.Symbols.WriteMulti
	}
	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

// configSetter applies configuration values while respecting flag precedence.
type configSetter struct {
	changed map[string]bool
}

func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setDuration accepts a Go duration string or a bare millisecond count.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := parseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i <= 0 {
		return nil
	}
	*dst = i
	return nil
}

// setBoolFromString accepts "true" and "1" as true, anything else as false.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}

func parseDuration(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	return time.ParseDuration(value)
}
