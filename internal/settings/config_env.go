package settings

import (
	"errors"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment variable read by ApplyEnvConfig.
const EnvPrefix = "ADSPROBE_"

// LoadDotEnv exports the variables of a .env file into the process
// environment without overriding variables that are already set. A missing
// file is not an error.
func LoadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err != nil && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// ApplyEnvConfig applies ADSPROBE_* environment variables to cfg, skipping
// values whose flag was explicitly set.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("plc-ip", os.Getenv(EnvPrefix+"PLC_IP"), &cfg.PLCHost)
	if err := s.setIntFromString("plc-port", os.Getenv(EnvPrefix+"PLC_PORT"), &cfg.PLCPort); err != nil {
		return err
	}
	s.setString("remote-netid", os.Getenv(EnvPrefix+"REMOTE_NETID"), &cfg.RemoteNetID)
	if err := s.setIntFromString("remote-port", os.Getenv(EnvPrefix+"REMOTE_PORT"), &cfg.RemotePort); err != nil {
		return err
	}
	s.setString("local-netid", os.Getenv(EnvPrefix+"LOCAL_NETID"), &cfg.LocalNetID)
	if err := s.setIntFromString("local-port", os.Getenv(EnvPrefix+"LOCAL_PORT"), &cfg.LocalPort); err != nil {
		return err
	}
	if err := s.setDuration("timeout", os.Getenv(EnvPrefix+"TIMEOUT"), &cfg.LibraryTimeout); err != nil {
		return err
	}
	if err := s.setDuration("wrapper-timeout", os.Getenv(EnvPrefix+"WRAPPER_TIMEOUT"), &cfg.WrapperTimeout); err != nil {
		return err
	}
	s.setBoolFromString("wrapper-debug", os.Getenv(EnvPrefix+"WRAPPER_DEBUG"), &cfg.WrapperDebug)
	return nil
}
