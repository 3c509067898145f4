package fleet

import (
	"errors"
	"fmt"
	"os"
)

// Default values for Config fields left unset, per spec §6.
const (
	DefaultPort        = 19353
	DefaultServiceName = "FLEXlm License Manager"
	DefaultOptFileExt  = ".opt"
)

// ErrInvalidConfiguration is returned by NewManager when required
// configuration is missing, per the fail-fast construction policy of
// spec §7.
var ErrInvalidConfiguration = errors.New("fleet: invalid configuration")

// Config is the Fleet Manager's construction-time configuration, per spec
// §6.
type Config struct {
	CurrentHost    string
	HostsToMonitor []string
	FeatureName    string
	ToolPath       string
	Vendor         string
	OptionFilePath string // defaults to "<vendor>.opt"
	Port           int    // defaults to DefaultPort
	ServiceName    string // defaults to DefaultServiceName
	Mock           bool
}

// withDefaults returns a copy of cfg with every zero-valued optional field
// filled in, per spec §6.
func (c Config) withDefaults() Config {
	if c.OptionFilePath == "" {
		c.OptionFilePath = c.Vendor + DefaultOptFileExt
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.ServiceName == "" {
		c.ServiceName = DefaultServiceName
	}
	return c
}

// validate enforces the fail-fast construction policy of spec §7.
func (c Config) validate() error {
	if c.ToolPath == "" {
		return errors.Join(ErrInvalidConfiguration, errors.New("toolPath is required"))
	}
	if c.CurrentHost == "" {
		return errors.Join(ErrInvalidConfiguration, errors.New("currentHost is required"))
	}
	if len(c.HostsToMonitor) == 0 {
		return errors.Join(ErrInvalidConfiguration, errors.New("hostsToMonitor must not be empty"))
	}
	if c.FeatureName == "" {
		return errors.Join(ErrInvalidConfiguration, errors.New("featureName is required"))
	}
	if c.Vendor == "" {
		return errors.Join(ErrInvalidConfiguration, errors.New("vendor is required"))
	}
	if _, err := os.Stat(c.ToolPath); err != nil {
		return errors.Join(ErrInvalidConfiguration, fmt.Errorf("toolPath %q not found: %w", c.ToolPath, err))
	}
	return nil
}
