package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load builds a FileConfig with precedence ENV > file > defaults: it
// starts from Default(), merges in path's YAML contents (strict: unknown
// keys error out) if path is non-empty, then applies every FLEXSENTRY_*
// environment override, and finally validates the result.
func Load(path string) (FileConfig, error) {
	cfg := Default()

	if path != "" {
		fileCfg, err := loadFile(path)
		if err != nil {
			return FileConfig{}, err
		}
		mergeFile(&cfg, fileCfg)
	}

	applyEnvOverrides(&cfg)

	if err := Validate(cfg); err != nil {
		return FileConfig{}, err
	}
	return cfg, nil
}

// loadFile strictly decodes path as YAML into a FileConfig, rejecting
// unknown keys so a typo'd config key fails fast rather than silently
// being ignored.
func loadFile(path string) (FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return FileConfig{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	var fileCfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&fileCfg); err != nil {
		if errors.Is(err, io.EOF) {
			return FileConfig{}, nil
		}
		if strings.Contains(err.Error(), "field") && strings.Contains(err.Error(), "not found") {
			return FileConfig{}, fmt.Errorf("%w: %v", ErrUnknownConfigField, err)
		}
		return FileConfig{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return fileCfg, nil
}

// mergeFile overlays every non-zero field of file onto cfg, so a config
// file only needs to set the fields it cares about.
func mergeFile(cfg *FileConfig, file FileConfig) {
	if file.LogLevel != "" {
		cfg.LogLevel = file.LogLevel
	}
	if file.MonitorInterval != 0 {
		cfg.MonitorInterval = file.MonitorInterval
	}

	mergeFleet(&cfg.Fleet, file.Fleet)
	mergeMail(&cfg.Mail, file.Mail)

	if file.LogSaver.SaveDir != "" {
		cfg.LogSaver.SaveDir = file.LogSaver.SaveDir
	}
	if file.LogSaver.LogFilePath != "" {
		cfg.LogSaver.LogFilePath = file.LogSaver.LogFilePath
	}

	mergeStrategy(&cfg.Strategy, file.Strategy)

	if file.API.ListenAddr != "" {
		cfg.API.ListenAddr = file.API.ListenAddr
	}
	if file.API.RateLimitPerMin != 0 {
		cfg.API.RateLimitPerMin = file.API.RateLimitPerMin
	}
}

func mergeFleet(cfg *FleetSection, file FleetSection) {
	if file.CurrentHost != "" {
		cfg.CurrentHost = file.CurrentHost
	}
	if len(file.HostsToMonitor) > 0 {
		cfg.HostsToMonitor = file.HostsToMonitor
	}
	if file.FeatureName != "" {
		cfg.FeatureName = file.FeatureName
	}
	if file.ToolPath != "" {
		cfg.ToolPath = file.ToolPath
	}
	if file.Vendor != "" {
		cfg.Vendor = file.Vendor
	}
	if file.OptionFilePath != "" {
		cfg.OptionFilePath = file.OptionFilePath
	}
	if file.Port != 0 {
		cfg.Port = file.Port
	}
	if file.ServiceName != "" {
		cfg.ServiceName = file.ServiceName
	}
	if file.Mock {
		cfg.Mock = true
	}
}

func mergeMail(cfg *MailSection, file MailSection) {
	if file.FromAddr != "" {
		cfg.FromAddr = file.FromAddr
	}
	if file.FromName != "" {
		cfg.FromName = file.FromName
	}
	if file.SMTPHost != "" {
		cfg.SMTPHost = file.SMTPHost
	}
	if file.SMTPPort != 0 {
		cfg.SMTPPort = file.SMTPPort
	}
	if file.SMTPTimeout != 0 {
		cfg.SMTPTimeout = file.SMTPTimeout
	}
	if len(file.AdminAddrs) > 0 {
		cfg.AdminAddrs = file.AdminAddrs
	}
	if file.Mock {
		cfg.Mock = true
	}
	// SendMails defaults true; a config file can only turn it off via
	// FLEXSENTRY_MAIL_SEND=false, since this merge can't distinguish an
	// explicit "false" from the zero value.
}

func mergeStrategy(cfg *StrategySection, file StrategySection) {
	if file.MinFreePercentage != 0 {
		cfg.MinFreePercentage = file.MinFreePercentage
	}
	if file.MaxFreePercentage != 0 {
		cfg.MaxFreePercentage = file.MaxFreePercentage
	}
	if file.KeepStateTimeout != 0 {
		cfg.KeepStateTimeout = file.KeepStateTimeout
	}
	if file.WarnThreshold != 0 {
		cfg.WarnThreshold = file.WarnThreshold
	}
	if file.WarnDelay != 0 {
		cfg.WarnDelay = file.WarnDelay
	}
}

// Validate enforces the fail-fast construction policy of spec §7 at the
// configuration layer, before any component is constructed from it.
func Validate(cfg FileConfig) error {
	if cfg.Fleet.ToolPath == "" {
		return fmt.Errorf("%w: fleet.toolPath is required", ErrInvalidConfig)
	}
	if cfg.Fleet.CurrentHost == "" {
		return fmt.Errorf("%w: fleet.currentHost is required", ErrInvalidConfig)
	}
	if len(cfg.Fleet.HostsToMonitor) == 0 {
		return fmt.Errorf("%w: fleet.hostsToMonitor must not be empty", ErrInvalidConfig)
	}
	if cfg.Fleet.FeatureName == "" {
		return fmt.Errorf("%w: fleet.featureName is required", ErrInvalidConfig)
	}
	if cfg.Fleet.Vendor == "" {
		return fmt.Errorf("%w: fleet.vendor is required", ErrInvalidConfig)
	}
	if cfg.Mail.FromAddr == "" {
		return fmt.Errorf("%w: mail.fromAddr is required", ErrInvalidConfig)
	}
	return nil
}
