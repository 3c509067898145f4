// Package config loads flexsentry's file+environment configuration and
// hot-reloads it from disk.
package config

import "time"

// FileConfig is the on-disk YAML shape plus environment overrides. Zero
// values mean "use the package default" for everything downstream
// (fleet.Config, notify.Config) that already carries its own defaults.
type FileConfig struct {
	LogLevel string `yaml:"logLevel"`

	MonitorInterval time.Duration `yaml:"monitorInterval"`

	Fleet    FleetSection    `yaml:"fleet"`
	Mail     MailSection     `yaml:"mail"`
	LogSaver LogSaverSection `yaml:"logSaver"`
	Strategy StrategySection `yaml:"strategy"`

	API APISection `yaml:"api"`
}

// FleetSection mirrors fleet.Config's constructor surface.
type FleetSection struct {
	CurrentHost    string   `yaml:"currentHost"`
	HostsToMonitor []string `yaml:"hostsToMonitor"`
	FeatureName    string   `yaml:"featureName"`
	ToolPath       string   `yaml:"toolPath"`
	Vendor         string   `yaml:"vendor"`
	OptionFilePath string   `yaml:"optionFilePath"`
	Port           int      `yaml:"port"`
	ServiceName    string   `yaml:"serviceName"`
	Mock           bool     `yaml:"mock"`
}

// MailSection mirrors notify.Config's constructor surface.
type MailSection struct {
	FromAddr    string        `yaml:"fromAddr"`
	FromName    string        `yaml:"fromName"`
	SMTPHost    string        `yaml:"smtpHost"`
	SMTPPort    int           `yaml:"smtpPort"`
	SMTPTimeout time.Duration `yaml:"smtpTimeout"`
	AdminAddrs  []string      `yaml:"adminAddrs"`
	Mock        bool          `yaml:"mock"`
	SendMails   bool          `yaml:"sendMails"`
}

// LogSaverSection mirrors logsaver.New's constructor surface.
type LogSaverSection struct {
	SaveDir     string `yaml:"saveDir"`
	LogFilePath string `yaml:"logFilePath"`
}

// StrategySection configures the two built-in strategies, per spec §4.7/§4.8.
type StrategySection struct {
	MinFreePercentage float64       `yaml:"minFreePercentage"`
	MaxFreePercentage float64       `yaml:"maxFreePercentage"`
	KeepStateTimeout  time.Duration `yaml:"keepStateTimeout"`
	WarnThreshold     float64       `yaml:"warnThreshold"`
	WarnDelay         time.Duration `yaml:"warnDelay"`
}

// APISection configures the status/health HTTP surface.
type APISection struct {
	ListenAddr      string `yaml:"listenAddr"`
	RateLimitPerMin int    `yaml:"rateLimitPerMin"`
}
