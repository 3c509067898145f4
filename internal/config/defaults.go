package config

import (
	"time"

	"github.com/netixx/flexsentry/internal/fleet"
	"github.com/netixx/flexsentry/internal/notify"
)

// DefaultMonitorInterval is how often the Fleet Manager runs a
// monitoring cycle when not overridden.
const DefaultMonitorInterval = 5 * time.Minute

// Default strategy thresholds, matching the original Python monitor's
// hardcoded constants (spec §8's scenarios are built against these).
const (
	DefaultMinFreePercentage = 0.10
	DefaultMaxFreePercentage = 1.0
	DefaultKeepStateTimeout  = time.Hour
	DefaultWarnThreshold     = 0.20
	DefaultWarnDelay         = 30 * time.Minute
)

// DefaultListenAddr is the status API's default bind address.
const DefaultListenAddr = ":8089"

// DefaultRateLimitPerMin bounds status API requests per caller.
const DefaultRateLimitPerMin = 60

// Default returns a FileConfig with every field set to its package
// default. Load starts from this before applying the file and
// environment.
func Default() FileConfig {
	return FileConfig{
		LogLevel:        "info",
		MonitorInterval: DefaultMonitorInterval,
		Fleet: FleetSection{
			Port:        fleet.DefaultPort,
			ServiceName: fleet.DefaultServiceName,
		},
		Mail: MailSection{
			FromName:    notify.DefaultFromName,
			SMTPHost:    notify.DefaultSMTPHost,
			SMTPPort:    notify.DefaultSMTPPort,
			SMTPTimeout: notify.DefaultSMTPTimeout,
			AdminAddrs:  notify.DefaultAdminAddrs,
			SendMails:   true,
		},
		Strategy: StrategySection{
			MinFreePercentage: DefaultMinFreePercentage,
			MaxFreePercentage: DefaultMaxFreePercentage,
			KeepStateTimeout:  DefaultKeepStateTimeout,
			WarnThreshold:     DefaultWarnThreshold,
			WarnDelay:         DefaultWarnDelay,
		},
		API: APISection{
			ListenAddr:      DefaultListenAddr,
			RateLimitPerMin: DefaultRateLimitPerMin,
		},
	}
}
