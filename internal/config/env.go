package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/netixx/flexsentry/internal/xlog"
)

// envPrefix namespaces every environment override this package reads.
const envPrefix = "FLEXSENTRY_"

func envKey(suffix string) string { return envPrefix + suffix }

// parseString reads key from the environment, falling back to def when
// unset. Env always wins over whatever the file or package default set,
// per spec §9's explicit-argument precedence.
func parseString(key, def string) string {
	log := xlog.Component("config")
	if v, ok := os.LookupEnv(key); ok {
		if v == "" {
			log.Debug().Str("key", key).Msg("env var empty, keeping existing value")
			return def
		}
		log.Debug().Str("key", key).Msg("using environment override")
		return v
	}
	return def
}

func parseInt(key string, def int) int {
	log := xlog.Component("config")
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		log.Warn().Str("key", key).Str("value", v).Msg("invalid integer in environment, keeping existing value")
		return def
	}
	return i
}

func parseFloat(key string, def float64) float64 {
	log := xlog.Component("config")
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Warn().Str("key", key).Str("value", v).Msg("invalid float in environment, keeping existing value")
		return def
	}
	return f
}

func parseBool(key string, def bool) bool {
	log := xlog.Component("config")
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	switch strings.ToLower(v) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		log.Warn().Str("key", key).Str("value", v).Msg("invalid boolean in environment, keeping existing value")
		return def
	}
}

func parseDuration(key string, def time.Duration) time.Duration {
	log := xlog.Component("config")
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Warn().Str("key", key).Str("value", v).Msg("invalid duration in environment, keeping existing value")
		return def
	}
	return d
}

func parseStringSlice(key string, def []string) []string {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// applyEnvOverrides mutates cfg in place, overriding any field whose
// corresponding FLEXSENTRY_* environment variable is set. Called after
// file parsing so environment always has the final word.
func applyEnvOverrides(cfg *FileConfig) {
	cfg.LogLevel = parseString(envKey("LOG_LEVEL"), cfg.LogLevel)
	cfg.MonitorInterval = parseDuration(envKey("MONITOR_INTERVAL"), cfg.MonitorInterval)

	cfg.Fleet.CurrentHost = parseString(envKey("FLEET_CURRENT_HOST"), cfg.Fleet.CurrentHost)
	cfg.Fleet.HostsToMonitor = parseStringSlice(envKey("FLEET_HOSTS"), cfg.Fleet.HostsToMonitor)
	cfg.Fleet.FeatureName = parseString(envKey("FLEET_FEATURE"), cfg.Fleet.FeatureName)
	cfg.Fleet.ToolPath = parseString(envKey("FLEET_TOOL_PATH"), cfg.Fleet.ToolPath)
	cfg.Fleet.Vendor = parseString(envKey("FLEET_VENDOR"), cfg.Fleet.Vendor)
	cfg.Fleet.OptionFilePath = parseString(envKey("FLEET_OPTION_FILE"), cfg.Fleet.OptionFilePath)
	cfg.Fleet.Port = parseInt(envKey("FLEET_PORT"), cfg.Fleet.Port)
	cfg.Fleet.ServiceName = parseString(envKey("FLEET_SERVICE_NAME"), cfg.Fleet.ServiceName)
	cfg.Fleet.Mock = parseBool(envKey("FLEET_MOCK"), cfg.Fleet.Mock)

	cfg.Mail.FromAddr = parseString(envKey("MAIL_FROM_ADDR"), cfg.Mail.FromAddr)
	cfg.Mail.FromName = parseString(envKey("MAIL_FROM_NAME"), cfg.Mail.FromName)
	cfg.Mail.SMTPHost = parseString(envKey("MAIL_SMTP_HOST"), cfg.Mail.SMTPHost)
	cfg.Mail.SMTPPort = parseInt(envKey("MAIL_SMTP_PORT"), cfg.Mail.SMTPPort)
	cfg.Mail.SMTPTimeout = parseDuration(envKey("MAIL_SMTP_TIMEOUT"), cfg.Mail.SMTPTimeout)
	cfg.Mail.AdminAddrs = parseStringSlice(envKey("MAIL_ADMIN_ADDRS"), cfg.Mail.AdminAddrs)
	cfg.Mail.Mock = parseBool(envKey("MAIL_MOCK"), cfg.Mail.Mock)
	cfg.Mail.SendMails = parseBool(envKey("MAIL_SEND"), cfg.Mail.SendMails)

	cfg.LogSaver.SaveDir = parseString(envKey("LOGSAVER_SAVE_DIR"), cfg.LogSaver.SaveDir)
	cfg.LogSaver.LogFilePath = parseString(envKey("LOGSAVER_LOG_FILE"), cfg.LogSaver.LogFilePath)

	cfg.Strategy.MinFreePercentage = parseFloat(envKey("STRATEGY_MIN_FREE_PCT"), cfg.Strategy.MinFreePercentage)
	cfg.Strategy.MaxFreePercentage = parseFloat(envKey("STRATEGY_MAX_FREE_PCT"), cfg.Strategy.MaxFreePercentage)
	cfg.Strategy.KeepStateTimeout = parseDuration(envKey("STRATEGY_KEEP_STATE_TIMEOUT"), cfg.Strategy.KeepStateTimeout)
	cfg.Strategy.WarnThreshold = parseFloat(envKey("STRATEGY_WARN_THRESHOLD"), cfg.Strategy.WarnThreshold)
	cfg.Strategy.WarnDelay = parseDuration(envKey("STRATEGY_WARN_DELAY"), cfg.Strategy.WarnDelay)

	cfg.API.ListenAddr = parseString(envKey("API_LISTEN_ADDR"), cfg.API.ListenAddr)
	cfg.API.RateLimitPerMin = parseInt(envKey("API_RATE_LIMIT_PER_MIN"), cfg.API.RateLimitPerMin)
}
