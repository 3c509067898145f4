package notify

import (
	"errors"
	"time"
)

// Defaults mirror the mailer's original hardcoded configuration, per
// spec §6 and §9.
const (
	DefaultFromName   = "License Sentry"
	DefaultSMTPHost   = "smtp.example.com"
	DefaultSMTPPort   = 25
	DefaultSMTPTimeout = 30 * time.Second
)

// DefaultAdminAddrs is used as the mock-mode recipient list when no
// AdminAddrs are configured explicitly, per spec §9 (the hard-coded mock
// recipients are treated as the default admin list).
var DefaultAdminAddrs = []string{"francois.espinet@example.com", "rudolf.widmann@example.com"}

// ErrMissingFromAddr is returned by NewConfig when fromAddr is empty.
var ErrMissingFromAddr = errors.New("notify: fromAddr is required")

// Config holds the mailer's configuration, per spec §6 Mailer surface.
type Config struct {
	FromAddr    string
	FromName    string
	SMTPHost    string
	SMTPPort    int
	SMTPTimeout time.Duration
	AdminAddrs  []string
	Mock        bool
	SendMails   bool
}

// Option customizes a Config built by NewConfig.
type Option func(*Config)

// WithFromName overrides the default From display name.
func WithFromName(name string) Option { return func(c *Config) { c.FromName = name } }

// WithSMTPHost overrides the default SMTP host.
func WithSMTPHost(host string) Option { return func(c *Config) { c.SMTPHost = host } }

// WithSMTPPort overrides the default SMTP port.
func WithSMTPPort(port int) Option { return func(c *Config) { c.SMTPPort = port } }

// WithSMTPTimeout overrides the default SMTP connection timeout.
func WithSMTPTimeout(d time.Duration) Option { return func(c *Config) { c.SMTPTimeout = d } }

// WithAdminAddrs overrides the mock-mode recipient list.
func WithAdminAddrs(addrs []string) Option { return func(c *Config) { c.AdminAddrs = addrs } }

// WithMock toggles mock mode: when true, outgoing mail is redirected to
// AdminAddrs instead of its real recipients.
func WithMock(mock bool) Option { return func(c *Config) { c.Mock = mock } }

// WithSendMails toggles whether mail is actually transmitted; when false,
// messages are logged but never dialed out.
func WithSendMails(send bool) Option { return func(c *Config) { c.SendMails = send } }

// NewConfig builds a Config for fromAddr, applying options over the
// defaults. Per spec §9, explicit arguments always win over defaults —
// unlike the configuration constructor this is ported from, which
// silently discarded every caller-supplied value.
func NewConfig(fromAddr string, opts ...Option) (*Config, error) {
	if fromAddr == "" {
		return nil, ErrMissingFromAddr
	}
	c := &Config{
		FromAddr:    fromAddr,
		FromName:    DefaultFromName,
		SMTPHost:    DefaultSMTPHost,
		SMTPPort:    DefaultSMTPPort,
		SMTPTimeout: DefaultSMTPTimeout,
		AdminAddrs:  DefaultAdminAddrs,
		Mock:        false,
		SendMails:   true,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ConnectionTimeout is carried on Config but, matching the mailer this
// package is ported from, is never actually applied to the SMTP dial —
// see Mailer.sendMail. Kept as a documented no-op rather than silently
// dropped, per spec §9.
func (c *Config) ConnectionTimeout() time.Duration {
	return 0
}
