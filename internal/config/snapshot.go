package config

import (
	"fmt"
	"time"

	"github.com/netixx/flexsentry/internal/fleet"
	"github.com/netixx/flexsentry/internal/notify"
)

// Snapshot is the immutable, effective runtime configuration: the
// validated FileConfig plus the derived component configs the rest of
// the application actually constructs against.
type Snapshot struct {
	Epoch uint64
	File  FileConfig
	Fleet fleet.Config
	Mail  *notify.Config
}

// BuildSnapshot derives a Snapshot's component configs from a validated
// FileConfig. Load starts from Default(), so every field that has a
// package default already holds its effective value here; an empty
// fleet.optionFilePath is passed through and becomes "<vendor>.opt" in
// fleet.NewManager.
func BuildSnapshot(file FileConfig) (Snapshot, error) {
	mailCfg, err := notify.NewConfig(file.Mail.FromAddr,
		notify.WithFromName(file.Mail.FromName),
		notify.WithSMTPHost(file.Mail.SMTPHost),
		notify.WithSMTPPort(file.Mail.SMTPPort),
		notify.WithSMTPTimeout(file.Mail.SMTPTimeout),
		notify.WithAdminAddrs(file.Mail.AdminAddrs),
		notify.WithMock(file.Mail.Mock),
		notify.WithSendMails(file.Mail.SendMails),
	)
	if err != nil {
		return Snapshot{}, fmt.Errorf("config: build mail config: %w", err)
	}

	fleetCfg := fleet.Config{
		CurrentHost:    file.Fleet.CurrentHost,
		HostsToMonitor: file.Fleet.HostsToMonitor,
		FeatureName:    file.Fleet.FeatureName,
		ToolPath:       file.Fleet.ToolPath,
		Vendor:         file.Fleet.Vendor,
		OptionFilePath: file.Fleet.OptionFilePath,
		Port:           file.Fleet.Port,
		ServiceName:    file.Fleet.ServiceName,
		Mock:           file.Fleet.Mock,
	}

	return Snapshot{File: file, Fleet: fleetCfg, Mail: mailCfg}, nil
}

// MonitorInterval is a convenience accessor used by the application's run
// loop to decide how often to call fleet.Manager.MonitorLicense.
func (s Snapshot) MonitorInterval() time.Duration {
	if s.File.MonitorInterval <= 0 {
		return DefaultMonitorInterval
	}
	return s.File.MonitorInterval
}
