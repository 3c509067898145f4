//go:build !windows

package fleet

import "fmt"

// stopServiceCommand and startServiceCommand build the platform-native
// service-control commands against name, per spec §6. The Windows ancestor
// used the Service Control Manager via "net stop"/"net start"; this is the
// systemd equivalent.
func stopServiceCommand(name string) string {
	return fmt.Sprintf("systemctl stop %q", name)
}

func startServiceCommand(name string) string {
	return fmt.Sprintf("systemctl start %q", name)
}
