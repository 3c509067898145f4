//go:build windows

package fleet

import "fmt"

// stopServiceCommand and startServiceCommand build the platform-native
// service-control commands against name, per spec §6, matching the
// original's "net stop"/"net start" against the Service Control Manager.
func stopServiceCommand(name string) string {
	return fmt.Sprintf("net stop %q", name)
}

func startServiceCommand(name string) string {
	return fmt.Sprintf("net start %q", name)
}
