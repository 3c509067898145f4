//go:build !windows

package runner

import (
	"context"
	"os/exec"
)

// shellCommand builds the *exec.Cmd that runs cmd through /bin/sh, mirroring
// the original Console.sendCommand(..., shell=True) behaviour.
func shellCommand(ctx context.Context, cmd string) *exec.Cmd {
	return exec.CommandContext(ctx, "/bin/sh", "-c", cmd) // #nosec G204 -- cmd is assembled from trusted config templates
}
