//go:build windows

package runner

import (
	"context"
	"os/exec"
)

// shellCommand builds the *exec.Cmd that runs cmd through cmd.exe, the
// platform this tool's FlexLM ancestor originally targeted.
func shellCommand(ctx context.Context, cmd string) *exec.Cmd {
	return exec.CommandContext(ctx, "cmd.exe", "/C", cmd) // #nosec G204 -- cmd is assembled from trusted config templates
}
