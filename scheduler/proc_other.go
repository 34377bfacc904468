//go:build !unix

package scheduler

import (
	"os/exec"
	"time"
)

func configureProcess(cmd *exec.Cmd, grace time.Duration) (stop func()) {
	cmd.WaitDelay = grace
	return func() {}
}
