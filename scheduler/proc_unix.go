//go:build unix

package scheduler

import (
	"errors"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// configureProcess starts the job in its own process group. Cancelling the
// command sends SIGTERM to the whole group and SIGKILL after grace. The
// returned func stops the pending SIGKILL once the job has been reaped.
func configureProcess(cmd *exec.Cmd, grace time.Duration) (stop func()) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var mu sync.Mutex
	var kill *time.Timer
	cmd.Cancel = func() error {
		pgid := -cmd.Process.Pid
		err := unix.Kill(pgid, unix.SIGTERM)
		mu.Lock()
		kill = time.AfterFunc(grace, func() { _ = unix.Kill(pgid, unix.SIGKILL) })
		mu.Unlock()
		if errors.Is(err, unix.ESRCH) {
			return os.ErrProcessDone
		}
		return err
	}
	cmd.WaitDelay = grace + time.Second

	return func() {
		mu.Lock()
		defer mu.Unlock()
		if kill != nil {
			kill.Stop()
		}
	}
}
