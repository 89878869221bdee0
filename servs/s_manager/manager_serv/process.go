package manager_serv

import (
	"os"
	"os/exec"
	"os/user"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/shlex"
)

// stopGrace is how long a child gets to exit after SIGTERM before it is
// killed.
const stopGrace = 5 * time.Second

// process is one running child. The exit code arrives on done exactly once.
type process struct {
	cmd  *exec.Cmd
	done chan int
}

// spawn launches the unit's command in its own process group so signals
// reach the whole tree.
func spawn(u Unit) (*process, error) {
	parts, err := shlex.Split(u.Cmd)
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(parts[0], parts[1:]...)
	cmd.Dir = expandHomeDir(u.Dir)
	cmd.Env = os.Environ()
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	p := &process{cmd: cmd, done: make(chan int, 1)}
	go func() {
		err := cmd.Wait()
		code := 0
		if exitErr, ok := err.(*exec.ExitError); ok {
			if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok {
				if ws.Signaled() {
					code = 128 + int(ws.Signal())
				} else {
					code = ws.ExitStatus()
				}
			}
		} else if err != nil {
			code = -1
		}
		p.done <- code
	}()
	return p, nil
}

func (p *process) pid() int { return p.cmd.Process.Pid }

// exited reports a finished child without blocking.
func (p *process) exited() (int, bool) {
	select {
	case code := <-p.done:
		return code, true
	default:
		return 0, false
	}
}

// stop terminates the process group: SIGTERM first, SIGKILL once the grace
// period runs out. It returns the exit code.
func (p *process) stop() int {
	_ = syscall.Kill(-p.pid(), syscall.SIGTERM)
	select {
	case code := <-p.done:
		return code
	case <-time.After(stopGrace):
	}
	_ = syscall.Kill(-p.pid(), syscall.SIGKILL)
	return <-p.done
}

// Expand tilde (~) to home directory
func expandHomeDir(path string) string {
	if strings.HasPrefix(path, "~") {
		if usr, err := user.Current(); err == nil {
			return filepath.Join(usr.HomeDir, path[1:])
		}
	}
	return path
}
