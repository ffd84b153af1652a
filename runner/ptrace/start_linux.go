package ptrace

import (
	"errors"
	"fmt"
	"os/exec"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v4/process"
	unix "golang.org/x/sys/unix"

	"github.com/zqzqsb/hooksandbox/pkg/rlimit"
)

// launcher 以 PTRACE_TRACEME 启动子进程，返回时子进程停止在 execve 之后
type launcher struct {
	*Runner
}

func (l *launcher) Start() (int, error) {
	if len(l.Args) == 0 {
		return 0, errors.New("no command to run")
	}
	cmd := exec.Command(l.Args[0], l.Args[1:]...)
	cmd.Env = l.Env
	cmd.Dir = l.WorkDir
	// 只使用 *os.File，避免 os/exec 创建需要 cmd.Wait 回收的复制 goroutine
	if l.Stdin != nil {
		cmd.Stdin = l.Stdin
	}
	if l.Stdout != nil {
		cmd.Stdout = l.Stdout
	}
	if l.Stderr != nil {
		cmd.Stderr = l.Stderr
	}
	// 调用者必须已经锁定了当前线程
	cmd.SysProcAttr = &syscall.SysProcAttr{Ptrace: true}

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("start %s: %w", l.Args[0], err)
	}
	pid := cmd.Process.Pid
	// 进程由跟踪循环的 wait4 回收
	cmd.Process.Release()

	if err := waitStop(pid, unix.SIGTRAP); err != nil {
		return 0, err
	}
	if err := rlimit.Apply(pid, l.RLimits); err != nil {
		unix.Kill(pid, unix.SIGKILL)
		return 0, err
	}
	l.Log.Info().Int("pid", pid).Strs("args", l.Args).Msg("tracee started")
	return pid, nil
}

// attacher 以 PTRACE_ATTACH 附加到已存在的进程
type attacher struct {
	pid int
	log zerolog.Logger
}

func (a *attacher) Start() (int, error) {
	p, err := process.NewProcess(int32(a.pid))
	if err != nil {
		return 0, fmt.Errorf("attach %d: %w", a.pid, err)
	}
	name, err := p.Name()
	if err != nil {
		a.log.Debug().Err(err).Int("pid", a.pid).Msg("failed to get process name")
	}
	if err := checkAttachable(p); err != nil {
		return 0, fmt.Errorf("attach %d (%s): %w", a.pid, name, err)
	}

	if err := unix.PtraceAttach(a.pid); err != nil {
		return 0, fmt.Errorf("attach %d (%s): %w", a.pid, name, err)
	}
	if err := waitStop(a.pid, unix.SIGSTOP); err != nil {
		return 0, err
	}
	a.log.Info().Int("pid", a.pid).Str("name", name).Msg("attached")
	return a.pid, nil
}

// ErrNotAttachable 表示目标进程的状态不允许附加
var ErrNotAttachable = errors.New("process cannot be traced")

// processInfo 是附加前用到的进程信息，由 *process.Process 实现
type processInfo interface {
	Status() ([]string, error)
}

// checkAttachable 拒绝僵尸进程和处于停止状态（包括被其它 tracer 停止）的进程
// 状态无法读取时交给 PTRACE_ATTACH 判断
func checkAttachable(p processInfo) error {
	status, err := p.Status()
	if err != nil {
		return nil
	}
	for _, s := range status {
		switch s {
		case process.Zombie, process.Stop:
			return fmt.Errorf("%w: state %s", ErrNotAttachable, s)
		}
	}
	return nil
}

// waitStop 等待 pid 因信号 want 停止，期间收到的其它信号原样注入
func waitStop(pid int, want unix.Signal) error {
	for {
		var ws unix.WaitStatus
		_, err := unix.Wait4(pid, &ws, unix.WALL, nil)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return fmt.Errorf("wait for %d: %w", pid, err)
		}
		switch {
		case ws.Exited():
			return fmt.Errorf("process %d exited with status %d before tracing", pid, ws.ExitStatus())
		case ws.Signaled():
			return fmt.Errorf("process %d killed by %v before tracing", pid, ws.Signal())
		case ws.Stopped() && ws.StopSignal() == want:
			return nil
		case ws.Stopped():
			if err := unix.PtraceCont(pid, int(ws.StopSignal())); err != nil {
				return fmt.Errorf("continue %d: %w", pid, err)
			}
		}
	}
}
