package ptracer

import (
	"github.com/shirou/gopsutil/v4/process"
	unix "golang.org/x/sys/unix"
)

// ops 是跟踪循环用到的全部系统操作
type ops interface {
	// wait 等待任意被跟踪进程的状态变化
	wait() (int, unix.WaitStatus, *unix.Rusage, error)
	getRegs(pid int, regs *unix.PtraceRegs) error
	setRegs(pid int, regs *unix.PtraceRegs) error
	setOptions(pid int, options int) error
	eventMsg(pid int) (uint, error)
	// resume 以 PTRACE_SYSCALL 恢复运行并注入信号 sig
	resume(pid int, sig int) error
	detach(pid int) error
	// release 停止一个仍在运行的被跟踪进程，解除跟踪后让它继续运行
	release(pid int) error
	kill(pid int) error
}

type linuxOps struct{}

func (linuxOps) wait() (int, unix.WaitStatus, *unix.Rusage, error) {
	var (
		wstatus unix.WaitStatus
		rusage  unix.Rusage
	)
	pid, err := unix.Wait4(-1, &wstatus, unix.WALL, &rusage)
	return pid, wstatus, &rusage, err
}

func (linuxOps) getRegs(pid int, regs *unix.PtraceRegs) error {
	return unix.PtraceGetRegs(pid, regs)
}

func (linuxOps) setRegs(pid int, regs *unix.PtraceRegs) error {
	return unix.PtraceSetRegs(pid, regs)
}

func (linuxOps) setOptions(pid int, options int) error {
	return unix.PtraceSetOptions(pid, options)
}

func (linuxOps) eventMsg(pid int) (uint, error) {
	return unix.PtraceGetEventMsg(pid)
}

func (linuxOps) resume(pid int, sig int) error {
	return unix.PtraceSyscall(pid, sig)
}

func (linuxOps) detach(pid int) error {
	return unix.PtraceDetach(pid)
}

/*
	release 解除对一个未停止的进程的跟踪

PTRACE_DETACH 要求进程处于停止状态：
 1. 用 tgkill 向该线程发送 SIGSTOP
 2. wait4 直到它报告一次停止（可能是之前尚未处理的系统调用停止）
 3. PTRACE_DETACH，之后发送 SIGCONT 让它从 SIGSTOP 中恢复

进程在此期间退出时返回 nil。
*/
func (linuxOps) release(pid int) error {
	tgid := pid
	if p, err := process.NewProcess(int32(pid)); err == nil {
		if id, err := p.Tgid(); err == nil && id > 0 {
			tgid = int(id)
		}
	}
	if err := unix.Tgkill(tgid, pid, unix.SIGSTOP); err != nil {
		return err
	}
	for {
		var ws unix.WaitStatus
		_, err := unix.Wait4(pid, &ws, unix.WALL, nil)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return err
		}
		if ws.Exited() || ws.Signaled() {
			return nil
		}
		if ws.Stopped() {
			break
		}
	}
	if err := unix.PtraceDetach(pid); err != nil {
		return err
	}
	return unix.Kill(pid, unix.SIGCONT)
}

func (linuxOps) kill(pid int) error {
	return unix.Kill(pid, unix.SIGKILL)
}
