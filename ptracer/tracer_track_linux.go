package ptracer

import (
	"context"
	"fmt"
	"runtime"
	"time"

	unix "golang.org/x/sys/unix"

	"github.com/zqzqsb/hooksandbox/runner"
)

// syscallStop 是设置 PTRACE_O_TRACESYSGOOD 后系统调用停止的信号
const syscallStop = unix.SIGTRAP | 0x80

/*
	Trace 启动并跟踪目标进程

Trace 在当前 goroutine 中通过 Runner 启动（或附加）目标进程，并对其进行跟踪，
直到根进程退出或被信号终止。

实现细节：
 1. 锁定当前线程，ptrace 请求必须来自附加进程的线程
 2. 通过 Runner 接口获得已停止的被跟踪进程
 3. 进入跟踪循环

注意事项：
 1. 该函数会锁定调用它的 goroutine 到特定的操作系统线程
 2. Runner.Start 必须在同一个线程上调用，因此由 Trace 调用
 3. 插件钩子在该 goroutine 中同步执行
*/
func (t *Tracer) Trace(c context.Context) (result runner.Result) {
	// ptrace 是基于线程的（内核进程）
	// Goroutine 1 -----> OS Thread 1  -----> Tracee
	//                   (locked)            (being traced)
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	pid, err := t.Runner.Start()
	if err != nil {
		t.Log.Error().Err(err).Msg("failed to start traced process")
		result.Status = runner.StatusRunnerError
		result.Error = err.Error()
		return
	}
	t.Log.Debug().Int("pid", pid).Msg("tracer started")
	return t.trace(c, pid)
}

/* trace 实现进程跟踪的核心循环

函数流程：
  1. 设置 ptrace 选项，为根进程创建流状态
  2. 以 PTRACE_SYSCALL 恢复根进程
  3. 在 wait4(-1, __WALL) 上循环，处理每个进程的状态变化
  4. 根进程退出或被信号终止时结束

上下文被取消时杀死根进程，循环随后通过正常的信号终止路径结束。
其它被跟踪的进程不会被主动终止。 */
func (t *Tracer) trace(c context.Context, root int) (result runner.Result) {
	if t.ops == nil {
		t.ops = linuxOps{}
	}
	if t.Convention == nil {
		t.Convention = Native()
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-c.Done():
			t.Log.Info().Int("pid", root).Msg("context cancelled, killing tracee")
			t.ops.kill(root)
		case <-done:
		}
	}()

	sTime := time.Now()
	ph := newPtraceHandle(t, root)

	defer func() {
		if err := recover(); err != nil {
			t.Log.Error().Interface("panic", err).Msg("panic occurred while tracing")
			t.ops.kill(root)
			result.Status = runner.StatusRunnerError
			result.Error = fmt.Sprintf("%v", err)
		}
		if !ph.fTime.IsZero() {
			result.SetUpTime = ph.fTime.Sub(sTime)
			result.RunningTime = time.Since(ph.fTime)
		}
	}()

	if err := t.ops.setOptions(root, t.ptraceOptions()); err != nil {
		t.ops.kill(root)
		result.Status = runner.StatusRunnerError
		result.Error = fmt.Sprintf("failed to set ptrace options: %v", err)
		return
	}
	ph.track(root)
	if err := t.ops.resume(root, 0); err != nil {
		t.ops.kill(root)
		result.Status = runner.StatusRunnerError
		result.Error = fmt.Sprintf("failed to resume tracee: %v", err)
		return
	}

	for {
		pid, wstatus, rusage, err := t.ops.wait()
		if err == unix.EINTR {
			t.Log.Debug().Msg("wait4 interrupted")
			continue
		}
		if err != nil {
			t.Log.Error().Err(err).Msg("wait4 failed")
			result.Status = runner.StatusRunnerError
			result.Error = err.Error()
			return
		}

		if pid == root && rusage != nil {
			result.Time = time.Duration(rusage.Utime.Nano())
			result.Memory = runner.Size(rusage.Maxrss << 10)
		}

		status, exitStatus, errStr, finished := ph.handle(pid, wstatus)
		if finished {
			result.Status = status
			result.ExitStatus = exitStatus
			result.Error = errStr
			return
		}
	}
}

// ptraceOptions 退出时杀死被跟踪进程，跟踪子进程时接收 fork/vfork/clone 事件
func (t *Tracer) ptraceOptions() int {
	options := unix.PTRACE_O_TRACESYSGOOD | unix.PTRACE_O_EXITKILL
	if t.FollowChildren {
		options |= unix.PTRACE_O_TRACEFORK | unix.PTRACE_O_TRACEVFORK | unix.PTRACE_O_TRACECLONE
	}
	return options
}

/*
	进程状态处理函数

handle 函数负责处理一个进程的状态变化，只有根进程退出或被信号终止时
finished 为 true。

返回值：
  - status: 根进程结束时的状态
  - exitStatus: 退出码或信号编号
  - errStr: 错误信息
  - finished: 是否结束跟踪
*/
func (ph *ptraceHandle) handle(pid int, wstatus unix.WaitStatus) (status runner.Status, exitStatus int, errStr string, finished bool) {
	switch {
	// 1. 进程正常退出
	case wstatus.Exited():
		delete(ph.flows, pid)
		ph.Log.Debug().Int("pid", pid).Int("status", wstatus.ExitStatus()).Msg("process exited")
		if pid == ph.root {
			finished = true
			exitStatus = wstatus.ExitStatus()
			status = runner.StatusNormal
			if exitStatus != 0 {
				status = runner.StatusNonzeroExitStatus
			}
			ph.releaseAll()
		}

	// 2. 进程被信号终止
	case wstatus.Signaled():
		sig := wstatus.Signal()
		delete(ph.flows, pid)
		ph.Log.Debug().Int("pid", pid).Stringer("signal", sig).Msg("process terminated by signal")
		if pid == ph.root {
			finished = true
			status = runner.StatusSignalled
			exitStatus = int(sig)
			errStr = fmt.Sprintf("process killed by signal %d", sig)
			ph.releaseAll()
			return
		}
		if err := ph.ops.detach(pid); err != nil {
			ph.Log.Debug().Err(err).Int("pid", pid).Msg("detach failed")
		}

	// 3. 进程停止
	case wstatus.Stopped():
		sig := ph.stopped(pid, wstatus)
		if err := ph.ops.resume(pid, sig); err != nil {
			ph.Log.Debug().Err(err).Int("pid", pid).Msg("failed to resume process")
		}
	}
	return
}

// stopped 处理一次停止，返回恢复运行时注入的信号
func (ph *ptraceHandle) stopped(pid int, wstatus unix.WaitStatus) int {
	sig := wstatus.StopSignal()

	// 3.1 系统调用停止
	if sig == syscallStop {
		f := ph.flows[pid]
		if f == nil {
			if !ph.FollowChildren {
				return 0
			}
			f = ph.track(pid)
		}
		if ph.fTime.IsZero() {
			ph.fTime = time.Now()
		}
		var regs unix.PtraceRegs
		if err := ph.ops.getRegs(pid, &regs); err != nil {
			ph.Log.Debug().Err(err).Int("pid", pid).Msg("failed to get registers")
			return 0
		}
		ph.syscallFlow(f, &regs)
		return 0
	}

	// 3.2 fork/vfork/clone 事件或其它 SIGTRAP
	if sig == unix.SIGTRAP {
		switch cause := wstatus.TrapCause(); cause {
		case unix.PTRACE_EVENT_FORK, unix.PTRACE_EVENT_VFORK, unix.PTRACE_EVENT_CLONE:
			if ph.FollowChildren {
				ph.newChild(pid)
			}
		default:
			ph.Log.Debug().Int("pid", pid).Int("event", cause).Msg("trap")
		}
		return 0
	}

	// 新的子进程可能在父进程的事件之前报告它的第一次停止
	if ph.flows[pid] == nil && ph.FollowChildren {
		ph.track(pid)
		ph.Log.Debug().Int("pid", pid).Stringer("signal", sig).Msg("first stop of new process")
		return 0
	}

	switch sig {
	// 3.3 停止类信号不再转发
	case unix.SIGSTOP, unix.SIGTSTP, unix.SIGTTIN, unix.SIGTTOU:
		return 0
	}
	// 3.4 无法归类的停止转为 SIGCHLD
	if int(wstatus>>16) != 0 || sig <= 0 || sig >= 64 {
		ph.Log.Debug().Int("pid", pid).Uint32("status", uint32(wstatus)).Msg("unclassified stop")
		return int(unix.SIGCHLD)
	}
	// 3.5 其它信号原样转发
	ph.Log.Debug().Int("pid", pid).Stringer("signal", sig).Msg("forwarding signal")
	return int(sig)
}

// newChild 为 fork/vfork/clone 产生的子进程创建流状态并恢复其运行
func (ph *ptraceHandle) newChild(parent int) {
	msg, err := ph.ops.eventMsg(parent)
	if err != nil {
		ph.Log.Warn().Err(err).Int("pid", parent).Msg("failed to get new process id")
		return
	}
	child := int(msg)
	ph.track(child)
	ph.Log.Info().Int("parent", parent).Int("pid", child).Msg("following new process")
	if err := ph.ops.resume(child, 0); err != nil {
		// 子进程还未进入停止状态，它的第一次停止会在之后报告
		ph.Log.Debug().Err(err).Int("pid", child).Msg("failed to resume new process")
	}
}

// releaseAll 在根进程结束后解除对其余进程的跟踪，让它们继续运行
// 否则它们会停在下一次系统调用停止处，并在沙箱退出时被 PTRACE_O_EXITKILL 杀死
func (ph *ptraceHandle) releaseAll() {
	for pid := range ph.flows {
		if err := ph.ops.release(pid); err != nil {
			ph.Log.Debug().Err(err).Int("pid", pid).Msg("failed to release process")
		} else {
			ph.Log.Info().Int("pid", pid).Msg("process released")
		}
		delete(ph.flows, pid)
	}
}

/*
字段说明：

	*Tracer: 嵌入的跟踪器对象
	root: 根进程，它结束时跟踪结束
	flows: 每个被跟踪进程的系统调用流状态
	fTime: 第一次系统调用停止的时间
*/
type ptraceHandle struct {
	*Tracer
	root  int
	flows map[int]*flowState
	fTime time.Time
}

func newPtraceHandle(t *Tracer, root int) *ptraceHandle {
	return &ptraceHandle{t, root, make(map[int]*flowState), time.Time{}}
}

// track 返回 pid 的流状态，不存在时创建
func (ph *ptraceHandle) track(pid int) *flowState {
	if f, ok := ph.flows[pid]; ok {
		return f
	}
	f := newFlowState(pid)
	ph.flows[pid] = f
	return f
}
