package ptracer

import (
	"sync"

	unix "golang.org/x/sys/unix"
)

// event 是 fakeOps.wait 依次返回的一次状态变化
type event struct {
	pid    int
	status unix.WaitStatus
	no     int   // 系统调用停止时的系统调用号
	ret    int64 // 系统调用停止时的返回值寄存器
	err    error
}

type regsCall struct {
	pid int
	no  int
	ret int64
}

type resumeCall struct {
	pid int
	sig int
}

// fakeOps 按脚本回放状态变化并记录跟踪器的操作
type fakeOps struct {
	conv   Convention
	root   int
	events []event
	regs   map[int]unix.PtraceRegs
	child  uint

	options  int
	regsSet  []regsCall
	resumes  []resumeCall
	detached []int
	released []int

	mu       sync.Mutex
	killed   []int
	killOnce sync.Once
	killCh   chan struct{}
}

func newFakeOps(root int, events ...event) *fakeOps {
	return &fakeOps{
		conv:   Native(),
		root:   root,
		events: events,
		regs:   make(map[int]unix.PtraceRegs),
		killCh: make(chan struct{}),
	}
}

// wait 在脚本结束后阻塞，直到根进程被杀死
func (f *fakeOps) wait() (int, unix.WaitStatus, *unix.Rusage, error) {
	if len(f.events) == 0 {
		<-f.killCh
		return f.root, signaled(unix.SIGKILL), &unix.Rusage{}, nil
	}
	e := f.events[0]
	f.events = f.events[1:]
	if e.err != nil {
		return 0, 0, nil, e.err
	}
	if e.status.Stopped() && e.status.StopSignal() == syscallStop {
		var r unix.PtraceRegs
		f.conv.SetSyscallNo(&r, e.no)
		f.conv.SetReturnValue(&r, e.ret)
		f.regs[e.pid] = r
	}
	return e.pid, e.status, &unix.Rusage{}, nil
}

func (f *fakeOps) getRegs(pid int, regs *unix.PtraceRegs) error {
	r, ok := f.regs[pid]
	if !ok {
		return unix.ESRCH
	}
	*regs = r
	return nil
}

func (f *fakeOps) setRegs(pid int, regs *unix.PtraceRegs) error {
	f.regs[pid] = *regs
	f.regsSet = append(f.regsSet, regsCall{pid, f.conv.SyscallNo(regs), f.conv.ReturnValue(regs)})
	return nil
}

func (f *fakeOps) setOptions(pid int, options int) error {
	f.options = options
	return nil
}

func (f *fakeOps) eventMsg(pid int) (uint, error) {
	return f.child, nil
}

func (f *fakeOps) resume(pid int, sig int) error {
	f.resumes = append(f.resumes, resumeCall{pid, sig})
	return nil
}

func (f *fakeOps) detach(pid int) error {
	f.detached = append(f.detached, pid)
	return nil
}

func (f *fakeOps) release(pid int) error {
	f.released = append(f.released, pid)
	return nil
}

func (f *fakeOps) kill(pid int) error {
	f.mu.Lock()
	f.killed = append(f.killed, pid)
	f.mu.Unlock()
	if pid == f.root {
		f.killOnce.Do(func() { close(f.killCh) })
	}
	return nil
}

// 构造 wait4 返回的状态
func sysStop(pid, no int, ret int64) event {
	return event{pid: pid, status: stoppedBy(syscallStop, 0), no: no, ret: ret}
}

func stoppedBy(sig unix.Signal, cause int) unix.WaitStatus {
	return unix.WaitStatus(0x7f | uint32(sig)<<8 | uint32(cause)<<16)
}

func exited(code int) unix.WaitStatus {
	return unix.WaitStatus(uint32(code) << 8)
}

func signaled(sig unix.Signal) unix.WaitStatus {
	return unix.WaitStatus(uint32(sig))
}
