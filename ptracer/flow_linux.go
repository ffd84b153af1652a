package ptracer

import (
	unix "golang.org/x/sys/unix"

	"github.com/zqzqsb/hooksandbox/pkg/hook"
)

/*
flowState 记录一个被跟踪进程的系统调用流状态

ptrace 的系统调用停止在入口和出口各报告一次，且两者无法直接区分，
因此需要按进程记录当前处于哪一侧：

	awaitingExit=false  等待入口
	awaitingExit=true   已经过入口，等待 expectedSyscall 的出口

字段说明：
  expectedSyscall: 入口时的系统调用号
  expectingDummy: 入口时已替换为空系统调用，出口的系统调用号会不同
  isCustomSyscall: 入口时至少有一个插件处理该系统调用
  returnValue / kernelReturnValue / kernelExecuted: 上一次钩子链结束时的快照
*/
type flowState struct {
	pid             int
	expectedSyscall int
	awaitingExit    bool
	expectingDummy  bool
	isCustomSyscall bool

	returnValue       int64
	kernelReturnValue int64
	kernelExecuted    bool
}

func newFlowState(pid int) *flowState {
	return &flowState{
		pid:               pid,
		returnValue:       hook.DefaultReturnValue,
		kernelReturnValue: hook.DefaultReturnValue,
	}
}

// enter 进入系统调用 no 的入口
func (f *flowState) enter(no int) {
	f.expectedSyscall = no
	f.expectingDummy = false
	f.awaitingExit = true
}

// isExit 判断等待出口时系统调用号 no 是否是对应的出口
func (f *flowState) isExit(no int) bool {
	return f.awaitingExit && (no == f.expectedSyscall || f.expectingDummy)
}

// syscallFlow 处理一次系统调用停止，决定执行入口还是出口的钩子链
func (ph *ptraceHandle) syscallFlow(f *flowState, regs *unix.PtraceRegs) {
	no := ph.Convention.SyscallNo(regs)
	if no < 0 || no > ph.Convention.MaxSyscalls() {
		return
	}

	switch {
	case !f.awaitingExit:
		f.enter(no)
		ph.processEntry(f, regs)

	case f.isExit(no):
		f.awaitingExit = false
		ph.processExit(f, regs)

	default:
		// 出口与入口不匹配，按新的入口处理
		ph.Log.Warn().Int("pid", f.pid).
			Int("expected", f.expectedSyscall).Int("got", no).
			Msg("syscall exit does not match entry")
		f.enter(no)
		ph.processEntry(f, regs)
	}
}
