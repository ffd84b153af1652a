package ptracer

import (
	"slices"

	unix "golang.org/x/sys/unix"

	"github.com/zqzqsb/hooksandbox/pkg/hook"
	"github.com/zqzqsb/hooksandbox/pkg/sysname"
)

/*
	processEntry 在系统调用入口按加载顺序执行 Before 钩子

每个钩子的结果沿链传递：
 1. 返回负数且设置了 FlagAbortOnNegative 时终止遍历，该结果被丢弃
 2. 设置了 FlagKeepPreviousReturn 时丢弃该结果
 3. 否则该结果成为链上的返回值

任意一个访问到的描述（终止遍历的除外）设置了 FlagSkipKernel 时，
系统调用号被替换为空系统调用，出口时由钩子链提供返回值。
*/
func (ph *ptraceHandle) processEntry(f *flowState, regs *unix.PtraceRegs) {
	var (
		no   = f.expectedSyscall
		args = ph.Convention.Args(regs)
		ret  = f.returnValue
		skip bool
	)

	for _, p := range ph.Registry.Chain() {
		s := p.Lookup(no)
		if s == nil {
			continue
		}
		f.isCustomSyscall = true

		if s.Before != nil {
			r := ph.invoke(s.Before, f, ret, args)
			ph.Log.Debug().Int("pid", f.pid).Str("plugin", p.Name).
				Str("syscall", sysname.Name(no)).Int64("return", r).Msg("before")
			if r < 0 && s.Flags.Has(hook.FlagAbortOnNegative) {
				break
			}
			if !s.Flags.Has(hook.FlagKeepPreviousReturn) {
				ret = r
			}
		}
		if s.Flags.Has(hook.FlagSkipKernel) {
			skip = true
		}
	}

	if skip {
		ph.Convention.SetSyscallNo(regs, ph.Convention.DummySyscall())
		if err := ph.ops.setRegs(f.pid, regs); err != nil {
			ph.Log.Warn().Err(err).Int("pid", f.pid).Msg("failed to replace syscall")
		} else {
			f.expectingDummy = true
		}
	}
	f.returnValue = ret
}

/*
	processExit 在系统调用出口按相反顺序执行 After 钩子

内核执行过时，链从内核的返回值开始；被跳过时，链从入口链的返回值开始，
KernelReturnValue 为 hook.DefaultReturnValue。
链结束后的返回值写回被跟踪进程的返回值寄存器。
*/
func (ph *ptraceHandle) processExit(f *flowState, regs *unix.PtraceRegs) {
	if !f.isCustomSyscall {
		return
	}

	if f.expectingDummy {
		f.kernelExecuted = false
		f.kernelReturnValue = hook.DefaultReturnValue
	} else {
		f.kernelExecuted = true
		f.kernelReturnValue = ph.Convention.ReturnValue(regs)
		f.returnValue = f.kernelReturnValue
	}

	var (
		no    = f.expectedSyscall
		args  = ph.Convention.Args(regs)
		ret   = f.returnValue
		chain = ph.Registry.Chain()
	)
	for _, p := range slices.Backward(chain) {
		s := p.Lookup(no)
		if s == nil || s.After == nil {
			continue
		}
		r := ph.invoke(s.After, f, ret, args)
		ph.Log.Debug().Int("pid", f.pid).Str("plugin", p.Name).
			Str("syscall", sysname.Name(no)).Int64("return", r).Msg("after")
		if r < 0 && s.Flags.Has(hook.FlagAbortOnNegative) {
			break
		}
		if !s.Flags.Has(hook.FlagKeepPreviousReturn) {
			ret = r
		}
	}

	ph.Convention.SetReturnValue(regs, ret)
	if err := ph.ops.setRegs(f.pid, regs); err != nil {
		ph.Log.Warn().Err(err).Int("pid", f.pid).Msg("failed to set return value")
	}
	f.isCustomSyscall = false
	f.returnValue = ret
}

// invoke 用进程的流状态和链上的返回值覆盖共享快照，然后调用钩子
func (ph *ptraceHandle) invoke(h hook.Hook, f *flowState, ret int64, args hook.Args) int64 {
	snap := ph.Registry.Snapshot()
	*snap = hook.Tracee{
		Pid:               f.pid,
		ReturnValue:       ret,
		KernelReturnValue: f.kernelReturnValue,
		KernelExecuted:    f.kernelExecuted,
	}
	return h(snap, args)
}
