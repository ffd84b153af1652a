package ptracer

import (
	unix "golang.org/x/sys/unix"

	"github.com/zqzqsb/hooksandbox/pkg/hook"
)

// Convention 描述一种架构的系统调用寄存器约定
// 每个支持的架构有一个实现，由 Native 在编译期选择
type Convention interface {
	// SyscallNo 获取系统调用号
	SyscallNo(r *unix.PtraceRegs) int
	// SetSyscallNo 修改即将进入内核的系统调用号
	SetSyscallNo(r *unix.PtraceRegs, no int)
	// ReturnValue 获取结果寄存器
	ReturnValue(r *unix.PtraceRegs) int64
	// SetReturnValue 设置返回给被跟踪进程的结果
	SetReturnValue(r *unix.PtraceRegs, v int64)
	// Args 获取 6 个参数寄存器
	Args(r *unix.PtraceRegs) hook.Args

	// DummySyscall 是替换被跳过的系统调用时实际执行的无副作用系统调用
	DummySyscall() int
	// MaxSyscalls 是该架构插件表长度的上限
	MaxSyscalls() int
}
