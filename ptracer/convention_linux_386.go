package ptracer

import (
	unix "golang.org/x/sys/unix"

	"github.com/zqzqsb/hooksandbox/pkg/hook"
)

/*
	; i386 系统调用参数顺序
	syscall_number -> orig_eax
	arg0..arg5 -> ebx ecx edx esi edi ebp
	return -> eax
*/
type i386Convention struct{}

// Native 返回当前架构的调用约定
func Native() Convention {
	return i386Convention{}
}

func (i386Convention) SyscallNo(r *unix.PtraceRegs) int {
	return int(r.Orig_eax)
}

func (i386Convention) SetSyscallNo(r *unix.PtraceRegs, no int) {
	r.Orig_eax = int32(no)
}

func (i386Convention) ReturnValue(r *unix.PtraceRegs) int64 {
	return int64(r.Eax)
}

func (i386Convention) SetReturnValue(r *unix.PtraceRegs, v int64) {
	r.Eax = int32(v)
}

// Args 参数寄存器是有符号的 32 位值，按无符号零扩展
func (i386Convention) Args(r *unix.PtraceRegs) hook.Args {
	return hook.Args{
		uint64(uint32(r.Ebx)), uint64(uint32(r.Ecx)), uint64(uint32(r.Edx)),
		uint64(uint32(r.Esi)), uint64(uint32(r.Edi)), uint64(uint32(r.Ebp)),
	}
}

// DummySyscall 为 getpid
func (i386Convention) DummySyscall() int {
	return unix.SYS_GETPID
}

func (i386Convention) MaxSyscalls() int {
	return hook.MaxSyscalls
}
