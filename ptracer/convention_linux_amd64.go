package ptracer

import (
	unix "golang.org/x/sys/unix"

	"github.com/zqzqsb/hooksandbox/pkg/hook"
)

/*
	; x86_64 系统调用参数顺序
	syscall_number -> orig_rax  ; 系统调用号
	arg0 -> rdi
	arg1 -> rsi
	arg2 -> rdx
	arg3 -> r10             ; 注意：不是 rcx
	arg4 -> r8
	arg5 -> r9
	return -> rax
*/
type amd64Convention struct{}

// Native 返回当前架构的调用约定
func Native() Convention {
	return amd64Convention{}
}

// SyscallNo 使用 Orig_rax 而不是 Rax，因为 Rax 会被返回值覆盖
func (amd64Convention) SyscallNo(r *unix.PtraceRegs) int {
	return int(int64(r.Orig_rax))
}

func (amd64Convention) SetSyscallNo(r *unix.PtraceRegs, no int) {
	r.Orig_rax = uint64(no)
}

func (amd64Convention) ReturnValue(r *unix.PtraceRegs) int64 {
	return int64(r.Rax)
}

func (amd64Convention) SetReturnValue(r *unix.PtraceRegs, v int64) {
	r.Rax = uint64(v)
}

func (amd64Convention) Args(r *unix.PtraceRegs) hook.Args {
	return hook.Args{r.Rdi, r.Rsi, r.Rdx, r.R10, r.R8, r.R9}
}

// DummySyscall 为 getpid
func (amd64Convention) DummySyscall() int {
	return unix.SYS_GETPID
}

func (amd64Convention) MaxSyscalls() int {
	return hook.MaxSyscalls
}
