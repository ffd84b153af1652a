// Package sysname 将系统调用号转换为名称，用于日志和执行计划
package sysname

import (
	"fmt"

	"github.com/elastic/go-seccomp-bpf/arch"
)

// info 是当前架构（x86_64 / i386）的系统调用表
var info, errInfo = arch.GetInfo("")

// ToSyscallName 将系统调用号转换为对应的系统调用名称
func ToSyscallName(sysno int) (string, error) {
	if errInfo != nil {
		return "", errInfo
	}
	n, ok := info.SyscallNumbers[sysno]
	if !ok {
		return "", fmt.Errorf("syscall no %d does not exist", sysno)
	}
	return n, nil
}

// Name 返回系统调用名称，未知的系统调用号返回 "syscall_<no>"
func Name(sysno int) string {
	n, err := ToSyscallName(sysno)
	if err != nil {
		return fmt.Sprintf("syscall_%d", sysno)
	}
	return n
}
