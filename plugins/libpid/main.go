// libpid 让被跟踪程序看到固定的 pid 和 ppid，kill 什么都不做
//
// 插件用 -buildmode=plugin 编译为 libNAME.so，必须与沙箱使用相同的依赖版本：
//
//	go build -buildmode=plugin -o plugins/libpid.so ./plugins/libpid
//	sandbox -L plugins -l pid -- sh -c 'echo $$'
package main

import (
	unix "golang.org/x/sys/unix"

	"github.com/zqzqsb/hooksandbox/pkg/hook"
)

// 伪造的进程号
const (
	PID  = 666
	PPID = 999
)

// CustomTracee 由沙箱填充
var CustomTracee *hook.Tracee

// CustomLibrary 插件描述
var CustomLibrary = hook.Library{
	Name: "pid",
	Syscalls: hook.Table(map[int]hook.Syscall{
		unix.SYS_GETPID:  {After: getpid, Name: "getpid", Flags: hook.FlagSkipKernel},
		unix.SYS_GETPPID: {After: getppid, Name: "getppid", Flags: hook.FlagSkipKernel},
		unix.SYS_KILL:    {Before: kill, Name: "kill", Flags: hook.FlagSkipKernel},
	}),
}

func getpid(*hook.Tracee, hook.Args) int64 {
	return PID
}

func getppid(*hook.Tracee, hook.Args) int64 {
	return PPID
}

func kill(*hook.Tracee, hook.Args) int64 {
	return 0
}

func main() {}
