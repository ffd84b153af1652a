// libchatty 在常见的系统调用进入内核之前打印一行日志，不改变调用结果
//
// 带路径参数的调用（execve, open, openat, stat, lstat, access）会从被跟踪进程的内存中读出路径：
//
//	sandbox -L plugins -l chatty -- cat /etc/hostname
package main

import (
	"io"
	"os"
	"strconv"

	"github.com/rs/zerolog"
	unix "golang.org/x/sys/unix"

	"github.com/zqzqsb/hooksandbox/pkg/hook"
	"github.com/zqzqsb/hooksandbox/pkg/logging"
	"github.com/zqzqsb/hooksandbox/pkg/memory"
)

// CustomTracee 由沙箱填充
var CustomTracee *hook.Tracee

// Output 是日志的输出，默认与被跟踪程序共用标准输出
var Output io.Writer = os.Stdout

var (
	log      = zerolog.Nop()
	readPath = memory.ReadString
)

// fields 把系统调用的参数加到日志事件中
type fields func(e *zerolog.Event, pid int, args hook.Args)

// CustomLibrary 插件描述
var CustomLibrary = hook.Library{
	Name:      "chatty",
	Init:      start,
	Terminate: stop,
	Syscalls: hook.Table(map[int]hook.Syscall{
		unix.SYS_READ:       say("read", fd(0), count(2)),
		unix.SYS_WRITE:      say("write", fd(0), count(2)),
		unix.SYS_OPEN:       say("open", path(0), flags(1)),
		unix.SYS_OPENAT:     say("openat", fd(0), path(1), flags(2)),
		unix.SYS_CLOSE:      say("close", fd(0)),
		unix.SYS_STAT:       say("stat", path(0)),
		unix.SYS_LSTAT:      say("lstat", path(0)),
		unix.SYS_FSTAT:      say("fstat", fd(0)),
		unix.SYS_ACCESS:     say("access", path(0)),
		unix.SYS_EXECVE:     say("execve", path(0)),
		unix.SYS_MMAP:       say("mmap", count(1)),
		unix.SYS_ALARM:      say("alarm", count(0)),
		unix.SYS_KILL:       say("kill", target(0), signal(1)),
		unix.SYS_GETDENTS64: say("getdents64", fd(0)),
		unix.SYS_GETPID:     say("getpid"),
		unix.SYS_GETPPID:    say("getppid"),
		unix.SYS_GETUID:     say("getuid"),
		unix.SYS_GETEUID:    say("geteuid"),
		unix.SYS_GETGID:     say("getgid"),
		unix.SYS_GETEGID:    say("getegid"),
	}),
}

func start() error {
	cfg := logging.DefaultConfig()
	cfg.Level = "info"
	cfg.Output = Output
	log = logging.New(cfg).With().Str("plugin", "chatty").Logger()
	log.Info().Msg("chatty loaded")
	return nil
}

func stop() {
	log.Info().Msg("chatty removed")
	log = zerolog.Nop()
}

// say 返回只有 Before 钩子的描述，内核的返回值原样交给被跟踪进程
func say(name string, fs ...fields) hook.Syscall {
	return hook.Syscall{
		Before: func(t *hook.Tracee, args hook.Args) int64 {
			e := log.Info().Int("pid", t.Pid)
			for _, f := range fs {
				f(e, t.Pid, args)
			}
			e.Msg(name)
			return 0
		},
		Name:  name,
		Flags: hook.FlagKeepPreviousReturn,
	}
}

func fd(i int) fields {
	return func(e *zerolog.Event, _ int, args hook.Args) {
		e.Int32("fd", int32(args[i]))
	}
}

func count(i int) fields {
	return func(e *zerolog.Event, _ int, args hook.Args) {
		e.Uint64("count", args[i])
	}
}

func flags(i int) fields {
	return func(e *zerolog.Event, _ int, args hook.Args) {
		e.Str("flags", "0x"+strconv.FormatUint(args[i], 16))
	}
}

func target(i int) fields {
	return func(e *zerolog.Event, _ int, args hook.Args) {
		e.Int32("target", int32(args[i]))
	}
}

func signal(i int) fields {
	return func(e *zerolog.Event, _ int, args hook.Args) {
		e.Stringer("signal", unix.Signal(args[i]))
	}
}

// path 读出被跟踪进程中的路径，读取失败时记录错误
func path(i int) fields {
	return func(e *zerolog.Event, pid int, args hook.Args) {
		p, err := readPath(pid, uintptr(args[i]))
		if err != nil {
			e.AnErr("path_error", err)
			return
		}
		e.Str("path", p)
	}
}

func main() {}
