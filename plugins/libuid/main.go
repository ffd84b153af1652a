// libuid 在内核返回后把 getuid 和 geteuid 的结果替换为固定值
package main

import (
	unix "golang.org/x/sys/unix"

	"github.com/zqzqsb/hooksandbox/pkg/hook"
)

// 伪造的用户号
const (
	UID  = 12345
	EUID = 54321
)

// CustomTracee 由沙箱填充
var CustomTracee *hook.Tracee

// CustomLibrary 插件描述
var CustomLibrary = hook.Library{
	Name: "uid",
	Syscalls: hook.Table(map[int]hook.Syscall{
		unix.SYS_GETUID:  {After: constant(UID), Name: "getuid"},
		unix.SYS_GETEUID: {After: constant(EUID), Name: "geteuid"},
	}),
}

func constant(v int64) hook.Hook {
	return func(*hook.Tracee, hook.Args) int64 {
		return v
	}
}

func main() {}
