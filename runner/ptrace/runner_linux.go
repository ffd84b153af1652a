// Package ptrace 提供了基于 ptrace 和插件链的沙箱运行环境
package ptrace

import (
	"os"

	"github.com/rs/zerolog"

	"github.com/zqzqsb/hooksandbox/pkg/rlimit"
	"github.com/zqzqsb/hooksandbox/registry"
)

// Runner 定义了在插件链控制下运行（或附加）程序的规范
type Runner struct {
	// Args 定义子进程的命令行参数
	// 格式：[程序名, 参数1, 参数2, ...]，程序名按 PATH 查找
	Args []string

	// Env 定义子进程的环境变量，为 nil 时继承当前进程的环境变量
	Env []string

	// WorkDir 定义子进程的工作目录
	// 如果为空，则使用当前目录
	WorkDir string

	// 子进程的标准输入输出，为 nil 时连接到 /dev/null
	Stdin, Stdout, Stderr *os.File

	// Attach 非 0 时附加到已存在的进程，忽略以上配置
	Attach int

	// RLimits 定义了在子进程开始运行前通过 prlimit 设置的资源限制
	RLimits []rlimit.RLimit

	// Registry 是已加载的插件链
	Registry *registry.Registry

	// FollowChildren 跟踪 fork/vfork/clone 产生的子进程
	FollowChildren bool

	Log zerolog.Logger
}
