//go:build linux
// +build linux

package ptracer

import (
	"github.com/rs/zerolog"

	"github.com/zqzqsb/hooksandbox/registry"
)

// Tracer 定义了一个 ptracer 实例
// 它跟踪 Runner 启动的根进程（可选地包括其子进程），
// 在每次系统调用的入口和出口执行插件链
type Tracer struct {
	Runner
	Registry   *registry.Registry
	Convention Convention

	// FollowChildren 跟踪 fork/vfork/clone 产生的子进程
	FollowChildren bool

	Log zerolog.Logger

	// ops 为 nil 时使用真实的 ptrace 操作
	ops ops
}

// Runner 表示进程运行器
type Runner interface {
	// Start 启动或附加被跟踪进程并返回其 pid
	// 返回时进程应该已被 ptrace 并处于停止状态
	Start() (int, error)
}
