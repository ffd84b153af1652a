// Package rlimit 在被跟踪进程执行第一条指令之前，通过 prlimit 设置它的资源限制
package rlimit

import (
	"fmt"
	"strings"

	unix "golang.org/x/sys/unix"
)

// RLimits 是命令行和配置文件给出的资源限制，0 表示不限制
type RLimits struct {
	CPU          uint64 // 秒
	AddressSpace uint64 // 字节
	FileSize     uint64 // 字节
	Stack        uint64 // 字节
	OpenFile     uint64
	DisableCore  bool
}

// RLimit 是一次 prlimit 调用设置的软硬限制
type RLimit struct {
	Res  int
	Rlim unix.Rlimit
}

// resource 描述 RLimits 中的一项如何映射到 prlimit 的资源
type resource struct {
	res  int
	name string
	unit string
	get  func(*RLimits) (uint64, bool)
}

// resources 的顺序即 prlimit 的调用顺序
var resources = []resource{
	{unix.RLIMIT_CPU, "CPU", "s", func(r *RLimits) (uint64, bool) { return r.CPU, r.CPU > 0 }},
	{unix.RLIMIT_AS, "AddressSpace", "B", func(r *RLimits) (uint64, bool) { return r.AddressSpace, r.AddressSpace > 0 }},
	{unix.RLIMIT_FSIZE, "FileSize", "B", func(r *RLimits) (uint64, bool) { return r.FileSize, r.FileSize > 0 }},
	{unix.RLIMIT_STACK, "Stack", "B", func(r *RLimits) (uint64, bool) { return r.Stack, r.Stack > 0 }},
	{unix.RLIMIT_NOFILE, "OpenFile", "", func(r *RLimits) (uint64, bool) { return r.OpenFile, r.OpenFile > 0 }},
	{unix.RLIMIT_CORE, "Core", "B", func(r *RLimits) (uint64, bool) { return 0, r.DisableCore }},
}

func lookup(res int) (resource, bool) {
	for _, r := range resources {
		if r.res == res {
			return r, true
		}
	}
	return resource{}, false
}

// PrepareRLimit 返回需要设置的限制，软限制与硬限制相同
func (r *RLimits) PrepareRLimit() []RLimit {
	var ret []RLimit
	for _, res := range resources {
		if v, ok := res.get(r); ok {
			ret = append(ret, RLimit{Res: res.res, Rlim: unix.Rlimit{Cur: v, Max: v}})
		}
	}
	return ret
}

func (r RLimit) String() string {
	res, ok := lookup(r.Res)
	if !ok {
		return fmt.Sprintf("Resource(%d)[%d:%d]", r.Res, r.Rlim.Cur, r.Rlim.Max)
	}
	return fmt.Sprintf("%s[%d%s]", res.name, r.Rlim.Cur, res.unit)
}

func (r *RLimits) String() string {
	var s []string
	for _, l := range r.PrepareRLimit() {
		s = append(s, l.String())
	}
	return "RLimits{" + strings.Join(s, ", ") + "}"
}

// Apply 通过 prlimit 将限制设置到进程 pid
// 进程处于 ptrace 停止状态时调用，限制在它执行第一条指令前生效
func Apply(pid int, limits []RLimit) error {
	for _, l := range limits {
		rlim := l.Rlim
		if err := unix.Prlimit(pid, l.Res, &rlim, nil); err != nil {
			return fmt.Errorf("prlimit %v on %d: %w", l, pid, err)
		}
	}
	return nil
}
