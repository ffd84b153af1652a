// Package registry 管理已加载的插件链
//
// 插件按加载顺序组成一条链：系统调用入口时正向遍历执行 Before 钩子，
// 出口时反向遍历执行 After 钩子。所有插件共享同一个快照 hook.Tracee，
// 每个插件导出的 CustomTracee 槽都指向它。
package registry

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/zqzqsb/hooksandbox/pkg/hook"
)

// Plugin 是链上的一个插件
type Plugin struct {
	Name string
	Path string // 进程内注册的插件为空

	lib  *hook.Library
	slot **hook.Tracee
}

// Lookup 返回插件对系统调用 no 的描述
// 系统调用号越界或描述没有任何钩子时返回 nil
func (p *Plugin) Lookup(no int) *hook.Syscall {
	if no < 0 || no >= len(p.lib.Syscalls) {
		return nil
	}
	s := &p.lib.Syscalls[no]
	if !s.Valid() {
		return nil
	}
	return s
}

// Registry 是有序的插件链和共享快照
// 只能在跟踪 goroutine 中使用
type Registry struct {
	chain    []*Plugin
	snapshot hook.Tracee
	log      zerolog.Logger
}

// New 创建一个空的插件链
func New(log zerolog.Logger) *Registry {
	return &Registry{log: log}
}

/*
	Add 验证插件描述并将其追加到链尾

验证顺序：
 1. 系统调用表长度必须小于 hook.MaxSyscalls
 2. 系统调用表不能为 nil

验证通过后：
 1. 追加到链尾
 2. 将插件的快照槽指向共享快照
 3. 同步调用 Init，失败时将插件移出链并返回 ErrInit

链只会整体成功追加一个插件，失败时链保持不变。
*/
func (r *Registry) Add(name string, lib *hook.Library, slot **hook.Tracee) error {
	if lib == nil {
		return fmt.Errorf("%w: nil library", ErrInvalidDescriptor)
	}
	if n := len(lib.Syscalls); n >= hook.MaxSyscalls {
		return fmt.Errorf("%w: syscall table length %d, must be less than %d", ErrInvalidDescriptor, n, hook.MaxSyscalls)
	}
	if lib.Syscalls == nil {
		return fmt.Errorf("%w: nil syscall table", ErrInvalidDescriptor)
	}
	if name == "" {
		name = lib.Name
	}

	p := &Plugin{Name: name, lib: lib, slot: slot}
	r.chain = append(r.chain, p)
	if slot != nil {
		*slot = &r.snapshot
	}

	if lib.Init != nil {
		if err := lib.Init(); err != nil {
			r.chain[len(r.chain)-1] = nil
			r.chain = r.chain[:len(r.chain)-1]
			if slot != nil {
				*slot = nil
			}
			return fmt.Errorf("%w: %s: %w", ErrInit, name, err)
		}
	}
	r.log.Info().Str("plugin", name).Int("syscalls", len(lib.Syscalls)).Msg("plugin loaded")
	return nil
}

// Chain 按加载顺序返回插件链，调用者不能修改
func (r *Registry) Chain() []*Plugin {
	return r.chain
}

// Lookup 返回第 i 个插件对系统调用 no 的描述
func (r *Registry) Lookup(i, no int) *hook.Syscall {
	if i < 0 || i >= len(r.chain) {
		return nil
	}
	return r.chain[i].Lookup(no)
}

// Snapshot 返回共享快照
func (r *Registry) Snapshot() *hook.Tracee {
	return &r.snapshot
}

// Len 返回已加载的插件数
func (r *Registry) Len() int {
	return len(r.chain)
}

// Plugins 按加载顺序返回插件名
func (r *Registry) Plugins() []string {
	names := make([]string, 0, len(r.chain))
	for _, p := range r.chain {
		names = append(names, p.Name)
	}
	return names
}

// UnloadAll 按加载顺序调用 Terminate 并清空插件链，可以重复调用
// Go 插件无法从进程中卸载，清空后插件代码不会再被调用
func (r *Registry) UnloadAll() {
	for _, p := range r.chain {
		if p.lib.Terminate != nil {
			p.lib.Terminate()
		}
		if p.slot != nil {
			*p.slot = nil
		}
		r.log.Debug().Str("plugin", p.Name).Msg("plugin unloaded")
	}
	r.chain = nil
}
