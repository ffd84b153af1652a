package registry

import (
	"fmt"
	"path/filepath"
	"plugin"
	"strings"

	"github.com/zqzqsb/hooksandbox/pkg/hook"
)

// AddPlugin 打开 Go 插件并将其追加到链尾
// 插件必须导出 hook.LibrarySymbol (*hook.Library) 和 hook.TraceeSymbol (**hook.Tracee)
func (r *Registry) AddPlugin(path string) error {
	p, err := plugin.Open(path)
	if err != nil {
		return &LoadError{Path: path, Err: fmt.Errorf("%w: %w", ErrOpen, err)}
	}
	lib, slot, err := lookupSymbols(p)
	if err != nil {
		return &LoadError{Path: path, Err: err}
	}
	if err := r.Add(pluginName(path, lib), lib, slot); err != nil {
		return &LoadError{Path: path, Err: err}
	}
	r.chain[len(r.chain)-1].Path = path
	return nil
}

// symbols 抽象 *plugin.Plugin 以便测试
type symbols interface {
	Lookup(string) (plugin.Symbol, error)
}

func lookupSymbols(p symbols) (*hook.Library, **hook.Tracee, error) {
	ls, err := p.Lookup(hook.LibrarySymbol)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrMissingSymbol, hook.LibrarySymbol)
	}
	ts, err := p.Lookup(hook.TraceeSymbol)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrMissingSymbol, hook.TraceeSymbol)
	}
	lib, ok := ls.(*hook.Library)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s has type %T", ErrInvalidDescriptor, hook.LibrarySymbol, ls)
	}
	slot, ok := ts.(**hook.Tracee)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s has type %T", ErrInvalidDescriptor, hook.TraceeSymbol, ts)
	}
	return lib, slot, nil
}

// pluginName 优先使用插件自带的名字，否则由文件名 libNAME.so 推出
func pluginName(path string, lib *hook.Library) string {
	if lib.Name != "" {
		return lib.Name
	}
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return strings.TrimPrefix(base, "lib")
}
