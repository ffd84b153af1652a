package registry

import (
	"errors"
	"fmt"
)

// 插件加载失败的原因
var (
	ErrOpen              = errors.New("cannot open plugin")
	ErrMissingSymbol     = errors.New("missing plugin symbol")
	ErrInvalidDescriptor = errors.New("invalid plugin descriptor")
	ErrInit              = errors.New("plugin initialization failed")
)

// LoadError 记录加载失败的插件路径和原因
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load plugin %q: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}
