// Package options 定义了沙箱的命令行选项和配置文件
package options

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/zqzqsb/hooksandbox/pkg/rlimit"
	"github.com/zqzqsb/hooksandbox/runner"
)

// Options 是一次运行的全部选项
// 命令行参数优先于配置文件
type Options struct {
	// Paths 查找插件 libNAME.so 的目录，按顺序尝试
	Paths []string `yaml:"paths"`
	// Libraries 要加载的插件名，按顺序组成插件链
	Libraries []string `yaml:"libraries"`

	Verbose        bool `yaml:"verbose"`
	Debug          bool `yaml:"debug"`
	FollowChildren bool `yaml:"follow_children"`
	// Plan 只打印执行计划，不运行被跟踪程序
	Plan bool `yaml:"plan"`

	// Attach 附加到已存在的进程
	Attach int `yaml:"attach"`

	RLimits Limits `yaml:"rlimits"`

	// ConfigFile 是 YAML 配置文件路径
	ConfigFile string `yaml:"-"`
	// Command 是被跟踪程序及其参数
	Command []string `yaml:"-"`
}

// Limits 是配置文件和命令行中的资源限制
type Limits struct {
	CPU          uint64      `yaml:"cpu"` // 秒
	AddressSpace runner.Size `yaml:"address_space"`
	FileSize     runner.Size `yaml:"file_size"`
	Stack        runner.Size `yaml:"stack"`
	OpenFile     uint64      `yaml:"open_file"`
	DisableCore  bool        `yaml:"disable_core"`
}

// RLimits 转换为 prlimit 使用的资源限制
func (l Limits) RLimits() []rlimit.RLimit {
	r := rlimit.RLimits{
		CPU:          l.CPU,
		AddressSpace: l.AddressSpace.Byte(),
		FileSize:     l.FileSize.Byte(),
		Stack:        l.Stack.Byte(),
		OpenFile:     l.OpenFile,
		DisableCore:  l.DisableCore,
	}
	return r.PrepareRLimit()
}

// AddFlags 将选项绑定到命令行参数
func (o *Options) AddFlags(fs *pflag.FlagSet) {
	fs.StringArrayVarP(&o.Paths, "path", "L", nil, "directory to look for plugins libNAME.so (repeatable)")
	fs.StringArrayVarP(&o.Libraries, "lib", "l", nil, "plugin NAME to load from libNAME.so (repeatable, chain order)")
	fs.BoolVarP(&o.Verbose, "verbose", "v", false, "print the steps of the sandbox")
	fs.BoolVar(&o.Debug, "debug", false, "print every syscall stop and hook result")
	fs.BoolVarP(&o.FollowChildren, "follow", "p", false, "also trace child processes created by fork/vfork/clone")
	fs.BoolVarP(&o.Plan, "plan", "t", false, "print the execution plan of the loaded plugins and exit")
	fs.IntVar(&o.Attach, "attach", 0, "attach to an existing process instead of starting one")
	fs.StringVarP(&o.ConfigFile, "config", "c", "", "YAML config file")

	fs.Uint64Var(&o.RLimits.CPU, "cpu", 0, "CPU time limit in seconds")
	fs.Var(&o.RLimits.AddressSpace, "address-space", "address space limit (e.g. 512m)")
	fs.Var(&o.RLimits.FileSize, "file-size", "file size limit (e.g. 64m)")
	fs.Var(&o.RLimits.Stack, "stack", "stack size limit (e.g. 8m)")
	fs.Uint64Var(&o.RLimits.OpenFile, "open-file", 0, "open file limit")
	fs.BoolVar(&o.RLimits.DisableCore, "disable-core", false, "disable core dumps")
}

// ApplyFile 读取配置文件，命令行中未设置的选项取配置文件中的值
// 列表选项在配置文件中的值排在命令行的值之前
func (o *Options) ApplyFile(path string, fs *pflag.FlagSet) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	var f Options
	if err := yaml.Unmarshal(b, &f); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	changed := func(name string) bool {
		return fs != nil && fs.Changed(name)
	}
	o.Paths = append(f.Paths, o.Paths...)
	o.Libraries = append(f.Libraries, o.Libraries...)
	if !changed("verbose") {
		o.Verbose = f.Verbose
	}
	if !changed("debug") {
		o.Debug = f.Debug
	}
	if !changed("follow") {
		o.FollowChildren = f.FollowChildren
	}
	if !changed("plan") {
		o.Plan = f.Plan
	}
	if !changed("attach") {
		o.Attach = f.Attach
	}
	if !changed("cpu") {
		o.RLimits.CPU = f.RLimits.CPU
	}
	if !changed("address-space") {
		o.RLimits.AddressSpace = f.RLimits.AddressSpace
	}
	if !changed("file-size") {
		o.RLimits.FileSize = f.RLimits.FileSize
	}
	if !changed("stack") {
		o.RLimits.Stack = f.RLimits.Stack
	}
	if !changed("open-file") {
		o.RLimits.OpenFile = f.RLimits.OpenFile
	}
	if !changed("disable-core") {
		o.RLimits.DisableCore = f.RLimits.DisableCore
	}
	return nil
}

// LogLevel 返回选项对应的日志级别
func (o *Options) LogLevel() string {
	switch {
	case o.Debug:
		return "debug"
	case o.Verbose:
		return "info"
	default:
		return "warn"
	}
}

// 选项错误
var (
	ErrLibName    = errors.New("library name must be alphanumeric")
	ErrPath       = errors.New("invalid plugin path")
	ErrNoCommand  = errors.New("missing command to trace")
	ErrBothTarget = errors.New("cannot both attach and run a command")
)

// Validate 检查并规范化选项
func (o *Options) Validate() error {
	for i, p := range o.Paths {
		clean, err := CheckPath(p)
		if err != nil {
			return err
		}
		o.Paths[i] = clean
	}
	for _, l := range o.Libraries {
		if err := CheckLibName(l); err != nil {
			return err
		}
	}
	if o.Attach != 0 && len(o.Command) > 0 {
		return ErrBothTarget
	}
	if !o.Plan && o.Attach == 0 && len(o.Command) == 0 {
		return ErrNoCommand
	}
	return nil
}

// CheckLibName 插件名只能由字母和数字组成
func CheckLibName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty", ErrLibName)
	}
	for _, c := range name {
		if c > unicode.MaxASCII || !(unicode.IsLetter(c) || unicode.IsDigit(c)) {
			return fmt.Errorf("%w: %q", ErrLibName, name)
		}
	}
	return nil
}

// CheckPath 插件目录必须存在，返回去掉末尾 / 的路径
func CheckPath(path string) (string, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrPath, err)
	}
	if !fi.IsDir() {
		return "", fmt.Errorf("%w: %s is not a directory", ErrPath, path)
	}
	if trimmed := strings.TrimRight(path, "/"); trimmed != "" {
		path = trimmed
	}
	return path, nil
}
