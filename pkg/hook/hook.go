// Package hook 定义了沙箱与插件之间的契约
//
// 插件是一个以 -buildmode=plugin 编译的 Go 插件，必须导出两个固定名称的符号：
//
//	var CustomLibrary = hook.Library{...} // 插件描述
//	var CustomTracee *hook.Tracee         // 由沙箱填充的快照指针槽
//
// 沙箱在每次调用钩子前都会重写快照，插件每次访问都必须通过指针槽解引用，
// 不能复制保存。
package hook

// 插件中必须导出的符号名
const (
	LibrarySymbol = "CustomLibrary"
	TraceeSymbol  = "CustomTracee"
)

// DefaultReturnValue 是钩子链中返回值的初始值，
// 内核未执行时 KernelReturnValue 也取该值
const DefaultReturnValue int64 = -1

// Args 是系统调用的 6 个参数寄存器，顺序由架构调用约定决定
type Args [6]uint64

// Hook 是插件提供的钩子函数
// t 是当前被跟踪进程的快照，仅在本次调用期间有效
// 返回值会沿着钩子链传递，最终写回被跟踪进程的返回值寄存器
type Hook func(t *Tracee, args Args) int64

// Flag 控制钩子链的执行方式
type Flag uint8

const (
	// FlagSkipKernel 不执行内核中的原始系统调用
	FlagSkipKernel Flag = 1 << iota
	// FlagKeepPreviousReturn 忽略本钩子的返回值，保留链上之前的返回值
	FlagKeepPreviousReturn
	// FlagAbortOnNegative 钩子返回负数时终止本轮链的执行
	FlagAbortOnNegative
)

// Has 判断是否设置了 f 中的全部标志
func (fl Flag) Has(f Flag) bool {
	return fl&f == f
}

func (fl Flag) String() string {
	s := ""
	if fl.Has(FlagSkipKernel) {
		s += "S"
	}
	if fl.Has(FlagKeepPreviousReturn) {
		s += "K"
	}
	if fl.Has(FlagAbortOnNegative) {
		s += "A"
	}
	if s == "" {
		return "-"
	}
	return s
}

// Syscall 描述插件对某个系统调用的自定义处理
type Syscall struct {
	Before Hook   // 内核执行前调用，可为 nil
	After  Hook   // 内核执行后调用，可为 nil
	Name   string // 显示名称
	Flags  Flag
}

// Valid 至少实现了一个钩子的描述才有效
func (s *Syscall) Valid() bool {
	return s != nil && (s.Before != nil || s.After != nil)
}

// Library 描述一个插件
type Library struct {
	Name string

	// Init 在插件加载后同步调用，返回错误会使加载失败
	Init func() error
	// Terminate 在沙箱结束时调用
	Terminate func()

	// Syscalls 以系统调用号为下标，长度必须小于 MaxSyscalls
	Syscalls []Syscall
}

// Table 由 系统调用号 -> 描述 的映射构造 Library.Syscalls
// 长度为最大系统调用号加一，未出现的系统调用号为空描述
func Table(m map[int]Syscall) []Syscall {
	n := 0
	for no := range m {
		if no+1 > n {
			n = no + 1
		}
	}
	t := make([]Syscall, n)
	for no, s := range m {
		if no >= 0 {
			t[no] = s
		}
	}
	return t
}

// Tracee 是暴露给钩子的被跟踪进程快照
// 每次调用钩子之前都会被覆盖，跨调用的状态需要按 Pid 自行保存
type Tracee struct {
	Pid               int
	ReturnValue       int64 // 链上当前的返回值
	KernelReturnValue int64 // 内核的返回值，未执行时为 DefaultReturnValue
	KernelExecuted    bool  // 本次系统调用内核是否执行
}
