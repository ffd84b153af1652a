// Package memory 提供了读写被跟踪进程地址空间的方法
//
// 读写以机器字为单位通过 PTRACE_PEEKDATA / PTRACE_POKEDATA 完成，
// 调用者必须是被跟踪进程的 tracer，并且处于 tracer 线程中（即在钩子内调用）。
package memory

import (
	"errors"
	"fmt"
	"syscall"
	"unsafe"

	unix "golang.org/x/sys/unix"
)

// ErrAccessDenied 表示无法访问被跟踪进程的内存
var ErrAccessDenied = errors.New("memory access denied")

// wordSize 是一次 ptrace 传输的字节数
const wordSize = int(unsafe.Sizeof(uintptr(0)))

// wordIO 一次传输一个机器字
type wordIO interface {
	peek(pid int, addr uintptr) (uintptr, error)
	poke(pid int, addr uintptr, w uintptr) error
}

// ptraceWords 直接调用 ptrace，不经过 x/sys 的按字循环封装，
// 因为 PEEKDATA 的返回值本身可能等于 -1，必须从 errno 判断成败
type ptraceWords struct{}

func (ptraceWords) peek(pid int, addr uintptr) (uintptr, error) {
	var w uintptr
	_, _, errno := unix.Syscall6(unix.SYS_PTRACE, unix.PTRACE_PEEKDATA,
		uintptr(pid), addr, uintptr(unsafe.Pointer(&w)), 0, 0)
	if errno != 0 {
		return 0, errno
	}
	return w, nil
}

func (ptraceWords) poke(pid int, addr uintptr, w uintptr) error {
	_, _, errno := unix.Syscall6(unix.SYS_PTRACE, unix.PTRACE_POKEDATA,
		uintptr(pid), addr, w, 0, 0)
	if errno != 0 {
		return errno
	}
	return nil
}

var words wordIO = ptraceWords{}

// Read 从 pid 的 addr 处读取 n 个字节
func Read(pid int, addr uintptr, n int) ([]byte, error) {
	return read(words, pid, addr, n)
}

// Write 将 data 写入 pid 的 addr 处，返回写入的字节数
func Write(pid int, addr uintptr, data []byte) (int, error) {
	return write(words, pid, addr, data)
}

/* read 按字读取

先读取完整的字，最后一个（可能不完整的）字只拷贝需要的字节数。 */

func read(io wordIO, pid int, addr uintptr, n int) ([]byte, error) {
	if n <= 0 || addr == 0 {
		return nil, fmt.Errorf("%w: read %d bytes at %#x", ErrAccessDenied, n, addr)
	}
	out := make([]byte, n)
	done := 0
	for n-done > wordSize {
		w, err := io.peek(pid, addr+uintptr(done))
		if err != nil {
			return nil, accessError(pid, addr+uintptr(done), err)
		}
		copy(out[done:], wordBytes(&w))
		done += wordSize
	}
	w, err := io.peek(pid, addr+uintptr(done))
	if err != nil {
		return nil, accessError(pid, addr+uintptr(done), err)
	}
	copy(out[done:], wordBytes(&w)[:n-done])
	return out, nil
}

/* write 按字写入

最后一个字先读出目标位置原有的内容，合并需要写入的字节后再写回，
避免覆盖相邻的内存。 */

func write(io wordIO, pid int, addr uintptr, data []byte) (int, error) {
	n := len(data)
	if n == 0 || addr == 0 {
		return 0, fmt.Errorf("%w: write %d bytes at %#x", ErrAccessDenied, n, addr)
	}
	done := 0
	for n-done > wordSize {
		var w uintptr
		copy(wordBytes(&w), data[done:done+wordSize])
		if err := io.poke(pid, addr+uintptr(done), w); err != nil {
			return done, accessError(pid, addr+uintptr(done), err)
		}
		done += wordSize
	}
	w, err := io.peek(pid, addr+uintptr(done))
	if err != nil {
		return done, accessError(pid, addr+uintptr(done), err)
	}
	copy(wordBytes(&w), data[done:])
	if err := io.poke(pid, addr+uintptr(done), w); err != nil {
		return done, accessError(pid, addr+uintptr(done), err)
	}
	return n, nil
}

func wordBytes(w *uintptr) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(w)), wordSize)
}

func accessError(pid int, addr uintptr, err error) error {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return fmt.Errorf("%w: pid %d at %#x: %w", ErrAccessDenied, pid, addr, errno)
	}
	return fmt.Errorf("%w: pid %d at %#x: %v", ErrAccessDenied, pid, addr, err)
}
