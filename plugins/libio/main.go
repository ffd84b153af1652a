// libio 把被跟踪程序 read 和 write 的数据记录到临时目录下的文件中，不改变结果
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	unix "golang.org/x/sys/unix"

	"github.com/zqzqsb/hooksandbox/pkg/hook"
	"github.com/zqzqsb/hooksandbox/pkg/memory"
)

// 每次调用最多记录的字节数
const sniffLength = 64

// CustomTracee 由沙箱填充
var CustomTracee *hook.Tracee

// CustomLibrary 插件描述
var CustomLibrary = hook.Library{
	Name:      "io",
	Init:      open,
	Terminate: closeAll,
	Syscalls: hook.Table(map[int]hook.Syscall{
		unix.SYS_READ:  {After: read, Name: "read", Flags: hook.FlagKeepPreviousReturn},
		unix.SYS_WRITE: {Before: write, Name: "write", Flags: hook.FlagKeepPreviousReturn},
	}),
}

var readLog, writeLog io.WriteCloser

// 记录文件
var (
	ReadFile  = filepath.Join(os.TempDir(), "Sandbox.read")
	WriteFile = filepath.Join(os.TempDir(), "Sandbox.write")
)

func open() error {
	r, err := os.OpenFile(ReadFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	w, err := os.OpenFile(WriteFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		r.Close()
		return err
	}
	readLog, writeLog = r, w
	return nil
}

func closeAll() {
	for _, c := range []io.Closer{readLog, writeLog} {
		if c != nil {
			c.Close()
		}
	}
	readLog, writeLog = nil, nil
}

// write(fd, buf, count) 在内核执行前记录要写入的数据
func write(t *hook.Tracee, args hook.Args) int64 {
	sniff(writeLog, t.Pid, "Writing %d bytes to %d : ", int64(args[2]), args[0], uintptr(args[1]))
	return 0
}

// read(fd, buf, count) 在内核执行后记录实际读到的数据
func read(t *hook.Tracee, args hook.Args) int64 {
	sniff(readLog, t.Pid, "Reading %d bytes from %d : ", t.KernelReturnValue, args[0], uintptr(args[1]))
	return 0
}

func sniff(w io.Writer, pid int, format string, n int64, fd uint64, buf uintptr) {
	if w == nil {
		return
	}
	var data []byte
	if n > 0 {
		data, _ = memory.Read(pid, buf, int(min(n, sniffLength)))
	}
	writeRecord(w, format, n, fd, data)
}

func writeRecord(w io.Writer, format string, n int64, fd uint64, data []byte) {
	fmt.Fprintf(w, format, n, fd)
	w.Write(data)
	io.WriteString(w, "\n")
}

func main() {}
