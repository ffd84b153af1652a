package memory

import (
	"bytes"
	"errors"
	"os"
	"syscall"
	"unsafe"

	unix "golang.org/x/sys/unix"
)

var (
	// UseVMReadv 决定是否使用 process_vm_readv 读取字符串
	// 初始为 true，如果调用返回 ENOSYS 则变为 false
	UseVMReadv = true
	pageSize   = 4 << 10
)

func init() {
	pageSize = os.Getpagesize()
}

/* ReadString 读取被跟踪进程中以 NUL 结尾的字符串

最多读取 PATH_MAX 个字节。优先使用 process_vm_readv 按页读取，
如果内核不支持则回退到按字的 ptrace 读取。 */

func ReadString(pid int, addr uintptr) (string, error) {
	if addr == 0 {
		return "", ErrAccessDenied
	}
	buff := make([]byte, syscall.PathMax)
	if UseVMReadv {
		err := vmReadStr(pid, addr, buff)
		if err == nil {
			return cString(buff), nil
		}
		if errors.Is(err, syscall.ENOSYS) {
			UseVMReadv = false
		}
	}
	if err := wordReadStr(words, pid, addr, buff); err != nil {
		return "", err
	}
	return cString(buff), nil
}

// wordReadStr 按字读取直到遇到 NUL 或填满 buff
func wordReadStr(io wordIO, pid int, addr uintptr, buff []byte) error {
	for done := 0; done < len(buff); done += wordSize {
		w, err := io.peek(pid, addr+uintptr(done))
		if err != nil {
			return accessError(pid, addr+uintptr(done), err)
		}
		n := copy(buff[done:], wordBytes(&w))
		if hasNull(buff[done : done+n]) {
			return nil
		}
	}
	return nil
}

func processVMReadv(pid int, localIov, remoteIov []unix.Iovec,
	flags uintptr) (r1, r2 uintptr, err syscall.Errno) {
	return syscall.Syscall6(unix.SYS_PROCESS_VM_READV, uintptr(pid),
		uintptr(unsafe.Pointer(&localIov[0])), uintptr(len(localIov)),
		uintptr(unsafe.Pointer(&remoteIov[0])), uintptr(len(remoteIov)),
		flags)
}

func vmRead(pid int, addr uintptr, buff []byte) (int, error) {
	l := len(buff)
	localIov := getIovecs(&buff[0], l)
	remoteIov := getIovecs((*byte)(unsafe.Pointer(addr)), l)
	n, _, err := processVMReadv(pid, localIov, remoteIov, uintptr(0))
	if err == 0 {
		return int(n), nil
	}
	return int(n), err
}

func getIovecs(base *byte, l int) []unix.Iovec {
	iov := unix.Iovec{Base: base}
	iov.SetLen(l)
	return []unix.Iovec{iov}
}

/* vmReadStr 按页读取字符串

第一次只读到下一个页边界，避免跨越未映射的页导致整次读取失败。 */

func vmReadStr(pid int, addr uintptr, buff []byte) error {
	totalRead := 0
	nextRead := pageSize - int(addr%uintptr(pageSize))
	if nextRead == 0 {
		nextRead = pageSize
	}

	for len(buff) > 0 {
		if restToRead := len(buff); restToRead < nextRead {
			nextRead = restToRead
		}

		curRead, err := vmRead(pid, addr+uintptr(totalRead), buff[:nextRead])
		if err != nil {
			return err
		}
		if curRead == 0 {
			break
		}
		if hasNull(buff[:curRead]) {
			break
		}

		totalRead += curRead
		buff = buff[curRead:]
		nextRead = pageSize
	}
	return nil
}

func hasNull(buff []byte) bool {
	return bytes.IndexByte(buff, 0) >= 0
}

// cString 截断到第一个 NUL
func cString(buff []byte) string {
	if i := bytes.IndexByte(buff, 0); i >= 0 {
		return string(buff[:i])
	}
	return string(buff)
}
