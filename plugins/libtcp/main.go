//go:build amd64

// libtcp 改写被跟踪程序的网络调用
//
//	bind      1 到 PortLimit-1 之间的 IPv4 端口加上 PortShift 后再绑定，返回前把调用者的 sockaddr 恢复原样
//	sendto    发送前翻转数据中字母的大小写
//	recvfrom  收到的数据中的数字替换为 '0'
//
// 被跟踪程序以为自己绑定了特权端口，实际监听的是 port+PortShift。
// 在 i386 上这些调用通常经由 socketcall 完成，因此只支持 amd64。
package main

import (
	"encoding/binary"

	unix "golang.org/x/sys/unix"

	"github.com/zqzqsb/hooksandbox/pkg/hook"
	"github.com/zqzqsb/hooksandbox/pkg/memory"
)

const (
	PortShift = 2000
	PortLimit = 1024

	// 每次调用最多改写的字节数
	bufferLength = 512
	// sizeof(struct sockaddr_in)
	sockaddrInLen = unix.SizeofSockaddrInet4
)

// CustomTracee 由沙箱填充
var CustomTracee *hook.Tracee

// CustomLibrary 插件描述
var CustomLibrary = hook.Library{
	Name: "tcp",
	Syscalls: hook.Table(map[int]hook.Syscall{
		unix.SYS_BIND:     {Before: bind, After: unbind, Name: "bind", Flags: hook.FlagKeepPreviousReturn},
		unix.SYS_SENDTO:   {Before: sendto, Name: "sendto", Flags: hook.FlagKeepPreviousReturn},
		unix.SYS_RECVFROM: {After: recvfrom, Name: "recvfrom", Flags: hook.FlagKeepPreviousReturn},
	}),
}

// shifted 记录每个进程正在进行的 bind 改写前的端口
var shifted = make(map[int]uint16)

// bind(sockfd, addr, addrlen)
func bind(t *hook.Tracee, args hook.Args) int64 {
	addr := uintptr(args[1])
	if addr == 0 || args[2] < sockaddrInLen {
		return 0
	}
	b, err := memory.Read(t.Pid, addr, sockaddrInLen)
	if err != nil {
		return 0
	}
	port, ok := shiftPort(b)
	if !ok {
		return 0
	}
	if _, err := memory.Write(t.Pid, addr, b); err == nil {
		shifted[t.Pid] = port
	}
	return 0
}

func unbind(t *hook.Tracee, args hook.Args) int64 {
	port, ok := shifted[t.Pid]
	if !ok {
		return 0
	}
	delete(shifted, t.Pid)
	addr := uintptr(args[1])
	b, err := memory.Read(t.Pid, addr, sockaddrInLen)
	if err != nil {
		return 0
	}
	setPort(b, port)
	memory.Write(t.Pid, addr, b)
	return 0
}

// sendto(sockfd, buf, len, flags, dest_addr, addrlen)
func sendto(t *hook.Tracee, args hook.Args) int64 {
	rewrite(t.Pid, uintptr(args[1]), int64(args[2]), invertCase)
	return 0
}

// recvfrom(sockfd, buf, len, flags, src_addr, addrlen)
func recvfrom(t *hook.Tracee, args hook.Args) int64 {
	if t.KernelExecuted {
		rewrite(t.Pid, uintptr(args[1]), t.KernelReturnValue, zeroDigits)
	}
	return 0
}

// rewrite 读出最多 bufferLength 个字节，改写后写回
func rewrite(pid int, addr uintptr, n int64, f func([]byte)) {
	if addr == 0 || n <= 0 {
		return
	}
	b, err := memory.Read(pid, addr, int(min(n, bufferLength)))
	if err != nil {
		return
	}
	f(b)
	memory.Write(pid, addr, b)
}

// shiftPort 改写 sockaddr_in 中的端口，返回原端口
// 只处理 AF_INET 且端口在 1 到 PortLimit-1 之间的地址，端口 0 由内核分配
func shiftPort(b []byte) (uint16, bool) {
	if len(b) < sockaddrInLen || binary.NativeEndian.Uint16(b) != unix.AF_INET {
		return 0, false
	}
	port := binary.BigEndian.Uint16(b[2:])
	if port == 0 || port >= PortLimit {
		return 0, false
	}
	setPort(b, port+PortShift)
	return port, true
}

// setPort 以网络字节序写入 sin_port
func setPort(b []byte, port uint16) {
	binary.BigEndian.PutUint16(b[2:], port)
}

func invertCase(b []byte) {
	for i, c := range b {
		switch {
		case 'a' <= c && c <= 'z':
			b[i] = c - 'a' + 'A'
		case 'A' <= c && c <= 'Z':
			b[i] = c - 'A' + 'a'
		}
	}
}

func zeroDigits(b []byte) {
	for i, c := range b {
		if '0' <= c && c <= '9' {
			b[i] = '0'
		}
	}
}

func main() {}
