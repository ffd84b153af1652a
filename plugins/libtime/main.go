// libtime 扰乱被跟踪程序看到的时间
//
//	time          每次调用交替加减一年
//	nanosleep     实际睡眠时间乘以 5，返回前恢复请求的值
//	gettimeofday  秒数固定为 StaticSeconds
//	settimeofday  不执行，返回成功
//
// 通过 vDSO 完成的 time 和 gettimeofday 不经过系统调用，不受影响。
package main

import (
	"bytes"
	"encoding/binary"
	"strconv"

	unix "golang.org/x/sys/unix"

	"github.com/zqzqsb/hooksandbox/pkg/hook"
	"github.com/zqzqsb/hooksandbox/pkg/memory"
)

const (
	// Year 是 time 偏移的秒数
	Year = 60 * 60 * 24 * 30 * 12
	// StaticSeconds 是 gettimeofday 返回的秒数
	StaticSeconds = 403290
	// SleepFactor 是 nanosleep 睡眠时间的倍数
	SleepFactor = 5
)

// CustomTracee 由沙箱填充
var CustomTracee *hook.Tracee

// CustomLibrary 插件描述
var CustomLibrary = hook.Library{
	Name: "time",
	Syscalls: hook.Table(map[int]hook.Syscall{
		unix.SYS_NANOSLEEP:    {Before: stretchSleep, After: restoreSleep, Name: "nanosleep", Flags: hook.FlagKeepPreviousReturn},
		unix.SYS_GETTIMEOFDAY: {After: gettimeofday, Name: "gettimeofday"},
		unix.SYS_SETTIMEOFDAY: {Before: settimeofday, Name: "settimeofday", Flags: hook.FlagSkipKernel},
		unix.SYS_TIME:         {After: timeShift, Name: "time"},
	}),
}

// flip 为 true 时下一次 time 减一年
var flip bool

// shift 交替加减一年，太小的时间不变
func shift(now int64) int64 {
	if now <= Year {
		return now
	}
	if flip {
		now -= Year
	} else {
		now += Year
	}
	flip = !flip
	return now
}

// time(tloc)
func timeShift(t *hook.Tracee, args hook.Args) int64 {
	now := t.KernelReturnValue
	if now <= Year {
		return now
	}
	now = shift(now)
	if tloc := uintptr(args[0]); tloc != 0 {
		memory.Write(t.Pid, tloc, encodeLong(now))
	}
	return now
}

// nanosleep(req, rem)
func stretchSleep(t *hook.Tracee, args hook.Args) int64 {
	updateTimespec(t.Pid, uintptr(args[0]), func(ts *unix.Timespec) {
		ts.Sec *= SleepFactor
		ts.Nsec = 0
	})
	return 0
}

func restoreSleep(t *hook.Tracee, args hook.Args) int64 {
	updateTimespec(t.Pid, uintptr(args[0]), func(ts *unix.Timespec) {
		ts.Sec /= SleepFactor
		ts.Nsec = 0
	})
	return 0
}

// gettimeofday(tv, tz)
func gettimeofday(t *hook.Tracee, args hook.Args) int64 {
	tv := uintptr(args[0])
	if tv == 0 {
		return 0
	}
	b, err := memory.Read(t.Pid, tv, binary.Size(unix.Timeval{}))
	if err != nil {
		return 0
	}
	var val unix.Timeval
	if binary.Read(bytes.NewReader(b), binary.NativeEndian, &val) != nil {
		return 0
	}
	val.Sec = StaticSeconds
	memory.Write(t.Pid, tv, encode(&val))
	return 0
}

func settimeofday(*hook.Tracee, hook.Args) int64 {
	return 0
}

func updateTimespec(pid int, addr uintptr, update func(*unix.Timespec)) {
	if addr == 0 {
		return
	}
	b, err := memory.Read(pid, addr, binary.Size(unix.Timespec{}))
	if err != nil {
		return
	}
	var ts unix.Timespec
	if binary.Read(bytes.NewReader(b), binary.NativeEndian, &ts) != nil {
		return
	}
	update(&ts)
	memory.Write(pid, addr, encode(&ts))
}

func encode(v any) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.NativeEndian, v)
	return buf.Bytes()
}

// encodeLong 按 C long 的大小编码
func encodeLong(v int64) []byte {
	if strconv.IntSize == 32 {
		return binary.NativeEndian.AppendUint32(nil, uint32(v))
	}
	return binary.NativeEndian.AppendUint64(nil, uint64(v))
}

func main() {}
