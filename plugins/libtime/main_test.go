package main

import (
	"encoding/binary"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	unix "golang.org/x/sys/unix"

	"github.com/zqzqsb/hooksandbox/pkg/hook"
)

func TestShift(t *testing.T) {
	flip = false
	now := int64(1_700_000_000)
	assert.Equal(t, now+Year, shift(now))
	assert.Equal(t, now-Year, shift(now))
	assert.Equal(t, now+Year, shift(now))
	assert.Equal(t, int64(10), shift(10))
}

func TestTimeWithoutPointer(t *testing.T) {
	flip = false
	tr := &hook.Tracee{KernelExecuted: true, KernelReturnValue: 1_700_000_000}
	assert.Equal(t, int64(1_700_000_000+Year), timeShift(tr, hook.Args{}))

	tr.KernelReturnValue = -14
	assert.Equal(t, int64(-14), timeShift(tr, hook.Args{}))
}

func TestEncodeLong(t *testing.T) {
	b := encodeLong(-1)
	assert.Len(t, b, strconv.IntSize/8)
	for _, c := range b {
		assert.Equal(t, byte(0xff), c)
	}
}

func TestEncodeTimespec(t *testing.T) {
	ts := unix.Timespec{Sec: 3, Nsec: 7}
	b := encode(&ts)
	assert.Len(t, b, binary.Size(ts))
}

func TestNullPointers(t *testing.T) {
	tr := &hook.Tracee{}
	assert.Zero(t, stretchSleep(tr, hook.Args{}))
	assert.Zero(t, restoreSleep(tr, hook.Args{}))
	assert.Zero(t, gettimeofday(tr, hook.Args{}))
}

func TestLibrary(t *testing.T) {
	set := CustomLibrary.Syscalls[unix.SYS_SETTIMEOFDAY]
	assert.True(t, set.Flags.Has(hook.FlagSkipKernel))
	assert.Zero(t, set.Before(&hook.Tracee{}, hook.Args{}))
	assert.Less(t, len(CustomLibrary.Syscalls), hook.MaxSyscalls)
}
