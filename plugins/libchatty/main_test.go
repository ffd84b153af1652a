package main

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	unix "golang.org/x/sys/unix"

	"github.com/zqzqsb/hooksandbox/pkg/hook"
	"github.com/zqzqsb/hooksandbox/pkg/memory"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	Output = &buf
	require.NoError(t, CustomLibrary.Init())
	t.Cleanup(func() {
		CustomLibrary.Terminate()
		readPath = memory.ReadString
	})
	return &buf
}

func TestLibrary(t *testing.T) {
	assert.Less(t, len(CustomLibrary.Syscalls), hook.MaxSyscalls)
	for no, s := range CustomLibrary.Syscalls {
		if !s.Valid() {
			continue
		}
		assert.NotNil(t, s.Before, s.Name)
		assert.Nil(t, s.After, s.Name)
		assert.True(t, s.Flags.Has(hook.FlagKeepPreviousReturn), no)
		assert.False(t, s.Flags.Has(hook.FlagSkipKernel), no)
	}
}

func TestPathFromTracee(t *testing.T) {
	buf := capture(t)
	var gotPid int
	var gotAddr uintptr
	readPath = func(pid int, addr uintptr) (string, error) {
		gotPid, gotAddr = pid, addr
		return "/etc/hostname", nil
	}

	s := CustomLibrary.Syscalls[unix.SYS_OPENAT]
	assert.Zero(t, s.Before(&hook.Tracee{Pid: 42}, hook.Args{uint64(0xffffff9c), 0x1000, unix.O_RDONLY}))

	assert.Equal(t, 42, gotPid)
	assert.Equal(t, uintptr(0x1000), gotAddr)
	out := buf.String()
	assert.Contains(t, out, "chatty loaded")
	assert.Contains(t, out, "openat")
	assert.Contains(t, out, "/etc/hostname")
	assert.Contains(t, out, "-100")
}

func TestPathReadError(t *testing.T) {
	buf := capture(t)
	readPath = func(int, uintptr) (string, error) {
		return "", errors.New("bad address")
	}

	CustomLibrary.Syscalls[unix.SYS_EXECVE].Before(&hook.Tracee{Pid: 7}, hook.Args{})
	assert.Contains(t, buf.String(), "execve")
	assert.Contains(t, buf.String(), "bad address")
}

func TestKill(t *testing.T) {
	buf := capture(t)
	CustomLibrary.Syscalls[unix.SYS_KILL].Before(&hook.Tracee{Pid: 7}, hook.Args{12, uint64(unix.SIGTERM)})
	assert.Contains(t, buf.String(), unix.SIGTERM.String())
}

func TestSilentBeforeInit(t *testing.T) {
	var buf bytes.Buffer
	Output = &buf
	CustomLibrary.Syscalls[unix.SYS_GETPID].Before(&hook.Tracee{}, hook.Args{})
	assert.Empty(t, buf.String())
}
