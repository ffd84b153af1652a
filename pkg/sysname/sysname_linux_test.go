package sysname

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/sys/unix"
)

func TestName(t *testing.T) {
	tests := []struct {
		no   int
		want string
	}{
		{unix.SYS_GETPID, "getpid"},
		{unix.SYS_WRITE, "write"},
		{unix.SYS_EXIT_GROUP, "exit_group"},
		{-1, "syscall_-1"},
		{100000, "syscall_100000"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Name(tt.no))
	}
}

func TestToSyscallNameUnknown(t *testing.T) {
	_, err := ToSyscallName(100000)
	assert.Error(t, err)
}
