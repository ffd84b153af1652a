package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	unix "golang.org/x/sys/unix"

	"github.com/zqzqsb/hooksandbox/pkg/hook"
)

func TestWriteRecord(t *testing.T) {
	var buf bytes.Buffer
	writeRecord(&buf, "Writing %d bytes to %d : ", 5, 1, []byte("hello"))
	assert.Equal(t, "Writing 5 bytes to 1 : hello\n", buf.String())
}

func TestSniffNothingToRead(t *testing.T) {
	var buf bytes.Buffer
	sniff(&buf, 0, "Reading %d bytes from %d : ", -1, 3, 0)
	assert.Equal(t, "Reading -1 bytes from 3 : \n", buf.String())

	sniff(nil, 0, "Reading %d bytes from %d : ", 10, 3, 0)
}

func TestInitTerminate(t *testing.T) {
	dir := t.TempDir()
	ReadFile = filepath.Join(dir, "read")
	WriteFile = filepath.Join(dir, "write")

	require.NoError(t, CustomLibrary.Init())
	CustomLibrary.Syscalls[unix.SYS_READ].After(&hook.Tracee{KernelReturnValue: 0}, hook.Args{7})
	CustomLibrary.Terminate()

	b, err := os.ReadFile(ReadFile)
	require.NoError(t, err)
	assert.Equal(t, "Reading 0 bytes from 7 : \n", string(b))
	assert.FileExists(t, WriteFile)
}

func TestInitFailure(t *testing.T) {
	ReadFile = filepath.Join(t.TempDir(), "missing", "read")
	assert.Error(t, CustomLibrary.Init())
}

func TestFlags(t *testing.T) {
	assert.True(t, CustomLibrary.Syscalls[unix.SYS_WRITE].Flags.Has(hook.FlagKeepPreviousReturn))
	assert.Nil(t, CustomLibrary.Syscalls[unix.SYS_WRITE].After)
	assert.Nil(t, CustomLibrary.Syscalls[unix.SYS_READ].Before)
}
