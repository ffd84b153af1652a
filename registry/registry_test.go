package registry

import (
	"bytes"
	"errors"
	"fmt"
	"plugin"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	unix "golang.org/x/sys/unix"

	"github.com/zqzqsb/hooksandbox/pkg/hook"
	"github.com/zqzqsb/hooksandbox/pkg/sysname"
)

func noop(*hook.Tracee, hook.Args) int64 { return 0 }

func newRegistry() *Registry {
	return New(zerolog.Nop())
}

func TestAddValidation(t *testing.T) {
	tests := []struct {
		name string
		lib  *hook.Library
		ok   bool
	}{
		{"nil library", nil, false},
		{"nil table", &hook.Library{}, false},
		{"table at limit", &hook.Library{Syscalls: make([]hook.Syscall, hook.MaxSyscalls)}, false},
		{"table below limit", &hook.Library{Syscalls: make([]hook.Syscall, hook.MaxSyscalls-1)}, true},
		{"empty table", &hook.Library{Syscalls: []hook.Syscall{}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRegistry()
			var slot *hook.Tracee
			err := r.Add(tt.name, tt.lib, &slot)
			if tt.ok {
				require.NoError(t, err)
				assert.Equal(t, 1, r.Len())
				assert.Same(t, r.Snapshot(), slot)
				return
			}
			assert.ErrorIs(t, err, ErrInvalidDescriptor)
			assert.Zero(t, r.Len())
			assert.Nil(t, slot)
		})
	}
}

func TestLookup(t *testing.T) {
	r := newRegistry()
	lib := &hook.Library{Syscalls: hook.Table(map[int]hook.Syscall{
		3: {Before: noop, Name: "close"},
		5: {Name: "empty"},
		7: {After: noop},
	})}
	require.NoError(t, r.Add("t", lib, nil))

	assert.NotNil(t, r.Lookup(0, 3))
	assert.NotNil(t, r.Lookup(0, 7))
	assert.Nil(t, r.Lookup(0, 5), "descriptor without hooks")
	assert.Nil(t, r.Lookup(0, 4))
	assert.Nil(t, r.Lookup(0, 8), "beyond table")
	assert.Nil(t, r.Lookup(0, -1))
	assert.Nil(t, r.Lookup(0, hook.MaxSyscalls+10))
	assert.Nil(t, r.Lookup(1, 3), "no such plugin")
}

func TestInitFailureRollsBack(t *testing.T) {
	r := newRegistry()
	require.NoError(t, r.Add("first", &hook.Library{Syscalls: []hook.Syscall{}}, nil))

	boom := errors.New("boom")
	var slot *hook.Tracee
	err := r.Add("second", &hook.Library{
		Syscalls: []hook.Syscall{},
		Init:     func() error { return boom },
	}, &slot)
	assert.ErrorIs(t, err, ErrInit)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"first"}, r.Plugins())
	assert.Nil(t, slot)
}

func TestInitSeesWiredSlot(t *testing.T) {
	r := newRegistry()
	var slot *hook.Tracee
	var seen *hook.Tracee
	lib := &hook.Library{
		Syscalls: []hook.Syscall{},
		Init: func() error {
			seen = slot
			return nil
		},
	}
	require.NoError(t, r.Add("x", lib, &slot))
	assert.Same(t, r.Snapshot(), seen)
}

func TestUnloadAll(t *testing.T) {
	r := newRegistry()
	var order []string
	slots := make([]*hook.Tracee, 3)
	for i, name := range []string{"a", "b", "c"} {
		lib := &hook.Library{
			Name:      name,
			Syscalls:  []hook.Syscall{},
			Terminate: func() { order = append(order, name) },
		}
		require.NoError(t, r.Add("", lib, &slots[i]))
	}
	assert.Equal(t, []string{"a", "b", "c"}, r.Plugins())

	r.UnloadAll()
	assert.Equal(t, []string{"a", "b", "c"}, order)
	assert.Zero(t, r.Len())
	for _, s := range slots {
		assert.Nil(t, s)
	}

	r.UnloadAll()
	assert.Len(t, order, 3)
}

func TestAddPluginOpenError(t *testing.T) {
	r := newRegistry()
	err := r.AddPlugin("/nonexistent/libnothing.so")
	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "/nonexistent/libnothing.so", le.Path)
	assert.ErrorIs(t, err, ErrOpen)
	assert.Zero(t, r.Len())
}

type fakeSymbols map[string]plugin.Symbol

func (f fakeSymbols) Lookup(name string) (plugin.Symbol, error) {
	if s, ok := f[name]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("symbol %s not found", name)
}

func TestLookupSymbols(t *testing.T) {
	lib := &hook.Library{}
	var slot *hook.Tracee

	_, _, err := lookupSymbols(fakeSymbols{hook.TraceeSymbol: &slot})
	assert.ErrorIs(t, err, ErrMissingSymbol)

	_, _, err = lookupSymbols(fakeSymbols{hook.LibrarySymbol: lib})
	assert.ErrorIs(t, err, ErrMissingSymbol)

	_, _, err = lookupSymbols(fakeSymbols{hook.LibrarySymbol: *lib, hook.TraceeSymbol: &slot})
	assert.ErrorIs(t, err, ErrInvalidDescriptor)

	_, _, err = lookupSymbols(fakeSymbols{hook.LibrarySymbol: lib, hook.TraceeSymbol: slot})
	assert.ErrorIs(t, err, ErrInvalidDescriptor)

	l, s, err := lookupSymbols(fakeSymbols{hook.LibrarySymbol: lib, hook.TraceeSymbol: &slot})
	require.NoError(t, err)
	assert.Same(t, lib, l)
	assert.Same(t, &slot, s)
}

func TestPluginName(t *testing.T) {
	assert.Equal(t, "pid", pluginName("/usr/lib/sandbox/libpid.so", &hook.Library{}))
	assert.Equal(t, "custom", pluginName("/x/libpid.so", &hook.Library{Name: "custom"}))
}

func TestWritePlan(t *testing.T) {
	r := newRegistry()
	no := unix.SYS_GETPID
	require.NoError(t, r.Add("A", &hook.Library{Syscalls: hook.Table(map[int]hook.Syscall{
		no: {Before: noop, After: noop, Name: "getpid", Flags: hook.FlagSkipKernel},
	})}, nil))
	require.NoError(t, r.Add("B", &hook.Library{Syscalls: hook.Table(map[int]hook.Syscall{
		no: {After: noop, Name: "getpid", Flags: hook.FlagKeepPreviousReturn},
	})}, nil))

	var buf bytes.Buffer
	require.NoError(t, r.WritePlan(&buf))
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, fmt.Sprintf("%s (%d)", sysname.Name(no), no), lines[0])
	assert.Contains(t, lines[1], "A: getpid")
	assert.Contains(t, lines[1], "before")
	assert.Contains(t, lines[1], "[S]")
	assert.Equal(t, "    kernel skipped", lines[2])
	assert.Contains(t, lines[3], "B: getpid")
	assert.Contains(t, lines[3], "[K]")
	assert.Contains(t, lines[4], "A: getpid")
	assert.Contains(t, lines[4], "after")
}
