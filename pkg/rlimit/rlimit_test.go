package rlimit

import (
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	unix "golang.org/x/sys/unix"
)

func TestPrepareRLimit(t *testing.T) {
	r := RLimits{
		CPU:         1,
		FileSize:    1 << 20,
		OpenFile:    64,
		DisableCore: true,
	}
	got := r.PrepareRLimit()
	assert.Equal(t, []RLimit{
		{Res: unix.RLIMIT_CPU, Rlim: unix.Rlimit{Cur: 1, Max: 1}},
		{Res: unix.RLIMIT_FSIZE, Rlim: unix.Rlimit{Cur: 1 << 20, Max: 1 << 20}},
		{Res: unix.RLIMIT_NOFILE, Rlim: unix.Rlimit{Cur: 64, Max: 64}},
		{Res: unix.RLIMIT_CORE, Rlim: unix.Rlimit{}},
	}, got)
	assert.Equal(t, "CPU[1s]", got[0].String())
	assert.Equal(t, "RLimits{CPU[1s], FileSize[1048576B], OpenFile[64], Core[0B]}", r.String())

	assert.Empty(t, (&RLimits{}).PrepareRLimit())
	assert.Equal(t, "RLimits{}", (&RLimits{}).String())
}

func TestPrepareRLimitOrder(t *testing.T) {
	r := RLimits{Stack: 8 << 20, AddressSpace: 1 << 30, CPU: 2}
	var res []int
	for _, l := range r.PrepareRLimit() {
		res = append(res, l.Res)
	}
	assert.Equal(t, []int{unix.RLIMIT_CPU, unix.RLIMIT_AS, unix.RLIMIT_STACK}, res)
}

func TestUnknownResourceString(t *testing.T) {
	l := RLimit{Res: 99, Rlim: unix.Rlimit{Cur: 1, Max: 2}}
	assert.Equal(t, "Resource(99)[1:2]", l.String())
}

func TestApply(t *testing.T) {
	cmd := exec.Command("sleep", "10")
	if err := cmd.Start(); err != nil {
		t.Skip("sleep not available:", err)
	}
	defer func() {
		cmd.Process.Kill()
		cmd.Wait()
	}()

	limits := (&RLimits{OpenFile: 32, DisableCore: true}).PrepareRLimit()
	require.NoError(t, Apply(cmd.Process.Pid, limits))

	var got unix.Rlimit
	require.NoError(t, unix.Prlimit(cmd.Process.Pid, unix.RLIMIT_NOFILE, nil, &got))
	assert.Equal(t, unix.Rlimit{Cur: 32, Max: 32}, got)
}
