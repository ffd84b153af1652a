package ptrace

import (
	"context"

	"github.com/zqzqsb/hooksandbox/ptracer"
	"github.com/zqzqsb/hooksandbox/runner"
)

// Run 启动（或附加）被跟踪进程并跟踪到根进程结束
func (r *Runner) Run(c context.Context) runner.Result {
	var start ptracer.Runner
	if r.Attach != 0 {
		start = &attacher{pid: r.Attach, log: r.Log}
	} else {
		start = &launcher{Runner: r}
	}

	tracer := ptracer.Tracer{
		Runner:         start,
		Registry:       r.Registry,
		Convention:     ptracer.Native(),
		FollowChildren: r.FollowChildren,
		Log:            r.Log,
	}
	return tracer.Trace(c)
}
