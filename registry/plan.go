package registry

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/zqzqsb/hooksandbox/pkg/hook"
	"github.com/zqzqsb/hooksandbox/pkg/sysname"
)

// WritePlan 打印每个被插件处理的系统调用的执行计划：
// 入口处按加载顺序的 Before 钩子，内核是否执行，出口处按相反顺序的 After 钩子
//
//	getuid (102)
//	  uid: getuid       before [-]
//	    kernel
//	  uid: getuid       after  [-]
func (r *Registry) WritePlan(w io.Writer) error {
	for no := 0; no < hook.MaxSyscalls; no++ {
		var (
			steps []int
			skip  bool
		)
		for i := range r.chain {
			if s := r.Lookup(i, no); s != nil {
				steps = append(steps, i)
				skip = skip || s.Flags.Has(hook.FlagSkipKernel)
			}
		}
		if len(steps) == 0 {
			continue
		}

		if _, err := fmt.Fprintf(w, "%s (%d)\n", sysname.Name(no), no); err != nil {
			return err
		}
		depth := 1
		for _, i := range steps {
			s := r.Lookup(i, no)
			if s.Before != nil {
				if err := writeStep(w, depth, r.chain[i], s, "before"); err != nil {
					return err
				}
				depth++
			}
		}
		kernel := "kernel"
		if skip {
			kernel = "kernel skipped"
		}
		if _, err := fmt.Fprintf(w, "%s%s\n", indent(depth), kernel); err != nil {
			return err
		}
		for _, i := range slices.Backward(steps) {
			s := r.Lookup(i, no)
			if s.After != nil {
				depth = max(depth-1, 1)
				if err := writeStep(w, depth, r.chain[i], s, "after"); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func writeStep(w io.Writer, depth int, p *Plugin, s *hook.Syscall, phase string) error {
	name := s.Name
	if name == "" {
		name = "-"
	}
	_, err := fmt.Fprintf(w, "%s%s: %-12s %-6s [%v]\n", indent(depth), p.Name, name, phase, s.Flags)
	return err
}

func indent(depth int) string {
	return strings.Repeat("  ", depth)
}
