// Package main 提供了 sandbox 命令
//
// sandbox 以 ptrace 跟踪一个程序，在它的每次系统调用前后执行插件链：
//
//	sandbox -L ./plugins -l pid -l io -- ls -l
//	sandbox -t -L ./plugins -l pid -l uid
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	unix "golang.org/x/sys/unix"

	"github.com/zqzqsb/hooksandbox/options"
	"github.com/zqzqsb/hooksandbox/pkg/logging"
	"github.com/zqzqsb/hooksandbox/registry"
	"github.com/zqzqsb/hooksandbox/runner"
	"github.com/zqzqsb/hooksandbox/runner/ptrace"
)

func main() {
	opts := &options.Options{}
	exitCode := 0

	rootCmd := &cobra.Command{
		Use:   "sandbox [flags] [--attach pid | <tracee> [args...]]",
		Short: "Run a program with plugin hooks on every system call",
		Long: `sandbox traces a program with ptrace and runs the loaded plugins
before and after each of its system calls. Plugins are Go plugins
(-buildmode=plugin) named libNAME.so, looked up in the -L directories.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Command = args
			if opts.ConfigFile != "" {
				if err := opts.ApplyFile(opts.ConfigFile, cmd.Flags()); err != nil {
					return err
				}
			}
			if err := opts.Validate(); err != nil {
				return err
			}
			code, err := run(cmd.Context(), opts, cmd.OutOrStdout())
			exitCode = code
			return err
		},
	}
	// 第一个非选项参数之后的参数都属于被跟踪程序
	rootCmd.Flags().SetInterspersed(false)
	opts.AddFlags(rootCmd.Flags())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, unix.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	os.Exit(exitCode)
}

// run 加载插件并跟踪程序，返回命令的退出码
func run(ctx context.Context, o *options.Options, out io.Writer) (int, error) {
	cfg := logging.DefaultConfig()
	cfg.Level = o.LogLevel()
	log := logging.New(cfg)

	reg := registry.New(log)
	defer reg.UnloadAll()

	if err := o.ResolveLibraries(reg, log); err != nil {
		return 1, err
	}
	log.Info().Int("count", reg.Len()).Strs("plugins", reg.Plugins()).Msg("plugin chain ready")
	if reg.Len() == 0 {
		log.Warn().Msg("no plugin loaded, system calls are traced but not changed")
	}

	if o.Plan {
		return 0, reg.WritePlan(out)
	}

	r := &ptrace.Runner{
		Args:           o.Command,
		Env:            os.Environ(),
		Stdin:          os.Stdin,
		Stdout:         os.Stdout,
		Stderr:         os.Stderr,
		Attach:         o.Attach,
		RLimits:        o.RLimits.RLimits(),
		Registry:       reg,
		FollowChildren: o.FollowChildren,
		Log:            log,
	}
	result := r.Run(ctx)
	log.Info().Stringer("result", result).Msg("tracee finished")
	if result.Status == runner.StatusRunnerError {
		return 1, errors.New(result.Error)
	}
	return result.ExitCode(), nil
}
