package runner

import (
	"fmt"
	"time"
)

// Result 是一次跟踪的结果，只反映根进程
type Result struct {
	Status            // 结果状态
	ExitStatus int    // 退出码（被信号终止时为信号编号）
	Error      string // 运行器错误的详细信息

	Time   time.Duration // 根进程的用户 CPU 时间
	Memory Size          // 根进程的最大常驻内存

	// 跟踪器的度量指标
	SetUpTime   time.Duration // 从开始跟踪到第一次系统调用停止
	RunningTime time.Duration // 从第一次系统调用停止到结束
}

// ExitCode 将结果转换为命令行的退出码
// 被信号终止时按 shell 约定返回 128+信号
func (r Result) ExitCode() int {
	switch r.Status {
	case StatusNormal, StatusNonzeroExitStatus:
		return r.ExitStatus
	case StatusSignalled:
		return 128 + r.ExitStatus
	default:
		return 1
	}
}

func (r Result) String() string {
	switch r.Status {
	case StatusNormal:
		return fmt.Sprintf("Result[%v %v][%v %v]", r.Time, r.Memory, r.SetUpTime, r.RunningTime)

	case StatusSignalled:
		return fmt.Sprintf("Result[Signalled(%d)][%v %v][%v %v]", r.ExitStatus, r.Time, r.Memory, r.SetUpTime, r.RunningTime)

	case StatusRunnerError:
		return fmt.Sprintf("Result[RunnerFailed(%s)][%v %v][%v %v]", r.Error, r.Time, r.Memory, r.SetUpTime, r.RunningTime)

	default:
		return fmt.Sprintf("Result[%v(%s %d)][%v %v][%v %v]", r.Status, r.Error, r.ExitStatus, r.Time, r.Memory, r.SetUpTime, r.RunningTime)
	}
}
