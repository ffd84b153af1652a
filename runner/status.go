package runner

// Status 是跟踪结果状态
type Status int

// 跟踪结果状态
const (
	StatusInvalid Status = iota // 0 未初始化
	// 正常
	StatusNormal // 1 正常退出且退出码为 0

	// 运行时错误
	StatusSignalled         // 2 被信号终止
	StatusNonzeroExitStatus // 3 非零退出状态

	// 沙箱错误
	StatusRunnerError // 4 启动、等待或插件加载失败
)

var (
	statusString = []string{
		"无效",
		"",
		"被信号终止",
		"非零退出状态",
		"运行器错误",
	}
)

func (t Status) String() string {
	i := int(t)
	if i >= 0 && i < len(statusString) {
		return statusString[i]
	}
	return statusString[0]
}

func (t Status) Error() string {
	return t.String()
}
