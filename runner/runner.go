// Package runner 定义了被跟踪程序的运行接口与结果
package runner

import (
	"context"
)

// Runner 启动（或附加）被跟踪程序并跟踪到其结束
type Runner interface {
	Run(context.Context) Result
}
