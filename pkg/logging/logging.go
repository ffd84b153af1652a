// Package logging 构造沙箱使用的 zerolog 日志
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Config 日志配置
type Config struct {
	// Level 日志级别（debug, info, warn, error），无法识别时为 warn
	Level string
	// Pretty 使用带颜色的控制台格式
	Pretty bool
	// Output 日志输出，默认为标准错误，标准输出留给被跟踪程序
	Output io.Writer
}

// DefaultConfig 只输出警告和错误
func DefaultConfig() Config {
	return Config{
		Level:  "warn",
		Pretty: true,
		Output: os.Stderr,
	}
}

// New 按配置创建日志
func New(cfg Config) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.WarnLevel
	}

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: "15:04:05",
		}
	}

	return zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Logger()
}
