package logger

import (
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"xinicimail/backend/internal/config"
)

// 日志轮转参数
const (
	MaxSizeMB  = 100
	MaxBackups = 3
	MaxAgeDays = 28
)

// New 根据配置创建日志记录器。
//
// 开发模式使用控制台编码并在 Error 级别附带堆栈，否则输出 JSON；
// 配置了 File 时同时写入文件与标准输出，文件由 lumberjack 轮转。
func New(cfg config.LogConfig) (*zap.Logger, error) {
	var out io.Writer = os.Stdout
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
			return nil, err
		}
		out = io.MultiWriter(&lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    MaxSizeMB,
			MaxBackups: MaxBackups,
			MaxAge:     MaxAgeDays,
			Compress:   true,
		}, os.Stdout)
	}
	return newWithWriter(cfg, zapcore.AddSync(out)), nil
}

func newWithWriter(cfg config.LogConfig, ws zapcore.WriteSyncer) *zap.Logger {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var encoder zapcore.Encoder
	if cfg.Development {
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	core := zapcore.NewCore(encoder, ws, level)
	if cfg.Development {
		return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	}
	return zap.New(core, zap.AddCaller())
}

// NewDevelopmentLogger 创建开发环境日志记录器，命令行客户端使用。
func NewDevelopmentLogger() *zap.Logger {
	return newWithWriter(config.LogConfig{Level: "debug", Development: true}, zapcore.AddSync(os.Stderr))
}
