// 日志管理：logrus + lumberjack 滚动文件，供扫描引擎与账本共享
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"reconledger/internal/config"
)

// TimestampFormat 毫秒精度
const TimestampFormat = "2006-01-02 15:04:05.000"

// LoggerManager 持有 logrus 实例与当前生效的日志配置
type LoggerManager struct {
	logger *logrus.Logger
	config *config.LogConfig
}

// LoggerInstance 进程级实例；为 nil 时包级函数写入 discard
var LoggerInstance *LoggerManager

// InitLogger 构建并替换进程级实例
func InitLogger(cfg *config.LogConfig) (*LoggerManager, error) {
	lm, err := NewLogger(cfg)
	if err != nil {
		return nil, err
	}
	LoggerInstance = lm
	return lm, nil
}

// NewLogger 构建独立实例，测试中可避免污染进程级实例
func NewLogger(cfg *config.LogConfig) (*LoggerManager, error) {
	if cfg == nil {
		return nil, fmt.Errorf("logger: nil log config")
	}

	l := logrus.New()
	lvl, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		lvl = logrus.InfoLevel
		l.Warnf("logger: unknown level %q, falling back to info", cfg.Level)
	}
	l.SetLevel(lvl)

	f, err := newFormatter(cfg.Format)
	if err != nil {
		return nil, err
	}
	l.SetFormatter(f)

	w, err := newOutput(cfg)
	if err != nil {
		return nil, err
	}
	l.SetOutput(w)
	l.SetReportCaller(cfg.Caller)

	return &LoggerManager{logger: l, config: cfg}, nil
}

func newFormatter(format string) (logrus.Formatter, error) {
	switch strings.ToLower(format) {
	case "", "text":
		return &logrus.TextFormatter{TimestampFormat: TimestampFormat, FullTimestamp: true}, nil
	case "json":
		// 字段名与审计日志消费方约定一致
		return &logrus.JSONFormatter{
			TimestampFormat: TimestampFormat,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime: "timestamp",
				logrus.FieldKeyMsg:  "message",
				logrus.FieldKeyFunc: "function",
			},
		}, nil
	}
	return nil, fmt.Errorf("logger: format %q not supported (text|json)", format)
}

func newOutput(cfg *config.LogConfig) (io.Writer, error) {
	switch strings.ToLower(cfg.Output) {
	case "", "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	case "file":
	default:
		return nil, fmt.Errorf("logger: output %q not supported (stdout|stderr|file)", cfg.Output)
	}

	if cfg.FilePath == "" {
		return nil, fmt.Errorf("logger: file output needs log.file_path")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o755); err != nil {
		return nil, fmt.Errorf("logger: create log dir: %w", err)
	}
	var w io.Writer = &lumberjack.Logger{
		Filename:   cfg.FilePath,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	}
	// debug 时同时打到终端，便于观察扫描过程
	if strings.EqualFold(cfg.Level, "debug") {
		w = io.MultiWriter(os.Stdout, w)
	}
	return w, nil
}

// SetOutput 重定向输出，测试用
func (lm *LoggerManager) SetOutput(w io.Writer) {
	lm.logger.SetOutput(w)
}

// Level 当前生效级别
func (lm *LoggerManager) Level() string {
	return lm.logger.GetLevel().String()
}

// UpdateConfig 配置热加载入口，只重建发生变化的部分
func (lm *LoggerManager) UpdateConfig(next *config.LogConfig) error {
	if next == nil {
		return fmt.Errorf("logger: nil log config")
	}
	prev := lm.config

	if next.Level != prev.Level {
		lvl, err := logrus.ParseLevel(next.Level)
		if err != nil {
			return fmt.Errorf("logger: reload level: %w", err)
		}
		lm.logger.SetLevel(lvl)
		lm.logger.Infof("log level %s -> %s", prev.Level, next.Level)
	}
	if next.Format != prev.Format {
		f, err := newFormatter(next.Format)
		if err != nil {
			return err
		}
		lm.logger.SetFormatter(f)
	}
	if next.Output != prev.Output || next.FilePath != prev.FilePath {
		w, err := newOutput(next)
		if err != nil {
			return err
		}
		lm.logger.SetOutput(w)
	}
	lm.logger.SetReportCaller(next.Caller)

	lm.config = next
	return nil
}

var discard = func() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}()

func current() *logrus.Logger {
	if lm := LoggerInstance; lm != nil {
		return lm.logger
	}
	return discard
}

func Debugf(format string, args ...interface{}) { current().Debugf(format, args...) }

func Info(args ...interface{}) { current().Info(args...) }

func Infof(format string, args ...interface{}) { current().Infof(format, args...) }

func Warnf(format string, args ...interface{}) { current().Warnf(format, args...) }

func Errorf(format string, args ...interface{}) { current().Errorf(format, args...) }

// WithField 单字段简写
func WithField(key string, value interface{}) *logrus.Entry {
	return current().WithField(key, value)
}

func WithFields(fields logrus.Fields) *logrus.Entry {
	return current().WithFields(fields)
}
