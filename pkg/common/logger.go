package common

import (
	"fmt"
	"log"
	"os"
	"strings"
)

// Logger 日志接口
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}

// Level 日志级别
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// ParseLevel 解析日志级别, 未知值返回 Info
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

var minLevel = ParseLevel(os.Getenv("LOG_LEVEL"))

// SetLevel 设置全局日志级别
func SetLevel(l Level) {
	minLevel = l
}

// DefaultLogger 默认日志实现
type DefaultLogger struct {
	prefix string
	out    *log.Logger
	errOut *log.Logger
}

// NewLogger 创建日志器, INFO 以下输出到 stdout, WARN 以上输出到 stderr
func NewLogger(prefix string) Logger {
	return &DefaultLogger{
		prefix: prefix,
		out:    log.New(os.Stdout, "", log.LstdFlags),
		errOut: log.New(os.Stderr, "", log.LstdFlags),
	}
}

func (l *DefaultLogger) Debug(msg string, args ...interface{}) {
	l.log(LevelDebug, "DEBUG", msg, args...)
}

func (l *DefaultLogger) Info(msg string, args ...interface{}) {
	l.log(LevelInfo, "INFO", msg, args...)
}

func (l *DefaultLogger) Warn(msg string, args ...interface{}) {
	l.log(LevelWarn, "WARN", msg, args...)
}

func (l *DefaultLogger) Error(msg string, args ...interface{}) {
	l.log(LevelError, "ERROR", msg, args...)
}

func (l *DefaultLogger) Fatal(msg string, args ...interface{}) {
	l.log(LevelError, "FATAL", msg, args...)
	os.Exit(1)
}

func (l *DefaultLogger) log(level Level, tag string, msg string, args ...interface{}) {
	if level < minLevel {
		return
	}
	formatted := fmt.Sprintf(msg, args...)
	target := l.out
	if level >= LevelWarn {
		target = l.errOut
	}
	target.Printf("[%s] [%s] %s", l.prefix, tag, formatted)
}

// NopLogger 丢弃所有日志, 测试用
type NopLogger struct{}

func (NopLogger) Debug(string, ...interface{}) {}
func (NopLogger) Info(string, ...interface{})  {}
func (NopLogger) Warn(string, ...interface{})  {}
func (NopLogger) Error(string, ...interface{}) {}
func (NopLogger) Fatal(string, ...interface{}) {}
