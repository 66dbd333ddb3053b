package logger

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/higress-group/expertbot/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogLevel represents log severity levels
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l LogLevel) zapLevel() zapcore.Level {
	switch l {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// ParseLevel maps a textual level to LogLevel. Unknown values yield LevelInfo.
func ParseLevel(s string) LogLevel {
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

// Logger is the leveled logging handle shared by all components.
// A nil *Logger discards everything.
type Logger struct {
	sugar *zap.SugaredLogger
	level zap.AtomicLevel
}

// New builds a logger from configuration: a console core on stderr and,
// when a file is configured, a rotating JSON core.
func New(cfg config.LogConfig) (*Logger, error) {
	level := zap.NewAtomicLevelAt(ParseLevel(cfg.Level).zapLevel())
	cores := make([]zapcore.Core, 0, 2)

	if cfg.Console || cfg.File == "" {
		encCfg := zap.NewDevelopmentEncoderConfig()
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(os.Stderr), level))
	}
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return nil, err
		}
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
		encCfg := zap.NewProductionEncoderConfig()
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(rotator), level))
	}

	z := zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddCallerSkip(1))
	return &Logger{sugar: z.Sugar(), level: level}, nil
}

// NewWithCore wraps an existing zap core. Used by tests with zaptest/observer.
func NewWithCore(core zapcore.Core, lvl LogLevel) *Logger {
	level := zap.NewAtomicLevelAt(lvl.zapLevel())
	filtered := &levelCore{Core: core, level: level}
	return &Logger{sugar: zap.New(filtered).Sugar(), level: level}
}

// Nop returns a logger that discards all output.
func Nop() *Logger {
	return &Logger{sugar: zap.NewNop().Sugar(), level: zap.NewAtomicLevelAt(zapcore.ErrorLevel)}
}

func (l *Logger) s() *zap.SugaredLogger {
	if l == nil || l.sugar == nil {
		return nopSugar
	}
	return l.sugar
}

var nopSugar = zap.NewNop().Sugar()

// Debugf logs a debug message
func (l *Logger) Debugf(format string, args ...interface{}) { l.s().Debugf(format, args...) }

// Infof logs an info message
func (l *Logger) Infof(format string, args ...interface{}) { l.s().Infof(format, args...) }

// Warnf logs a warning message
func (l *Logger) Warnf(format string, args ...interface{}) { l.s().Warnf(format, args...) }

// Errorf logs an error message
func (l *Logger) Errorf(format string, args ...interface{}) { l.s().Errorf(format, args...) }

// With returns a child logger carrying the given key/value pairs.
func (l *Logger) With(kv ...interface{}) *Logger {
	if l == nil || l.sugar == nil {
		return l
	}
	return &Logger{sugar: l.sugar.With(kv...), level: l.level}
}

// Named returns a child logger for a component.
func (l *Logger) Named(name string) *Logger {
	if l == nil || l.sugar == nil {
		return l
	}
	return &Logger{sugar: l.sugar.Named(name), level: l.level}
}

// SetLevel sets the minimum log level
func (l *Logger) SetLevel(level LogLevel) {
	if l == nil || l.sugar == nil {
		return
	}
	l.level.SetLevel(level.zapLevel())
}

// Enabled reports whether messages at level are emitted.
func (l *Logger) Enabled(level LogLevel) bool {
	if l == nil || l.sugar == nil {
		return false
	}
	return l.level.Enabled(level.zapLevel())
}

// Desugar exposes the underlying zap logger for libraries that expect one.
func (l *Logger) Desugar() *zap.Logger {
	return l.s().Desugar()
}

// Sync flushes buffered output.
func (l *Logger) Sync() error {
	return l.s().Sync()
}

type levelCore struct {
	zapcore.Core
	level zap.AtomicLevel
}

func (c *levelCore) Enabled(lvl zapcore.Level) bool {
	return c.level.Enabled(lvl) && c.Core.Enabled(lvl)
}

func (c *levelCore) With(fields []zapcore.Field) zapcore.Core {
	return &levelCore{Core: c.Core.With(fields), level: c.level}
}

func (c *levelCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}
