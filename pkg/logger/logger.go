package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/power-warden/powa/pkg/config"
	"github.com/power-warden/powa/pkg/goid"
)

const timeLayout = "2006-01-02 15:04:05.000 -07:00"

var (
	baseLogger        *zap.Logger
	loggerInitOnce    sync.Once
	loggerInitialized bool
)

// ParseLevel maps a configured level name onto zap. Unknown names fall back
// to info.
func ParseLevel(name string) zapcore.Level {
	switch strings.ToLower(name) {
	case "dbg", "debug":
		return zapcore.DebugLevel
	case "war", "warn", "warning":
		return zapcore.WarnLevel
	case "err", "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Init builds the process-wide logger writing to stdout and, when cfg.Path is
// set, to a rotated JSON file. Only the first call has an effect.
func Init(cfg config.ZapLogConfig) error {
	var err error
	loggerInitOnce.Do(func() {
		var l *zap.Logger
		l, err = New(cfg, os.Stdout)
		if err != nil {
			return
		}
		baseLogger = l
		loggerInitialized = true
	})
	return err
}

// New builds a logger without touching the process-wide one. console receives
// the console (or JSON, per cfg.Format) stream.
func New(cfg config.ZapLogConfig, console io.Writer) (*zap.Logger, error) {
	level := ParseLevel(cfg.Level)

	var consoleEncoder zapcore.Encoder
	if cfg.Format == "json" {
		consoleEncoder = zapcore.NewJSONEncoder(jsonEncoderConfig())
	} else {
		consoleEncoder = zapcore.NewConsoleEncoder(consoleEncoderConfig())
	}
	cores := []zapcore.Core{
		zapcore.NewCore(consoleEncoder, zapcore.AddSync(console), level),
	}

	if cfg.Path != "" {
		writer, err := newRotateWriter(cfg)
		if err != nil {
			return nil, err
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(jsonEncoderConfig()), zapcore.AddSync(writer), level))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)), nil
}

func newRotateWriter(cfg config.ZapLogConfig) (*rotatelogs.RotateLogs, error) {
	if err := os.MkdirAll(cfg.Path, 0755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}

	opts := []rotatelogs.Option{
		rotatelogs.WithRotationTime(24 * time.Hour),
	}
	if cfg.MaxSize > 0 {
		opts = append(opts, rotatelogs.WithRotationSize(int64(cfg.MaxSize)*1024*1024))
	}
	// rotatelogs refuses both limits at once; a backup count wins.
	switch {
	case cfg.MaxBackup > 0:
		opts = append(opts, rotatelogs.WithRotationCount(uint(cfg.MaxBackup)))
	case cfg.MaxAge > 0:
		opts = append(opts, rotatelogs.WithMaxAge(time.Duration(cfg.MaxAge)*24*time.Hour))
	}

	writer, err := rotatelogs.New(filepath.Join(cfg.Path, "powa-%Y%m%d.log"), opts...)
	if err != nil {
		return nil, fmt.Errorf("open rotating log: %w", err)
	}
	return writer, nil
}

func consoleEncoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.ConsoleSeparator = " "
	cfg.EncodeLevel = coloredLevelEncoder
	cfg.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(fmt.Sprintf("\033[34m%s\033[0m", t.Format(timeLayout)))
	}
	// two path elements: package dir and file
	cfg.EncodeCaller = func(c zapcore.EntryCaller, enc zapcore.PrimitiveArrayEncoder) {
		rel := filepath.Join(filepath.Base(filepath.Dir(c.File)), filepath.Base(c.File))
		enc.AppendString(fmt.Sprintf("%s:%d", rel, c.Line))
	}
	return cfg
}

func jsonEncoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "timestamp"
	cfg.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.Format(timeLayout))
	}
	cfg.EncodeLevel = zapcore.LowercaseLevelEncoder
	return cfg
}

func coloredLevelEncoder(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	var levelStr string
	switch level {
	case zapcore.DebugLevel:
		levelStr = "\033[36mDEBUG\033[0m"
	case zapcore.InfoLevel:
		levelStr = "\033[32mINFO \033[0m"
	case zapcore.WarnLevel:
		levelStr = "\033[33mWARN \033[0m"
	case zapcore.ErrorLevel:
		levelStr = "\033[31mERROR\033[0m"
	case zapcore.DPanicLevel, zapcore.PanicLevel, zapcore.FatalLevel:
		levelStr = "\033[35m" + level.CapitalString() + "\033[0m"
	default:
		levelStr = "UNK  "
	}
	enc.AppendString(levelStr)
}

// WithGoroutine tags l with the id of the calling goroutine.
func WithGoroutine(l *zap.Logger) *zap.Logger {
	return l.With(zap.Uint64("goid", goid.GetGID()))
}

func Sync() error {
	if !loggerInitialized {
		return nil
	}
	return baseLogger.Sync()
}

func GetLogger() *zap.Logger {
	if !loggerInitialized {
		panic("logger not initialized: call logger.Init() first")
	}
	return baseLogger
}
