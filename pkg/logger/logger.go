package logger

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/natefinch/lumberjack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogConfig controls where and how much the worker logs.
type LogConfig struct {
	Level      string
	Filename   string
	MaxSize    int
	MaxAge     int
	MaxBackups int
	Daily      bool
}

// Lg is the process logger installed by Init.
var Lg = zap.NewNop()

var levelColor = map[zapcore.Level]string{
	zapcore.DebugLevel:  "\x1b[35m",
	zapcore.InfoLevel:   "\x1b[36m",
	zapcore.WarnLevel:   "\x1b[33m",
	zapcore.ErrorLevel:  "\x1b[31m",
	zapcore.DPanicLevel: "\x1b[31m",
	zapcore.PanicLevel:  "\x1b[31m",
	zapcore.FatalLevel:  "\x1b[31m",
}

// New builds a logger writing JSON to a rotated file. In development mode
// entries are also teed to the terminal with a coloured console encoder,
// errors going to stderr.
func New(cfg *LogConfig, mode string) (*zap.Logger, error) {
	level := new(zapcore.Level)
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, err
	}

	fileCore := zapcore.NewCore(jsonEncoder(), fileWriter(cfg), level)
	if !isDevelopment(mode) {
		return zap.New(fileCore, zap.AddCaller()), nil
	}

	console := consoleEncoder()
	errorsOnly := zap.LevelEnablerFunc(func(l zapcore.Level) bool {
		return l >= zapcore.ErrorLevel && level.Enabled(l)
	})
	belowErrors := zap.LevelEnablerFunc(func(l zapcore.Level) bool {
		return l < zapcore.ErrorLevel && level.Enabled(l)
	})

	core := zapcore.NewTee(
		fileCore,
		zapcore.NewCore(console, zapcore.Lock(os.Stdout), belowErrors),
		zapcore.NewCore(console, zapcore.Lock(os.Stderr), errorsOnly),
	)
	return zap.New(core, zap.AddCaller()), nil
}

// Init builds the process logger and replaces zap's globals with it.
func Init(cfg *LogConfig, mode string) error {
	lg, err := New(cfg, mode)
	if err != nil {
		return err
	}
	Lg = lg
	zap.ReplaceGlobals(Lg)
	Lg.Info("init logger success", zap.String("mode", mode), zap.String("level", cfg.Level))
	return nil
}

// Sync flushes buffered entries.
func Sync() {
	_ = Lg.Sync()
}

// DailyFilename appends the current date to the base name, before the extension.
func DailyFilename(baseFilename string, now time.Time) string {
	ext := filepath.Ext(baseFilename)
	base := strings.TrimSuffix(baseFilename, ext)
	return base + "-" + now.Format("2006-01-02") + ext
}

func isDevelopment(mode string) bool {
	return mode == "dev" || mode == "development"
}

func jsonEncoder() zapcore.Encoder {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "time"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	encoderConfig.EncodeDuration = zapcore.MillisDurationEncoder
	encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
	return zapcore.NewJSONEncoder(encoderConfig)
}

func consoleEncoder() zapcore.Encoder {
	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.TimeKey = "time"
	encoderConfig.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString("\x1b[90m" + t.Format("2006-01-02 15:04:05.000") + "\x1b[0m")
	}
	encoderConfig.EncodeLevel = func(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
		color, ok := levelColor[l]
		if !ok {
			color = "\x1b[0m"
		}
		enc.AppendString(color + "[" + l.CapitalString() + "]\x1b[0m")
	}
	encoderConfig.EncodeCaller = func(caller zapcore.EntryCaller, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString("\x1b[90m" + caller.TrimmedPath() + "\x1b[0m")
	}
	return zapcore.NewConsoleEncoder(encoderConfig)
}

func fileWriter(cfg *LogConfig) zapcore.WriteSyncer {
	filename := cfg.Filename
	if cfg.Daily {
		filename = DailyFilename(filename, time.Now())
	}
	return zapcore.AddSync(&lumberjack.Logger{
		Filename:   filename,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		LocalTime:  true,
	})
}
