package logger

import (
	"io"
	"os"
	"sort"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

var zapLevels = map[Level]zapcore.Level{
	DEBUG: zapcore.DebugLevel,
	INFO:  zapcore.InfoLevel,
	WARN:  zapcore.WarnLevel,
	ERROR: zapcore.ErrorLevel,
}

// Logger writes JSON lines through zap. Fields are passed as maps so call
// sites stay independent of zap.
type Logger struct {
	z     *zap.Logger
	level zap.AtomicLevel
}

var std *Logger

func init() {
	std = New(INFO, os.Stdout)
}

func New(level Level, out io.Writer) *Logger {
	atom := zap.NewAtomicLevelAt(zapLevels[level])

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "timestamp"
	encCfg.MessageKey = "message"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	encCfg.EncodeCaller = zapcore.ShortCallerEncoder

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encCfg),
		zapcore.Lock(zapcore.AddSync(out)),
		atom,
	)

	z := zap.New(core,
		zap.AddCaller(),
		zap.AddCallerSkip(2),
		zap.AddStacktrace(zapcore.FatalLevel),
	)

	return &Logger{z: z, level: atom}
}

func SetLevel(level Level) {
	std.level.SetLevel(zapLevels[level])
}

// Default returns the process-wide logger.
func Default() *Logger {
	return std
}

func (l *Logger) WithField(key string, value any) *Logger {
	return &Logger{
		z:     l.z.With(zap.Any(key, value)),
		level: l.level,
	}
}

func (l *Logger) log(level Level, msg string, fields map[string]any) {
	zl := zapLevels[level]
	if !l.level.Enabled(zl) {
		return
	}
	if ce := l.z.Check(zl, msg); ce != nil {
		ce.Write(toZapFields(fields)...)
	}
}

func (l *Logger) Debug(msg string, fields ...map[string]any) {
	l.log(DEBUG, msg, mergeFields(fields...))
}

func (l *Logger) Info(msg string, fields ...map[string]any) {
	l.log(INFO, msg, mergeFields(fields...))
}

func (l *Logger) Warn(msg string, fields ...map[string]any) {
	l.log(WARN, msg, mergeFields(fields...))
}

func (l *Logger) Error(msg string, fields ...map[string]any) {
	l.log(ERROR, msg, mergeFields(fields...))
}

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	return l.z.Sync()
}

func Debug(msg string, fields ...map[string]any) {
	std.log(DEBUG, msg, mergeFields(fields...))
}

func Info(msg string, fields ...map[string]any) {
	std.log(INFO, msg, mergeFields(fields...))
}

func Warn(msg string, fields ...map[string]any) {
	std.log(WARN, msg, mergeFields(fields...))
}

func Error(msg string, fields ...map[string]any) {
	std.log(ERROR, msg, mergeFields(fields...))
}

func WithField(key string, value any) *Logger {
	return std.WithField(key, value)
}

func mergeFields(fields ...map[string]any) map[string]any {
	result := make(map[string]any)
	for _, f := range fields {
		for k, v := range f {
			result[k] = v
		}
	}
	return result
}

// toZapFields converts a field map into zap fields in key order so output is
// stable across runs.
func toZapFields(fields map[string]any) []zap.Field {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]zap.Field, 0, len(keys))
	for _, k := range keys {
		out = append(out, zap.Any(k, fields[k]))
	}
	return out
}

func ParseLevel(level string) Level {
	switch level {
	case "debug":
		return DEBUG
	case "info":
		return INFO
	case "warn":
		return WARN
	case "error":
		return ERROR
	default:
		return INFO
	}
}
