// Package logging builds the process zap logger and the HTTP access-log middleware.
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// InitLog builds a console logger writing to the given paths, stdout by default.
func InitLog(lvl zap.AtomicLevel, outputPaths ...string) *zap.Logger {
	if len(outputPaths) == 0 {
		outputPaths = []string{"stdout"}
	}
	return build(lvl, "console", outputPaths)
}

// InitJSONLog builds a JSON logger writing to the given paths.
func InitJSONLog(lvl zap.AtomicLevel, outputPaths ...string) *zap.Logger {
	if len(outputPaths) == 0 {
		outputPaths = []string{"stdout"}
	}
	return build(lvl, "json", outputPaths)
}

func build(lvl zap.AtomicLevel, encoding string, outputPaths []string) *zap.Logger {
	loggerCfg := &zap.Config{
		Level:    lvl,
		Encoding: encoding,
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "time",
			LevelKey:       "severity",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "message",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeTime:     zapcore.RFC3339TimeEncoder,
			EncodeLevel:    zapcore.LowercaseLevelEncoder,
			EncodeDuration: zapcore.MillisDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      outputPaths,
		ErrorOutputPaths: []string{"stderr"},
	}

	plain, err := loggerCfg.Build(zap.AddStacktrace(zap.DPanicLevel))
	if err != nil {
		panic(err)
	}
	return plain
}

// ParseLevel maps a level name ("debug", "info", "warn", "error") to an atomic level.
// "trace" is accepted as an alias for debug.
func ParseLevel(name string) (zap.AtomicLevel, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	switch name {
	case "":
		return zap.NewAtomicLevelAt(zapcore.InfoLevel), nil
	case "trace":
		return zap.NewAtomicLevelAt(zapcore.DebugLevel), nil
	}
	lvl, err := zap.ParseAtomicLevel(name)
	if err != nil {
		return zap.AtomicLevel{}, fmt.Errorf("invalid log level %q: %w", name, err)
	}
	return lvl, nil
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
