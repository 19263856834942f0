package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds a JSON production logger writing to stderr.
func NewLogger(level string) (*zap.Logger, error) {
	return build(level, "json", []string{"stderr"})
}

// NewFileLogger writes to stderr and appends to path.
func NewFileLogger(path, level string) (*zap.Logger, error) {
	return build(level, "json", []string{"stderr", path})
}

// NewConsoleLogger is the human readable variant used by -verbose runs.
func NewConsoleLogger(level string) (*zap.Logger, error) {
	return build(level, "console", []string{"stderr"})
}

func build(level, encoding string, outputs []string) (*zap.Logger, error) {
	config := zap.NewProductionConfig()

	// Parse level
	l, err := zapcore.ParseLevel(level)
	if err != nil {
		l = zapcore.InfoLevel
	}
	config.Level = zap.NewAtomicLevelAt(l)
	config.Encoding = encoding
	config.OutputPaths = outputs
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return config.Build()
}
