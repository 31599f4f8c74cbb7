package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"pkhunter/config"
)

// Logger wraps the logrus logger and the optional log file.
type Logger struct {
	*logrus.Logger
	logFile *os.File
}

// New 初始化日志
// Output goes to stderr, and additionally to cfg.File when set.
func New(cfg config.LogConfig, verbose bool) (*Logger, error) {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	if verbose {
		level = logrus.DebugLevel
	}
	l.SetLevel(level)

	out := &Logger{Logger: l}
	if cfg.File == "" {
		l.SetOutput(os.Stderr)
		return out, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	l.SetOutput(io.MultiWriter(os.Stderr, f))
	out.logFile = f
	return out, nil
}

// Close 关闭日志文件
func (l *Logger) Close() error {
	if l.logFile != nil {
		return l.logFile.Close()
	}
	return nil
}
