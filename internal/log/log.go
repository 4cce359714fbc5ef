package log

import (
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	formatter "github.com/antonfisher/nested-logrus-formatter"
	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"github.com/sirupsen/logrus"

	"github.com/high-horse/fingerprint-server/config"
)

var (
	logger *logrus.Logger
	once   sync.Once
)

type Fields = logrus.Fields

// NewLogger builds the process logger once from cfg. Later calls return the
// same instance.
func NewLogger(cfg config.LogConfig) *logrus.Logger {
	once.Do(func() {
		logger = build(cfg)
	})
	return logger
}

// Logger returns the process logger, building it from the global config if
// NewLogger has not run yet.
func Logger() *logrus.Logger {
	return NewLogger(config.Config.Log)
}

func build(cfg config.LogConfig) *logrus.Logger {
	l := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	l.SetFormatter(&formatter.Formatter{
		NoColors:        false,
		TimestampFormat: "02 Jan 06 - 15:04:05",
		HideKeys:        false,
		CallerFirst:     true,
		CustomCallerFormatter: func(f *runtime.Frame) string {
			s := strings.Split(f.Function, ".")
			funcName := s[len(s)-1]
			return fmt.Sprintf(" \x1b[%dm[%s:%d][%s()]", 34, path.Base(f.File), f.Line, funcName)
		},
	})

	writers := []io.Writer{os.Stderr}
	if cfg.Dir != "" {
		rl, err := rotatelogs.New(
			filepath.Join(cfg.Dir, "fingerprint-server-%Y%m%d.log"),
			rotatelogs.WithLinkName(filepath.Join(cfg.Dir, "fingerprint-server.log")),
			rotatelogs.WithMaxAge(time.Duration(cfg.MaxAgeHours)*time.Hour),
			rotatelogs.WithRotationTime(time.Duration(cfg.RotationTimeHours)*time.Hour),
		)
		if err != nil {
			l.WithError(err).Warn("file log sink disabled")
		} else {
			writers = append(writers, rl)
		}
	}

	l.SetOutput(io.MultiWriter(writers...))
	l.SetReportCaller(true)
	return l
}

func Debug(fields Fields, msg string) {
	Logger().WithFields(fields).Debug(msg)
}

func Info(fields Fields, msg string) {
	Logger().WithFields(fields).Info(msg)
}

func Warn(fields Fields, msg string) {
	Logger().WithFields(fields).Warn(msg)
}

func Error(fields Fields, msg string) {
	Logger().WithFields(fields).Error(msg)
}
