package logger

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

var log *logrus.Logger

// Fields is an alias so callers do not need to import logrus.
type Fields = logrus.Fields

func Init(level, format string) error {
	return InitWithOutput(level, format, os.Stdout)
}

func InitWithOutput(level, format string, out io.Writer) error {
	l := logrus.New()

	switch level {
	case "debug":
		l.SetLevel(logrus.DebugLevel)
	case "info", "":
		l.SetLevel(logrus.InfoLevel)
	case "warn":
		l.SetLevel(logrus.WarnLevel)
	case "error":
		l.SetLevel(logrus.ErrorLevel)
	default:
		return fmt.Errorf("unknown log level %q", level)
	}

	switch format {
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{})
	case "text", "":
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	default:
		return fmt.Errorf("unknown log format %q", format)
	}

	l.SetOutput(out)
	log = l

	return nil
}

// WithFields returns an entry carrying fields. Before Init it writes to a
// discarded logger so callers never need a nil check.
func WithFields(fields Fields) *logrus.Entry {
	if log == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		return discard.WithFields(fields)
	}
	return log.WithFields(fields)
}

func Debug(args ...interface{}) {
	if log != nil {
		log.Debug(args...)
	}
}

func Debugf(format string, args ...interface{}) {
	if log != nil {
		log.Debugf(format, args...)
	}
}

func Info(args ...interface{}) {
	if log != nil {
		log.Info(args...)
	}
}

func Infof(format string, args ...interface{}) {
	if log != nil {
		log.Infof(format, args...)
	}
}

func Warn(args ...interface{}) {
	if log != nil {
		log.Warn(args...)
	}
}

func Warnf(format string, args ...interface{}) {
	if log != nil {
		log.Warnf(format, args...)
	}
}

func Errorf(format string, args ...interface{}) {
	if log != nil {
		log.Errorf(format, args...)
	} else {
		fmt.Fprintf(os.Stderr, "ERROR: "+format+"\n", args...)
	}
}

func Fatalf(format string, args ...interface{}) {
	if log != nil {
		log.Fatalf(format, args...)
	} else {
		fmt.Fprintf(os.Stderr, "FATAL: "+format+"\n", args...)
		os.Exit(1)
	}
}
