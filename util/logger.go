package util

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

type PanicSafeLogger struct {
	f  *os.File
	mw io.Writer
}

var std *PanicSafeLogger

func NewPanicSafeLogger(f *os.File) *PanicSafeLogger {
	std = &PanicSafeLogger{
		f:  f,
		mw: io.MultiWriter(f, os.Stderr),
	}
	return std
}

func (l *PanicSafeLogger) Write(p []byte) (n int, err error) {
	return l.mw.Write(p)
}

func (l *PanicSafeLogger) Flush() error {
	return l.f.Sync()
}

func FlushLogger() error {
	if std == nil {
		return nil
	}
	return std.Flush()
}

// SetupLogging points the standard logrus logger at stderr and a timestamped
// file in the temp dir. It returns the log file path, or "" if the file could
// not be opened.
func SetupLogging(name string, level string) string {
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if lvl, err := logrus.ParseLevel(level); err == nil {
		logrus.SetLevel(lvl)
	} else if level != "" {
		logrus.Warnf("unknown log level %q; using %s", level, logrus.GetLevel())
	}

	ts := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
	ts = strings.ReplaceAll(ts, ":", "-")
	ts = strings.ReplaceAll(ts, ".", "-")
	logPath := filepath.Join(os.TempDir(), fmt.Sprintf("%s-%s.log", name, ts))
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		logrus.Warnf("could not open log file '%s' for writing", logPath)
		return ""
	}

	logrus.SetOutput(NewPanicSafeLogger(logFile))
	logrus.Infof("logging to '%s'", logPath)
	return logPath
}

// Component returns a logger entry tagged with a component name.
func Component(log *logrus.Entry, name string) *logrus.Entry {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return log.WithField("component", name)
}

func LogPanic(log *logrus.Entry, err any) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log.Errorf("paniced with %v\n%s", err, string(debug.Stack()))
	_ = FlushLogger()
}
