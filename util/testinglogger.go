package util

import (
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
)

// NewTestingLogger routes log entries into tb.Log so they show up next to the failing test.
func NewTestingLogger(tb testing.TB) *logrus.Entry {
	var mu sync.Mutex
	cl := &CommitLogger{
		AutoCommit: true,
		Committer: func(p []byte) {
			tb.Log(string(p))
		},
	}

	l := logrus.New()
	l.SetLevel(logrus.DebugLevel)
	l.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	l.SetOutput(lockedWriter{mu: &mu, w: cl})
	return logrus.NewEntry(l)
}

type lockedWriter struct {
	mu *sync.Mutex
	w  *CommitLogger
}

func (w lockedWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.w.Write(p)
}
