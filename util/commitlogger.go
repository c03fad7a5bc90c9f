package util

// CommitLogger buffers writes and hands them to Committer one entry at a time.
type CommitLogger struct {
	Committer func(p []byte)
	// AutoCommit commits after every Write; logrus writes one entry per call.
	AutoCommit bool
	buf        []byte
}

func (l *CommitLogger) Write(p []byte) (n int, err error) {
	l.buf = append(l.buf, p...)
	if l.AutoCommit {
		l.Commit()
	}
	return len(p), nil
}

func (l *CommitLogger) Commit() {
	if l.Committer != nil {
		for len(l.buf) > 0 && l.buf[len(l.buf)-1] == '\n' {
			l.buf = l.buf[:len(l.buf)-1]
		}
		l.Committer(l.buf)
	}
	l.Reset()
}

func (l *CommitLogger) Reset() {
	l.buf = l.buf[:0]
}
