package titledb

import "fmt"

// DatabaseParseError reports a malformed reference database.
type DatabaseParseError struct {
	Path   string
	Line   int
	Reason string
}

func (e *DatabaseParseError) Error() string {
	where := e.Path
	if where == "" {
		where = "database"
	}
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", where, e.Line, e.Reason)
	}
	return fmt.Sprintf("%s: %s", where, e.Reason)
}
