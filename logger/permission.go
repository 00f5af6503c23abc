package logger

// Permission implementations indicate whether the caller making a log
// request is allowed to create new log entries. Useful for gating
// high-frequency sources (register trace) behind a runtime toggle.
type Permission interface {
	AllowLogging() bool
}

type allow struct{}

func (allow) AllowLogging() bool {
	return true
}

// Allow is a Permission that always admits the log request.
var Allow Permission = allow{}
