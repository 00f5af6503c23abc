package logger

import (
	"fmt"
	"io"
	"strings"
)

// Counters supplies the instruction counter and program counter values that
// are stamped onto each log line. The logger package has no notion of the
// machine it is logging for; the emulator core wires this up once at
// startup via SetCounters.
type Counters func() (tsc uint64, pc uint32)

// Entry represents a single line in the log, or a run of identical lines
// collapsed into one (repeated > 0).
type Entry struct {
	Level    Level
	Message  string
	Tsc      uint64
	Dtsc     uint64
	Pc       uint32
	repeated int
}

func (e *Entry) String() string {
	s := strings.Builder{}
	fmt.Fprintf(&s, "[tsc=%d dtsc=+%d pc=0x%08x] %s %s", e.Tsc, e.Dtsc, e.Pc, e.Level, e.Message)
	if e.repeated > 0 {
		fmt.Fprintf(&s, " (repeat x%d)", e.repeated+1)
	}
	s.WriteString("\n")
	return s.String()
}

// logger is the unexported engine behind the central, package-level log.
// Only one is ever created; see central.go.
type logger struct {
	maxEntries int
	entries    []Entry

	level    Level
	counters Counters
	lastTsc  uint64

	out   io.Writer
	style WriteStyle
}

func newLogger(maxEntries int) *logger {
	return &logger{
		maxEntries: maxEntries,
		entries:    make([]Entry, 0, maxEntries),
		level:      LevelWarn,
	}
}

func (l *logger) log(level Level, message string) {
	if level < l.level {
		return
	}

	var tsc uint64
	var pc uint32
	if l.counters != nil {
		tsc, pc = l.counters()
	}

	message = strings.ReplaceAll(message, "\n", " ")

	var prev *Entry
	if len(l.entries) > 0 {
		prev = &l.entries[len(l.entries)-1]
	}

	if prev != nil && prev.Level == level && prev.Message == message {
		prev.repeated++
		prev.Tsc = tsc
		prev.Dtsc = tsc - l.lastTsc
		prev.Pc = pc
	} else {
		l.entries = append(l.entries, Entry{
			Level:   level,
			Message: message,
			Tsc:     tsc,
			Dtsc:    tsc - l.lastTsc,
			Pc:      pc,
		})
		if len(l.entries) > l.maxEntries {
			l.entries = l.entries[len(l.entries)-l.maxEntries:]
		}
	}

	l.lastTsc = tsc

	if l.out != nil {
		e := &l.entries[len(l.entries)-1]
		line := []byte(e.String())
		if c, ok := l.out.(Colorizer); ok {
			_, _ = c.WriteLevel(level, line)
		} else {
			_, _ = l.out.Write(line)
		}
	}
}

func (l *logger) clear() {
	l.entries = l.entries[:0]
	l.lastTsc = 0
}

func (l *logger) write(output io.Writer) bool {
	if len(l.entries) == 0 {
		return false
	}
	for _, e := range l.entries {
		io.WriteString(output, e.String())
	}
	return true
}

func (l *logger) tail(output io.Writer, number int) {
	if number > len(l.entries) {
		number = len(l.entries)
	}
	for _, e := range l.entries[len(l.entries)-number:] {
		io.WriteString(output, e.String())
	}
}
