package logger

import (
	"fmt"
	"io"
	"os"
)

// only one central log for the entire application; there's no need for more.
var central *logger

// maximum number of entries retained by the central logger.
const maxCentral = 512

func init() {
	central = newLogger(maxCentral)
	central.out = os.Stderr
}

// SetLevel sets the minimum Level that reaches the log.
func SetLevel(level Level) {
	central.level = level
}

// SetCounters wires the emulator's instruction/program counters into the
// logger so that formatted lines carry tsc/dtsc/pc. Until this is called,
// those fields are zero.
func SetCounters(c Counters) {
	central.counters = c
}

// SetOutput redirects live log output. Pass nil to disable echoing
// entirely; entries are still retained for Write/Tail.
func SetOutput(out io.Writer) {
	central.out = out
}

// Trace logs firmware-visible register-level detail: individual bus
// accesses, byte-by-byte SPI clocking, GPIO edges.
func Trace(perm Permission, format string, args ...interface{}) {
	logAt(perm, LevelTrace, format, args...)
}

// Debug logs peripheral-level events: a DMA stream starting, an exception
// being taken, a command byte decoded by an external device.
func Debug(perm Permission, format string, args ...interface{}) {
	logAt(perm, LevelDebug, format, args...)
}

// Info logs coarse lifecycle events: configuration loaded, image flashed,
// emulation started or stopped.
func Info(perm Permission, format string, args ...interface{}) {
	logAt(perm, LevelInfo, format, args...)
}

// Warn logs a non-fatal, firmware-caused condition: unmapped access, bad
// SPI command, inconsistent DMA setup. Emulation continues.
func Warn(perm Permission, format string, args ...interface{}) {
	logAt(perm, LevelWarn, format, args...)
}

// Error logs a condition immediately preceding a fatal abort.
func Error(perm Permission, format string, args ...interface{}) {
	logAt(perm, LevelError, format, args...)
}

func logAt(perm Permission, level Level, format string, args ...interface{}) {
	if perm != Allow && !perm.AllowLogging() {
		return
	}
	central.log(level, fmt.Sprintf(format, args...))
}

// Clear discards all retained entries.
func Clear() {
	central.clear()
}

// Write dumps every retained entry to output.
func Write(output io.Writer) bool {
	return central.write(output)
}

// Tail writes the last number entries to output.
func Tail(output io.Writer, number int) {
	central.tail(output, number)
}
