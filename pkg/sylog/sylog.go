package sylog

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// messageLevel orders log severities; higher values are more verbose.
type messageLevel int

const (
	FatalLevel messageLevel = iota - 4
	ErrorLevel
	WarnLevel
	LogLevel
	InfoLevel
	VerboseLevel
	DebugLevel
)

func (l messageLevel) String() string {
	switch l {
	case FatalLevel:
		return "FATAL"
	case ErrorLevel:
		return "ERROR"
	case WarnLevel:
		return "WARNING"
	case LogLevel:
		return "LOG"
	case InfoLevel:
		return "INFO"
	case VerboseLevel:
		return "VERBOSE"
	case DebugLevel:
		return "DEBUG"
	default:
		return "UNKNOWN"
	}
}

var loggerLevel = InfoLevel

var logWriter = (io.Writer)(os.Stderr)

func init() {
	if l, err := strconv.Atoi(os.Getenv("CIRCE_MESSAGELEVEL")); err == nil {
		loggerLevel = messageLevel(l)
	}
}

func writef(msgLevel messageLevel, format string, a ...interface{}) {
	if loggerLevel < msgLevel {
		return
	}
	message := strings.TrimRight(fmt.Sprintf(format, a...), "\n")
	fmt.Fprintf(logWriter, "%-8s%s\n", msgLevel.String()+":", message)
}

// Fatalf logs a FATAL-level message then exits with status 255. Code
// imported as a library (rather than run as the circe CLI) should not call
// this.
func Fatalf(format string, a ...interface{}) {
	writef(FatalLevel, format, a...)
	os.Exit(255)
}

// Errorf logs an error that is also being returned to the caller.
func Errorf(format string, a ...interface{}) {
	writef(ErrorLevel, format, a...)
}

// Warningf logs a recoverable anomaly: a skipped entry, a best-effort
// fallback taken, a deprecated input accepted.
func Warningf(format string, a ...interface{}) {
	writef(WarnLevel, format, a...)
}

// Infof logs user-facing progress; shown by default.
func Infof(format string, a ...interface{}) {
	writef(InfoLevel, format, a...)
}

// Verbosef logs extra progress detail, shown only at --verbose and above.
func Verbosef(format string, a ...interface{}) {
	writef(VerboseLevel, format, a...)
}

// Debugf logs internal diagnostic detail, shown only at --debug.
func Debugf(format string, a ...interface{}) {
	writef(DebugLevel, format, a...)
}

// SetLevel sets the minimum level that will be written.
func SetLevel(l int) {
	loggerLevel = messageLevel(l)
}

// GetLevel returns the current minimum level as an int.
func GetLevel() int {
	return int(loggerLevel)
}

// GetEnvVar returns CIRCE_MESSAGELEVEL=<level>, formatted for a child
// process to inherit the current level via its environment.
func GetEnvVar() string {
	return fmt.Sprintf("CIRCE_MESSAGELEVEL=%d", loggerLevel)
}

// Writer returns the destination for messages at or below LogLevel — code
// that hands its own logger to a third-party library (e.g.
// go-containerregistry's logs.Warn) should write through this so --quiet
// silences it uniformly. Returns io.Discard when the configured level is
// below LogLevel.
func Writer() io.Writer {
	if loggerLevel < LogLevel {
		return io.Discard
	}
	return logWriter
}

// SetWriter replaces the destination writer, returning the previous one so
// tests can capture and then restore output.
func SetWriter(w io.Writer) io.Writer {
	old := logWriter
	if w != nil {
		logWriter = w
	}
	return old
}
