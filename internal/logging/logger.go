package logging

// Structured logging for rtegdb

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

// LogLevel represents the logging level
type LogLevel int

const (
	LogLevelSilent LogLevel = iota
	LogLevelError
	LogLevelInfo
	LogLevelVerbose
	LogLevelDebug
)

// Logger provides structured logging
type Logger struct {
	mu       sync.Mutex
	level    LogLevel
	format   string
	logEvery int
	counter  int
	file     *os.File
	fileLog  *log.Logger
	stdout   *log.Logger
	stderr   *log.Logger
}

// NewLogger creates a new text logger
func NewLogger(level LogLevel, logFile string) (*Logger, error) {
	return NewLoggerWithOptions(level, logFile, "text", 1)
}

// NewLoggerWithOptions creates a logger with an output format ("text" or
// "json") and console sampling: only every logEvery-th non-error message is
// echoed to the console. The log file always receives every message.
func NewLoggerWithOptions(level LogLevel, logFile, format string, logEvery int) (*Logger, error) {
	if format == "" {
		format = "text"
	}
	if logEvery < 1 {
		logEvery = 1
	}
	l := &Logger{
		level:    level,
		format:   format,
		logEvery: logEvery,
		stdout:   log.New(os.Stdout, "", 0),
		stderr:   log.New(os.Stderr, "", 0),
	}

	// Open log file if specified
	if logFile != "" {
		file, err := os.Create(logFile)
		if err != nil {
			return nil, fmt.Errorf("create log file: %w", err)
		}
		l.file = file
		flags := log.LstdFlags
		if format == "json" {
			flags = 0
		}
		l.fileLog = log.New(file, "", flags)
	}

	return l, nil
}

// Close closes the logger and flushes all data
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		l.fileLog = nil
		return err
	}
	return nil
}

// File returns the open log file, or nil.
func (l *Logger) File() io.Writer {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	return l.file
}

// Error logs an error message
func (l *Logger) Error(format string, v ...interface{}) {
	if l.level >= LogLevelError {
		l.write("ERROR", fmt.Sprintf(format, v...), true)
	}
}

// Info logs an info message
func (l *Logger) Info(format string, v ...interface{}) {
	if l.level >= LogLevelInfo {
		l.write("INFO", fmt.Sprintf(format, v...), false)
	}
}

// Verbose logs a verbose message
func (l *Logger) Verbose(format string, v ...interface{}) {
	if l.level >= LogLevelVerbose {
		l.write("VERBOSE", fmt.Sprintf(format, v...), false)
	}
}

// Debug logs a debug message
func (l *Logger) Debug(format string, v ...interface{}) {
	if l.level >= LogLevelDebug {
		l.write("DEBUG", fmt.Sprintf(format, v...), false)
	}
}

func levelLabel(isError bool) string {
	if isError {
		return "error"
	}
	return "info"
}

type jsonLine struct {
	Time    string `json:"time"`
	Level   string `json:"level"`
	Tag     string `json:"tag"`
	Message string `json:"message"`
}

func (l *Logger) render(tag, msg string, isError bool) string {
	if l.format != "json" {
		return tag + ": " + msg
	}
	data, err := json.Marshal(jsonLine{
		Time:    time.Now().Format(time.RFC3339Nano),
		Level:   levelLabel(isError),
		Tag:     strings.ToLower(tag),
		Message: msg,
	})
	if err != nil {
		return tag + ": " + msg
	}
	return string(data)
}

// write writes a message to the appropriate outputs
func (l *Logger) write(tag, msg string, isError bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	line := l.render(tag, msg, isError)

	// Always write to log file if available
	if l.fileLog != nil {
		l.fileLog.Println(line)
	}

	if isError {
		l.stderr.Println(line)
		return
	}

	l.counter++
	if l.counter%l.logEvery != 0 {
		return
	}
	// Only print to stdout if verbose or debug
	if l.level >= LogLevelVerbose {
		l.stdout.Println(line)
	}
}

// SetConsole redirects console output, for example to io.Discard while a
// full-screen UI owns the terminal. The log file is not affected.
func (l *Logger) SetConsole(stdout, stderr io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stdout = log.New(stdout, "", 0)
	l.stderr = log.New(stderr, "", 0)
}

// LogTransfer logs the outcome of one top-level operation against the target
func (l *Logger) LogTransfer(operation string, address uint32, bytes int, elapsed time.Duration, err error) {
	ms := float64(elapsed.Microseconds()) / 1000
	if err != nil {
		l.Info("FAILED %s at 0x%08X (%d bytes, %.3fms) - error: %v", operation, address, bytes, ms, err)
		return
	}
	var speed float64
	if ms > 0 {
		speed = float64(bytes) / ms
	}
	l.Verbose("SUCCESS %s at 0x%08X (%d bytes, %.3fms, %.1f kB/s)", operation, address, bytes, ms, speed)
}

// LogStartup logs startup information
func (l *Logger) LogStartup(command, host string, port int, address uint32, size int, configPath string) {
	l.Info("Starting rtegdb %s", command)
	l.Verbose("  Server: %s:%d", host, port)
	l.Verbose("  Structure address: 0x%08X", address)
	if size == 0 {
		l.Verbose("  Structure size: auto")
	} else {
		l.Verbose("  Structure size: %d bytes", size)
	}
	l.Verbose("  Config: %s", configPath)
}

// LogCommunication logs one RSP frame or ACK byte exchanged with the server
// (debug level only). Non-printable bytes are escaped.
func (l *Logger) LogCommunication(direction string, data []byte) {
	if l.level < LogLevelDebug {
		return
	}
	var b strings.Builder
	for _, c := range data {
		if c >= 0x20 && c < 0x7f {
			b.WriteByte(c)
		} else {
			fmt.Fprintf(&b, "\\x%02x", c)
		}
	}
	l.Debug("%s: %s", direction, b.String())
}

// MultiWriter creates an io.Writer that writes to multiple writers
type MultiWriter struct {
	writers []io.Writer
}

// NewMultiWriter creates a new multi-writer. Nil writers are skipped.
func NewMultiWriter(writers ...io.Writer) *MultiWriter {
	mw := &MultiWriter{}
	for _, w := range writers {
		if w != nil {
			mw.writers = append(mw.writers, w)
		}
	}
	return mw
}

// Write writes to all writers
func (m *MultiWriter) Write(p []byte) (n int, err error) {
	for _, w := range m.writers {
		n, err = w.Write(p)
		if err != nil {
			return n, err
		}
	}
	return len(p), nil
}

// ParseLevel maps a configuration level name to a LogLevel.
func ParseLevel(name string) (LogLevel, error) {
	switch strings.ToLower(name) {
	case "silent":
		return LogLevelSilent, nil
	case "error":
		return LogLevelError, nil
	case "", "info":
		return LogLevelInfo, nil
	case "verbose":
		return LogLevelVerbose, nil
	case "debug":
		return LogLevelDebug, nil
	}
	return LogLevelInfo, fmt.Errorf("unknown log level %q", name)
}
