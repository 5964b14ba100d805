package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger provides component-tagged logging for browserd.
// All component loggers of a process share one rotating log file,
// <dir>/<process-id>-browserd.log.
//
// All log methods (Debugf, Infof, Warnf, Errorf) write unconditionally.
// There is currently no log level filtering.
type Logger struct {
	processID string
	component string
	logger    *log.Logger
	out       io.Writer
	mu        sync.Mutex
	logPath   string
}

// Options configures the shared log file.
type Options struct {
	Dir        string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

var (
	// Process ID stamped into the log file name
	processID     string
	processIDOnce sync.Once

	stateMu sync.Mutex
	options Options
	writer  *lumberjack.Logger
	logPath string
	initErr error
)

// DefaultOptions returns the options used when Configure was never called.
func DefaultOptions() Options {
	dir := filepath.Join(os.TempDir(), "browserd", "logs")
	if home, err := os.UserHomeDir(); err == nil {
		dir = filepath.Join(home, ".browserd", "logs")
	}
	return Options{
		Dir:        dir,
		MaxSizeMB:  50,
		MaxBackups: 5,
		MaxAgeDays: 14,
	}
}

func getProcessID() string {
	processIDOnce.Do(func() {
		processID = uuid.New().String()
	})
	return processID
}

// Configure (re)opens the shared log file with opts. Loggers created
// afterwards write to the new file.
func Configure(opts Options) error {
	stateMu.Lock()
	defer stateMu.Unlock()

	if writer != nil {
		_ = writer.Close()
		writer = nil
	}
	options = opts
	initErr = nil
	return openLocked()
}

// openLocked creates the log directory and the rotating writer.
// stateMu must be held.
func openLocked() error {
	if options.Dir == "" {
		options = DefaultOptions()
	}
	if err := os.MkdirAll(options.Dir, 0750); err != nil {
		initErr = fmt.Errorf("failed to create log directory: %w", err)
		return initErr
	}

	logPath = filepath.Join(options.Dir, fmt.Sprintf("%s-browserd.log", getProcessID()))
	writer = &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    options.MaxSizeMB,
		MaxBackups: options.MaxBackups,
		MaxAge:     options.MaxAgeDays,
		Compress:   options.Compress,
	}
	return nil
}

// NewLogger creates a new logger for a specific component.
//
// If the log directory cannot be created it returns a fallback logger that
// writes to stderr along with the error. Callers can check the error to
// detect fallback mode.
func NewLogger(component string) (*Logger, error) {
	stateMu.Lock()
	if writer == nil && initErr == nil {
		_ = openLocked()
	}
	w, path, err := writer, logPath, initErr
	stateMu.Unlock()

	if err != nil {
		return newFallbackLogger(component, err), err
	}

	return &Logger{
		processID: getProcessID(),
		component: component,
		logger:    log.New(w, "", 0), // timestamps are formatted per entry
		out:       w,
		logPath:   path,
	}, nil
}

// MustLogger is NewLogger without the error: fallback mode already reports
// itself on stderr.
func MustLogger(component string) *Logger {
	l, _ := NewLogger(component)
	return l
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{
		processID: getProcessID(),
		component: "nop",
		logger:    log.New(io.Discard, "", 0),
		out:       io.Discard,
	}
}

// newFallbackLogger creates a logger that writes to stderr when file logging fails
func newFallbackLogger(component string, err error) *Logger {
	logger := log.New(os.Stderr, "", 0)
	l := &Logger{
		processID: getProcessID(),
		component: component,
		logger:    logger,
		out:       os.Stderr,
	}
	l.Warnf("failed to initialize file logging: %v", err)
	l.Warnf("falling back to stderr logging")
	return l
}

// With returns a logger for a sub-component sharing the same output.
func (l *Logger) With(component string) *Logger {
	return &Logger{
		processID: l.processID,
		component: l.component + "." + component,
		logger:    l.logger,
		out:       l.out,
		logPath:   l.logPath,
	}
}

// formatLogEntry creates a structured log entry with timestamp, component, and level
func (l *Logger) formatLogEntry(level, message string) string {
	timestamp := time.Now().Format("2006-01-02 15:04:05.000")
	return fmt.Sprintf("[%s] [%s] [%s] %s", timestamp, l.component, level, message)
}

func (l *Logger) write(level, format string, v ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.logger.Println(l.formatLogEntry(level, fmt.Sprintf(format, v...)))
}

// Debugf logs a debug-level message
func (l *Logger) Debugf(format string, v ...interface{}) {
	l.write("DEBUG", format, v...)
}

// Infof logs an info-level message
func (l *Logger) Infof(format string, v ...interface{}) {
	l.write("INFO", format, v...)
}

// Warnf logs a warning-level message
func (l *Logger) Warnf(format string, v ...interface{}) {
	l.write("WARN", format, v...)
}

// Errorf logs an error-level message
func (l *Logger) Errorf(format string, v ...interface{}) {
	l.write("ERROR", format, v...)
}

// Writer returns the io.Writer this logger writes to
func (l *Logger) Writer() io.Writer {
	return l.out
}

// ProcessID returns the id shared by every logger of this process
func (l *Logger) ProcessID() string {
	return l.processID
}

// LogPath returns the path to the log file, empty in fallback or nop mode
func (l *Logger) LogPath() string {
	return l.logPath
}

// Shutdown flushes and closes the shared log file. Safe to call multiple times.
func Shutdown() error {
	stateMu.Lock()
	defer stateMu.Unlock()

	if writer == nil {
		return nil
	}
	err := writer.Close()
	writer = nil
	return err
}
