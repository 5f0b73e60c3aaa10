package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
)

// Default file names
const (
	DefaultDirectory = "./logs"
	InfoFileName     = "yt-offline.log"
	ErrorFileName    = "yt-offline.error.log"
)

// Options configures a Manager
type Options struct {
	// Directory holds the log files; empty means DefaultDirectory
	Directory string
	// Debug enables the debug logger
	Debug bool
}

// Manager manages application loggers and their underlying files.
type Manager struct {
	infoLogger  *log.Logger
	errorLogger *log.Logger
	debugLogger *log.Logger
	infoFile    *os.File
	errorFile   *os.File
}

var global *Manager

// Initialize configures the global logger manager.
func Initialize(opts Options) (*Manager, error) {
	manager, err := New(opts)
	if err != nil {
		return nil, err
	}
	global = manager
	return manager, nil
}

// New creates a new Manager writing to stdout/stderr and to append-mode files.
func New(opts Options) (*Manager, error) {
	dir := opts.Directory
	if dir == "" {
		dir = DefaultDirectory
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	infoPath := filepath.Join(dir, InfoFileName)
	errPath := filepath.Join(dir, ErrorFileName)

	infoHandle, err := os.OpenFile(infoPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open info log file: %w", err)
	}

	errorHandle, err := os.OpenFile(errPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		infoHandle.Close()
		return nil, fmt.Errorf("open error log file: %w", err)
	}

	infoWriter := io.MultiWriter(os.Stdout, infoHandle)
	errorWriter := io.MultiWriter(os.Stderr, errorHandle)

	var debugWriter io.Writer = io.Discard
	if opts.Debug {
		debugWriter = infoWriter
	}

	return &Manager{
		infoLogger:  log.New(infoWriter, "[INFO] ", log.LstdFlags|log.Lmicroseconds),
		errorLogger: log.New(errorWriter, "[ERROR] ", log.LstdFlags|log.Lmicroseconds),
		debugLogger: log.New(debugWriter, "[DEBUG] ", log.LstdFlags|log.Lmicroseconds),
		infoFile:    infoHandle,
		errorFile:   errorHandle,
	}, nil
}

// NewWriter creates a Manager that sends every level to w. Nothing is closed.
func NewWriter(w io.Writer, debug bool) *Manager {
	var debugWriter io.Writer = io.Discard
	if debug {
		debugWriter = w
	}
	return &Manager{
		infoLogger:  log.New(w, "[INFO] ", 0),
		errorLogger: log.New(w, "[ERROR] ", 0),
		debugLogger: log.New(debugWriter, "[DEBUG] ", 0),
	}
}

// Discard returns a Manager that drops everything.
func Discard() *Manager {
	return NewWriter(io.Discard, false)
}

// Default returns the global manager, or one built on log.Default when none is initialized.
func Default() *Manager {
	if global != nil {
		return global
	}
	return &Manager{
		infoLogger:  log.Default(),
		errorLogger: log.Default(),
		debugLogger: log.New(io.Discard, "", 0),
	}
}

// Info returns the info logger.
func (m *Manager) Info() *log.Logger {
	return m.infoLogger
}

// Error returns the error logger.
func (m *Manager) Error() *log.Logger {
	return m.errorLogger
}

// Debug returns the debug logger; it discards unless debug output is enabled.
func (m *Manager) Debug() *log.Logger {
	return m.debugLogger
}

// Close releases file handles.
func (m *Manager) Close() error {
	var firstErr error
	if m.infoFile != nil {
		if err := m.infoFile.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if m.errorFile != nil {
		if err := m.errorFile.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Close releases the global logger manager if initialized.
func Close() error {
	if global == nil {
		return nil
	}
	err := global.Close()
	global = nil
	return err
}

// Info returns the global info logger.
func Info() *log.Logger {
	return Default().Info()
}

// Error returns the global error logger.
func Error() *log.Logger {
	return Default().Error()
}

// Debug returns the global debug logger.
func Debug() *log.Logger {
	return Default().Debug()
}
