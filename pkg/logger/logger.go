package logger

import "sync"

// LoggerInstance defines the interface for logging backends.
type LoggerInstance interface {
	Log(message string, keyvals ...any)
	Debug(message string, keyvals ...any)
	Info(message string, keyvals ...any)
	Warn(message string, keyvals ...any)
	Error(message string, keyvals ...any)
	Fatal(message string, keyvals ...any)
}

// Level selects which LoggerInstance method a call is dispatched to.
type Level int

const (
	LevelPrint Level = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

// Logger holds multiple logging backends and dispatches log calls to all of them.
type Logger struct {
	instances []LoggerInstance
}

var (
	mu        sync.RWMutex
	singleton *Logger
)

// Init installs the process-wide logger with one or more backends. Calls made
// before Init are dropped.
func Init(instances ...LoggerInstance) {
	mu.Lock()
	defer mu.Unlock()
	singleton = &Logger{instances: instances}
}

func dispatch(level Level, message string, keyvals []any) {
	mu.RLock()
	l := singleton
	mu.RUnlock()
	if l == nil {
		return
	}

	for _, instance := range l.instances {
		switch level {
		case LevelDebug:
			instance.Debug(message, keyvals...)
		case LevelInfo:
			instance.Info(message, keyvals...)
		case LevelWarn:
			instance.Warn(message, keyvals...)
		case LevelError:
			instance.Error(message, keyvals...)
		case LevelFatal:
			instance.Fatal(message, keyvals...)
		default:
			instance.Log(message, keyvals...)
		}
	}
}

// Log writes a message without a level to all configured backends.
func Log(message string, keyvals ...any) { dispatch(LevelPrint, message, keyvals) }

// Debug writes a message at DEBUG level.
func Debug(message string, keyvals ...any) { dispatch(LevelDebug, message, keyvals) }

// Info writes a message at INFO level.
func Info(message string, keyvals ...any) { dispatch(LevelInfo, message, keyvals) }

// Warn writes a message at WARN level.
func Warn(message string, keyvals ...any) { dispatch(LevelWarn, message, keyvals) }

// Error writes a message at ERROR level.
func Error(message string, keyvals ...any) { dispatch(LevelError, message, keyvals) }

// Fatal writes a message at FATAL level. Backends are expected to terminate
// the process.
func Fatal(message string, keyvals ...any) { dispatch(LevelFatal, message, keyvals) }
