// Package logger is the area/level file logger used by every catterm
// package. All functions are no-ops until Initialize has been called.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/antibyte/catterm/pkg/configuration"
)

// LogLevel orders log entries by severity.
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	FATAL
)

var logLevelNames = map[LogLevel]string{
	DEBUG: "DEBUG",
	INFO:  "INFO",
	WARN:  "WARN",
	ERROR: "ERROR",
	FATAL: "FATAL",
}

// LogArea groups log lines by subsystem; each area is switched on with
// log_<area> in the [Debug] section.
type LogArea string

const (
	AreaInterpreter LogArea = "interpreter"
	AreaSession     LogArea = "session"
	AreaWebSocket   LogArea = "websocket"
	AreaAuth        LogArea = "auth"
	AreaDatabase    LogArea = "database"
	AreaSecurity    LogArea = "security"
	AreaConfig      LogArea = "config"
	AreaGeneral     LogArea = "general"
)

var allAreas = []LogArea{
	AreaInterpreter, AreaSession, AreaWebSocket, AreaAuth,
	AreaDatabase, AreaSecurity, AreaConfig, AreaGeneral,
}

// Logger writes formatted entries to a rotating file.
type Logger struct {
	enabled     int32 // atomic bool
	level       int32 // atomic LogLevel
	areaEnabled map[LogArea]*int32

	mu            sync.Mutex
	out           io.Writer
	file          *os.File
	logPath       string
	maxSizeBytes  int64
	rotationCount int
	currentSize   int64
}

var (
	globalLogger *Logger
	initOnce     sync.Once
)

// Initialize sets up the global logger from the [Debug] section.
func Initialize() error {
	var err error
	initOnce.Do(func() {
		globalLogger, err = newLogger()
	})
	return err
}

// InitializeWriter installs a global logger writing to w instead of a file,
// with every area enabled at the given level. Used by tests and -verbose.
func InitializeWriter(w io.Writer, level LogLevel) {
	l := &Logger{areaEnabled: make(map[LogArea]*int32), out: w}
	for _, area := range allAreas {
		on := int32(1)
		l.areaEnabled[area] = &on
	}
	atomic.StoreInt32(&l.enabled, 1)
	atomic.StoreInt32(&l.level, int32(level))
	globalLogger = l
}

func newLogger() (*Logger, error) {
	l := &Logger{areaEnabled: make(map[LogArea]*int32)}
	for _, area := range allAreas {
		l.areaEnabled[area] = new(int32)
	}
	if err := l.loadConfig(); err != nil {
		return nil, err
	}
	if err := l.openLogFile(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Logger) loadConfig() error {
	enabled := configuration.GetBool("Debug", "enable_debug_logging", true)
	atomic.StoreInt32(&l.enabled, boolToInt32(enabled))

	level := parseLogLevel(configuration.GetString("Debug", "log_level", "INFO"))
	atomic.StoreInt32(&l.level, int32(level))

	l.mu.Lock()
	l.logPath = configuration.GetString("Debug", "log_file", "catterm.log")
	l.maxSizeBytes = int64(configuration.GetInt("Debug", "max_log_size_mb", 10)) * 1024 * 1024
	l.rotationCount = configuration.GetInt("Debug", "log_rotation_count", 3)
	l.mu.Unlock()

	for area, flag := range l.areaEnabled {
		on := configuration.GetBool("Debug", "log_"+string(area), false)
		atomic.StoreInt32(flag, boolToInt32(on))
	}
	return nil
}

func (l *Logger) openLogFile() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		l.file.Close()
	}
	if err := os.MkdirAll(filepath.Dir(l.logPath), 0755); err != nil {
		return err
	}
	file, err := os.OpenFile(l.logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	l.file = file
	l.out = file
	if stat, err := file.Stat(); err == nil {
		l.currentSize = stat.Size()
	}
	return nil
}

// rotateLocked shifts catterm.log -> .1 -> .2 ... and reopens. Caller holds mu.
func (l *Logger) rotateLocked() error {
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}

	for i := l.rotationCount - 1; i >= 1; i-- {
		from := fmt.Sprintf("%s.%d", l.logPath, i)
		to := fmt.Sprintf("%s.%d", l.logPath, i+1)
		if i == l.rotationCount-1 {
			os.Remove(to)
		}
		os.Rename(from, to)
	}
	os.Rename(l.logPath, l.logPath+".1")

	file, err := os.OpenFile(l.logPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	l.file = file
	l.out = file
	l.currentSize = 0
	return nil
}

func (l *Logger) isAreaEnabled(area LogArea) bool {
	if flag, ok := l.areaEnabled[area]; ok {
		return atomic.LoadInt32(flag) != 0
	}
	return false
}

func (l *Logger) shouldLog(level LogLevel, area LogArea) bool {
	if atomic.LoadInt32(&l.enabled) == 0 {
		return false
	}
	if atomic.LoadInt32(&l.level) > int32(level) {
		return false
	}
	return l.isAreaEnabled(area)
}

func (l *Logger) writeLog(level LogLevel, area LogArea, format string, args ...interface{}) {
	message := fmt.Sprintf(format, args...)

	_, file, line, _ := runtime.Caller(2)
	entry := fmt.Sprintf("[%s] %s [%s:%d] [%s] %s\n",
		time.Now().Format("2006-01-02 15:04:05.000"),
		logLevelNames[level],
		filepath.Base(file),
		line,
		strings.ToUpper(string(area)),
		message)

	l.mu.Lock()
	if l.out != nil {
		n, err := io.WriteString(l.out, entry)
		if err == nil && l.file != nil {
			l.currentSize += int64(n)
			if l.maxSizeBytes > 0 && l.currentSize > l.maxSizeBytes {
				l.rotateLocked()
			}
		}
	}
	l.mu.Unlock()

	if level >= WARN && l.file != nil {
		log.Printf("[%s] [%s] %s", logLevelNames[level], strings.ToUpper(string(area)), message)
	}
}

// Debug writes a DEBUG entry.
func Debug(area LogArea, format string, args ...interface{}) {
	if l := globalLogger; l != nil && l.shouldLog(DEBUG, area) {
		l.writeLog(DEBUG, area, format, args...)
	}
}

// Info writes an INFO entry.
func Info(area LogArea, format string, args ...interface{}) {
	if l := globalLogger; l != nil && l.shouldLog(INFO, area) {
		l.writeLog(INFO, area, format, args...)
	}
}

// Warn writes a WARN entry.
func Warn(area LogArea, format string, args ...interface{}) {
	if l := globalLogger; l != nil && l.shouldLog(WARN, area) {
		l.writeLog(WARN, area, format, args...)
	}
}

// Error writes an ERROR entry.
func Error(area LogArea, format string, args ...interface{}) {
	if l := globalLogger; l != nil && l.shouldLog(ERROR, area) {
		l.writeLog(ERROR, area, format, args...)
	}
}

// Fatal logs regardless of area settings and exits the process.
func Fatal(area LogArea, format string, args ...interface{}) {
	if l := globalLogger; l != nil {
		l.writeLog(FATAL, area, format, args...)
	}
	log.Fatalf("[FATAL] [%s] %s", strings.ToUpper(string(area)), fmt.Sprintf(format, args...))
}

// Shorthands for the busiest areas.

func SessionDebug(format string, args ...interface{}) { Debug(AreaSession, format, args...) }
func SessionInfo(format string, args ...interface{})  { Info(AreaSession, format, args...) }
func SessionWarn(format string, args ...interface{})  { Warn(AreaSession, format, args...) }

func AuthInfo(format string, args ...interface{})  { Info(AreaAuth, format, args...) }
func AuthWarn(format string, args ...interface{})  { Warn(AreaAuth, format, args...) }
func AuthError(format string, args ...interface{}) { Error(AreaAuth, format, args...) }

func SecurityWarn(format string, args ...interface{}) { Warn(AreaSecurity, format, args...) }

func DatabaseInfo(format string, args ...interface{})  { Info(AreaDatabase, format, args...) }
func DatabaseError(format string, args ...interface{}) { Error(AreaDatabase, format, args...) }

func ConfigInfo(format string, args ...interface{}) { Info(AreaConfig, format, args...) }

// ReloadConfig re-reads the [Debug] section.
func ReloadConfig() error {
	if globalLogger == nil {
		return fmt.Errorf("logger not initialized")
	}
	return globalLogger.loadConfig()
}

// EnableArea switches an area on at runtime.
func EnableArea(area LogArea) {
	if l := globalLogger; l != nil {
		if flag, ok := l.areaEnabled[area]; ok {
			atomic.StoreInt32(flag, 1)
		}
	}
}

// DisableArea switches an area off at runtime.
func DisableArea(area LogArea) {
	if l := globalLogger; l != nil {
		if flag, ok := l.areaEnabled[area]; ok {
			atomic.StoreInt32(flag, 0)
		}
	}
}

// GetAreaStatus reports whether an area is enabled.
func GetAreaStatus(area LogArea) bool {
	if l := globalLogger; l != nil {
		return l.isAreaEnabled(area)
	}
	return false
}

// ListAreas returns every known area.
func ListAreas() []LogArea {
	out := make([]LogArea, len(allAreas))
	copy(out, allAreas)
	return out
}

func boolToInt32(b bool) int32 {
	if b {
		return 1
	}
	return 0
}

func parseLogLevel(level string) LogLevel {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return DEBUG
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	case "FATAL":
		return FATAL
	default:
		return INFO
	}
}

// Close flushes and closes the log file.
func Close() {
	l := globalLogger
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		l.file.Sync()
		l.file.Close()
		l.file = nil
		l.out = nil
	}
}
