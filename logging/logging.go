// Package logging provides the registry's leveled console logger.
// Lines have the form: LEVEL TIMESTAMP [component] message key=value ...
package logging

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// Level represents log severity.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// Logger provides structured logging to stdout.
type Logger struct {
	mu        *sync.Mutex
	output    io.Writer
	minLevel  Level
	component string
	traceID   string
}

// levelPriority maps levels to numeric priority for filtering.
var levelPriority = map[Level]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

// ParseLevel converts a configuration string to a Level.
// Unknown values fall back to INFO.
func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR":
		return LevelError
	default:
		return LevelInfo
	}
}

// New creates a new Logger.
func New() *Logger {
	return &Logger{
		mu:       &sync.Mutex{},
		output:   os.Stdout,
		minLevel: LevelInfo,
	}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	l := New()
	l.output = io.Discard
	return l
}

// WithComponent returns a new logger with the given component name.
// The child shares the parent's writer and lock.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		mu:        l.mu,
		output:    l.output,
		minLevel:  l.minLevel,
		component: component,
		traceID:   l.traceID,
	}
}

// WithTraceID returns a new logger that tags every line with trace=<id>.
func (l *Logger) WithTraceID(traceID string) *Logger {
	return &Logger{
		mu:        l.mu,
		output:    l.output,
		minLevel:  l.minLevel,
		component: l.component,
		traceID:   traceID,
	}
}

// SetLevel sets the minimum log level.
func (l *Logger) SetLevel(level Level) {
	l.minLevel = level
}

// SetOutput sets the output writer (default: stdout).
func (l *Logger) SetOutput(w io.Writer) {
	l.output = w
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, fields ...map[string]interface{}) {
	l.log(LevelDebug, msg, fields...)
}

// Info logs an info message.
func (l *Logger) Info(msg string, fields ...map[string]interface{}) {
	l.log(LevelInfo, msg, fields...)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string, fields ...map[string]interface{}) {
	l.log(LevelWarn, msg, fields...)
}

// Error logs an error message.
func (l *Logger) Error(msg string, fields ...map[string]interface{}) {
	l.log(LevelError, msg, fields...)
}

// formatFields formats a map of fields as key=value pairs, sorted by key.
func formatFields(fields map[string]interface{}) string {
	if len(fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, fields[k]))
	}
	return " " + strings.Join(parts, " ")
}

func (l *Logger) log(level Level, msg string, fields ...map[string]interface{}) {
	if levelPriority[level] < levelPriority[l.minLevel] {
		return
	}

	timestamp := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")

	var fieldStr string
	if len(fields) > 0 && fields[0] != nil {
		fieldStr = formatFields(fields[0])
	}
	if l.traceID != "" {
		fieldStr += " trace=" + l.traceID
	}

	var line string
	if l.component != "" {
		line = fmt.Sprintf("%-5s %s [%s] %s%s\n", level, timestamp, l.component, msg, fieldStr)
	} else {
		line = fmt.Sprintf("%-5s %s %s%s\n", level, timestamp, msg, fieldStr)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.output.Write([]byte(line))
}

// --- Registry event logging methods ---

// Registered logs an accepted registration.
func (l *Logger) Registered(agentID, did string, critical bool) {
	l.Info("agent_registered", map[string]interface{}{
		"agent_id": agentID,
		"did":      did,
		"critical": critical,
	})
}

// RegistrationRejected logs a registration refused at validation or proof check.
func (l *Logger) RegistrationRejected(agentID, reason string) {
	fields := map[string]interface{}{
		"reason": reason,
	}
	if agentID != "" {
		fields["agent_id"] = agentID
	}
	l.Warn("registration_rejected", fields)
}

// Deregistered logs a removed agent.
func (l *Logger) Deregistered(agentID, reason string) {
	l.Info("agent_deregistered", map[string]interface{}{
		"agent_id": agentID,
		"reason":   reason,
	})
}

// EventDropped logs a notification that never left the process.
func (l *Logger) EventDropped(eventType, agentID, cause string) {
	l.Warn("event_dropped", map[string]interface{}{
		"type":     eventType,
		"agent_id": agentID,
		"cause":    cause,
	})
}

// EventPublishFailed logs a notification the bus refused.
func (l *Logger) EventPublishFailed(eventType, agentID string, err error) {
	l.Error("event_publish_failed", map[string]interface{}{
		"type":     eventType,
		"agent_id": agentID,
		"error":    err.Error(),
	})
}

// LookupServed logs a completed lookup.
func (l *Logger) LookupServed(results int, storeCalls int, duration time.Duration) {
	l.Debug("lookup_served", map[string]interface{}{
		"results":     results,
		"store_calls": storeCalls,
		"duration":    duration.String(),
	})
}

// Request logs a completed HTTP request.
func (l *Logger) Request(method, path string, status int, duration time.Duration) {
	fields := map[string]interface{}{
		"method":   method,
		"path":     path,
		"status":   status,
		"duration": duration.String(),
	}
	switch {
	case status >= 500:
		l.Error("request", fields)
	case status >= 400:
		l.Warn("request", fields)
	default:
		l.Info("request", fields)
	}
}
