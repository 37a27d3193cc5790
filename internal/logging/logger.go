package logging

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"iamdash/internal/domain"
)

// Re-export LogLevel for convenience
type LogLevel = domain.LogLevel

const (
	LogLevelDebug = domain.LogLevelDebug
	LogLevelInfo  = domain.LogLevelInfo
	LogLevelWarn  = domain.LogLevelWarn
	LogLevelError = domain.LogLevelError
)

// StructuredLogEntry represents a structured log entry
type StructuredLogEntry struct {
	Timestamp  time.Time              `json:"timestamp"`
	Level      LogLevel               `json:"level"`
	Message    string                 `json:"message"`
	Operation  string                 `json:"operation,omitempty"`
	Account    string                 `json:"account,omitempty"`
	Identity   string                 `json:"identity,omitempty"`
	Capability string                 `json:"capability,omitempty"`
	Role       string                 `json:"role,omitempty"`
	Error      string                 `json:"error,omitempty"`
	Context    map[string]interface{} `json:"context,omitempty"`
}

// StructuredLogger provides structured logging capabilities
type StructuredLogger struct {
	enabled  bool
	minLevel LogLevel
}

var structuredLogger = &StructuredLogger{
	enabled:  true,
	minLevel: LogLevelInfo,
}

// SetLogLevel sets the minimum log level
func SetLogLevel(level LogLevel) {
	structuredLogger.minLevel = level
}

func logLevelPriority(level LogLevel) int {
	switch level {
	case LogLevelDebug:
		return 0
	case LogLevelInfo:
		return 1
	case LogLevelWarn:
		return 2
	case LogLevelError:
		return 3
	default:
		return 1
	}
}

func logStructured(level LogLevel, message string, fields ...map[string]interface{}) {
	if logLevelPriority(level) < logLevelPriority(structuredLogger.minLevel) {
		return
	}

	if !structuredLogger.enabled {
		log.Printf("[%s] %s", level, message)
		return
	}

	entry := StructuredLogEntry{
		Timestamp: time.Now(),
		Level:     level,
		Message:   message,
	}

	if len(fields) > 0 {
		entry.Context = make(map[string]interface{})
		for _, field := range fields {
			for k, v := range field {
				switch k {
				case "operation":
					entry.Operation = fmt.Sprintf("%v", v)
				case "account":
					entry.Account = fmt.Sprintf("%v", v)
				case "identity":
					entry.Identity = fmt.Sprintf("%v", v)
				case "capability":
					entry.Capability = fmt.Sprintf("%v", v)
				case "role":
					entry.Role = fmt.Sprintf("%v", v)
				case "error":
					entry.Error = fmt.Sprintf("%v", v)
				default:
					entry.Context[k] = v
				}
			}
		}
		if len(entry.Context) == 0 {
			entry.Context = nil
		}
	}

	jsonBytes, err := json.Marshal(entry)
	if err != nil {
		log.Printf("[%s] %s", level, message)
		return
	}

	log.Println(string(jsonBytes))
}

// LogDebug logs a debug message
func LogDebug(message string, fields ...map[string]interface{}) {
	logStructured(LogLevelDebug, message, fields...)
}

// LogInfo logs an info message
func LogInfo(message string, fields ...map[string]interface{}) {
	logStructured(LogLevelInfo, message, fields...)
}

// LogWarn logs a warning message
func LogWarn(message string, fields ...map[string]interface{}) {
	logStructured(LogLevelWarn, message, fields...)
}

// LogError logs an error message
func LogError(message string, err error, fields ...map[string]interface{}) {
	errorFields := []map[string]interface{}{
		{"error": err.Error()},
	}
	errorFields = append(errorFields, fields...)
	logStructured(LogLevelError, message, errorFields...)
}

// LogOperationEnd logs the end of an operation
func LogOperationEnd(operation string, duration time.Duration, success bool, err error) {
	fields := []map[string]interface{}{
		{
			"operation":   operation,
			"duration_ms": duration.Milliseconds(),
			"success":     success,
		},
	}
	if err != nil {
		fields = append(fields, map[string]interface{}{"error": err.Error()})
	}
	if success {
		LogInfo(fmt.Sprintf("Completed operation: %s", operation), fields...)
	} else {
		LogError(fmt.Sprintf("Failed operation: %s", operation), err, fields...)
	}
}
