package observability

import (
	"encoding/json"
	"log"
	"os"
	"time"
)

const serviceName = "interview-prep-api"

// Logger emits one JSON object per line to stdout, tagged with the service
// name so aggregated logs stay attributable.
type Logger struct {
	base *log.Logger
}

func NewLogger() *Logger {
	return &Logger{base: log.New(os.Stdout, "", 0)}
}

func (l *Logger) Info(message string, fields map[string]any) {
	l.emit("info", message, fields)
}

func (l *Logger) Error(message string, fields map[string]any) {
	l.emit("error", message, fields)
}

func (l *Logger) emit(level, message string, fields map[string]any) {
	line := map[string]any{
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"level":     level,
		"service":   serviceName,
		"message":   message,
	}
	for key, value := range fields {
		line[key] = value
	}

	encoded, err := json.Marshal(line)
	if err != nil {
		l.base.Println(`{"level":"error","service":"` + serviceName + `","message":"failed to encode log"}`)
		return
	}

	l.base.Println(string(encoded))
}
