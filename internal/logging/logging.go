package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/raysh454/moku-wst/internal/interfaces"
)

// StdoutLogger is a small, structured logger that prints JSON lines to
// stdout. It implements interfaces.Logger.
type StdoutLogger struct {
	component string
	fields    []interfaces.Field
}

// NewStdoutLogger creates a new StdoutLogger. component is included as a
// persistent field on every entry and is further customizable via With.
func NewStdoutLogger(component string) *StdoutLogger {
	return &StdoutLogger{component: component}
}

func (s *StdoutLogger) log(level string, msg string, fields ...interfaces.Field) {
	type outEntry struct {
		Level     string         `json:"level"`
		Msg       string         `json:"msg"`
		Component string         `json:"component,omitempty"`
		Time      string         `json:"time"`
		Fields    map[string]any `json:"fields,omitempty"`
	}
	m := make(map[string]any, len(s.fields)+len(fields))
	for _, f := range s.fields {
		m[f.Key] = f.Value
	}
	for _, f := range fields {
		m[f.Key] = f.Value
	}
	entry := outEntry{
		Level:     level,
		Msg:       msg,
		Component: s.component,
		Time:      time.Now().UTC().Format(time.RFC3339),
		Fields:    m,
	}
	enc, err := json.Marshal(entry)
	if err != nil {
		fmt.Fprintf(os.Stdout, "%s %s %v\n", level, msg, m)
		return
	}
	fmt.Fprintln(os.Stdout, string(enc))
}

func (s *StdoutLogger) Debug(msg string, fields ...interfaces.Field) { s.log("debug", msg, fields...) }
func (s *StdoutLogger) Info(msg string, fields ...interfaces.Field)  { s.log("info", msg, fields...) }
func (s *StdoutLogger) Warn(msg string, fields ...interfaces.Field)  { s.log("warn", msg, fields...) }
func (s *StdoutLogger) Error(msg string, fields ...interfaces.Field) { s.log("error", msg, fields...) }

// With returns a child logger carrying both the parent's persistent fields
// and the new ones. A "component" field, if present, replaces the
// component label instead of being stored as a regular field.
func (s *StdoutLogger) With(fields ...interfaces.Field) interfaces.Logger {
	child := &StdoutLogger{
		component: s.component,
		fields:    append(append([]interfaces.Field(nil), s.fields...)),
	}
	for _, f := range fields {
		if f.Key == "component" {
			if str, ok := f.Value.(string); ok {
				child.component = str
				continue
			}
		}
		child.fields = append(child.fields, f)
	}
	return child
}
