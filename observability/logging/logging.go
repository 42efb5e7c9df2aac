// Package logging wires the daemon's structured JSON logging. Every line
// carries the service name and, when set, the deployment environment; the
// timestamp, severity and message keys are normalized for log collectors.
package logging

import (
	"log"
	"log/slog"
	"os"
	"strings"
)

// renameKeys maps slog's built-in attribute keys onto the collector schema.
func renameKeys(_ []string, attr slog.Attr) slog.Attr {
	switch attr.Key {
	case slog.TimeKey:
		attr.Key = "timestamp"
	case slog.LevelKey:
		return slog.String("severity", strings.ToUpper(attr.Value.String()))
	case slog.MessageKey:
		attr.Key = "message"
	}
	return attr
}

// Setup installs the JSON handler as the process-wide default and returns the
// root logger. The standard library logger is redirected through the same
// handler so nothing in the process writes unstructured lines.
func Setup(service, env string) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{ReplaceAttr: renameKeys})

	attrs := []slog.Attr{slog.String("service", strings.TrimSpace(service))}
	if env = strings.TrimSpace(env); env != "" {
		attrs = append(attrs, slog.String("env", env))
	}

	args := make([]any, len(attrs))
	for i, attr := range attrs {
		args[i] = attr
	}
	root := slog.New(handler).With(args...)
	slog.SetDefault(root)

	bridge := slog.NewLogLogger(handler.WithAttrs(attrs), slog.LevelInfo)
	bridge.SetFlags(0)
	log.SetOutput(bridge.Writer())
	log.SetFlags(0)
	log.SetPrefix("")

	return root
}
