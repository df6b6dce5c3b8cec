// Package logging provides structured JSON logging for the proxy pipeline.
package logging

import (
	"log/slog"
	"os"
)

var Logger *slog.Logger

func init() {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})
	Logger = slog.New(handler)
}

// WithComponent returns a logger tagged with the given pipeline component.
func WithComponent(component string) *slog.Logger {
	return Logger.With("component", component)
}

// RequestReceived logs an inbound request before parsing.
func RequestReceived(l *slog.Logger, method, path string, size int) {
	l.Info("request received", "method", method, "path", path, "size_bytes", size)
}

// ParseError logs a body-parsing failure.
func ParseError(l *slog.Logger, err error) {
	l.Warn("parse error", "error", err)
}

// SignalComputed logs a successfully emitted signal.
func SignalComputed(l *slog.Logger, signalType string, value string, confidence float64) {
	l.Info("signal computed", "signal_type", signalType, "value", value, "confidence", confidence)
}

// SignalOmitted logs a signal that failed or fell below its confidence threshold.
func SignalOmitted(l *slog.Logger, signalType string, reason error) {
	l.Warn("signal omitted", "signal_type", signalType, "reason", reason)
}

// DecisionSelected logs the outcome of the decision engine.
func DecisionSelected(l *slog.Logger, decision string, confidence float64, matchedRules []string) {
	l.Info("decision selected", "decision", decision, "confidence", confidence, "matched_rules", matchedRules)
}

// UpstreamTarget logs the resolved upstream URL before forwarding.
func UpstreamTarget(l *slog.Logger, modelName, url string) {
	l.Info("upstream target", "model", modelName, "url", url)
}

// UpstreamStatus logs the upstream response status.
func UpstreamStatus(l *slog.Logger, status int, duration float64) {
	l.Info("upstream status", "status", status, "duration_seconds", duration)
}

// UpstreamError logs an upstream forwarding failure.
func UpstreamError(l *slog.Logger, err error) {
	l.Error("upstream error", "error", err)
}
