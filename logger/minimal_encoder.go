package logger

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

// ANSI basics
const (
	colorReset = "\x1b[0m"
	colorBold  = "\x1b[1m"
)

// Single muted palette, easy on the eyes for a long-running server console.
const (
	colorFg       = "\x1b[38;5;223m" // soft cream
	colorTime     = "\x1b[38;5;108m" // muted cyan-green
	colorCompA    = "\x1b[38;5;208m" // warm orange
	colorCompB    = "\x1b[38;5;214m" // soft yellow
	colorID       = "\x1b[38;5;109m" // soft blue
	colorNumber   = "\x1b[38;5;142m" // muted green
	colorWarnFg   = "\x1b[38;5;214m"
	colorWarnBg   = "\x1b[48;5;58m"
	colorErrorFg  = "\x1b[38;5;167m"
	colorErrorBg  = "\x1b[48;5;88m"
	colorThrottle = "\x1b[38;5;175m" // muted purple for throttle notices
)

// colorComponent hashes a component name to a stable color so each
// subsystem groups visually in mixed output.
func colorComponent(name string) string {
	hash := 0
	for _, c := range name {
		hash += int(c)
	}
	if hash%2 == 0 {
		return colorCompA
	}
	return colorCompB
}

// bracketPattern matches bracketed contexts like [job:3] or [fetch_steps.py]
var bracketPattern = regexp.MustCompile(`\[([^\]]+)\]`)

// colorizeMessage applies context-aware colorization: job-id brackets in
// blue, stage brackets in orange, throttle notices in purple.
func colorizeMessage(msg string) string {
	base := colorFg
	if strings.Contains(strings.ToLower(msg), "throttle") {
		base = colorThrottle
	}

	result := strings.Builder{}
	lastIndex := 0

	matches := bracketPattern.FindAllStringSubmatchIndex(msg, -1)
	for _, match := range matches {
		textBefore := msg[lastIndex:match[0]]
		if textBefore != "" {
			result.WriteString(base)
			result.WriteString(textBefore)
			result.WriteString(colorReset)
		}

		content := msg[match[2]:match[3]]
		color := colorCompA
		if strings.HasPrefix(content, "job:") {
			color = colorID
		}

		result.WriteString(color)
		result.WriteString(msg[match[0]:match[1]])
		result.WriteString(colorReset)

		lastIndex = match[1]
	}

	remaining := msg[lastIndex:]
	if remaining != "" {
		result.WriteString(base)
		result.WriteString(remaining)
		result.WriteString(colorReset)
	}

	return result.String()
}

// minimalEncoder implements a calm, compact console encoder.
// Format: "13:04:35  f.server  Fetch job started  3 alice"
type minimalEncoder struct {
	zapcore.Encoder // Embed a base encoder for field serialization
	buf             *buffer.Buffer
}

func newMinimalEncoder() *minimalEncoder {
	// Base JSON encoder for field serialization (internal use only)
	baseEncoder := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())

	return &minimalEncoder{
		Encoder: baseEncoder,
		buf:     buffer.NewPool().Get(),
	}
}

func (enc *minimalEncoder) Clone() zapcore.Encoder {
	return &minimalEncoder{
		Encoder: enc.Encoder.Clone(),
		buf:     buffer.NewPool().Get(),
	}
}

func (enc *minimalEncoder) EncodeEntry(ent zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	final := buffer.NewPool().Get()

	final.AppendString(colorTime)
	final.AppendString(ent.Time.Format("15:04:05"))
	final.AppendString(colorReset)

	// Level: only show for WARN/ERROR with bold + background
	if ent.Level != zapcore.InfoLevel {
		final.AppendString("  ")
		final.AppendString(levelColorString(ent.Level))
	}

	// Component name (abbreviated) for visual grouping
	if ent.LoggerName != "" {
		final.AppendString("  ")
		final.AppendString(colorComponent(ent.LoggerName))
		final.AppendString(abbreviateName(ent.LoggerName))
		final.AppendString(colorReset)
	}

	final.AppendString("  ")
	final.AppendString(colorizeMessage(ent.Message))

	if len(fields) > 0 {
		final.AppendString("  ")
		final.AppendString(extractFieldValues(fields))
	}

	final.AppendString("\n")
	return final, nil
}

// levelColorString returns bold + colored + background for WARN/ERROR
func levelColorString(level zapcore.Level) string {
	switch level {
	case zapcore.WarnLevel:
		return colorBold + colorWarnBg + colorWarnFg + "WARN" + colorReset
	case zapcore.ErrorLevel:
		return colorBold + colorErrorBg + colorErrorFg + "ERROR" + colorReset
	case zapcore.DPanicLevel, zapcore.PanicLevel, zapcore.FatalLevel:
		return colorBold + colorErrorBg + colorErrorFg + level.CapitalString() + colorReset
	default:
		return ""
	}
}

// abbreviateName shortens component names: server -> server, fetch.runner -> f.runner
func abbreviateName(name string) string {
	parts := strings.Split(name, ".")
	if len(parts) > 1 {
		return string(parts[0][0]) + "." + strings.Join(parts[1:], ".")
	}
	return name
}

// getFieldValue extracts the value from a zap field, handling different field types
func getFieldValue(field zapcore.Field) string {
	if field.Type == zapcore.StringType {
		return field.String
	}

	if field.Type == zapcore.Int64Type || field.Type == zapcore.Int32Type ||
		field.Type == zapcore.Int16Type || field.Type == zapcore.Int8Type ||
		field.Type == zapcore.Uint64Type || field.Type == zapcore.Uint32Type ||
		field.Type == zapcore.Uint16Type || field.Type == zapcore.Uint8Type {
		return fmt.Sprintf("%d", field.Integer)
	}

	// zap packs float values into the Integer field as raw bits
	if field.Type == zapcore.Float64Type {
		return fmt.Sprintf("%v", math.Float64frombits(uint64(field.Integer)))
	}
	if field.Type == zapcore.Float32Type {
		return fmt.Sprintf("%v", math.Float32frombits(uint32(field.Integer)))
	}

	if field.Interface != nil {
		return fmt.Sprintf("%v", field.Interface)
	}

	return ""
}

// extractFieldValues pulls just the values from structured fields.
// Input: {"job_id": "3", "profile": "alice", "duration_ms": 120}
// Output: "3 alice 120ms" (with colored ids and numbers)
func extractFieldValues(fields []zapcore.Field) string {
	var values []string

	for _, field := range fields {
		switch field.Key {
		case FieldJobID, FieldProfile:
			val := getFieldValue(field)
			if val != "" {
				values = append(values, colorID+val+colorReset)
			}
		case FieldScript, FieldCSV, FieldStatus:
			val := getFieldValue(field)
			if val != "" {
				values = append(values, colorFg+val+colorReset)
			}
		case FieldProgress:
			val := getFieldValue(field)
			if val != "" {
				values = append(values, colorNumber+val+colorReset)
			}
		case FieldDurationMS:
			val := getFieldValue(field)
			if val != "" {
				values = append(values, colorNumber+val+colorReset+"ms")
			}
		case FieldError:
			val := getFieldValue(field)
			if val != "" {
				values = append(values, colorErrorFg+val+colorReset)
			}
		}
	}

	if len(values) == 0 {
		return ""
	}

	return strings.Join(values, " ")
}
