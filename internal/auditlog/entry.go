package auditlog

import (
	"encoding/json"
	"strings"
	"time"
)

const (
	entryTimestampLayoutConstant     = "2006-01-02T15:04:05.000Z07:00"
	entryFieldSeparatorConstant      = " "
	entryComponentPrefixConstant     = "["
	entryComponentSuffixConstant     = "]"
	entryCorrelationPrefixConstant   = "("
	entryCorrelationSuffixConstant   = ")"
	entryLineTerminatorConstant      = "\n"
	payloadRenderFailurePlaceholder  = `{"payload_error":"unserializable"}`
	estimatedEntryOverheadBytesCount = 48
)

// Level enumerates audit entry severities.
type Level string

// Supported audit levels.
const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// Entry is one append-only audit event.
type Entry struct {
	Timestamp     time.Time
	Level         Level
	Component     string
	CorrelationID string
	Message       string
	Payload       map[string]any
}

// renderLine renders the entry as a single durable log line: timestamp,
// level, optional component tag, optional correlation id, message, and any
// structured payload rendered inline as JSON.
func (entry Entry) renderLine() string {
	var lineBuilder strings.Builder

	lineBuilder.WriteString(entry.Timestamp.UTC().Format(entryTimestampLayoutConstant))
	lineBuilder.WriteString(entryFieldSeparatorConstant)
	lineBuilder.WriteString(string(entry.Level))

	if len(entry.Component) > 0 {
		lineBuilder.WriteString(entryFieldSeparatorConstant)
		lineBuilder.WriteString(entryComponentPrefixConstant)
		lineBuilder.WriteString(entry.Component)
		lineBuilder.WriteString(entryComponentSuffixConstant)
	}

	if len(entry.CorrelationID) > 0 {
		lineBuilder.WriteString(entryFieldSeparatorConstant)
		lineBuilder.WriteString(entryCorrelationPrefixConstant)
		lineBuilder.WriteString(entry.CorrelationID)
		lineBuilder.WriteString(entryCorrelationSuffixConstant)
	}

	lineBuilder.WriteString(entryFieldSeparatorConstant)
	lineBuilder.WriteString(entry.Message)

	if len(entry.Payload) > 0 {
		lineBuilder.WriteString(entryFieldSeparatorConstant)
		payloadBytes, marshalError := json.Marshal(entry.Payload)
		if marshalError != nil {
			lineBuilder.WriteString(payloadRenderFailurePlaceholder)
		} else {
			lineBuilder.Write(payloadBytes)
		}
	}

	lineBuilder.WriteString(entryLineTerminatorConstant)
	return lineBuilder.String()
}
