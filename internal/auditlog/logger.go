package auditlog

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	destinationPathRequiredMessageConstant = "audit log destination path must be provided"
	diagnosticsLoggerMissingMessage        = "audit log diagnostics logger not configured"
	flushWriteFailedLogMessageConstant     = "audit flush failed"
	periodicFlushFailedLogMessageConstant  = "periodic audit flush failed"
	recordAfterCloseLogMessageConstant     = "audit entry dropped after close"
	logFieldDestinationPathConstant        = "destination"
	logFieldEntryMessageConstant           = "entry_message"
	destinationFileModeConstant            = 0o644
	destinationDirectoryModeConstant       = 0o755
	defaultFlushThresholdBytesConstant     = 8 * 1024
	defaultFlushIntervalConstant           = 5 * time.Second
	defaultMaximumFileSizeBytesConstant    = 1024 * 1024
	defaultRetentionCountConstant          = 5
)

// ErrDestinationPathRequired indicates the logger was configured without a destination file.
var ErrDestinationPathRequired = errors.New(destinationPathRequiredMessageConstant)

// ErrDiagnosticsLoggerNotConfigured indicates the logger was constructed without a diagnostics logger.
var ErrDiagnosticsLoggerNotConfigured = errors.New(diagnosticsLoggerMissingMessage)

// Config describes audit logger thresholds and the durable destination.
type Config struct {
	DestinationPath      string
	FlushThresholdBytes  int
	FlushInterval        time.Duration
	MaximumFileSizeBytes int64
	RetentionCount       int
}

func (configuration Config) withDefaults() Config {
	if configuration.FlushThresholdBytes <= 0 {
		configuration.FlushThresholdBytes = defaultFlushThresholdBytesConstant
	}
	if configuration.FlushInterval <= 0 {
		configuration.FlushInterval = defaultFlushIntervalConstant
	}
	if configuration.MaximumFileSizeBytes <= 0 {
		configuration.MaximumFileSizeBytes = defaultMaximumFileSizeBytesConstant
	}
	if configuration.RetentionCount <= 0 {
		configuration.RetentionCount = defaultRetentionCountConstant
	}
	return configuration
}

// Logger buffers structured audit entries and flushes them in bulk to an
// append-only destination file with size-based rotation.
type Logger struct {
	mutex         sync.Mutex
	configuration Config
	bufferedLines []string
	bufferedBytes int
	closed        bool
	closeOnce     sync.Once
	stopTicker    chan struct{}
	tickerStopped sync.WaitGroup
	diagnostics   *zap.Logger
}

// NewLogger constructs a Logger and starts its periodic flush timer.
func NewLogger(configuration Config, diagnostics *zap.Logger) (*Logger, error) {
	if len(strings.TrimSpace(configuration.DestinationPath)) == 0 {
		return nil, ErrDestinationPathRequired
	}
	if diagnostics == nil {
		return nil, ErrDiagnosticsLoggerNotConfigured
	}

	destinationDirectory := filepath.Dir(configuration.DestinationPath)
	if directoryError := os.MkdirAll(destinationDirectory, destinationDirectoryModeConstant); directoryError != nil {
		return nil, directoryError
	}

	logger := &Logger{
		configuration: configuration.withDefaults(),
		stopTicker:    make(chan struct{}),
		diagnostics:   diagnostics,
	}

	logger.tickerStopped.Add(1)
	go logger.runPeriodicFlush()

	return logger, nil
}

// Record appends a structured entry to the in-memory buffer. Error-level
// entries flush immediately; other levels flush once the estimated buffered
// byte size crosses the configured threshold.
func (logger *Logger) Record(level Level, message string, payload map[string]any, component string) {
	logger.RecordEntry(Entry{
		Level:     level,
		Message:   message,
		Payload:   payload,
		Component: component,
	})
}

// RecordEntry appends a fully specified entry, stamping the timestamp when unset.
func (logger *Logger) RecordEntry(entry Entry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	logger.mutex.Lock()
	defer logger.mutex.Unlock()

	if logger.closed {
		logger.diagnostics.Warn(recordAfterCloseLogMessageConstant,
			zap.String(logFieldEntryMessageConstant, entry.Message),
		)
		return
	}

	renderedLine := entry.renderLine()
	logger.bufferedLines = append(logger.bufferedLines, renderedLine)
	logger.bufferedBytes += len(renderedLine) + estimatedEntryOverheadBytesCount

	if entry.Level == LevelError || logger.bufferedBytes >= logger.configuration.FlushThresholdBytes {
		if flushError := logger.flushLocked(); flushError != nil {
			logger.diagnostics.Error(flushWriteFailedLogMessageConstant,
				zap.String(logFieldDestinationPathConstant, logger.configuration.DestinationPath),
				zap.Error(flushError),
			)
		}
	}
}

// Flush writes all buffered entries to the destination file, rotating first
// when the destination exceeds its configured maximum size.
func (logger *Logger) Flush() error {
	logger.mutex.Lock()
	defer logger.mutex.Unlock()
	return logger.flushLocked()
}

func (logger *Logger) flushLocked() error {
	if len(logger.bufferedLines) == 0 {
		return nil
	}

	if rotationError := rotateDestinationIfNeeded(logger.configuration); rotationError != nil {
		return rotationError
	}

	destinationFile, openError := os.OpenFile(
		logger.configuration.DestinationPath,
		os.O_APPEND|os.O_CREATE|os.O_WRONLY,
		destinationFileModeConstant,
	)
	if openError != nil {
		return openError
	}
	defer destinationFile.Close()

	flushPayload := strings.Join(logger.bufferedLines, "")
	if _, writeError := destinationFile.WriteString(flushPayload); writeError != nil {
		return writeError
	}

	logger.bufferedLines = logger.bufferedLines[:0]
	logger.bufferedBytes = 0
	return nil
}

// Close performs one final synchronous flush and cancels the periodic timer.
// It is safe to call multiple times.
func (logger *Logger) Close() error {
	var closeError error
	logger.closeOnce.Do(func() {
		close(logger.stopTicker)
		logger.tickerStopped.Wait()

		logger.mutex.Lock()
		defer logger.mutex.Unlock()
		closeError = logger.flushLocked()
		logger.closed = true
	})
	return closeError
}

// BufferedEntryCount reports the number of entries awaiting flush.
func (logger *Logger) BufferedEntryCount() int {
	logger.mutex.Lock()
	defer logger.mutex.Unlock()
	return len(logger.bufferedLines)
}

func (logger *Logger) runPeriodicFlush() {
	defer logger.tickerStopped.Done()

	flushTicker := time.NewTicker(logger.configuration.FlushInterval)
	defer flushTicker.Stop()

	for {
		select {
		case <-flushTicker.C:
			if flushError := logger.Flush(); flushError != nil {
				logger.diagnostics.Error(periodicFlushFailedLogMessageConstant,
					zap.String(logFieldDestinationPathConstant, logger.configuration.DestinationPath),
					zap.Error(flushError),
				)
			}
		case <-logger.stopTicker:
			return
		}
	}
}
