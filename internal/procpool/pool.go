// Package procpool bounds the number of concurrently executing child
// processes and provides a cooperative kill-all for shutdown.
package procpool

import (
	"errors"
	"os"
	"sync"
	"syscall"

	"go.uber.org/zap"
)

const (
	poolSizeInvalidMessageConstant      = "process pool size must be positive"
	poolLoggerMissingMessageConstant    = "process pool logger not configured"
	poolExhaustedMessageConstant        = "process pool at capacity"
	slotAdmittedLogMessageConstant      = "process slot admitted"
	slotReleasedLogMessageConstant      = "process slot released"
	poolKillAllLogMessageConstant       = "terminating tracked processes"
	processSignalFailedMessageConstant  = "failed to signal tracked process"
	logFieldSlotIdentifierConstant      = "slot_id"
	logFieldLiveProcessCountConstant    = "live_count"
	logFieldTrackedProcessCountConstant = "tracked_count"
	logFieldProcessIdentifierConstant   = "pid"
)

// ErrPoolSizeInvalid indicates the configured maximum concurrency was not positive.
var ErrPoolSizeInvalid = errors.New(poolSizeInvalidMessageConstant)

// ErrLoggerNotConfigured indicates the pool was constructed without a logger.
var ErrLoggerNotConfigured = errors.New(poolLoggerMissingMessageConstant)

// ErrPoolExhausted indicates admission was refused because the pool is at capacity.
var ErrPoolExhausted = errors.New(poolExhaustedMessageConstant)

// Pool tracks in-flight child processes and enforces a maximum concurrency.
// Admission is refused rather than queued once the maximum is reached, so
// backpressure is explicit and immediate.
type Pool struct {
	mutex              sync.Mutex
	maximumConcurrent  int
	trackedSlots       map[uint64]*Slot
	nextSlotIdentifier uint64
	logger             *zap.Logger
	shutdownOnce       sync.Once
}

// Slot is an admission ticket bound to at most one live child process. It is
// released exactly once even when exit and kill paths race.
type Slot struct {
	pool       *Pool
	identifier uint64
	process    *os.Process
	released   bool
}

// NewPool constructs a Pool with the provided maximum concurrency.
func NewPool(maximumConcurrent int, logger *zap.Logger) (*Pool, error) {
	if maximumConcurrent <= 0 {
		return nil, ErrPoolSizeInvalid
	}
	if logger == nil {
		return nil, ErrLoggerNotConfigured
	}

	return &Pool{
		maximumConcurrent: maximumConcurrent,
		trackedSlots:      make(map[uint64]*Slot),
		logger:            logger,
	}, nil
}

// TryAdmit reserves a slot for one child process. It returns ErrPoolExhausted
// without blocking when the pool is at capacity.
func (pool *Pool) TryAdmit() (*Slot, error) {
	pool.mutex.Lock()
	defer pool.mutex.Unlock()

	if len(pool.trackedSlots) >= pool.maximumConcurrent {
		return nil, ErrPoolExhausted
	}

	pool.nextSlotIdentifier++
	admittedSlot := &Slot{pool: pool, identifier: pool.nextSlotIdentifier}
	pool.trackedSlots[admittedSlot.identifier] = admittedSlot

	pool.logger.Debug(slotAdmittedLogMessageConstant,
		zap.Uint64(logFieldSlotIdentifierConstant, admittedSlot.identifier),
		zap.Int(logFieldLiveProcessCountConstant, len(pool.trackedSlots)),
	)

	return admittedSlot, nil
}

// Bind attaches the spawned child process to the slot so pool-wide shutdown
// can signal it.
func (slot *Slot) Bind(childProcess *os.Process) {
	if slot == nil {
		return
	}

	slot.pool.mutex.Lock()
	defer slot.pool.mutex.Unlock()

	if slot.released {
		return
	}
	slot.process = childProcess
}

// Release returns the slot to the pool. Releasing an already released slot is
// a no-op because process-exit and timeout-kill paths may race.
func (slot *Slot) Release() {
	if slot == nil {
		return
	}

	slot.pool.mutex.Lock()
	defer slot.pool.mutex.Unlock()

	if slot.released {
		return
	}
	slot.released = true
	delete(slot.pool.trackedSlots, slot.identifier)

	slot.pool.logger.Debug(slotReleasedLogMessageConstant,
		zap.Uint64(logFieldSlotIdentifierConstant, slot.identifier),
		zap.Int(logFieldLiveProcessCountConstant, len(slot.pool.trackedSlots)),
	)
}

// KillAll sends a graceful termination signal to every tracked process and
// clears the tracked set. It does not wait for exit confirmation: it is
// invoked during process-wide shutdown where bounded delay is not acceptable.
func (pool *Pool) KillAll() {
	pool.mutex.Lock()
	defer pool.mutex.Unlock()

	pool.logger.Warn(poolKillAllLogMessageConstant,
		zap.Int(logFieldTrackedProcessCountConstant, len(pool.trackedSlots)),
	)

	for slotIdentifier, trackedSlot := range pool.trackedSlots {
		if trackedSlot.process != nil {
			if signalError := trackedSlot.process.Signal(syscall.SIGTERM); signalError != nil {
				pool.logger.Debug(processSignalFailedMessageConstant,
					zap.Int(logFieldProcessIdentifierConstant, trackedSlot.process.Pid),
					zap.Error(signalError),
				)
			}
		}
		trackedSlot.released = true
		delete(pool.trackedSlots, slotIdentifier)
	}
}

// Shutdown performs KillAll exactly once. The hosting application calls it
// from its own top-level signal handler.
func (pool *Pool) Shutdown() {
	pool.shutdownOnce.Do(pool.KillAll)
}

// LiveCount reports the number of slots currently admitted.
func (pool *Pool) LiveCount() int {
	pool.mutex.Lock()
	defer pool.mutex.Unlock()
	return len(pool.trackedSlots)
}

// Capacity reports the configured maximum concurrency.
func (pool *Pool) Capacity() int {
	return pool.maximumConcurrent
}
