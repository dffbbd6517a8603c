package replace

import (
	"os/exec"
	"sync"
	"time"
)

// LookupFunction resolves a tool name to its path, reporting an error when the
// tool is not installed. exec.LookPath satisfies it.
type LookupFunction func(toolName string) (string, error)

type probeEntry struct {
	available bool
	checkedAt time.Time
}

// toolProbe answers "is this tool installed" with a TTL-bounded cache so
// repeated rewrites do not hit the filesystem on every command.
type toolProbe struct {
	mutex        sync.Mutex
	lookup       LookupFunction
	cacheEnabled bool
	cacheTTL     time.Duration
	entries      map[string]probeEntry
}

func newToolProbe(lookup LookupFunction, cacheEnabled bool, cacheTTL time.Duration) *toolProbe {
	if lookup == nil {
		lookup = exec.LookPath
	}
	return &toolProbe{
		lookup:       lookup,
		cacheEnabled: cacheEnabled,
		cacheTTL:     cacheTTL,
		entries:      map[string]probeEntry{},
	}
}

func (probe *toolProbe) isAvailable(toolName string) bool {
	if !probe.cacheEnabled {
		_, lookupError := probe.lookup(toolName)
		return lookupError == nil
	}

	probe.mutex.Lock()
	defer probe.mutex.Unlock()

	now := time.Now()
	if entry, cached := probe.entries[toolName]; cached && now.Sub(entry.checkedAt) < probe.cacheTTL {
		return entry.available
	}

	_, lookupError := probe.lookup(toolName)
	available := lookupError == nil
	probe.entries[toolName] = probeEntry{available: available, checkedAt: now}
	return available
}
