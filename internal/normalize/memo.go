package normalize

import "sync"

// memoTable associates raw command text with its normalized form. The table
// is read-mostly: staleness is impossible because inputs are immutable
// strings, so only insertion races need guarding. Capacity is bounded with
// oldest-inserted-first batch eviction.
type memoTable struct {
	mutex          sync.RWMutex
	entries        map[string]string
	insertionOrder []string
	capacity       int
}

func newMemoTable(capacity int) *memoTable {
	if capacity < minimumMemoTableCapacityConstant {
		capacity = minimumMemoTableCapacityConstant
	}
	return &memoTable{
		entries:  make(map[string]string),
		capacity: capacity,
	}
}

func (table *memoTable) lookup(rawText string) (string, bool) {
	table.mutex.RLock()
	defer table.mutex.RUnlock()

	memoizedText, textMemoized := table.entries[rawText]
	return memoizedText, textMemoized
}

func (table *memoTable) store(rawText string, normalizedText string) {
	table.mutex.Lock()
	defer table.mutex.Unlock()

	if _, alreadyStored := table.entries[rawText]; alreadyStored {
		return
	}

	if len(table.entries) >= table.capacity {
		evictionCount := table.capacity / memoEvictionBatchDivisorConstant
		if evictionCount < minimumMemoEvictionCountConstant {
			evictionCount = minimumMemoEvictionCountConstant
		}
		if evictionCount > len(table.insertionOrder) {
			evictionCount = len(table.insertionOrder)
		}
		for _, evictedKey := range table.insertionOrder[:evictionCount] {
			delete(table.entries, evictedKey)
		}
		table.insertionOrder = append(table.insertionOrder[:0], table.insertionOrder[evictionCount:]...)
	}

	table.entries[rawText] = normalizedText
	table.insertionOrder = append(table.insertionOrder, rawText)
}

func (table *memoTable) size() int {
	table.mutex.RLock()
	defer table.mutex.RUnlock()
	return len(table.entries)
}
