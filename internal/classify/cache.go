package classify

import "sync"

const (
	evictionBatchDivisorConstant  = 5
	minimumCacheCapacityConstant  = 1
	minimumEvictionCountConstant  = 1
	initialOrderCapacityEstimator = 16
)

// planCache memoizes ShellPlans keyed by exact command text. Once the number
// of entries reaches capacity, the oldest-inserted fifth is evicted in a
// single pass so eviction cost is amortized.
type planCache struct {
	mutex          sync.Mutex
	entries        map[string]ShellPlan
	insertionOrder []string
	capacity       int
}

func newPlanCache(capacity int) *planCache {
	if capacity < minimumCacheCapacityConstant {
		capacity = minimumCacheCapacityConstant
	}
	return &planCache{
		entries:        make(map[string]ShellPlan),
		insertionOrder: make([]string, 0, initialOrderCapacityEstimator),
		capacity:       capacity,
	}
}

func (cache *planCache) lookup(commandText string) (ShellPlan, bool) {
	cache.mutex.Lock()
	defer cache.mutex.Unlock()

	cachedPlan, planCached := cache.entries[commandText]
	return cachedPlan, planCached
}

func (cache *planCache) store(commandText string, plan ShellPlan) {
	cache.mutex.Lock()
	defer cache.mutex.Unlock()

	if _, alreadyStored := cache.entries[commandText]; alreadyStored {
		return
	}

	if len(cache.entries) >= cache.capacity {
		cache.evictOldestBatchLocked()
	}

	cache.entries[commandText] = plan
	cache.insertionOrder = append(cache.insertionOrder, commandText)
}

func (cache *planCache) evictOldestBatchLocked() {
	evictionCount := cache.capacity / evictionBatchDivisorConstant
	if evictionCount < minimumEvictionCountConstant {
		evictionCount = minimumEvictionCountConstant
	}
	if evictionCount > len(cache.insertionOrder) {
		evictionCount = len(cache.insertionOrder)
	}

	for _, evictedKey := range cache.insertionOrder[:evictionCount] {
		delete(cache.entries, evictedKey)
	}
	cache.insertionOrder = append(cache.insertionOrder[:0], cache.insertionOrder[evictionCount:]...)
}

func (cache *planCache) size() int {
	cache.mutex.Lock()
	defer cache.mutex.Unlock()
	return len(cache.entries)
}
