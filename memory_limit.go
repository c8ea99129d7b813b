// Copyright (c) 2019-2024 Snowflake Computing Inc. All rights reserved.

package gosnowflake

const (
	mb int64 = 1024 * 1024
	gb int64 = 1024 * mb
)

const (
	// defaultClientPrefetchThreads is the number of chunk download workers
	// used when CLIENT_PREFETCH_THREADS is absent.
	defaultClientPrefetchThreads = 4
	// defaultClientMemoryLimit is the default CLIENT_MEMORY_LIMIT in MB. A
	// configured value equal to this sentinel enables best effort sizing.
	defaultClientMemoryLimit = 1536
	// defaultClientResultChunkSize is the default CLIENT_RESULT_CHUNK_SIZE in MB.
	defaultClientResultChunkSize = 160

	// lowHostMemory is the host memory ceiling below which the arrow OOM
	// guard kicks in.
	lowHostMemory = gb
)

// initMemoryLimit computes the chunk buffering byte budget from the session
// parameter snapshot and the host memory ceiling. The result is never more
// than 80% of the ceiling and never negative.
func initMemoryLimit(params map[string]*string, hostMemoryCeiling int64) int64 {
	configured := effectiveIntParam(params, clientMemoryLimitKey, defaultClientMemoryLimit)
	memoryLimit := int64(configured) * mb

	maxMemoryToUse := hostMemoryCeiling * 8 / 10
	if configured == defaultClientMemoryLimit {
		// the limit was not overridden; use up to 80% of the host memory as
		// the best effort
		memoryLimit = intMax64(memoryLimit, maxMemoryToUse)
	}
	memoryLimit = intMin64(memoryLimit, maxMemoryToUse)
	logger.Debugf("set allowed memory usage to %v bytes", memoryLimit)
	return intMax64(memoryLimit, 0)
}

// adjustMemorySettings determines the prefetch thread count and memory limit
// for downloading this result's chunks. Read queries may opt into the
// statement's conservative budget via
// CLIENT_ENABLE_CONSERVATIVE_MEMORY_USAGE; a conservative budget is applied
// as given, without the 80% of ceiling clamp initMemoryLimit imposes. The
// arrow format additionally guards against allocator OOM on low memory hosts.
func (rss *ResultSetSerializable) adjustMemorySettings(statement SFStatement, hostMemoryCeiling int64) (prefetchThreads int, memoryLimit int64) {
	prefetchThreads = defaultClientPrefetchThreads
	if rss.StatementType.isSelect() &&
		effectiveBoolParam(rss.Parameters, clientEnableConservativeMemoryKey, false) {
		prefetchThreads = statement.ConservativePrefetchThreads()
		memoryLimit = statement.ConservativeMemoryLimit()
		logger.Debugf("conservative memory usage enabled. prefetchThreads: %v, memoryLimit: %v",
			prefetchThreads, memoryLimit)
	} else {
		prefetchThreads = effectiveIntParam(rss.Parameters, clientPrefetchThreadsKey, defaultClientPrefetchThreads)
		if prefetchThreads <= 0 {
			logger.Warnf("invalid value for %v: %v. It should be a positive integer. Defaulting to %v",
				clientPrefetchThreadsKey, prefetchThreads, defaultClientPrefetchThreads)
			prefetchThreads = defaultClientPrefetchThreads
		}
		memoryLimit = initMemoryLimit(rss.Parameters, hostMemoryCeiling)
	}

	maxChunkSize := int64(effectiveIntParam(rss.Parameters, clientResultChunkSizeKey, defaultClientResultChunkSize)) * mb
	if rss.QueryResultFormat == arrowFormat &&
		hostMemoryCeiling < lowHostMemory &&
		memoryLimit*2+maxChunkSize > hostMemoryCeiling {
		memoryLimit = hostMemoryCeiling/2 - maxChunkSize
		logger.Debugf("to avoid OOM for arrow buffer allocation, recomputed memoryLimit: %v from ceiling %v and maxChunkSize %v",
			memoryLimit, hostMemoryCeiling, maxChunkSize)
	}
	return prefetchThreads, intMax64(memoryLimit, 0)
}
