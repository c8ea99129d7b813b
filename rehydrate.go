// Copyright (c) 2019-2024 Snowflake Computing Inc. All rights reserved.

package gosnowflake

import (
	"encoding/json"

	"github.com/apache/arrow-go/v18/arrow/memory"
)

// Rehydrate rebuilds the process local decode state of a deserialized
// ResultSetSerializable from its portable fields and the current host: the
// output formatters, the memory budget, the parsed first chunk, the chunk
// downloader and the result set metadata. It must be called once before rows
// are read in a process that did not create the serializable.
//
// Rehydration is all or nothing: on error no decode state is attached and the
// serializable stays in its portable-only form.
func (rss *ResultSetSerializable) Rehydrate() error {
	formatters, err := newResultFormatters(rss.Parameters)
	if err != nil {
		return err
	}

	state := &resultDecodeState{
		formatters: formatters,
		// the memory budget reflects the consuming host, not the host that
		// ran the query. Prefetch threads stay as serialized.
		memoryLimit: initMemoryLimit(rss.Parameters, hostMemory()),
	}

	if rss.QueryResultFormat == arrowFormat {
		state.rootAllocator = memory.NewGoAllocator()
	} else if rss.FirstChunkStringData != "" {
		var rowSet [][]*string
		if err = json.Unmarshal([]byte(rss.FirstChunkStringData), &rowSet); err != nil {
			return &SnowflakeError{
				Number:      ErrFailedToDecodeFirstChunk,
				SQLState:    SQLStateInvalidData,
				QueryID:     rss.QueryID,
				Message:     errMsgFailedToDecodeFirstChunk,
				MessageArgs: []interface{}{err},
			}
		}
		state.firstChunkRowSet = rowSet
	}

	state.chunkDownloader = rss.newChunkDownloader(state)
	state.metaData = newResultSetMetaData(rss, formatters)

	rss.decodeState = state
	logger.WithField(string(SFQueryIDKey), rss.QueryID).
		Debugf("rehydrated result set serializable. chunks: %v, memoryLimit: %v",
			rss.ChunkFileCount, state.memoryLimit)
	return nil
}

// Rehydrated reports whether decode state is present, either from creation in
// this process or from a Rehydrate call.
func (rss *ResultSetSerializable) Rehydrated() bool {
	return rss.decodeState != nil
}
