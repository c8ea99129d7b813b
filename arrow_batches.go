// Copyright (c) 2021-2024 Snowflake Computing Inc. All rights reserved.

package gosnowflake

import (
	"context"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
)

// ArrowBatch is a wrapper around one portion of an arrow format result: the
// first rowset or one chunk file. Records are fetched and decoded lazily on
// Fetch, so batches can be distributed across goroutines and each downloads
// only its own chunk.
type ArrowBatch struct {
	idx      int // -1 for the first rowset batch
	rowCount int
	scd      *snowflakeChunkDownloader
	loc      *time.Location
	ctx      context.Context
	rec      *[]arrow.Record
}

// WithContext sets the context to use for fetching this batch.
func (rb *ArrowBatch) WithContext(ctx context.Context) *ArrowBatch {
	rb.ctx = ctx
	return rb
}

// RowCount returns the number of rows in this batch. For a not yet fetched
// chunk file batch this is the row count the server reported.
func (rb *ArrowBatch) RowCount() int {
	return rb.rowCount
}

// Fetch returns the arrow records of this batch, downloading and decoding the
// underlying chunk file on first call. The caller owns the returned records
// and must Release them.
func (rb *ArrowBatch) Fetch() (*[]arrow.Record, error) {
	if rb.rec != nil {
		return rb.rec, nil
	}
	ctx := rb.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	if err := rb.scd.FuncDownloadHelper(ctx, rb.scd, rb.idx); err != nil {
		return nil, err
	}
	return rb.rec, nil
}

// ArrowBatches returns the arrow format result as a set of lazily fetched
// batches: one for the first rowset when present, then one per chunk file in
// row order. The serializable must carry decode state; the json format is not
// served through this interface.
func (rss *ResultSetSerializable) ArrowBatches(ctx context.Context) ([]*ArrowBatch, error) {
	state := rss.decodeState
	if state == nil {
		return nil, &SnowflakeError{
			Number:   ErrNotRehydrated,
			SQLState: SQLStateInvalidData,
			QueryID:  rss.QueryID,
			Message:  errMsgNotRehydrated,
		}
	}
	if rss.QueryResultFormat != arrowFormat {
		return nil, &SnowflakeError{
			Number:   ErrNonArrowResultFormat,
			SQLState: SQLStateInvalidData,
			QueryID:  rss.QueryID,
			Message:  errMsgNonArrowResultFormat,
		}
	}
	scd, ok := state.chunkDownloader.(*snowflakeChunkDownloader)
	if !ok {
		return nil, &SnowflakeError{
			Number:   ErrNonArrowResultFormat,
			SQLState: SQLStateInvalidData,
			QueryID:  rss.QueryID,
			Message:  errMsgNonArrowResultFormat,
		}
	}
	if err := scd.start(ctx); err != nil {
		return nil, err
	}
	var batches []*ArrowBatch
	if scd.firstBatch != nil {
		batches = append(batches, scd.firstBatch)
	}
	return append(batches, scd.batches...), nil
}
