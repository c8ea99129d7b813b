// Copyright (c) 2020-2024 Snowflake Computing Inc. All rights reserved.

package gosnowflake

import (
	"bytes"
	"encoding/base64"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

type arrowResultChunk struct {
	reader    *ipc.Reader
	rowCount  int
	loc       *time.Location
	allocator memory.Allocator
}

// decodeArrowBatch reads every record of the chunk stream. Ownership of the
// returned records passes to the caller, which must Release them.
func (arc *arrowResultChunk) decodeArrowBatch() (*[]arrow.Record, error) {
	var records []arrow.Record
	defer arc.reader.Release()

	for arc.reader.Next() {
		record := arc.reader.Record()
		record.Retain()
		records = append(records, record)
		arc.rowCount += int(record.NumRows())
	}
	return &records, arc.reader.Err()
}

// buildFirstArrowChunk decodes the base64 encoded first rowset into an arrow
// chunk backed by the given allocator.
func buildFirstArrowChunk(rowsetBase64 string, loc *time.Location, alloc memory.Allocator) (arrowResultChunk, error) {
	rowSetBytes, err := base64.StdEncoding.DecodeString(rowsetBase64)
	if err != nil {
		return arrowResultChunk{}, err
	}
	rr, err := ipc.NewReader(bytes.NewReader(rowSetBytes), ipc.WithAllocator(alloc))
	if err != nil {
		return arrowResultChunk{}, err
	}
	return arrowResultChunk{rr, 0, loc, alloc}, nil
}

func countArrowBatchRows(recs *[]arrow.Record) (cnt int) {
	if recs == nil {
		return 0
	}
	for _, r := range *recs {
		cnt += int(r.NumRows())
	}
	return
}
