// Copyright (c) 2017-2024 Snowflake Computing Inc. All rights reserved.

package gosnowflake

import (
	"bufio"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/snowflakedb/gosnowflake/v2/internal/query"
)

const (
	headerSseCAlgorithm = "x-amz-server-side-encryption-customer-algorithm"
	headerSseCKey       = "x-amz-server-side-encryption-customer-key"
	headerSseCAes       = "AES256"
)

var maxChunkDownloaderErrorCounter = 5

type chunkError struct {
	Index int
	Error error
}

type chunkDownloader interface {
	totalUncompressedSize() (acc int64)
	start(ctx context.Context) error
	next() (chunkRowType, error)
	reset()
	getChunkMetas() []query.ExecResponseChunk
	getQueryResultFormat() resultFormat
	getRowType() []query.ExecResponseRowType
}

// snowflakeChunkDownloader fetches and decodes the chunk files of one result
// set serializable. All facts it needs are snapshotted from the serializable,
// so it works in a process with no live session. Decoded chunks are buffered
// within the serializable's memory budget.
type snowflakeChunkDownloader struct {
	ctx                context.Context
	rss                *ResultSetSerializable
	pool               memory.Allocator
	client             *http.Client
	Timeout            time.Duration
	TotalRowIndex      int64
	CurrentChunk       []chunkRowType
	CurrentChunkIndex  int
	CurrentChunkSize   int
	CurrentIndex       int
	ChunkHeader        map[string]string
	ChunkMetas         []query.ExecResponseChunk
	Chunks             map[int][]chunkRowType
	ChunksError        chan *chunkError
	ChunksErrorCounter int
	ChunksFinalErrors  []*chunkError
	ChunksMutex        *sync.Mutex
	DoneDownloadCond   *sync.Cond
	NextChunkToAdmit   int   // next chunk index eligible for download, guarded by ChunksMutex
	BufferedSize       int64 // bytes reserved for admitted chunks, guarded by ChunksMutex
	InFlight           int   // downloads admitted but not yet consumed, guarded by ChunksMutex
	PrefetchThreads    int
	MemoryLimit        int64
	Qrmk               string
	QueryResultFormat  resultFormat
	RowSet             rowSetType
	firstBatch         *ArrowBatch
	batches            []*ArrowBatch
	started            bool
	FuncDownload       func(context.Context, *snowflakeChunkDownloader, int)
	FuncDownloadHelper func(context.Context, *snowflakeChunkDownloader, int) error
	FuncGet            func(context.Context, *snowflakeChunkDownloader, string, map[string]string, time.Duration) (*http.Response, error)
}

// newChunkDownloader builds the downloader for this serializable's chunk
// files. With no chunk files the downloader never spawns a worker and only
// serves the first chunk rows.
func (rss *ResultSetSerializable) newChunkDownloader(state *resultDecodeState) chunkDownloader {
	scd := &snowflakeChunkDownloader{
		rss:               rss,
		pool:              state.rootAllocator,
		client:            &http.Client{},
		Timeout:           rss.NetworkTimeout,
		ChunkMetas:        rss.ChunkFileMetadatas,
		ChunkHeader:       rss.ChunkHeadersMap,
		PrefetchThreads:   rss.ResultPrefetchThreads,
		MemoryLimit:       state.memoryLimit,
		Qrmk:              rss.Qrmk,
		QueryResultFormat: rss.QueryResultFormat,
		RowSet: rowSetType{
			RowType:      rss.RowTypes,
			JSON:         state.firstChunkRowSet,
			RowSetBase64: rss.FirstChunkStringData,
		},
		FuncDownload:       downloadChunk,
		FuncDownloadHelper: downloadChunkHelper,
		FuncGet:            getChunk,
	}
	return scd
}

func (scd *snowflakeChunkDownloader) totalUncompressedSize() (acc int64) {
	for _, c := range scd.ChunkMetas {
		acc += c.UncompressedSize
	}
	return
}

func (scd *snowflakeChunkDownloader) start(ctx context.Context) error {
	if scd.started {
		return nil
	}
	scd.started = true
	scd.ctx = ctx
	if scd.getQueryResultFormat() == arrowFormat {
		return scd.startArrowBatches()
	}
	scd.CurrentChunkSize = len(scd.RowSet.JSON) // cache the size
	scd.CurrentIndex = -1                       // initial chunks idx
	scd.CurrentChunkIndex = -1                  // initial chunk

	scd.CurrentChunk = make([]chunkRowType, scd.CurrentChunkSize)
	populateJSONRowSet(scd.CurrentChunk, scd.RowSet.JSON)

	// start downloading chunks if exists
	chunkMetaLen := len(scd.ChunkMetas)
	if chunkMetaLen > 0 {
		logger.WithContext(scd.ctx).Debugf("chunkDownloadWorkers: %v", scd.PrefetchThreads)
		logger.WithContext(scd.ctx).Debugf("chunks: %v, total bytes: %d, memory limit: %v",
			chunkMetaLen, scd.totalUncompressedSize(), scd.MemoryLimit)
		scd.ChunksMutex = &sync.Mutex{}
		scd.DoneDownloadCond = sync.NewCond(scd.ChunksMutex)
		scd.Chunks = make(map[int][]chunkRowType)
		scd.ChunksError = make(chan *chunkError, chunkMetaLen)
		for i := 0; i < intMin(scd.PrefetchThreads, chunkMetaLen); i++ {
			scd.schedule()
		}
	}
	return nil
}

func (scd *snowflakeChunkDownloader) schedule() {
	scd.ChunksMutex.Lock()
	defer scd.ChunksMutex.Unlock()
	scd.scheduleLocked()
}

// scheduleLocked admits the next pending chunk when it fits the memory
// budget. The caller holds ChunksMutex. Admission is strictly in chunk index
// order: next() consumes in order, so an out of order admission could pin the
// budget on a chunk the consumer is not waiting for. A chunk is always
// admitted when nothing else is in flight, so an oversized chunk stalls the
// budget but never the download.
func (scd *snowflakeChunkDownloader) scheduleLocked() {
	nextIdx := scd.NextChunkToAdmit
	if nextIdx >= len(scd.ChunkMetas) {
		// no more download
		logger.WithContext(scd.ctx).Debug("no more chunks to schedule")
		return
	}
	size := scd.ChunkMetas[nextIdx].UncompressedSize
	if scd.InFlight > 0 && scd.BufferedSize+size > scd.MemoryLimit {
		// over budget. next() reschedules after it releases a consumed chunk.
		logger.WithContext(scd.ctx).Debugf("defer chunk %v: %v buffered of %v limit",
			nextIdx+1, scd.BufferedSize, scd.MemoryLimit)
		return
	}
	scd.NextChunkToAdmit++
	scd.InFlight++
	scd.BufferedSize += size
	logger.WithContext(scd.ctx).Infof("schedule chunk: %v", nextIdx+1)
	go scd.FuncDownload(scd.ctx, scd, nextIdx)
}

func (scd *snowflakeChunkDownloader) checkErrorRetry() error {
	select {
	case errc := <-scd.ChunksError:
		if scd.ChunksErrorCounter >= maxChunkDownloaderErrorCounter ||
			errors.Is(errc.Error, context.Canceled) ||
			errors.Is(errc.Error, context.DeadlineExceeded) {

			scd.ChunksFinalErrors = append(scd.ChunksFinalErrors, errc)
			logger.WithContext(scd.ctx).Warnf("chunk idx: %v, err: %v. no further retry", errc.Index, errc.Error)
			return errc.Error
		}

		// retry the download. The budget reservation from the failed attempt
		// is still held, no re-admission needed.
		go scd.FuncDownload(scd.ctx, scd, errc.Index)
		scd.ChunksErrorCounter++
		logger.WithContext(scd.ctx).Warnf("chunk idx: %v, err: %v. retrying (%v/%v)...",
			errc.Index, errc.Error, scd.ChunksErrorCounter, maxChunkDownloaderErrorCounter)
		return nil
	default:
		return nil
	}
}

func (scd *snowflakeChunkDownloader) next() (chunkRowType, error) {
	for {
		scd.CurrentIndex++
		if scd.CurrentIndex < scd.CurrentChunkSize {
			return scd.CurrentChunk[scd.CurrentIndex], nil
		}
		scd.CurrentChunkIndex++ // next chunk
		scd.CurrentIndex = -1   // reset
		if scd.CurrentChunkIndex >= len(scd.ChunkMetas) {
			break
		}

		scd.ChunksMutex.Lock()
		if scd.CurrentChunkIndex > 0 {
			// detach the previously used chunk and release its budget; the
			// freed budget may admit a deferred chunk
			scd.Chunks[scd.CurrentChunkIndex-1] = nil
			scd.BufferedSize -= scd.ChunkMetas[scd.CurrentChunkIndex-1].UncompressedSize
			scd.InFlight--
			scd.scheduleLocked()
		}

		for scd.Chunks[scd.CurrentChunkIndex] == nil {
			logger.WithContext(scd.ctx).Debugf("waiting for chunk idx: %v/%v",
				scd.CurrentChunkIndex+1, len(scd.ChunkMetas))

			if err := scd.checkErrorRetry(); err != nil {
				scd.ChunksMutex.Unlock()
				return chunkRowType{}, fmt.Errorf("checking for error: %w", err)
			}

			// wait for a chunk downloader goroutine to broadcast the event,
			// 1) one chunk download finishes or 2) an error occurs.
			scd.DoneDownloadCond.Wait()
		}
		logger.WithContext(scd.ctx).Debugf("ready: chunk %v", scd.CurrentChunkIndex+1)
		scd.CurrentChunk = scd.Chunks[scd.CurrentChunkIndex]
		scd.ChunksMutex.Unlock()
		scd.CurrentChunkSize = len(scd.CurrentChunk)

		// kick off the next download
		scd.schedule()
	}

	logger.WithContext(scd.ctx).Debugf("no more data")
	if len(scd.ChunkMetas) > 0 {
		close(scd.ChunksError)
	}
	return chunkRowType{}, io.EOF
}

func (scd *snowflakeChunkDownloader) reset() {
	scd.Chunks = nil // detach all chunks. No way to go backward without reinitialize it.
}

func (scd *snowflakeChunkDownloader) getChunkMetas() []query.ExecResponseChunk {
	return scd.ChunkMetas
}

func (scd *snowflakeChunkDownloader) getQueryResultFormat() resultFormat {
	return scd.QueryResultFormat
}

func (scd *snowflakeChunkDownloader) getRowType() []query.ExecResponseRowType {
	return scd.RowSet.RowType
}

// startArrowBatches decodes the first rowset into records and prepares one
// lazy batch per chunk file. Chunk files are only fetched when a batch is
// fetched.
func (scd *snowflakeChunkDownloader) startArrowBatches() error {
	loc := getCurrentLocation(scd.rss.Parameters)
	if scd.RowSet.RowSetBase64 != "" {
		firstArrowChunk, err := buildFirstArrowChunk(scd.RowSet.RowSetBase64, loc, scd.pool)
		if err != nil {
			return fmt.Errorf("building first arrow chunk: %w", err)
		}
		scd.firstBatch = &ArrowBatch{
			idx: -1,
			scd: scd,
			loc: loc,
		}
		scd.firstBatch.rec, err = firstArrowChunk.decodeArrowBatch()
		if err != nil {
			return fmt.Errorf("decoding arrow batch: %w", err)
		}
		scd.firstBatch.rowCount = countArrowBatchRows(scd.firstBatch.rec)
	}
	chunkMetaLen := len(scd.ChunkMetas)
	scd.batches = make([]*ArrowBatch, chunkMetaLen)
	for i := range scd.batches {
		scd.batches[i] = &ArrowBatch{
			idx:      i,
			scd:      scd,
			loc:      loc,
			rowCount: scd.ChunkMetas[i].RowCount,
		}
	}
	return nil
}

/* largeResultSetReader is a reader that wraps the large result set with leading and tailing brackets. */
type largeResultSetReader struct {
	status int
	body   io.Reader
}

func (r *largeResultSetReader) Read(p []byte) (n int, err error) {
	if r.status == 0 {
		p[0] = 0x5b // initial 0x5b ([)
		r.status = 1
		return 1, nil
	}
	if r.status == 1 {
		var len int
		len, err = r.body.Read(p)
		if err == io.EOF {
			r.status = 2
			return len, nil
		}
		if err != nil {
			return 0, fmt.Errorf("reading body: %w", err)
		}
		return len, nil
	}
	if r.status == 2 {
		p[0] = 0x5d // tail 0x5d (])
		r.status = 3
		return 1, nil
	}
	// ensure no data and EOF
	return 0, io.EOF
}

func downloadChunk(ctx context.Context, scd *snowflakeChunkDownloader, idx int) {
	logger.WithContext(ctx).Infof("download start chunk: %v", idx+1)
	defer scd.DoneDownloadCond.Broadcast()

	timer := time.Now()
	if err := scd.FuncDownloadHelper(ctx, scd, idx); err != nil {
		logger.WithContext(ctx).Errorf(
			"failed to extract HTTP response body. URL: %v, err: %v", scd.ChunkMetas[idx].URL, err)
		scd.ChunksError <- &chunkError{Index: idx, Error: err}
	} else if errors.Is(scd.ctx.Err(), context.Canceled) || errors.Is(scd.ctx.Err(), context.DeadlineExceeded) {
		scd.ChunksError <- &chunkError{Index: idx, Error: scd.ctx.Err()}
	}
	logger.WithContext(ctx).Debugf("processed chunk %v out of %v in %v. rows: %v, uncompressed size: %v",
		idx+1, len(scd.ChunkMetas), time.Since(timer), scd.ChunkMetas[idx].RowCount, scd.ChunkMetas[idx].UncompressedSize)
}

// chunkHeaders builds the request headers for fetching a chunk file: the
// server issued headers verbatim when present, otherwise SSE-C headers derived
// from the master key.
func (scd *snowflakeChunkDownloader) chunkHeaders(ctx context.Context) map[string]string {
	headers := make(map[string]string)
	if len(scd.ChunkHeader) > 0 {
		logger.WithContext(ctx).Debug("chunk header is provided.")
		for k, v := range scd.ChunkHeader {
			logger.WithContext(ctx).Debugf("adding header: %v", k)
			headers[k] = v
		}
	} else {
		headers[headerSseCAlgorithm] = headerSseCAes
		headers[headerSseCKey] = scd.Qrmk
	}
	return headers
}

func downloadChunkHelper(ctx context.Context, scd *snowflakeChunkDownloader, idx int) error {
	resp, err := scd.FuncGet(ctx, scd, scd.ChunkMetas[idx].URL, scd.chunkHeaders(ctx), scd.Timeout)
	if err != nil {
		return fmt.Errorf("getting chunk: %w", err)
	}
	defer func() {
		if err = resp.Body.Close(); err != nil {
			logger.Warnf("downloadChunkHelper: closing response body %v: %v", scd.ChunkMetas[idx].URL, err)
		}
	}()
	logger.WithContext(ctx).Debugf("response returned chunk: %v for URL: %v", idx+1, scd.ChunkMetas[idx].URL)
	if resp.StatusCode != http.StatusOK {
		b, err := io.ReadAll(resp.Body)
		if err != nil {
			logger.WithContext(ctx).Errorf("reading response body: %v", err)
		}
		logger.WithContext(ctx).Debugf("HTTP: %v, URL: %v, Header: %v, Body: %v", resp.StatusCode, scd.ChunkMetas[idx].URL, resp.Header, b)
		return &SnowflakeError{
			Number:      ErrFailedToGetChunk,
			SQLState:    SQLStateConnectionFailure,
			QueryID:     scd.rss.QueryID,
			Message:     errMsgFailedToGetChunk,
			MessageArgs: []any{idx},
		}
	}

	bufStream := bufio.NewReader(resp.Body)
	return decodeChunk(ctx, scd, idx, bufStream)
}

func decodeChunk(ctx context.Context, scd *snowflakeChunkDownloader, idx int, bufStream *bufio.Reader) error {
	gzipMagic, err := bufStream.Peek(2)
	if err != nil {
		return fmt.Errorf("peeking for gzip magic bytes: %w", err)
	}
	start := time.Now()
	var source io.Reader
	if gzipMagic[0] == 0x1f && gzipMagic[1] == 0x8b {
		// detects and uncompresses Gzip format data
		bufStream0, err := gzip.NewReader(bufStream)
		if err != nil {
			return fmt.Errorf("creating gzip reader: %w", err)
		}
		defer func() {
			if err = bufStream0.Close(); err != nil {
				logger.Warnf("decodeChunk: closing gzip reader: %v", err)
			}
		}()
		source = bufStream0
	} else {
		source = bufStream
	}

	if scd.getQueryResultFormat() == arrowFormat {
		ipcReader, err := ipc.NewReader(source, ipc.WithAllocator(scd.pool))
		if err != nil {
			return fmt.Errorf("creating ipc reader: %w", err)
		}
		arc := arrowResultChunk{
			reader:    ipcReader,
			loc:       getCurrentLocation(scd.rss.Parameters),
			allocator: scd.pool,
		}
		scd.batches[idx].rec, err = arc.decodeArrowBatch()
		if err != nil {
			return fmt.Errorf("decoding arrow batch: %w", err)
		}
		scd.batches[idx].rowCount = countArrowBatchRows(scd.batches[idx].rec)
		return nil
	}

	// a chunk file is a comma separated row sequence with no enclosing
	// brackets; wrap it so the stream is one JSON array
	st := &largeResultSetReader{
		status: 0,
		body:   source,
	}
	var decRespd [][]*string
	dec := json.NewDecoder(st)
	for {
		if err := dec.Decode(&decRespd); err == io.EOF {
			break
		} else if err != nil {
			return fmt.Errorf("decoding json: %w", err)
		}
	}
	respd := make([]chunkRowType, len(decRespd))
	populateJSONRowSet(respd, decRespd)

	logger.WithContext(scd.ctx).Debugf(
		"decoded %d rows w/ %d bytes in %s (chunk %v)",
		scd.ChunkMetas[idx].RowCount,
		scd.ChunkMetas[idx].UncompressedSize,
		time.Since(start), idx+1,
	)

	scd.ChunksMutex.Lock()
	defer scd.ChunksMutex.Unlock()
	scd.Chunks[idx] = respd
	return nil
}

func populateJSONRowSet(dst []chunkRowType, src [][]*string) {
	// populate string rowset from src to dst's chunkRowType struct's RowSet field
	for i, row := range src {
		dst[i].RowSet = row
	}
}
