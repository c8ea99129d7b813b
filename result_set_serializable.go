// Copyright (c) 2019-2024 Snowflake Computing Inc. All rights reserved.

package gosnowflake

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/snowflakedb/gosnowflake/v2/internal/query"
)

// resultFormat is the encoding of a query result reported by the server.
type resultFormat string

const (
	jsonFormat  resultFormat = "json"
	arrowFormat resultFormat = "arrow"
)

// resolveResultFormat maps the queryResultFormat response field to a result
// format, defaulting to json when the tag is missing or unrecognized.
func resolveResultFormat(name string) resultFormat {
	switch resultFormat(strings.ToLower(name)) {
	case arrowFormat:
		return arrowFormat
	case jsonFormat:
		return jsonFormat
	default:
		if name != "" {
			logger.Warnf("unrecognized query result format: %v. defaulting to json", name)
		}
		return jsonFormat
	}
}

// ResultSetSerializable is an intermediate object between a query response
// and rows. It is created from the response of a completed query and wraps
// one part of the result set: the first chunk of rows returned inline plus
// metadata of the remaining chunk files.
//
// The exported fields are portable: a serialized ResultSetSerializable can be
// handed to a worker process with no session or live connection, which
// rebuilds the process local decode state with Rehydrate and then reads rows.
// SplitBySize partitions one serializable into several, enabling distributed
// consumption of a large result.
type ResultSetSerializable struct {
	// first chunk of rows wrapped by this object. For the arrow format it is
	// the base64 encoded first rowset; for json it is the raw rowset text.
	FirstChunkStringData string                    `json:"firstChunkStringData,omitempty"`
	FirstChunkRowCount   int                       `json:"firstChunkRowCount"`
	ChunkFileCount       int                       `json:"chunkFileCount"`
	ChunkFileMetadatas   []query.ExecResponseChunk `json:"chunkFileMetadatas,omitempty"`

	// fields used for building a chunk downloader
	ResultPrefetchThreads int               `json:"resultPrefetchThreads"`
	Qrmk                  string            `json:"qrmk,omitempty"`
	ChunkHeadersMap       map[string]string `json:"chunkHeadersMap,omitempty"`

	// fields snapshotted from the session and statement
	ConnectionTarget            string           `json:"connectionTarget,omitempty"`
	OCSPFailOpen                OCSPFailOpenMode `json:"ocspFailOpen,omitempty"`
	NetworkTimeout              time.Duration    `json:"networkTimeout,omitempty"`
	ResultColumnCaseInsensitive bool             `json:"resultColumnCaseInsensitive,omitempty"`
	ResultSetType               int              `json:"resultSetType,omitempty"`
	ResultSetConcurrency        int              `json:"resultSetConcurrency,omitempty"`
	ResultSetHoldability        int              `json:"resultSetHoldability,omitempty"`

	// metadata fields parsed from the query response
	QueryID                string                           `json:"queryId"`
	FinalDatabaseName      *string                          `json:"finalDatabaseName,omitempty"`
	FinalSchemaName        *string                          `json:"finalSchemaName,omitempty"`
	FinalRoleName          *string                          `json:"finalRoleName,omitempty"`
	FinalWarehouseName     *string                          `json:"finalWarehouseName,omitempty"`
	StatementType          StatementType                    `json:"statementType"`
	TotalRowCountTruncated bool                             `json:"totalRowCountTruncated,omitempty"`
	Parameters             map[string]*string               `json:"parameters,omitempty"`
	ColumnCount            int                              `json:"columnCount"`
	RowTypes               []query.ExecResponseRowType      `json:"rowTypes,omitempty"`
	ResultVersion          int64                            `json:"resultVersion,omitempty"`
	NumberOfBinds          int                              `json:"numberOfBinds,omitempty"`
	ArrayBindSupported     bool                             `json:"arrayBindSupported,omitempty"`
	SendResultTime         int64                            `json:"sendResultTime,omitempty"`
	MetaDataOfBinds        []query.ExecResponseBindMetadata `json:"metaDataOfBinds,omitempty"`
	QueryResultFormat      resultFormat                     `json:"queryResultFormat"`

	// decode state is process local and never serialized. It is absent until
	// create or Rehydrate builds it, and is only ever fully present.
	decodeState *resultDecodeState
}

// resultDecodeState is the transient state needed to decode rows. It is
// derived from the portable fields plus host facts and must be rebuilt via
// Rehydrate after the serializable crosses a process boundary.
type resultDecodeState struct {
	formatters       *resultFormatters
	memoryLimit      int64
	firstChunkRowSet [][]*string      // json format only
	rootAllocator    memory.Allocator // arrow format only
	chunkDownloader  chunkDownloader
	metaData         *ResultSetMetaData
}

// NewResultSetSerializable creates a ResultSetSerializable from the raw JSON
// response of a completed query. session supplies the connection snapshot;
// statement may be nil, in which case statement level defaults apply.
func NewResultSetSerializable(rawResponse []byte, session SFSession, statement SFStatement) (*ResultSetSerializable, error) {
	var resp query.ExecResponse
	if err := json.Unmarshal(rawResponse, &resp); err != nil {
		return nil, &SnowflakeError{
			Number:      ErrFailedToParseResponse,
			SQLState:    SQLStateInvalidData,
			Message:     errMsgFailedToParseResponse,
			MessageArgs: []interface{}{err},
		}
	}
	return NewResultSetSerializableFromResponse(&resp, session, statement)
}

// NewResultSetSerializableFromResponse creates a ResultSetSerializable from
// an already decoded query response.
func NewResultSetSerializableFromResponse(resp *query.ExecResponse, session SFSession, statement SFStatement) (*ResultSetSerializable, error) {
	logger.Debug("creating result set serializable")
	if !resp.Success {
		code, err := strconv.Atoi(resp.Code)
		if err != nil {
			code = ErrFailedToParseResponse
		}
		return nil, &SnowflakeError{
			Number:         code,
			SQLState:       resp.Data.SQLState,
			QueryID:        resp.Data.QueryID,
			Message:        errMsgFailedResponse,
			MessageArgs:    []interface{}{resp.Code, resp.Message},
			IncludeQueryID: true,
		}
	}
	if statement == nil {
		statement = defaultStatementOptions{}
	}
	data := &resp.Data

	rss := &ResultSetSerializable{}
	rss.QueryID = data.QueryID
	rss.FinalDatabaseName = data.FinalDatabaseName
	rss.FinalSchemaName = data.FinalSchemaName
	rss.FinalRoleName = data.FinalRoleName
	rss.FinalWarehouseName = data.FinalWarehouseName
	logger.Debugf("query id: %v", rss.QueryID)

	statementType, err := lookupStatementTypeByID(data.StatementTypeID)
	if err != nil {
		return nil, err
	}
	rss.StatementType = statementType
	rss.TotalRowCountTruncated = data.TotalTruncated
	rss.QueryResultFormat = resolveResultFormat(data.QueryResultFormat)
	rss.Parameters = paramsToMap(data.Parameters)

	rss.ColumnCount = len(data.RowType)
	rss.RowTypes = data.RowType

	// process the content of the first chunk
	var firstChunkRowSet [][]*string
	if rss.QueryResultFormat == arrowFormat {
		rss.FirstChunkStringData = data.RowSetBase64
	} else if len(data.RowSet) > 0 {
		if err = json.Unmarshal(data.RowSet, &firstChunkRowSet); err != nil {
			return nil, &SnowflakeError{
				Number:      ErrFailedToParseResponse,
				SQLState:    SQLStateInvalidData,
				QueryID:     rss.QueryID,
				Message:     errMsgFailedToParseResponse,
				MessageArgs: []interface{}{err},
			}
		}
		rss.FirstChunkRowCount = len(firstChunkRowSet)
		rss.FirstChunkStringData = string(data.RowSet)
		logger.Debugf("first chunk row count: %v", rss.FirstChunkRowCount)
	}

	rss.parseChunkFiles(data)

	rss.ResultVersion = data.Version
	rss.NumberOfBinds = data.NumberOfBinds
	rss.ArrayBindSupported = data.ArrayBindSupported
	rss.SendResultTime = data.SendResultTime
	rss.MetaDataOfBinds = data.MetaDataOfBinds

	// snapshot the fields needed later with no live session
	rss.OCSPFailOpen = session.OCSPMode()
	rss.ConnectionTarget = session.ConnectionTarget()
	rss.NetworkTimeout = session.NetworkTimeout()
	rss.ResultColumnCaseInsensitive = session.IsResultColumnCaseInsensitive()
	rss.ResultSetType = statement.ResultSetType()
	rss.ResultSetConcurrency = statement.ResultSetConcurrency()
	rss.ResultSetHoldability = statement.ResultSetHoldability()

	// the memory budget bounds chunk buffering; a result with no chunk files
	// buffers nothing
	rss.ResultPrefetchThreads = defaultClientPrefetchThreads
	var memoryLimit int64
	if rss.ChunkFileCount > 0 {
		rss.ResultPrefetchThreads, memoryLimit = rss.adjustMemorySettings(statement, hostMemory())
	}

	formatters, err := newResultFormatters(rss.Parameters)
	if err != nil {
		return nil, err
	}
	state := &resultDecodeState{
		formatters:       formatters,
		memoryLimit:      memoryLimit,
		firstChunkRowSet: firstChunkRowSet,
	}
	if rss.QueryResultFormat == arrowFormat {
		// the arrow format needs an allocator for any decoding, including the
		// first chunk
		state.rootAllocator = memory.NewGoAllocator()
	}
	state.chunkDownloader = rss.newChunkDownloader(state)
	state.metaData = newResultSetMetaData(rss, formatters)
	rss.decodeState = state
	return rss, nil
}

// parseChunkFiles captures the chunk file metadata of the response along with
// everything needed to fetch the files later.
func (rss *ResultSetSerializable) parseChunkFiles(data *query.ExecResponseData) {
	rss.ChunkFileMetadatas = data.Chunks
	rss.ChunkFileCount = len(data.Chunks)
	rss.Qrmk = data.Qrmk
	if rss.ChunkFileCount > 0 {
		logger.Debugf("#chunks: %v, total bytes: %v", rss.ChunkFileCount,
			rss.UncompressedDataSize()-int64(len(rss.FirstChunkStringData)))
		rss.ChunkHeadersMap = data.ChunkHeaders
		for _, chunk := range rss.ChunkFileMetadatas {
			logger.Debugf("add chunk, url: %v rowCount: %v compressedSize: %v uncompressedSize: %v",
				chunk.URL, chunk.RowCount, chunk.CompressedSize, chunk.UncompressedSize)
		}
	}
}

// UncompressedDataSize is the amount of data this serializable wraps: the
// first chunk data plus the uncompressed sizes of all owned chunk files.
func (rss *ResultSetSerializable) UncompressedDataSize() int64 {
	total := int64(len(rss.FirstChunkStringData))
	for _, chunk := range rss.ChunkFileMetadatas {
		total += chunk.UncompressedSize
	}
	return total
}

// shallowCopy duplicates the portable fields of this serializable. Slices and
// maps are shared with the source, never deep copied; the partitioner only
// ever replaces the chunk sequence of a copy and must not mutate shared maps
// in place. Decode state is not carried over: every copy must be rehydrated
// before rows are read.
func (rss *ResultSetSerializable) shallowCopy() *ResultSetSerializable {
	dup := *rss
	dup.decodeState = nil
	return &dup
}

// SplitBySize splits this serializable into pieces based on the given data
// size in bytes. Each piece wraps at most maxSizeInBytes of uncompressed data,
// except that a piece carrying a single indivisible unit (the first chunk
// alone, or one chunk file alone) may exceed the limit: the limit bounds
// grouping, it never drops data. The concatenation of the returned pieces, in
// order, reproduces the full row sequence of this serializable.
func (rss *ResultSetSerializable) SplitBySize(maxSizeInBytes int64) ([]*ResultSetSerializable, error) {
	if len(rss.ChunkFileMetadatas) == 0 && rss.FirstChunkStringData == "" {
		return nil, &SnowflakeError{
			Number:   ErrInvalidResultSetSerializable,
			SQLState: SQLStateInvalidData,
			QueryID:  rss.QueryID,
			Message:  errMsgInvalidResultSetSerializable,
		}
	}

	var splits []*ResultSetSerializable

	// only the very first piece keeps the first chunk data; it may also be
	// the only piece when there are no chunk files at all
	cur := rss.shallowCopy()
	cur.ChunkFileMetadatas = []query.ExecResponseChunk{}
	cur.ChunkFileCount = 0

	for idx := 0; idx < rss.ChunkFileCount; idx++ {
		chunk := rss.ChunkFileMetadatas[idx]

		// seal the current piece and start a new one if appending this chunk
		// would exceed the limit and the piece already carries data
		if cur.UncompressedDataSize() > 0 &&
			maxSizeInBytes < cur.UncompressedDataSize()+chunk.UncompressedSize {
			splits = append(splits, cur)

			cur = rss.shallowCopy()
			cur.ChunkFileMetadatas = []query.ExecResponseChunk{}
			cur.ChunkFileCount = 0
			cur.FirstChunkStringData = ""
			cur.FirstChunkRowCount = 0
		}

		cur.ChunkFileMetadatas = append(cur.ChunkFileMetadatas, chunk)
		cur.ChunkFileCount++
	}

	splits = append(splits, cur)
	return splits, nil
}

// Serialize encodes the portable fields of this serializable. Decode state is
// never serialized; the receiving process rebuilds it with Rehydrate.
func (rss *ResultSetSerializable) Serialize() ([]byte, error) {
	return json.Marshal(rss)
}

// DeserializeResultSetSerializable decodes a serialized ResultSetSerializable.
// The result carries no decode state; Rehydrate must be called before rows
// are read.
func DeserializeResultSetSerializable(data []byte) (*ResultSetSerializable, error) {
	var rss ResultSetSerializable
	if err := json.Unmarshal(data, &rss); err != nil {
		return nil, &SnowflakeError{
			Number:      ErrFailedToParseResponse,
			SQLState:    SQLStateInvalidData,
			Message:     errMsgFailedToParseResponse,
			MessageArgs: []interface{}{err},
		}
	}
	return &rss, nil
}

// MemoryLimit returns the byte budget for buffering downloaded chunks, or 0
// when decode state is absent.
func (rss *ResultSetSerializable) MemoryLimit() int64 {
	if rss.decodeState == nil {
		return 0
	}
	return rss.decodeState.memoryLimit
}

func (rss *ResultSetSerializable) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "hasFirstChunk: %v\n", rss.FirstChunkStringData != "")
	fmt.Fprintf(&b, "rowCountInFirstChunk: %v\n", rss.FirstChunkRowCount)
	fmt.Fprintf(&b, "queryResultFormat: %v\n", rss.QueryResultFormat)
	fmt.Fprintf(&b, "chunkFileCount: %v\n", rss.ChunkFileCount)
	for _, chunk := range rss.ChunkFileMetadatas {
		fmt.Fprintf(&b, "\trowCount: %v, compressedSize: %v, uncompressedSize: %v, url: %v\n",
			chunk.RowCount, chunk.CompressedSize, chunk.UncompressedSize, chunk.URL)
	}
	return b.String()
}
