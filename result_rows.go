// Copyright (c) 2017-2024 Snowflake Computing Inc. All rights reserved.

package gosnowflake

import (
	"context"
	"strings"

	"github.com/snowflakedb/gosnowflake/v2/internal/query"
)

// rowSetType carries the first rowset handed to the chunk downloader.
type rowSetType struct {
	RowType      []query.ExecResponseRowType
	JSON         [][]*string
	RowSetBase64 string
}

// chunkRowType is one row of a decoded json chunk. A nil cell is SQL NULL.
type chunkRowType struct {
	RowSet []*string
}

// ResultSetMetaData describes the columns of a result set. It is derived from
// the row type metadata the server sent and honors the session's column name
// case sensitivity setting.
type ResultSetMetaData struct {
	queryID         string
	rowTypes        []query.ExecResponseRowType
	caseInsensitive bool
	formatters      *resultFormatters
}

func newResultSetMetaData(rss *ResultSetSerializable, formatters *resultFormatters) *ResultSetMetaData {
	return &ResultSetMetaData{
		queryID:         rss.QueryID,
		rowTypes:        rss.RowTypes,
		caseInsensitive: rss.ResultColumnCaseInsensitive,
		formatters:      formatters,
	}
}

// QueryID returns the id of the query that produced this result set.
func (m *ResultSetMetaData) QueryID() string {
	return m.queryID
}

// ColumnCount returns the number of columns.
func (m *ResultSetMetaData) ColumnCount() int {
	return len(m.rowTypes)
}

// ColumnNames returns the column names in result order.
func (m *ResultSetMetaData) ColumnNames() []string {
	names := make([]string, len(m.rowTypes))
	for i, rt := range m.rowTypes {
		names[i] = rt.Name
	}
	return names
}

// ColumnIndex returns the index of the named column or -1 when absent. The
// lookup is exact unless the session requested case insensitive column names.
func (m *ResultSetMetaData) ColumnIndex(name string) int {
	for i, rt := range m.rowTypes {
		if rt.Name == name {
			return i
		}
		if m.caseInsensitive && strings.EqualFold(rt.Name, name) {
			return i
		}
	}
	return -1
}

// ColumnTypeName returns the database type name of the column.
func (m *ResultSetMetaData) ColumnTypeName(index int) string {
	return strings.ToUpper(m.rowTypes[index].Type)
}

// ColumnNullable reports whether the column may hold NULL.
func (m *ResultSetMetaData) ColumnNullable(index int) bool {
	return m.rowTypes[index].Nullable
}

// ColumnPrecisionScale returns the precision and scale of a numeric column.
// ok is false for column types that carry neither.
func (m *ResultSetMetaData) ColumnPrecisionScale(index int) (precision, scale int64, ok bool) {
	rt := m.rowTypes[index]
	switch strings.ToLower(rt.Type) {
	case "fixed", "real", "number":
		return rt.Precision, rt.Scale, true
	}
	return 0, 0, false
}

// Metadata returns the result set metadata, or an error when decode state is
// absent.
func (rss *ResultSetSerializable) Metadata() (*ResultSetMetaData, error) {
	if rss.decodeState == nil {
		return nil, &SnowflakeError{
			Number:   ErrNotRehydrated,
			SQLState: SQLStateInvalidData,
			QueryID:  rss.QueryID,
			Message:  errMsgNotRehydrated,
		}
	}
	return rss.decodeState.metaData, nil
}

// ResultRows iterates over the rows of a json format result set: the first
// chunk rows, then each chunk file in order. Chunk files are downloaded ahead
// of the cursor within the memory budget.
type ResultRows struct {
	rss *ResultSetSerializable
	scd chunkDownloader
}

// Rows starts row iteration over this serializable. The serializable must
// carry decode state and wrap a json format result; arrow results are served
// through ArrowBatches.
func (rss *ResultSetSerializable) Rows(ctx context.Context) (*ResultRows, error) {
	if rss.decodeState == nil {
		return nil, &SnowflakeError{
			Number:   ErrNotRehydrated,
			SQLState: SQLStateInvalidData,
			QueryID:  rss.QueryID,
			Message:  errMsgNotRehydrated,
		}
	}
	if rss.QueryResultFormat != jsonFormat {
		return nil, &SnowflakeError{
			Number:   ErrNonJSONResultFormat,
			SQLState: SQLStateInvalidData,
			QueryID:  rss.QueryID,
			Message:  errMsgNonJSONResultFormat,
		}
	}
	scd := rss.decodeState.chunkDownloader
	if err := scd.start(ctx); err != nil {
		return nil, err
	}
	return &ResultRows{rss: rss, scd: scd}, nil
}

// Next returns the next row. A nil cell is SQL NULL. io.EOF signals the end
// of the result set.
func (r *ResultRows) Next() ([]*string, error) {
	row, err := r.scd.next()
	if err != nil {
		return nil, err
	}
	return row.RowSet, nil
}

// Columns returns the column names in result order.
func (r *ResultRows) Columns() []string {
	names := make([]string, len(r.scd.getRowType()))
	for i, rt := range r.scd.getRowType() {
		names[i] = rt.Name
	}
	return names
}

// Close detaches all buffered chunks. Iteration cannot resume afterwards.
func (r *ResultRows) Close() error {
	r.scd.reset()
	return nil
}
