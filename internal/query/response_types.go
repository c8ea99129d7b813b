// Package query holds the wire types of a query execution response.
package query

import "encoding/json"

// ExecResponseRowType describes column metadata from a query response.
type ExecResponseRowType struct {
	Name       string          `json:"name"`
	Fields     []FieldMetadata `json:"fields,omitempty"`
	ByteLength int64           `json:"byteLength"`
	Length     int64           `json:"length"`
	Type       string          `json:"type"`
	Precision  int64           `json:"precision"`
	Scale      int64           `json:"scale"`
	Nullable   bool            `json:"nullable"`
}

// FieldMetadata describes metadata for a field, including nested fields for complex types.
type FieldMetadata struct {
	Name      string          `json:"name,omitempty"`
	Type      string          `json:"type"`
	Nullable  bool            `json:"nullable"`
	Length    int             `json:"length"`
	Scale     int             `json:"scale"`
	Precision int             `json:"precision"`
	Fields    []FieldMetadata `json:"fields,omitempty"`
}

// ExecResponseChunk describes metadata for a chunk of query results, including URL and size information.
type ExecResponseChunk struct {
	URL              string `json:"url"`
	RowCount         int    `json:"rowCount"`
	UncompressedSize int64  `json:"uncompressedSize"`
	CompressedSize   int64  `json:"compressedSize"`
}

// ExecResponseBindMetadata describes metadata of a bind parameter reported by
// the server alongside a query result.
type ExecResponseBindMetadata struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	Precision  int64  `json:"precision"`
	Scale      int64  `json:"scale"`
	ByteLength int64  `json:"byteLength"`
	Length     int64  `json:"length"`
	Nullable   bool   `json:"nullable"`
}

// NameValueParameter is a session parameter reported in a query response.
// Value keeps the raw JSON form since parameters mix strings, numbers and
// booleans.
type NameValueParameter struct {
	Name  string          `json:"name"`
	Value json.RawMessage `json:"value"`
}

// ExecResponseData is the data section of a query execution response.
// Identity fields that the server may report as JSON null are pointers so
// null and absent stay distinguishable from empty strings.
type ExecResponseData struct {
	QueryID            string                `json:"queryId"`
	SQLState           string                `json:"sqlState"`
	FinalDatabaseName  *string               `json:"finalDatabaseName"`
	FinalSchemaName    *string               `json:"finalSchemaName"`
	FinalRoleName      *string               `json:"finalRoleName"`
	FinalWarehouseName *string               `json:"finalWarehouseName"`
	StatementTypeID    int64                 `json:"statementTypeId"`
	TotalTruncated     bool                  `json:"totalTruncated"`
	QueryResultFormat  string                `json:"queryResultFormat"`
	Parameters         []NameValueParameter  `json:"parameters"`
	RowType            []ExecResponseRowType `json:"rowtype"`

	// first page of rows; RowSetBase64 for the arrow format, RowSet for json
	RowSetBase64 string          `json:"rowsetBase64,omitempty"`
	RowSet       json.RawMessage `json:"rowset,omitempty"`

	Total    int64 `json:"total"`
	Returned int64 `json:"returned"`

	// remaining chunk files and what is needed to fetch them
	Chunks       []ExecResponseChunk `json:"chunks,omitempty"`
	ChunkHeaders map[string]string   `json:"chunkHeaders,omitempty"`
	Qrmk         string              `json:"qrmk,omitempty"`

	Version            int64                      `json:"version"`
	NumberOfBinds      int                        `json:"numberOfBinds"`
	ArrayBindSupported bool                       `json:"arrayBindSupported"`
	SendResultTime     int64                      `json:"sendResultTime"`
	MetaDataOfBinds    []ExecResponseBindMetadata `json:"metaDataOfBinds,omitempty"`
}

// ExecResponse is a query execution response.
type ExecResponse struct {
	Data    ExecResponseData `json:"data"`
	Message string           `json:"message"`
	Code    string           `json:"code"`
	Success bool             `json:"success"`
}
