// Copyright (c) 2017-2024 Snowflake Computing Inc. All rights reserved.

package gosnowflake

import (
	"fmt"
)

// SnowflakeError is a error type including various Snowflake specific information.
type SnowflakeError struct {
	Number         int
	SQLState       string
	QueryID        string
	Message        string
	MessageArgs    []interface{}
	IncludeQueryID bool
}

func (se *SnowflakeError) Error() string {
	message := se.Message
	if len(se.MessageArgs) > 0 {
		message = fmt.Sprintf(se.Message, se.MessageArgs...)
	}
	if se.SQLState != "" {
		if se.IncludeQueryID {
			return fmt.Sprintf("%06d (%s): %s: %s", se.Number, se.SQLState, se.QueryID, message)
		}
		return fmt.Sprintf("%06d (%s): %s", se.Number, se.SQLState, message)
	}
	if se.IncludeQueryID {
		return fmt.Sprintf("%06d: %s: %s", se.Number, se.QueryID, message)
	}
	return fmt.Sprintf("%06d: %s", se.Number, message)
}

// SQLState codes
const (
	// SQLStateConnectionFailure is a SQL State code for the connection failure. Matches 08006 of PostgreSQL
	SQLStateConnectionFailure = "08006"
	// SQLStateInvalidData is a SQL State code for invalid or unparseable result data
	SQLStateInvalidData = "22000"
)

const (
	// ErrFailedToGetChunk is an error code for the case where it failed to get chunk of result set
	ErrFailedToGetChunk = 262002
	// ErrInvalidResultSetSerializable is an error code for the case where a
	// result set serializable carries neither a first chunk nor chunk files
	ErrInvalidResultSetSerializable = 262003
	// ErrFailedToParseResponse is an error code for the case where a query
	// response payload is malformed or reports a failure
	ErrFailedToParseResponse = 262004
	// ErrFailedToDecodeFirstChunk is an error code for the case where the
	// serialized first chunk data is not valid JSON during rehydration
	ErrFailedToDecodeFirstChunk = 262005
	// ErrUnknownStatementType is an error code for the case where the server
	// reported a statement type id this client does not recognize
	ErrUnknownStatementType = 262006
	// ErrNotRehydrated is an error code for the case where rows are requested
	// from a result set serializable before its transient state was rebuilt
	ErrNotRehydrated = 262007
	// ErrNonJSONResultFormat is an error code for the case where row-by-row
	// iteration is requested on an arrow format result
	ErrNonJSONResultFormat = 262008
	// ErrNonArrowResultFormat is an error code for the case where arrow
	// batches are requested on a json format result
	ErrNonArrowResultFormat = 262009

	// ErrCodeFailedToFindDSNInToml is an error code for the case where the DSN does not exist in the toml
	ErrCodeFailedToFindDSNInToml = 268001
	// ErrCodeTomlFileParsingFailed is an error code for the case where the connections toml cannot be parsed
	ErrCodeTomlFileParsingFailed = 268002
	// ErrCodeInvalidFilePermission is an error code for the case where the connections toml is too permissive
	ErrCodeInvalidFilePermission = 268003
)

const (
	errMsgFailedToGetChunk             = "failed to get a chunk of result sets. idx: %v"
	errMsgInvalidResultSetSerializable = "the result set serializable is invalid: no first chunk data and no chunk files"
	errMsgFailedToParseResponse        = "failed to parse a response. err: %v"
	errMsgFailedResponse               = "server returned a failure response. code: %v, message: %v"
	errMsgFailedToDecodeFirstChunk     = "the first chunk JSON data is invalid. err: %v"
	errMsgUnknownStatementType         = "unknown statement type id: %v"
	errMsgNotRehydrated                = "the result set serializable must be rehydrated before rows are read"
	errMsgNonJSONResultFormat          = "row iteration is only supported for the json result format. use ArrowBatches for arrow results"
	errMsgNonArrowResultFormat         = "arrow batches are only supported for the arrow result format"
	errMsgFailedToFindDSNInTomlFile    = "failed to find DSN in the toml file"
	errMsgFailedToParseTomlFile        = "failed to parse toml file. key: %v, value: %v"
	errMsgInvalidPermissionToTomlFile  = "file permissions are too open for the toml file. expected 0600 or stricter"
)
