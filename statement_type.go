// Copyright (c) 2019-2024 Snowflake Computing Inc. All rights reserved.

package gosnowflake

// StatementType tags the kind of statement that produced a result, as
// reported by the server via statementTypeId.
type StatementType int64

// Statement type ids reported by the server. DML types share the 0x3000
// block, session control the 0x4000 block.
const (
	StatementTypeUnknown StatementType = 0x0000
	StatementTypeSelect  StatementType = 0x1000
	StatementTypeExplain StatementType = 0x1001

	StatementTypeDML              StatementType = 0x3000
	StatementTypeInsert           StatementType = 0x3100
	StatementTypeUpdate           StatementType = 0x3200
	StatementTypeDelete           StatementType = 0x3300
	StatementTypeMerge            StatementType = 0x3400
	StatementTypeMultiTableInsert StatementType = 0x3500
	StatementTypeCopy             StatementType = 0x3600
	StatementTypeCopyUnload       StatementType = 0x3700

	StatementTypeSCL          StatementType = 0x4000
	StatementTypeAlterSession StatementType = 0x4100
	StatementTypeUse          StatementType = 0x4200
	StatementTypeUseDatabase  StatementType = 0x4201
	StatementTypeUseSchema    StatementType = 0x4202
	StatementTypeUseWarehouse StatementType = 0x4203
	StatementTypeShow         StatementType = 0x4300
	StatementTypeDescribe     StatementType = 0x4400

	StatementTypeTCL StatementType = 0x5000
	StatementTypeDDL StatementType = 0x6000
)

var statementTypeNames = map[StatementType]string{
	StatementTypeUnknown:          "UNKNOWN",
	StatementTypeSelect:           "SELECT",
	StatementTypeExplain:          "EXPLAIN",
	StatementTypeDML:              "DML",
	StatementTypeInsert:           "INSERT",
	StatementTypeUpdate:           "UPDATE",
	StatementTypeDelete:           "DELETE",
	StatementTypeMerge:            "MERGE",
	StatementTypeMultiTableInsert: "MULTI_TABLE_INSERT",
	StatementTypeCopy:             "COPY",
	StatementTypeCopyUnload:       "COPY_UNLOAD",
	StatementTypeSCL:              "SCL",
	StatementTypeAlterSession:     "ALTER_SESSION",
	StatementTypeUse:              "USE",
	StatementTypeUseDatabase:      "USE_DATABASE",
	StatementTypeUseSchema:        "USE_SCHEMA",
	StatementTypeUseWarehouse:     "USE_WAREHOUSE",
	StatementTypeShow:             "SHOW",
	StatementTypeDescribe:         "DESCRIBE",
	StatementTypeTCL:              "TCL",
	StatementTypeDDL:              "DDL",
}

// lookupStatementTypeByID resolves a server statement type id. An id outside
// the known set is a malformed payload, not a default.
func lookupStatementTypeByID(id int64) (StatementType, error) {
	st := StatementType(id)
	if _, ok := statementTypeNames[st]; !ok {
		return StatementTypeUnknown, &SnowflakeError{
			Number:      ErrUnknownStatementType,
			SQLState:    SQLStateInvalidData,
			Message:     errMsgUnknownStatementType,
			MessageArgs: []interface{}{id},
		}
	}
	return st, nil
}

func (st StatementType) String() string {
	if name, ok := statementTypeNames[st]; ok {
		return name
	}
	return "UNKNOWN"
}

func (st StatementType) isSelect() bool {
	return st == StatementTypeSelect
}
