// Copyright (c) 2020-2024 Snowflake Computing Inc. All rights reserved.

package gosnowflake

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/snowflakedb/gosnowflake/v2/internal/query"
)

// session parameter keys. Parameter names are normalized to lower case when
// the response parameter list is folded into the parameter map.
const (
	timezoneKey                           = "timezone"
	timestampOutputFormatKey              = "timestamp_output_format"
	timestampNTZOutputFormatKey           = "timestamp_ntz_output_format"
	timestampLTZOutputFormatKey           = "timestamp_ltz_output_format"
	timestampTZOutputFormatKey            = "timestamp_tz_output_format"
	dateOutputFormatKey                   = "date_output_format"
	timeOutputFormatKey                   = "time_output_format"
	binaryOutputFormatKey                 = "binary_output_format"
	clientHonorClientTZForTimestampNTZKey = "client_honor_client_tz_for_timestamp_ntz"
	clientPrefetchThreadsKey              = "client_prefetch_threads"
	clientMemoryLimitKey                  = "client_memory_limit"
	clientResultChunkSizeKey              = "client_result_chunk_size"
	clientEnableConservativeMemoryKey     = "client_enable_conservative_memory_usage"
)

// defaultSessionParameters are the effective values used when a session
// parameter is absent from the snapshot. Absence is never an error.
var defaultSessionParameters = map[string]string{
	timezoneKey:                           "America/Los_Angeles",
	timestampOutputFormatKey:              "DY, DD MON YYYY HH24:MI:SS TZHTZM",
	timestampNTZOutputFormatKey:           "",
	timestampLTZOutputFormatKey:           "",
	timestampTZOutputFormatKey:            "",
	dateOutputFormatKey:                   "YYYY-MM-DD",
	timeOutputFormatKey:                   "HH24:MI:SS",
	binaryOutputFormatKey:                 "HEX",
	clientHonorClientTZForTimestampNTZKey: "true",
}

// paramsToMap folds the name/value parameter list of a query response into a
// parameter map keyed by lower case names. Values keep their textual JSON
// form; a JSON null value maps to a nil entry.
func paramsToMap(parameters []query.NameValueParameter) map[string]*string {
	params := make(map[string]*string, len(parameters))
	for _, kv := range parameters {
		name := strings.ToLower(kv.Name)
		if string(kv.Value) == "null" || len(kv.Value) == 0 {
			params[name] = nil
			continue
		}
		var v string
		if err := json.Unmarshal(kv.Value, &v); err != nil {
			// not a JSON string; numbers and booleans keep their raw form
			v = string(kv.Value)
		}
		value := v
		params[name] = &value
	}
	return params
}

// effectiveStringParam returns the parameter value, or its documented default
// when the parameter is absent or null.
func effectiveStringParam(params map[string]*string, name string) string {
	if v, ok := params[name]; ok && v != nil {
		return *v
	}
	return defaultSessionParameters[name]
}

func effectiveBoolParam(params map[string]*string, name string, defaultValue bool) bool {
	v, ok := params[name]
	if !ok || v == nil {
		if d, ok := defaultSessionParameters[name]; ok {
			return d == "true"
		}
		return defaultValue
	}
	return strings.EqualFold(*v, "true")
}

func effectiveIntParam(params map[string]*string, name string, defaultValue int) int {
	v, ok := params[name]
	if !ok || v == nil {
		return defaultValue
	}
	n, err := strconv.Atoi(*v)
	if err != nil {
		logger.Warnf("invalid value for %v: %v. defaulting to %v", name, *v, defaultValue)
		return defaultValue
	}
	return n
}
