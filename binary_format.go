// Copyright (c) 2024 Snowflake Computing Inc. All rights reserved.

package gosnowflake

import (
	"encoding/base64"
	"encoding/hex"
	"strings"
)

// binaryFormat renders binary column values per the BINARY_OUTPUT_FORMAT
// session parameter.
type binaryFormat string

const (
	binaryFormatHex    binaryFormat = "HEX"
	binaryFormatBase64 binaryFormat = "BASE64"
	binaryFormatUTF8   binaryFormat = "UTF8"
)

// safeBinaryOutputFormat resolves a BINARY_OUTPUT_FORMAT value, defaulting to
// hex for unrecognized values rather than failing.
func safeBinaryOutputFormat(name string) binaryFormat {
	switch strings.ToUpper(name) {
	case string(binaryFormatBase64):
		return binaryFormatBase64
	case string(binaryFormatUTF8), "UTF-8":
		return binaryFormatUTF8
	default:
		return binaryFormatHex
	}
}

// Format renders raw binary bytes in the configured output format.
func (bf binaryFormat) Format(data []byte) string {
	switch bf {
	case binaryFormatBase64:
		return base64.StdEncoding.EncodeToString(data)
	case binaryFormatUTF8:
		return string(data)
	default:
		return strings.ToUpper(hex.EncodeToString(data))
	}
}
