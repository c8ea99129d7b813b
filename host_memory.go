// Copyright (c) 2019-2024 Snowflake Computing Inc. All rights reserved.

package gosnowflake

// defaultHostMemoryCeiling is assumed when the host memory size cannot be
// determined.
const defaultHostMemoryCeiling = 8 * gb
