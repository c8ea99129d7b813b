// Copyright (c) 2019-2024 Snowflake Computing Inc. All rights reserved.

//go:build !linux && !darwin && !windows

package gosnowflake

// hostMemory returns the total physical memory of the host. On platforms
// without a supported probe the conservative default ceiling is used.
func hostMemory() int64 {
	return defaultHostMemoryCeiling
}
