// Copyright (c) 2019-2024 Snowflake Computing Inc. All rights reserved.

//go:build darwin

package gosnowflake

import (
	"sync"

	"golang.org/x/sys/unix"
)

var (
	hostMemoryOnce    sync.Once
	hostMemoryCeiling int64 = defaultHostMemoryCeiling
)

// hostMemory returns the total physical memory of the host. The value is
// cached after the first read.
func hostMemory() int64 {
	hostMemoryOnce.Do(func() {
		memSize, err := unix.SysctlUint64("hw.memsize")
		if err != nil {
			logger.Warnf("failed to read host memory size: %v", err)
			return
		}
		hostMemoryCeiling = int64(memSize)
	})
	return hostMemoryCeiling
}
