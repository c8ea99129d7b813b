// Copyright (c) 2019-2024 Snowflake Computing Inc. All rights reserved.

//go:build linux

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
		var si unix.Sysinfo_t
		if err := unix.Sysinfo(&si); err != nil {
			logger.Warnf("failed to read host memory size: %v", err)
			return
		}
		hostMemoryCeiling = int64(si.Totalram) * int64(si.Unit)
	})
	return hostMemoryCeiling
}
