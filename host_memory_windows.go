// Copyright (c) 2019-2024 Snowflake Computing Inc. All rights reserved.

//go:build windows

package gosnowflake

import (
	"sync"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	kernel32                 = windows.NewLazySystemDLL("kernel32.dll")
	procGlobalMemoryStatusEx = kernel32.NewProc("GlobalMemoryStatusEx")
)

// memoryStatusEx mirrors the win32 MEMORYSTATUSEX structure.
type memoryStatusEx struct {
	Length               uint32
	MemoryLoad           uint32
	TotalPhys            uint64
	AvailPhys            uint64
	TotalPageFile        uint64
	AvailPageFile        uint64
	TotalVirtual         uint64
	AvailVirtual         uint64
	AvailExtendedVirtual uint64
}

var (
	hostMemoryOnce    sync.Once
	hostMemoryCeiling int64 = defaultHostMemoryCeiling
)

// hostMemory returns the total physical memory of the host. The value is
// cached after the first read.
func hostMemory() int64 {
	hostMemoryOnce.Do(func() {
		var ms memoryStatusEx
		ms.Length = uint32(unsafe.Sizeof(ms))
		ret, _, err := procGlobalMemoryStatusEx.Call(uintptr(unsafe.Pointer(&ms)))
		if ret == 0 {
			logger.Warnf("failed to read host memory size: %v", err)
			return
		}
		hostMemoryCeiling = int64(ms.TotalPhys)
	})
	return hostMemoryCeiling
}
