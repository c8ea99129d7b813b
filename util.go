// Copyright (c) 2017-2024 Snowflake Computing Inc. All rights reserved.

package gosnowflake

import "time"

type contextKey string

// integer min
func intMin(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// integer min
func intMin64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

// integer max
func intMax64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

// time.Duration min
func durationMin(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
