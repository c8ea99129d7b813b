// Copyright (c) 2017-2024 Snowflake Computing Inc. All rights reserved.

package gosnowflake

import (
	"fmt"
	"strconv"
	"sync"
	"time"
)

const (
	// ErrInvalidOffsetStr is an error code for the case where a offset string is invalid. The input string must
	// consist of sHHMI where one sign character '+'/'-' followed by zero filled hours and minutes
	ErrInvalidOffsetStr = 268004

	errMsgInvalidOffsetStr = "offset must be a string consist of sHHMI where one sign character '+'/'-' followed by zero filled hours and minutes: %v"
)

var timezones map[int]*time.Location
var updateTimezoneMutex *sync.Mutex

// getCurrentLocation resolves the TIMEZONE session parameter to a Location.
// An absent or unloadable zone name falls back to the process local zone.
func getCurrentLocation(params map[string]*string) *time.Location {
	loc := time.Now().Location()
	var err error
	if tz, ok := params[timezoneKey]; ok && tz != nil {
		loc, err = time.LoadLocation(*tz)
		if err != nil {
			logger.Warnf("failed to load timezone %v: %v", *tz, err)
			loc = time.Now().Location()
		}
	}
	return loc
}

// LocationWithOffset returns an offset (minutes) based Location object.
func LocationWithOffset(offset int) *time.Location {
	updateTimezoneMutex.Lock()
	defer updateTimezoneMutex.Unlock()
	loc := timezones[offset]
	if loc != nil {
		return loc
	}
	loc = genTimezone(offset)
	timezones[offset] = loc
	return loc
}

// LocationWithOffsetString returns an offset based Location object. The offset string must consist of sHHMI where one
// sign character '+'/'-' followed by zero filled hours and minutes
func LocationWithOffsetString(offsets string) (loc *time.Location, err error) {
	if len(offsets) != 5 {
		return nil, &SnowflakeError{
			Number:      ErrInvalidOffsetStr,
			Message:     errMsgInvalidOffsetStr,
			MessageArgs: []interface{}{offsets},
		}
	}
	if offsets[0] != '-' && offsets[0] != '+' {
		return nil, &SnowflakeError{
			Number:      ErrInvalidOffsetStr,
			Message:     errMsgInvalidOffsetStr,
			MessageArgs: []interface{}{offsets},
		}
	}
	s := 1
	if offsets[0] == '-' {
		s = -1
	}
	var h, m int64
	h, err = strconv.ParseInt(offsets[1:3], 10, 64)
	if err != nil {
		return
	}
	m, err = strconv.ParseInt(offsets[3:], 10, 64)
	if err != nil {
		return
	}
	offset := s * (int(h)*60 + int(m))
	loc = LocationWithOffset(offset)
	return
}

func genTimezone(offset int) *time.Location {
	var offsetSign string
	var toffset int
	if offset < 0 {
		offsetSign = "-"
		toffset = -offset
	} else {
		offsetSign = "+"
		toffset = offset
	}
	return time.FixedZone(fmt.Sprintf("%v%02d%02d", offsetSign, toffset/60, toffset%60), int(offset)*60)
}

func init() {
	updateTimezoneMutex = &sync.Mutex{}
	timezones = make(map[int]*time.Location, 48)
	// pre-generate all common timezones
	for i := -720; i <= 720; i += 30 {
		timezones[i] = genTimezone(i)
	}
}
