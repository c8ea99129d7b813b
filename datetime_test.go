package gosnowflake

import (
	"testing"
	"time"
)

func TestSnowflakeFormatToGoFormat(t *testing.T) {
	testcases := []struct {
		sfFormat string
		goFormat string
	}{
		{"YYYY-MM-DD", "2006-01-02"},
		{"HH24:MI:SS", "15:04:05"},
		{"YYYY-MM-DD HH24:MI:SS", "2006-01-02 15:04:05"},
		{"YY-MON-DD HH12:MI:SS AM", "06-Jan-02 03:04:05 PM"},
		{"DY, DD MON YYYY HH24:MI:SS TZHTZM", "Mon, 02 Jan 2006 15:04:05 Z0700"},
		{"YYYY-MM-DD HH24:MI:SS.FF3", "2006-01-02 15:04:05.000"},
		{"HH24:MI:SS.FF", "15:04:05.000000000"},
		{"MMMM DD, YYYY", "January 02, 2006"},
	}
	for _, tc := range testcases {
		t.Run(tc.sfFormat, func(t *testing.T) {
			goFormat, err := snowflakeFormatToGoFormat(tc.sfFormat)
			assertNilF(t, err)
			assertEqualE(t, goFormat, tc.goFormat)
		})
	}
}

func TestSnowflakeFormatToGoFormatInvalidFraction(t *testing.T) {
	for _, sfFormat := range []string{"HH24:MI:SSFF", "YYYY-MM-DD HH24FF"} {
		t.Run(sfFormat, func(t *testing.T) {
			_, err := snowflakeFormatToGoFormat(sfFormat)
			assertNotNilE(t, err, "fraction without a preceding separator must be rejected")
		})
	}
}

func TestDateTimeFormatterFormat(t *testing.T) {
	formatter, err := newDateTimeFormatter("YYYY-MM-DD HH24:MI:SS.FF3")
	assertNilF(t, err)
	ts := time.Date(2024, time.March, 5, 13, 14, 15, 123456789, time.UTC)
	assertEqualE(t, formatter.Format(ts), "2024-03-05 13:14:15.123")
}

func TestNewResultFormattersDefaults(t *testing.T) {
	rf, err := newResultFormatters(map[string]*string{})
	assertNilF(t, err)

	// all timestamp flavors fall back to the shared timestamp format
	assertEqualE(t, rf.timestampNTZ.sqlFormat, "DY, DD MON YYYY HH24:MI:SS TZHTZM")
	assertEqualE(t, rf.timestampLTZ.sqlFormat, rf.timestampNTZ.sqlFormat)
	assertEqualE(t, rf.timestampTZ.sqlFormat, rf.timestampNTZ.sqlFormat)
	assertEqualE(t, rf.date.goLayout, "2006-01-02")
	assertEqualE(t, rf.time.goLayout, "15:04:05")
	assertEqualE(t, rf.binary, binaryFormatHex)
	assertEqualE(t, rf.location.String(), "America/Los_Angeles")
	assertTrueE(t, rf.honorClientTZForTimestampNTZ)
}

func TestNewResultFormattersSpecializedOverride(t *testing.T) {
	params := paramMap(map[string]string{
		timestampOutputFormatKey:    "YYYY-MM-DD HH24:MI:SS",
		timestampNTZOutputFormatKey: "YYYY-MM-DD",
		binaryOutputFormatKey:       "BASE64",
		timezoneKey:                 "UTC",
	})
	rf, err := newResultFormatters(params)
	assertNilF(t, err)

	assertEqualE(t, rf.timestampNTZ.goLayout, "2006-01-02")
	assertEqualE(t, rf.timestampLTZ.goLayout, "2006-01-02 15:04:05")
	assertEqualE(t, rf.binary, binaryFormatBase64)
	assertEqualE(t, rf.location, time.UTC)
}

func TestNewResultFormattersInvalidFormat(t *testing.T) {
	params := paramMap(map[string]string{timestampOutputFormatKey: "HH24:MI:SSFF"})
	_, err := newResultFormatters(params)
	assertNotNilE(t, err)
}

func TestNewResultFormattersIsPure(t *testing.T) {
	params := paramMap(map[string]string{
		timezoneKey:              "Europe/Warsaw",
		timestampOutputFormatKey: "YYYY-MM-DD HH24:MI:SS.FF6",
	})
	a, err := newResultFormatters(params)
	assertNilF(t, err)
	b, err := newResultFormatters(params)
	assertNilF(t, err)
	assertDeepEqualE(t, a, b, "same parameter snapshot must derive identical formatters")
}
