// Copyright (c) 2024 Snowflake Computing Inc. All rights reserved.

package gosnowflake

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var incorrectSecondsFractionRegex = regexp.MustCompile(`[^.,]FF`)
var correctSecondsFractionRegex = regexp.MustCompile(`FF(?P<fraction>\d?)`)

type formatReplacement struct {
	input  string
	output string
}

var formatReplacements = []formatReplacement{
	{input: "YYYY", output: "2006"},
	{input: "YY", output: "06"},
	{input: "MMMM", output: "January"},
	{input: "MM", output: "01"},
	{input: "MON", output: "Jan"},
	{input: "DD", output: "02"},
	{input: "DY", output: "Mon"},
	{input: "HH24", output: "15"},
	{input: "HH12", output: "03"},
	{input: "AM", output: "PM"},
	{input: "MI", output: "04"},
	{input: "SS", output: "05"},
	{input: "TZH", output: "Z07"},
	{input: "TZM", output: "00"},
}

func snowflakeFormatToGoFormat(sfFormat string) (string, error) {
	res := sfFormat
	for _, replacement := range formatReplacements {
		res = strings.Replace(res, replacement.input, replacement.output, -1)
	}

	if incorrectSecondsFractionRegex.MatchString(res) {
		return "", errors.New("incorrect second fraction - golang requires fraction to be preceded by comma or decimal point")
	}
	for {
		submatch := correctSecondsFractionRegex.FindStringSubmatch(res)
		if submatch == nil {
			break
		}
		fractionNumbers := 9
		if submatch[1] != "" {
			var err error
			fractionNumbers, err = strconv.Atoi(submatch[1])
			if err != nil {
				return "", err
			}
		}
		res = strings.Replace(res, submatch[0], strings.Repeat("0", fractionNumbers), -1)
	}
	return res, nil
}

// dateTimeFormatter renders date/time values with a format derived from a
// Snowflake SQL output format string.
type dateTimeFormatter struct {
	sqlFormat string
	goLayout  string
}

func newDateTimeFormatter(sqlFormat string) (dateTimeFormatter, error) {
	goLayout, err := snowflakeFormatToGoFormat(sqlFormat)
	if err != nil {
		return dateTimeFormatter{}, err
	}
	return dateTimeFormatter{sqlFormat: sqlFormat, goLayout: goLayout}, nil
}

// Format renders t using the derived Go layout.
func (f dateTimeFormatter) Format(t time.Time) string {
	return t.Format(f.goLayout)
}

// specializedFormatter builds the formatter for one timestamp flavor, falling
// back to the shared TIMESTAMP_OUTPUT_FORMAT value when the flavor specific
// parameter is absent or empty.
func specializedFormatter(params map[string]*string, specificFormatKey, fallbackFormat string) (dateTimeFormatter, error) {
	sqlFormat := effectiveStringParam(params, specificFormatKey)
	if sqlFormat == "" {
		sqlFormat = fallbackFormat
	}
	return newDateTimeFormatter(sqlFormat)
}

// resultFormatters is the set of decode time formatters derived from the
// session parameter snapshot. The derivation is pure: the same parameter map
// yields the same formatters on any process.
type resultFormatters struct {
	timestampNTZ dateTimeFormatter
	timestampLTZ dateTimeFormatter
	timestampTZ  dateTimeFormatter
	date         dateTimeFormatter
	time         dateTimeFormatter
	binary       binaryFormat
	location     *time.Location

	honorClientTZForTimestampNTZ bool
}

func newResultFormatters(params map[string]*string) (*resultFormatters, error) {
	sqlTimestampFormat := effectiveStringParam(params, timestampOutputFormatKey)

	var rf resultFormatters
	var err error
	if rf.timestampNTZ, err = specializedFormatter(params, timestampNTZOutputFormatKey, sqlTimestampFormat); err != nil {
		return nil, err
	}
	if rf.timestampLTZ, err = specializedFormatter(params, timestampLTZOutputFormatKey, sqlTimestampFormat); err != nil {
		return nil, err
	}
	if rf.timestampTZ, err = specializedFormatter(params, timestampTZOutputFormatKey, sqlTimestampFormat); err != nil {
		return nil, err
	}
	if rf.date, err = newDateTimeFormatter(effectiveStringParam(params, dateOutputFormatKey)); err != nil {
		return nil, err
	}
	if rf.time, err = newDateTimeFormatter(effectiveStringParam(params, timeOutputFormatKey)); err != nil {
		return nil, err
	}
	rf.binary = safeBinaryOutputFormat(effectiveStringParam(params, binaryOutputFormatKey))
	rf.location = getCurrentLocation(params)
	rf.honorClientTZForTimestampNTZ = effectiveBoolParam(params, clientHonorClientTZForTimestampNTZKey, true)
	return &rf, nil
}
