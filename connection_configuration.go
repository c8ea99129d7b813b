// Copyright (c) 2024 Snowflake Computing Inc. All rights reserved.

package gosnowflake

import (
	"errors"
	"os"
	path "path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	toml "github.com/BurntSushi/toml"
)

var isWindows = runtime.GOOS == "windows"

// LoadConnectionConfig returns connection configs loaded from the toml file.
// By default, SNOWFLAKE_HOME(toml file path) is os.home/snowflake
// and SNOWFLAKE_DEFAULT_CONNECTION_NAME(DSN) is 'default'
func LoadConnectionConfig() (*Config, error) {
	cfg := &Config{
		Params: make(map[string]*string),
	}
	dsn := getConnectionDSN(os.Getenv("SNOWFLAKE_DEFAULT_CONNECTION_NAME"))
	snowflakeConfigDir, err := getTomlFilePath(os.Getenv("SNOWFLAKE_HOME"))
	if err != nil {
		return nil, err
	}
	tomlFilePath := path.Join(snowflakeConfigDir, "connections.toml")
	err = validateFilePermission(tomlFilePath)
	if err != nil {
		return nil, err
	}
	tomlInfo := make(map[string]interface{})
	_, err = toml.DecodeFile(tomlFilePath, &tomlInfo)
	if err != nil {
		return nil, &SnowflakeError{
			Number:      ErrCodeTomlFileParsingFailed,
			Message:     errMsgFailedToParseTomlFile,
			MessageArgs: []interface{}{tomlFilePath, err},
		}
	}
	connectionName, exist := tomlInfo[dsn]
	if !exist {
		return nil, &SnowflakeError{
			Number:  ErrCodeFailedToFindDSNInToml,
			Message: errMsgFailedToFindDSNInTomlFile,
		}
	}
	connectionConfig, ok := connectionName.(map[string]interface{})
	if !ok {
		return nil, &SnowflakeError{
			Number:      ErrCodeTomlFileParsingFailed,
			Message:     errMsgFailedToParseTomlFile,
			MessageArgs: []interface{}{dsn, connectionName},
		}
	}
	err = parseToml(cfg, connectionConfig)
	if err != nil {
		return nil, err
	}
	return cfg, err
}

func parseToml(cfg *Config, connection map[string]interface{}) error {
	var parsingErr error
	var vv bool
	err := &SnowflakeError{
		Number:  ErrCodeTomlFileParsingFailed,
		Message: errMsgFailedToParseTomlFile,
	}
	for key, value := range connection {
		switch strings.ToLower(key) {
		case "user", "username":
			cfg.User, parsingErr = parseString(value)
			if parsingErr != nil {
				err.MessageArgs = []interface{}{key, value}
				return err
			}
		case "password":
			cfg.Password, parsingErr = parseString(value)
			if parsingErr != nil {
				err.MessageArgs = []interface{}{key, value}
				return err
			}
		case "host":
			cfg.Host, parsingErr = parseString(value)
			if parsingErr != nil {
				err.MessageArgs = []interface{}{key, value}
				return err
			}
		case "account":
			cfg.Account, parsingErr = parseString(value)
			if parsingErr != nil {
				err.MessageArgs = []interface{}{key, value}
				return err
			}
		case "warehouse":
			cfg.Warehouse, parsingErr = parseString(value)
			if parsingErr != nil {
				err.MessageArgs = []interface{}{key, value}
				return err
			}
		case "database":
			cfg.Database, parsingErr = parseString(value)
			if parsingErr != nil {
				err.MessageArgs = []interface{}{key, value}
				return err
			}
		case "schema":
			cfg.Schema, parsingErr = parseString(value)
			if parsingErr != nil {
				err.MessageArgs = []interface{}{key, value}
				return err
			}
		case "role":
			cfg.Role, parsingErr = parseString(value)
			if parsingErr != nil {
				err.MessageArgs = []interface{}{key, value}
				return err
			}
		case "protocol":
			cfg.Protocol, parsingErr = parseString(value)
			if parsingErr != nil {
				err.MessageArgs = []interface{}{key, value}
				return err
			}
		case "port":
			if cfg.Port, parsingErr = parseInt(value); parsingErr != nil {
				err.MessageArgs = []interface{}{key, value}
				return err
			}
		case "requesttimeout":
			if cfg.RequestTimeout, parsingErr = parseDuration(value); parsingErr != nil {
				err.MessageArgs = []interface{}{key, value}
				return err
			}
		case "ocspfailopen":
			if vv, parsingErr = parseBool(value); parsingErr != nil {
				err.MessageArgs = []interface{}{key, value}
				return err
			}
			if vv {
				cfg.OCSPFailOpen = OCSPFailOpenTrue
			} else {
				cfg.OCSPFailOpen = OCSPFailOpenFalse
			}
		case "resultcolumncaseinsensitive":
			if vv, parsingErr = parseBool(value); parsingErr != nil {
				err.MessageArgs = []interface{}{key, value}
				return err
			}
			cfg.ResultColumnCaseInsensitive = vv
		default:
			// everything else is a session parameter. Parameter names are
			// matched lowercase throughout.
			param, parsingErr := parseString(value)
			if parsingErr != nil {
				err.MessageArgs = []interface{}{key, value}
				return err
			}
			cfg.Params[strings.ToLower(key)] = &param
		}
	}
	return nil
}

func parseInt(i interface{}) (int, error) {
	if v, ok := i.(string); ok {
		return strconv.Atoi(v)
	}
	if num, ok := i.(int); ok {
		return num, nil
	}
	if num, ok := i.(int64); ok {
		return int(num), nil
	}
	return 0, errors.New("failed to parse the value to integer")
}

func parseBool(i interface{}) (bool, error) {
	v, ok := i.(string)
	if !ok {
		if vv, ok := i.(bool); ok {
			return vv, nil
		}
		return false, errors.New("failed to parse the value to boolean")
	}
	vv, err := strconv.ParseBool(v)
	if err != nil {
		return false, errors.New("failed to parse the value to boolean")
	}
	return vv, nil
}

func parseDuration(i interface{}) (time.Duration, error) {
	v, ok := i.(string)
	if !ok {
		num, err := parseInt(i)
		if err != nil {
			return time.Duration(0), err
		}
		t := int64(num)
		return time.Duration(t * int64(time.Second)), nil
	}
	t, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Duration(0), err
	}
	return time.Duration(t * int64(time.Second)), nil
}

func parseString(i interface{}) (string, error) {
	v, ok := i.(string)
	if !ok {
		return "", errors.New("failed to convert the value to string")
	}
	return v, nil
}

func getTomlFilePath(filePath string) (string, error) {
	if len(filePath) != 0 {
		if path.IsAbs(filePath) {
			return filePath, nil
		}
	} else {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		filePath = path.Join(homeDir, "snowflake")
	}
	absDir, err := path.Abs(filePath)
	if err != nil {
		return "", err
	}
	return absDir, nil
}

func getConnectionDSN(dsn string) string {
	if len(dsn) != 0 {
		return dsn
	}
	return "default"
}

func validateFilePermission(filePath string) error {
	if isWindows {
		return nil
	}
	fileInfo, err := os.Stat(filePath)
	if err != nil {
		return err
	}
	if permission := fileInfo.Mode().Perm(); permission != os.FileMode(0600) {
		return &SnowflakeError{
			Number:  ErrCodeInvalidFilePermission,
			Message: errMsgInvalidPermissionToTomlFile,
		}
	}
	return nil
}
