// Copyright (c) 2017-2024 Snowflake Computing Inc. All rights reserved.

package gosnowflake

import (
	"fmt"
	"time"
)

// OCSPFailOpenMode is OCSP fail open mode. OCSPFailOpenTrue by default and may
// set to ocspModeFailClosed for fail closed mode
type OCSPFailOpenMode uint32

const (
	ocspFailOpenNotSet OCSPFailOpenMode = iota
	// OCSPFailOpenTrue represents OCSP fail open mode.
	OCSPFailOpenTrue
	// OCSPFailOpenFalse represents OCSP fail closed mode.
	OCSPFailOpenFalse
)

const (
	defaultProtocol       = "https"
	defaultPort           = 443
	defaultRequestTimeout = 0 * time.Second // 0 means no timeout
)

// Config is the connection configuration consumed when a result set
// serializable is created or rehydrated. It carries only what a sessionless
// worker needs: the endpoint, timeouts and the session parameter snapshot.
type Config struct {
	Account   string // Account name
	User      string // Username
	Password  string // Password (requires User)
	Database  string // Database name
	Schema    string // Schema
	Warehouse string // Warehouse
	Role      string // Role

	Protocol string // http or https (optional)
	Host     string // hostname (optional)
	Port     int    // port (optional)

	RequestTimeout time.Duration    // network timeout for result requests
	OCSPFailOpen   OCSPFailOpenMode // OCSP fail open or closed

	Params map[string]*string // session parameters

	ResultColumnCaseInsensitive bool // match result column names case insensitively
}

// SFSession exposes the session state a result set serializable snapshots at
// creation time. A live connection implements it; so does Config, so a
// sessionless worker can supply one built from a connections file.
type SFSession interface {
	OCSPMode() OCSPFailOpenMode
	ConnectionTarget() string
	NetworkTimeout() time.Duration
	IsResultColumnCaseInsensitive() bool
}

// SFStatement exposes the statement state a result set serializable snapshots
// at creation time: conservative memory overrides and result set flags.
type SFStatement interface {
	ConservativePrefetchThreads() int
	ConservativeMemoryLimit() int64
	ResultSetType() int
	ResultSetConcurrency() int
	ResultSetHoldability() int
}

// OCSPMode returns the OCSP fail open mode, defaulting to fail open.
func (cfg *Config) OCSPMode() OCSPFailOpenMode {
	if cfg.OCSPFailOpen == ocspFailOpenNotSet {
		return OCSPFailOpenTrue
	}
	return cfg.OCSPFailOpen
}

// ConnectionTarget returns the endpoint URL chunks and results are fetched
// relative to.
func (cfg *Config) ConnectionTarget() string {
	protocol := cfg.Protocol
	if protocol == "" {
		protocol = defaultProtocol
	}
	port := cfg.Port
	if port == 0 {
		port = defaultPort
	}
	return fmt.Sprintf("%s://%s:%d", protocol, cfg.Host, port)
}

// NetworkTimeout returns the request timeout applied to chunk downloads.
func (cfg *Config) NetworkTimeout() time.Duration {
	return cfg.RequestTimeout
}

// IsResultColumnCaseInsensitive reports whether result column names are
// matched case insensitively. Lookups are case sensitive unless explicitly
// enabled.
func (cfg *Config) IsResultColumnCaseInsensitive() bool {
	return cfg.ResultColumnCaseInsensitive
}

// statement defaults used when no originating statement is available, e.g.
// when a serializable is rebuilt by a worker that never ran the query.
const (
	defaultConservativePrefetchThreads = 1
	defaultConservativeMemoryLimit     = 128 * mb
)

type defaultStatementOptions struct{}

func (defaultStatementOptions) ConservativePrefetchThreads() int { return defaultConservativePrefetchThreads }
func (defaultStatementOptions) ConservativeMemoryLimit() int64   { return defaultConservativeMemoryLimit }
func (defaultStatementOptions) ResultSetType() int               { return 0 }
func (defaultStatementOptions) ResultSetConcurrency() int        { return 0 }
func (defaultStatementOptions) ResultSetHoldability() int        { return 0 }
