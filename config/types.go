package config

import "time"

// AuthConfig controls bearer-token authentication of ledger callers. The
// token's subject is the caller address. Authentication is on unless Disabled.
type AuthConfig struct {
	Disabled       bool          `toml:"Disabled" yaml:"disabled"`
	HMACSecret     string        `toml:"HMACSecret" yaml:"hmacSecret"`
	Issuer         string        `toml:"Issuer" yaml:"issuer"`
	Audience       string        `toml:"Audience" yaml:"audience"`
	AllowAnonymous bool          `toml:"AllowAnonymous" yaml:"allowAnonymous"`
	ClockSkew      time.Duration `toml:"ClockSkew" yaml:"clockSkew"`
}

// RateLimitConfig bounds requests per client IP.
type RateLimitConfig struct {
	RequestsPerMinute float64 `toml:"RequestsPerMinute" yaml:"requestsPerMinute"`
	Burst             int     `toml:"Burst" yaml:"burst"`
}

// LogConfig selects the log level and optional rotating log file.
type LogConfig struct {
	Level      string `toml:"Level" yaml:"level"`
	File       string `toml:"File" yaml:"file"`
	MaxSizeMB  int    `toml:"MaxSizeMB" yaml:"maxSizeMB"`
	MaxBackups int    `toml:"MaxBackups" yaml:"maxBackups"`
}

// TelemetryConfig wires the OTLP exporters.
type TelemetryConfig struct {
	Endpoint string `toml:"Endpoint" yaml:"endpoint"`
	Insecure bool   `toml:"Insecure" yaml:"insecure"`
	Headers  string `toml:"Headers" yaml:"headers"`
	Metrics  bool   `toml:"Metrics" yaml:"metrics"`
	Traces   bool   `toml:"Traces" yaml:"traces"`
	// SampleRatio of root spans to record; 0 records all.
	SampleRatio float64 `toml:"SampleRatio" yaml:"sampleRatio"`
}

// IndexConfig enables the SQL receipt index. DSN is a postgres:// URL or a
// SQLite path; empty disables indexing.
type IndexConfig struct {
	DSN string `toml:"DSN" yaml:"dsn"`
}

// Quota defines per-caller submission limits.
type Quota struct {
	MaxRequestsPerEpoch uint32 `toml:"MaxRequestsPerEpoch" yaml:"maxRequestsPerEpoch"`
	EpochSeconds        uint32 `toml:"EpochSeconds" yaml:"epochSeconds"`
}

// GenesisIlk registers a collateral type. Amounts are decimal strings in
// whole units: Spot and Duty in ray, Line and Dust in rad.
type GenesisIlk struct {
	ID   string `toml:"ID" yaml:"id"`
	Spot string `toml:"Spot" yaml:"spot"`
	Line string `toml:"Line" yaml:"line"`
	Dust string `toml:"Dust" yaml:"dust"`
	Duty string `toml:"Duty" yaml:"duty"`
}

// Genesis seeds an empty ledger.
type Genesis struct {
	Line string       `toml:"Line" yaml:"line"`
	Vow  string       `toml:"Vow" yaml:"vow"`
	Ilks []GenesisIlk `toml:"Ilks" yaml:"ilks"`
}
