// Package config holds the smsync daemon configuration.
package config

import (
	"fmt"
	"time"
)

// Defaults for the sync pipeline. These mirror the values the pipeline was
// tuned with; all of them can be overridden through the environment.
const (
	DefaultPollInterval  = 3 * time.Minute
	DefaultOverlapMargin = 10 * time.Minute
	DefaultDedupCap      = 400
)

// CategoryRule maps a merchant keyword to an expense category.
// Rules are evaluated in order; the first matching keyword wins.
type CategoryRule struct {
	Keyword  string `json:"keyword"`
	Category string `json:"category"`
}

// Config holds the application configuration loaded from environment
// variables (and optionally a JSON config file).
type Config struct {
	// LedgerURL is the base URL of the remote ledger API.
	// Environment variable: SMSYNC_LEDGER_URL
	LedgerURL string `koanf:"SMSYNC_LEDGER_URL"`

	// LedgerToken is the bearer token for the remote ledger API.
	// Environment variable: SMSYNC_LEDGER_TOKEN
	LedgerToken string `koanf:"SMSYNC_LEDGER_TOKEN"`

	// StatePath is the SQLite file holding persisted sync state.
	// Environment variable: SMSYNC_STATE_PATH
	StatePath string `koanf:"SMSYNC_STATE_PATH"`

	// Source selects the message source adapter: "backupxml" or "mbox".
	// Environment variable: SMSYNC_SOURCE
	Source string `koanf:"SMSYNC_SOURCE"`

	// SourcePath is the message dump the source adapter reads.
	// Environment variable: SMSYNC_SOURCE_PATH
	SourcePath string `koanf:"SMSYNC_SOURCE_PATH"`

	// NotifyURL, when set, receives a webhook POST whenever new
	// transactions were created remotely.
	// Environment variable: SMSYNC_NOTIFY_URL
	NotifyURL string `koanf:"SMSYNC_NOTIFY_URL"`

	// PollIntervalSeconds overrides the recurring sync interval.
	// Environment variable: SMSYNC_POLL_INTERVAL_SECONDS
	PollIntervalSeconds int `koanf:"SMSYNC_POLL_INTERVAL_SECONDS"`

	// LogLevel is the minimum log level (DEBUG, INFO, WARN, ERROR).
	// Environment variable: SMSYNC_LOG_LEVEL
	LogLevel string `koanf:"SMSYNC_LOG_LEVEL"`

	// LogJSON enables JSON log output.
	// Environment variable: SMSYNC_LOG_JSON
	LogJSON bool `koanf:"SMSYNC_LOG_JSON"`

	// Senders and Categories are populated from embedded config files,
	// not environment variables. Senders is the bank/payment-provider
	// allow-list; Categories is the ordered keyword table.
	Senders    []string
	Categories []CategoryRule
}

// PollInterval returns the configured poll interval, or the default.
func (c Config) PollInterval() time.Duration {
	if c.PollIntervalSeconds > 0 {
		return time.Duration(c.PollIntervalSeconds) * time.Second
	}
	return DefaultPollInterval
}

// Validate checks the fields required to run the daemon.
func (c Config) Validate() error {
	if c.LedgerURL == "" {
		return fmt.Errorf("SMSYNC_LEDGER_URL environment variable is required")
	}
	if c.StatePath == "" {
		return fmt.Errorf("SMSYNC_STATE_PATH environment variable is required")
	}
	switch c.Source {
	case "backupxml", "mbox":
	case "":
		return fmt.Errorf("SMSYNC_SOURCE environment variable is required")
	default:
		return fmt.Errorf("unknown source %q (expected backupxml or mbox)", c.Source)
	}
	if c.SourcePath == "" {
		return fmt.Errorf("SMSYNC_SOURCE_PATH environment variable is required")
	}
	return nil
}
