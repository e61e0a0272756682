// Package config holds the configuration of a CarryChain node.
package config

import (
	"crypto/ecdsa"
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/Osiyomeoh/carrychain/src/common"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

// Default filenames.
const (
	// DefaultKeyfile is the default name of the file containing the operator's
	// private key
	DefaultKeyfile = "priv_key"

	// DefaultBadgerFile is the default name of the folder containing the
	// Badger databases
	DefaultBadgerFile = "badger_db"

	// DefaultGenesisFile is the default name of the file containing the
	// genesis token allocations
	DefaultGenesisFile = "genesis.json"
)

// Default configuration values.
const (
	DefaultLogLevel           = "debug"
	DefaultServiceAddr        = "127.0.0.1:8000"
	DefaultStore              = false
	DefaultTokenName          = "USD Coin"
	DefaultTokenSymbol        = "USDC"
	DefaultTokenDecimals      = 6
	DefaultPlatformFeePercent = 5
)

// Config contains all the configuration properties of a CarryChain node.
type Config struct {
	// DataDir is the top-level directory containing CarryChain configuration
	// and data
	DataDir string `mapstructure:"datadir"`

	// LogLevel determines the chattiness of the log output.
	LogLevel string `mapstructure:"log"`

	// ServiceAddr is the address:port of the HTTP API service.
	ServiceAddr string `mapstructure:"service-listen"`

	// NoService disables the HTTP API service.
	NoService bool `mapstructure:"no-service"`

	// Store activates persistent storage.
	Store bool `mapstructure:"store"`

	// DatabaseDir is the directory containing database files.
	DatabaseDir string `mapstructure:"db"`

	// TokenName is the display name of the escrow stablecoin.
	TokenName string `mapstructure:"token-name"`

	// TokenSymbol is the symbol of the escrow stablecoin.
	TokenSymbol string `mapstructure:"token-symbol"`

	// TokenDecimals is the number of decimal places of the escrow stablecoin's
	// smallest unit. USDC-like tokens use 6.
	TokenDecimals uint8 `mapstructure:"token-decimals"`

	// PlatformFeePercent is the marketplace's initial platform fee percentage.
	PlatformFeePercent int64 `mapstructure:"fee-percent"`

	// Key is the private key of the node operator. The derived address owns
	// the contracts.
	Key *ecdsa.PrivateKey

	logger *logrus.Logger
}

// NewDefaultConfig returns a config object with default values.
func NewDefaultConfig() *Config {
	config := &Config{
		DataDir:            DefaultDataDir(),
		LogLevel:           DefaultLogLevel,
		ServiceAddr:        DefaultServiceAddr,
		Store:              DefaultStore,
		DatabaseDir:        DefaultDatabaseDir(),
		TokenName:          DefaultTokenName,
		TokenSymbol:        DefaultTokenSymbol,
		TokenDecimals:      DefaultTokenDecimals,
		PlatformFeePercent: DefaultPlatformFeePercent,
	}

	return config
}

// NewTestConfig returns a config object with default values and a special
// logger for debugging tests.
func NewTestConfig(t testing.TB) *Config {
	config := NewDefaultConfig()
	config.logger = common.NewTestLogger(t)
	return config
}

// SetDataDir sets the top-level CarryChain directory, and updates the database
// directory if it is currently set to the default value. If the database
// directory is not currently the default, it means the user has explicitly set
// it to something else, so avoid changing it again here.
func (c *Config) SetDataDir(dataDir string) {
	c.DataDir = dataDir
	if c.DatabaseDir == DefaultDatabaseDir() {
		c.DatabaseDir = filepath.Join(dataDir, DefaultBadgerFile)
	}
}

// Keyfile returns the full path of the file containing the private key.
func (c *Config) Keyfile() string {
	return filepath.Join(c.DataDir, DefaultKeyfile)
}

// GenesisFile returns the full path of the file containing the genesis token
// allocations.
func (c *Config) GenesisFile() string {
	return filepath.Join(c.DataDir, DefaultGenesisFile)
}

// MarketplaceDBDir returns the directory of the marketplace's Badger database.
func (c *Config) MarketplaceDBDir() string {
	return filepath.Join(c.DatabaseDir, "marketplace")
}

// VerificationDBDir returns the directory of the verification registry's
// Badger database.
func (c *Config) VerificationDBDir() string {
	return filepath.Join(c.DatabaseDir, "verification")
}

// Logger returns a formatted logrus Entry that can be used for everything the
// node logs.
func (c *Config) Logger() *logrus.Entry {
	if c.logger == nil {
		c.logger = logrus.New()
		c.logger.Level = LogLevel(c.LogLevel)
		c.logger.Formatter = new(prefixed.TextFormatter)
	}
	return c.logger.WithField("prefix", "carrychain")
}

// DefaultDataDir tries to place the data folder in the user's home dir.
func DefaultDataDir() string {
	home := HomeDir()
	if home != "" {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, "Library", "CARRYCHAIN")
		} else if runtime.GOOS == "windows" {
			return filepath.Join(home, "AppData", "Roaming", "CARRYCHAIN")
		} else {
			return filepath.Join(home, ".carrychain")
		}
	}
	return ""
}

// DefaultDatabaseDir returns the default directory of the Badger databases.
func DefaultDatabaseDir() string {
	return filepath.Join(DefaultDataDir(), DefaultBadgerFile)
}

// HomeDir returns the user's home directory.
func HomeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}

// LogLevel parses a logrus level name, defaulting to debug.
func LogLevel(l string) logrus.Level {
	switch l {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.DebugLevel
	}
}
