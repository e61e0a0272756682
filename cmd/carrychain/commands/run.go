package commands

import (
	"os"

	"github.com/Osiyomeoh/carrychain/src/carrychain"
	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

//NewRunCmd returns the command that starts a CarryChain node
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Run node",
		PreRunE: loadConfig,
		RunE:    runCarryChain,
	}
	AddRunFlags(cmd)
	return cmd
}

/*******************************************************************************
* RUN
*******************************************************************************/

func runCarryChain(cmd *cobra.Command, args []string) error {
	engine := carrychain.NewCarryChain(_config)

	if err := engine.Init(); err != nil {
		_config.Logger().Error("Cannot initialize engine:", err)
		return err
	}

	defer engine.Shutdown()

	engine.Run()

	return nil
}

/*******************************************************************************
* CONFIG
*******************************************************************************/

//AddRunFlags adds flags to the Run command
func AddRunFlags(cmd *cobra.Command) {

	cmd.Flags().String("datadir", _config.DataDir, "Top-level directory for configuration and data")
	cmd.Flags().String("log", _config.LogLevel, "debug, info, warn, error, fatal, panic")

	// Service
	cmd.Flags().StringP("service-listen", "s", _config.ServiceAddr, "Listen IP:Port for HTTP service")
	cmd.Flags().Bool("no-service", _config.NoService, "Do not start the HTTP service")

	// Store
	cmd.Flags().Bool("store", _config.Store, "Use badgerDB instead of in-mem DB")
	cmd.Flags().String("db", _config.DatabaseDir, "Database directory")

	// Contracts
	cmd.Flags().String("token-name", _config.TokenName, "Display name of the escrow stablecoin")
	cmd.Flags().String("token-symbol", _config.TokenSymbol, "Symbol of the escrow stablecoin")
	cmd.Flags().Uint8("token-decimals", _config.TokenDecimals, "Decimal places of the escrow stablecoin")
	cmd.Flags().Int64("fee-percent", _config.PlatformFeePercent, "Initial platform fee percentage")
}

func loadConfig(cmd *cobra.Command, args []string) error {

	if err := bindFlagsLoadViper(cmd); err != nil {
		return err
	}

	// If --datadir was explicitely set, but not --db, this will update the
	// default database dir to be inside the new datadir
	_config.SetDataDir(_config.DataDir)

	_config.Logger().Logger.Hooks.Add(fileHook(_config.Logger().Logger))

	_config.Logger().WithFields(logrus.Fields{
		"DataDir":            _config.DataDir,
		"LogLevel":           _config.LogLevel,
		"ServiceAddr":        _config.ServiceAddr,
		"NoService":          _config.NoService,
		"Store":              _config.Store,
		"DatabaseDir":        _config.DatabaseDir,
		"TokenName":          _config.TokenName,
		"TokenSymbol":        _config.TokenSymbol,
		"TokenDecimals":      _config.TokenDecimals,
		"PlatformFeePercent": _config.PlatformFeePercent,
	}).Debug("RUN")

	return nil
}

// Bind all flags and read the config into viper
func bindFlagsLoadViper(cmd *cobra.Command) error {
	// Register flags with viper. Include flags from this command and all other
	// persistent flags from the parent
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// first unmarshal to read from CLI flags
	if err := viper.Unmarshal(_config); err != nil {
		return err
	}

	// look for config file in [datadir]/carrychain.toml (.json, .yaml also work)
	viper.SetConfigName("carrychain")
	viper.AddConfigPath(_config.DataDir)

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		_config.Logger().Debugf("Using config file: %s", viper.ConfigFileUsed())
	} else if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		_config.Logger().Debugf("No config file found in: %s", _config.DataDir)
	} else {
		return err
	}

	// second unmarshal to read from config file
	return viper.Unmarshal(_config)
}

func fileHook(logger *logrus.Logger) logrus.Hook {
	pathMap := lfshook.PathMap{}

	if _, err := os.OpenFile("carrychain_info.log", os.O_CREATE|os.O_WRONLY, 0666); err != nil {
		logger.Info("Failed to open carrychain_info.log file, using default stderr")
	} else {
		pathMap[logrus.InfoLevel] = "carrychain_info.log"
	}

	if _, err := os.OpenFile("carrychain_debug.log", os.O_CREATE|os.O_WRONLY, 0666); err != nil {
		logger.Info("Failed to open carrychain_debug.log file, using default stderr")
	} else {
		pathMap[logrus.DebugLevel] = "carrychain_debug.log"
	}

	return lfshook.NewHook(pathMap, &logrus.TextFormatter{})
}
