package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/intercoop/icnnode/src/config"
	"github.com/intercoop/icnnode/src/icn"
	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

var _config = config.NewDefaultConfig()

// RootCmd is the root command of the node.
var RootCmd = &cobra.Command{
	Use:               "icn-node",
	Short:             "Cooperative network node",
	SilenceUsage:      true,
	SilenceErrors:     true,
	TraverseChildren:  true,
	PersistentPreRunE: loadConfig,
}

func init() {
	flags := RootCmd.PersistentFlags()

	flags.StringP("datadir", "d", _config.DataDir, "Top-level directory for configuration and data")
	flags.String("log", _config.LogLevel, "debug, info, warn, error, fatal, panic")

	// Engine
	flags.String("engine", _config.Engine, "Path of the proposal engine binary, or \"inmem\" for the built-in engine")
	flags.Int("max-exec", _config.MaxExec, "Max number of executions started by the watcher at once")

	// Store
	flags.Bool("store", _config.Store, "Use badgerDB for the vertex index instead of memory")

	// Federation
	flags.String("peers-file", _config.PeersFile, "YAML or JSON file listing federation peers")
	flags.String("peer-script", _config.PeerScript, "Executable printing the federation config with --json")
	flags.Duration("probe-timeout", _config.ProbeTimeout, "Timeout of peer health probes and pushes")
}

func loadConfig(cmd *cobra.Command, args []string) error {
	if err := bindFlagsLoadViper(cmd); err != nil {
		return err
	}

	if err := initLogger(); err != nil {
		return err
	}

	_config.Logger().WithFields(logrus.Fields{
		"DataDir":      _config.DataDir,
		"LogLevel":     _config.LogLevel,
		"Interval":     _config.Interval,
		"PollInterval": _config.PollInterval,
		"ProbeTimeout": _config.ProbeTimeout,
		"ServiceAddr":  _config.ServiceAddr,
		"NoService":    _config.NoService,
		"Store":        _config.Store,
		"Engine":       _config.Engine,
		"PeersFile":    _config.PeersFile,
		"PeerScript":   _config.PeerScript,
		"MaxExec":      _config.MaxExec,
	}).Debug("Config")

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

	// look for config file in [datadir]/icn.toml (.json, .yaml also work)
	viper.SetConfigName("icn")
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

// initLogger sets the console logger and mirrors every entry to
// logs/node.log as JSON.
func initLogger() error {
	if err := os.MkdirAll(_config.LogsDir(), 0755); err != nil {
		return err
	}

	logger := logrus.New()
	logger.Level = config.LogLevel(_config.LogLevel)
	logger.Formatter = new(prefixed.TextFormatter)

	logger.AddHook(lfshook.NewHook(lfshook.PathMap{
		logrus.DebugLevel: _config.NodeLog(),
		logrus.InfoLevel:  _config.NodeLog(),
		logrus.WarnLevel:  _config.NodeLog(),
		logrus.ErrorLevel: _config.NodeLog(),
		logrus.FatalLevel: _config.NodeLog(),
		logrus.PanicLevel: _config.NodeLog(),
	}, &logrus.JSONFormatter{}))

	_config.SetLogger(logger)

	return nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// initNode creates and initializes a node from the loaded config. It holds
// the data directory until closed.
func initNode() (*icn.Node, error) {
	node := icn.NewNode(_config)

	if err := node.Init(); err != nil {
		_config.Logger().WithError(err).Error("Cannot initialize node")
		return nil, err
	}

	return node, nil
}

// initReadOnlyNode opens the data directory for inspection. It works while
// another process runs the node.
func initReadOnlyNode() (*icn.Node, error) {
	node := icn.NewNode(_config)

	if err := node.InitReadOnly(); err != nil {
		_config.Logger().WithError(err).Error("Cannot open node")
		return nil, err
	}

	return node, nil
}
