package config

import (
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/intercoop/icnnode/src/common"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

// Default filenames and directories, relative to DataDir.
const (
	// DefaultKeyfile is the default name of the file containing the node's
	// private key.
	DefaultKeyfile = "priv_key"

	// DefaultPubKeyfile is the default name of the file containing the
	// node's public key in hex.
	DefaultPubKeyfile = "key.pub"

	// DefaultStateFile is the name of the persisted node state document.
	DefaultStateFile = "state.json"

	// DefaultPeersFile is the default name of the optional peers file.
	DefaultPeersFile = "peers.yaml"

	// DefaultIndexDir is the default name of the folder containing the
	// Badger vertex index.
	DefaultIndexDir = "badger_db"

	// DefaultLockFile is the name of the file locked by the process owning
	// the data directory.
	DefaultLockFile = "node.lock"

	QueueDirName    = "queue"
	ExecutedDirName = "executed"
	LogsDirName     = "logs"
	OutputDirName   = "output"
	StorageDirName  = "storage"
	BackupDirName   = "state/backups"
	DagLogName      = "dag.log"
	RejectedLogName = "rejected.log"
	NodeLogName     = "node.log"
)

// Default configuration values.
const (
	DefaultLogLevel     = "info"
	DefaultInterval     = 30 * time.Second
	DefaultPollInterval = 5 * time.Second
	DefaultProbeTimeout = 5 * time.Second
	DefaultServiceAddr  = "127.0.0.1:26657"
	DefaultNoService    = false
	DefaultStore        = false
	DefaultEngine       = "covm"
	DefaultMaxExec      = 20
)

// Config contains all the configuration properties of a cooperative node.
type Config struct {
	// DataDir is the top-level directory containing the state document, the
	// proposal queue, the archives and the logs.
	DataDir string `mapstructure:"datadir"`

	// LogLevel determines the chattiness of the log output.
	LogLevel string `mapstructure:"log"`

	// Interval is the period of the full queue sweep performed by the daemon.
	Interval time.Duration `mapstructure:"interval"`

	// PollInterval is the period at which the ledger length is compared to
	// detect new vertices.
	PollInterval time.Duration `mapstructure:"poll"`

	// ProbeTimeout bounds every federation health probe and push.
	ProbeTimeout time.Duration `mapstructure:"probe-timeout"`

	// ServiceAddr is the address:port of the HTTP query and ingestion
	// service.
	ServiceAddr string `mapstructure:"service-listen"`

	// NoService disables the HTTP service.
	NoService bool `mapstructure:"no-service"`

	// Store activates the Badger vertex index. When false, the index lives in
	// memory and is rebuilt from the state document on start.
	Store bool `mapstructure:"store"`

	// Engine is the path of the proposal execution engine binary.
	Engine string `mapstructure:"engine"`

	// PeersFile is an optional YAML or JSON file listing federation peers,
	// merged with the peers of the state document.
	PeersFile string `mapstructure:"peers-file"`

	// PeerScript is an optional executable printing the federation config as
	// JSON when called with --json.
	PeerScript string `mapstructure:"peer-script"`

	// MaxExec caps the number of detached executions running at once.
	MaxExec int `mapstructure:"max-exec"`

	logger *logrus.Logger
}

// NewDefaultConfig returns a config object with default values.
func NewDefaultConfig() *Config {
	return &Config{
		DataDir:      DefaultDataDir(),
		LogLevel:     DefaultLogLevel,
		Interval:     DefaultInterval,
		PollInterval: DefaultPollInterval,
		ProbeTimeout: DefaultProbeTimeout,
		ServiceAddr:  DefaultServiceAddr,
		NoService:    DefaultNoService,
		Store:        DefaultStore,
		Engine:       DefaultEngine,
		MaxExec:      DefaultMaxExec,
	}
}

// NewTestConfig returns a config rooted in a temporary directory, with a
// logger that writes through t.Log.
func NewTestConfig(t testing.TB) *Config {
	conf := NewDefaultConfig()
	conf.DataDir = t.TempDir()
	conf.PollInterval = 20 * time.Millisecond
	conf.Interval = 50 * time.Millisecond
	conf.ProbeTimeout = time.Second
	conf.logger = common.NewTestLogger(t, logrus.DebugLevel)
	return conf
}

// SetLogger overrides the logger returned by Logger.
func (c *Config) SetLogger(logger *logrus.Logger) {
	c.logger = logger
}

// BaseLogger returns the underlying logrus Logger, creating it on first use.
func (c *Config) BaseLogger() *logrus.Logger {
	if c.logger == nil {
		c.logger = logrus.New()
		c.logger.Level = LogLevel(c.LogLevel)
		c.logger.Formatter = new(prefixed.TextFormatter)
	}
	return c.logger
}

// Logger returns a formatted logrus Entry, with prefix set to "icn".
func (c *Config) Logger() *logrus.Entry {
	return c.BaseLogger().WithField("prefix", "icn")
}

// StateFile returns the full path of the persisted state document.
func (c *Config) StateFile() string {
	return filepath.Join(c.DataDir, DefaultStateFile)
}

// BackupDir returns the directory receiving state backups.
func (c *Config) BackupDir() string {
	return filepath.Join(c.DataDir, BackupDirName)
}

// QueueDir returns the proposal queue directory.
func (c *Config) QueueDir() string {
	return filepath.Join(c.DataDir, QueueDirName)
}

// ExecutedDir returns the archive of completed proposals.
func (c *Config) ExecutedDir() string {
	return filepath.Join(c.DataDir, ExecutedDirName)
}

// LogsDir returns the directory of the human-readable audit trails.
func (c *Config) LogsDir() string {
	return filepath.Join(c.DataDir, LogsDirName)
}

// DagLog returns the path of the vertex audit log.
func (c *Config) DagLog() string {
	return filepath.Join(c.LogsDir(), DagLogName)
}

// RejectedLog returns the path of the rejection log.
func (c *Config) RejectedLog() string {
	return filepath.Join(c.LogsDir(), RejectedLogName)
}

// NodeLog returns the path of the daemon log file.
func (c *Config) NodeLog() string {
	return filepath.Join(c.LogsDir(), NodeLogName)
}

// OutputDir returns the directory receiving execution results.
func (c *Config) OutputDir() string {
	return filepath.Join(c.DataDir, OutputDirName)
}

// StorageDir returns the persistent storage handed to the engine.
func (c *Config) StorageDir() string {
	return filepath.Join(c.DataDir, StorageDirName)
}

// IndexDir returns the Badger vertex index directory.
func (c *Config) IndexDir() string {
	return filepath.Join(c.DataDir, DefaultIndexDir)
}

// Keyfile returns the full path of the file containing the private key.
func (c *Config) Keyfile() string {
	return filepath.Join(c.DataDir, DefaultKeyfile)
}

// PubKeyfile returns the full path of the file containing the public key.
func (c *Config) PubKeyfile() string {
	return filepath.Join(c.DataDir, DefaultPubKeyfile)
}

// LockFile returns the full path of the data directory lock file.
func (c *Config) LockFile() string {
	return filepath.Join(c.DataDir, DefaultLockFile)
}

// PeersFilePath returns PeersFile, or the default peers file in DataDir.
func (c *Config) PeersFilePath() string {
	if c.PeersFile != "" {
		return c.PeersFile
	}
	return filepath.Join(c.DataDir, DefaultPeersFile)
}

// Dirs lists every directory the node writes to.
func (c *Config) Dirs() []string {
	return []string{
		c.DataDir,
		c.BackupDir(),
		c.QueueDir(),
		c.ExecutedDir(),
		c.LogsDir(),
		c.OutputDir(),
		c.StorageDir(),
	}
}

// EnsureDirs creates the directory layout. Failing here is fatal at startup.
func (c *Config) EnsureDirs() error {
	if c.DataDir == "" {
		return common.NewErr(common.Config, "Could not determine data directory")
	}
	for _, d := range c.Dirs() {
		if err := os.MkdirAll(d, 0755); err != nil {
			return common.WrapErr(common.Io, err, "Failed to create %s", d)
		}
	}
	return nil
}

// DefaultDataDir return the default directory name for the node data based on
// the underlying OS, attempting to respect conventions.
func DefaultDataDir() string {
	home := HomeDir()
	if home != "" {
		if runtime.GOOS == "windows" {
			return filepath.Join(home, "AppData", "Roaming", "ICN")
		}
		return filepath.Join(home, ".icn")
	}
	// As we cannot guess a stable location, return empty and handle later
	return ""
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

// LogLevel parses a string into a Logrus log level.
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
		return logrus.InfoLevel
	}
}
