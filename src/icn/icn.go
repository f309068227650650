package icn

import (
	"context"
	"io/ioutil"
	"os"

	"github.com/intercoop/icnnode/src/common"
	"github.com/intercoop/icnnode/src/config"
	"github.com/intercoop/icnnode/src/crypto/keys"
	"github.com/intercoop/icnnode/src/dag"
	"github.com/intercoop/icnnode/src/engine"
	"github.com/intercoop/icnnode/src/executor"
	"github.com/intercoop/icnnode/src/federation"
	"github.com/intercoop/icnnode/src/queue"
	"github.com/intercoop/icnnode/src/service"
	"github.com/intercoop/icnnode/src/state"
	"github.com/intercoop/icnnode/src/watch"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// InmemEngine is the value of Config.Engine selecting the built-in engine,
// which accepts every proposal.
const InmemEngine = "inmem"

// Node assembles the components of a cooperative node.
type Node struct {
	Config      *config.Config
	State       *state.Manager
	Store       *queue.Store
	Index       dag.Index
	Ledger      *dag.Ledger
	Engine      engine.Engine
	Key         *keys.Key
	Directory   federation.Directory
	Broadcaster *federation.Broadcaster
	Coordinator *executor.Coordinator
	Dispatcher  *executor.Dispatcher
	Daemon      *watch.Daemon
	Loop        *watch.Loop
	Service     *service.Service

	lock   *dirLock
	logger *logrus.Entry
}

// NewNode creates a Node. Init must be called before use.
func NewNode(conf *config.Config) *Node {
	return &Node{
		Config: conf,
		logger: conf.Logger(),
	}
}

func (n *Node) initState() error {
	if err := n.Config.EnsureDirs(); err != nil {
		return err
	}

	lock, err := lockDataDir(n.Config.LockFile())
	if err != nil {
		return err
	}
	n.lock = lock

	n.State = state.NewManager(n.Config.StateFile(), n.Config.BackupDir(), n.logger)

	return n.State.Load()
}

func (n *Node) initStore() error {
	n.Store = queue.NewStore(n.Config.QueueDir(), n.Config.ExecutedDir(), n.Config.RejectedLog(), n.logger)

	return n.Store.Init()
}

func (n *Node) initLedger() error {
	if !n.Config.Store {
		n.Index = dag.NewInmemIndex()

		n.logger.Debug("created new in-mem vertex index")
	} else {
		n.logger.WithField("path", n.Config.IndexDir()).Debug("Attempting to load or create vertex index")

		index, err := dag.NewBadgerIndex(n.Config.IndexDir(), n.logger)
		if err != nil {
			return err
		}
		n.Index = index
	}

	n.Ledger = dag.NewLedger(n.State, n.Index, n.Config.DagLog(), n.logger)

	return n.Ledger.Sync()
}

func (n *Node) initKey() error {
	keyfile := keys.NewKeyfile(n.Config.Keyfile())
	if !keyfile.Exists() {
		n.logger.Warn("No node key, vertices will be broadcast unsigned. Run keygen to create one.")
		return nil
	}

	key, err := keyfile.ReadKey()
	if err != nil {
		return common.WrapErr(common.Config, err, "Cannot read node key")
	}
	n.Key = key

	return nil
}

func (n *Node) initEngine() error {
	switch n.Config.Engine {
	case "":
		return common.NewErr(common.Config, "No engine configured")
	case InmemEngine:
		n.Engine = engine.NewInmemEngine(engine.FuncHandler{}, n.logger)
	default:
		n.Engine = engine.NewProcessEngine(n.Config.Engine, n.logger)
	}

	n.logger.WithField("engine", n.Config.Engine).Debug("Selected engine")

	return nil
}

func (n *Node) initFederation() error {
	dirs := []federation.Directory{
		federation.NewStateDirectory(n.State),
		federation.NewFileDirectory(n.Config.PeersFilePath()),
	}
	if n.Config.PeerScript != "" {
		dirs = append(dirs, federation.NewScriptDirectory(n.Config.PeerScript, n.logger))
	}
	n.Directory = federation.NewMultiDirectory(n.logger, dirs...)

	nodeID, err := n.State.NodeID()
	if err != nil {
		return err
	}

	n.Broadcaster = federation.NewBroadcaster(n.Directory, federation.NewClient(n.Config.ProbeTimeout), n.logger)
	n.Broadcaster.SetIdentity(nodeID, n.Key)

	return nil
}

func (n *Node) initExecutor() error {
	n.Coordinator = executor.NewCoordinator(
		n.Config,
		n.Store,
		n.Ledger,
		n.State,
		n.Engine,
		n.Broadcaster,
		n.logger,
	)

	n.Dispatcher = executor.NewDispatcher(n.Coordinator, n.logger)

	return n.Coordinator.Recover()
}

func (n *Node) initWatch() error {
	n.Daemon = watch.NewDaemon(n.Dispatcher, n.Config.Interval, n.logger)

	n.Loop = watch.NewLoop(
		watch.NewQueueWatcher(n.Config.QueueDir(), n.logger),
		watch.NewDagPoller(n.Ledger, n.Config.PollInterval, n.logger),
		n.Dispatcher,
		n.Config.MaxExec,
		n.logger,
	)
	n.Loop.OnSaturated = n.Daemon.Trigger

	return nil
}

func (n *Node) initService() error {
	if !n.Config.NoService && n.Config.ServiceAddr != "" {
		n.Service = service.NewService(
			n.Config.ServiceAddr,
			n.State,
			n.Store,
			n.Ledger,
			n.Directory,
			n.Broadcaster,
			n.logger,
		)
	}
	return nil
}

// Init locks the data directory, creates the directory layout, loads the
// state document and wires the components. Proposals interrupted by a
// previous crash are recovered. It fails with a Config error if another
// process holds the data directory. On failure the lock is released.
func (n *Node) Init() (err error) {
	defer func() {
		if err != nil {
			n.Close()
		}
	}()

	if err := n.initState(); err != nil {
		return err
	}

	if err := n.initStore(); err != nil {
		return err
	}

	if err := n.initLedger(); err != nil {
		return err
	}

	if err := n.initKey(); err != nil {
		return err
	}

	if err := n.initEngine(); err != nil {
		return err
	}

	if err := n.initFederation(); err != nil {
		return err
	}

	if err := n.initExecutor(); err != nil {
		return err
	}

	if err := n.initWatch(); err != nil {
		return err
	}

	if err := n.initService(); err != nil {
		return err
	}

	n.logger.WithFields(logrus.Fields{
		"datadir": n.Config.DataDir,
		"store":   n.Config.Store,
		"service": n.Service != nil,
	}).Info("Node initialized")

	return nil
}

// InitReadOnly wires the components needed to inspect a data directory that
// another process may own: state, queue, ledger and engine. It takes no lock,
// writes nothing and skips recovery. The node can read the ledger and trace
// proposals; Dispatcher, Daemon, Loop and Service stay nil.
func (n *Node) InitReadOnly() error {
	n.State = state.NewManager(n.Config.StateFile(), n.Config.BackupDir(), n.logger)
	if err := n.State.LoadReadOnly(); err != nil {
		return err
	}

	n.Store = queue.NewStore(n.Config.QueueDir(), n.Config.ExecutedDir(), n.Config.RejectedLog(), n.logger)
	if err := n.Store.Rescan(); err != nil {
		return err
	}

	n.Index = dag.NewInmemIndex()
	n.Ledger = dag.NewLedger(n.State, n.Index, n.Config.DagLog(), n.logger)
	if err := n.Ledger.Sync(); err != nil {
		return err
	}

	if err := n.initEngine(); err != nil {
		return err
	}

	n.Coordinator = executor.NewCoordinator(
		n.Config,
		n.Store,
		n.Ledger,
		n.State,
		n.Engine,
		nil,
		n.logger,
	)

	n.logger.WithField("datadir", n.Config.DataDir).Debug("Node opened read-only")

	return nil
}

// Run starts the sweep daemon, the watch loop and the service, and blocks
// until ctx is cancelled or one of them fails.
func (n *Node) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	if n.Service != nil {
		g.Go(func() error { return n.Service.Serve(gctx) })
	}
	g.Go(func() error { return n.Daemon.Run(gctx) })
	g.Go(func() error { return n.Loop.Run(gctx) })

	return g.Wait()
}

// Watch runs the watch loop alone, calling onEvent for every event, until
// ctx is cancelled.
func (n *Node) Watch(ctx context.Context, onEvent watch.Handler) error {
	n.Loop.OnEvent = onEvent
	n.Loop.OnSaturated = nil
	return n.Loop.Run(ctx)
}

// Close releases the vertex index and the data directory lock.
func (n *Node) Close() error {
	var err error
	if n.Index != nil {
		err = n.Index.Close()
		n.Index = nil
	}
	if lerr := n.lock.release(); lerr != nil && err == nil {
		err = lerr
	}
	n.lock = nil
	return err
}

// OpenState locks the data directory and loads the state document, for
// edits made without running a node. release frees the lock.
func OpenState(conf *config.Config) (mgr *state.Manager, release func() error, err error) {
	if err := conf.EnsureDirs(); err != nil {
		return nil, nil, err
	}

	lock, err := lockDataDir(conf.LockFile())
	if err != nil {
		return nil, nil, err
	}

	mgr = state.NewManager(conf.StateFile(), conf.BackupDir(), conf.Logger())
	if err := mgr.Load(); err != nil {
		lock.release()
		return nil, nil, err
	}

	return mgr, lock.release, nil
}

// Keygen creates the node key and writes its public half next to it. It
// refuses to overwrite an existing key.
func Keygen(conf *config.Config) (*keys.Key, error) {
	keyfile := keys.NewKeyfile(conf.Keyfile())

	if keyfile.Exists() {
		return nil, common.NewErr(common.Config, "Another key already lives under %s", conf.DataDir)
	}

	key, err := keys.GenerateKey()
	if err != nil {
		return nil, common.WrapErr(common.Config, err, "Failed to generate key")
	}

	if err := keyfile.WriteKey(key); err != nil {
		return nil, common.WrapErr(common.Io, err, "Failed to write key")
	}

	if err := ioutil.WriteFile(conf.PubKeyfile(), []byte(key.PublicHex()), 0644); err != nil {
		os.Remove(conf.Keyfile())
		return nil, common.WrapErr(common.Io, err, "Failed to write public key")
	}

	return key, nil
}
