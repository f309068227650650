package state

import (
	"bytes"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/intercoop/icnnode/src/common"
	"github.com/intercoop/icnnode/src/version"
	"github.com/sirupsen/logrus"
	"github.com/ugorji/go/codec"
)

const (
	backupPrefix = "state_"
	backupSuffix = ".json"
	backupLayout = "20060102_150405.000000000"

	// DefaultMaxBackups is the number of backups kept in the backup directory.
	DefaultMaxBackups = 100
)

// Manager is the single owner of the NodeState document. It is constructed
// once at process start and handed to every component that needs the state.
type Manager struct {
	l sync.Mutex

	doc       *NodeState
	loaded    bool
	readOnly  bool
	path      string
	backupDir string

	// MaxBackups bounds the backup directory. Zero keeps every backup.
	MaxBackups int

	now    func() time.Time
	logger *logrus.Entry
}

// NewManager creates a Manager over a state file and a backup directory. Load
// must be called before any Read or Mutate.
func NewManager(path, backupDir string, logger *logrus.Entry) *Manager {
	return &Manager{
		path:       path,
		backupDir:  backupDir,
		MaxBackups: DefaultMaxBackups,
		now:        func() time.Time { return time.Now().UTC() },
		logger:     logger.WithField("prefix", "state"),
	}
}

// NewDefaultState returns a fresh document with a new node id.
func NewDefaultState(now time.Time) *NodeState {
	return &NodeState{
		NodeID:            uuid.New().String(),
		Initialized:       now,
		LastUpdated:       now,
		ExecutedProposals: []string{},
		Peers:             []PeerEntry{},
		SystemVersion:     version.Version,
		DagVertices:       []VertexEntry{},
	}
}

// Load restores the document from the state file, or initialises and writes
// a default document if the file does not exist.
func (m *Manager) Load() error {
	m.l.Lock()
	defer m.l.Unlock()

	if err := os.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
		return common.WrapErr(common.State, err, "Failed to create state directory")
	}
	if err := os.MkdirAll(m.backupDir, 0755); err != nil {
		return common.WrapErr(common.State, err, "Failed to create backup directory")
	}

	data, err := ioutil.ReadFile(m.path)
	if os.IsNotExist(err) {
		doc := NewDefaultState(m.now())
		if err := m.write(doc); err != nil {
			return err
		}
		m.doc = doc
		m.loaded = true
		m.logger.WithField("node_id", doc.NodeID).Info("Initialized node state")
		return nil
	}
	if err != nil {
		return common.WrapErr(common.State, err, "Failed to open state file")
	}

	doc := new(NodeState)
	if err := decode(data, doc); err != nil {
		return common.WrapErr(common.State, err, "Failed to parse state file")
	}

	m.doc = doc
	m.loaded = true
	m.logger.WithFields(logrus.Fields{
		"node_id":  doc.NodeID,
		"vertices": len(doc.DagVertices),
		"executed": len(doc.ExecutedProposals),
	}).Debug("Loaded node state")

	return nil
}

// LoadReadOnly restores the document without writing anything: a missing
// state file yields an unsaved default document. Every later Mutate fails
// with a State error. It serves processes that inspect a data directory
// owned by a running node.
func (m *Manager) LoadReadOnly() error {
	m.l.Lock()
	defer m.l.Unlock()

	m.readOnly = true

	data, err := ioutil.ReadFile(m.path)
	if os.IsNotExist(err) {
		m.doc = NewDefaultState(m.now())
		m.loaded = true
		return nil
	}
	if err != nil {
		return common.WrapErr(common.State, err, "Failed to open state file")
	}

	doc := new(NodeState)
	if err := decode(data, doc); err != nil {
		return common.WrapErr(common.State, err, "Failed to parse state file")
	}

	m.doc = doc
	m.loaded = true
	return nil
}

// Read hands a copy of the document to fn under the lock. Changes made by fn
// are discarded.
func (m *Manager) Read(fn func(*NodeState) error) error {
	m.l.Lock()
	defer m.l.Unlock()

	if !m.loaded {
		return common.NewErr(common.State, "State not loaded")
	}

	return fn(m.doc.clone())
}

// Mutate applies fn to a copy of the document under the lock, stamps
// LastUpdated, backs up the file on disk and writes the new version. The
// in-memory document only changes if every step succeeds. If fn returns an
// error nothing is written and the error is returned as is.
func (m *Manager) Mutate(fn func(*NodeState) error) error {
	m.l.Lock()
	defer m.l.Unlock()

	if !m.loaded {
		return common.NewErr(common.State, "State not loaded")
	}
	if m.readOnly {
		return common.NewErr(common.State, "State opened read-only")
	}

	next := m.doc.clone()
	if err := fn(next); err != nil {
		return err
	}
	next.LastUpdated = m.now()

	if _, err := m.backup(); err != nil {
		return err
	}
	if err := m.write(next); err != nil {
		return err
	}

	m.doc = next
	return nil
}

// Path returns the state file path.
func (m *Manager) Path() string {
	return m.path
}

// BackupDir returns the backup directory.
func (m *Manager) BackupDir() string {
	return m.backupDir
}

// write serializes doc to a temporary file and renames it over the state
// file, so a failed write never leaves a truncated document.
func (m *Manager) write(doc *NodeState) error {
	data, err := encode(doc)
	if err != nil {
		return common.WrapErr(common.Serialization, err, "Failed to serialize state")
	}

	tmp, err := ioutil.TempFile(filepath.Dir(m.path), ".state-*.tmp")
	if err != nil {
		return common.WrapErr(common.State, err, "Failed to create state file")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return common.WrapErr(common.State, err, "Failed to write state file")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return common.WrapErr(common.State, err, "Failed to write state file")
	}
	if err := tmp.Close(); err != nil {
		return common.WrapErr(common.State, err, "Failed to write state file")
	}
	if err := os.Rename(tmp.Name(), m.path); err != nil {
		return common.WrapErr(common.State, err, "Failed to write state file")
	}

	return nil
}

// backup copies the current state file to the backup directory. It is a no-op
// if the state file does not exist yet.
func (m *Manager) backup() (string, error) {
	src, err := os.Open(m.path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", common.WrapErr(common.State, err, "Failed to create backup")
	}
	defer src.Close()

	name := backupPrefix + m.now().Format(backupLayout) + backupSuffix
	dest := filepath.Join(m.backupDir, name)

	dst, err := os.Create(dest)
	if err != nil {
		return "", common.WrapErr(common.State, err, "Failed to create backup")
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return "", common.WrapErr(common.State, err, "Failed to create backup")
	}
	if err := dst.Close(); err != nil {
		return "", common.WrapErr(common.State, err, "Failed to create backup")
	}

	m.prune()

	return dest, nil
}

// prune removes the oldest backups beyond MaxBackups. Failures are logged.
func (m *Manager) prune() {
	if m.MaxBackups <= 0 {
		return
	}

	backups, err := m.Backups()
	if err != nil {
		m.logger.WithError(err).Warn("Listing state backups")
		return
	}

	for len(backups) > m.MaxBackups {
		if err := os.Remove(backups[0]); err != nil {
			m.logger.WithError(err).Warn("Pruning state backup")
			return
		}
		backups = backups[1:]
	}
}

// Backups lists the backup files, oldest first.
func (m *Manager) Backups() ([]string, error) {
	entries, err := ioutil.ReadDir(m.backupDir)
	if err != nil {
		return nil, common.WrapErr(common.Io, err, "Failed to read backup directory")
	}

	res := []string{}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, backupPrefix) || !strings.HasSuffix(name, backupSuffix) {
			continue
		}
		res = append(res, filepath.Join(m.backupDir, name))
	}
	sort.Strings(res)

	return res, nil
}

func jsonHandle() *codec.JsonHandle {
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	jh.Indent = 2
	return jh
}

func encode(doc *NodeState) ([]byte, error) {
	b := new(bytes.Buffer)
	if err := codec.NewEncoder(b, jsonHandle()).Encode(doc); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

func decode(data []byte, doc *NodeState) error {
	return codec.NewDecoder(bytes.NewReader(data), jsonHandle()).Decode(doc)
}
