package dag

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/intercoop/icnnode/src/common"
	"github.com/intercoop/icnnode/src/state"
	"github.com/sirupsen/logrus"
)

// NoLogMessage is returned by ReadLog when dag.log does not exist yet.
const NoLogMessage = "No DAG logs found"

// Ledger is the append-only vertex ledger. Entries are kept in the state
// document and mirrored into an Index.
type Ledger struct {
	state   *state.Manager
	index   Index
	logPath string

	// logL serializes appends to dag.log.
	logL sync.Mutex

	now    func() time.Time
	logger *logrus.Entry
}

// NewLedger creates a Ledger over the state manager. If index is nil an
// InmemIndex is used.
func NewLedger(mgr *state.Manager, index Index, logPath string, logger *logrus.Entry) *Ledger {
	if index == nil {
		index = NewInmemIndex()
	}
	return &Ledger{
		state:   mgr,
		index:   index,
		logPath: logPath,
		now:     func() time.Time { return time.Now().UTC() },
		logger:  logger.WithField("prefix", "dag"),
	}
}

// Index returns the vertex index.
func (l *Ledger) Index() Index {
	return l.index
}

// Sync mirrors every ledger entry into the index. It is called once on start
// so that a fresh index catches up with the state document.
func (l *Ledger) Sync() error {
	entries, err := l.All()
	if err != nil {
		return err
	}

	nodeID, err := l.state.NodeID()
	if err != nil {
		return err
	}

	for _, e := range entries {
		if err := l.index.Put(NewVertex(e, nodeID)); err != nil {
			return err
		}
	}

	l.logger.WithField("vertices", len(entries)).Debug("Synced vertex index")

	return nil
}

// Append adds an entry to the ledger. The entry's parent is set to the
// current tip. An empty id is replaced by a new UUID and a zero timestamp by
// the current time. Appending an id already in the ledger is a Dag error.
func (l *Ledger) Append(entry state.VertexEntry) (state.VertexEntry, error) {
	return l.append(entry, "")
}

// Record marks a proposal executed and appends its vertex in a single state
// mutation, so that either both facts are recorded or neither is.
func (l *Ledger) Record(proposalID string, entry state.VertexEntry) (state.VertexEntry, error) {
	entry.ProposalID = proposalID
	return l.append(entry, proposalID)
}

func (l *Ledger) append(entry state.VertexEntry, executed string) (state.VertexEntry, error) {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = l.now()
	}

	var nodeID string
	err := l.state.Mutate(func(s *state.NodeState) error {
		if s.HasVertex(entry.ID) {
			return common.NewErr(common.Dag, "Duplicate vertex id: %s", entry.ID)
		}
		if executed != "" && !s.MarkExecuted(executed) {
			return common.NewErr(common.Dag, "Proposal already executed: %s", executed)
		}

		entry.Parents = []string{}
		if tip, ok := s.Tip(); ok {
			entry.Parents = append(entry.Parents, tip.ID)
		}

		s.AppendVertex(entry)
		nodeID = s.NodeID
		return nil
	})
	if err != nil {
		return state.VertexEntry{}, err
	}

	l.writeLog(entry)

	if err := l.index.Put(NewVertex(entry, nodeID)); err != nil {
		l.logger.WithError(err).WithField("vertex", entry.ID).Warn("Indexing vertex")
	}

	l.logger.WithFields(logrus.Fields{
		"vertex":   entry.ID,
		"proposal": entry.ProposalID,
		"parents":  entry.Parents,
	}).Info("Appended vertex")

	return entry, nil
}

// writeLog appends the audit line of an entry to dag.log. The log is
// advisory, so failures are only logged.
func (l *Ledger) writeLog(entry state.VertexEntry) {
	l.logL.Lock()
	defer l.logL.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.logPath), 0755); err != nil {
		l.logger.WithError(err).Warn("Creating dag log directory")
		return
	}

	f, err := os.OpenFile(l.logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		l.logger.WithError(err).Warn("Opening dag log")
		return
	}
	defer f.Close()

	line := fmt.Sprintf("%s - Vertex ID: %s, Proposal: %s, Hash: %s\n",
		entry.Timestamp.Format(time.RFC3339), entry.ID, entry.ProposalID, entry.Hash)
	if _, err := f.WriteString(line); err != nil {
		l.logger.WithError(err).Warn("Writing dag log")
	}
}

// All returns a copy of the ledger.
func (l *Ledger) All() ([]state.VertexEntry, error) {
	return l.state.Vertices()
}

// Len returns the number of entries.
func (l *Ledger) Len() (int, error) {
	return l.state.VertexCount()
}

// Since returns the entries after the first n.
func (l *Ledger) Since(n int) ([]state.VertexEntry, error) {
	entries, err := l.All()
	if err != nil {
		return nil, err
	}
	if n < 0 {
		n = 0
	}
	if n >= len(entries) {
		return []state.VertexEntry{}, nil
	}
	return entries[n:], nil
}

// RecordedProposals returns the set of proposal ids that have a vertex.
func (l *Ledger) RecordedProposals() (map[string]bool, error) {
	entries, err := l.All()
	if err != nil {
		return nil, err
	}
	res := make(map[string]bool, len(entries))
	for _, e := range entries {
		if e.ProposalID != "" {
			res[e.ProposalID] = true
		}
	}
	return res, nil
}

// Find returns a single entry or a Dag error if the id is unknown.
func (l *Ledger) Find(id string) (state.VertexEntry, error) {
	entries, err := l.All()
	if err != nil {
		return state.VertexEntry{}, err
	}
	for _, e := range entries {
		if e.ID == id {
			return e, nil
		}
	}
	return state.VertexEntry{}, common.NewErr(common.Dag, "Vertex not found: %s", id)
}

// Children returns the ids of the entries naming id as a parent.
func (l *Ledger) Children(id string) ([]string, error) {
	entries, err := l.All()
	if err != nil {
		return nil, err
	}
	for i, e := range entries {
		if e.ID == id {
			return detail(entries, i, "").Children, nil
		}
	}
	return nil, common.NewErr(common.Dag, "Vertex not found: %s", id)
}

// Summary derives the vertex, root and tip counts of the ledger.
func (l *Ledger) Summary() (Info, error) {
	entries, err := l.All()
	if err != nil {
		return Info{}, err
	}
	return summarize(entries, l.now()), nil
}

// Detail returns a single entry with its height and children. Vertices
// received from peers are served from the index, without height or
// children.
func (l *Ledger) Detail(id string) (Detail, error) {
	var (
		entries []state.VertexEntry
		nodeID  string
	)
	err := l.state.Read(func(s *state.NodeState) error {
		entries = append([]state.VertexEntry{}, s.DagVertices...)
		nodeID = s.NodeID
		return nil
	})
	if err != nil {
		return Detail{}, err
	}

	for i, e := range entries {
		if e.ID == id {
			return detail(entries, i, nodeID), nil
		}
	}

	v, err := l.index.Get(id)
	if err != nil {
		return Detail{}, err
	}
	return Detail{
		ID:        v.ID,
		Timestamp: v.Timestamp,
		Height:    -1,
		Proposer:  v.Submitter,
		DataType:  dataTypeProposal,
		Scope:     remotePrefix,
		Hash:      v.Hash,
		Parents:   append([]string{}, v.Parents...),
		Children:  []string{},
	}, nil
}

// ReadLog returns the content of dag.log, or NoLogMessage if it does not
// exist.
func (l *Ledger) ReadLog() (string, error) {
	data, err := ioutil.ReadFile(l.logPath)
	if os.IsNotExist(err) {
		return NoLogMessage, nil
	}
	if err != nil {
		return "", common.WrapErr(common.Dag, err, "Failed to read DAG log")
	}
	return string(data), nil
}
