package queue

import (
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/intercoop/icnnode/src/common"
	"github.com/sirupsen/logrus"
)

// Entry is a proposal file found in the queue or the archive.
type Entry struct {
	ID     string
	Status Status
	Path   string
}

// Store is the directory-backed proposal queue.
type Store struct {
	dir         string
	executedDir string
	rejectedLog string

	index *Index

	// logL serializes appends to the rejection log.
	logL sync.Mutex

	now    func() time.Time
	logger *logrus.Entry
}

// NewStore creates a Store over the queue directory, the archive of completed
// proposals and the rejection log file.
func NewStore(dir, executedDir, rejectedLog string, logger *logrus.Entry) *Store {
	return &Store{
		dir:         dir,
		executedDir: executedDir,
		rejectedLog: rejectedLog,
		index:       NewIndex(),
		now:         func() time.Time { return time.Now().UTC() },
		logger:      logger.WithField("prefix", "queue"),
	}
}

// Dir returns the queue directory.
func (s *Store) Dir() string {
	return s.dir
}

// ExecutedDir returns the archive directory.
func (s *Store) ExecutedDir() string {
	return s.executedDir
}

// Index returns the status index.
func (s *Store) Index() *Index {
	return s.index
}

// Init creates the directories and rebuilds the index from a scan.
func (s *Store) Init() error {
	for _, d := range []string{s.dir, s.executedDir, filepath.Dir(s.rejectedLog)} {
		if err := os.MkdirAll(d, 0755); err != nil {
			return common.WrapErr(common.Io, err, "Failed to create %s", d)
		}
	}
	return s.Rescan()
}

// Rescan rebuilds the index from the queue and archive directories.
func (s *Store) Rescan() error {
	queued, err := s.scan(s.dir)
	if err != nil {
		return err
	}
	archived, err := s.scan(s.executedDir)
	if err != nil {
		return err
	}

	s.index.reset()
	for _, e := range queued {
		s.index.observe(e.ID, e.Status)
	}
	for _, e := range archived {
		s.index.observe(e.ID, Completed)
	}

	s.logger.WithFields(logrus.Fields{
		"queued":   len(queued),
		"archived": len(archived),
	}).Debug("Rebuilt proposal index")

	return nil
}

// scan lists the conforming proposal files of a directory, sorted by id. A
// missing directory holds no proposals.
func (s *Store) scan(dir string) ([]Entry, error) {
	files, err := ioutil.ReadDir(dir)
	if os.IsNotExist(err) {
		return []Entry{}, nil
	}
	if err != nil {
		return nil, common.WrapErr(common.Queue, err, "Failed to read %s", dir)
	}

	res := []Entry{}
	for _, f := range files {
		if f.IsDir() || !IsProposalFile(f.Name()) {
			continue
		}
		id, status, err := ParseFileName(f.Name())
		if err != nil {
			continue
		}
		res = append(res, Entry{ID: id, Status: status, Path: filepath.Join(dir, f.Name())})
	}

	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })

	return res, nil
}

// ListPending returns the pending proposal files of the queue, sorted by id.
// A *.dsl file that does not follow the proposal_<id> convention is adopted
// first: it is renamed to proposal_<stem>_pending.dsl. Pending files whose id
// already reached a terminal status are skipped.
func (s *Store) ListPending() ([]Entry, error) {
	files, err := ioutil.ReadDir(s.dir)
	if err != nil {
		return nil, common.WrapErr(common.Queue, err, "Failed to read %s", s.dir)
	}

	res := []Entry{}
	for _, f := range files {
		if f.IsDir() || !IsProposalFile(f.Name()) {
			continue
		}
		path := filepath.Join(s.dir, f.Name())

		id, status, err := ParseFileName(f.Name())
		if err != nil {
			adopted, aerr := s.Adopt(path)
			if aerr != nil {
				s.logger.WithError(aerr).WithField("file", f.Name()).Warn("Skipping proposal file")
				continue
			}
			id, status, path = adopted.ID, adopted.Status, adopted.Path
		}

		if status != Pending {
			continue
		}
		if known, ok := s.index.Get(id); ok && known.IsTerminal() {
			s.logger.WithFields(logrus.Fields{
				"proposal": id,
				"status":   known,
			}).Debug("Ignoring pending file of a finished proposal")
			continue
		}

		s.index.observe(id, Pending)
		res = append(res, Entry{ID: id, Status: Pending, Path: path})
	}

	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })

	return res, nil
}

// Adopt renames a non-conforming *.dsl file to the pending convention.
func (s *Store) Adopt(path string) (Entry, error) {
	id := adoptedID(path)
	if id == "" {
		return Entry{}, common.NewErr(common.Queue, "Cannot derive a proposal id from %s", path)
	}

	dest := filepath.Join(s.dir, FileName(id, Pending))
	if _, err := os.Stat(dest); err == nil {
		return Entry{}, common.NewErr(common.Queue, "Cannot adopt %s: %s already exists", path, dest)
	}
	if err := os.Rename(path, dest); err != nil {
		return Entry{}, common.WrapErr(common.Queue, err, "Failed to adopt %s", path)
	}

	s.logger.WithFields(logrus.Fields{
		"from": filepath.Base(path),
		"to":   filepath.Base(dest),
	}).Info("Adopted proposal file")

	return Entry{ID: id, Status: Pending, Path: dest}, nil
}

// Locate finds the queue file holding a proposal. When several files share
// the id, the one furthest along the lifecycle wins.
func (s *Store) Locate(id string) (Entry, error) {
	entries, err := s.scan(s.dir)
	if err != nil {
		return Entry{}, err
	}

	var (
		found Entry
		ok    bool
	)
	for _, e := range entries {
		if e.ID != id {
			continue
		}
		if !ok || e.Status.rank() > found.Status.rank() {
			found, ok = e, true
		}
	}
	if !ok {
		return Entry{}, common.NewErr(common.Queue, "Proposal not found in queue: %s", id)
	}

	return found, nil
}

// Transition renames the queue file of a proposal to encode a new status. It
// fails with a Queue error if the transition is not allowed, if no file holds
// the proposal in a status that can reach the new one, or if the rename fails.
func (s *Store) Transition(id string, to Status) (Entry, error) {
	if known, ok := s.index.Get(id); ok && !known.CanTransition(to) {
		return Entry{}, common.NewErr(common.Queue, "Invalid transition for proposal %s: %s -> %s", id, known, to)
	}

	entries, err := s.scan(s.dir)
	if err != nil {
		return Entry{}, err
	}

	var from *Entry
	for i, e := range entries {
		if e.ID == id && e.Status.CanTransition(to) {
			from = &entries[i]
			break
		}
	}
	if from == nil {
		return Entry{}, common.NewErr(common.Queue, "No %s proposal file can move to %s: %s", id, to, s.dir)
	}

	dest := filepath.Join(s.dir, FileName(id, to))
	if err := os.Rename(from.Path, dest); err != nil {
		return Entry{}, common.WrapErr(common.Queue, err, "Failed to update proposal status")
	}

	if err := s.index.Set(id, to); err != nil {
		return Entry{}, err
	}

	s.logger.WithFields(logrus.Fields{
		"proposal": id,
		"from":     from.Status,
		"to":       to,
	}).Debug("Proposal status changed")

	return Entry{ID: id, Status: to, Path: dest}, nil
}

// Queued returns the queue files currently encoding status, sorted by id. It
// reads the directory, so it sees files the index ranks differently.
func (s *Store) Queued(status Status) ([]Entry, error) {
	entries, err := s.scan(s.dir)
	if err != nil {
		return nil, err
	}

	res := []Entry{}
	for _, e := range entries {
		if e.Status == status {
			res = append(res, e)
		}
	}
	return res, nil
}

// Resolve settles an execution interrupted by a crash: the Executing queue
// file e is renamed to encode to, which must be Completed or Failed. The
// index is overwritten, since a scan ranks an archived proposal Completed
// whatever its queue file says.
func (s *Store) Resolve(e Entry, to Status) (Entry, error) {
	if e.Status != Executing || !Executing.CanTransition(to) {
		return Entry{}, common.NewErr(common.Queue, "Invalid transition for proposal %s: %s -> %s", e.ID, e.Status, to)
	}

	dest := filepath.Join(s.dir, FileName(e.ID, to))
	if err := os.Rename(e.Path, dest); err != nil {
		return Entry{}, common.WrapErr(common.Queue, err, "Failed to update proposal status")
	}

	s.index.force(e.ID, to)

	s.logger.WithFields(logrus.Fields{
		"proposal": e.ID,
		"to":       to,
	}).Debug("Resolved interrupted proposal")

	return Entry{ID: e.ID, Status: to, Path: dest}, nil
}

// Unarchive undoes the archive copy of a proposal that the ledger never
// recorded. If the queue still holds a file for the proposal the copy is
// removed; otherwise it is moved back into the queue as Failed so that its
// content is kept. The index is rebuilt for the id from the queue.
func (s *Store) Unarchive(id string) error {
	path := filepath.Join(s.executedDir, FileName(id, Completed))
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	entries, err := s.scan(s.dir)
	if err != nil {
		return err
	}

	queued := Entry{ID: id, Status: Failed, Path: filepath.Join(s.dir, FileName(id, Failed))}
	found := false
	for _, e := range entries {
		if e.ID == id && (!found || e.Status.rank() > queued.Status.rank()) {
			queued, found = e, true
		}
	}

	if found {
		if err := os.Remove(path); err != nil {
			return common.WrapErr(common.Io, err, "Failed to remove archive copy of %s", id)
		}
	} else if err := os.Rename(path, queued.Path); err != nil {
		return common.WrapErr(common.Io, err, "Failed to move archive copy of %s", id)
	}

	s.index.drop(id)
	s.index.observe(id, queued.Status)

	s.logger.WithFields(logrus.Fields{
		"proposal": id,
		"status":   queued.Status,
	}).Warn("Removed archive copy of unrecorded proposal")

	return nil
}

// Contains reports whether path lives directly in the queue directory.
func (s *Store) Contains(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	dir, err := filepath.Abs(s.dir)
	if err != nil {
		return false
	}
	return filepath.Dir(abs) == dir
}

// Archive copies a proposal file into the archive directory as
// proposal_<id>_completed.dsl.
func (s *Store) Archive(id, src string) (string, error) {
	dest := filepath.Join(s.executedDir, FileName(id, Completed))

	in, err := os.Open(src)
	if err != nil {
		return "", common.WrapErr(common.Io, err, "Failed to archive proposal %s", id)
	}
	defer in.Close()

	tmp := dest + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return "", common.WrapErr(common.Io, err, "Failed to archive proposal %s", id)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return "", common.WrapErr(common.Io, err, "Failed to archive proposal %s", id)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return "", common.WrapErr(common.Io, err, "Failed to archive proposal %s", id)
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return "", common.WrapErr(common.Io, err, "Failed to archive proposal %s", id)
	}

	return dest, nil
}

// FindArchived returns the archived file of a proposal.
func (s *Store) FindArchived(id string) (string, error) {
	path := filepath.Join(s.executedDir, FileName(id, Completed))
	if _, err := os.Stat(path); err != nil {
		return "", common.WrapErr(common.Queue, err, "Proposal not archived: %s", id)
	}
	return path, nil
}

// Load reads a proposal from the archive or the queue.
func (s *Store) Load(id string) (*Proposal, error) {
	path, err := s.FindArchived(id)
	status := Completed
	if err != nil {
		e, lerr := s.Locate(id)
		if lerr != nil {
			return nil, lerr
		}
		path, status = e.Path, e.Status
	}

	content, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, common.WrapErr(common.Io, err, "Failed to read proposal %s", id)
	}

	return NewProposal(id, status, path, content), nil
}

// LogRejection appends a line to the rejection log.
func (s *Store) LogRejection(id, reason string) error {
	s.logL.Lock()
	defer s.logL.Unlock()

	f, err := os.OpenFile(s.rejectedLog, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return common.WrapErr(common.Io, err, "Failed to open rejection log")
	}
	defer f.Close()

	line := fmt.Sprintf("%s - Rejected proposal: %s, Reason: %s\n",
		s.now().Format(time.RFC3339), id, strings.TrimSpace(reason))
	if _, err := f.WriteString(line); err != nil {
		return common.WrapErr(common.Io, err, "Failed to write rejection log")
	}

	return nil
}

// Reconcile aligns the index with the executed set of the state document:
// executed ids are Completed regardless of what the queue shows. Archived ids
// missing from the executed set are returned; the caller decides from the
// ledger whether they are recorded or stray copies.
func (s *Store) Reconcile(executed []string) []string {
	set := make(map[string]bool, len(executed))
	for _, id := range executed {
		set[id] = true
		s.index.force(id, Completed)
	}

	archived, err := s.scan(s.executedDir)
	if err != nil {
		s.logger.WithError(err).Warn("Scanning archive during reconciliation")
		return nil
	}

	missing := []string{}
	for _, e := range archived {
		if !set[e.ID] {
			missing = append(missing, e.ID)
		}
	}

	return missing
}
