package federation

import (
	"context"

	"github.com/intercoop/icnnode/src/state"
	"github.com/sirupsen/logrus"
)

// Directory lists the known peers.
type Directory interface {
	Peers(ctx context.Context) ([]*Peer, error)
}

// StateDirectory lists the peers persisted in the node state document.
type StateDirectory struct {
	state *state.Manager
}

// NewStateDirectory creates a StateDirectory.
func NewStateDirectory(mgr *state.Manager) *StateDirectory {
	return &StateDirectory{state: mgr}
}

// Peers implements Directory.
func (d *StateDirectory) Peers(ctx context.Context) ([]*Peer, error) {
	entries, err := d.state.Peers()
	if err != nil {
		return nil, err
	}

	res := make([]*Peer, 0, len(entries))
	for _, e := range entries {
		res = append(res, PeerFromEntry(e))
	}
	return dedupe(res), nil
}

// MultiDirectory merges the peers of several directories, keeping the first
// peer seen for every address. A failing directory is logged and skipped.
type MultiDirectory struct {
	dirs   []Directory
	logger *logrus.Entry
}

// NewMultiDirectory creates a MultiDirectory. Nil directories are ignored.
func NewMultiDirectory(logger *logrus.Entry, dirs ...Directory) *MultiDirectory {
	md := &MultiDirectory{logger: logger.WithField("prefix", "federation")}
	for _, d := range dirs {
		if d != nil {
			md.dirs = append(md.dirs, d)
		}
	}
	return md
}

// Peers implements Directory.
func (d *MultiDirectory) Peers(ctx context.Context) ([]*Peer, error) {
	all := []*Peer{}
	for _, dir := range d.dirs {
		peers, err := dir.Peers(ctx)
		if err != nil {
			d.logger.WithError(err).Warn("Listing peers")
			continue
		}
		all = append(all, peers...)
	}
	return dedupe(all), nil
}
