package federation

import (
	"context"
	"io/ioutil"
	"os"
	"sync"

	"github.com/intercoop/icnnode/src/common"
	"gopkg.in/yaml.v3"
)

// peersFile is the layout of a peers file. JSON is valid YAML, so the same
// layout serves both formats.
type peersFile struct {
	Peers []*Peer `yaml:"peers"`
}

// FileDirectory lists the peers of a YAML or JSON file that human operators
// can edit. A missing file holds no peers.
type FileDirectory struct {
	l    sync.Mutex
	path string
}

// NewFileDirectory creates a FileDirectory.
func NewFileDirectory(path string) *FileDirectory {
	return &FileDirectory{path: path}
}

// Path returns the peers file path.
func (d *FileDirectory) Path() string {
	return d.path
}

// Peers implements Directory.
func (d *FileDirectory) Peers(ctx context.Context) ([]*Peer, error) {
	d.l.Lock()
	defer d.l.Unlock()

	buf, err := ioutil.ReadFile(d.path)
	if os.IsNotExist(err) {
		return []*Peer{}, nil
	}
	if err != nil {
		return nil, common.WrapErr(common.Config, err, "Failed to read peers file")
	}

	var pf peersFile
	if err := yaml.Unmarshal(buf, &pf); err != nil {
		return nil, common.WrapErr(common.Serialization, err, "Failed to parse peers file %s", d.path)
	}

	res := make([]*Peer, 0, len(pf.Peers))
	for _, p := range pf.Peers {
		if p == nil {
			continue
		}
		res = append(res, NewPeer(p.ID, p.Name, p.Address))
	}
	return dedupe(res), nil
}

// SetPeers overwrites the file with a list of peers.
func (d *FileDirectory) SetPeers(peers []*Peer) error {
	d.l.Lock()
	defer d.l.Unlock()

	out, err := yaml.Marshal(peersFile{Peers: peers})
	if err != nil {
		return common.WrapErr(common.Serialization, err, "Failed to encode peers")
	}
	if err := ioutil.WriteFile(d.path, out, 0644); err != nil {
		return common.WrapErr(common.Io, err, "Failed to write peers file")
	}
	return nil
}
