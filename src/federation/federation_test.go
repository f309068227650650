package federation

import (
	"context"
	"encoding/json"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/intercoop/icnnode/src/common"
	"github.com/intercoop/icnnode/src/crypto/keys"
	"github.com/intercoop/icnnode/src/dag"
	"github.com/intercoop/icnnode/src/state"
	"github.com/stretchr/testify/require"
)

// fakePeer is an httptest server implementing the peer surface.
type fakePeer struct {
	*httptest.Server

	l        sync.Mutex
	received []*dag.Vertex
}

func newFakePeer(t *testing.T, statusCode, pushCode int) *fakePeer {
	p := &fakePeer{}
	mux := http.NewServeMux()
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(statusCode)
	})
	mux.HandleFunc("/dag/vertices", func(w http.ResponseWriter, r *http.Request) {
		var v dag.Vertex
		if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		p.l.Lock()
		p.received = append(p.received, &v)
		p.l.Unlock()
		w.WriteHeader(pushCode)
	})
	p.Server = httptest.NewServer(mux)
	t.Cleanup(p.Close)
	return p
}

func (p *fakePeer) Received() []*dag.Vertex {
	p.l.Lock()
	defer p.l.Unlock()
	return append([]*dag.Vertex{}, p.received...)
}

type staticDirectory []*Peer

func (d staticDirectory) Peers(ctx context.Context) ([]*Peer, error) {
	return d, nil
}

func testEntry() state.VertexEntry {
	return state.VertexEntry{
		ID:         "v1",
		ProposalID: "42",
		Timestamp:  time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
		Hash:       "cafe",
		Parents:    []string{"v0"},
	}
}

func TestBroadcastPushesToOnlinePeers(t *testing.T) {
	online := newFakePeer(t, http.StatusOK, http.StatusAccepted)
	unhealthy := newFakePeer(t, http.StatusServiceUnavailable, http.StatusAccepted)
	rejecting := newFakePeer(t, http.StatusOK, http.StatusConflict)

	dir := staticDirectory{
		NewPeer("a", "online", online.URL),
		NewPeer("b", "unhealthy", unhealthy.URL),
		NewPeer("c", "rejecting", rejecting.URL),
	}
	b := NewBroadcaster(dir, NewClient(time.Second), common.NewTestEntry(t, "test"))
	b.SetIdentity("node-1", nil)

	report := b.Broadcast(context.Background(), testEntry())

	require.Equal(t, Report{Pushed: 1, Offline: 1, Failed: 1}, report)

	received := online.Received()
	require.Len(t, received, 1)
	require.Equal(t, "v1", received[0].ID)
	require.Equal(t, "42", received[0].ProposalID)
	require.Equal(t, []string{"v0"}, received[0].Parents)
	require.Equal(t, "node-1", received[0].Submitter)
	require.Empty(t, received[0].Signature)

	require.Empty(t, unhealthy.Received(), "offline peers must not receive pushes")
}

func TestBroadcastNeverFails(t *testing.T) {
	dir := staticDirectory{
		NewPeer("a", "", "http://127.0.0.1:1"),
		NewPeer("b", "", "http://256.0.0.1:26657"),
	}
	b := NewBroadcaster(dir, NewClient(200*time.Millisecond), common.NewTestEntry(t, "test"))

	report := b.Broadcast(context.Background(), testEntry())

	require.Equal(t, 0, report.Pushed)
	require.Equal(t, 2, report.Offline)
}

func TestBroadcastSignsVertices(t *testing.T) {
	online := newFakePeer(t, http.StatusOK, http.StatusAccepted)

	key, err := keys.GenerateKey()
	require.NoError(t, err)

	b := NewBroadcaster(staticDirectory{NewPeer("a", "", online.URL)}, NewClient(time.Second), common.NewTestEntry(t, "test"))
	b.SetIdentity("node-1", key)

	b.Broadcast(context.Background(), testEntry())

	received := online.Received()
	require.Len(t, received, 1)

	v := received[0]
	require.Equal(t, key.PublicHex(), v.Submitter)

	ok, err := keys.Verify(v.Submitter, v.SigningBytes(), v.Signature)
	require.NoError(t, err)
	require.True(t, ok, "signature should verify against the submitter key")
}

func TestHealth(t *testing.T) {
	online := newFakePeer(t, http.StatusNoContent, http.StatusAccepted)

	dir := staticDirectory{
		NewPeer("a", "up", online.URL),
		NewPeer("b", "down", "http://127.0.0.1:1"),
	}
	b := NewBroadcaster(dir, NewClient(500*time.Millisecond), common.NewTestEntry(t, "test"))

	status := b.Health(context.Background())

	require.Len(t, status.OnlinePeers, 1)
	require.Len(t, status.OfflinePeers, 1)
	require.Equal(t, "up", status.OnlinePeers[0].Name)
	require.NotNil(t, status.OnlinePeers[0].LastSeen)
	require.True(t, status.OnlinePeers[0].LastSeen.Equal(status.LastCheck))
	require.Nil(t, status.OfflinePeers[0].LastSeen)
	require.Nil(t, dir[0].LastSeen, "the directory's peers must not be modified")
}

func TestStateDirectory(t *testing.T) {
	dir := t.TempDir()
	mgr := state.NewManager(filepath.Join(dir, "state.json"), filepath.Join(dir, "backups"), common.NewTestEntry(t, "test"))
	require.NoError(t, mgr.Load())

	require.NoError(t, mgr.AddPeer(state.PeerEntry{ID: "a", Name: "alpha", Address: "10.0.0.1:26657/"}))

	peers, err := NewStateDirectory(mgr).Peers(context.Background())
	require.NoError(t, err)
	require.Len(t, peers, 1)
	require.Equal(t, "http://10.0.0.1:26657", peers[0].Address)
}

func TestFileDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "peers.yaml")
	d := NewFileDirectory(path)

	peers, err := d.Peers(context.Background())
	require.NoError(t, err)
	require.Empty(t, peers, "a missing file holds no peers")

	require.NoError(t, d.SetPeers([]*Peer{
		NewPeer("a", "alpha", "http://a:26657"),
		NewPeer("b", "beta", "http://b:26657"),
	}))

	peers, err = d.Peers(context.Background())
	require.NoError(t, err)
	require.Len(t, peers, 2)
	require.Equal(t, "beta", peers[1].Name)
}

func TestFileDirectoryJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "peers.json")
	content := `{"peers": [{"id": "a", "name": "alpha", "address": "http://a:26657"}, {"id": "dup", "name": "again", "address": "http://a:26657"}]}`
	require.NoError(t, ioutil.WriteFile(path, []byte(content), 0644))

	peers, err := NewFileDirectory(path).Peers(context.Background())
	require.NoError(t, err)
	require.Len(t, peers, 1)
	require.Equal(t, "alpha", peers[0].Name)
}

func TestFileDirectoryMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "peers.yaml")
	require.NoError(t, ioutil.WriteFile(path, []byte("peers: [unclosed"), 0644))

	_, err := NewFileDirectory(path).Peers(context.Background())
	require.True(t, common.IsKind(err, common.Serialization), "got %v", err)
}

func TestScriptDirectory(t *testing.T) {
	script := filepath.Join(t.TempDir(), "mesh-status.sh")
	body := `#!/bin/bash
if [ "$1" != "--json" ]; then exit 2; fi
echo '{"federation_name": "dev", "node_id": "n", "node_name": "node", "peers": [{"id": "p", "name": "peer", "address": "http://p:26657"}], "sync_endpoint": ""}'
`
	require.NoError(t, ioutil.WriteFile(script, []byte(body), 0755))

	peers, err := NewScriptDirectory(script, common.NewTestEntry(t, "test")).Peers(context.Background())
	require.NoError(t, err)
	require.Len(t, peers, 1)
	require.Equal(t, "http://p:26657", peers[0].Address)
}

func TestScriptDirectoryFailure(t *testing.T) {
	script := filepath.Join(t.TempDir(), "mesh-status.sh")
	require.NoError(t, ioutil.WriteFile(script, []byte("echo 'mesh down' >&2\nexit 4\n"), 0755))

	_, err := NewScriptDirectory(script, common.NewTestEntry(t, "test")).Peers(context.Background())
	require.True(t, common.IsKind(err, common.ExternalProcess), "got %v", err)
	require.Equal(t, 4, common.ExitCode(err))
}

func TestScriptDirectoryMissing(t *testing.T) {
	peers, err := NewScriptDirectory(filepath.Join(t.TempDir(), "nope.sh"), common.NewTestEntry(t, "test")).Peers(context.Background())
	require.NoError(t, err)
	require.Empty(t, peers)
}

type failingDirectory struct{}

func (failingDirectory) Peers(ctx context.Context) ([]*Peer, error) {
	return nil, common.NewErr(common.Federation, "boom")
}

func TestMultiDirectory(t *testing.T) {
	d := NewMultiDirectory(common.NewTestEntry(t, "test"),
		staticDirectory{NewPeer("a", "first", "http://a")},
		failingDirectory{},
		nil,
		staticDirectory{NewPeer("a2", "second", "http://a/"), NewPeer("b", "b", "http://b")},
	)

	peers, err := d.Peers(context.Background())
	require.NoError(t, err)
	require.Len(t, peers, 2)
	require.Equal(t, "first", peers[0].Name)
	require.Equal(t, "http://b", peers[1].Address)
}

func TestExcludePeer(t *testing.T) {
	peers := []*Peer{NewPeer("a", "", "http://a"), NewPeer("b", "", "http://b")}

	res := ExcludePeer(peers, "a")
	require.Len(t, res, 1)
	require.Equal(t, "b", res[0].ID)
}
