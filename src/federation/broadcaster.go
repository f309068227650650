package federation

import (
	"context"
	"sync"
	"time"

	"github.com/intercoop/icnnode/src/crypto/keys"
	"github.com/intercoop/icnnode/src/dag"
	"github.com/intercoop/icnnode/src/state"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// maxParallelPeers bounds the number of peers contacted at once.
const maxParallelPeers = 8

// Report counts the outcomes of a broadcast.
type Report struct {
	Pushed  int
	Offline int
	Failed  int
}

// Status partitions the peers into reachable and unreachable sets.
type Status struct {
	OnlinePeers  []*Peer   `json:"online_peers"`
	OfflinePeers []*Peer   `json:"offline_peers"`
	LastCheck    time.Time `json:"last_check"`
}

// Broadcaster pushes committed vertices to peers.
type Broadcaster struct {
	dir    Directory
	client *Client

	// submitter and key identify this node in pushed vertices. Without a
	// key, vertices go out unsigned.
	submitter string
	key       *keys.Key

	now    func() time.Time
	logger *logrus.Entry
}

// NewBroadcaster creates a Broadcaster over a peer directory.
func NewBroadcaster(dir Directory, client *Client, logger *logrus.Entry) *Broadcaster {
	return &Broadcaster{
		dir:    dir,
		client: client,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger.WithField("prefix", "federation"),
	}
}

// SetIdentity sets the submitter of pushed vertices. When key is not nil,
// the submitter is its public key and vertices are signed.
func (b *Broadcaster) SetIdentity(nodeID string, key *keys.Key) {
	b.submitter = nodeID
	b.key = key
	if key != nil {
		b.submitter = key.PublicHex()
	}
}

// Vertex builds the signed wire form of a ledger entry.
func (b *Broadcaster) Vertex(entry state.VertexEntry) *dag.Vertex {
	v := dag.NewVertex(entry, b.submitter)
	if b.key != nil {
		sig, err := b.key.Sign(v.SigningBytes())
		if err != nil {
			b.logger.WithError(err).WithField("vertex", v.ID).Warn("Signing vertex")
		} else {
			v.Signature = sig
		}
	}
	return v
}

// Broadcast pushes a vertex to every reachable peer. Failures are logged and
// never returned.
func (b *Broadcaster) Broadcast(ctx context.Context, entry state.VertexEntry) Report {
	var (
		l      sync.Mutex
		report Report
	)

	peers, err := b.dir.Peers(ctx)
	if err != nil {
		b.logger.WithError(err).Warn("Listing peers for broadcast")
		return report
	}

	v := b.Vertex(entry)

	var g errgroup.Group
	g.SetLimit(maxParallelPeers)
	for _, p := range peers {
		p := p
		g.Go(func() error {
			outcome := b.push(ctx, p, v)
			l.Lock()
			defer l.Unlock()
			switch outcome {
			case pushed:
				report.Pushed++
			case offline:
				report.Offline++
			default:
				report.Failed++
			}
			return nil
		})
	}
	g.Wait()

	b.logger.WithFields(logrus.Fields{
		"vertex":  v.ID,
		"peers":   len(peers),
		"pushed":  report.Pushed,
		"offline": report.Offline,
		"failed":  report.Failed,
	}).Info("Broadcast vertex")

	return report
}

type outcome int

const (
	pushed outcome = iota
	offline
	failed
)

func (b *Broadcaster) push(ctx context.Context, p *Peer, v *dag.Vertex) outcome {
	logger := b.logger.WithFields(logrus.Fields{
		"peer":   p.String(),
		"vertex": v.ID,
	})

	if err := b.client.Probe(ctx, p); err != nil {
		logger.WithError(err).Debug("Skipping offline peer")
		return offline
	}

	if err := b.client.Push(ctx, p, v); err != nil {
		logger.WithError(err).Warn("Failed to broadcast vertex")
		return failed
	}

	logger.Debug("Broadcast vertex to peer")
	return pushed
}

// Health probes every peer. Reachable peers get LastSeen set to the time of
// the check.
func (b *Broadcaster) Health(ctx context.Context) *Status {
	now := b.now()
	status := &Status{
		OnlinePeers:  []*Peer{},
		OfflinePeers: []*Peer{},
		LastCheck:    now,
	}

	peers, err := b.dir.Peers(ctx)
	if err != nil {
		b.logger.WithError(err).Warn("Listing peers for health check")
		return status
	}

	online := make([]bool, len(peers))

	var g errgroup.Group
	g.SetLimit(maxParallelPeers)
	for i, p := range peers {
		i, p := i, p
		g.Go(func() error {
			online[i] = b.client.Probe(ctx, p) == nil
			return nil
		})
	}
	g.Wait()

	for i, p := range peers {
		c := *p
		if online[i] {
			seen := now
			c.LastSeen = &seen
			status.OnlinePeers = append(status.OnlinePeers, &c)
		} else {
			status.OfflinePeers = append(status.OfflinePeers, &c)
		}
	}

	return status
}
