package service

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/intercoop/icnnode/src/crypto/keys"
	"github.com/intercoop/icnnode/src/dag"
	"github.com/intercoop/icnnode/src/federation"
	"github.com/intercoop/icnnode/src/version"
	"github.com/sirupsen/logrus"
)

// Status is the response of /status. Peers probe it to decide whether a node
// is reachable.
type Status struct {
	NodeID        string `json:"node_id"`
	Version       string `json:"version"`
	VertexCount   int    `json:"vertex_count"`
	ExecutedCount int    `json:"executed_count"`
}

// ProposalDetail is the response of /proposal.
type ProposalDetail struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Status   string `json:"status"`
	Executed bool   `json:"executed"`
	Content  string `json:"content"`

	// Votes is always an empty list. The node executes proposals but does
	// not collect votes; the field keeps the shape of the proposal query.
	Votes []string `json:"votes"`
}

// GetStatus reports the identity and size of this node.
func (s *Service) GetStatus(w http.ResponseWriter, r *http.Request) {
	snap, err := s.state.Snapshot()
	if err != nil {
		s.logger.WithError(err).Error("Reading node state")
		writeError(w, statusFor(err), "%v", err)
		return
	}

	writeJSON(w, http.StatusOK, Status{
		NodeID:        snap.NodeID,
		Version:       version.Version,
		VertexCount:   len(snap.DagVertices),
		ExecutedCount: len(snap.ExecutedProposals),
	})
}

// GetDagInfo returns the ledger summary.
func (s *Service) GetDagInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.ledger.Summary()
	if err != nil {
		s.logger.WithError(err).Error("Summarising ledger")
		writeError(w, statusFor(err), "%v", err)
		return
	}

	writeResult(w, http.StatusOK, map[string]interface{}{"dag_info": info})
}

// GetDagVertex returns a single vertex, local or received from a peer.
func (s *Service) GetDagVertex(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "Missing id parameter")
		return
	}

	d, err := s.ledger.Detail(id)
	if err != nil {
		writeError(w, statusFor(err), "Vertex not found: %s", id)
		return
	}

	writeResult(w, http.StatusOK, map[string]interface{}{"vertex": d})
}

// Vertices lists the vertices received from peers on GET and ingests one on
// POST.
func (s *Service) Vertices(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listRemote(w, r)
	case http.MethodPost:
		s.ingest(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed: %s", r.Method)
	}
}

func (s *Service) listRemote(w http.ResponseWriter, r *http.Request) {
	vs, err := s.ledger.Index().Remote()
	if err != nil {
		s.logger.WithError(err).Error("Listing remote vertices")
		writeError(w, statusFor(err), "%v", err)
		return
	}

	writeResult(w, http.StatusOK, map[string]interface{}{"vertices": vs})
}

func (s *Service) ingest(w http.ResponseWriter, r *http.Request) {
	var v dag.Vertex
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(&v); err != nil {
		writeError(w, http.StatusBadRequest, "Malformed vertex: %v", err)
		return
	}
	if err := v.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}

	logger := s.logger.WithFields(logrus.Fields{
		"vertex":    v.ID,
		"submitter": v.Submitter,
	})

	if v.Signature != "" {
		ok, err := keys.Verify(v.Submitter, v.SigningBytes(), v.Signature)
		if err != nil || !ok {
			logger.WithError(err).Warn("Refusing vertex with invalid signature")
			writeError(w, http.StatusConflict, "Invalid vertex signature")
			return
		}
	}

	added, err := s.ledger.Index().PutRemote(&v)
	if err != nil {
		logger.WithError(err).Error("Storing remote vertex")
		writeError(w, http.StatusInternalServerError, "%v", err)
		return
	}

	if !added {
		logger.Debug("Vertex already known")
		writeResult(w, http.StatusOK, map[string]interface{}{"accepted": false, "id": v.ID})
		return
	}

	logger.Info("Received vertex from peer")
	writeResult(w, http.StatusAccepted, map[string]interface{}{"accepted": true, "id": v.ID})
}

// GetProposal returns a governance proposal. Votes are not tracked, so the
// list is always empty.
func (s *Service) GetProposal(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "Missing id parameter")
		return
	}

	p, err := s.store.Load(id)
	if err != nil {
		writeError(w, statusFor(err), "Proposal not found: %s", id)
		return
	}

	executed, err := s.state.IsExecuted(id)
	if err != nil {
		writeError(w, statusFor(err), "%v", err)
		return
	}

	writeResult(w, http.StatusOK, map[string]interface{}{
		"proposal": ProposalDetail{
			ID:       p.ID,
			Title:    p.Title,
			Status:   p.Status.Suffix(),
			Executed: executed,
			Content:  p.Content,
			Votes:    []string{},
		},
	})
}

// GetPeers lists the known federation peers.
func (s *Service) GetPeers(w http.ResponseWriter, r *http.Request) {
	peers := []*federation.Peer{}
	if s.directory != nil {
		ps, err := s.directory.Peers(r.Context())
		if err != nil {
			s.logger.WithError(err).Error("Listing peers")
			writeError(w, statusFor(err), "%v", err)
			return
		}
		peers = append(peers, ps...)
	}

	writeJSON(w, http.StatusOK, peers)
}

// GetHealth probes every peer.
func (s *Service) GetHealth(w http.ResponseWriter, r *http.Request) {
	if s.broadcaster == nil {
		writeJSON(w, http.StatusOK, &federation.Status{
			OnlinePeers:  []*federation.Peer{},
			OfflinePeers: []*federation.Peer{},
		})
		return
	}

	writeJSON(w, http.StatusOK, s.broadcaster.Health(r.Context()))
}
