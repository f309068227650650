package federation

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"io/ioutil"
	"net/http"
	"time"

	"github.com/intercoop/icnnode/src/common"
	"github.com/intercoop/icnnode/src/dag"
)

const (
	statusPath   = "/status"
	verticesPath = "/dag/vertices"

	// DefaultProbeTimeout bounds a health probe.
	DefaultProbeTimeout = 5 * time.Second
)

// Client talks to the HTTP surface of peer nodes.
type Client struct {
	http         *http.Client
	probeTimeout time.Duration
}

// NewClient creates a Client. A zero probeTimeout selects
// DefaultProbeTimeout.
func NewClient(probeTimeout time.Duration) *Client {
	if probeTimeout <= 0 {
		probeTimeout = DefaultProbeTimeout
	}
	return &Client{
		http:         &http.Client{},
		probeTimeout: probeTimeout,
	}
}

// Probe checks that a peer answers GET /status with a 2xx status.
func (c *Client) Probe(ctx context.Context, p *Peer) error {
	ctx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint(statusPath), nil)
	if err != nil {
		return common.WrapErr(common.Federation, err, "Invalid peer address %s", p.Address)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return common.WrapErr(common.Network, err, "Failed to connect to peer %s", p)
	}
	defer drain(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return common.NewErr(common.Federation, "Peer %s returned error status: %s", p, resp.Status)
	}
	return nil
}

// Push sends a vertex to POST /dag/vertices.
func (c *Client) Push(ctx context.Context, p *Peer, v *dag.Vertex) error {
	body, err := json.Marshal(v)
	if err != nil {
		return common.WrapErr(common.Serialization, err, "Failed to encode vertex %s", v.ID)
	}

	ctx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint(verticesPath), bytes.NewReader(body))
	if err != nil {
		return common.WrapErr(common.Federation, err, "Invalid peer address %s", p.Address)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return common.WrapErr(common.Network, err, "Failed to push vertex to peer %s", p)
	}
	defer drain(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return common.NewErr(common.Federation, "Peer %s rejected vertex %s: %s", p, v.ID, resp.Status)
	}
	return nil
}

func drain(body io.ReadCloser) {
	io.Copy(ioutil.Discard, body)
	body.Close()
}
