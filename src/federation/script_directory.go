package federation

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"

	"github.com/intercoop/icnnode/src/common"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// meshStatus is the document printed by the discovery script.
type meshStatus struct {
	FederationName string  `yaml:"federation_name"`
	NodeID         string  `yaml:"node_id"`
	NodeName       string  `yaml:"node_name"`
	Peers          []*Peer `yaml:"peers"`
	SyncEndpoint   string  `yaml:"sync_endpoint"`
}

// ScriptDirectory lists the peers reported by an external discovery script,
// run as "bash <script> --json". A missing script holds no peers.
type ScriptDirectory struct {
	script string
	logger *logrus.Entry
}

// NewScriptDirectory creates a ScriptDirectory.
func NewScriptDirectory(script string, logger *logrus.Entry) *ScriptDirectory {
	return &ScriptDirectory{
		script: script,
		logger: logger.WithField("prefix", "federation"),
	}
}

// Peers implements Directory.
func (d *ScriptDirectory) Peers(ctx context.Context) ([]*Peer, error) {
	if _, err := os.Stat(d.script); err != nil {
		d.logger.WithField("script", d.script).Debug("Discovery script not found")
		return []*Peer{}, nil
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, "bash", d.script, "--json")
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, common.NewProcessErr(exitErr.ExitCode(),
				"Discovery script failed: %s", strings.TrimSpace(stderr.String()))
		}
		return nil, common.WrapErr(common.Federation, err, "Failed to execute discovery script")
	}

	var status meshStatus
	if err := yaml.Unmarshal(stdout.Bytes(), &status); err != nil {
		return nil, common.WrapErr(common.Federation, err, "Failed to parse discovery script output")
	}

	res := make([]*Peer, 0, len(status.Peers))
	for _, p := range status.Peers {
		if p == nil {
			continue
		}
		res = append(res, NewPeer(p.ID, p.Name, p.Address))
	}

	d.logger.WithFields(logrus.Fields{
		"federation": status.FederationName,
		"peers":      len(res),
	}).Debug("Discovered peers")

	return dedupe(res), nil
}
