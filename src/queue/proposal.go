package queue

import (
	"regexp"
	"strings"
)

// Proposal is a unit of governance work read from the queue. Content is
// opaque to the node and only interpreted by the engine.
type Proposal struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Content string `json:"content"`
	Status  Status `json:"status"`
	Path    string `json:"path"`
}

var titleRe = regexp.MustCompile(`(?m)title:\s*"?([^"\n]*)"?`)

// NewProposal builds a Proposal from the raw file content.
func NewProposal(id string, status Status, path string, content []byte) *Proposal {
	p := &Proposal{
		ID:      id,
		Content: string(content),
		Status:  status,
		Path:    path,
	}
	if m := titleRe.FindStringSubmatch(p.Content); m != nil {
		p.Title = strings.TrimSpace(m[1])
	}
	return p
}
