package executor

import (
	"bytes"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/intercoop/icnnode/src/common"
	"github.com/ugorji/go/codec"
)

const outputLayout = "20060102_150405"

// ExecutionResult is the outcome of one engine run on a proposal.
type ExecutionResult struct {
	ProposalID string    `json:"proposal_id"`
	Timestamp  time.Time `json:"timestamp"`
	StatusCode int       `json:"status_code"`
	VertexID   *string   `json:"vertex_id"`
	Output     string    `json:"output"`
}

// Success reports whether the engine returned status code zero.
func (r *ExecutionResult) Success() bool {
	return r.StatusCode == 0
}

// Vertex returns the vertex id, or an empty string.
func (r *ExecutionResult) Vertex() string {
	if r.VertexID == nil {
		return ""
	}
	return *r.VertexID
}

func outputName(proposalID string, ts time.Time) string {
	return fmt.Sprintf("execution_%s_%s.json", proposalID, ts.UTC().Format(outputLayout))
}

// writeOutput stores a result as output/execution_<id>_<timestamp>.json.
func writeOutput(dir string, res *ExecutionResult) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", common.WrapErr(common.Io, err, "Failed to create output directory")
	}

	jh := new(codec.JsonHandle)
	jh.Indent = 2

	b := new(bytes.Buffer)
	if err := codec.NewEncoder(b, jh).Encode(res); err != nil {
		return "", common.WrapErr(common.Serialization, err, "Failed to encode execution result")
	}

	path := filepath.Join(dir, outputName(res.ProposalID, res.Timestamp))
	if err := ioutil.WriteFile(path, b.Bytes(), 0644); err != nil {
		return "", common.WrapErr(common.Io, err, "Failed to write execution output")
	}

	return path, nil
}

// LatestOutput returns the path and content of the newest stored result of a
// proposal. The path is empty if no result was stored.
func LatestOutput(dir, proposalID string) (string, []byte, error) {
	files, err := ioutil.ReadDir(dir)
	if os.IsNotExist(err) {
		return "", nil, nil
	}
	if err != nil {
		return "", nil, common.WrapErr(common.Io, err, "Failed to read output directory")
	}

	prefix := fmt.Sprintf("execution_%s_", proposalID)
	names := []string{}
	for _, f := range files {
		name := f.Name()
		if f.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".json") {
			continue
		}
		// execution_1_<ts> must not match execution_1_2_<ts>.
		if stamp := strings.TrimSuffix(name[len(prefix):], ".json"); len(stamp) != len(outputLayout) {
			continue
		}
		names = append(names, name)
	}
	if len(names) == 0 {
		return "", nil, nil
	}

	sort.Sort(sort.Reverse(sort.StringSlice(names)))

	path := filepath.Join(dir, names[0])
	content, err := ioutil.ReadFile(path)
	if err != nil {
		return "", nil, common.WrapErr(common.Execution, err, "Failed to read output file")
	}

	return path, content, nil
}

// ReadOutput decodes a stored result.
func ReadOutput(content []byte) (*ExecutionResult, error) {
	res := new(ExecutionResult)
	if err := codec.NewDecoderBytes(content, new(codec.JsonHandle)).Decode(res); err != nil {
		return nil, common.WrapErr(common.Serialization, err, "Failed to decode execution result")
	}
	return res, nil
}
