package engine

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/intercoop/icnnode/src/common"
	"github.com/sirupsen/logrus"
)

// waitDelay bounds how long Run waits for the output pipes after the
// interpreter was killed on cancellation.
const waitDelay = 2 * time.Second

var vertexLineRe = regexp.MustCompile(`(?m)^vertex:\s*(\S+)\s*$`)

// ProcessEngine runs an external interpreter binary as
//
//	<bin> run <file> [flags]
//
// Stdout is the captured output and the exit code is the status code. A line
// of the form "vertex: <id>" in stdout sets the vertex identifier.
type ProcessEngine struct {
	bin    string
	logger *logrus.Entry
}

// NewProcessEngine creates a ProcessEngine around a binary name or path.
func NewProcessEngine(bin string, logger *logrus.Entry) *ProcessEngine {
	return &ProcessEngine{
		bin:    bin,
		logger: logger.WithField("prefix", "engine"),
	}
}

// Bin returns the interpreter binary.
func (e *ProcessEngine) Bin() string {
	return e.bin
}

// Validate runs the proposal in simulate mode and fails with a Validation
// error if the interpreter exits with a non-zero code.
func (e *ProcessEngine) Validate(ctx context.Context, path string, opts Options) error {
	opts.Simulate = true

	res, err := e.run(ctx, path, opts)
	if err != nil {
		return err
	}
	if !res.Success() {
		return common.WrapErr(common.Validation,
			common.NewProcessErr(res.StatusCode, "%s", firstLine(res.Output)),
			"Engine rejected proposal")
	}

	return nil
}

// Execute runs the proposal.
func (e *ProcessEngine) Execute(ctx context.Context, path string, opts Options) (*Result, error) {
	return e.run(ctx, path, opts)
}

func (e *ProcessEngine) run(ctx context.Context, path string, opts Options) (*Result, error) {
	args := append([]string{"run", path}, opts.Args()...)

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, e.bin, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay

	err := cmd.Run()

	code := 0
	if err != nil {
		var exitErr *exec.ExitError
		switch {
		case ctx.Err() != nil:
			return nil, common.WrapErr(common.Execution, ctx.Err(), "Engine invocation cancelled")
		case errors.As(err, &exitErr):
			code = exitErr.ExitCode()
		default:
			return nil, common.WrapErr(common.Execution, err, "Failed to start engine %s", e.bin)
		}
	}

	output := stdout.String()
	if code != 0 && stderr.Len() > 0 {
		output += stderr.String()
	}

	res := &Result{
		StatusCode: code,
		Output:     output,
	}
	if m := vertexLineRe.FindStringSubmatch(stdout.String()); m != nil {
		res.VertexID = m[1]
	}

	e.logger.WithFields(logrus.Fields{
		"path":        path,
		"args":        strings.Join(args, " "),
		"status_code": code,
		"vertex":      res.VertexID,
	}).Debug("Engine returned")

	return res, nil
}

// Args renders the options as interpreter command-line flags.
func (o Options) Args() []string {
	args := []string{}
	if o.Simulate {
		args = append(args, "--simulate")
	}
	if o.Trace {
		args = append(args, "--trace")
	}
	if o.Explain {
		args = append(args, "--explain")
	}
	if o.Verbose {
		args = append(args, "--verbose")
	}
	if o.UseStdlib {
		args = append(args, "--stdlib")
	}
	if o.StorageBackend != "" {
		args = append(args, "--storage-backend", o.StorageBackend)
	}
	if o.StoragePath != "" {
		args = append(args, "--storage-path", o.StoragePath)
	}
	if o.IdentityPath != "" {
		args = append(args, "--identity", o.IdentityPath)
	}
	return args
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
