package executor

import (
	"bytes"
	"context"
	"io/ioutil"

	"github.com/intercoop/icnnode/src/common"
	"github.com/intercoop/icnnode/src/engine"
)

// Rejection reasons of the structural check.
const (
	ReasonMissingStructure   = "Proposal missing valid JSON structure"
	ReasonMissingTitle       = "Governance proposal missing required 'title' field"
	ReasonMissingDescription = "Governance proposal missing required 'description' field"
)

// CheckStructure performs the cheap structural check of a payload. It
// returns the rejection reason, or an empty string if the payload passes.
func CheckStructure(content []byte) string {
	if !bytes.ContainsRune(content, '{') || !bytes.ContainsRune(content, '}') {
		return ReasonMissingStructure
	}

	if bytes.Contains(content, []byte("proposal")) {
		if !bytes.Contains(content, []byte("title:")) {
			return ReasonMissingTitle
		}
		if !bytes.Contains(content, []byte("description:")) {
			return ReasonMissingDescription
		}
	}

	return ""
}

// validate runs the structural check then an engine dry run. It returns a
// Validation error whose reason is suitable for the rejection log.
func (c *Coordinator) validate(ctx context.Context, path string) error {
	content, err := ioutil.ReadFile(path)
	if err != nil {
		return common.WrapErr(common.Validation, err, "Failed to read proposal file")
	}

	if reason := CheckStructure(content); reason != "" {
		return common.NewErr(common.Validation, "%s", reason)
	}

	if err := c.engine.Validate(ctx, path, engine.SimulateOptions()); err != nil {
		if common.IsKind(err, common.Validation) {
			return err
		}
		return common.WrapErr(common.Validation, err, "Engine validation failed")
	}

	return nil
}

// rejectionReason renders a validation error without its kind prefix.
func rejectionReason(err error) string {
	if e, ok := err.(*common.NodeErr); ok {
		if e.Cause != nil {
			return e.Msg + ": " + e.Cause.Error()
		}
		return e.Msg
	}
	return err.Error()
}
