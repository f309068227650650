package queue

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/intercoop/icnnode/src/common"
)

const (
	// Ext is the extension of proposal files.
	Ext = ".dsl"

	filePrefix = "proposal_"
)

// FileName returns the queue filename encoding id and status.
func FileName(id string, status Status) string {
	return fmt.Sprintf("%s%s_%s%s", filePrefix, id, status.Suffix(), Ext)
}

// IsProposalFile reports whether a filename carries the proposal extension.
func IsProposalFile(filename string) bool {
	return strings.EqualFold(filepath.Ext(filename), Ext)
}

// ParseFileName extracts the identifier and status encoded in a filename. An
// unsuffixed proposal_<id>.dsl is Pending. Identifiers may contain
// underscores; only a trailing known status is treated as a suffix.
func ParseFileName(filename string) (string, Status, error) {
	base := filepath.Base(filename)

	if !IsProposalFile(base) {
		return "", Pending, common.NewErr(common.Queue, "Invalid proposal filename format: %s", base)
	}
	stem := base[:len(base)-len(Ext)]

	if !strings.HasPrefix(stem, filePrefix) {
		return "", Pending, common.NewErr(common.Queue, "Invalid proposal filename format: %s", base)
	}
	rest := stem[len(filePrefix):]

	id, status := rest, Pending
	if i := strings.LastIndex(rest, "_"); i >= 0 {
		if s, err := ParseStatus(rest[i+1:]); err == nil {
			id, status = rest[:i], s
		}
	}

	if id == "" {
		return "", Pending, common.NewErr(common.Queue, "Missing proposal id in filename: %s", base)
	}

	return id, status, nil
}

// ExtractID parses the identifier from a filename.
func ExtractID(filename string) (string, error) {
	id, _, err := ParseFileName(filename)
	return id, err
}

// adoptedID derives an identifier for a *.dsl file that does not follow the
// proposal_<id> convention.
func adoptedID(filename string) string {
	stem := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	return strings.Map(func(r rune) rune {
		if r == ' ' || r == '/' || r == '\\' {
			return '-'
		}
		return r
	}, stem)
}

// IDFromPath returns the identifier encoded in a filename, falling back to
// the file stem for files that do not follow the proposal_<id> convention.
func IDFromPath(path string) string {
	if id, err := ExtractID(path); err == nil {
		return id
	}
	return adoptedID(path)
}
