package crypto

import (
	"encoding/hex"
	"io/ioutil"

	"github.com/intercoop/icnnode/src/common"
	"github.com/zeebo/blake3"
)

// Fingerprint returns the hex encoded BLAKE3-256 digest of data.
func Fingerprint(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// FileFingerprint returns the Fingerprint of the bytes of a file.
func FileFingerprint(path string) (string, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return "", common.WrapErr(common.Execution, err, "Failed to read proposal file %s", path)
	}
	return Fingerprint(data), nil
}
