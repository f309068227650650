package keys

import (
	"encoding/hex"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Keyfile reads and writes a Key as an unencrypted hex file.
type Keyfile struct {
	l    sync.Mutex
	path string
}

// NewKeyfile instantiates a Keyfile over the given path.
func NewKeyfile(path string) *Keyfile {
	return &Keyfile{path: path}
}

// Path returns the underlying file path.
func (k *Keyfile) Path() string {
	return k.path
}

// Exists reports whether the key file is present.
func (k *Keyfile) Exists() bool {
	_, err := os.Stat(k.path)
	return err == nil
}

// checkPerm verifies that the file has user permissions only.
func (k *Keyfile) checkPerm() error {
	info, err := os.Stat(k.path)
	if err != nil {
		return err
	}
	if perm := info.Mode().Perm(); perm&0077 != 0 {
		return fmt.Errorf("%s permissions should exclude 'groups' and 'others'. Got %o", k.path, perm)
	}
	return nil
}

// ReadKey parses the key stored in the file.
func (k *Keyfile) ReadKey() (*Key, error) {
	k.l.Lock()
	defer k.l.Unlock()

	if err := k.checkPerm(); err != nil {
		return nil, err
	}

	buf, err := ioutil.ReadFile(k.path)
	if err != nil {
		return nil, err
	}

	d, err := hex.DecodeString(strings.TrimSpace(string(buf)))
	if err != nil {
		return nil, err
	}

	return ParseKey(d)
}

// WriteKey writes the key to the file with 0600 permissions.
func (k *Keyfile) WriteKey(key *Key) error {
	k.l.Lock()
	defer k.l.Unlock()

	if err := os.MkdirAll(filepath.Dir(k.path), 0700); err != nil {
		return err
	}

	return ioutil.WriteFile(k.path, []byte(key.Hex()), 0600)
}
