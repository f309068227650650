package dag

import (
	"bytes"
	"fmt"

	"github.com/dgraph-io/badger"
	"github.com/intercoop/icnnode/src/common"
	"github.com/sirupsen/logrus"
	"github.com/ugorji/go/codec"
)

const (
	localPrefix  = "vertex"
	remotePrefix = "remote"
)

// BadgerIndex is an Index persisted in a Badger database.
type BadgerIndex struct {
	db   *badger.DB
	path string
}

// NewBadgerIndex opens an existing database or creates a new one if nothing
// is found in path.
func NewBadgerIndex(path string, logger *logrus.Entry) (*BadgerIndex, error) {
	opts := badger.DefaultOptions(path).
		WithSyncWrites(false).
		WithTruncate(true)

	if logger != nil {
		sub := logger.WithFields(logrus.Fields{"ns": "badger"})
		opts = opts.WithLogger(sub)
	}

	handle, err := badger.Open(opts)
	if err != nil {
		return nil, common.WrapErr(common.Io, err, "Failed to open vertex index %s", path)
	}

	return &BadgerIndex{
		db:   handle,
		path: path,
	}, nil
}

/*******************************************************************************
Keys
*******************************************************************************/

func localKey(id string) []byte {
	return []byte(fmt.Sprintf("%s_%s", localPrefix, id))
}

func remoteKey(id string) []byte {
	return []byte(fmt.Sprintf("%s_%s", remotePrefix, id))
}

/*******************************************************************************
Implement the Index interface
*******************************************************************************/

// Put implements Index.
func (s *BadgerIndex) Put(v *Vertex) error {
	val, err := marshalVertex(v)
	if err != nil {
		return err
	}

	tx := s.db.NewTransaction(true)
	defer tx.Discard()

	if err := tx.Set(localKey(v.ID), val); err != nil {
		return common.WrapErr(common.Io, err, "Failed to index vertex %s", v.ID)
	}
	return common.WrapErr(common.Io, tx.Commit(), "Failed to index vertex %s", v.ID)
}

// PutRemote implements Index.
func (s *BadgerIndex) PutRemote(v *Vertex) (bool, error) {
	val, err := marshalVertex(v)
	if err != nil {
		return false, err
	}

	tx := s.db.NewTransaction(true)
	defer tx.Discard()

	for _, k := range [][]byte{localKey(v.ID), remoteKey(v.ID)} {
		_, err := tx.Get(k)
		if err == nil {
			return false, nil
		}
		if !isDBKeyNotFound(err) {
			return false, common.WrapErr(common.Io, err, "Failed to read vertex index")
		}
	}

	if err := tx.Set(remoteKey(v.ID), val); err != nil {
		return false, common.WrapErr(common.Io, err, "Failed to index vertex %s", v.ID)
	}
	if err := tx.Commit(); err != nil {
		return false, common.WrapErr(common.Io, err, "Failed to index vertex %s", v.ID)
	}
	return true, nil
}

// Get implements Index.
func (s *BadgerIndex) Get(id string) (*Vertex, error) {
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(localKey(id))
		if isDBKeyNotFound(err) {
			item, err = txn.Get(remoteKey(id))
		}
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if isDBKeyNotFound(err) {
		return nil, common.NewErr(common.Dag, "Vertex not found: %s", id)
	}
	if err != nil {
		return nil, common.WrapErr(common.Io, err, "Failed to read vertex index")
	}

	return unmarshalVertex(data)
}

// Remote implements Index.
func (s *BadgerIndex) Remote() ([]*Vertex, error) {
	res := []*Vertex{}
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(remotePrefix + "_")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			data, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			v, err := unmarshalVertex(data)
			if err != nil {
				return err
			}
			res = append(res, v)
		}
		return nil
	})
	if err != nil {
		return nil, common.WrapErr(common.Io, err, "Failed to read vertex index")
	}

	sortVertices(res)
	return res, nil
}

// Len implements Index.
func (s *BadgerIndex) Len() (int, error) {
	n := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		prefix := []byte(localPrefix + "_")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			n++
		}
		return nil
	})
	return n, common.WrapErr(common.Io, err, "Failed to read vertex index")
}

// Close implements Index.
func (s *BadgerIndex) Close() error {
	return s.db.Close()
}

// Path returns the full path of the underlying Badger database directory.
func (s *BadgerIndex) Path() string {
	return s.path
}

func isDBKeyNotFound(err error) bool {
	return err != nil && err.Error() == badger.ErrKeyNotFound.Error()
}

func marshalVertex(v *Vertex) ([]byte, error) {
	b := new(bytes.Buffer)
	jh := new(codec.JsonHandle)
	if err := codec.NewEncoder(b, jh).Encode(v); err != nil {
		return nil, common.WrapErr(common.Serialization, err, "Failed to encode vertex %s", v.ID)
	}
	return b.Bytes(), nil
}

func unmarshalVertex(data []byte) (*Vertex, error) {
	v := new(Vertex)
	jh := new(codec.JsonHandle)
	if err := codec.NewDecoder(bytes.NewReader(data), jh).Decode(v); err != nil {
		return nil, common.WrapErr(common.Serialization, err, "Failed to decode vertex")
	}
	return v, nil
}
