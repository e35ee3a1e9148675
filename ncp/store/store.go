package store

import (
	"encoding/binary"
	"sync"

	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

const framePrefix = "frame/"

var ErrNotOpen = errors.New("store not open")

// LevelStore keeps captured frames in a leveldb database, keyed by a
// monotonically increasing sequence number.
type LevelStore struct {
	mu      sync.Mutex
	db      *leveldb.DB
	nextSeq uint64
	count   uint64
}

func NewLevelStore() *LevelStore {
	return &LevelStore{}
}

func frameKey(seq uint64) []byte {
	key := make([]byte, len(framePrefix)+8)
	copy(key, framePrefix)
	binary.BigEndian.PutUint64(key[len(framePrefix):], seq)
	return key
}

func frameSeq(key []byte) (uint64, bool) {
	if len(key) != len(framePrefix)+8 {
		return 0, false
	}
	return binary.BigEndian.Uint64(key[len(framePrefix):]), true
}

// Open opens or creates the database at path and resumes numbering after
// the last stored frame.
func (s *LevelStore) Open(path string) error {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.db = db
	s.nextSeq = 0
	s.count = 0

	iter := db.NewIterator(util.BytesPrefix([]byte(framePrefix)), nil)
	defer iter.Release()
	for iter.Next() {
		s.count++
	}
	if iter.Last() {
		if seq, ok := frameSeq(iter.Key()); ok {
			s.nextSeq = seq + 1
		}
	}
	return iter.Error()
}

func (s *LevelStore) Append(frame []byte) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return 0, ErrNotOpen
	}

	seq := s.nextSeq
	if err := s.db.Put(frameKey(seq), frame, nil); err != nil {
		return 0, err
	}
	s.nextSeq++
	s.count++
	return seq, nil
}

// Load calls handler for every frame whose sequence number is >= from.
func (s *LevelStore) Load(from uint64, handler FrameLoadHandler) error {
	s.mu.Lock()
	db := s.db
	s.mu.Unlock()
	if db == nil {
		return ErrNotOpen
	}

	r := util.BytesPrefix([]byte(framePrefix))
	r.Start = frameKey(from)
	iter := db.NewIterator(r, nil)
	defer iter.Release()
	for iter.Next() {
		seq, ok := frameSeq(iter.Key())
		if !ok {
			continue
		}
		val := make([]byte, len(iter.Value()))
		copy(val, iter.Value())
		if err := handler(seq, val); err != nil {
			return err
		}
	}
	return iter.Error()
}

func (s *LevelStore) Count() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Clear deletes every frame. Numbering continues where it was.
func (s *LevelStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return ErrNotOpen
	}

	iter := s.db.NewIterator(util.BytesPrefix([]byte(framePrefix)), nil)
	batch := new(leveldb.Batch)
	for iter.Next() {
		batch.Delete(iter.Key())
	}
	iter.Release()
	if batch.Len() > 0 {
		if err := s.db.Write(batch, nil); err != nil {
			return err
		}
	}
	s.count = 0
	return nil
}

func (s *LevelStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
