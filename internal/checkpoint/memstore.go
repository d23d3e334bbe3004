package checkpoint

import (
	"encoding/json"
	"time"
)

// MemStore keeps the serialized log in memory. It backs tests and dry runs
// where nothing should touch the filesystem, while still exercising the
// same encode/decode path the durable stores use.
type MemStore struct {
	data []byte

	// SaveCount tracks how many times Save ran, for persistence assertions.
	SaveCount int
}

var _ Store = (*MemStore)(nil)

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{}
}

func (s *MemStore) Load(info RunInfo, force bool) (*Log, error) {
	if force || s.data == nil {
		s.data = nil
		return NewLog(info, time.Now().UTC()), nil
	}
	var l Log
	if err := json.Unmarshal(s.data, &l); err != nil {
		return NewLog(info, time.Now().UTC()), nil
	}
	if !l.valid() {
		return NewLog(info, time.Now().UTC()), nil
	}
	l.restore()
	return &l, nil
}

func (s *MemStore) Save(l *Log) error {
	l.normalize()
	data, err := json.Marshal(l)
	if err != nil {
		return err
	}
	s.data = data
	s.SaveCount++
	return nil
}
