package expand

import (
	"errors"
	"sort"

	"github.com/fyrsmithlabs/ultracontext/internal/transcript"
)

// ErrStoreNotEnumerable reports a store that cannot list its ids. Search
// walks the full id set; lookup-only stores must declare one through
// FuncStore.Known.
var ErrStoreNotEnumerable = errors.New("store is not enumerable")

// Store resolves original messages by id. Implementations are read-only;
// the expander never writes back.
type Store interface {
	Get(id string) (transcript.Message, bool)
}

// Enumerable is the optional Store extension SearchVerbatim requires.
// IDs returns every id the store can resolve; nil means the set is
// unknown.
type Enumerable interface {
	IDs() []string
}

// MapStore adapts an id-to-message map, such as the verbatim side-table a
// compression run returns, into a Store.
type MapStore map[string]transcript.Message

// Get implements Store.
func (s MapStore) Get(id string) (transcript.Message, bool) {
	m, ok := s[id]
	return m, ok
}

// IDs returns the stored ids in sorted order so search output is stable.
func (s MapStore) IDs() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// FuncStore adapts a lookup function into a Store. Known lists the ids
// the function resolves and is consulted only by SearchVerbatim; leaving
// it nil keeps the store expandable but not searchable.
type FuncStore struct {
	Lookup func(id string) (transcript.Message, bool)
	Known  []string
}

// Get implements Store.
func (s FuncStore) Get(id string) (transcript.Message, bool) {
	if s.Lookup == nil {
		return transcript.Message{}, false
	}
	return s.Lookup(id)
}

// IDs returns the caller-declared id list in its original order.
func (s FuncStore) IDs() []string {
	return s.Known
}
