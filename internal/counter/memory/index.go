// Package memory holds the translation memory: the set of segment
// identities that have been translated before. Texts are reduced to IDs on
// insertion, so the index never stores text.
package memory

import (
	"encoding/binary"
	"fmt"
	"slices"

	"github.com/cespare/xxhash/v2"

	"github.com/babblebase/filecount/internal/counter/hashment"
)

// Index is a set of hashment IDs together with the Hasher that produced
// them.
//
// Index does no locking. Any number of goroutines may call the read methods
// at once, but Add, AddID, Delete and DeleteID need exclusive access.
// counter.Engine provides that discipline.
type Index struct {
	ids    map[hashment.ID]struct{}
	hasher hashment.Hasher
}

// New returns an empty Index using hashment.DefaultHasher.
func New() *Index {
	return NewWithHasher(nil)
}

// NewWithHasher returns an empty Index using hasher. Texts added to the index
// and texts looked up in it must be hashed the same way as the documents it
// is compared against, so the hasher must match the counter's.
func NewWithHasher(hasher hashment.Hasher) *Index {
	if hasher == nil {
		hasher = hashment.DefaultHasher()
	}
	return &Index{
		ids:    make(map[hashment.ID]struct{}),
		hasher: hasher,
	}
}

func (x *Index) Hasher() hashment.Hasher {
	return x.hasher
}

// Add inserts the identity of text. Adding a present text is a no-op.
func (x *Index) Add(text string) {
	x.AddID(x.hasher.Hash(text))
}

func (x *Index) AddID(id hashment.ID) {
	x.ids[id] = struct{}{}
}

// Delete removes the identity of text and reports whether it was present.
func (x *Index) Delete(text string) bool {
	return x.DeleteID(x.hasher.Hash(text))
}

func (x *Index) DeleteID(id hashment.ID) bool {
	if _, ok := x.ids[id]; !ok {
		return false
	}
	delete(x.ids, id)
	return true
}

func (x *Index) Contains(text string) bool {
	return x.ContainsID(x.hasher.Hash(text))
}

// ContainsID reports whether id is present. A nil Index contains nothing.
func (x *Index) ContainsID(id hashment.ID) bool {
	if x == nil {
		return false
	}
	_, ok := x.ids[id]
	return ok
}

func (x *Index) Len() int {
	if x == nil {
		return 0
	}
	return len(x.ids)
}

// IDs returns the identifiers in ascending order.
func (x *Index) IDs() []hashment.ID {
	ids := make([]hashment.ID, 0, len(x.ids))
	for id := range x.ids {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Fingerprint digests the hasher name and the full ID set. Two indexes with
// the same fingerprint give the same analysis for every document.
func (x *Index) Fingerprint() uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(x.hasher.Name())
	var buf [8]byte
	for _, id := range x.IDs() {
		binary.LittleEndian.PutUint64(buf[:], uint64(id))
		_, _ = d.Write(buf[:])
	}
	return d.Sum64()
}

// Merge adds every identifier of other. IDs from different hashers are not
// comparable, so other must use a hasher with the same name.
func (x *Index) Merge(other *Index) error {
	if x.hasher.Name() != other.hasher.Name() {
		return fmt.Errorf("merging %s index into %s index", other.hasher.Name(), x.hasher.Name())
	}
	for id := range other.ids {
		x.ids[id] = struct{}{}
	}
	return nil
}
